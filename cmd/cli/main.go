package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/ferricoxide/oxbuild/arch"
	"github.com/ferricoxide/oxbuild/config"
	"github.com/ferricoxide/oxbuild/internal/build"
	"github.com/ferricoxide/oxbuild/internal/logging"
	"github.com/ferricoxide/oxbuild/internal/runner"
)

const defaultLogLevel = "warning"

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelWarn)

	logger := logging.NewCLI(os.Stderr, &levelVar)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	root := newRootCommand(logger, &levelVar, config.DefaultProjectRoot)
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(exitCode(err, logger, os.Stderr))
	}
}

func newRootCommand(logger *slog.Logger, levelVar *slog.LevelVar, projectRoot string) *cobra.Command {
	opts := config.DefaultOptions()
	opts.ProjectRoot = projectRoot
	logLevel := defaultLogLevel

	root := &cobra.Command{
		Use:           "oxbuild",
		Short:         "Build tool for the FerricOxide operating system",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(opts)
			if err != nil {
				return err
			}

			if cfg.Pipeline() == build.PipelineNone {
				out := cmd.OutOrStdout()
				fmt.Fprint(out, cmd.UsageString())
				fmt.Fprintln(out, "\nNothing to do. Bye!")
				return nil
			}

			cmdLogger := logger.With("command", "oxbuild", "pipeline", cfg.Pipeline())
			result, err := config.Run(cmd.Context(), cfg, cmdLogger, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			cmdLogger.Info("done",
				"build_id", result.BuildID,
				"state", result.FinalState(),
				"commands", len(result.Outcomes),
			)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "Set log verbosity (debug, info, warning, error)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		if levelVar != nil {
			levelVar.Set(level)
		}
		return nil
	}

	flags := root.Flags()
	flags.StringVar(&opts.Architecture, "architecture", arch.Default.String(),
		fmt.Sprintf("target architecture (%s)", strings.Join(supported(), ", ")))
	flags.BoolVar(&opts.Release, "release", false, "build with optimizations enabled")
	flags.BoolVar(&opts.Build, "build", false, "compile FerricOxide OS")
	flags.BoolVar(&opts.Boot, "boot", false, "boot FerricOxide OS")
	flags.BoolVar(&opts.Reformat, "reformat", false, "reformat code")
	flags.BoolVar(&opts.Fix, "fix", false, "fix lint errors")
	flags.IntVarP(&opts.MemoryMB, "memory", "m", build.DefaultMemoryMB, "total memory given to the OS in MiB")
	flags.StringVarP(&opts.ExtraQEMUArgs, "extra-qemu-args", "q", "", "extra arguments for QEMU (should be escaped)")

	return root
}

// exitCode reports err and maps it onto the process exit status.
func exitCode(err error, logger *slog.Logger, w io.Writer) int {
	if runner.IsInterrupt(err) || errors.Is(err, context.Canceled) {
		message := "Received keyboard interrupt. Bye!"
		var stageErr *runner.StageError
		if errors.As(err, &stageErr) {
			message = fmt.Sprintf("Received keyboard interrupt while performing task `%s`. Bye!", stageErr.Operation)
		}
		fmt.Fprintln(w, color.Danger.Sprint(message))
		return 1
	}

	var stageErr *runner.StageError
	if !errors.As(err, &stageErr) {
		fmt.Fprintln(w, color.Danger.Sprint(err.Error()))
	}
	logger.Error("command execution failed", "error", err)
	return 1
}

func supported() []string {
	ids := arch.Supported()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
