// internal/app/app.go
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"shardmap/internal/cli"
	"shardmap/internal/config"
	"shardmap/internal/logging"
	"shardmap/internal/version"
)

// Exit codes.
const (
	ExitOK        = 0
	ExitUsage     = 2
	ExitFailure   = 3
	ExitCancelled = 130
)

// usageError marks errors caused by bad arguments.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, a ...any) error { return usageError{fmt.Errorf(format, a...)} }

type app struct {
	cfg        *config.Config
	configPath string
	stdout     io.Writer
	stderr     io.Writer
	argv       []string
	log        *zap.Logger
}

// Main runs the command line with signal-aware cancellation and exits.
func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := RunContext(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Run is RunContext without cancellation.
func Run(argv []string, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), argv, stdout, stderr)
}

// RunContext executes one command line and returns the process exit code.
func RunContext(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	outw := bufio.NewWriter(stdout)
	defer func() { _ = outw.Flush() }()

	a := &app{stdout: outw, stderr: stderr, argv: argv}
	var err error
	if path := cli.ConfigPath(argv); path != "" {
		a.cfg, err = config.Load(path)
	} else {
		a.cfg, err = config.FromEnv()
	}
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return ExitUsage
	}

	root := a.rootCommand()
	root.SetArgs(argv)
	root.SetOut(outw)
	root.SetErr(stderr)
	err = root.ExecuteContext(ctx)
	if a.log != nil {
		_ = a.log.Sync()
	}
	if ferr := outw.Flush(); ferr != nil && err == nil && !isBrokenPipe(ferr) {
		err = ferr
	}
	return a.exitCode(ctx, err)
}

func (a *app) exitCode(ctx context.Context, err error) int {
	switch {
	case err == nil && ctx.Err() != nil:
		return ExitCancelled
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		_, _ = fmt.Fprintln(a.stderr, "cancelled")
		return ExitCancelled
	case isBrokenPipe(err):
		return ExitOK
	}
	_, _ = fmt.Fprintln(a.stderr, "error:", err)
	var ue usageError
	if errors.As(err, &ue) || strings.HasPrefix(err.Error(), "unknown command") {
		return ExitUsage
	}
	return ExitFailure
}

func isBrokenPipe(err error) bool {
	return err != nil && (errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe))
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "shardmap",
		Short:         "Resolve, vote and assemble read matches across a split template database",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logging.New(a.cfg.LogLevel, a.stderr)
			if err != nil {
				return usageError{err}
			}
			a.log = log
			return nil
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	root.SetVersionTemplate("shardmap version {{.Version}}\n")
	cli.BindGlobal(root.PersistentFlags(), a.cfg, &a.configPath)

	root.AddCommand(
		a.runCommand(),
		a.muxCommand(),
		a.countCommand(),
		a.dbCommand(),
		a.versionCommand(),
	)
	return root
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(a.stdout, "shardmap version %s\n", version.Version)
			return err
		},
	}
}

// positional checks the argument count and reports failures as usage errors.
func positional(min int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < min {
			return usagef("%s: need at least %d argument(s), got %d", cmd.Name(), min, len(args))
		}
		return nil
	}
}

// changed reports whether a flag was set explicitly on the command line.
func changed(fs *pflag.FlagSet, name string) bool {
	f := fs.Lookup(name)
	return f != nil && f.Changed
}
