package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"stylepipe/build"
	"stylepipe/config"
	"stylepipe/misc"
	"stylepipe/state"
)

// loadEnvironment applies .env file. Compiler paths and sass thread pool size
// may come from there. Absent default file is not an error.
func loadEnvironment(cmd *cli.Command) error {
	err := godotenv.Load(cmd.String("env"))
	if err == nil || (!cmd.IsSet("env") && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("unable to load environment file: %w", err)
}

// initializeAppContext runs after command line is parsed and before any
// subcommand: environment, configuration, debug report and logs, in that
// order, since each one depends on the previous.
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.NArg() == 0 {
		return ctx, nil
	}
	if err := loadEnvironment(cmd); err != nil {
		return ctx, err
	}

	var (
		env        = state.EnvFromContext(ctx)
		configFile = cmd.String("config")
		err        error
	)
	if env.Cfg, err = config.LoadConfiguration(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}

	if cmd.Bool("debug") {
		if env.Rpt, err = env.Cfg.Reporting.Prepare(); err != nil {
			return ctx, fmt.Errorf("unable to prepare debug reporter: %w", err)
		}
		if data, err := config.Dump(env.Cfg); err == nil {
			env.Rpt.StoreData("config/effective.yaml", data)
		}
		if len(configFile) > 0 {
			if err := env.Rpt.StoreCopy("config/"+filepath.Base(configFile), configFile); err != nil {
				return ctx, fmt.Errorf("unable to store configuration in debug report: %w", err)
			}
		}
	}

	if env.Log, err = env.Cfg.Logging.Prepare(env.Rpt); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.RedirectStdLog()

	env.Log.Debug("Program started",
		zap.Strings("args", os.Args),
		zap.String("ver", misc.GetVersion()),
		zap.String("runtime", runtime.Version()),
		zap.String("hash", misc.GetGitHash()))
	if env.Rpt != nil {
		env.Log.Info("Creating debug report", zap.String("location", env.Rpt.Name()))
	}
	if len(configFile) == 0 {
		env.Log.Debug("No configuration file, using embedded defaults")
	}
	return ctx, nil
}

// removeEmptyPanicLog deletes crash output file nothing was written to.
func removeEmptyPanicLog(cfg *config.Config) error {
	if cfg == nil || len(cfg.Logging.FileLogger.Destination) == 0 {
		return nil
	}
	debug.SetCrashOutput(nil, debug.CrashOptions{})
	fname := filepath.Join(filepath.Dir(cfg.Logging.FileLogger.Destination), misc.GetAppName()+"-panic.log")
	if fi, err := os.Stat(fname); err != nil || fi.Size() > 0 {
		return nil
	}
	if err := os.Remove(fname); err != nil {
		return fmt.Errorf("unable to remove empty panic log '%s': %w", fname, err)
	}
	return nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	if env.Log != nil {
		env.Log.Debug("Program ended", zap.Duration("elapsed", env.Uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	}

	// logs are synced after this, report may include them; from now on errors
	// go to stderr only
	env.RestoreStdLog()

	var err error
	if rerr := env.Rpt.Close(); rerr != nil {
		err = fmt.Errorf("unable to close debug report: %w", rerr)
	}
	return multierr.Append(err, removeEmptyPanicLog(env.Cfg))
}

// Ignore urfave/cli default error handling, subcommands return regular
// errors.
var errWasHandled bool

// this is called before appContext is destroyed, so we have a chance to
// properly log any error from subcommand
func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {

	env := state.EnvFromContext(ctx)

	if env.Log != nil {
		env.Log.Error("Program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	// do nothing special, error is reported either by exitErrHandler or on
	// exit directly to stderr.
	return err
}

func subcommandNotFoundHandler(ctx context.Context, _ *cli.Command, name string) {
	state.EnvFromContext(ctx).Log.Warn("Unknown command, nothing to do", zap.String("command", name))
}

func main() {

	// allow graceful shutdown on interrupt, compilers are killed with the
	// build context
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	app := &cli.Command{
		Name:            misc.GetAppName(),
		Usage:           "stylesheet pipeline: Sass, Less, Stylus and CSS through a single loader chain",
		Version:         misc.GetVersion() + " (" + runtime.Version() + ") : " + misc.GetGitHash(),
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		CommandNotFound: subcommandNotFoundHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, DefaultText: "", Usage: "load configuration from `FILE` (YAML)"},
			&cli.StringFlag{Name: "env", Value: ".env", Usage: "load environment variables from `FILE` if it exists"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "changes program behavior to help troubleshooting, produces report archive"},
		},
		Commands: []*cli.Command{
			{
				Name:         "build",
				Usage:        "Bundles JavaScript entry point(s) with esbuild, imported stylesheets go through the pipeline",
				OnUsageError: usageErrorHandler,
				Action:       build.Run,
				Flags: append(build.Flags(),
					&cli.StringFlag{Name: "outdir", Aliases: []string{"o"}, Value: "dist", Usage: "write output into `DIR`"},
					&cli.StringFlag{Name: "outfile", Usage: "write single entry output to `FILE` instead of output directory"},
					&cli.StringFlag{Name: "format", Value: "esm", Usage: "JavaScript output `FORMAT` (esm, iife, cjs)"},
				),
				ArgsUsage: "ENTRY [ENTRY...]",
				CustomHelpTemplate: fmt.Sprintf(`%s
ENTRY:
    JavaScript module, paths are relative to root directory (current directory
    unless configured or --root is given)

When extraction is on every entry gets CSS bundle named after its output
(or single bundle at --extract-path), stylesheets are ordered as modules
importing them are executed.
`, cli.CommandHelpTemplate),
			},
			{
				Name:         "compile",
				Usage:        "Compiles stylesheet(s) into single CSS bundle",
				OnUsageError: usageErrorHandler,
				Action:       build.Compile,
				Flags: append(build.Flags(),
					&cli.StringFlag{Name: "out", Usage: "bundle `NAME`, derived from SOURCE when absent"},
					&cli.BoolFlag{Name: "overwrite", Aliases: []string{"ow"}, Usage: "continue even if destination exists, overwrite files"},
				),
				ArgsUsage: "SOURCE [DESTINATION]",
				CustomHelpTemplate: fmt.Sprintf(`%s
SOURCE:
    path to a stylesheet or to a directory - recursively process all
    stylesheets under directory in natural order, partials (names starting
    with "_") and node_modules are skipped

DESTINATION:
    always a path, if absent - current working directory
`, cli.CommandHelpTemplate),
			},
			{
				Name:  "dumpconfig",
				Usage: "Writes effective pipeline configuration (YAML)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "write embedded defaults instead of effective configuration"},
					&cli.BoolFlag{Name: "overwrite", Aliases: []string{"ow"}, Usage: "replace existing DESTINATION"},
				},
				OnUsageError: usageErrorHandler,
				Action:       build.DumpConfig,
				ArgsUsage:    "[DESTINATION]",
				CustomHelpTemplate: fmt.Sprintf(`%s
DESTINATION:
    YAML file to create, standard output when absent

Effective configuration is the embedded defaults with --config file applied
on top, the use chain and loader sections included. Output may be fed back
with --config.
`, cli.CommandHelpTemplate),
			},
		},
	}

	var err error
	// NOTE: os.Exit is called at the end of main to set exit code, make sure
	// there are no other deffered functions after that
	defer func() {
		stop()
		if err != nil {
			// It may happen that log is either not set yet (argument parsing) or already closed,
			// report errors to stderr directly
			if !errWasHandled {
				fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
			}
			os.Exit(1)
		}
	}()
	err = app.Run(ctx, os.Args)
}
