package build

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"stylepipe/config"
	"stylepipe/state"
)

// DumpConfig writes effective (or embedded default) configuration as YAML.
// Existing destination is kept unless overwrite is requested.
func DumpConfig(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("dumpconfig")

	if cmd.Args().Len() > 1 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	which, dump := "effective", func() ([]byte, error) { return config.Dump(env.Cfg) }
	if cmd.Bool("default") {
		which, dump = "default", config.Prepare
	}
	data, err := dump()
	if err != nil {
		return fmt.Errorf("unable to produce %s configuration: %w", which, err)
	}

	dst := cmd.Args().Get(0)
	if len(dst) == 0 {
		_, err = os.Stdout.Write(data)
		return err
	}
	if _, err := os.Stat(dst); err == nil && !cmd.Bool("overwrite") {
		return fmt.Errorf("configuration file already exists: %s", dst)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	log.Info("Configuration written", zap.String("which", which), zap.String("file", dst))
	return nil
}
