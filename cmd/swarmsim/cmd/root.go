// Package cmd implements the swarmsim command line: resolve a scenario into
// its variation sequence, run a sweep, and inspect recorded results.
package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/swarm-simulator/internal/config"
	"github.com/signalsfoundry/swarm-simulator/internal/logging"
)

// app carries state shared by every subcommand of one root command.
type app struct {
	v       *viper.Viper
	cfgFile string
	envFile string
	noColor bool

	cfg config.Config
	log logging.Logger
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "swarmsim",
		Short: "Reproducible multi-agent swarm simulation",
		Long: `swarmsim resolves looping variables declared in a scenario file into an
ordered sequence of variations and runs each one as an independent,
deterministically seeded simulation of a radio-connected swarm.`,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.init(cmd) },
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./swarmsim.yaml or $HOME/.swarmsim/swarmsim.yaml)")
	flags.StringVar(&a.envFile, "env-file", "", "additional .env file to load")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text or json)")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	bindFlag(flags, "log-level", "log.level")
	bindFlag(flags, "log-format", "log.format")

	root.AddCommand(newResolveCmd(a))
	root.AddCommand(newRunCmd(a))
	root.AddCommand(newResultsCmd(a))
	return root
}

// init loads the optional --env-file and the process configuration, then builds the
// logger. Logs go to stderr so tables on stdout stay clean.
func (a *app) init(cmd *cobra.Command) error {
	if a.noColor {
		color.NoColor = true
	}
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys, ok := f.Annotations[configKeyAnnotation]; ok && bindErr == nil {
			bindErr = a.v.BindPFlag(keys[0], f)
		}
	})
	if bindErr != nil {
		return bindErr
	}
	if a.envFile != "" {
		if err := config.LoadDotEnv(a.envFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Writer: cmd.ErrOrStderr(),
	})
	return nil
}

const configKeyAnnotation = "swarmsim_config_key"

// bindFlag marks a flag as overriding a config key. Binding happens for the
// executing command only, so subcommands may expose the same key.
func bindFlag(fs *pflag.FlagSet, name, key string) {
	_ = fs.SetAnnotation(name, configKeyAnnotation, []string{key})
}
