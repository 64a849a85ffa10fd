// Command qhash computes, verifies and mines QHash proof-of-work.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fourtytwo42/qhash/pkg/config"
	"github.com/fourtytwo42/qhash/pkg/quantum"
)

const VERSION = "1.0.0"

// cli holds state shared by every subcommand
type cli struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "qhash",
		Short:         "QHash quantum-circuit proof-of-work tool",
		Version:       VERSION,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "Configuration file (JSON, YAML or TOML)")
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error, crit)")
	flags.String("backend", quantum.DefaultBackend, "Quantum simulation backend")
	flags.String("network", config.NetworkMain, "Network (main or regtest)")
	c.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	c.v.BindPFlag("quantum.backend", flags.Lookup("backend"))
	c.v.BindPFlag("network", flags.Lookup("network"))

	root.AddCommand(
		newHashCommand(c),
		newPowCommand(c),
		newMineCommand(c),
		newBenchCommand(c),
		newServeCommand(c),
		newConfigCommand(c),
		newVersionCommand(),
	)
	return root
}

// load reads the configuration and installs the root logger
func (c *cli) load() error {
	cfg, err := config.Load(c.v, c.configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	c.cfg = cfg

	lvl, err := log.LvlFromString(cfg.Logging.Level)
	if err != nil {
		return err
	}
	color := cfg.Logging.Color && isatty.IsTerminal(os.Stderr.Fd())
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, color)))
	return nil
}

// backend resolves the configured simulation backend
func (c *cli) backend() (quantum.Backend, error) {
	return quantum.NewBackend(c.cfg.Quantum.Backend)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Printf("QHash v%s\n", VERSION)
			fmt.Printf("Runtime: %s/%s %s\n", runtime.GOOS, runtime.GOARCH, runtime.Version())
			fmt.Printf("Backends: %v\n", quantum.Backends())
		},
	}
}
