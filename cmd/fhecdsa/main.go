package main

import (
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/smallyu/go-fhe-ecdsa/internal/config"
)

// BaseCmd holds a cobra command.
type BaseCmd struct {
	Cmd *cobra.Command
}

func (t *BaseCmd) SetCmd(cmd *cobra.Command) { t.Cmd = cmd }

func (t *BaseCmd) GetCmd() *cobra.Command { return t.Cmd }

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("fhecdsa: %v", err)
	}
}

func NewRootCommand() *cobra.Command {
	g := new(globalFlags)
	rootCmd := &cobra.Command{
		Use:           "fhecdsa <command> [arguments]",
		Short:         "fhecdsa signs secp256k1 ECDSA over homomorphically encrypted inputs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example:       "fhecdsa sign --key 1 --message \"Satoshi Nakamoto\"",
	}
	rootCmd.PersistentFlags().StringVarP(&g.configPath, "conf", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level, overrides the config file")

	rootCmd.AddCommand(GetSignCmd(g).GetCmd())
	rootCmd.AddCommand(GetParamsCmd(g).GetCmd())
	return rootCmd
}

// load reads the config file, if any, and applies flag overrides.
func (g *globalFlags) load() (config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.Load(g.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(cfg.Level()).
		With().Timestamp().Logger()
}
