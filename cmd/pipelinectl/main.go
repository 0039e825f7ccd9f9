// Command pipelinectl runs the analysis stages over local documents without
// the HTTP service, queue or storage backends.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iago/licitacao-pipeline/internal/rules"
)

var (
	cfgFile string
	logger  = zerolog.Nop()
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pipelinectl",
		Short: "Offline procurement notice analysis",
		Long: `pipelinectl runs classification, risk, opportunity, validation and
quality fusion over documents that were already converted to text.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./pipelinectl.yaml)")
	root.PersistentFlags().String("rules", "", "YAML file overlaid on the built-in rule data")
	root.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("rules", root.PersistentFlags().Lookup("rules"))
	_ = viper.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(analyzeCmd())
	root.AddCommand(rulesCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("pipelinectl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PIPELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	level, err := zerolog.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()
	return nil
}

func effectiveRules() (*rules.Set, error) {
	path := viper.GetString("rules")
	if path == "" {
		return rules.Default(), nil
	}
	set, err := rules.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load rules %s: %w", path, err)
	}
	return set, nil
}
