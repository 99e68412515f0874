package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/buildfund/onboard/pkg/config"
)

var (
	configPath string
	logLevel   string

	logger zerolog.Logger
	cfg    config.Config
)

var rootCmd = &cobra.Command{
	Use:   "onboard",
	Short: "BuildFund conversational onboarding, in your terminal",
	Long: `onboard talks to the BuildFund onboarding API and walks you through
profile completion as a chat. It also ships a development server that
implements the same API against a local sqlite database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional, used for ONBOARD_* overrides during development
		_ = godotenv.Load()

		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).
			With().Timestamp().Logger()

		if configPath == "" {
			configPath = config.DefaultPath()
		}
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.onboard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newChatCommand())
	rootCmd.AddCommand(newServeCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
