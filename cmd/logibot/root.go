package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/iskan70/my-logistic-bot/internal/util"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "logibot",
	Short: "Logistics chat assistant for WhatsApp",
	Long: `logibot collects freight orders, estimates customs duty and VAT and summarizes
shipping documents over WhatsApp, using either a linked device or the Twilio API.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		if level == "" {
			level = os.Getenv("LOG_LEVEL")
		}
		initializeLogger(util.ParseLogLevel(level))
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error (overrides $LOG_LEVEL)")
	rootCmd.PersistentFlags().String("catalog", "", "path to a catalogue YAML file (overrides $CATALOG_FILE)")
}

// initializeLogger sets up structured logging on stdout.
func initializeLogger(level slog.Level) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}
