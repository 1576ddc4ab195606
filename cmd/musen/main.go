package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/musen/config"
	"github.com/cyberinferno/musen/logger"
)

var (
	// Global flags
	cfgFile  string
	logLevel string

	// Shared state set during PersistentPreRun
	cfg *config.Config
	log logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "musen",
	Short: "Send and receive string messages over raw UDP and TCP sockets",
	Long: `musen exchanges short string messages over UDP (broadcaster and
listener) and TCP (echo server and client) on literal IP addresses.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}

		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if logLevel != "" {
			cfg.LogLevel = logLevel
		}

		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}

		log = logger.NewConsoleLogger("musen", level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.musen/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(serverCmd, clientCmd, broadcastCmd, listenCmd)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// ignoreCanceled treats a cancelled context as a clean shutdown.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
