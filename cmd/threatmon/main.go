package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/viniciushammett/go-threat-monitor/internal/config"
	"github.com/viniciushammett/go-threat-monitor/internal/logger"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	log := logger.New(env("LOG_LEVEL", "info"))

	var cfgPath string
	root := &cobra.Command{
		Use:           "threatmon",
		Short:         "Log threat monitor: signatures, anomaly detection, batched alerts and reports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnv()
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", env("CONFIG_PATH", "configs/config.yaml"), "YAML config path")

	load := func() (*config.Config, error) { return config.Load(cfgPath) }

	root.AddCommand(
		runCmd(log, load),
		reportCmd(log, load),
		exportCmd(load),
		rulesCmd(load),
		&cobra.Command{
			Use:   "version",
			Short: "Print version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "threatmon %s (%s) %s\n", version, commit, date)
			},
		},
	)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func withSignals() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
