package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "dispatcher",
		Short:         "Personalized campaign e-mail dispatcher",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", envOr("DISPATCH_CONFIG", "config/config.yaml"), "Path to the YAML config (env DISPATCH_CONFIG)")

	load := func() (*config.Config, error) {
		cfg, err := config.LoadFromEnv(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
		logger.SetRedactPII(cfg.Logging.Redact())
		return cfg, nil
	}

	root.AddCommand(newServeCmd(load), newVerifyCmd(load), newSendCmd(load))
	return root
}

type configLoader func() (*config.Config, error)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
