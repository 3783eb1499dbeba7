// Command focusd runs the focus monitor: the periodic sampler, the
// classifier and the HTTP surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/focus-monitor/internal/config"
)

// #region main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "focusd",
		Short:        "Focus state engine and status server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", envOr("FOCUS_CONFIG", ""),
		"path to config YAML (defaults plus FOCUS_* environment when empty)")

	root.AddCommand(newServeCmd(&configPath), newCheckConfigCmd(&configPath))
	return root
}

// #endregion main

// #region commands

func newServeCmd(configPath *string) *cobra.Command {
	var sample bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sampler and the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("sample") {
				cfg.Sampling.AutoStart = sample
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&sample, "sample", false, "start with sampling active (overrides sampling.auto_start)")
	return cmd
}

func newCheckConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then print the effective settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fc := cfg.FocusSettings()
			fmt.Fprintf(out, "server:     %s\n", cfg.Server.Addr)
			fmt.Fprintf(out, "thresholds: green>=%d yellow>=%d cooldown=%s\n",
				fc.GreenThreshold, fc.YellowThreshold, fc.ActionCooldown)
			fmt.Fprintf(out, "sampling:   every %s (auto_start=%v)\n", cfg.Sampling.Interval, cfg.Sampling.AutoStart)
			fmt.Fprintf(out, "backend:    %s\n", backendTarget(cfg))
			fmt.Fprintf(out, "journal:    %s\n", cfg.Resolve(cfg.Journal.Path))
			fmt.Fprintf(out, "voices:     %v (default %s)\n", cfg.VoiceNames(), cfg.DefaultVoice)
			return nil
		},
	}
}

// #endregion commands

// #region helpers

func backendTarget(cfg *config.Config) string {
	if cfg.Backend == "codec" {
		return "codec " + cfg.Codec.Addr
	}
	return fmt.Sprintf("ollama %s (vision %s, text %s)", cfg.Ollama.URL, cfg.Ollama.VisionModel, cfg.Ollama.TextModel)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
