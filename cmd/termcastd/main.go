package main

import (
	"fmt"
	"os"

	"github.com/caststream/termcastd/internal/config"
	"github.com/caststream/termcastd/internal/daemon"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "termcastd",
		Short: "termcastd relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if v, _ := cmd.Flags().GetString("caster-addr"); v != "" {
				cfg.CasterAddr = v
			}
			if v, _ := cmd.Flags().GetString("watcher-addr"); v != "" {
				cfg.WatcherAddr = v
			}
			if v, _ := cmd.Flags().GetString("log-level"); v != "" {
				cfg.LogLevel = v
			}
			if v, _ := cmd.Flags().GetString("log-file"); v != "" {
				cfg.LogFile = v
			}

			return daemon.Run(cfg)
		},
	}

	root.Flags().String("config", "", "path to termcastd.yaml")
	root.Flags().String("caster-addr", "", "caster listen address (overrides config)")
	root.Flags().String("watcher-addr", "", "watcher listen address (overrides config)")
	root.Flags().String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	root.Flags().String("log-file", "", "extra log file path (overrides config)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
