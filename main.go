package main

import (
	"fmt"
	"os"

	"github.com/qianlnk/onenight/config"
	"github.com/qianlnk/onenight/logger"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "onenight",
	Short: "One night werewolf game engine",
	Long:  `onenight runs moderated one-night werewolf games between rule-based or external players.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "Directory containing config.yaml")
	rootCmd.AddCommand(serveCmd, simulateCmd)
}

// loadConfig reads the configuration and initialises logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Log.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
