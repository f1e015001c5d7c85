package main

import (
	"os"

	"github.com/spf13/cobra"

	"gitlab.com/zkboost.net/internal/config"
	logger2 "gitlab.com/zkboost.net/internal/global/logger"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "zkboost",
	Short:         "Proof orchestration service for zkVM backends",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		sysCfg := config.NewSystemConfig()
		level := sysCfg.LogLevel
		if sysCfg.DebugMode {
			level = "debug"
		}
		logger2.SetLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Path to a .env file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd, workerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger2.Error("Command failed", "error", err)
		_ = logger2.Logger.Sync()
		os.Exit(1)
	}
	_ = logger2.Logger.Sync()
}
