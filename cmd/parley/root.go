package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/aretw0/parley/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley runs chatbot conversation flows",
	Long: `Parley executes versioned conversation flows (messages, questions, menus,
delays, transfers) for many concurrent users, persisting each session between messages.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a parley.yaml configuration file")
	rootCmd.PersistentFlags().StringSlice("env", nil, "Dotenv files to load before reading PARLEY_* variables")
	rootCmd.PersistentFlags().String("dir", "", "Directory containing flow documents (overrides flows.dir)")
}

// loadConfig reads the configuration named by the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	dotenv, _ := cmd.Flags().GetStringSlice("env")
	cfg, err := config.Load(path, dotenv...)
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Flows.Dir = dir
	}
	return cfg, nil
}

// buildApp loads the configuration and wires the application.
func buildApp(ctx context.Context, cmd *cobra.Command, opts ...cli.BuildOption) (*cli.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return cli.Build(ctx, cfg, opts...)
}
