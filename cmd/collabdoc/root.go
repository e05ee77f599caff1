// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/config"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the collabdoc CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collabdoc",
		Short: "collabdoc - accounts and sessions for the collaborative editor",
		Long: `collabdoc runs the account and session service of the collaborative
document editor: signup, login, JWT access and refresh tokens, logout and
password reset.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file path (default .env, optional)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig reads the layered configuration for a command. It does not validate.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	//nolint:wrapcheck // config errors already carry codes
	return config.Load(config.LoadOptions{
		File:    configFile,
		EnvFile: envFile,
		Flags:   flags,
	})
}
