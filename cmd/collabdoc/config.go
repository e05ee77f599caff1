// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newConfigCmd creates the config subcommand, which prints the effective
// configuration with secrets redacted.
func newConfigCmd() *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging defaults, the config file, the
.env file and the environment. Secrets and URL passwords are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return oops.With("operation", "load configuration").Wrap(err)
			}

			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return oops.With("operation", "encode configuration").Wrap(err)
			}
			cmd.Print(string(out))

			if validate {
				if err := cfg.Validate(); err != nil {
					return err //nolint:wrapcheck // config errors carry codes
				}
				cmd.Println("# configuration is valid")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "also check that the server could start with this configuration")

	return cmd
}
