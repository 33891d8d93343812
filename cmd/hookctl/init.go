package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const scaffoldPolicy = `default_role: coder
roles:
  coder:
    allow_write:
      - "**/*.go"
      - "**/*.md"
    deny_write:
      - "**/*.prod.yaml"
      - "**/secrets/**"
    allow_read:
      - "**/*"
    sensitive_ask_write:
      - "**/.env"
      - "**/*.pem"
projects: {}
`

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a default policy file and data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			if configPath == "" {
				configPath = "permgate.yaml"
			}
			dataDir, _ := cmd.Flags().GetString("data-dir")

			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
			}
			if err := os.WriteFile(configPath, []byte(scaffoldPolicy), 0o644); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Join(dataDir, "human"), 0o700); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s, created %s\n", configPath, dataDir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing policy file")
	return cmd
}
