package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the loaded policy file's roles and default role",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "default_role: %s\n", a.cfg.DefaultRole())
			roles := a.cfg.Roles()
			sort.Strings(roles)
			fmt.Fprintln(cmd.OutOrStdout(), "roles:")
			for _, r := range roles {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", r)
			}
			return nil
		},
	}
}
