package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"permgate/internal/store"
)

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [file]",
		Short: "Scan a file or the whole decision store for lines that change under sanitization",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				findings, err := a.st.ScanForSecrets(args[0])
				if err != nil {
					return err
				}
				return printFindings(cmd, findings)
			}

			dataDir, _ := cmd.Flags().GetString("data-dir")
			return filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() || !strings.HasSuffix(path, ".jsonl") {
					return nil
				}
				findings, err := a.st.ScanForSecrets(path)
				if err != nil {
					return err
				}
				return printFindings(cmd, findings)
			})
		},
	}
	return cmd
}

func printFindings(cmd *cobra.Command, findings []store.SecretFinding) error {
	for _, f := range findings {
		fmt.Fprintf(cmd.OutOrStdout(), "%s:%d changed under sanitization\n  before: %s\n  after:  %s\n", f.Path, f.LineNumber, f.Original, f.Sanitized)
	}
	return nil
}
