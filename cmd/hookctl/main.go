// Command hookctl is the out-of-core-scope CLI surface (spec §6): hook
// invocation plus session, queue, and store administration. Subcommands are
// thin — they call into the internal/ packages that implement the real
// semantics, grounded on cmd/axonctl/main.go's root-command-plus-subcommand
// cobra wiring.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:     "hookctl",
		Short:   "permgate hook and administration CLI",
		Long:    "hookctl drives the permission-gating cascade from a hook process and administers its sessions, human queue, and decision store.",
		Version: version,
	}

	root.PersistentFlags().String("config", "", "path to the policy YAML file")
	root.PersistentFlags().String("data-dir", defaultDataDir(), "decision store root directory")
	root.PersistentFlags().String("team", "default", "team suffix for runtime session/exclusion files")
	root.PersistentFlags().String("socket", "", "supervisor Unix domain socket path (Tier 3)")
	root.PersistentFlags().String("human-dir", "", "human queue root directory (defaults to <data-dir>/human)")

	root.AddCommand(
		checkCmd(),
		registerCmd(),
		disableCmd(),
		enableCmd(),
		switchRoleCmd(),
		queueCmd(),
		approveCmd(),
		denyCmd(),
		overrideCmd(),
		buildCmd(),
		invalidateCmd(),
		statsCmd(),
		scanCmd(),
		monitorCmd(),
		initCmd(),
		configCmd(),
		syncCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	if d := os.Getenv("PERMGATE_DATA_DIR"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".permgate"
	}
	return home + "/.permgate"
}
