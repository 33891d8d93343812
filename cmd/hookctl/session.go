package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func registerCmd() *cobra.Command {
	var role, task, promptPath string
	cmd := &cobra.Command{
		Use:   "register <session-id>",
		Short: "Register a session under a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			hash, err := hashPromptFile(promptPath)
			if err != nil {
				return err
			}
			return a.sessMgr.Register(args[0], role, task, hash, promptPath)
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role to register the session under (required)")
	cmd.Flags().StringVar(&task, "task", "", "free-text task description for the audit trail")
	cmd.Flags().StringVar(&promptPath, "prompt-path", "", "path to the agent's system prompt file, hashed for the audit trail")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

// hashPromptFile computes the agent_prompt_hash the session context carries
// (spec §5 "Prompt-file SHA-256 hashing"). An empty path yields no hash.
func hashPromptFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hash prompt file: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func disableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <session-id>",
		Short: "Disable a session so the cascade allows unconditionally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			return a.sessMgr.Disable(args[0])
		},
	}
}

func enableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <session-id>",
		Short: "Re-enable a previously disabled session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			return a.sessMgr.Enable(args[0])
		},
	}
}

func switchRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch-role <session-id> <new-role>",
		Short: "Move a live session to a new role mid-task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			return a.sessMgr.SwitchRole(args[0], args[1])
		},
	}
}
