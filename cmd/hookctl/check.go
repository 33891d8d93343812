package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"permgate/internal/cascade"
	"permgate/internal/decision"
	"permgate/internal/pgerr"
)

// hookRequest is the JSON object a calling agent writes to stdin (spec
// §5's "Hook invocation" external interface).
type hookRequest struct {
	SessionID       string `json:"session_id"`
	ToolName        string `json:"tool_name"`
	ToolInput       string `json:"tool_input"`
	FilePath        string `json:"file_path"`
	Cwd             string `json:"cwd"`
	TaskDescription string `json:"task_description"`
	PromptPath      string `json:"prompt_path"`
}

type hookResponse struct {
	Verdict  decision.Verdict  `json:"verdict"`
	Metadata decision.Metadata `json:"metadata"`
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Evaluate one tool invocation read as JSON from stdin (hook mode)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}

			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			var req hookRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return fmt.Errorf("parse hook request: %w", err)
			}
			if req.SessionID == "" || req.ToolName == "" || req.Cwd == "" {
				return fmt.Errorf("hook request requires session_id, tool_name, and cwd")
			}

			rec, err := a.engine.Evaluate(context.Background(), cascade.Request{
				SessionID:       req.SessionID,
				Tool:            req.ToolName,
				ToolInput:       req.ToolInput,
				FilePath:        req.FilePath,
				Cwd:             req.Cwd,
				TaskDescription: req.TaskDescription,
				PromptPath:      req.PromptPath,
			})
			if err != nil {
				resp := hookResponse{
					Verdict:  decision.Deny,
					Metadata: decision.Metadata{Tier: decision.TierDefault, Reason: fatalErrorReason(err)},
				}
				_ = json.NewEncoder(cmd.OutOrStdout()).Encode(resp)
				os.Exit(1)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if err := enc.Encode(hookResponse{Verdict: rec.Decision, Metadata: rec.Metadata}); err != nil {
				return err
			}

			switch rec.Decision {
			case decision.Allow:
				os.Exit(0)
			case decision.Deny:
				os.Exit(1)
			case decision.Ask:
				os.Exit(2)
			}
			return nil
		},
	}
}

// fatalErrorReason names the failure kind behind a terminal Evaluate error
// (spec §7: the hook denies on fatal error with a reason naming the failure
// kind, and a human-timeout is reported distinctly from other failures).
func fatalErrorReason(err error) string {
	var pe *pgerr.Error
	if errors.As(err, &pe) {
		if pe.Kind == pgerr.HumanTimeout {
			return "human review timed out"
		}
		return string(pe.Kind)
	}
	return err.Error()
}
