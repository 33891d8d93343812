package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"permgate/internal/decision"
	"permgate/internal/humanqueue"
)

func queueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List decisions awaiting human review",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			pending, err := a.queue.List()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(pending)
		},
	}
}

func replyToQueue(cmd *cobra.Command, id string, verdict decision.Verdict, alwaysAsk, addRule bool, ruleScope string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	reply := humanqueue.Reply{Verdict: verdict, AlwaysAsk: alwaysAsk, AddRule: addRule}
	if ruleScope != "" {
		reply.RuleScope = decision.Scope(ruleScope)
		if !reply.RuleScope.Valid() {
			return fmt.Errorf("invalid rule scope %q", ruleScope)
		}
	}
	return a.queue.Reply(id, reply)
}

func approveCmd() *cobra.Command {
	var alwaysAsk, addRule bool
	var ruleScope string
	cmd := &cobra.Command{
		Use:   "approve <pending-id>",
		Short: "Approve a pending decision (allow)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return replyToQueue(cmd, args[0], decision.Allow, alwaysAsk, addRule, ruleScope)
		},
	}
	cmd.Flags().BoolVar(&alwaysAsk, "always-ask", false, "store the cache entry as ask even though this turn is allowed")
	cmd.Flags().BoolVar(&addRule, "add-rule", false, "persist this verdict as a rule at --rule-scope")
	cmd.Flags().StringVar(&ruleScope, "rule-scope", "", "scope to persist the rule at: role, user, project, or org")
	return cmd
}

func denyCmd() *cobra.Command {
	var alwaysAsk, addRule bool
	var ruleScope string
	cmd := &cobra.Command{
		Use:   "deny <pending-id>",
		Short: "Deny a pending decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return replyToQueue(cmd, args[0], decision.Deny, alwaysAsk, addRule, ruleScope)
		},
	}
	cmd.Flags().BoolVar(&alwaysAsk, "always-ask", false, "store the cache entry as ask even though this turn is denied")
	cmd.Flags().BoolVar(&addRule, "add-rule", false, "persist this verdict as a rule at --rule-scope")
	cmd.Flags().StringVar(&ruleScope, "rule-scope", "", "scope to persist the rule at: role, user, project, or org")
	return cmd
}
