package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"permgate/internal/decision"
)

func overrideCmd() *cobra.Command {
	var tool, role, sanitizedInput, scopeFlag, reason string
	var verdict string
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Insert a human-authored record directly into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			v := decision.Verdict(verdict)
			if !v.Valid() {
				return fmt.Errorf("invalid verdict %q", verdict)
			}
			s := decision.Scope(scopeFlag)
			if !s.Valid() {
				return fmt.Errorf("invalid scope %q", scopeFlag)
			}
			rec := decision.Record{
				Key:       decision.CacheKey{SanitizedInput: sanitizedInput, Tool: tool, Role: role},
				Decision:  v,
				Metadata:  decision.Metadata{Tier: decision.TierOverride, Confidence: 1.0, Reason: reason},
				Timestamp: time.Now().UTC(),
				Scope:     s,
				SessionID: "hookctl-override",
			}
			return a.st.Save(rec)
		},
	}
	cmd.Flags().StringVar(&tool, "tool", "", "tool name the override applies to (required)")
	cmd.Flags().StringVar(&role, "role", decision.WildcardRole, "role the override applies to, or * for any role")
	cmd.Flags().StringVar(&sanitizedInput, "input", "", "sanitized input the override matches exactly (required)")
	cmd.Flags().StringVar(&verdict, "verdict", "", "allow, deny, or ask (required)")
	cmd.Flags().StringVar(&scopeFlag, "scope", "", "role, user, project, or org (required)")
	cmd.Flags().StringVar(&reason, "reason", "operator override", "reason recorded in the record's metadata")
	_ = cmd.MarkFlagRequired("tool")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("verdict")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func invalidateCmd() *cobra.Command {
	var role, scopeFlag string
	var all bool
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Invalidate a role (or every record) at a given scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			s := decision.Scope(scopeFlag)
			if !s.Valid() {
				return fmt.Errorf("invalid scope %q", scopeFlag)
			}
			if all {
				return a.st.InvalidateAll(s)
			}
			if role == "" {
				return fmt.Errorf("--role is required unless --all is set")
			}
			return a.st.InvalidateRole(s, role)
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role to invalidate")
	cmd.Flags().StringVar(&scopeFlag, "scope", "", "role, user, project, or org (required)")
	cmd.Flags().BoolVar(&all, "all", false, "invalidate every record at this scope, regardless of role")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func buildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Rebuild the embedding index from the decision store and report its size",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			var all []decision.Record
			for _, s := range decision.Scopes {
				records, err := a.st.Load(s)
				if err != nil {
					return err
				}
				all = append(all, records...)
			}
			a.engine.EmbedIndex.LoadFrom(all)
			a.engine.EmbedIndex.Rebuild()
			fmt.Fprintf(cmd.OutOrStdout(), "rebuilt embedding index: %d records\n", a.engine.EmbedIndex.Len())
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print decision counts per scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			for _, s := range decision.Scopes {
				records, err := a.st.Load(s)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %d records\n", s, len(records))
			}
			return nil
		},
	}
}
