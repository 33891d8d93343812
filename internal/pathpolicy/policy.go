// Package pathpolicy implements the path policy tier (spec §4.H, Tier 0):
// per-role compiled glob sets evaluated in a strict order, grounded on the
// original implementation's config/roles module (CompiledPathPolicy) but
// using github.com/bmatcuk/doublestar/v4 for glob matching — doublestar
// appears as an indirect dependency across several repos in the example
// pack and is promoted here to a direct, grounded dependency.
package pathpolicy

import (
	"github.com/bmatcuk/doublestar/v4"

	"permgate/internal/decision"
	"permgate/internal/pgerr"
)

// RawPolicy is the declarative form loaded from YAML by the (out-of-core)
// config loader: four glob lists per role.
type RawPolicy struct {
	AllowWrite         []string `yaml:"allow_write"`
	DenyWrite          []string `yaml:"deny_write"`
	AllowRead          []string `yaml:"allow_read"`
	SensitiveAskWrite   []string `yaml:"sensitive_ask_write"`
}

// Compiled is the four compiled glob sets the core actually consumes.
type Compiled struct {
	Role              string
	allowWrite        []string
	denyWrite         []string
	allowRead         []string
	sensitiveAskWrite []string
}

// Compile validates and compiles every glob pattern in raw. An invalid
// glob surfaces as a pgerr.GlobPattern error naming the bad pattern.
func Compile(role string, raw RawPolicy) (*Compiled, error) {
	c := &Compiled{Role: role}
	var err error
	if c.allowWrite, err = validated(raw.AllowWrite); err != nil {
		return nil, err
	}
	if c.denyWrite, err = validated(raw.DenyWrite); err != nil {
		return nil, err
	}
	if c.allowRead, err = validated(raw.AllowRead); err != nil {
		return nil, err
	}
	if c.sensitiveAskWrite, err = validated(raw.SensitiveAskWrite); err != nil {
		return nil, err
	}
	return c, nil
}

func validated(patterns []string) ([]string, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, pgerr.New(pgerr.GlobPattern, "invalid glob pattern").WithContext("pattern", p)
		}
	}
	out := make([]string, len(patterns))
	copy(out, patterns)
	return out, nil
}

// WithSensitivePaths returns a copy of c with project-level sensitive
// patterns appended, used by session context construction (spec §4.J: "the
// context builds a compiled path policy by joining the role's globs with
// the project's sensitive_ask_write list").
func (c *Compiled) WithSensitivePaths(extra []string) *Compiled {
	out := *c
	out.sensitiveAskWrite = append(append([]string{}, c.sensitiveAskWrite...), extra...)
	return &out
}

func matchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

// ToolClass classifies a tool name for path-policy purposes.
type ToolClass int

const (
	ToolGeneral ToolClass = iota // shell, task: bypasses Tier 0 entirely
	ToolWrite                    // write, edit: consults write sets
	ToolRead                     // read, search/glob/grep: consults read sets
)

// ClassifyTool maps a tool name to its ToolClass, grounded on spec §4.H.
func ClassifyTool(tool string) ToolClass {
	switch tool {
	case "Write", "Edit", "MultiEdit":
		return ToolWrite
	case "Read", "Glob", "Grep":
		return ToolRead
	default:
		return ToolGeneral
	}
}

// Evaluate applies the strict, first-classification-wins order from spec
// §4.H:
//  1. deny_write match -> deny
//  2. sensitive_ask_write match -> ask ("sensitive path default")
//  3. allow_write (write tools) or allow_read (read tools) match -> allow
//  4. otherwise -> no decision (fall through to Tier 1+)
//
// General tools (shell, task) bypass Tier 0 and always yield no decision.
func (c *Compiled) Evaluate(tool, path string) (decision.Verdict, string, bool) {
	class := ClassifyTool(tool)
	if class == ToolGeneral {
		return "", "", false
	}

	if matchAny(c.denyWrite, path) {
		return decision.Deny, "path policy: deny_write match", true
	}
	if matchAny(c.sensitiveAskWrite, path) {
		return decision.Ask, "sensitive path default", true
	}
	switch class {
	case ToolWrite:
		if matchAny(c.allowWrite, path) {
			return decision.Allow, "path policy: allow_write match", true
		}
	case ToolRead:
		if matchAny(c.allowRead, path) {
			return decision.Allow, "path policy: allow_read match", true
		}
	}
	return "", "", false
}
