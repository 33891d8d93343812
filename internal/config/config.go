// Package config loads the declarative YAML that the core consumes only as
// compiled structs (spec §6: "Roles and policy: declarative YAML loaded by
// an external collaborator; the core consumes the resulting structs").
// Grounded on connectors/config/file_loader.go's YAMLConfigFileLoader: same
// env-var expansion pass before unmarshal, same reload-on-demand shape.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"permgate/internal/pathpolicy"
	"permgate/internal/pgerr"
)

// File is the root of a permgate policy file: one block of role definitions
// plus per-project sensitive-path overrides, keyed by "org/project".
type File struct {
	DefaultRole string                `yaml:"default_role"`
	Roles       map[string]RoleConfig `yaml:"roles"`
	Projects    map[string]Project    `yaml:"projects,omitempty"`
}

// RoleConfig is one role's raw glob policy plus supervisor/human tuning
// this role should use, matching pathpolicy.RawPolicy field-for-field.
type RoleConfig struct {
	AllowWrite        []string `yaml:"allow_write"`
	DenyWrite         []string `yaml:"deny_write"`
	AllowRead         []string `yaml:"allow_read"`
	SensitiveAskWrite []string `yaml:"sensitive_ask_write"`
}

// Project names the sensitive paths a project appends on top of whatever
// role touches it, per spec §4.J ("joining the role's globs with the
// project's sensitive_ask_write list").
type Project struct {
	SensitiveAskWrite []string `yaml:"sensitive_ask_write,omitempty"`
}

// Config is the loaded, ready-to-query form; it implements
// session.PolicyProvider without importing internal/session, keeping the
// dependency direction the YAML loader -> the core, never the reverse.
type Config struct {
	file File
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars substitutes ${VAR}, ${VAR:-default}, and $VAR references
// before the YAML parse, so a policy file can reference e.g. a project root
// without baking a host path into version control.
func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := ""
		def := ""
		switch {
		case strings.HasPrefix(match, "${"):
			inner := match[2 : len(match)-1]
			if idx := strings.Index(inner, ":-"); idx >= 0 {
				name, def = inner[:idx], inner[idx+2:]
			} else {
				name = inner
			}
		default:
			name = match[1:]
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return def
	})
}

// Load reads and parses a policy file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.ConfigParse, "read policy file", err).WithContext("path", path)
	}

	var f File
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &f); err != nil {
		return nil, pgerr.Wrap(pgerr.ConfigParse, "parse policy file", err).WithContext("path", path)
	}
	if f.DefaultRole == "" {
		return nil, pgerr.New(pgerr.ConfigParse, "policy file missing default_role").WithContext("path", path)
	}
	if len(f.Roles) == 0 {
		return nil, pgerr.New(pgerr.ConfigParse, "policy file defines no roles").WithContext("path", path)
	}
	return &Config{file: f}, nil
}

// RolePolicy implements session.PolicyProvider.
func (c *Config) RolePolicy(role string) (pathpolicy.RawPolicy, bool) {
	r, ok := c.file.Roles[role]
	if !ok {
		return pathpolicy.RawPolicy{}, false
	}
	return pathpolicy.RawPolicy{
		AllowWrite:        r.AllowWrite,
		DenyWrite:         r.DenyWrite,
		AllowRead:         r.AllowRead,
		SensitiveAskWrite: r.SensitiveAskWrite,
	}, true
}

// ProjectSensitivePaths implements session.PolicyProvider.
func (c *Config) ProjectSensitivePaths(org, project string) []string {
	p, ok := c.file.Projects[fmt.Sprintf("%s/%s", org, project)]
	if !ok {
		return nil
	}
	return p.SensitiveAskWrite
}

// DefaultRole implements session.PolicyProvider.
func (c *Config) DefaultRole() string {
	return c.file.DefaultRole
}

// Roles lists every configured role name, for `hookctl config` introspection.
func (c *Config) Roles() []string {
	out := make([]string, 0, len(c.file.Roles))
	for name := range c.file.Roles {
		out = append(out, name)
	}
	return out
}
