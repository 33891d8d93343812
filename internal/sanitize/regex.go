package sanitize

import "regexp"

// regexRule is one positional/contextual pattern. PrefixGroup is preserved
// verbatim; SecretGroup is replaced wholesale with Redacted.
type regexRule struct {
	name        string
	pattern     *regexp.Regexp
	prefixGroup int
	secretGroup int
}

// defaultRegexRules targets Bearer tokens, secret-keyword assignments, URL
// credentials, and CLI secret flags, grounded on the original
// implementation's regex_san module.
var defaultRegexRules = []regexRule{
	{
		name:        "bearer-token",
		pattern:     regexp.MustCompile(`(?i)(Bearer\s+)([A-Za-z0-9\-_.=]{8,})`),
		prefixGroup: 1,
		secretGroup: 2,
	},
	{
		name:        "secret-keyword-assignment",
		pattern:     regexp.MustCompile(`(?i)((?:api_key|token|secret|password|credentials)\s*[:=]\s*["']?)([^\s"',;]{8,})`),
		prefixGroup: 1,
		secretGroup: 2,
	},
	{
		name:        "url-credentials",
		pattern:     regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.\-]*://[^:/\s@]+:)([^@/\s]+)(@)`),
		prefixGroup: 1,
		secretGroup: 2,
	},
	{
		name:        "cli-secret-flag",
		pattern:     regexp.MustCompile(`(?i)(--password|--token|--secret|--api-key|-p)(\s+)([^\s]+)`),
		prefixGroup: 2, // group 2 is whitespace; flag name + whitespace both preserved via group indices below
		secretGroup: 3,
	},
}

// RegexLayer applies a fixed set of positional/contextual regexes, each
// preserving a "prefix" capture group and redacting only the secret body.
type RegexLayer struct {
	rules []regexRule
}

func NewRegexLayer(rules []regexRule) *RegexLayer {
	cp := make([]regexRule, len(rules))
	copy(cp, rules)
	return &RegexLayer{rules: cp}
}

func (r *RegexLayer) Name() string { return "contextual-regex" }

func (r *RegexLayer) Apply(input string) string {
	out := input
	for _, rule := range r.rules {
		out = applyRule(rule, out)
	}
	return out
}

func applyRule(rule regexRule, input string) string {
	return rule.pattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := rule.pattern.FindStringSubmatchIndex(match)
		if sub == nil {
			return match
		}
		var prefix string
		if rule.name == "cli-secret-flag" {
			// preserve the flag name (group 1) and the whitespace (group 2).
			flagStart, flagEnd := sub[2], sub[3]
			wsStart, wsEnd := sub[4], sub[5]
			if flagStart < 0 || wsStart < 0 {
				return match
			}
			prefix = match[flagStart:flagEnd] + match[wsStart:wsEnd]
		} else {
			pStart, pEnd := sub[2*rule.prefixGroup], sub[2*rule.prefixGroup+1]
			if pStart < 0 {
				return match
			}
			prefix = match[pStart:pEnd]
		}
		secretStart, secretEnd := sub[2*rule.secretGroup], sub[2*rule.secretGroup+1]
		if secretStart < 0 {
			return match
		}
		suffix := match[secretEnd:]
		return prefix + Redacted + suffix
	})
}
