package sanitize

import "strings"

// defaultPrefixes is the curated list of literal secret prefixes, grounded
// on the original implementation's aho module default set.
var defaultPrefixes = []string{
	"sk-ant-", "sk-", "ghp_", "gho_", "ghu_", "ghs_", "ghr_",
	"AKIA", "ASIA", "xoxb-", "xoxp-", "xoxa-", "xoxr-",
	"-----BEGIN", "AIzaSy", "ya29.", "glpat-", "npm_",
	"eyJhbGciOi", "sq0atp-", "sq0csp-", "rk_live_", "sk_live_",
	"pk_live_", "SG.",
	"hf_", "dckr_pat_", "shpat_", "shpss_", "r8_", "xai-",
	"figma_", "snyk_", "pscale_tkn_", "pscale_pw_",
}

// delimiters terminate the forward extension of a literal-prefix match.
func isDelimiter(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '"', '\'', ',', ';', ')', ']', '}', '`':
		return true
	}
	return false
}

type span struct {
	start, end int
}

// PrefixLayer is a multi-pattern literal string matcher over a curated
// prefix list. On a match at position p it extends forward to the next
// delimiter; the span is redacted only if it strictly exceeds the bare
// prefix length, so a bare prefix alone is left alone.
type PrefixLayer struct {
	prefixes []string
}

func NewPrefixLayer(prefixes []string) *PrefixLayer {
	cp := make([]string, len(prefixes))
	copy(cp, prefixes)
	return &PrefixLayer{prefixes: cp}
}

func (p *PrefixLayer) Name() string { return "literal-prefix" }

func (p *PrefixLayer) Apply(input string) string {
	spans := p.findSpans(input)
	if len(spans) == 0 {
		return input
	}
	return redactSpans(input, spans)
}

// findSpans locates and merges every redactable span without mutating input.
func (p *PrefixLayer) findSpans(input string) []span {
	runes := []rune(input)
	var spans []span

	for i := 0; i < len(runes); i++ {
		for _, prefix := range p.prefixes {
			pr := []rune(prefix)
			if i+len(pr) > len(runes) {
				continue
			}
			if string(runes[i:i+len(pr)]) != prefix {
				continue
			}
			end := i + len(pr)
			for end < len(runes) && !isDelimiter(runes[end]) {
				end++
			}
			if end > i+len(pr) {
				spans = append(spans, span{start: i, end: end})
			}
		}
	}
	return mergeSpans(spans)
}

// mergeSpans sorts and coalesces overlapping or adjacent ranges so
// replacement never double-processes a region.
func mergeSpans(spans []span) []span {
	if len(spans) == 0 {
		return nil
	}
	// simple insertion sort by start; the candidate lists here are small.
	for i := 1; i < len(spans); i++ {
		j := i
		for j > 0 && spans[j-1].start > spans[j].start {
			spans[j-1], spans[j] = spans[j], spans[j-1]
			j--
		}
	}
	merged := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// redactSpans replaces each [start,end) rune range with Redacted, operating
// on the rune slice so multi-byte UTF-8 characters are never split.
func redactSpans(input string, spans []span) string {
	runes := []rune(input)
	var b strings.Builder
	cursor := 0
	for _, s := range spans {
		if s.start > len(runes) || s.end > len(runes) || s.start < cursor {
			continue
		}
		b.WriteString(string(runes[cursor:s.start]))
		b.WriteString(Redacted)
		cursor = s.end
	}
	b.WriteString(string(runes[cursor:]))
	return b.String()
}
