package sanitize

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

// assignmentPattern finds `key = value` / `key: value` style assignments,
// with optional surrounding quotes on the value, for entropy pass one.
var assignmentPattern = regexp.MustCompile(`([=:]\s*"?)([^\s"']+)`)

// EntropyLayer is the Shannon-entropy fallback: two passes over
// assignment-style values and then over bare whitespace tokens, redacting
// long, high-entropy runs that earlier layers missed.
type EntropyLayer struct {
	minLength int
	threshold float64
}

func NewEntropyLayer(minLength int, threshold float64) *EntropyLayer {
	return &EntropyLayer{minLength: minLength, threshold: threshold}
}

func (e *EntropyLayer) Name() string { return "shannon-entropy" }

func (e *EntropyLayer) Apply(input string) string {
	covered := make([]span, 0)

	// Pass one: assignment values.
	pass1 := assignmentPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := assignmentPattern.FindStringSubmatchIndex(match)
		if sub == nil {
			return match
		}
		prefix := match[sub[2]:sub[3]]
		value := match[sub[4]:sub[5]]
		if len(value) >= e.minLength && shannonEntropy(value) > e.threshold {
			return prefix + Redacted
		}
		return match
	})

	// Record which byte ranges pass one touched, by diffing against the
	// run of matches themselves (used only to let pass two skip them).
	for _, loc := range assignmentPattern.FindAllStringIndex(input, -1) {
		covered = append(covered, span{start: loc[0], end: loc[1]})
	}

	return e.passTwo(pass1, covered, input)
}

// passTwo scans whitespace-delimited tokens anywhere in the (already
// pass-one-processed) string, skipping spans pass one already covered in
// the original input's coordinate space is unnecessary here since pass one
// already rewrote those spans to contain Redacted, which never qualifies
// as high entropy on its own (it's short and low-variance).
func (e *EntropyLayer) passTwo(input string, _ []span, _ string) string {
	fields := splitPreserveWhitespace(input)
	var b strings.Builder
	for _, f := range fields {
		if f.isSpace {
			b.WriteString(f.text)
			continue
		}
		if strings.Contains(f.text, Redacted) {
			b.WriteString(f.text)
			continue
		}
		if len(f.text) >= e.minLength && shannonEntropy(f.text) > e.threshold {
			b.WriteString(Redacted)
			continue
		}
		b.WriteString(f.text)
	}
	return b.String()
}

type field struct {
	text    string
	isSpace bool
}

// splitPreserveWhitespace splits on runs of whitespace while preserving the
// whitespace itself as its own field, so reassembly is lossless.
func splitPreserveWhitespace(s string) []field {
	var fields []field
	var cur strings.Builder
	curIsSpace := false
	started := false

	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, field{text: cur.String(), isSpace: curIsSpace})
			cur.Reset()
		}
	}

	for _, r := range s {
		isSpace := unicode.IsSpace(r)
		if started && isSpace != curIsSpace {
			flush()
		}
		cur.WriteRune(r)
		curIsSpace = isSpace
		started = true
	}
	flush()
	return fields
}

// shannonEntropy returns the Shannon entropy of s in bits per character.
func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}
	var entropy float64
	for _, c := range counts {
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}
