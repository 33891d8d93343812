package sanitize

import (
	"encoding/base64"
	"net/url"
	"strings"
	"unicode"
)

const minEncodedTokenLen = 40

// EncodingLayer pre-processes base64- or URL-encoded tokens: if decoding a
// token reveals text that a later layer would redact, the entire original
// (still-encoded) token is redacted, since the encoded form itself carries
// the secret.
type EncodingLayer struct {
	probe *Pipeline
}

// NewEncodingLayer wraps its own prefix and regex sub-instances, used only
// to probe whether decoded text would be redacted — it never mutates the
// decoded text into the output itself.
func NewEncodingLayer(prefix *PrefixLayer, regex *RegexLayer) *EncodingLayer {
	return &EncodingLayer{probe: NewPipeline(prefix, regex)}
}

func (e *EncodingLayer) Name() string { return "encoding-preprocess" }

func (e *EncodingLayer) Apply(input string) string {
	fields := splitPreserveWhitespace(input)
	var b strings.Builder
	for _, f := range fields {
		if f.isSpace {
			b.WriteString(f.text)
			continue
		}
		if e.shouldRedactToken(f.text) {
			b.WriteString(Redacted)
			continue
		}
		b.WriteString(f.text)
	}
	return b.String()
}

func (e *EncodingLayer) shouldRedactToken(token string) bool {
	if len(token) >= minEncodedTokenLen && isBase64Alphabet(token) {
		if decoded, ok := tryBase64Decode(token); ok && e.wouldRedact(decoded) {
			return true
		}
	}
	if strings.Contains(token, "%") {
		if decoded, err := url.QueryUnescape(token); err == nil && decoded != token {
			if e.wouldRedact(decoded) {
				return true
			}
		}
	}
	return false
}

func (e *EncodingLayer) wouldRedact(text string) bool {
	return e.probe.Sanitize(text) != text
}

func isBase64Alphabet(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '+' || r == '/' || r == '=' || r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

func tryBase64Decode(s string) (string, bool) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil && isMostlyPrintable(b) {
			return string(b), true
		}
	}
	return "", false
}

// isMostlyPrintable guards against treating arbitrary decoded binary as text.
func isMostlyPrintable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	printable := 0
	for _, r := range string(b) {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	return float64(printable)/float64(len([]rune(string(b)))) > 0.9
}
