package llm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxReplyLen caps a sanitized reply in bytes.
const MaxReplyLen = 1200

var (
	thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
	spaceRuns  = regexp.MustCompile(`[ \t]{2,}`)

	punctuation = strings.NewReplacer(
		"…", "...",
		"—", "-", "–", "-",
		"“", `"`, "”", `"`, "„", `"`, "«", `"`, "»", `"`,
		"‘", "'", "’", "'",
		"\u00a0", " ", "\t", " ", "\r\n", "\n", "\r", "\n",
	)

	wrappingQuotes = []struct{ open, close string }{
		{`"`, `"`}, {`'`, `'`}, {"“", "”"}, {"‘", "’"},
	}
)

// Sanitize normalizes provider output to plain ASCII: reasoning blocks and
// wrapping quotes are dropped, letters lose their diacritics (ş→s, ğ→g, ı→i),
// typographic punctuation is flattened and anything else outside printable
// ASCII is removed.
func Sanitize(reply string) string {
	reply = strings.TrimSpace(thinkBlock.ReplaceAllString(reply, ""))
	reply = unquote(reply)
	reply = punctuation.Replace(reply)

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Map(func(r rune) rune {
			if r == 'ı' {
				return 'i'
			}
			return r
		}),
		norm.NFC,
	)
	if out, _, err := transform.String(t, reply); err == nil {
		reply = out
	}

	reply = strings.Map(func(r rune) rune {
		if r == '\n' || (r >= 0x20 && r < 0x7f) {
			return r
		}
		return -1
	}, reply)

	reply = spaceRuns.ReplaceAllString(reply, " ")
	reply = blankRuns.ReplaceAllString(reply, "\n\n")
	reply = strings.TrimSpace(reply)

	if len(reply) > MaxReplyLen {
		reply = strings.TrimSpace(reply[:MaxReplyLen]) + "..."
	}
	return reply
}

func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	for _, q := range wrappingQuotes {
		if strings.HasPrefix(s, q.open) && strings.HasSuffix(s, q.close) && len(s) >= len(q.open)+len(q.close) {
			return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, q.open), q.close))
		}
	}
	return s
}
