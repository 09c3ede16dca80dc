package translate

import (
	"strings"
	"unicode/utf8"
)

const defaultChunkSize = 2000

// splitChunks splits body into chunks of at most max runes each, preferring
// paragraph boundaries ("\n\n"). Oversized paragraphs are hard-split.
// An empty body yields no chunks.
func splitChunks(body string, max int) []string {
	if max <= 0 {
		max = defaultChunkSize
	}
	if body == "" {
		return nil
	}

	var chunks []string
	var cur strings.Builder
	curRunes := 0

	flush := func() {
		if curRunes > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curRunes = 0
		}
	}

	for _, para := range strings.Split(body, "\n\n") {
		n := utf8.RuneCountInString(para)
		if n > max {
			flush()
			chunks = append(chunks, splitRunes(para, max)...)
			continue
		}
		// +2 accounts for the paragraph separator we re-insert.
		if curRunes > 0 && curRunes+n+2 > max {
			flush()
		}
		if curRunes > 0 {
			cur.WriteString("\n\n")
			curRunes += 2
		}
		cur.WriteString(para)
		curRunes += n
	}
	flush()
	return chunks
}

func splitRunes(s string, max int) []string {
	r := []rune(s)
	var out []string
	for len(r) > max {
		out = append(out, string(r[:max]))
		r = r[max:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}
