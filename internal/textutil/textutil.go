// Package textutil holds the pure text helpers used to fit content into posts.
// Lengths are counted in grapheme clusters, which is what the platform limits.
package textutil

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rivo/uniseg"
)

const ellipsis = "..."

// Len returns the number of grapheme clusters in s.
func Len(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// Truncate shortens s to at most n graphemes, replacing the tail with an
// ellipsis. Strings that already fit are returned untouched.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if Len(s) <= n {
		return s
	}
	if n <= len(ellipsis) {
		return prefix(s, n)
	}
	return strings.TrimRight(prefix(s, n-len(ellipsis)), " \n") + ellipsis
}

// prefix returns the first n grapheme clusters of s.
func prefix(s string, n int) string {
	var (
		b     strings.Builder
		g     = uniseg.NewGraphemes(s)
		count int
	)
	for count < n && g.Next() {
		b.WriteString(g.Str())
		count++
	}
	return b.String()
}

var (
	blockTags  = regexp.MustCompile(`(?i)</?(?:p|br|div|ul|ol|li|h[1-6]|blockquote|table|thead|tbody|tr|td|th|section|header|footer)(?:\s[^<>]*)?/?>`)
	inlineTags = regexp.MustCompile(`(?i)</?(?:strong|b|i|em|u|span|a|sup|sub)(?:\s[^<>]*)?/?>`)
	spaces     = regexp.MustCompile(`[ \t\r\f\v]+`)
	newlines   = regexp.MustCompile(`\s*\n\s*`)
)

// StripHTML removes known HTML tags. Block tags become a word break, inline
// tags vanish, whitespace runs collapse and the result is trimmed.
func StripHTML(s string) string {
	// Removing an inline tag can splice a new one out of the fragments
	// around it, so repeat until nothing matches.
	for {
		stripped := inlineTags.ReplaceAllString(blockTags.ReplaceAllString(s, " "), "")
		if stripped == s {
			break
		}
		s = stripped
	}
	s = spaces.ReplaceAllString(s, " ")
	s = newlines.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

// Ordinal formats i with its English ordinal suffix: 1st, 2nd, 11th, 118th.
func Ordinal(i int) string {
	j, k := i%10, i%100
	switch {
	case j == 1 && k != 11:
		return strconv.Itoa(i) + "st"
	case j == 2 && k != 12:
		return strconv.Itoa(i) + "nd"
	case j == 3 && k != 13:
		return strconv.Itoa(i) + "rd"
	default:
		return strconv.Itoa(i) + "th"
	}
}

// Chunk splits s into consecutive pieces of at most n graphemes. Splits prefer
// the last newline inside a piece.
func Chunk(s string, n int) []string {
	if n <= 0 || s == "" {
		return nil
	}

	var chunks []string
	for Len(s) > n {
		piece := prefix(s, n)
		if i := strings.LastIndexByte(piece, '\n'); i > 0 {
			piece = piece[:i+1]
		}
		chunks = append(chunks, piece)
		s = s[len(piece):]
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}
