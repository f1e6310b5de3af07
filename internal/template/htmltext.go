package template

import (
	"html"
	"regexp"
	"strings"
)

// textWrapWidth is the column at which derived plaintext bodies are
// wrapped, for multipart compatibility with plaintext-only clients.
const textWrapWidth = 78

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style|head)[^>]*>.*?</(script|style|head)>`)
	blockBreakRe  = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|table|blockquote)>|<br\s*/?>`)
	listItemRe    = regexp.MustCompile(`(?i)<li[^>]*>`)
	anyTagRe      = regexp.MustCompile(`<[^>]*>`)
	multiBlankRe  = regexp.MustCompile(`\n{3,}`)
	spaceRunRe    = regexp.MustCompile(`[ \t]+`)
)

// HTMLToText derives a plaintext body from an HTML one: markup stripped,
// block boundaries turned into line breaks, entities decoded, and lines
// wrapped at a fixed column width.
func HTMLToText(htmlBody string) string {
	s := scriptStyleRe.ReplaceAllString(htmlBody, "")
	s = listItemRe.ReplaceAllString(s, "- ")
	s = blockBreakRe.ReplaceAllString(s, "\n")
	s = anyTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	// Normalize whitespace per line, then collapse blank-line runs.
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRunRe.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = multiBlankRe.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)

	return wrapLines(s, textWrapWidth)
}

// wrapLines word-wraps each line of text at the given width, preserving
// existing line breaks.
func wrapLines(s string, width int) string {
	var out strings.Builder
	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(wrapLine(line, width))
	}
	return out.String()
}

func wrapLine(line string, width int) string {
	if len(line) <= width {
		return line
	}

	var out strings.Builder
	col := 0
	for _, word := range strings.Fields(line) {
		if col > 0 && col+1+len(word) > width {
			out.WriteByte('\n')
			col = 0
		} else if col > 0 {
			out.WriteByte(' ')
			col++
		}
		out.WriteString(word)
		col += len(word)
	}
	return out.String()
}
