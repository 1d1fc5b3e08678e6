package content

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	textAnchorRe = regexp.MustCompile(`(?is)<a\b[^>]*?\bhref\s*=\s*("[^"]*"|'[^']*')[^>]*>(.*?)</a\s*>`)
	lineBreakRe  = regexp.MustCompile(`(?i)<br\s*/?>|</(div|tr|li)\s*>`)
	blockCloseRe = regexp.MustCompile(`(?i)</(p|h[1-6]|table|ul|ol|blockquote|pre)\s*>`)
	// Counts line breaks, not empty lines: three or more breaks in a row
	// become one paragraph gap.
	blankRunRe   = regexp.MustCompile(`\n{3,}`)

	// StrictPolicy strips every tag and drops script/style/title content.
	stripPolicy = bluemonday.StrictPolicy()
)

// PlainText derives the text/plain alternative from rendered HTML. Links
// become "label (url)", closing block tags become line breaks and all
// remaining markup is removed.
func PlainText(doc string) string {
	s := textAnchorRe.ReplaceAllStringFunc(doc, func(m string) string {
		sub := textAnchorRe.FindStringSubmatch(m)
		href := strings.TrimSpace(html.UnescapeString(sub[1][1 : len(sub[1])-1]))
		label := strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(sub[2])))
		bare, _, _ := strings.Cut(href, "#")
		switch {
		case href == "":
			return html.EscapeString(label)
		case label == "" || label == href || label == bare:
			return html.EscapeString(href)
		default:
			return html.EscapeString(label + " (" + href + ")")
		}
	})
	s = lineBreakRe.ReplaceAllString(s, "$0\n")
	s = blockCloseRe.ReplaceAllString(s, "$0\n\n")

	text := html.UnescapeString(stripPolicy.Sanitize(s))

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
