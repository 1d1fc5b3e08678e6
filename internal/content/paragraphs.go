package content

import (
	"regexp"
	"strings"
)

const paragraphStyle = "margin:0 0 16px 0;"

var blockLineRe = regexp.MustCompile(`(?i)^</?(p|div|table|thead|tbody|tfoot|tr|td|th|h[1-6]|ul|ol|li|dl|blockquote|pre|hr|center|section|article|header|footer|figure)\b`)

// WrapParagraphs puts each non-empty line that is not already block-level
// markup into its own paragraph. Blank lines are dropped.
func WrapParagraphs(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		if blockLineRe.MatchString(t) {
			out = append(out, t)
			continue
		}
		out = append(out, `<p style="`+paragraphStyle+`">`+t+`</p>`)
	}
	return strings.Join(out, "\n")
}
