package content

import (
	"html"
	"regexp"
	"strings"
)

var (
	ctaLineRe  = regexp.MustCompile(`(?i)^\s*(?:view|learn|see)\s+more\s*[.!:]?\s*$`)
	firstURLRe = regexp.MustCompile(`(?i)https?://[^\s<>"']+`)
)

// ButtonizeCallsToAction replaces lines that consist only of "view more",
// "learn more" or "see more" with a button pointing at the first URL that
// appears on an earlier line. Without such a URL the line stays as text.
func ButtonizeCallsToAction(s string) (string, []string) {
	var warnings []string
	lines := strings.Split(s, "\n")
	firstURL := ""
	for i, line := range lines {
		if ctaLineRe.MatchString(line) {
			if firstURL == "" {
				warnings = append(warnings, "call-to-action line \""+strings.TrimSpace(line)+"\" has no preceding link and was left as text")
				continue
			}
			label := strings.Join(strings.Fields(line), " ")
			label = strings.TrimRight(label, ".!:")
			lines[i] = buttonBlock(firstURL, label)
			continue
		}
		if firstURL == "" {
			if m := firstURLRe.FindString(line); m != "" {
				raw, _ := splitTrailingPunctuation(html.UnescapeString(m))
				firstURL, _ = normalizeHref(raw)
			}
		}
	}
	return strings.Join(lines, "\n"), warnings
}
