package content

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultSalutation replaces the name placeholder when no usable name can be
// derived from the address.
const DefaultSalutation = "there"

var (
	placeholderRe = regexp.MustCompile(`(?i)\{\{\s*(name|first_?name|recipient_?name|email)\s*\}\}`)
	nameSplitRe   = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// DisplayName derives a human name from the local part of an address:
// "first.last+promo@x.com" → "First Last".
func DisplayName(address string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(address), "@")
	local, _, _ = strings.Cut(local, "+")

	var parts []string
	for _, frag := range nameSplitRe.Split(local, -1) {
		if frag == "" {
			continue
		}
		// Casers carry state, so one per fragment keeps this safe for concurrent callers.
		parts = append(parts, cases.Title(language.Und).String(frag))
	}
	if len(parts) == 0 {
		return DefaultSalutation
	}
	return strings.Join(parts, " ")
}

// SubstitutePlaceholders replaces the recipient tokens in s. Name tokens get
// the display name, {{email}} gets the address itself.
func SubstitutePlaceholders(s, recipient string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	name := DisplayName(recipient)
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		if strings.EqualFold(sub[1], "email") {
			return recipient
		}
		return name
	})
}
