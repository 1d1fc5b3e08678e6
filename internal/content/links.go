package content

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
)

const linkStyle = "color:#2563eb;text-decoration:underline;"

var (
	markdownLinkRe = regexp.MustCompile(`\[((?i:!btn!))?([^\[\]]+)\]\(\s*([^()\s]+)\s*\)`)
	// Only real tags are protected; a stray "<" or ">" in text is not.
	protectedRe    = regexp.MustCompile(`(?is)<a\b[^>]*>.*?</a\s*>|<[A-Za-z/!][^<>]*>`)
	bareURLRe      = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"']+`)
	hrefRe         = regexp.MustCompile(`(?i)\bhref\s*=\s*("[^"]*"|'[^']*')`)
)

// normalizeHref parses raw as a URL. On failure the raw string is returned
// unchanged with ok=false so callers can still emit a literal link.
func normalizeHref(raw string) (href string, ok bool) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw, false
	}
	return u.String(), true
}

func anchor(href, label string) string {
	return `<a href="` + html.EscapeString(href) + `" target="_blank" style="` + linkStyle + `">` + label + `</a>`
}

// buttonBlock renders a centered, table-based call-to-action button on a
// single line so paragraph wrapping treats it as block markup.
func buttonBlock(href, label string) string {
	return `<table role="presentation" border="0" cellpadding="0" cellspacing="0" align="center" style="margin:24px auto;">` +
		`<tr><td align="center" style="border-radius:6px;background-color:#2563eb;">` +
		`<a href="` + html.EscapeString(href) + `" target="_blank" style="display:inline-block;padding:12px 28px;font-size:16px;font-weight:600;color:#ffffff;text-decoration:none;border-radius:6px;">` +
		label + `</a></td></tr></table>`
}

// ConvertMarkdownLinks turns [text](url) into an anchor and [!btn!text](url)
// into a button block placed on its own line.
func ConvertMarkdownLinks(s string) (string, []string) {
	var warnings []string
	out := markdownLinkRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := markdownLinkRe.FindStringSubmatch(m)
		label := strings.TrimSpace(sub[2])
		href, ok := normalizeHref(sub[3])
		if !ok {
			warnings = append(warnings, malformedURLWarning(sub[3]))
		}
		if sub[1] != "" {
			return "\n" + buttonBlock(href, label) + "\n"
		}
		return anchor(href, label)
	})
	return out, warnings
}

// LinkifyURLs wraps bare http(s) URLs in anchors. Text inside existing tags
// and anchors is left alone.
func LinkifyURLs(s string) string {
	var b strings.Builder
	last := 0
	for _, loc := range protectedRe.FindAllStringIndex(s, -1) {
		b.WriteString(linkifyText(s[last:loc[0]]))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(linkifyText(s[last:]))
	return b.String()
}

func linkifyText(text string) string {
	if !strings.Contains(strings.ToLower(text), "http") {
		return text
	}
	return bareURLRe.ReplaceAllStringFunc(text, func(m string) string {
		raw, trail := splitTrailingPunctuation(m)
		href, _ := normalizeHref(raw)
		return anchor(href, html.EscapeString(raw)) + trail
	})
}

// splitTrailingPunctuation keeps sentence punctuation out of a matched URL:
// "see https://x.com/a." links "https://x.com/a" and leaves ".".
func splitTrailingPunctuation(m string) (string, string) {
	end := len(m)
	for end > 0 {
		c := m[end-1]
		if strings.IndexByte(".,;:!?", c) >= 0 {
			end--
			continue
		}
		if c == ')' && strings.Count(m[:end], "(") < strings.Count(m[:end], ")") {
			end--
			continue
		}
		break
	}
	return m[:end], m[end:]
}

// InstrumentLinks appends "#<recipient>" to every href that points at an
// absolute http(s) URL and has no fragment yet. Links that already carry a
// fragment are untouched, so applying it twice changes nothing.
func InstrumentLinks(doc, recipient string) string {
	if recipient == "" || !strings.Contains(strings.ToLower(doc), "href") {
		return doc
	}
	return hrefRe.ReplaceAllStringFunc(doc, func(m string) string {
		loc := hrefRe.FindStringSubmatchIndex(m)
		quoted := m[loc[2]:loc[3]]
		quote := quoted[:1]
		value := quoted[1 : len(quoted)-1]
		if !instrumentable(value) {
			return m
		}
		return m[:loc[2]] + quote + strings.TrimSpace(value) + "#" + html.EscapeString(recipient) + quote
	})
}

func instrumentable(attr string) bool {
	raw := strings.TrimSpace(html.UnescapeString(attr))
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	if strings.Contains(raw, "#") {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Host != ""
}

func malformedURLWarning(raw string) string {
	return fmt.Sprintf("malformed link URL %q was kept as a literal link", raw)
}
