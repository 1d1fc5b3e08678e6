package content

import (
	"fmt"
	"html"
	"strings"

	"github.com/osteele/liquid"
)

// IsFullDocument reports whether s already is an HTML document (doctype or
// <html> root), in which case only link instrumentation is applied.
func IsFullDocument(s string) bool {
	t := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(t, "<!doctype") || strings.HasPrefix(t, "<html")
}

const shellSource = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<meta http-equiv="X-UA-Compatible" content="IE=edge">
<title>{{ title | escape }}</title>
</head>
<body style="margin:0;padding:0;background-color:#f4f4f5;">
<table role="presentation" width="100%" border="0" cellpadding="0" cellspacing="0" style="background-color:#f4f4f5;">
<tr><td align="center" style="padding:24px 12px;">
<table role="presentation" width="100%" border="0" cellpadding="0" cellspacing="0" style="max-width:600px;background-color:#ffffff;border-radius:8px;">
<tr><td style="padding:32px 28px;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;font-size:16px;line-height:1.6;color:#18181b;">
{{ body }}
</td></tr>
</table>
<table role="presentation" width="100%" border="0" cellpadding="0" cellspacing="0" style="max-width:600px;">
<tr><td align="center" style="padding:16px 12px;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;font-size:12px;line-height:1.5;color:#71717a;">
&copy; {{ year }} {{ sender_name | escape }}. All rights reserved.{% if physical_address %}<br>{{ physical_address | escape }}{% endif %}
</td></tr>
</table>
</td></tr>
</table>
</body>
</html>
`

var shellTemplate = mustParseShell()

func mustParseShell() *liquid.Template {
	tpl, err := liquid.NewEngine().ParseString(shellSource)
	if err != nil {
		panic(fmt.Sprintf("content: document shell does not parse: %v", err))
	}
	return tpl
}

// ShellData is the input of the document shell.
type ShellData struct {
	Title           string
	Body            string
	Year            int
	SenderName      string
	PhysicalAddress string
}

// AssembleDocument wraps rendered body markup in the responsive e-mail shell.
// A shell rendering failure degrades to a minimal document and a warning.
func AssembleDocument(d ShellData) (string, []string) {
	bindings := liquid.Bindings{
		"title":       d.Title,
		"body":        d.Body,
		"year":        d.Year,
		"sender_name": d.SenderName,
	}
	// Liquid treats "" as truthy, so an absent address must be nil.
	if strings.TrimSpace(d.PhysicalAddress) != "" {
		bindings["physical_address"] = d.PhysicalAddress
	}

	out, err := shellTemplate.RenderString(bindings)
	if err != nil {
		return minimalDocument(d), []string{fmt.Sprintf("document shell failed to render, used minimal layout: %v", err)}
	}
	return out, nil
}

func minimalDocument(d ShellData) string {
	return "<!DOCTYPE html>\n<html>\n<head><meta charset=\"UTF-8\"><title>" + html.EscapeString(d.Title) +
		"</title></head>\n<body>\n" + d.Body + "\n<p>&copy; " + fmt.Sprint(d.Year) + " " +
		html.EscapeString(d.SenderName) + "</p>\n</body>\n</html>\n"
}

// InjectPreviewText places a visually hidden preheader right after the
// opening <body> tag, or at the very start when there is none.
func InjectPreviewText(doc, previewText string) string {
	previewText = strings.TrimSpace(previewText)
	if previewText == "" || doc == "" {
		return doc
	}

	preheader := `<div style="display:none;font-size:1px;color:#ffffff;line-height:1px;max-height:0px;max-width:0px;opacity:0;overflow:hidden;">` +
		html.EscapeString(previewText) + `</div>`

	bodyIdx := strings.Index(strings.ToLower(doc), "<body")
	if bodyIdx >= 0 {
		if closeIdx := strings.Index(doc[bodyIdx:], ">"); closeIdx >= 0 {
			insertAt := bodyIdx + closeIdx + 1
			return doc[:insertAt] + preheader + doc[insertAt:]
		}
	}
	return preheader + doc
}
