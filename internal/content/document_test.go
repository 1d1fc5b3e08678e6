package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFullDocument(t *testing.T) {
	assert.True(t, IsFullDocument("<!DOCTYPE html><html></html>"))
	assert.True(t, IsFullDocument("  \n<HTML lang=\"en\">"))
	assert.False(t, IsFullDocument("<p>Hello</p>"))
	assert.False(t, IsFullDocument("Hello <html>"))
}

func TestAssembleDocument(t *testing.T) {
	doc, warnings := AssembleDocument(ShellData{
		Title:      "Deals & more",
		Body:       "<p>body</p>",
		Year:       2031,
		SenderName: "Acme",
	})

	assert.Empty(t, warnings)
	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
	assert.Contains(t, doc, "<title>Deals &amp; more</title>")
	assert.Contains(t, doc, "<p>body</p>")
	assert.Contains(t, doc, "max-width:600px")
	assert.Contains(t, doc, "&copy; 2031 Acme. All rights reserved.")
	assert.NotContains(t, doc, "<br>")
}

func TestAssembleDocumentPhysicalAddress(t *testing.T) {
	doc, _ := AssembleDocument(ShellData{
		Title:           "T",
		Body:            "<p>b</p>",
		Year:            2031,
		SenderName:      "Acme",
		PhysicalAddress: "1 Main St <Suite 2>",
	})

	assert.Contains(t, doc, "<br>1 Main St &lt;Suite 2&gt;")
}

func TestInjectPreviewText(t *testing.T) {
	t.Run("after body tag", func(t *testing.T) {
		out := InjectPreviewText(`<html><body class="x"><p>Hi</p></body></html>`, "Peek")
		assert.True(t, strings.HasPrefix(out, `<html><body class="x"><div style="display:none;`))
		assert.Contains(t, out, ">Peek</div><p>Hi</p>")
	})

	t.Run("no body tag", func(t *testing.T) {
		out := InjectPreviewText("<p>Hi</p>", "Peek")
		assert.True(t, strings.HasPrefix(out, "<div"))
		assert.True(t, strings.HasSuffix(out, "<p>Hi</p>"))
	})

	t.Run("empty preview", func(t *testing.T) {
		assert.Equal(t, "<body>x</body>", InjectPreviewText("<body>x</body>", "  "))
	})
}
