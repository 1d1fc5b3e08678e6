package content

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time { return time.Date(2031, 5, 1, 12, 0, 0, 0, time.UTC) }

func TestRenderPersonalizesPerRecipient(t *testing.T) {
	tr := New(WithClock(fixedClock))
	in := Input{
		Template: "Hello {{name}}",
		Subject:  "Hi",
		Sender:   Sender{Name: "S", Email: "s@x.com"},
	}

	in.Recipient = "a@x.com"
	a := tr.Render(in)
	in.Recipient = "b@x.com"
	b := tr.Render(in)

	assert.Equal(t, "Hello A", a.Text)
	assert.Equal(t, "Hello B", b.Text)
	assert.Contains(t, a.HTML, `<p style="`+paragraphStyle+`">Hello A</p>`)
	assert.Contains(t, b.HTML, `<p style="`+paragraphStyle+`">Hello B</p>`)
	assert.Contains(t, a.HTML, "<title>Hi</title>")
	assert.Contains(t, a.HTML, "&copy; 2031 S.")
	assert.Equal(t, "a@x.com", a.TrackingToken)
	assert.Equal(t, "Hi", a.Subject)
	assert.Empty(t, a.Warnings)
}

func TestRenderDeterministic(t *testing.T) {
	tr := New(WithClock(fixedClock), WithPhysicalAddress("1 Main St"))
	in := Input{
		Template:    "Hi {{first_name}}\nhttps://x.com/a\nlearn more",
		Recipient:   "jane.doe@x.com",
		Subject:     "News for {{name}}",
		Sender:      Sender{Name: "Acme", Email: "news@acme.com"},
		PreviewText: "This week",
	}

	first := tr.Render(in)
	second := tr.Render(in)

	assert.Equal(t, first, second)
	assert.Equal(t, "News for Jane Doe", first.Subject)
	assert.Contains(t, first.HTML, "1 Main St")
	assert.Contains(t, first.HTML, ">This week</div>")
}

func TestRenderFullPipeline(t *testing.T) {
	tr := New(WithClock(fixedClock))
	out := tr.Render(Input{
		Template:  "Hi {{first_name}},\r\n\r\nOur sale: https://shop.x.com/sale\r\nLearn more\r\n[!btn!Buy](https://shop.x.com/buy)",
		Recipient: "jane.doe@x.com",
		Subject:   "Sale",
		Sender:    Sender{Name: "Shop", Email: "shop@x.com"},
	})

	assert.Empty(t, out.Warnings)
	assert.Contains(t, out.HTML, `href="https://shop.x.com/sale#jane.doe@x.com"`)
	assert.Contains(t, out.HTML, `href="https://shop.x.com/buy#jane.doe@x.com"`)
	// the inline link and the "Learn more" button both point at the sale page
	assert.Equal(t, 3, strings.Count(out.HTML, "#jane.doe@x.com"))
	assert.NotContains(t, out.HTML, "\r")
	assert.True(t, strings.HasPrefix(out.Text, "Hi Jane Doe,\n\nOur sale: "))
}

func TestRenderFullDocumentOnlyInstruments(t *testing.T) {
	tpl := "<!DOCTYPE html><html><body><p>Hi {{name}}</p><a href=\"https://x.com\">Go</a>\n[x](https://y.com)</body></html>"
	out := New(WithClock(fixedClock)).Render(Input{
		Template:  tpl,
		Recipient: "bob@x.com",
		Subject:   "S",
		Sender:    Sender{Name: "S", Email: "s@x.com"},
	})

	assert.Contains(t, out.HTML, `<p>Hi Bob</p>`)
	assert.Contains(t, out.HTML, `href="https://x.com#bob@x.com"`)
	assert.Contains(t, out.HTML, "[x](https://y.com)")
	assert.NotContains(t, out.HTML, paragraphStyle)
	assert.NotContains(t, out.HTML, "All rights reserved")
}

func TestRenderMalformedURLDegrades(t *testing.T) {
	out := New(WithClock(fixedClock)).Render(Input{
		Template:  "[bad](http://[bad)",
		Recipient: "bob@x.com",
		Subject:   "S",
		Sender:    Sender{Email: "s@x.com"},
	})

	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.HTML, `href="http://[bad"`)
	assert.Contains(t, out.HTML, "&copy; 2031 s@x.com.")
}

func TestRenderWithCustomSteps(t *testing.T) {
	upper := Step{Name: "upper", Apply: func(doc string, _ *Env) string { return strings.ToUpper(doc) }}
	out := New(WithClock(fixedClock), WithSteps(upper)).Render(Input{
		Template:  "Hello {{name}}",
		Recipient: "a@x.com",
		Subject:   "S",
		Sender:    Sender{Name: "S"},
	})

	assert.Equal(t, "HELLO A", out.Text)
}
