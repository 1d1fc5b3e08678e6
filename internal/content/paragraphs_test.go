package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapParagraphs(t *testing.T) {
	p := func(s string) string { return `<p style="` + paragraphStyle + `">` + s + `</p>` }

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single line", "Hello", p("Hello")},
		{"blank lines dropped", "Hello\n\n\n  World  ", p("Hello") + "\n" + p("World")},
		{"block markup kept", "Hi\n<table><tr><td>x</td></tr></table>\nBye", p("Hi") + "\n<table><tr><td>x</td></tr></table>\n" + p("Bye")},
		{"existing paragraph kept", "<p>done</p>", "<p>done</p>"},
		{"inline markup wrapped", "<strong>bold</strong> text", p("<strong>bold</strong> text")},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WrapParagraphs(tt.in))
		})
	}
}
