package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "anchor label and url",
			in:   `<p style="x">Hello <a href="https://x.com/a#bob@x.com">Shop</a></p><p>Bye</p>`,
			want: "Hello Shop (https://x.com/a#bob@x.com)\n\nBye",
		},
		{
			name: "label equal to url",
			in:   `<a href="https://x.com#t">https://x.com</a>`,
			want: "https://x.com#t",
		},
		{
			name: "line breaks",
			in:   "one<br>two<br/>three",
			want: "one\ntwo\nthree",
		},
		{
			name: "blank runs collapse",
			in:   "<p>a</p>\n\n\n\n<p>b</p>",
			want: "a\n\nb",
		},
		{
			name: "single paragraph gap kept",
			in:   "a\n\nb",
			want: "a\n\nb",
		},
		{
			name: "three line breaks become one gap",
			in:   "a\n\n\nb",
			want: "a\n\nb",
		},
		{
			name: "entities unescaped",
			in:   "<p>Tom &amp; Jerry</p>",
			want: "Tom & Jerry",
		},
		{
			name: "plain text passes through",
			in:   "just words",
			want: "just words",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}
