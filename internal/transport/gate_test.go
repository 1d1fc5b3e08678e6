package transport

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromHeader(t *testing.T) {
	m := &Message{FromAddress: "news@acme.com"}
	assert.Equal(t, "news@acme.com", m.FromHeader())

	m.FromName = "Acme Inc"
	assert.Equal(t, `"Acme Inc" <news@acme.com>`, m.FromHeader())

	m.FromName = "Zoë"
	h := m.FromHeader()
	assert.True(t, strings.HasPrefix(h, "=?UTF-8?"), h)
	assert.True(t, strings.HasSuffix(h, " <news@acme.com>"), h)
}

func TestNewMessageID(t *testing.T) {
	re := regexp.MustCompile(`^<[0-9a-f-]{36}@acme\.com>$`)
	a := NewMessageID("acme.com")
	b := NewMessageID("acme.com")

	assert.Regexp(t, re, a)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(NewMessageID(""), "@localhost>"))
}

func TestReplyCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   int
	}{
		{200, 0},
		{400, 550},
		{401, 550},
		{408, 421},
		{422, 550},
		{429, 421},
		{500, 451},
		{502, 451},
		{503, 451},
		{504, 451},
		{501, 550},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, replyCodeForStatus(tt.status), "status %d", tt.status)
	}
}

func TestSendErrorMessage(t *testing.T) {
	err := httpSendError("sparkpost", 429, `{"errors":[{"message":"too many"}]}`)
	assert.Equal(t, 421, err.ResponseCode())
	assert.Equal(t, 429, err.HTTPStatus)
	assert.Contains(t, err.Error(), "sparkpost: 421 (http 429)")

	plain := &SendError{Provider: "smtp", Err: errors.New("broken pipe")}
	assert.Equal(t, "smtp: broken pipe", plain.Error())
	assert.Equal(t, 0, plain.ResponseCode())
}

func TestConnectErrorMessage(t *testing.T) {
	err := &ConnectError{Provider: "smtp", Host: "mail.acme.com", Port: 587, Identity: "user@acme.com", Err: errors.New("535 auth failed")}
	assert.Equal(t, "smtp: cannot connect to mail.acme.com:587 as user@acme.com: 535 auth failed", err.Error())
}

func TestListUnsubscribeHeaders(t *testing.T) {
	assert.Nil(t, ListUnsubscribeHeaders("", "a@x.com"))

	h := ListUnsubscribeHeaders("https://acme.com/unsub?e={{email}}", "a+b@x.com")
	assert.Equal(t, "<https://acme.com/unsub?e=a%2Bb%40x.com>", h[HeaderListUnsubscribe])
	assert.Equal(t, "List-Unsubscribe=One-Click", h[HeaderListUnsubscribePost])

	h = ListUnsubscribeHeaders("mailto:unsub@acme.com", "a@x.com")
	assert.Equal(t, "<mailto:unsub@acme.com>", h[HeaderListUnsubscribe])
	assert.NotContains(t, h, HeaderListUnsubscribePost)
}
