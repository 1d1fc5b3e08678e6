package transport

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() *Message {
	return &Message{
		ID:           "<id-1@acme.com>",
		To:           "bob@x.com",
		FromName:     "Acme",
		FromAddress:  "news@acme.com",
		EnvelopeFrom: "news@acme.com",
		ReplyTo:      "owner@acme.com",
		Subject:      "Hi",
		Text:         "Hello Bob",
		HTML:         "<p>Hello Bob</p>",
		Headers:      map[string]string{HeaderDispatchID: "d-1"},
	}
}

func TestEncodeMIME(t *testing.T) {
	raw, err := encodeMIME(testMessage(), nil, time.Date(2031, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	s := string(raw)

	assert.Contains(t, s, `From: "Acme" <news@acme.com>`)
	assert.Contains(t, s, "To: bob@x.com")
	assert.Contains(t, s, "Subject: Hi")
	assert.Contains(t, s, "Reply-To: owner@acme.com")
	assert.Contains(t, s, "Message-ID: <id-1@acme.com>")
	assert.Contains(t, s, "X-Dispatch-ID: d-1")
	assert.Contains(t, s, "multipart/alternative")
	assert.Contains(t, s, "Hello Bob")
	assert.Less(t, strings.Index(s, "text/plain"), strings.Index(s, "text/html"))
}

func TestEncodeMIMEHTMLOnly(t *testing.T) {
	msg := testMessage()
	msg.Text = ""
	raw, err := encodeMIME(msg, nil, time.Now())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "multipart/alternative")
	assert.Contains(t, string(raw), "text/html")
}

func testKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
}

func TestDKIMSigner(t *testing.T) {
	signer, err := NewDKIMSigner("acme.com", "mail", testKeyPEM(t))
	require.NoError(t, err)
	assert.Equal(t, "acme.com", signer.Domain())

	raw, err := encodeMIME(testMessage(), signer, time.Now())
	require.NoError(t, err)
	s := string(raw)

	assert.True(t, strings.HasPrefix(s, "DKIM-Signature:"), s[:40])
	assert.Contains(t, s, "d=acme.com")
	assert.Contains(t, s, "s=mail")
	assert.Contains(t, s, "Subject: Hi")
}

func TestDKIMSignerEscapedNewlines(t *testing.T) {
	pemKey := strings.ReplaceAll(testKeyPEM(t), "\n", `\n`)
	_, err := NewDKIMSigner("acme.com", "mail", pemKey)
	assert.NoError(t, err)
}

func TestDKIMSignerRejectsBadKey(t *testing.T) {
	_, err := NewDKIMSigner("acme.com", "mail", "not a key")
	assert.Error(t, err)

	_, err = NewDKIMSigner("", "mail", testKeyPEM(t))
	assert.Error(t, err)
}
