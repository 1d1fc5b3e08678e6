package transport

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/go-mail/mail"
)

// buildMIME assembles a multipart/alternative message. Text is the first
// part so clients that pick the last part they understand show the HTML.
func buildMIME(msg *Message, now time.Time) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", msg.FromHeader())
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	if msg.ID != "" {
		m.SetHeader("Message-ID", msg.ID)
	}
	m.SetDateHeader("Date", now)

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.SetHeader(k, msg.Headers[k])
	}

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}
	return m
}

// encodeMIME renders msg to wire bytes, DKIM-signed when signer is set.
func encodeMIME(msg *Message, signer *DKIMSigner, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buildMIME(msg, now).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if signer == nil {
		return buf.Bytes(), nil
	}
	return signer.Sign(buf.Bytes())
}
