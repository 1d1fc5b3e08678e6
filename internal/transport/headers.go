package transport

import (
	"net/url"
	"strings"
)

const (
	HeaderDispatchID          = "X-Dispatch-ID"
	HeaderListUnsubscribe     = "List-Unsubscribe"
	HeaderListUnsubscribePost = "List-Unsubscribe-Post"
)

// ListUnsubscribeHeaders builds RFC 2369/8058 headers for target, a mailto:
// or https URL. "{{email}}" in target is replaced by the escaped recipient.
// One-click POST is only advertised for https targets.
func ListUnsubscribeHeaders(target, recipient string) map[string]string {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil
	}
	target = strings.ReplaceAll(target, "{{email}}", url.QueryEscape(recipient))
	h := map[string]string{HeaderListUnsubscribe: "<" + target + ">"}
	if strings.HasPrefix(strings.ToLower(target), "https://") {
		h[HeaderListUnsubscribePost] = "List-Unsubscribe=One-Click"
	}
	return h
}

func copyHeaders(h map[string]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// withMessageID returns the custom headers plus Message-Id for providers
// that accept it as a plain header.
func withMessageID(msg *Message) map[string]string {
	out := copyHeaders(msg.Headers)
	if msg.ID == "" {
		return out
	}
	if out == nil {
		out = make(map[string]string, 1)
	}
	out["Message-Id"] = msg.ID
	return out
}
