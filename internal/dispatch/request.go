package dispatch

import (
	"fmt"
	"regexp"
	"strings"
)

// Sender is what the operator typed into the form.
type Sender struct {
	Name  string
	Email string
}

// Request is one campaign. It is not modified once Dispatch starts.
type Request struct {
	Recipients  []string
	Subject     string
	Template    string
	Sender      Sender
	PreviewText string
}

// ValidationError is a malformed request. Nothing is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

var addressRe = regexp.MustCompile(`^[^\s@<>()\[\],;:"]+@[A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?(?:\.[A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?)+$`)

// ValidAddress reports whether s looks like local@domain.tld.
func ValidAddress(s string) bool {
	return len(s) <= 254 && addressRe.MatchString(s)
}

// Validate checks the request shape. Recipients are expected to be
// normalized (lower-case, unique) already.
func (r Request) Validate() error {
	if len(r.Recipients) == 0 {
		return &ValidationError{Field: "recipients", Message: "at least one recipient is required"}
	}
	if strings.TrimSpace(r.Subject) == "" {
		return &ValidationError{Field: "subject", Message: "subject is required"}
	}
	if strings.TrimSpace(r.Template) == "" {
		return &ValidationError{Field: "template", Message: "content is required"}
	}
	if strings.TrimSpace(r.Sender.Email) == "" {
		return &ValidationError{Field: "sender.email", Message: "sender email is required"}
	}
	if !ValidAddress(r.Sender.Email) {
		return &ValidationError{Field: "sender.email", Message: fmt.Sprintf("invalid sender email %q", r.Sender.Email)}
	}

	seen := make(map[string]struct{}, len(r.Recipients))
	var invalid []string
	for _, rcpt := range r.Recipients {
		if !ValidAddress(rcpt) || rcpt != strings.ToLower(rcpt) {
			invalid = append(invalid, rcpt)
			continue
		}
		if _, dup := seen[rcpt]; dup {
			return &ValidationError{Field: "recipients", Message: fmt.Sprintf("duplicate recipient %s", rcpt)}
		}
		seen[rcpt] = struct{}{}
	}
	if len(invalid) > 0 {
		return &ValidationError{Field: "recipients", Message: "invalid recipient addresses: " + strings.Join(invalid, ", ")}
	}
	return nil
}

// Partition splits recipients into consecutive batches of at most size,
// preserving order.
func Partition(recipients []string, size int) [][]string {
	if size <= 0 {
		size = len(recipients)
	}
	if len(recipients) == 0 {
		return nil
	}
	batches := make([][]string, 0, (len(recipients)+size-1)/size)
	for start := 0; start < len(recipients); start += size {
		end := start + size
		if end > len(recipients) {
			end = len(recipients)
		}
		batches = append(batches, recipients[start:end:end])
	}
	return batches
}
