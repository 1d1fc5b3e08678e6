package api

import (
	"strings"

	"github.com/ignite/campaign-dispatch/internal/dispatch"
)

// NormalizeRecipients trims and lower-cases every address and drops
// repeats, keeping the first occurrence. Blank entries are skipped;
// malformed ones are returned in invalid.
func NormalizeRecipients(emails []string) (valid, invalid []string) {
	seen := make(map[string]struct{}, len(emails))
	for _, raw := range emails {
		addr := strings.ToLower(strings.TrimSpace(raw))
		if addr == "" {
			continue
		}
		if !dispatch.ValidAddress(addr) {
			invalid = append(invalid, strings.TrimSpace(raw))
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		valid = append(valid, addr)
	}
	return valid, invalid
}
