// Package validation checks the shape of identifiers that cross the HTTP
// boundary before they reach session/peer lookups, so a malformed query
// parameter fails fast with a clear message instead of silently missing
// every lookup.
package validation

import (
	"fmt"
	"regexp"
)

var (
	sessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,256}$`)
	peerIDRegex    = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,256}$`)
	toolNameRegex  = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)
)

// ValidateSessionID checks a relay session identifier: a caller-supplied
// opaque token, not a UUID by contract, so the check is a generous charset
// and length bound rather than a format match.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("sessionId is required")
	}
	if !sessionIDRegex.MatchString(id) {
		return fmt.Errorf("invalid sessionId: %s", id)
	}
	return nil
}

// ValidatePeerID checks a peer identifier against the same charset and
// length bound as session ids. Relay-issued ids have the form
// "peer:<uuid>", but that exact format is not enforced here.
func ValidatePeerID(id string) error {
	if id == "" {
		return fmt.Errorf("peerId cannot be empty")
	}
	if !peerIDRegex.MatchString(id) {
		return fmt.Errorf("invalid peerId: %s", id)
	}
	return nil
}

// ValidateToolName checks a tool descriptor or tools/call name.
func ValidateToolName(name string) error {
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if !toolNameRegex.MatchString(name) {
		return fmt.Errorf("invalid tool name: %s", name)
	}
	return nil
}

// ValidateRole checks the ?role= query parameter on the events endpoint.
func ValidateRole(role string) error {
	if role != "provider" && role != "caller" {
		return fmt.Errorf("role must be provider or caller, got %q", role)
	}
	return nil
}
