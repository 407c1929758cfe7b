package provider

import (
	"fmt"
	"strings"
)

// OperationalMode defines how a sync treats record sets it finds on a
// provider but not in the desired state.
type OperationalMode string

const (
	// ModeManaged is the default mode. Only name+type groups declared in
	// the desired state are touched:
	// - Puts every declared record set
	// - Deletes qualifiers of a declared name+type that are no longer declared
	// - NEVER touches a name+type the desired state does not mention
	ModeManaged OperationalMode = "managed"

	// ModeAuthoritative gives full control over the configured scope.
	// - Puts every declared record set
	// - Deletes ANY in-scope record set that is not declared
	// - Scope is limited by include/exclude patterns; apex SOA and NS are never deleted
	ModeAuthoritative OperationalMode = "authoritative"

	// ModeAdditive is write-only mode. Never deletes any records.
	ModeAdditive OperationalMode = "additive"
)

// ValidModes lists all valid operational modes.
var ValidModes = []OperationalMode{ModeManaged, ModeAuthoritative, ModeAdditive}

// ParseOperationalMode parses a string into an OperationalMode.
// Returns ModeManaged if the input is empty (default).
func ParseOperationalMode(s string) (OperationalMode, error) {
	if s == "" {
		return ModeManaged, nil
	}

	mode := OperationalMode(strings.ToLower(strings.TrimSpace(s)))
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid operational mode %q: must be one of managed, authoritative, additive", s)
	}
	return mode, nil
}

// IsValid returns true if the mode is a valid operational mode.
func (m OperationalMode) IsValid() bool {
	switch m {
	case ModeManaged, ModeAuthoritative, ModeAdditive:
		return true
	default:
		return false
	}
}

func (m OperationalMode) String() string {
	return string(m)
}

// AllowsDelete returns true if the mode may delete record sets.
func (m OperationalMode) AllowsDelete() bool {
	return m != ModeAdditive
}

// RequiresDeclaredGroup returns true if deletes are limited to name+type
// groups that the desired state declares.
func (m OperationalMode) RequiresDeclaredGroup() bool {
	return m == ModeManaged || m == ""
}
