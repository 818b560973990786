package model

import "strings"

// Identity is the stable user reference issued by the authentication collaborator.
// It never changes for the lifetime of a connection.
type Identity string

// ParseIdentity trims surrounding whitespace. An empty result means "no identity".
func ParseIdentity(raw string) Identity {
	return Identity(strings.TrimSpace(raw))
}

func (i Identity) String() string { return string(i) }

func (i Identity) IsZero() bool { return i == "" }

// Identities converts a list of identities to plain strings for the wire.
func Identities(ids []Identity) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}
