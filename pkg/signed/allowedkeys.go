package signed

import (
	"crypto/ed25519"
	"encoding/base64"
)

// AllowedKeys is an immutable set of public keys fixed at construction
// time, matching the data model's requirement that a Verifier's allowed
// set is set once at creation and never mutated afterward.
type AllowedKeys struct {
	keys map[string]struct{}
}

// NewAllowedKeys builds an AllowedKeys set from zero or more public keys.
func NewAllowedKeys(pubkeys ...ed25519.PublicKey) AllowedKeys {
	keys := make(map[string]struct{}, len(pubkeys))
	for _, pk := range pubkeys {
		keys[encodeKey(pk)] = struct{}{}
	}
	return AllowedKeys{keys: keys}
}

// Contains reports whether pk is a member of the set.
func (a AllowedKeys) Contains(pk ed25519.PublicKey) bool {
	_, ok := a.keys[encodeKey(pk)]
	return ok
}

// Slice returns the member keys in no particular order, for persistence.
func (a AllowedKeys) Slice() []ed25519.PublicKey {
	out := make([]ed25519.PublicKey, 0, len(a.keys))
	for k := range a.keys {
		raw, err := base64.RawURLEncoding.DecodeString(k)
		if err != nil {
			continue
		}
		out = append(out, ed25519.PublicKey(raw))
	}
	return out
}

func encodeKey(pk ed25519.PublicKey) string {
	return base64.RawURLEncoding.EncodeToString(pk)
}
