// Package blockhash defines the content-address used to identify every
// block in the store: the SHA-256 digest of its bytes.
package blockhash

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Size is the digest length in bytes.
const Size = sha256.Size

// Hash is a fixed-size content digest. Being a plain array (not a slice)
// it is comparable and usable directly as a map key, with no shared
// mutable backing storage to guard.
type Hash [Size]byte

// Of computes the content hash of data.
func Of(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// String renders the hash using the on-disk/wire base64url-no-pad form.
func (h Hash) String() string {
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// Parse decodes the base64url-no-pad form produced by String.
func Parse(s string) (Hash, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("blockhash: decode %q: %w", s, err)
	}
	if len(b) != Size {
		return Hash{}, fmt.Errorf("blockhash: %q decodes to %d bytes, want %d", s, len(b), Size)
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// MarshalYAML renders the hash the same way it appears on disk.
func (h Hash) MarshalYAML() (interface{}, error) {
	return h.String(), nil
}

// UnmarshalYAML parses the base64url-no-pad form.
func (h *Hash) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// MarshalMsgpack renders the hash as raw bytes on the wire, per the
// disk/wire equivalence required for BlockHash.
func (h Hash) MarshalMsgpack() ([]byte, error) {
	// The encoder writes these bytes as-is, so they must form a complete
	// msgpack value: a bin8 header (0xc4, length) followed by the digest.
	return append([]byte{0xc4, Size}, h[:]...), nil
}

// UnmarshalMsgpack accepts either raw bytes or the base64url-no-pad string
// form, since both are defined to round-trip. b is one complete msgpack
// value: bin8 (0xc4) or str8 (0xd9) with a one-byte length, or a fixstr.
func (h *Hash) UnmarshalMsgpack(b []byte) error {
	var payload []byte
	switch {
	case len(b) >= 2 && (b[0] == 0xc4 || b[0] == 0xd9) && len(b) == 2+int(b[1]):
		payload = b[2:]
	case len(b) >= 1 && b[0]&0xe0 == 0xa0 && len(b) == 1+int(b[0]&0x1f):
		payload = b[1:]
	default:
		return fmt.Errorf("blockhash: unmarshal: unsupported msgpack value")
	}
	if len(payload) == Size {
		copy(h[:], payload)
		return nil
	}
	parsed, err := Parse(string(payload))
	if err != nil {
		return fmt.Errorf("blockhash: unmarshal: %w", err)
	}
	*h = parsed
	return nil
}
