// Package signed implements the detached-signature envelope used to
// authenticate every server- and client-authored value in this system:
// canonical msgpack encoding of the payload, signed with Ed25519.
package signed

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Verify-time failures, matching the error taxonomy this system shares
// across the signature layer, the verifier, and the websocket handshake.
var (
	ErrDisallowedKey = errors.New("signed: key not in allowed set")
	ErrBadSignature  = errors.New("signed: signature does not verify")
	ErrDecodeFailed  = errors.New("signed: payload does not decode")
)

// Envelope is a signed, typed payload: the raw msgpack-encoded value, the
// signer's public key, and a detached Ed25519 signature over Data.
type Envelope struct {
	User      ed25519.PublicKey `msgpack:"User"`
	Data      []byte            `msgpack:"Data"`
	Signature []byte            `msgpack:"Signature"`
}

// Sign encodes value canonically and produces a signed Envelope.
func Sign[T any](kp KeyPair, value T) (Envelope, error) {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return Envelope{}, fmt.Errorf("signed: encode payload: %w", err)
	}
	sig := ed25519.Sign(kp.Secret, data)
	return Envelope{User: kp.Public, Data: data, Signature: sig}, nil
}

// Verify checks that e was signed by a key in allowed and, if so, decodes
// Data into a T. The three failure modes are distinguished so callers can
// map them onto the wider VerifierError taxonomy.
func Verify[T any](e Envelope, allowed AllowedKeys) (T, error) {
	var zero T
	if !allowed.Contains(e.User) {
		return zero, ErrDisallowedKey
	}
	if !ed25519.Verify(e.User, e.Data, e.Signature) {
		return zero, ErrBadSignature
	}
	var value T
	if err := msgpack.Unmarshal(e.Data, &value); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return value, nil
}
