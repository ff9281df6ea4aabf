// Package wsserver implements the authenticated websocket session
// protocol: a signed challenge-response handshake followed by a tagged
// command dispatch over BlockStore and the VerifierMap.
package wsserver

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hashtree/verifier/pkg/blockhash"
	"github.com/hashtree/verifier/pkg/ltime"
	"github.com/hashtree/verifier/pkg/signed"
)

// ChallengeSize is the length, in bytes, of the random challenge and its
// matching response.
const ChallengeSize = 32

// tagged is the on-wire envelope used for every message exchanged after
// the raw length-prefixed frame is read: {"Cmd": name, "Data": payload}.
// This shape (rather than a bare msgpack union) is what lets a plain
// JSON client decode the same messages unambiguously.
type tagged struct {
	Cmd  string            `msgpack:"Cmd"`
	Data msgpack.RawMessage `msgpack:"Data"`
}

func encodeTagged(cmd string, payload any) ([]byte, error) {
	data, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wsserver: encode %s payload: %w", cmd, err)
	}
	return msgpack.Marshal(tagged{Cmd: cmd, Data: data})
}

func decodeMsgpack(raw []byte, v any) error {
	if err := msgpack.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("wsserver: decode payload: %w", err)
	}
	return nil
}

func decodeTagged(raw []byte) (tagged, error) {
	var t tagged
	if err := msgpack.Unmarshal(raw, &t); err != nil {
		return tagged{}, fmt.Errorf("wsserver: decode envelope: %w", err)
	}
	return t, nil
}

// ServerAuthChallenge is sent by the server immediately on connection
// open: a timestamp and a random nonce the client must sign over (via a
// Signed envelope) to prove control of its claimed key.
type ServerAuthChallenge struct {
	Timestamp ltime.Seconds           `msgpack:"Timestamp"`
	Challenge [ChallengeSize]byte `msgpack:"Challenge"`
}

// ClientAuthResponse is the client's reply, wrapped in a signed.Envelope
// whose signer is the identity the session authenticates as.
type ClientAuthResponse struct {
	Timestamp ltime.Seconds           `msgpack:"Timestamp"`
	Response  [ChallengeSize]byte `msgpack:"Response"`
}

// UploadRaw asks the server to store Data in the BlockStore.
type UploadRaw struct {
	Data []byte `msgpack:"Data"`
}

// MapRequest asks the VerifierMap to act on one named stream.
type MapRequest struct {
	Stream  string          `msgpack:"Stream"`
	Request VerifierRequest `msgpack:"Request"`
}

// VerifierRequest is tagged Latest | Update(Signed).
type VerifierRequest struct {
	Latest bool             `msgpack:"Latest"`
	Update *signed.Envelope `msgpack:"Update,omitempty"`
}

// UploadResponse reports the outcome of an UploadRaw command.
type UploadResponse struct {
	Ok  *blockhash.Hash `msgpack:"Ok,omitempty"`
	Err *string         `msgpack:"Err,omitempty"`
}

// MapResponse reports the outcome of a Map command: either the stream's
// latest tip (for a Latest request) or a verifier result (for an Update
// request).
type MapResponse struct {
	Latest         *blockhash.Hash `msgpack:"Latest,omitempty"`
	VerifierResult *VerifierResult `msgpack:"VerifierResult,omitempty"`
}

// VerifierResult carries a Verify outcome across the wire: the new tip
// hash, or the error's message text (for a verifier rejection, the
// message of the matching verify.Err* sentinel, possibly with detail
// appended).
type VerifierResult struct {
	Ok  *blockhash.Hash `msgpack:"Ok,omitempty"`
	Err *string         `msgpack:"Err,omitempty"`
}

// UpdateNotification is published on a stream's pubsub topic (named after
// the stream) every time a Map command advances that stream's tip, so
// observers can subscribe for asynchronous notifications instead of
// polling Latest.
type UpdateNotification struct {
	Stream string         `msgpack:"Stream"`
	Hash   blockhash.Hash `msgpack:"Hash"`
}
