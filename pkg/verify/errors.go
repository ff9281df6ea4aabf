// Package verify implements the per-stream Verifier: the signature,
// freshness, and compare-and-swap gate every client-authored Update must
// pass before its command is applied and the stream's tip advances.
package verify

import "errors"

// Sentinel errors covering every way Verify can fail. A failed Verify
// call always leaves the stream's latest tip unchanged.
var (
	ErrDisallowedKey = errors.New("verify: update signed by a key outside the allowed set")
	ErrBadSignature  = errors.New("verify: update signature does not verify")
	ErrDecodeFailed  = errors.New("verify: update payload does not decode")
	ErrStale         = errors.New("verify: update timestamp is outside the freshness window")
	ErrNotLatest     = errors.New("verify: update.Last does not match the stream's current tip")
	ErrLastErr       = errors.New("verify: could not load or verify the previous tip")
	ErrUpdateErr     = errors.New("verify: command rejected the current value")
	ErrStoreErr      = errors.New("verify: could not persist the next block")
)
