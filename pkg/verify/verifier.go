package verify

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hashtree/verifier/pkg/block"
	"github.com/hashtree/verifier/pkg/blockhash"
	"github.com/hashtree/verifier/pkg/ltime"
	"github.com/hashtree/verifier/pkg/signed"
	"github.com/hashtree/verifier/pkg/update"
)

// StaleSeconds bounds how far an Update's timestamp may drift from the
// verifying server's clock, in either direction, before it is rejected.
const StaleSeconds = 5

// VerifiedData is the server-authored record at a stream's tip: the
// current value, plus (except at the root) the client Update that
// produced it. VerifiedData itself is always wrapped in a signed.Envelope
// signed by the Verifier's own key, which is what lets a stream's history
// be walked and trusted without re-deriving every value from scratch.
type VerifiedData[T any] struct {
	Value  T              `msgpack:"Value"`
	Update *signed.Envelope `msgpack:"Update"`
}

// Verifier enforces the update gate for a single stream of type T driven
// by commands of type C. All fields besides latest are fixed at
// construction. latest is guarded by mu, held only across the two
// compare-and-swap checkpoints described in Verify; the slow work between
// them (store round-trips, signing) runs unlocked so that two concurrent
// Verify calls against the same stream genuinely race, with the first to
// reach the second checkpoint winning.
type Verifier[T any, C update.Command[T]] struct {
	keypair signed.KeyPair
	allowed signed.AllowedKeys
	store   *block.Store
	logger  *log.Logger
	metrics *verifierMetrics

	mu     sync.Mutex
	latest *blockhash.Hash
}

// New constructs a Verifier for an existing stream whose current tip is
// latest (nil if the stream has never been rooted — Verify will always
// fail NotLatest until Force is called). metrics may be nil, in which
// case no counters are recorded.
func New[T any, C update.Command[T]](streamName string, keypair signed.KeyPair, allowed signed.AllowedKeys, store *block.Store, latest *blockhash.Hash, logger *log.Logger, metrics *Metrics) *Verifier[T, C] {
	if logger == nil {
		logger = log.New(os.Stderr, "[verify] ", log.LstdFlags)
	}
	return &Verifier[T, C]{
		keypair: keypair,
		allowed: allowed,
		store:   store,
		logger:  logger,
		metrics: &verifierMetrics{stream: streamName, metrics: metrics},
		latest:  latest,
	}
}

// KeyPair returns the identity this Verifier signs VerifiedData with.
func (v *Verifier[T, C]) KeyPair() signed.KeyPair {
	return v.keypair
}

// Allowed returns the set of keys permitted to submit updates.
func (v *Verifier[T, C]) Allowed() signed.AllowedKeys {
	return v.allowed
}

// Latest returns the stream's current tip, or nil if the stream has
// never been rooted.
func (v *Verifier[T, C]) Latest() *blockhash.Hash {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.latest == nil {
		return nil
	}
	h := *v.latest
	return &h
}

// Force unconditionally roots the stream at value, bypassing any CAS
// check. It is the only way to move a stream out of the Empty state, and
// is meant to be called once, at provisioning time.
func (v *Verifier[T, C]) Force(value T) (blockhash.Hash, error) {
	data := VerifiedData[T]{Value: value}
	env, err := signed.Sign(v.keypair, data)
	if err != nil {
		return blockhash.Hash{}, fmt.Errorf("verify: sign root: %w", err)
	}
	raw, err := msgpack.Marshal(env)
	if err != nil {
		return blockhash.Hash{}, fmt.Errorf("verify: encode root envelope: %w", err)
	}
	hash, err := v.store.Set(raw)
	if err != nil {
		return blockhash.Hash{}, fmt.Errorf("%w: %v", ErrStoreErr, err)
	}
	v.mu.Lock()
	v.latest = &hash
	v.mu.Unlock()
	return hash, nil
}

// Verify runs the nine-step update gate against env, a signed
// update.Update[C]. On success it returns the hash of the newly written
// tip block and the stream's latest advances to it. On failure the
// stream's tip is left exactly as it was.
func (v *Verifier[T, C]) Verify(env signed.Envelope) (blockhash.Hash, error) {
	// Step 1: signature + decode of the client's update.
	upd, err := signed.Verify[update.Update[C]](env, v.allowed)
	if err != nil {
		v.metrics.reject(metricKind(err))
		return blockhash.Hash{}, translateSignedErr(err)
	}

	// Step 2: optimistic precondition check against the current tip.
	v.mu.Lock()
	if v.latest == nil || *v.latest != upd.Last {
		v.mu.Unlock()
		v.metrics.reject("not_latest")
		return blockhash.Hash{}, ErrNotLatest
	}
	prevHash := *v.latest
	v.mu.Unlock()

	// Step 3: freshness window, both too-old and future timestamps.
	now := ltime.Now()
	drift := upd.Timestamp.Since(now)
	if drift > StaleSeconds || drift < -StaleSeconds {
		v.metrics.reject("stale")
		return blockhash.Hash{}, ErrStale
	}

	// Step 4+5: fetch and decode the previous tip, which must itself be
	// signed by this Verifier's own key — only the Verifier signs
	// VerifiedData, so that is the only key that can ever be valid here.
	prevRaw, ok, err := v.store.Get(prevHash)
	if err != nil || !ok {
		v.metrics.reject("last_err")
		return blockhash.Hash{}, fmt.Errorf("%w: previous tip unavailable", ErrLastErr)
	}
	var prevEnv signed.Envelope
	if err := msgpack.Unmarshal(prevRaw, &prevEnv); err != nil {
		v.metrics.reject("last_err")
		return blockhash.Hash{}, fmt.Errorf("%w: %v", ErrLastErr, err)
	}
	selfOnly := signed.NewAllowedKeys(v.keypair.Public)
	prevData, err := signed.Verify[VerifiedData[T]](prevEnv, selfOnly)
	if err != nil {
		v.metrics.reject("last_err")
		return blockhash.Hash{}, fmt.Errorf("%w: %v", ErrLastErr, err)
	}

	// Step 6: apply the command.
	nextValue, err := upd.Command.Process(prevData.Value)
	if err != nil {
		v.metrics.reject("update_err")
		return blockhash.Hash{}, fmt.Errorf("%w: %v", ErrUpdateErr, err)
	}

	// Step 7: author and sign the next VerifiedData, embedding the
	// client update that produced it.
	clientEnv := env
	nextData := VerifiedData[T]{Value: nextValue, Update: &clientEnv}
	nextEnv, err := signed.Sign(v.keypair, nextData)
	if err != nil {
		return blockhash.Hash{}, fmt.Errorf("verify: sign next tip: %w", err)
	}
	nextRaw, err := msgpack.Marshal(nextEnv)
	if err != nil {
		return blockhash.Hash{}, fmt.Errorf("verify: encode next envelope: %w", err)
	}

	// Step 8: persist the next block. Blocks are content-addressed, so a
	// block written here that later loses the race in step 9 is simply
	// an orphan: harmless, never garbage collected by this system.
	nextHash, err := v.store.Set(nextRaw)
	if err != nil {
		v.metrics.reject("store_err")
		return blockhash.Hash{}, fmt.Errorf("%w: %v", ErrStoreErr, err)
	}

	// Step 9: authoritative re-check before committing the new tip. If
	// another Verify call won the race in between, this one loses
	// without rolling anything back.
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.latest == nil || *v.latest != upd.Last {
		v.metrics.reject("not_latest")
		return blockhash.Hash{}, ErrNotLatest
	}
	v.latest = &nextHash
	v.metrics.accept()
	return nextHash, nil
}

func translateSignedErr(err error) error {
	switch {
	case errors.Is(err, signed.ErrDisallowedKey):
		return ErrDisallowedKey
	case errors.Is(err, signed.ErrBadSignature):
		return ErrBadSignature
	default:
		return fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
}

func metricKind(err error) string {
	switch {
	case errors.Is(err, signed.ErrDisallowedKey):
		return "disallowed_key"
	case errors.Is(err, signed.ErrBadSignature):
		return "bad_signature"
	default:
		return "decode_failed"
	}
}
