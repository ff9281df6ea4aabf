package verify

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashtree/verifier/pkg/block"
	"github.com/hashtree/verifier/pkg/blockhash"
	"github.com/hashtree/verifier/pkg/ltime"
	"github.com/hashtree/verifier/pkg/signed"
	"github.com/hashtree/verifier/pkg/update"
)

func newTestVerifier(t *testing.T) (*Verifier[update.TestObject, update.TestCommand], signed.KeyPair, signed.KeyPair) {
	t.Helper()
	backend, err := block.NewFSBackend(filepath.Join(t.TempDir(), "blocks"))
	if err != nil {
		t.Fatalf("NewFSBackend() error: %v", err)
	}
	store := block.NewStore(backend, nil, nil)

	serverKP, err := signed.Generate()
	if err != nil {
		t.Fatalf("Generate() server key error: %v", err)
	}
	clientKP, err := signed.Generate()
	if err != nil {
		t.Fatalf("Generate() client key error: %v", err)
	}
	allowed := signed.NewAllowedKeys(clientKP.Public)
	v := New[update.TestObject, update.TestCommand]("test", serverKP, allowed, store, nil, nil, nil)
	return v, serverKP, clientKP
}

func signUpdate(t *testing.T, kp signed.KeyPair, cmd update.TestCommand, last blockhash.Hash, ts ltime.Seconds) signed.Envelope {
	t.Helper()
	env, err := signed.Sign(kp, update.Update[update.TestCommand]{Timestamp: ts, Command: cmd, Last: last})
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return env
}

func TestForceThenVerifyHistory(t *testing.T) {
	v, _, clientKP := newTestVerifier(t)

	rootHash, err := v.Force(update.TestObject{Value: 0})
	if err != nil {
		t.Fatalf("Force() error: %v", err)
	}

	env1 := signUpdate(t, clientKP, update.TestCommand{Add: 3}, rootHash, ltime.Now())
	h1, err := v.Verify(env1)
	if err != nil {
		t.Fatalf("Verify() first update error: %v", err)
	}

	env2 := signUpdate(t, clientKP, update.TestCommand{Add: 5}, h1, ltime.Now())
	h2, err := v.Verify(env2)
	if err != nil {
		t.Fatalf("Verify() second update error: %v", err)
	}

	if got := *v.Latest(); got != h2 {
		t.Fatalf("Latest() = %s, want %s", got, h2)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	v, _, clientKP := newTestVerifier(t)
	rootHash, err := v.Force(update.TestObject{Value: 0})
	if err != nil {
		t.Fatalf("Force() error: %v", err)
	}
	old := ltime.Seconds(uint64(time.Now().Add(-time.Hour).Unix()))
	env := signUpdate(t, clientKP, update.TestCommand{Add: 1}, rootHash, old)
	if _, err := v.Verify(env); !errors.Is(err, ErrStale) {
		t.Fatalf("Verify() error = %v, want ErrStale", err)
	}
}

func TestVerifyRejectsDisallowedKey(t *testing.T) {
	v, _, _ := newTestVerifier(t)
	rootHash, err := v.Force(update.TestObject{Value: 0})
	if err != nil {
		t.Fatalf("Force() error: %v", err)
	}
	intruder, err := signed.Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	env := signUpdate(t, intruder, update.TestCommand{Add: 1}, rootHash, ltime.Now())
	if _, err := v.Verify(env); !errors.Is(err, ErrDisallowedKey) {
		t.Fatalf("Verify() error = %v, want ErrDisallowedKey", err)
	}
}

func TestVerifyRejectsWrongLast(t *testing.T) {
	v, _, clientKP := newTestVerifier(t)
	if _, err := v.Force(update.TestObject{Value: 0}); err != nil {
		t.Fatalf("Force() error: %v", err)
	}
	bogus := blockhash.Of([]byte("not the real tip"))
	env := signUpdate(t, clientKP, update.TestCommand{Add: 1}, bogus, ltime.Now())
	if _, err := v.Verify(env); !errors.Is(err, ErrNotLatest) {
		t.Fatalf("Verify() error = %v, want ErrNotLatest", err)
	}
}

func TestVerifyWithoutForceIsAlwaysNotLatest(t *testing.T) {
	v, _, clientKP := newTestVerifier(t)
	env := signUpdate(t, clientKP, update.TestCommand{Add: 1}, blockhash.Hash{}, ltime.Now())
	if _, err := v.Verify(env); !errors.Is(err, ErrNotLatest) {
		t.Fatalf("Verify() on an unrooted stream error = %v, want ErrNotLatest", err)
	}
}

// TestConcurrentUpdatesOneWins exercises the two-phase CAS directly:
// two updates racing from the same tip must result in exactly one
// acceptance and one ErrNotLatest rejection.
func TestConcurrentUpdatesOneWins(t *testing.T) {
	v, _, clientKP := newTestVerifier(t)
	rootHash, err := v.Force(update.TestObject{Value: 0})
	if err != nil {
		t.Fatalf("Force() error: %v", err)
	}

	envA := signUpdate(t, clientKP, update.TestCommand{Add: 3}, rootHash, ltime.Now())
	envB := signUpdate(t, clientKP, update.TestCommand{Add: 4}, rootHash, ltime.Now())

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, results[0] = v.Verify(envA) }()
	go func() { defer wg.Done(); _, results[1] = v.Verify(envB) }()
	wg.Wait()

	successes, notLatest := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrNotLatest):
			notLatest++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || notLatest != 1 {
		t.Fatalf("got %d successes and %d NotLatest, want exactly 1 and 1", successes, notLatest)
	}
}
