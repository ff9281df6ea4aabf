package verifiermap

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/hashtree/verifier/pkg/block"
	"github.com/hashtree/verifier/pkg/blockhash"
	"github.com/hashtree/verifier/pkg/ltime"
	"github.com/hashtree/verifier/pkg/signed"
	"github.com/hashtree/verifier/pkg/update"
)

func newTestStore(t *testing.T) *block.Store {
	t.Helper()
	backend, err := block.NewFSBackend(filepath.Join(t.TempDir(), "blocks"))
	if err != nil {
		t.Fatalf("NewFSBackend() error: %v", err)
	}
	return block.NewStore(backend, nil, nil)
}

func TestFromDirMissingIsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := FromDir(filepath.Join(t.TempDir(), "does-not-exist"), store)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("FromDir() error = %v, want ErrNotFound", err)
	}
}

func TestFromDirExistingButEmptyIsNotFound(t *testing.T) {
	store := newTestStore(t)
	dir := t.TempDir()
	_, err := FromDir(dir, store)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("FromDir() on an existing, empty dir error = %v, want ErrNotFound", err)
	}
}

func TestAddNewThenVerifyThenReload(t *testing.T) {
	store := newTestStore(t)
	dir := filepath.Join(t.TempDir(), "streams")
	m := NewDir(dir, store)

	clientKP, err := signed.Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	allowed := signed.NewAllowedKeys(clientKP.Public)

	stream, err := m.AddNew("main", allowed)
	if err != nil {
		t.Fatalf("AddNew() error: %v", err)
	}
	if _, err := m.AddNew("main", allowed); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("AddNew() second call error = %v, want ErrAlreadyExists", err)
	}

	rootHash, err := stream.Force(update.NewNamedHash())
	if err != nil {
		t.Fatalf("Force() error: %v", err)
	}

	target := blockhash.Of([]byte("some block"))
	cmd := update.NamedHashCommand{Set: update.NamedHashSet{Name: "asset", Hash: target}}
	env, err := signed.Sign(clientKP, update.Update[update.NamedHashCommand]{
		Timestamp: ltime.Now(),
		Command:   cmd,
		Last:      rootHash,
	})
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	if _, err := m.Verify("main", env); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}

	reloaded, err := FromDir(dir, store)
	if err != nil {
		t.Fatalf("FromDir() reload error: %v", err)
	}
	latest, err := reloaded.Latest("main")
	if err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if latest == nil {
		t.Fatalf("Latest() = nil after reload, want a tip")
	}
}

func TestVerifyMissingNameIsNoVerifier(t *testing.T) {
	store := newTestStore(t)
	m := NewDir(filepath.Join(t.TempDir(), "streams"), store)
	if _, err := m.Latest("missing"); !errors.Is(err, ErrNoVerifier) {
		t.Fatalf("Latest() error = %v, want ErrNoVerifier", err)
	}
}
