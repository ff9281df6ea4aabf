package block

import (
	"path/filepath"
	"testing"

	"github.com/hashtree/verifier/pkg/blockhash"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	backend, err := NewFSBackend(filepath.Join(t.TempDir(), "blocks"))
	if err != nil {
		t.Fatalf("NewFSBackend() error: %v", err)
	}
	return NewStore(backend, nil, nil)
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	data := []byte("hello, block store")

	hash, err := s.Set(data)
	if err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if hash != blockhash.Of(data) {
		t.Fatalf("Set() returned hash %s, want content hash %s", hash, blockhash.Of(data))
	}

	got, ok, err := s.Get(hash)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok {
		t.Fatalf("Get() reported missing block right after Set()")
	}
	if string(got) != string(data) {
		t.Fatalf("Get() = %q, want %q", got, data)
	}
}

func TestSetIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	data := []byte("duplicate me")

	h1, err := s.Set(data)
	if err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	h2, err := s.Set(data)
	if err != nil {
		t.Fatalf("Set() second call error: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("Set() not idempotent: %s != %s", h1, h2)
	}
}

func TestGetMissingIsNotAnError(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Get(blockhash.Of([]byte("never stored")))
	if err != nil {
		t.Fatalf("Get() error on missing block: %v", err)
	}
	if ok {
		t.Fatalf("Get() reported a block that was never stored")
	}
}
