package view

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashtree/verifier/pkg/block"
	"github.com/hashtree/verifier/pkg/signed"
	"github.com/hashtree/verifier/pkg/update"
	"github.com/hashtree/verifier/pkg/verify"
)

func TestNavigateRootBlock(t *testing.T) {
	backend, err := block.NewFSBackend(filepath.Join(t.TempDir(), "blocks"))
	if err != nil {
		t.Fatalf("NewFSBackend() error: %v", err)
	}
	store := block.NewStore(backend, nil, nil)
	serverKP, err := signed.Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	allowed := signed.NewAllowedKeys(serverKP.Public)
	v := verify.New[update.TestObject, update.TestCommand]("test", serverKP, allowed, store, nil, nil, nil)

	rootHash, err := v.Force(update.TestObject{Value: 7})
	if err != nil {
		t.Fatalf("Force() error: %v", err)
	}

	var out bytes.Buffer
	if err := Navigate(store, "test", rootHash, strings.NewReader(""), &out); err != nil {
		t.Fatalf("Navigate() error: %v", err)
	}
	if !strings.Contains(out.String(), "root block") {
		t.Fatalf("Navigate() output missing root-block marker:\n%s", out.String())
	}
}

func TestNavigateUnknownKind(t *testing.T) {
	backend, err := block.NewFSBackend(filepath.Join(t.TempDir(), "blocks"))
	if err != nil {
		t.Fatalf("NewFSBackend() error: %v", err)
	}
	store := block.NewStore(backend, nil, nil)
	var out bytes.Buffer
	if err := Navigate(store, "bogus", [32]byte{}, strings.NewReader(""), &out); err == nil {
		t.Fatalf("Navigate() with unknown kind did not error")
	}
}
