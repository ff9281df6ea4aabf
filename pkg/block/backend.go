package block

import (
	"fmt"
	"os"
	"path/filepath"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/hashtree/verifier/pkg/blockhash"
	"github.com/hashtree/verifier/pkg/signed"
)

// Backend is the durable storage a Store falls back to on a cache miss.
// Any implementation satisfying this interface meets the content-store's
// atomicity contract: a Put that returns nil has durably committed data
// under hash, and a concurrent or later Put of the same hash is a no-op
// overwrite of identical bytes.
type Backend interface {
	Get(hash blockhash.Hash) ([]byte, bool, error)
	Put(hash blockhash.Hash, data []byte) error
}

// FSBackend stores each block as its own file named by the base64url-no-pad
// digest, written with the write-then-rename primitive so a crash mid-write
// never leaves a corrupt file visible under the final name.
type FSBackend struct {
	dir string
}

// NewFSBackend creates a filesystem-backed Backend rooted at dir
// (conventionally "public/blocks").
func NewFSBackend(dir string) (*FSBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("block: create blocks dir %s: %w", dir, err)
	}
	return &FSBackend{dir: dir}, nil
}

func (b *FSBackend) path(hash blockhash.Hash) string {
	return filepath.Join(b.dir, hash.String())
}

// Get reads a block from disk. A missing file is not an error: it is
// reported via the ok return.
func (b *FSBackend) Get(hash blockhash.Hash) ([]byte, bool, error) {
	data, err := os.ReadFile(b.path(hash))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("block: read %s: %w", hash, err)
	}
	return data, true, nil
}

// Put durably writes data under hash. Writing the same hash twice is
// harmless: the content is, by construction, identical.
func (b *FSBackend) Put(hash blockhash.Hash, data []byte) error {
	if err := signed.WriteThenRename(b.path(hash), data, 0o644); err != nil {
		return fmt.Errorf("block: write %s: %w", hash, err)
	}
	return nil
}

// KVBackend stores blocks in an embedded key/value engine (cometbft-db),
// the alternative this system's on-disk contract explicitly allows in
// place of one-file-per-block. Keys are the raw 32-byte digest; the
// underlying engine's own write path provides the durability guarantee
// FSBackend gets from write-then-rename.
type KVBackend struct {
	db dbm.DB
}

// NewKVBackend opens (or creates) a goleveldb-backed store named name
// under dir.
func NewKVBackend(name, dir string) (*KVBackend, error) {
	db, err := dbm.NewDB(name, dbm.GoLevelDBBackend, dir)
	if err != nil {
		return nil, fmt.Errorf("block: open kv backend %s: %w", name, err)
	}
	return &KVBackend{db: db}, nil
}

func (b *KVBackend) Get(hash blockhash.Hash) ([]byte, bool, error) {
	data, err := b.db.Get(hash[:])
	if err != nil {
		return nil, false, fmt.Errorf("block: kv get %s: %w", hash, err)
	}
	if data == nil {
		return nil, false, nil
	}
	return data, true, nil
}

func (b *KVBackend) Put(hash blockhash.Hash, data []byte) error {
	if err := b.db.SetSync(hash[:], data); err != nil {
		return fmt.Errorf("block: kv put %s: %w", hash, err)
	}
	return nil
}

// Close releases the underlying engine's resources.
func (b *KVBackend) Close() error {
	return b.db.Close()
}
