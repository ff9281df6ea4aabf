package verifiermap

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/hashtree/verifier/pkg/block"
	"github.com/hashtree/verifier/pkg/blockhash"
	"github.com/hashtree/verifier/pkg/signed"
	"github.com/hashtree/verifier/pkg/update"
	"github.com/hashtree/verifier/pkg/verify"
)

// Stream is the concrete Verifier instantiation every entry in a
// VerifierMap hosts: a NamedHash stream driven by NamedHashCommand.
type Stream = verify.Verifier[update.NamedHash, update.NamedHashCommand]

// Map is a named directory of Verifiers, persisted one file per verifier.
// Lookups take a read lock; AddNew takes a write lock. Each entry's own
// mutex (inside verify.Verifier) still governs its tip CAS, so two
// different streams never contend on the same lock.
type Map struct {
	dir      string
	store    *block.Store
	metrics  *verify.Metrics
	logger   *log.Logger
	debounce time.Duration

	mu        sync.RWMutex
	verifiers map[string]*Stream

	flushMu    sync.Mutex
	lastFlush  map[string]time.Time
}

// Option configures a Map at construction.
type Option func(*Map)

// WithDebounce sets the minimum interval between persisted flushes for a
// given stream after an accepted update. The default (zero) flushes after
// every accepted update, matching the durability contract this system's
// on-disk layout documents by default; a non-zero debounce weakens that
// contract to "tip is never older than the debounce window," which must
// be acceptable to the deployment choosing it.
func WithDebounce(d time.Duration) Option {
	return func(m *Map) { m.debounce = d }
}

// WithLogger overrides the default stderr logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Map) { m.logger = logger }
}

// WithMetrics attaches a shared verify.Metrics set.
func WithMetrics(metrics *verify.Metrics) Option {
	return func(m *Map) { m.metrics = metrics }
}

func newEmptyMap(dir string, store *block.Store, opts []Option) *Map {
	m := &Map{
		dir:       dir,
		store:     store,
		verifiers: map[string]*Stream{},
		lastFlush: map[string]time.Time{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.New(os.Stderr, "[verifiermap] ", log.LstdFlags)
	}
	return m
}

// FromDir loads every verifier file under dir. A dir that does not exist,
// or exists but contains no verifier files, yields ErrNotFound: an empty
// directory is indistinguishable from a fresh install (a data volume
// pre-created by a Docker/Kubernetes deployment is empty either way), so
// both cases must route callers to the same provisioning path rather than
// silently starting with zero verifiers.
func FromDir(dir string, store *block.Store, opts ...Option) (*Map, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("verifiermap: read dir %s: %w", dir, err)
	}
	files := make([]os.DirEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry)
		}
	}
	if len(files) == 0 {
		return nil, ErrNotFound
	}
	m := newEmptyMap(dir, store, opts)
	for _, entry := range files {
		kp, allowed, latest, err := readVerifierFile(dir, entry.Name())
		if err != nil {
			return nil, err
		}
		m.verifiers[entry.Name()] = verify.New[update.NamedHash, update.NamedHashCommand](
			entry.Name(), kp, allowed, store, latest, m.logger, m.metrics)
	}
	return m, nil
}

// NewDir creates an empty Map backed by dir, for a fresh install that has
// no verifier files yet.
func NewDir(dir string, store *block.Store, opts ...Option) *Map {
	return newEmptyMap(dir, store, opts)
}

// AddNew registers a new verifier. allowed is the set of keys permitted
// to submit updates to this stream; the verifier's own signing identity
// is generated fresh. The stream starts Empty — Force must still be
// called (by the caller, via the returned Stream) to root it.
func (m *Map) AddNew(name string, allowed signed.AllowedKeys) (*Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.verifiers[name]; exists {
		return nil, ErrAlreadyExists
	}
	kp, err := signed.Generate()
	if err != nil {
		return nil, fmt.Errorf("verifiermap: generate key for %s: %w", name, err)
	}
	v := verify.New[update.NamedHash, update.NamedHashCommand](name, kp, allowed, m.store, nil, m.logger, m.metrics)
	m.verifiers[name] = v
	if err := writeVerifierFile(m.dir, name, kp, allowed, nil); err != nil {
		delete(m.verifiers, name)
		return nil, err
	}
	return v, nil
}

// Verify dispatches a signed NamedHashCommand update to the named
// verifier and, on acceptance, flushes its updated state to disk
// (subject to the configured debounce).
func (m *Map) Verify(name string, env signed.Envelope) (blockhash.Hash, error) {
	v, err := m.get(name)
	if err != nil {
		return blockhash.Hash{}, err
	}
	hash, err := v.Verify(env)
	if err != nil {
		return blockhash.Hash{}, err
	}
	m.maybeFlush(name, v)
	return hash, nil
}

// Latest reports the named stream's current tip.
func (m *Map) Latest(name string) (*blockhash.Hash, error) {
	v, err := m.get(name)
	if err != nil {
		return nil, err
	}
	return v.Latest(), nil
}

func (m *Map) get(name string) (*Stream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.verifiers[name]
	if !ok {
		return nil, ErrNoVerifier
	}
	return v, nil
}

func (m *Map) maybeFlush(name string, v *Stream) {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()
	if m.debounce > 0 {
		if last, ok := m.lastFlush[name]; ok && time.Since(last) < m.debounce {
			return
		}
	}
	if err := writeVerifierFile(m.dir, name, v.KeyPair(), v.Allowed(), v.Latest()); err != nil {
		m.logger.Printf("flush %s: %v", name, err)
		return
	}
	m.lastFlush[name] = time.Now()
}

// ToDir flushes every verifier's current state to disk unconditionally,
// ignoring any configured debounce. Useful at shutdown.
func (m *Map) ToDir() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, v := range m.verifiers {
		if err := writeVerifierFile(m.dir, name, v.KeyPair(), v.Allowed(), v.Latest()); err != nil {
			return err
		}
	}
	return nil
}
