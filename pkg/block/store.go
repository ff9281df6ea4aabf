// Package block implements the content-addressed BlockStore: an
// in-memory LRU cache in front of a durable Backend, deduplicating
// writes by content hash and serving reads from whichever is faster.
package block

import (
	"fmt"
	"log"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hashtree/verifier/pkg/blockhash"
)

// LRUCapacity bounds the number of blocks kept in memory. A block is
// expected to be on the order of tens of kilobytes, so this caps the
// cache's footprint at roughly capacity * 64KiB.
const LRUCapacity = 256

type getRequest struct {
	hash  blockhash.Hash
	reply chan getResult
}

type getResult struct {
	data []byte
	ok   bool
	err  error
}

type setRequest struct {
	data  []byte
	reply chan setResult
}

type setResult struct {
	hash blockhash.Hash
	err  error
}

// Store is a content-addressed block store. All state (the LRU cache and
// the durable Backend) is owned by a single goroutine; callers interact
// with it exclusively through Get/Set, which round-trip a request over a
// channel and block on a one-shot reply. This mirrors the dedicated
// OS-thread-plus-channel model the rest of this system's stateful
// subsystems use, and means the cache and backend are never touched from
// two goroutines at once.
type Store struct {
	gets    chan getRequest
	sets    chan setRequest
	logger  *log.Logger
	metrics *storeMetrics
}

// NewStore starts a Store's owning goroutine backed by backend.
func NewStore(backend Backend, logger *log.Logger, reg prometheus.Registerer) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[block] ", log.LstdFlags)
	}
	s := &Store{
		gets:    make(chan getRequest, 256),
		sets:    make(chan setRequest, 256),
		logger:  logger,
		metrics: newStoreMetrics(reg),
	}
	cache, err := lru.New[blockhash.Hash, []byte](LRUCapacity)
	if err != nil {
		// Only invalid (non-positive) capacity can cause this, and
		// LRUCapacity is a fixed positive constant.
		panic(fmt.Sprintf("block: lru.New: %v", err))
	}
	go s.run(backend, cache)
	return s
}

func (s *Store) run(backend Backend, cache *lru.Cache[blockhash.Hash, []byte]) {
	for {
		select {
		case req := <-s.gets:
			data, ok := cache.Get(req.hash)
			if ok {
				s.metrics.cacheHits.Inc()
				s.metrics.gets.WithLabelValues("hit").Inc()
				req.reply <- getResult{data: data, ok: true}
				continue
			}
			data, ok, err := backend.Get(req.hash)
			if err != nil {
				s.metrics.gets.WithLabelValues("error").Inc()
				req.reply <- getResult{err: err}
				continue
			}
			if ok {
				cache.Add(req.hash, data)
			}
			outcome := "miss"
			if ok {
				outcome = "hit"
			}
			s.metrics.gets.WithLabelValues(outcome).Inc()
			req.reply <- getResult{data: data, ok: ok}

		case req := <-s.sets:
			hash := blockhash.Of(req.data)
			if _, cached := cache.Get(hash); cached {
				s.metrics.sets.WithLabelValues("duplicate").Inc()
				req.reply <- setResult{hash: hash}
				continue
			}
			if existing, ok, err := backend.Get(hash); err == nil && ok {
				cache.Add(hash, existing)
				s.metrics.sets.WithLabelValues("duplicate").Inc()
				req.reply <- setResult{hash: hash}
				continue
			}
			if err := backend.Put(hash, req.data); err != nil {
				s.metrics.sets.WithLabelValues("error").Inc()
				req.reply <- setResult{err: err}
				continue
			}
			cache.Add(hash, req.data)
			s.metrics.sets.WithLabelValues("new").Inc()
			req.reply <- setResult{hash: hash}
		}
	}
}

// Get fetches the block content addressed by hash. A missing block is
// reported as (nil, false, nil), not an error.
func (s *Store) Get(hash blockhash.Hash) ([]byte, bool, error) {
	reply := make(chan getResult, 1)
	s.gets <- getRequest{hash: hash, reply: reply}
	res := <-reply
	return res.data, res.ok, res.err
}

// Set durably stores data, returning its content hash. Calling Set twice
// with identical bytes is idempotent: the second call is a no-op beyond
// confirming the hash.
func (s *Store) Set(data []byte) (blockhash.Hash, error) {
	reply := make(chan setResult, 1)
	s.sets <- setRequest{data: data, reply: reply}
	res := <-reply
	return res.hash, res.err
}
