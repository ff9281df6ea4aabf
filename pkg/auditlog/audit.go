// Package auditlog provides a durable external record of every tip
// advance a Verifier accepts, supplementing the interactive walk-back
// this system's view CLI otherwise offers as the only history tool.
package auditlog

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/hashtree/verifier/pkg/blockhash"
	"github.com/hashtree/verifier/pkg/ltime"
)

//go:embed migrations/0001_init.sql
var initSchema string

// Logger records accepted verifier updates to Postgres. A nil *Logger is
// valid and every method on it is a no-op, so callers can leave the
// audit log disabled without branching at every call site.
type Logger struct {
	db     *sql.DB
	logger *log.Logger
}

// Option configures a Logger at construction.
type Option func(*Logger)

// WithLogger overrides the default stderr logger.
func WithLogger(l *log.Logger) Option {
	return func(a *Logger) { a.logger = l }
}

// Open connects to dsn, applies the schema migration if needed, and
// returns a ready Logger. An empty dsn is a valid "disabled" request.
func Open(dsn string, opts ...Option) (*Logger, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("auditlog: ping: %w", err)
	}
	if _, err := db.Exec(initSchema); err != nil {
		return nil, fmt.Errorf("auditlog: apply schema: %w", err)
	}

	a := &Logger{db: db, logger: log.New(os.Stderr, "[auditlog] ", log.LstdFlags)}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// RecordAccepted stores one accepted tip advance. Failure to write the
// audit row never fails the update itself: the audit log is a
// supplementary record, not part of the verifier's durability contract.
func (a *Logger) RecordAccepted(stream string, hash blockhash.Hash, signer []byte, ts ltime.Seconds) {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO accepted_updates (stream, tip_hash, signer, accepted_at) VALUES ($1, $2, $3, $4)`,
		stream, hash.String(), fmtSigner(signer), ts.Time())
	if err != nil {
		a.logger.Printf("record %s/%s: %v", stream, hash, err)
	}
}

// Close releases the underlying connection pool.
func (a *Logger) Close() error {
	if a == nil {
		return nil
	}
	return a.db.Close()
}

func fmtSigner(pub []byte) string {
	return base64.RawURLEncoding.EncodeToString(pub)
}
