// Package state provides the persistent statement catalog using SQLite.
// It records every distinct statement text the tools have parsed together
// with its regenerated form, bind parameters and any parse fault, so a
// restarted process can answer repeated requests without parsing again.
package state

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no statement matches the lookup key.
var ErrNotFound = errors.New("statement not found")

// Statement is one cataloged statement text.
type Statement struct {
	ID          string    `json:"id" yaml:"id"`
	Hash        string    `json:"hash" yaml:"hash"`
	SQL         string    `json:"sql" yaml:"sql"`
	Regenerated string    `json:"regenerated,omitempty" yaml:"regenerated,omitempty"`
	Params      []string  `json:"params" yaml:"params"`
	NodeCount   int       `json:"node_count" yaml:"node_count"`
	Fault       string    `json:"fault,omitempty" yaml:"fault,omitempty"`
	Source      string    `json:"source,omitempty" yaml:"source,omitempty"`
	Hits        int       `json:"hits" yaml:"hits"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	LastSeenAt  time.Time `json:"last_seen_at" yaml:"last_seen_at"`
}

// Store is the catalog interface used by the statement cache.
type Store interface {
	// GetStatement returns the statement with the given hash or ErrNotFound.
	GetStatement(ctx context.Context, hash string) (*Statement, error)
	// PutStatement inserts st, or counts another hit when its hash is
	// already cataloged. A new record gets its ID and timestamps set.
	PutStatement(ctx context.Context, st *Statement) error
	// ListStatements returns up to limit statements, most recently seen
	// first. A limit of zero or less means no limit.
	ListStatements(ctx context.Context, limit int) ([]*Statement, error)
	// DeleteStatement removes the statement with the given hash.
	DeleteStatement(ctx context.Context, hash string) error
	// Prune keeps the keep most recently seen statements and returns how
	// many were removed.
	Prune(ctx context.Context, keep int) (int64, error)
	Close() error
}
