// Package store provides the caller reputation store and its SQLite implementation.
package store

import (
	"context"

	"github.com/rcliao/call-screen/internal/model"
)

// Reputation is the key->record mapping the screening engine consults.
// Keys are normalized phone numbers.
type Reputation interface {
	// Lookup returns the record for an exact key. Absence is ErrNotFound;
	// storage faults match ErrStoreUnavailable.
	Lookup(ctx context.Context, number string) (*model.CallerRecord, error)

	// Upsert inserts or fully replaces the record keyed by its phone number.
	Upsert(ctx context.Context, rec model.CallerRecord) error

	// ListAll returns every stored record.
	ListAll(ctx context.Context) ([]model.CallerRecord, error)
}

// SearchParams holds parameters for searching caller records.
type SearchParams struct {
	Query    string
	SpamOnly bool
	Limit    int
}
