package store

import (
	"context"

	"github.com/rcliao/call-screen/internal/model"
)

// ExportAll returns every caller record in key order.
func (s *SQLiteStore) ExportAll(ctx context.Context) ([]model.CallerRecord, error) {
	return s.ListAll(ctx)
}

// Import upserts records from an export. Records sharing a number replace
// each other in order, so the last one wins.
func (s *SQLiteStore) Import(ctx context.Context, callers []model.CallerRecord) (int, error) {
	imported := 0
	for _, rec := range callers {
		if err := s.Upsert(ctx, rec); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
