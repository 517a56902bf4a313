package store

import (
	"context"
	"fmt"

	"github.com/rcliao/call-screen/internal/model"
)

// SeedCallers are inserted into an empty store on first open so a fresh
// install has deterministic behavior: one clean caller, one spammer and
// one clean caller without a company.
var SeedCallers = []model.CallerRecord{
	{
		PhoneNumber: "+1234567890",
		Name:        model.StringPtr("Иван Иванов"),
		Company:     model.StringPtr("ООО ааа"),
		IsSpam:      false,
	},
	{
		PhoneNumber: "+79375470385",
		Name:        model.StringPtr("Спам центр"),
		Company:     model.StringPtr("Сомнительная компания"),
		IsSpam:      true,
	},
	{
		PhoneNumber: "+11111111111",
		Name:        model.StringPtr("Мария Ивановна"),
		IsSpam:      false,
	},
}

// BootstrapSeed inserts SeedCallers when the store is empty. It reports
// whether anything was inserted.
func (s *SQLiteStore) BootstrapSeed(ctx context.Context) (bool, error) {
	existing, err := s.ListAll(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, unavailable("seed", err)
	}
	defer tx.Rollback()

	for _, rec := range SeedCallers {
		if err := upsertCaller(ctx, tx, rec); err != nil {
			return false, unavailable("seed", fmt.Errorf("insert %s: %w", rec.PhoneNumber, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return false, unavailable("seed", err)
	}
	return true, nil
}
