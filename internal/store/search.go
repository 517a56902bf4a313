package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/call-screen/internal/model"
	"github.com/rcliao/call-screen/internal/phone"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a substring LIKE pattern matching q literally.
func likePattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

// Search finds callers whose number, name or company contains the query substring.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]model.CallerRecord, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	// Stored numbers carry no whitespace, so the number match uses the
	// normalized query.
	number := likePattern(phone.NormalizeString(p.Query))
	text := likePattern(strings.TrimSpace(p.Query))

	where := []string{`(phone_number LIKE ? ESCAPE '\' OR name LIKE ? ESCAPE '\' OR company LIKE ? ESCAPE '\')`}
	args := []interface{}{number, text, text}

	if p.SpamOnly {
		where = append(where, "is_spam = 1")
	}

	sql := fmt.Sprintf(`
		SELECT phone_number, name, company, is_spam
		FROM caller_info
		WHERE %s
		ORDER BY phone_number
		LIMIT ?`, strings.Join(where, " AND "))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, unavailable("search", err)
	}
	defer rows.Close()

	var results []model.CallerRecord
	for rows.Next() {
		rec, err := scanCaller(rows)
		if err != nil {
			return nil, unavailable("search", err)
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}
