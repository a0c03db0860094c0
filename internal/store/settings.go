package store

import (
	"context"

	"github.com/aristath/kr-market-feed/internal/apperr"
)

// GetSettings returns every stored key/value application setting
// (integration secrets, tokens).
func (s *Store) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT key, value FROM app_settings`)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, apperr.StoreUnavailable(err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SetSetting writes a single key/value setting, overwriting any previous
// value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO app_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}
