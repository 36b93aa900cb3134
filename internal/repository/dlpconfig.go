package repository

import (
	"context"
	"fmt"
)

type dlpConfigRepo struct{}

// NewDLPConfigRepository returns a pgx-backed ConfigRepository over dlp_config.
func NewDLPConfigRepository() ConfigRepository {
	return &dlpConfigRepo{}
}

func (r *dlpConfigRepo) LoadAll(ctx context.Context, db DBTX) (map[string]string, error) {
	rows, err := db.Query(ctx, `SELECT key, value FROM dlp_config`)
	if err != nil {
		return nil, fmt.Errorf("load dlp config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan dlp config: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (r *dlpConfigRepo) Set(ctx context.Context, db DBTX, key, value string) error {
	_, err := db.Exec(ctx, `
		INSERT INTO dlp_config (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("set dlp config: %w", err)
	}
	return nil
}
