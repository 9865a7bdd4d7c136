package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/apodmail/apodmail/internal/model"
)

// SaveStatsSnapshot overwrites the cached stats blob. Full overwrite, not a
// merge.
func (s *PostgresStore) SaveStatsSnapshot(ctx context.Context, payload *model.StatsPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal stats payload: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO stats_snapshots (name, payload, generated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET payload = EXCLUDED.payload, generated_at = EXCLUDED.generated_at
	`, model.StatsSnapshotName, data, payload.GeneratedAt)
	if err != nil {
		return fmt.Errorf("failed to save stats snapshot: %w", err)
	}

	return nil
}

// StatsSnapshot reads the cached stats blob. Returns ErrStatsNotFound when
// stats have never been generated.
func (s *PostgresStore) StatsSnapshot(ctx context.Context) (*model.StatsPayload, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM stats_snapshots WHERE name = $1`,
		model.StatsSnapshotName,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatsNotFound
		}
		return nil, fmt.Errorf("failed to get stats snapshot: %w", err)
	}

	var payload model.StatsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats payload: %w", err)
	}

	return &payload, nil
}
