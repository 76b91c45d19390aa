package airquality

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cityaqi/cityaqi/internal/aqi"
)

// PostgresRepository stores snapshots in city_snapshots and the tracked set in
// tracked_cities. The schema is created by database.Migrate.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// SaveSnapshot upserts the latest snapshot of the location.
func (r *PostgresRepository) SaveSnapshot(ctx context.Context, s *Snapshot) error {
	query := `
		INSERT INTO city_snapshots (
			location_key, country, state, city, reading, aqi, category, dominant, provider, fetched_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (location_key) DO UPDATE SET
			reading = EXCLUDED.reading,
			aqi = EXCLUDED.aqi,
			category = EXCLUDED.category,
			dominant = EXCLUDED.dominant,
			provider = EXCLUDED.provider,
			fetched_at = EXCLUDED.fetched_at
	`

	readingJSON, err := json.Marshal(s.Reading)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	_, err = r.pool.Exec(ctx, query,
		s.Location.Key(),
		s.Location.Country,
		s.Location.State,
		s.Location.City,
		readingJSON,
		s.Result.AQI,
		string(s.Result.Category),
		string(s.Result.Dominant),
		s.Provider,
		s.FetchedAt,
	)
	return err
}

// LatestSnapshot loads the stored snapshot and recomputes its result from the
// stored reading.
func (r *PostgresRepository) LatestSnapshot(ctx context.Context, loc Location) (*Snapshot, error) {
	query := `
		SELECT country, state, city, reading, provider, fetched_at
		FROM city_snapshots
		WHERE location_key = $1
	`

	var (
		s           Snapshot
		readingJSON []byte
	)
	err := r.pool.QueryRow(ctx, query, loc.Key()).Scan(
		&s.Location.Country,
		&s.Location.State,
		&s.Location.City,
		&readingJSON,
		&s.Provider,
		&s.FetchedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(readingJSON, &s.Reading); err != nil {
		return nil, fmt.Errorf("unmarshal reading: %w", err)
	}
	s.Result = aqi.Calculate(s.Reading)
	return &s, nil
}

// AddTrackedCity inserts loc, ignoring duplicates.
func (r *PostgresRepository) AddTrackedCity(ctx context.Context, loc Location) error {
	query := `
		INSERT INTO tracked_cities (location_key, country, state, city, added_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (location_key) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, loc.Key(), loc.Country, loc.State, loc.City)
	return err
}

// RemoveTrackedCity deletes loc.
func (r *PostgresRepository) RemoveTrackedCity(ctx context.Context, loc Location) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM tracked_cities WHERE location_key = $1`, loc.Key())
	return err
}

// ListTrackedCities returns all tracked cities ordered by key.
func (r *PostgresRepository) ListTrackedCities(ctx context.Context) ([]TrackedCity, error) {
	query := `
		SELECT country, state, city, added_at
		FROM tracked_cities
		ORDER BY location_key COLLATE "C"
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cities []TrackedCity
	for rows.Next() {
		var c TrackedCity
		if err := rows.Scan(&c.Location.Country, &c.Location.State, &c.Location.City, &c.AddedAt); err != nil {
			return nil, err
		}
		cities = append(cities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cities, nil
}

var _ Repository = (*PostgresRepository)(nil)
