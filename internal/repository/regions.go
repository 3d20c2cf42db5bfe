package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mr1hm/go-disaster-risk/internal/models"
)

func (s *SQLiteDB) UpsertRegion(ctx context.Context, r *models.Region) error {
	var low, high sql.NullInt64
	if r.Bands != nil {
		low = sql.NullInt64{Int64: int64(r.Bands.Low), Valid: true}
		high = sql.NullInt64{Int64: int64(r.Bands.High), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO regions (id, name, population, latitude, longitude, risk_low, risk_high)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			population = excluded.population,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			risk_low = excluded.risk_low,
			risk_high = excluded.risk_high`,
		r.ID, r.Name, r.Population, r.Latitude, r.Longitude, low, high,
	)
	if err != nil {
		return fmt.Errorf("upsert region %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteDB) GetRegion(ctx context.Context, id string) (*models.Region, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, population, latitude, longitude, risk_low, risk_high
		FROM regions WHERE id = ?`, id)
	r, err := scanRegion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteDB) ListRegions(ctx context.Context) ([]models.Region, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, population, latitude, longitude, risk_low, risk_high
		FROM regions ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	var out []models.Region
	for rows.Next() {
		r, err := scanRegion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRegion(row scanner) (*models.Region, error) {
	var (
		r         models.Region
		low, high sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Population, &r.Latitude, &r.Longitude, &low, &high); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan region: %w", err)
	}
	if low.Valid && high.Valid {
		r.Bands = &models.RiskBands{Low: int(low.Int64), High: int(high.Int64)}
	}
	return &r, nil
}
