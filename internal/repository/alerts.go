package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/go-disaster-risk/internal/models"
)

const alertColumns = `id, region_id, region_name, title, severity, message, disaster_type, risk_score,
	recommended_action, status, affected_population, created_at, updated_at, resolved_at`

func (s *SQLiteDB) AddAlert(ctx context.Context, a *models.Alert) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RegionID, a.RegionName, a.Title, string(a.Severity), a.Message, a.DisasterType.String(),
		a.RiskScore, string(a.RecommendedAction), string(a.Status), a.AffectedPopulation,
		toNanos(a.CreatedAt), toNanos(a.UpdatedAt), nullableNanos(a.ResolvedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("add alert for region %s: %w", a.RegionID, ErrActiveAlertExists)
	}
	if err != nil {
		return fmt.Errorf("add alert: %w", err)
	}
	return nil
}

func (s *SQLiteDB) UpdateAlert(ctx context.Context, a *models.Alert) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET
			title = ?, severity = ?, message = ?, disaster_type = ?, risk_score = ?,
			recommended_action = ?, status = ?, affected_population = ?, updated_at = ?, resolved_at = ?
		WHERE id = ?`,
		a.Title, string(a.Severity), a.Message, a.DisasterType.String(), a.RiskScore,
		string(a.RecommendedAction), string(a.Status), a.AffectedPopulation,
		toNanos(a.UpdatedAt), nullableNanos(a.ResolvedAt), a.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("update alert %s: %w", a.ID, ErrActiveAlertExists)
	}
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update alert %s: %w", a.ID, sql.ErrNoRows)
	}
	return nil
}

func (s *SQLiteDB) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteDB) ActiveAlert(ctx context.Context, regionID string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts
		WHERE region_id = ? AND status = ?`, regionID, string(models.AlertStatusActive))
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteDB) ListAlerts(ctx context.Context, opts AlertFilter) ([]models.Alert, error) {
	var (
		where []string
		args  []any
	)
	if opts.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*opts.Status))
	}
	if opts.RegionID != "" {
		where = append(where, "region_id = ?")
		args = append(args, opts.RegionID)
	}
	if opts.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, toNanos(*opts.Since))
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func (s *SQLiteDB) LastAlertAt(ctx context.Context, regionID string) (*time.Time, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM alerts WHERE region_id = ?`, regionID).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("last alert time: %w", err)
	}
	return timePtr(last), nil
}

func (s *SQLiteDB) CountAlertsSince(ctx context.Context, regionID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE region_id = ? AND created_at >= ?`,
		regionID, toNanos(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (*models.Alert, error) {
	var (
		a                models.Alert
		severity, status string
		disasterType     string
		action           sql.NullString
		message          sql.NullString
		created, updated int64
		resolved         sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.RegionID, &a.RegionName, &a.Title, &severity, &message, &disasterType,
		&a.RiskScore, &action, &status, &a.AffectedPopulation, &created, &updated, &resolved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	dt, err := models.ParseDisasterType(disasterType)
	if err != nil {
		return nil, fmt.Errorf("scan alert %s: %w", a.ID, err)
	}
	a.DisasterType = dt
	a.Severity = models.AlertSeverity(severity)
	a.Status = models.AlertStatus(status)
	a.Message = message.String
	a.RecommendedAction = models.Action(action.String)
	a.CreatedAt = fromNanos(created)
	a.UpdatedAt = fromNanos(updated)
	a.ResolvedAt = timePtr(resolved)
	return &a, nil
}
