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

const broadcastColumns = `id, region_id, message, channels, recipient_count, status, sent_at, delivered_at`

func (s *SQLiteDB) AddBroadcast(ctx context.Context, b *models.Broadcast) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO broadcasts (`+broadcastColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.RegionID, b.Message, strings.Join(b.ChannelNames(), ","), b.RecipientCount,
		string(b.Status), toNanos(b.SentAt), nullableNanos(b.DeliveredAt),
	)
	if err != nil {
		return fmt.Errorf("add broadcast: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetBroadcast(ctx context.Context, id string) (*models.Broadcast, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+broadcastColumns+` FROM broadcasts WHERE id = ?`, id)
	b, err := scanBroadcast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *SQLiteDB) TransitionBroadcast(ctx context.Context, id string, from, to models.DeliveryStatus, at time.Time) (bool, error) {
	var delivered sql.NullInt64
	if to == models.DeliveryDelivered {
		delivered = sql.NullInt64{Int64: toNanos(at), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `UPDATE broadcasts SET status = ?, delivered_at = ?
		WHERE id = ? AND status = ?`, string(to), delivered, id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition broadcast %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition broadcast %s: %w", id, err)
	}
	return n == 1, nil
}

func (s *SQLiteDB) ListBroadcasts(ctx context.Context, opts BroadcastFilter) ([]models.Broadcast, error) {
	var (
		where []string
		args  []any
	)
	if opts.RegionID != "" {
		where = append(where, "region_id = ?")
		args = append(args, opts.RegionID)
	}
	if opts.Since != nil {
		where = append(where, "sent_at >= ?")
		args = append(args, toNanos(*opts.Since))
	}
	if opts.Message != "" {
		where = append(where, "message = ?")
		args = append(args, opts.Message)
	}

	query := `SELECT ` + broadcastColumns + ` FROM broadcasts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY sent_at DESC, id"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list broadcasts: %w", err)
	}
	defer rows.Close()

	var out []models.Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBroadcast(row scanner) (*models.Broadcast, error) {
	var (
		b         models.Broadcast
		channels  string
		status    string
		sent      int64
		delivered sql.NullInt64
	)
	err := row.Scan(&b.ID, &b.RegionID, &b.Message, &channels, &b.RecipientCount, &status, &sent, &delivered)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan broadcast: %w", err)
	}
	for _, c := range strings.Split(channels, ",") {
		if c != "" {
			b.Channels = append(b.Channels, models.Channel(c))
		}
	}
	b.Status = models.DeliveryStatus(status)
	b.SentAt = fromNanos(sent)
	b.DeliveredAt = timePtr(delivered)
	return &b, nil
}
