// Package history keeps bounded, most-recent-first logs of predictions and
// operator activity. Once a ledger reaches its cap the oldest entry is evicted.
package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-risk/internal/models"
)

const DefaultCap = 50

type Ledger interface {
	Append(ctx context.Context, e models.HistoryEntry) error
	// Recent returns up to n entries, newest first. n <= 0 returns everything.
	Recent(ctx context.Context, n int) ([]models.HistoryEntry, error)
	Len(ctx context.Context) (int, error)
	Cap() int
}

// Recorder stamps and appends entries of one kind to a ledger.
type Recorder struct {
	ledger Ledger
	kind   models.HistoryKind
	clock  clockwork.Clock
}

func NewRecorder(ledger Ledger, kind models.HistoryKind, clock clockwork.Clock) *Recorder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Recorder{ledger: ledger, kind: kind, clock: clock}
}

func (r *Recorder) Record(ctx context.Context, regionID, summary string, payload any) error {
	e := models.HistoryEntry{
		ID:         uuid.NewString(),
		Kind:       r.kind,
		RegionID:   regionID,
		Summary:    summary,
		RecordedAt: r.clock.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode history payload: %w", err)
		}
		e.Payload = raw
	}
	return r.ledger.Append(ctx, e)
}

func (r *Recorder) Ledger() Ledger {
	return r.ledger
}
