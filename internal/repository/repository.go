package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-disaster-risk/internal/models"
)

// ErrActiveAlertExists is returned when a second active alert is written for a region.
var ErrActiveAlertExists = errors.New("region already has an active alert")

type AlertFilter struct {
	Limit    int
	Status   *models.AlertStatus
	RegionID string
	Since    *time.Time
}

type BroadcastFilter struct {
	Limit    int
	RegionID string
	Since    *time.Time
	Message  string
}

type AlertRepository interface {
	AddAlert(ctx context.Context, a *models.Alert) error
	UpdateAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ActiveAlert(ctx context.Context, regionID string) (*models.Alert, error)
	ListAlerts(ctx context.Context, opts AlertFilter) ([]models.Alert, error)
	LastAlertAt(ctx context.Context, regionID string) (*time.Time, error)
	CountAlertsSince(ctx context.Context, regionID string, since time.Time) (int, error)
}

type BroadcastRepository interface {
	AddBroadcast(ctx context.Context, b *models.Broadcast) error
	GetBroadcast(ctx context.Context, id string) (*models.Broadcast, error)
	// TransitionBroadcast moves a broadcast from one status to another and
	// reports whether the row was in the expected status.
	TransitionBroadcast(ctx context.Context, id string, from, to models.DeliveryStatus, at time.Time) (bool, error)
	ListBroadcasts(ctx context.Context, opts BroadcastFilter) ([]models.Broadcast, error)
}

type RegionRepository interface {
	UpsertRegion(ctx context.Context, r *models.Region) error
	GetRegion(ctx context.Context, id string) (*models.Region, error)
	ListRegions(ctx context.Context) ([]models.Region, error)
}
