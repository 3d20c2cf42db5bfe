// Package broadcast sends operator messages to a region over one or more
// channels. A dispatched broadcast is stored as pending and delivered by the
// worker pool after a configurable delay unless it is abandoned first.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-risk/internal/config"
	"github.com/mr1hm/go-disaster-risk/internal/history"
	"github.com/mr1hm/go-disaster-risk/internal/metrics"
	"github.com/mr1hm/go-disaster-risk/internal/models"
	"github.com/mr1hm/go-disaster-risk/internal/repository"
	"github.com/mr1hm/go-disaster-risk/internal/worker"
)

const (
	MaxMessageLength = 500

	DefaultListLimit = 50
	MaxListLimit     = 200
)

var (
	ErrEmptyMessage        = errors.New("message must not be empty")
	ErrMessageTooLong      = fmt.Errorf("message exceeds %d characters", MaxMessageLength)
	ErrNoChannelSelected   = errors.New("at least one channel must be selected")
	ErrInvalidChannel      = errors.New("invalid channel")
	ErrUnknownRegion       = errors.New("unknown region")
	ErrDuplicateBroadcast  = errors.New("identical broadcast already sent recently")
	ErrBroadcastNotFound   = errors.New("broadcast not found")
	ErrBroadcastNotPending = errors.New("broadcast is no longer pending")
)

type RegionLookup interface {
	Get(ctx context.Context, id string) (*models.Region, error)
}

type Publisher interface {
	Publish(e *models.Event)
}

type Options struct {
	Settings  config.BroadcastConfig
	Workers   config.WorkerConfig
	Notifiers []Notifier
	Activity  *history.Recorder
	Publisher Publisher
	Metrics   *metrics.Metrics
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

type deliveryJob struct {
	broadcastID string
}

type Dispatcher struct {
	repo      repository.BroadcastRepository
	regions   RegionLookup
	settings  config.BroadcastConfig
	notifiers []Notifier
	activity  *history.Recorder
	publisher Publisher
	metrics   *metrics.Metrics
	clock     clockwork.Clock
	logger    *slog.Logger
	pool      *worker.WorkerPool[deliveryJob]

	mu      sync.Mutex
	runCtx  context.Context
	pending map[string]clockwork.Timer
}

func NewDispatcher(repo repository.BroadcastRepository, regions RegionLookup, opts Options) *Dispatcher {
	d := &Dispatcher{
		repo:      repo,
		regions:   regions,
		settings:  opts.Settings,
		notifiers: opts.Notifiers,
		activity:  opts.Activity,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		clock:     opts.Clock,
		logger:    opts.Logger,
		runCtx:    context.Background(),
		pending:   make(map[string]clockwork.Timer),
	}
	if d.clock == nil {
		d.clock = clockwork.NewRealClock()
	}
	if d.logger == nil {
		d.logger = slog.Default().With("component", "broadcast")
	}
	if d.metrics == nil {
		d.metrics = metrics.NewMetricsForTesting()
	}
	if d.settings.DefaultPopulation <= 0 {
		d.settings.DefaultPopulation = 50000
	}

	workers := opts.Workers
	if workers.Count < 1 {
		workers.Count = 1
	}
	d.pool = worker.NewWorkerPool(workers.Count, workers.BufferSize, d.deliver)
	return d
}

// Start launches the delivery workers. Deliveries run under ctx.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	d.runCtx = ctx
	d.mu.Unlock()
	d.pool.Start(ctx)
}

// Stop cancels scheduled deliveries that have not fired yet and waits for
// the workers. Broadcasts whose timer was stopped stay pending.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	for id, t := range d.pending {
		t.Stop()
		delete(d.pending, id)
	}
	d.mu.Unlock()
	d.pool.Stop()
}

// Dispatch validates and stores a broadcast, then schedules its delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, regionID, message string, channels []string) (*models.Broadcast, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	chs, err := normalizeChannels(channels)
	if err != nil {
		return nil, err
	}

	recipients, err := d.recipients(ctx, regionID)
	if err != nil {
		return nil, err
	}

	now := d.clock.Now().UTC()
	if err := d.checkDuplicate(ctx, regionID, message, chs, now); err != nil {
		return nil, err
	}

	b := &models.Broadcast{
		ID:             uuid.NewString(),
		RegionID:       regionID,
		Message:        message,
		Channels:       chs,
		RecipientCount: recipients,
		SentAt:         now,
		Status:         models.DeliveryPending,
	}
	if err := d.repo.AddBroadcast(ctx, b); err != nil {
		return nil, err
	}

	d.metrics.Broadcasts.WithLabelValues("dispatched").Inc()
	d.metrics.BroadcastRecipients.Add(float64(recipients))
	d.logger.Info("broadcast dispatched", "broadcast_id", b.ID, "region_id", regionID,
		"channels", b.ChannelNames(), "recipients", recipients)
	d.record(ctx, regionID, fmt.Sprintf("Broadcast sent via %s to ~%d recipients",
		strings.Join(b.ChannelNames(), ", "), recipients), b)
	d.publish(models.EventBroadcastDispatched, b)

	if err := d.schedule(ctx, b.ID); err != nil {
		d.logger.Error("failed to schedule delivery", "broadcast_id", b.ID, "error", err)
	}
	return b, nil
}

// Abandon cancels a pending broadcast. Cancelled is terminal.
func (d *Dispatcher) Abandon(ctx context.Context, id string) (*models.Broadcast, error) {
	b, err := d.repo.GetBroadcast(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("abandon %s: %w", id, ErrBroadcastNotFound)
	}

	d.mu.Lock()
	if t, ok := d.pending[id]; ok {
		t.Stop()
		delete(d.pending, id)
	}
	d.mu.Unlock()

	ok, err := d.repo.TransitionBroadcast(ctx, id, models.DeliveryPending, models.DeliveryCancelled, d.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("abandon %s: %w", id, ErrBroadcastNotPending)
	}
	b.Status = models.DeliveryCancelled

	d.metrics.Broadcasts.WithLabelValues("cancelled").Inc()
	d.logger.Info("broadcast abandoned", "broadcast_id", id, "region_id", b.RegionID)
	d.record(ctx, b.RegionID, "Broadcast abandoned", b)
	d.publish(models.EventBroadcastCancelled, b)
	return b, nil
}

func (d *Dispatcher) Get(ctx context.Context, id string) (*models.Broadcast, error) {
	b, err := d.repo.GetBroadcast(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("get %s: %w", id, ErrBroadcastNotFound)
	}
	return b, nil
}

// List returns broadcasts newest first, optionally for one region.
func (d *Dispatcher) List(ctx context.Context, regionID string, limit int) ([]models.Broadcast, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return d.repo.ListBroadcasts(ctx, repository.BroadcastFilter{RegionID: regionID, Limit: limit})
}

func (d *Dispatcher) recipients(ctx context.Context, regionID string) (int64, error) {
	region, err := d.regions.Get(ctx, regionID)
	if err != nil {
		return 0, err
	}
	if region == nil {
		if !d.settings.AllowUnknownRegion {
			return 0, fmt.Errorf("%w: %s", ErrUnknownRegion, regionID)
		}
		return d.settings.DefaultPopulation, nil
	}
	if region.Population <= 0 {
		return d.settings.DefaultPopulation, nil
	}
	return region.Population, nil
}

func (d *Dispatcher) checkDuplicate(ctx context.Context, regionID, message string, chs []models.Channel, now time.Time) error {
	if d.settings.DedupWindow <= 0 {
		return nil
	}
	since := now.Add(-d.settings.DedupWindow)
	recent, err := d.repo.ListBroadcasts(ctx, repository.BroadcastFilter{
		RegionID: regionID,
		Since:    &since,
		Message:  message,
	})
	if err != nil {
		return err
	}
	for _, b := range recent {
		if b.Status != models.DeliveryCancelled && sameChannels(b.Channels, chs) {
			return fmt.Errorf("%w: %s", ErrDuplicateBroadcast, b.ID)
		}
	}
	return nil
}

func (d *Dispatcher) schedule(ctx context.Context, id string) error {
	if d.settings.Delay <= 0 {
		return d.pool.Submit(ctx, deliveryJob{broadcastID: id})
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[id] = d.clock.AfterFunc(d.settings.Delay, func() {
		d.mu.Lock()
		if _, ok := d.pending[id]; !ok {
			d.mu.Unlock()
			return
		}
		delete(d.pending, id)
		runCtx := d.runCtx
		d.mu.Unlock()

		if err := d.pool.Submit(runCtx, deliveryJob{broadcastID: id}); err != nil {
			d.logger.Warn("delivery not queued", "broadcast_id", id, "error", err)
		}
	})
	return nil
}

// deliver runs on a pool worker. Every notifier must succeed; a failure
// leaves the broadcast pending.
func (d *Dispatcher) deliver(ctx context.Context, job deliveryJob) error {
	b, err := d.repo.GetBroadcast(ctx, job.broadcastID)
	if err != nil {
		return err
	}
	if b == nil || b.Status != models.DeliveryPending {
		return nil
	}

	for _, n := range d.notifiers {
		if err := n.Notify(ctx, *b); err != nil {
			d.metrics.Broadcasts.WithLabelValues("failed").Inc()
			return fmt.Errorf("deliver broadcast %s: %w", b.ID, err)
		}
	}

	now := d.clock.Now().UTC()
	ok, err := d.repo.TransitionBroadcast(ctx, b.ID, models.DeliveryPending, models.DeliveryDelivered, now)
	if err != nil {
		return err
	}
	if !ok {
		d.logger.Info("broadcast abandoned during delivery", "broadcast_id", b.ID)
		return nil
	}
	b.Status = models.DeliveryDelivered
	b.DeliveredAt = &now

	d.metrics.Broadcasts.WithLabelValues("delivered").Inc()
	d.metrics.DeliveryDuration.Observe(now.Sub(b.SentAt).Seconds())
	d.logger.Info("broadcast delivered", "broadcast_id", b.ID, "region_id", b.RegionID)
	d.publish(models.EventBroadcastDelivered, b)
	return nil
}

func (d *Dispatcher) record(ctx context.Context, regionID, summary string, b *models.Broadcast) {
	if d.activity == nil {
		return
	}
	if err := d.activity.Record(ctx, regionID, summary, b); err != nil {
		d.logger.Warn("failed to record broadcast activity", "region_id", regionID, "error", err)
	}
}

func (d *Dispatcher) publish(t models.EventType, b *models.Broadcast) {
	if d.publisher == nil {
		return
	}
	snapshot := *b
	snapshot.Channels = slices.Clone(b.Channels)
	d.publisher.Publish(&models.Event{
		Type:      t,
		RegionID:  b.RegionID,
		Broadcast: &snapshot,
		At:        d.clock.Now().UTC(),
	})
}

// normalizeChannels parses channel names and drops repeats, keeping the
// first occurrence order.
func normalizeChannels(names []string) ([]models.Channel, error) {
	if len(names) == 0 {
		return nil, ErrNoChannelSelected
	}
	out := make([]models.Channel, 0, len(names))
	for _, name := range names {
		ch, err := models.ParseChannel(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidChannel, name)
		}
		if !slices.Contains(out, ch) {
			out = append(out, ch)
		}
	}
	return out, nil
}

func sameChannels(a, b []models.Channel) bool {
	if len(a) != len(b) {
		return false
	}
	for _, ch := range a {
		if !slices.Contains(b, ch) {
			return false
		}
	}
	return true
}
