package broadcast

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mr1hm/go-disaster-risk/internal/config"
	"github.com/mr1hm/go-disaster-risk/internal/history"
	"github.com/mr1hm/go-disaster-risk/internal/models"
	"github.com/mr1hm/go-disaster-risk/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type regionMap map[string]*models.Region

func (r regionMap) Get(_ context.Context, id string) (*models.Region, error) {
	return r[id], nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Broadcast
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, b models.Broadcast) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, b)
	return n.err
}

func (n *recordingNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.EventType
}

func (p *recordingPublisher) Publish(e *models.Event) {
	p.mu.Lock()
	p.events = append(p.events, e.Type)
	p.mu.Unlock()
}

func (p *recordingPublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.EventType(nil), p.events...)
}

type fixture struct {
	dispatcher *Dispatcher
	repo       *repository.SQLiteDB
	clock      *clockwork.FakeClock
	notifier   *recordingNotifier
	publisher  *recordingPublisher
	activity   *history.MemoryLedger
}

var testRegions = regionMap{
	"dhaka":   {ID: "dhaka", Name: "Dhaka", Population: 120000},
	"sylhet":  {ID: "sylhet", Name: "Sylhet", Population: 0},
	"khulna":  {ID: "khulna", Name: "Khulna", Population: 80000},
	"barisal": {ID: "barisal", Name: "Barisal", Population: 40000},
}

func defaultBroadcastConfig() config.BroadcastConfig {
	return config.BroadcastConfig{
		Delay:             2 * time.Second,
		DefaultPopulation: 50000,
	}
}

func newFixture(t *testing.T, settings config.BroadcastConfig) *fixture {
	t.Helper()
	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	notifier := &recordingNotifier{}
	pub := &recordingPublisher{}
	ledger := history.NewMemoryLedger(history.DefaultCap)

	d := NewDispatcher(db, testRegions, Options{
		Settings:  settings,
		Workers:   config.WorkerConfig{Count: 2, BufferSize: 10},
		Notifiers: []Notifier{notifier},
		Activity:  history.NewRecorder(ledger, models.HistoryKindActivity, clock),
		Publisher: pub,
		Clock:     clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})

	return &fixture{dispatcher: d, repo: db, clock: clock, notifier: notifier, publisher: pub, activity: ledger}
}

func (f *fixture) status(id string) models.DeliveryStatus {
	b, err := f.dispatcher.Get(context.Background(), id)
	if err != nil {
		return ""
	}
	return b.Status
}

func TestDispatch_Validation(t *testing.T) {
	f := newFixture(t, defaultBroadcastConfig())
	ctx := context.Background()

	tests := []struct {
		name     string
		region   string
		message  string
		channels []string
		want     error
	}{
		{"empty message", "dhaka", "", []string{"sms"}, ErrEmptyMessage},
		{"whitespace message", "dhaka", "   \n", []string{"sms"}, ErrEmptyMessage},
		{"message too long", "dhaka", strings.Repeat("é", MaxMessageLength+1), []string{"sms"}, ErrMessageTooLong},
		{"no channels", "dhaka", "Evacuate now", nil, ErrNoChannelSelected},
		{"invalid channel", "dhaka", "Evacuate now", []string{"sms", "pigeon"}, ErrInvalidChannel},
		{"unknown region", "atlantis", "Evacuate now", []string{"sms"}, ErrUnknownRegion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.dispatcher.Dispatch(ctx, tt.region, tt.message, tt.channels)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	list, err := f.dispatcher.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.publisher.types())
}

func TestDispatch_MessageAtLimit(t *testing.T) {
	f := newFixture(t, defaultBroadcastConfig())
	_, err := f.dispatcher.Dispatch(context.Background(), "dhaka", strings.Repeat("é", MaxMessageLength), []string{"app"})
	assert.NoError(t, err)
}

func TestDispatch_RecipientsAndChannels(t *testing.T) {
	ctx := context.Background()

	t.Run("population and channel dedup", func(t *testing.T) {
		f := newFixture(t, defaultBroadcastConfig())
		b, err := f.dispatcher.Dispatch(ctx, "dhaka", "Move to shelters", []string{"sms", "SMS", "email", "sms"})
		require.NoError(t, err)
		assert.Equal(t, []models.Channel{models.ChannelSMS, models.ChannelEmail}, b.Channels)
		assert.Equal(t, int64(120000), b.RecipientCount)
		assert.Equal(t, models.DeliveryPending, b.Status)
		assert.Nil(t, b.DeliveredAt)
	})

	t.Run("zero population uses default", func(t *testing.T) {
		f := newFixture(t, defaultBroadcastConfig())
		b, err := f.dispatcher.Dispatch(ctx, "sylhet", "Move to shelters", []string{"app"})
		require.NoError(t, err)
		assert.Equal(t, int64(50000), b.RecipientCount)
	})

	t.Run("unknown region allowed", func(t *testing.T) {
		settings := defaultBroadcastConfig()
		settings.AllowUnknownRegion = true
		f := newFixture(t, settings)
		b, err := f.dispatcher.Dispatch(ctx, "atlantis", "Move to shelters", []string{"app"})
		require.NoError(t, err)
		assert.Equal(t, int64(50000), b.RecipientCount)
	})
}

func TestDispatch_DeliversAfterDelay(t *testing.T) {
	f := newFixture(t, defaultBroadcastConfig())
	ctx := context.Background()

	b, err := f.dispatcher.Dispatch(ctx, "dhaka", "Move to shelters", []string{"sms", "app"})
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	assert.Equal(t, models.DeliveryPending, f.status(b.ID))
	assert.Zero(t, f.notifier.calls())

	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return f.status(b.ID) == models.DeliveryDelivered
	}, time.Second, 5*time.Millisecond)

	got, err := f.dispatcher.Get(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeliveredAt)
	assert.Equal(t, 1, f.notifier.calls())
	assert.Equal(t, []models.EventType{
		models.EventBroadcastDispatched,
		models.EventBroadcastDelivered,
	}, f.publisher.types())

	entries, err := f.activity.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Summary, "sms, app")
}

func TestDispatch_NoDelay(t *testing.T) {
	settings := defaultBroadcastConfig()
	settings.Delay = 0
	f := newFixture(t, settings)

	b, err := f.dispatcher.Dispatch(context.Background(), "khulna", "All clear", []string{"email"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.status(b.ID) == models.DeliveryDelivered
	}, time.Second, 5*time.Millisecond)
}

func TestAbandon(t *testing.T) {
	f := newFixture(t, defaultBroadcastConfig())
	ctx := context.Background()

	b, err := f.dispatcher.Dispatch(ctx, "dhaka", "Move to shelters", []string{"sms"})
	require.NoError(t, err)

	cancelled, err := f.dispatcher.Abandon(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryCancelled, cancelled.Status)

	f.clock.Advance(5 * time.Second)
	// Give a stray delivery a chance to run; none should.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.notifier.calls())
	assert.Equal(t, models.DeliveryCancelled, f.status(b.ID))

	_, err = f.dispatcher.Abandon(ctx, b.ID)
	assert.ErrorIs(t, err, ErrBroadcastNotPending)

	_, err = f.dispatcher.Abandon(ctx, "missing")
	assert.ErrorIs(t, err, ErrBroadcastNotFound)

	assert.Equal(t, []models.EventType{
		models.EventBroadcastDispatched,
		models.EventBroadcastCancelled,
	}, f.publisher.types())
}

func TestAbandon_AfterDelivery(t *testing.T) {
	settings := defaultBroadcastConfig()
	settings.Delay = 0
	f := newFixture(t, settings)
	ctx := context.Background()

	b, err := f.dispatcher.Dispatch(ctx, "dhaka", "Move to shelters", []string{"sms"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.status(b.ID) == models.DeliveryDelivered
	}, time.Second, 5*time.Millisecond)

	_, err = f.dispatcher.Abandon(ctx, b.ID)
	assert.ErrorIs(t, err, ErrBroadcastNotPending)
}

func TestDispatch_NotifierFailureLeavesPending(t *testing.T) {
	settings := defaultBroadcastConfig()
	settings.Delay = 0
	f := newFixture(t, settings)
	f.notifier.err = errors.New("gateway down")

	b, err := f.dispatcher.Dispatch(context.Background(), "dhaka", "Move to shelters", []string{"sms"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.notifier.calls() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, models.DeliveryPending, f.status(b.ID))
}

func TestDispatch_Dedup(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled by default", func(t *testing.T) {
		f := newFixture(t, defaultBroadcastConfig())
		_, err := f.dispatcher.Dispatch(ctx, "dhaka", "Move to shelters", []string{"sms"})
		require.NoError(t, err)
		_, err = f.dispatcher.Dispatch(ctx, "dhaka", "Move to shelters", []string{"sms"})
		assert.NoError(t, err)
	})

	t.Run("window", func(t *testing.T) {
		settings := defaultBroadcastConfig()
		settings.DedupWindow = 10 * time.Minute
		f := newFixture(t, settings)

		_, err := f.dispatcher.Dispatch(ctx, "dhaka", "Move to shelters", []string{"sms", "app"})
		require.NoError(t, err)

		_, err = f.dispatcher.Dispatch(ctx, "dhaka", "Move to shelters", []string{"app", "sms"})
		assert.ErrorIs(t, err, ErrDuplicateBroadcast)

		_, err = f.dispatcher.Dispatch(ctx, "dhaka", "Move to shelters", []string{"sms"})
		assert.NoError(t, err, "different channel set is not a duplicate")

		_, err = f.dispatcher.Dispatch(ctx, "khulna", "Move to shelters", []string{"sms", "app"})
		assert.NoError(t, err, "different region is not a duplicate")

		f.clock.Advance(11 * time.Minute)
		_, err = f.dispatcher.Dispatch(ctx, "dhaka", "Move to shelters", []string{"sms", "app"})
		assert.NoError(t, err)
	})
}

func TestList(t *testing.T) {
	f := newFixture(t, defaultBroadcastConfig())
	ctx := context.Background()

	for _, region := range []string{"dhaka", "khulna", "dhaka"} {
		_, err := f.dispatcher.Dispatch(ctx, region, "Stay indoors", []string{"app"})
		require.NoError(t, err)
		f.clock.Advance(time.Millisecond)
	}

	all, err := f.dispatcher.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	dhaka, err := f.dispatcher.List(ctx, "dhaka", 0)
	require.NoError(t, err)
	assert.Len(t, dhaka, 2)

	limited, err := f.dispatcher.List(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "dhaka", limited[0].RegionID)

	_, err = f.dispatcher.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrBroadcastNotFound)
}
