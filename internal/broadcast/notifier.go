package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/mr1hm/go-disaster-risk/internal/config"
	"github.com/mr1hm/go-disaster-risk/internal/models"
)

// Notifier hands a broadcast to a delivery backend. It is called once per
// broadcast after the dispatch delay and must cover every channel on it.
type Notifier interface {
	Notify(ctx context.Context, b models.Broadcast) error
}

// LogNotifier writes deliveries to the structured log. It stands in for a
// real gateway in local setups.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("notifier", "log")}
}

func (n *LogNotifier) Notify(ctx context.Context, b models.Broadcast) error {
	for _, ch := range b.Channels {
		n.logger.InfoContext(ctx, "broadcast delivered",
			"broadcast_id", b.ID,
			"region_id", b.RegionID,
			"channel", ch,
			"recipients", b.RecipientCount,
		)
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaNotifier publishes one message per channel, keyed by broadcast ID so
// all channels of a broadcast land on the same partition.
type KafkaNotifier struct {
	writer messageWriter
}

func NewKafkaNotifier(cfg config.KafkaConfig) *KafkaNotifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaNotifier{writer: w}
}

func (n *KafkaNotifier) Notify(ctx context.Context, b models.Broadcast) error {
	msgs := make([]kafkago.Message, 0, len(b.Channels))
	for _, ch := range b.Channels {
		msg, err := serializeToMessage(b, ch)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish broadcast %s: %w", b.ID, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

type deliveryMessage struct {
	BroadcastID    string         `json:"broadcast_id"`
	RegionID       string         `json:"region_id"`
	Channel        models.Channel `json:"channel"`
	Message        string         `json:"message"`
	RecipientCount int64          `json:"recipient_count"`
	SentAt         time.Time      `json:"sent_at"`
}

func serializeToMessage(b models.Broadcast, ch models.Channel) (kafkago.Message, error) {
	data, err := json.Marshal(deliveryMessage{
		BroadcastID:    b.ID,
		RegionID:       b.RegionID,
		Channel:        ch,
		Message:        b.Message,
		RecipientCount: b.RecipientCount,
		SentAt:         b.SentAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize broadcast: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(b.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "channel", Value: []byte(ch)},
			{Key: "region_id", Value: []byte(b.RegionID)},
			{Key: "sent_at", Value: []byte(b.SentAt.Format(time.RFC3339))},
		},
	}, nil
}
