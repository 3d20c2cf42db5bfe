package models

import (
	"fmt"
	"strings"
	"time"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelApp   Channel = "app"
	ChannelEmail Channel = "email"
)

func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sms":
		return ChannelSMS, nil
	case "app":
		return ChannelApp, nil
	case "email":
		return ChannelEmail, nil
	default:
		return "", fmt.Errorf("unknown channel %q", s)
	}
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	// DeliveryCancelled is terminal: an abandoned broadcast never transitions again.
	DeliveryCancelled DeliveryStatus = "cancelled"
)

type Broadcast struct {
	ID             string         `json:"id"`
	RegionID       string         `json:"region_id"`
	Message        string         `json:"message"`
	Channels       []Channel      `json:"channels"`
	RecipientCount int64          `json:"recipient_count"`
	SentAt         time.Time      `json:"sent_at"`
	Status         DeliveryStatus `json:"status"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
}

func (b *Broadcast) ChannelNames() []string {
	out := make([]string, len(b.Channels))
	for i, c := range b.Channels {
		out[i] = string(c)
	}
	return out
}
