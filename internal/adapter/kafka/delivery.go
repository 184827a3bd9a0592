// Package kafka hands matched notifications off to the delivery service: one
// message per target device on the notifications topic. Downstream owns the
// actual push transport and its retry policy.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/vbuch/oboapp-sub005/internal/domain"
)

// Delivery publishes device notifications. It implements notify.Delivery.
type Delivery struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewDelivery creates a Kafka producer for the notifications topic.
func NewDelivery(brokers []string, topic string, logger *slog.Logger) *Delivery {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Delivery{writer: w, logger: logger}
}

// Deliver publishes one message per device and reports a per-device outcome.
// A failed publish marks only that device as failed; the matcher records the
// outcomes and downstream retries per its own policy.
func (d *Delivery) Deliver(ctx context.Context, match domain.NotificationMatch, msg domain.Message, devices []domain.Device) []domain.DeviceNotification {
	outcomes := make([]domain.DeviceNotification, 0, len(devices))

	for _, device := range devices {
		kmsg, err := serializeNotification(match, msg, device)
		if err == nil {
			err = d.writer.WriteMessages(ctx, kmsg)
		}

		outcome := domain.DeviceNotification{
			DeviceID:    device.ID,
			Delivered:   err == nil,
			AttemptedAt: domain.Now(),
		}
		if err != nil {
			outcome.Error = err.Error()
			d.logger.Warn("device delivery failed",
				"match_id", match.ID, "device_id", device.ID, "error", err)
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// Close flushes and closes the producer.
func (d *Delivery) Close() error {
	return d.writer.Close()
}

// notificationPayload is the wire format consumed by the delivery service.
type notificationPayload struct {
	MatchID     string   `json:"matchId"`
	MessageID   string   `json:"messageId"`
	InterestID  string   `json:"interestId"`
	UserID      string   `json:"userId"`
	DeviceToken string   `json:"deviceToken"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Categories  []string `json:"categories"`
	DistanceM   float64  `json:"distance"`
	Locality    string   `json:"locality"`
}

// serializeNotification marshals one device notification into a Kafka
// message keyed by the match ID, so retries for the same match land in the
// same partition.
func serializeNotification(match domain.NotificationMatch, msg domain.Message, device domain.Device) (kafkago.Message, error) {
	categories := make([]string, len(msg.Categories))
	for i, c := range msg.Categories {
		categories[i] = string(c)
	}

	payload := notificationPayload{
		MatchID:     match.ID,
		MessageID:   match.MessageID,
		InterestID:  match.InterestID,
		UserID:      match.UserID,
		DeviceToken: device.Token,
		Title:       titleFor(msg),
		Body:        msg.Text,
		Categories:  categories,
		DistanceM:   match.DistanceM,
		Locality:    msg.Locality,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize notification: %w", err)
	}

	return kafkago.Message{
		Key:   []byte(match.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "message_id", Value: []byte(match.MessageID)},
			{Key: "locality", Value: []byte(msg.Locality)},
			{Key: "matched_at", Value: []byte(match.NotifiedAt.Format(time.RFC3339))},
		},
	}, nil
}

// titleFor picks the push title: the first denormalized address when one
// exists, otherwise the source name.
func titleFor(msg domain.Message) string {
	if len(msg.Addresses) > 0 {
		return msg.Addresses[0]
	}
	return msg.Source
}
