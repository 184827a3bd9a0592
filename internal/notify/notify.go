// Package notify decides which user interests must be told about each newly
// ingested message, records one NotificationMatch per (interest, message)
// pair, and hands off delivery.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/vbuch/oboapp-sub005/internal/domain"
	"github.com/vbuch/oboapp-sub005/internal/observability"
	"github.com/vbuch/oboapp-sub005/internal/storage"
)

// Delivery pushes a notification to a user's registered devices and reports
// a per-device outcome. Retry and backoff policy for delivery belongs to the
// implementation, not to the matcher.
type Delivery interface {
	Deliver(ctx context.Context, match domain.NotificationMatch, msg domain.Message, devices []domain.Device) []domain.DeviceNotification
}

// Result is the structured outcome of one matching run.
type Result struct {
	Matched          int
	AlreadyMatched   int
	Delivered        int
	DeliveryFailures int
}

// Matcher finds in-range interests for candidate messages.
type Matcher struct {
	interests storage.InterestStore
	matches   storage.MatchStore
	devices   storage.DeviceStore
	delivery  Delivery
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Matcher.
func New(
	interests storage.InterestStore,
	matches storage.MatchStore,
	devices storage.DeviceStore,
	delivery Delivery,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Matcher {
	return &Matcher{
		interests: interests,
		matches:   matches,
		devices:   devices,
		delivery:  delivery,
		logger:    logger,
		metrics:   metrics,
	}
}

// MatchAndNotify processes candidate messages. Interests are walked in
// creation order per message; a second run over the same candidates is a
// no-op because matches are keyed per (interest, message) pair. The returned
// error is non-nil only on context cancellation.
func (m *Matcher) MatchAndNotify(ctx context.Context, msgs []domain.Message) (Result, error) {
	var result Result

	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		interests, err := m.interests.ListByLocality(ctx, msg.Locality)
		if err != nil {
			m.logger.Error("list interests failed", "locality", msg.Locality, "error", err)
			continue
		}

		centroids := featureCentroids(msg)
		if !msg.CityWide && len(centroids) == 0 {
			// No usable geometry and not city-wide: nothing can match.
			continue
		}

		for _, interest := range interests {
			distance, ok := matchDistance(msg, centroids, interest)
			if !ok {
				continue
			}
			m.notifyInterest(ctx, msg, interest, distance, &result)
		}
	}

	return result, nil
}

// matchDistance reports whether the interest is in range and at what
// distance. City-wide messages match every interest in the locality at
// distance zero; otherwise the minimum centroid distance must be within the
// interest's radius, boundary inclusive.
func matchDistance(msg domain.Message, centroids []domain.LatLng, interest domain.Interest) (float64, bool) {
	if msg.CityWide {
		return 0, true
	}

	min := math.Inf(1)
	for _, c := range centroids {
		if d := domain.DistanceMeters(interest.Coordinates, c); d < min {
			min = d
		}
	}
	return min, min <= interest.RadiusM
}

func (m *Matcher) notifyInterest(ctx context.Context, msg domain.Message, interest domain.Interest, distance float64, result *Result) {
	match := domain.NotificationMatch{
		ID:         uuid.NewString(),
		UserID:     interest.UserID,
		InterestID: interest.ID,
		MessageID:  msg.ID,
		DistanceM:  math.Round(distance),
		NotifiedAt: domain.Now(),
	}

	err := m.matches.CreateIfAbsent(ctx, match)
	if errors.Is(err, storage.ErrAlreadyExists) {
		// Pair already recorded by an earlier run; never re-notify.
		result.AlreadyMatched++
		m.metrics.MatchesAlready.Inc()
		return
	}
	if err != nil {
		m.logger.Error("record match failed",
			"interest_id", interest.ID, "message_id", msg.ID, "error", err)
		return
	}

	result.Matched++
	m.metrics.MatchesCreated.Inc()

	m.deliver(ctx, match, msg, interest, result)
}

func (m *Matcher) deliver(ctx context.Context, match domain.NotificationMatch, msg domain.Message, interest domain.Interest, result *Result) {
	devices, err := m.devices.ListByUser(ctx, interest.UserID)
	if err != nil {
		m.logger.Error("list devices failed", "user_id", interest.UserID, "error", err)
		return
	}
	if len(devices) == 0 {
		return
	}

	outcomes := m.delivery.Deliver(ctx, match, msg, devices)

	notified := false
	for _, o := range outcomes {
		if o.Delivered {
			notified = true
			result.Delivered++
			m.metrics.DevicesDelivered.Inc()
		} else {
			result.DeliveryFailures++
			m.metrics.DeliveryFailures.Inc()
		}
	}

	if err := m.matches.RecordDelivery(ctx, match.ID, outcomes, notified); err != nil {
		m.logger.Error("record delivery failed", "match_id", match.ID, "error", err)
	}
}

// featureCentroids collects the centroid of every usable feature. Features
// with malformed geometry are skipped, matching the ingestor's tolerance.
func featureCentroids(msg domain.Message) []domain.LatLng {
	if msg.GeoJSON == nil {
		return nil
	}
	out := make([]domain.LatLng, 0, len(msg.GeoJSON.Features))
	for _, f := range msg.GeoJSON.Features {
		if c, ok := domain.Centroid(f.Geometry); ok {
			out = append(out, c)
		}
	}
	return out
}

// NopDelivery records every device as failed without sending anything.
// Used when the pipeline runs without a configured transport.
type NopDelivery struct{}

func (NopDelivery) Deliver(_ context.Context, _ domain.NotificationMatch, _ domain.Message, devices []domain.Device) []domain.DeviceNotification {
	out := make([]domain.DeviceNotification, 0, len(devices))
	for _, d := range devices {
		out = append(out, domain.DeviceNotification{
			DeviceID:    d.ID,
			Delivered:   false,
			Error:       "delivery disabled",
			AttemptedAt: domain.Now(),
		})
	}
	return out
}
