package events

//go:generate mockgen -source=events.go -destination=mock_events.go -package=events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pigeon-auction/internal/models"
	"pigeon-auction/utils"
)

const (
	EventBidAccepted = "BidAccepted"
	eventVersion     = 1
)

// Publisher announces accepted bids to interested parties
type Publisher interface {
	PublishBidAccepted(ctx context.Context, evt models.BidAccepted) error
}

// Envelope wraps every event written to the bus
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewBidAcceptedEnvelope builds the envelope for an accepted bid, correlated by auction id
func NewBidAcceptedEnvelope(producer string, evt models.BidAccepted) (Envelope, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s payload: %w", EventBidAccepted, err)
	}
	return Envelope{
		EventID:       utils.GenerateID(),
		EventType:     EventBidAccepted,
		EventVersion:  eventVersion,
		OccurredAt:    evt.AcceptedAt,
		Producer:      producer,
		CorrelationID: evt.AuctionID,
		Payload:       payload,
	}, nil
}

// UnwrapPayload decodes an envelope payload into T
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("events: decode payload: %w", err)
	}
	return t, nil
}

// Nop discards every event
type Nop struct{}

func (Nop) PublishBidAccepted(context.Context, models.BidAccepted) error { return nil }

// Multi fans an event out to several publishers. Every publisher is called
// even if an earlier one fails; failures are joined.
type Multi []Publisher

func (m Multi) PublishBidAccepted(ctx context.Context, evt models.BidAccepted) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishBidAccepted(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Publisher = Nop{}
	_ Publisher = Multi(nil)
)
