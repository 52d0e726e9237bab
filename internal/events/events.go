package events

import (
	"context"
	"fmt"
	"time"

	"github.com/fitpick/apiserver/config"
)

// GenerationEvent is emitted after a recommendation has been persisted.
type GenerationEvent struct {
	OutfitID    int64     `json:"outfit_id"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
	Season      string    `json:"season"`
	Event       string    `json:"event"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Publisher delivers generation events to a broker. Delivery is
// best-effort; the generation row is the system of record.
type Publisher interface {
	Publish(ctx context.Context, event GenerationEvent) (string, error)
	Close() error
}

// New constructs the configured broker backend. An empty backend name
// disables event publishing and returns a nil Publisher.
func New(ctx context.Context, cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		return NewRabbitMQPublisher(cfg)
	case "pubsub":
		return NewPubSubPublisher(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}
