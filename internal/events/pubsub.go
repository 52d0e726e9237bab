package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/fitpick/apiserver/config"
	"google.golang.org/api/option"
)

// PubSubPublisher wraps the Google Cloud Pub/Sub SDK client.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  string
}

// NewPubSubPublisher constructs a Pub/Sub publisher from config.
func NewPubSubPublisher(ctx context.Context, cfg config.EventsConfig) (*PubSubPublisher, error) {
	if strings.TrimSpace(cfg.PubSub.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("events topic is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.PubSub.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.PubSub.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	return &PubSubPublisher{
		client: client,
		topic:  cfg.Topic,
	}, nil
}

// Publish sends the event to the configured topic as JSON.
func (p *PubSubPublisher) Publish(ctx context.Context, event GenerationEvent) (string, error) {
	topic, err := p.ensureTopic(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return "", err
	}

	result := topic.Publish(ctx, &pubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"user_id": strconv.FormatInt(event.UserID, 10),
		},
	})
	return result.Get(ctx)
}

// Close closes the underlying Pub/Sub client.
func (p *PubSubPublisher) Close() error {
	return p.client.Close()
}

func (p *PubSubPublisher) ensureTopic(ctx context.Context) (*pubsub.Topic, error) {
	topic := p.client.Topic(p.topic)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateTopic(ctx, p.topic)
	}
	return topic, nil
}
