package events

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/fitpick/apiserver/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQPublisher wraps a RabbitMQ connection/channel pair.
type RabbitMQPublisher struct {
	conn            *amqp.Connection
	channel         *amqp.Channel
	queue           string
	queueDurable    bool
	queueAutoDelete bool
}

// NewRabbitMQPublisher constructs a RabbitMQ publisher from config.
func NewRabbitMQPublisher(cfg config.EventsConfig) (*RabbitMQPublisher, error) {
	if strings.TrimSpace(cfg.RabbitMQ.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("events topic is required")
	}

	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &RabbitMQPublisher{
		conn:            conn,
		channel:         ch,
		queue:           cfg.Topic,
		queueDurable:    cfg.RabbitMQ.QueueDurable,
		queueAutoDelete: cfg.RabbitMQ.QueueAutoDelete,
	}, nil
}

// Publish sends the event to the configured queue as JSON.
func (r *RabbitMQPublisher) Publish(ctx context.Context, event GenerationEvent) (string, error) {
	if _, err := r.channel.QueueDeclare(
		r.queue,
		r.queueDurable,
		r.queueAutoDelete,
		false,
		false,
		nil,
	); err != nil {
		return "", err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return "", err
	}

	messageID := newMessageID()
	err = r.channel.PublishWithContext(ctx, "", r.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   messageID,
		Headers: amqp.Table{
			"user_id": strconv.FormatInt(event.UserID, 10),
		},
		Body: body,
	})
	if err != nil {
		return "", err
	}
	return messageID, nil
}

// Close closes the underlying channel and connection.
func (r *RabbitMQPublisher) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func newMessageID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}
