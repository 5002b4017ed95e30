package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher sends validation events to RabbitMQ over one long-lived
// connection and channel, dialled on first use and again after any
// failure.  Errors are logged and returned so the caller can choose to
// ignore them.
type Publisher struct {
	url string
	log *logrus.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url string, logger *logrus.Logger) *Publisher {
	return &Publisher{url: url, log: logger}
}

// PublishValidation publishes ev to the ticket.validated queue as a
// persistent JSON message.
func (p *Publisher) PublishValidation(ctx context.Context, ev ValidationEvent) error {
	pub, err := newPublishing(ev, time.Now().UTC())
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: marshal event failed")
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: connect failed")
		return err
	}
	if err := ch.PublishWithContext(ctx,
		"",                  // default exchange
		ValidationQueueName, // routing key = queue name
		false,               // mandatory
		false,               // immediate
		pub,
	); err != nil {
		p.log.WithError(err).Warn("rabbitmq: publish failed")
		p.reset()
		return err
	}
	return nil
}

// Close releases the connection.  The publisher redials if used again.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

// channel returns the open channel, dialling and declaring the queue when
// there is none.  p.mu must be held.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(
		ValidationQueueName, // name
		true,                // durable
		false,               // autoDelete
		false,               // exclusive
		false,               // noWait
		nil,                 // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func newPublishing(ev ValidationEvent, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    now,
		Body:         body,
	}, nil
}
