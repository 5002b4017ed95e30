package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Consumer drains the ticket.validated queue and appends one line per
// event to <dir>/validations.log.
type Consumer struct {
	url string
	dir string
	log *logrus.Logger
}

func NewConsumer(url, dir string, logger *logrus.Logger) *Consumer {
	return &Consumer{url: url, dir: dir, log: logger}
}

// Run connects to RabbitMQ and consumes until ctx is cancelled,
// reconnecting with exponential backoff.  Messages that fail to process
// are rejected without requeue so the loop keeps going.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.WithError(err).Warnf("validation-consumer: dial failed; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WithError(err).Warn("validation-consumer: consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.WithError(err).Warn("validation-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(ValidationQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(ValidationQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(d.Body); err != nil {
				c.log.WithError(err).Warn("validation-consumer: handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(body []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(c.dir, "validations.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	return writeEvent(f, body)
}

func writeEvent(w io.Writer, body []byte) error {
	var ev ValidationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if _, err := io.WriteString(w, FormatEvent(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatEvent renders ev as a single log line.
func FormatEvent(ev ValidationEvent) string {
	svc := "-"
	if ev.ServiceID != nil {
		svc = *ev.ServiceID
	}
	remaining := "-"
	if ev.Remaining != nil {
		remaining = fmt.Sprint(*ev.Remaining)
	}
	reason := ev.Reason
	if reason == "" {
		reason = "-"
	}
	user := ev.Username
	if user == "" {
		user = "anon"
	}
	return fmt.Sprintf("[%s] Ticket validation %s | reason=%s | event_id=%s | locator=%q | service=%q | ticket=%q | ref=%q | remaining=%s | user=%q\n",
		ev.ValidatedAt, ev.Result, reason, ev.EventID, ev.Locator, svc, ev.TicketKey, ev.Reference, remaining, user)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
