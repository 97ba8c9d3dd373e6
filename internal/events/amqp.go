package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fxbot/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/rabbitmq/amqp091-go"
)

const Exchange = "fxbot.events"

// AMQP публикует события в durable topic exchange, routing key = тип события.
type AMQP struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NewAMQP connects with a few retries and declares the exchange.
func NewAMQP(uri string) (*AMQP, error) {
	var (
		conn *amqp091.Connection
		err  error
	)
	for i := 0; i < 5; i++ {
		conn, err = amqp091.Dial(uri)
		if err == nil {
			break
		}
		logger.Warn("[AMQP] connect attempt %d failed: %v", i+1, err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("amqp connect: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		Exchange,
		amqp091.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}
	return &AMQP{conn: conn, channel: ch}, nil
}

func (a *AMQP) Publish(ctx context.Context, ev Event) error {
	msg, err := encode(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.channel.PublishWithContext(ctx, Exchange, ev.Type, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func encode(ev Event) (amqp091.Publishing, error) {
	body, err := sonic.Marshal(ev)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal event %s: %w", ev.Type, err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.Time,
		Type:         ev.Type,
		Body:         body,
	}, nil
}

func (a *AMQP) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.channel != nil {
		_ = a.channel.Close()
	}
	if a.conn != nil {
		_ = a.conn.Close()
	}
}
