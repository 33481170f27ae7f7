package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPQueue publishes to and consumes from a durable RabbitMQ queue.
type AMQPQueue struct {
	url  string
	name string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPQueue dials lazily on first use.
func NewAMQPQueue(url, name string) *AMQPQueue {
	if name == "" {
		name = "eventgate.events"
	}
	return &AMQPQueue{url: url, name: name}
}

func (q *AMQPQueue) channel() (*amqp.Channel, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil && !q.ch.IsClosed() {
		return q.ch, nil
	}
	if q.conn == nil || q.conn.IsClosed() {
		conn, err := amqp.Dial(q.url)
		if err != nil {
			return nil, fmt.Errorf("dial broker: %w", err)
		}
		q.conn = conn
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(q.name, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	q.ch = ch
	return ch, nil
}

// Publish sends a persistent message to the queue.
func (q *AMQPQueue) Publish(ctx context.Context, msg Message) error {
	ch, err := q.channel()
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         msg.Type,
		Body:         msg.Body,
	})
}

// Consume delivers messages until ctx is done, reconnecting with backoff when
// the broker goes away. Deliveries are acked once handed to the reader.
func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		backoff := time.Second
		for ctx.Err() == nil {
			ch, err := q.channel()
			if err != nil {
				log.Printf("amqp: %v; retrying in %s", err, backoff)
				if !sleep(ctx, backoff) {
					return
				}
				if backoff < 30*time.Second {
					backoff *= 2
				}
				continue
			}
			backoff = time.Second
			if err := ch.Qos(50, 0, false); err != nil {
				log.Printf("amqp: set QoS failed: %v", err)
			}
			deliveries, err := ch.Consume(q.name, "", false, false, false, false, nil)
			if err != nil {
				log.Printf("amqp: consume: %v", err)
				sleep(ctx, 2*time.Second)
				continue
			}
			if !q.forward(ctx, deliveries, out) {
				return
			}
			log.Printf("amqp: deliveries channel closed; reconnecting")
		}
	}()
	return out, nil
}

func (q *AMQPQueue) forward(ctx context.Context, deliveries <-chan amqp.Delivery, out chan<- Message) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case d, ok := <-deliveries:
			if !ok {
				return true
			}
			select {
			case out <- Message{Type: d.Type, Body: d.Body}:
				_ = d.Ack(false)
			case <-ctx.Done():
				_ = d.Nack(false, true)
				return false
			}
		}
	}
}

// Close releases the broker connection.
func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
