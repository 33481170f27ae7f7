// Package tally keeps live registration and door counts fed from the event
// queue.
package tally

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"eventgate/internal/queue"
)

// Stats is a snapshot of the counters, keyed "<event type>:<kind>", e.g.
// "checkin.redeemed:student".
type Stats map[string]int64

// Get reads one counter.
func (s Stats) Get(typ, kind string) int64 { return s[key(typ, kind)] }

// Counter stores tallies.
type Counter interface {
	Incr(ctx context.Context, typ, kind string) error
	Snapshot(ctx context.Context) (Stats, error)
}

func key(typ, kind string) string {
	if kind == "" {
		kind = "unknown"
	}
	return typ + ":" + kind
}

// Memory is a process-local Counter.
type Memory struct {
	mu     sync.Mutex
	counts Stats
}

func NewMemory() *Memory {
	return &Memory{counts: Stats{}}
}

func (m *Memory) Incr(ctx context.Context, typ, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key(typ, kind)]++
	return nil
}

func (m *Memory) Snapshot(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(Stats, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out, nil
}

// Redis keeps counters in a single hash so several workers and API
// instances share them.
type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, hashKey string) *Redis {
	if hashKey == "" {
		hashKey = "eventgate:tally"
	}
	return &Redis{client: client, key: hashKey}
}

func (r *Redis) Incr(ctx context.Context, typ, kind string) error {
	return r.client.HIncrBy(ctx, r.key, key(typ, kind), 1).Err()
}

func (r *Redis) Snapshot(ctx context.Context) (Stats, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read tally: %w", err)
	}
	out := make(Stats, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// Run applies queued events to c until the queue closes or ctx is done.
func Run(ctx context.Context, q queue.Queue, c Counter) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	for msg := range messages {
		ev, err := queue.Decode(msg)
		if err != nil {
			log.Printf("tally: skipping message: %v", err)
			continue
		}
		if err := c.Incr(ctx, msg.Type, ev.Kind); err != nil {
			log.Printf("tally: incr %s failed: %v", msg.Type, err)
		}
	}
	return ctx.Err()
}
