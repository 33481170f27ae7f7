package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"eventgate/internal/config"
	"eventgate/internal/queue"
	"eventgate/internal/store"
	"eventgate/internal/tally"
)

// Worker consumes published events and keeps the live tallies in Redis that
// GET /stats reports.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	if redisClient == nil {
		log.Fatal("REDIS_ADDR is required for the worker")
	}
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable yet, tallies will retry", cfg.RedisAddr)
	}

	var q queue.Queue
	switch cfg.QueueBackend {
	case "redis":
		q = queue.NewRedisQueue(redisClient.Client, "")
	case "amqp":
		aq := queue.NewAMQPQueue(cfg.AMQPURL, "")
		defer aq.Close()
		q = aq
	default:
		log.Fatalf("QUEUE_BACKEND=%q is in-process; the api server tallies it itself", cfg.QueueBackend)
	}

	log.Printf("worker started on %s queue, waiting for events...", cfg.QueueBackend)
	if err := tally.Run(ctx, q, tally.NewRedis(redisClient.Client, "")); err != nil && ctx.Err() == nil {
		log.Printf("tally run ended: %v", err)
	}
	log.Println("worker stopped")
}
