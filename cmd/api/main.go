package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventgate/internal/auth"
	"eventgate/internal/checkin"
	"eventgate/internal/config"
	"eventgate/internal/console"
	"eventgate/internal/directory"
	"eventgate/internal/handler"
	"eventgate/internal/httpmiddleware"
	"eventgate/internal/metrics"
	"eventgate/internal/queue"
	"eventgate/internal/registration"
	"eventgate/internal/store"
	"eventgate/internal/tally"
	"eventgate/internal/ticket"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir, db := openDirectory(ctx, cfg)
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()

	q, counter, local := openQueue(cfg, redisClient)
	if local {
		// no separate worker can see an in-process queue
		go func() {
			if err := tally.Run(ctx, q, counter); err != nil && ctx.Err() == nil {
				log.Printf("tally consumer stopped: %v", err)
			}
		}()
	}

	deps := handler.Deps{
		Events:  q,
		Tally:   counter,
		Metrics: metrics.New(prometheus.DefaultRegisterer),
		Operators: handler.Operators{
			Issuer:     cfg.JWTIssuer,
			SigningKey: cfg.JWTSigningKey,
			TTL:        cfg.OperatorTTL,
			Secret:     cfg.OperatorSecret,
		},
	}
	if cfg.OperatorSecret == "" {
		log.Println("WARNING: OPERATOR_SECRET not set, anyone can register a door operator")
	}
	if redisClient != nil {
		deps.RedisHealthy = redisClient.Healthy
	}
	attachDirectory(&deps, cfg, dir)

	r := handler.NewRouter(handler.New(deps), handler.RouterOptions{
		Middleware: []gin.HandlerFunc{
			gin.Recovery(),
			gin.LoggerWithConfig(gin.LoggerConfig{
				SkipPaths: []string{"/healthz", "/metrics"},
			}),
			cors.New(cors.Config{
				AllowOrigins:  []string{"*"},
				AllowMethods:  []string{"GET", "POST", "OPTIONS"},
				AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
				ExposeHeaders: []string{"Content-Length"},
				MaxAge:        12 * time.Hour,
			}),
			securityHeaders(),
			httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware(),
		},
		Operator:      auth.OperatorAuth(cfg.JWTSigningKey, cfg.JWTIssuer),
		SupportsStaff: cfg.SupportsStaff,
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting %s on :%s", cfg.Event.Name, cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// openDirectory returns nil only when no store is configured or the driver
// cannot be opened; the server then reports 503. An unreachable database is
// kept: database/sql reconnects on the next query and /healthz reports the
// outage meanwhile.
func openDirectory(ctx context.Context, cfg config.App) (directory.Store, *store.DB) {
	if !cfg.StoreConfigured() {
		return nil, nil
	}
	if cfg.StoreDriver == "memory" {
		log.Println("using in-memory directory store; data is lost on restart")
		return directory.NewMemory(), nil
	}

	db, err := store.NewDB(ctx, cfg.StoreDriver, cfg.DatabaseURL)
	if db == nil {
		log.Printf("WARNING: cannot open %s store: %v", cfg.StoreDriver, err)
		return nil, nil
	}
	if err != nil {
		log.Printf("warning: db not reachable yet: %v", err)
	}
	if cfg.AutoMigrate {
		if err != nil {
			go migrateUntilDone(ctx, db, migrateRetry)
		} else if merr := directory.Migrate(ctx, db.Client, db.Driver); merr != nil {
			log.Printf("warning: schema migration failed: %v", merr)
			go migrateUntilDone(ctx, db, migrateRetry)
		}
	}
	return directory.NewRepository(db.Client), db
}

const migrateRetry = 5 * time.Second

// migrateUntilDone retries the schema bootstrap until it succeeds or ctx ends.
func migrateUntilDone(ctx context.Context, db *store.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if err := directory.Migrate(ctx, db.Client, db.Driver); err != nil {
			log.Printf("schema migration retry: %v", err)
			continue
		}
		log.Println("schema migration done")
		return
	}
}

// attachDirectory wires the workflow services onto deps. A nil dir leaves
// them unset so their routes answer 503.
func attachDirectory(deps *handler.Deps, cfg config.App, dir directory.Store) {
	if dir == nil {
		log.Println("WARNING: directory store not configured, workflow routes will answer 503")
		return
	}
	deps.Registration = registration.NewService(dir, ticket.NewGenerator(cfg.TicketPrefix), cfg.Event, registration.Options{
		RequireAuthorization: cfg.RequireAuthorization,
		SupportsStaff:        cfg.SupportsStaff,
	})
	deps.Checkin = checkin.NewService(dir, checkin.Options{SupportsStaff: cfg.SupportsStaff})
	deps.Console = console.NewService(dir)
	deps.StoreHealthy = func(ctx context.Context) bool { return dir.Ping(ctx) == nil }
}

// openQueue picks the event queue and the tally store /stats reads. local
// reports that the queue lives in this process and must be consumed here.
func openQueue(cfg config.App, redisClient *store.Redis) (q queue.Queue, counter tally.Counter, local bool) {
	switch cfg.QueueBackend {
	case "redis", "amqp":
		if redisClient == nil {
			log.Printf("WARNING: QUEUE_BACKEND=%s without REDIS_ADDR, using memory queue", cfg.QueueBackend)
			break
		}
		counter = tally.NewRedis(redisClient.Client, "")
		if cfg.QueueBackend == "amqp" {
			return queue.NewAMQPQueue(cfg.AMQPURL, ""), counter, false
		}
		return queue.NewRedisQueue(redisClient.Client, ""), counter, false
	}
	return queue.NewInMemory(256), tally.NewMemory(), true
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
