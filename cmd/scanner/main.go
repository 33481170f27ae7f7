package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"eventgate/internal/checkin"
	"eventgate/internal/config"
	"eventgate/internal/directory"
	"eventgate/internal/gateclient"
	"eventgate/internal/scanner"
	"eventgate/internal/store"
)

// Scanner is a door-station CLI. It reads one code per line from stdin.
func main() {
	cfg := config.Load()

	gateway := flag.String("gateway", cfg.GatewayURL, "eventgate API base URL")
	token := flag.String("token", os.Getenv("OPERATOR_TOKEN"), "operator bearer token from POST /operators/register")
	operator := flag.String("operator", "", "operator name recorded when redeeming locally")
	methodFlag := flag.String("method", "scan", "check-in method: barcode, manual or scan")
	offline := flag.Bool("fallback", true, "redeem against the directory store when the API is unreachable")
	flag.Parse()

	method, err := checkin.ParseMethod(*methodFlag)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := gateclient.New(*gateway, *token)
	if err := client.Health(ctx); err != nil {
		log.Printf("WARNING: %v", err)
	}

	var db *store.DB
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	station := &scanner.Station{Remote: client, Method: method, Operator: *operator}
	if *offline && cfg.DatabaseURL != "" && cfg.StoreDriver != "memory" {
		station.OpenLocal = func(ctx context.Context) (scanner.Local, error) {
			opened, err := store.NewDB(ctx, cfg.StoreDriver, cfg.DatabaseURL)
			if err != nil {
				if opened != nil {
					_ = opened.Close()
				}
				return nil, err
			}
			db = opened
			log.Printf("local fallback connected to %s store", cfg.StoreDriver)
			return checkin.NewService(directory.NewRepository(db.Client), checkin.Options{SupportsStaff: cfg.SupportsStaff}), nil
		}
	}

	log.Printf("scanner ready (gateway %s, method %s); scan a ticket", *gateway, method)
	if err := station.Run(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		log.Fatalf("scanner stopped: %v", err)
	}
}
