package main

import (
	"context"
	"database/sql"
	"dispatch-route-service/internal/adapters/backend"
	"dispatch-route-service/internal/adapters/cache"
	"dispatch-route-service/internal/adapters/events"
	"dispatch-route-service/internal/api"
	"dispatch-route-service/internal/config"
	"dispatch-route-service/internal/platform/db"
	"dispatch-route-service/internal/platform/obs"
	"dispatch-route-service/internal/ports"
	"dispatch-route-service/internal/services"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// main is the application composition root.
// It wires concrete adapters (dispatch backend, Postgres, Redis) behind ports
// and starts the HTTP server. One process is one planning session.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	obs.RegisterDefault()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := backend.NewClient(cfg.BackendURL, cfg.BackendToken, backend.Options{
		Timeout:      cfg.Policy.BackendTimeout,
		RateLimit:    cfg.Policy.BackendRateLimit,
		Burst:        cfg.Policy.BackendBurst,
		ReadAttempts: cfg.Policy.ReadRetryAttempts,
	})
	if err != nil {
		log.Fatal(err)
	}

	var geocoder ports.GeocodeClient = client
	if cfg.DatabaseURL != "" {
		conn, err := openAddressStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal(err)
		}
		defer conn.Close()

		// Addresses resolved in earlier sessions are served from Postgres.
		geocoder = cache.NewStoredGeocodeClient(client, cache.NewSQLAddressStore(conn))
		log.Println("address store enabled")
	}

	broker, err := newBroker(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal(err)
	}
	defer broker.Close()

	planner := services.NewPlanner(
		services.NewGeocodeCache(geocoder, cfg.Policy.Region),
		services.NewOrderCache(client, cfg.Policy.PrefetchWorkers),
		services.NewSequenceStore(client, cfg.Policy.BulkConcurrency),
		broker,
		services.PlannerOptions{
			SessionID:    cfg.SessionID,
			Tolerance:    cfg.Policy.ClusterTolerance,
			SkipWeekends: cfg.Policy.SkipWeekends,
		},
	)
	defer planner.Close()

	go consumeRouteEvents(broker, planner)

	router := api.NewRouter(planner, client)

	// Timeouts leave room for a slow backend (bulk saves, cold geocoding).
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("Server listening addr=:%s session=%s", cfg.Port, planner.SessionID())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	log.Println("Server stopped")
}

func openAddressStore(ctx context.Context, databaseURL string) (*sql.DB, error) {
	conn, err := db.Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := cache.InitSchema(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// newBroker uses Redis when configured so several processes share route
// events, and an in-process broker otherwise.
func newBroker(ctx context.Context, redisURL string) (events.Broker, error) {
	if redisURL == "" {
		return events.NewMemoryBroker(), nil
	}

	b, err := events.NewRedisBroker(redisURL)
	if err != nil {
		return nil, err
	}
	if err := b.Ping(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	log.Println("route events via redis")
	return b, nil
}

func consumeRouteEvents(broker events.Broker, planner *services.Planner) {
	ch := broker.Subscribe(events.AllTechnicians)
	for evt := range ch {
		planner.HandleRemoteEvent(evt)
	}
}
