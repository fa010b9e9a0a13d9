package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"bus-tracker/internal/general/config"
	"bus-tracker/internal/general/jwt"
	"bus-tracker/internal/general/logger"
	"bus-tracker/internal/general/postgres"
	"bus-tracker/internal/general/rabbitmq"
	"bus-tracker/internal/general/websocket"
	"bus-tracker/internal/tracker/domain"
	"bus-tracker/internal/tracker/predict"
	"bus-tracker/internal/tracker/registry"
	"bus-tracker/internal/tracker/service"
	"bus-tracker/internal/tracker/store"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, configPath string) error {
	log := logger.New("tracker-service")
	ctx = log.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load config file", err, map[string]any{"path": configPath})
		return err
	}
	log.Info(ctx, "config_loaded", "Configuration loaded successfully", nil)

	// core state
	reg := registry.New()
	st := store.New()

	trafficCfg := predict.TrafficConfig{
		MorningStartHour: cfg.Traffic.MorningStartHour,
		MorningEndHour:   cfg.Traffic.MorningEndHour,
		MorningFactor:    cfg.Traffic.MorningFactor,
		EveningStartHour: cfg.Traffic.EveningStartHour,
		EveningEndHour:   cfg.Traffic.EveningEndHour,
		EveningFactor:    cfg.Traffic.EveningFactor,
		OffPeakFactor:    cfg.Traffic.OffPeakFactor,
	}
	dest := domain.Destination{
		Name:      cfg.Destination.Name,
		Latitude:  cfg.Destination.Latitude,
		Longitude: cfg.Destination.Longitude,
	}
	engine := predict.NewEngine(dest, trafficCfg.Factor, cfg.Traffic.CruiseSpeedKmh)

	svc := service.New(log, reg, st, engine)

	// optional location history archive
	if cfg.Database.Enabled {
		pool, err := postgres.NewPool(ctx, cfg, log)
		if err != nil {
			log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
			return err
		}
		defer pool.Close()

		historyRepo := postgres.NewHistoryRepo(pool)
		svc.WithArchive(historyRepo)
		engine.Hint = func(vehicleID string) (float64, bool) {
			hctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()
			avg, ok, err := historyRepo.RecentAverageSpeed(hctx, vehicleID, 30*time.Minute)
			if err != nil {
				log.Debug(hctx, "speed_hint_failed", "History speed lookup failed", map[string]any{"error": err.Error()})
				return 0, false
			}
			return avg, ok
		}
	}

	// optional broker mirror
	if cfg.RabbitMQ.Enabled {
		rmq, err := rabbitmq.Connect(ctx, cfg, log)
		if err != nil {
			log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
			return err
		}
		defer rmq.Close()

		svc.WithMirror(rabbitmq.NewMirror(rmq, "tracker-service"))
	}

	// optional JWT verification of register frames
	var jwtMgr *jwt.Manager
	if cfg.JWT.SecretKey != "" {
		jwtMgr = jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)
	}

	wsHandler := websocket.NewHandler(log, svc, jwtMgr, cfg.WebSocket.SendBuffer, cfg.PingInterval(), cfg.PongWait())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.HandleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebSocket.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Info(ctx, "service_started",
		fmt.Sprintf("Tracker service started on port %d", cfg.WebSocket.Port),
		map[string]any{"port": cfg.WebSocket.Port, "destination": dest.Name},
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// janitor: server-detected staleness destroys sessions that stopped
	// showing liveness
	g.Go(func() error {
		ticker := time.NewTicker(cfg.StaleAfter() / 2)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				svc.SweepStale(gctx, cfg.StaleAfter())
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.WebSocket.Port})
		return err
	}
	return nil
}
