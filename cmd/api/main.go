package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/config"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/database"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/events"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/gateway"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/store"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("connect to database")
	}
	defer db.Close()

	log.Info("connected to database")

	var pub events.Publisher = events.NopPublisher{}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		pub = events.NewRedisPublisher(client, cfg.Redis.EventChannel)
		log.WithField("channel", cfg.Redis.EventChannel).Info("publishing events to redis")
	}

	var gw gateway.Gateway
	if cfg.Gateway.Mode == "live" {
		gw = gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.KeyID, cfg.Gateway.KeySecret, cfg.Gateway.Timeout)
		log.WithField("base_url", cfg.Gateway.BaseURL).Info("using live payment gateway")
	} else {
		gw = gateway.NewSandbox(cfg.Gateway.KeySecret)
		log.Info("using sandbox payment gateway")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweepExpiredReservations(ctx, db, cfg.Fulfillment.CleanupInterval)

	api := &apiServer{
		db:                 db,
		gw:                 gw,
		pub:                pub,
		reservationTimeout: cfg.Fulfillment.ReservationTimeout,
	}

	mux := http.NewServeMux()
	api.routes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("server shutdown")
		}
	}()

	log.WithField("port", cfg.Server.Port).Info("server starting")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server error")
	}
}

// sweepExpiredReservations periodically releases holds whose deadline passed
// without the order being confirmed.
func sweepExpiredReservations(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			released, err := store.CleanupExpired(ctx, db)
			if err != nil {
				log.WithError(err).Error("reservation cleanup sweep failed")
				continue
			}
			if released > 0 {
				log.WithField("released", released).Info("released expired reservations")
			}
		}
	}
}
