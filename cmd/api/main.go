package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tourplan/internal/api"
	"tourplan/internal/batch"
	"tourplan/internal/cluster"
	"tourplan/internal/config"
	"tourplan/internal/metrics"
	"tourplan/internal/optimizer"
	"tourplan/internal/routing"
	"tourplan/internal/scheduler"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		lg := zerolog.New(os.Stderr)
		lg.Fatal().Err(err).Msg("load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	metrics.RegisterDefault()

	st, err := api.NewStore(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init store")
	}

	geocoder := optimizer.NewHTTPGeocoder(cfg.Geocoder.BaseURL, cfg.Geocoder.APIKey, cfg.Geocoder.RatePerSec)
	solver := optimizer.NewClient(cfg.Optimizer, geocoder, log)
	decoder := routing.NewDecoder(cfg.Routing.BaseURL, cfg.Routing.APIKey, log)

	pipeline := batch.NewPipeline(
		st,
		cluster.NewSectorClusterer(cfg.Cluster),
		cluster.NewFitter(cfg.Fitter),
		solver,
		decoder,
		log,
	)

	server := api.NewServer(st, pipeline, log)

	sched := scheduler.New(cfg.Scheduler, server.RunBatch, nil, log)
	server.Scheduler = sched
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("start scheduler")
	}
	defer sched.Stop()

	if cfg.RedisURL != "" {
		intake, err := api.NewRedisIntake(cfg.RedisURL, sched.Enqueue, log)
		if err != nil {
			log.Fatal().Err(err).Msg("init redis intake")
		}
		intake.Start()
		defer intake.Stop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/orders/events", server.OrderEventsHandler)
	mux.HandleFunc("/v1/batch/run", server.BatchRunHandler)
	mux.HandleFunc("/v1/batch/stream", server.StreamHandler)
	mux.HandleFunc("/v1/tours/dynamic", server.DynamicTourHandler)
	mux.HandleFunc("/v1/tours", server.ToursHandler)
	mux.HandleFunc("/v1/tours/", server.TourByIDHandler)
	mux.HandleFunc("/healthz", server.HealthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           logMiddleware(log, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

func logMiddleware(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
