package api

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"tourplan/internal/batch"
	"tourplan/internal/config"
	"tourplan/internal/scheduler"
	"tourplan/internal/store"
)

// Server holds the HTTP surface's dependencies.
type Server struct {
	Store     store.Store
	Pipeline  *batch.Pipeline
	Scheduler *scheduler.Scheduler
	Broker    *Broker
	log       zerolog.Logger
}

// NewStore picks the backing store: Postgres when a DSN is configured,
// in-memory otherwise.
func NewStore(cfg config.Config, log zerolog.Logger) (store.Store, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Warn().Msg("DATABASE_URL unset, using in-memory store")
		return store.NewMemory(), nil
	}
	pg, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return pg, nil
}

func NewServer(st store.Store, pipeline *batch.Pipeline, log zerolog.Logger) *Server {
	return &Server{
		Store:    st,
		Pipeline: pipeline,
		Broker:   NewBroker(),
		log:      log.With().Str("component", "api").Logger(),
	}
}

// RunBatch is the scheduler's callback: one pipeline pass bracketed by
// stream events.
func (s *Server) RunBatch(ctx context.Context, orderIDs []int64) error {
	s.Broker.Publish(BatchEvent{Type: EventBatchStarted, Data: map[string]any{"orders": len(orderIDs)}})
	res, err := s.Pipeline.ProcessBatch(ctx, orderIDs)
	if err != nil {
		s.Broker.Publish(BatchEvent{Type: EventBatchFailed, Data: map[string]any{"error": err.Error()}})
		return err
	}
	s.Broker.Publish(BatchEvent{Type: EventBatchFinished, Data: map[string]any{
		"warehouses": res.Warehouses,
		"clusters":   res.Clusters,
		"tours":      res.Tours,
		"trimmed":    res.Trimmed,
		"failures":   res.Failures,
	}})
	return nil
}
