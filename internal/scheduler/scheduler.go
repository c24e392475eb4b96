package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tourplan/internal/metrics"
)

// Priorities of an order event.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Scheduler states.
const (
	StateIdle      = "idle"
	StateBuffering = "buffering"
	StateRunning   = "running"
)

// OrderEvent announces a new order to the scheduler.
type OrderEvent struct {
	OrderID  int64  `json:"order_id"`
	Priority string `json:"priority"`
}

// RunFunc executes one clustering pipeline pass over the buffered
// order ids. It must be safe to call repeatedly; the scheduler
// guarantees it never runs concurrently with itself.
type RunFunc func(ctx context.Context, orderIDs []int64) error

// ErrQueueFull is returned by Enqueue when producers outpace the
// scheduler's bounded intake queue.
var ErrQueueFull = errors.New("scheduler: event queue full")

// Config holds the batching tunables.
type Config struct {
	DebounceWindowSec int    `yaml:"debounce_window_sec"`
	QueueSize         int    `yaml:"queue_size"`
	BufferThreshold   int    `yaml:"buffer_threshold"`
	CoalesceThreshold int    `yaml:"coalesce_threshold"`
	PeriodicSpec      string `yaml:"periodic_spec"`
}

func DefaultConfig() Config {
	return Config{
		DebounceWindowSec: 30,
		QueueSize:         1024,
		BufferThreshold:   10,
		CoalesceThreshold: 5,
		PeriodicSpec:      "*/5 * * * *",
	}
}

func (c Config) Normalize() Config {
	d := DefaultConfig()
	if c.DebounceWindowSec <= 0 {
		c.DebounceWindowSec = d.DebounceWindowSec
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.BufferThreshold <= 0 {
		c.BufferThreshold = d.BufferThreshold
	}
	if c.CoalesceThreshold <= 0 {
		c.CoalesceThreshold = d.CoalesceThreshold
	}
	if c.PeriodicSpec == "" {
		c.PeriodicSpec = d.PeriodicSpec
	}
	return c
}

// Scheduler buffers new-order events, debounces normal-priority bursts,
// fast-paths high-priority orders and enforces single-flight execution
// of the clustering pipeline. All state lives on the instance; tests
// can run independent schedulers side by side.
type Scheduler struct {
	cfg   Config
	run   RunFunc
	clock Clock
	log   zerolog.Logger
	cron  *cron.Cron

	events chan OrderEvent
	ticks  chan struct{}
	stop   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	state   string
	running bool
	rerun   bool
	pending map[int64]bool

	// LastRun reports the most recent run's stats for observability.
	lastRun RunStats
}

// RunStats records one pipeline run.
type RunStats struct {
	Reason     string
	OrderCount int
	Duration   time.Duration
	Err        error
	FinishedAt time.Time
}

func New(cfg Config, run RunFunc, clock Clock, log zerolog.Logger) *Scheduler {
	if clock == nil {
		clock = NewRealClock()
	}
	return &Scheduler{
		cfg:     cfg.Normalize(),
		run:     run,
		clock:   clock,
		log:     log.With().Str("component", "batch_scheduler").Logger(),
		cron:    cron.New(),
		events:  make(chan OrderEvent, cfg.Normalize().QueueSize),
		ticks:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		state:   StateIdle,
		pending: map[int64]bool{},
	}
}

// Start launches the event loop and the periodic fallback tick.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.PeriodicSpec, s.Tick); err != nil {
		return err
	}
	s.cron.Start()
	go s.loop()
	return nil
}

// Stop halts the loop. An in-flight run is never cancelled; it always
// completes or fails on its own.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	close(s.stop)
	<-s.done
}

// Enqueue accepts a new-order event. It never blocks; a full queue is
// reported to the producer as backpressure.
func (s *Scheduler) Enqueue(evt OrderEvent) error {
	if evt.Priority == "" {
		evt.Priority = PriorityNormal
	}
	select {
	case s.events <- evt:
		return nil
	default:
		return ErrQueueFull
	}
}

// Tick is the periodic fallback: it fires the pipeline when the buffer
// has grown past the threshold without a debounce flush.
func (s *Scheduler) Tick() {
	select {
	case s.ticks <- struct{}{}:
	default:
	}
}

// State reports idle, buffering or running.
func (s *Scheduler) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return StateRunning
	}
	return s.state
}

// LastRun returns the stats of the most recently finished run.
func (s *Scheduler) LastRun() RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// PendingCount returns the buffered order count.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) loop() {
	defer close(s.done)
	var debounce Timer
	var debounceC <-chan time.Time
	for {
		select {
		case evt := <-s.events:
			s.mu.Lock()
			s.pending[evt.OrderID] = true
			s.state = StateBuffering
			s.mu.Unlock()

			if evt.Priority == PriorityHigh {
				if debounce != nil {
					debounce.Stop()
					debounce, debounceC = nil, nil
				}
				s.fire("high_priority")
				continue
			}
			// restart the debounce window on every normal event
			if debounce != nil {
				debounce.Stop()
			}
			debounce = s.clock.NewTimer(time.Duration(s.cfg.DebounceWindowSec) * time.Second)
			debounceC = debounce.C()

		case <-debounceC:
			debounce, debounceC = nil, nil
			s.fire("debounce")

		case <-s.ticks:
			s.mu.Lock()
			over := len(s.pending) > s.cfg.BufferThreshold
			s.mu.Unlock()
			if over {
				if debounce != nil {
					debounce.Stop()
					debounce, debounceC = nil, nil
				}
				s.fire("periodic")
			}

		case <-s.stop:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

// fire starts one pipeline run unless one is already in flight. A
// trigger arriving mid-run is dropped while the buffer is small, or
// queued as a single follow-up run once the buffer has grown.
func (s *Scheduler) fire(reason string) {
	s.mu.Lock()
	if s.running {
		if len(s.pending) < s.cfg.CoalesceThreshold {
			metrics.SchedulerSkips.Inc()
			s.log.Debug().Str("reason", reason).Int("pending", len(s.pending)).Msg("run in flight, trigger coalesced")
			s.mu.Unlock()
			return
		}
		s.rerun = true
		s.mu.Unlock()
		return
	}
	s.running = true
	ids := make([]int64, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.pending = map[int64]bool{}
	s.state = StateIdle
	s.mu.Unlock()

	go s.execute(ids, reason)
}

func (s *Scheduler) execute(ids []int64, reason string) {
	start := s.clock.Now()
	err := s.run(context.Background(), ids)
	dur := s.clock.Now().Sub(start)

	metrics.BatchDuration.Observe(dur.Seconds())
	metrics.BatchOrders.Observe(float64(len(ids)))
	if err != nil {
		metrics.BatchRuns.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Str("reason", reason).Int("orders", len(ids)).Dur("duration", dur).Msg("batch run failed")
	} else {
		metrics.BatchRuns.WithLabelValues("ok").Inc()
		s.log.Info().Str("reason", reason).Int("orders", len(ids)).Dur("duration", dur).Msg("batch run finished")
	}

	s.mu.Lock()
	s.running = false
	s.lastRun = RunStats{Reason: reason, OrderCount: len(ids), Duration: dur, Err: err, FinishedAt: s.clock.Now()}
	rerun := s.rerun
	s.rerun = false
	s.mu.Unlock()

	if rerun {
		s.fire("requeued")
	}
}
