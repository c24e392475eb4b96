package api

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tourplan/internal/scheduler"
)

// intakeChannel is the Redis pub/sub channel the upstream order system
// publishes new-order announcements on.
const intakeChannel = "orders:new"

// RedisIntake feeds order events from Redis pub/sub into the batch
// scheduler, so upstream systems do not need to call the HTTP API.
type RedisIntake struct {
	rdb     *redis.Client
	ps      *redis.PubSub
	enqueue func(scheduler.OrderEvent) error
	log     zerolog.Logger
	done    chan struct{}
}

func NewRedisIntake(redisURL string, enqueue func(scheduler.OrderEvent) error, log zerolog.Logger) (*RedisIntake, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisIntake{
		rdb:     redis.NewClient(opt),
		enqueue: enqueue,
		log:     log.With().Str("component", "redis_intake").Logger(),
		done:    make(chan struct{}),
	}, nil
}

func (ri *RedisIntake) Start() {
	ri.ps = ri.rdb.Subscribe(context.Background(), intakeChannel)
	go func() {
		defer close(ri.done)
		for msg := range ri.ps.Channel() {
			var evt scheduler.OrderEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				ri.log.Warn().Err(err).Str("payload", msg.Payload).Msg("malformed order event dropped")
				continue
			}
			if err := ri.enqueue(evt); err != nil {
				ri.log.Warn().Err(err).Int64("order_id", evt.OrderID).Msg("order event dropped")
			}
		}
	}()
}

// Stop closes the subscription, which closes the message channel and
// lets the consumer goroutine drain out, then waits for it.
func (ri *RedisIntake) Stop() {
	if ri.ps != nil {
		_ = ri.ps.Close()
		<-ri.done
	}
	_ = ri.rdb.Close()
}
