package api

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tourplan/internal/scheduler"
)

func TestRedisIntakeRejectsBadURL(t *testing.T) {
	_, err := NewRedisIntake("not-a-url", nil, zerolog.Nop())
	require.Error(t, err)
}

func TestRedisIntakeStopReturns(t *testing.T) {
	// no server behind this address; Stop must still unblock the
	// consumer goroutine by closing the subscription
	ri, err := NewRedisIntake("redis://127.0.0.1:1/0", func(scheduler.OrderEvent) error { return nil }, zerolog.Nop())
	require.NoError(t, err)
	ri.Start()

	stopped := make(chan struct{})
	go func() {
		ri.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestRedisIntakeStopWithoutStart(t *testing.T) {
	ri, err := NewRedisIntake("redis://127.0.0.1:1/0", nil, zerolog.Nop())
	require.NoError(t, err)
	// never subscribed; Stop must not wait on the consumer
	ri.Stop()
}
