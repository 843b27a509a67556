package quota

import (
	"context"
	"sync"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/metrics"
)

// Tracker records usage asynchronously so metering never delays or fails the
// user-facing response. Events are handed to a background worker through a
// buffered channel; Enqueue never blocks.
type Tracker struct {
	ledger  *Ledger
	logger  infra.Logger
	events  chan trackEvent
	done    chan struct{}
	wg      sync.WaitGroup
	closed  sync.Once
	timeout time.Duration
}

type trackEvent struct {
	UserID   string
	Resource domain.Resource
	Amount   int64
}

const (
	trackTimeout    = 5 * time.Second
	trackRetryDelay = 2 * time.Second
)

// NewTracker starts the background worker.
func NewTracker(ledger *Ledger, queueSize int, logger infra.Logger) *Tracker {
	if queueSize <= 0 {
		queueSize = 256
	}
	t := &Tracker{
		ledger:  ledger,
		logger:  logger,
		events:  make(chan trackEvent, queueSize),
		done:    make(chan struct{}),
		timeout: trackTimeout,
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// Enqueue submits a usage event. When the queue is full the event is dropped
// and counted; dropping is preferable to blocking a request goroutine.
func (t *Tracker) Enqueue(userID string, res domain.Resource, amount int64) {
	select {
	case t.events <- trackEvent{UserID: userID, Resource: res, Amount: amount}:
	default:
		metrics.TrackerDropped.Inc()
		t.logger.Warn().Str("user_id", userID).Str("resource", string(res)).Msg("quota: tracker queue full, dropping event")
	}
}

// Close stops the worker after draining queued events.
func (t *Tracker) Close() {
	t.closed.Do(func() { close(t.done) })
	t.wg.Wait()
}

func (t *Tracker) run() {
	defer t.wg.Done()
	for {
		select {
		case ev := <-t.events:
			t.record(ev)
		case <-t.done:
			for {
				select {
				case ev := <-t.events:
					t.record(ev)
				default:
					return
				}
			}
		}
	}
}

// record writes one event with a single delayed retry. Failures are logged
// and swallowed: the user already received their result.
func (t *Tracker) record(ev trackEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	err := t.ledger.TrackUsage(ctx, ev.UserID, ev.Resource, ev.Amount)
	if err == nil {
		return
	}
	t.logger.Warn().Err(err).Str("user_id", ev.UserID).Msg("quota: usage tracking failed, retrying once")

	select {
	case <-time.After(trackRetryDelay):
	case <-t.done:
	}

	retryCtx, retryCancel := context.WithTimeout(context.Background(), t.timeout)
	defer retryCancel()
	if err := t.ledger.TrackUsage(retryCtx, ev.UserID, ev.Resource, ev.Amount); err != nil {
		metrics.TrackerFailed.Inc()
		t.logger.Error().Err(err).Str("user_id", ev.UserID).Str("resource", string(ev.Resource)).Int64("amount", ev.Amount).Msg("quota: usage tracking failed permanently")
	}
}
