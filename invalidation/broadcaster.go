package invalidation

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Sink receives events for fan-out. The push channel manager is the production
// implementation; tests substitute recording fakes.
type Sink interface {
	Deliver(event Event)
}

// DefaultQueueSize bounds the dispatch queue. Publishing is fire-and-forget:
// when the queue is full the event is dropped and counted rather than
// blocking the write path.
const DefaultQueueSize = 256

// Broadcaster emits change notifications after a cache refresh completes.
// It deliberately publishes a redundant set of categories per mutation; the
// redundancy is a reliability-over-efficiency tradeoff for heterogeneous
// clients, not an oversight.
//
// Publish methods must only be called after the refresh step has completed;
// the broadcaster itself gives no ordering guarantee beyond FIFO dispatch.
type Broadcaster struct {
	sink    Sink
	queue   chan Event
	dropped atomic.Int64
	log     zerolog.Logger
}

// NewBroadcaster creates a Broadcaster delivering to sink. queueSize <= 0
// uses DefaultQueueSize.
func NewBroadcaster(sink Sink, logger zerolog.Logger, queueSize int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Broadcaster{
		sink:  sink,
		queue: make(chan Event, queueSize),
		log:   logger.With().Str("component", "broadcaster").Logger(),
	}
}

// Start runs the dispatch loop until ctx is cancelled. Events queued before
// cancellation may be dropped; delivery is best-effort by contract.
func (b *Broadcaster) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-b.queue:
				b.sink.Deliver(ev)
			}
		}
	}()
}

// PublishItemsChanged emits the full redundant category set for a committed
// mutation: refresh_needed, client_refresh_request, and item_update carrying
// the action and affected item ids.
func (b *Broadcaster) PublishItemsChanged(action Action, items []int64) {
	now := time.Now()
	b.publish(Event{Category: CategoryRefreshNeeded, Timestamp: now})
	b.publish(Event{Category: CategoryClientRefreshRequest, Timestamp: now})
	b.publish(Event{Category: CategoryItemUpdate, Timestamp: now, Action: action, Items: items})
}

// PublishRefreshCompleted emits the non-item categories after an
// administrative or manual refresh, where no single action applies.
func (b *Broadcaster) PublishRefreshCompleted() {
	now := time.Now()
	b.publish(Event{Category: CategoryRefreshNeeded, Timestamp: now})
	b.publish(Event{Category: CategoryClientRefreshRequest, Timestamp: now})
}

// Dropped reports how many events were discarded because the queue was full.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Broadcaster) publish(ev Event) {
	select {
	case b.queue <- ev:
	default:
		b.dropped.Add(1)
		b.log.Warn().
			Str("category", ev.Category.WireName()).
			Int64("dropped_total", b.dropped.Load()).
			Msg("event queue full, dropping notification")
	}
}
