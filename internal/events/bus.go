// Package events fans engine events out to subscribers. Producers never
// block: the inbound queue is unbounded and monitored, and each subscriber
// owns a bounded channel that drops its oldest event when full.
package events

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"auction-engine/internal/models"
	"auction-engine/utils"
)

// DefaultSubscriberBuffer is used when NewBus gets a non-positive buffer
const DefaultSubscriberBuffer = 256

// Subscription is one consumer of the bus
type Subscription struct {
	id        uint64
	auctionID string
	ch        chan models.Event
	dropped   atomic.Uint64
	bus       *Bus
	closeOnce sync.Once
}

// C returns the delivery channel. It is closed when the subscription or the bus closes.
func (s *Subscription) C() <-chan models.Event {
	return s.ch
}

// Dropped returns how many events were discarded because the consumer fell behind
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription from the bus
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

func (s *Subscription) wants(e models.Event) bool {
	return s.auctionID == "" || s.auctionID == e.AuctionID
}

// deliver enqueues e, evicting the oldest buffered events until it fits
func (s *Subscription) deliver(e models.Event) {
	for {
		select {
		case s.ch <- e:
			return
		default:
		}
		select {
		case <-s.ch:
			if s.dropped.Add(1) == 1 {
				utils.Warn("events: subscriber is dropping events", map[string]any{
					"subscriber_id": s.id,
					"auction_id":    s.auctionID,
				})
			}
		default:
		}
	}
}

// SubscriberStats describes one subscription
type SubscriberStats struct {
	ID        uint64 `json:"id"`
	AuctionID string `json:"auction_id,omitempty"`
	Buffered  int    `json:"buffered"`
	Capacity  int    `json:"capacity"`
	Dropped   uint64 `json:"dropped"`
}

// Stats is a point-in-time view of the bus
type Stats struct {
	QueueDepth    int               `json:"queue_depth"`
	MaxQueueDepth int               `json:"max_queue_depth"`
	Published     uint64            `json:"published"`
	Delivered     uint64            `json:"delivered"`
	Dropped       uint64            `json:"dropped"`
	Discarded     uint64            `json:"discarded"`
	Subscribers   []SubscriberStats `json:"subscribers"`
}

// Bus is the event fan-out. A single dispatcher goroutine (Run) drains the
// inbound queue in publish order, so events of one auction reach every
// subscriber in the order they were committed.
type Bus struct {
	buffer int

	qmu      sync.Mutex
	queue    []models.Event
	maxDepth int
	signal   chan struct{}

	smu    sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	published atomic.Uint64
	delivered atomic.Uint64
	discarded atomic.Uint64
}

// NewBus creates a bus whose subscribers buffer up to subscriberBuffer events
func NewBus(subscriberBuffer int) *Bus {
	if subscriberBuffer <= 0 {
		subscriberBuffer = DefaultSubscriberBuffer
	}
	return &Bus{
		buffer: subscriberBuffer,
		signal: make(chan struct{}, 1),
		subs:   make(map[uint64]*Subscription),
	}
}

// Publish appends events to the inbound queue. It never blocks on subscribers.
// Once Run has returned, events are discarded.
func (b *Bus) Publish(events ...models.Event) {
	if len(events) == 0 {
		return
	}
	b.smu.RLock()
	defer b.smu.RUnlock()
	if b.closed {
		b.discarded.Add(uint64(len(events)))
		return
	}
	b.qmu.Lock()
	b.queue = append(b.queue, events...)
	if len(b.queue) > b.maxDepth {
		b.maxDepth = len(b.queue)
	}
	b.qmu.Unlock()
	b.published.Add(uint64(len(events)))

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Subscribe registers a consumer. An empty auctionID receives every auction's events.
func (b *Bus) Subscribe(auctionID string) *Subscription {
	b.smu.Lock()
	defer b.smu.Unlock()

	b.nextID++
	s := &Subscription{
		id:        b.nextID,
		auctionID: auctionID,
		ch:        make(chan models.Event, b.buffer),
		bus:       b,
	}
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s.id] = s
	return s
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.smu.Lock()
	defer b.smu.Unlock()
	if _, ok := b.subs[s.id]; !ok {
		return
	}
	delete(b.subs, s.id)
	s.closeOnce.Do(func() { close(s.ch) })
}

// Run dispatches queued events until ctx is done, then closes every subscription
func (b *Bus) Run(ctx context.Context) {
	defer b.closeAll()
	for {
		for _, e := range b.drain() {
			b.dispatch(e)
		}
		select {
		case <-ctx.Done():
			return
		case <-b.signal:
		}
	}
}

func (b *Bus) drain() []models.Event {
	b.qmu.Lock()
	defer b.qmu.Unlock()
	batch := b.queue
	b.queue = nil
	return batch
}

func (b *Bus) dispatch(e models.Event) {
	b.smu.RLock()
	defer b.smu.RUnlock()
	for _, s := range b.subs {
		if s.wants(e) {
			s.deliver(e)
			b.delivered.Add(1)
		}
	}
}

func (b *Bus) closeAll() {
	b.smu.Lock()
	defer b.smu.Unlock()
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		s.closeOnce.Do(func() { close(s.ch) })
	}

	if pending := b.drain(); len(pending) > 0 {
		b.discarded.Add(uint64(len(pending)))
		utils.Warn("events: discarding undelivered events on shutdown", map[string]any{"count": len(pending)})
	}
}

// QueueDepth is the number of events waiting for the dispatcher
func (b *Bus) QueueDepth() int {
	b.qmu.Lock()
	defer b.qmu.Unlock()
	return len(b.queue)
}

// Stats snapshots the bus counters
func (b *Bus) Stats() Stats {
	b.qmu.Lock()
	st := Stats{QueueDepth: len(b.queue), MaxQueueDepth: b.maxDepth}
	b.qmu.Unlock()

	st.Published = b.published.Load()
	st.Delivered = b.delivered.Load()
	st.Discarded = b.discarded.Load()

	b.smu.RLock()
	st.Subscribers = make([]SubscriberStats, 0, len(b.subs))
	for _, s := range b.subs {
		dropped := s.Dropped()
		st.Dropped += dropped
		st.Subscribers = append(st.Subscribers, SubscriberStats{
			ID:        s.id,
			AuctionID: s.auctionID,
			Buffered:  len(s.ch),
			Capacity:  cap(s.ch),
			Dropped:   dropped,
		})
	}
	b.smu.RUnlock()

	sort.Slice(st.Subscribers, func(i, j int) bool { return st.Subscribers[i].ID < st.Subscribers[j].ID })
	return st
}
