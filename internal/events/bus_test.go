package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"auction-engine/internal/models"
)

func startBus(t *testing.T, buffer int) *Bus {
	t.Helper()
	bus := NewBus(buffer)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return bus
}

func priceEvent(auctionID string, price int64) models.Event {
	e := models.PriceChanged(auctionID, decimal.NewFromInt(price), "bidder")
	e.Version = price
	return e
}

func waitDelivered(t *testing.T, bus *Bus, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := bus.Stats()
		return st.Delivered >= n && st.QueueDepth == 0
	}, time.Second, time.Millisecond)
}

func TestBus_PreservesOrderPerAuction(t *testing.T) {
	t.Parallel()

	bus := startBus(t, 1000)
	sub := bus.Subscribe("")

	var wg sync.WaitGroup
	for _, id := range []string{"a1", "a2", "a3"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := int64(1); i <= 100; i++ {
				bus.Publish(priceEvent(id, i))
			}
		}(id)
	}
	wg.Wait()

	last := map[string]int64{}
	for received := 0; received < 300; received++ {
		select {
		case e := <-sub.C():
			require.Equal(t, last[e.AuctionID]+1, e.Version, "auction %s out of order", e.AuctionID)
			last[e.AuctionID] = e.Version
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d events", received)
		}
	}
	require.Zero(t, sub.Dropped())
}

func TestBus_SlowSubscriberDropsOldest(t *testing.T) {
	t.Parallel()

	bus := startBus(t, 3)
	slow := bus.Subscribe("")
	fast := bus.Subscribe("")

	var got []int64
	var mu sync.Mutex
	go func() {
		for e := range fast.C() {
			mu.Lock()
			got = append(got, e.Version)
			mu.Unlock()
		}
	}()

	for i := int64(1); i <= 10; i++ {
		bus.Publish(priceEvent("a1", i))
	}
	waitDelivered(t, bus, 20)

	require.Equal(t, uint64(7), slow.Dropped())
	for _, want := range []int64{8, 9, 10} {
		e := <-slow.C()
		require.Equal(t, want, e.Version)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got)+int(fast.Dropped()) == 10
	}, time.Second, time.Millisecond)

	st := bus.Stats()
	require.Len(t, st.Subscribers, 2)
	require.Equal(t, uint64(7)+fast.Dropped(), st.Dropped)
	require.Equal(t, uint64(10), st.Published)
}

func TestBus_FilterByAuction(t *testing.T) {
	t.Parallel()

	bus := startBus(t, 10)
	a1 := bus.Subscribe("a1")
	all := bus.Subscribe("")

	bus.Publish(priceEvent("a1", 1), priceEvent("a2", 2), priceEvent("a1", 3))
	waitDelivered(t, bus, 5)

	require.Len(t, a1.C(), 2)
	require.Len(t, all.C(), 3)
	for _, want := range []int64{1, 3} {
		e := <-a1.C()
		require.Equal(t, "a1", e.AuctionID)
		require.Equal(t, want, e.Version)
	}
}

func TestBus_CloseSubscription(t *testing.T) {
	t.Parallel()

	bus := startBus(t, 10)
	sub := bus.Subscribe("")
	sub.Close()
	sub.Close()

	_, open := <-sub.C()
	require.False(t, open)

	bus.Publish(priceEvent("a1", 1))
	require.Eventually(t, func() bool { return bus.QueueDepth() == 0 }, time.Second, time.Millisecond)
	require.Empty(t, bus.Stats().Subscribers)
}

func TestBus_RunExitClosesSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus(0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.Run(ctx)
		close(done)
	}()

	subs := make([]*Subscription, 0, 3)
	for i := 0; i < 3; i++ {
		subs = append(subs, bus.Subscribe(fmt.Sprintf("a%d", i)))
	}
	cancel()
	<-done

	for _, s := range subs {
		_, open := <-s.C()
		require.False(t, open)
	}

	late := bus.Subscribe("")
	_, open := <-late.C()
	require.False(t, open, "subscribing after shutdown yields a closed channel")
}

func TestBus_QueueDepthWithoutDispatcher(t *testing.T) {
	t.Parallel()

	bus := NewBus(1)
	bus.Publish(priceEvent("a1", 1), priceEvent("a1", 2))
	bus.Publish()
	require.Equal(t, 2, bus.QueueDepth())
	require.Equal(t, 2, bus.Stats().MaxQueueDepth)
}

func TestBus_PublishAfterShutdownIsDiscarded(t *testing.T) {
	t.Parallel()

	bus := NewBus(4)
	bus.Publish(priceEvent("a1", 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Run(ctx)

	tests := []struct {
		name   string
		events []models.Event
	}{
		{name: "single event", events: []models.Event{priceEvent("a1", 2)}},
		{name: "batch", events: []models.Event{priceEvent("a1", 3), priceEvent("a2", 1)}},
	}
	for _, tt := range tests {
		bus.Publish(tt.events...)
		require.Zero(t, bus.QueueDepth(), tt.name)
	}

	st := bus.Stats()
	require.Equal(t, uint64(1), st.Published)
	require.Equal(t, uint64(3), st.Discarded)
	require.Zero(t, st.QueueDepth)
}
