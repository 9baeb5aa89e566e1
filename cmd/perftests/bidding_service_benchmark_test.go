package perftests

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/shopspring/decimal"

	"auction-engine/internal/auction"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/repository"
	"auction-engine/internal/scheduler"
)

// newEngine starts an engine over an in-memory repository for the duration of the benchmark
func newEngine(b *testing.B) (*bidding.Engine, *repository.MemoryRepo) {
	b.Helper()
	repo := repository.NewMemoryRepo()
	engine, err := bidding.NewEngine(repo, repo, clock.NewClock(), bidding.Options{
		Actor: auction.Config{
			EndingSoonWindow:       5 * time.Minute,
			AntiSnipeGrace:         time.Minute,
			MaxAntiSnipeExtensions: 10,
			MailboxSize:            256,
			MaxContentionRetries:   3,
			PersistRetries:         3,
			PersistBackoff:         time.Millisecond,
			PersistMaxBackoff:      10 * time.Millisecond,
		},
		Scheduler: scheduler.Config{
			EndingSoonWindow: 5 * time.Minute,
			RetryDelay:       time.Second,
			Workers:          8,
		},
		SubscriberBuffer: 1024,
	})
	if err != nil {
		b.Fatalf("failed to create engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = engine.Run(ctx)
	}()
	b.Cleanup(func() {
		cancel()
		<-done
	})
	return engine, repo
}

// openAuctions creates n auctions that are open for the next hour
func openAuctions(b *testing.B, engine *bidding.Engine, n int) []string {
	b.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		view, err := engine.CreateAuction(context.Background(), bidding.NewAuction{
			SellerID:      fmt.Sprintf("seller_%d", i),
			StartingPrice: decimal.NewFromInt(50),
			MinIncrement:  decimal.NewFromInt(1),
			EndTime:       time.Now().Add(time.Hour),
		})
		if err != nil {
			b.Fatalf("failed to create auction: %v", err)
		}
		ids = append(ids, view.ID)
	}
	return ids
}

// Benchmark 1: PlaceBid - Isolated Auctions (Low Contention - Micro Benchmark)
func Benchmark_PlaceBid_Isolated(b *testing.B) {
	engine, _ := newEngine(b)
	ids := openAuctions(b, engine, b.N)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		userID := fmt.Sprintf("user_%d", i)
		amount := decimal.NewFromInt(int64(51 + rand.Intn(100)))
		res, err := engine.PlaceBid(ctx, ids[i], userID, amount)
		if err != nil {
			b.Fatalf("failed to place bid: %v", err)
		}
		if !res.Accepted {
			b.Fatalf("first bid rejected: %s", res.Reason)
		}
	}
}

// Benchmark 2: PlaceBid - Shared Auction (High Contention - Concurrency Benchmark)
func Benchmark_PlaceBid_ConcurrentSharedAuction(b *testing.B) {
	engine, _ := newEngine(b)
	id := openAuctions(b, engine, 1)[0]
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 50
	var accepted int64

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			userID := fmt.Sprintf("user_parallel_%d", rnd.Int())
			nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
			res, err := engine.PlaceBid(ctx, id, userID, decimal.NewFromInt(nextBid))
			if err == nil && res.Accepted {
				atomic.AddInt64(&accepted, 1)
			}
		}
	})
	b.ReportMetric(float64(accepted)/float64(b.N), "accepted/op")
}

// Benchmark 3: Proxy war - every manual bid is answered by an agent
func Benchmark_PlaceBid_AgainstProxy(b *testing.B) {
	engine, _ := newEngine(b)
	id := openAuctions(b, engine, 1)[0]
	ctx := context.Background()

	if _, err := engine.RegisterProxyBid(ctx, id, "agent", decimal.NewFromInt(1_000_000_000)); err != nil {
		b.Fatalf("failed to register proxy: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		snap, err := engine.GetAuctionSnapshot(ctx, id)
		if err != nil {
			b.Fatalf("failed to read snapshot: %v", err)
		}
		if _, err := engine.PlaceBid(ctx, id, "challenger", snap.MinimumBid); err != nil {
			b.Fatalf("failed to place bid: %v", err)
		}
	}
}

// Benchmark 4: GetAuctionSnapshot - Concurrent (High Contention reads)
func Benchmark_GetSnapshot_ConcurrentSharedAuction(b *testing.B) {
	engine, _ := newEngine(b)
	id := openAuctions(b, engine, 1)[0]
	ctx := context.Background()

	for j := 0; j < 100; j++ {
		userID := fmt.Sprintf("user_%d", j)
		_, _ = engine.PlaceBid(ctx, id, userID, decimal.NewFromInt(int64(51+j)))
	}

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := engine.GetAuctionSnapshot(ctx, id); err != nil {
				b.Fatalf("failed to read snapshot: %v", err)
			}
		}
	})
}

// Benchmark 5: Mixed Workload (Readers + Writers concurrently)
func Benchmark_MixedWorkload_SharedAuction(b *testing.B) {
	engine, _ := newEngine(b)
	id := openAuctions(b, engine, 1)[0]
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 50

	// Ratio: 70% readers, 30% writers
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			if rnd.Intn(10) < 3 {
				userID := fmt.Sprintf("user_writer_%d", rnd.Int())
				nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
				_, _ = engine.PlaceBid(ctx, id, userID, decimal.NewFromInt(nextBid))
				continue
			}
			_, _ = engine.GetAuctionSnapshot(ctx, id)
		}
	})
}
