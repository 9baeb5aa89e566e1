package watchlist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"auction-engine/internal/models"
	"auction-engine/internal/repository"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *capturePublisher) Publish(events ...models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *capturePublisher) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func threshold(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestEvaluator_FiresOncePerEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	require.NoError(t, repo.UpsertWatch(ctx, models.WatchEntry{UserID: "u1", AuctionID: "a1", PriceAlertThreshold: threshold(1200)}))
	require.NoError(t, repo.UpsertWatch(ctx, models.WatchEntry{UserID: "u2", AuctionID: "a1", PriceAlertThreshold: threshold(2000)}))
	require.NoError(t, repo.UpsertWatch(ctx, models.WatchEntry{UserID: "u3", AuctionID: "a1", NotifyOnOutbid: true}))

	pub := &capturePublisher{}
	ev := NewEvaluator(repo, pub)

	tests := []struct {
		name      string
		price     int64
		wantUsers []string
	}{
		{name: "below_every_threshold", price: 1100},
		{name: "reaches_first_threshold", price: 1200, wantUsers: []string{"u1"}},
		{name: "already_fired", price: 1500},
		{name: "reaches_second_threshold", price: 2500, wantUsers: []string{"u2"}},
		{name: "nothing_left", price: 3000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			alerts, err := ev.Evaluate(ctx, models.PriceChanged("a1", decimal.NewFromInt(tc.price), "x"))
			require.NoError(t, err)
			users := make([]string, 0, len(alerts))
			for _, a := range alerts {
				require.Equal(t, models.EventAlertTriggered, a.Type)
				require.True(t, a.NewPrice.Equal(decimal.NewFromInt(tc.price)))
				users = append(users, a.UserID)
			}
			if tc.wantUsers == nil {
				require.Empty(t, users)
			} else {
				require.Equal(t, tc.wantUsers, users)
			}
		})
	}
	require.Equal(t, 2, pub.len())
}

func TestEvaluator_IgnoresOtherEvents(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := repository.NewMockWatchlistStore(ctrl)
	ev := NewEvaluator(store, &capturePublisher{})

	alerts, err := ev.Evaluate(context.Background(), models.Outbid("a1", "x"))
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func TestEvaluator_StoreErrors(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := repository.NewMockWatchlistStore(ctrl)
	pub := &capturePublisher{}
	ev := NewEvaluator(store, pub)
	price := models.PriceChanged("a1", decimal.NewFromInt(1500), "x")

	store.EXPECT().ListWatchers(gomock.Any(), "a1").Return(nil, errors.New("db down"))
	_, err := ev.Evaluate(context.Background(), price)
	require.Error(t, err)

	store.EXPECT().ListWatchers(gomock.Any(), "a1").Return([]models.WatchEntry{
		{UserID: "u1", AuctionID: "a1", PriceAlertThreshold: threshold(1000)},
		{UserID: "u2", AuctionID: "a1", PriceAlertThreshold: threshold(1000)},
	}, nil)
	store.EXPECT().MarkAlertFired(gomock.Any(), "u1", "a1").Return(false, nil)
	store.EXPECT().MarkAlertFired(gomock.Any(), "u2", "a1").Return(true, nil)
	alerts, err := ev.Evaluate(context.Background(), price)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "u2", alerts[0].UserID)
	require.Equal(t, 1, pub.len())
}

func TestEvaluator_MarkFailureKeepsFiredAlerts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	for _, user := range []string{"u1", "u2", "u3"} {
		require.NoError(t, repo.UpsertWatch(ctx, models.WatchEntry{UserID: user, AuctionID: "a1", PriceAlertThreshold: threshold(1000)}))
	}
	store := &flakyMarkStore{MemoryRepo: repo, failFor: "u2"}
	pub := &capturePublisher{}
	ev := NewEvaluator(store, pub)

	alerts, err := ev.Evaluate(ctx, models.PriceChanged("a1", decimal.NewFromInt(1500), "x"))
	require.Error(t, err)
	require.ErrorContains(t, err, "u2")
	require.Len(t, alerts, 2)
	require.Equal(t, "u1", alerts[0].UserID)
	require.Equal(t, "u3", alerts[1].UserID)
	require.Equal(t, 2, pub.len())

	// the entry that failed fires on the next price change, the others stay quiet
	store.failFor = ""
	alerts, err = ev.Evaluate(ctx, models.PriceChanged("a1", decimal.NewFromInt(1600), "y"))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "u2", alerts[0].UserID)
	require.Equal(t, 3, pub.len())
}

// flakyMarkStore fails MarkAlertFired for one user
type flakyMarkStore struct {
	*repository.MemoryRepo
	failFor string
}

func (s *flakyMarkStore) MarkAlertFired(ctx context.Context, userID, auctionID string) (bool, error) {
	if userID == s.failFor {
		return false, errors.New("db down")
	}
	return s.MemoryRepo.MarkAlertFired(ctx, userID, auctionID)
}

func TestEvaluator_Run(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	require.NoError(t, repo.UpsertWatch(ctx, models.WatchEntry{UserID: "u1", AuctionID: "a1", PriceAlertThreshold: threshold(1200)}))
	pub := &capturePublisher{}
	ev := NewEvaluator(repo, pub)

	in := make(chan models.Event, 2)
	done := make(chan struct{})
	go func() {
		ev.Run(ctx, in)
		close(done)
	}()

	in <- models.PriceChanged("a1", decimal.NewFromInt(1300), "x")
	in <- models.PriceChanged("a1", decimal.NewFromInt(1400), "y")
	close(in)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("evaluator did not stop when its input closed")
	}
	require.Equal(t, 1, pub.len())
}
