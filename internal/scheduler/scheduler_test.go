package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
)

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type dispatched struct {
	auctionID string
	phase     models.Phase
	at        time.Time
}

type recordingDispatcher struct {
	clock *fakeclock.FakeClock

	mu       sync.Mutex
	calls    []dispatched
	failures map[models.Phase][]error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, auctionID string, phase models.Phase) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatched{auctionID: auctionID, phase: phase, at: d.clock.Now()})
	if errs := d.failures[phase]; len(errs) > 0 {
		d.failures[phase] = errs[1:]
		return errs[0]
	}
	return nil
}

func (d *recordingDispatcher) phases() []models.Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Phase, 0, len(d.calls))
	for _, c := range d.calls {
		out = append(out, c.phase)
	}
	return out
}

func newTestScheduler(t *testing.T, clk *fakeclock.FakeClock, lister AuctionLister) (*Scheduler, *recordingDispatcher) {
	t.Helper()
	d := &recordingDispatcher{clock: clk, failures: map[models.Phase][]error{}}
	s, err := New(clk, d, lister, Config{EndingSoonWindow: 5 * time.Minute, RetryDelay: 10 * time.Second, Workers: 2})
	require.NoError(t, err)
	return s, d
}

func run(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.ErrorIs(t, <-done, context.Canceled)
	})
}

// waitFor blocks until the wake loop is sleeping on the expected entry
func waitFor(t *testing.T, clk *fakeclock.FakeClock, s *Scheduler, phase models.Phase, wakeAt time.Time) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, p, at, ok := s.Next()
		return ok && p == phase && at.Equal(wakeAt) && clk.WatcherCount() == 1
	}, time.Second, time.Millisecond)
}

func auction(id string, status models.AuctionStatus, start, end time.Time) models.Auction {
	return models.Auction{ID: id, Status: status, StartTime: start, EndTime: end}
}

func TestScheduler_DrivesPhasesInOrder(t *testing.T) {
	t.Parallel()

	clk := fakeclock.NewFakeClock(t0)
	s, d := newTestScheduler(t, clk, nil)
	s.Track(auction("a1", models.StatusScheduled, t0.Add(time.Minute), t0.Add(10*time.Minute)))
	run(t, s)

	waitFor(t, clk, s, models.PhaseStart, t0.Add(time.Minute))
	clk.Increment(time.Minute)

	waitFor(t, clk, s, models.PhaseEndingSoon, t0.Add(5*time.Minute))
	clk.Increment(4 * time.Minute)

	waitFor(t, clk, s, models.PhaseClose, t0.Add(10*time.Minute))
	clk.Increment(5 * time.Minute)

	require.Eventually(t, func() bool { return len(d.phases()) == 3 && s.Len() == 0 }, time.Second, time.Millisecond)
	require.Equal(t, []models.Phase{models.PhaseStart, models.PhaseEndingSoon, models.PhaseClose}, d.phases())
}

func TestScheduler_OverdueEntriesFireImmediately(t *testing.T) {
	t.Parallel()

	clk := fakeclock.NewFakeClock(t0.Add(time.Hour))
	s, d := newTestScheduler(t, clk, nil)
	s.Track(auction("a1", models.StatusEndingSoon, t0, t0.Add(10*time.Minute)))
	s.Track(auction("a2", models.StatusActive, t0, t0.Add(20*time.Minute)))
	run(t, s)

	require.Eventually(t, func() bool { return len(d.phases()) == 3 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, time.Millisecond)
}

func TestScheduler_RetriesFailedDispatch(t *testing.T) {
	t.Parallel()

	clk := fakeclock.NewFakeClock(t0)
	s, d := newTestScheduler(t, clk, nil)
	d.failures[models.PhaseClose] = []error{errors.New("actor busy")}
	s.Track(auction("a1", models.StatusEndingSoon, t0.Add(-time.Hour), t0.Add(time.Minute)))
	run(t, s)

	waitFor(t, clk, s, models.PhaseClose, t0.Add(time.Minute))
	clk.Increment(time.Minute)

	waitFor(t, clk, s, models.PhaseClose, t0.Add(time.Minute+10*time.Second))
	require.Len(t, d.phases(), 1)
	clk.Increment(10 * time.Second)

	require.Eventually(t, func() bool { return len(d.phases()) == 2 && s.Len() == 0 }, time.Second, time.Millisecond)
}

func TestScheduler_NotDueWaitsForRescheduledEnd(t *testing.T) {
	t.Parallel()

	clk := fakeclock.NewFakeClock(t0)
	s, d := newTestScheduler(t, clk, nil)
	d.failures[models.PhaseClose] = []error{biddingerrors.ErrNotDue}
	s.Track(auction("a1", models.StatusEndingSoon, t0.Add(-time.Hour), t0.Add(time.Minute)))
	run(t, s)

	waitFor(t, clk, s, models.PhaseClose, t0.Add(time.Minute))
	clk.Increment(time.Minute)

	// the actor extended the auction while the close was in flight
	require.Eventually(t, func() bool { return len(d.phases()) == 1 }, time.Second, time.Millisecond)
	s.Reschedule("a1", t0.Add(2*time.Minute))
	waitFor(t, clk, s, models.PhaseClose, t0.Add(2*time.Minute))
}

func TestScheduler_RescheduleMovesClose(t *testing.T) {
	t.Parallel()

	clk := fakeclock.NewFakeClock(t0)
	s, d := newTestScheduler(t, clk, nil)
	s.Track(auction("a1", models.StatusEndingSoon, t0.Add(-time.Hour), t0.Add(10*time.Minute)))
	run(t, s)

	waitFor(t, clk, s, models.PhaseClose, t0.Add(10*time.Minute))
	s.Reschedule("a1", t0.Add(11*time.Minute))
	waitFor(t, clk, s, models.PhaseClose, t0.Add(11*time.Minute))

	clk.Increment(10 * time.Minute)
	require.Never(t, func() bool { return len(d.phases()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	clk.Increment(time.Minute)
	require.Eventually(t, func() bool { return len(d.phases()) == 1 }, time.Second, time.Millisecond)
}

func TestScheduler_RemoveAndTerminal(t *testing.T) {
	t.Parallel()

	clk := fakeclock.NewFakeClock(t0)
	s, _ := newTestScheduler(t, clk, nil)

	s.Track(auction("a1", models.StatusScheduled, t0.Add(time.Minute), t0.Add(time.Hour)))
	s.Track(auction("a2", models.StatusActive, t0, t0.Add(time.Hour)))
	require.Equal(t, 2, s.Len())

	s.Remove("a1")
	require.Equal(t, 1, s.Len())

	s.Track(auction("a2", models.StatusCancelled, t0, t0.Add(time.Hour)))
	require.Equal(t, 0, s.Len())

	s.Reschedule("unknown", t0)
	s.Remove("unknown")
	require.Equal(t, 0, s.Len())
}

func TestScheduler_Rebuild(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := repository.NewMockAuctionStore(ctrl)
	clk := fakeclock.NewFakeClock(t0)
	s, _ := newTestScheduler(t, clk, store)

	store.EXPECT().ListOpenAuctions(gomock.Any()).Return([]models.Auction{
		auction("a1", models.StatusScheduled, t0.Add(time.Minute), t0.Add(time.Hour)),
		auction("a2", models.StatusEndingSoon, t0, t0.Add(2*time.Minute)),
	}, nil)
	require.NoError(t, s.Rebuild(context.Background()))
	require.Equal(t, 2, s.Len())

	id, phase, at, ok := s.Next()
	require.True(t, ok)
	require.Equal(t, "a1", id)
	require.Equal(t, models.PhaseStart, phase)
	require.Equal(t, t0.Add(time.Minute), at)

	store.EXPECT().ListOpenAuctions(gomock.Any()).Return(nil, biddingerrors.ErrStoreUnavailable)
	require.ErrorIs(t, s.Rebuild(context.Background()), biddingerrors.ErrStoreUnavailable)
}
