// Package scheduler wakes auctions at their lifecycle boundaries. It keeps one
// pending entry per auction in a min-heap keyed by wake time and hands due
// entries to a work pool that dispatches them to the auction actors.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/workpool"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/utils"
)

// Dispatcher delivers a due phase to the auction's actor
type Dispatcher interface {
	Dispatch(ctx context.Context, auctionID string, phase models.Phase) error
}

// AuctionLister is the part of the store Rebuild needs
type AuctionLister interface {
	ListOpenAuctions(ctx context.Context) ([]models.Auction, error)
}

// Config tunes the scheduler
type Config struct {
	EndingSoonWindow time.Duration
	RetryDelay       time.Duration
	Workers          int
}

// timeline is what the scheduler remembers about an auction between phases
type timeline struct {
	start time.Time
	end   time.Time
}

// Scheduler drives Start, EndingSoon and Close for every tracked auction.
// Delivery is at-least-once; the actors treat repeated phases as no-ops.
type Scheduler struct {
	clock      clock.Clock
	dispatcher Dispatcher
	lister     AuctionLister
	pool       *workpool.WorkPool
	cfg        Config

	mu        sync.Mutex
	heap      wakeHeap
	entries   map[string]*entry
	timelines map[string]timeline
	inflight  map[string]bool

	wake chan struct{}
}

// New creates a scheduler with its own dispatch pool
func New(clk clock.Clock, dispatcher Dispatcher, lister AuctionLister, cfg Config) (*Scheduler, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	pool, err := workpool.NewWorkPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("scheduler: create work pool: %w", err)
	}
	return &Scheduler{
		clock:      clk,
		dispatcher: dispatcher,
		lister:     lister,
		pool:       pool,
		cfg:        cfg,
		entries:    make(map[string]*entry),
		timelines:  make(map[string]timeline),
		inflight:   make(map[string]bool),
		wake:       make(chan struct{}, 1),
	}, nil
}

// Rebuild re-tracks every non-terminal auction in the store. It runs on
// startup so that wake-ups lost with the previous process are recreated.
func (s *Scheduler) Rebuild(ctx context.Context) error {
	auctions, err := s.lister.ListOpenAuctions(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: rebuild: %w", err)
	}
	for _, a := range auctions {
		s.Track(a)
	}
	utils.Info("scheduler: rebuilt wake-up heap", map[string]any{"auctions": len(auctions)})
	return nil
}

// Track schedules the next phase an auction still has to go through
func (s *Scheduler) Track(a models.Auction) {
	phase, ok := nextPhaseFor(a.Status)
	if !ok {
		s.Remove(a.ID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.timelines[a.ID] = timeline{start: a.StartTime, end: a.EndTime}
	if s.inflight[a.ID] {
		return
	}
	s.upsertLocked(a.ID, phase, s.wakeAtLocked(a.ID, phase))
}

// Reschedule moves an auction's end time after an anti-snipe extension
func (s *Scheduler) Reschedule(auctionID string, endTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tl, ok := s.timelines[auctionID]
	if !ok {
		return
	}
	tl.end = endTime
	s.timelines[auctionID] = tl

	if e, ok := s.entries[auctionID]; ok && e.phase != models.PhaseStart {
		s.upsertLocked(auctionID, e.phase, s.wakeAtLocked(auctionID, e.phase))
	}
}

// Remove forgets an auction
func (s *Scheduler) Remove(auctionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.timelines, auctionID)
	if e, ok := s.entries[auctionID]; ok {
		heap.Remove(&s.heap, e.index)
		delete(s.entries, auctionID)
	}
}

// Len is the number of pending wake-ups
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}

// Next returns the earliest pending wake-up
func (s *Scheduler) Next() (auctionID string, phase models.Phase, wakeAt time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.heap.Len() == 0 {
		return "", "", time.Time{}, false
	}
	e := s.heap[0]
	return e.auctionID, e.phase, e.wakeAt, true
}

// Run blocks until ctx is cancelled, dispatching entries as they come due
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.pool.Stop()

	for {
		due, next, pending := s.popDue(s.clock.Now())
		for _, e := range due {
			s.submit(ctx, e)
		}

		var (
			timer  clock.Timer
			timerC <-chan time.Time
		)
		if pending {
			timer = s.clock.NewTimer(next.Sub(s.clock.Now()))
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-timerC:
		case <-s.wake:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// popDue removes every entry due at now and reports the next wake time
func (s *Scheduler) popDue(now time.Time) ([]*entry, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*entry
	for s.heap.Len() > 0 && !s.heap[0].wakeAt.After(now) {
		e := heap.Pop(&s.heap).(*entry)
		delete(s.entries, e.auctionID)
		s.inflight[e.auctionID] = true
		due = append(due, e)
	}
	if s.heap.Len() == 0 {
		return due, time.Time{}, false
	}
	return due, s.heap[0].wakeAt, true
}

func (s *Scheduler) submit(ctx context.Context, e *entry) {
	s.pool.Submit(func() {
		err := s.dispatcher.Dispatch(ctx, e.auctionID, e.phase)
		s.complete(e, err)
	})
}

// complete queues the follow-up of a dispatched entry
func (s *Scheduler) complete(e *entry, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, e.auctionID)

	if _, tracked := s.timelines[e.auctionID]; !tracked {
		return
	}

	switch {
	case err == nil:
		next, ok := followingPhase(e.phase)
		if !ok {
			delete(s.timelines, e.auctionID)
			return
		}
		s.upsertLocked(e.auctionID, next, s.wakeAtLocked(e.auctionID, next))
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		utils.Warn("scheduler: dropping unknown auction", map[string]any{"auction_id": e.auctionID, "phase": e.phase})
		delete(s.timelines, e.auctionID)
	case errors.Is(err, biddingerrors.ErrNotDue):
		wakeAt := s.wakeAtLocked(e.auctionID, e.phase)
		if retry := s.clock.Now().Add(s.cfg.RetryDelay); wakeAt.Before(retry) {
			wakeAt = retry
		}
		s.upsertLocked(e.auctionID, e.phase, wakeAt)
	default:
		utils.Warn("scheduler: dispatch failed, retrying", map[string]any{
			"auction_id":  e.auctionID,
			"phase":       e.phase,
			"retry_delay": s.cfg.RetryDelay.String(),
			"error":       err.Error(),
		})
		s.upsertLocked(e.auctionID, e.phase, s.clock.Now().Add(s.cfg.RetryDelay))
	}
}

func (s *Scheduler) upsertLocked(auctionID string, phase models.Phase, wakeAt time.Time) {
	if e, ok := s.entries[auctionID]; ok {
		e.phase = phase
		e.wakeAt = wakeAt
		heap.Fix(&s.heap, e.index)
	} else {
		e := &entry{auctionID: auctionID, phase: phase, wakeAt: wakeAt}
		heap.Push(&s.heap, e)
		s.entries[auctionID] = e
	}
	s.notify()
}

func (s *Scheduler) wakeAtLocked(auctionID string, phase models.Phase) time.Time {
	tl := s.timelines[auctionID]
	switch phase {
	case models.PhaseStart:
		return tl.start
	case models.PhaseEndingSoon:
		return tl.end.Add(-s.cfg.EndingSoonWindow)
	default:
		return tl.end
	}
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func nextPhaseFor(status models.AuctionStatus) (models.Phase, bool) {
	switch status {
	case models.StatusScheduled:
		return models.PhaseStart, true
	case models.StatusActive:
		return models.PhaseEndingSoon, true
	case models.StatusEndingSoon:
		return models.PhaseClose, true
	default:
		return "", false
	}
}

func followingPhase(p models.Phase) (models.Phase, bool) {
	switch p {
	case models.PhaseStart:
		return models.PhaseEndingSoon, true
	case models.PhaseEndingSoon:
		return models.PhaseClose, true
	default:
		return "", false
	}
}
