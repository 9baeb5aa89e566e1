package repository

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
)

// Commit is one atomic write for one auction. It is applied only when the
// stored version still equals ExpectedVersion.
type Commit struct {
	Auction         model.Auction
	ExpectedVersion int64
	NewBids         []model.Bid
	Superseded      []string
	SupersededAt    time.Time
	Agents          []model.ProxyAgent
}

// AuctionStore is the durable record of auctions, bids and proxy agents
type AuctionStore interface {
	CreateAuction(ctx context.Context, auction model.Auction) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListOpenAuctions(ctx context.Context) ([]model.Auction, error)
	CommitAuction(ctx context.Context, commit Commit) error
	GetBids(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetProxyAgents(ctx context.Context, auctionID string) ([]model.ProxyAgent, error)
}

// WatchlistStore holds the user-managed watch entries
type WatchlistStore interface {
	UpsertWatch(ctx context.Context, entry model.WatchEntry) error
	ListWatchers(ctx context.Context, auctionID string) ([]model.WatchEntry, error)
	MarkAlertFired(ctx context.Context, userID, auctionID string) (bool, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionStore and WatchlistStore
type MemoryRepo struct {
	mu       sync.RWMutex
	auctions map[string]model.Auction               // key: auctionID -> value: auction
	bids     map[string][]model.Bid                 // key: auctionID -> value: bids in commit order
	agents   map[string]map[string]model.ProxyAgent // key: auctionID -> bidderID -> agent
	watchers map[string]map[string]model.WatchEntry // key: auctionID -> userID -> entry
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions: make(map[string]model.Auction),
		bids:     make(map[string][]model.Bid),
		agents:   make(map[string]map[string]model.ProxyAgent),
		watchers: make(map[string]map[string]model.WatchEntry),
	}
}

// CreateAuction stores a new auction
func (r *MemoryRepo) CreateAuction(ctx context.Context, auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if auction.ID == "" {
		return fmt.Errorf("create auction: %w", biddingerrors.ErrInvalidAuction)
	}
	if _, ok := r.auctions[auction.ID]; ok {
		return fmt.Errorf("create auction %s: %w", auction.ID, biddingerrors.ErrAuctionExists)
	}
	r.auctions[auction.ID] = auction
	return nil
}

// GetAuction returns the stored auction
func (r *MemoryRepo) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return auction, nil
}

// ListOpenAuctions returns every auction the engine still has to drive, ordered by end time
func (r *MemoryRepo) ListOpenAuctions(ctx context.Context) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	open := make([]model.Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		if !a.Status.IsTerminal() {
			open = append(open, a)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].EndTime.Before(open[j].EndTime) })
	return open, nil
}

// CommitAuction applies a commit if the stored version matches
func (r *MemoryRepo) CommitAuction(ctx context.Context, commit Commit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := commit.Auction.ID
	stored, ok := r.auctions[id]
	if !ok {
		return fmt.Errorf("commit auction %s: %w", id, biddingerrors.ErrAuctionNotFound)
	}
	if stored.Version != commit.ExpectedVersion {
		return fmt.Errorf("commit auction %s: stored version %d, expected %d: %w", id, stored.Version, commit.ExpectedVersion, biddingerrors.ErrVersionConflict)
	}

	r.auctions[id] = commit.Auction

	if len(commit.Superseded) > 0 {
		superseded := make(map[string]struct{}, len(commit.Superseded))
		for _, bidID := range commit.Superseded {
			superseded[bidID] = struct{}{}
		}
		at := commit.SupersededAt
		for i, b := range r.bids[id] {
			if _, hit := superseded[b.ID]; hit && b.SupersededAt == nil {
				r.bids[id][i].SupersededAt = &at
			}
		}
	}
	r.bids[id] = append(r.bids[id], commit.NewBids...)

	if len(commit.Agents) > 0 {
		if r.agents[id] == nil {
			r.agents[id] = make(map[string]model.ProxyAgent)
		}
		for _, agent := range commit.Agents {
			r.agents[id][agent.BidderID] = agent
		}
	}
	return nil
}

// GetBids returns all bids for an auction in commit order
func (r *MemoryRepo) GetBids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return append([]model.Bid(nil), r.bids[auctionID]...), nil
}

// GetProxyAgents returns all agents for an auction ordered by registration
func (r *MemoryRepo) GetProxyAgents(ctx context.Context, auctionID string) ([]model.ProxyAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]model.ProxyAgent, 0, len(r.agents[auctionID]))
	for _, agent := range r.agents[auctionID] {
		agents = append(agents, agent)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].RegisteredAt.Before(agents[j].RegisteredAt) })
	return agents, nil
}

// UpsertWatch creates or replaces a watch entry, keeping the fired flag of an existing one
func (r *MemoryRepo) UpsertWatch(ctx context.Context, entry model.WatchEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.UserID == "" || entry.AuctionID == "" {
		return fmt.Errorf("upsert watch: missing user or auction: %w", biddingerrors.ErrInvalidAuction)
	}
	if r.watchers[entry.AuctionID] == nil {
		r.watchers[entry.AuctionID] = make(map[string]model.WatchEntry)
	}
	if existing, ok := r.watchers[entry.AuctionID][entry.UserID]; ok && thresholdEqual(existing, entry) {
		entry.AlertFired = existing.AlertFired
	}
	r.watchers[entry.AuctionID][entry.UserID] = entry
	return nil
}

// ListWatchers returns the watch entries of an auction
func (r *MemoryRepo) ListWatchers(ctx context.Context, auctionID string) ([]model.WatchEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]model.WatchEntry, 0, len(r.watchers[auctionID]))
	for _, e := range r.watchers[auctionID] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries, nil
}

// MarkAlertFired sets the fired flag and reports whether this call was the one that set it
func (r *MemoryRepo) MarkAlertFired(ctx context.Context, userID, auctionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.watchers[auctionID][userID]
	if !ok || entry.AlertFired {
		return false, nil
	}
	entry.AlertFired = true
	r.watchers[auctionID][userID] = entry
	return true, nil
}

// SetStatus overwrites an auction's status and bumps its version. This method is intended for
// the external settlement process and for tests.
func (r *MemoryRepo) SetStatus(auctionID string, status model.AuctionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.auctions[auctionID]
	a.Status = status
	a.Version++
	r.auctions[auctionID] = a
}

// thresholdEqual reports whether an upsert keeps the same alert threshold
func thresholdEqual(a, b model.WatchEntry) bool {
	if a.PriceAlertThreshold == nil || b.PriceAlertThreshold == nil {
		return a.PriceAlertThreshold == nil && b.PriceAlertThreshold == nil
	}
	return a.PriceAlertThreshold.Equal(*b.PriceAlertThreshold)
}
