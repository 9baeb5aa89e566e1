package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
)

// PoolOptions tune the PostgreSQL connection pool
type PoolOptions struct {
	DSN             string
	MaxConns        int32
	ConnMaxLifetime time.Duration
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, opts PoolOptions) (*pgxpool.Pool, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// PostgresStore implements AuctionStore and WatchlistStore on PostgreSQL.
// Money columns are NUMERIC and cross the wire as decimal text.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

const auctionColumns = `id, seller_id, starting_price::text, min_increment::text, increment_policy,
	start_time, end_time, status, current_price::text, highest_bidder_id, bid_count, extensions, version, created_at`

// CreateAuction stores a new auction
func (s *PostgresStore) CreateAuction(ctx context.Context, auction model.Auction) error {
	const stmt = `
INSERT INTO auctions (id, seller_id, starting_price, min_increment, increment_policy,
	start_time, end_time, status, current_price, highest_bidder_id, bid_count, extensions, version, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	if auction.ID == "" {
		return fmt.Errorf("create auction: %w", biddingerrors.ErrInvalidAuction)
	}
	_, err := s.pool.Exec(ctx, stmt,
		auction.ID,
		auction.SellerID,
		auction.StartingPrice.String(),
		auction.MinIncrement.String(),
		string(auction.IncrementPolicy),
		auction.StartTime,
		auction.EndTime,
		string(auction.Status),
		auction.CurrentPrice.String(),
		auction.HighestBidderID,
		auction.BidCount,
		auction.Extensions,
		auction.Version,
		auction.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create auction %s: %w", auction.ID, biddingerrors.ErrAuctionExists)
		}
		return storeError("create auction "+auction.ID, err)
	}
	return nil
}

// GetAuction returns the stored auction
func (s *PostgresStore) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, auctionID)
	a, err := scanAuction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
		}
		return model.Auction{}, storeError("get auction "+auctionID, err)
	}
	return a, nil
}

// ListOpenAuctions returns every auction the engine still has to drive, ordered by end time
func (s *PostgresStore) ListOpenAuctions(ctx context.Context) ([]model.Auction, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+auctionColumns+` FROM auctions
WHERE status NOT IN ('closed', 'settled', 'cancelled') ORDER BY end_time, id`)
	if err != nil {
		return nil, storeError("list open auctions", err)
	}
	defer rows.Close()

	var open []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, storeError("scan open auction", err)
		}
		open = append(open, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list open auctions", err)
	}
	return open, nil
}

// CommitAuction applies a commit in one transaction if the stored version matches
func (s *PostgresStore) CommitAuction(ctx context.Context, commit Commit) error {
	a := commit.Auction
	return s.withTx(ctx, func(tx pgx.Tx) error {
		const update = `
UPDATE auctions SET status = $3, current_price = $4, highest_bidder_id = $5, bid_count = $6,
	extensions = $7, end_time = $8, version = $9
WHERE id = $1 AND version = $2`

		tag, err := tx.Exec(ctx, update,
			a.ID, commit.ExpectedVersion,
			string(a.Status), a.CurrentPrice.String(), a.HighestBidderID, a.BidCount,
			a.Extensions, a.EndTime, a.Version,
		)
		if err != nil {
			return storeError("commit auction "+a.ID, err)
		}
		if tag.RowsAffected() == 0 {
			var stored int64
			err := tx.QueryRow(ctx, `SELECT version FROM auctions WHERE id = $1`, a.ID).Scan(&stored)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("commit auction %s: %w", a.ID, biddingerrors.ErrAuctionNotFound)
			}
			if err != nil {
				return storeError("commit auction "+a.ID, err)
			}
			return fmt.Errorf("commit auction %s: stored version %d, expected %d: %w", a.ID, stored, commit.ExpectedVersion, biddingerrors.ErrVersionConflict)
		}

		if len(commit.Superseded) > 0 {
			const supersede = `UPDATE bids SET superseded_at = $3 WHERE auction_id = $1 AND id = ANY($2) AND superseded_at IS NULL`
			if _, err := tx.Exec(ctx, supersede, a.ID, commit.Superseded, commit.SupersededAt); err != nil {
				return storeError("supersede bids of auction "+a.ID, err)
			}
		}

		const insertBid = `
INSERT INTO bids (id, auction_id, bidder_id, amount, placed_at, kind, superseded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
		for _, b := range commit.NewBids {
			if _, err := tx.Exec(ctx, insertBid, b.ID, b.AuctionID, b.BidderID, b.Amount.String(), b.PlacedAt, string(b.Kind), b.SupersededAt); err != nil {
				return storeError("insert bid "+b.ID, err)
			}
		}

		const upsertAgent = `
INSERT INTO proxy_agents (auction_id, bidder_id, max_amount, active, registered_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (auction_id, bidder_id) DO UPDATE
SET max_amount = EXCLUDED.max_amount, active = EXCLUDED.active, registered_at = EXCLUDED.registered_at`
		for _, ag := range commit.Agents {
			if _, err := tx.Exec(ctx, upsertAgent, ag.AuctionID, ag.BidderID, ag.MaxAmount.String(), ag.Active, ag.RegisteredAt); err != nil {
				return storeError("upsert proxy agent "+ag.BidderID, err)
			}
		}
		return nil
	})
}

// GetBids returns all bids for an auction in commit order
func (s *PostgresStore) GetBids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, auction_id, bidder_id, amount::text, placed_at, kind, superseded_at
FROM bids WHERE auction_id = $1 ORDER BY seq`, auctionID)
	if err != nil {
		return nil, storeError("get bids of auction "+auctionID, err)
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		var (
			b      model.Bid
			amount string
			kind   string
		)
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &amount, &b.PlacedAt, &kind, &b.SupersededAt); err != nil {
			return nil, storeError("scan bid", err)
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("scan bid %s amount: %w", b.ID, err)
		}
		b.Kind = model.BidKind(kind)
		b.PlacedAt = b.PlacedAt.UTC()
		if b.SupersededAt != nil {
			at := b.SupersededAt.UTC()
			b.SupersededAt = &at
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("get bids of auction "+auctionID, err)
	}
	return bids, nil
}

// GetProxyAgents returns the proxy agents of an auction ordered by registration
func (s *PostgresStore) GetProxyAgents(ctx context.Context, auctionID string) ([]model.ProxyAgent, error) {
	rows, err := s.pool.Query(ctx, `
SELECT auction_id, bidder_id, max_amount::text, active, registered_at
FROM proxy_agents WHERE auction_id = $1 ORDER BY registered_at, bidder_id`, auctionID)
	if err != nil {
		return nil, storeError("get proxy agents of auction "+auctionID, err)
	}
	defer rows.Close()

	var agents []model.ProxyAgent
	for rows.Next() {
		var (
			ag        model.ProxyAgent
			maxAmount string
		)
		if err := rows.Scan(&ag.AuctionID, &ag.BidderID, &maxAmount, &ag.Active, &ag.RegisteredAt); err != nil {
			return nil, storeError("scan proxy agent", err)
		}
		if ag.MaxAmount, err = decimal.NewFromString(maxAmount); err != nil {
			return nil, fmt.Errorf("scan proxy agent %s cap: %w", ag.BidderID, err)
		}
		ag.RegisteredAt = ag.RegisteredAt.UTC()
		agents = append(agents, ag)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("get proxy agents of auction "+auctionID, err)
	}
	return agents, nil
}

// UpsertWatch creates or replaces a watch entry. The fired flag survives
// only when the threshold is unchanged.
func (s *PostgresStore) UpsertWatch(ctx context.Context, entry model.WatchEntry) error {
	const stmt = `
INSERT INTO watch_entries (auction_id, user_id, price_alert_threshold, notify_on_outbid, notify_on_ending_soon, alert_fired)
VALUES ($1, $2, $3, $4, $5, FALSE)
ON CONFLICT (auction_id, user_id) DO UPDATE
SET price_alert_threshold = EXCLUDED.price_alert_threshold,
	notify_on_outbid = EXCLUDED.notify_on_outbid,
	notify_on_ending_soon = EXCLUDED.notify_on_ending_soon,
	alert_fired = CASE
		WHEN watch_entries.price_alert_threshold IS NOT DISTINCT FROM EXCLUDED.price_alert_threshold
		THEN watch_entries.alert_fired
		ELSE FALSE
	END`

	if entry.UserID == "" || entry.AuctionID == "" {
		return fmt.Errorf("upsert watch: missing user or auction: %w", biddingerrors.ErrInvalidAuction)
	}
	var threshold *string
	if entry.PriceAlertThreshold != nil {
		t := entry.PriceAlertThreshold.String()
		threshold = &t
	}
	if _, err := s.pool.Exec(ctx, stmt, entry.AuctionID, entry.UserID, threshold, entry.NotifyOnOutbid, entry.NotifyOnEndingSoon); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("upsert watch on auction %s: %w", entry.AuctionID, biddingerrors.ErrAuctionNotFound)
		}
		return storeError("upsert watch on auction "+entry.AuctionID, err)
	}
	return nil
}

// ListWatchers returns the watch entries of an auction
func (s *PostgresStore) ListWatchers(ctx context.Context, auctionID string) ([]model.WatchEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT user_id, auction_id, price_alert_threshold::text, notify_on_outbid, notify_on_ending_soon, alert_fired
FROM watch_entries WHERE auction_id = $1 ORDER BY user_id`, auctionID)
	if err != nil {
		return nil, storeError("list watchers of auction "+auctionID, err)
	}
	defer rows.Close()

	var entries []model.WatchEntry
	for rows.Next() {
		var (
			e         model.WatchEntry
			threshold *string
		)
		if err := rows.Scan(&e.UserID, &e.AuctionID, &threshold, &e.NotifyOnOutbid, &e.NotifyOnEndingSoon, &e.AlertFired); err != nil {
			return nil, storeError("scan watch entry", err)
		}
		if threshold != nil {
			d, err := decimal.NewFromString(*threshold)
			if err != nil {
				return nil, fmt.Errorf("scan watch entry of %s threshold: %w", e.UserID, err)
			}
			e.PriceAlertThreshold = &d
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list watchers of auction "+auctionID, err)
	}
	return entries, nil
}

// MarkAlertFired sets the fired flag and reports whether this call was the one that set it
func (s *PostgresStore) MarkAlertFired(ctx context.Context, userID, auctionID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE watch_entries SET alert_fired = TRUE
WHERE auction_id = $1 AND user_id = $2 AND NOT alert_fired`, auctionID, userID)
	if err != nil {
		return false, storeError("mark alert of user "+userID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storeError("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storeError("commit transaction", err)
	}
	return nil
}

func scanAuction(row pgx.Row) (model.Auction, error) {
	var (
		a                                 model.Auction
		startingPrice, minInc, currentStr string
		policy, status                    string
	)
	err := row.Scan(&a.ID, &a.SellerID, &startingPrice, &minInc, &policy,
		&a.StartTime, &a.EndTime, &status, &currentStr, &a.HighestBidderID, &a.BidCount, &a.Extensions, &a.Version, &a.CreatedAt)
	if err != nil {
		return model.Auction{}, err
	}
	if a.StartingPrice, err = decimal.NewFromString(startingPrice); err != nil {
		return model.Auction{}, fmt.Errorf("starting price: %w", err)
	}
	if a.MinIncrement, err = decimal.NewFromString(minInc); err != nil {
		return model.Auction{}, fmt.Errorf("min increment: %w", err)
	}
	if a.CurrentPrice, err = decimal.NewFromString(currentStr); err != nil {
		return model.Auction{}, fmt.Errorf("current price: %w", err)
	}
	a.IncrementPolicy = model.IncrementPolicy(policy)
	a.Status = model.AuctionStatus(status)
	a.StartTime = a.StartTime.UTC()
	a.EndTime = a.EndTime.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

// storeError marks infrastructure failures so callers can tell them apart
// from business outcomes
func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, biddingerrors.ErrStoreUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
