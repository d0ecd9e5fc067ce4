package repository

import (
	"auction-marketplace/internal/biddingerrors"
	model "auction-marketplace/internal/models"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresConfig holds connection pool settings for PostgresRepo
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresRepo implements AuctionDB on PostgreSQL. The auctions row is the
// single point of synchronization: commits update it conditionally on its
// version inside the same transaction that writes the bid rows.
type PostgresRepo struct {
	db *sql.DB
}

// NewPostgresRepo opens a connection pool and verifies it
func NewPostgresRepo(cfg PostgresConfig) (*PostgresRepo, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &PostgresRepo{db: db}, nil
}

// NewPostgresRepoFromDB wraps an existing pool
func NewPostgresRepoFromDB(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// InitSchema creates the ledger tables
func (r *PostgresRepo) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS auctions (
		id VARCHAR(64) PRIMARY KEY,
		seller_id VARCHAR(64) NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category VARCHAR(255) NOT NULL DEFAULT '',
		image_ref TEXT NOT NULL DEFAULT '',
		starting_price BIGINT NOT NULL CHECK (starting_price > 0),
		current_highest_price BIGINT NOT NULL,
		start_at TIMESTAMPTZ NOT NULL,
		end_at TIMESTAMPTZ NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'active',
		payment_status VARCHAR(32) NOT NULL DEFAULT 'pending',
		winner_id VARCHAR(64),
		winning_bid_id VARCHAR(64),
		winning_amount BIGINT,
		version BIGINT NOT NULL DEFAULT 0,
		last_bid_seq BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (current_highest_price >= starting_price),
		CHECK ((winner_id IS NULL) = (winning_bid_id IS NULL))
	);

	CREATE TABLE IF NOT EXISTS bids (
		id VARCHAR(64) PRIMARY KEY,
		auction_id VARCHAR(64) NOT NULL REFERENCES auctions(id),
		bidder_id VARCHAR(64) NOT NULL,
		amount BIGINT NOT NULL CHECK (amount > 0),
		max_bid BIGINT,
		seq BIGINT NOT NULL,
		is_winning BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (auction_id, seq),
		CHECK (max_bid IS NULL OR amount <= max_bid)
	);

	CREATE INDEX IF NOT EXISTS idx_bids_bidder_id ON bids(bidder_id);
	CREATE INDEX IF NOT EXISTS idx_auctions_status_end_at ON auctions(status, end_at);
	`

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const auctionColumns = `id, seller_id, title, description, category, image_ref, starting_price,
	current_highest_price, start_at, end_at, status, payment_status, winner_id, winning_bid_id,
	winning_amount, version, last_bid_seq, created_at`

const bidColumns = `id, auction_id, bidder_id, amount, max_bid, seq, is_winning, created_at`

// CreateAuction inserts a new auction row
func (r *PostgresRepo) CreateAuction(ctx context.Context, a model.Auction) error {
	query := `INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := r.db.ExecContext(ctx, query,
		a.AuctionID, a.SellerID, a.Title, a.Description, a.Category, a.ImageRef, a.StartingPrice,
		a.CurrentHighestPrice, a.StartAt.UTC(), a.EndAt.UTC(), string(a.Status), string(a.PaymentStatus),
		nullString(a.WinnerID), nullString(a.WinningBidID), nullInt(a.WinningAmount),
		a.Version, a.LastBidSeq, a.CreatedAt.UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("create auction %s: %w - duplicate auction ID", a.AuctionID, biddingerrors.ErrInvalidAuction)
		}
		return fmt.Errorf("failed to insert auction: %w", err)
	}
	return nil
}

// GetAuction returns the auction row
func (r *PostgresRepo) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, auctionID)
	auction, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("failed to get auction: %w", err)
	}
	return auction, nil
}

// LoadAggregate reads the auction and its bids from one repeatable-read snapshot
func (r *PostgresRepo) LoadAggregate(ctx context.Context, auctionID string) (model.Aggregate, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return model.Aggregate{}, fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	auction, err := scanAuction(tx.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Aggregate{}, fmt.Errorf("load auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Aggregate{}, fmt.Errorf("failed to load auction: %w", err)
	}

	bids, err := queryBids(ctx, tx, `SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY seq`, auctionID)
	if err != nil {
		return model.Aggregate{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.Aggregate{}, fmt.Errorf("failed to close snapshot: %w", err)
	}
	return model.Aggregate{Auction: auction, Bids: bids}, nil
}

// CommitAggregate writes change in a single transaction guarded by the
// auction's version. The conditional update runs first so the row lock is
// held while bid rows are written.
func (r *PostgresRepo) CommitAggregate(ctx context.Context, change model.AggregateChange) (model.Auction, error) {
	a := change.Auction

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Auction{}, fmt.Errorf("failed to begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE auctions SET
			current_highest_price = $1,
			status = $2,
			payment_status = $3,
			winner_id = $4,
			winning_bid_id = $5,
			winning_amount = $6,
			last_bid_seq = $7,
			version = version + 1
		WHERE id = $8 AND version = $9`,
		a.CurrentHighestPrice, string(a.Status), string(a.PaymentStatus),
		nullString(a.WinnerID), nullString(a.WinningBidID), nullInt(a.WinningAmount),
		a.LastBidSeq, a.AuctionID, a.Version,
	)
	if err != nil {
		return model.Auction{}, classify("update auction", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return model.Auction{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM auctions WHERE id = $1)`, a.AuctionID).Scan(&exists); err != nil {
			return model.Auction{}, classify("check auction", err)
		}
		if !exists {
			return model.Auction{}, fmt.Errorf("commit auction %s: %w", a.AuctionID, biddingerrors.ErrAuctionNotFound)
		}
		return model.Auction{}, fmt.Errorf("commit auction %s at version %d: %w", a.AuctionID, a.Version, biddingerrors.ErrVersionConflict)
	}

	if len(change.DeletedBidIDs) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM bids WHERE auction_id = $1 AND id = ANY($2)`,
			a.AuctionID, pq.Array(change.DeletedBidIDs),
		); err != nil {
			return model.Auction{}, classify("delete bids", err)
		}
	}

	for _, b := range change.NewBids {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bids (`+bidColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			b.BidID, b.AuctionID, b.BidderID, b.Amount, nullInt(b.MaxBid), b.Seq, b.IsWinning, b.CreatedAt.UTC(),
		); err != nil {
			return model.Auction{}, classify("insert bid", err)
		}
	}

	if change.WinningBidID != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE bids SET is_winning = (id = $2) WHERE auction_id = $1`,
			a.AuctionID, change.WinningBidID,
		); err != nil {
			return model.Auction{}, classify("mark winning bid", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Auction{}, classify("commit", err)
	}

	a.Version++
	return a, nil
}

// GetBidsByAuction returns all bids for an auction in Seq order
func (r *PostgresRepo) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if _, err := r.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	bids, err := queryBids(ctx, r.db, `SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY seq`, auctionID)
	if err != nil {
		return nil, err
	}
	if len(bids) == 0 {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return bids, nil
}

// GetAuctionsByUser returns all auctions a user has bid on
func (r *PostgresRepo) GetAuctionsByUser(ctx context.Context, userID string) ([]model.Auction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+auctionColumns+` FROM auctions
		WHERE id IN (SELECT DISTINCT auction_id FROM bids WHERE bidder_id = $1)
		ORDER BY end_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query auctions: %w", err)
	}
	defer rows.Close()

	var auctions []model.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, auction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate auctions: %w", err)
	}
	if len(auctions) == 0 {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, biddingerrors.ErrUserNoBids)
	}
	return auctions, nil
}

// ListExpiredAuctions returns active auctions whose end time has passed
func (r *PostgresRepo) ListExpiredAuctions(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM auctions WHERE status = $1 AND end_at <= $2 ORDER BY end_at, id`,
		string(model.StatusActive), now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired auctions: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan auction id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database connection
func (r *PostgresRepo) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanAuction(row rowScanner) (model.Auction, error) {
	var (
		a             model.Auction
		status        string
		paymentStatus string
		winnerID      sql.NullString
		winningBidID  sql.NullString
		winningAmount sql.NullInt64
	)
	err := row.Scan(
		&a.AuctionID, &a.SellerID, &a.Title, &a.Description, &a.Category, &a.ImageRef, &a.StartingPrice,
		&a.CurrentHighestPrice, &a.StartAt, &a.EndAt, &status, &paymentStatus, &winnerID, &winningBidID,
		&winningAmount, &a.Version, &a.LastBidSeq, &a.CreatedAt,
	)
	if err != nil {
		return model.Auction{}, err
	}

	parsed, ok := model.ParseAuctionStatus(status)
	if !ok {
		return model.Auction{}, fmt.Errorf("auction %s has unknown status %q", a.AuctionID, status)
	}
	a.Status = parsed
	a.PaymentStatus = model.PaymentStatus(paymentStatus)
	a.WinnerID = winnerID.String
	a.WinningBidID = winningBidID.String
	a.WinningAmount = winningAmount.Int64
	a.StartAt = a.StartAt.UTC()
	a.EndAt = a.EndAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func queryBids(ctx context.Context, q queryer, query string, args ...any) ([]model.Bid, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		var (
			b      model.Bid
			maxBid sql.NullInt64
		)
		if err := rows.Scan(&b.BidID, &b.AuctionID, &b.BidderID, &b.Amount, &maxBid, &b.Seq, &b.IsWinning, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		b.MaxBid = maxBid.Int64
		b.CreatedAt = b.CreatedAt.UTC()
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bids: %w", err)
	}
	return bids, nil
}

// classify turns serialization failures and deadlocks into version conflicts
// so the caller retries them.
func classify(step string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "serialization_failure", "deadlock_detected", "unique_violation":
			return fmt.Errorf("%s: %w: %v", step, biddingerrors.ErrVersionConflict, err)
		}
	}
	return fmt.Errorf("failed to %s: %w", step, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
