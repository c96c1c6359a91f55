package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"pigeon-auction/internal/biddingerrors"
	model "pigeon-auction/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresConfig holds connection parameters for the Postgres store
type PostgresConfig struct {
	URL               string
	MaxConns          int32
	MinConns          int32
	HealthCheckPeriod time.Duration
}

// PostgresRepo implements AuctionDB on Postgres. Bid acceptance runs on a
// pgx pool; listing and history queries go through sqlx.
type PostgresRepo struct {
	pool *pgxpool.Pool
	db   *sqlx.DB
}

const auctionColumns = `id, seller_id, title, description, category, starting_price, current_price,
	buy_now_price, reserve_price, start_time, end_time, status, is_approved, created_at`

const bidColumns = `id, auction_id, bidder_id, amount, created_at, is_winning`

// NewPostgresRepo opens both connection pools and pings them
func NewPostgresRepo(ctx context.Context, cfg PostgresConfig) (*PostgresRepo, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.URL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: connect read pool: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}

	return &PostgresRepo{pool: pool, db: db}, nil
}

// Close releases both pools
func (r *PostgresRepo) Close() error {
	r.pool.Close()
	return r.db.Close()
}

// Migrate applies the embedded schema migrations
func (r *PostgresRepo) Migrate() error {
	return Migrate(r.db.DB)
}

// Ping checks both pools
func (r *PostgresRepo) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return classify("ping", err)
	}
	if err := r.db.PingContext(ctx); err != nil {
		return classify("ping read pool", err)
	}
	return nil
}

// CreateAuction inserts a new auction row
func (r *PostgresRepo) CreateAuction(ctx context.Context, a model.Auction) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO auctions (`+auctionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.AuctionID, a.SellerID, a.Title, a.Description, a.Category, a.StartingPrice, a.CurrentPrice,
		a.BuyNowPrice, a.ReservePrice, a.StartTime, a.EndTime, string(a.Status), a.IsApproved, a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: create auction %s: %w - duplicate id", a.AuctionID, biddingerrors.ErrInvalidAuction)
		}
		return classify("create auction "+a.AuctionID, err)
	}
	return nil
}

// GetAuction returns an auction by id
func (r *PostgresRepo) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	var a model.Auction
	err := r.db.GetContext(ctx, &a, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("postgres: get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, classify("get auction "+auctionID, err)
	}
	return a, nil
}

// ListAuctions returns one page of approved auctions and the total match count
func (r *PostgresRepo) ListAuctions(ctx context.Context, q model.AuctionQuery) ([]model.Auction, int, error) {
	where := []string{"is_approved = TRUE"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Category != "" {
		where = append(where, "category = "+arg(q.Category))
	}
	if q.Status != "" {
		where = append(where, "status = "+arg(string(q.Status)))
	}
	if q.Search != "" {
		p := arg("%" + q.Search + "%")
		where = append(where, "(title ILIKE "+p+" OR description ILIKE "+p+")")
	}
	filter := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM auctions`+filter, args...); err != nil {
		return nil, 0, classify("count auctions", err)
	}

	query := `SELECT ` + auctionColumns + ` FROM auctions` + filter +
		` ORDER BY ` + orderBy(q.SortBy) +
		` LIMIT ` + arg(q.Limit) + ` OFFSET ` + arg(q.Offset())

	auctions := []model.Auction{}
	if err := r.db.SelectContext(ctx, &auctions, query, args...); err != nil {
		return nil, 0, classify("list auctions", err)
	}
	return auctions, total, nil
}

func orderBy(sortBy string) string {
	switch sortBy {
	case model.SortEndingSoon:
		return "end_time ASC, id"
	case model.SortPriceAsc:
		return "current_price ASC, id"
	case model.SortPriceDesc:
		return "current_price DESC, id"
	default:
		return "created_at DESC, id"
	}
}

// ApproveAuction moves a pending auction to ACTIVE and marks it approved
func (r *PostgresRepo) ApproveAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE auctions SET status = 'ACTIVE', is_approved = TRUE
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+auctionColumns, auctionID)

	a, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.GetAuction(ctx, auctionID)
		if getErr != nil {
			return model.Auction{}, getErr
		}
		return model.Auction{}, fmt.Errorf("postgres: approve auction %s: %w - status is %s",
			auctionID, biddingerrors.ErrAuctionNotActive, current.Status)
	}
	if err != nil {
		return model.Auction{}, classify("approve auction "+auctionID, err)
	}
	return a, nil
}

// LoadSnapshot reads the auction row and its highest bid in a single statement
func (r *PostgresRepo) LoadSnapshot(ctx context.Context, auctionID string) (model.AuctionSnapshot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT a.id, a.seller_id, a.title, a.description, a.category, a.starting_price, a.current_price,
		       a.buy_now_price, a.reserve_price, a.start_time, a.end_time, a.status, a.is_approved, a.created_at,
		       b.id, b.bidder_id, b.amount, b.created_at, b.is_winning
		FROM auctions a
		LEFT JOIN LATERAL (
			SELECT id, bidder_id, amount, created_at, is_winning
			FROM bids
			WHERE auction_id = a.id
			ORDER BY amount DESC, created_at ASC
			LIMIT 1
		) b ON TRUE
		WHERE a.id = $1`, auctionID)

	var (
		a      model.Auction
		status string
		bidID  *string
		bidder *string
		amount *float64
		bidAt  *time.Time
		winner *bool
	)
	err := row.Scan(
		&a.AuctionID, &a.SellerID, &a.Title, &a.Description, &a.Category, &a.StartingPrice, &a.CurrentPrice,
		&a.BuyNowPrice, &a.ReservePrice, &a.StartTime, &a.EndTime, &status, &a.IsApproved, &a.CreatedAt,
		&bidID, &bidder, &amount, &bidAt, &winner,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AuctionSnapshot{}, fmt.Errorf("postgres: load snapshot %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.AuctionSnapshot{}, classify("load snapshot "+auctionID, err)
	}
	a.Status = model.AuctionStatus(status)

	snapshot := model.AuctionSnapshot{Auction: a}
	if bidID != nil {
		snapshot.HighestBid = &model.Bid{
			BidID:     *bidID,
			AuctionID: a.AuctionID,
			BidderID:  *bidder,
			Amount:    *amount,
			CreatedAt: *bidAt,
			IsWinning: *winner,
		}
	}
	return snapshot, nil
}

// AcceptBid moves the price with a compare-and-swap, clears the previous
// winner and inserts bid as the winner, all in one transaction.
func (r *PostgresRepo) AcceptBid(ctx context.Context, bid model.Bid, observedPrice float64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify("begin accept bid", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE auctions SET current_price = $2 WHERE id = $1 AND current_price = $3`,
		bid.AuctionID, bid.Amount, observedPrice)
	if err != nil {
		return classify("update price for auction "+bid.AuctionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: accept bid for auction %s: %w - price no longer %.2f",
			bid.AuctionID, biddingerrors.ErrConflict, observedPrice)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE bids SET is_winning = FALSE WHERE auction_id = $1 AND is_winning`,
		bid.AuctionID); err != nil {
		return classify("clear winning bids for auction "+bid.AuctionID, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO bids (`+bidColumns+`)
		VALUES ($1, $2, $3, $4, $5, TRUE)`,
		bid.BidID, bid.AuctionID, bid.BidderID, bid.Amount, bid.CreatedAt); err != nil {
		return classify("insert bid "+bid.BidID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("commit accept bid "+bid.BidID, err)
	}
	return nil
}

// GetBidsByAuction returns all bids for an auction, highest first
func (r *PostgresRepo) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if err := r.auctionExists(ctx, auctionID); err != nil {
		return nil, err
	}

	bids := []model.Bid{}
	err := r.db.SelectContext(ctx, &bids, `
		SELECT `+bidColumns+` FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, created_at ASC`, auctionID)
	if err != nil {
		return nil, classify("get bids for auction "+auctionID, err)
	}
	return bids, nil
}

// GetWinningBid returns the bid currently flagged as winning
func (r *PostgresRepo) GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error) {
	if err := r.auctionExists(ctx, auctionID); err != nil {
		return model.Bid{}, err
	}

	var bid model.Bid
	err := r.db.GetContext(ctx, &bid,
		`SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 AND is_winning`, auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("postgres: get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, classify("get winning bid for auction "+auctionID, err)
	}
	return bid, nil
}

// GetAuctionsByBidder returns all auctions a bidder has bid on
func (r *PostgresRepo) GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error) {
	auctions := []model.Auction{}
	err := r.db.SelectContext(ctx, &auctions, `
		SELECT `+auctionColumns+` FROM auctions
		WHERE id IN (SELECT auction_id FROM bids WHERE bidder_id = $1)
		ORDER BY end_time ASC, id`, bidderID)
	if err != nil {
		return nil, classify("get auctions for bidder "+bidderID, err)
	}
	if len(auctions) == 0 {
		return nil, fmt.Errorf("postgres: get auctions for bidder %s: %w", bidderID, biddingerrors.ErrBidderNoBids)
	}
	return auctions, nil
}

func (r *PostgresRepo) auctionExists(ctx context.Context, auctionID string) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM auctions WHERE id = $1)`, auctionID); err != nil {
		return classify("check auction "+auctionID, err)
	}
	if !exists {
		return fmt.Errorf("postgres: auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return nil
}

func scanAuction(row pgx.Row) (model.Auction, error) {
	var (
		a      model.Auction
		status string
	)
	err := row.Scan(
		&a.AuctionID, &a.SellerID, &a.Title, &a.Description, &a.Category, &a.StartingPrice, &a.CurrentPrice,
		&a.BuyNowPrice, &a.ReservePrice, &a.StartTime, &a.EndTime, &status, &a.IsApproved, &a.CreatedAt,
	)
	a.Status = model.AuctionStatus(status)
	return a, err
}

// classify wraps err with ErrConflict or ErrUnavailable when the failure is transient.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("postgres: %s: %w: %w", op, biddingerrors.ErrConflict, err)
		case "57P01", "57P03", "53300":
			return fmt.Errorf("postgres: %s: %w: %w", op, biddingerrors.ErrUnavailable, err)
		}
		return fmt.Errorf("postgres: %s: %w", op, err)
	}

	var (
		connErr *pgconn.ConnectError
		netErr  net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		pgconn.Timeout(err),
		pgconn.SafeToRetry(err),
		errors.As(err, &connErr),
		errors.As(err, &netErr),
		errors.Is(err, sql.ErrConnDone):
		return fmt.Errorf("postgres: %s: %w: %w", op, biddingerrors.ErrUnavailable, err)
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}
