package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

// ErrInsufficientCredits signals that the buyer's wallet cannot cover a purchase.
var ErrInsufficientCredits = errors.New("insufficient credits")

const noteSelect = `SELECT n.id, n.seller_id, n.title, n.description, n.subject, n.category, n.price, n.is_free, n.tags, n.file_key, n.file_name, n.file_type, n.file_size,
n.downloads, n.views, n.rating, n.total_reviews, n.is_approved, u.name AS seller_name, n.created_at, n.updated_at
FROM marketplace_notes n JOIN users u ON u.id = n.seller_id`

var noteSorts = map[string]string{
	"recent":     "n.created_at DESC",
	"popular":    "n.downloads DESC, n.created_at DESC",
	"price_low":  "n.price ASC, n.created_at DESC",
	"price_high": "n.price DESC, n.created_at DESC",
	"rating":     "n.rating DESC, n.total_reviews DESC",
}

// MarketplaceRepository stores notes, purchases, reviews and wallets.
type MarketplaceRepository struct {
	db *sqlx.DB
}

// NewMarketplaceRepository constructs the repository.
func NewMarketplaceRepository(db *sqlx.DB) *MarketplaceRepository {
	return &MarketplaceRepository{db: db}
}

// CreateNote inserts a note listing.
func (r *MarketplaceRepository) CreateNote(ctx context.Context, note *models.MarketplaceNote) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	note.CreatedAt, note.UpdatedAt = now, now
	if note.Tags == nil {
		note.Tags = []string{}
	}
	const query = `INSERT INTO marketplace_notes (id, seller_id, title, description, subject, category, price, is_free, tags, file_key, file_name, file_type, file_size, is_approved, created_at, updated_at)
VALUES (:id, :seller_id, :title, :description, :subject, :category, :price, :is_free, :tags, :file_key, :file_name, :file_type, :file_size, :is_approved, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, note); err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	return nil
}

// ListNotes returns approved notes matching the filter.
func (r *MarketplaceRepository) ListNotes(ctx context.Context, filter models.NoteFilter) ([]models.MarketplaceNote, error) {
	conditions := []string{"n.is_approved"}
	var args []interface{}
	if filter.Category != "" && filter.Category != models.AllSubjects {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("n.category = $%d", len(args)))
	}
	if filter.IsFree != nil {
		args = append(args, *filter.IsFree)
		conditions = append(conditions, fmt.Sprintf("n.is_free = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		idx := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(n.title) LIKE $%[1]d OR LOWER(n.description) LIKE $%[1]d OR LOWER(n.subject) LIKE $%[1]d OR LOWER(array_to_string(n.tags, ' ')) LIKE $%[1]d)", idx))
	}
	order, ok := noteSorts[filter.Sort]
	if !ok {
		order = noteSorts["recent"]
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`%s WHERE %s ORDER BY %s LIMIT %d OFFSET %d`, noteSelect, strings.Join(conditions, " AND "), order, limit, offset)
	var notes []models.MarketplaceNote
	if err := r.db.SelectContext(ctx, &notes, query, args...); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

// FindNote returns a note.
func (r *MarketplaceRepository) FindNote(ctx context.Context, id string) (*models.MarketplaceNote, error) {
	query := noteSelect + ` WHERE n.id = $1 LIMIT 1`
	var note models.MarketplaceNote
	if err := r.db.GetContext(ctx, &note, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find note: %w", err)
	}
	return &note, nil
}

// IncrementViews bumps the view counter.
func (r *MarketplaceRepository) IncrementViews(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE marketplace_notes SET views = views + 1 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("increment note views: %w", err)
	}
	return nil
}

// ListBySeller returns a seller's notes.
func (r *MarketplaceRepository) ListBySeller(ctx context.Context, sellerID string) ([]models.MarketplaceNote, error) {
	query := noteSelect + ` WHERE n.seller_id = $1 ORDER BY n.created_at DESC`
	var notes []models.MarketplaceNote
	if err := r.db.SelectContext(ctx, &notes, query, sellerID); err != nil {
		return nil, fmt.Errorf("list seller notes: %w", err)
	}
	return notes, nil
}

// HasPurchased reports whether the buyer already owns the note.
func (r *MarketplaceRepository) HasPurchased(ctx context.Context, noteID, buyerID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM note_purchases WHERE note_id = $1 AND buyer_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, noteID, buyerID); err != nil {
		return false, fmt.Errorf("check purchase: %w", err)
	}
	return exists, nil
}

// RecordFreePurchase grants access to a free note.
func (r *MarketplaceRepository) RecordFreePurchase(ctx context.Context, note *models.MarketplaceNote, buyerID string) (purchase *models.NotePurchase, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin free purchase tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	purchase, err = insertPurchase(ctx, tx, note, buyerID, 0)
	if err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE marketplace_notes SET downloads = downloads + 1 WHERE id = $1`, note.ID); err != nil {
		return nil, fmt.Errorf("increment downloads: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit free purchase tx: %w", err)
	}
	return purchase, nil
}

// Purchase moves credits from buyer to seller and records the purchase in one transaction.
func (r *MarketplaceRepository) Purchase(ctx context.Context, note *models.MarketplaceNote, buyerID string, initialCredits float64) (purchase *models.NotePurchase, balance float64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin purchase tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const debit = `UPDATE wallets SET balance = balance - $2, total_spent = total_spent + $2, updated_at = $3
WHERE user_id = $1 AND balance >= $2 RETURNING balance`
	if err = tx.GetContext(ctx, &balance, debit, buyerID, note.Price, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrInsufficientCredits
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("debit buyer wallet: %w", err)
	}

	const credit = `INSERT INTO wallets (user_id, balance, total_earned, total_spent, created_at, updated_at) VALUES ($1, $2 + $3, $3, 0, $4, $4)
ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + $3, total_earned = wallets.total_earned + $3, updated_at = $4`
	if _, err = tx.ExecContext(ctx, credit, note.SellerID, initialCredits, note.Price, now); err != nil {
		return nil, 0, fmt.Errorf("credit seller wallet: %w", err)
	}

	const ledger = `INSERT INTO wallet_transactions (id, user_id, type, amount, note_id, description, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err = tx.ExecContext(ctx, ledger, uuid.NewString(), buyerID, models.TxPurchase, -note.Price, note.ID, "Purchased: "+note.Title, now); err != nil {
		return nil, 0, fmt.Errorf("record buyer transaction: %w", err)
	}
	if _, err = tx.ExecContext(ctx, ledger, uuid.NewString(), note.SellerID, models.TxSale, note.Price, note.ID, "Sold: "+note.Title, now); err != nil {
		return nil, 0, fmt.Errorf("record seller transaction: %w", err)
	}

	purchase, err = insertPurchase(ctx, tx, note, buyerID, note.Price)
	if err != nil {
		return nil, 0, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE marketplace_notes SET downloads = downloads + 1 WHERE id = $1`, note.ID); err != nil {
		return nil, 0, fmt.Errorf("increment downloads: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit purchase tx: %w", err)
	}
	return purchase, balance, nil
}

func insertPurchase(ctx context.Context, tx *sqlx.Tx, note *models.MarketplaceNote, buyerID string, price float64) (*models.NotePurchase, error) {
	purchase := &models.NotePurchase{
		ID:        uuid.NewString(),
		NoteID:    note.ID,
		BuyerID:   buyerID,
		SellerID:  note.SellerID,
		Price:     price,
		CreatedAt: time.Now().UTC(),
		NoteTitle: note.Title,
	}
	const query = `INSERT INTO note_purchases (id, note_id, buyer_id, seller_id, price, created_at) VALUES (:id, :note_id, :buyer_id, :seller_id, :price, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, purchase); err != nil {
		return nil, fmt.Errorf("record purchase: %w", err)
	}
	return purchase, nil
}

// ListPurchases returns the buyer's purchases newest first.
func (r *MarketplaceRepository) ListPurchases(ctx context.Context, buyerID string) ([]models.NotePurchase, error) {
	const query = `SELECT p.id, p.note_id, p.buyer_id, p.seller_id, p.price, p.created_at, n.title AS note_title
FROM note_purchases p JOIN marketplace_notes n ON n.id = p.note_id WHERE p.buyer_id = $1 ORDER BY p.created_at DESC`
	var purchases []models.NotePurchase
	if err := r.db.SelectContext(ctx, &purchases, query, buyerID); err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return purchases, nil
}

// HasReviewed reports whether the user already reviewed the note.
func (r *MarketplaceRepository) HasReviewed(ctx context.Context, noteID, userID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM note_reviews WHERE note_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, noteID, userID); err != nil {
		return false, fmt.Errorf("check review: %w", err)
	}
	return exists, nil
}

// AddReview inserts a review and recomputes the note rating.
func (r *MarketplaceRepository) AddReview(ctx context.Context, review *models.NoteReview) (err error) {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	review.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin review tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	const insert = `INSERT INTO note_reviews (id, note_id, user_id, rating, comment, created_at) VALUES (:id, :note_id, :user_id, :rating, :comment, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insert, review); err != nil {
		return fmt.Errorf("insert note review: %w", err)
	}
	const recompute = `UPDATE marketplace_notes SET
rating = (SELECT ROUND(AVG(rating)::numeric, 2) FROM note_reviews WHERE note_id = $1),
total_reviews = (SELECT COUNT(*) FROM note_reviews WHERE note_id = $1),
updated_at = NOW() WHERE id = $1`
	if _, err = tx.ExecContext(ctx, recompute, review.NoteID); err != nil {
		return fmt.Errorf("recompute note rating: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit review tx: %w", err)
	}
	return nil
}

// ListReviews returns a note's reviews newest first.
func (r *MarketplaceRepository) ListReviews(ctx context.Context, noteID string) ([]models.NoteReview, error) {
	const query = `SELECT r.id, r.note_id, r.user_id, r.rating, r.comment, u.name AS user_name, r.created_at
FROM note_reviews r JOIN users u ON u.id = r.user_id WHERE r.note_id = $1 ORDER BY r.created_at DESC`
	var reviews []models.NoteReview
	if err := r.db.SelectContext(ctx, &reviews, query, noteID); err != nil {
		return nil, fmt.Errorf("list note reviews: %w", err)
	}
	return reviews, nil
}

// EnsureWallet returns the user's wallet, creating it with the initial credits when absent.
func (r *MarketplaceRepository) EnsureWallet(ctx context.Context, userID string, initialCredits float64) (*models.Wallet, error) {
	now := time.Now().UTC()
	const query = `INSERT INTO wallets (user_id, balance, total_earned, total_spent, created_at, updated_at) VALUES ($1, $2, 0, 0, $3, $3)
ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
RETURNING user_id, balance, total_earned, total_spent, created_at, updated_at`
	var wallet models.Wallet
	if err := r.db.GetContext(ctx, &wallet, query, userID, initialCredits, now); err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}
	return &wallet, nil
}

// RecentTransactions returns the latest ledger entries of a user.
func (r *MarketplaceRepository) RecentTransactions(ctx context.Context, userID string, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT id, user_id, type, amount, note_id, description, created_at FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT %d`, limit)
	var txs []models.WalletTransaction
	if err := r.db.SelectContext(ctx, &txs, query, userID); err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	return txs, nil
}

// Leaderboard ranks sellers by downloads.
func (r *MarketplaceRepository) Leaderboard(ctx context.Context, limit int) ([]models.SellerStats, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT n.seller_id, u.name AS seller_name, u.avatar AS seller_avatar,
COALESCE(SUM(n.downloads), 0) AS total_downloads, COUNT(n.id) AS total_notes,
COALESCE(ROUND(AVG(NULLIF(n.rating, 0))::numeric, 2), 0) AS average_rating,
COALESCE(w.total_earned, 0) AS total_earned
FROM marketplace_notes n JOIN users u ON u.id = n.seller_id LEFT JOIN wallets w ON w.user_id = n.seller_id
WHERE n.is_approved
GROUP BY n.seller_id, u.name, u.avatar, w.total_earned
ORDER BY total_downloads DESC, total_notes DESC LIMIT %d`, limit)
	var stats []models.SellerStats
	if err := r.db.SelectContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("seller leaderboard: %w", err)
	}
	return stats, nil
}
