package models

import (
	"time"

	"github.com/lib/pq"
)

// NoteCategories lists the marketplace subjects. "All Subjects" disables category filtering.
var NoteCategories = []string{
	"Mathematics",
	"Physics",
	"Chemistry",
	"Biology",
	"Computer Science",
	"Engineering",
	"All Subjects",
	"Other",
}

// AllSubjects is the catch-all category.
const AllSubjects = "All Subjects"

// MarketplaceNote is a study file offered for free or for credits.
type MarketplaceNote struct {
	ID           string         `db:"id" json:"id"`
	SellerID     string         `db:"seller_id" json:"seller_id"`
	Title        string         `db:"title" json:"title"`
	Description  string         `db:"description" json:"description"`
	Subject      string         `db:"subject" json:"subject"`
	Category     string         `db:"category" json:"category"`
	Price        float64        `db:"price" json:"price"`
	IsFree       bool           `db:"is_free" json:"is_free"`
	Tags         pq.StringArray `db:"tags" json:"tags"`
	FileKey      string         `db:"file_key" json:"-"`
	FileName     string         `db:"file_name" json:"file_name"`
	FileType     string         `db:"file_type" json:"file_type"`
	FileSize     int64          `db:"file_size" json:"file_size"`
	Downloads    int            `db:"downloads" json:"downloads"`
	Views        int            `db:"views" json:"views"`
	Rating       float64        `db:"rating" json:"rating"`
	TotalReviews int            `db:"total_reviews" json:"total_reviews"`
	IsApproved   bool           `db:"is_approved" json:"is_approved"`
	SellerName   string         `db:"seller_name" json:"seller_name"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// NoteFilter captures marketplace listing filters.
type NoteFilter struct {
	Category string
	IsFree   *bool
	Search   string
	Sort     string
	Limit    int
	Offset   int
}

// NotePurchase records a buyer's access to a note.
type NotePurchase struct {
	ID        string    `db:"id" json:"id"`
	NoteID    string    `db:"note_id" json:"note_id"`
	BuyerID   string    `db:"buyer_id" json:"buyer_id"`
	SellerID  string    `db:"seller_id" json:"seller_id"`
	Price     float64   `db:"price" json:"price"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	NoteTitle string    `db:"note_title" json:"note_title,omitempty"`
}

// NoteReview is a buyer's rating of a note.
type NoteReview struct {
	ID        string    `db:"id" json:"id"`
	NoteID    string    `db:"note_id" json:"note_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   string    `db:"comment" json:"comment"`
	UserName  string    `db:"user_name" json:"user_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Wallet holds a user's marketplace credits.
type Wallet struct {
	UserID      string    `db:"user_id" json:"user_id"`
	Balance     float64   `db:"balance" json:"balance"`
	TotalEarned float64   `db:"total_earned" json:"total_earned"`
	TotalSpent  float64   `db:"total_spent" json:"total_spent"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// WalletTransactionType classifies wallet ledger entries.
type WalletTransactionType string

const (
	TxPurchase WalletTransactionType = "purchase"
	TxSale     WalletTransactionType = "sale"
	TxBonus    WalletTransactionType = "bonus"
)

// WalletTransaction is one ledger entry.
type WalletTransaction struct {
	ID          string                `db:"id" json:"id"`
	UserID      string                `db:"user_id" json:"user_id"`
	Type        WalletTransactionType `db:"type" json:"type"`
	Amount      float64               `db:"amount" json:"amount"`
	NoteID      *string               `db:"note_id" json:"note_id,omitempty"`
	Description string                `db:"description" json:"description"`
	CreatedAt   time.Time             `db:"created_at" json:"created_at"`
}

// SellerStats is one leaderboard row.
type SellerStats struct {
	SellerID       string  `db:"seller_id" json:"seller_id"`
	SellerName     string  `db:"seller_name" json:"seller_name"`
	SellerAvatar   *string `db:"seller_avatar" json:"seller_avatar,omitempty"`
	TotalDownloads int     `db:"total_downloads" json:"total_downloads"`
	TotalNotes     int     `db:"total_notes" json:"total_notes"`
	AverageRating  float64 `db:"average_rating" json:"average_rating"`
	TotalEarned    float64 `db:"total_earned" json:"total_earned"`
}
