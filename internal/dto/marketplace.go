package dto

import "github.com/peerlearn/peerlearn-api/internal/models"

// CreateNoteRequest is the parsed multipart listing form.
type CreateNoteRequest struct {
	Title       string   `validate:"required,min=1,max=200"`
	Description string   `validate:"max=2000"`
	Subject     string   `validate:"required,max=100"`
	Category    string   `validate:"required"`
	Price       float64  `validate:"gte=0"`
	IsFree      bool     `validate:"-"`
	Tags        []string `validate:"max=20"`
	File        *Attachment
}

// PurchaseResponse acknowledges a purchase.
type PurchaseResponse struct {
	Message     string  `json:"message"`
	CanDownload bool    `json:"can_download"`
	PurchaseID  string  `json:"purchase_id,omitempty"`
	Balance     float64 `json:"balance,omitempty"`
}

// ReviewRequest rates a note or a teacher.
type ReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

// WalletResponse is a wallet with its recent ledger.
type WalletResponse struct {
	models.Wallet
	RecentTransactions []models.WalletTransaction `json:"recent_transactions"`
}

// DownloadLink is a signed, expiring file URL.
type DownloadLink struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

// NoteDetail is a listing plus what the signed-in viewer may do with it.
// Viewer fields are omitted for anonymous callers.
type NoteDetail struct {
	models.MarketplaceNote
	IsOwner     *bool `json:"is_owner,omitempty"`
	CanDownload *bool `json:"can_download,omitempty"`
}
