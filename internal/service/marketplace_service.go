package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	"github.com/peerlearn/peerlearn-api/internal/repository"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
	"github.com/peerlearn/peerlearn-api/pkg/storage"
)

const (
	leaderboardCacheKey = "marketplace:leaderboard"
	leaderboardSize     = 10
	walletLedgerSize    = 20
)

var noteExtensions = map[string]bool{".pdf": true, ".docx": true, ".doc": true, ".pptx": true, ".txt": true}

type marketplaceStore interface {
	CreateNote(ctx context.Context, note *models.MarketplaceNote) error
	ListNotes(ctx context.Context, filter models.NoteFilter) ([]models.MarketplaceNote, error)
	FindNote(ctx context.Context, id string) (*models.MarketplaceNote, error)
	IncrementViews(ctx context.Context, id string) error
	ListBySeller(ctx context.Context, sellerID string) ([]models.MarketplaceNote, error)
	HasPurchased(ctx context.Context, noteID, buyerID string) (bool, error)
	RecordFreePurchase(ctx context.Context, note *models.MarketplaceNote, buyerID string) (*models.NotePurchase, error)
	Purchase(ctx context.Context, note *models.MarketplaceNote, buyerID string, initialCredits float64) (*models.NotePurchase, float64, error)
	ListPurchases(ctx context.Context, buyerID string) ([]models.NotePurchase, error)
	HasReviewed(ctx context.Context, noteID, userID string) (bool, error)
	AddReview(ctx context.Context, review *models.NoteReview) error
	ListReviews(ctx context.Context, noteID string) ([]models.NoteReview, error)
	EnsureWallet(ctx context.Context, userID string, initialCredits float64) (*models.Wallet, error)
	RecentTransactions(ctx context.Context, userID string, limit int) ([]models.WalletTransaction, error)
	Leaderboard(ctx context.Context, limit int) ([]models.SellerStats, error)
}

type resultCache interface {
	Remember(ctx context.Context, key string, ttl time.Duration, dest interface{}, load Loader) (bool, error)
	Invalidate(ctx context.Context, pattern string) error
}

type linkSigner interface {
	Generate(g storage.Grant) (string, time.Time, error)
	Parse(token string) (storage.Grant, time.Time, error)
}

// MarketplaceConfig tunes wallets and caching.
type MarketplaceConfig struct {
	InitialCredits float64
	LeaderboardTTL time.Duration
	FilesBaseURL   string
}

// NoteDownload is an open note file. Callers close Body.
type NoteDownload struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
}

// MarketplaceService lists, sells and reviews study notes.
type MarketplaceService struct {
	store     marketplaceStore
	files     storage.ObjectStore
	cache     resultCache
	signer    linkSigner
	validator *validator.Validate
	logger    *zap.Logger
	cfg       MarketplaceConfig
}

// NewMarketplaceService constructs the service. cache may be nil.
func NewMarketplaceService(store marketplaceStore, files storage.ObjectStore, cache resultCache, signer linkSigner, validate *validator.Validate, logger *zap.Logger, cfg MarketplaceConfig) *MarketplaceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.InitialCredits <= 0 {
		cfg.InitialCredits = 100
	}
	if cfg.LeaderboardTTL <= 0 {
		cfg.LeaderboardTTL = 5 * time.Minute
	}
	if cfg.FilesBaseURL == "" {
		cfg.FilesBaseURL = "/files"
	}
	return &MarketplaceService{store: store, files: files, cache: cache, signer: signer, validator: validate, logger: logger, cfg: cfg}
}

// CreateNote uploads the file and publishes the listing.
func (s *MarketplaceService) CreateNote(ctx context.Context, sellerID string, req dto.CreateNoteRequest) (*models.MarketplaceNote, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid note payload")
	}
	if !validCategory(req.Category) {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Invalid category")
	}
	if req.File == nil {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "File is required")
	}
	ext := strings.ToLower(filepath.Ext(req.File.Name))
	if !noteExtensions[ext] {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Only PDF, DOCX, DOC, PPTX, and TXT files are allowed")
	}

	key := fmt.Sprintf("marketplace/%s/%s%s", sellerID, uuid.NewString(), ext)
	if _, err := storage.PutBytes(ctx, s.files, key, req.File.Data, req.File.ContentType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}
	price := req.Price
	if req.IsFree {
		price = 0
	}
	size := req.File.Size
	if size == 0 {
		size = int64(len(req.File.Data))
	}
	note := &models.MarketplaceNote{
		SellerID:    sellerID,
		Title:       req.Title,
		Description: req.Description,
		Subject:     req.Subject,
		Category:    req.Category,
		Price:       price,
		IsFree:      req.IsFree,
		Tags:        req.Tags,
		FileKey:     key,
		FileName:    filepath.Base(req.File.Name),
		FileType:    strings.TrimPrefix(ext, "."),
		FileSize:    size,
		IsApproved:  true,
	}
	if err := s.store.CreateNote(ctx, note); err != nil {
		if delErr := s.files.Delete(ctx, key); delErr != nil {
			s.logger.Warn("remove orphan note file", zap.String("key", key), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create note")
	}
	s.invalidateLeaderboard(ctx)
	return note, nil
}

func validCategory(category string) bool {
	for _, c := range models.NoteCategories {
		if c == category {
			return true
		}
	}
	return false
}

// ListNotes returns approved listings.
func (s *MarketplaceService) ListNotes(ctx context.Context, filter models.NoteFilter) ([]models.MarketplaceNote, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	notes, err := s.store.ListNotes(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notes")
	}
	if notes == nil {
		notes = []models.MarketplaceNote{}
	}
	return notes, nil
}

func (s *MarketplaceService) note(ctx context.Context, id string) (*models.MarketplaceNote, error) {
	note, err := s.store.FindNote(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Note not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load note")
	}
	return note, nil
}

// GetNote returns a listing and counts the view.
func (s *MarketplaceService) GetNote(ctx context.Context, id, viewerID string) (*dto.NoteDetail, error) {
	note, err := s.note(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.IncrementViews(ctx, id); err != nil {
		s.logger.Warn("increment note views", zap.String("note_id", id), zap.Error(err))
	} else {
		note.Views++
	}
	detail := &dto.NoteDetail{MarketplaceNote: *note}
	if viewerID == "" {
		return detail, nil
	}
	owner := note.SellerID == viewerID
	canDownload := owner || note.IsFree
	if !canDownload {
		purchased, err := s.store.HasPurchased(ctx, id, viewerID)
		if err != nil {
			s.logger.Warn("check note purchase", zap.String("note_id", id), zap.Error(err))
		}
		canDownload = purchased
	}
	detail.IsOwner = &owner
	detail.CanDownload = &canDownload
	return detail, nil
}

// MyNotes lists the caller's own listings.
func (s *MarketplaceService) MyNotes(ctx context.Context, sellerID string) ([]models.MarketplaceNote, error) {
	notes, err := s.store.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notes")
	}
	if notes == nil {
		notes = []models.MarketplaceNote{}
	}
	return notes, nil
}

// Purchase grants the buyer access to a note, paying with wallet credits when it is not free.
func (s *MarketplaceService) Purchase(ctx context.Context, noteID, buyerID string) (*dto.PurchaseResponse, error) {
	note, err := s.note(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note.SellerID == buyerID {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Cannot purchase your own note")
	}
	owned, err := s.store.HasPurchased(ctx, noteID, buyerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check purchase")
	}
	if owned {
		return &dto.PurchaseResponse{Message: "Already purchased", CanDownload: true}, nil
	}

	if note.IsFree || note.Price <= 0 {
		purchase, err := s.store.RecordFreePurchase(ctx, note, buyerID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record purchase")
		}
		s.invalidateLeaderboard(ctx)
		return &dto.PurchaseResponse{Message: "Free note added to your library", CanDownload: true, PurchaseID: purchase.ID}, nil
	}

	wallet, err := s.store.EnsureWallet(ctx, buyerID, s.cfg.InitialCredits)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load wallet")
	}
	if wallet.Balance < note.Price {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Insufficient credits")
	}
	purchase, balance, err := s.store.Purchase(ctx, note, buyerID, s.cfg.InitialCredits)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) {
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "Insufficient credits")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete purchase")
	}
	s.invalidateLeaderboard(ctx)
	return &dto.PurchaseResponse{Message: "Purchase successful", CanDownload: true, PurchaseID: purchase.ID, Balance: balance}, nil
}

// MyPurchases lists the caller's purchases.
func (s *MarketplaceService) MyPurchases(ctx context.Context, buyerID string) ([]models.NotePurchase, error) {
	purchases, err := s.store.ListPurchases(ctx, buyerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list purchases")
	}
	if purchases == nil {
		purchases = []models.NotePurchase{}
	}
	return purchases, nil
}

// AddReview rates a purchased note once.
func (s *MarketplaceService) AddReview(ctx context.Context, noteID, userID string, req dto.ReviewRequest) (*models.NoteReview, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid review")
	}
	if _, err := s.note(ctx, noteID); err != nil {
		return nil, err
	}
	owned, err := s.store.HasPurchased(ctx, noteID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check purchase")
	}
	if !owned {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Must purchase before reviewing")
	}
	reviewed, err := s.store.HasReviewed(ctx, noteID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check review")
	}
	if reviewed {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Already reviewed")
	}
	review := &models.NoteReview{NoteID: noteID, UserID: userID, Rating: req.Rating, Comment: strings.TrimSpace(req.Comment)}
	if err := s.store.AddReview(ctx, review); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add review")
	}
	s.invalidateLeaderboard(ctx)
	return review, nil
}

// Reviews lists a note's reviews.
func (s *MarketplaceService) Reviews(ctx context.Context, noteID string) ([]models.NoteReview, error) {
	reviews, err := s.store.ListReviews(ctx, noteID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reviews")
	}
	if reviews == nil {
		reviews = []models.NoteReview{}
	}
	return reviews, nil
}

// Wallet returns the caller's wallet, creating it on first access.
func (s *MarketplaceService) Wallet(ctx context.Context, userID string) (*dto.WalletResponse, error) {
	wallet, err := s.store.EnsureWallet(ctx, userID, s.cfg.InitialCredits)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load wallet")
	}
	txs, err := s.store.RecentTransactions(ctx, userID, walletLedgerSize)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transactions")
	}
	if txs == nil {
		txs = []models.WalletTransaction{}
	}
	return &dto.WalletResponse{Wallet: *wallet, RecentTransactions: txs}, nil
}

// Leaderboard returns the top sellers, served from cache when fresh.
func (s *MarketplaceService) Leaderboard(ctx context.Context) ([]models.SellerStats, bool, error) {
	load := func(ctx context.Context) (interface{}, error) {
		stats, err := s.store.Leaderboard(ctx, leaderboardSize)
		if err != nil {
			return nil, err
		}
		if stats == nil {
			stats = []models.SellerStats{}
		}
		return stats, nil
	}
	if s.cache == nil {
		stats, err := load(ctx)
		if err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leaderboard")
		}
		return stats.([]models.SellerStats), false, nil
	}
	var stats []models.SellerStats
	hit, err := s.cache.Remember(ctx, leaderboardCacheKey, s.cfg.LeaderboardTTL, &stats, load)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leaderboard")
	}
	return stats, hit, nil
}

func (s *MarketplaceService) invalidateLeaderboard(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, leaderboardCacheKey); err != nil {
		s.logger.Debug("invalidate leaderboard", zap.Error(err))
	}
}

func (s *MarketplaceService) downloadable(ctx context.Context, noteID, userID string) (*models.MarketplaceNote, error) {
	note, err := s.note(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note.IsFree || note.SellerID == userID {
		return note, nil
	}
	owned, err := s.store.HasPurchased(ctx, noteID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check purchase")
	}
	if !owned {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "You must purchase this note first")
	}
	return note, nil
}

// Download opens the note file for a buyer, the seller, or anyone when free.
func (s *MarketplaceService) Download(ctx context.Context, noteID, userID string) (*NoteDownload, error) {
	note, err := s.downloadable(ctx, noteID, userID)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, note.FileKey, note.FileName)
}

// DownloadLink signs an expiring URL for the note file.
func (s *MarketplaceService) DownloadLink(ctx context.Context, noteID, userID string) (*dto.DownloadLink, error) {
	note, err := s.downloadable(ctx, noteID, userID)
	if err != nil {
		return nil, err
	}
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "signed downloads are not configured")
	}
	token, expiresAt, err := s.signer.Generate(storage.Grant{Resource: note.ID, Subject: userID, Key: note.FileKey})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &dto.DownloadLink{URL: strings.TrimRight(s.cfg.FilesBaseURL, "/") + "/" + token, ExpiresAt: expiresAt.UTC().Format(time.RFC3339)}, nil
}

// ResolveSigned opens the file referenced by a signed token.
func (s *MarketplaceService) ResolveSigned(ctx context.Context, token string) (*NoteDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}
	grant, _, err := s.signer.Parse(token)
	if errors.Is(err, storage.ErrLinkExpired) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Download link has expired")
	}
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Invalid or expired download link")
	}
	note, err := s.downloadable(ctx, grant.Resource, grant.Subject)
	if err != nil {
		return nil, err
	}
	if note.FileKey != grant.Key {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Invalid or expired download link")
	}
	return s.open(ctx, note.FileKey, note.FileName)
}

func (s *MarketplaceService) open(ctx context.Context, key, name string) (*NoteDownload, error) {
	body, err := s.files.Open(ctx, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "File not found")
	}
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &NoteDownload{Body: body, Filename: name, ContentType: contentType}, nil
}
