package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	"github.com/peerlearn/peerlearn-api/internal/repository"
	"github.com/peerlearn/peerlearn-api/pkg/storage"
)

type memoryMarketplace struct {
	notes       map[string]*models.MarketplaceNote
	purchases   []models.NotePurchase
	reviews     []models.NoteReview
	wallets     map[string]*models.Wallet
	leaderboard []models.SellerStats
	boardCalls  int
	failCreate  bool
}

func newMemoryMarketplace() *memoryMarketplace {
	return &memoryMarketplace{notes: map[string]*models.MarketplaceNote{}, wallets: map[string]*models.Wallet{}}
}

func (m *memoryMarketplace) CreateNote(ctx context.Context, note *models.MarketplaceNote) error {
	if m.failCreate {
		return fmt.Errorf("insert note: connection reset")
	}
	note.ID = fmt.Sprintf("n%d", len(m.notes)+1)
	cp := *note
	m.notes[note.ID] = &cp
	return nil
}

func (m *memoryMarketplace) ListNotes(ctx context.Context, filter models.NoteFilter) ([]models.MarketplaceNote, error) {
	return nil, nil
}

func (m *memoryMarketplace) FindNote(ctx context.Context, id string) (*models.MarketplaceNote, error) {
	if n, ok := m.notes[id]; ok {
		cp := *n
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryMarketplace) IncrementViews(ctx context.Context, id string) error {
	m.notes[id].Views++
	return nil
}

func (m *memoryMarketplace) ListBySeller(ctx context.Context, sellerID string) ([]models.MarketplaceNote, error) {
	return nil, nil
}

func (m *memoryMarketplace) HasPurchased(ctx context.Context, noteID, buyerID string) (bool, error) {
	for _, p := range m.purchases {
		if p.NoteID == noteID && p.BuyerID == buyerID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryMarketplace) RecordFreePurchase(ctx context.Context, note *models.MarketplaceNote, buyerID string) (*models.NotePurchase, error) {
	p := models.NotePurchase{ID: fmt.Sprintf("p%d", len(m.purchases)+1), NoteID: note.ID, BuyerID: buyerID, SellerID: note.SellerID}
	m.purchases = append(m.purchases, p)
	return &p, nil
}

func (m *memoryMarketplace) Purchase(ctx context.Context, note *models.MarketplaceNote, buyerID string, initialCredits float64) (*models.NotePurchase, float64, error) {
	wallet, _ := m.EnsureWallet(ctx, buyerID, initialCredits)
	if wallet.Balance < note.Price {
		return nil, 0, repository.ErrInsufficientCredits
	}
	wallet.Balance -= note.Price
	seller, _ := m.EnsureWallet(ctx, note.SellerID, initialCredits)
	seller.Balance += note.Price
	p := models.NotePurchase{ID: fmt.Sprintf("p%d", len(m.purchases)+1), NoteID: note.ID, BuyerID: buyerID, SellerID: note.SellerID, Price: note.Price}
	m.purchases = append(m.purchases, p)
	return &p, wallet.Balance, nil
}

func (m *memoryMarketplace) ListPurchases(ctx context.Context, buyerID string) ([]models.NotePurchase, error) {
	return nil, nil
}

func (m *memoryMarketplace) HasReviewed(ctx context.Context, noteID, userID string) (bool, error) {
	for _, r := range m.reviews {
		if r.NoteID == noteID && r.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryMarketplace) AddReview(ctx context.Context, review *models.NoteReview) error {
	m.reviews = append(m.reviews, *review)
	return nil
}

func (m *memoryMarketplace) ListReviews(ctx context.Context, noteID string) ([]models.NoteReview, error) {
	return nil, nil
}

func (m *memoryMarketplace) EnsureWallet(ctx context.Context, userID string, initialCredits float64) (*models.Wallet, error) {
	if w, ok := m.wallets[userID]; ok {
		return w, nil
	}
	w := &models.Wallet{UserID: userID, Balance: initialCredits}
	m.wallets[userID] = w
	return w, nil
}

func (m *memoryMarketplace) RecentTransactions(ctx context.Context, userID string, limit int) ([]models.WalletTransaction, error) {
	return nil, nil
}

func (m *memoryMarketplace) Leaderboard(ctx context.Context, limit int) ([]models.SellerStats, error) {
	m.boardCalls++
	return m.leaderboard, nil
}

type memoryCache struct {
	entries     map[string][]byte
	invalidated []string
}

func (c *memoryCache) Remember(ctx context.Context, key string, ttl time.Duration, dest interface{}, load Loader) (bool, error) {
	if raw, ok := c.entries[key]; ok {
		return true, json.Unmarshal(raw, dest)
	}
	value, err := load(ctx)
	if err != nil {
		return false, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	if c.entries == nil {
		c.entries = map[string][]byte{}
	}
	c.entries[key] = raw
	return false, json.Unmarshal(raw, dest)
}

func (c *memoryCache) Invalidate(ctx context.Context, pattern string) error {
	delete(c.entries, pattern)
	c.invalidated = append(c.invalidated, pattern)
	return nil
}

type marketplaceFixture struct {
	svc   *MarketplaceService
	store *memoryMarketplace
	files *memoryObjectStore
	cache *memoryCache
}

func newMarketplaceFixture() marketplaceFixture {
	store := newMemoryMarketplace()
	files := &memoryObjectStore{}
	cache := &memoryCache{}
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewMarketplaceService(store, files, cache, signer, nil, zap.NewNop(), MarketplaceConfig{})
	return marketplaceFixture{svc: svc, store: store, files: files, cache: cache}
}

func noteRequest(price float64, free bool, filename string) dto.CreateNoteRequest {
	return dto.CreateNoteRequest{
		Title:    " Calculus cheatsheet ",
		Subject:  "Calculus",
		Category: "Mathematics",
		Price:    price,
		IsFree:   free,
		File:     &dto.Attachment{Name: filename, ContentType: "application/pdf", Data: []byte("%PDF-1.4")},
	}
}

func TestMarketplaceCreateNote(t *testing.T) {
	f := newMarketplaceFixture()
	ctx := context.Background()

	note, err := f.svc.CreateNote(ctx, "seller", noteRequest(15, true, "calc.PDF"))
	require.NoError(t, err)
	assert.Equal(t, "Calculus cheatsheet", note.Title)
	assert.Zero(t, note.Price)
	assert.Equal(t, "pdf", note.FileType)
	assert.EqualValues(t, 8, note.FileSize)
	assert.True(t, strings.HasPrefix(note.FileKey, "marketplace/seller/"))
	assert.Contains(t, f.files.objects, note.FileKey)
	assert.Contains(t, f.cache.invalidated, leaderboardCacheKey)

	_, err = f.svc.CreateNote(ctx, "seller", noteRequest(5, false, "virus.exe"))
	assertAppError(t, err, http.StatusBadRequest, "Only PDF, DOCX, DOC, PPTX, and TXT files are allowed")

	bad := noteRequest(5, false, "a.pdf")
	bad.Category = "Astrology"
	_, err = f.svc.CreateNote(ctx, "seller", bad)
	assertAppError(t, err, http.StatusBadRequest, "Invalid category")

	missing := noteRequest(5, false, "a.pdf")
	missing.File = nil
	_, err = f.svc.CreateNote(ctx, "seller", missing)
	assertAppError(t, err, http.StatusBadRequest, "File is required")

	f.store.failCreate = true
	_, err = f.svc.CreateNote(ctx, "seller", noteRequest(5, false, "b.pdf"))
	assertAppError(t, err, http.StatusInternalServerError, "")
	assert.Len(t, f.files.objects, 1)
}

func TestMarketplacePurchaseFlow(t *testing.T) {
	f := newMarketplaceFixture()
	ctx := context.Background()
	paid, err := f.svc.CreateNote(ctx, "seller", noteRequest(30, false, "paid.pdf"))
	require.NoError(t, err)
	free, err := f.svc.CreateNote(ctx, "seller", noteRequest(0, true, "free.txt"))
	require.NoError(t, err)

	_, err = f.svc.Purchase(ctx, paid.ID, "seller")
	assertAppError(t, err, http.StatusBadRequest, "Cannot purchase your own note")

	resp, err := f.svc.Purchase(ctx, free.ID, "buyer")
	require.NoError(t, err)
	assert.True(t, resp.CanDownload)
	assert.NotContains(t, f.store.wallets, "buyer")

	resp, err = f.svc.Purchase(ctx, paid.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, "Purchase successful", resp.Message)
	assert.Equal(t, 70.0, resp.Balance)
	assert.Equal(t, 130.0, f.store.wallets["seller"].Balance)

	resp, err = f.svc.Purchase(ctx, paid.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, "Already purchased", resp.Message)
	assert.Equal(t, 70.0, f.store.wallets["buyer"].Balance)

	f.store.wallets["poor"] = &models.Wallet{UserID: "poor", Balance: 10}
	_, err = f.svc.Purchase(ctx, paid.ID, "poor")
	assertAppError(t, err, http.StatusBadRequest, "Insufficient credits")

	_, err = f.svc.Purchase(ctx, "missing", "buyer")
	assertAppError(t, err, http.StatusNotFound, "Note not found")
}

func TestMarketplaceReviewsRequirePurchase(t *testing.T) {
	f := newMarketplaceFixture()
	ctx := context.Background()
	note, err := f.svc.CreateNote(ctx, "seller", noteRequest(10, false, "n.pdf"))
	require.NoError(t, err)

	_, err = f.svc.AddReview(ctx, note.ID, "buyer", dto.ReviewRequest{Rating: 5})
	assertAppError(t, err, http.StatusBadRequest, "Must purchase before reviewing")

	_, err = f.svc.Purchase(ctx, note.ID, "buyer")
	require.NoError(t, err)
	review, err := f.svc.AddReview(ctx, note.ID, "buyer", dto.ReviewRequest{Rating: 4, Comment: "  clear  "})
	require.NoError(t, err)
	assert.Equal(t, "clear", review.Comment)

	_, err = f.svc.AddReview(ctx, note.ID, "buyer", dto.ReviewRequest{Rating: 3})
	assertAppError(t, err, http.StatusBadRequest, "Already reviewed")

	_, err = f.svc.AddReview(ctx, note.ID, "buyer", dto.ReviewRequest{Rating: 9})
	assertAppError(t, err, http.StatusBadRequest, "")
}

func TestMarketplaceDownloadAccess(t *testing.T) {
	f := newMarketplaceFixture()
	ctx := context.Background()
	note, err := f.svc.CreateNote(ctx, "seller", noteRequest(10, false, "n.pdf"))
	require.NoError(t, err)

	_, err = f.svc.Download(ctx, note.ID, "stranger")
	assertAppError(t, err, http.StatusForbidden, "You must purchase this note first")

	dl, err := f.svc.Download(ctx, note.ID, "seller")
	require.NoError(t, err)
	body, _ := io.ReadAll(dl.Body)
	_ = dl.Body.Close()
	assert.Equal(t, "%PDF-1.4", string(body))
	assert.Equal(t, "n.pdf", dl.Filename)
	assert.Equal(t, "application/pdf", dl.ContentType)

	_, err = f.svc.Purchase(ctx, note.ID, "buyer")
	require.NoError(t, err)
	link, err := f.svc.DownloadLink(ctx, note.ID, "buyer")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link.URL, "/files/"))

	resolved, err := f.svc.ResolveSigned(ctx, strings.TrimPrefix(link.URL, "/files/"))
	require.NoError(t, err)
	_ = resolved.Body.Close()

	_, err = f.svc.ResolveSigned(ctx, "garbage")
	assertAppError(t, err, http.StatusForbidden, "Invalid or expired download link")
}

func TestMarketplaceLeaderboardCached(t *testing.T) {
	f := newMarketplaceFixture()
	ctx := context.Background()
	f.store.leaderboard = []models.SellerStats{{SellerID: "seller", TotalNotes: 2}}

	first, hit, err := f.svc.Leaderboard(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
	second, hit, err := f.svc.Leaderboard(ctx)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.store.boardCalls)

	_, err = f.svc.CreateNote(ctx, "seller", noteRequest(0, true, "x.txt"))
	require.NoError(t, err)
	_, hit, err = f.svc.Leaderboard(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, f.store.boardCalls)
}

func TestMarketplaceGetNoteViewerFlags(t *testing.T) {
	f := newMarketplaceFixture()
	ctx := context.Background()
	paid, err := f.svc.CreateNote(ctx, "seller", noteRequest(30, false, "paid.pdf"))
	require.NoError(t, err)

	anon, err := f.svc.GetNote(ctx, paid.ID, "")
	require.NoError(t, err)
	assert.Nil(t, anon.IsOwner)
	assert.Nil(t, anon.CanDownload)

	owner, err := f.svc.GetNote(ctx, paid.ID, "seller")
	require.NoError(t, err)
	assert.True(t, *owner.IsOwner)
	assert.True(t, *owner.CanDownload)

	stranger, err := f.svc.GetNote(ctx, paid.ID, "buyer")
	require.NoError(t, err)
	assert.False(t, *stranger.IsOwner)
	assert.False(t, *stranger.CanDownload)

	_, err = f.svc.Purchase(ctx, paid.ID, "buyer")
	require.NoError(t, err)
	buyer, err := f.svc.GetNote(ctx, paid.ID, "buyer")
	require.NoError(t, err)
	assert.True(t, *buyer.CanDownload)
}
