package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

func TestListNotesIgnoresAllSubjects(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMarketplaceRepository(db)

	free := true
	mock.ExpectQuery(`WHERE n.is_approved AND n.is_free = \$1 ORDER BY n.downloads DESC, n.created_at DESC LIMIT 50 OFFSET 0`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow("n1", "Vectors"))

	notes, err := repo.ListNotes(context.Background(), models.NoteFilter{Category: models.AllSubjects, IsFree: &free, Sort: "popular"})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Vectors", notes[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNotesUnknownSortFallsBackToRecent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMarketplaceRepository(db)

	mock.ExpectQuery(`WHERE n.is_approved AND n.category = \$1 ORDER BY n.created_at DESC LIMIT 50 OFFSET 0`).
		WithArgs("Physics").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.ListNotes(context.Background(), models.NoteFilter{Category: "Physics", Sort: "; DROP TABLE"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurchaseMovesCredits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMarketplaceRepository(db)

	note := &models.MarketplaceNote{ID: "n1", SellerID: "seller", Title: "Optics", Price: 15}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE wallets SET balance = balance - \\$2").WithArgs("buyer", 15.0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(85.0))
	mock.ExpectExec("INSERT INTO wallets").WithArgs("seller", 100.0, 15.0, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO wallet_transactions").WithArgs(sqlmock.AnyArg(), "buyer", models.TxPurchase, -15.0, "n1", "Purchased: Optics", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO wallet_transactions").WithArgs(sqlmock.AnyArg(), "seller", models.TxSale, 15.0, "n1", "Sold: Optics", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO note_purchases").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE marketplace_notes SET downloads = downloads \\+ 1").WithArgs("n1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	purchase, balance, err := repo.Purchase(context.Background(), note, "buyer", 100)
	require.NoError(t, err)
	assert.Equal(t, 85.0, balance)
	assert.Equal(t, "buyer", purchase.BuyerID)
	assert.Equal(t, 15.0, purchase.Price)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurchaseInsufficientCredits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMarketplaceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE wallets SET balance = balance - \\$2").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := repo.Purchase(context.Background(), &models.MarketplaceNote{ID: "n1", SellerID: "seller", Price: 500}, "buyer", 100)
	assert.True(t, errors.Is(err, ErrInsufficientCredits))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureWallet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMarketplaceRepository(db)

	mock.ExpectQuery("INSERT INTO wallets .* ON CONFLICT \\(user_id\\) DO UPDATE").WithArgs("u1", 100.0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "total_earned", "total_spent"}).AddRow("u1", 100.0, 0.0, 0.0))

	wallet, err := repo.EnsureWallet(context.Background(), "u1", 100)
	require.NoError(t, err)
	assert.Equal(t, 100.0, wallet.Balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}
