package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

// FriendRepository stores friendships and friend requests.
type FriendRepository struct {
	db *sqlx.DB
}

// NewFriendRepository constructs the repository.
func NewFriendRepository(db *sqlx.DB) *FriendRepository {
	return &FriendRepository{db: db}
}

// FriendIDs returns the ids of the user's friends.
func (r *FriendRepository) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT friend_id FROM user_friends WHERE user_id = $1 ORDER BY created_at ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("list friend ids: %w", err)
	}
	return ids, nil
}

// ListFriends returns compact profiles of the user's friends.
func (r *FriendRepository) ListFriends(ctx context.Context, userID string) ([]models.UserSummary, error) {
	const query = `SELECT u.id, u.name, u.email, u.avatar, u.student_id FROM user_friends f
JOIN users u ON u.id = f.friend_id
WHERE f.user_id = $1 ORDER BY u.name ASC`
	var friends []models.UserSummary
	if err := r.db.SelectContext(ctx, &friends, query, userID); err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return friends, nil
}

// AreFriends reports whether userID lists friendID as a friend.
func (r *FriendRepository) AreFriends(ctx context.Context, userID, friendID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM user_friends WHERE user_id = $1 AND friend_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, friendID); err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return exists, nil
}

// AddFriend records one direction of a friendship. Re-adding is a no-op.
func (r *FriendRepository) AddFriend(ctx context.Context, userID, friendID string) error {
	const query = `INSERT INTO user_friends (user_id, friend_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, userID, friendID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add friend: %w", err)
	}
	return nil
}

// RemoveFriend deletes one direction of a friendship.
func (r *FriendRepository) RemoveFriend(ctx context.Context, userID, friendID string) error {
	const query = `DELETE FROM user_friends WHERE user_id = $1 AND friend_id = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, friendID); err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	return nil
}

// CreateRequest inserts a pending friend request.
func (r *FriendRepository) CreateRequest(ctx context.Context, req *models.FriendRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = models.FriendRequestPending
	}
	const query = `INSERT INTO friend_requests (id, sender_id, receiver_id, status, created_at, updated_at) VALUES (:id, :sender_id, :receiver_id, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create friend request: %w", err)
	}
	return nil
}

// FindPending returns the pending request from sender to receiver.
func (r *FriendRepository) FindPending(ctx context.Context, senderID, receiverID string) (*models.FriendRequest, error) {
	const query = `SELECT id, sender_id, receiver_id, status, created_at, updated_at FROM friend_requests WHERE sender_id = $1 AND receiver_id = $2 AND status = 'pending' LIMIT 1`
	var req models.FriendRequest
	if err := r.db.GetContext(ctx, &req, query, senderID, receiverID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find pending friend request: %w", err)
	}
	return &req, nil
}

// FindRequestByID returns a friend request.
func (r *FriendRepository) FindRequestByID(ctx context.Context, id string) (*models.FriendRequest, error) {
	const query = `SELECT id, sender_id, receiver_id, status, created_at, updated_at FROM friend_requests WHERE id = $1 LIMIT 1`
	var req models.FriendRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find friend request: %w", err)
	}
	return &req, nil
}

// ListPendingReceived returns pending requests addressed to the user with sender profiles.
func (r *FriendRepository) ListPendingReceived(ctx context.Context, receiverID string) ([]models.FriendRequestWithSender, error) {
	const query = `SELECT fr.id, fr.sender_id, fr.receiver_id, fr.status, fr.created_at, fr.updated_at,
u.name AS sender_name, u.email AS sender_email, u.avatar AS sender_avatar
FROM friend_requests fr JOIN users u ON u.id = fr.sender_id
WHERE fr.receiver_id = $1 AND fr.status = 'pending' ORDER BY fr.created_at DESC`
	var reqs []models.FriendRequestWithSender
	if err := r.db.SelectContext(ctx, &reqs, query, receiverID); err != nil {
		return nil, fmt.Errorf("list pending friend requests: %w", err)
	}
	return reqs, nil
}

// UpdateRequestStatus moves a request to a new status.
func (r *FriendRepository) UpdateRequestStatus(ctx context.Context, id string, status models.FriendRequestStatus) error {
	const query = `UPDATE friend_requests SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update friend request status: %w", err)
	}
	return nil
}

// DeleteRequestsBetween removes every request exchanged by the pair and returns them.
func (r *FriendRepository) DeleteRequestsBetween(ctx context.Context, a, b string) ([]models.FriendRequest, error) {
	const query = `DELETE FROM friend_requests WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
RETURNING id, sender_id, receiver_id, status, created_at, updated_at`
	var removed []models.FriendRequest
	if err := r.db.SelectContext(ctx, &removed, query, a, b); err != nil {
		return nil, fmt.Errorf("delete friend requests: %w", err)
	}
	return removed, nil
}

// RestoreRequest re-inserts a previously deleted request.
func (r *FriendRepository) RestoreRequest(ctx context.Context, req models.FriendRequest) error {
	const query = `INSERT INTO friend_requests (id, sender_id, receiver_id, status, created_at, updated_at) VALUES (:id, :sender_id, :receiver_id, :status, :created_at, :updated_at) ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("restore friend request: %w", err)
	}
	return nil
}

// PendingDirections maps other user ids to the direction of a pending request with userID.
func (r *FriendRepository) PendingDirections(ctx context.Context, userID string, others []string) (map[string]models.RequestDirection, error) {
	result := make(map[string]models.RequestDirection, len(others))
	if len(others) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT sender_id, receiver_id FROM friend_requests
WHERE status = 'pending' AND ((sender_id = ? AND receiver_id IN (?)) OR (receiver_id = ? AND sender_id IN (?)))`, userID, others, userID, others)
	if err != nil {
		return nil, fmt.Errorf("build pending directions query: %w", err)
	}
	var rows []struct {
		SenderID   string `db:"sender_id"`
		ReceiverID string `db:"receiver_id"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list pending directions: %w", err)
	}
	for _, row := range rows {
		if row.SenderID == userID {
			result[row.ReceiverID] = models.RequestSent
		} else {
			result[row.SenderID] = models.RequestReceived
		}
	}
	return result, nil
}
