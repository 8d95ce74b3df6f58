package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
)

type friendRepository interface {
	ListFriends(ctx context.Context, userID string) ([]models.UserSummary, error)
	FriendIDs(ctx context.Context, userID string) ([]string, error)
	AreFriends(ctx context.Context, userID, friendID string) (bool, error)
	AddFriend(ctx context.Context, userID, friendID string) error
	RemoveFriend(ctx context.Context, userID, friendID string) error
	CreateRequest(ctx context.Context, req *models.FriendRequest) error
	FindPending(ctx context.Context, senderID, receiverID string) (*models.FriendRequest, error)
	FindRequestByID(ctx context.Context, id string) (*models.FriendRequest, error)
	ListPendingReceived(ctx context.Context, receiverID string) ([]models.FriendRequestWithSender, error)
	UpdateRequestStatus(ctx context.Context, id string, status models.FriendRequestStatus) error
	DeleteRequestsBetween(ctx context.Context, a, b string) ([]models.FriendRequest, error)
	RestoreRequest(ctx context.Context, req models.FriendRequest) error
	PendingDirections(ctx context.Context, userID string, others []string) (map[string]models.RequestDirection, error)
}

type friendUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Search(ctx context.Context, term, excludeID string, limit int) ([]models.UserSummary, error)
}

// FriendService manages friend requests and the symmetric friendship relation.
type FriendService struct {
	repo   friendRepository
	users  friendUserRepository
	logger *zap.Logger
}

// NewFriendService constructs the service.
func NewFriendService(repo friendRepository, users friendUserRepository, logger *zap.Logger) *FriendService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FriendService{repo: repo, users: users, logger: logger}
}

// List returns the caller's friends.
func (s *FriendService) List(ctx context.Context, userID string) ([]models.UserSummary, error) {
	friends, err := s.repo.ListFriends(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list friends")
	}
	if friends == nil {
		friends = []models.UserSummary{}
	}
	return friends, nil
}

// SendRequest creates a pending request from sender to receiver.
func (s *FriendService) SendRequest(ctx context.Context, senderID, receiverID string) (*models.FriendRequest, error) {
	if _, err := s.users.FindByID(ctx, receiverID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if senderID == receiverID {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Cannot send friend request to yourself")
	}
	friends, err := s.repo.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check friendship")
	}
	if friends {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Already friends with this user")
	}
	if found, err := s.pendingExists(ctx, senderID, receiverID); err != nil {
		return nil, err
	} else if found {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Friend request already sent")
	}
	if found, err := s.pendingExists(ctx, receiverID, senderID); err != nil {
		return nil, err
	} else if found {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "This user has already sent you a friend request")
	}

	req := &models.FriendRequest{SenderID: senderID, ReceiverID: receiverID, Status: models.FriendRequestPending}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create friend request")
	}
	return req, nil
}

func (s *FriendService) pendingExists(ctx context.Context, senderID, receiverID string) (bool, error) {
	_, err := s.repo.FindPending(ctx, senderID, receiverID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check friend requests")
	}
}

// PendingRequests lists requests the caller has received.
func (s *FriendService) PendingRequests(ctx context.Context, userID string) ([]dto.FriendRequestItem, error) {
	rows, err := s.repo.ListPendingReceived(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list friend requests")
	}
	items := make([]dto.FriendRequestItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, dto.FriendRequestItem{
			ID:        row.ID,
			Status:    row.Status,
			CreatedAt: row.CreatedAt,
			Sender:    models.UserSummary{ID: row.SenderID, Name: row.SenderName, Email: row.SenderEmail, Avatar: row.SenderAvatar},
		})
	}
	return items, nil
}

// AcceptRequest accepts a pending request and mirrors the friendship in both directions.
func (s *FriendService) AcceptRequest(ctx context.Context, userID, requestID string) error {
	req, err := s.receivedPending(ctx, userID, requestID)
	if err != nil {
		return err
	}
	err = runSteps(ctx, s.logger,
		step{
			name: "accept request",
			do:   func(ctx context.Context) error { return s.repo.UpdateRequestStatus(ctx, req.ID, models.FriendRequestAccepted) },
			undo: func(ctx context.Context) error { return s.repo.UpdateRequestStatus(ctx, req.ID, models.FriendRequestPending) },
		},
		step{
			name: "add receiver friend",
			do:   func(ctx context.Context) error { return s.repo.AddFriend(ctx, req.ReceiverID, req.SenderID) },
			undo: func(ctx context.Context) error { return s.repo.RemoveFriend(ctx, req.ReceiverID, req.SenderID) },
		},
		step{
			name: "add sender friend",
			do:   func(ctx context.Context) error { return s.repo.AddFriend(ctx, req.SenderID, req.ReceiverID) },
			undo: func(ctx context.Context) error { return s.repo.RemoveFriend(ctx, req.SenderID, req.ReceiverID) },
		},
	)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept friend request")
	}
	return nil
}

// DeclineRequest declines a pending request addressed to the caller.
func (s *FriendService) DeclineRequest(ctx context.Context, userID, requestID string) error {
	req, err := s.receivedPending(ctx, userID, requestID)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateRequestStatus(ctx, req.ID, models.FriendRequestDeclined); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decline friend request")
	}
	return nil
}

func (s *FriendService) receivedPending(ctx context.Context, userID, requestID string) (*models.FriendRequest, error) {
	req, err := s.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Friend request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load friend request")
	}
	if req.ReceiverID != userID || req.Status != models.FriendRequestPending {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Friend request not found")
	}
	return req, nil
}

// Remove ends a friendship in both directions and clears the requests between the pair.
func (s *FriendService) Remove(ctx context.Context, userID, friendID string) error {
	friends, err := s.repo.AreFriends(ctx, userID, friendID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check friendship")
	}
	if !friends {
		return appErrors.Clone(appErrors.ErrBadRequest, "Not friends with this user")
	}
	var removed []models.FriendRequest
	err = runSteps(ctx, s.logger,
		step{
			name: "remove friend",
			do:   func(ctx context.Context) error { return s.repo.RemoveFriend(ctx, userID, friendID) },
			undo: func(ctx context.Context) error { return s.repo.AddFriend(ctx, userID, friendID) },
		},
		step{
			name: "remove reverse friend",
			do:   func(ctx context.Context) error { return s.repo.RemoveFriend(ctx, friendID, userID) },
			undo: func(ctx context.Context) error { return s.repo.AddFriend(ctx, friendID, userID) },
		},
		step{
			name: "delete requests",
			do: func(ctx context.Context) error {
				var err error
				removed, err = s.repo.DeleteRequestsBetween(ctx, userID, friendID)
				return err
			},
			undo: func(ctx context.Context) error {
				for _, req := range removed {
					if err := s.repo.RestoreRequest(ctx, req); err != nil {
						return err
					}
				}
				return nil
			},
		},
	)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove friend")
	}
	return nil
}

// Search finds users by name, email or student id and annotates the relationship.
func (s *FriendService) Search(ctx context.Context, userID, query string) ([]dto.UserSearchResult, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 2 {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Query must be at least 2 characters long")
	}
	users, err := s.users.Search(ctx, query, userID, 20)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search users")
	}
	friendIDs, err := s.repo.FriendIDs(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load friends")
	}
	friendSet := make(map[string]struct{}, len(friendIDs))
	for _, id := range friendIDs {
		friendSet[id] = struct{}{}
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	directions, err := s.repo.PendingDirections(ctx, userID, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load friend requests")
	}

	results := make([]dto.UserSearchResult, 0, len(users))
	for _, u := range users {
		_, isFriend := friendSet[u.ID]
		direction, ok := directions[u.ID]
		if !ok {
			direction = models.RequestNone
		}
		results = append(results, dto.UserSearchResult{UserSummary: u, IsFriend: isFriend, RequestStatus: direction})
	}
	return results, nil
}

// AreFriends reports whether the pair are friends.
func (s *FriendService) AreFriends(ctx context.Context, userID, otherID string) (bool, error) {
	ok, err := s.repo.AreFriends(ctx, userID, otherID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check friendship")
	}
	return ok, nil
}
