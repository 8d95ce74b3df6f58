package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

type edge struct{ from, to string }

type memoryFriendRepo struct {
	edges        map[edge]bool
	requests     map[string]*models.FriendRequest
	failAddFrom  string
	failDeleteRq bool
}

func newMemoryFriendRepo() *memoryFriendRepo {
	return &memoryFriendRepo{edges: map[edge]bool{}, requests: map[string]*models.FriendRequest{}}
}

func (m *memoryFriendRepo) ListFriends(ctx context.Context, userID string) ([]models.UserSummary, error) {
	var out []models.UserSummary
	for e := range m.edges {
		if e.from == userID {
			out = append(out, models.UserSummary{ID: e.to})
		}
	}
	return out, nil
}

func (m *memoryFriendRepo) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	var out []string
	for e := range m.edges {
		if e.from == userID {
			out = append(out, e.to)
		}
	}
	return out, nil
}

func (m *memoryFriendRepo) AreFriends(ctx context.Context, userID, friendID string) (bool, error) {
	return m.edges[edge{userID, friendID}], nil
}

func (m *memoryFriendRepo) AddFriend(ctx context.Context, userID, friendID string) error {
	if m.failAddFrom == userID {
		return errors.New("write failed")
	}
	m.edges[edge{userID, friendID}] = true
	return nil
}

func (m *memoryFriendRepo) RemoveFriend(ctx context.Context, userID, friendID string) error {
	delete(m.edges, edge{userID, friendID})
	return nil
}

func (m *memoryFriendRepo) CreateRequest(ctx context.Context, req *models.FriendRequest) error {
	if req.ID == "" {
		req.ID = "req-" + req.SenderID + "-" + req.ReceiverID
	}
	m.requests[req.ID] = req
	return nil
}

func (m *memoryFriendRepo) FindPending(ctx context.Context, senderID, receiverID string) (*models.FriendRequest, error) {
	for _, r := range m.requests {
		if r.SenderID == senderID && r.ReceiverID == receiverID && r.Status == models.FriendRequestPending {
			return r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryFriendRepo) FindRequestByID(ctx context.Context, id string) (*models.FriendRequest, error) {
	if r, ok := m.requests[id]; ok {
		return r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryFriendRepo) ListPendingReceived(ctx context.Context, receiverID string) ([]models.FriendRequestWithSender, error) {
	var out []models.FriendRequestWithSender
	for _, r := range m.requests {
		if r.ReceiverID == receiverID && r.Status == models.FriendRequestPending {
			out = append(out, models.FriendRequestWithSender{FriendRequest: *r, SenderName: "Sender " + r.SenderID})
		}
	}
	return out, nil
}

func (m *memoryFriendRepo) UpdateRequestStatus(ctx context.Context, id string, status models.FriendRequestStatus) error {
	m.requests[id].Status = status
	return nil
}

func (m *memoryFriendRepo) DeleteRequestsBetween(ctx context.Context, a, b string) ([]models.FriendRequest, error) {
	if m.failDeleteRq {
		return nil, errors.New("delete failed")
	}
	var removed []models.FriendRequest
	for id, r := range m.requests {
		if (r.SenderID == a && r.ReceiverID == b) || (r.SenderID == b && r.ReceiverID == a) {
			removed = append(removed, *r)
			delete(m.requests, id)
		}
	}
	return removed, nil
}

func (m *memoryFriendRepo) RestoreRequest(ctx context.Context, req models.FriendRequest) error {
	r := req
	m.requests[r.ID] = &r
	return nil
}

func (m *memoryFriendRepo) PendingDirections(ctx context.Context, userID string, others []string) (map[string]models.RequestDirection, error) {
	out := map[string]models.RequestDirection{}
	for _, r := range m.requests {
		if r.Status != models.FriendRequestPending {
			continue
		}
		if r.SenderID == userID {
			out[r.ReceiverID] = models.RequestSent
		} else if r.ReceiverID == userID {
			out[r.SenderID] = models.RequestReceived
		}
	}
	return out, nil
}

type memoryUserDirectory struct {
	users map[string]*models.User
}

func (m *memoryUserDirectory) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryUserDirectory) Search(ctx context.Context, term, excludeID string, limit int) ([]models.UserSummary, error) {
	var out []models.UserSummary
	for _, u := range m.users {
		if u.ID != excludeID && strings.Contains(strings.ToLower(u.Name), strings.ToLower(term)) {
			out = append(out, u.Summary())
		}
	}
	return out, nil
}

func newFriendFixture() (*FriendService, *memoryFriendRepo) {
	repo := newMemoryFriendRepo()
	users := &memoryUserDirectory{users: map[string]*models.User{
		"a": {ID: "a", Name: "Alice"},
		"b": {ID: "b", Name: "Bob"},
		"c": {ID: "c", Name: "Carla"},
	}}
	return NewFriendService(repo, users, nil), repo
}

func TestSendRequestErrors(t *testing.T) {
	svc, repo := newFriendFixture()
	ctx := context.Background()

	_, err := svc.SendRequest(ctx, "a", "zzz")
	assertAppError(t, err, 404, "User not found")

	_, err = svc.SendRequest(ctx, "a", "a")
	assertAppError(t, err, 400, "Cannot send friend request to yourself")

	_, err = svc.SendRequest(ctx, "a", "b")
	require.NoError(t, err)

	_, err = svc.SendRequest(ctx, "a", "b")
	assertAppError(t, err, 400, "Friend request already sent")

	_, err = svc.SendRequest(ctx, "b", "a")
	assertAppError(t, err, 400, "This user has already sent you a friend request")

	repo.edges[edge{"a", "c"}] = true
	_, err = svc.SendRequest(ctx, "a", "c")
	assertAppError(t, err, 400, "Already friends with this user")
}

func TestAcceptRequestMirrorsFriendship(t *testing.T) {
	svc, repo := newFriendFixture()
	ctx := context.Background()

	req, err := svc.SendRequest(ctx, "a", "b")
	require.NoError(t, err)

	err = svc.AcceptRequest(ctx, "a", req.ID)
	assertAppError(t, err, 404, "Friend request not found")

	require.NoError(t, svc.AcceptRequest(ctx, "b", req.ID))
	assert.True(t, repo.edges[edge{"a", "b"}])
	assert.True(t, repo.edges[edge{"b", "a"}])
	assert.Equal(t, models.FriendRequestAccepted, repo.requests[req.ID].Status)

	err = svc.AcceptRequest(ctx, "b", req.ID)
	assertAppError(t, err, 404, "Friend request not found")
}

func TestAcceptRequestCompensatesPartialFailure(t *testing.T) {
	svc, repo := newFriendFixture()
	ctx := context.Background()

	req, err := svc.SendRequest(ctx, "a", "b")
	require.NoError(t, err)
	repo.failAddFrom = "a"

	err = svc.AcceptRequest(ctx, "b", req.ID)
	assertAppError(t, err, 500, "")
	assert.Empty(t, repo.edges)
	assert.Equal(t, models.FriendRequestPending, repo.requests[req.ID].Status)
}

func TestRemoveFriendCompensatesPartialFailure(t *testing.T) {
	svc, repo := newFriendFixture()
	ctx := context.Background()

	err := svc.Remove(ctx, "a", "b")
	assertAppError(t, err, 400, "Not friends with this user")

	repo.edges[edge{"a", "b"}] = true
	repo.edges[edge{"b", "a"}] = true
	repo.failDeleteRq = true

	err = svc.Remove(ctx, "a", "b")
	require.Error(t, err)
	assert.True(t, repo.edges[edge{"a", "b"}])
	assert.True(t, repo.edges[edge{"b", "a"}])

	repo.failDeleteRq = false
	require.NoError(t, svc.Remove(ctx, "a", "b"))
	assert.Empty(t, repo.edges)
}

func TestSearchAnnotatesRelationship(t *testing.T) {
	svc, repo := newFriendFixture()
	ctx := context.Background()

	_, err := svc.Search(ctx, "a", "b")
	assertAppError(t, err, 400, "Query must be at least 2 characters long")

	repo.edges[edge{"a", "b"}] = true
	_, err = svc.SendRequest(ctx, "c", "a")
	require.NoError(t, err)

	results, err := svc.Search(ctx, "a", "l")
	assertAppError(t, err, 400, "Query must be at least 2 characters long")
	assert.Nil(t, results)

	bob, err := svc.Search(ctx, "a", "bo")
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.True(t, bob[0].IsFriend)
	assert.Equal(t, models.RequestNone, bob[0].RequestStatus)

	carla, err := svc.Search(ctx, "a", "carl")
	require.NoError(t, err)
	require.Len(t, carla, 1)
	assert.False(t, carla[0].IsFriend)
	assert.Equal(t, models.RequestReceived, carla[0].RequestStatus)
}
