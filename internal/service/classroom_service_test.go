package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
)

type memoryClassrooms struct {
	classrooms map[string]*models.Classroom
	members    map[string]map[string]bool
	rooms      map[string]*models.Room
	friends    map[string]bool
	seq        int
}

func newMemoryClassrooms() *memoryClassrooms {
	return &memoryClassrooms{
		classrooms: map[string]*models.Classroom{},
		members:    map[string]map[string]bool{},
		rooms:      map[string]*models.Room{},
		friends:    map[string]bool{},
	}
}

func (m *memoryClassrooms) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%d", prefix, m.seq)
}

func (m *memoryClassrooms) InviteCodeExists(ctx context.Context, code string) (bool, error) {
	for _, c := range m.classrooms {
		if c.InviteCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryClassrooms) CreateWithRoom(ctx context.Context, classroom *models.Classroom, room *models.Room) error {
	classroom.ID = m.nextID("c")
	room.ID = m.nextID("r")
	room.ClassroomID = classroom.ID
	m.classrooms[classroom.ID] = classroom
	m.members[classroom.ID] = map[string]bool{classroom.AdminID: true}
	m.rooms[room.ID] = room
	return nil
}

func (m *memoryClassrooms) FindByID(ctx context.Context, id string) (*models.Classroom, error) {
	if c, ok := m.classrooms[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryClassrooms) FindByInviteCode(ctx context.Context, code string) (*models.Classroom, error) {
	for _, c := range m.classrooms {
		if c.InviteCode == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryClassrooms) ListForUser(ctx context.Context, userID string, limit int) ([]models.Classroom, error) {
	return nil, nil
}

func (m *memoryClassrooms) Update(ctx context.Context, classroom *models.Classroom) error {
	cp := *classroom
	m.classrooms[classroom.ID] = &cp
	return nil
}

func (m *memoryClassrooms) Delete(ctx context.Context, id string) error {
	delete(m.classrooms, id)
	return nil
}

func (m *memoryClassrooms) IsMember(ctx context.Context, classroomID, userID string) (bool, error) {
	return m.members[classroomID][userID], nil
}

func (m *memoryClassrooms) AddMember(ctx context.Context, classroomID, userID string) error {
	m.members[classroomID][userID] = true
	return nil
}

func (m *memoryClassrooms) RemoveMember(ctx context.Context, classroomID, userID string) error {
	delete(m.members[classroomID], userID)
	return nil
}

func (m *memoryClassrooms) ListMembers(ctx context.Context, classroomID string) ([]models.UserSummary, error) {
	var out []models.UserSummary
	for id := range m.members[classroomID] {
		out = append(out, models.UserSummary{ID: id})
	}
	return out, nil
}

func (m *memoryClassrooms) FriendsNotInClassroom(ctx context.Context, classroomID, userID string) ([]models.UserSummary, error) {
	return nil, nil
}

func (m *memoryClassrooms) AreFriends(ctx context.Context, userID, friendID string) (bool, error) {
	return m.friends[userID+"|"+friendID] || m.friends[friendID+"|"+userID], nil
}

type memoryClassroomRooms struct{ store *memoryClassrooms }

func (r memoryClassroomRooms) Create(ctx context.Context, room *models.Room) error {
	room.ID = r.store.nextID("r")
	r.store.rooms[room.ID] = room
	return nil
}

func (r memoryClassroomRooms) FindByID(ctx context.Context, id string) (*models.Room, error) {
	if room, ok := r.store.rooms[id]; ok {
		cp := *room
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (r memoryClassroomRooms) ListByClassroom(ctx context.Context, classroomID string) ([]models.Room, error) {
	var out []models.Room
	for _, room := range r.store.rooms {
		if room.ClassroomID == classroomID {
			out = append(out, *room)
		}
	}
	return out, nil
}

func (r memoryClassroomRooms) NameTaken(ctx context.Context, classroomID, name, excludeID string) (bool, error) {
	for _, room := range r.store.rooms {
		if room.ClassroomID == classroomID && room.Name == name && room.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r memoryClassroomRooms) Update(ctx context.Context, room *models.Room) error {
	cp := *room
	r.store.rooms[room.ID] = &cp
	return nil
}

func (r memoryClassroomRooms) Delete(ctx context.Context, id string) error {
	delete(r.store.rooms, id)
	return nil
}

type fixedNames struct{}

func (fixedNames) SuggestClassroomNames(ctx context.Context, description string) []string {
	return []string{"Study Group"}
}

func (fixedNames) SuggestRoomNames(ctx context.Context, classroomName, subject string) []string {
	return []string{"General Discussion"}
}

func newClassroomFixture() (*ClassroomService, *memoryClassrooms) {
	store := newMemoryClassrooms()
	users := &memoryUserDirectory{users: map[string]*models.User{
		"admin":  {ID: "admin", Name: "Ada"},
		"friend": {ID: "friend", Name: "Finn"},
		"other":  {ID: "other", Name: "Olga"},
	}}
	store.friends["admin|friend"] = true
	svc := NewClassroomService(store, memoryClassroomRooms{store: store}, users, store, fixedNames{}, nil, zap.NewNop())
	return svc, store
}

func TestClassroomCreateAddsGeneralRoom(t *testing.T) {
	svc, store := newClassroomFixture()
	codes := []string{"TAKEN123", "FRESH456"}
	store.classrooms["existing"] = &models.Classroom{ID: "existing", InviteCode: "TAKEN123"}
	svc.newCode = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}

	classroom, err := svc.Create(context.Background(), "admin", dto.CreateClassroomRequest{Name: "  Calculus  "})
	require.NoError(t, err)
	assert.Equal(t, "Calculus", classroom.Name)
	assert.Equal(t, "FRESH456", classroom.InviteCode)
	assert.True(t, store.members[classroom.ID]["admin"])

	detail, err := svc.Get(context.Background(), classroom.ID, "admin")
	require.NoError(t, err)
	assert.True(t, detail.IsAdmin)
	require.Len(t, detail.Rooms, 1)
	assert.Equal(t, models.GeneralRoomName, detail.Rooms[0].Name)

	_, err = svc.Create(context.Background(), "admin", dto.CreateClassroomRequest{Name: "   "})
	assertAppError(t, err, http.StatusBadRequest, "")
}

func TestClassroomInviteCodeIsAlphanumeric(t *testing.T) {
	code, err := randomInviteCode()
	require.NoError(t, err)
	assert.Len(t, code, inviteCodeLength)
	for _, r := range code {
		assert.Contains(t, inviteCodeAlphabet, string(r))
	}
}

func TestClassroomJoinAndLeave(t *testing.T) {
	svc, store := newClassroomFixture()
	ctx := context.Background()
	classroom, err := svc.Create(ctx, "admin", dto.CreateClassroomRequest{Name: "Physics"})
	require.NoError(t, err)

	resp, err := svc.Join(ctx, "other", " "+strings.ToLower(classroom.InviteCode)+" ")
	require.NoError(t, err)
	assert.Equal(t, classroom.ID, resp.ClassroomID)
	assert.True(t, store.members[classroom.ID]["other"])

	_, err = svc.Join(ctx, "other", classroom.InviteCode)
	assertAppError(t, err, http.StatusBadRequest, "Already a member of this classroom")

	_, err = svc.Join(ctx, "other", "NOPE0000")
	assertAppError(t, err, http.StatusNotFound, "Invalid invite code")

	err = svc.Leave(ctx, classroom.ID, "admin")
	assertAppError(t, err, http.StatusBadRequest, "Admin cannot leave classroom. Transfer admin or delete classroom.")

	require.NoError(t, svc.Leave(ctx, classroom.ID, "other"))
	_, err = svc.Get(ctx, classroom.ID, "other")
	assertAppError(t, err, http.StatusForbidden, "Not a member of this classroom")
}

func TestClassroomAddMemberRequiresFriendship(t *testing.T) {
	svc, store := newClassroomFixture()
	ctx := context.Background()
	classroom, err := svc.Create(ctx, "admin", dto.CreateClassroomRequest{Name: "Biology"})
	require.NoError(t, err)

	err = svc.AddMember(ctx, classroom.ID, "friend", "other")
	assertAppError(t, err, http.StatusForbidden, "Only classroom admin can add members")

	err = svc.AddMember(ctx, classroom.ID, "admin", "other")
	assertAppError(t, err, http.StatusBadRequest, "Can only add friends to classroom")

	err = svc.AddMember(ctx, classroom.ID, "admin", "ghost")
	assertAppError(t, err, http.StatusNotFound, "User not found")

	require.NoError(t, svc.AddMember(ctx, classroom.ID, "admin", "friend"))
	assert.True(t, store.members[classroom.ID]["friend"])

	err = svc.AddMember(ctx, classroom.ID, "admin", "friend")
	assertAppError(t, err, http.StatusBadRequest, "User is already a member of this classroom")
}

func TestClassroomRooms(t *testing.T) {
	svc, store := newClassroomFixture()
	ctx := context.Background()
	classroom, err := svc.Create(ctx, "admin", dto.CreateClassroomRequest{Name: "Chemistry"})
	require.NoError(t, err)

	room, err := svc.CreateRoom(ctx, classroom.ID, "admin", dto.RoomRequest{Name: "Labs"})
	require.NoError(t, err)
	assert.Equal(t, classroom.ID, room.ClassroomID)

	_, err = svc.CreateRoom(ctx, classroom.ID, "admin", dto.RoomRequest{Name: " Labs "})
	assertAppError(t, err, http.StatusBadRequest, "Room name already exists in this classroom")

	_, err = svc.CreateRoom(ctx, classroom.ID, "friend", dto.RoomRequest{Name: "Mine"})
	assertAppError(t, err, http.StatusForbidden, "Only classroom admin can create rooms")

	renamed, err := svc.UpdateRoom(ctx, classroom.ID, room.ID, "admin", dto.RoomRequest{Name: "Lab Reports"})
	require.NoError(t, err)
	assert.Equal(t, "Lab Reports", renamed.Name)

	var general string
	for id, r := range store.rooms {
		if r.ClassroomID == classroom.ID && r.Name == models.GeneralRoomName {
			general = id
		}
	}
	err = svc.DeleteRoom(ctx, classroom.ID, general, "admin")
	assertAppError(t, err, http.StatusBadRequest, "Cannot delete the General room")

	other, err := svc.Create(ctx, "admin", dto.CreateClassroomRequest{Name: "Elsewhere"})
	require.NoError(t, err)
	err = svc.DeleteRoom(ctx, other.ID, room.ID, "admin")
	assertAppError(t, err, http.StatusNotFound, "Room not found")

	require.NoError(t, svc.DeleteRoom(ctx, classroom.ID, room.ID, "admin"))
	rooms, err := svc.Rooms(ctx, classroom.ID, "admin")
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestClassroomSuggestions(t *testing.T) {
	svc, _ := newClassroomFixture()
	_, err := svc.SuggestNames(context.Background(), " a ")
	assertAppError(t, err, http.StatusBadRequest, "Description must be at least 3 characters long")

	names, err := svc.SuggestNames(context.Background(), "calculus study")
	require.NoError(t, err)
	assert.Equal(t, []string{"Study Group"}, names.Suggestions)

	_, err = svc.SuggestRoomNames(context.Background(), "x", "")
	assertAppError(t, err, http.StatusBadRequest, "Classroom name must be at least 2 characters long")
}

func TestClassroomDeleteIsAdminOnly(t *testing.T) {
	svc, store := newClassroomFixture()
	ctx := context.Background()
	classroom, err := svc.Create(ctx, "admin", dto.CreateClassroomRequest{Name: "Biology"})
	require.NoError(t, err)
	_, err = svc.Join(ctx, "other", classroom.InviteCode)
	require.NoError(t, err)

	err = svc.Delete(ctx, classroom.ID, "other")
	assertAppError(t, err, http.StatusForbidden, "Only classroom admin can delete classroom")
	assert.Contains(t, store.classrooms, classroom.ID)

	err = svc.Delete(ctx, "missing", "admin")
	assertAppError(t, err, http.StatusNotFound, "")

	require.NoError(t, svc.Delete(ctx, classroom.ID, "admin"))
	assert.NotContains(t, store.classrooms, classroom.ID)
}
