package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/peerlearn/peerlearn-api/internal/models"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
)

type roomLookup interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
}

type memberLookup interface {
	IsMember(ctx context.Context, classroomID, userID string) (bool, error)
}

// Membership authorizes room scoped actions. Every call reads the store so that
// removals take effect on the next action.
type Membership struct {
	rooms   roomLookup
	members memberLookup
}

// NewMembership constructs the authorizer.
func NewMembership(rooms roomLookup, members memberLookup) *Membership {
	return &Membership{rooms: rooms, members: members}
}

// CanAccessRoom resolves the room and checks that userID belongs to its classroom.
func (m *Membership) CanAccessRoom(ctx context.Context, userID, roomID string) (*models.Room, error) {
	room, err := m.rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	ok, err := m.members.IsMember(ctx, room.ClassroomID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Not a member of this classroom")
	}
	return room, nil
}
