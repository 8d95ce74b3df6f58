package models

import "time"

// GeneralRoomName is the room created with every classroom. It cannot be deleted.
const GeneralRoomName = "General"

// Classroom groups members and their chat rooms.
type Classroom struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	AdminID     string    `db:"admin_id" json:"admin_id"`
	InviteCode  string    `db:"invite_code" json:"invite_code"`
	MemberCount int       `db:"member_count" json:"member_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Room is a chat channel scoped to one classroom. ClassroomID never changes after creation.
type Room struct {
	ID          string    `db:"id" json:"id"`
	ClassroomID string    `db:"classroom_id" json:"classroom_id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedBy   *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
