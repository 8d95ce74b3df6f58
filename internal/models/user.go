package models

import (
	"time"

	"github.com/lib/pq"
)

// UserRole distinguishes learners from tutors offering paid sessions.
type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
)

// Valid reports whether the role is known.
func (r UserRole) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// User represents an account stored in the users table.
type User struct {
	ID              string         `db:"id" json:"id"`
	Email           string         `db:"email" json:"email"`
	PasswordHash    string         `db:"password_hash" json:"-"`
	Name            string         `db:"name" json:"name"`
	Bio             *string        `db:"bio" json:"bio,omitempty"`
	Avatar          *string        `db:"avatar" json:"avatar,omitempty"`
	StudyInterests  pq.StringArray `db:"study_interests" json:"study_interests"`
	LearningStreaks int            `db:"learning_streaks" json:"learning_streaks"`
	StudentID       *string        `db:"student_id" json:"student_id,omitempty"`
	Role            UserRole       `db:"role" json:"role"`
	IsVerified      bool           `db:"is_verified" json:"is_verified"`
	IsActive        bool           `db:"is_active" json:"is_active"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// UserSummary is the compact user projection embedded in other payloads.
type UserSummary struct {
	ID        string  `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	Email     string  `db:"email" json:"email"`
	Avatar    *string `db:"avatar" json:"avatar,omitempty"`
	StudentID *string `db:"student_id" json:"student_id,omitempty"`
}

// Summary projects the user onto its compact form.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar, StudentID: u.StudentID}
}

// PendingRegistration is kept in the verification store until the emailed code is confirmed.
type PendingRegistration struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user_data"`
	// PasswordHash travels separately because User hides it from JSON.
	PasswordHash string `json:"password_hash"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
