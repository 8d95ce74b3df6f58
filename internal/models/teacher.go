package models

import (
	"time"

	"github.com/lib/pq"
)

// TeacherProfile is the public tutoring profile of a teacher account.
type TeacherProfile struct {
	ID              string         `db:"id" json:"id"`
	UserID          string         `db:"user_id" json:"user_id"`
	Bio             string         `db:"bio" json:"bio"`
	Expertise       pq.StringArray `db:"expertise" json:"expertise"`
	CoursesOffered  pq.StringArray `db:"courses_offered" json:"courses_offered"`
	HourlyRate      float64        `db:"hourly_rate" json:"hourly_rate"`
	MonthlyRate     *float64       `db:"monthly_rate" json:"-"`
	Languages       pq.StringArray `db:"languages" json:"languages"`
	ExperienceYears int            `db:"experience_years" json:"experience_years"`
	Education       string         `db:"education" json:"education"`
	Availability    string         `db:"availability" json:"availability"`
	ProfilePicture  *string        `db:"profile_picture" json:"profile_picture,omitempty"`
	Rating          float64        `db:"rating" json:"rating"`
	TotalReviews    int            `db:"total_reviews" json:"total_reviews"`
	TotalStudents   int            `db:"total_students" json:"total_students"`
	TotalSessions   int            `db:"total_sessions" json:"total_sessions"`
	IsActive        bool           `db:"is_active" json:"is_active"`
	UserName        string         `db:"user_name" json:"user_name"`
	UserAvatar      *string        `db:"user_avatar" json:"user_avatar,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// PackagePricing exposes non-hourly prices.
type PackagePricing struct {
	Monthly *float64 `json:"monthly,omitempty"`
}

// Pricing returns the package pricing view of the profile.
func (p TeacherProfile) Pricing() PackagePricing {
	return PackagePricing{Monthly: p.MonthlyRate}
}

// TeacherFilter narrows teacher discovery.
type TeacherFilter struct {
	Subject   string
	Expertise string
	MinRating *float64
	MaxPrice  *float64
	Language  string
	Search    string
	Skip      int
	Limit     int
}

// TeacherReview is a student's rating of a teacher.
type TeacherReview struct {
	ID          string    `db:"id" json:"id"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	Rating      int       `db:"rating" json:"rating"`
	Comment     string    `db:"comment" json:"comment"`
	StudentName string    `db:"student_name" json:"student_name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// HireType selects hourly or monthly pricing.
type HireType string

const (
	HireHourly  HireType = "hourly"
	HireMonthly HireType = "monthly"
)

// HireStatus is the lifecycle of a hire request.
type HireStatus string

const (
	HirePending   HireStatus = "pending"
	HireAccepted  HireStatus = "accepted"
	HireRejected  HireStatus = "rejected"
	HireCompleted HireStatus = "completed"
	HireCancelled HireStatus = "cancelled"
)

// Valid reports whether the status is known.
func (s HireStatus) Valid() bool {
	switch s {
	case HirePending, HireAccepted, HireRejected, HireCompleted, HireCancelled:
		return true
	}
	return false
}

// HireRequest is a student's request to book a teacher.
type HireRequest struct {
	ID            string     `db:"id" json:"id"`
	TeacherID     string     `db:"teacher_id" json:"teacher_id"`
	StudentID     string     `db:"student_id" json:"student_id"`
	Subject       string     `db:"subject" json:"subject"`
	Message       string     `db:"message" json:"message"`
	HireType      HireType   `db:"hire_type" json:"hire_type"`
	DurationHours *int       `db:"duration_hours" json:"duration_hours,omitempty"`
	TotalPrice    float64    `db:"total_price" json:"total_price"`
	Status        HireStatus `db:"status" json:"status"`
	PaymentStatus string     `db:"payment_status" json:"payment_status"`
	TeacherName   string     `db:"teacher_name" json:"teacher_name,omitempty"`
	StudentName   string     `db:"student_name" json:"student_name,omitempty"`
	TeacherUserID string     `db:"teacher_user_id" json:"-"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// TeachingSessionStatus is the lifecycle of a scheduled lesson.
type TeachingSessionStatus string

const (
	TeachingScheduled TeachingSessionStatus = "scheduled"
	TeachingCompleted TeachingSessionStatus = "completed"
	TeachingCancelled TeachingSessionStatus = "cancelled"
)

// TeachingSession is created when a teacher accepts a hire request.
type TeachingSession struct {
	ID              string                `db:"id" json:"id"`
	HireRequestID   string                `db:"hire_request_id" json:"hire_request_id"`
	TeacherID       string                `db:"teacher_id" json:"teacher_id"`
	StudentID       string                `db:"student_id" json:"student_id"`
	Subject         string                `db:"subject" json:"subject"`
	ScheduledAt     time.Time             `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes int                   `db:"duration_minutes" json:"duration_minutes"`
	Status          TeachingSessionStatus `db:"status" json:"status"`
	Notes           *string               `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time             `db:"updated_at" json:"updated_at"`
}

// TeacherAnalytics aggregates the teacher dashboard.
type TeacherAnalytics struct {
	PendingRequests int     `json:"pending_requests"`
	ActiveSessions  int     `json:"active_sessions"`
	UnreadMessages  int     `json:"unread_messages"`
	Rating          float64 `json:"rating"`
	TotalReviews    int     `json:"total_reviews"`
	TotalStudents   int     `json:"total_students"`
	TotalSessions   int     `json:"total_sessions"`
}
