package dto

import "github.com/peerlearn/peerlearn-api/internal/models"

// TeacherProfileRequest creates or replaces a teacher profile.
type TeacherProfileRequest struct {
	Bio             string                `json:"bio" validate:"max=2000"`
	Expertise       []string              `json:"expertise" validate:"max=20,dive,max=64"`
	CoursesOffered  []string              `json:"courses_offered" validate:"max=30,dive,max=100"`
	HourlyRate      float64               `json:"hourly_rate" validate:"gte=0"`
	PackagePricing  models.PackagePricing `json:"package_pricing"`
	Languages       []string              `json:"languages" validate:"max=10,dive,max=32"`
	ExperienceYears int                   `json:"experience_years" validate:"gte=0,lte=80"`
	Education       string                `json:"education" validate:"max=500"`
	Availability    string                `json:"availability" validate:"max=500"`
}

// TeacherProfileResponse is a profile with its package pricing view.
type TeacherProfileResponse struct {
	models.TeacherProfile
	PackagePricing models.PackagePricing  `json:"package_pricing"`
	Reviews        []models.TeacherReview `json:"reviews,omitempty"`
}

// HireRequestPayload books a teacher.
type HireRequestPayload struct {
	TeacherID     string          `json:"teacher_id" validate:"required,uuid"`
	Subject       string          `json:"subject" validate:"required,min=1,max=200"`
	Message       string          `json:"message" validate:"max=2000"`
	HireType      models.HireType `json:"hire_type" validate:"required,oneof=hourly monthly"`
	DurationHours *int            `json:"duration_hours,omitempty" validate:"omitempty,min=1,max=200"`
}

// UpdateHireStatusRequest moves a hire request through its lifecycle.
type UpdateHireStatusRequest struct {
	Status models.HireStatus `json:"status" validate:"required,oneof=accepted rejected completed cancelled"`
}
