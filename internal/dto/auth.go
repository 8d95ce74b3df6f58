package dto

import (
	"time"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

// RegisterRequest starts an email verified registration.
type RegisterRequest struct {
	Email     string          `json:"email" validate:"required,email"`
	Password  string          `json:"password" validate:"required,min=6"`
	Name      string          `json:"name" validate:"required,min=1,max=120"`
	StudentID *string         `json:"student_id,omitempty" validate:"omitempty,max=64"`
	Role      models.UserRole `json:"role,omitempty" validate:"omitempty,oneof=student teacher"`
}

// RegisterResponse acknowledges a pending registration.
type RegisterResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

// VerifyEmailRequest confirms the emailed code.
type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// ResendVerificationRequest asks for a new code.
type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest exchanges or revokes a refresh token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenPair is returned on login, verification and refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// VerifiedUser is the user projection returned after verification.
type VerifiedUser struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	IsVerified bool   `json:"is_verified"`
}

// VerifyEmailResponse completes registration.
type VerifyEmailResponse struct {
	Message string       `json:"message"`
	User    VerifiedUser `json:"user"`
	Tokens  TokenPair    `json:"tokens"`
}

// UpdateProfileRequest patches the caller's profile.
type UpdateProfileRequest struct {
	Name           *string  `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Bio            *string  `json:"bio,omitempty" validate:"omitempty,max=1000"`
	Avatar         *string  `json:"avatar,omitempty" validate:"omitempty,max=2048"`
	StudyInterests []string `json:"study_interests,omitempty" validate:"omitempty,max=20,dive,max=64"`
}

// UserProfile is a user as returned by profile endpoints.
type UserProfile struct {
	models.User
	Friends        []string               `json:"friends"`
	TeacherProfile *models.TeacherProfile `json:"teacher_profile,omitempty"`
}

// MessageResponse is a bare acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}
