package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	"github.com/peerlearn/peerlearn-api/internal/repository"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
	"github.com/peerlearn/peerlearn-api/pkg/imaging"
	"github.com/peerlearn/peerlearn-api/pkg/mail"
	"github.com/peerlearn/peerlearn-api/pkg/storage"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	StudentIDExists(ctx context.Context, studentID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdateAvatar(ctx context.Context, id, avatar string) error
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error
}

type verificationStore interface {
	Save(ctx context.Context, email string, pending models.PendingRegistration, ttl time.Duration) error
	Get(ctx context.Context, email string) (*models.PendingRegistration, error)
	Delete(ctx context.Context, email string) error
}

type friendIDLister interface {
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}

type teacherProfileFinder interface {
	FindByUserID(ctx context.Context, userID string) (*models.TeacherProfile, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
	VerificationTTL    time.Duration
}

// AuthDeps groups the collaborators of AuthService besides the user repository.
type AuthDeps struct {
	Verifications verificationStore
	Friends       friendIDLister
	Teachers      teacherProfileFinder
	Mailer        mail.Sender
	Store         storage.ObjectStore
}

// AuthService provides registration, login and profile use cases.
type AuthService struct {
	repo      authUserRepository
	deps      AuthDeps
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, deps AuthDeps, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.VerificationTTL <= 0 {
		config.VerificationTTL = 10 * time.Minute
	}
	return &AuthService{repo: repo, deps: deps, validator: validate, logger: logger, config: config, now: func() time.Time { return time.Now().UTC() }}
}

// Register stores a pending registration and emails its verification code.
func (s *AuthService) Register(ctx context.Context, req dto.RegisterRequest) (*dto.RegisterResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid registration payload")
	}
	if err := s.ensureAvailable(ctx, req.Email, req.StudentID); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	role := req.Role
	if role == "" {
		role = models.RoleStudent
	}
	pending := models.PendingRegistration{
		User: models.User{
			Email:          req.Email,
			Name:           strings.TrimSpace(req.Name),
			StudentID:      trimmedOrNil(req.StudentID),
			Role:           role,
			StudyInterests: []string{},
			IsActive:       true,
		},
		PasswordHash: string(hash),
	}
	if err := s.issueCode(ctx, &pending); err != nil {
		return nil, err
	}
	return &dto.RegisterResponse{Message: "Verification code sent to your email", Email: req.Email}, nil
}

// VerifyEmail creates the account for a confirmed pending registration and issues tokens.
func (s *AuthService) VerifyEmail(ctx context.Context, req dto.VerifyEmailRequest) (*dto.VerifyEmailResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid verification payload")
	}

	pending, err := s.deps.Verifications.Get(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrVerificationNotFound) {
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "Invalid or expired verification code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load verification code")
	}
	if pending.Code != req.Code || s.now().After(pending.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Invalid or expired verification code")
	}
	if err := s.ensureAvailable(ctx, req.Email, pending.User.StudentID); err != nil {
		return nil, err
	}

	user := pending.User
	user.ID = uuid.NewString()
	user.Email = req.Email
	user.PasswordHash = pending.PasswordHash
	user.IsVerified = true
	user.IsActive = true
	if err := s.repo.Create(ctx, &user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	if err := s.deps.Verifications.Delete(ctx, req.Email); err != nil {
		s.logger.Warn("failed to delete verification code", zap.String("email", req.Email), zap.Error(err))
	}
	if s.deps.Mailer != nil {
		if err := s.deps.Mailer.SendWelcome(ctx, user.Email, user.Name); err != nil {
			s.logger.Warn("failed to send welcome email", zap.String("email", user.Email), zap.Error(err))
		}
	}

	tokens, err := s.issueTokens(ctx, &user)
	if err != nil {
		return nil, err
	}
	return &dto.VerifyEmailResponse{
		Message: "Email verified successfully",
		User:    dto.VerifiedUser{ID: user.ID, Email: user.Email, Name: user.Name, IsVerified: true},
		Tokens:  *tokens,
	}, nil
}

// ResendVerification issues a fresh code for a pending registration.
func (s *AuthService) ResendVerification(ctx context.Context, req dto.ResendVerificationRequest) (*dto.MessageResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid resend payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if user != nil && user.IsVerified {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Email already verified")
	}

	pending, err := s.deps.Verifications.Get(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrVerificationNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load verification code")
	}
	if err := s.issueCode(ctx, pending); err != nil {
		return nil, err
	}
	return &dto.MessageResponse{Message: "Verification code sent to your email"}, nil
}

// Login authenticates a user and returns issued tokens.
func (s *AuthService) Login(ctx context.Context, req dto.LoginRequest) (*dto.TokenPair, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "Incorrect email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "Incorrect email or password")
	}
	if !user.IsVerified {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Please verify your email before logging in")
	}
	if !user.IsActive {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "account is inactive")
	}
	return s.issueTokens(ctx, user)
}

// RefreshToken exchanges a refresh token for a new token pair and revokes the old one.
func (s *AuthService) RefreshToken(ctx context.Context, req dto.RefreshTokenRequest) (*dto.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid refresh payload")
	}

	stored, err := s.repo.FindRefreshToken(ctx, hashToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}
	if stored.Revoked || s.now().After(stored.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or revoked")
	}

	user, err := s.repo.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if err := s.repo.RevokeRefreshToken(ctx, stored.ID); err != nil {
		s.logger.Warn("failed to revoke used refresh token", zap.Error(err))
	}
	return s.issueTokens(ctx, user)
}

// Logout revokes the provided refresh token.
func (s *AuthService) Logout(ctx context.Context, userID string, req dto.RefreshTokenRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Validation(err, "invalid logout payload")
	}
	stored, err := s.repo.FindRefreshToken(ctx, hashToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load refresh token")
	}
	if stored.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	}
	if err := s.repo.RevokeRefreshToken(ctx, stored.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}
	return nil
}

// Me returns the caller's profile with friend ids.
func (s *AuthService) Me(ctx context.Context, userID string) (*dto.UserProfile, error) {
	return s.profile(ctx, userID, false)
}

// PublicProfile returns another user's profile, including the teacher profile for teachers.
func (s *AuthService) PublicProfile(ctx context.Context, userID string) (*dto.UserProfile, error) {
	return s.profile(ctx, userID, true)
}

func (s *AuthService) profile(ctx context.Context, userID string, withTeacher bool) (*dto.UserProfile, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &dto.UserProfile{User: *user, Friends: []string{}}
	if s.deps.Friends != nil {
		ids, err := s.deps.Friends.FriendIDs(ctx, userID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load friends")
		}
		if ids != nil {
			out.Friends = ids
		}
	}
	if withTeacher && user.Role == models.RoleTeacher && s.deps.Teachers != nil {
		tp, err := s.deps.Teachers.FindByUserID(ctx, userID)
		switch {
		case err == nil:
			out.TeacherProfile = tp
		case !errors.Is(err, sql.ErrNoRows):
			s.logger.Warn("failed to load teacher profile", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return out, nil
}

// UpdateProfile patches the caller's editable fields.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req dto.UpdateProfileRequest) (*dto.UserProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid profile payload")
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Bio != nil {
		user.Bio = req.Bio
	}
	if req.Avatar != nil {
		user.Avatar = req.Avatar
	}
	if req.StudyInterests != nil {
		user.StudyInterests = req.StudyInterests
	}
	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return s.Me(ctx, userID)
}

// UploadAvatar crops the image to a square, stores it and sets it as the avatar.
func (s *AuthService) UploadAvatar(ctx context.Context, userID string, file dto.Attachment) (*dto.UserProfile, error) {
	if !strings.HasPrefix(file.ContentType, "image/") {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "File must be an image")
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var previous string
	if user.Avatar != nil {
		previous = *user.Avatar
	}
	png, err := imaging.SquarePNG(file.Data, imaging.DefaultSize, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, appErrors.ErrBadRequest.Status, "Invalid image file")
	}
	key := fmt.Sprintf("avatars/%s/%s.png", userID, uuid.NewString())
	url, err := s.deps.Store.Put(ctx, key, bytes.NewReader(png), "image/png")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store avatar")
	}
	if err := s.repo.UpdateAvatar(ctx, userID, url); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update avatar")
	}
	if previous != "" {
		if old, ok := storage.KeyFromURL(s.deps.Store, previous); ok {
			if err := s.deps.Store.Delete(ctx, old); err != nil {
				s.logger.Warn("delete replaced avatar", zap.String("key", old), zap.Error(err))
			}
		}
	}
	return s.Me(ctx, userID)
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func (s *AuthService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *AuthService) ensureAvailable(ctx context.Context, email string, studentID *string) error {
	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if existing != nil {
		return appErrors.Clone(appErrors.ErrBadRequest, "Email already registered")
	}
	if sid := trimmedOrNil(studentID); sid != nil {
		taken, err := s.repo.StudentIDExists(ctx, *sid)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student id")
		}
		if taken {
			return appErrors.Clone(appErrors.ErrBadRequest, "Student ID already registered")
		}
	}
	return nil
}

func (s *AuthService) issueCode(ctx context.Context, pending *models.PendingRegistration) error {
	code, err := verificationCode()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate verification code")
	}
	pending.Code = code
	pending.ExpiresAt = s.now().Add(s.config.VerificationTTL)
	if err := s.deps.Verifications.Save(ctx, pending.User.Email, *pending, s.config.VerificationTTL); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store verification code")
	}
	if s.deps.Mailer != nil {
		if err := s.deps.Mailer.SendVerificationCode(ctx, pending.User.Email, code, s.config.VerificationTTL); err != nil {
			s.logger.Warn("failed to send verification email", zap.String("email", pending.User.Email), zap.Error(err))
		}
	}
	return nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*dto.TokenPair, error) {
	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	refreshValue, err := generateRefreshTokenString()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}
	now := s.now()
	if err := s.repo.CreateRefreshToken(ctx, &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hashToken(refreshValue),
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		CreatedAt: now,
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}
	return &dto.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshValue,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     now,
	}, nil
}

func (s *AuthService) generateAccessToken(user *models.User) (string, error) {
	issuedAt := s.now()
	claims := &models.JWTClaims{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}

func generateRefreshTokenString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
