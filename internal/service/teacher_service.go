package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
	"github.com/peerlearn/peerlearn-api/pkg/imaging"
	"github.com/peerlearn/peerlearn-api/pkg/storage"
)

const (
	teacherDetailReviews = 10
	defaultTeacherPage   = 50
	maxTeacherPage       = 100
)

type teacherRepository interface {
	CreateProfile(ctx context.Context, profile *models.TeacherProfile) error
	UpdateProfile(ctx context.Context, profile *models.TeacherProfile) error
	SetPicture(ctx context.Context, profileID, url string) error
	FindByUserID(ctx context.Context, userID string) (*models.TeacherProfile, error)
	FindByID(ctx context.Context, id string) (*models.TeacherProfile, error)
	List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherProfile, error)
	ListReviews(ctx context.Context, teacherID string, limit int) ([]models.TeacherReview, error)
	HasEngagement(ctx context.Context, teacherID, studentID string) (bool, error)
	HasReviewed(ctx context.Context, teacherID, studentID string) (bool, error)
	AddReview(ctx context.Context, review *models.TeacherReview) error
	CreateHire(ctx context.Context, hire *models.HireRequest) error
	FindHire(ctx context.Context, id string) (*models.HireRequest, error)
	ListSentHires(ctx context.Context, studentID string) ([]models.HireRequest, error)
	ListReceivedHires(ctx context.Context, teacherID string) ([]models.HireRequest, error)
	UpdateHireStatus(ctx context.Context, id string, status models.HireStatus) error
	AcceptHire(ctx context.Context, hire *models.HireRequest) (*models.TeachingSession, error)
	ListSessions(ctx context.Context, userID string) ([]models.TeachingSession, error)
	FindSession(ctx context.Context, id string) (*models.TeachingSession, error)
	CompleteSession(ctx context.Context, id string) error
	CountPendingHires(ctx context.Context, teacherID string) (int, error)
	CountActiveSessions(ctx context.Context, teacherID string) (int, error)
}

type unreadCounter interface {
	CountUnread(ctx context.Context, userID string) (int, error)
}

// TeacherService runs tutor profiles, discovery, reviews and hiring.
type TeacherService struct {
	repo      teacherRepository
	users     userFinder
	unread    unreadCounter
	files     storage.ObjectStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(repo teacherRepository, users userFinder, unread unreadCounter, files storage.ObjectStore, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, users: users, unread: unread, files: files, validator: validate, logger: logger}
}

func (s *TeacherService) requireTeacher(ctx context.Context, userID, message string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.Role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrForbidden, message)
	}
	return nil
}

func (s *TeacherService) ownProfile(ctx context.Context, userID string) (*models.TeacherProfile, error) {
	profile, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Teacher profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
	}
	return profile, nil
}

func profileResponse(profile *models.TeacherProfile, reviews []models.TeacherReview) *dto.TeacherProfileResponse {
	return &dto.TeacherProfileResponse{TeacherProfile: *profile, PackagePricing: profile.Pricing(), Reviews: reviews}
}

func applyProfile(profile *models.TeacherProfile, req dto.TeacherProfileRequest) {
	profile.Bio = strings.TrimSpace(req.Bio)
	profile.Expertise = nonNilStrings(req.Expertise)
	profile.CoursesOffered = nonNilStrings(req.CoursesOffered)
	profile.HourlyRate = req.HourlyRate
	profile.MonthlyRate = req.PackagePricing.Monthly
	profile.Languages = nonNilStrings(req.Languages)
	profile.ExperienceYears = req.ExperienceYears
	profile.Education = req.Education
	profile.Availability = req.Availability
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// CreateProfile registers the caller as a discoverable tutor.
func (s *TeacherService) CreateProfile(ctx context.Context, userID string, req dto.TeacherProfileRequest) (*dto.TeacherProfileResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid teacher profile")
	}
	if err := s.requireTeacher(ctx, userID, "Only teachers can create teacher profiles"); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindByUserID(ctx, userID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Teacher profile already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
	}
	profile := &models.TeacherProfile{UserID: userID}
	applyProfile(profile, req)
	if err := s.repo.CreateProfile(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher profile")
	}
	return profileResponse(profile, nil), nil
}

// MyProfile returns the caller's profile.
func (s *TeacherService) MyProfile(ctx context.Context, userID string) (*dto.TeacherProfileResponse, error) {
	profile, err := s.ownProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return profileResponse(profile, nil), nil
}

// UpdateProfile replaces the caller's editable profile fields.
func (s *TeacherService) UpdateProfile(ctx context.Context, userID string, req dto.TeacherProfileRequest) (*dto.TeacherProfileResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid teacher profile")
	}
	profile, err := s.ownProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	applyProfile(profile, req)
	if err := s.repo.UpdateProfile(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher profile")
	}
	return profileResponse(profile, nil), nil
}

// UploadPicture crops the image to a square PNG and stores it as the profile picture.
func (s *TeacherService) UploadPicture(ctx context.Context, userID string, file *dto.Attachment) (string, error) {
	if file == nil {
		return "", appErrors.Clone(appErrors.ErrBadRequest, "File is required")
	}
	if !strings.HasPrefix(file.ContentType, "image/") {
		return "", appErrors.Clone(appErrors.ErrBadRequest, "File must be an image")
	}
	profile, err := s.ownProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	png, err := imaging.SquarePNG(file.Data, imaging.DefaultSize, false)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrBadRequest, "Invalid image file")
	}
	key := fmt.Sprintf("teachers/%s/picture_%d.png", profile.ID, time.Now().Unix())
	url, err := storage.PutBytes(ctx, s.files, key, png, "image/png")
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store picture")
	}
	if err := s.repo.SetPicture(ctx, profile.ID, url); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save picture")
	}
	return url, nil
}

// List returns active teacher profiles matching the filter.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]dto.TeacherProfileResponse, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultTeacherPage
	}
	if filter.Limit > maxTeacherPage {
		filter.Limit = maxTeacherPage
	}
	if filter.Skip < 0 {
		filter.Skip = 0
	}
	filter.Search = strings.TrimSpace(filter.Search)
	profiles, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	items := make([]dto.TeacherProfileResponse, 0, len(profiles))
	for i := range profiles {
		items = append(items, *profileResponse(&profiles[i], nil))
	}
	return items, nil
}

func (s *TeacherService) profile(ctx context.Context, id string) (*models.TeacherProfile, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return profile, nil
}

// Get returns a profile with its latest reviews.
func (s *TeacherService) Get(ctx context.Context, id string) (*dto.TeacherProfileResponse, error) {
	profile, err := s.profile(ctx, id)
	if err != nil {
		return nil, err
	}
	reviews, err := s.repo.ListReviews(ctx, profile.ID, teacherDetailReviews)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reviews")
	}
	if reviews == nil {
		reviews = []models.TeacherReview{}
	}
	return profileResponse(profile, reviews), nil
}

// Reviews lists every review of a teacher.
func (s *TeacherService) Reviews(ctx context.Context, id string) ([]models.TeacherReview, error) {
	if _, err := s.profile(ctx, id); err != nil {
		return nil, err
	}
	reviews, err := s.repo.ListReviews(ctx, id, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reviews")
	}
	if reviews == nil {
		reviews = []models.TeacherReview{}
	}
	return reviews, nil
}

// AddReview rates a teacher the caller has worked with.
func (s *TeacherService) AddReview(ctx context.Context, teacherID, studentID string, req dto.ReviewRequest) (*models.TeacherReview, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid review")
	}
	if _, err := s.profile(ctx, teacherID); err != nil {
		return nil, err
	}
	engaged, err := s.repo.HasEngagement(ctx, teacherID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check hire history")
	}
	if !engaged {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "You can only review teachers you have hired")
	}
	reviewed, err := s.repo.HasReviewed(ctx, teacherID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check review")
	}
	if reviewed {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "You have already reviewed this teacher")
	}
	review := &models.TeacherReview{TeacherID: teacherID, StudentID: studentID, Rating: req.Rating, Comment: strings.TrimSpace(req.Comment)}
	if err := s.repo.AddReview(ctx, review); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add review")
	}
	return review, nil
}

// Hire sends a pending hire request priced from the teacher's rates.
func (s *TeacherService) Hire(ctx context.Context, studentID string, req dto.HireRequestPayload) (*models.HireRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid hire request")
	}
	profile, err := s.profile(ctx, req.TeacherID)
	if err != nil {
		return nil, err
	}
	if !profile.IsActive {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Teacher is not accepting requests")
	}
	if profile.UserID == studentID {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Cannot hire yourself")
	}

	var price float64
	switch req.HireType {
	case models.HireHourly:
		if req.DurationHours == nil {
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "duration_hours is required for hourly hires")
		}
		price = profile.HourlyRate * float64(*req.DurationHours)
	case models.HireMonthly:
		if profile.MonthlyRate == nil {
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "Teacher does not offer monthly packages")
		}
		price = *profile.MonthlyRate
	}

	hire := &models.HireRequest{
		TeacherID:     profile.ID,
		StudentID:     studentID,
		Subject:       strings.TrimSpace(req.Subject),
		Message:       strings.TrimSpace(req.Message),
		HireType:      req.HireType,
		DurationHours: req.DurationHours,
		TotalPrice:    price,
		Status:        models.HirePending,
		PaymentStatus: "pending",
		TeacherName:   profile.UserName,
		TeacherUserID: profile.UserID,
	}
	if err := s.repo.CreateHire(ctx, hire); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create hire request")
	}
	return hire, nil
}

// SentRequests lists hire requests the caller sent.
func (s *TeacherService) SentRequests(ctx context.Context, studentID string) ([]models.HireRequest, error) {
	hires, err := s.repo.ListSentHires(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list hire requests")
	}
	if hires == nil {
		hires = []models.HireRequest{}
	}
	return hires, nil
}

// ReceivedRequests lists hire requests addressed to the calling teacher.
func (s *TeacherService) ReceivedRequests(ctx context.Context, userID string) ([]models.HireRequest, error) {
	if err := s.requireTeacher(ctx, userID, "Only teachers can view received requests"); err != nil {
		return nil, err
	}
	profile, err := s.ownProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	hires, err := s.repo.ListReceivedHires(ctx, profile.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list hire requests")
	}
	if hires == nil {
		hires = []models.HireRequest{}
	}
	return hires, nil
}

// UpdateRequest moves a hire request. Acceptance schedules a teaching session.
func (s *TeacherService) UpdateRequest(ctx context.Context, id, userID string, req dto.UpdateHireStatusRequest) (*models.HireRequest, *models.TeachingSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Validation(err, "invalid status")
	}
	hire, err := s.repo.FindHire(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "Hire request not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load hire request")
	}
	if hire.TeacherUserID != userID && hire.StudentID != userID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "Not authorized to update this request")
	}

	if req.Status == models.HireAccepted {
		if hire.TeacherUserID != userID {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "Only the teacher can accept a request")
		}
		if hire.Status != models.HirePending {
			return nil, nil, appErrors.Clone(appErrors.ErrBadRequest, "Only pending requests can be accepted")
		}
		session, err := s.repo.AcceptHire(ctx, hire)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept hire request")
		}
		return hire, session, nil
	}

	if err := s.repo.UpdateHireStatus(ctx, hire.ID, req.Status); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update hire request")
	}
	hire.Status = req.Status
	return hire, nil, nil
}

// MySessions lists teaching sessions where the caller is student or teacher.
func (s *TeacherService) MySessions(ctx context.Context, userID string) ([]models.TeachingSession, error) {
	sessions, err := s.repo.ListSessions(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	if sessions == nil {
		sessions = []models.TeachingSession{}
	}
	return sessions, nil
}

// CompleteSession lets the student close a scheduled session.
func (s *TeacherService) CompleteSession(ctx context.Context, id, userID string) error {
	session, err := s.repo.FindSession(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "Session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.StudentID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "Only the student can complete a session")
	}
	if err := s.repo.CompleteSession(ctx, session.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete session")
	}
	return nil
}

// Analytics summarises the calling teacher's dashboard.
func (s *TeacherService) Analytics(ctx context.Context, userID string) (*models.TeacherAnalytics, error) {
	profile, err := s.ownProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending, err := s.repo.CountPendingHires(ctx, profile.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load analytics")
	}
	active, err := s.repo.CountActiveSessions(ctx, profile.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load analytics")
	}
	unread := 0
	if s.unread != nil {
		if unread, err = s.unread.CountUnread(ctx, userID); err != nil {
			s.logger.Warn("count unread messages", zap.String("user_id", userID), zap.Error(err))
			unread = 0
		}
	}
	return &models.TeacherAnalytics{
		PendingRequests: pending,
		ActiveSessions:  active,
		UnreadMessages:  unread,
		Rating:          profile.Rating,
		TotalReviews:    profile.TotalReviews,
		TotalStudents:   profile.TotalStudents,
		TotalSessions:   profile.TotalSessions,
	}, nil
}
