package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

const teacherSelect = `SELECT t.id, t.user_id, t.bio, t.expertise, t.courses_offered, t.hourly_rate, t.monthly_rate, t.languages, t.experience_years,
t.education, t.availability, t.profile_picture, t.rating, t.total_reviews, t.total_students, t.total_sessions, t.is_active,
u.name AS user_name, u.avatar AS user_avatar, t.created_at, t.updated_at
FROM teacher_profiles t JOIN users u ON u.id = t.user_id`

const hireSelect = `SELECT h.id, h.teacher_id, h.student_id, h.subject, h.message, h.hire_type, h.duration_hours, h.total_price, h.status, h.payment_status,
tu.name AS teacher_name, su.name AS student_name, t.user_id AS teacher_user_id, h.created_at, h.updated_at
FROM hire_requests h
JOIN teacher_profiles t ON t.id = h.teacher_id
JOIN users tu ON tu.id = t.user_id
JOIN users su ON su.id = h.student_id`

// TeacherRepository stores teacher profiles, reviews, hire requests and teaching sessions.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs the repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// CreateProfile inserts a teacher profile.
func (r *TeacherRepository) CreateProfile(ctx context.Context, profile *models.TeacherProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	profile.CreatedAt, profile.UpdatedAt = now, now
	profile.IsActive = true
	const query = `INSERT INTO teacher_profiles (id, user_id, bio, expertise, courses_offered, hourly_rate, monthly_rate, languages, experience_years, education, availability, is_active, created_at, updated_at)
VALUES (:id, :user_id, :bio, :expertise, :courses_offered, :hourly_rate, :monthly_rate, :languages, :experience_years, :education, :availability, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("create teacher profile: %w", err)
	}
	return nil
}

// UpdateProfile persists editable profile fields.
func (r *TeacherRepository) UpdateProfile(ctx context.Context, profile *models.TeacherProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teacher_profiles SET bio = :bio, expertise = :expertise, courses_offered = :courses_offered, hourly_rate = :hourly_rate,
monthly_rate = :monthly_rate, languages = :languages, experience_years = :experience_years, education = :education, availability = :availability,
updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("update teacher profile: %w", err)
	}
	return nil
}

// SetPicture stores the profile picture URL.
func (r *TeacherRepository) SetPicture(ctx context.Context, profileID, url string) error {
	const query = `UPDATE teacher_profiles SET profile_picture = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, profileID, url, time.Now().UTC()); err != nil {
		return fmt.Errorf("set teacher picture: %w", err)
	}
	return nil
}

// FindByUserID returns the profile owned by a user.
func (r *TeacherRepository) FindByUserID(ctx context.Context, userID string) (*models.TeacherProfile, error) {
	return r.findProfile(ctx, "t.user_id", userID)
}

// FindByID returns a profile by id.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.TeacherProfile, error) {
	return r.findProfile(ctx, "t.id", id)
}

func (r *TeacherRepository) findProfile(ctx context.Context, column, value string) (*models.TeacherProfile, error) {
	query := fmt.Sprintf(`%s WHERE %s = $1 LIMIT 1`, teacherSelect, column)
	var profile models.TeacherProfile
	if err := r.db.GetContext(ctx, &profile, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher profile: %w", err)
	}
	return &profile, nil
}

// List returns active profiles matching the filter, best rated first.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherProfile, error) {
	conditions := []string{"t.is_active"}
	var args []interface{}
	add := func(format string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(format, len(args)))
	}
	if filter.Subject != "" {
		add("EXISTS (SELECT 1 FROM unnest(t.courses_offered) c WHERE LOWER(c) LIKE $%d)", "%"+strings.ToLower(filter.Subject)+"%")
	}
	if filter.Expertise != "" {
		add("EXISTS (SELECT 1 FROM unnest(t.expertise) e WHERE LOWER(e) LIKE $%d)", "%"+strings.ToLower(filter.Expertise)+"%")
	}
	if filter.MinRating != nil {
		add("t.rating >= $%d", *filter.MinRating)
	}
	if filter.MaxPrice != nil {
		add("t.hourly_rate <= $%d", *filter.MaxPrice)
	}
	if filter.Language != "" {
		add("EXISTS (SELECT 1 FROM unnest(t.languages) l WHERE LOWER(l) = $%d)", strings.ToLower(filter.Language))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.name) LIKE $%[1]d OR LOWER(t.bio) LIKE $%[1]d OR LOWER(array_to_string(t.expertise, ' ')) LIKE $%[1]d)", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}
	query := fmt.Sprintf(`%s WHERE %s ORDER BY t.rating DESC, t.total_reviews DESC, t.created_at DESC LIMIT %d OFFSET %d`,
		teacherSelect, strings.Join(conditions, " AND "), limit, skip)
	var profiles []models.TeacherProfile
	if err := r.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return profiles, nil
}

// ListReviews returns the newest reviews of a teacher. A non-positive limit returns all.
func (r *TeacherRepository) ListReviews(ctx context.Context, teacherID string, limit int) ([]models.TeacherReview, error) {
	query := `SELECT r.id, r.teacher_id, r.student_id, r.rating, r.comment, u.name AS student_name, r.created_at
FROM teacher_reviews r JOIN users u ON u.id = r.student_id WHERE r.teacher_id = $1 ORDER BY r.created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	var reviews []models.TeacherReview
	if err := r.db.SelectContext(ctx, &reviews, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher reviews: %w", err)
	}
	return reviews, nil
}

// HasEngagement reports whether the student has an accepted or completed hire with the teacher.
func (r *TeacherRepository) HasEngagement(ctx context.Context, teacherID, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM hire_requests WHERE teacher_id = $1 AND student_id = $2 AND status IN ('accepted', 'completed'))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, teacherID, studentID); err != nil {
		return false, fmt.Errorf("check teacher engagement: %w", err)
	}
	return exists, nil
}

// HasReviewed reports whether the student already reviewed the teacher.
func (r *TeacherRepository) HasReviewed(ctx context.Context, teacherID, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM teacher_reviews WHERE teacher_id = $1 AND student_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, teacherID, studentID); err != nil {
		return false, fmt.Errorf("check teacher review: %w", err)
	}
	return exists, nil
}

// AddReview inserts a review and recomputes the teacher rating.
func (r *TeacherRepository) AddReview(ctx context.Context, review *models.TeacherReview) (err error) {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	review.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin teacher review tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	const insert = `INSERT INTO teacher_reviews (id, teacher_id, student_id, rating, comment, created_at) VALUES (:id, :teacher_id, :student_id, :rating, :comment, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insert, review); err != nil {
		return fmt.Errorf("insert teacher review: %w", err)
	}
	const recompute = `UPDATE teacher_profiles SET
rating = (SELECT ROUND(AVG(rating)::numeric, 2) FROM teacher_reviews WHERE teacher_id = $1),
total_reviews = (SELECT COUNT(*) FROM teacher_reviews WHERE teacher_id = $1),
updated_at = NOW() WHERE id = $1`
	if _, err = tx.ExecContext(ctx, recompute, review.TeacherID); err != nil {
		return fmt.Errorf("recompute teacher rating: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit teacher review tx: %w", err)
	}
	return nil
}

// CreateHire inserts a pending hire request.
func (r *TeacherRepository) CreateHire(ctx context.Context, hire *models.HireRequest) error {
	if hire.ID == "" {
		hire.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	hire.CreatedAt, hire.UpdatedAt = now, now
	hire.Status = models.HirePending
	hire.PaymentStatus = "pending"
	const query = `INSERT INTO hire_requests (id, teacher_id, student_id, subject, message, hire_type, duration_hours, total_price, status, payment_status, created_at, updated_at)
VALUES (:id, :teacher_id, :student_id, :subject, :message, :hire_type, :duration_hours, :total_price, :status, :payment_status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, hire); err != nil {
		return fmt.Errorf("create hire request: %w", err)
	}
	return nil
}

// FindHire returns a hire request with both party names.
func (r *TeacherRepository) FindHire(ctx context.Context, id string) (*models.HireRequest, error) {
	query := hireSelect + ` WHERE h.id = $1 LIMIT 1`
	var hire models.HireRequest
	if err := r.db.GetContext(ctx, &hire, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find hire request: %w", err)
	}
	return &hire, nil
}

// ListSentHires returns requests the student has sent.
func (r *TeacherRepository) ListSentHires(ctx context.Context, studentID string) ([]models.HireRequest, error) {
	return r.listHires(ctx, "h.student_id", studentID)
}

// ListReceivedHires returns requests addressed to a teacher profile.
func (r *TeacherRepository) ListReceivedHires(ctx context.Context, teacherID string) ([]models.HireRequest, error) {
	return r.listHires(ctx, "h.teacher_id", teacherID)
}

func (r *TeacherRepository) listHires(ctx context.Context, column, value string) ([]models.HireRequest, error) {
	query := fmt.Sprintf(`%s WHERE %s = $1 ORDER BY h.created_at DESC`, hireSelect, column)
	var hires []models.HireRequest
	if err := r.db.SelectContext(ctx, &hires, query, value); err != nil {
		return nil, fmt.Errorf("list hire requests: %w", err)
	}
	return hires, nil
}

// UpdateHireStatus sets a hire request's status.
func (r *TeacherRepository) UpdateHireStatus(ctx context.Context, id string, status models.HireStatus) error {
	const query = `UPDATE hire_requests SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update hire status: %w", err)
	}
	return nil
}

// AcceptHire marks the request accepted, schedules its teaching session and bumps the teacher counters in one transaction.
func (r *TeacherRepository) AcceptHire(ctx context.Context, hire *models.HireRequest) (session *models.TeachingSession, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin accept hire tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE hire_requests SET status = $2, updated_at = $3 WHERE id = $1`, hire.ID, models.HireAccepted, now); err != nil {
		return nil, fmt.Errorf("accept hire request: %w", err)
	}

	minutes := 60
	if hire.DurationHours != nil && *hire.DurationHours > 0 {
		minutes = *hire.DurationHours * 60
	}
	session = &models.TeachingSession{
		ID:              uuid.NewString(),
		HireRequestID:   hire.ID,
		TeacherID:       hire.TeacherID,
		StudentID:       hire.StudentID,
		Subject:         hire.Subject,
		ScheduledAt:     now,
		DurationMinutes: minutes,
		Status:          models.TeachingScheduled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	const insert = `INSERT INTO teaching_sessions (id, hire_request_id, teacher_id, student_id, subject, scheduled_at, duration_minutes, status, created_at, updated_at)
VALUES (:id, :hire_request_id, :teacher_id, :student_id, :subject, :scheduled_at, :duration_minutes, :status, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insert, session); err != nil {
		return nil, fmt.Errorf("create teaching session: %w", err)
	}
	const counters = `UPDATE teacher_profiles SET total_students = total_students + 1, total_sessions = total_sessions + 1, updated_at = $2 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, counters, hire.TeacherID, now); err != nil {
		return nil, fmt.Errorf("bump teacher counters: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit accept hire tx: %w", err)
	}
	hire.Status = models.HireAccepted
	hire.UpdatedAt = now
	return session, nil
}

// ListSessions returns teaching sessions where the user is the student or the teacher.
func (r *TeacherRepository) ListSessions(ctx context.Context, userID string) ([]models.TeachingSession, error) {
	const query = `SELECT s.id, s.hire_request_id, s.teacher_id, s.student_id, s.subject, s.scheduled_at, s.duration_minutes, s.status, s.notes, s.created_at, s.updated_at
FROM teaching_sessions s JOIN teacher_profiles t ON t.id = s.teacher_id
WHERE s.student_id = $1 OR t.user_id = $1 ORDER BY s.scheduled_at DESC`
	var sessions []models.TeachingSession
	if err := r.db.SelectContext(ctx, &sessions, query, userID); err != nil {
		return nil, fmt.Errorf("list teaching sessions: %w", err)
	}
	return sessions, nil
}

// FindSession returns a teaching session.
func (r *TeacherRepository) FindSession(ctx context.Context, id string) (*models.TeachingSession, error) {
	const query = `SELECT id, hire_request_id, teacher_id, student_id, subject, scheduled_at, duration_minutes, status, notes, created_at, updated_at
FROM teaching_sessions WHERE id = $1 LIMIT 1`
	var session models.TeachingSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find teaching session: %w", err)
	}
	return &session, nil
}

// CompleteSession marks a session completed.
func (r *TeacherRepository) CompleteSession(ctx context.Context, id string) error {
	const query = `UPDATE teaching_sessions SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.TeachingCompleted, time.Now().UTC()); err != nil {
		return fmt.Errorf("complete teaching session: %w", err)
	}
	return nil
}

// CountPendingHires counts pending requests for a teacher profile.
func (r *TeacherRepository) CountPendingHires(ctx context.Context, teacherID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM hire_requests WHERE teacher_id = $1 AND status = 'pending'`, teacherID); err != nil {
		return 0, fmt.Errorf("count pending hires: %w", err)
	}
	return count, nil
}

// CountActiveSessions counts scheduled sessions for a teacher profile.
func (r *TeacherRepository) CountActiveSessions(ctx context.Context, teacherID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM teaching_sessions WHERE teacher_id = $1 AND status = 'scheduled'`, teacherID); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return count, nil
}
