package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	"github.com/peerlearn/peerlearn-api/internal/repository"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
)

type mockAuthRepo struct {
	users         map[string]*models.User
	studentIDs    map[string]bool
	refreshTokens map[string]*models.RefreshToken
	createErr     error
	avatar        string
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{users: map[string]*models.User{}, studentIDs: map[string]bool{}, refreshTokens: map[string]*models.RefreshToken{}}
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) StudentIDExists(ctx context.Context, studentID string) (bool, error) {
	return m.studentIDs[studentID], nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockAuthRepo) UpdateProfile(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockAuthRepo) UpdateAvatar(ctx context.Context, id, avatar string) error {
	m.avatar = avatar
	if u, ok := m.users[id]; ok {
		u.Avatar = &avatar
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.TokenHash] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	if t, ok := m.refreshTokens[tokenHash]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string) error {
	for _, t := range m.refreshTokens {
		if t.ID == id {
			t.Revoked = true
		}
	}
	return nil
}

type memoryVerificationStore struct {
	entries map[string]models.PendingRegistration
}

func (m *memoryVerificationStore) Save(ctx context.Context, email string, pending models.PendingRegistration, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = map[string]models.PendingRegistration{}
	}
	m.entries[email] = pending
	return nil
}

func (m *memoryVerificationStore) Get(ctx context.Context, email string) (*models.PendingRegistration, error) {
	p, ok := m.entries[email]
	if !ok {
		return nil, repository.ErrVerificationNotFound
	}
	return &p, nil
}

func (m *memoryVerificationStore) Delete(ctx context.Context, email string) error {
	delete(m.entries, email)
	return nil
}

type recordingMailer struct {
	codes    map[string]string
	welcomes []string
	err      error
}

func (r *recordingMailer) SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error {
	if r.codes == nil {
		r.codes = map[string]string{}
	}
	r.codes[to] = code
	return r.err
}

func (r *recordingMailer) SendWelcome(ctx context.Context, to, name string) error {
	r.welcomes = append(r.welcomes, to)
	return r.err
}

type memoryObjectStore struct {
	objects map[string][]byte
}

func (m *memoryObjectStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.objects[key] = data
	return m.URL(key), nil
}

func (m *memoryObjectStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryObjectStore) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memoryObjectStore) URL(key string) string { return "/static/" + key }

func newTestAuthService(repo *mockAuthRepo, store *memoryVerificationStore, mailer *recordingMailer) *AuthService {
	return NewAuthService(repo, AuthDeps{Verifications: store, Mailer: mailer, Store: &memoryObjectStore{}}, nil, nil, AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "peerlearn",
	})
}

func assertAppError(t *testing.T, err error, status int, message string) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, status, appErr.Status)
	if message != "" {
		assert.Equal(t, message, appErr.Message)
	}
}

func TestRegisterAndVerifyEmail(t *testing.T) {
	repo := newMockAuthRepo()
	store := &memoryVerificationStore{}
	mailer := &recordingMailer{}
	svc := newTestAuthService(repo, store, mailer)

	resp, err := svc.Register(context.Background(), dto.RegisterRequest{Email: "Ana@Example.com", Password: "secret1", Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", resp.Email)
	code := mailer.codes["ana@example.com"]
	require.Len(t, code, 6)
	assert.Empty(t, repo.users, "account is created only after verification")

	_, err = svc.VerifyEmail(context.Background(), dto.VerifyEmailRequest{Email: "ana@example.com", Code: wrongCode(code)})
	assertAppError(t, err, 400, "Invalid or expired verification code")

	verified, err := svc.VerifyEmail(context.Background(), dto.VerifyEmailRequest{Email: "ana@example.com", Code: code})
	require.NoError(t, err)
	assert.True(t, verified.User.IsVerified)
	assert.Equal(t, "bearer", verified.Tokens.TokenType)
	assert.NotEmpty(t, verified.Tokens.RefreshToken)
	assert.Empty(t, store.entries)
	assert.Equal(t, []string{"ana@example.com"}, mailer.welcomes)

	created := repo.users[verified.User.ID]
	require.NotNil(t, created)
	assert.Equal(t, models.RoleStudent, created.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("secret1")))
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestVerifyEmailExpiredCode(t *testing.T) {
	repo := newMockAuthRepo()
	store := &memoryVerificationStore{entries: map[string]models.PendingRegistration{
		"ana@example.com": {Code: "123456", ExpiresAt: time.Now().Add(-time.Minute), User: models.User{Email: "ana@example.com"}},
	}}
	svc := newTestAuthService(repo, store, &recordingMailer{})

	_, err := svc.VerifyEmail(context.Background(), dto.VerifyEmailRequest{Email: "ana@example.com", Code: "123456"})
	assertAppError(t, err, 400, "Invalid or expired verification code")
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	repo := newMockAuthRepo()
	repo.users["1"] = &models.User{ID: "1", Email: "ana@example.com"}
	repo.studentIDs["S-9"] = true
	svc := newTestAuthService(repo, &memoryVerificationStore{}, &recordingMailer{})

	_, err := svc.Register(context.Background(), dto.RegisterRequest{Email: "ana@example.com", Password: "secret1", Name: "Ana"})
	assertAppError(t, err, 400, "Email already registered")

	sid := "S-9"
	_, err = svc.Register(context.Background(), dto.RegisterRequest{Email: "bo@example.com", Password: "secret1", Name: "Bo", StudentID: &sid})
	assertAppError(t, err, 400, "Student ID already registered")
}

func TestRegisterSurvivesMailFailure(t *testing.T) {
	store := &memoryVerificationStore{}
	svc := newTestAuthService(newMockAuthRepo(), store, &recordingMailer{err: errors.New("smtp down")})

	_, err := svc.Register(context.Background(), dto.RegisterRequest{Email: "ana@example.com", Password: "secret1", Name: "Ana"})
	require.NoError(t, err)
	assert.Contains(t, store.entries, "ana@example.com")
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := newMockAuthRepo()
	repo.users["1"] = &models.User{ID: "1", Email: "ana@example.com", PasswordHash: string(hash), Role: models.RoleStudent, IsVerified: true, IsActive: true}
	repo.users["2"] = &models.User{ID: "2", Email: "new@example.com", PasswordHash: string(hash), IsActive: true}
	svc := newTestAuthService(repo, &memoryVerificationStore{}, &recordingMailer{})

	pair, err := svc.Login(context.Background(), dto.LoginRequest{Email: "ana@example.com", Password: "password"})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)

	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "ana@example.com", Password: "wrong"})
	assertAppError(t, err, 401, "Incorrect email or password")

	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "missing@example.com", Password: "password"})
	assertAppError(t, err, 401, "Incorrect email or password")

	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "new@example.com", Password: "password"})
	assertAppError(t, err, 400, "Please verify your email before logging in")
}

func TestRefreshRotatesToken(t *testing.T) {
	repo := newMockAuthRepo()
	repo.users["1"] = &models.User{ID: "1", Email: "ana@example.com", IsVerified: true, IsActive: true}
	svc := newTestAuthService(repo, &memoryVerificationStore{}, &recordingMailer{})

	first, err := svc.issueTokens(context.Background(), repo.users["1"])
	require.NoError(t, err)

	second, err := svc.RefreshToken(context.Background(), dto.RefreshTokenRequest{RefreshToken: first.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = svc.RefreshToken(context.Background(), dto.RefreshTokenRequest{RefreshToken: first.RefreshToken})
	assertAppError(t, err, 401, "")

	require.NoError(t, svc.Logout(context.Background(), "1", dto.RefreshTokenRequest{RefreshToken: second.RefreshToken}))
	_, err = svc.RefreshToken(context.Background(), dto.RefreshTokenRequest{RefreshToken: second.RefreshToken})
	assertAppError(t, err, 401, "")
}

func TestResendVerification(t *testing.T) {
	repo := newMockAuthRepo()
	repo.users["1"] = &models.User{ID: "1", Email: "done@example.com", IsVerified: true}
	store := &memoryVerificationStore{entries: map[string]models.PendingRegistration{
		"ana@example.com": {Code: "123456", ExpiresAt: time.Now().Add(time.Minute), User: models.User{Email: "ana@example.com"}},
	}}
	mailer := &recordingMailer{}
	svc := newTestAuthService(repo, store, mailer)

	_, err := svc.ResendVerification(context.Background(), dto.ResendVerificationRequest{Email: "nobody@example.com"})
	assertAppError(t, err, 404, "User not found")

	_, err = svc.ResendVerification(context.Background(), dto.ResendVerificationRequest{Email: "done@example.com"})
	assertAppError(t, err, 400, "Email already verified")

	_, err = svc.ResendVerification(context.Background(), dto.ResendVerificationRequest{Email: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, mailer.codes["ana@example.com"], store.entries["ana@example.com"].Code)
}

func TestUploadAvatarStoresSquarePNG(t *testing.T) {
	repo := newMockAuthRepo()
	repo.users["1"] = &models.User{ID: "1", Email: "ana@example.com"}
	svc := newTestAuthService(repo, &memoryVerificationStore{}, &recordingMailer{})

	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	profile, err := svc.UploadAvatar(context.Background(), "1", dto.Attachment{Name: "me.png", ContentType: "image/png", Data: buf.Bytes()})
	require.NoError(t, err)
	require.NotNil(t, profile.Avatar)
	assert.True(t, strings.HasPrefix(repo.avatar, "/static/avatars/1/"))
	first := repo.avatar

	_, err = svc.UploadAvatar(context.Background(), "1", dto.Attachment{Name: "me2.png", ContentType: "image/png", Data: buf.Bytes()})
	require.NoError(t, err)
	assert.NotEqual(t, first, repo.avatar)
	objects := svc.deps.Store.(*memoryObjectStore).objects
	assert.Len(t, objects, 1)
	assert.Contains(t, objects, strings.TrimPrefix(repo.avatar, "/static/"))

	_, err = svc.UploadAvatar(context.Background(), "1", dto.Attachment{Name: "doc.pdf", ContentType: "application/pdf", Data: []byte("%PDF")})
	assertAppError(t, err, 400, "File must be an image")
}
