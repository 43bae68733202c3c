package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.User, error)
	findByUsernameFn     func(ctx context.Context, username string) (*model.User, error)
	createFn             func(ctx context.Context, user *model.User) error
	updateProfileFn      func(ctx context.Context, user *model.User) error
	updatePasswordHashFn func(ctx context.Context, userID, passwordHash string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.findByUsernameFn != nil {
		return m.findByUsernameFn(ctx, username)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	if m.updatePasswordHashFn != nil {
		return m.updatePasswordHashFn(ctx, userID, passwordHash)
	}
	return nil
}

type mockSessionRepo struct {
	createFn               func(ctx context.Context, session *model.Session) error
	findByIDFn             func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn           func(ctx context.Context, id string) error
	deleteByUserIDExceptFn func(ctx context.Context, userID, keepID string) error
	deleteExpiredFn        func(ctx context.Context, grace time.Duration) (int64, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserIDExcept(ctx context.Context, userID, keepID string) error {
	if m.deleteByUserIDExceptFn != nil {
		return m.deleteByUserIDExceptFn(ctx, userID, keepID)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context, grace time.Duration) (int64, error) {
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx, grace)
	}
	return 0, nil
}

// テスト高速化のため最小コストを使用
func newTestService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository) *Service {
	return NewService(userRepo, sessionRepo, ServiceConfig{
		SessionMaxAge: 3600,
		BcryptCost:    bcrypt.MinCost,
	})
}

// --- Register ---

func TestService_Register_Success(t *testing.T) {
	var created *model.User
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			created = user
			return nil
		},
	}

	svc := newTestService(userRepo, &mockSessionRepo{})

	user, err := svc.Register(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if user.Username != "alice" {
		t.Errorf("user.Username = %q, want %q", user.Username, "alice")
	}
	if created == nil {
		t.Fatal("expected Create to be called")
	}
	if created.PasswordHash == "" || created.PasswordHash == "correct horse battery" {
		t.Error("password must be stored as a bcrypt hash, not plaintext")
	}
	// 保存されたハッシュが元のパスワードを検証できること
	if err := bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("correct horse battery")); err != nil {
		t.Errorf("stored hash does not verify the password: %v", err)
	}
}

func TestService_Register_DuplicateUsername(t *testing.T) {
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			return repository.ErrDuplicateUsername
		},
	}

	svc := newTestService(userRepo, &mockSessionRepo{})

	_, err := svc.Register(context.Background(), "alice", "password123")
	if err == nil {
		t.Fatal("expected error for duplicate username")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeUsernameTaken {
		t.Errorf("apiErr.Code = %q, want %q", apiErr.Code, model.ErrCodeUsernameTaken)
	}
}

// --- Login ---

func TestService_Login_Success(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret-pass"), bcrypt.MinCost)
	userRepo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			return &model.User{ID: "user-123", Username: username, PasswordHash: string(hash)}, nil
		},
	}

	var savedSession *model.Session
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			savedSession = session
			return nil
		},
	}

	svc := newTestService(userRepo, sessionRepo)

	session, err := svc.Login(context.Background(), "alice", "secret-pass")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if session.UserID != "user-123" {
		t.Errorf("session.UserID = %q, want %q", session.UserID, "user-123")
	}
	if savedSession == nil {
		t.Fatal("expected session to be persisted")
	}
	if len(session.ID) != 64 {
		t.Errorf("session ID length = %d, want 64 (32 bytes hex)", len(session.ID))
	}
	if !session.ExpiresAt.After(time.Now()) {
		t.Error("session should expire in the future")
	}
}

func TestService_Login_WrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret-pass"), bcrypt.MinCost)
	userRepo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			return &model.User{ID: "user-123", Username: username, PasswordHash: string(hash)}, nil
		},
	}

	svc := newTestService(userRepo, &mockSessionRepo{})

	_, err := svc.Login(context.Background(), "alice", "wrong-pass")
	if err == nil {
		t.Fatal("expected error for wrong password")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("apiErr.Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidCredentials)
	}
}

func TestService_Login_UnknownUser_SameError(t *testing.T) {
	userRepo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			return nil, nil
		},
	}

	svc := newTestService(userRepo, &mockSessionRepo{})

	_, err := svc.Login(context.Background(), "nobody", "any-pass")
	if err == nil {
		t.Fatal("expected error for unknown user")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	// ユーザー不在とパスワード誤りで同一のエラーコードを返す
	if apiErr.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("apiErr.Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidCredentials)
	}
}

// --- Logout ---

func TestService_Logout_DeletesSession(t *testing.T) {
	deleted := ""
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}

	svc := newTestService(&mockUserRepo{}, sessionRepo)

	if err := svc.Logout(context.Background(), "session-abc"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deleted != "session-abc" {
		t.Errorf("deleted session = %q, want %q", deleted, "session-abc")
	}
}

func TestService_Logout_EmptySessionID(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockSessionRepo{})

	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty session ID")
	}
}

// --- ChangePassword ---

func TestService_ChangePassword_Success(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("old-pass"), bcrypt.MinCost)

	var newHash string
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Username: "alice", PasswordHash: string(hash)}, nil
		},
		updatePasswordHashFn: func(ctx context.Context, userID, passwordHash string) error {
			newHash = passwordHash
			return nil
		},
	}

	otherSessionsDeleted := false
	sessionRepo := &mockSessionRepo{
		deleteByUserIDExceptFn: func(ctx context.Context, userID, keepID string) error {
			otherSessionsDeleted = true
			if keepID != "current-session" {
				t.Errorf("keepID = %q, want %q", keepID, "current-session")
			}
			return nil
		},
	}

	svc := newTestService(userRepo, sessionRepo)

	err := svc.ChangePassword(context.Background(), "user-123", "current-session", "old-pass", "new-pass")
	if err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(newHash), []byte("new-pass")); err != nil {
		t.Errorf("new hash does not verify the new password: %v", err)
	}
	if !otherSessionsDeleted {
		t.Error("expected other sessions to be invalidated")
	}
}

func TestService_ChangePassword_WrongCurrentPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("old-pass"), bcrypt.MinCost)
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, PasswordHash: string(hash)}, nil
		},
		updatePasswordHashFn: func(ctx context.Context, userID, passwordHash string) error {
			t.Error("password must not be updated when current password is wrong")
			return nil
		},
	}

	svc := newTestService(userRepo, &mockSessionRepo{})

	err := svc.ChangePassword(context.Background(), "user-123", "sess", "wrong", "new-pass")
	if err == nil {
		t.Fatal("expected error for wrong current password")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeValidationFailed {
		t.Errorf("apiErr.Code = %q, want %q", apiErr.Code, model.ErrCodeValidationFailed)
	}
}

// --- GetCurrentUser ---

func TestService_GetCurrentUser_Success(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-123", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Username: "alice"}, nil
		},
	}

	svc := newTestService(userRepo, sessionRepo)

	user, err := svc.GetCurrentUser(context.Background(), "session-abc")
	if err != nil {
		t.Fatalf("GetCurrentUser() error = %v", err)
	}
	if user.ID != "user-123" {
		t.Errorf("user.ID = %q, want %q", user.ID, "user-123")
	}
}

func TestService_GetCurrentUser_ExpiredSession(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, nil // 期限切れセッションはnilが返る
		},
	}

	svc := newTestService(&mockUserRepo{}, sessionRepo)

	if _, err := svc.GetCurrentUser(context.Background(), "expired"); err == nil {
		t.Fatal("expected error for expired session")
	}
}
