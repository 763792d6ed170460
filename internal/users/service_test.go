package users

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/threadline/internal/apperrors"
	"github.com/MarcoPoloResearchLab/threadline/internal/ids"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type plainHasher struct {
	calls atomic.Int64
}

func (h *plainHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (h *plainHasher) Verify(password, hash string) bool {
	h.calls.Add(1)
	return hash == "hashed:"+password
}

func newTestService(t *testing.T) (*Service, *plainHasher) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate user schema: %v", err)
	}
	hasher := &plainHasher{}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Hasher:     hasher,
		IDProvider: ids.NewUUIDProvider(),
		Clock: func() time.Time {
			return time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, hasher
}

func TestRegisterNormalizesEmailAndHashesPassword(t *testing.T) {
	service, _ := newTestService(t)

	user, err := service.Register(context.Background(), RegisterRequest{
		Email:    "  Person@Example.COM ",
		Password: "long-enough",
		Name:     " Example Person ",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Email != "person@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.Name != "Example Person" {
		t.Fatalf("expected trimmed name, got %q", user.Name)
	}
	if user.PasswordHash != "hashed:long-enough" {
		t.Fatalf("expected hashed password, got %q", user.PasswordHash)
	}
	if user.ID == "" || user.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps to be set: %#v", user)
	}
}

func TestRegisterRejectsDuplicateEmailCaseInsensitively(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, RegisterRequest{Email: "dup@example.com", Password: "password-1", Name: "One"}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	_, err := service.Register(ctx, RegisterRequest{Email: "DUP@example.com", Password: "password-2", Name: "Two"})
	if apperrors.KindOf(err) != apperrors.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected email taken error, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	service, _ := newTestService(t)
	testCases := []struct {
		name     string
		request  RegisterRequest
		wantCode string
	}{
		{name: "bad-email", request: RegisterRequest{Email: "not-an-email", Password: "password-1", Name: "A"}, wantCode: "invalid_email"},
		{name: "short-password", request: RegisterRequest{Email: "a@example.com", Password: "short", Name: "A"}, wantCode: "invalid_password"},
		{name: "long-password", request: RegisterRequest{Email: "a@example.com", Password: string(make([]byte, 73)), Name: "A"}, wantCode: "invalid_password"},
		{name: "blank-name", request: RegisterRequest{Email: "a@example.com", Password: "password-1", Name: "   "}, wantCode: "invalid_name"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := service.Register(context.Background(), testCase.request)
			if apperrors.KindOf(err) != apperrors.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if apperrors.CodeOf(err) != testCase.wantCode {
				t.Fatalf("expected code %s, got %s", testCase.wantCode, apperrors.CodeOf(err))
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	service, hasher := newTestService(t)
	ctx := context.Background()

	registered, err := service.Register(ctx, RegisterRequest{Email: "login@example.com", Password: "correct-password", Name: "Login"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	user, err := service.Authenticate(ctx, "LOGIN@example.com", "correct-password")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if user.ID != registered.ID {
		t.Fatalf("unexpected user %s", user.ID)
	}

	if _, err := service.Authenticate(ctx, "login@example.com", "wrong-password"); apperrors.KindOf(err) != apperrors.KindAuthentication {
		t.Fatalf("expected authentication error for wrong password, got %v", err)
	}

	before := hasher.calls.Load()
	if _, err := service.Authenticate(ctx, "nobody@example.com", "whatever-password"); apperrors.KindOf(err) != apperrors.KindAuthentication {
		t.Fatalf("expected authentication error for unknown email, got %v", err)
	}
	if hasher.calls.Load() != before+1 {
		t.Fatalf("expected unknown email to still run password verification")
	}

	if _, err := service.Authenticate(ctx, "", "x"); apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("expected validation error for missing email, got %v", err)
	}
}

func TestGetByID(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	registered, err := service.Register(ctx, RegisterRequest{Email: "get@example.com", Password: "password-1", Name: "Getter"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	user, err := service.GetByID(ctx, registered.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if user.Profile() != (Profile{ID: registered.ID, Name: "Getter", Email: "get@example.com"}) {
		t.Fatalf("unexpected profile %#v", user.Profile())
	}

	if _, err := service.GetByID(ctx, "missing"); apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetByIDReadsCurrentRow(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	registered, err := service.Register(ctx, RegisterRequest{Email: "renamed@example.com", Password: "password-1", Name: "Before"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := service.Authenticate(ctx, "renamed@example.com", "password-1"); err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if err := service.db.Model(&User{}).Where("id = ?", registered.ID).Update("name", "After").Error; err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	user, err := service.GetByID(ctx, registered.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if user.Name != "After" {
		t.Fatalf("expected lookup to reflect the stored row, got %q", user.Name)
	}

	if err := service.db.Where("id = ?", registered.ID).Delete(&User{}).Error; err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := service.GetByID(ctx, registered.ID); apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("expected removed user to be gone, got %v", err)
	}
}
