package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/threadline/internal/apperrors"
	"github.com/MarcoPoloResearchLab/threadline/internal/ids"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opRegister     = "users.register"
	opAuthenticate = "users.authenticate"
	opGet          = "users.get"

	minPasswordBytes = 8
	maxPasswordBytes = 72
	maxNameLength    = 255

	// timingEqualizerPassword is hashed once so unknown emails cost the same as wrong passwords.
	timingEqualizerPassword = "threadline-timing-equalizer"
)

var (
	ErrInvalidEmail       = errors.New("users: invalid email")
	ErrInvalidPassword    = errors.New("users: password must be between 8 and 72 bytes")
	ErrInvalidName        = errors.New("users: name must be between 1 and 255 characters")
	ErrEmailTaken         = errors.New("users: email already registered")
	ErrInvalidCredentials = errors.New("users: invalid email or password")
	ErrUserNotFound       = errors.New("users: user not found")

	noOpLogger = zap.NewNop()
)

// PasswordHasher hashes and verifies password credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	Hasher     PasswordHasher
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service registers users and checks their credentials.
type Service struct {
	db         *gorm.DB
	hasher     PasswordHasher
	idProvider ids.Provider
	now        func() time.Time
	logger     *zap.Logger
	validate   *validator.Validate

	equalizerOnce sync.Once
	equalizerHash string
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.Hasher == nil {
		return nil, fmt.Errorf("users: password hasher required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("users: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		hasher:     cfg.Hasher,
		idProvider: cfg.IDProvider,
		now:        clock,
		logger:     logger,
		validate:   validator.New(),
	}, nil
}

// RegisterRequest carries the fields required to create an account.
type RegisterRequest struct {
	Email    string
	Password string
	Name     string
}

// Register validates the request and creates a new user.
func (s *Service) Register(ctx context.Context, request RegisterRequest) (User, error) {
	email := NormalizeEmail(request.Email)
	if err := s.validate.Var(email, "required,email,max=320"); err != nil {
		return User{}, apperrors.Validation("invalid_email", ErrInvalidEmail)
	}
	if len(request.Password) < minPasswordBytes || len(request.Password) > maxPasswordBytes {
		return User{}, apperrors.Validation("invalid_password", ErrInvalidPassword)
	}
	name := normalize(request.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return User{}, apperrors.Validation("invalid_name", ErrInvalidName)
	}

	hash, err := s.hasher.Hash(request.Password)
	if err != nil {
		s.logError(opRegister, "hash_failed", err)
		return User{}, apperrors.Store(opRegister, "hash_failed", err)
	}
	userID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRegister, "id_generation_failed", err)
		return User{}, apperrors.Store(opRegister, "id_generation_failed", err)
	}

	now := s.now().UTC()
	user := User{
		ID:           userID,
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
			s.logError(opRegister, "email_lookup_failed", err)
			return apperrors.Store(opRegister, "email_lookup_failed", err)
		}
		if existing > 0 {
			return apperrors.Conflict("email_taken", ErrEmailTaken)
		}
		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.Conflict("email_taken", ErrEmailTaken)
			}
			s.logError(opRegister, "insert_failed", err)
			return apperrors.Store(opRegister, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return User{}, txErr
	}

	return user, nil
}

// Authenticate returns the user owning email when password matches.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" || password == "" {
		return User{}, apperrors.Validation("invalid_request", ErrInvalidCredentials)
	}

	var user User
	err := s.db.WithContext(ctx).Where("email = ?", normalized).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.hasher.Verify(password, s.timingEqualizerHash())
		return User{}, apperrors.Authentication("invalid_credentials", ErrInvalidCredentials)
	}
	if err != nil {
		s.logError(opAuthenticate, "query_failed", err)
		return User{}, apperrors.Store(opAuthenticate, "query_failed", err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return User{}, apperrors.Authentication("invalid_credentials", ErrInvalidCredentials)
	}

	return user, nil
}

// GetByID returns the user with the provided identifier.
func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, apperrors.NotFound("user_not_found", ErrUserNotFound)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("user_id", userID))
		return User{}, apperrors.Store(opGet, "query_failed", err)
	}
	return user, nil
}

func (s *Service) timingEqualizerHash() string {
	s.equalizerOnce.Do(func() {
		hash, err := s.hasher.Hash(timingEqualizerPassword)
		if err == nil {
			s.equalizerHash = hash
		}
	})
	return s.equalizerHash
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("users service error", attrs...)
}
