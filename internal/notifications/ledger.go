package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/threadline/internal/apperrors"
	"github.com/MarcoPoloResearchLab/threadline/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opLedgerNew   = "notifications.ledger.new"
	opNotifyReply = "notifications.notify_reply"
	opListForUser = "notifications.list_for_user"
	opUnreadCount = "notifications.unread_count"
	opMarkRead    = "notifications.mark_read"

	fieldUserID         = "user_id"
	fieldNotificationID = "notification_id"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")

	ErrMissingRecipient     = errors.New("notifications: recipient is required")
	ErrMissingMessage       = errors.New("notifications: message is required")
	ErrNotificationNotFound = errors.New("notifications: notification not found")
	ErrNotRecipient         = errors.New("notifications: notification belongs to another user")

	noOpLogger = zap.NewNop()
)

// LedgerConfig describes the dependencies of the notification ledger.
type LedgerConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Ledger appends notifications and toggles their read state.
type Ledger struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewLedger constructs a Ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Database == nil {
		return nil, apperrors.Store(opLedgerNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperrors.Store(opLedgerNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Ledger{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// NotifyReply appends a new unread reply notification. Duplicate replies
// produce duplicate notifications.
func (l *Ledger) NotifyReply(ctx context.Context, reply Reply) (Notification, error) {
	recipientID := strings.TrimSpace(reply.RecipientID)
	if recipientID == "" {
		return Notification{}, apperrors.Validation("missing_recipient", ErrMissingRecipient)
	}
	message := strings.TrimSpace(reply.Message)
	if message == "" {
		return Notification{}, apperrors.Validation("missing_message", ErrMissingMessage)
	}

	notificationID, err := l.idProvider.NewID()
	if err != nil {
		l.logError(opNotifyReply, "id_generation_failed", err, zap.String(fieldUserID, recipientID))
		return Notification{}, apperrors.Store(opNotifyReply, "id_generation_failed", err)
	}

	notification := Notification{
		ID:        notificationID,
		UserID:    recipientID,
		ActorID:   reply.ActorID,
		CommentID: reply.CommentID,
		Type:      TypeReply,
		Message:   message,
		IsRead:    false,
		CreatedAt: l.clock().UTC(),
	}
	if err := l.db.WithContext(ctx).Create(&notification).Error; err != nil {
		l.logError(opNotifyReply, "insert_failed", err, zap.String(fieldUserID, recipientID))
		return Notification{}, apperrors.Store(opNotifyReply, "insert_failed", err)
	}
	return notification, nil
}

// ListForUser returns the user's notifications, newest first.
func (l *Ledger) ListForUser(ctx context.Context, userID string) ([]Notification, error) {
	notifications := make([]Notification, 0)
	if err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&notifications).Error; err != nil {
		l.logError(opListForUser, "query_failed", err, zap.String(fieldUserID, userID))
		return nil, apperrors.Store(opListForUser, "query_failed", err)
	}
	return notifications, nil
}

// UnreadCount returns how many of the user's notifications are unread.
func (l *Ledger) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := l.db.WithContext(ctx).
		Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		l.logError(opUnreadCount, "query_failed", err, zap.String(fieldUserID, userID))
		return 0, apperrors.Store(opUnreadCount, "query_failed", err)
	}
	return count, nil
}

// MarkRead flips the read flag of a notification owned by actorID.
// Marking an already read notification succeeds without change.
func (l *Ledger) MarkRead(ctx context.Context, notificationID, actorID string) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var notification Notification
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", notificationID).
			Take(&notification).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("notification_not_found", ErrNotificationNotFound)
		}
		if err != nil {
			l.logError(opMarkRead, "select_failed", err, zap.String(fieldNotificationID, notificationID))
			return apperrors.Store(opMarkRead, "select_failed", err)
		}
		if notification.UserID != actorID {
			return apperrors.Forbidden("not_notification_recipient", ErrNotRecipient)
		}
		if notification.IsRead {
			return nil
		}
		if err := tx.Model(&Notification{}).
			Where("id = ?", notificationID).
			Update("is_read", true).Error; err != nil {
			l.logError(opMarkRead, "update_failed", err, zap.String(fieldNotificationID, notificationID))
			return apperrors.Store(opMarkRead, "update_failed", err)
		}
		return nil
	})
}

func (l *Ledger) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	l.logger.Error("notification ledger error", attrs...)
}
