package notifications

import "time"

// TypeReply tags notifications emitted when someone replies to a user's comment.
const TypeReply = "reply"

// Notification is an append-only record addressed to one user.
type Notification struct {
	ID        string    `gorm:"column:id;primaryKey;size:64;not null"`
	UserID    string    `gorm:"column:user_id;size:64;not null;index:idx_notifications_user_created,priority:1"`
	ActorID   string    `gorm:"column:actor_id;size:64;not null;default:''"`
	CommentID string    `gorm:"column:comment_id;size:64;not null;default:''"`
	Type      string    `gorm:"column:type;size:50;not null"`
	Message   string    `gorm:"column:message;type:text;not null"`
	IsRead    bool      `gorm:"column:is_read;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_notifications_user_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}

// Reply describes a reply notification to append.
type Reply struct {
	RecipientID string
	ActorID     string
	CommentID   string
	Message     string
}
