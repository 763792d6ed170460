package server

import (
	"time"

	"github.com/MarcoPoloResearchLab/threadline/internal/auth"
	"github.com/MarcoPoloResearchLab/threadline/internal/comments"
	"github.com/MarcoPoloResearchLab/threadline/internal/notifications"
	"github.com/MarcoPoloResearchLab/threadline/internal/users"
)

type userPayload struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserPayload(user users.User) userPayload {
	return userPayload{ID: user.ID, Email: user.Email, Name: user.Name, CreatedAt: user.CreatedAt}
}

type tokensPayload struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	TokenType        string `json:"tokenType"`
	ExpiresIn        int64  `json:"expiresIn"`
	RefreshExpiresIn int64  `json:"refreshExpiresIn"`
}

func newTokensPayload(pair auth.TokenPair) tokensPayload {
	return tokensPayload{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        tokenTypeBearer,
		ExpiresIn:        pair.AccessExpiresIn,
		RefreshExpiresIn: pair.RefreshExpiresIn,
	}
}

type authorPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type commentPayload struct {
	ID          string        `json:"id"`
	PostID      string        `json:"postId"`
	ParentID    *string       `json:"parentId"`
	Content     string        `json:"content"`
	ContentHTML string        `json:"contentHtml,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	Author      authorPayload `json:"author"`
}

func (h *httpHandler) newCommentPayload(item comments.Item) commentPayload {
	payload := commentPayload{
		ID:        item.Comment.ID,
		PostID:    item.Comment.PostID,
		ParentID:  item.Comment.ParentID,
		Content:   item.Comment.Content,
		CreatedAt: item.Comment.CreatedAt,
		UpdatedAt: item.Comment.UpdatedAt,
		Author: authorPayload{
			ID:    item.Author.ID,
			Name:  item.Author.Name,
			Email: item.Author.Email,
		},
	}
	if h.renderer != nil {
		payload.ContentHTML = h.renderer.HTML(item.Comment.Content)
	}
	return payload
}

type paginationPayload struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

type commentListPayload struct {
	Comments   []commentPayload  `json:"comments"`
	Pagination paginationPayload `json:"pagination"`
}

type notificationPayload struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	ActorID   string    `json:"actorId,omitempty"`
	CommentID string    `json:"commentId,omitempty"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

func newNotificationPayload(notification notifications.Notification) notificationPayload {
	return notificationPayload{
		ID:        notification.ID,
		Type:      notification.Type,
		Message:   notification.Message,
		ActorID:   notification.ActorID,
		CommentID: notification.CommentID,
		IsRead:    notification.IsRead,
		CreatedAt: notification.CreatedAt,
	}
}

type notificationListPayload struct {
	Notifications []notificationPayload `json:"notifications"`
	Unread        int64                 `json:"unread"`
}
