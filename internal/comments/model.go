package comments

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/threadline/internal/apperrors"
)

const (
	// MaxContentLength bounds comment content, counted in runes after trimming.
	MaxContentLength = 1000
	// DefaultPostID groups comments submitted without a post reference.
	DefaultPostID = "default"

	maxPostIDLength = 255
	maxPageSize     = 100
)

var (
	ErrContentRequired = errors.New("comments: content is required")
	ErrContentTooLong  = fmt.Errorf("comments: content must be at most %d characters", MaxContentLength)
	ErrInvalidPostID   = fmt.Errorf("comments: post id must be at most %d characters", maxPostIDLength)
	ErrInvalidPage     = errors.New("comments: page must be at least 1")
	ErrInvalidPageSize = fmt.Errorf("comments: page size must be between 1 and %d", maxPageSize)
	ErrCommentNotFound = errors.New("comments: comment not found")
	ErrParentNotFound  = errors.New("comments: parent comment not found")
	ErrAuthorNotFound  = errors.New("comments: author not found")
)

// Comment is a node of a post's comment tree. A nil ParentID marks a root comment.
type Comment struct {
	ID        string    `gorm:"column:id;primaryKey;size:64;not null"`
	PostID    string    `gorm:"column:post_id;size:255;not null;index:idx_comments_post_created,priority:1"`
	AuthorID  string    `gorm:"column:author_id;size:64;not null;index:idx_comments_author"`
	ParentID  *string   `gorm:"column:parent_id;size:64;index:idx_comments_parent"`
	Content   string    `gorm:"column:content;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_comments_post_created,priority:2"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

// IsRoot reports whether the comment has no parent.
func (c Comment) IsRoot() bool {
	return c.ParentID == nil
}

// Author is the public identity of a comment's author.
type Author struct {
	ID    string
	Name  string
	Email string
}

// Item is a comment enriched with its author.
type Item struct {
	Comment Comment
	Author  Author
}

// Page is one page of a post's comments, newest first.
type Page struct {
	Items      []Item
	Page       int
	PageSize   int
	Total      int64
	TotalPages int
}

// CreateRequest describes a new comment or reply.
type CreateRequest struct {
	AuthorID string
	PostID   string
	Content  string
	ParentID string
}

// DeleteResult reports how many comments a cascading delete removed.
type DeleteResult struct {
	Removed int
}

// authoredRow is the scan target of the comments/users join.
type authoredRow struct {
	Comment
	AuthorName  string `gorm:"column:author_name"`
	AuthorEmail string `gorm:"column:author_email"`
}

func (row authoredRow) item() Item {
	return Item{
		Comment: row.Comment,
		Author: Author{
			ID:    row.AuthorID,
			Name:  row.AuthorName,
			Email: row.AuthorEmail,
		},
	}
}

// NormalizeContent trims content and enforces the length bounds.
func NormalizeContent(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", apperrors.Validation("content_required", ErrContentRequired)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", apperrors.Validation("content_too_long", ErrContentTooLong)
	}
	return content, nil
}

// NormalizePostID trims the post reference and applies the default grouping key.
func NormalizePostID(raw string) (string, error) {
	postID := strings.TrimSpace(raw)
	if postID == "" {
		return DefaultPostID, nil
	}
	if len(postID) > maxPostIDLength {
		return "", apperrors.Validation("invalid_post_id", ErrInvalidPostID)
	}
	return postID, nil
}

func validatePagination(page, pageSize int) error {
	if page < 1 {
		return apperrors.Validation("invalid_page", ErrInvalidPage)
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return apperrors.Validation("invalid_limit", ErrInvalidPageSize)
	}
	return nil
}

func totalPages(total int64, pageSize int) int {
	if total <= 0 {
		return 0
	}
	size := int64(pageSize)
	return int((total + size - 1) / size)
}
