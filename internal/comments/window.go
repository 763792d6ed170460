package comments

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/threadline/internal/apperrors"
)

// MutabilityWindow is how long after creation a comment may be edited or deleted.
const MutabilityWindow = 15 * time.Minute

var (
	ErrNotAuthor         = errors.New("comments: only the author may modify a comment")
	ErrEditWindowExpired = errors.New("comments: mutability window expired")
)

// IsMutable reports whether now is within the comment's mutability window.
// The window is anchored on CreatedAt; edits never extend it.
func IsMutable(comment Comment, now time.Time) bool {
	return now.Sub(comment.CreatedAt) <= MutabilityWindow
}

// CheckMutation decides whether actorID may edit or delete comment at now.
// Ownership is checked first, so non-authors are rejected regardless of the window.
func CheckMutation(comment Comment, actorID string, now time.Time) error {
	if actorID == "" || comment.AuthorID != actorID {
		return apperrors.Forbidden("not_comment_author", ErrNotAuthor)
	}
	if !IsMutable(comment, now) {
		return apperrors.Forbidden("edit_window_expired", ErrEditWindowExpired)
	}
	return nil
}
