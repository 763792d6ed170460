package comments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/threadline/internal/apperrors"
	"github.com/MarcoPoloResearchLab/threadline/internal/ids"
	"github.com/MarcoPoloResearchLab/threadline/internal/notifications"
	"github.com/MarcoPoloResearchLab/threadline/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew = "comments.service.new"
	opListByPost = "comments.list_by_post"
	opCreate     = "comments.create"
	opUpdate     = "comments.update"
	opDelete     = "comments.delete"
	opGet        = "comments.get"

	fieldCommentID = "comment_id"
	fieldPostID    = "post_id"
	fieldActorID   = "actor_id"

	defaultCountTTL = 30 * time.Second
	generationTTL   = 24 * time.Hour

	authoredColumns = "comments.id, comments.post_id, comments.author_id, comments.parent_id, " +
		"comments.content, comments.created_at, comments.updated_at, " +
		"users.name AS author_name, users.email AS author_email"
	joinAuthors = "JOIN users ON users.id = comments.author_id"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// Notifier records reply notifications.
type Notifier interface {
	NotifyReply(ctx context.Context, reply notifications.Reply) (notifications.Notification, error)
}

// CountCache stores per-post comment totals. Totals are keyed by a per-post
// generation that every committed write replaces, so a total counted before a
// write lands under a generation no reader asks for again.
type CountCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// ServiceConfig describes the dependencies of the comment store.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Notifier   Notifier
	CountCache CountCache
	CountTTL   time.Duration
	Logger     *zap.Logger
}

// Service persists comment trees and enforces the mutation rules.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	notifier   Notifier
	countCache CountCache
	countTTL   time.Duration
	logger     *zap.Logger
}

// NewService constructs the comment store. Notifier and CountCache are optional.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperrors.Store(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperrors.Store(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	countTTL := cfg.CountTTL
	if countTTL <= 0 {
		countTTL = defaultCountTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		notifier:   cfg.Notifier,
		countCache: cfg.CountCache,
		countTTL:   countTTL,
		logger:     logger,
	}, nil
}

// ListByPost returns one page of the post's comments, newest first, each
// joined with its author's public identity.
func (s *Service) ListByPost(ctx context.Context, rawPostID string, page, pageSize int) (Page, error) {
	postID, err := NormalizePostID(rawPostID)
	if err != nil {
		return Page{}, err
	}
	if err := validatePagination(page, pageSize); err != nil {
		return Page{}, err
	}

	rows := make([]authoredRow, 0, pageSize)
	if err := s.db.WithContext(ctx).
		Table("comments").
		Select(authoredColumns).
		Joins(joinAuthors).
		Where("comments.post_id = ?", postID).
		Order("comments.created_at DESC").
		Order("comments.id DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Scan(&rows).Error; err != nil {
		s.logError(opListByPost, "query_failed", err, zap.String(fieldPostID, postID))
		return Page{}, apperrors.Store(opListByPost, "query_failed", err)
	}

	total, err := s.countByPost(ctx, postID)
	if err != nil {
		return Page{}, err
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.item())
	}

	return Page{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// Get returns a single comment with its author.
func (s *Service) Get(ctx context.Context, commentID string) (Item, error) {
	item, err := s.loadAuthored(s.db.WithContext(ctx), commentID)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindInternal {
			s.logError(opGet, "query_failed", err, zap.String(fieldCommentID, commentID))
		}
		return Item{}, err
	}
	return item, nil
}

// Create stores a new comment. Replies to another user's comment emit a
// best-effort reply notification after the comment is committed.
func (s *Service) Create(ctx context.Context, request CreateRequest) (Item, error) {
	content, err := NormalizeContent(request.Content)
	if err != nil {
		return Item{}, err
	}
	postID, err := NormalizePostID(request.PostID)
	if err != nil {
		return Item{}, err
	}
	var parentID *string
	if trimmed := strings.TrimSpace(request.ParentID); trimmed != "" {
		parentID = &trimmed
	}

	commentID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Item{}, apperrors.Store(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	comment := Comment{
		ID:        commentID,
		PostID:    postID,
		AuthorID:  request.AuthorID,
		ParentID:  parentID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var author users.User
	var parent Comment
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", request.AuthorID).Take(&author).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.Authentication("unknown_author", ErrAuthorNotFound)
		}
		if err != nil {
			s.logError(opCreate, "author_select_failed", err, zap.String(fieldActorID, request.AuthorID))
			return apperrors.Store(opCreate, "author_select_failed", err)
		}

		if parentID != nil {
			err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
				Where("id = ? AND post_id = ?", *parentID, postID).
				Take(&parent).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("parent_not_found", ErrParentNotFound)
			}
			if err != nil {
				s.logError(opCreate, "parent_select_failed", err,
					zap.String(fieldPostID, postID),
					zap.String(fieldCommentID, *parentID))
				return apperrors.Store(opCreate, "parent_select_failed", err)
			}
		}

		if err := tx.Create(&comment).Error; err != nil {
			s.logError(opCreate, "insert_failed", err, zap.String(fieldPostID, postID))
			return apperrors.Store(opCreate, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Item{}, txErr
	}

	s.invalidateCount(ctx, postID)
	if !comment.IsRoot() && parent.AuthorID != author.ID {
		s.notifyReply(ctx, parent, comment, author)
	}

	return Item{
		Comment: comment,
		Author:  Author(author.Profile()),
	}, nil
}

// Update replaces the content of a comment owned by actorID while it is
// still inside its mutability window.
func (s *Service) Update(ctx context.Context, commentID, actorID, rawContent string) (Item, error) {
	content, err := NormalizeContent(rawContent)
	if err != nil {
		return Item{}, err
	}

	var updated Item
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		comment, err := s.lockComment(tx, opUpdate, commentID)
		if err != nil {
			return err
		}
		now := s.clock().UTC()
		if err := CheckMutation(comment, actorID, now); err != nil {
			return err
		}
		if err := tx.Model(&Comment{}).
			Where("id = ?", commentID).
			Updates(map[string]any{"content": content, "updated_at": now}).Error; err != nil {
			s.logError(opUpdate, "update_failed", err, zap.String(fieldCommentID, commentID))
			return apperrors.Store(opUpdate, "update_failed", err)
		}
		updated, err = s.loadAuthored(tx, commentID)
		if err != nil {
			s.logError(opUpdate, "reload_failed", err, zap.String(fieldCommentID, commentID))
			return err
		}
		return nil
	})
	if txErr != nil {
		return Item{}, txErr
	}
	return updated, nil
}

// Delete removes a comment owned by actorID and its entire subtree in one
// transaction. Descendants are removed regardless of their own windows.
func (s *Service) Delete(ctx context.Context, commentID, actorID string) (DeleteResult, error) {
	var removed []string
	var postID string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		comment, err := s.lockComment(tx, opDelete, commentID)
		if err != nil {
			return err
		}
		if err := CheckMutation(comment, actorID, s.clock().UTC()); err != nil {
			return err
		}
		postID = comment.PostID

		subtree, err := s.collectSubtree(tx, commentID)
		if err != nil {
			return err
		}
		if err := tx.Where("id IN ?", subtree).Delete(&Comment{}).Error; err != nil {
			s.logError(opDelete, "delete_failed", err, zap.String(fieldCommentID, commentID))
			return apperrors.Store(opDelete, "delete_failed", err)
		}
		removed = subtree
		return nil
	})
	if txErr != nil {
		return DeleteResult{}, txErr
	}

	s.invalidateCount(ctx, postID)
	return DeleteResult{Removed: len(removed)}, nil
}

// collectSubtree walks parent links breadth first and returns rootID and all
// of its descendants. Every level is row locked so a concurrent reply either
// commits before the walk reaches its parent or waits and finds it gone.
func (s *Service) collectSubtree(tx *gorm.DB, rootID string) ([]string, error) {
	subtree := []string{rootID}
	frontier := []string{rootID}
	for len(frontier) > 0 {
		var children []string
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Model(&Comment{}).
			Where("parent_id IN ?", frontier).
			Pluck("id", &children).Error; err != nil {
			s.logError(opDelete, "descendant_select_failed", err, zap.String(fieldCommentID, rootID))
			return nil, apperrors.Store(opDelete, "descendant_select_failed", err)
		}
		subtree = append(subtree, children...)
		frontier = children
	}
	return subtree, nil
}

func (s *Service) lockComment(tx *gorm.DB, operation, commentID string) (Comment, error) {
	var comment Comment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", commentID).
		Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Comment{}, apperrors.NotFound("comment_not_found", ErrCommentNotFound)
	}
	if err != nil {
		s.logError(operation, "comment_select_failed", err, zap.String(fieldCommentID, commentID))
		return Comment{}, apperrors.Store(operation, "comment_select_failed", err)
	}
	return comment, nil
}

func (s *Service) loadAuthored(tx *gorm.DB, commentID string) (Item, error) {
	var rows []authoredRow
	if err := tx.Table("comments").
		Select(authoredColumns).
		Joins(joinAuthors).
		Where("comments.id = ?", commentID).
		Limit(1).
		Scan(&rows).Error; err != nil {
		return Item{}, apperrors.Store(opGet, "query_failed", err)
	}
	if len(rows) == 0 {
		return Item{}, apperrors.NotFound("comment_not_found", ErrCommentNotFound)
	}
	return rows[0].item(), nil
}

// countByPost counts the post's comments. The cache generation is read before
// the COUNT, so a fill never lands under a generation a later write replaced.
func (s *Service) countByPost(ctx context.Context, postID string) (int64, error) {
	key, cacheable := s.countKey(ctx, postID)
	if cacheable {
		cached, ok, err := s.countCache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("comment count cache read failed", zap.String(fieldPostID, postID), zap.Error(err))
		} else if ok {
			if total, parseErr := strconv.ParseInt(string(cached), 10, 64); parseErr == nil {
				return total, nil
			}
		}
	}

	var total int64
	if err := s.db.WithContext(ctx).
		Model(&Comment{}).
		Where("post_id = ?", postID).
		Count(&total).Error; err != nil {
		s.logError(opListByPost, "count_failed", err, zap.String(fieldPostID, postID))
		return 0, apperrors.Store(opListByPost, "count_failed", err)
	}

	if cacheable {
		if err := s.countCache.Set(ctx, key, []byte(strconv.FormatInt(total, 10)), s.countTTL); err != nil {
			s.logger.Warn("comment count cache write failed", zap.String(fieldPostID, postID), zap.Error(err))
		}
	}
	return total, nil
}

// countKey resolves the cache key for the post's current generation, seeding
// a fresh generation when none is live.
func (s *Service) countKey(ctx context.Context, postID string) (string, bool) {
	if s.countCache == nil {
		return "", false
	}
	generationKey := countGenerationKey(postID)
	for attempt := 0; attempt < 2; attempt++ {
		generation, ok, err := s.countCache.Get(ctx, generationKey)
		if err != nil {
			s.logger.Warn("comment count generation read failed", zap.String(fieldPostID, postID), zap.Error(err))
			return "", false
		}
		if ok && len(generation) > 0 {
			return countCacheKey(postID, string(generation)), true
		}
		if attempt > 0 {
			break
		}
		fresh, err := s.idProvider.NewID()
		if err != nil {
			return "", false
		}
		added, err := s.countCache.Add(ctx, generationKey, []byte(fresh), generationTTL)
		if err != nil {
			s.logger.Warn("comment count generation seed failed", zap.String(fieldPostID, postID), zap.Error(err))
			return "", false
		}
		if added {
			return countCacheKey(postID, fresh), true
		}
	}
	return "", false
}

// invalidateCount moves the post to a new generation once a write has committed.
func (s *Service) invalidateCount(ctx context.Context, postID string) {
	if s.countCache == nil || postID == "" {
		return
	}
	generation, err := s.idProvider.NewID()
	if err == nil {
		err = s.countCache.Set(ctx, countGenerationKey(postID), []byte(generation), generationTTL)
	}
	if err != nil {
		s.logger.Warn("comment count cache invalidation failed", zap.String(fieldPostID, postID), zap.Error(err))
	}
}

func (s *Service) notifyReply(ctx context.Context, parent, reply Comment, author users.User) {
	if s.notifier == nil {
		return
	}
	name := author.Name
	if name == "" {
		name = "Someone"
	}
	_, err := s.notifier.NotifyReply(ctx, notifications.Reply{
		RecipientID: parent.AuthorID,
		ActorID:     author.ID,
		CommentID:   reply.ID,
		Message:     fmt.Sprintf("%s replied to your comment", name),
	})
	if err != nil {
		s.logger.Warn("reply notification failed",
			zap.String(fieldCommentID, reply.ID),
			zap.String("recipient_id", parent.AuthorID),
			zap.Error(err))
	}
}

func countGenerationKey(postID string) string {
	return "comments:generation:" + postID
}

func countCacheKey(postID, generation string) string {
	return "comments:count:" + postID + ":" + generation
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
	s.logger.Error("comments service error", attrs...)
}
