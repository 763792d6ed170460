package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/threadline/internal/auth"
	"github.com/MarcoPoloResearchLab/threadline/internal/comments"
	"github.com/MarcoPoloResearchLab/threadline/internal/notifications"
	"github.com/MarcoPoloResearchLab/threadline/internal/users"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	userIDContextKey    = "threadline_user_id"
	identityContextKey  = "threadline_identity"
	defaultReqTimeout   = 10 * time.Second
	defaultAuthRate     = 5
	defaultAuthBurst    = 10
	defaultAuthClients  = 10000
	tokenTypeBearer     = "Bearer"
	healthStatusOK      = "ok"
	errorCodeInternal   = "internal_error"
	errorCodeTimeout    = "store_timeout"
	errorCodeBadRequest = "invalid_request"
)

var (
	errMissingUserService    = errors.New("user service dependency required")
	errMissingTokenIssuer    = errors.New("token issuer dependency required")
	errMissingCommentService = errors.New("comment service dependency required")
	errMissingLedger         = errors.New("notification ledger dependency required")
)

// UserService registers and authenticates accounts.
type UserService interface {
	Register(ctx context.Context, request users.RegisterRequest) (users.User, error)
	Authenticate(ctx context.Context, email, password string) (users.User, error)
	GetByID(ctx context.Context, userID string) (users.User, error)
}

// TokenIssuer issues and verifies access and refresh tokens.
type TokenIssuer interface {
	auth.AccessVerifier
	IssueTokens(identity auth.Identity) (auth.TokenPair, error)
	VerifyRefresh(token string) (string, error)
}

// CommentService is the comment store as seen by the HTTP layer.
type CommentService interface {
	ListByPost(ctx context.Context, postID string, page, pageSize int) (comments.Page, error)
	Get(ctx context.Context, commentID string) (comments.Item, error)
	Create(ctx context.Context, request comments.CreateRequest) (comments.Item, error)
	Update(ctx context.Context, commentID, actorID, content string) (comments.Item, error)
	Delete(ctx context.Context, commentID, actorID string) (comments.DeleteResult, error)
}

// NotificationLedger reads and acknowledges a user's notifications.
type NotificationLedger interface {
	ListForUser(ctx context.Context, userID string) ([]notifications.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, notificationID, actorID string) error
}

// MarkdownRenderer turns comment content into sanitized HTML.
type MarkdownRenderer interface {
	HTML(source string) string
}

// Dependencies wires the services behind the HTTP API.
type Dependencies struct {
	Users             UserService
	Tokens            TokenIssuer
	Comments          CommentService
	Notifications     NotificationLedger
	Renderer          MarkdownRenderer
	AllowedOrigins    []string
	RequestTimeout    time.Duration
	AuthRatePerSecond float64
	AuthRateBurst     int
	AuthRateClients   int
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the comment API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Users == nil {
		return nil, errMissingUserService
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.Comments == nil {
		return nil, errMissingCommentService
	}
	if deps.Notifications == nil {
		return nil, errMissingLedger
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	requestTimeout := deps.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultReqTimeout
	}
	authRate := deps.AuthRatePerSecond
	if authRate <= 0 {
		authRate = defaultAuthRate
	}
	authBurst := deps.AuthRateBurst
	if authBurst <= 0 {
		authBurst = defaultAuthBurst
	}
	authClients := deps.AuthRateClients
	if authClients <= 0 {
		authClients = defaultAuthClients
	}
	authLimiter, err := newIPRateLimiter(rate.Limit(authRate), authBurst, authClients)
	if err != nil {
		return nil, err
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(requestTimeoutMiddleware(requestTimeout))

	handler := &httpHandler{
		users:         deps.Users,
		tokens:        deps.Tokens,
		comments:      deps.Comments,
		notifications: deps.Notifications,
		renderer:      deps.Renderer,
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)

	authGroup := router.Group("/auth")
	authGroup.Use(corsMiddleware(origins, http.MethodPost, http.MethodOptions))
	authGroup.OPTIONS("/*path", handlePreflight)
	authGroup.Use(authLimiter.middleware())
	authGroup.POST("/register", handler.handleRegister)
	authGroup.POST("/login", handler.handleLogin)
	authGroup.POST("/refresh", handler.handleRefresh)

	commentGroup := router.Group("/comments")
	commentGroup.Use(corsMiddleware(origins, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions))
	commentGroup.OPTIONS("", handlePreflight)
	commentGroup.OPTIONS("/:id", handlePreflight)
	commentGroup.GET("", handler.handleListComments)
	commentGroup.GET("/:id", handler.handleGetComment)
	commentGroup.POST("", handler.authorizeRequest, handler.handleCreateComment)
	commentGroup.PUT("/:id", handler.authorizeRequest, handler.handleUpdateComment)
	commentGroup.DELETE("/:id", handler.authorizeRequest, handler.handleDeleteComment)

	notificationGroup := router.Group("/notifications")
	notificationGroup.Use(corsMiddleware(origins, http.MethodGet, http.MethodPut, http.MethodOptions))
	notificationGroup.OPTIONS("", handlePreflight)
	notificationGroup.OPTIONS("/:id/read", handlePreflight)
	notificationGroup.Use(handler.authorizeRequest)
	notificationGroup.GET("", handler.handleListNotifications)
	notificationGroup.PUT("/:id/read", handler.handleMarkNotificationRead)

	return router, nil
}

type httpHandler struct {
	users         UserService
	tokens        TokenIssuer
	comments      CommentService
	notifications NotificationLedger
	renderer      MarkdownRenderer
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": healthStatusOK})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	identity, err := auth.AuthenticateRequest(h.tokens, c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrMissingBearerToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token_expired"})
			return
		}
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, identity.ID)
	c.Set(identityContextKey, identity)
	c.Next()
}

func requestTimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
