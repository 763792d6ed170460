package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/threadline/internal/apperrors"
	"github.com/MarcoPoloResearchLab/threadline/internal/auth"
	"github.com/MarcoPoloResearchLab/threadline/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequestPayload struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeBadRequest})
		return
	}

	user, err := h.users.Register(c.Request.Context(), users.RegisterRequest{
		Email:    request.Email,
		Password: request.Password,
		Name:     request.Name,
	})
	if err != nil {
		h.respondError(c, "register", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": newUserPayload(user)})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeBadRequest})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindAuthentication {
			h.logger.Info("login rejected", zap.String("code", apperrors.CodeOf(err)))
		}
		h.respondError(c, "login", err)
		return
	}

	pair, err := h.tokens.IssueTokens(auth.Identity{ID: user.ID, Email: user.Email, Name: user.Name})
	if err != nil {
		h.logger.Error("failed to issue tokens", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":   newUserPayload(user),
		"tokens": newTokensPayload(pair),
	})
}

func (h *httpHandler) handleRefresh(c *gin.Context) {
	var request refreshRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.RefreshToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeBadRequest})
		return
	}

	userID, err := h.tokens.VerifyRefresh(request.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("refresh token rejected", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token_expired"})
			return
		}
		h.logger.Warn("refresh token rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.respondError(c, "refresh", err)
		return
	}

	pair, err := h.tokens.IssueTokens(auth.Identity{ID: user.ID, Email: user.Email, Name: user.Name})
	if err != nil {
		h.logger.Error("failed to issue tokens", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tokens": newTokensPayload(pair)})
}
