package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/threadline/internal/apperrors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusOverrides pins codes whose HTTP status differs from their kind's default.
var statusOverrides = map[string]int{
	"parent_not_found": http.StatusBadRequest,
}

func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindAuthentication:
		return http.StatusUnauthorized
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": code}. Internal codes never reach the client.
func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	kind := apperrors.KindOf(err)
	code := apperrors.CodeOf(err)
	switch kind {
	case apperrors.KindInternal:
		h.logger.Error("request failed", zap.String("operation", operation), zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": errorCodeInternal})
		return
	case apperrors.KindTimeout:
		h.logger.Warn("request timed out", zap.String("operation", operation), zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errorCodeTimeout})
		return
	}
	status := statusForKind(kind)
	if override, ok := statusOverrides[code]; ok {
		status = override
	}
	c.JSON(status, gin.H{"error": code})
}
