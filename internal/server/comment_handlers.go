package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/threadline/internal/comments"
	"github.com/gin-gonic/gin"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

type createCommentPayload struct {
	Content  string `json:"content"`
	PostID   string `json:"postId"`
	ParentID string `json:"parentId"`
}

type updateCommentPayload struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	page, ok := parsePositiveQuery(c, "page", defaultPage)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_page"})
		return
	}
	limit, ok := parsePositiveQuery(c, "limit", defaultLimit)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
		return
	}

	result, err := h.comments.ListByPost(c.Request.Context(), c.Query("postId"), page, limit)
	if err != nil {
		h.respondError(c, "list_comments", err)
		return
	}

	response := commentListPayload{
		Comments: make([]commentPayload, 0, len(result.Items)),
		Pagination: paginationPayload{
			Page:       result.Page,
			Limit:      result.PageSize,
			Total:      result.Total,
			TotalPages: result.TotalPages,
		},
	}
	for _, item := range result.Items {
		response.Comments = append(response.Comments, h.newCommentPayload(item))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetComment(c *gin.Context) {
	item, err := h.comments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_comment", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comment": h.newCommentPayload(item)})
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request createCommentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeBadRequest})
		return
	}

	item, err := h.comments.Create(c.Request.Context(), comments.CreateRequest{
		AuthorID: userID,
		PostID:   request.PostID,
		Content:  request.Content,
		ParentID: request.ParentID,
	})
	if err != nil {
		h.respondError(c, "create_comment", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"comment": h.newCommentPayload(item)})
}

func (h *httpHandler) handleUpdateComment(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request updateCommentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeBadRequest})
		return
	}

	item, err := h.comments.Update(c.Request.Context(), c.Param("id"), userID, request.Content)
	if err != nil {
		h.respondError(c, "update_comment", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"comment": h.newCommentPayload(item)})
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	result, err := h.comments.Delete(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.respondError(c, "delete_comment", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true, "removed": result.Removed})
}

// parsePositiveQuery reads an integer query parameter, falling back when it is absent.
func parsePositiveQuery(c *gin.Context, key string, fallback int) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, false
	}
	return value, true
}
