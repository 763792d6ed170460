package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	records, err := h.notifications.ListForUser(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, "list_notifications", err)
		return
	}
	unread, err := h.notifications.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, "list_notifications", err)
		return
	}

	response := notificationListPayload{
		Notifications: make([]notificationPayload, 0, len(records)),
		Unread:        unread,
	}
	for _, record := range records {
		response.Notifications = append(response.Notifications, newNotificationPayload(record))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleMarkNotificationRead(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	notificationID := c.Param("id")
	if err := h.notifications.MarkRead(c.Request.Context(), notificationID, userID); err != nil {
		h.respondError(c, "mark_notification_read", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": notificationID, "isRead": true})
}
