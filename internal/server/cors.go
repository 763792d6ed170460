package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func corsMiddleware(origins []string, methods ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: methods,
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

// handlePreflight only runs for preflights the cors middleware let through.
func handlePreflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
