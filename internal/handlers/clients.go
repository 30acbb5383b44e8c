package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/chirm-app/chirm-server/internal/registry"
)

// ClientsResponse lists the currently connected client ids.
type ClientsResponse struct {
	Clients []string `json:"clients"`
	Count   int      `json:"count"`
}

// ListClients returns a snapshot of connected clients (requires authentication).
func ListClients(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get("user_id"); !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		ids := reg.SnapshotIDs()
		sort.Strings(ids)

		c.JSON(http.StatusOK, ClientsResponse{
			Clients: ids,
			Count:   len(ids),
		})
	}
}
