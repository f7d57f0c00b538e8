package api

import (
	"net/http"
	"strconv"

	"github.com/AgentRank/agentrank-backend/internal/leaderboard"
	"github.com/gin-gonic/gin"
)

var boardView *leaderboard.View

// SetLeaderboardView wires the composite view into the API layer.
func SetLeaderboardView(v *leaderboard.View) { boardView = v }

// GET /v2/leaderboard?limit=
func GetLeaderboard(c *gin.Context) {
	limit := leaderboard.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			abortError(c, http.StatusBadRequest, CodeValidation, "limit must be an integer")
			return
		}
		limit = leaderboard.ClampLimit(n)
	}
	entries, err := boardView.Top(c.Request.Context(), limit)
	if err != nil {
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries, "count": len(entries)})
}
