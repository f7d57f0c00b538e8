package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AgentRank/agentrank-backend/internal/leaderboard"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

func TestGetLeaderboard_RejectsNonNumericLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v2/leaderboard?limit=lots", nil)
	GetLeaderboard(c)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", w.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["code"] != CodeValidation {
		t.Fatalf("want code %q, got %v", CodeValidation, resp["code"])
	}
}

func TestGetLeaderboard_ReturnsRankedEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	sdb := sqlx.NewDb(db, "sqlmock")

	joinCols := []string{
		"username", "wallet", "tasks_completed", "tasks_failed", "disputes", "slashes",
		"age_days", "reputation_feedback_count", "reputation_value",
		"arena_reputation", "trading_win_rate",
	}
	mock.ExpectQuery("FROM marketplace_agents m").WillReturnRows(
		sqlmock.NewRows(joinCols).AddRow("alpha", nil, 8, 2, 0, 0, 90.0, 1, 1.0, nil, nil))
	mock.ExpectQuery("FROM discovered_agents d").WillReturnRows(
		sqlmock.NewRows([]string{"username", "wallet", "last_post_at", "post_count"}))

	SetLeaderboardView(leaderboard.NewView(sdb))
	t.Cleanup(func() { SetLeaderboardView(nil) })

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v2/leaderboard", nil)
	GetLeaderboard(c)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d (%s)", w.Code, w.Body.String())
	}
	var resp struct {
		Leaderboard []leaderboard.Entry `json:"leaderboard"`
		Count       int                 `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp.Count != 1 || len(resp.Leaderboard) != 1 {
		t.Fatalf("want one entry, got %+v", resp)
	}
	if resp.Leaderboard[0].Rank != 1 || resp.Leaderboard[0].Username != "alpha" {
		t.Fatalf("unexpected entry: %+v", resp.Leaderboard[0])
	}
}
