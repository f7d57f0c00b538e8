package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AgentRank/agentrank-backend/internal/verify"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

func verifyCtx(t *testing.T, id string) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v2/agents/"+id+"/verify", nil)
	c.Params = gin.Params{{Key: "id", Value: id}}
	return w, c
}

func TestVerifyAgentScore_NotConfiguredFailsFast(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	sdb := sqlx.NewDb(db, "sqlmock")

	cols := []string{
		"username", "display_name", "wallet", "market_cap", "holders", "verified",
		"reputation_feedback_count", "reputation_value",
		"tasks_completed", "tasks_failed", "disputes", "slashes",
		"first_seen_on_chain", "synced_at",
	}
	mock.ExpectQuery("FROM marketplace_agents").WillReturnRows(
		sqlmock.NewRows(cols).AddRow("alpha", nil, nil, 0.0, 0, false, 3, 1.0, 5, 5, 0, 0, nil, time.Now()))

	SetVerifyGateway(verify.NewGateway(sdb, "")) // no attestor endpoint
	t.Cleanup(func() { SetVerifyGateway(nil) })

	w, c := verifyCtx(t, "alpha")
	VerifyAgentScore(c)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d (%s)", w.Code, w.Body.String())
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["code"] != CodeUpstreamNotConfigured {
		t.Fatalf("want code %q, got %v", CodeUpstreamNotConfigured, resp["code"])
	}
}

func TestGetAgentScore_UnknownAgentIs404(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectQuery("FROM marketplace_agents").WillReturnError(sql.ErrNoRows)

	SetVerifyGateway(verify.NewGateway(sqlx.NewDb(db, "sqlmock"), ""))
	t.Cleanup(func() { SetVerifyGateway(nil) })

	w, c := verifyCtx(t, "ghost")
	GetAgentScore(c)
	if w.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", w.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["code"] != CodeNotFound {
		t.Fatalf("want code %q, got %v", CodeNotFound, resp["code"])
	}
}
