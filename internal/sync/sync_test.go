package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestMarketplaceSource_SyncsAndIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"agents":[{"username":"  Alpha ","wallet":"0xAB","marketCap":1200.5,"holders":3,"verified":true,"feedbackCount":7,"reputationValue":4.5,"tasksCompleted":8,"tasksFailed":2}],"totalPages":1,"total":1}`))
	}))
	defer srv.Close()

	db, mock := newMockDB(t)
	src := &MarketplaceSource{BaseURL: srv.URL, Client: NewClient(time.Second), Upserter: NewUpserter(db)}

	// Same upstream data applied twice: two identical upserts keyed by the
	// trimmed, lowercased username. The conflict clause keeps one row.
	for i := 0; i < 2; i++ {
		mock.ExpectExec("INSERT INTO marketplace_agents").
			WithArgs("alpha", nil, "0xab", 1200.5, 3, true, 7, 4.5, 8, 2, 0, 0, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	for i := 0; i < 2; i++ {
		res := src.Run(context.Background())
		if res.Err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, res.Err)
		}
		if res.Synced != 1 || res.Fetched != 1 || res.Pages != 1 {
			t.Fatalf("run %d: unexpected result %+v", i, res)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarketplaceSource_FollowsPagination(t *testing.T) {
	pagesServed := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "1":
			w.Write([]byte(`{"agents":[{"username":"a1"}],"totalPages":2}`))
		case "2":
			w.Write([]byte(`{"agents":[{"username":"a2"}],"totalPages":2}`))
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	defer srv.Close()

	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO marketplace_agents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO marketplace_agents").WillReturnResult(sqlmock.NewResult(0, 1))

	src := &MarketplaceSource{BaseURL: srv.URL, Client: NewClient(time.Second), Upserter: NewUpserter(db)}
	res := src.Run(context.Background())
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Pages != 2 || res.Synced != 2 || pagesServed != 2 {
		t.Fatalf("pagination not honored: %+v (served %d)", res, pagesServed)
	}
}

func TestMarketplaceSource_SkipsItemsWithoutIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"agents":[{"marketCap":5},{"username":"ok"},"garbage"],"totalPages":1}`))
	}))
	defer srv.Close()

	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO marketplace_agents").WillReturnResult(sqlmock.NewResult(0, 1))

	src := &MarketplaceSource{BaseURL: srv.URL, Client: NewClient(time.Second), Upserter: NewUpserter(db)}
	res := src.Run(context.Background())
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Synced != 1 || res.Skipped != 2 {
		t.Fatalf("want 1 synced / 2 skipped, got %+v", res)
	}
}

func TestArenaSource_AbortsMidRunKeepingEarlierPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			w.Write([]byte(`{"fighters":[{"id":1,"name":"debbie","wins":4,"losses":1,"totalFights":5,"avgJuryScore":8.2,"leaderboardRank":2,"reputation":1090}],"totalPages":3}`))
			return
		}
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO arena_fighters").
		WithArgs(int64(1), "debbie", 4, 1, 5, 8.2, 2, float64(1090)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	src := &ArenaSource{BaseURL: srv.URL, Client: NewClient(time.Second), Upserter: NewUpserter(db)}
	res := src.Run(context.Background())
	if res.Err == nil {
		t.Fatal("expected a source-level error from page 2")
	}
	// Page 1's row stayed committed.
	if res.Synced != 1 || res.Pages != 1 {
		t.Fatalf("earlier page not preserved: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrchestrator_IsolatesMalformedSource(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[1,2,3]`)) // valid JSON, wrong shape
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"portfolios":[{"wallet":"0xCafe","portfolioValueUsd":99.5,"tradingWinRate":0.61}]}`))
	}))
	defer good.Close()

	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO portfolio_snapshots").
		WithArgs("0xcafe", nil, 99.5, 0.61).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	client := NewClient(time.Second)
	up := NewUpserter(db)
	orch := NewOrchestrator([]Source{
		&MarketplaceSource{BaseURL: bad.URL, Client: client, Upserter: up},
		&PortfolioSource{BaseURL: good.URL, Client: client, Upserter: up},
	}, up, nil, time.Minute)

	sum := orch.Run(context.Background())
	if !sum.Success {
		t.Fatalf("run must succeed overall despite one bad source: %+v", sum)
	}
	if sum.ErrorCount != 1 || len(sum.SourceErrors) != 1 {
		t.Fatalf("want exactly one source error, got %+v", sum)
	}
	if sum.Synced != 1 {
		t.Fatalf("healthy source must still sync: %+v", sum)
	}
	if sum.DBCount != 1 {
		t.Fatalf("dbCount not reported: %+v", sum)
	}
}

type stallingSource struct{ name string }

func (s *stallingSource) Name() string { return s.name }
func (s *stallingSource) Run(ctx context.Context) SourceResult {
	<-ctx.Done()
	return SourceResult{Source: s.name, Err: ctx.Err()}
}

func TestOrchestrator_DeadlineReturnsPartialSummary(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	orch := NewOrchestrator([]Source{
		&stallingSource{name: "slow"},
		&stallingSource{name: "never-reached"},
	}, NewUpserter(db), nil, 20*time.Millisecond)

	done := make(chan Summary, 1)
	go func() { done <- orch.Run(context.Background()) }()
	select {
	case sum := <-done:
		if sum.Success {
			t.Fatalf("deadline run should not report success: %+v", sum)
		}
		if sum.ErrorCount == 0 {
			t.Fatalf("deadline must be surfaced as an error: %+v", sum)
		}
		// The expired run context must not poison the row count.
		if sum.DBCount != 7 {
			t.Fatalf("timed-out run must still report dbCount: %+v", sum)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator hung past its deadline")
	}
}

func TestDiscoverySource_RecordsFeedActivity(t *testing.T) {
	lastPost := time.Now().Add(-2*time.Hour).UnixMilli()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"posts":[{"username":"Gamma","lastPostAt":` + strconv.FormatInt(lastPost, 10) + `,"postCount":5}]}`))
	}))
	defer srv.Close()

	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO discovered_agents").WillReturnResult(sqlmock.NewResult(0, 1))

	src := &DiscoverySource{BaseURL: srv.URL, Client: NewClient(time.Second), Upserter: NewUpserter(db)}
	res := src.Run(context.Background())
	if res.Err != nil || res.Synced != 1 {
		t.Fatalf("feed sync failed: %+v", res)
	}
}
