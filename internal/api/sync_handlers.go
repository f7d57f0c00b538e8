package api

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/AgentRank/agentrank-backend/internal/bus"
	syncer "github.com/AgentRank/agentrank-backend/internal/sync"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
)

var orchestrator *syncer.Orchestrator

// SetOrchestrator wires the sync pipeline into the API layer.
func SetOrchestrator(o *syncer.Orchestrator) { orchestrator = o }

// NewOrchestratorFromEnv assembles the source jobs from environment config.
// A source with no base URL configured is simply not part of the run.
func NewOrchestratorFromEnv(db *sqlx.DB, b bus.Bus) *syncer.Orchestrator {
	client := syncer.NewClient(time.Duration(parseEnvInt("AGENTRANK_FETCH_TIMEOUT_SECONDS", 10)) * time.Second)
	up := syncer.NewUpserter(db)
	maxPages := parseEnvInt("AGENTRANK_SYNC_MAX_PAGES", 20)

	var sources []syncer.Source
	if u := os.Getenv("AGENTRANK_MARKETPLACE_URL"); u != "" {
		sources = append(sources,
			&syncer.MarketplaceSource{BaseURL: u, Client: client, Upserter: up, MaxPages: maxPages},
			&syncer.DiscoverySource{BaseURL: u, Client: client, Upserter: up},
		)
	}
	if u := os.Getenv("AGENTRANK_ARENA_URL"); u != "" {
		sources = append(sources, &syncer.ArenaSource{BaseURL: u, Client: client, Upserter: up, MaxPages: maxPages})
	}
	if u := os.Getenv("AGENTRANK_PORTFOLIO_URL"); u != "" {
		sources = append(sources, &syncer.PortfolioSource{BaseURL: u, Client: client, Upserter: up})
	}

	deadline := time.Duration(parseEnvInt("AGENTRANK_SYNC_DEADLINE_SECONDS", 60)) * time.Second
	return syncer.NewOrchestrator(sources, up, b, deadline)
}

// POST /v2/sync — runs one orchestrated sync and returns the summary.
// Auth is handled by SyncAuthMiddleware before this runs.
func HandleSync(c *gin.Context) {
	if orchestrator == nil {
		abortError(c, http.StatusServiceUnavailable, CodeUpstreamNotConfigured, "no sync sources configured")
		return
	}
	sum := orchestrator.Run(c.Request.Context())
	recordSyncRun(sum)
	c.JSON(http.StatusOK, sum)
}

var syncCronOnce sync.Once

// StartSyncScheduler runs the orchestrator on a cron spec from
// AGENTRANK_SYNC_CRON (standard 5-field format). No-op when unset: syncs are
// otherwise triggered externally via POST /v2/sync.
func StartSyncScheduler() {
	spec := os.Getenv("AGENTRANK_SYNC_CRON")
	if spec == "" || orchestrator == nil {
		return
	}
	syncCronOnce.Do(func() {
		sched := cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)))
		_, err := sched.AddFunc(spec, func() {
			sum := orchestrator.Run(context.Background())
			recordSyncRun(sum)
			log.Printf("scheduled sync: synced=%d errors=%d elapsed=%dms", sum.Synced, sum.ErrorCount, sum.ElapsedMs)
		})
		if err != nil {
			log.Printf("invalid AGENTRANK_SYNC_CRON %q: %v", spec, err)
			return
		}
		sched.Start()
	})
}
