package sync

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/AgentRank/agentrank-backend/internal/bus"
)

// TopicSyncCompleted is published on the event bus after every orchestrated
// run, carrying the run summary as payload.
const TopicSyncCompleted = "reputation.sync.completed"

// Summary aggregates one orchestrated run across all sources.
type Summary struct {
	Success      bool     `json:"success"`
	ElapsedMs    int64    `json:"elapsedMs"`
	TotalFromAPI int      `json:"totalFromApi"`
	TotalPages   int      `json:"totalPages"`
	Synced       int      `json:"synced"`
	Skipped      int      `json:"skipped"`
	ErrorCount   int      `json:"errors"`
	DBCount      int      `json:"dbCount"`
	SourceErrors []string `json:"sourceErrors,omitempty"`
}

// Orchestrator drives each source's fetch→normalize→upsert job with per-source
// failure isolation: one source's error never aborts a sibling. Sources run
// sequentially (each source's pagination is order-dependent); the whole run is
// time-boxed and returns a partial summary if the deadline expires.
type Orchestrator struct {
	sources  []Source
	upserter *Upserter
	bus      bus.Bus
	deadline time.Duration
}

func NewOrchestrator(sources []Source, up *Upserter, b bus.Bus, deadline time.Duration) *Orchestrator {
	if deadline <= 0 {
		deadline = 60 * time.Second
	}
	return &Orchestrator{sources: sources, upserter: up, bus: b, deadline: deadline}
}

// Run executes one orchestrated sync. It is safe to invoke concurrently:
// upserts are idempotent and keyed by stable identity, so overlapping runs
// converge to the same end state.
func (o *Orchestrator) Run(ctx context.Context) Summary {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	sum := Summary{Success: true}
	for _, src := range o.sources {
		if ctx.Err() != nil {
			// Deadline hit: report what we have instead of hanging the caller.
			sum.Success = false
			sum.SourceErrors = append(sum.SourceErrors, "run deadline exceeded before "+src.Name())
			sum.ErrorCount++
			break
		}
		res := src.Run(ctx)
		sum.TotalFromAPI += res.Fetched
		sum.TotalPages += res.Pages
		sum.Synced += res.Synced
		sum.Skipped += res.Skipped
		if res.Err != nil {
			sum.ErrorCount++
			sum.SourceErrors = append(sum.SourceErrors, res.Source+": "+res.Err.Error())
			log.Printf("sync: source %s failed: %v", res.Source, res.Err)
		}
	}

	if o.upserter != nil {
		// The run context may already be expired; the count still has to
		// happen so a timed-out run reports a truthful dbCount.
		countCtx, countCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if n, err := o.upserter.RowCount(countCtx); err == nil {
			sum.DBCount = n
		} else {
			log.Printf("sync: row count failed: %v", err)
		}
		countCancel()
	}
	sum.ElapsedMs = time.Since(start).Milliseconds()

	if o.bus != nil {
		payload, _ := json.Marshal(sum)
		_ = o.bus.Publish(context.Background(), bus.Event{Topic: TopicSyncCompleted, Payload: payload})
	}
	return sum
}
