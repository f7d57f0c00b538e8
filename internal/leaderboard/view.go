// Package leaderboard composes the independently synced source tables into a
// ranked view at read time. Nothing here is persisted: the view is recomputed
// per request from current table contents.
package leaderboard

import (
	"context"
	"database/sql"
	"sort"

	"github.com/AgentRank/agentrank-backend/internal/scoring"
	"github.com/jmoiron/sqlx"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Provenance markers for how an entry's base score was derived.
const (
	ProvenanceOnChain  = "on-chain"
	ProvenanceActivity = "activity"
)

// Entry is one leaderboard row. Rank is the strictly 1-based position in the
// returned, ordered page; ties keep the underlying join's stable order.
type Entry struct {
	Rank      int       `json:"rank"`
	Username  string    `json:"username"`
	Wallet    *string   `json:"wallet,omitempty"`
	Score     *int      `json:"score"` // nil when no signal exists; sorted last
	Tier      string    `json:"tier,omitempty"`
	Breakdown Breakdown `json:"breakdown"`
}

// Breakdown exposes the component scores so callers can see how the composite
// was assembled rather than trusting an opaque number.
type Breakdown struct {
	Base        int     `json:"base"`
	DebateBonus int     `json:"debateBonus"`
	Provenance  string  `json:"provenance,omitempty"`
	ArenaJoined bool    `json:"arenaJoined"`
	WinRate     float64 `json:"tradingWinRate,omitempty"`
}

// View reads the per-source tables and joins them on the shared username key.
type View struct {
	db *sqlx.DB
}

func NewView(db *sqlx.DB) *View { return &View{db: db} }

// ClampLimit bounds a requested page size into [1,100], defaulting to 50.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

type joinedRow struct {
	Username        string          `db:"username"`
	Wallet          sql.NullString  `db:"wallet"`
	TasksCompleted  int             `db:"tasks_completed"`
	TasksFailed     int             `db:"tasks_failed"`
	Disputes        int             `db:"disputes"`
	Slashes         int             `db:"slashes"`
	AgeDays         float64         `db:"age_days"`
	FeedbackCount   int             `db:"reputation_feedback_count"`
	ReputationValue float64         `db:"reputation_value"`
	ArenaReputation sql.NullFloat64 `db:"arena_reputation"`
	TradingWinRate  sql.NullFloat64 `db:"trading_win_rate"`
}

type discoveredRow struct {
	Username   string         `db:"username"`
	Wallet     sql.NullString `db:"wallet"`
	LastPostAt sql.NullTime   `db:"last_post_at"`
	PostCount  int            `db:"post_count"`
}

// Both candidate queries scan their full tables. The composite ordering is
// only known after scoring in-process, so the page limit cannot be pushed
// into SQL without dropping potential top scorers.
const joinSQL = `
SELECT m.username,
       m.wallet,
       m.tasks_completed, m.tasks_failed, m.disputes, m.slashes,
       COALESCE(EXTRACT(EPOCH FROM (now() - m.first_seen_on_chain)) / 86400, 0) AS age_days,
       m.reputation_feedback_count, m.reputation_value,
       a.reputation AS arena_reputation,
       p.trading_win_rate
FROM marketplace_agents m
LEFT JOIN arena_fighters a ON lower(a.name) = m.username
LEFT JOIN portfolio_snapshots p ON p.wallet = m.wallet
ORDER BY m.username`

const discoveredOnlySQL = `
SELECT d.username, d.wallet, d.last_post_at, d.post_count
FROM discovered_agents d
WHERE NOT EXISTS (SELECT 1 FROM marketplace_agents m WHERE m.username = d.username)
ORDER BY d.username`

// Top returns the ranked leaderboard page. Entries whose score cannot be
// computed sort last; the requested limit is clamped into [1,100].
func (v *View) Top(ctx context.Context, limit int) ([]Entry, error) {
	limit = ClampLimit(limit)

	var joined []joinedRow
	if err := v.db.SelectContext(ctx, &joined, joinSQL); err != nil {
		return nil, err
	}
	var discovered []discoveredRow
	if err := v.db.SelectContext(ctx, &discovered, discoveredOnlySQL); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(joined)+len(discovered))
	for _, r := range joined {
		entries = append(entries, v.composeMarketplace(r))
	}
	for _, d := range discovered {
		entries = append(entries, composeDiscovered(d))
	}

	// Stable sort preserves the join's username order for ties and keeps
	// unscorable entries at the bottom.
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Score, entries[j].Score
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

func (v *View) composeMarketplace(r joinedRow) Entry {
	e := Entry{Username: r.Username}
	if r.Wallet.Valid {
		w := r.Wallet.String
		e.Wallet = &w
	}

	scored := scoring.CalculateScore(scoring.Metrics{
		TasksCompleted: r.TasksCompleted,
		TasksFailed:    r.TasksFailed,
		Disputes:       r.Disputes,
		Slashes:        r.Slashes,
		AgeDays:        r.AgeDays,
	})
	e.Breakdown.Base = scored.Score
	e.Breakdown.Provenance = ProvenanceOnChain
	if r.ArenaReputation.Valid {
		e.Breakdown.ArenaJoined = true
		e.Breakdown.DebateBonus = scoring.DebateBonus(r.ArenaReputation.Float64)
	}
	if r.TradingWinRate.Valid {
		e.Breakdown.WinRate = r.TradingWinRate.Float64
	}

	composite := scored.Score + e.Breakdown.DebateBonus
	if composite < scoring.MinScore {
		composite = scoring.MinScore
	}
	if composite > scoring.MaxScore {
		composite = scoring.MaxScore
	}
	e.Score = &composite
	e.Tier = scoring.TierForScore(composite)
	return e
}

func composeDiscovered(d discoveredRow) Entry {
	e := Entry{Username: d.Username}
	if d.Wallet.Valid {
		w := d.Wallet.String
		e.Wallet = &w
	}
	act := scoring.Activity{Username: d.Username, PostsInFeed: d.PostCount}
	if d.LastPostAt.Valid {
		t := d.LastPostAt.Time
		act.LastPostAt = &t
	}
	scored := scoring.CalculateActivityScore(act)
	e.Breakdown.Base = scored.Score
	e.Breakdown.Provenance = ProvenanceActivity
	score := scored.Score
	e.Score = &score
	e.Tier = scored.Tier
	return e
}
