package sync

import (
	"context"

	database "github.com/AgentRank/agentrank-backend/internal"
	"github.com/jmoiron/sqlx"
)

// Upserter persists canonical rows with last-writer-wins, whole-row-overwrite
// semantics: on conflict every mapped column is replaced with the incoming
// value (explicit NULLs included) and synced_at is refreshed, so re-applying
// identical upstream data converges to identical row content. The table's
// uniqueness constraint on the identity key is the sole duplicate guard.
type Upserter struct {
	db *sqlx.DB
}

func NewUpserter(db *sqlx.DB) *Upserter { return &Upserter{db: db} }

const upsertMarketplaceSQL = `
INSERT INTO marketplace_agents (
    username, display_name, wallet, market_cap, holders, verified,
    reputation_feedback_count, reputation_value,
    tasks_completed, tasks_failed, disputes, slashes,
    first_seen_on_chain, synced_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now())
ON CONFLICT (username) DO UPDATE SET
    display_name = EXCLUDED.display_name,
    wallet = EXCLUDED.wallet,
    market_cap = EXCLUDED.market_cap,
    holders = EXCLUDED.holders,
    verified = EXCLUDED.verified,
    reputation_feedback_count = EXCLUDED.reputation_feedback_count,
    reputation_value = EXCLUDED.reputation_value,
    tasks_completed = EXCLUDED.tasks_completed,
    tasks_failed = EXCLUDED.tasks_failed,
    disputes = EXCLUDED.disputes,
    slashes = EXCLUDED.slashes,
    first_seen_on_chain = EXCLUDED.first_seen_on_chain,
    synced_at = now()`

func (u *Upserter) MarketplaceAgent(ctx context.Context, a database.MarketplaceAgent) error {
	_, err := u.db.ExecContext(ctx, upsertMarketplaceSQL,
		a.Username, a.DisplayName, a.Wallet, a.MarketCap, a.Holders, a.Verified,
		a.FeedbackCount, a.ReputationValue,
		a.TasksCompleted, a.TasksFailed, a.Disputes, a.Slashes,
		a.FirstSeenOnChain)
	return err
}

const upsertArenaSQL = `
INSERT INTO arena_fighters (
    fighter_id, name, wins, losses, total_fights, avg_jury_score, rank, reputation, synced_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
ON CONFLICT (fighter_id) DO UPDATE SET
    name = EXCLUDED.name,
    wins = EXCLUDED.wins,
    losses = EXCLUDED.losses,
    total_fights = EXCLUDED.total_fights,
    avg_jury_score = EXCLUDED.avg_jury_score,
    rank = EXCLUDED.rank,
    reputation = EXCLUDED.reputation,
    synced_at = now()`

func (u *Upserter) ArenaFighter(ctx context.Context, f database.ArenaFighter) error {
	_, err := u.db.ExecContext(ctx, upsertArenaSQL,
		f.FighterID, f.Name, f.Wins, f.Losses, f.TotalFights, f.AvgJuryScore, f.Rank, f.Reputation)
	return err
}

const upsertPortfolioSQL = `
INSERT INTO portfolio_snapshots (
    wallet, username, portfolio_value_usd, trading_win_rate, synced_at
) VALUES ($1,$2,$3,$4,now())
ON CONFLICT (wallet) DO UPDATE SET
    username = EXCLUDED.username,
    portfolio_value_usd = EXCLUDED.portfolio_value_usd,
    trading_win_rate = EXCLUDED.trading_win_rate,
    synced_at = now()`

func (u *Upserter) Portfolio(ctx context.Context, p database.PortfolioSnapshot) error {
	_, err := u.db.ExecContext(ctx, upsertPortfolioSQL,
		p.Wallet, p.Username, p.PortfolioValueUsd, p.TradingWinRate)
	return err
}

const upsertDiscoveredSQL = `
INSERT INTO discovered_agents (
    username, wallet, last_post_at, post_count, synced_at
) VALUES ($1,$2,$3,$4,now())
ON CONFLICT (username) DO UPDATE SET
    wallet = EXCLUDED.wallet,
    last_post_at = EXCLUDED.last_post_at,
    post_count = EXCLUDED.post_count,
    synced_at = now()`

func (u *Upserter) DiscoveredAgent(ctx context.Context, d database.DiscoveredAgent) error {
	_, err := u.db.ExecContext(ctx, upsertDiscoveredSQL,
		d.Username, d.Wallet, d.LastPostAt, d.PostCount)
	return err
}

// RowCount reports the total persisted rows across all source tables, for
// the run summary's dbCount field.
func (u *Upserter) RowCount(ctx context.Context) (int, error) {
	var n int
	err := u.db.GetContext(ctx, &n, `
        SELECT (SELECT count(*) FROM marketplace_agents)
             + (SELECT count(*) FROM arena_fighters)
             + (SELECT count(*) FROM portfolio_snapshots)
             + (SELECT count(*) FROM discovered_agents)`)
	return n, err
}
