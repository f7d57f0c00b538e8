package database

import (
	"time"

	"github.com/google/uuid"
)

// MarketplaceAgent represents one row of the 'marketplace_agents' table.
// Rows are owned exclusively by the marketplace sync job; the stable key
// is the lowercased, trimmed username.
type MarketplaceAgent struct {
	Username         string     `db:"username"`
	DisplayName      *string    `db:"display_name"` // *string for nullable columns
	Wallet           *string    `db:"wallet"`
	MarketCap        float64    `db:"market_cap"`
	Holders          int        `db:"holders"`
	Verified         bool       `db:"verified"`
	FeedbackCount    int        `db:"reputation_feedback_count"`
	ReputationValue  float64    `db:"reputation_value"`
	TasksCompleted   int        `db:"tasks_completed"`
	TasksFailed      int        `db:"tasks_failed"`
	Disputes         int        `db:"disputes"`
	Slashes          int        `db:"slashes"`
	FirstSeenOnChain *time.Time `db:"first_seen_on_chain"`
	SyncedAt         time.Time  `db:"synced_at"`
}

// ArenaFighter represents one row of the 'arena_fighters' table, keyed by
// the arena's numeric fighter id.
type ArenaFighter struct {
	FighterID    int64     `db:"fighter_id"`
	Name         string    `db:"name"`
	Wins         int       `db:"wins"`
	Losses       int       `db:"losses"`
	TotalFights  int       `db:"total_fights"`
	AvgJuryScore float64   `db:"avg_jury_score"`
	Rank         *int      `db:"rank"`
	Reputation   float64   `db:"reputation"`
	SyncedAt     time.Time `db:"synced_at"`
}

// PortfolioSnapshot represents one row of the 'portfolio_snapshots' table,
// keyed by the lowercased wallet address.
type PortfolioSnapshot struct {
	Wallet            string    `db:"wallet"`
	Username          *string   `db:"username"`
	PortfolioValueUsd float64   `db:"portfolio_value_usd"`
	TradingWinRate    float64   `db:"trading_win_rate"`
	SyncedAt          time.Time `db:"synced_at"`
}

// DiscoveredAgent represents the wallet-less activity path: agents seen in
// the marketplace feed before any on-chain metrics exist for them.
type DiscoveredAgent struct {
	Username   string     `db:"username"`
	Wallet     *string    `db:"wallet"`
	LastPostAt *time.Time `db:"last_post_at"`
	PostCount  int        `db:"post_count"`
	SyncedAt   time.Time  `db:"synced_at"`
}

// APIKey represents the 'api_keys' table. Only a bcrypt hash of the full key
// is stored; lookup is by the short prefix.
type APIKey struct {
	ID         uuid.UUID  `db:"id"`
	Name       string     `db:"name"`
	KeyPrefix  string     `db:"key_prefix"`
	HashedKey  string     `db:"hashed_key"`
	LastUsedAt *time.Time `db:"last_used_at"`
	ExpiresAt  *time.Time `db:"expires_at"`
	RevokedAt  *time.Time `db:"revoked_at"`
	CreatedAt  time.Time  `db:"created_at"`
}
