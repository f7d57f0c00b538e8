package sync

import (
	"strconv"
	"strings"
	"time"

	database "github.com/AgentRank/agentrank-backend/internal"
)

// The normalizers below are the only code that touches untyped upstream JSON.
// Each converts one raw item into a canonical row, defaulting missing numeric
// fields to 0 and missing optional strings to NULL. Items without a usable
// identity key are dropped (the caller counts them as skipped). Nothing
// untyped leaks past this file.

func normalizeMarketplaceAgent(item map[string]any) (database.MarketplaceAgent, bool) {
	username := strings.TrimSpace(firstString(item, "username", "handle"))
	if username == "" {
		return database.MarketplaceAgent{}, false
	}
	row := database.MarketplaceAgent{
		Username:        strings.ToLower(username),
		DisplayName:     optString(item, "displayName", "name"),
		Wallet:          optLowerString(item, "wallet", "address"),
		MarketCap:       asFloat(item["marketCap"]),
		Holders:         asInt(item["holders"]),
		Verified:        asBool(item["verified"]),
		FeedbackCount:   asInt(item["feedbackCount"]),
		ReputationValue: asFloat(item["reputationValue"]),
		TasksCompleted:  asInt(item["tasksCompleted"]),
		TasksFailed:     asInt(item["tasksFailed"]),
		Disputes:        asInt(item["disputes"]),
		Slashes:         asInt(item["slashes"]),
	}
	if t := epochMillis(item["firstSeenOnChain"]); t != nil {
		row.FirstSeenOnChain = t
	}
	return row, true
}

func normalizeArenaFighter(item map[string]any) (database.ArenaFighter, bool) {
	id := int64(asInt(item["id"]))
	if id <= 0 {
		id = int64(asInt(item["fighterId"]))
	}
	if id <= 0 {
		return database.ArenaFighter{}, false
	}
	row := database.ArenaFighter{
		FighterID:    id,
		Name:         strings.TrimSpace(firstString(item, "name", "username")),
		Wins:         asInt(item["wins"]),
		Losses:       asInt(item["losses"]),
		TotalFights:  asInt(item["totalFights"]),
		AvgJuryScore: asFloat(item["avgJuryScore"]),
		Reputation:   asFloat(item["reputation"]),
	}
	if r := asInt(item["leaderboardRank"]); r > 0 {
		row.Rank = &r
	} else if r := asInt(item["rank"]); r > 0 {
		row.Rank = &r
	}
	return row, true
}

func normalizePortfolio(item map[string]any) (database.PortfolioSnapshot, bool) {
	wallet := strings.TrimSpace(firstString(item, "wallet", "address"))
	if wallet == "" {
		return database.PortfolioSnapshot{}, false
	}
	return database.PortfolioSnapshot{
		Wallet:            strings.ToLower(wallet),
		Username:          optString(item, "username"),
		PortfolioValueUsd: asFloat(item["portfolioValueUsd"]),
		TradingWinRate:    asFloat(item["tradingWinRate"]),
	}, true
}

func normalizeDiscovered(item map[string]any) (database.DiscoveredAgent, bool) {
	username := strings.TrimSpace(firstString(item, "username", "author"))
	if username == "" {
		return database.DiscoveredAgent{}, false
	}
	return database.DiscoveredAgent{
		Username:   strings.ToLower(username),
		Wallet:     optLowerString(item, "wallet"),
		LastPostAt: epochMillis(item["lastPostAt"]),
		PostCount:  asInt(item["postCount"]),
	}, true
}

// --- defensive accessors ---

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func optString(m map[string]any, keys ...string) *string {
	if s := strings.TrimSpace(firstString(m, keys...)); s != "" {
		return &s
	}
	return nil
}

func optLowerString(m map[string]any, keys ...string) *string {
	if s := strings.ToLower(strings.TrimSpace(firstString(m, keys...))); s != "" {
		return &s
	}
	return nil
}

// asFloat accepts JSON numbers and numeric strings; anything else is 0.
func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	return 0
}

func asInt(v any) int {
	return int(asFloat(v))
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// epochMillis converts an epoch-milliseconds number to a timestamp; zero,
// negative, or absent values yield nil.
func epochMillis(v any) *time.Time {
	ms := int64(asFloat(v))
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
