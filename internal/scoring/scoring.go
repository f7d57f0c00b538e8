// Package scoring maps agent metrics to a composite reputation score and a
// human-readable tier. Every function here is pure and total: no I/O, no
// shared state, and no error paths: out-of-range inputs are clamped, never
// rejected. Identical inputs always produce identical outputs.
package scoring

import (
	"math"
	"time"
)

// Score bounds for every scoring path.
const (
	MinScore = 300
	MaxScore = 950
)

// Tier labels, highest first.
const (
	TierAAA       = "AAA"
	TierAA        = "AA"
	TierA         = "A"
	TierBBB       = "BBB"
	TierBB        = "BB"
	TierRiskWatch = "Risk Watch"
)

// Metrics is the deterministic-scoring input. Counters are expected to be
// non-negative; negative values are treated as zero.
type Metrics struct {
	TasksCompleted int     `json:"tasksCompleted"`
	TasksFailed    int     `json:"tasksFailed"`
	Disputes       int     `json:"disputes"`
	Slashes        int     `json:"slashes"`
	AgeDays        float64 `json:"ageDays"`
}

// Activity is the wallet-less fallback input: feed presence only, no
// verifiable task data.
type Activity struct {
	Username    string
	LastPostAt  *time.Time
	PostsInFeed int
}

// ScoredAgent is derived, never persisted as ground truth: it must always be
// recomputable from its originating metrics.
type ScoredAgent struct {
	Score          int     `json:"score"`
	Tier           string  `json:"tier"`
	CompletionRate float64 `json:"completionRate"`
	Metrics        Metrics `json:"metrics"`
}

// CalculateScore applies the deterministic reputation formula:
//
//	700 + completionRate*200 - disputes*25 - slashes*50 + min(ageDays/30,1)*50
//
// The raw value is clamped to [300,950] before rounding; the order matters at
// the boundaries and is part of the contract.
func CalculateScore(m Metrics) ScoredAgent {
	completed := nonNegative(m.TasksCompleted)
	failed := nonNegative(m.TasksFailed)
	disputes := nonNegative(m.Disputes)
	slashes := nonNegative(m.Slashes)
	ageDays := math.Max(m.AgeDays, 0)

	rate := 0.0
	if completed+failed > 0 {
		rate = float64(completed) / float64(completed+failed)
	}

	ageBonus := math.Min(ageDays/30, 1) * 50
	raw := 700 + rate*200 - float64(disputes)*25 - float64(slashes)*50 + ageBonus
	score := int(math.Round(clampFloat(raw, MinScore, MaxScore)))

	return ScoredAgent{
		Score:          score,
		Tier:           TierForScore(score),
		CompletionRate: rate,
		Metrics:        m,
	}
}

// CalculateActivityScore scores an agent from feed activity alone. Used when
// no on-chain metrics exist; completionRate is fixed at 0 to signal that no
// verifiable task data backs the score.
func CalculateActivityScore(a Activity) ScoredAgent {
	hours := hoursSince(a.LastPostAt)
	recency := math.Max(0, 100-hours*4)
	posts := clampInt(a.PostsInFeed, 0, 20)

	raw := 400 + recency*3 + float64(posts*4)*2
	score := clampInt(int(math.Round(raw)), MinScore, MaxScore)

	return ScoredAgent{Score: score, Tier: TierForScore(score)}
}

// TierForScore evaluates the ordered thresholds from highest to lowest; the
// first satisfied threshold wins, so the mapping is monotone in the score.
func TierForScore(score int) string {
	switch {
	case score >= 850:
		return TierAAA
	case score >= 800:
		return TierAA
	case score >= 750:
		return TierA
	case score >= 700:
		return TierBBB
	case score >= 650:
		return TierBB
	default:
		return TierRiskWatch
	}
}

// DebateBonus converts an arena reputation value into a leaderboard bonus in
// [-40, 40]. The arena's rating is centered at 980 with a 220-point band.
func DebateBonus(arenaReputation float64) int {
	// Clamp while still a float: converting an out-of-range float64 to int
	// is implementation-defined, so the bound must apply first.
	bonus := math.Round((arenaReputation - 980) / 220 * 40)
	return int(clampFloat(bonus, -40, 40))
}

// hoursSince returns hours elapsed since t; a missing or non-positive
// timestamp is treated as one year old.
func hoursSince(t *time.Time) float64 {
	if t == nil || t.UnixMilli() <= 0 {
		return 8760
	}
	return math.Max(0, time.Since(*t).Hours())
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func clampFloat(f, lo, hi float64) float64 {
	return math.Min(math.Max(f, lo), hi)
}
