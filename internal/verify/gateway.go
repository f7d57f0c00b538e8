// Package verify resolves which reputation signal underlies a verification
// request and forwards a normalized metrics payload to the external
// attestation service. Every call reflects a fresh signature context, so the
// gateway never retries and never serves a cached result.
package verify

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	database "github.com/AgentRank/agentrank-backend/internal"
	"github.com/AgentRank/agentrank-backend/internal/scoring"
	"github.com/AgentRank/agentrank-backend/internal/utils"
	"github.com/jmoiron/sqlx"
)

// Provenance markers attached to every verification result. Off-chain
// substitution is always disclosed to the caller, never silent.
const (
	ProvenanceOnChain  = "on-chain"
	ProvenanceOffChain = "offchain-attested"
)

// AttestTimeout is the hard ceiling for one attestor call. Single attempt:
// retrying would produce a stale signature context.
const AttestTimeout = 15 * time.Second

var (
	// ErrNotConfigured means no attestor endpoint is set; callers fail fast
	// before any network dial.
	ErrNotConfigured = errors.New("attestation service not configured")
	// ErrAgentNotFound means the identifier matched no synced row.
	ErrAgentNotFound = errors.New("agent not found")
)

// UpstreamError carries a failure status the attestor itself returned.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("attestor returned %d: %s", e.Status, e.Message)
}

// UnreachableError wraps a transport failure or timeout: no authoritative
// answer was received, which callers must treat differently from a refusal.
type UnreachableError struct {
	Err error
}

func (e *UnreachableError) Error() string { return "attestor unreachable: " + e.Err.Error() }
func (e *UnreachableError) Unwrap() error { return e.Err }

// Gateway is the verification boundary: source resolution against the synced
// tables plus the outbound attestor client.
type Gateway struct {
	db       *sqlx.DB
	http     *http.Client
	endpoint string
}

func NewGateway(db *sqlx.DB, endpoint string) *Gateway {
	return &Gateway{
		db:       db,
		http:     &http.Client{Timeout: AttestTimeout},
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

// Resolution is the chosen reputation signal for one agent.
type Resolution struct {
	Username   string          `json:"username"`
	Wallet     *string         `json:"wallet,omitempty"`
	Provenance string          `json:"provenance"`
	Metrics    scoring.Metrics `json:"metrics"`
	Score      int             `json:"score"`
	Tier       string          `json:"tier"`
}

// Resolve picks the reputation source for an agent deterministically: the
// on-chain signal wins when present and non-zero; otherwise the most recent
// synced off-chain snapshot substitutes, tagged as such.
func (g *Gateway) Resolve(ctx context.Context, identifier string) (Resolution, error) {
	id := strings.ToLower(strings.TrimSpace(identifier))
	if id == "" {
		return Resolution{}, ErrAgentNotFound
	}

	var row database.MarketplaceAgent
	err := g.db.GetContext(ctx, &row, `
        SELECT username, display_name, wallet, market_cap, holders, verified,
               reputation_feedback_count, reputation_value,
               tasks_completed, tasks_failed, disputes, slashes,
               first_seen_on_chain, synced_at
        FROM marketplace_agents
        WHERE username = $1 OR wallet = $1
        ORDER BY synced_at DESC
        LIMIT 1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Resolution{}, ErrAgentNotFound
		}
		return Resolution{}, err
	}

	res := Resolution{Username: row.Username, Wallet: row.Wallet}
	if row.FeedbackCount > 0 || row.ReputationValue > 0 {
		res.Provenance = ProvenanceOnChain
	} else {
		res.Provenance = ProvenanceOffChain
	}
	res.Metrics = scoring.Metrics{
		TasksCompleted: row.TasksCompleted,
		TasksFailed:    row.TasksFailed,
		Disputes:       row.Disputes,
		Slashes:        row.Slashes,
		AgeDays:        ageDays(row.FirstSeenOnChain),
	}
	scored := scoring.CalculateScore(res.Metrics)
	res.Score = scored.Score
	res.Tier = scored.Tier
	return res, nil
}

// Attest POSTs the normalized, secret-free payload to the attestor and
// returns its signed result merged with the provenance tag. One attempt,
// hard timeout, no retry.
func (g *Gateway) Attest(ctx context.Context, res Resolution) (map[string]any, error) {
	if g.endpoint == "" {
		return nil, ErrNotConfigured
	}

	input, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	// Canonical key order keeps the attested payload reproducible.
	input = utils.CanonicalizeJSON(input)

	ctx, cancel := context.WithTimeout(ctx, AttestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/attest", bytes.NewReader(input))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, &UnreachableError{Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &UnreachableError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: upstreamMessage(body)}
	}

	signed := map[string]any{}
	if err := json.Unmarshal(body, &signed); err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: "attestor returned non-JSON body"}
	}
	signed["provenance"] = res.Provenance
	return signed, nil
}

func upstreamMessage(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func ageDays(firstSeen *time.Time) float64 {
	if firstSeen == nil {
		return 0
	}
	d := time.Since(*firstSeen).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}
