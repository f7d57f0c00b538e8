package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	database "github.com/AgentRank/agentrank-backend/internal"
	"github.com/AgentRank/agentrank-backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DailyKeyGenLimit bounds how many API keys may be generated for the same
// name within one UTC day.
const DailyKeyGenLimit = 3

type createKeyReq struct {
	Name string `json:"name"`
}

// POST /v2/keys — issue a new API key. The full key is shown exactly once;
// only its bcrypt hash and lookup prefix are stored.
func CreateAPIKey(c *gin.Context) {
	var req createKeyReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		abortError(c, http.StatusBadRequest, CodeValidation, "name required")
		return
	}
	name := strings.ToLower(strings.TrimSpace(req.Name))

	if !allowKeyGen(c.Request.Context(), name) {
		abortError(c, http.StatusTooManyRequests, CodeRateLimited,
			fmt.Sprintf("key generation limit of %d per day reached for this name", DailyKeyGenLimit))
		return
	}

	full, prefix, err := utils.NewAPIKey("agentrank_sk_")
	if err != nil {
		internalError(c)
		return
	}
	hashed, err := utils.HashKey(full)
	if err != nil {
		internalError(c)
		return
	}

	id := uuid.New()
	if _, err := database.DB.Exec(
		`INSERT INTO api_keys (id, name, key_prefix, hashed_key, created_at) VALUES ($1,$2,$3,$4,now())`,
		id, name, prefix, hashed); err != nil {
		internalError(c)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "name": name, "keyPrefix": prefix, "apiKey": full})
}

// --- daily fixed-window counter, Redis-backed with in-memory fallback ---

var (
	keyGenMu     sync.Mutex
	keyGenDay    string
	keyGenCounts = map[string]int{}
)

// allowKeyGen increments the per-name daily counter and reports whether this
// request is within the bound. The Nth call succeeds iff N <= DailyKeyGenLimit.
func allowKeyGen(ctx context.Context, name string) bool {
	day := time.Now().UTC().Format("20060102")
	if rc := getRedisFromEnv(); rc != nil {
		rctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		key := "keygen:" + name + ":" + day
		n, err := rc.Incr(rctx, key).Result()
		if err == nil {
			_ = rc.Expire(rctx, key, 25*time.Hour).Err()
			return n <= DailyKeyGenLimit
		}
		// fall through to the in-memory counter on Redis failure
	}
	keyGenMu.Lock()
	defer keyGenMu.Unlock()
	if keyGenDay != day {
		keyGenDay = day
		keyGenCounts = map[string]int{}
	}
	keyGenCounts[name]++
	return keyGenCounts[name] <= DailyKeyGenLimit
}
