package api

import (
	"errors"
	"net/http"

	"github.com/AgentRank/agentrank-backend/internal/verify"
	"github.com/gin-gonic/gin"
)

// Stable machine-readable error codes. Clients branch on these, not on the
// human-readable message, so they never change meaning once shipped.
const (
	CodeValidation            = "validation_error"
	CodeUnauthorized          = "unauthorized"
	CodeNotFound              = "not_found"
	CodeRateLimited           = "rate_limited"
	CodeUpstreamNotConfigured = "upstream_not_configured"
	CodeUpstream              = "upstream_error"
	CodeUnreachable           = "upstream_unreachable"
	CodeInternal              = "internal_error"
)

func abortError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "error": msg})
}

// internalError deliberately hides the underlying error from the response;
// details go to logs only.
func internalError(c *gin.Context) {
	abortError(c, http.StatusInternalServerError, CodeInternal, "internal server error")
}

// verifyError maps gateway failures to HTTP responses. An attestor refusal
// (upstream_error) and an attestor we never heard from (upstream_unreachable)
// are distinct classes so callers can tell a denial from an outage.
func verifyError(c *gin.Context, err error) {
	var up *verify.UpstreamError
	var un *verify.UnreachableError
	switch {
	case errors.Is(err, verify.ErrNotConfigured):
		abortError(c, http.StatusServiceUnavailable, CodeUpstreamNotConfigured, "attestation service not configured")
	case errors.Is(err, verify.ErrAgentNotFound):
		abortError(c, http.StatusNotFound, CodeNotFound, "agent not found")
	case errors.As(err, &up):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
			"code":           CodeUpstream,
			"error":          up.Message,
			"upstreamStatus": up.Status,
		})
	case errors.As(err, &un):
		abortError(c, http.StatusGatewayTimeout, CodeUnreachable, "attestation service unreachable")
	default:
		internalError(c)
	}
}
