package api

import (
	"errors"
	"net/http"

	"github.com/AgentRank/agentrank-backend/internal/verify"
	"github.com/gin-gonic/gin"
)

var gateway *verify.Gateway

// SetVerifyGateway wires the verifiable-score gateway into the API layer.
func SetVerifyGateway(g *verify.Gateway) { gateway = g }

// GET /v2/agents/:id/score — deterministic score from the currently synced
// rows, with the chosen source disclosed. No attestor call.
func GetAgentScore(c *gin.Context) {
	res, err := gateway.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, verify.ErrAgentNotFound) {
			abortError(c, http.StatusNotFound, CodeNotFound, "agent not found")
			return
		}
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /v2/agents/:id/verify — resolve the reputation source, forward the
// normalized metrics to the external attestor, and return its signed payload
// tagged with provenance.
func VerifyAgentScore(c *gin.Context) {
	res, err := gateway.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		verifyError(c, err)
		return
	}
	signed, err := gateway.Attest(c.Request.Context(), res)
	if err != nil {
		recordAttest("error", res.Provenance)
		verifyError(c, err)
		return
	}
	recordAttest("ok", res.Provenance)
	c.JSON(http.StatusOK, signed)
}
