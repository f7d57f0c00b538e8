package api

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
)

// POST /v2/wallets — generates a fresh ed25519 key pair and returns it to the
// caller. Nothing is persisted and nothing is logged: custody stays entirely
// with the caller.
func GenerateWallet(c *gin.Context) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"publicKey":  hex.EncodeToString(pub),
		"privateKey": hex.EncodeToString(priv.Seed()),
		"algorithm":  "ed25519",
	})
}
