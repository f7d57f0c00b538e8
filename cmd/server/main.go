package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	database "github.com/AgentRank/agentrank-backend/internal"
	"github.com/AgentRank/agentrank-backend/internal/api"
	"github.com/AgentRank/agentrank-backend/internal/bus"
	"github.com/AgentRank/agentrank-backend/internal/leaderboard"
	syncer "github.com/AgentRank/agentrank-backend/internal/sync"
	"github.com/AgentRank/agentrank-backend/internal/verify"
)

func main() {
	db := database.Connect()

	port := os.Getenv("PORT")
	if port == "" {
		port = os.Getenv("AGENTRANK_PORT")
	}
	if port == "" {
		port = "8081"
	}
	log.Println("Starting AgentRank backend on :" + port + "...")
	router := gin.Default()

	// OpenTelemetry tracing (optional)
	if shutdown, ok := api.SetupOTelFromEnv(); ok {
		defer shutdown(context.Background())
		router.Use(otelgin.Middleware("agentrank-backend"))
	}

	// Event bus: NATS when configured, in-process otherwise.
	var eventBus bus.Bus = bus.NewLocalBus()
	if url := os.Getenv("AGENTRANK_NATS_URL"); url != "" {
		if nb, err := bus.NewNatsBus(url); err == nil {
			eventBus = nb
			defer eventBus.Close()
		} else {
			log.Printf("nats bus unavailable, using local bus: %v", err)
		}
	}

	// Every completed run lands in the server log regardless of trigger
	// (manual POST, cron, or a sibling replica over NATS).
	if _, err := eventBus.Subscribe(syncer.TopicSyncCompleted, func(ctx context.Context, e bus.Event) {
		log.Printf("sync completed: %s", e.Payload)
	}); err != nil {
		log.Printf("sync event subscription failed: %v", err)
	}

	// Wire the pipeline and read surfaces.
	api.SetOrchestrator(api.NewOrchestratorFromEnv(db, eventBus))
	api.SetLeaderboardView(leaderboard.NewView(db))
	api.SetVerifyGateway(verify.NewGateway(db, os.Getenv("AGENTRANK_ATTESTOR_URL")))
	api.StartSyncScheduler()

	router.Use(api.MetricsMiddleware())
	router.Use(api.RequestIDMiddleware())

	config := cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if origins := os.Getenv("AGENTRANK_CORS_ORIGINS"); origins != "" {
		config.AllowAllOrigins = false
		parts := strings.Split(origins, ",")
		allow := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				allow = append(allow, s)
			}
		}
		if len(allow) > 0 {
			config.AllowOrigins = allow
		}
	}
	router.Use(cors.New(config))

	// Health and readiness
	router.GET("/healthz", func(c *gin.Context) { c.Status(200) })
	router.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 300*time.Millisecond)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(503, gin.H{"ready": false})
			return
		}
		c.JSON(200, gin.H{"ready": true})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Sync trigger: bearer shared secret, no other auth applies.
	syncRoutes := router.Group("/v2")
	syncRoutes.Use(api.SyncAuthMiddleware())
	{
		syncRoutes.POST("/sync", api.HandleSync)
	}

	// Public read/utility surface, rate limited.
	publicRoutes := router.Group("/v2")
	publicRoutes.Use(api.RateLimitMiddlewareFromEnv())
	{
		publicRoutes.GET("/leaderboard", api.GetLeaderboard)
		publicRoutes.POST("/wallets", api.GenerateWallet)
		publicRoutes.POST("/keys", api.CreateAPIKey)
	}

	// Scoring surface requires an issued API key.
	scoredRoutes := router.Group("/v2")
	scoredRoutes.Use(api.ApiKeyAuthMiddleware())
	scoredRoutes.Use(api.RateLimitMiddlewareFromEnv())
	{
		scoredRoutes.GET("/agents/:id/score", api.GetAgentScore)
		scoredRoutes.POST("/agents/:id/verify", api.VerifyAgentScore)
	}

	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
