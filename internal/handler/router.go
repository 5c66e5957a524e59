package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/helmsan/kompass/internal/middleware"
)

type RouterDeps struct {
	Search      *SearchHandler
	Zeitgeist   *ZeitgeistHandler
	Ingest      *IngestHandler
	Feedback    *FeedbackHandler
	TokenSecret []byte
	// RateWindow is the per (client, scope, route) request spacing; zero
	// disables the limiter.
	RateWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	scoped := api.Group("")
	scoped.Use(middleware.ScopeAuth(deps.TokenSecret))
	scoped.Use(middleware.RateLimit(deps.RateWindow))

	scoped.POST("/search", deps.Search.Search)

	scoped.GET("/suggestions", deps.Zeitgeist.Suggestions)
	scoped.GET("/trending", deps.Zeitgeist.Trending)
	scoped.POST("/refresh", deps.Zeitgeist.Refresh)
	scoped.GET("/refresh/runs", deps.Zeitgeist.RecentRuns)

	scoped.POST("/ingest", deps.Ingest.Ingest)
	scoped.POST("/feedback", deps.Feedback.Add)
}
