package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers"
	"github.com/ignatzorin/escrow-backend/internal/http/middleware"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	proposalHandler *handlers.ProposalHandler,
	contractHandler *handlers.ContractHandler,
	milestoneHandler *handlers.MilestoneHandler,
	escrowHandler *handlers.EscrowHandler,
	disputeHandler *handlers.DisputeHandler,
	notificationHandler *handlers.NotificationHandler,
	adminHandler *handlers.AdminHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// WebSocket авторизуется токеном в query, без auth middleware.
	api.GET("/ws", wsHandler.Handle)

	// Webhook шлюза приходит без авторизации; от перебора session_id
	// защищает rate limit.
	webhook := api.Group("/payments")
	webhook.Use(middleware.RateLimitMiddleware(cfg.WebhookRateLimit, cfg.RateLimitPeriod))
	{
		webhook.POST("/webhook", escrowHandler.Webhook)
	}

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.POST("/proposals", proposalHandler.Create)
		protected.GET("/proposals", proposalHandler.List)
		protected.GET("/proposals/:id", middleware.UUIDValidator("id"), proposalHandler.Get)
		protected.POST("/proposals/:id/decide", middleware.UUIDValidator("id"), proposalHandler.Decide)
		protected.POST("/proposals/:id/withdraw", middleware.UUIDValidator("id"), proposalHandler.Withdraw)

		protected.POST("/contracts/from-proposal", contractHandler.CreateFromProposal)
		protected.GET("/contracts", contractHandler.List)
		protected.GET("/contracts/:id", middleware.UUIDValidator("id"), contractHandler.Get)
		protected.POST("/contracts/:id/sign", middleware.UUIDValidator("id"), contractHandler.Sign)
		protected.POST("/contracts/:id/complete", middleware.UUIDValidator("id"), contractHandler.Complete)
		protected.POST("/contracts/:id/cancel", middleware.UUIDValidator("id"), contractHandler.Cancel)
		protected.POST("/contracts/:id/milestones", middleware.UUIDValidator("id"), contractHandler.AddMilestone)
		protected.PUT("/contracts/:id/auto-release", middleware.UUIDValidator("id"), contractHandler.SetAutoRelease)
		protected.POST("/contracts/:id/fund", middleware.UUIDValidator("id"), escrowHandler.Fund)

		milestones := protected.Group("/contracts/:id/milestones/:milestoneId")
		milestones.Use(middleware.UUIDValidator("id"), middleware.UUIDValidator("milestoneId"))
		{
			milestones.POST("/submit", milestoneHandler.Submit)
			milestones.POST("/approve", milestoneHandler.Approve)
			milestones.POST("/revision", milestoneHandler.RequestRevision)
			milestones.POST("/release", milestoneHandler.Release)
			milestones.POST("/refund", milestoneHandler.Refund)
		}

		protected.GET("/payments/checkout/:sessionId/status", escrowHandler.CheckoutStatus)
		protected.GET("/payments/transactions", escrowHandler.Transactions)

		protected.POST("/disputes", disputeHandler.Open)
		protected.GET("/disputes", disputeHandler.List)
		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), disputeHandler.Get)
		protected.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), disputeHandler.Resolve)

		protected.GET("/notifications", notificationHandler.List)
		protected.GET("/notifications/unread-count", notificationHandler.CountUnread)
		protected.POST("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
		protected.POST("/notifications/read-all", notificationHandler.MarkAllAsRead)

		protected.POST("/admin/auto-release/run", adminHandler.RunAutoRelease)
	}

	return r
}
