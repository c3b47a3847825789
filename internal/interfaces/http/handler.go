package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"brigadebot/internal/infrastructure"
	"brigadebot/internal/interfaces"
	"brigadebot/internal/logger"
	"brigadebot/internal/usecases"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies wires the HTTP layer to the rest of the application.
type Dependencies struct {
	WebhookSecret string
	Deduper       infrastructure.UpdateDeduper
	Dispatcher    UpdateDispatcher

	Auth       *usecases.AuthUsecase
	Membership *usecases.MembershipUsecase
	Invites    *usecases.InviteUsecase
	Tasks      *usecases.TaskUsecase
	Reports    *usecases.ReportUsecase
	Actions    interfaces.ActionLog

	DB         Pinger
	Middleware *Middleware
	Log        *logger.Logger
}

func SetupRoutes(r *gin.Engine, deps Dependencies) {
	log := deps.Log.Named("http")
	telegramHandler := NewTelegramHandler(deps.WebhookSecret, deps.Deduper, deps.Dispatcher, log)
	adminHandler := NewAdminHandler(deps.Membership, deps.Invites, deps.Tasks, deps.Reports, deps.Actions, log)
	mw := deps.Middleware

	r.Use(RequestID())
	r.Use(AccessLog(log))
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(1 << 20))

	r.GET("/health", healthHandler(deps.DB))
	r.POST("/webhook/:secret", telegramHandler.Webhook)

	authGroup := r.Group("/api/auth")
	authGroup.Use(mw.CORSMiddleware())
	{
		authGroup.POST("/login", loginHandler(deps.Auth, log))
	}

	api := r.Group("/api")
	api.Use(mw.CORSMiddleware())
	api.Use(mw.AuthRequired())
	api.Use(mw.RateLimitPerUser(5, 10))
	{
		api.GET("/teams", adminHandler.ListTeams)
		api.POST("/teams", adminHandler.CreateTeam)
		api.GET("/teams/:id/invite", adminHandler.TeamInvite)
		api.GET("/teams/:id/invite.png", adminHandler.TeamInviteQR)

		api.GET("/users", adminHandler.ListUsers)
		api.PUT("/users/:tg_user_id/role", adminHandler.UpdateUserRole)

		api.GET("/task-actions", adminHandler.ListTaskActions)
		api.GET("/deals", adminHandler.ListDeals)
		api.GET("/deals/stages", adminHandler.ListDealStages)
		api.POST("/reports/run", adminHandler.RunReport)
	}
}

func healthHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "down"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func loginHandler(auth *usecases.AuthUsecase, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var loginReq struct {
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&loginReq); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		token, err := auth.Login(loginReq.Password)
		if errors.Is(err, usecases.ErrAuthDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Admin API is not configured"})
			return
		}
		if err != nil {
			log.Warnw("failed admin login", "client_ip", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}
