package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"voice-call-agent/internal/httpapi"
	"voice-call-agent/internal/rbac"
	"voice-call-agent/internal/telephony"
)

type routeDeps struct {
	Handlers httpapi.Handlers
	Webhooks telephony.WebhookHandler
	AuthMW   gin.HandlerFunc
	Health   func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := d.Handlers

	// public
	r.GET("/healthz", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// LiveKit webhooks are signed with the API secret.
	r.POST("/webhooks/livekit", d.Webhooks.Handle)

	authGroup := r.Group("/v1/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(d.AuthMW, rbac.RequireIdentity())
	{
		v1.GET("/me", h.Me)

		callsGroup := v1.Group("/calls")
		{
			callsGroup.GET("", rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer), h.ListCalls)
			callsGroup.GET("/active", rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer), h.ActiveCalls)
			callsGroup.GET("/:call_id", rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer), h.GetCall)
			callsGroup.POST("", rbac.RequireAnyRole(rbac.RoleOperator), h.DispatchCall)
		}

		reports := v1.Group("/reports")
		reports.Use(rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer))
		{
			reports.GET("/summary", h.CallsSummary)
			reports.GET("/dashboard", h.Dashboard)
		}

		// Media worker endpoints. Admins are not let in by default.
		sessions := v1.Group("/sessions")
		sessions.Use(rbac.RequireAnyRole(rbac.RoleWorker))
		{
			sessions.POST("/:room/events", h.SessionEvent)
			sessions.POST("/:room/end", h.EndSession)
			sessions.POST("/:room/transfer", h.TransferSession)
		}
	}
}
