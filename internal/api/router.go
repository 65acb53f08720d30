package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupHub/internal/handler"
	"github.com/Gopher0727/GroupHub/utils/ratelimit"
)

// RegisterRoutes registers all API routes
func RegisterRoutes(
	r *gin.Engine,
	mm *MiddlewareManager,
	groupHandler *handler.GroupHandler,
	memberHandler *handler.MemberHandler,
	inviteHandler *handler.InviteHandler,
) {
	api := r.Group("/api/v1")
	api.Use(mm.JWTAuth())

	groups := api.Group("/groups")
	{
		groups.POST("", groupHandler.CreateGroup)
		groups.GET("", groupHandler.ListGroups)
		groups.GET("/:id", groupHandler.GetGroup)
		groups.PATCH("/:id", groupHandler.UpdateInfo)
		groups.PATCH("/:id/settings", groupHandler.UpdateSettings)
		groups.POST("/:id/archive", groupHandler.Archive)
		groups.DELETE("/:id", groupHandler.Delete)

		groups.POST("/:id/pins", groupHandler.Pin)
		groups.DELETE("/:id/pins/:messageId", groupHandler.Unpin)
		groups.POST("/:id/announcements", groupHandler.Announce)
		groups.GET("/:id/audit", groupHandler.AuditTrail)
		groups.GET("/:id/analytics", groupHandler.Analytics)

		// 成员管理
		groups.POST("/:id/members", memberHandler.Add)
		groups.DELETE("/:id/members/:userId", memberHandler.Remove)
		groups.POST("/:id/members/:userId/promote", memberHandler.Promote)
		groups.POST("/:id/members/:userId/demote", memberHandler.Demote)
		groups.PUT("/:id/members/:userId/title", memberHandler.SetTitle)
		groups.POST("/:id/leave", memberHandler.Leave)
		groups.POST("/:id/activity", memberHandler.Activity)

		// 邀请链接
		groups.POST("/:id/invites", inviteHandler.Create)
	}

	invites := api.Group("/invites")
	{
		invites.DELETE("/:linkId", inviteHandler.Revoke)
		invites.POST("/:code/join", mm.RateLimiterByEndpoint(ratelimit.EndpointJoin), inviteHandler.Join)
	}
}
