package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GiftList/internal/handler"
	"github.com/Gopher0727/GiftList/middleware/jwt"
	"github.com/Gopher0727/GiftList/utils/ratelimit"
)

// Handlers are the endpoints mounted by RegisterRoutes. WS may be nil.
type Handlers struct {
	Groups   *handler.GroupHandler
	Items    *handler.ItemHandler
	Messages *handler.MessageHandler
	WS       gin.HandlerFunc
}

// RegisterRoutes registers all API routes
func RegisterRoutes(r *gin.Engine, h Handlers, d Deps) {
	auth := jwt.AuthMiddleware(d.Tokens)

	api := r.Group("/api/v1")
	api.POST("/auth/refresh", jwt.RefreshHandler(d.Tokens))

	protected := api.Group("/")
	protected.Use(auth)
	if d.Limiter != nil {
		protected.Use(ratelimit.Middleware(d.Limiter, d.Rules.API, "api"))
	}
	{
		groups := protected.Group("/groups")
		{
			groups.POST("", h.Groups.CreateGroup)
			groups.GET("", h.Groups.ListGroups)
			groups.GET("/:id", h.Groups.GetGroup)
			groups.PATCH("/:id", h.Groups.RenameGroup)
			groups.DELETE("/:id", h.Groups.DeleteGroup)
			groups.POST("/:id/leave", h.Groups.LeaveGroup)

			// 成员与邀请
			groups.POST("/:id/invites", h.Groups.CreateInvite)
			groups.DELETE("/:id/members/:userId", h.Groups.KickMember)
			groups.PUT("/:id/members/:userId/permissions", h.Groups.SetMemberPermissions)

			// 列表项
			groups.POST("/:id/items", h.Items.AddItem)
			groups.PATCH("/:id/items/:itemId", h.Items.EditItem)
			groups.DELETE("/:id/items/:itemId", h.Items.DeleteItem)
			groups.POST("/:id/items/:itemId/select", h.Items.ToggleSelect)

			// 消息
			send := []gin.HandlerFunc{h.Messages.SendMessage}
			if d.Limiter != nil {
				send = append([]gin.HandlerFunc{ratelimit.Middleware(d.Limiter, d.Rules.Message, "message")}, send...)
			}
			groups.POST("/:id/messages", send...)
			groups.GET("/:id/messages", h.Messages.GetMessages)
			groups.POST("/:id/messages/read", h.Messages.MarkRead)
		}

		protected.POST("/invites/accept", h.Groups.AcceptInvite)
	}

	if h.WS != nil {
		r.GET("/ws", auth, h.WS)
	}
}
