package server

import (
	"net/http"
	"time"

	"github.com/vnyvk2/ChatServiceApp/internal/auth"
	"github.com/vnyvk2/ChatServiceApp/internal/config"
	"github.com/vnyvk2/ChatServiceApp/internal/metrics"
	"github.com/vnyvk2/ChatServiceApp/internal/mw"
	"github.com/vnyvk2/ChatServiceApp/internal/service"
	"github.com/vnyvk2/ChatServiceApp/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, gdb *gorm.DB, hub *ws.Hub, h *Handler,
	memberSvc *service.MembershipService, msgSvc *service.MessageService, presenceSvc *service.PresenceService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 控制单个 IP+路由的速率，避免服务被刷爆。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, gdb))

	authed.POST("/rooms", h.CreateRoom)
	authed.GET("/rooms", h.ListRooms)
	authed.GET("/me/rooms", h.MyRooms)
	authed.GET("/rooms/:id", h.GetRoom)
	authed.PATCH("/rooms/:id", h.UpdateRoom)
	authed.DELETE("/rooms/:id", h.DeleteRoom)
	authed.POST("/rooms/:id/join", h.JoinRoom)
	authed.POST("/rooms/:id/leave", h.LeaveRoom)
	authed.GET("/rooms/:id/members", h.RoomMembers)
	authed.PUT("/rooms/:id/members/:userID/role", h.SetMemberRole)
	authed.GET("/rooms/:id/messages", h.ListMessages)
	authed.POST("/rooms/:id/messages", h.SendMessage)
	authed.POST("/direct-messages", h.CreateDirectMessage)
	authed.POST("/messages/decrypt", h.DecryptMessage)
	authed.PUT("/users/me/status", h.SetStatus)
	authed.GET("/users/online", h.OnlineUsers)

	r.GET("/ws", ws.Serve(hub, gdb, cfg, memberSvc, msgSvc, presenceSvc))

	return r
}
