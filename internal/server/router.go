package server

import (
	"net/http"
	"strings"

	"pairchat/internal/auth"
	"pairchat/internal/config"
	"pairchat/internal/metrics"
	"pairchat/internal/mw"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps 是组装 HTTP 引擎所需的全部依赖。Redis 可为空。
type Deps struct {
	Config    config.Config
	DB        *gorm.DB
	Redis     *redis.Client
	Authority *auth.Authority
	Handler   *Handler
	Realtime  http.Handler
	Limiter   *mw.Limiter
}

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw.RequestID())
	r.Use(mw.RequestLogger())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.Secure(mw.SecureOptions(d.Config.Env == "dev")))
	r.Use(mw.CORS(d.Config.Env, strings.Split(d.Config.ClientURL, ",")))

	r.GET("/healthz", Health(d.DB, d.Redis))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := d.Handler
	api := r.Group("/api/v1")
	if d.Limiter != nil {
		// 控制单个 IP+路由的速率，避免接口被刷爆。
		api.Use(mw.RateLimit(d.Limiter))
	}

	api.POST("/auth/register", h.Register)
	api.POST("/auth/verify-otp", h.VerifyOTP)
	api.POST("/auth/resend-otp", h.ResendOTP)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	authed := api.Group("")
	authed.Use(auth.Middleware(d.Authority))
	authed.POST("/auth/logout", h.Logout)
	authed.GET("/auth/me", h.Me)
	authed.POST("/rooms", h.CreateRoom)
	authed.GET("/rooms", h.ListRooms)
	authed.GET("/rooms/:id/messages", h.ListMessages)

	// 实时端点由 ws.Router 自行解析路径与鉴权。
	rt := gin.WrapH(d.Realtime)
	r.GET("/users", rt)
	r.GET("/rooms", rt)
	r.GET("/room/:id", rt)
	r.NoRoute(func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			d.Realtime.ServeHTTP(c.Writer, c.Request)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}
