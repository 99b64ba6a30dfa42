package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/campus-qa/api/handler"
	"github.com/fyerfyer/campus-qa/api/middleware"
)

// RouterOption 路由配置选项
type RouterOption func(*routerConfig)

type routerConfig struct {
	chatLimiter *middleware.RateLimiter
	cors        bool
}

// WithChatRateLimit 对对话接口按客户端IP限流
func WithChatRateLimit(limiter *middleware.RateLimiter) RouterOption {
	return func(c *routerConfig) {
		c.chatLimiter = limiter
	}
}

// WithCORS 启用跨域支持
func WithCORS(enabled bool) RouterOption {
	return func(c *routerConfig) {
		c.cors = enabled
	}
}

// SetupRouter 设置API路由
func SetupRouter(chatHandler *handler.ChatHandler, adminHandler *handler.AdminHandler, opts ...RouterOption) *gin.Engine {
	cfg := &routerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	router := gin.New()
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	if cfg.cors {
		router.Use(Cors())
	}
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	api := router.Group("/api")
	{
		// 对话 - POST /api/chat
		api.POST("/chat", middleware.RateLimit(cfg.chatLimiter), chatHandler.Chat)

		admin := api.Group("/admin")
		{
			admin.POST("/rebuild", adminHandler.Rebuild)
			admin.POST("/reset", adminHandler.Reset)
			admin.GET("/index", adminHandler.IndexStats)
			admin.GET("/builds", adminHandler.ListBuilds)
			admin.GET("/tasks/:id", adminHandler.GetTask)
		}

		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}

// Cors 跨域资源共享中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
