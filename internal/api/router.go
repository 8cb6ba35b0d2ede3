package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/exam_go_server/config"
	"github.com/qs3c/exam_go_server/internal/api/handler"
	"github.com/qs3c/exam_go_server/internal/api/middleware"
)

type Router struct {
	authHandler   *handler.AuthHandler
	parseHandler  *handler.ParseHandler
	streamHandler *handler.StreamHandler
	cfg           *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	parseHandler *handler.ParseHandler,
	streamHandler *handler.StreamHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:   authHandler,
		parseHandler:  parseHandler,
		streamHandler: streamHandler,
		cfg:           cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
		}

		// SSE 事件流，认证走 token query 参数（EventSource 无法设置请求头）
		api.GET("/parse/stream/:id", r.streamHandler.Stream)

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			// 用户
			user := authenticated.Group("/user")
			{
				user.GET("/profile", r.authHandler.GetProfile)
			}

			// 解析任务
			parse := authenticated.Group("/parse")
			{
				parse.POST("", r.parseHandler.Submit)
				parse.GET("/status/:id", r.parseHandler.GetStatus)
				parse.GET("/history", r.parseHandler.History)
				parse.DELETE("/:id", r.parseHandler.Delete)
			}
		}
	}

	return engine
}
