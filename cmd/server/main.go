package main

import (
	"context"
	"fmt"
	"log"

	"github.com/qs3c/exam_go_server/config"
	"github.com/qs3c/exam_go_server/internal/api"
	"github.com/qs3c/exam_go_server/internal/api/handler"
	"github.com/qs3c/exam_go_server/internal/database"
	"github.com/qs3c/exam_go_server/internal/pkg/cron"
	"github.com/qs3c/exam_go_server/internal/pkg/oss"
	"github.com/qs3c/exam_go_server/internal/pkg/pubsub"
	"github.com/qs3c/exam_go_server/internal/pkg/queue"
	"github.com/qs3c/exam_go_server/internal/pkg/sse"
	"github.com/qs3c/exam_go_server/internal/repository"
	"github.com/qs3c/exam_go_server/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 OSS（可选，未配置时文件存本地）
	var ossClient *oss.Client
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err = oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Printf("Warning: Failed to init OSS client: %v", err)
		} else {
			log.Println("OSS client initialized")
		}
	}

	// 初始化 Queue 和发布者
	jobQueue := queue.NewQueue(rdb, cfg.Queue.ParseQueue)
	publisher := pubsub.NewPublisher(rdb)

	// 初始化 SSE Hub，并把 Redis 进度消息转发进来
	hub := sse.NewHub(cfg.Stream.SubscriberQueueSize)
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		err := subscriber.Subscribe(context.Background(), func(msg *pubsub.ProgressMessage) {
			hub.Publish(msg.ExamID, sse.Event{Name: msg.Event, Payload: msg})
		})
		if err != nil && err != context.Canceled {
			log.Printf("Progress subscriber stopped: %v", err)
		}
	}()
	log.Println("SSE hub started")

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	examRepo := repository.NewExamRepository(db)
	questionRepo := repository.NewQuestionRepository(db)

	// 初始化 Service
	authService := service.NewAuthService(userRepo, cfg)
	quotaService := service.NewQuotaService(userRepo, cfg)
	parseService := service.NewParseService(examRepo, questionRepo, quotaService, ossClient, jobQueue, cfg)

	// 启动定时任务
	cronService := cron.NewService(quotaService, examRepo, publisher, cfg.Upload.Dir, cfg.Upload.ExpireHours, cfg.Stream.StaleJobMinutes)
	cronService.Start()
	defer cronService.Stop()

	// 初始化 Handler
	authHandler := handler.NewAuthHandler(authService)
	parseHandler := handler.NewParseHandler(parseService)
	streamHandler := handler.NewStreamHandler(parseService, hub, cfg)

	// 初始化 Router
	router := api.NewRouter(authHandler, parseHandler, streamHandler, cfg)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
