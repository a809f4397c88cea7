// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"org-authority-go/internal/bootstrap"
	"org-authority-go/internal/config"
	"org-authority-go/internal/handler"
	"org-authority-go/internal/middleware"
	"org-authority-go/internal/pipeline"
	"org-authority-go/internal/repository"
	"org-authority-go/pkg/kafka"
	"org-authority-go/pkg/log"
	"org-authority-go/pkg/token"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to config file")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化存储、缓存、外部客户端与服务
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatal("服务初始化失败", err)
	}
	defer app.Close()

	// 本地开发使用 sqlite 时自动建表，mysql 由 orgctl migrate 负责
	if cfg.Database.Driver == "sqlite" {
		if err := repository.AutoMigrate(ctx, app.DB); err != nil {
			log.Fatal("自动建表失败", err)
		}
	}

	// 4. 启动后台任务
	var wg sync.WaitGroup
	if cfg.Kafka.Enabled {
		var index pipeline.AuditIndexWriter
		if app.Index != nil {
			index = app.Index
		}
		processor := pipeline.NewProcessor(index, app.Cache)
		consumer := kafka.NewConsumer(cfg.Kafka, processor, app.Redis)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				log.Errorf("Kafka 消费者退出: %v", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.Sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("授权过期清理退出: %v", err)
		}
	}()

	// 5. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": nil})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 6. 注册路由，全部接口需要认证
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, 0)
	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager))
	handler.RegisterRoutes(apiV1, app.Services)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止消费者与清理任务，等待它们退出后再关闭连接
	stop()
	wg.Wait()
	log.Info("服务已优雅关闭")
}
