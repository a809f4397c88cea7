// Package bootstrap 根据配置组装存储、缓存、外部客户端与业务服务，供 server 与 orgctl 共用。
package bootstrap

import (
	"context"
	"fmt"
	"org-authority-go/internal/config"
	"org-authority-go/internal/handler"
	"org-authority-go/internal/repository"
	"org-authority-go/internal/service"
	"org-authority-go/pkg/database"
	"org-authority-go/pkg/es"
	"org-authority-go/pkg/kafka"
	"org-authority-go/pkg/log"
	"org-authority-go/pkg/storage"
	"org-authority-go/pkg/workitems"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// App 持有组装好的依赖。未启用的可选组件为 nil。
type App struct {
	Config   config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Store    repository.Store
	Cache    repository.ResolutionCacheRepository
	Producer *kafka.Producer
	Index    *es.AuditIndex
	Archive  *storage.ExportArchive
	Services handler.Services
	Sweeper  *service.ExpirySweeper
}

// Build 按配置打开连接并创建全部服务。可选组件初始化失败视为启动失败。
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg}

	// 1. 数据库
	db, err := database.Open(cfg.Database.Driver, cfg.Database.MySQL.DSN, cfg.Database.SQLite.Path)
	if err != nil {
		return nil, err
	}
	database.DB = db
	app.DB = db
	app.Store = repository.NewGormStore(db)
	log.Infof("%s database connected successfully", cfg.Database.Driver)

	// 2. 解析缓存
	switch cfg.Resolution.Backend {
	case "redis":
		rdb, err := database.NewRedis(ctx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		database.RDB = rdb
		app.Redis = rdb
		app.Cache = repository.NewResolutionCacheRepository(rdb)
		log.Info("Redis client connected successfully")
	case "memory":
		app.Cache = repository.NewMemoryResolutionCacheRepository(time.Now)
		log.Warnf("resolution cache uses the in-process backend, entries are not shared between instances")
	default:
		app.Close()
		return nil, fmt.Errorf("unsupported resolution backend %q", cfg.Resolution.Backend)
	}

	// 3. 可选的外部组件
	var (
		publisher service.EventPublisher
		searcher  service.AuditSearcher
		archive   service.AuditArchive
	)
	if cfg.Kafka.Enabled {
		app.Producer = kafka.NewProducer(cfg.Kafka)
		publisher = app.Producer
	}
	if cfg.Elasticsearch.Enabled {
		idx, err := es.InitES(ctx, cfg.Elasticsearch)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("es 初始化失败: %w", err)
		}
		app.Index = idx
		searcher = idx
	}
	if cfg.MinIO.Enabled {
		a, err := storage.InitMinIO(ctx, cfg.MinIO)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Archive = a
		archive = a
	}

	// 4. 业务服务 (依赖注入)
	now := time.Now
	audit := service.NewAuditService(app.Store, publisher, searcher, archive, now)
	delegations := service.NewDelegationService(app.Store, app.Cache, audit, now)
	app.Services = handler.Services{
		Org:         service.NewOrgService(app.Store, audit, now),
		Assignments: service.NewAssignmentService(app.Store, app.Cache, audit, now),
		Delegations: delegations,
		Resolution: service.NewResolutionService(app.Store, app.Cache, delegations, service.ResolutionOptions{
			StalenessSLA: cfg.Resolution.StalenessSLA,
			VacantTTL:    cfg.Resolution.VacantTTL,
		}, now),
		Swaps: service.NewSwapService(app.Store, app.Cache, audit, workitems.NewClient(cfg.WorkItems), now),
		Audit: audit,
	}
	app.Sweeper = service.NewExpirySweeper(delegations, cfg.Delegation.SweepInterval, 0)
	return app, nil
}

// Close 释放连接。可以重复调用。
func (a *App) Close() {
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			log.Warnf("关闭 Kafka producer 失败: %v", err)
		}
		a.Producer = nil
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
		a.Redis = nil
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
		a.DB = nil
	}
}
