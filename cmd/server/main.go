package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	_ "fastlink/docs"
	"fastlink/internal/cache"
	"fastlink/internal/config"
	"fastlink/internal/handler"
	"fastlink/internal/middleware"
	"fastlink/internal/service"
	"fastlink/internal/shortcode"
	"fastlink/internal/store"
	"fastlink/internal/sweeper"
	"fastlink/internal/usage"
	"fastlink/pkg/database"
	auth "fastlink/pkg/jwt"
	"fastlink/pkg/logger"
	"fastlink/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title fastlink API
// @version 1.0
// @description 短链接服务: 生成、跳转、过期归档
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("配置加载失败:", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	defer func() {
		if err := logger.Logger.Sync(); err != nil {
			fmt.Println("日志同步失败:", err)
		}
	}()
	sugaredLogger := logger.Sugar

	db, err := database.Open(database.Options{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
		Charset:  cfg.Database.Charset,
		Logger:   logger.NewGormLogger(sugaredLogger.Named("gorm"), cfg.Database.LogLevel),
	})
	if err != nil {
		sugaredLogger.Fatalf("数据库初始化失败: %v", err)
	}
	sugaredLogger.Info("✅ 数据库连接成功")

	urlStore := store.New(db)
	if err := urlStore.AutoMigrate(); err != nil {
		sugaredLogger.Fatalf("数据库迁移失败: %v", err)
	}
	sugaredLogger.Info("✅ 数据库迁移成功")

	cacheOpts := redis.FromConfig(cfg.Cache)
	rdb, err := redis.Connect(context.Background(), cacheOpts)
	if err != nil {
		sugaredLogger.Fatalf("缓存连接失败: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			sugaredLogger.Errorf("关闭 Redis 连接失败: %v", err)
		}
	}()
	sugaredLogger.Info("✅ 缓存连接成功")
	urlCache := cache.NewRedisCache(rdb, cacheOpts.Prefix)

	generator := shortcode.NewGenerator(urlCache, sugaredLogger,
		shortcode.WithLength(cfg.ShortCode.Length),
		shortcode.WithMaxAttempts(cfg.ShortCode.MaxAttempts),
		shortcode.WithReserveTTL(cacheOpts.TTL),
	)

	settings := service.Settings{ExpiryWindow: cfg.Expiry.Window, CacheTTL: cacheOpts.TTL}
	recorder := service.NewUsageRecorder(urlStore, urlCache, settings, sugaredLogger)

	var g run.Group

	// 访问记录: 进程内工作池或 RabbitMQ
	var dispatcher usage.Dispatcher
	switch cfg.Usage.Backend {
	case "amqp":
		conn, err := amqp.Dial(cfg.Usage.AMQPURL)
		if err != nil {
			sugaredLogger.Fatalf("RabbitMQ 连接失败: %v", err)
		}
		defer conn.Close()

		pubCh, err := conn.Channel()
		if err != nil {
			sugaredLogger.Fatalf("创建 RabbitMQ 通道失败: %v", err)
		}
		if err := usage.DeclareQueue(pubCh, cfg.Usage.Queue); err != nil {
			sugaredLogger.Fatal(err)
		}
		publisher := usage.NewAMQPPublisher(pubCh, cfg.Usage.Queue, sugaredLogger)
		defer publisher.Wait()
		dispatcher = publisher

		subCh, err := conn.Channel()
		if err != nil {
			sugaredLogger.Fatalf("创建 RabbitMQ 通道失败: %v", err)
		}
		consumer := usage.NewAMQPConsumer(subCh, cfg.Usage.Queue, recorder, sugaredLogger)
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return consumer.Run(ctx)
		}, func(error) {
			cancel()
		})
		sugaredLogger.Info("✅ 访问记录使用 RabbitMQ 队列")
	default:
		pool := usage.NewPool(recorder, sugaredLogger, cfg.Usage.Workers, cfg.Usage.QueueSize)
		pool.Start()
		dispatcher = pool

		stop := make(chan struct{})
		g.Add(func() error {
			<-stop
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
			defer cancel()
			return pool.Stop(ctx)
		}, func(error) {
			close(stop)
		})
	}

	resolver := service.NewResolver(urlStore, urlCache, generator, dispatcher, settings, sugaredLogger)

	if cfg.Expiry.WarmCache {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if _, err := resolver.WarmCache(ctx); err != nil {
			sugaredLogger.Warnf("缓存预热失败: %v", err)
		}
		cancel()
	}

	{
		sw := sweeper.New(urlStore, urlCache, cfg.Expiry.SweepInterval, sugaredLogger)
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return sw.Run(ctx)
		}, func(error) {
			cancel()
		})
	}

	tokenManager := auth.NewManager(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.ExpirationHours)
	sugaredLogger.Info("✅ 认证管理器初始化成功")

	if cfg.App.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.GinZapRecovery(logger.Logger, true))
	router.Use(middleware.GinZapLogger(logger.Logger))
	router.Use(middleware.RateLimit(&cfg.RateLimit))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	urlHandler := handler.NewShortLinkHandler(resolver, cfg.App.BaseURL, urlStore, urlCache, sugaredLogger)
	urlHandler.RegisterRoutes(router,
		middleware.AuthMiddleware(tokenManager),
		middleware.OptionalAuthMiddleware(tokenManager),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	g.Add(func() error {
		sugaredLogger.Infof("🚀 服务启动成功, 访问 http://localhost:%d", cfg.Server.Port)
		sugaredLogger.Infof("📚 Swagger 文档地址: http://localhost:%d/swagger/index.html", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			sugaredLogger.Errorf("HTTP 服务关闭失败: %v", err)
		}
	})

	g.Add(run.SignalHandler(context.Background(), os.Interrupt, syscall.SIGTERM))

	if err := g.Run(); err != nil {
		var sigErr run.SignalError
		if errors.As(err, &sigErr) {
			sugaredLogger.Infof("收到信号 %s, 服务已停止", sigErr.Signal)
			return
		}
		sugaredLogger.Errorf("服务异常退出: %v", err)
	}
}
