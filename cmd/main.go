package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/GroupHub/config"
	"github.com/Gopher0727/GroupHub/internal/api"
	"github.com/Gopher0727/GroupHub/internal/pkg/kafka"
	"github.com/Gopher0727/GroupHub/internal/repository"
	"github.com/Gopher0727/GroupHub/internal/service"
	"github.com/Gopher0727/GroupHub/internal/storage"
	"github.com/Gopher0727/GroupHub/middleware/jwt"
	logger "github.com/Gopher0727/GroupHub/middleware/log"
	"github.com/Gopher0727/GroupHub/utils/ratelimit"
	"github.com/Gopher0727/GroupHub/utils/snowflake"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML config file; empty uses defaults and GROUPHUB_* env only")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}

	appLogger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer appLogger.Close()

	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("server stopped", zap.Error(err))
		appLogger.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, appLogger *logger.Logger) error {
	if cfg.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}

	// 初始化 PostgreSQL
	db, err := storage.InitPostgres(&cfg.Postgres, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("postgres 初始化失败: %w", err)
	}

	ids, err := snowflake.NewFromConfig(&cfg.Snowflake)
	if err != nil {
		return fmt.Errorf("snowflake 初始化失败: %w", err)
	}

	opts := []service.Option{
		service.WithLogger(appLogger.Named("service").Logger),
		service.WithIDGenerator(ids),
		service.WithDefaultMaxParticipants(cfg.Group.MaxParticipants),
		service.WithInviteBaseURL(cfg.Invite.BaseURL),
		service.WithEventBuffer(cfg.Kafka.QueueSize),
	}

	// Kafka 可选：不可用时事件只记录在数据库
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(&cfg.Kafka)
		if err != nil {
			appLogger.Warn("kafka unavailable, group events will not be published", zap.Error(err))
		} else {
			defer producer.Close()
			opts = append(opts, service.WithPublisher(producer))
		}
	}

	// Redis 可选：不可用时关闭加群限流
	var limiter ratelimit.Limiter
	if cfg.Redis.Enabled {
		var client *redis.Client
		client, err = storage.InitRedis(&cfg.Redis)
		if err != nil {
			appLogger.Warn("redis unavailable, join rate limiting disabled", zap.Error(err))
		} else {
			defer client.Close()
			limiter = ratelimit.NewWindowLimiter(client, appLogger.Named("ratelimit").Logger, cfg.RateLimit.FailOpen)
		}
	}

	svc := service.New(repository.NewGormRepository(db), opts...)
	// 先排空事件队列，再关闭 producer
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := svc.Close(ctx); err != nil {
			appLogger.Warn("pending group events were not published", zap.Error(err))
		}
	}()

	gin.SetMode(cfg.Server.Mode)
	tokens := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.RefreshHours)
	mm := api.NewMiddlewareManager(tokens, limiter, appLogger.Named("http"), &cfg.RateLimit)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: api.NewRouter(mm, svc),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info("正在启动服务器", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLogger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
