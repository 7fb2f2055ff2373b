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
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/GiftList/config"
	"github.com/Gopher0727/GiftList/internal/api"
	"github.com/Gopher0727/GiftList/internal/handler"
	"github.com/Gopher0727/GiftList/internal/invite"
	"github.com/Gopher0727/GiftList/internal/metrics"
	"github.com/Gopher0727/GiftList/internal/notify"
	"github.com/Gopher0727/GiftList/internal/permission"
	"github.com/Gopher0727/GiftList/internal/pkg/kafka"
	"github.com/Gopher0727/GiftList/internal/pkg/redis"
	"github.com/Gopher0727/GiftList/internal/realtime"
	"github.com/Gopher0727/GiftList/internal/repository"
	"github.com/Gopher0727/GiftList/internal/service"
	"github.com/Gopher0727/GiftList/internal/ws"
	"github.com/Gopher0727/GiftList/middleware/jwt"
	logger "github.com/Gopher0727/GiftList/middleware/log"
	"github.com/Gopher0727/GiftList/utils/ratelimit"
	"github.com/Gopher0727/GiftList/utils/snowflake"
)

func main() {
	path := flag.String("config", os.Getenv("GIFTLIST_CONFIG"), "path to config.toml")
	flag.Parse()
	if *path == "" {
		*path = "./config.toml"
	}

	cfg, err := config.LoadConfig(*path)
	if err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}
	// 权限表在编译期固定，启动时自检一次
	if err := permission.Validate(); err != nil {
		log.Fatalf("permission registry is inconsistent: %v", err)
	}

	lg, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer lg.Close()

	if err := run(cfg, lg); err != nil {
		lg.Error("server stopped with error", zap.Error(err))
		lg.Close()
		os.Exit(1)
	}
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Database.Driver {
	case "sqlite":
		db, err = repository.InitSQLite(cfg.Database.SQLitePath)
	default:
		dsn := repository.BuildDSN(cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DBName)
		db, err = repository.InitPostgres(dsn, cfg.Postgres.MaxIdleConns, cfg.Postgres.MaxOpenConns)
	}
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func run(cfg *config.Config, lg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("database 初始化失败: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	ids, err := snowflake.NewGenerator(snowflake.Config{
		DatacenterID: cfg.Snowflake.DatacenterID,
		WorkerID:     cfg.Snowflake.WorkerID,
	})
	if err != nil {
		return fmt.Errorf("snowflake 初始化失败: %w", err)
	}

	hub := ws.NewHub(lg)
	go hub.Run(ctx)

	// Redis 可用时事件经 pub/sub 广播到所有节点，否则只投递到本节点
	var (
		publisher realtime.Publisher = hub
		limiter   ratelimit.Limiter
	)
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(&cfg.Redis, lg)
		if err != nil {
			return fmt.Errorf("redis 初始化失败: %w", err)
		}
		defer rdb.Close()

		pubsub, err := rdb.SubscribeGroups(ctx)
		if err != nil {
			return err
		}
		defer pubsub.Close()
		go rdb.Listen(ctx, pubsub, hub.Deliver)
		publisher = rdb

		if cfg.RateLimit.Enabled {
			limiter = ratelimit.NewWindowLimiter(rdb.GetClient(), lg.Named("ratelimit").Logger, cfg.RateLimit.FailOpen)
		}
	} else {
		lg.Warn("redis disabled, realtime events stay on this node and rate limiting is off")
	}

	var notifier notify.Notifier = notify.NewLogNotifier(lg.Named("notify").Logger)
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(&cfg.Kafka)
		if err != nil {
			// 降级：邀请邮件只记录日志
			lg.Warn("kafka producer unavailable, invite mails will only be logged", zap.Error(err))
		} else {
			defer producer.Close()
			notifier = notify.NewKafkaNotifier(producer, cfg.Kafka.Topic, cfg.Kafka.Producer.MaxRetries, lg.Named("notify").Logger)
		}
	}

	m := metrics.New()
	deps := service.Deps{
		Groups:    repository.NewGroupRepository(db),
		Items:     repository.NewItemRepository(db),
		Messages:  repository.NewMessageRepository(db),
		Invites:   invite.NewCodec(cfg.Invite.Secret, cfg.Invite.TTL, cfg.Invite.BaseURL),
		Notifier:  notifier,
		Publisher: publisher,
		IDs:       ids,
		Limits:    cfg.Limits,
		Metrics:   m,
		Log:       lg.Named("service"),
	}
	groupService := service.NewGroupService(deps)
	itemService := service.NewItemService(deps)
	messageService := service.NewMessageService(deps)

	rules := ratelimit.RulesFromConfig(cfg.RateLimit)
	gin.SetMode(cfg.Server.Mode)
	r := api.NewRouter(api.Handlers{
		Groups:   handler.NewGroupHandler(groupService, lg),
		Items:    handler.NewItemHandler(itemService, lg),
		Messages: handler.NewMessageHandler(messageService, lg),
		WS: ws.ServeWs(hub, ws.Options{
			Messages: messageService,
			Limiter:  limiter,
			Rule:     rules.Message,
			Log:      lg,
		}),
	}, api.Deps{
		Tokens:  jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.RefreshHours),
		Limiter: limiter,
		Rules:   rules,
		Metrics: m,
		Log:     lg,
		Health:  sqlDB.PingContext,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		lg.Info("正在启动服务器", zap.String("addr", srv.Addr))
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

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
