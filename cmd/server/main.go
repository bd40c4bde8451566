package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pairchat/internal/access"
	"pairchat/internal/auth"
	"pairchat/internal/config"
	"pairchat/internal/db"
	"pairchat/internal/lockout"
	clog "pairchat/internal/log"
	"pairchat/internal/mail"
	"pairchat/internal/mw"
	"pairchat/internal/queue"
	"pairchat/internal/server"
	"pairchat/internal/service"
	"pairchat/internal/store"
	"pairchat/internal/ws"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接依赖并启动 HTTP 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	gdb, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}
	st := store.New(gdb)

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("parse REDIS_URL")
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed; continuing without redis")
			rdb = nil
		}
	}

	var sender mail.Sender = mail.LogSender{}
	if cfg.SMTP.Enabled() {
		sender = mail.NewSMTPSender(cfg.SMTP)
	} else if cfg.Env == "prod" {
		log.Warn().Msg("SMTP is not configured; emails are only logged")
	}

	var (
		enqueuer mail.Enqueuer
		worker   *queue.Worker
	)
	if rdb != nil {
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("parse REDIS_URL for asynq")
		}
		taskEnqueuer := queue.NewTaskEnqueuer(redisOpt)
		defer taskEnqueuer.Close()
		enqueuer = taskEnqueuer
		worker = queue.NewWorker(redisOpt, sender)
		if err := worker.Start(); err != nil {
			log.Fatal().Err(err).Msg("start mail worker")
		}
	}
	mailer := mail.NewMailer(sender, enqueuer)

	cooldown := time.Duration(cfg.LoginCooldownSeconds) * time.Second
	var lock lockout.Store = lockout.NewMemoryStore(cfg.LoginMaxAttempts, cooldown)
	if rdb != nil {
		lock = lockout.NewRedisStore(rdb, "pairchat:lockout", cfg.LoginMaxAttempts, cooldown)
	}

	accessTTL := time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute
	refreshTTL := time.Duration(cfg.RefreshTokenTTLDays) * 24 * time.Hour
	authority := auth.NewAuthority(cfg.AccessSecret, cfg.RefreshSecret, accessTTL, refreshTTL, st)
	guard := access.NewGuard(st)

	users := service.NewUserService(st, authority, mailer, lock, time.Duration(cfg.OTPTTLMinutes)*time.Minute)
	rooms := service.NewRoomService(st, guard)
	cookies := auth.CookieOptions{Domain: cfg.CookieDomain, Secure: cfg.CookieSecure, AccessTTL: accessTTL, RefreshTTL: refreshTTL}

	registry := ws.NewRegistry()
	realtime := ws.NewRouter(ws.NewAuthenticator(authority), guard, st, registry, strings.Split(cfg.ClientURL, ","))

	limiter := mw.NewRateLimiter(rate.Every(time.Second/20), 40, 2*time.Minute)
	defer limiter.Stop()

	engine := server.SetupRouter(server.Deps{
		Config:    cfg,
		DB:        gdb,
		Redis:     rdb,
		Authority: authority,
		Handler:   server.NewHandler(users, rooms, cookies),
		Realtime:  realtime,
		Limiter:   limiter,
	})

	// WebSocket 连接是长连接，不设置整体读写超时。
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if worker != nil {
		worker.Shutdown()
	}
	log.Info().Int("open_ws", registry.Len()).Msg("server stopped")
}
