package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"voice-call-agent/internal/audit"
	"voice-call-agent/internal/auth"
	"voice-call-agent/internal/calls"
	"voice-call-agent/internal/config"
	"voice-call-agent/internal/dbqueue"
	"voice-call-agent/internal/dispatch"
	"voice-call-agent/internal/evaluation"
	"voice-call-agent/internal/httpapi"
	"voice-call-agent/internal/lifecycle"
	"voice-call-agent/internal/rbac"
	"voice-call-agent/internal/reporting"
	"voice-call-agent/internal/session"
	"voice-call-agent/internal/telephony"
	"voice-call-agent/internal/watchdog"
	"voice-call-agent/pkg/logger"
	"voice-call-agent/pkg/utils"
)

func main() {
	workerToken := flag.Duration("worker-token", 0, "print a media worker access token valid for this long and exit")
	flag.Parse()

	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	if *workerToken > 0 {
		tok, err := authManager.IssueAccess(time.Now(), auth.Identity{UserID: "media-worker", Role: rbac.RoleWorker}, *workerToken)
		if err != nil {
			log.Error("worker token failed", "err", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	if err := run(rootCtx, cfg, authManager, log); err != nil {
		log.Error("agent stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, authManager *auth.Manager, log *slog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return fmt.Errorf("postgres init: %w", err)
	}
	defer db.Close()
	if err := calls.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if err := audit.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	store := calls.NewPostgresStore(db, calls.Options{PublicBaseURL: cfg.App.PublicBaseURL})

	// The queue outlives the signal so end-of-call writes still land.
	queueCtx, stopQueue := context.WithCancel(context.WithoutCancel(ctx))
	defer stopQueue()
	queue := dbqueue.New(queueCtx, dbqueue.Options{
		Workers: cfg.Queue.Workers,
		Retry: dbqueue.RetryPolicy{
			MaxAttempts: cfg.Queue.MaxAttempts,
			Delay:       cfg.Queue.RetryDelay,
			Multiplier:  1,
		},
		Logger: log,
	})

	hub := telephony.NewHub()
	lkOpts := telephony.LiveKitOptions{
		URL:         cfg.LiveKit.URL,
		APIKey:      cfg.LiveKit.APIKey,
		APISecret:   cfg.LiveKit.APISecret,
		JoinTimeout: cfg.Agent.JoinTimeout,
	}
	lk := telephony.NewLiveKit(lkOpts, hub, log)
	sessions := session.NewDetached(lk, log)

	recorder := &lifecycle.Recorder{Queue: queue, Store: store, Log: log}
	runner := &lifecycle.Runner{
		Orchestrator: &lifecycle.Orchestrator{
			Provider: lk,
			Recorder: recorder,
			Policy: lifecycle.DialPolicy{
				TrunkID:       cfg.LiveKit.SIPTrunkID,
				CallingNumber: cfg.Agent.CallingNumber,
				PollInterval:  cfg.Agent.PollInterval,
				DialTimeout:   cfg.Agent.DialTimeout,
			},
		},
		Recorder: recorder,
		Provider: lk,
		Rooms:    hub,
		Sessions: sessions,
		Config: lifecycle.RunnerConfig{
			OutboundAgentID:    cfg.Agent.OutboundAgentID,
			InboundAgentID:     cfg.Agent.InboundAgentID,
			ProperConversation: cfg.Agent.ProperConversation,
			IdleHangup:         cfg.Agent.IdleHangup,
			Watchdog: watchdog.Config{
				CheckInterval:   cfg.Agent.IdleCheckInterval,
				HangUpAfter:     cfg.Agent.IdleHangUpAfter,
				PresenceChecks:  cfg.Agent.IdlePresenceChecks,
				ReminderMessage: cfg.Agent.IdleReminder,
				ClosingMessage:  cfg.Agent.IdleClosing,
			},
			ShutdownTimeout: cfg.Agent.ShutdownTimeout,
		},
		Log: log,
	}
	if cfg.Recording.Enabled {
		runner.Recording = telephony.NewAudioRecorder(lkOpts, telephony.S3Options{
			AccessKey: cfg.Recording.AccessKey,
			Secret:    cfg.Recording.Secret,
			Region:    cfg.Recording.Region,
			Bucket:    cfg.Recording.Bucket,
		})
	}

	var evaluator *evaluation.Evaluator
	if cfg.Evaluation.Enabled() {
		completer := evaluation.NewOpenAI(evaluation.OpenAIOptions{
			APIKey:  cfg.Evaluation.OpenAIKey,
			BaseURL: cfg.Evaluation.OpenAIBaseURL,
			Model:   cfg.Evaluation.OpenAIModel,
		})
		fields, err := evaluation.ParseEntityFields(cfg.Evaluation.EntityFields)
		if err != nil {
			return fmt.Errorf("entity fields: %w", err)
		}
		evaluator = evaluation.New(completer, queue, store, cfg.Evaluation.Timeout, log)
		evaluator.EntityFields = fields
		runner.PostCall = evaluator
	} else {
		log.Info("post-call evaluation disabled")
	}

	var limiter dispatch.Limiter
	if cfg.Agent.MaxConcurrentCalls > 0 {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			return fmt.Errorf("redis init: %w", err)
		}
		defer rdb.Close()
		limiter = dispatch.NewRedisLimiter(rdb, "", cfg.Agent.MaxConcurrentCalls, 0)
	}
	dispatcher := dispatch.New(ctx, runner, limiter, log)

	handlers := httpapi.Handlers{
		Auth: authManager,
		Credentials: auth.Credentials{
			Username: cfg.Auth.OperatorUsername,
			Password: cfg.Auth.OperatorPassword,
		},
		Dispatcher: dispatcher,
		Calls:      store,
		Reports:    reporting.NewService(store),
		Sessions:   sessions,
		Audit:      audit.NewService(audit.NewPostgresRepo(db), log),
	}
	webhooks := telephony.NewWebhookHandler(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, hub, dispatcher)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/healthz"))
	registerRoutes(r, routeDeps{
		Handlers: handlers,
		Webhooks: webhooks,
		AuthMW:   auth.RequireAccessToken(authManager),
		Health: func(ctx context.Context) error {
			return utils.HealthCheck(ctx, db, 2*time.Second)
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("agent listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated", "active_calls", len(dispatcher.Active()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "err", err)
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			log.Error("call jobs did not finish", "err", err)
		}
		if evaluator != nil {
			evaluator.Wait()
		}
		if err := queue.Drain(shutdownCtx, 50*time.Millisecond); err != nil {
			log.Warn("db queue not drained", "err", err)
		}
		stopQueue()
		return nil
	})
	return g.Wait()
}
