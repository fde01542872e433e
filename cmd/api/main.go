package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"adsledger/internal/api"
	"adsledger/internal/kv"
	"adsledger/internal/ledger"
	"adsledger/internal/notify"
	"adsledger/internal/service"
)

// backend is an opened store plus what main needs to probe and release it.
type backend struct {
	store kv.Store
	ping  func(ctx context.Context) error
	close func()
}

func openBackend(ctx context.Context, cfg config) (backend, error) {
	noop := func() {}

	switch cfg.StoreBackend {
	case backendREST:
		st, err := kv.NewRESTStore(kv.RESTConfig{
			URL:        cfg.KVRestURL,
			Token:      cfg.KVRestToken,
			HTTPClient: &http.Client{Timeout: cfg.StoreTimeout},
		})
		if err != nil {
			return backend{}, err
		}
		return backend{store: st, close: noop}, nil

	case backendRedis:
		st, err := kv.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return backend{}, fmt.Errorf("redis: %w", err)
		}
		return backend{store: st, ping: st.Ping, close: func() { _ = st.Close() }}, nil

	case backendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return backend{}, fmt.Errorf("db: %w", err)
		}
		st := kv.NewPostgresStore(pool)
		schemaCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		if err := st.EnsureSchema(schemaCtx); err != nil {
			pool.Close()
			return backend{}, fmt.Errorf("db schema: %w", err)
		}
		return backend{store: st, ping: st.Ping, close: pool.Close}, nil

	default:
		return backend{store: kv.NewMemoryStore(), close: noop}, nil
	}
}

func newNotifier(cfg config, logger logrus.FieldLogger) notify.Notifier {
	if cfg.BotToken == "" {
		logger.Info("BOT_TOKEN not set, welcome messages disabled")
		return notify.Discard{}
	}
	tg, err := notify.NewTelegram(cfg.BotToken)
	if err != nil {
		logger.WithError(err).Warn("bot init failed, welcome messages disabled")
		return notify.Discard{}
	}
	logger.WithField("bot", tg.Username()).Info("bot connected")
	return tg
}

func newAuthorizer(cfg config) service.Authorizer {
	admin := service.StaticAdmin(cfg.AdminID)
	if cfg.AdminToken == "" {
		return admin
	}
	return service.AllOf{admin, service.BearerToken(cfg.AdminToken)}
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if err := loadDotEnv(".env"); err != nil {
		logger.WithError(err).Fatal("env file error")
	}
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		logger.WithError(err).Fatal("config error")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx := context.Background()
	be, err := openBackend(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("store error")
	}
	defer be.close()

	repo := ledger.NewRepository(be.store,
		ledger.WithKey(cfg.LedgerKey),
		ledger.WithTimeout(cfg.StoreTimeout),
		ledger.WithLogger(logger),
	)
	if !repo.Conditional() {
		logger.WithField("backend", cfg.StoreBackend).
			Warn("store has no conditional write; run a single instance to avoid lost updates")
	}

	health := be.ping
	if health == nil {
		health = func(ctx context.Context) error {
			_, err := repo.LoadSnapshot(ctx)
			return err
		}
	}

	gate := service.Gate{AdminID: cfg.AdminID, MaxAmount: cfg.MaxAmount}
	accounts := service.NewAccounts(repo, service.AccountsConfig{
		Gate:          gate,
		AdReward:      cfg.AdReward,
		ReferralBonus: cfg.ReferralBonus,
		Notifier:      newNotifier(cfg, logger),
		FrontendURL:   cfg.FrontendURL,
		Logger:        logger,
	})
	withdrawals := service.NewWithdrawals(repo, gate)
	admin := service.NewAdmin(newAuthorizer(cfg), repo, accounts, withdrawals)

	srv := api.NewServer(api.Services{
		Accounts:    accounts,
		Withdrawals: withdrawals,
		Admin:       admin,
		Ledger:      repo,
	}, api.Options{
		CORSOrigins:    cfg.CORSOrigins,
		TrustProxy:     cfg.TrustProxy,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Health:         health,
	}, logger)

	scheduler := cron.New(cron.WithLocation(time.UTC))
	if _, err := scheduler.AddFunc(cfg.DailyResetCron, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := accounts.ResetDailyAds(jobCtx)
		if err != nil {
			logger.WithError(err).Error("daily ad reset failed")
			return
		}
		logger.WithField("accounts", n).Info("daily ad counters reset")
	}); err != nil {
		logger.WithError(err).Fatal("cron error")
	}
	scheduler.Start()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":    httpServer.Addr,
			"backend": cfg.StoreBackend,
		}).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	<-scheduler.Stop().Done()
	accounts.Wait()
}
