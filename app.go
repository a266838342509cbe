package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"verifytx_gateway/internal/config"
	"verifytx_gateway/internal/logger"
	"verifytx_gateway/internal/messaging"
	"verifytx_gateway/internal/repository"
	"verifytx_gateway/internal/service"
	"verifytx_gateway/internal/verifytx"
)

// app lazily opens the connections a command needs and closes them together.
type app struct {
	cfg *config.Config
	log *zap.Logger
	// vlog honours the verification logging mode.
	vlog *zap.Logger

	db     *pgxpool.Pool
	redis  *redis.Client
	client *verifytx.Client
	nats   messaging.NATSClient
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	vlog, err := logger.ForVerification(cfg.VerifyTX.LoggingEnabled, cfg.Log.JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification logger: %w", err)
	}
	return &app{cfg: cfg, log: log, vlog: vlog.Named("verifytx")}, nil
}

func (a *app) database(ctx context.Context) (*pgxpool.Pool, error) {
	if a.db != nil {
		return a.db, nil
	}

	db, err := pgxpool.New(ctx, a.cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	a.log.Info("Connected to database")
	a.db = db
	return db, nil
}

func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	a.log.Info("Connected to Redis", zap.String("addr", a.cfg.Redis.Addr))
	a.redis = rdb
	return rdb, nil
}

func (a *app) apiClient(ctx context.Context) (*verifytx.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	var store verifytx.TokenStore = verifytx.NewMemoryTokenStore()
	if a.cfg.Token.Store == config.TokenStoreRedis {
		rdb, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		store = verifytx.NewRedisTokenStore(rdb)
	}

	a.client = verifytx.NewClient(verifytx.Options{
		ClientID:     a.cfg.VerifyTX.APIClientID,
		ClientSecret: a.cfg.VerifyTX.APISecretKey,
		TestMode:     a.cfg.VerifyTX.TestMode,
		BaseURL:      a.cfg.APIBaseURL(),
	}, store, a.vlog)
	return a.client, nil
}

func (a *app) cache(ctx context.Context) (repository.CacheRepository, error) {
	switch a.cfg.Cache.Backend {
	case config.CacheBackendRedis:
		rdb, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return repository.NewRedisCacheRepository(rdb, a.vlog), nil
	case config.CacheBackendMemory:
		return repository.NewMemoryCacheRepository(), nil
	}

	db, err := a.database(ctx)
	if err != nil {
		return nil, err
	}
	return repository.NewCacheRepository(db, a.vlog), nil
}

func (a *app) history(ctx context.Context, cache repository.CacheRepository) (repository.VerificationRepository, error) {
	db, err := a.database(ctx)
	if err != nil {
		return nil, err
	}
	return repository.NewVerificationRepository(db, cache, a.cfg.VerifyTX.DataRetention, a.vlog), nil
}

// events connects to NATS unless it is disabled.
func (a *app) events() (messaging.NATSClient, error) {
	if a.nats != nil {
		return a.nats, nil
	}

	if !a.cfg.NATS.Enabled {
		a.nats = messaging.NopClient{}
		return a.nats, nil
	}

	client, err := messaging.NewNATSClient(a.cfg.NATS.URL, a.log)
	if err != nil {
		return nil, err
	}
	a.nats = client
	return client, nil
}

// verificationService wires the orchestrator with every store it needs.
func (a *app) verificationService(ctx context.Context) (service.VerificationService, repository.VerificationRepository, error) {
	client, err := a.apiClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	cache, err := a.cache(ctx)
	if err != nil {
		return nil, nil, err
	}
	history, err := a.history(ctx, cache)
	if err != nil {
		return nil, nil, err
	}
	events, err := a.events()
	if err != nil {
		return nil, nil, err
	}

	svc := service.NewVerificationService(client, cache, history, events, a.cfg.CacheTTL(), a.vlog)
	return svc, history, nil
}

func (a *app) Close() {
	if a.nats != nil {
		a.nats.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.vlog.Sync()
}
