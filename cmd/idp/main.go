package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bytesyncer/identity/internal/bootstrap"
	"github.com/bytesyncer/identity/internal/config"
	httptransport "github.com/bytesyncer/identity/internal/http"
	"github.com/bytesyncer/identity/internal/http/handler"
	httpmiddleware "github.com/bytesyncer/identity/internal/http/middleware"
	"github.com/bytesyncer/identity/internal/jwt"
	apimiddleware "github.com/bytesyncer/identity/internal/middleware"
	"github.com/bytesyncer/identity/internal/repository"
	"github.com/bytesyncer/identity/internal/server"
	"github.com/bytesyncer/identity/internal/service"
	"github.com/bytesyncer/identity/internal/session"
	"github.com/bytesyncer/identity/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newUserRepository,
			newClientRepository,
			newScopeRepository,
			newCodeRepository,
			newTokenRepository,
			newKeyRepository,
			newRedisClient,
			newSessionStore,
			newSessionManager,
			newRateLimiter,
			newKeyManager,
			newTokenGenerator,
			service.NewAuthService,
			service.NewDiscoveryService,
			handler.NewAuthHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, ensureSigningKey, bootstrap.Register, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newClientRepository(pool *pgxpool.Pool) repository.ClientRepository {
	return repository.NewPostgresClientRepo(pool)
}

func newScopeRepository(pool *pgxpool.Pool) repository.ScopeRepository {
	return repository.NewPostgresScopeRepo(pool)
}

func newCodeRepository(pool *pgxpool.Pool) repository.CodeRepository {
	return repository.NewPostgresCodeRepo(pool)
}

func newTokenRepository(pool *pgxpool.Pool) repository.TokenRepository {
	return repository.NewPostgresTokenRepo(pool)
}

func newKeyRepository(pool *pgxpool.Pool) repository.KeyRepository {
	return repository.NewPostgresKeyRepo(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newSessionStore(client redis.UniversalClient) session.Store {
	return session.NewRedisStore(client)
}

func newSessionManager(store session.Store, cfg config.Config) *session.Manager {
	return session.NewManager(store, cfg.SessionTTL, cfg.SessionCookieName, cfg.SecureCookies)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newKeyManager(repo repository.KeyRepository) *jwt.KeyManager {
	return jwt.NewKeyManager(repo)
}

func newTokenGenerator(manager *jwt.KeyManager, cfg config.Config) *jwt.Generator {
	return jwt.NewGenerator(manager, cfg.AccessTokenTTL)
}

func newAuthMiddleware(authService *service.AuthService) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{AuthService: authService}
}

// ensureSigningKey provisions the HS256 signing key before the server
// accepts traffic.
func ensureSigningKey(lc fx.Lifecycle, keys *jwt.KeyManager) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_, err := keys.EnsureSigningKey(ctx)
			return err
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
