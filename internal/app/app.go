package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/abhishek-genailytics/strataAI-sub000/internal/config"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/db"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/gateway"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/vault"
)

// shutdownGrace bounds how long in-flight requests may run after a stop
// signal. Streaming completions are cut off at this point.
const shutdownGrace = 15 * time.Second

// Options carries the CLI inputs into the application.
type Options struct {
	ConfigPath string
	Port       int
}

// Migrate opens the database and runs migrations, for deploy pipelines
// that migrate ahead of rollout.
func Migrate(_ context.Context, opts Options) error {
	cfg, errLoad := config.Load(config.ResolveConfigPath(opts.ConfigPath))
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	defer func() { _ = db.Close(conn) }()
	return db.Migrate(conn)
}

// RunServer boots the gateway and serves until the context is canceled.
func RunServer(ctx context.Context, opts Options) error {
	cfg, errLoad := config.Load(config.ResolveConfigPath(opts.ConfigPath))
	if errLoad != nil {
		return errLoad
	}
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return fmt.Errorf("database dsn is required (config database.dsn or env %s)", config.EnvDBConnection)
	}

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	defer func() { _ = db.Close(conn) }()
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	log.WithField("dialect", db.DialectName(conn)).Info("database ready")

	v, errVault := vault.New(vault.Options{
		Secret:     cfg.Vault.Secret,
		Passphrase: cfg.Vault.Passphrase,
		Salt:       cfg.Vault.Salt,
	})
	if errVault != nil {
		return fmt.Errorf("vault: %w", errVault)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if errPing := rdb.Ping(pingCtx).Err(); errPing != nil {
			log.WithError(errPing).Warn("redis unreachable at startup, continuing degraded")
		}
		cancel()
		defer func() { _ = rdb.Close() }()
	}

	if strings.TrimSpace(os.Getenv(gin.EnvGinMode)) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	server := gateway.NewServer(cfg, conn, rdb, v)
	server.RegisterRoutes(engine)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("gateway listening")
		if errServe := httpServer.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if errShutdown := httpServer.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		return errServe
	}
}
