package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/pkg/config"
)

// DSN renders the lib/pq connection string for cfg. A configured URL wins.
func DSN(cfg config.DatabaseConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s application_name=peerlearn-api",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, sslMode)
}

// NewPostgres opens the pool and waits for the server to accept connections,
// backing off between attempts so the API can start alongside its database.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*sqlx.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sqlx.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := waitFor(ctx, cfg.ConnectAttempts, logger.With(zap.String("dependency", "postgres")), db.PingContext); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// waitFor calls ping until it succeeds, attempts run out or ctx ends.
func waitFor(ctx context.Context, attempts int, logger *zap.Logger, ping func(context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	delay := 500 * time.Millisecond
	var err error
	for i := 1; i <= attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		logger.Warn("dependency not ready", zap.Int("attempt", i), zap.Duration("retry_in", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("not ready after %d attempts: %w", attempts, err)
}
