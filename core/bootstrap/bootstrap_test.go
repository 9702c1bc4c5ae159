package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/quizbot/core/config"
	coredatabase "github.com/m3rciful/quizbot/core/database"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunMemoryBackendOpensNothing(t *testing.T) {
	cfg := &coreconfig.Config{Store: coreconfig.StoreConfig{Backend: coreconfig.BackendMemory}}
	res, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noLogger,
		Connect: func(context.Context, coredatabase.Config) (*sqlx.DB, error) {
			t.Fatal("connect must not be called for memory backend")
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.DB != nil || res.Redis != nil {
		t.Fatalf("unexpected connections: %+v", res)
	}
	if err := res.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRunPostgresMigrationFailure(t *testing.T) {
	boom := errors.New("boom")
	cfg := &coreconfig.Config{Store: coreconfig.StoreConfig{Backend: coreconfig.BackendPostgres}}
	_, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noLogger,
		Migrate:    func(context.Context, coredatabase.Config) error { return boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected migration error, got %v", err)
	}
}

func TestRunRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &coreconfig.Config{Store: coreconfig.StoreConfig{
		Backend: coreconfig.BackendRedis,
		Redis:   coreconfig.RedisConfig{Addr: mr.Addr()},
	}}
	res, err := Run(context.Background(), Options{Config: cfg, LoggerInit: noLogger})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	defer res.Close()
	if res.Redis == nil {
		t.Fatal("expected redis client")
	}
}

func TestConnectRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := ConnectRedis(context.Background(), coreconfig.RedisConfig{Addr: addr}); err == nil {
		t.Fatal("expected ping error")
	}
}

func TestRunNilConfig(t *testing.T) {
	if _, err := Run(context.Background(), Options{}); err == nil {
		t.Fatal("expected error")
	}
}
