package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/quizbot/core/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// previewFiles caps how many migration names a summary line lists.
const previewFiles = 6

// RunMigrations waits for the configured database and applies all up migrations.
func RunMigrations(ctx context.Context, cfg Config) error {
	return MigrateDSN(ctx, cfg.URL())
}

// MigrateDSN applies the embedded migrations to the postgres:// URL dsn.
func MigrateDSN(ctx context.Context, dsn string) error {
	if err := WaitForPostgres(ctx, dsn, 30*time.Second); err != nil {
		migFail(ctx, "db.migrate", err)
		return fmt.Errorf("database not ready: %w", err)
	}

	files := listMigrationFiles()
	preview, cut := logger.SummarizeStrings(files, previewFiles)
	logger.Debug(ctx, "db.migrate", "resolve",
		slog.Int("files_total", len(files)),
		slog.String("files_preview", preview),
		slog.Bool("files_truncated", cut),
	)

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		migFail(ctx, "db.migrate", err)
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	from, _, _ := m.Version()
	start := time.Now()
	err = m.Up()
	took := slog.Duration("duration", logger.Took(start))
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		migFail(ctx, "apply", err, took)
		return fmt.Errorf("migration execution failed: %w", err)
	}

	to, _, _ := m.Version()
	applied := selectApplied(files, uint64(from), uint64(to))
	names, cut := logger.SummarizeStrings(applied, previewFiles)
	status := "ok"
	if len(applied) == 0 {
		status = "skip"
	}
	logger.Info(ctx, "db.migrate", "summary",
		slog.String("status", status),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.String("files_preview", names),
		slog.Bool("files_truncated", cut),
		took,
	)
	return nil
}

func migFail(ctx context.Context, event string, err error, extra ...slog.Attr) {
	logger.Error(ctx, "db.migrate", event, append([]slog.Attr{
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	}, extra...)...)
}

// listMigrationFiles returns the embedded up migrations in version order.
func listMigrationFiles() []string {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names
}

// parseVersion reads the numeric prefix of a migration file; 0 when absent.
func parseVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

// selectApplied returns the files with versions in (from, to].
func selectApplied(files []string, from, to uint64) []string {
	return slices.DeleteFunc(slices.Clone(files), func(f string) bool {
		v := parseVersion(f)
		return v <= from || v > to
	})
}
