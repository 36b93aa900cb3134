//go:build integration

package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caregrid/sentinel/internal/app"
	"github.com/caregrid/sentinel/internal/auth"
	"github.com/caregrid/sentinel/internal/infra"
	"github.com/caregrid/sentinel/internal/metrics"
)

const (
	TestJWTSecret = "integration-test-secret-0123456789abcdef"
	TestDBHost    = "localhost"
	TestDBPort    = 5435
	TestDBUser    = "sentinel"
	TestDBPass    = "sentinel"
	TestDBName    = "sentinel_test"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server *httptest.Server
	Pool   *pgxpool.Pool
	JWTMgr *auth.JWTManager
	Config *infra.Config
	t      *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, "sentinel")
}

func ensureTestDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}

	if !exists {
		_, err = bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName))
		if err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}

	return nil
}

func runMigrations() error {
	projectRoot := findProjectRoot()
	sourceURL := fmt.Sprintf("file://%s/db/migrations", projectRoot)

	m, err := migrate.New(sourceURL, testDSN())
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err.Error() != "no change" {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// findProjectRoot walks up from cwd looking for go.mod.
func findProjectRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
			return
		}

		if err := runMigrations(); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			sharedPool.Close()
			sharedPool = nil
			return
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// testConfig returns config with thresholds tightened for fast tests.
func testConfig(t *testing.T) *infra.Config {
	return &infra.Config{
		JWTSecret:                TestJWTSecret,
		JWTExpiry:                time.Hour,
		FingerprintMode:          "strict",
		MaxLoginAttempts:         3,
		MaxBanAttempts:           5,
		LockoutDuration:          15 * time.Minute,
		BanDuration:              30 * time.Minute,
		MaxSessionLifetime:       8 * time.Hour,
		SessionRotationInterval:  30 * time.Minute,
		PropagationBlockDuration: 24 * time.Hour,
		MaxPrivilegeAttempts:     3,
		ArchiveDir:               t.TempDir(),
	}
}

// NewTestEnv creates a test environment with an httptest.Server backed by the
// real router and test DB.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)
	cfg := testConfig(t)

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	archive, err := infra.NewFilesystemArchive(cfg.ArchiveDir)
	if err != nil {
		t.Fatalf("init archive: %v", err)
	}

	router := app.NewRouter(app.RouterDeps{
		Pool:    pool,
		Config:  cfg,
		JWTMgr:  jwtMgr,
		Metrics: metrics.New(),
		Archive: archive,
		Logger:  logger,
	})

	server := httptest.NewServer(router)

	env := &TestEnv{
		Server: server,
		Pool:   pool,
		JWTMgr: jwtMgr,
		Config: cfg,
		t:      t,
	}

	t.Cleanup(func() {
		server.Close()
		env.CleanAll()
	})

	// Clean before test to ensure isolation
	env.CleanAll()

	return env
}
