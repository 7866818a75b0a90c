package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/clicloop/internal/config"
	"github.com/clicloop/internal/models"
	"github.com/google/uuid"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// testPostgres connects to the integration database and applies the schema.
// The test is skipped when -short is set or Postgres is unreachable.
func testPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.PostgresConfig{
		Host:           envOr("POSTGRES_HOST", "localhost"),
		Port:           envOr("POSTGRES_PORT", "5432"),
		Database:       envOr("POSTGRES_DB", "clicloop_test"),
		User:           envOr("POSTGRES_USER", "clicloop"),
		Password:       envOr("POSTGRES_PASSWORD", "clicloop_dev_password"),
		MaxConnections: 5,
	}

	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	if err := NewPostgresMigrator(cfg.DSN(), "../../migrations/postgres").Up(); err != nil {
		t.Fatalf("migrations failed: %v", err)
	}

	return db
}

// testIdentity creates a throwaway identity that is removed after the test
func testIdentity(t *testing.T, db *PostgresDB) string {
	t.Helper()
	ctx := testContext(t)

	repo := NewIdentityRepository(db)
	id := uuid.New().String()
	user := &models.AuthUser{ID: id, Email: id + "@example.com", Name: "Teste", EmailConfirmed: true}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create identity: %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Delete(context.Background(), id)
	})
	return id
}
