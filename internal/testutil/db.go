//go:build integration

// Package testutil provides test utilities for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// cleanupMutex serializes test company cleanup to prevent deadlocks
// between DROP SCHEMA CASCADE and DELETE FROM companies operations.
var cleanupMutex sync.Mutex

// Advisory lock key for database-level cleanup serialization. Using a
// fixed hash ensures all cleanup operations use the same lock.
const cleanupAdvisoryLockKey = 12345678

// TestCompany holds the company a test provisioned, so callers can scope
// queries to its schema and tear it down afterward.
type TestCompany struct {
	ID         string
	SchemaName string
	Name       string
	Slug       string
}

// SetupTestDB connects to the test database. If DATABASE_URL is set, it
// uses that database; otherwise it starts a PostgreSQL testcontainer.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	return GetTestContainer(t)
}

// SetupTestSchema provisions an isolated tenant schema directly via
// create_tenant_schema, without a backing companies row. Useful for tests
// that only exercise a schema's tables and don't need CreateCompany's
// insert-plus-provision transaction.
func SetupTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schemaName := testSchemaName(t)

	ctx := context.Background()
	if _, err := pool.Exec(ctx, "SELECT create_tenant_schema($1)", schemaName); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		TeardownTestSchema(t, pool, schemaName)
	})

	return schemaName
}

func testSchemaName(t *testing.T) string {
	testName := strings.ToLower(t.Name())
	testName = strings.ReplaceAll(testName, "/", "_")
	testName = strings.ReplaceAll(testName, " ", "_")
	if len(testName) > 30 {
		testName = testName[:30]
	}
	return fmt.Sprintf("test_%s_%d", testName, time.Now().UnixNano()%100000)
}

// CreateTestCompany inserts a company row and provisions its schema, mirroring
// internal/tenant.PostgresRepository.CreateCompany. The company is torn down
// automatically after the test.
func CreateTestCompany(t *testing.T, pool *pgxpool.Pool) *TestCompany {
	t.Helper()

	ctx := context.Background()

	companyID := uuid.New().String()
	testName := testSchemaName(t)
	slug := testName
	schemaName := fmt.Sprintf("tenant_%s", strings.ReplaceAll(slug, "-", "_"))
	name := fmt.Sprintf("Test Company %s", testName)

	now := time.Now()

	if _, err := pool.Exec(ctx, "SET search_path TO public"); err != nil {
		t.Fatalf("failed to reset search_path: %v", err)
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO companies (id, name, slug, schema_name, closing_day, payment_day, payment_month_offset,
			health_insurance_prefecture, care_insurance_applicable, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, $10, $11)
	`, companyID, name, slug, schemaName, 31, 25, 1, "東京都", false, now, now)
	if err != nil {
		t.Fatalf("failed to create test company: %v", err)
	}

	if _, err := pool.Exec(ctx, "SELECT create_tenant_schema($1)", schemaName); err != nil {
		t.Fatalf("failed to create tenant schema: %v", err)
	}

	company := &TestCompany{
		ID:         companyID,
		SchemaName: schemaName,
		Name:       name,
		Slug:       slug,
	}

	t.Cleanup(func() {
		cleanupTestCompany(t, pool, company)
	})

	return company
}

// TeardownTestSchema drops a test schema.
func TeardownTestSchema(t *testing.T, pool *pgxpool.Pool, schemaName string) {
	t.Helper()

	cleanupMutex.Lock()
	defer cleanupMutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// pg_advisory_lock is session-level, so cleanup must run on one
	// dedicated connection rather than whichever the pool hands back.
	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Logf("warning: failed to acquire connection for schema cleanup: %v", err)
		return
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", cleanupAdvisoryLockKey); err != nil {
		t.Logf("warning: failed to acquire advisory lock for schema cleanup: %v", err)
	}
	defer func() {
		_, _ = conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", cleanupAdvisoryLockKey)
	}()

	if _, err := conn.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName)); err != nil {
		t.Logf("warning: failed to drop test schema %s: %v", schemaName, err)
	}
}

func cleanupTestCompany(t *testing.T, pool *pgxpool.Pool, company *TestCompany) {
	t.Helper()

	cleanupMutex.Lock()
	defer cleanupMutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Logf("warning: failed to acquire connection for company cleanup: %v", err)
		return
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", cleanupAdvisoryLockKey); err != nil {
		t.Logf("warning: failed to acquire advisory lock for company cleanup: %v", err)
	}
	defer func() {
		_, _ = conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", cleanupAdvisoryLockKey)
	}()

	_, _ = conn.Exec(ctx, "SET search_path TO public")

	if _, err := conn.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", company.SchemaName)); err != nil {
		t.Logf("warning: failed to drop tenant schema %s: %v", company.SchemaName, err)
	}

	if _, err := conn.Exec(ctx, "DELETE FROM public.companies WHERE id = $1", company.ID); err != nil {
		t.Logf("warning: failed to delete test company %s: %v", company.ID, err)
	}
}

// SetupGormDB creates a GORM database connection for testing. If
// DATABASE_URL is set, it uses that database; otherwise it starts a
// PostgreSQL testcontainer.
func SetupGormDB(t *testing.T) *gorm.DB {
	t.Helper()

	var dbURL string
	if envURL := os.Getenv("DATABASE_URL"); envURL != "" {
		dbURL = envURL
	} else {
		pool := GetTestContainer(t)
		if containerInstance != nil {
			dbURL = containerInstance.ConnStr
		} else {
			config := pool.Config().ConnConfig
			dbURL = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
				config.User, config.Password, config.Host, config.Port, config.Database)
		}
	}

	db, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to connect to database with GORM: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get underlying sql.DB: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	t.Cleanup(func() {
		if err := sqlDB.Close(); err != nil {
			t.Logf("warning: failed to close GORM connection: %v", err)
		}
	})

	return db
}
