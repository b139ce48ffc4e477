//go:build integration

package persistence

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/application/store"
	"github.com/procurement/backend/internal/infrastructure/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newPostgresDB starts a disposable PostgreSQL container and applies the SQL
// migrations to it
func newPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("procurement_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(10)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, findMigrationsPath(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())

	return db
}

func findMigrationsPath(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok)

	dir := filepath.Dir(filename)
	for i := 0; i < 5; i++ {
		path := filepath.Join(dir, "migrations")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		dir = filepath.Dir(dir)
	}
	t.Fatal("migrations directory not found")
	return ""
}

// TestPostgres_ConcurrentDecrement drives many concurrent conditional
// decrements against one listing. Exactly quantity/step succeed and the
// stored quantity ends at zero.
func TestPostgres_ConcurrentDecrement(t *testing.T) {
	db := newPostgresDB(t)
	seeded := seedListing(t, db, "x1", 10)
	gs := NewGormStore(db)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := gs.Execute(ctx, func(repos store.Repositories) error {
				if _, err := repos.Listings().FindByIDForUpdate(ctx, seeded.Listing.ID); err != nil {
					return err
				}
				ok, err := repos.Listings().DecrementQuantity(ctx, seeded.Listing.ID, 2)
				if err != nil {
					return err
				}
				if ok {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	listing, err := gs.Listings().FindByID(ctx, seeded.Listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, listing.Quantity)
}

func TestPostgres_SchemaMatchesModels(t *testing.T) {
	db := newPostgresDB(t)
	for _, model := range Models() {
		stmt := &gorm.Statement{DB: db}
		require.NoError(t, stmt.Parse(model))
		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" {
				continue
			}
			assert.True(t, db.Migrator().HasColumn(model, field.DBName),
				"%s.%s missing from migrations", stmt.Schema.Table, field.DBName)
		}
	}

	_, err := NewGormShopRepository(db).FindByPartner(context.Background(), uuid.New())
	assert.Error(t, err)
}
