package database

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ledgersync/internal/logger"
	"ledgersync/internal/models"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// LocalModels lists every table of the on-device store.
var LocalModels = []interface{}{
	&models.Expense{},
	&models.Income{},
	&models.Category{},
	&models.SyncRun{},
}

// ledgerTables get a secondary (owner_id, date) index that gorm tags cannot
// express on the shared embedded owner column.
var ledgerTables = []string{"expenses", "income"}

// OpenLocal opens (creating if needed) the on-device SQLite database and
// migrates its schema. dsn is a path or a sqlite URI such as
// "file:x?mode=memory&cache=shared".
func OpenLocal(dsn string) (*gorm.DB, error) {
	if !isURI(dsn) {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB: %w", err)
	}
	// One connection serializes writers from propagation goroutines and keeps
	// shared-cache in-memory databases alive for the life of the handle.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := MigrateLocal(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// MigrateLocal creates or updates the on-device schema. Safe to call
// repeatedly.
func MigrateLocal(db *gorm.DB) error {
	if err := db.AutoMigrate(LocalModels...); err != nil {
		return fmt.Errorf("failed to migrate local database: %w", err)
	}
	for _, table := range ledgerTables {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_owner_date ON %s (owner_id, date)", table, table)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to index %s: %w", table, err)
		}
	}
	return nil
}

// Close closes the underlying connection pool of a gorm handle.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isURI(dsn string) bool {
	return len(dsn) >= 5 && dsn[:5] == "file:"
}

// Manager handles the remote Postgres database
type Manager struct {
	db  *gorm.DB
	dsn string
	url string
}

// NewManager connects to the remote Postgres database. dsn is the key/value
// form used by gorm and pgx; url is the postgres:// form used by migrations.
func NewManager(dsn, url string) (*Manager, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Manager{db: db, dsn: dsn, url: url}, nil
}

// RunMigrations applies pending remote schema migrations.
func (m *Manager) RunMigrations() error {
	logger.Get().Info("Running database migrations...")

	mig, err := NewMigrator(m.url)
	if err != nil {
		return err
	}
	defer CloseMigrator(mig)

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	logger.Get().Info("Database migrations completed successfully")
	return nil
}

// NewMigrator returns a migrate instance over the embedded remote schema.
func NewMigrator(url string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	mig, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return mig, nil
}

// CloseMigrator releases both ends of a migrate instance, logging failures.
func CloseMigrator(mig *migrate.Migrate) {
	srcErr, dbErr := mig.Close()
	if srcErr != nil {
		logger.Get().Warnf("migrate source close error: %v", srcErr)
	}
	if dbErr != nil {
		logger.Get().Warnf("migrate database close error: %v", dbErr)
	}
}

// DB returns the underlying GORM database instance
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// DSN returns the key/value connection string, used by the change listener
// to open its dedicated LISTEN connection.
func (m *Manager) DSN() string {
	return m.dsn
}
