package registry

import (
	"context"
	"database/sql"
	"time"

	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/icecapdb/icecap/server/catalog/registry/migrations"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Package-specific error codes for migrations
var (
	RegistryMigrationFailed = errors.MustNewCode("registry.migration_failed")
	RegistryOpenFailed      = errors.MustNewCode("registry.open_failed")
)

// Migration interface that all migration files must implement
type Migration interface {
	Version() int
	Name() string
	Description() string
	Up(ctx context.Context, tx bun.Tx) error
}

// MigrationManager runs registry schema migrations over bun
type MigrationManager struct {
	db     *bun.DB
	logger zerolog.Logger
}

// OpenDatabase opens the registry SQLite database and wraps it in bun.
// Write transactions take the write lock at BEGIN so concurrent
// committers queue on the busy timeout instead of failing upgrades.
func OpenDatabase(dbPath string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, errors.New(RegistryOpenFailed, "failed to open SQLite database", err).AddContext("path", dbPath)
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// NewMigrationManager creates a migration manager over an open database
func NewMigrationManager(db *bun.DB, logger zerolog.Logger) *MigrationManager {
	return &MigrationManager{
		db:     db,
		logger: logger.With().Str("component", "registry-migrations").Logger(),
	}
}

// MigrateToLatest runs all pending migrations in one transaction
func (mm *MigrationManager) MigrateToLatest(ctx context.Context) error {
	currentVersion, err := mm.GetCurrentVersion(ctx)
	if err != nil {
		return errors.New(RegistryMigrationFailed, "failed to get current version", err)
	}

	var pending []Migration
	for _, migration := range mm.availableMigrations() {
		if migration.Version() > currentVersion {
			pending = append(pending, migration)
		}
	}
	if len(pending) == 0 {
		mm.logger.Debug().Int("version", currentVersion).Msg("No pending migrations")
		return nil
	}

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(RegistryMigrationFailed, "failed to begin transaction for migrations", err)
	}

	for _, migration := range pending {
		mm.logger.Info().Int("version", migration.Version()).Str("name", migration.Name()).Msg("Running migration")
		if err := migration.Up(ctx, tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				mm.logger.Warn().Err(rbErr).Msg("Failed to rollback migration transaction")
			}
			return errors.New(RegistryMigrationFailed, "migration failed", err).
				AddContext("version", migration.Version()).
				AddContext("name", migration.Name())
		}
	}

	// Record all migrations within the same transaction
	now := time.Now().UTC()
	for _, migration := range pending {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO schema_versions (version, name, description, applied_at) VALUES (?, ?, ?, ?)
		`, migration.Version(), migration.Name(), migration.Description(), now.Format(time.RFC3339))
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				mm.logger.Warn().Err(rbErr).Msg("Failed to rollback migration transaction")
			}
			return errors.New(RegistryMigrationFailed, "failed to record migration", err).
				AddContext("version", migration.Version())
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.New(RegistryMigrationFailed, "failed to commit migrations", err)
	}

	mm.logger.Info().Int("count", len(pending)).Msg("Migrations completed")
	return nil
}

// availableMigrations returns all known migrations in version order
func (mm *MigrationManager) availableMigrations() []Migration {
	return []Migration{
		&migrations.Migration001{}, // from migrations/001_start.go
		// Future migrations will be added here
	}
}

// GetCurrentVersion returns the highest applied migration version
func (mm *MigrationManager) GetCurrentVersion(ctx context.Context) (int, error) {
	exists, err := mm.tableExists(ctx, "schema_versions")
	if err != nil {
		return 0, errors.New(RegistryMigrationFailed, "failed to check schema_versions table", err)
	}
	if !exists {
		if err := mm.createVersionsTable(ctx); err != nil {
			return 0, errors.New(RegistryMigrationFailed, "failed to create schema_versions table", err)
		}
		return 0, nil
	}

	var version int
	err = mm.db.NewSelect().
		Column("version").
		Table("schema_versions").
		Order("version DESC").
		Limit(1).
		Scan(ctx, &version)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, errors.New(RegistryMigrationFailed, "failed to get current version", err)
	}
	return version, nil
}

func (mm *MigrationManager) createVersionsTable(ctx context.Context) error {
	_, err := mm.db.NewCreateTable().
		Model(&struct {
			bun.BaseModel `bun:"table:schema_versions"`
			ID            int64  `bun:"id,pk,autoincrement"`
			Version       int    `bun:"version,notnull,unique"`
			Name          string `bun:"name,type:text,notnull"`
			Description   string `bun:"description,type:text"`
			AppliedAt     string `bun:"applied_at,type:text,notnull"`
		}{}).
		IfNotExists().
		Exec(ctx)
	return err
}

func (mm *MigrationManager) tableExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := mm.db.NewSelect().
		ColumnExpr("count(*)").
		Table("sqlite_master").
		Where("type = 'table' AND name = ?", name).
		Scan(ctx, &count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
