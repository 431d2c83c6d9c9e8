package migrations

import (
	"context"

	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/icecapdb/icecap/server/catalog/registry/regtypes"
	"github.com/uptrace/bun"
)

// Package-specific error codes for migrations
var (
	MigrationTableCreationFailed = errors.MustNewCode("migrations.table_creation_failed")
	MigrationIndexCreationFailed = errors.MustNewCode("migrations.index_creation_failed")
)

// Migration001 creates the initial catalog schema
type Migration001 struct{}

// Version returns the migration version
func (m *Migration001) Version() int {
	return 1
}

// Name returns the migration name
func (m *Migration001) Name() string {
	return "initial_catalog_schema"
}

// Description returns the migration description
func (m *Migration001) Description() string {
	return "Initial catalog schema with namespaces, tables, registries, snapshots, refs and credentials"
}

// Up runs the migration
func (m *Migration001) Up(ctx context.Context, tx bun.Tx) error {
	// Namespaces table
	if _, err := tx.NewCreateTable().
		Model((*regtypes.Namespace)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.New(MigrationTableCreationFailed, "failed to create namespaces table", err)
	}

	// Tables table (main table registry)
	if _, err := tx.NewCreateTable().
		Model((*regtypes.Table)(nil)).
		ForeignKey(`("namespace_id") REFERENCES "namespaces" ("id") ON DELETE RESTRICT`).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.New(MigrationTableCreationFailed, "failed to create tables table", err)
	}

	// Append-only schema registry
	if _, err := tx.NewCreateTable().
		Model((*regtypes.TableSchema)(nil)).
		ForeignKey(`("table_id") REFERENCES "tables" ("id") ON DELETE CASCADE`).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.New(MigrationTableCreationFailed, "failed to create table_schemas table", err)
	}

	// Partition spec registry
	if _, err := tx.NewCreateTable().
		Model((*regtypes.PartitionSpec)(nil)).
		ForeignKey(`("table_id") REFERENCES "tables" ("id") ON DELETE CASCADE`).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.New(MigrationTableCreationFailed, "failed to create partition_specs table", err)
	}

	// Sort order registry
	if _, err := tx.NewCreateTable().
		Model((*regtypes.SortOrder)(nil)).
		ForeignKey(`("table_id") REFERENCES "tables" ("id") ON DELETE CASCADE`).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.New(MigrationTableCreationFailed, "failed to create sort_orders table", err)
	}

	// Snapshots
	if _, err := tx.NewCreateTable().
		Model((*regtypes.Snapshot)(nil)).
		ForeignKey(`("table_id") REFERENCES "tables" ("id") ON DELETE CASCADE`).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.New(MigrationTableCreationFailed, "failed to create snapshots table", err)
	}

	// Snapshot refs (branches and tags)
	if _, err := tx.NewCreateTable().
		Model((*regtypes.SnapshotRef)(nil)).
		ForeignKey(`("table_id") REFERENCES "tables" ("id") ON DELETE CASCADE`).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.New(MigrationTableCreationFailed, "failed to create snapshot_refs table", err)
	}

	// Snapshot log
	if _, err := tx.NewCreateTable().
		Model((*regtypes.SnapshotLogEntry)(nil)).
		ForeignKey(`("table_id") REFERENCES "tables" ("id") ON DELETE CASCADE`).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.New(MigrationTableCreationFailed, "failed to create snapshot_log table", err)
	}

	// Metadata log
	if _, err := tx.NewCreateTable().
		Model((*regtypes.MetadataLogEntry)(nil)).
		ForeignKey(`("table_id") REFERENCES "tables" ("id") ON DELETE CASCADE`).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.New(MigrationTableCreationFailed, "failed to create metadata_log table", err)
	}

	// Storage credentials. No foreign key on table_id: credential rows are
	// admin-provisioned and may be registered before the table they scope.
	if _, err := tx.NewCreateTable().
		Model((*regtypes.StorageCredential)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.New(MigrationTableCreationFailed, "failed to create storage_credentials table", err)
	}

	// Operation metrics reports
	if _, err := tx.NewCreateTable().
		Model((*regtypes.OperationMetric)(nil)).
		ForeignKey(`("table_id") REFERENCES "tables" ("id") ON DELETE CASCADE`).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.New(MigrationTableCreationFailed, "failed to create operation_metrics table", err)
	}

	// Indexes and uniqueness constraints
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_namespaces_levels ON namespaces(levels)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tables_namespace_name ON tables(namespace_id, name)`,
		`CREATE INDEX IF NOT EXISTS idx_tables_uuid ON tables(table_uuid)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_table_schemas_table_schema ON table_schemas(table_id, schema_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_partition_specs_table_spec ON partition_specs(table_id, spec_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sort_orders_table_order ON sort_orders(table_id, order_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_table_snapshot ON snapshots(table_id, snapshot_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshot_refs_table_name ON snapshot_refs(table_id, name)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshot_log_table ON snapshot_log(table_id)`,
		`CREATE INDEX IF NOT EXISTS idx_metadata_log_table ON metadata_log(table_id)`,
		`CREATE INDEX IF NOT EXISTS idx_storage_credentials_prefix ON storage_credentials(prefix)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_storage_credentials_scope ON storage_credentials(prefix, warehouse, ifnull(table_id, 0))`,
		`CREATE INDEX IF NOT EXISTS idx_operation_metrics_table ON operation_metrics(table_id)`,
	}
	for _, idx := range indexes {
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			return errors.New(MigrationIndexCreationFailed, "failed to create index", err).AddContext("sql", idx)
		}
	}

	return nil
}
