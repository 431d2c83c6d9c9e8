package regtypes

import (
	"time"

	"github.com/uptrace/bun"
)

// TimeAuditable provides common timestamp fields for all auditable entities
type TimeAuditable struct {
	CreatedAt time.Time `bun:"created_at,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,default:current_timestamp" json:"updatedAt"`
}

// Namespace represents the namespaces table. Levels is the full
// multi-level name joined with the 0x1F unit separator.
type Namespace struct {
	bun.BaseModel `bun:"table:namespaces"`
	TimeAuditable

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	Levels     string `bun:"levels,notnull,unique" json:"levels"`
	Properties string `bun:"properties,notnull,default:'{}'" json:"properties"`
	TableCount int    `bun:"table_count,notnull,default:0" json:"table_count"`
}

// Table is the scalar state row of one catalog table. The pointer fields
// of the metadata document live in their own tables; this row carries the
// counters and pointers the commit path checks and bumps.
type Table struct {
	bun.BaseModel `bun:"table:tables,alias:t"`
	TimeAuditable

	ID                 int64  `bun:"id,pk,autoincrement" json:"id"`
	NamespaceID        int64  `bun:"namespace_id,notnull" json:"namespace_id"`
	Name               string `bun:"name,notnull" json:"name"`
	TableUUID          string `bun:"table_uuid,notnull,unique" json:"table_uuid"`
	Location           string `bun:"location,notnull" json:"location"`
	MetadataLocation   string `bun:"metadata_location,notnull" json:"metadata_location"`
	FormatVersion      int    `bun:"format_version,notnull,default:2" json:"format_version"`
	LastSequenceNumber int64  `bun:"last_sequence_number,notnull,default:0" json:"last_sequence_number"`
	LastUpdatedMs      int64  `bun:"last_updated_ms,notnull" json:"last_updated_ms"`
	LastColumnID       int    `bun:"last_column_id,notnull,default:0" json:"last_column_id"`
	LastPartitionID    int    `bun:"last_partition_id,notnull,default:0" json:"last_partition_id"`
	CurrentSchemaID    int    `bun:"current_schema_id,notnull,default:0" json:"current_schema_id"`
	DefaultSpecID      int    `bun:"default_spec_id,notnull,default:0" json:"default_spec_id"`
	DefaultSortOrderID int    `bun:"default_sort_order_id,notnull,default:0" json:"default_sort_order_id"`
	CurrentSnapshotID  *int64 `bun:"current_snapshot_id" json:"current_snapshot_id,omitempty"`
	Properties         string `bun:"properties,notnull,default:'{}'" json:"properties"`
	RowLineage         bool   `bun:"row_lineage,notnull,default:false" json:"row_lineage"`
	NextRowID          *int64 `bun:"next_row_id" json:"next_row_id,omitempty"`
	Staged             bool   `bun:"staged,notnull,default:false" json:"staged"`

	// Relations
	Namespace *Namespace `bun:"rel:belongs-to,join:namespace_id=id"`
}

// TableSchema stores one entry of a table's append-only schema registry
// as the raw JSON schema document
type TableSchema struct {
	bun.BaseModel `bun:"table:table_schemas"`
	TimeAuditable

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	TableID    int64  `bun:"table_id,notnull" json:"table_id"`
	SchemaID   int    `bun:"schema_id,notnull" json:"schema_id"`
	SchemaJSON string `bun:"schema_json,notnull" json:"schema_json"`

	Table *Table `bun:"rel:belongs-to,join:table_id=id"`
}

// PartitionSpec stores one entry of a table's partition spec registry
type PartitionSpec struct {
	bun.BaseModel `bun:"table:partition_specs"`
	TimeAuditable

	ID       int64  `bun:"id,pk,autoincrement" json:"id"`
	TableID  int64  `bun:"table_id,notnull" json:"table_id"`
	SpecID   int    `bun:"spec_id,notnull" json:"spec_id"`
	SpecJSON string `bun:"spec_json,notnull" json:"spec_json"`

	Table *Table `bun:"rel:belongs-to,join:table_id=id"`
}

// SortOrder stores one entry of a table's sort order registry
type SortOrder struct {
	bun.BaseModel `bun:"table:sort_orders"`
	TimeAuditable

	ID        int64  `bun:"id,pk,autoincrement" json:"id"`
	TableID   int64  `bun:"table_id,notnull" json:"table_id"`
	OrderID   int    `bun:"order_id,notnull" json:"order_id"`
	OrderJSON string `bun:"order_json,notnull" json:"order_json"`

	Table *Table `bun:"rel:belongs-to,join:table_id=id"`
}

// Snapshot is one immutable snapshot row
type Snapshot struct {
	bun.BaseModel `bun:"table:snapshots"`
	TimeAuditable

	ID               int64  `bun:"id,pk,autoincrement" json:"id"`
	TableID          int64  `bun:"table_id,notnull" json:"table_id"`
	SnapshotID       int64  `bun:"snapshot_id,notnull" json:"snapshot_id"`
	ParentSnapshotID *int64 `bun:"parent_snapshot_id" json:"parent_snapshot_id,omitempty"`
	SequenceNumber   int64  `bun:"sequence_number,notnull" json:"sequence_number"`
	TimestampMs      int64  `bun:"timestamp_ms,notnull" json:"timestamp_ms"`
	ManifestList     string `bun:"manifest_list,notnull" json:"manifest_list"`
	SummaryJSON      string `bun:"summary_json,notnull,default:'{}'" json:"summary_json"`
	SchemaID         *int   `bun:"schema_id" json:"schema_id,omitempty"`

	Table *Table `bun:"rel:belongs-to,join:table_id=id"`
}

// SnapshotRef is a named branch or tag row
type SnapshotRef struct {
	bun.BaseModel `bun:"table:snapshot_refs"`
	TimeAuditable

	ID                 int64  `bun:"id,pk,autoincrement" json:"id"`
	TableID            int64  `bun:"table_id,notnull" json:"table_id"`
	Name               string `bun:"name,notnull" json:"name"`
	SnapshotID         int64  `bun:"snapshot_id,notnull" json:"snapshot_id"`
	RefType            string `bun:"ref_type,notnull" json:"ref_type"`
	MinSnapshotsToKeep *int   `bun:"min_snapshots_to_keep" json:"min_snapshots_to_keep,omitempty"`
	MaxSnapshotAgeMs   *int64 `bun:"max_snapshot_age_ms" json:"max_snapshot_age_ms,omitempty"`
	MaxRefAgeMs        *int64 `bun:"max_ref_age_ms" json:"max_ref_age_ms,omitempty"`

	Table *Table `bun:"rel:belongs-to,join:table_id=id"`
}

// SnapshotLogEntry records one historical move of the current snapshot
type SnapshotLogEntry struct {
	bun.BaseModel `bun:"table:snapshot_log"`

	ID          int64 `bun:"id,pk,autoincrement" json:"id"`
	TableID     int64 `bun:"table_id,notnull" json:"table_id"`
	SnapshotID  int64 `bun:"snapshot_id,notnull" json:"snapshot_id"`
	TimestampMs int64 `bun:"timestamp_ms,notnull" json:"timestamp_ms"`

	Table *Table `bun:"rel:belongs-to,join:table_id=id"`
}

// MetadataLogEntry records one committed metadata file location
type MetadataLogEntry struct {
	bun.BaseModel `bun:"table:metadata_log"`

	ID           int64  `bun:"id,pk,autoincrement" json:"id"`
	TableID      int64  `bun:"table_id,notnull" json:"table_id"`
	MetadataFile string `bun:"metadata_file,notnull" json:"metadata_file"`
	TimestampMs  int64  `bun:"timestamp_ms,notnull" json:"timestamp_ms"`

	Table *Table `bun:"rel:belongs-to,join:table_id=id"`
}

// StorageCredential maps a storage location prefix to an opaque config
// blob. Credentials with a table id apply only to that table and win over
// catalog-wide rows on equal prefixes.
type StorageCredential struct {
	bun.BaseModel `bun:"table:storage_credentials"`
	TimeAuditable

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	Prefix     string `bun:"prefix,notnull" json:"prefix"`
	Warehouse  string `bun:"warehouse,notnull" json:"warehouse"`
	ConfigJSON string `bun:"config_json,notnull,default:'{}'" json:"config_json"`
	TableID    *int64 `bun:"table_id" json:"table_id,omitempty"`

	Table *Table `bun:"rel:belongs-to,join:table_id=id"`
}

// OperationMetric is one client-reported metrics document (scan or
// commit reports), stored as received
type OperationMetric struct {
	bun.BaseModel `bun:"table:operation_metrics"`
	TimeAuditable

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	TableID    int64  `bun:"table_id,notnull" json:"table_id"`
	ReportType string `bun:"report_type,notnull" json:"report_type"`
	ReportJSON string `bun:"report_json,notnull" json:"report_json"`

	Table *Table `bun:"rel:belongs-to,join:table_id=id"`
}

// SchemaVersion tracks applied registry migrations
type SchemaVersion struct {
	bun.BaseModel `bun:"table:schema_versions"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	Version     int       `bun:"version,notnull,unique" json:"version"`
	Name        string    `bun:"name,notnull" json:"name"`
	Description string    `bun:"description" json:"description"`
	AppliedAt   time.Time `bun:"applied_at,default:current_timestamp" json:"applied_at"`
}
