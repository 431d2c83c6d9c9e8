package metadata

import (
	"encoding/json"

	"github.com/icecapdb/icecap/pkg/errors"
)

// Package-specific error codes for the metadata model
var (
	ErrSchemaNotFound    = errors.MustNewCode("metadata.schema_not_found").WithClass(errors.ClassInvalidArgument)
	ErrSpecNotFound      = errors.MustNewCode("metadata.spec_not_found").WithClass(errors.ClassInvalidArgument)
	ErrSortOrderNotFound = errors.MustNewCode("metadata.sort_order_not_found").WithClass(errors.ClassInvalidArgument)
	ErrSnapshotNotFound  = errors.MustNewCode("metadata.snapshot_not_found").WithClass(errors.ClassInvalidArgument)
)

// MainBranch is the implicit default branch name
const MainBranch = "main"

// Format versions supported by the catalog
const (
	FormatV1 = 1
	FormatV2 = 2
)

// RefType distinguishes branches from tags
type RefType string

const (
	BranchType RefType = "branch"
	TagType    RefType = "tag"
)

// StructField is a single field of a struct schema. Nested types stay
// opaque; the catalog records schemas, it never evaluates them.
type StructField struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Type     json.RawMessage `json:"type"`
	Required bool            `json:"required"`
	Doc      string          `json:"doc,omitempty"`
}

// Schema is a versioned table schema
type Schema struct {
	Type               string        `json:"type"`
	Fields             []StructField `json:"fields"`
	SchemaID           int           `json:"schema-id"`
	IdentifierFieldIDs []int         `json:"identifier-field-ids,omitempty"`
}

// HighestFieldID returns the largest field id present in the schema
func (s *Schema) HighestFieldID() int {
	max := 0
	for _, f := range s.Fields {
		if f.ID > max {
			max = f.ID
		}
	}
	return max
}

// PartitionField maps a source column through a transform
type PartitionField struct {
	FieldID   int    `json:"field-id"`
	SourceID  int    `json:"source-id"`
	Name      string `json:"name"`
	Transform string `json:"transform"`
}

// PartitionSpec is a versioned partition layout
type PartitionSpec struct {
	SpecID int              `json:"spec-id"`
	Fields []PartitionField `json:"fields"`
}

// HighestFieldID returns the largest partition field id in the spec
func (p *PartitionSpec) HighestFieldID() int {
	max := 0
	for _, f := range p.Fields {
		if f.FieldID > max {
			max = f.FieldID
		}
	}
	return max
}

// SortField is one column of a sort order
type SortField struct {
	SourceID  int    `json:"source-id"`
	Transform string `json:"transform"`
	Direction string `json:"direction"`
	NullOrder string `json:"null-order"`
}

// SortOrder is a versioned sort order
type SortOrder struct {
	OrderID int         `json:"order-id"`
	Fields  []SortField `json:"fields"`
}

// Summary describes the operation that produced a snapshot plus free-form
// string metrics. On the wire it is a flat object with a required
// "operation" key.
type Summary struct {
	Operation string
	Other     map[string]string
}

func (s Summary) MarshalJSON() ([]byte, error) {
	flat := make(map[string]string, len(s.Other)+1)
	for k, v := range s.Other {
		flat[k] = v
	}
	flat["operation"] = s.Operation
	return json.Marshal(flat)
}

func (s *Summary) UnmarshalJSON(data []byte) error {
	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	s.Operation = flat["operation"]
	delete(flat, "operation")
	if len(flat) > 0 {
		s.Other = flat
	} else {
		s.Other = nil
	}
	return nil
}

// Snapshot is an immutable point-in-time view of a table's data
type Snapshot struct {
	SnapshotID       int64   `json:"snapshot-id"`
	ParentSnapshotID *int64  `json:"parent-snapshot-id,omitempty"`
	SequenceNumber   int64   `json:"sequence-number"`
	TimestampMs      int64   `json:"timestamp-ms"`
	ManifestList     string  `json:"manifest-list"`
	Summary          Summary `json:"summary"`
	SchemaID         *int    `json:"schema-id,omitempty"`
}

// SnapshotRef is a named branch or tag pointing at a snapshot
type SnapshotRef struct {
	SnapshotID         int64   `json:"snapshot-id"`
	Type               RefType `json:"type"`
	MinSnapshotsToKeep *int    `json:"min-snapshots-to-keep,omitempty"`
	MaxSnapshotAgeMs   *int64  `json:"max-snapshot-age-ms,omitempty"`
	MaxRefAgeMs        *int64  `json:"max-ref-age-ms,omitempty"`
}

// IsBranch reports whether the ref is a branch
func (r SnapshotRef) IsBranch() bool {
	return r.Type == BranchType
}

// SnapshotLogEntry records a historical move of the current snapshot
type SnapshotLogEntry struct {
	SnapshotID  int64 `json:"snapshot-id"`
	TimestampMs int64 `json:"timestamp-ms"`
}

// MetadataLogEntry records one committed metadata file location
type MetadataLogEntry struct {
	MetadataFile string `json:"metadata-file"`
	TimestampMs  int64  `json:"timestamp-ms"`
}

// TableMetadata is the complete metadata document for one table version.
// Registries (schemas, partition-specs, sort-orders) are append-only:
// entries are superseded, never removed.
type TableMetadata struct {
	FormatVersion      int                    `json:"format-version"`
	TableUUID          string                 `json:"table-uuid"`
	Location           string                 `json:"location"`
	LastSequenceNumber int64                  `json:"last-sequence-number"`
	LastUpdatedMs      int64                  `json:"last-updated-ms"`
	LastColumnID       int                    `json:"last-column-id"`
	Schemas            []Schema               `json:"schemas"`
	CurrentSchemaID    int                    `json:"current-schema-id"`
	PartitionSpecs     []PartitionSpec        `json:"partition-specs"`
	DefaultSpecID      int                    `json:"default-spec-id"`
	LastPartitionID    int                    `json:"last-partition-id"`
	SortOrders         []SortOrder            `json:"sort-orders"`
	DefaultSortOrderID int                    `json:"default-sort-order-id"`
	Properties         map[string]string      `json:"properties,omitempty"`
	CurrentSnapshotID  *int64                 `json:"current-snapshot-id,omitempty"`
	Snapshots          []Snapshot             `json:"snapshots,omitempty"`
	Refs               map[string]SnapshotRef `json:"refs,omitempty"`
	SnapshotLog        []SnapshotLogEntry     `json:"snapshot-log,omitempty"`
	MetadataLog        []MetadataLogEntry     `json:"metadata-log,omitempty"`
	RowLineage         bool                   `json:"row-lineage,omitempty"`
	NextRowID          *int64                 `json:"next-row-id,omitempty"`
}

// SchemaByID looks up a schema in the registry
func (m *TableMetadata) SchemaByID(id int) (*Schema, error) {
	for i := range m.Schemas {
		if m.Schemas[i].SchemaID == id {
			return &m.Schemas[i], nil
		}
	}
	return nil, errors.Newf(ErrSchemaNotFound, "schema %d is not in the schema registry", id)
}

// SpecByID looks up a partition spec in the registry
func (m *TableMetadata) SpecByID(id int) (*PartitionSpec, error) {
	for i := range m.PartitionSpecs {
		if m.PartitionSpecs[i].SpecID == id {
			return &m.PartitionSpecs[i], nil
		}
	}
	return nil, errors.Newf(ErrSpecNotFound, "partition spec %d is not in the spec registry", id)
}

// SortOrderByID looks up a sort order in the registry
func (m *TableMetadata) SortOrderByID(id int) (*SortOrder, error) {
	for i := range m.SortOrders {
		if m.SortOrders[i].OrderID == id {
			return &m.SortOrders[i], nil
		}
	}
	return nil, errors.Newf(ErrSortOrderNotFound, "sort order %d is not in the sort order registry", id)
}

// CurrentSchema returns the active schema
func (m *TableMetadata) CurrentSchema() (*Schema, error) {
	return m.SchemaByID(m.CurrentSchemaID)
}

// SnapshotByID looks up a snapshot
func (m *TableMetadata) SnapshotByID(id int64) (*Snapshot, error) {
	for i := range m.Snapshots {
		if m.Snapshots[i].SnapshotID == id {
			return &m.Snapshots[i], nil
		}
	}
	return nil, errors.Newf(ErrSnapshotNotFound, "snapshot %d not found", id)
}

// Ref returns the named ref, if present
func (m *TableMetadata) Ref(name string) (SnapshotRef, bool) {
	ref, ok := m.Refs[name]
	return ref, ok
}

// CurrentSnapshot returns the snapshot current-snapshot-id points at,
// or nil when the table has no current snapshot
func (m *TableMetadata) CurrentSnapshot() *Snapshot {
	if m.CurrentSnapshotID == nil {
		return nil
	}
	snap, err := m.SnapshotByID(*m.CurrentSnapshotID)
	if err != nil {
		return nil
	}
	return snap
}

// Clone returns a deep copy of the metadata document. The builder mutates
// the copy so a failed commit never leaks partial state into the original.
func (m *TableMetadata) Clone() *TableMetadata {
	out := *m

	out.Schemas = append([]Schema(nil), m.Schemas...)
	for i := range out.Schemas {
		out.Schemas[i].Fields = append([]StructField(nil), m.Schemas[i].Fields...)
		out.Schemas[i].IdentifierFieldIDs = append([]int(nil), m.Schemas[i].IdentifierFieldIDs...)
	}
	out.PartitionSpecs = append([]PartitionSpec(nil), m.PartitionSpecs...)
	for i := range out.PartitionSpecs {
		out.PartitionSpecs[i].Fields = append([]PartitionField(nil), m.PartitionSpecs[i].Fields...)
	}
	out.SortOrders = append([]SortOrder(nil), m.SortOrders...)
	for i := range out.SortOrders {
		out.SortOrders[i].Fields = append([]SortField(nil), m.SortOrders[i].Fields...)
	}
	out.Snapshots = append([]Snapshot(nil), m.Snapshots...)
	for i := range out.Snapshots {
		if m.Snapshots[i].ParentSnapshotID != nil {
			p := *m.Snapshots[i].ParentSnapshotID
			out.Snapshots[i].ParentSnapshotID = &p
		}
		if m.Snapshots[i].SchemaID != nil {
			s := *m.Snapshots[i].SchemaID
			out.Snapshots[i].SchemaID = &s
		}
		if m.Snapshots[i].Summary.Other != nil {
			other := make(map[string]string, len(m.Snapshots[i].Summary.Other))
			for k, v := range m.Snapshots[i].Summary.Other {
				other[k] = v
			}
			out.Snapshots[i].Summary.Other = other
		}
	}
	out.SnapshotLog = append([]SnapshotLogEntry(nil), m.SnapshotLog...)
	out.MetadataLog = append([]MetadataLogEntry(nil), m.MetadataLog...)

	if m.Properties != nil {
		out.Properties = make(map[string]string, len(m.Properties))
		for k, v := range m.Properties {
			out.Properties[k] = v
		}
	}
	if m.Refs != nil {
		out.Refs = make(map[string]SnapshotRef, len(m.Refs))
		for k, v := range m.Refs {
			out.Refs[k] = v
		}
	}
	if m.CurrentSnapshotID != nil {
		id := *m.CurrentSnapshotID
		out.CurrentSnapshotID = &id
	}
	if m.NextRowID != nil {
		id := *m.NextRowID
		out.NextRowID = &id
	}

	return &out
}
