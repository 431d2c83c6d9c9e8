package metadata

import (
	"time"

	"github.com/google/uuid"
	"github.com/icecapdb/icecap/pkg/errors"
)

var (
	ErrInvalidFormatVersion = errors.MustNewCode("metadata.invalid_format_version").WithClass(errors.ClassInvalidArgument)
	ErrDuplicateSchemaID    = errors.MustNewCode("metadata.duplicate_schema_id").WithClass(errors.ClassInvalidArgument)
	ErrDuplicateSpecID      = errors.MustNewCode("metadata.duplicate_spec_id").WithClass(errors.ClassInvalidArgument)
	ErrDuplicateSortOrderID = errors.MustNewCode("metadata.duplicate_sort_order_id").WithClass(errors.ClassInvalidArgument)
	ErrDuplicateSnapshotID  = errors.MustNewCode("metadata.duplicate_snapshot_id").WithClass(errors.ClassInvalidArgument)
	ErrInvalidSequence      = errors.MustNewCode("metadata.invalid_sequence_number").WithClass(errors.ClassInvalidArgument)
	ErrNoLastAdded          = errors.MustNewCode("metadata.no_last_added").WithClass(errors.ClassInvalidArgument)
	ErrInvalidRef           = errors.MustNewCode("metadata.invalid_ref").WithClass(errors.ClassInvalidArgument)
	ErrSnapshotRetained     = errors.MustNewCode("metadata.snapshot_retained").WithClass(errors.ClassInvalidArgument)
	ErrInvalidUUID          = errors.MustNewCode("metadata.invalid_uuid").WithClass(errors.ClassInvalidArgument)
	ErrRowLineageRequiresV2 = errors.MustNewCode("metadata.row_lineage_requires_v2").WithClass(errors.ClassInvalidArgument)
)

// LastAdded is the sentinel id callers pass to set-current-schema,
// set-default-spec and set-default-sort-order to mean "whatever the same
// commit just added"
const LastAdded = -1

// Builder accumulates mutations against a cloned metadata document.
// All updates in one commit go through the same builder, so id allocation
// and the "last added" sentinels see the in-flight state.
type Builder struct {
	meta *TableMetadata

	lastAddedSchemaID    *int
	lastAddedSpecID      *int
	lastAddedOrderID     *int
	currentSnapshotMoved bool

	nowMs func() int64
}

// NewBuilder clones base and returns a builder over the clone. The base
// document is never mutated.
func NewBuilder(base *TableMetadata) *Builder {
	return &Builder{
		meta:  base.Clone(),
		nowMs: func() int64 { return time.Now().UnixMilli() },
	}
}

// NewMetadata constructs a fresh v2 metadata document for a table being
// created. The schema's field ids seed the column counter.
func NewMetadata(location string, schema Schema, spec PartitionSpec, order SortOrder, properties map[string]string) *TableMetadata {
	schema.SchemaID = 0
	spec.SpecID = 0
	order.OrderID = 0
	return &TableMetadata{
		FormatVersion:      FormatV2,
		TableUUID:          uuid.New().String(),
		Location:           location,
		LastUpdatedMs:      time.Now().UnixMilli(),
		LastColumnID:       schema.HighestFieldID(),
		Schemas:            []Schema{schema},
		CurrentSchemaID:    0,
		PartitionSpecs:     []PartitionSpec{spec},
		DefaultSpecID:      0,
		LastPartitionID:    spec.HighestFieldID(),
		SortOrders:         []SortOrder{order},
		DefaultSortOrderID: 0,
		Properties:         properties,
	}
}

// Metadata returns the document under construction
func (b *Builder) Metadata() *TableMetadata {
	return b.meta
}

// Build finalizes the document: stamps last-updated-ms and, when the
// current snapshot moved, appends to the snapshot log.
func (b *Builder) Build() *TableMetadata {
	b.meta.LastUpdatedMs = b.nowMs()
	if b.currentSnapshotMoved && b.meta.CurrentSnapshotID != nil {
		b.meta.SnapshotLog = append(b.meta.SnapshotLog, SnapshotLogEntry{
			SnapshotID:  *b.meta.CurrentSnapshotID,
			TimestampMs: b.meta.LastUpdatedMs,
		})
	}
	return b.meta
}

// AssignUUID sets the table uuid. Reassigning the same value is a no-op;
// assigning a different value over an existing one is rejected.
func (b *Builder) AssignUUID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New(ErrInvalidUUID, "malformed table uuid", err).AddContext("uuid", id)
	}
	if b.meta.TableUUID != "" && b.meta.TableUUID != id {
		return errors.Newf(ErrInvalidUUID, "table uuid is already assigned to %s", b.meta.TableUUID)
	}
	b.meta.TableUUID = id
	return nil
}

// UpgradeFormatVersion moves the document to a newer format version.
// Downgrades and unknown versions are rejected; same-version upgrade is
// a no-op.
func (b *Builder) UpgradeFormatVersion(v int) error {
	if v != FormatV1 && v != FormatV2 {
		return errors.Newf(ErrInvalidFormatVersion, "unsupported format version %d", v)
	}
	if v < b.meta.FormatVersion {
		return errors.Newf(ErrInvalidFormatVersion, "cannot downgrade format version from %d to %d", b.meta.FormatVersion, v)
	}
	b.meta.FormatVersion = v
	return nil
}

// AddSchema appends a schema to the registry. The schema is assigned the
// next schema id; its field ids must not regress the column counter.
func (b *Builder) AddSchema(s Schema) error {
	next := 0
	for _, existing := range b.meta.Schemas {
		if existing.SchemaID >= next {
			next = existing.SchemaID + 1
		}
	}
	s.SchemaID = next
	if highest := s.HighestFieldID(); highest > b.meta.LastColumnID {
		b.meta.LastColumnID = highest
	}
	b.meta.Schemas = append(b.meta.Schemas, s)
	b.lastAddedSchemaID = &s.SchemaID
	return nil
}

// SetCurrentSchema makes a registered schema current. id may be
// LastAdded to reference the schema added earlier in the same commit.
func (b *Builder) SetCurrentSchema(id int) error {
	if id == LastAdded {
		if b.lastAddedSchemaID == nil {
			return errors.New(ErrNoLastAdded, "set-current-schema references last added schema but no schema was added in this commit", nil)
		}
		id = *b.lastAddedSchemaID
	}
	if _, err := b.meta.SchemaByID(id); err != nil {
		return err
	}
	b.meta.CurrentSchemaID = id
	return nil
}

// AddPartitionSpec appends a spec to the registry under the next spec id
// and advances the partition field counter.
func (b *Builder) AddPartitionSpec(p PartitionSpec) error {
	next := 0
	for _, existing := range b.meta.PartitionSpecs {
		if existing.SpecID >= next {
			next = existing.SpecID + 1
		}
	}
	p.SpecID = next
	if highest := p.HighestFieldID(); highest > b.meta.LastPartitionID {
		b.meta.LastPartitionID = highest
	}
	b.meta.PartitionSpecs = append(b.meta.PartitionSpecs, p)
	b.lastAddedSpecID = &p.SpecID
	return nil
}

// SetDefaultSpec makes a registered partition spec the default
func (b *Builder) SetDefaultSpec(id int) error {
	if id == LastAdded {
		if b.lastAddedSpecID == nil {
			return errors.New(ErrNoLastAdded, "set-default-spec references last added spec but no spec was added in this commit", nil)
		}
		id = *b.lastAddedSpecID
	}
	if _, err := b.meta.SpecByID(id); err != nil {
		return err
	}
	b.meta.DefaultSpecID = id
	return nil
}

// AddSortOrder appends a sort order to the registry under the next order id
func (b *Builder) AddSortOrder(o SortOrder) error {
	next := 0
	for _, existing := range b.meta.SortOrders {
		if existing.OrderID >= next {
			next = existing.OrderID + 1
		}
	}
	o.OrderID = next
	b.meta.SortOrders = append(b.meta.SortOrders, o)
	b.lastAddedOrderID = &o.OrderID
	return nil
}

// SetDefaultSortOrder makes a registered sort order the default
func (b *Builder) SetDefaultSortOrder(id int) error {
	if id == LastAdded {
		if b.lastAddedOrderID == nil {
			return errors.New(ErrNoLastAdded, "set-default-sort-order references last added order but no order was added in this commit", nil)
		}
		id = *b.lastAddedOrderID
	}
	if _, err := b.meta.SortOrderByID(id); err != nil {
		return err
	}
	b.meta.DefaultSortOrderID = id
	return nil
}

// AddSnapshot records a new immutable snapshot. Its sequence number must
// be strictly greater than the table's last; its parent, when set, must
// already exist.
func (b *Builder) AddSnapshot(s Snapshot) error {
	if _, err := b.meta.SnapshotByID(s.SnapshotID); err == nil {
		return errors.Newf(ErrDuplicateSnapshotID, "snapshot %d already exists", s.SnapshotID)
	}
	if s.SequenceNumber <= b.meta.LastSequenceNumber {
		return errors.Newf(ErrInvalidSequence,
			"snapshot sequence number %d must be greater than last sequence number %d",
			s.SequenceNumber, b.meta.LastSequenceNumber)
	}
	if s.ParentSnapshotID != nil {
		if _, err := b.meta.SnapshotByID(*s.ParentSnapshotID); err != nil {
			return errors.Newf(ErrSnapshotNotFound, "parent snapshot %d not found", *s.ParentSnapshotID)
		}
	}
	if s.TimestampMs == 0 {
		s.TimestampMs = b.nowMs()
	}
	b.meta.Snapshots = append(b.meta.Snapshots, s)
	b.meta.LastSequenceNumber = s.SequenceNumber
	return nil
}

// SetRef creates or moves a branch or tag. Moving the main branch also
// moves the current snapshot pointer.
func (b *Builder) SetRef(name string, ref SnapshotRef) error {
	if name == "" {
		return errors.New(ErrInvalidRef, "ref name must not be empty", nil)
	}
	if ref.Type != BranchType && ref.Type != TagType {
		return errors.Newf(ErrInvalidRef, "unknown ref type %q", ref.Type)
	}
	if !ref.IsBranch() && (ref.MinSnapshotsToKeep != nil || ref.MaxSnapshotAgeMs != nil) {
		return errors.New(ErrInvalidRef, "snapshot retention settings only apply to branches", nil)
	}
	if _, err := b.meta.SnapshotByID(ref.SnapshotID); err != nil {
		return err
	}
	if existing, ok := b.meta.Refs[name]; ok && existing.Type != ref.Type {
		return errors.Newf(ErrInvalidRef, "ref %q is a %s and cannot become a %s", name, existing.Type, ref.Type)
	}
	if b.meta.Refs == nil {
		b.meta.Refs = make(map[string]SnapshotRef)
	}
	b.meta.Refs[name] = ref
	if name == MainBranch {
		id := ref.SnapshotID
		b.meta.CurrentSnapshotID = &id
		b.currentSnapshotMoved = true
	}
	return nil
}

// RemoveRef deletes a branch or tag. Removing main clears the current
// snapshot pointer. Removing an absent ref is a no-op.
func (b *Builder) RemoveRef(name string) error {
	if _, ok := b.meta.Refs[name]; !ok {
		return nil
	}
	delete(b.meta.Refs, name)
	if name == MainBranch {
		b.meta.CurrentSnapshotID = nil
		b.currentSnapshotMoved = false
	}
	return nil
}

// RemoveSnapshots drops the listed snapshots from the table. A snapshot
// still required by any ref's retention policy cannot be removed.
func (b *Builder) RemoveSnapshots(ids []int64) error {
	retained := RetainedSnapshots(b.meta, b.nowMs())
	remove := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if _, err := b.meta.SnapshotByID(id); err != nil {
			return err
		}
		if retained[id] {
			return errors.Newf(ErrSnapshotRetained, "snapshot %d is retained by a ref and cannot be removed", id)
		}
		remove[id] = true
	}
	kept := b.meta.Snapshots[:0]
	for _, s := range b.meta.Snapshots {
		if !remove[s.SnapshotID] {
			kept = append(kept, s)
		}
	}
	b.meta.Snapshots = kept

	log := b.meta.SnapshotLog[:0]
	for _, e := range b.meta.SnapshotLog {
		if !remove[e.SnapshotID] {
			log = append(log, e)
		}
	}
	b.meta.SnapshotLog = log
	return nil
}

// SetLocation changes the table's base location
func (b *Builder) SetLocation(location string) error {
	if location == "" {
		return errors.New(errors.CommonInvalidInput, "table location must not be empty", nil)
	}
	b.meta.Location = location
	return nil
}

// SetProperties merges the given keys into the table properties
func (b *Builder) SetProperties(props map[string]string) error {
	if len(props) == 0 {
		return nil
	}
	if b.meta.Properties == nil {
		b.meta.Properties = make(map[string]string, len(props))
	}
	for k, v := range props {
		b.meta.Properties[k] = v
	}
	return nil
}

// RemoveProperties deletes the given keys; absent keys are ignored
func (b *Builder) RemoveProperties(keys []string) error {
	for _, k := range keys {
		delete(b.meta.Properties, k)
	}
	return nil
}

// EnableRowLineage turns on row lineage tracking. Lineage needs the v2
// format's sequence numbers.
func (b *Builder) EnableRowLineage() error {
	if b.meta.FormatVersion < FormatV2 {
		return errors.Newf(ErrRowLineageRequiresV2, "row lineage requires format version %d", FormatV2)
	}
	b.meta.RowLineage = true
	if b.meta.NextRowID == nil {
		zero := int64(0)
		b.meta.NextRowID = &zero
	}
	return nil
}
