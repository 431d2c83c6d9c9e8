package metadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(fields ...StructField) Schema {
	return Schema{Type: "struct", Fields: fields}
}

func field(id int, name string) StructField {
	return StructField{ID: id, Name: name, Type: json.RawMessage(`"long"`), Required: true}
}

func newTestMetadata(t *testing.T) *TableMetadata {
	t.Helper()
	meta := NewMetadata(
		"s3://warehouse/analytics/events",
		testSchema(field(1, "id"), field(2, "ts")),
		PartitionSpec{Fields: []PartitionField{{FieldID: 1000, SourceID: 2, Name: "ts_day", Transform: "day"}}},
		SortOrder{},
		map[string]string{"owner": "analytics"},
	)
	return meta
}

func TestNewMetadataSeedsCounters(t *testing.T) {
	meta := newTestMetadata(t)

	assert.Equal(t, FormatV2, meta.FormatVersion)
	assert.NotEmpty(t, meta.TableUUID)
	assert.Equal(t, 2, meta.LastColumnID)
	assert.Equal(t, 1000, meta.LastPartitionID)
	assert.Equal(t, 0, meta.CurrentSchemaID)
	assert.Equal(t, 0, meta.DefaultSpecID)
	assert.Equal(t, 0, meta.DefaultSortOrderID)
	assert.Equal(t, int64(0), meta.LastSequenceNumber)
	assert.Nil(t, meta.CurrentSnapshotID)
}

func TestAddSchemaAssignsNextID(t *testing.T) {
	b := NewBuilder(newTestMetadata(t))

	require.NoError(t, b.AddSchema(testSchema(field(1, "id"), field(2, "ts"), field(3, "region"))))
	meta := b.Metadata()
	require.Len(t, meta.Schemas, 2)
	assert.Equal(t, 1, meta.Schemas[1].SchemaID)
	assert.Equal(t, 3, meta.LastColumnID)

	// current schema only moves on an explicit set
	assert.Equal(t, 0, meta.CurrentSchemaID)
	require.NoError(t, b.SetCurrentSchema(LastAdded))
	assert.Equal(t, 1, meta.CurrentSchemaID)
}

func TestSetCurrentSchemaLastAddedWithoutAdd(t *testing.T) {
	b := NewBuilder(newTestMetadata(t))
	err := b.SetCurrentSchema(LastAdded)
	require.Error(t, err)
}

func TestSetCurrentSchemaUnknownID(t *testing.T) {
	b := NewBuilder(newTestMetadata(t))
	require.Error(t, b.SetCurrentSchema(42))
}

func TestAddPartitionSpecAdvancesCounter(t *testing.T) {
	b := NewBuilder(newTestMetadata(t))

	require.NoError(t, b.AddPartitionSpec(PartitionSpec{
		Fields: []PartitionField{{FieldID: 1001, SourceID: 1, Name: "id_bucket", Transform: "bucket[16]"}},
	}))
	require.NoError(t, b.SetDefaultSpec(LastAdded))

	meta := b.Metadata()
	assert.Equal(t, 1, meta.DefaultSpecID)
	assert.Equal(t, 1001, meta.LastPartitionID)
}

func TestAddSortOrderAssignsNextID(t *testing.T) {
	b := NewBuilder(newTestMetadata(t))

	require.NoError(t, b.AddSortOrder(SortOrder{
		Fields: []SortField{{SourceID: 2, Transform: "identity", Direction: "asc", NullOrder: "nulls-first"}},
	}))
	require.NoError(t, b.SetDefaultSortOrder(LastAdded))
	assert.Equal(t, 1, b.Metadata().DefaultSortOrderID)
}

func TestAddSnapshotSequenceMustIncrease(t *testing.T) {
	b := NewBuilder(newTestMetadata(t))

	require.NoError(t, b.AddSnapshot(Snapshot{
		SnapshotID:     100,
		SequenceNumber: 1,
		ManifestList:   "s3://warehouse/analytics/events/metadata/snap-100.avro",
		Summary:        Summary{Operation: "append"},
	}))
	assert.Equal(t, int64(1), b.Metadata().LastSequenceNumber)

	err := b.AddSnapshot(Snapshot{
		SnapshotID:     101,
		SequenceNumber: 1,
		ManifestList:   "s3://warehouse/analytics/events/metadata/snap-101.avro",
		Summary:        Summary{Operation: "append"},
	})
	require.Error(t, err)

	err = b.AddSnapshot(Snapshot{
		SnapshotID:     100,
		SequenceNumber: 2,
		ManifestList:   "s3://warehouse/analytics/events/metadata/snap-100.avro",
		Summary:        Summary{Operation: "append"},
	})
	require.Error(t, err, "duplicate snapshot id must be rejected")
}

func TestAddSnapshotUnknownParent(t *testing.T) {
	b := NewBuilder(newTestMetadata(t))
	parent := int64(999)
	err := b.AddSnapshot(Snapshot{
		SnapshotID:       100,
		ParentSnapshotID: &parent,
		SequenceNumber:   1,
		ManifestList:     "s3://warehouse/analytics/events/metadata/snap-100.avro",
		Summary:          Summary{Operation: "append"},
	})
	require.Error(t, err)
}

func TestSetRefMainMovesCurrentSnapshot(t *testing.T) {
	b := NewBuilder(newTestMetadata(t))
	require.NoError(t, b.AddSnapshot(Snapshot{
		SnapshotID:     100,
		SequenceNumber: 1,
		ManifestList:   "s3://warehouse/analytics/events/metadata/snap-100.avro",
		Summary:        Summary{Operation: "append"},
	}))
	require.NoError(t, b.SetRef(MainBranch, SnapshotRef{SnapshotID: 100, Type: BranchType}))

	meta := b.Build()
	require.NotNil(t, meta.CurrentSnapshotID)
	assert.Equal(t, int64(100), *meta.CurrentSnapshotID)
	require.Len(t, meta.SnapshotLog, 1)
	assert.Equal(t, int64(100), meta.SnapshotLog[0].SnapshotID)
}

func TestSetRefRejectsUnknownSnapshot(t *testing.T) {
	b := NewBuilder(newTestMetadata(t))
	require.Error(t, b.SetRef("audit", SnapshotRef{SnapshotID: 7, Type: TagType}))
}

func TestSetRefRejectsTypeChange(t *testing.T) {
	b := NewBuilder(newTestMetadata(t))
	require.NoError(t, b.AddSnapshot(Snapshot{
		SnapshotID: 100, SequenceNumber: 1,
		ManifestList: "s3://x/snap-100.avro", Summary: Summary{Operation: "append"},
	}))
	require.NoError(t, b.SetRef("audit", SnapshotRef{SnapshotID: 100, Type: TagType}))
	require.Error(t, b.SetRef("audit", SnapshotRef{SnapshotID: 100, Type: BranchType}))
}

func TestSetRefRejectsRetentionOnTag(t *testing.T) {
	b := NewBuilder(newTestMetadata(t))
	require.NoError(t, b.AddSnapshot(Snapshot{
		SnapshotID: 100, SequenceNumber: 1,
		ManifestList: "s3://x/snap-100.avro", Summary: Summary{Operation: "append"},
	}))
	keep := 3
	err := b.SetRef("audit", SnapshotRef{SnapshotID: 100, Type: TagType, MinSnapshotsToKeep: &keep})
	require.Error(t, err)
}

func TestRemoveRefMainClearsCurrentSnapshot(t *testing.T) {
	b := NewBuilder(newTestMetadata(t))
	require.NoError(t, b.AddSnapshot(Snapshot{
		SnapshotID: 100, SequenceNumber: 1,
		ManifestList: "s3://x/snap-100.avro", Summary: Summary{Operation: "append"},
	}))
	require.NoError(t, b.SetRef(MainBranch, SnapshotRef{SnapshotID: 100, Type: BranchType}))
	require.NoError(t, b.RemoveRef(MainBranch))

	assert.Nil(t, b.Metadata().CurrentSnapshotID)
	require.NoError(t, b.RemoveRef("no-such-ref"), "removing an absent ref is a no-op")
}

func TestUpgradeFormatVersion(t *testing.T) {
	meta := newTestMetadata(t)
	meta.FormatVersion = FormatV1

	b := NewBuilder(meta)
	require.NoError(t, b.UpgradeFormatVersion(FormatV2))
	assert.Equal(t, FormatV2, b.Metadata().FormatVersion)

	require.Error(t, b.UpgradeFormatVersion(FormatV1), "downgrade must be rejected")
	require.Error(t, b.UpgradeFormatVersion(3))
	require.NoError(t, b.UpgradeFormatVersion(FormatV2), "same version is a no-op")
}

func TestAssignUUID(t *testing.T) {
	meta := newTestMetadata(t)
	existing := meta.TableUUID

	b := NewBuilder(meta)
	require.NoError(t, b.AssignUUID(existing), "reassigning the same uuid is a no-op")
	require.Error(t, b.AssignUUID("d9f4c7a2-1111-4222-8333-444455556666"))
	require.Error(t, b.AssignUUID("not-a-uuid"))
}

func TestProperties(t *testing.T) {
	b := NewBuilder(newTestMetadata(t))
	require.NoError(t, b.SetProperties(map[string]string{"retention": "30d", "owner": "data-eng"}))
	require.NoError(t, b.RemoveProperties([]string{"owner", "absent"}))

	props := b.Metadata().Properties
	assert.Equal(t, "30d", props["retention"])
	_, ok := props["owner"]
	assert.False(t, ok)
}

func TestEnableRowLineage(t *testing.T) {
	v1 := newTestMetadata(t)
	v1.FormatVersion = FormatV1
	require.Error(t, NewBuilder(v1).EnableRowLineage())

	b := NewBuilder(newTestMetadata(t))
	require.NoError(t, b.EnableRowLineage())
	meta := b.Metadata()
	assert.True(t, meta.RowLineage)
	require.NotNil(t, meta.NextRowID)
	assert.Equal(t, int64(0), *meta.NextRowID)
}

func TestBuilderDoesNotMutateBase(t *testing.T) {
	base := newTestMetadata(t)
	b := NewBuilder(base)
	require.NoError(t, b.AddSchema(testSchema(field(1, "id"), field(2, "ts"), field(3, "region"))))
	require.NoError(t, b.SetProperties(map[string]string{"k": "v"}))

	assert.Len(t, base.Schemas, 1)
	_, ok := base.Properties["k"]
	assert.False(t, ok)
}
