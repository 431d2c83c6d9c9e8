package metadata

import (
	"encoding/json"
	"testing"

	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequirementDispatch(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"create", `{"type":"assert-create"}`, "assert-create"},
		{"uuid", `{"type":"assert-table-uuid","uuid":"abc"}`, "assert-table-uuid"},
		{"ref", `{"type":"assert-ref-snapshot-id","ref":"main","snapshot-id":7}`, "assert-ref-snapshot-id"},
		{"schema", `{"type":"assert-current-schema-id","current-schema-id":1}`, "assert-current-schema-id"},
		{"spec", `{"type":"assert-default-spec-id","default-spec-id":0}`, "assert-default-spec-id"},
		{"order", `{"type":"assert-default-sort-order-id","default-sort-order-id":0}`, "assert-default-sort-order-id"},
		{"partition", `{"type":"assert-last-assigned-partition-id","last-assigned-partition-id":1000}`, "assert-last-assigned-partition-id"},
		{"field", `{"type":"assert-last-assigned-field-id","last-assigned-field-id":3}`, "assert-last-assigned-field-id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequirement([]byte(tt.json))
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Type())
		})
	}
}

func TestParseRequirementUnknownType(t *testing.T) {
	_, err := ParseRequirement([]byte(`{"type":"assert-sorted-by-name"}`))
	require.Error(t, err)
	assert.True(t, errors.HasClass(err, errors.ClassInvalidArgument))
}

func TestAssertRefSnapshotIDAbsence(t *testing.T) {
	req, err := ParseRequirement([]byte(`{"type":"assert-ref-snapshot-id","ref":"main","snapshot-id":null}`))
	require.NoError(t, err)

	// ref absent: requirement holds
	meta := newTestMetadata(t)
	require.NoError(t, req.Validate(meta))

	// ref present: conflict
	b := NewBuilder(meta)
	require.NoError(t, b.AddSnapshot(Snapshot{
		SnapshotID: 5, SequenceNumber: 1,
		ManifestList: "s3://x/snap.avro", Summary: Summary{Operation: "append"},
	}))
	require.NoError(t, b.SetRef(MainBranch, SnapshotRef{SnapshotID: 5, Type: BranchType}))
	err = req.Validate(b.Metadata())
	require.Error(t, err)
	assert.True(t, errors.HasClass(err, errors.ClassConflict))
}

func TestRequirementsAgainstMissingTable(t *testing.T) {
	require.NoError(t, AssertCreate{}.Validate(nil))

	for _, req := range []Requirement{
		AssertTableUUID{UUID: "x"},
		AssertRefSnapshotID{Ref: "main"},
		AssertCurrentSchemaID{},
		AssertDefaultSpecID{},
		AssertDefaultSortOrderID{},
		AssertLastAssignedPartitionID{},
		AssertLastAssignedFieldID{},
	} {
		err := req.Validate(nil)
		require.Error(t, err, req.Type())
		assert.True(t, errors.HasClass(err, errors.ClassConflict), req.Type())
	}
}

func TestAssertCreateAgainstExistingTable(t *testing.T) {
	err := AssertCreate{}.Validate(newTestMetadata(t))
	require.Error(t, err)
	assert.True(t, errors.HasClass(err, errors.ClassConflict))
}

func TestParseUpdateDispatch(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"uuid", `{"action":"assign-uuid","uuid":"abc"}`, "assign-uuid"},
		{"format", `{"action":"upgrade-format-version","format-version":2}`, "upgrade-format-version"},
		{"add-schema", `{"action":"add-schema","schema":{"type":"struct","fields":[]}}`, "add-schema"},
		{"set-schema", `{"action":"set-current-schema","schema-id":-1}`, "set-current-schema"},
		{"add-spec", `{"action":"add-spec","spec":{"spec-id":0,"fields":[]}}`, "add-spec"},
		{"set-spec", `{"action":"set-default-spec","spec-id":0}`, "set-default-spec"},
		{"add-order", `{"action":"add-sort-order","sort-order":{"order-id":0,"fields":[]}}`, "add-sort-order"},
		{"set-order", `{"action":"set-default-sort-order","sort-order-id":-1}`, "set-default-sort-order"},
		{"snapshot", `{"action":"add-snapshot","snapshot":{"snapshot-id":1,"sequence-number":1,"timestamp-ms":1,"manifest-list":"s3://x","summary":{"operation":"append"}}}`, "add-snapshot"},
		{"set-ref", `{"action":"set-snapshot-ref","ref-name":"main","snapshot-id":1,"type":"branch"}`, "set-snapshot-ref"},
		{"remove-ref", `{"action":"remove-snapshot-ref","ref-name":"main"}`, "remove-snapshot-ref"},
		{"remove-snapshots", `{"action":"remove-snapshots","snapshot-ids":[1,2]}`, "remove-snapshots"},
		{"location", `{"action":"set-location","location":"s3://x"}`, "set-location"},
		{"set-props", `{"action":"set-properties","updates":{"a":"b"}}`, "set-properties"},
		{"remove-props", `{"action":"remove-properties","removals":["a"]}`, "remove-properties"},
		{"lineage", `{"action":"enable-row-lineage"}`, "enable-row-lineage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upd, err := ParseUpdate([]byte(tt.json))
			require.NoError(t, err)
			assert.Equal(t, tt.want, upd.Action())
		})
	}
}

func TestParseUpdateUnknownAction(t *testing.T) {
	_, err := ParseUpdate([]byte(`{"action":"truncate-table"}`))
	require.Error(t, err)
	assert.True(t, errors.HasClass(err, errors.ClassInvalidArgument))
}

func TestSummaryRoundTrip(t *testing.T) {
	s := Summary{Operation: "overwrite", Other: map[string]string{"added-data-files": "3"}}
	data, err := json.Marshal(s)
	require.NoError(t, err)

	var flat map[string]string
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "overwrite", flat["operation"])
	assert.Equal(t, "3", flat["added-data-files"])

	var back Summary
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s, back)
}

func TestTableMetadataJSONShape(t *testing.T) {
	meta := newTestMetadata(t)
	data, err := json.Marshal(meta)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{
		"format-version", "table-uuid", "location", "last-sequence-number",
		"last-updated-ms", "last-column-id", "schemas", "current-schema-id",
		"partition-specs", "default-spec-id", "last-partition-id",
		"sort-orders", "default-sort-order-id",
	} {
		_, ok := doc[key]
		assert.True(t, ok, "missing key %s", key)
	}
	_, ok := doc["current-snapshot-id"]
	assert.False(t, ok, "empty table must omit current-snapshot-id")
}
