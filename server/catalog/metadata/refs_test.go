package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainMetadata builds a table with a linear snapshot chain
// 1 <- 2 <- ... <- n, one snapshot per ageStepMs, newest at nowMs.
func chainMetadata(t *testing.T, n int, nowMs, ageStepMs int64) *TableMetadata {
	t.Helper()
	meta := newTestMetadata(t)
	b := NewBuilder(meta)
	for i := 1; i <= n; i++ {
		snap := Snapshot{
			SnapshotID:     int64(i),
			SequenceNumber: int64(i),
			TimestampMs:    nowMs - int64(n-i)*ageStepMs,
			ManifestList:   "s3://x/snap.avro",
			Summary:        Summary{Operation: "append"},
		}
		if i > 1 {
			parent := int64(i - 1)
			snap.ParentSnapshotID = &parent
		}
		require.NoError(t, b.AddSnapshot(snap))
	}
	require.NoError(t, b.SetRef(MainBranch, SnapshotRef{SnapshotID: int64(n), Type: BranchType}))
	return b.Build()
}

func TestBranchRetentionDefaultKeepsHead(t *testing.T) {
	now := int64(1_000_000)
	meta := chainMetadata(t, 4, now, 10_000)

	// no age limit set: the whole ancestry is retained
	retained := RetainedSnapshots(meta, now)
	assert.Len(t, retained, 4)
}

func TestBranchRetentionAgeCutoff(t *testing.T) {
	now := int64(1_000_000)
	meta := chainMetadata(t, 4, now, 10_000)

	maxAge := int64(15_000)
	ref := meta.Refs[MainBranch]
	ref.MaxSnapshotAgeMs = &maxAge
	meta.Refs[MainBranch] = ref

	// snapshots 4 (age 0) and 3 (age 10s) are within the window;
	// 2 and 1 are older but 4 is also within min-snapshots-to-keep
	retained := RetainedSnapshots(meta, now)
	assert.True(t, retained[4])
	assert.True(t, retained[3])
	assert.False(t, retained[2])
	assert.False(t, retained[1])
}

func TestBranchRetentionMinKeepOverridesAge(t *testing.T) {
	now := int64(1_000_000)
	meta := chainMetadata(t, 4, now, 10_000)

	maxAge := int64(1) // everything but the head is too old
	keep := 3
	ref := meta.Refs[MainBranch]
	ref.MaxSnapshotAgeMs = &maxAge
	ref.MinSnapshotsToKeep = &keep
	meta.Refs[MainBranch] = ref

	retained := RetainedSnapshots(meta, now)
	assert.True(t, retained[4])
	assert.True(t, retained[3])
	assert.True(t, retained[2])
	assert.False(t, retained[1])
}

func TestTagRetainsOnlyTarget(t *testing.T) {
	now := int64(1_000_000)
	meta := chainMetadata(t, 4, now, 10_000)
	delete(meta.Refs, MainBranch)
	meta.Refs["release"] = SnapshotRef{SnapshotID: 2, Type: TagType}

	retained := RetainedSnapshots(meta, now)
	assert.Equal(t, map[int64]bool{2: true}, retained)
}

func TestEvaluateRetentionExpiresAgedRefs(t *testing.T) {
	now := int64(1_000_000)
	meta := chainMetadata(t, 4, now, 10_000)

	// tag on snapshot 1 (age 30s) with a 5s ref lifetime
	refAge := int64(5_000)
	meta.Refs["old-release"] = SnapshotRef{SnapshotID: 1, Type: TagType, MaxRefAgeMs: &refAge}

	maxAge := int64(15_000)
	ref := meta.Refs[MainBranch]
	ref.MaxSnapshotAgeMs = &maxAge
	meta.Refs[MainBranch] = ref

	res := EvaluateRetention(meta, now)
	assert.Equal(t, []string{"old-release"}, res.ExpiredRefs)
	assert.Equal(t, []int64{1, 2}, res.RemovableSnapshots)
}

func TestEvaluateRetentionMainExpiresByItsOwnAge(t *testing.T) {
	now := int64(1_000_000)
	meta := chainMetadata(t, 2, now, 500_000)

	// main gets no special treatment: with max-ref-age-ms set it ages
	// out like any other ref, and expiry is only an eligibility set
	refAge := int64(1)
	ref := meta.Refs[MainBranch]
	ref.MaxRefAgeMs = &refAge
	meta.Refs[MainBranch] = ref

	res := EvaluateRetention(meta, now+10_000)
	assert.Equal(t, []string{MainBranch}, res.ExpiredRefs)
	assert.Contains(t, meta.Refs, MainBranch, "evaluation never deletes the ref itself")

	// without max-ref-age-ms main never ages out
	ref.MaxRefAgeMs = nil
	meta.Refs[MainBranch] = ref
	res = EvaluateRetention(meta, now+10_000)
	assert.Empty(t, res.ExpiredRefs)
}

func TestRemoveSnapshotsRejectsRetained(t *testing.T) {
	now := int64(1_000_000)
	meta := chainMetadata(t, 3, now, 10_000)

	b := NewBuilder(meta)
	err := b.RemoveSnapshots([]int64{3})
	require.Error(t, err, "the branch head is retained")

	// detach retention so only the head survives
	maxAge := int64(5_000)
	keep := 1
	ref := b.Metadata().Refs[MainBranch]
	ref.MaxSnapshotAgeMs = &maxAge
	ref.MinSnapshotsToKeep = &keep
	b.Metadata().Refs[MainBranch] = ref

	require.NoError(t, b.RemoveSnapshots([]int64{1}))
	assert.Len(t, b.Metadata().Snapshots, 2)
	_, err = b.Metadata().SnapshotByID(1)
	require.Error(t, err)
}

func TestRemoveSnapshotsUnknownID(t *testing.T) {
	meta := chainMetadata(t, 2, 1_000_000, 10_000)
	b := NewBuilder(meta)
	require.Error(t, b.RemoveSnapshots([]int64{77}))
}
