package metadata

import "sort"

// defaultMinSnapshotsToKeep applies to branches that do not set
// min-snapshots-to-keep explicitly
const defaultMinSnapshotsToKeep = 1

// RetentionResult is the outcome of evaluating retention policies across
// all refs of a table.
type RetentionResult struct {
	// ExpiredRefs are refs whose max-ref-age-ms has elapsed, measured
	// from the ref target snapshot's timestamp
	ExpiredRefs []string
	// RemovableSnapshots are snapshots no surviving ref retains
	RemovableSnapshots []int64
}

// RetainedSnapshots returns the set of snapshot ids that current
// retention policies require keeping, ignoring ref expiry. Branches keep
// their min-snapshots-to-keep most recent ancestors plus every ancestor
// younger than max-snapshot-age-ms; an unset age keeps the whole
// ancestry. Tags retain only their target.
func RetainedSnapshots(m *TableMetadata, nowMs int64) map[int64]bool {
	retained := make(map[int64]bool)
	for _, ref := range m.Refs {
		retainForRef(m, ref, nowMs, retained)
	}
	return retained
}

// EvaluateRetention computes which refs have aged out and which snapshots
// become unreachable once those refs are gone.
func EvaluateRetention(m *TableMetadata, nowMs int64) RetentionResult {
	var res RetentionResult

	surviving := make(map[string]SnapshotRef, len(m.Refs))
	for name, ref := range m.Refs {
		if ref.MaxRefAgeMs != nil {
			if target, err := m.SnapshotByID(ref.SnapshotID); err == nil {
				if nowMs-target.TimestampMs > *ref.MaxRefAgeMs {
					res.ExpiredRefs = append(res.ExpiredRefs, name)
					continue
				}
			}
		}
		surviving[name] = ref
	}
	sort.Strings(res.ExpiredRefs)

	retained := make(map[int64]bool)
	for _, ref := range surviving {
		retainForRef(m, ref, nowMs, retained)
	}
	for _, s := range m.Snapshots {
		if !retained[s.SnapshotID] {
			res.RemovableSnapshots = append(res.RemovableSnapshots, s.SnapshotID)
		}
	}
	sort.Slice(res.RemovableSnapshots, func(i, j int) bool {
		return res.RemovableSnapshots[i] < res.RemovableSnapshots[j]
	})
	return res
}

func retainForRef(m *TableMetadata, ref SnapshotRef, nowMs int64, retained map[int64]bool) {
	if !ref.IsBranch() {
		retained[ref.SnapshotID] = true
		return
	}

	minKeep := defaultMinSnapshotsToKeep
	if ref.MinSnapshotsToKeep != nil {
		minKeep = *ref.MinSnapshotsToKeep
	}

	kept := 0
	id := ref.SnapshotID
	for {
		snap, err := m.SnapshotByID(id)
		if err != nil {
			return
		}
		withinCount := kept < minKeep
		withinAge := ref.MaxSnapshotAgeMs == nil || nowMs-snap.TimestampMs <= *ref.MaxSnapshotAgeMs
		if !withinCount && !withinAge {
			return
		}
		retained[id] = true
		kept++
		if snap.ParentSnapshotID == nil {
			return
		}
		id = *snap.ParentSnapshotID
	}
}
