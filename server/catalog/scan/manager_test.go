package scan

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/icecapdb/icecap/server/catalog/metadata"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingPlanner holds planning until released, so tests can observe
// intermediate states
type blockingPlanner struct {
	release chan struct{}
	tasks   []json.RawMessage
	err     error
}

func (p *blockingPlanner) Plan(ctx context.Context, meta *metadata.TableMetadata, req PlanRequest) ([]json.RawMessage, error) {
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.tasks, p.err
}

func newTestManager(t *testing.T, planner Planner) *Manager {
	t.Helper()
	m := NewManager(planner, 2, time.Hour, time.Hour, zerolog.Nop())
	require.NoError(t, m.Start())
	t.Cleanup(func() { m.Stop() })
	return m
}

func tableMeta(t *testing.T) *metadata.TableMetadata {
	t.Helper()
	meta := metadata.NewMetadata(
		"s3://warehouse/analytics/events",
		metadata.Schema{Type: "struct", Fields: []metadata.StructField{
			{ID: 1, Name: "id", Type: json.RawMessage(`"long"`), Required: true},
		}},
		metadata.PartitionSpec{},
		metadata.SortOrder{},
		nil,
	)
	b := metadata.NewBuilder(meta)
	require.NoError(t, b.AddSnapshot(metadata.Snapshot{
		SnapshotID: 100, SequenceNumber: 1,
		ManifestList: "s3://warehouse/analytics/events/metadata/snap-100.avro",
		Summary:      metadata.Summary{Operation: "append"},
	}))
	require.NoError(t, b.SetRef(metadata.MainBranch, metadata.SnapshotRef{SnapshotID: 100, Type: metadata.BranchType}))
	return b.Build()
}

func waitForState(t *testing.T, m *Manager, planID string, want PlanState) *Plan {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		plan, err := m.Get(planID)
		require.NoError(t, err)
		if plan.State == want {
			return plan
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("plan %s never reached state %s", planID, want)
	return nil
}

func TestPlanLifecycleCompletes(t *testing.T) {
	m := newTestManager(t, MetadataPlanner{})

	plan, err := m.Submit(context.Background(), 1, tableMeta(t), PlanRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, plan.ID)

	done := waitForState(t, m, plan.ID, StateCompleted)
	require.Len(t, done.Tasks, 1)

	tasks, err := m.FetchTasks(plan.ID)
	require.NoError(t, err)
	var task manifestScanTask
	require.NoError(t, json.Unmarshal(tasks[0], &task))
	assert.Equal(t, int64(100), task.SnapshotID)
	assert.Contains(t, task.ManifestList, "snap-100.avro")
}

func TestPlanExplicitSnapshot(t *testing.T) {
	m := newTestManager(t, MetadataPlanner{})

	missing := int64(999)
	plan, err := m.Submit(context.Background(), 1, tableMeta(t), PlanRequest{SnapshotID: &missing})
	require.NoError(t, err)

	failed := waitForState(t, m, plan.ID, StateFailed)
	assert.Contains(t, failed.Error, "999")
}

func TestPlanEmptyTable(t *testing.T) {
	m := newTestManager(t, MetadataPlanner{})

	empty := metadata.NewMetadata("s3://warehouse/ns/t",
		metadata.Schema{Type: "struct"}, metadata.PartitionSpec{}, metadata.SortOrder{}, nil)
	plan, err := m.Submit(context.Background(), 1, empty, PlanRequest{})
	require.NoError(t, err)

	done := waitForState(t, m, plan.ID, StateCompleted)
	assert.Empty(t, done.Tasks)

	tasks, err := m.FetchTasks(plan.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestFetchTasksBeforeCompletionRejected(t *testing.T) {
	planner := &blockingPlanner{release: make(chan struct{})}
	m := newTestManager(t, planner)

	plan, err := m.Submit(context.Background(), 1, tableMeta(t), PlanRequest{})
	require.NoError(t, err)

	_, err = m.FetchTasks(plan.ID)
	require.Error(t, err)
	assert.True(t, errors.HasClass(err, errors.ClassInvalidArgument))

	close(planner.release)
	waitForState(t, m, plan.ID, StateCompleted)
}

func TestCancelBeatsCompletion(t *testing.T) {
	planner := &blockingPlanner{release: make(chan struct{}), tasks: []json.RawMessage{json.RawMessage(`{}`)}}
	m := newTestManager(t, planner)

	plan, err := m.Submit(context.Background(), 1, tableMeta(t), PlanRequest{})
	require.NoError(t, err)
	waitForState(t, m, plan.ID, StateRunning)

	require.NoError(t, m.Cancel(plan.ID))
	close(planner.release)

	// completion after cancel must not overwrite the terminal state
	time.Sleep(50 * time.Millisecond)
	got, err := m.Get(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, got.State)

	_, err = m.FetchTasks(plan.ID)
	require.Error(t, err)
}

// signalPlanner blocks until its context is cancelled and reports the
// cancellation it observed
type signalPlanner struct {
	started  chan struct{}
	observed chan error
}

func (p *signalPlanner) Plan(ctx context.Context, meta *metadata.TableMetadata, req PlanRequest) ([]json.RawMessage, error) {
	close(p.started)
	<-ctx.Done()
	p.observed <- ctx.Err()
	return nil, ctx.Err()
}

func TestCancelSignalsRunningWorker(t *testing.T) {
	planner := &signalPlanner{started: make(chan struct{}), observed: make(chan error, 1)}
	m := newTestManager(t, planner)

	plan, err := m.Submit(context.Background(), 1, tableMeta(t), PlanRequest{})
	require.NoError(t, err)

	select {
	case <-planner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up the plan")
	}

	require.NoError(t, m.Cancel(plan.ID))

	// the worker's context must be cancelled, not just the plan state
	select {
	case err := <-planner.observed:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancel never reached the running worker")
	}

	got, err := m.Get(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, got.State)
}

func TestCancelTerminalPlanRejected(t *testing.T) {
	m := newTestManager(t, MetadataPlanner{})

	plan, err := m.Submit(context.Background(), 1, tableMeta(t), PlanRequest{})
	require.NoError(t, err)
	waitForState(t, m, plan.ID, StateCompleted)

	err = m.Cancel(plan.ID)
	require.Error(t, err)
	assert.True(t, errors.HasClass(err, errors.ClassConflict))
}

func TestUnknownPlan(t *testing.T) {
	m := newTestManager(t, MetadataPlanner{})

	_, err := m.Get("01K0000000000000000000000X")
	require.Error(t, err)
	assert.True(t, errors.HasClass(err, errors.ClassNotFound))
	require.Error(t, m.Cancel("01K0000000000000000000000X"))
	_, err = m.FetchTasks("01K0000000000000000000000X")
	require.Error(t, err)
}

func TestSweeperDropsIdleTerminalPlans(t *testing.T) {
	m := NewManager(MetadataPlanner{}, 1, 10*time.Millisecond, time.Hour, zerolog.Nop())
	require.NoError(t, m.Start())
	t.Cleanup(func() { m.Stop() })

	plan, err := m.Submit(context.Background(), 1, tableMeta(t), PlanRequest{})
	require.NoError(t, err)
	waitForState(t, m, plan.ID, StateCompleted)

	time.Sleep(20 * time.Millisecond)
	m.sweepOnce()
	_, err = m.Get(plan.ID)
	require.Error(t, err)
	assert.True(t, errors.HasClass(err, errors.ClassNotFound))
}

func TestSweeperKeepsLivePlans(t *testing.T) {
	planner := &blockingPlanner{release: make(chan struct{})}
	m := NewManager(planner, 1, time.Nanosecond, time.Hour, zerolog.Nop())
	require.NoError(t, m.Start())
	t.Cleanup(func() {
		close(planner.release)
		m.Stop()
	})

	plan, err := m.Submit(context.Background(), 1, tableMeta(t), PlanRequest{})
	require.NoError(t, err)

	// non-terminal plans survive the sweep regardless of age
	time.Sleep(5 * time.Millisecond)
	m.sweepOnce()
	_, err = m.Get(plan.ID)
	require.NoError(t, err)
}
