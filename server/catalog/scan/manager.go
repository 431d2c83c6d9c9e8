package scan

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/icecapdb/icecap/server/catalog/metadata"
	"github.com/icecapdb/icecap/utils"
	"github.com/rs/zerolog"
)

// Package-specific error codes for scan plans
var (
	ErrPlanNotFound     = errors.MustNewCode("scan.plan_not_found").WithClass(errors.ClassNotFound)
	ErrPlanNotCompleted = errors.MustNewCode("scan.plan_not_completed").WithClass(errors.ClassInvalidArgument)
	ErrPlanTerminal     = errors.MustNewCode("scan.plan_terminal").WithClass(errors.ClassConflict)
	ErrPlanningFailed   = errors.MustNewCode("scan.planning_failed")
)

// PlanState is the lifecycle state of a scan plan
type PlanState string

const (
	StateSubmitted PlanState = "submitted"
	StateRunning   PlanState = "running"
	StateCompleted PlanState = "completed"
	StateFailed    PlanState = "failed"
	StateCancelled PlanState = "cancelled"
)

// terminal reports whether no further transitions are allowed from the
// state
func (s PlanState) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// PlanRequest narrows what a scan plan covers
type PlanRequest struct {
	SnapshotID *int64   `json:"snapshot-id,omitempty"`
	Select     []string `json:"select,omitempty"`
	Filter     string   `json:"filter,omitempty"`
}

// Plan is one scan-planning job and its outcome
type Plan struct {
	ID        string            `json:"plan-id"`
	TableID   int64             `json:"-"`
	State     PlanState         `json:"status"`
	Tasks     []json.RawMessage `json:"plan-tasks,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"-"`
	UpdatedAt time.Time         `json:"-"`

	// cancel stops the running planning job, set once the worker picks
	// the plan up
	cancel context.CancelFunc
}

// Planner turns table metadata into scan tasks. The catalog ships a
// metadata-only planner; engines that read manifests can plug in theirs.
type Planner interface {
	Plan(ctx context.Context, meta *metadata.TableMetadata, req PlanRequest) ([]json.RawMessage, error)
}

// Manager owns scan plan lifecycles: submitted plans run on the worker
// pool, move to a terminal state exactly once, and are swept after the
// idle TTL.
type Manager struct {
	planner Planner
	pool    *WorkerPool
	logger  zerolog.Logger

	mu    sync.Mutex
	plans map[string]*Plan

	idleTTL time.Duration
	sweep   time.Duration
	nowFn   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a scan plan manager
func NewManager(planner Planner, workers int, idleTTL, sweepInterval time.Duration, logger zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		planner: planner,
		pool:    NewWorkerPool(workers, logger),
		logger:  logger.With().Str("component", "scan-manager").Logger(),
		plans:   make(map[string]*Plan),
		idleTTL: idleTTL,
		sweep:   sweepInterval,
		nowFn:   time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start brings up the worker pool and the sweeper
func (m *Manager) Start() error {
	if err := m.pool.Start(); err != nil {
		return err
	}
	m.wg.Add(1)
	go m.sweeper()
	return nil
}

// Stop drains the manager
func (m *Manager) Stop() error {
	m.cancel()
	m.wg.Wait()
	return m.pool.Stop()
}

// Submit registers a new plan and queues its planning job. The plan id
// is returned immediately; callers poll for the outcome.
func (m *Manager) Submit(ctx context.Context, tableID int64, meta *metadata.TableMetadata, req PlanRequest) (*Plan, error) {
	plan := &Plan{
		ID:        utils.GenerateULIDString(),
		TableID:   tableID,
		State:     StateSubmitted,
		CreatedAt: m.nowFn(),
		UpdatedAt: m.nowFn(),
	}
	m.mu.Lock()
	m.plans[plan.ID] = plan
	m.mu.Unlock()

	task := &planTask{manager: m, planID: plan.ID, meta: meta, req: req}
	if err := m.pool.Submit(task); err != nil {
		// queue pressure fails the plan rather than blocking the caller
		m.fail(plan.ID, "scan planning queue is full")
		return nil, err
	}

	m.logger.Debug().Str("plan_id", plan.ID).Int64("table_id", tableID).Msg("Scan plan submitted")
	return m.snapshot(plan.ID)
}

// Get returns the current state of a plan
func (m *Manager) Get(planID string) (*Plan, error) {
	return m.snapshot(planID)
}

// Cancel moves a plan to cancelled and signals a running worker to stop.
// Cancelling an already terminal plan is rejected; the first terminal
// transition wins.
func (m *Manager) Cancel(planID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, ok := m.plans[planID]
	if !ok {
		return errors.Newf(ErrPlanNotFound, "scan plan %s not found", planID)
	}
	if plan.State.terminal() {
		return errors.Newf(ErrPlanTerminal, "scan plan %s is already %s", planID, plan.State)
	}
	plan.State = StateCancelled
	plan.UpdatedAt = m.nowFn()
	if plan.cancel != nil {
		plan.cancel()
	}
	m.logger.Debug().Str("plan_id", planID).Msg("Scan plan cancelled")
	return nil
}

// FetchTasks returns the planned tasks of a completed plan
func (m *Manager) FetchTasks(planID string) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, ok := m.plans[planID]
	if !ok {
		return nil, errors.Newf(ErrPlanNotFound, "scan plan %s not found", planID)
	}
	if plan.State != StateCompleted {
		return nil, errors.Newf(ErrPlanNotCompleted, "scan plan %s is %s, tasks are only available once completed", planID, plan.State)
	}
	plan.UpdatedAt = m.nowFn()
	return plan.Tasks, nil
}

// snapshot returns a copy of the plan so callers never see concurrent
// mutation
func (m *Manager) snapshot(planID string) (*Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, ok := m.plans[planID]
	if !ok {
		return nil, errors.Newf(ErrPlanNotFound, "scan plan %s not found", planID)
	}
	copied := *plan
	copied.Tasks = append([]json.RawMessage(nil), plan.Tasks...)
	return &copied, nil
}

// markRunning moves submitted to running and remembers the worker's
// cancel func so Cancel can interrupt it; a cancel that won the race
// stops the job before it starts
func (m *Manager) markRunning(planID string, cancel context.CancelFunc) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, ok := m.plans[planID]
	if !ok || plan.State != StateSubmitted {
		return false
	}
	plan.State = StateRunning
	plan.UpdatedAt = m.nowFn()
	plan.cancel = cancel
	return true
}

// complete records the planning outcome unless a terminal transition
// already happened
func (m *Manager) complete(planID string, tasks []json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, ok := m.plans[planID]
	if !ok || plan.State.terminal() {
		return
	}
	plan.State = StateCompleted
	plan.Tasks = tasks
	plan.UpdatedAt = m.nowFn()
}

func (m *Manager) fail(planID string, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, ok := m.plans[planID]
	if !ok || plan.State.terminal() {
		return
	}
	plan.State = StateFailed
	plan.Error = message
	plan.UpdatedAt = m.nowFn()
}

// sweeper drops terminal plans that have been idle past the TTL
func (m *Manager) sweeper() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *Manager) sweepOnce() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.nowFn().Add(-m.idleTTL)
	for id, plan := range m.plans {
		if plan.State.terminal() && plan.UpdatedAt.Before(cutoff) {
			delete(m.plans, id)
			m.logger.Debug().Str("plan_id", id).Str("state", string(plan.State)).Msg("Scan plan swept")
		}
	}
}

// planTask runs one planning job on the worker pool
type planTask struct {
	manager *Manager
	planID  string
	meta    *metadata.TableMetadata
	req     PlanRequest
}

func (t *planTask) GetID() string { return t.planID }

func (t *planTask) Execute(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !t.manager.markRunning(t.planID, cancel) {
		return nil
	}
	tasks, err := t.manager.planner.Plan(runCtx, t.meta, t.req)
	if err != nil {
		t.manager.fail(t.planID, err.Error())
		return errors.New(ErrPlanningFailed, "scan planning failed", err).AddContext("plan_id", t.planID)
	}
	t.manager.complete(t.planID, tasks)
	return nil
}

// MetadataPlanner plans scans from catalog metadata alone: one task per
// manifest list reachable from the requested snapshot. Engines resolve
// the manifests themselves.
type MetadataPlanner struct{}

type manifestScanTask struct {
	SnapshotID   int64  `json:"snapshot-id"`
	ManifestList string `json:"manifest-list"`
	SchemaID     int    `json:"schema-id"`
}

// Plan implements Planner
func (MetadataPlanner) Plan(_ context.Context, meta *metadata.TableMetadata, req PlanRequest) ([]json.RawMessage, error) {
	var snap *metadata.Snapshot
	if req.SnapshotID != nil {
		found, err := meta.SnapshotByID(*req.SnapshotID)
		if err != nil {
			return nil, err
		}
		snap = found
	} else {
		snap = meta.CurrentSnapshot()
	}
	if snap == nil {
		// an empty table plans to an empty task list
		return nil, nil
	}

	schemaID := meta.CurrentSchemaID
	if snap.SchemaID != nil {
		schemaID = *snap.SchemaID
	}
	task, err := json.Marshal(manifestScanTask{
		SnapshotID:   snap.SnapshotID,
		ManifestList: snap.ManifestList,
		SchemaID:     schemaID,
	})
	if err != nil {
		return nil, errors.New(errors.CommonInternal, "failed to encode scan task", err)
	}
	return []json.RawMessage{task}, nil
}
