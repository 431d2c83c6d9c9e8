package commit

import (
	"context"

	"github.com/google/uuid"
	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/icecapdb/icecap/server/catalog/metadata"
	"github.com/icecapdb/icecap/server/catalog/registry"
	"github.com/icecapdb/icecap/server/catalog/registry/regtypes"
	"github.com/icecapdb/icecap/server/paths"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
)

// Package-specific error codes for the commit engine
var (
	ErrCommitConflict      = errors.MustNewCode("commit.conflict").WithClass(errors.ClassConflict)
	ErrUpdateRejected      = errors.MustNewCode("commit.update_rejected").WithClass(errors.ClassInvalidArgument)
	ErrCreateWithoutSchema = errors.MustNewCode("commit.create_without_schema").WithClass(errors.ClassInvalidArgument)
)

// TableChange is one table's requirements and updates within a commit
type TableChange struct {
	Namespace    []string
	Name         string
	Requirements []metadata.Requirement
	Updates      []metadata.Update
}

// Result is the committed state of one table
type Result struct {
	Table            *regtypes.Table
	Metadata         *metadata.TableMetadata
	MetadataLocation string
}

// Engine applies requirement/update commits against the registry.
// Requirements are checked in request order against the state read under
// the table lock; the first failure aborts the commit and nothing is
// written.
type Engine struct {
	store  *registry.Store
	paths  paths.LocationManager
	logger zerolog.Logger
}

// NewEngine creates a commit engine
func NewEngine(store *registry.Store, locations paths.LocationManager, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		paths:  locations,
		logger: logger.With().Str("component", "commit-engine").Logger(),
	}
}

// isCreate reports whether the change carries an assert-create
// requirement, which turns the commit into a table creation
func isCreate(change TableChange) bool {
	for _, req := range change.Requirements {
		if _, ok := req.(metadata.AssertCreate); ok {
			return true
		}
	}
	return false
}

// Commit applies a single-table commit and returns the new state
func (e *Engine) Commit(ctx context.Context, change TableChange) (*Result, error) {
	if isCreate(change) {
		return e.commitCreate(ctx, change)
	}

	// resolve the table id so the commit lock can be taken before the
	// transaction re-reads the row
	table, err := e.store.GetTable(ctx, change.Namespace, change.Name)
	if err != nil {
		return nil, err
	}

	unlock := e.store.LockTable(table.ID)
	defer unlock()

	var result *Result
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		result, err = e.applyChange(ctx, tx, change)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Strs("namespace", change.Namespace).
		Str("table", change.Name).
		Int("updates", len(change.Updates)).
		Msg("Commit applied")
	return result, nil
}

// applyChange runs one change against the current row inside tx. The
// caller holds the table lock.
func (e *Engine) applyChange(ctx context.Context, tx bun.Tx, change TableChange) (*Result, error) {
	table, err := e.store.GetTableTx(ctx, tx, change.Namespace, change.Name)
	if err != nil {
		return nil, err
	}
	current, err := e.store.LoadMetadataTx(ctx, tx, table)
	if err != nil {
		return nil, err
	}

	if err := validateRequirements(change, current); err != nil {
		return nil, err
	}

	builder := metadata.NewBuilder(current)
	if err := applyUpdates(change, builder); err != nil {
		return nil, err
	}

	committed := builder.Build()
	// the log records every committed metadata file, so the entry count
	// doubles as the next file's version number
	location := e.paths.GetMetadataLocation(committed.Location, len(committed.MetadataLog))
	committed.MetadataLog = append(committed.MetadataLog, metadata.MetadataLogEntry{
		MetadataFile: location,
		TimestampMs:  committed.LastUpdatedMs,
	})

	if err := e.store.SaveCommit(ctx, tx, table, current, committed, location); err != nil {
		return nil, err
	}

	table.MetadataLocation = location
	table.LastUpdatedMs = committed.LastUpdatedMs
	table.Staged = false
	return &Result{Table: table, Metadata: committed, MetadataLocation: location}, nil
}

// commitCreate builds a table from nothing but updates. The unique index
// on (namespace, name) decides races between concurrent creators.
func (e *Engine) commitCreate(ctx context.Context, change TableChange) (*Result, error) {
	var result *Result
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		// an existing row fails assert-create; a staged row is a
		// pending creation that a commit completes instead
		existing, err := e.store.GetTableTx(ctx, tx, change.Namespace, change.Name)
		if err != nil && !errors.HasClass(err, errors.ClassNotFound) {
			return err
		}
		if existing != nil && existing.Staged {
			staged, err := e.applyStagedCreate(ctx, tx, change)
			result = staged
			return err
		}

		var current *metadata.TableMetadata
		if existing != nil {
			if current, err = e.store.LoadMetadataTx(ctx, tx, existing); err != nil {
				return err
			}
		}
		if err := validateRequirements(change, current); err != nil {
			return err
		}

		committed, err := e.buildFromScratch(change)
		if err != nil {
			return err
		}
		location := e.paths.GetMetadataLocation(committed.Location, 0)
		committed.MetadataLog = append(committed.MetadataLog, metadata.MetadataLogEntry{
			MetadataFile: location,
			TimestampMs:  committed.LastUpdatedMs,
		})

		table, err := e.store.CreateTable(ctx, tx, change.Namespace, change.Name, committed, location, false)
		if err != nil {
			return err
		}
		result = &Result{Table: table, Metadata: committed, MetadataLocation: location}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Strs("namespace", change.Namespace).
		Str("table", change.Name).
		Str("uuid", result.Metadata.TableUUID).
		Msg("Table created by commit")
	return result, nil
}

// applyStagedCreate completes a stage-create: requirements run against
// the staged document and the commit makes the table visible
func (e *Engine) applyStagedCreate(ctx context.Context, tx bun.Tx, change TableChange) (*Result, error) {
	// assert-create holds for staged tables: they are not visible yet
	reqs := make([]metadata.Requirement, 0, len(change.Requirements))
	for _, req := range change.Requirements {
		if _, ok := req.(metadata.AssertCreate); ok {
			continue
		}
		reqs = append(reqs, req)
	}
	staged := change
	staged.Requirements = reqs
	return e.applyChange(ctx, tx, staged)
}

// buildFromScratch derives a complete metadata document from create
// updates alone
func (e *Engine) buildFromScratch(change TableChange) (*metadata.TableMetadata, error) {
	base := &metadata.TableMetadata{FormatVersion: metadata.FormatV2}
	builder := metadata.NewBuilder(base)
	if err := applyUpdates(change, builder); err != nil {
		return nil, err
	}

	committed := builder.Build()
	if len(committed.Schemas) == 0 {
		return nil, errors.New(ErrCreateWithoutSchema, "table creation requires at least one add-schema update", nil)
	}
	if committed.TableUUID == "" {
		committed.TableUUID = uuid.New().String()
	}
	if committed.Location == "" {
		committed.Location = e.paths.GetTableLocation(change.Namespace, change.Name)
	}
	if len(committed.PartitionSpecs) == 0 {
		committed.PartitionSpecs = []metadata.PartitionSpec{{SpecID: 0}}
	}
	if len(committed.SortOrders) == 0 {
		committed.SortOrders = []metadata.SortOrder{{OrderID: 0}}
	}
	return committed, nil
}

// validateRequirements checks all requirements in request order; the
// first failure names the offending requirement
func validateRequirements(change TableChange, current *metadata.TableMetadata) error {
	for i, req := range change.Requirements {
		if err := req.Validate(current); err != nil {
			return errors.New(ErrCommitConflict, "commit requirement failed", err).
				AddContext("requirement", req.Type()).
				AddContext("position", i)
		}
	}
	return nil
}

// applyUpdates applies all updates in request order; the first failure
// names the offending update
func applyUpdates(change TableChange, builder *metadata.Builder) error {
	for i, upd := range change.Updates {
		if err := upd.Apply(builder); err != nil {
			return errors.New(ErrUpdateRejected, "commit update rejected", err).
				AddContext("action", upd.Action()).
				AddContext("position", i)
		}
	}
	return nil
}
