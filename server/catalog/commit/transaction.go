package commit

import (
	"context"

	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/icecapdb/icecap/server/catalog/metadata"
	"github.com/icecapdb/icecap/server/catalog/registry/regtypes"
	"github.com/uptrace/bun"
)

var (
	ErrEmptyTransaction    = errors.MustNewCode("commit.empty_transaction").WithClass(errors.ClassInvalidArgument)
	ErrDuplicateTxTable    = errors.MustNewCode("commit.duplicate_transaction_table").WithClass(errors.ClassInvalidArgument)
	ErrCreateInTransaction = errors.MustNewCode("commit.create_in_transaction").WithClass(errors.ClassInvalidArgument)
)

// CommitTransaction applies several table changes atomically: every
// requirement of every change is validated against the locked state
// before any update is applied, so either all tables move or none do.
func (e *Engine) CommitTransaction(ctx context.Context, changes []TableChange) ([]*Result, error) {
	if len(changes) == 0 {
		return nil, errors.New(ErrEmptyTransaction, "transaction carries no table changes", nil)
	}
	for _, change := range changes {
		if isCreate(change) {
			return nil, errors.Newf(ErrCreateInTransaction,
				"table %v.%s: assert-create is not allowed in a multi-table transaction",
				change.Namespace, change.Name)
		}
	}

	// resolve every table up front; locks are taken in ascending id
	// order so concurrent transactions cannot deadlock
	tableIDs := make([]int64, 0, len(changes))
	seen := make(map[int64]bool, len(changes))
	for _, change := range changes {
		table, err := e.store.GetTable(ctx, change.Namespace, change.Name)
		if err != nil {
			return nil, err
		}
		if seen[table.ID] {
			return nil, errors.Newf(ErrDuplicateTxTable,
				"table %v.%s appears more than once in the transaction",
				change.Namespace, change.Name)
		}
		seen[table.ID] = true
		tableIDs = append(tableIDs, table.ID)
	}

	unlock := e.store.LockTables(tableIDs)
	defer unlock()

	var results []*Result
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		// phase 1: re-read everything under the locks and check every
		// requirement before touching anything
		states := make([]txTableState, 0, len(changes))
		for _, change := range changes {
			table, err := e.store.GetTableTx(ctx, tx, change.Namespace, change.Name)
			if err != nil {
				return err
			}
			current, err := e.store.LoadMetadataTx(ctx, tx, table)
			if err != nil {
				return err
			}
			if err := validateRequirements(change, current); err != nil {
				return errors.New(ErrCommitConflict, "transaction requirement failed", err).
					AddContext("table", change.Name)
			}
			states = append(states, txTableState{change: change, table: table, current: current})
		}

		// phase 2: apply all updates and persist
		results = make([]*Result, 0, len(states))
		for _, state := range states {
			builder := metadata.NewBuilder(state.current)
			if err := applyUpdates(state.change, builder); err != nil {
				return err
			}
			committed := builder.Build()
			location := e.paths.GetMetadataLocation(committed.Location, len(committed.MetadataLog))
			committed.MetadataLog = append(committed.MetadataLog, metadata.MetadataLogEntry{
				MetadataFile: location,
				TimestampMs:  committed.LastUpdatedMs,
			})
			if err := e.store.SaveCommit(ctx, tx, state.table, state.current, committed, location); err != nil {
				return err
			}
			state.table.MetadataLocation = location
			state.table.LastUpdatedMs = committed.LastUpdatedMs
			results = append(results, &Result{
				Table:            state.table,
				Metadata:         committed,
				MetadataLocation: location,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().Int("tables", len(changes)).Msg("Transaction committed")
	return results, nil
}

type txTableState struct {
	change  TableChange
	table   *regtypes.Table
	current *metadata.TableMetadata
}
