package commit

import (
	"context"
	"sync"
	"testing"

	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/icecapdb/icecap/server/catalog/metadata"
	"github.com/icecapdb/icecap/server/catalog/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTwoTables(t *testing.T) (*Engine, *registry.Store) {
	t.Helper()
	engine, store := newTestEngine(t)
	ctx := context.Background()
	_, err := store.CreateNamespace(ctx, []string{"analytics"}, nil)
	require.NoError(t, err)
	_, err = engine.Commit(ctx, createChange([]string{"analytics"}, "left"))
	require.NoError(t, err)
	_, err = engine.Commit(ctx, createChange([]string{"analytics"}, "right"))
	require.NoError(t, err)
	return engine, store
}

func propertyChange(name, key, value string, reqs ...metadata.Requirement) TableChange {
	return TableChange{
		Namespace:    []string{"analytics"},
		Name:         name,
		Requirements: reqs,
		Updates: []metadata.Update{
			metadata.SetPropertiesUpdate{Updates: map[string]string{key: value}},
		},
	}
}

func TestTransactionCommitsAllTables(t *testing.T) {
	engine, store := setupTwoTables(t)
	ctx := context.Background()

	results, err := engine.CommitTransaction(ctx, []TableChange{
		propertyChange("left", "stage", "gold"),
		propertyChange("right", "stage", "silver"),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for name, want := range map[string]string{"left": "gold", "right": "silver"} {
		table, err := store.GetTable(ctx, []string{"analytics"}, name)
		require.NoError(t, err)
		meta, err := store.LoadMetadata(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, want, meta.Properties["stage"])
	}
}

func TestTransactionFailureTouchesNothing(t *testing.T) {
	engine, store := setupTwoTables(t)
	ctx := context.Background()

	// the second change's requirement fails; the first change must not
	// be applied even though its own requirements pass
	_, err := engine.CommitTransaction(ctx, []TableChange{
		propertyChange("left", "stage", "gold"),
		propertyChange("right", "stage", "silver", metadata.AssertCurrentSchemaID{SchemaID: 99}),
	})
	require.Error(t, err)
	assert.True(t, errors.HasClass(err, errors.ClassConflict))

	table, err := store.GetTable(ctx, []string{"analytics"}, "left")
	require.NoError(t, err)
	meta, err := store.LoadMetadata(ctx, table)
	require.NoError(t, err)
	_, ok := meta.Properties["stage"]
	assert.False(t, ok)
}

func TestTransactionValidatesBeforeApplying(t *testing.T) {
	engine, store := setupTwoTables(t)
	ctx := context.Background()

	// a failed update in the second change rolls back the first
	_, err := engine.CommitTransaction(ctx, []TableChange{
		propertyChange("left", "stage", "gold"),
		{
			Namespace: []string{"analytics"},
			Name:      "right",
			Updates:   []metadata.Update{metadata.SetCurrentSchemaUpdate{SchemaID: 42}},
		},
	})
	require.Error(t, err)

	table, err := store.GetTable(ctx, []string{"analytics"}, "left")
	require.NoError(t, err)
	meta, err := store.LoadMetadata(ctx, table)
	require.NoError(t, err)
	_, ok := meta.Properties["stage"]
	assert.False(t, ok)
}

func TestTransactionRejectsDuplicatesAndCreates(t *testing.T) {
	engine, _ := setupTwoTables(t)
	ctx := context.Background()

	_, err := engine.CommitTransaction(ctx, nil)
	require.Error(t, err)
	assert.True(t, errors.HasClass(err, errors.ClassInvalidArgument))

	_, err = engine.CommitTransaction(ctx, []TableChange{
		propertyChange("left", "a", "1"),
		propertyChange("left", "b", "2"),
	})
	require.Error(t, err)
	assert.True(t, errors.HasClass(err, errors.ClassInvalidArgument))

	_, err = engine.CommitTransaction(ctx, []TableChange{
		createChange([]string{"analytics"}, "brand_new"),
	})
	require.Error(t, err)
	assert.True(t, errors.HasClass(err, errors.ClassInvalidArgument))
}

func TestTransactionMissingTableNamed(t *testing.T) {
	engine, _ := setupTwoTables(t)
	_, err := engine.CommitTransaction(context.Background(), []TableChange{
		propertyChange("left", "a", "1"),
		propertyChange("ghost", "b", "2"),
	})
	require.Error(t, err)
	assert.True(t, errors.HasClass(err, errors.ClassNotFound))
}

func TestConcurrentTransactionsNoDeadlock(t *testing.T) {
	engine, _ := setupTwoTables(t)
	ctx := context.Background()

	// opposite declaration orders; lock ordering by table id keeps the
	// two transactions from deadlocking
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := engine.CommitTransaction(ctx, []TableChange{
				propertyChange("left", "a", "1"),
				propertyChange("right", "a", "1"),
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := engine.CommitTransaction(ctx, []TableChange{
				propertyChange("right", "b", "2"),
				propertyChange("left", "b", "2"),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
