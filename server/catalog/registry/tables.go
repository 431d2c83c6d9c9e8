package registry

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/icecapdb/icecap/server/catalog/metadata"
	"github.com/icecapdb/icecap/server/catalog/registry/regtypes"
	"github.com/uptrace/bun"
)

// GetTable loads one table row by namespace and name
func (s *Store) GetTable(ctx context.Context, levels []string, name string) (*regtypes.Table, error) {
	return s.getTable(ctx, s.db, levels, name)
}

// GetTableTx is GetTable inside a caller-owned transaction. The commit
// path re-reads the row under the table lock through this.
func (s *Store) GetTableTx(ctx context.Context, idb bun.IDB, levels []string, name string) (*regtypes.Table, error) {
	return s.getTable(ctx, idb, levels, name)
}

func (s *Store) getTable(ctx context.Context, idb bun.IDB, levels []string, name string) (*regtypes.Table, error) {
	table := new(regtypes.Table)
	err := idb.NewSelect().
		Model(table).
		Join("JOIN namespaces AS ns ON ns.id = t.namespace_id").
		Where("ns.levels = ?", JoinLevels(levels)).
		Where("t.name = ?", name).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Newf(ErrTableNotFound, "table %v.%s not found", levels, name)
		}
		return nil, errors.New(ErrQueryFailed, "failed to load table", err)
	}
	return table, nil
}

// TableExists reports whether a non-staged table is registered
func (s *Store) TableExists(ctx context.Context, levels []string, name string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*regtypes.Table)(nil)).
		Join("JOIN namespaces AS ns ON ns.id = t.namespace_id").
		Where("ns.levels = ?", JoinLevels(levels)).
		Where("t.name = ?", name).
		Where("t.staged = ?", false).
		Exists(ctx)
	if err != nil {
		return false, errors.New(ErrQueryFailed, "failed to check table existence", err)
	}
	return exists, nil
}

// ListTables returns table names in a namespace, name-ordered, one page
// at a time. The returned token is empty on the last page.
func (s *Store) ListTables(ctx context.Context, levels []string, pageToken string, pageSize int) ([]string, string, error) {
	cursor, err := decodePageToken(pageToken)
	if err != nil {
		return nil, "", err
	}
	ns, err := s.GetNamespace(ctx, levels)
	if err != nil {
		return nil, "", err
	}

	q := s.db.NewSelect().
		Model((*regtypes.Table)(nil)).
		Column("t.name").
		Where("t.namespace_id = ?", ns.ID).
		Where("t.staged = ?", false).
		Order("t.name ASC").
		Limit(pageSize + 1)
	if cursor != "" {
		q = q.Where("t.name > ?", cursor)
	}

	var names []string
	if err := q.Scan(ctx, &names); err != nil {
		return nil, "", errors.New(ErrQueryFailed, "failed to list tables", err)
	}

	var next string
	if len(names) > pageSize {
		names = names[:pageSize]
		next = encodePageToken(names[len(names)-1])
	}
	return names, next, nil
}

// CreateTable inserts a table and its full metadata document inside a
// caller-owned transaction. staged tables are invisible to reads until
// a commit completes their creation.
func (s *Store) CreateTable(ctx context.Context, tx bun.Tx, levels []string, name string, meta *metadata.TableMetadata, metadataLocation string, staged bool) (*regtypes.Table, error) {
	ns := new(regtypes.Namespace)
	err := tx.NewSelect().Model(ns).Where("levels = ?", JoinLevels(levels)).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Newf(ErrNamespaceNotFound, "namespace %v not found", levels)
		}
		return nil, errors.New(ErrQueryFailed, "failed to load namespace", err)
	}

	props, err := json.Marshal(nonNilProps(meta.Properties))
	if err != nil {
		return nil, errors.New(ErrQueryFailed, "failed to encode table properties", err)
	}

	table := &regtypes.Table{
		NamespaceID:        ns.ID,
		Name:               name,
		TableUUID:          meta.TableUUID,
		Location:           meta.Location,
		MetadataLocation:   metadataLocation,
		FormatVersion:      meta.FormatVersion,
		LastSequenceNumber: meta.LastSequenceNumber,
		LastUpdatedMs:      meta.LastUpdatedMs,
		LastColumnID:       meta.LastColumnID,
		LastPartitionID:    meta.LastPartitionID,
		CurrentSchemaID:    meta.CurrentSchemaID,
		DefaultSpecID:      meta.DefaultSpecID,
		DefaultSortOrderID: meta.DefaultSortOrderID,
		CurrentSnapshotID:  meta.CurrentSnapshotID,
		Properties:         string(props),
		RowLineage:         meta.RowLineage,
		NextRowID:          meta.NextRowID,
		Staged:             staged,
	}
	if _, err := tx.NewInsert().Model(table).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Newf(ErrTableAlreadyExists, "table %v.%s already exists", levels, name)
		}
		return nil, errors.New(ErrQueryFailed, "failed to insert table", err)
	}

	empty := &metadata.TableMetadata{}
	if err := s.saveChildren(ctx, tx, table.ID, empty, meta); err != nil {
		return nil, err
	}
	if _, err := tx.NewUpdate().
		Model((*regtypes.Namespace)(nil)).
		Set("table_count = table_count + 1").
		Where("id = ?", ns.ID).
		Exec(ctx); err != nil {
		return nil, errors.New(ErrQueryFailed, "failed to bump namespace table count", err)
	}
	return table, nil
}

// LoadMetadata assembles the full metadata document for a table row
func (s *Store) LoadMetadata(ctx context.Context, table *regtypes.Table) (*metadata.TableMetadata, error) {
	return s.loadMetadata(ctx, s.db, table)
}

// LoadMetadataTx is LoadMetadata inside a caller-owned transaction
func (s *Store) LoadMetadataTx(ctx context.Context, idb bun.IDB, table *regtypes.Table) (*metadata.TableMetadata, error) {
	return s.loadMetadata(ctx, idb, table)
}

func (s *Store) loadMetadata(ctx context.Context, idb bun.IDB, table *regtypes.Table) (*metadata.TableMetadata, error) {
	meta := &metadata.TableMetadata{
		FormatVersion:      table.FormatVersion,
		TableUUID:          table.TableUUID,
		Location:           table.Location,
		LastSequenceNumber: table.LastSequenceNumber,
		LastUpdatedMs:      table.LastUpdatedMs,
		LastColumnID:       table.LastColumnID,
		LastPartitionID:    table.LastPartitionID,
		CurrentSchemaID:    table.CurrentSchemaID,
		DefaultSpecID:      table.DefaultSpecID,
		DefaultSortOrderID: table.DefaultSortOrderID,
		CurrentSnapshotID:  table.CurrentSnapshotID,
		RowLineage:         table.RowLineage,
		NextRowID:          table.NextRowID,
	}

	if table.Properties != "" {
		props := map[string]string{}
		if err := json.Unmarshal([]byte(table.Properties), &props); err != nil {
			return nil, errors.New(ErrQueryFailed, "failed to decode table properties", err)
		}
		if len(props) > 0 {
			meta.Properties = props
		}
	}

	var schemaRows []regtypes.TableSchema
	if err := idb.NewSelect().Model(&schemaRows).
		Where("table_id = ?", table.ID).Order("schema_id ASC").Scan(ctx); err != nil {
		return nil, errors.New(ErrQueryFailed, "failed to load schemas", err)
	}
	for _, row := range schemaRows {
		var schema metadata.Schema
		if err := json.Unmarshal([]byte(row.SchemaJSON), &schema); err != nil {
			return nil, errors.New(ErrQueryFailed, "failed to decode schema", err).AddContext("schema_id", row.SchemaID)
		}
		meta.Schemas = append(meta.Schemas, schema)
	}

	var specRows []regtypes.PartitionSpec
	if err := idb.NewSelect().Model(&specRows).
		Where("table_id = ?", table.ID).Order("spec_id ASC").Scan(ctx); err != nil {
		return nil, errors.New(ErrQueryFailed, "failed to load partition specs", err)
	}
	for _, row := range specRows {
		var spec metadata.PartitionSpec
		if err := json.Unmarshal([]byte(row.SpecJSON), &spec); err != nil {
			return nil, errors.New(ErrQueryFailed, "failed to decode partition spec", err).AddContext("spec_id", row.SpecID)
		}
		meta.PartitionSpecs = append(meta.PartitionSpecs, spec)
	}

	var orderRows []regtypes.SortOrder
	if err := idb.NewSelect().Model(&orderRows).
		Where("table_id = ?", table.ID).Order("order_id ASC").Scan(ctx); err != nil {
		return nil, errors.New(ErrQueryFailed, "failed to load sort orders", err)
	}
	for _, row := range orderRows {
		var order metadata.SortOrder
		if err := json.Unmarshal([]byte(row.OrderJSON), &order); err != nil {
			return nil, errors.New(ErrQueryFailed, "failed to decode sort order", err).AddContext("order_id", row.OrderID)
		}
		meta.SortOrders = append(meta.SortOrders, order)
	}

	var snapshotRows []regtypes.Snapshot
	if err := idb.NewSelect().Model(&snapshotRows).
		Where("table_id = ?", table.ID).Order("sequence_number ASC").Scan(ctx); err != nil {
		return nil, errors.New(ErrQueryFailed, "failed to load snapshots", err)
	}
	for _, row := range snapshotRows {
		snap := metadata.Snapshot{
			SnapshotID:       row.SnapshotID,
			ParentSnapshotID: row.ParentSnapshotID,
			SequenceNumber:   row.SequenceNumber,
			TimestampMs:      row.TimestampMs,
			ManifestList:     row.ManifestList,
			SchemaID:         row.SchemaID,
		}
		if row.SummaryJSON != "" {
			if err := json.Unmarshal([]byte(row.SummaryJSON), &snap.Summary); err != nil {
				return nil, errors.New(ErrQueryFailed, "failed to decode snapshot summary", err).AddContext("snapshot_id", row.SnapshotID)
			}
		}
		meta.Snapshots = append(meta.Snapshots, snap)
	}

	var refRows []regtypes.SnapshotRef
	if err := idb.NewSelect().Model(&refRows).
		Where("table_id = ?", table.ID).Scan(ctx); err != nil {
		return nil, errors.New(ErrQueryFailed, "failed to load snapshot refs", err)
	}
	if len(refRows) > 0 {
		meta.Refs = make(map[string]metadata.SnapshotRef, len(refRows))
		for _, row := range refRows {
			meta.Refs[row.Name] = metadata.SnapshotRef{
				SnapshotID:         row.SnapshotID,
				Type:               metadata.RefType(row.RefType),
				MinSnapshotsToKeep: row.MinSnapshotsToKeep,
				MaxSnapshotAgeMs:   row.MaxSnapshotAgeMs,
				MaxRefAgeMs:        row.MaxRefAgeMs,
			}
		}
	}

	var logRows []regtypes.SnapshotLogEntry
	if err := idb.NewSelect().Model(&logRows).
		Where("table_id = ?", table.ID).Order("id ASC").Scan(ctx); err != nil {
		return nil, errors.New(ErrQueryFailed, "failed to load snapshot log", err)
	}
	for _, row := range logRows {
		meta.SnapshotLog = append(meta.SnapshotLog, metadata.SnapshotLogEntry{
			SnapshotID:  row.SnapshotID,
			TimestampMs: row.TimestampMs,
		})
	}

	var metaLogRows []regtypes.MetadataLogEntry
	if err := idb.NewSelect().Model(&metaLogRows).
		Where("table_id = ?", table.ID).Order("id ASC").Scan(ctx); err != nil {
		return nil, errors.New(ErrQueryFailed, "failed to load metadata log", err)
	}
	for _, row := range metaLogRows {
		meta.MetadataLog = append(meta.MetadataLog, metadata.MetadataLogEntry{
			MetadataFile: row.MetadataFile,
			TimestampMs:  row.TimestampMs,
		})
	}

	return meta, nil
}

// SaveCommit persists the committed document by diffing it against the
// pre-commit one. Registries only grow; snapshots and refs can also
// shrink through expiry updates.
func (s *Store) SaveCommit(ctx context.Context, tx bun.Tx, table *regtypes.Table, old, committed *metadata.TableMetadata, metadataLocation string) error {
	props, err := json.Marshal(nonNilProps(committed.Properties))
	if err != nil {
		return errors.New(ErrQueryFailed, "failed to encode table properties", err)
	}

	_, err = tx.NewUpdate().
		Model((*regtypes.Table)(nil)).
		Set("table_uuid = ?", committed.TableUUID).
		Set("location = ?", committed.Location).
		Set("metadata_location = ?", metadataLocation).
		Set("format_version = ?", committed.FormatVersion).
		Set("last_sequence_number = ?", committed.LastSequenceNumber).
		Set("last_updated_ms = ?", committed.LastUpdatedMs).
		Set("last_column_id = ?", committed.LastColumnID).
		Set("last_partition_id = ?", committed.LastPartitionID).
		Set("current_schema_id = ?", committed.CurrentSchemaID).
		Set("default_spec_id = ?", committed.DefaultSpecID).
		Set("default_sort_order_id = ?", committed.DefaultSortOrderID).
		Set("current_snapshot_id = ?", committed.CurrentSnapshotID).
		Set("properties = ?", string(props)).
		Set("row_lineage = ?", committed.RowLineage).
		Set("next_row_id = ?", committed.NextRowID).
		Set("staged = ?", false).
		Set("updated_at = datetime('now')").
		Where("id = ?", table.ID).
		Exec(ctx)
	if err != nil {
		return errors.New(ErrQueryFailed, "failed to update table row", err)
	}

	return s.saveChildren(ctx, tx, table.ID, old, committed)
}

// saveChildren diffs the child collections of two metadata documents and
// applies the difference
func (s *Store) saveChildren(ctx context.Context, tx bun.Tx, tableID int64, old, committed *metadata.TableMetadata) error {
	oldSchemas := make(map[int]bool, len(old.Schemas))
	for _, schema := range old.Schemas {
		oldSchemas[schema.SchemaID] = true
	}
	for _, schema := range committed.Schemas {
		if oldSchemas[schema.SchemaID] {
			continue
		}
		encoded, err := json.Marshal(schema)
		if err != nil {
			return errors.New(ErrQueryFailed, "failed to encode schema", err)
		}
		row := &regtypes.TableSchema{TableID: tableID, SchemaID: schema.SchemaID, SchemaJSON: string(encoded)}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return errors.New(ErrQueryFailed, "failed to insert schema", err).AddContext("schema_id", schema.SchemaID)
		}
	}

	oldSpecs := make(map[int]bool, len(old.PartitionSpecs))
	for _, spec := range old.PartitionSpecs {
		oldSpecs[spec.SpecID] = true
	}
	for _, spec := range committed.PartitionSpecs {
		if oldSpecs[spec.SpecID] {
			continue
		}
		encoded, err := json.Marshal(spec)
		if err != nil {
			return errors.New(ErrQueryFailed, "failed to encode partition spec", err)
		}
		row := &regtypes.PartitionSpec{TableID: tableID, SpecID: spec.SpecID, SpecJSON: string(encoded)}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return errors.New(ErrQueryFailed, "failed to insert partition spec", err).AddContext("spec_id", spec.SpecID)
		}
	}

	oldOrders := make(map[int]bool, len(old.SortOrders))
	for _, order := range old.SortOrders {
		oldOrders[order.OrderID] = true
	}
	for _, order := range committed.SortOrders {
		if oldOrders[order.OrderID] {
			continue
		}
		encoded, err := json.Marshal(order)
		if err != nil {
			return errors.New(ErrQueryFailed, "failed to encode sort order", err)
		}
		row := &regtypes.SortOrder{TableID: tableID, OrderID: order.OrderID, OrderJSON: string(encoded)}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return errors.New(ErrQueryFailed, "failed to insert sort order", err).AddContext("order_id", order.OrderID)
		}
	}

	if err := s.saveSnapshots(ctx, tx, tableID, old, committed); err != nil {
		return err
	}
	if err := s.saveRefs(ctx, tx, tableID, old, committed); err != nil {
		return err
	}
	return s.saveLogs(ctx, tx, tableID, old, committed)
}

func (s *Store) saveSnapshots(ctx context.Context, tx bun.Tx, tableID int64, old, committed *metadata.TableMetadata) error {
	oldSnaps := make(map[int64]bool, len(old.Snapshots))
	for _, snap := range old.Snapshots {
		oldSnaps[snap.SnapshotID] = true
	}
	newSnaps := make(map[int64]bool, len(committed.Snapshots))
	for _, snap := range committed.Snapshots {
		newSnaps[snap.SnapshotID] = true
		if oldSnaps[snap.SnapshotID] {
			continue
		}
		summary, err := json.Marshal(snap.Summary)
		if err != nil {
			return errors.New(ErrQueryFailed, "failed to encode snapshot summary", err)
		}
		row := &regtypes.Snapshot{
			TableID:          tableID,
			SnapshotID:       snap.SnapshotID,
			ParentSnapshotID: snap.ParentSnapshotID,
			SequenceNumber:   snap.SequenceNumber,
			TimestampMs:      snap.TimestampMs,
			ManifestList:     snap.ManifestList,
			SummaryJSON:      string(summary),
			SchemaID:         snap.SchemaID,
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return errors.New(ErrQueryFailed, "failed to insert snapshot", err).AddContext("snapshot_id", snap.SnapshotID)
		}
	}

	var removed []int64
	for _, snap := range old.Snapshots {
		if !newSnaps[snap.SnapshotID] {
			removed = append(removed, snap.SnapshotID)
		}
	}
	if len(removed) > 0 {
		if _, err := tx.NewDelete().
			Model((*regtypes.Snapshot)(nil)).
			Where("table_id = ?", tableID).
			Where("snapshot_id IN (?)", bun.In(removed)).
			Exec(ctx); err != nil {
			return errors.New(ErrQueryFailed, "failed to delete expired snapshots", err)
		}
	}
	return nil
}

func (s *Store) saveRefs(ctx context.Context, tx bun.Tx, tableID int64, old, committed *metadata.TableMetadata) error {
	for name, ref := range committed.Refs {
		oldRef, existed := old.Refs[name]
		if existed && oldRef == ref {
			continue
		}
		row := &regtypes.SnapshotRef{
			TableID:            tableID,
			Name:               name,
			SnapshotID:         ref.SnapshotID,
			RefType:            string(ref.Type),
			MinSnapshotsToKeep: ref.MinSnapshotsToKeep,
			MaxSnapshotAgeMs:   ref.MaxSnapshotAgeMs,
			MaxRefAgeMs:        ref.MaxRefAgeMs,
		}
		if existed {
			if _, err := tx.NewUpdate().
				Model(row).
				Column("snapshot_id", "ref_type", "min_snapshots_to_keep", "max_snapshot_age_ms", "max_ref_age_ms").
				Where("table_id = ?", tableID).
				Where("name = ?", name).
				Exec(ctx); err != nil {
				return errors.New(ErrQueryFailed, "failed to update snapshot ref", err).AddContext("ref", name)
			}
		} else {
			if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
				return errors.New(ErrQueryFailed, "failed to insert snapshot ref", err).AddContext("ref", name)
			}
		}
	}

	for name := range old.Refs {
		if _, kept := committed.Refs[name]; kept {
			continue
		}
		if _, err := tx.NewDelete().
			Model((*regtypes.SnapshotRef)(nil)).
			Where("table_id = ?", tableID).
			Where("name = ?", name).
			Exec(ctx); err != nil {
			return errors.New(ErrQueryFailed, "failed to delete snapshot ref", err).AddContext("ref", name)
		}
	}
	return nil
}

func (s *Store) saveLogs(ctx context.Context, tx bun.Tx, tableID int64, old, committed *metadata.TableMetadata) error {
	// the snapshot log normally only grows, but snapshot expiry rewrites
	// it; replace wholesale when the old log is not a prefix
	tail := committed.SnapshotLog
	if isLogPrefix(old.SnapshotLog, committed.SnapshotLog) {
		tail = committed.SnapshotLog[len(old.SnapshotLog):]
	} else {
		if _, err := tx.NewDelete().
			Model((*regtypes.SnapshotLogEntry)(nil)).
			Where("table_id = ?", tableID).
			Exec(ctx); err != nil {
			return errors.New(ErrQueryFailed, "failed to clear snapshot log", err)
		}
	}
	for _, entry := range tail {
		row := &regtypes.SnapshotLogEntry{TableID: tableID, SnapshotID: entry.SnapshotID, TimestampMs: entry.TimestampMs}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return errors.New(ErrQueryFailed, "failed to append snapshot log", err)
		}
	}

	// the metadata log is append-only
	for _, entry := range committed.MetadataLog[len(old.MetadataLog):] {
		row := &regtypes.MetadataLogEntry{TableID: tableID, MetadataFile: entry.MetadataFile, TimestampMs: entry.TimestampMs}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return errors.New(ErrQueryFailed, "failed to append metadata log", err)
		}
	}
	return nil
}

func isLogPrefix(old, committed []metadata.SnapshotLogEntry) bool {
	if len(old) > len(committed) {
		return false
	}
	for i, entry := range old {
		if committed[i] != entry {
			return false
		}
	}
	return true
}

// RenameTable moves a table to a new namespace and name atomically
func (s *Store) RenameTable(ctx context.Context, fromLevels []string, fromName string, toLevels []string, toName string) error {
	return s.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		table, err := s.getTable(ctx, tx, fromLevels, fromName)
		if err != nil {
			return err
		}

		destNS := new(regtypes.Namespace)
		err = tx.NewSelect().Model(destNS).Where("levels = ?", JoinLevels(toLevels)).Scan(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return errors.Newf(ErrNamespaceNotFound, "namespace %v not found", toLevels)
			}
			return errors.New(ErrQueryFailed, "failed to load destination namespace", err)
		}

		_, err = tx.NewUpdate().
			Model((*regtypes.Table)(nil)).
			Set("namespace_id = ?", destNS.ID).
			Set("name = ?", toName).
			Set("updated_at = datetime('now')").
			Where("id = ?", table.ID).
			Exec(ctx)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.Newf(ErrTableAlreadyExists, "table %v.%s already exists", toLevels, toName)
			}
			return errors.New(ErrQueryFailed, "failed to rename table", err)
		}

		if destNS.ID != table.NamespaceID {
			if _, err := tx.NewUpdate().
				Model((*regtypes.Namespace)(nil)).
				Set("table_count = table_count - 1").
				Where("id = ?", table.NamespaceID).
				Exec(ctx); err != nil {
				return errors.New(ErrQueryFailed, "failed to adjust namespace table count", err)
			}
			if _, err := tx.NewUpdate().
				Model((*regtypes.Namespace)(nil)).
				Set("table_count = table_count + 1").
				Where("id = ?", destNS.ID).
				Exec(ctx); err != nil {
				return errors.New(ErrQueryFailed, "failed to adjust namespace table count", err)
			}
		}
		return nil
	})
}

// DropTable removes a table and all of its metadata rows
func (s *Store) DropTable(ctx context.Context, levels []string, name string) error {
	return s.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		table, err := s.getTable(ctx, tx, levels, name)
		if err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*regtypes.Table)(nil)).
			Where("id = ?", table.ID).
			Exec(ctx); err != nil {
			return errors.New(ErrQueryFailed, "failed to drop table", err)
		}
		if _, err := tx.NewUpdate().
			Model((*regtypes.Namespace)(nil)).
			Set("table_count = table_count - 1").
			Where("id = ?", table.NamespaceID).
			Exec(ctx); err != nil {
			return errors.New(ErrQueryFailed, "failed to adjust namespace table count", err)
		}
		// scoped credential rows have no foreign key, clean them up here
		if _, err := tx.NewDelete().
			Model((*regtypes.StorageCredential)(nil)).
			Where("table_id = ?", table.ID).
			Exec(ctx); err != nil {
			return errors.New(ErrQueryFailed, "failed to drop table credentials", err)
		}
		return nil
	})
}

// InsertMetric stores one client-reported metrics document
func (s *Store) InsertMetric(ctx context.Context, tableID int64, reportType string, reportJSON string) error {
	row := &regtypes.OperationMetric{TableID: tableID, ReportType: reportType, ReportJSON: reportJSON}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return errors.New(ErrQueryFailed, "failed to insert metrics report", err)
	}
	return nil
}
