package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/icecapdb/icecap/server/catalog/commit"
	"github.com/icecapdb/icecap/server/catalog/credentials"
	"github.com/icecapdb/icecap/server/catalog/metadata"
	"github.com/icecapdb/icecap/server/catalog/registry"
	"github.com/icecapdb/icecap/server/catalog/registry/regtypes"
	"github.com/icecapdb/icecap/server/catalog/scan"
	"github.com/icecapdb/icecap/server/config"
	"github.com/icecapdb/icecap/server/paths"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
)

// Catalog-specific error codes
var (
	ErrInvalidTableName  = errors.MustNewCode("catalog.invalid_table_name").WithClass(errors.ClassInvalidArgument)
	ErrInvalidSnapshots  = errors.MustNewCode("catalog.invalid_snapshots_filter").WithClass(errors.ClassInvalidArgument)
	ErrMissingLocation   = errors.MustNewCode("catalog.missing_metadata_location").WithClass(errors.ClassInvalidArgument)
	ErrInvalidPageSize   = errors.MustNewCode("catalog.invalid_page_size").WithClass(errors.ClassInvalidArgument)
	ErrInvalidReportType = errors.MustNewCode("catalog.invalid_report_type").WithClass(errors.ClassInvalidArgument)
)

// SnapshotsFilter narrows which snapshots a table load returns
type SnapshotsFilter string

const (
	SnapshotsAll  SnapshotsFilter = "all"
	SnapshotsRefs SnapshotsFilter = "refs"
)

// Catalog is the table-metadata catalog service: namespaces, tables,
// commits, credentials and scan planning behind one facade.
type Catalog struct {
	cfg       *config.Config
	store     *registry.Store
	engine    *commit.Engine
	resolver  *credentials.Resolver
	scans     *scan.Manager
	locations paths.LocationManager
	logger    zerolog.Logger
}

// NewCatalog wires the catalog service from configuration
func NewCatalog(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Catalog, error) {
	store, err := registry.NewStore(ctx, cfg.GetDatabasePath(), logger)
	if err != nil {
		return nil, err
	}

	locations := paths.NewManager(cfg.GetWarehouse())
	sp := cfg.Catalog.ScanPlans
	return &Catalog{
		cfg:       cfg,
		store:     store,
		engine:    commit.NewEngine(store, locations, logger),
		resolver:  credentials.NewResolver(store, logger),
		scans:     scan.NewManager(scan.MetadataPlanner{}, sp.Workers, sp.IdleTTL, sp.SweepInterval, logger),
		locations: locations,
		logger:    logger.With().Str("component", "catalog").Logger(),
	}, nil
}

// Start brings up the scan plan manager
func (c *Catalog) Start() error {
	return c.scans.Start()
}

// Stop shuts the catalog down
func (c *Catalog) Stop() error {
	if err := c.scans.Stop(); err != nil {
		c.logger.Warn().Err(err).Msg("Scan manager stop failed")
	}
	return c.store.Close()
}

// Name returns the configured catalog name
func (c *Catalog) Name() string {
	return c.cfg.Catalog.Name
}

// Warehouse returns the warehouse root location
func (c *Catalog) Warehouse() string {
	return c.locations.GetWarehouse()
}

// clampPageSize applies the configured page size cap; zero or negative
// requests get the cap
func (c *Catalog) clampPageSize(requested int) int {
	max := c.cfg.Catalog.MaxPageSize
	if requested <= 0 || requested > max {
		return max
	}
	return requested
}

// ---------------------------------------------------------------------------
// Namespaces

// CreateNamespace registers a namespace
func (c *Catalog) CreateNamespace(ctx context.Context, levels []string, properties map[string]string) (map[string]string, error) {
	ns, err := c.store.CreateNamespace(ctx, levels, properties)
	if err != nil {
		return nil, err
	}
	c.logger.Info().Strs("namespace", levels).Msg("Namespace created")
	return registry.NamespaceProperties(ns)
}

// LoadNamespace returns a namespace's properties
func (c *Catalog) LoadNamespace(ctx context.Context, levels []string) (map[string]string, error) {
	ns, err := c.store.GetNamespace(ctx, levels)
	if err != nil {
		return nil, err
	}
	return registry.NamespaceProperties(ns)
}

// NamespaceExists reports whether a namespace is registered
func (c *Catalog) NamespaceExists(ctx context.Context, levels []string) (bool, error) {
	return c.store.NamespaceExists(ctx, levels)
}

// ListNamespaces lists direct children of parent one page at a time
func (c *Catalog) ListNamespaces(ctx context.Context, parent []string, pageToken string, pageSize int) ([][]string, string, error) {
	return c.store.ListNamespaces(ctx, parent, pageToken, c.clampPageSize(pageSize))
}

// UpdateNamespaceProperties merges updates and drops removals
func (c *Catalog) UpdateNamespaceProperties(ctx context.Context, levels []string, updates map[string]string, removals []string) (updated, removed, missing []string, err error) {
	return c.store.UpdateNamespaceProperties(ctx, levels, updates, removals)
}

// DropNamespace removes an empty namespace
func (c *Catalog) DropNamespace(ctx context.Context, levels []string) error {
	if err := c.store.DropNamespace(ctx, levels); err != nil {
		return err
	}
	c.logger.Info().Strs("namespace", levels).Msg("Namespace dropped")
	return nil
}

// ---------------------------------------------------------------------------
// Tables

// CreateTableRequest carries everything a table creation needs
type CreateTableRequest struct {
	Namespace   []string
	Name        string
	Schema      metadata.Schema
	Spec        *metadata.PartitionSpec
	SortOrder   *metadata.SortOrder
	Location    string
	Properties  map[string]string
	StageCreate bool
}

// TableResult is the loaded or committed state of a table
type TableResult struct {
	Table            *regtypes.Table
	Metadata         *metadata.TableMetadata
	MetadataLocation string
}

// ETag identifies one version of a table for conditional loads
func (r *TableResult) ETag() string {
	return fmt.Sprintf("%q", fmt.Sprintf("%s-%d", r.Metadata.TableUUID, r.Metadata.LastUpdatedMs))
}

// CreateTable registers a new table with a fresh metadata document.
// Staged creations stay invisible until a commit completes them.
func (c *Catalog) CreateTable(ctx context.Context, req CreateTableRequest) (*TableResult, error) {
	if req.Name == "" {
		return nil, errors.New(ErrInvalidTableName, "table name must not be empty", nil)
	}

	location := req.Location
	if location == "" {
		location = c.locations.GetTableLocation(req.Namespace, req.Name)
	}
	spec := metadata.PartitionSpec{}
	if req.Spec != nil {
		spec = *req.Spec
	}
	order := metadata.SortOrder{}
	if req.SortOrder != nil {
		order = *req.SortOrder
	}

	meta := metadata.NewMetadata(location, req.Schema, spec, order, req.Properties)
	metadataLocation := c.locations.GetMetadataLocation(location, 0)
	meta.MetadataLog = append(meta.MetadataLog, metadata.MetadataLogEntry{
		MetadataFile: metadataLocation,
		TimestampMs:  meta.LastUpdatedMs,
	})

	var table *regtypes.Table
	err := c.store.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		table, err = c.store.CreateTable(ctx, tx, req.Namespace, req.Name, meta, metadataLocation, req.StageCreate)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Strs("namespace", req.Namespace).
		Str("table", req.Name).
		Str("uuid", meta.TableUUID).
		Bool("staged", req.StageCreate).
		Msg("Table created")
	return &TableResult{Table: table, Metadata: meta, MetadataLocation: metadataLocation}, nil
}

// RegisterTable records an existing table by its current metadata
// document and location. The catalog stores metadata, it never reads
// the file behind the location, so the document travels in the request.
func (c *Catalog) RegisterTable(ctx context.Context, levels []string, name, metadataLocation string, meta *metadata.TableMetadata) (*TableResult, error) {
	if name == "" {
		return nil, errors.New(ErrInvalidTableName, "table name must not be empty", nil)
	}
	if metadataLocation == "" {
		return nil, errors.New(ErrMissingLocation, "metadata-location is required to register a table", nil)
	}
	if meta == nil {
		return nil, errors.New(errors.CommonInvalidInput, "metadata document is required to register a table", nil)
	}

	var table *regtypes.Table
	err := c.store.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		table, err = c.store.CreateTable(ctx, tx, levels, name, meta, metadataLocation, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().Strs("namespace", levels).Str("table", name).Msg("Table registered")
	return &TableResult{Table: table, Metadata: meta, MetadataLocation: metadataLocation}, nil
}

// LoadTable returns a table's current metadata. The refs filter drops
// snapshots no ref points at, which keeps responses small for tables
// with deep history.
func (c *Catalog) LoadTable(ctx context.Context, levels []string, name string, filter SnapshotsFilter) (*TableResult, error) {
	table, err := c.store.GetTable(ctx, levels, name)
	if err != nil {
		return nil, err
	}
	if table.Staged {
		return nil, errors.Newf(registry.ErrTableNotFound, "table %v.%s not found", levels, name)
	}
	meta, err := c.store.LoadMetadata(ctx, table)
	if err != nil {
		return nil, err
	}

	switch filter {
	case "", SnapshotsAll:
	case SnapshotsRefs:
		referenced := make(map[int64]bool, len(meta.Refs))
		for _, ref := range meta.Refs {
			referenced[ref.SnapshotID] = true
		}
		kept := meta.Snapshots[:0]
		for _, snap := range meta.Snapshots {
			if referenced[snap.SnapshotID] {
				kept = append(kept, snap)
			}
		}
		meta.Snapshots = kept
	default:
		return nil, errors.Newf(ErrInvalidSnapshots, "unknown snapshots filter %q", filter)
	}

	return &TableResult{Table: table, Metadata: meta, MetadataLocation: table.MetadataLocation}, nil
}

// TableExists reports whether a table is registered and visible
func (c *Catalog) TableExists(ctx context.Context, levels []string, name string) (bool, error) {
	return c.store.TableExists(ctx, levels, name)
}

// ListTables lists table names in a namespace one page at a time
func (c *Catalog) ListTables(ctx context.Context, levels []string, pageToken string, pageSize int) ([]string, string, error) {
	return c.store.ListTables(ctx, levels, pageToken, c.clampPageSize(pageSize))
}

// DropTable removes a table from the catalog. purge is recorded for the
// caller's cleanup tooling; the catalog itself never touches data files.
func (c *Catalog) DropTable(ctx context.Context, levels []string, name string, purge bool) error {
	if err := c.store.DropTable(ctx, levels, name); err != nil {
		return err
	}
	c.logger.Info().
		Strs("namespace", levels).
		Str("table", name).
		Bool("purge_requested", purge).
		Msg("Table dropped")
	return nil
}

// RenameTable moves a table, possibly across namespaces
func (c *Catalog) RenameTable(ctx context.Context, fromLevels []string, fromName string, toLevels []string, toName string) error {
	if toName == "" {
		return errors.New(ErrInvalidTableName, "destination table name must not be empty", nil)
	}
	if err := c.store.RenameTable(ctx, fromLevels, fromName, toLevels, toName); err != nil {
		return err
	}
	c.logger.Info().
		Strs("from_namespace", fromLevels).
		Str("from", fromName).
		Strs("to_namespace", toLevels).
		Str("to", toName).
		Msg("Table renamed")
	return nil
}

// ---------------------------------------------------------------------------
// Commits

// CommitTable applies one table's requirements and updates
func (c *Catalog) CommitTable(ctx context.Context, change commit.TableChange) (*TableResult, error) {
	res, err := c.engine.Commit(ctx, change)
	if err != nil {
		return nil, err
	}
	return &TableResult{Table: res.Table, Metadata: res.Metadata, MetadataLocation: res.MetadataLocation}, nil
}

// CommitTransaction applies several tables' changes atomically
func (c *Catalog) CommitTransaction(ctx context.Context, changes []commit.TableChange) ([]*TableResult, error) {
	results, err := c.engine.CommitTransaction(ctx, changes)
	if err != nil {
		return nil, err
	}
	out := make([]*TableResult, 0, len(results))
	for _, res := range results {
		out = append(out, &TableResult{Table: res.Table, Metadata: res.Metadata, MetadataLocation: res.MetadataLocation})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Credentials

// LoadCredentials vends the storage credentials for a table's location,
// most specific first. Resolution must be unambiguous: no match is
// NotFound, equally specific matches are Conflict.
func (c *Catalog) LoadCredentials(ctx context.Context, levels []string, name string) ([]credentials.Credential, error) {
	table, err := c.store.GetTable(ctx, levels, name)
	if err != nil {
		return nil, err
	}
	if _, err := c.resolver.Resolve(ctx, c.Warehouse(), table.ID, table.Location); err != nil {
		return nil, err
	}
	return c.resolver.CredentialsForTable(ctx, c.Warehouse(), table.ID, table.Location)
}

// PutCredential registers a storage credential row. With overwrite set
// an existing row with the same scope gets its config replaced.
func (c *Catalog) PutCredential(ctx context.Context, prefix string, config map[string]string, tableID *int64, overwrite bool) error {
	encoded, err := json.Marshal(config)
	if err != nil {
		return errors.New(errors.CommonInvalidInput, "failed to encode credential config", err)
	}
	if overwrite {
		_, err = c.store.UpsertCredential(ctx, prefix, c.Warehouse(), string(encoded), tableID)
	} else {
		_, err = c.store.CreateCredential(ctx, prefix, c.Warehouse(), string(encoded), tableID)
	}
	return err
}

// ---------------------------------------------------------------------------
// Metrics

// ReportMetrics stores a client metrics report for a table. Reports are
// retained verbatim and never influence commits.
func (c *Catalog) ReportMetrics(ctx context.Context, levels []string, name, reportType string, report json.RawMessage) error {
	if reportType != "scan-report" && reportType != "commit-report" {
		return errors.Newf(ErrInvalidReportType, "unknown report type %q", reportType)
	}
	table, err := c.store.GetTable(ctx, levels, name)
	if err != nil {
		return err
	}
	return c.store.InsertMetric(ctx, table.ID, reportType, string(report))
}

// ---------------------------------------------------------------------------
// Scan plans

// SubmitScanPlan starts asynchronous scan planning for a table
func (c *Catalog) SubmitScanPlan(ctx context.Context, levels []string, name string, req scan.PlanRequest) (*scan.Plan, error) {
	res, err := c.LoadTable(ctx, levels, name, SnapshotsAll)
	if err != nil {
		return nil, err
	}
	return c.scans.Submit(ctx, res.Table.ID, res.Metadata, req)
}

// GetScanPlan polls a plan's state
func (c *Catalog) GetScanPlan(planID string) (*scan.Plan, error) {
	return c.scans.Get(planID)
}

// CancelScanPlan cancels a submitted or running plan
func (c *Catalog) CancelScanPlan(planID string) error {
	return c.scans.Cancel(planID)
}

// FetchScanTasks returns the tasks of a completed plan
func (c *Catalog) FetchScanTasks(planID string) ([]json.RawMessage, error) {
	return c.scans.FetchTasks(planID)
}
