package paths

// LocationManager resolves warehouse locations and metadata file locations
// for tables. Locations are storage URIs (s3://..., file://...) handled as
// opaque prefixes; the catalog never reads or writes the bytes behind them.
type LocationManager interface {
	// GetWarehouse returns the warehouse root location
	GetWarehouse() string

	// GetTableLocation returns the default location for a table
	GetTableLocation(namespace []string, tableName string) string

	// GetMetadataLocation returns the location of a new metadata file
	// for the given table location and commit version
	GetMetadataLocation(tableLocation string, version int) string
}
