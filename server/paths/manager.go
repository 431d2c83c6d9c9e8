package paths

import (
	"fmt"
	"strings"

	"github.com/icecapdb/icecap/utils"
)

// Manager implements the LocationManager interface over a warehouse root
type Manager struct {
	warehouse string
}

// NewManager creates a new location manager
func NewManager(warehouse string) *Manager {
	return &Manager{
		warehouse: strings.TrimRight(warehouse, "/"),
	}
}

// GetWarehouse returns the warehouse root location
func (m *Manager) GetWarehouse() string {
	return m.warehouse
}

// GetTableLocation returns the default location for a table. Namespace
// levels join with dots under the warehouse root, matching the layout query
// engines expect when no explicit location is supplied at create time.
func (m *Manager) GetTableLocation(namespace []string, tableName string) string {
	return fmt.Sprintf("%s/%s/%s", m.warehouse, strings.Join(namespace, "."), tableName)
}

// GetMetadataLocation returns the location of a new metadata file for the
// given table location and commit version. The file name carries the
// zero-padded version and a ULID so retried writes never collide.
func (m *Manager) GetMetadataLocation(tableLocation string, version int) string {
	return fmt.Sprintf("%s/metadata/%05d-%s.metadata.json",
		strings.TrimRight(tableLocation, "/"), version, utils.GenerateULIDString())
}
