package rest

import (
	"encoding/json"

	"github.com/icecapdb/icecap/server/catalog/metadata"
)

// Request and response bodies follow the Iceberg REST catalog wire
// shapes: kebab-case keys, namespaces as string arrays.

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type configResponse struct {
	Defaults  map[string]string `json:"defaults"`
	Overrides map[string]string `json:"overrides"`
}

type createNamespaceRequest struct {
	Namespace  []string          `json:"namespace"`
	Properties map[string]string `json:"properties,omitempty"`
}

type namespaceResponse struct {
	Namespace  []string          `json:"namespace"`
	Properties map[string]string `json:"properties"`
}

type listNamespacesResponse struct {
	Namespaces    [][]string `json:"namespaces"`
	NextPageToken string     `json:"next-page-token,omitempty"`
}

type updateNamespacePropertiesRequest struct {
	Removals []string          `json:"removals,omitempty"`
	Updates  map[string]string `json:"updates,omitempty"`
}

type updateNamespacePropertiesResponse struct {
	Updated []string `json:"updated"`
	Removed []string `json:"removed"`
	Missing []string `json:"missing,omitempty"`
}

type tableIdentifier struct {
	Namespace []string `json:"namespace"`
	Name      string   `json:"name"`
}

type listTablesResponse struct {
	Identifiers   []tableIdentifier `json:"identifiers"`
	NextPageToken string            `json:"next-page-token,omitempty"`
}

type createTableRequest struct {
	Name          string                  `json:"name"`
	Location      string                  `json:"location,omitempty"`
	Schema        *metadata.Schema        `json:"schema"`
	PartitionSpec *metadata.PartitionSpec `json:"partition-spec,omitempty"`
	WriteOrder    *metadata.SortOrder     `json:"write-order,omitempty"`
	StageCreate   bool                    `json:"stage-create,omitempty"`
	Properties    map[string]string       `json:"properties,omitempty"`
}

type registerTableRequest struct {
	Name             string                  `json:"name"`
	MetadataLocation string                  `json:"metadata-location"`
	Metadata         *metadata.TableMetadata `json:"metadata,omitempty"`
}

type loadTableResponse struct {
	MetadataLocation string                  `json:"metadata-location,omitempty"`
	Metadata         *metadata.TableMetadata `json:"metadata"`
	Config           map[string]string       `json:"config,omitempty"`
}

type renameTableRequest struct {
	Source      tableIdentifier `json:"source"`
	Destination tableIdentifier `json:"destination"`
}

type commitTableRequest struct {
	Identifier   *tableIdentifier  `json:"identifier,omitempty"`
	Requirements []json.RawMessage `json:"requirements"`
	Updates      []json.RawMessage `json:"updates"`
}

type commitTableResponse struct {
	MetadataLocation string                  `json:"metadata-location"`
	Metadata         *metadata.TableMetadata `json:"metadata"`
}

type commitTransactionRequest struct {
	TableChanges []commitTableRequest `json:"table-changes"`
}

type storageCredential struct {
	Prefix string            `json:"prefix"`
	Config map[string]string `json:"config"`
}

type loadCredentialsResponse struct {
	StorageCredentials []storageCredential `json:"storage-credentials"`
}

type reportMetricsRequest struct {
	ReportType string `json:"report-type"`
}
