package rest

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/icecapdb/icecap/server/catalog"
	"github.com/icecapdb/icecap/server/catalog/commit"
	"github.com/icecapdb/icecap/server/catalog/metadata"
	"github.com/icecapdb/icecap/server/catalog/scan"
)

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, configResponse{
		Defaults: map[string]string{
			"warehouse": s.catalog.Warehouse(),
			"prefix":    s.catalog.Name(),
		},
		Overrides: map[string]string{},
	})
}

// ---------------------------------------------------------------------------
// Namespaces

func (s *Server) handleCreateNamespace(w http.ResponseWriter, r *http.Request) {
	var req createNamespaceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	props, err := s.catalog.CreateNamespace(r.Context(), req.Namespace, req.Properties)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, namespaceResponse{Namespace: req.Namespace, Properties: props})
}

func (s *Server) handleLoadNamespace(w http.ResponseWriter, r *http.Request) {
	levels, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	props, err := s.catalog.LoadNamespace(r.Context(), levels)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, namespaceResponse{Namespace: levels, Properties: props})
}

func (s *Server) handleNamespaceExists(w http.ResponseWriter, r *http.Request) {
	levels, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	exists, err := s.catalog.NamespaceExists(r.Context(), levels)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListNamespaces(w http.ResponseWriter, r *http.Request) {
	var parent []string
	if raw := r.URL.Query().Get("parent"); raw != "" {
		parent = splitQueryNamespace(raw)
	}
	namespaces, next, err := s.catalog.ListNamespaces(r.Context(), parent, r.URL.Query().Get("pageToken"), queryPageSize(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if namespaces == nil {
		namespaces = [][]string{}
	}
	s.writeJSON(w, http.StatusOK, listNamespacesResponse{Namespaces: namespaces, NextPageToken: next})
}

func (s *Server) handleUpdateNamespaceProperties(w http.ResponseWriter, r *http.Request) {
	levels, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req updateNamespacePropertiesRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, removed, missing, err := s.catalog.UpdateNamespaceProperties(r.Context(), levels, req.Updates, req.Removals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if updated == nil {
		updated = []string{}
	}
	if removed == nil {
		removed = []string{}
	}
	s.writeJSON(w, http.StatusOK, updateNamespacePropertiesResponse{Updated: updated, Removed: removed, Missing: missing})
}

func (s *Server) handleDropNamespace(w http.ResponseWriter, r *http.Request) {
	levels, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.catalog.DropNamespace(r.Context(), levels); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Tables

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	levels, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	names, next, err := s.catalog.ListTables(r.Context(), levels, r.URL.Query().Get("pageToken"), queryPageSize(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	identifiers := make([]tableIdentifier, 0, len(names))
	for _, name := range names {
		identifiers = append(identifiers, tableIdentifier{Namespace: levels, Name: name})
	}
	s.writeJSON(w, http.StatusOK, listTablesResponse{Identifiers: identifiers, NextPageToken: next})
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	levels, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req createTableRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Schema == nil {
		s.writeError(w, r, errors.New(ErrMalformedBody, "schema is required to create a table", nil))
		return
	}
	res, err := s.catalog.CreateTable(r.Context(), catalog.CreateTableRequest{
		Namespace:   levels,
		Name:        req.Name,
		Schema:      *req.Schema,
		Spec:        req.PartitionSpec,
		SortOrder:   req.WriteOrder,
		Location:    req.Location,
		Properties:  req.Properties,
		StageCreate: req.StageCreate,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := loadTableResponse{Metadata: res.Metadata}
	if !req.StageCreate {
		// staged tables have no current metadata location yet
		resp.MetadataLocation = res.MetadataLocation
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegisterTable(w http.ResponseWriter, r *http.Request) {
	levels, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req registerTableRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.catalog.RegisterTable(r.Context(), levels, req.Name, req.MetadataLocation, req.Metadata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loadTableResponse{
		MetadataLocation: res.MetadataLocation,
		Metadata:         res.Metadata,
	})
}

func (s *Server) handleLoadTable(w http.ResponseWriter, r *http.Request) {
	levels, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter := catalog.SnapshotsFilter(r.URL.Query().Get("snapshots"))
	res, err := s.catalog.LoadTable(r.Context(), levels, pathParam(r, "table"), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	etag := res.ETag()
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	s.writeJSON(w, http.StatusOK, loadTableResponse{
		MetadataLocation: res.MetadataLocation,
		Metadata:         res.Metadata,
	})
}

func (s *Server) handleTableExists(w http.ResponseWriter, r *http.Request) {
	levels, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	exists, err := s.catalog.TableExists(r.Context(), levels, pathParam(r, "table"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDropTable(w http.ResponseWriter, r *http.Request) {
	levels, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	purge := r.URL.Query().Get("purgeRequested") == "true"
	if err := s.catalog.DropTable(r.Context(), levels, pathParam(r, "table"), purge); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenameTable(w http.ResponseWriter, r *http.Request) {
	var req renameTableRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	err := s.catalog.RenameTable(r.Context(), req.Source.Namespace, req.Source.Name, req.Destination.Namespace, req.Destination.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Commits

func (s *Server) handleCommitTable(w http.ResponseWriter, r *http.Request) {
	levels, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req commitTableRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	change, err := parseTableChange(levels, pathParam(r, "table"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.catalog.CommitTable(r.Context(), change)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, commitTableResponse{
		MetadataLocation: res.MetadataLocation,
		Metadata:         res.Metadata,
	})
}

func (s *Server) handleCommitTransaction(w http.ResponseWriter, r *http.Request) {
	var req commitTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	changes := make([]commit.TableChange, 0, len(req.TableChanges))
	for _, tc := range req.TableChanges {
		if tc.Identifier == nil {
			s.writeError(w, r, errors.New(ErrMalformedBody, "each transaction change needs an identifier", nil))
			return
		}
		change, err := parseTableChange(tc.Identifier.Namespace, tc.Identifier.Name, tc)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		changes = append(changes, change)
	}
	if _, err := s.catalog.CommitTransaction(r.Context(), changes); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseTableChange(levels []string, name string, req commitTableRequest) (commit.TableChange, error) {
	requirements, err := metadata.ParseRequirements(req.Requirements)
	if err != nil {
		return commit.TableChange{}, err
	}
	updates, err := metadata.ParseUpdates(req.Updates)
	if err != nil {
		return commit.TableChange{}, err
	}
	return commit.TableChange{
		Namespace:    levels,
		Name:         name,
		Requirements: requirements,
		Updates:      updates,
	}, nil
}

// ---------------------------------------------------------------------------
// Credentials and metrics

func (s *Server) handleLoadCredentials(w http.ResponseWriter, r *http.Request) {
	levels, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	creds, err := s.catalog.LoadCredentials(r.Context(), levels, pathParam(r, "table"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]storageCredential, 0, len(creds))
	for _, cred := range creds {
		out = append(out, storageCredential{Prefix: cred.Prefix, Config: cred.Config})
	}
	s.writeJSON(w, http.StatusOK, loadCredentialsResponse{StorageCredentials: out})
}

func (s *Server) handleReportMetrics(w http.ResponseWriter, r *http.Request) {
	levels, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, errors.New(ErrMalformedBody, "failed to read request body", err))
		return
	}
	var req reportMetricsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, errors.New(ErrMalformedBody, "failed to decode request body", err))
		return
	}
	if err := s.catalog.ReportMetrics(r.Context(), levels, pathParam(r, "table"), req.ReportType, body); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Scan plans

func (s *Server) handleSubmitPlan(w http.ResponseWriter, r *http.Request) {
	levels, err := namespaceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req scan.PlanRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	plan, err := s.catalog.SubmitScanPlan(r.Context(), levels, pathParam(r, "table"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, plan)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.catalog.GetScanPlan(pathParam(r, "planID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleCancelPlan(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.CancelScanPlan(pathParam(r, "planID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFetchTasks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlanID string `json:"plan-id"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tasks, err := s.catalog.FetchScanTasks(req.PlanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []json.RawMessage{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"plan-tasks": tasks})
}
