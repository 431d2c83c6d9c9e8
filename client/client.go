package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/icecapdb/icecap/server/catalog/metadata"
	"github.com/rs/zerolog"
)

// Client-specific error codes
var (
	ErrRequestFailed = errors.MustNewCode("client.request_failed")
	ErrRemote        = errors.MustNewCode("client.remote_error")
	ErrRemoteDecode  = errors.MustNewCode("client.remote_decode_failed")
)

// Options configures a catalog client
type Options struct {
	// BaseURL is the server root, e.g. http://localhost:8181
	BaseURL string
	// Prefix is the catalog prefix used in request paths
	Prefix  string
	Timeout time.Duration
}

// Client talks to an icecap catalog over its REST protocol
type Client struct {
	baseURL string
	prefix  string
	http    *http.Client
	logger  zerolog.Logger
}

// New creates a catalog client
func New(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		prefix:  opts.Prefix,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "catalog-client").Logger(),
	}
}

// namespaceSegment joins namespace levels into one path segment using
// the percent-encoded unit separator
func namespaceSegment(levels []string) string {
	escaped := make([]string, 0, len(levels))
	for _, level := range levels {
		escaped = append(escaped, url.PathEscape(level))
	}
	return strings.Join(escaped, "%1F")
}

func (c *Client) endpoint(parts ...string) string {
	return c.baseURL + "/v1/" + url.PathEscape(c.prefix) + "/" + strings.Join(parts, "/")
}

// do sends a request and decodes the response body into out when the
// server reports success. Error responses are surfaced with the remote
// message and status.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.New(ErrRequestFailed, "failed to encode request body", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.New(ErrRequestFailed, "failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.New(ErrRequestFailed, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.New(ErrRequestFailed, "failed to read response body", err)
	}

	if resp.StatusCode >= 400 {
		var remote struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		message := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &remote) == nil && remote.Error.Message != "" {
			message = remote.Error.Message
		}
		return errors.Newf(remoteCode(resp.StatusCode), "%s", message).
			AddContext("status", resp.StatusCode).
			AddContext("endpoint", endpoint)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.New(ErrRemoteDecode, "failed to decode response body", err)
	}
	return nil
}

// remoteCode maps an HTTP status onto the local failure taxonomy so
// callers can branch on errors.ClassOf
func remoteCode(status int) errors.Code {
	switch status {
	case http.StatusNotFound:
		return errors.CommonNotFound
	case http.StatusConflict:
		return errors.CommonConflict
	case http.StatusBadRequest:
		return errors.CommonInvalidInput
	}
	return ErrRemote
}

// ---------------------------------------------------------------------------
// Namespaces

// CreateNamespace registers a namespace with optional properties
func (c *Client) CreateNamespace(ctx context.Context, levels []string, properties map[string]string) error {
	body := map[string]interface{}{"namespace": levels}
	if properties != nil {
		body["properties"] = properties
	}
	return c.do(ctx, http.MethodPost, c.endpoint("namespaces"), body, nil)
}

// LoadNamespace returns a namespace's properties
func (c *Client) LoadNamespace(ctx context.Context, levels []string) (map[string]string, error) {
	var resp struct {
		Properties map[string]string `json:"properties"`
	}
	err := c.do(ctx, http.MethodGet, c.endpoint("namespaces", namespaceSegment(levels)), nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Properties, nil
}

// ListNamespaces lists direct children of parent
func (c *Client) ListNamespaces(ctx context.Context, parent []string) ([][]string, error) {
	endpoint := c.endpoint("namespaces")
	if len(parent) > 0 {
		endpoint += "?parent=" + url.QueryEscape(strings.Join(parent, "\x1f"))
	}
	var resp struct {
		Namespaces [][]string `json:"namespaces"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Namespaces, nil
}

// DropNamespace removes an empty namespace
func (c *Client) DropNamespace(ctx context.Context, levels []string) error {
	return c.do(ctx, http.MethodDelete, c.endpoint("namespaces", namespaceSegment(levels)), nil, nil)
}

// ---------------------------------------------------------------------------
// Tables

// Table is a loaded table's metadata and location
type Table struct {
	MetadataLocation string                  `json:"metadata-location"`
	Metadata         *metadata.TableMetadata `json:"metadata"`
}

// CreateTable creates a table with the given schema
func (c *Client) CreateTable(ctx context.Context, levels []string, name string, schema metadata.Schema, properties map[string]string) (*Table, error) {
	body := map[string]interface{}{
		"name":   name,
		"schema": schema,
	}
	if properties != nil {
		body["properties"] = properties
	}
	var table Table
	err := c.do(ctx, http.MethodPost, c.endpoint("namespaces", namespaceSegment(levels), "tables"), body, &table)
	if err != nil {
		return nil, err
	}
	return &table, nil
}

// LoadTable fetches a table's current metadata
func (c *Client) LoadTable(ctx context.Context, levels []string, name string) (*Table, error) {
	var table Table
	err := c.do(ctx, http.MethodGet, c.endpoint("namespaces", namespaceSegment(levels), "tables", url.PathEscape(name)), nil, &table)
	if err != nil {
		return nil, err
	}
	return &table, nil
}

// ListTables lists table names in a namespace
func (c *Client) ListTables(ctx context.Context, levels []string) ([]string, error) {
	var resp struct {
		Identifiers []struct {
			Name string `json:"name"`
		} `json:"identifiers"`
	}
	err := c.do(ctx, http.MethodGet, c.endpoint("namespaces", namespaceSegment(levels), "tables"), nil, &resp)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Identifiers))
	for _, id := range resp.Identifiers {
		names = append(names, id.Name)
	}
	return names, nil
}

// DropTable removes a table
func (c *Client) DropTable(ctx context.Context, levels []string, name string, purge bool) error {
	endpoint := c.endpoint("namespaces", namespaceSegment(levels), "tables", url.PathEscape(name))
	if purge {
		endpoint += "?purgeRequested=true"
	}
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// RenameTable moves a table, possibly across namespaces
func (c *Client) RenameTable(ctx context.Context, fromLevels []string, fromName string, toLevels []string, toName string) error {
	body := map[string]interface{}{
		"source":      map[string]interface{}{"namespace": fromLevels, "name": fromName},
		"destination": map[string]interface{}{"namespace": toLevels, "name": toName},
	}
	return c.do(ctx, http.MethodPost, c.endpoint("tables", "rename"), body, nil)
}

// CommitTable posts requirements and updates against a table. Both
// slices carry the raw JSON documents of the commit protocol.
func (c *Client) CommitTable(ctx context.Context, levels []string, name string, requirements, updates []json.RawMessage) (*Table, error) {
	body := map[string]interface{}{
		"requirements": requirements,
		"updates":      updates,
	}
	var table Table
	err := c.do(ctx, http.MethodPost, c.endpoint("namespaces", namespaceSegment(levels), "tables", url.PathEscape(name)), body, &table)
	if err != nil {
		return nil, err
	}
	return &table, nil
}

// LoadCredentials resolves the storage credential for a table
func (c *Client) LoadCredentials(ctx context.Context, levels []string, name string) (map[string]string, error) {
	var resp struct {
		StorageCredentials []struct {
			Config map[string]string `json:"config"`
		} `json:"storage-credentials"`
	}
	err := c.do(ctx, http.MethodGet, c.endpoint("namespaces", namespaceSegment(levels), "tables", url.PathEscape(name), "credentials"), nil, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.StorageCredentials) == 0 {
		return nil, errors.Newf(errors.CommonNotFound, "no credentials for table %s.%s", strings.Join(levels, "."), name)
	}
	return resp.StorageCredentials[0].Config, nil
}

// Ping checks the server is reachable by fetching its config
func (c *Client) Ping(ctx context.Context) error {
	var resp struct {
		Defaults map[string]string `json:"defaults"`
	}
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/config", nil, &resp); err != nil {
		return err
	}
	if resp.Defaults == nil {
		return errors.New(ErrRemoteDecode, fmt.Sprintf("unexpected config response from %s", c.baseURL), nil)
	}
	return nil
}
