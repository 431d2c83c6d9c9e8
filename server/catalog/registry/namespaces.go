package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/icecapdb/icecap/server/catalog/registry/regtypes"
)

// CreateNamespace registers a multi-level namespace with optional
// properties
func (s *Store) CreateNamespace(ctx context.Context, levels []string, properties map[string]string) (*regtypes.Namespace, error) {
	if len(levels) == 0 {
		return nil, errors.New(errors.CommonInvalidInput, "namespace must have at least one level", nil)
	}
	for _, level := range levels {
		if level == "" {
			return nil, errors.New(errors.CommonInvalidInput, "namespace levels must not be empty", nil)
		}
		if strings.Contains(level, levelSeparator) {
			return nil, errors.New(errors.CommonInvalidInput, "namespace levels must not contain the unit separator", nil)
		}
	}

	props, err := json.Marshal(nonNilProps(properties))
	if err != nil {
		return nil, errors.New(ErrQueryFailed, "failed to encode namespace properties", err)
	}

	ns := &regtypes.Namespace{
		Levels:     JoinLevels(levels),
		Properties: string(props),
	}
	if _, err := s.db.NewInsert().Model(ns).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Newf(ErrNamespaceAlreadyExists, "namespace %v already exists", levels)
		}
		return nil, errors.New(ErrQueryFailed, "failed to create namespace", err)
	}
	return ns, nil
}

// GetNamespace loads one namespace by its full name
func (s *Store) GetNamespace(ctx context.Context, levels []string) (*regtypes.Namespace, error) {
	ns := new(regtypes.Namespace)
	err := s.db.NewSelect().Model(ns).Where("levels = ?", JoinLevels(levels)).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Newf(ErrNamespaceNotFound, "namespace %v not found", levels)
		}
		return nil, errors.New(ErrQueryFailed, "failed to load namespace", err)
	}
	return ns, nil
}

// NamespaceExists reports whether the namespace is registered
func (s *Store) NamespaceExists(ctx context.Context, levels []string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*regtypes.Namespace)(nil)).
		Where("levels = ?", JoinLevels(levels)).
		Exists(ctx)
	if err != nil {
		return false, errors.New(ErrQueryFailed, "failed to check namespace existence", err)
	}
	return exists, nil
}

// ListNamespaces returns direct children of parent (or top-level
// namespaces when parent is empty), name-ordered, one page at a time.
// The returned token is empty on the last page.
func (s *Store) ListNamespaces(ctx context.Context, parent []string, pageToken string, pageSize int) ([][]string, string, error) {
	cursor, err := decodePageToken(pageToken)
	if err != nil {
		return nil, "", err
	}

	if len(parent) > 0 {
		if exists, err := s.NamespaceExists(ctx, parent); err != nil {
			return nil, "", err
		} else if !exists {
			return nil, "", errors.Newf(ErrNamespaceNotFound, "namespace %v not found", parent)
		}
	}

	q := s.db.NewSelect().
		Model((*regtypes.Namespace)(nil)).
		Column("levels").
		Order("levels ASC")
	if len(parent) > 0 {
		prefix := JoinLevels(parent) + levelSeparator
		q = q.Where("levels > ? AND levels < ?", prefix, prefix+"￿")
	}
	if cursor != "" {
		q = q.Where("levels > ?", cursor)
	}

	var rows []regtypes.Namespace
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, "", errors.New(ErrQueryFailed, "failed to list namespaces", err)
	}

	// only direct children; deeper descendants are reachable through
	// their own parent listing
	depth := len(parent) + 1
	var (
		out  [][]string
		next string
	)
	for _, row := range rows {
		levels := SplitLevels(row.Levels)
		if len(levels) != depth {
			continue
		}
		if len(out) == pageSize {
			next = encodePageToken(JoinLevels(out[len(out)-1]))
			break
		}
		out = append(out, levels)
	}
	return out, next, nil
}

// UpdateNamespaceProperties merges updates into the namespace properties
// and drops removals. Returns the keys actually updated, removed and the
// removals that were not present.
func (s *Store) UpdateNamespaceProperties(ctx context.Context, levels []string, updates map[string]string, removals []string) (updated, removed, missing []string, err error) {
	ns, err := s.GetNamespace(ctx, levels)
	if err != nil {
		return nil, nil, nil, err
	}

	props, err := NamespaceProperties(ns)
	if err != nil {
		return nil, nil, nil, err
	}

	for _, key := range removals {
		if _, ok := props[key]; ok {
			delete(props, key)
			removed = append(removed, key)
		} else {
			missing = append(missing, key)
		}
	}
	for key, value := range updates {
		props[key] = value
		updated = append(updated, key)
	}

	encoded, err := json.Marshal(props)
	if err != nil {
		return nil, nil, nil, errors.New(ErrQueryFailed, "failed to encode namespace properties", err)
	}
	_, err = s.db.NewUpdate().
		Model((*regtypes.Namespace)(nil)).
		Set("properties = ?", string(encoded)).
		Set("updated_at = datetime('now')").
		Where("id = ?", ns.ID).
		Exec(ctx)
	if err != nil {
		return nil, nil, nil, errors.New(ErrQueryFailed, "failed to update namespace properties", err)
	}
	return updated, removed, missing, nil
}

// DropNamespace removes an empty namespace. Namespaces holding tables or
// child namespaces cannot be dropped.
func (s *Store) DropNamespace(ctx context.Context, levels []string) error {
	ns, err := s.GetNamespace(ctx, levels)
	if err != nil {
		return err
	}

	tableCount, err := s.db.NewSelect().
		Model((*regtypes.Table)(nil)).
		Where("namespace_id = ?", ns.ID).
		Count(ctx)
	if err != nil {
		return errors.New(ErrQueryFailed, "failed to count namespace tables", err)
	}
	if tableCount > 0 {
		return errors.Newf(ErrNamespaceNotEmpty, "namespace %v still holds %d tables", levels, tableCount)
	}

	childPrefix := JoinLevels(levels) + levelSeparator
	childCount, err := s.db.NewSelect().
		Model((*regtypes.Namespace)(nil)).
		Where("levels > ? AND levels < ?", childPrefix, childPrefix+"￿").
		Count(ctx)
	if err != nil {
		return errors.New(ErrQueryFailed, "failed to count child namespaces", err)
	}
	if childCount > 0 {
		return errors.Newf(ErrNamespaceNotEmpty, "namespace %v still holds %d child namespaces", levels, childCount)
	}

	if _, err := s.db.NewDelete().Model(ns).WherePK().Exec(ctx); err != nil {
		return errors.New(ErrQueryFailed, "failed to drop namespace", err)
	}
	return nil
}

// NamespaceProperties decodes the stored properties map
func NamespaceProperties(ns *regtypes.Namespace) (map[string]string, error) {
	props := map[string]string{}
	if ns.Properties == "" {
		return props, nil
	}
	if err := json.Unmarshal([]byte(ns.Properties), &props); err != nil {
		return nil, errors.New(ErrQueryFailed, "failed to decode namespace properties", err)
	}
	return props, nil
}

func nonNilProps(props map[string]string) map[string]string {
	if props == nil {
		return map[string]string{}
	}
	return props
}
