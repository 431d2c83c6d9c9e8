package registry

import (
	"context"

	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/icecapdb/icecap/server/catalog/registry/regtypes"
)

// CreateCredential registers a storage credential. tableID narrows the
// credential to one table; nil rows apply catalog-wide.
func (s *Store) CreateCredential(ctx context.Context, prefix, warehouse, configJSON string, tableID *int64) (*regtypes.StorageCredential, error) {
	if prefix == "" {
		return nil, errors.New(errors.CommonInvalidInput, "credential prefix must not be empty", nil)
	}
	if configJSON == "" {
		configJSON = "{}"
	}
	cred := &regtypes.StorageCredential{
		Prefix:     prefix,
		Warehouse:  warehouse,
		ConfigJSON: configJSON,
		TableID:    tableID,
	}
	if _, err := s.db.NewInsert().Model(cred).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Newf(ErrCredentialExists, "credential for prefix %q already exists", prefix)
		}
		return nil, errors.New(ErrQueryFailed, "failed to create credential", err)
	}
	return cred, nil
}

// UpsertCredential writes a credential row, replacing the config of an
// existing row with the same prefix, warehouse and table scope.
func (s *Store) UpsertCredential(ctx context.Context, prefix, warehouse, configJSON string, tableID *int64) (*regtypes.StorageCredential, error) {
	if prefix == "" {
		return nil, errors.New(errors.CommonInvalidInput, "credential prefix must not be empty", nil)
	}
	if configJSON == "" {
		configJSON = "{}"
	}
	cred := &regtypes.StorageCredential{
		Prefix:     prefix,
		Warehouse:  warehouse,
		ConfigJSON: configJSON,
		TableID:    tableID,
	}
	_, err := s.db.NewInsert().
		Model(cred).
		On("CONFLICT (prefix, warehouse, ifnull(table_id, 0)) DO UPDATE").
		Set("config_json = EXCLUDED.config_json").
		Exec(ctx)
	if err != nil {
		return nil, errors.New(ErrQueryFailed, "failed to upsert credential", err)
	}
	return cred, nil
}

// ListCredentials returns all credentials for a warehouse ordered by
// prefix length, longest first. The resolver walks this order.
func (s *Store) ListCredentials(ctx context.Context, warehouse string) ([]regtypes.StorageCredential, error) {
	var creds []regtypes.StorageCredential
	err := s.db.NewSelect().
		Model(&creds).
		Where("warehouse = ?", warehouse).
		OrderExpr("length(prefix) DESC, prefix ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.New(ErrQueryFailed, "failed to list credentials", err)
	}
	return creds, nil
}

// DeleteCredential removes one credential by id
func (s *Store) DeleteCredential(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().
		Model((*regtypes.StorageCredential)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.New(ErrQueryFailed, "failed to delete credential", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.New(ErrQueryFailed, "failed to read delete result", err)
	}
	if affected == 0 {
		return errors.Newf(ErrCredentialNotFound, "credential %d not found", id)
	}
	return nil
}
