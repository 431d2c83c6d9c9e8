package registry

import (
	"context"
	"database/sql"
	"encoding/base64"
	stderrors "errors"
	"strings"

	"github.com/icecapdb/icecap/pkg/errors"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
)

// Package-specific error codes for the registry store
var (
	ErrNamespaceNotFound      = errors.MustNewCode("registry.namespace_not_found").WithClass(errors.ClassNotFound)
	ErrNamespaceAlreadyExists = errors.MustNewCode("registry.namespace_already_exists").WithClass(errors.ClassConflict)
	ErrNamespaceNotEmpty      = errors.MustNewCode("registry.namespace_not_empty").WithClass(errors.ClassConflict)
	ErrTableNotFound          = errors.MustNewCode("registry.table_not_found").WithClass(errors.ClassNotFound)
	ErrTableAlreadyExists     = errors.MustNewCode("registry.table_already_exists").WithClass(errors.ClassConflict)
	ErrCredentialNotFound     = errors.MustNewCode("registry.credential_not_found").WithClass(errors.ClassNotFound)
	ErrCredentialExists       = errors.MustNewCode("registry.credential_already_exists").WithClass(errors.ClassConflict)
	ErrInvalidPageToken       = errors.MustNewCode("registry.invalid_page_token").WithClass(errors.ClassInvalidArgument)
	ErrQueryFailed            = errors.MustNewCode("registry.query_failed")
)

// levelSeparator joins multi-level namespace names for storage. The unit
// separator cannot appear in level names, which keeps the encoding
// unambiguous and sortable.
const levelSeparator = "\x1f"

// JoinLevels encodes a multi-level namespace name for storage
func JoinLevels(levels []string) string {
	return strings.Join(levels, levelSeparator)
}

// SplitLevels decodes a stored namespace name
func SplitLevels(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, levelSeparator)
}

// Store is the registry persistence layer over bun/SQLite. All commit
// paths run inside RunInTx so a failed commit leaves no partial rows.
type Store struct {
	db     *bun.DB
	locks  *lockTable
	logger zerolog.Logger
}

// NewStore opens the registry database at dbPath, runs pending
// migrations and returns a ready store.
func NewStore(ctx context.Context, dbPath string, logger zerolog.Logger) (*Store, error) {
	db, err := OpenDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	if err := NewMigrationManager(db, logger).MigrateToLatest(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{
		db:     db,
		locks:  newLockTable(),
		logger: logger.With().Str("component", "registry").Logger(),
	}, nil
}

// DB exposes the underlying bun handle for tests
func (s *Store) DB() *bun.DB {
	return s.db
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInTx runs fn inside a database transaction
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, fn)
}

// LockTable acquires the commit lock for one table id and returns the
// unlock function
func (s *Store) LockTable(tableID int64) func() {
	return s.locks.lock(tableID)
}

// LockTables acquires commit locks for several tables in ascending id
// order, which keeps concurrent multi-table transactions deadlock free.
func (s *Store) LockTables(tableIDs []int64) func() {
	return s.locks.lockAll(tableIDs)
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// failure
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if stderrors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}

// encodePageToken wraps a name cursor for the wire
func encodePageToken(cursor string) string {
	return base64.StdEncoding.EncodeToString([]byte(cursor))
}

// decodePageToken unwraps a wire page token into a name cursor
func decodePageToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", errors.New(ErrInvalidPageToken, "malformed page token", err)
	}
	return string(raw), nil
}
