package credentials

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/icecapdb/icecap/server/catalog/registry"
	"github.com/icecapdb/icecap/server/catalog/registry/regtypes"
	"github.com/rs/zerolog"
)

// Package-specific error codes for credential resolution
var (
	ErrNoCredential        = errors.MustNewCode("credentials.not_found").WithClass(errors.ClassNotFound)
	ErrAmbiguousCredential = errors.MustNewCode("credentials.ambiguous").WithClass(errors.ClassConflict)
)

// Credential is a resolved storage credential: the prefix it matched on
// and the opaque config the client hands to its storage layer.
type Credential struct {
	Prefix string            `json:"prefix"`
	Config map[string]string `json:"config"`
}

// Resolver picks the storage credential for a table location. Matches
// scoped to the table always beat catalog-wide ones; within the winning
// scope the longest matching prefix wins. Two candidates tied on both
// counts are an operator configuration error and are rejected.
type Resolver struct {
	store  *registry.Store
	logger zerolog.Logger
}

// NewResolver creates a credential resolver
func NewResolver(store *registry.Store, logger zerolog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger.With().Str("component", "credential-resolver").Logger(),
	}
}

// Resolve returns the credential for a table's location, or a not-found
// error when nothing matches
func (r *Resolver) Resolve(ctx context.Context, warehouse string, tableID int64, location string) (*Credential, error) {
	candidates, err := r.store.ListCredentials(ctx, warehouse)
	if err != nil {
		return nil, err
	}

	best := pickBest(candidates, tableID, location)
	if len(best) == 0 {
		return nil, errors.Newf(ErrNoCredential, "no storage credential matches location %s", location)
	}
	if len(best) > 1 {
		prefixes := make([]string, 0, len(best))
		for _, cand := range best {
			prefixes = append(prefixes, cand.Prefix)
		}
		return nil, errors.Newf(ErrAmbiguousCredential,
			"location %s matches %d equally specific credentials", location, len(best)).
			AddContext("prefixes", strings.Join(prefixes, ", "))
	}

	winner := best[0]
	config := map[string]string{}
	if winner.ConfigJSON != "" {
		if err := json.Unmarshal([]byte(winner.ConfigJSON), &config); err != nil {
			return nil, errors.New(errors.CommonInternal, "failed to decode credential config", err).
				AddContext("credential_id", winner.ID)
		}
	}

	r.logger.Debug().
		Str("location", location).
		Str("prefix", winner.Prefix).
		Bool("table_scoped", winner.TableID != nil).
		Msg("Credential resolved")
	return &Credential{Prefix: winner.Prefix, Config: config}, nil
}

// CredentialsForTable returns every credential matching the table's
// location, table-scoped rows first and longer prefixes before shorter
// ones within each scope. Callers vending credentials on table load get
// the whole chain; Resolve picks the single winner.
func (r *Resolver) CredentialsForTable(ctx context.Context, warehouse string, tableID int64, location string) ([]Credential, error) {
	candidates, err := r.store.ListCredentials(ctx, warehouse)
	if err != nil {
		return nil, err
	}

	var scopedOut, wideOut []Credential
	for _, cand := range candidates {
		if cand.TableID != nil && *cand.TableID != tableID {
			continue
		}
		if !strings.HasPrefix(location, cand.Prefix) {
			continue
		}
		config := map[string]string{}
		if cand.ConfigJSON != "" {
			if err := json.Unmarshal([]byte(cand.ConfigJSON), &config); err != nil {
				return nil, errors.New(errors.CommonInternal, "failed to decode credential config", err).
					AddContext("credential_id", cand.ID)
			}
		}
		cred := Credential{Prefix: cand.Prefix, Config: config}
		if cand.TableID != nil {
			scopedOut = append(scopedOut, cred)
		} else {
			wideOut = append(wideOut, cred)
		}
	}
	return append(scopedOut, wideOut...), nil
}

// pickBest filters candidates down to the most specific match. Table
// scope is decided first: if any table-scoped credential matches, the
// catalog-wide ones are out of the running entirely. Only then does
// prefix length break ties within the surviving scope. The candidate
// list arrives ordered by prefix length descending.
func pickBest(candidates []regtypes.StorageCredential, tableID int64, location string) []regtypes.StorageCredential {
	var scoped, wide []regtypes.StorageCredential
	for _, cand := range candidates {
		if cand.TableID != nil && *cand.TableID != tableID {
			continue
		}
		if !strings.HasPrefix(location, cand.Prefix) {
			continue
		}
		if cand.TableID != nil {
			scoped = append(scoped, cand)
		} else {
			wide = append(wide, cand)
		}
	}
	tier := scoped
	if len(tier) == 0 {
		tier = wide
	}
	var best []regtypes.StorageCredential
	for _, cand := range tier {
		if len(best) > 0 && len(cand.Prefix) < len(best[0].Prefix) {
			break
		}
		best = append(best, cand)
	}
	return best
}
