package migrate

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/JonMunkholm/eventmigrate/internal/legacy"
	"github.com/JonMunkholm/eventmigrate/internal/logging"
	"github.com/JonMunkholm/eventmigrate/internal/store"
	"github.com/patrickmn/go-cache"
)

// UserLookup finds a current user by identity key.
type UserLookup interface {
	UserIDByAuthID(ctx context.Context, authID string) (string, error)
}

// AuthIDSource reads a legacy user's identity key.
type AuthIDSource interface {
	UserAuthID(ctx context.Context, userID string) (string, error)
}

// resolution is what the cache holds for a legacy user id. A cached
// resolution with found=false is a remembered miss; an id missing from the
// cache has never been looked up.
type resolution struct {
	id    string
	found bool
}

// ResolverStats reports cache behaviour for the summary.
type ResolverStats struct {
	Hits     int64 `json:"hits"`
	Lookups  int64 `json:"lookups"`
	NotFound int64 `json:"notFound"`
	Errors   int64 `json:"errors"`
}

// Resolver maps legacy user ids to current user ids. One resolver lives for
// one run; every outcome, including misses and lookup errors, is memoized.
type Resolver struct {
	legacy    AuthIDSource
	current   UserLookup
	transform AuthIDTransform
	cache     *cache.Cache

	hits, lookups, notFound, errs atomic.Int64
}

// NewResolver returns an empty resolver.
func NewResolver(src AuthIDSource, dst UserLookup, transform AuthIDTransform) *Resolver {
	return &Resolver{
		legacy:    src,
		current:   dst,
		transform: transform,
		cache:     cache.New(cache.NoExpiration, 0),
	}
}

// Resolve returns the current id of legacyUserID. Lookup errors are logged
// and remembered as misses.
func (r *Resolver) Resolve(ctx context.Context, legacyUserID string) (string, bool) {
	if v, ok := r.cache.Get(legacyUserID); ok {
		r.hits.Add(1)
		res := v.(resolution)
		return res.id, res.found
	}

	r.lookups.Add(1)
	res := r.lookup(ctx, legacyUserID)
	if !res.found {
		r.notFound.Add(1)
	}
	r.cache.Set(legacyUserID, res, cache.NoExpiration)
	return res.id, res.found
}

func (r *Resolver) lookup(ctx context.Context, legacyUserID string) resolution {
	log := logging.FromContext(ctx)

	authID, err := r.legacy.UserAuthID(ctx, legacyUserID)
	if errors.Is(err, legacy.ErrNotFound) {
		return resolution{}
	}
	if err != nil {
		r.errs.Add(1)
		log.Warn("resolve user: legacy lookup failed", "legacy_user", legacyUserID, "error", err)
		return resolution{}
	}

	id, err := r.current.UserIDByAuthID(ctx, r.transform.Transform(authID))
	if errors.Is(err, store.ErrNotFound) {
		return resolution{}
	}
	if err != nil {
		r.errs.Add(1)
		log.Warn("resolve user: current lookup failed", "legacy_user", legacyUserID, "error", err)
		return resolution{}
	}
	return resolution{id: id, found: true}
}

// Stats returns the counters so far.
func (r *Resolver) Stats() ResolverStats {
	return ResolverStats{
		Hits:     r.hits.Load(),
		Lookups:  r.lookups.Load(),
		NotFound: r.notFound.Load(),
		Errors:   r.errs.Load(),
	}
}
