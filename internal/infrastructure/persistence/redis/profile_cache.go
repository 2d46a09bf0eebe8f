package redis

import (
	"context"
	"errors"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ProfileCache implements progression.ProfileCache on the generic Cache.
// Entries age out after TTLProfileCache; the award path invalidates eagerly
// so readers rarely see a stale total.
type ProfileCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewProfileCache creates a ProfileCache with the default TTL.
func NewProfileCache(cache *Cache) *ProfileCache {
	return &ProfileCache{
		cache: cache,
		ttl:   TTLProfileCache,
	}
}

// Get returns the cached profile, or (nil, nil) on a miss.
func (p *ProfileCache) Get(ctx context.Context, userID shared.UserID) (*progression.ProgressionProfile, error) {
	var profile progression.ProgressionProfile
	err := p.cache.Get(ctx, ProfileKey(userID.String()), &profile)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Set stores a profile under its user key.
func (p *ProfileCache) Set(ctx context.Context, profile *progression.ProgressionProfile) error {
	if profile == nil {
		return nil
	}
	return p.cache.Set(ctx, ProfileKey(profile.UserID.String()), profile, p.ttl)
}

// Invalidate removes the user's cached profile.
func (p *ProfileCache) Invalidate(ctx context.Context, userID shared.UserID) error {
	return p.cache.Delete(ctx, ProfileKey(userID.String()))
}
