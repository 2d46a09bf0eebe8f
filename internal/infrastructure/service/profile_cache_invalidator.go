package service

import (
	"context"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
	"github.com/skillforge/skillforge-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE CACHE INVALIDATOR
// Drops the cached profile view whenever the aggregate changes. Every profile
// mutation happens inside an award transaction, so subscribing to XP awards
// covers streak moves, lifetime counters, and unlocks too. Best-effort: a
// failed delete is logged and the entry ages out on its TTL.
// ══════════════════════════════════════════════════════════════════════════════

// ProfileCacheInvalidator keeps the profile read cache coherent with awards.
type ProfileCacheInvalidator struct {
	cache   progression.ProfileCache
	log     *logger.Logger
	timeout time.Duration
}

// NewProfileCacheInvalidator creates an invalidator over the given cache.
func NewProfileCacheInvalidator(cache progression.ProfileCache, log *logger.Logger) *ProfileCacheInvalidator {
	if log == nil {
		log = logger.Default()
	}
	return &ProfileCacheInvalidator{
		cache:   cache,
		log:     log.With(logger.Component("profile_cache_invalidator")),
		timeout: 2 * time.Second,
	}
}

// HandleEvent drops the user's cached profile; registered with the event
// dispatcher under the XP-awarded type. Always returns nil; cache coherence
// must never feed back into the award flow.
func (i *ProfileCacheInvalidator) HandleEvent(event shared.Event) error {
	userID, _ := event.Payload()["user_id"].(string)
	if userID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	if err := i.cache.Invalidate(ctx, shared.UserID(userID)); err != nil {
		i.log.Warn("profile cache invalidation dropped",
			logger.UserID(userID),
			logger.Err(err),
		)
	}
	return nil
}
