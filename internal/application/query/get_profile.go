// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROFILE QUERY
// Returns the materialized progression view for one user: total XP, the
// derived level numbers, streak state, lifetime counters, and unlocks.
// ══════════════════════════════════════════════════════════════════════════════

// GetProfileQuery contains the parameters for a profile lookup.
type GetProfileQuery struct {
	// UserID is the user to look up.
	UserID string
}

// Validate checks the query parameters.
func (q *GetProfileQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	return nil
}

// StreakDTO describes the streak state for transport.
type StreakDTO struct {
	Current        int        `json:"current"`
	Longest        int        `json:"longest"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	IsBroken       bool       `json:"is_broken"`
}

// LevelDTO describes the derived level numbers for transport.
type LevelDTO struct {
	Level            int     `json:"level"`
	Tier             string  `json:"tier"`
	XPIntoLevel      int     `json:"xp_into_level"`
	XPToNext         int     `json:"xp_to_next"`
	ProgressFraction float64 `json:"progress_fraction"`
}

// ProfileDTO is the transport shape of a progression profile.
type ProfileDTO struct {
	UserID  string    `json:"user_id"`
	TotalXP int       `json:"total_xp"`
	Level   LevelDTO  `json:"level"`
	Streak  StreakDTO `json:"streak"`

	LessonsCompleted int `json:"lessons_completed"`
	TasksCompleted   int `json:"tasks_completed"`
	CoursesCompleted int `json:"courses_completed"`

	UnlockedAchievements []UnlockedAchievementDTO `json:"unlocked_achievements"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UnlockedAchievementDTO is one unlock with its definition fields.
type UnlockedAchievementDTO struct {
	AchievementID string    `json:"achievement_id"`
	Name          string    `json:"name,omitempty"`
	Description   string    `json:"description,omitempty"`
	BonusXP       int       `json:"bonus_xp,omitempty"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// GetProfileResult contains the profile lookup result.
type GetProfileResult struct {
	Profile     ProfileDTO `json:"profile"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// GetProfileHandler handles profile lookups.
type GetProfileHandler struct {
	profileRepo     progression.ProfileRepository
	achievementRepo progression.AchievementRepository

	// cache is optional. Cache failures degrade to a repository read.
	cache progression.ProfileCache
}

// NewGetProfileHandler creates a new GetProfileHandler. A nil cache disables
// the read-through path.
func NewGetProfileHandler(
	profileRepo progression.ProfileRepository,
	achievementRepo progression.AchievementRepository,
	cache progression.ProfileCache,
) *GetProfileHandler {
	return &GetProfileHandler{
		profileRepo:     profileRepo,
		achievementRepo: achievementRepo,
		cache:           cache,
	}
}

// Handle executes the profile lookup. A user with no awards yet gets an
// empty level-1 profile rather than a not-found error.
func (h *GetProfileHandler) Handle(ctx context.Context, q GetProfileQuery) (*GetProfileResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetProfile", shared.ErrValidation, err.Error(), err)
	}

	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, shared.WrapError("query", "GetProfile", shared.ErrInvalidID, "invalid user id", err)
	}

	profile, err := h.loadProfile(ctx, userID)
	if err != nil {
		return nil, shared.WrapError("query", "GetProfile", shared.ErrNotFound, "failed to get profile", err)
	}

	unlocks, err := h.loadUnlocks(ctx, userID)
	if err != nil {
		// Achievement detail is decoration on this view; degrade to the
		// bare profile rather than failing the lookup.
		unlocks = nil
	}

	return &GetProfileResult{
		Profile:     toProfileDTO(profile, unlocks),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// loadProfile reads the profile cache-first. A user with no profile row yet
// gets a fresh level-1 aggregate, which is not cached.
func (h *GetProfileHandler) loadProfile(ctx context.Context, userID shared.UserID) (*progression.ProgressionProfile, error) {
	if h.cache != nil {
		if cached, err := h.cache.Get(ctx, userID); err == nil && cached != nil {
			return cached, nil
		}
	}

	profile, err := h.profileRepo.GetByUser(ctx, userID)
	switch {
	case shared.IsNotFound(err):
		return progression.NewProfile(userID), nil
	case err != nil:
		return nil, err
	}

	if h.cache != nil {
		_ = h.cache.Set(ctx, profile)
	}
	return profile, nil
}

// loadUnlocks joins the unlock records with their definitions.
func (h *GetProfileHandler) loadUnlocks(ctx context.Context, userID shared.UserID) ([]UnlockedAchievementDTO, error) {
	unlocked, err := h.achievementRepo.ListUnlocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(unlocked) == 0 {
		return nil, nil
	}

	byID := make(map[string]progression.Achievement)
	if definitions, err := h.achievementRepo.ListActive(ctx); err == nil {
		for _, def := range definitions {
			byID[def.ID] = def
		}
	}

	dtos := make([]UnlockedAchievementDTO, 0, len(unlocked))
	for _, u := range unlocked {
		dto := UnlockedAchievementDTO{
			AchievementID: u.AchievementID,
			UnlockedAt:    u.UnlockedAt,
		}
		if def, ok := byID[u.AchievementID]; ok {
			dto.Name = def.Name
			dto.Description = def.Description
			dto.BonusXP = def.BonusXP
		}
		dtos = append(dtos, dto)
	}
	return dtos, nil
}

// toProfileDTO converts the domain aggregate to its transport shape.
func toProfileDTO(p *progression.ProgressionProfile, unlocks []UnlockedAchievementDTO) ProfileDTO {
	info := p.LevelInfo()

	streak := StreakDTO{
		Current:  p.Streak.Current,
		Longest:  p.Streak.Longest,
		IsBroken: p.Streak.IsBroken(time.Now().UTC()),
	}
	if !p.Streak.LastActivityAt.IsZero() {
		t := p.Streak.LastActivityAt
		streak.LastActivityAt = &t
	}

	return ProfileDTO{
		UserID:  p.UserID.String(),
		TotalXP: p.TotalXP.Int(),
		Level: LevelDTO{
			Level:            info.Level,
			Tier:             info.Tier,
			XPIntoLevel:      info.XPIntoLevel,
			XPToNext:         info.XPToNext,
			ProgressFraction: info.ProgressFraction,
		},
		Streak:               streak,
		LessonsCompleted:     p.TotalLessonsCompleted,
		TasksCompleted:       p.TotalTasksCompleted,
		CoursesCompleted:     p.TotalCoursesCompleted,
		UnlockedAchievements: unlocks,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// GET XP HISTORY QUERY
// Pages through a user's ledger entries, newest first.
// ══════════════════════════════════════════════════════════════════════════════

// GetXPHistoryQuery contains the parameters for a ledger page.
type GetXPHistoryQuery struct {
	UserID   string
	Page     int
	PageSize int
}

// Validate checks the query parameters and applies paging defaults.
func (q *GetXPHistoryQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	if q.Page < 0 || q.PageSize < 0 {
		return errors.New("page and page_size cannot be negative")
	}
	return nil
}

// XPTransactionDTO is the transport shape of one ledger entry.
type XPTransactionDTO struct {
	ID          string                           `json:"id"`
	Kind        string                           `json:"kind"`
	Amount      int                              `json:"amount"`
	SourceID    string                           `json:"source_id,omitempty"`
	SourceKind  string                           `json:"source_kind,omitempty"`
	SourceTitle string                           `json:"source_title,omitempty"`
	Multipliers []progression.AppliedMultiplier  `json:"multipliers,omitempty"`
	Metadata    map[string]interface{}           `json:"metadata,omitempty"`
	CreatedAt   time.Time                        `json:"created_at"`
}

// GetXPHistoryResult contains one ledger page.
type GetXPHistoryResult struct {
	Transactions []XPTransactionDTO `json:"transactions"`
	Page         int                `json:"page"`
	PageSize     int                `json:"page_size"`
	HasMore      bool               `json:"has_more"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

// GetXPHistoryHandler handles ledger history lookups.
type GetXPHistoryHandler struct {
	ledgerRepo progression.LedgerRepository
}

// NewGetXPHistoryHandler creates a new GetXPHistoryHandler.
func NewGetXPHistoryHandler(ledgerRepo progression.LedgerRepository) *GetXPHistoryHandler {
	return &GetXPHistoryHandler{ledgerRepo: ledgerRepo}
}

// Handle executes the history lookup.
func (h *GetXPHistoryHandler) Handle(ctx context.Context, q GetXPHistoryQuery) (*GetXPHistoryResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetXPHistory", shared.ErrValidation, err.Error(), err)
	}

	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, shared.WrapError("query", "GetXPHistory", shared.ErrInvalidID, "invalid user id", err)
	}

	page := shared.NewPagination(q.Page, q.PageSize)

	entries, err := h.ledgerRepo.ListByUser(ctx, userID, page)
	if err != nil {
		return nil, shared.WrapError("query", "GetXPHistory", shared.ErrNotFound, "failed to list transactions", err)
	}

	// A full page suggests more rows behind it; an exact-boundary false
	// positive costs one empty follow-up page.
	hasMore := len(entries) == page.Limit()

	dtos := make([]XPTransactionDTO, len(entries))
	for i, tx := range entries {
		dtos[i] = XPTransactionDTO{
			ID:          tx.ID,
			Kind:        string(tx.Kind),
			Amount:      tx.Amount,
			SourceID:    tx.Source.ID,
			SourceKind:  string(tx.Source.Kind),
			SourceTitle: tx.Source.Title,
			Multipliers: tx.AppliedMultipliers,
			Metadata:    tx.Metadata,
			CreatedAt:   tx.CreatedAt,
		}
	}

	return &GetXPHistoryResult{
		Transactions: dtos,
		Page:         page.Page,
		PageSize:     page.Limit(),
		HasMore:      hasMore,
		GeneratedAt:  time.Now().UTC(),
	}, nil
}
