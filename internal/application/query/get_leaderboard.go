package query

import (
	"context"
	"errors"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/leaderboard"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Reads the ranking projection. The projection is eventually consistent
// with the ledger; this view is display-only and never feeds a decision.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery contains the parameters for a leaderboard page.
type GetLeaderboardQuery struct {
	// Limit is the number of entries (default 20, max 100).
	Limit int

	// Offset skips entries for pagination.
	Offset int
}

// Validate checks the query parameters and applies defaults.
func (q *GetLeaderboardQuery) Validate() error {
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit > shared.MaxPageSize {
		q.Limit = shared.MaxPageSize
	}
	if q.Limit == 0 {
		q.Limit = shared.DefaultPageSize
	}
	if q.Offset < 0 {
		return errors.New("offset cannot be negative")
	}
	return nil
}

// LeaderboardEntryDTO is the transport shape of one ranking row.
type LeaderboardEntryDTO struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
	Level       int    `json:"level"`
}

// GetLeaderboardResult contains one page of the ranking.
type GetLeaderboardResult struct {
	Entries     []LeaderboardEntryDTO `json:"entries"`
	TotalCount  int                   `json:"total_count"`
	HasMore     bool                  `json:"has_more"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// GetLeaderboardHandler handles leaderboard page lookups.
type GetLeaderboardHandler struct {
	store leaderboard.Store
}

// NewGetLeaderboardHandler creates a new GetLeaderboardHandler.
func NewGetLeaderboardHandler(store leaderboard.Store) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{store: store}
}

// Handle executes the leaderboard lookup.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrValidation, err.Error(), err)
	}

	var (
		entries []*leaderboard.Entry
		err     error
	)
	if q.Offset == 0 {
		entries, err = h.store.GetTop(ctx, q.Limit)
	} else {
		page := q.Offset/q.Limit + 1
		entries, err = h.store.GetPage(ctx, shared.Pagination{Page: page, PageSize: q.Limit})
	}
	if err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrServiceUnavailable, "ranking unavailable", err)
	}

	totalCount, err := h.store.GetTotalCount(ctx)
	if err != nil {
		totalCount = len(entries)
	}

	return &GetLeaderboardResult{
		Entries:     toLeaderboardDTOs(entries),
		TotalCount:  totalCount,
		HasMore:     q.Offset+len(entries) < totalCount,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET USER RANK QUERY
// Returns one user's position plus the entries around it.
// ══════════════════════════════════════════════════════════════════════════════

// GetUserRankQuery contains the parameters for a rank lookup.
type GetUserRankQuery struct {
	// UserID is the user to locate in the ranking.
	UserID string

	// NeighborRange is how many entries to include on each side (default 2).
	NeighborRange int
}

// Validate checks the query parameters and applies defaults.
func (q *GetUserRankQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	if q.NeighborRange < 0 {
		return errors.New("neighbor_range cannot be negative")
	}
	if q.NeighborRange == 0 {
		q.NeighborRange = 2
	}
	return nil
}

// GetUserRankResult contains the rank lookup result.
type GetUserRankResult struct {
	// Entry is the user's own row; nil when the user is not projected yet.
	Entry *LeaderboardEntryDTO `json:"entry,omitempty"`

	// Ranked is false for users with no projected score.
	Ranked bool `json:"ranked"`

	// Neighbors are the surrounding entries, the user included.
	Neighbors []LeaderboardEntryDTO `json:"neighbors,omitempty"`

	TotalCount  int       `json:"total_count"`
	GeneratedAt time.Time `json:"generated_at"`
}

// GetUserRankHandler handles rank lookups.
type GetUserRankHandler struct {
	store leaderboard.Store
}

// NewGetUserRankHandler creates a new GetUserRankHandler.
func NewGetUserRankHandler(store leaderboard.Store) *GetUserRankHandler {
	return &GetUserRankHandler{store: store}
}

// Handle executes the rank lookup. An unprojected user yields an unranked
// result, not an error.
func (h *GetUserRankHandler) Handle(ctx context.Context, q GetUserRankQuery) (*GetUserRankResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetUserRank", shared.ErrValidation, err.Error(), err)
	}

	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, shared.WrapError("query", "GetUserRank", shared.ErrInvalidID, "invalid user id", err)
	}

	result := &GetUserRankResult{GeneratedAt: time.Now().UTC()}

	entry, err := h.store.GetRank(ctx, userID)
	switch {
	case shared.IsNotFound(err):
		return result, nil
	case err != nil:
		return nil, shared.WrapError("query", "GetUserRank", shared.ErrServiceUnavailable, "ranking unavailable", err)
	}

	dto := toLeaderboardDTO(entry)
	result.Entry = &dto
	result.Ranked = true

	if neighbors, err := h.store.GetNeighbors(ctx, userID, q.NeighborRange); err == nil {
		result.Neighbors = toLeaderboardDTOs(neighbors)
	}
	if totalCount, err := h.store.GetTotalCount(ctx); err == nil {
		result.TotalCount = totalCount
	}

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DTO CONVERSION
// ══════════════════════════════════════════════════════════════════════════════

func toLeaderboardDTO(e *leaderboard.Entry) LeaderboardEntryDTO {
	return LeaderboardEntryDTO{
		Rank:        e.Rank.Int(),
		UserID:      e.UserID.String(),
		DisplayName: e.DisplayName,
		Score:       e.Score,
		Level:       e.Level,
	}
}

func toLeaderboardDTOs(entries []*leaderboard.Entry) []LeaderboardEntryDTO {
	dtos := make([]LeaderboardEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toLeaderboardDTO(e)
	}
	return dtos
}
