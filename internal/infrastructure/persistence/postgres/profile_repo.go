package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY IMPLEMENTATION
// The materialized per-user aggregate. Saves carry an optimistic version
// check; the award store additionally takes a row lock for the duration of
// the award transaction.
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements progression.ProfileRepository for PostgreSQL.
type ProfileRepository struct {
	conn *Connection
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

const profileColumns = `
	user_id, total_xp, current_level, xp_to_next_level,
	streak_current, streak_longest, streak_last_activity_at,
	lessons_completed, tasks_completed, courses_completed,
	version, created_at, updated_at
`

// GetByUser returns the user's profile with its unlocked achievement set.
func (r *ProfileRepository) GetByUser(ctx context.Context, userID shared.UserID) (*progression.ProgressionProfile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM progression_profiles
		WHERE user_id = $1
	`

	q := QuerierFrom(ctx, r.conn)
	profile, err := r.scanProfile(q.QueryRow(ctx, query, userID.String()))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if err := r.loadUnlocked(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// GetByUserForUpdate returns the profile under a row lock. The award store
// uses it to serialize concurrent awards for the same user.
// Returns shared.ErrProfileNotFound if the user has no profile yet.
func (r *ProfileRepository) GetByUserForUpdate(ctx context.Context, userID shared.UserID) (*progression.ProgressionProfile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM progression_profiles
		WHERE user_id = $1
		FOR UPDATE
	`

	q := QuerierFrom(ctx, r.conn)
	profile, err := r.scanProfile(q.QueryRow(ctx, query, userID.String()))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to lock profile: %w", err)
	}

	if err := r.loadUnlocked(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// Save upserts the profile. The update only applies when the stored version
// still matches the one the caller loaded; on success the in-memory version
// is bumped to match the row.
func (r *ProfileRepository) Save(ctx context.Context, profile *progression.ProgressionProfile) error {
	query := `
		INSERT INTO progression_profiles (
			user_id, total_xp, current_level, xp_to_next_level,
			streak_current, streak_longest, streak_last_activity_at,
			lessons_completed, tasks_completed, courses_completed,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id) DO UPDATE SET
			total_xp = EXCLUDED.total_xp,
			current_level = EXCLUDED.current_level,
			xp_to_next_level = EXCLUDED.xp_to_next_level,
			streak_current = EXCLUDED.streak_current,
			streak_longest = EXCLUDED.streak_longest,
			streak_last_activity_at = EXCLUDED.streak_last_activity_at,
			lessons_completed = EXCLUDED.lessons_completed,
			tasks_completed = EXCLUDED.tasks_completed,
			courses_completed = EXCLUDED.courses_completed,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE progression_profiles.version = $14
	`

	var lastActivity *time.Time
	if !profile.Streak.LastActivityAt.IsZero() {
		t := profile.Streak.LastActivityAt
		lastActivity = &t
	}

	q := QuerierFrom(ctx, r.conn)
	tag, err := q.Exec(ctx, query,
		profile.UserID.String(),
		profile.TotalXP.Int(),
		profile.CurrentLevel,
		profile.XPToNextLevel,
		profile.Streak.Current,
		profile.Streak.Longest,
		lastActivity,
		profile.TotalLessonsCompleted,
		profile.TotalTasksCompleted,
		profile.TotalCoursesCompleted,
		profile.Version+1,
		profile.CreatedAt,
		profile.UpdatedAt,
		profile.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrentUpdate
	}

	profile.Version++
	return nil
}

// ListTopByXP returns profiles ordered by total XP, highest first. Used to
// rebuild the ranking projection; the unlocked achievement set is not loaded.
func (r *ProfileRepository) ListTopByXP(ctx context.Context, limit int) ([]*progression.ProgressionProfile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM progression_profiles
		ORDER BY total_xp DESC
		LIMIT $1
	`

	q := QuerierFrom(ctx, r.conn)
	rows, err := q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*progression.ProgressionProfile
	for rows.Next() {
		profile, err := r.scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// loadUnlocked hydrates the profile's unlocked achievement set.
func (r *ProfileRepository) loadUnlocked(ctx context.Context, profile *progression.ProgressionProfile) error {
	query := `
		SELECT achievement_id
		FROM unlocked_achievements
		WHERE user_id = $1
	`

	q := QuerierFrom(ctx, r.conn)
	rows, err := q.Query(ctx, query, profile.UserID.String())
	if err != nil {
		return fmt.Errorf("failed to load unlocked achievements: %w", err)
	}
	defer rows.Close()

	profile.UnlockedAchievementIDs = make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan unlocked achievement: %w", err)
		}
		profile.UnlockedAchievementIDs[id] = true
	}
	return rows.Err()
}

// scanProfile scans one profile row.
func (r *ProfileRepository) scanProfile(row rowScanner) (*progression.ProgressionProfile, error) {
	var (
		profile      progression.ProgressionProfile
		userID       string
		totalXP      int64
		lastActivity *time.Time
	)

	err := row.Scan(
		&userID,
		&totalXP,
		&profile.CurrentLevel,
		&profile.XPToNextLevel,
		&profile.Streak.Current,
		&profile.Streak.Longest,
		&lastActivity,
		&profile.TotalLessonsCompleted,
		&profile.TotalTasksCompleted,
		&profile.TotalCoursesCompleted,
		&profile.Version,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	profile.UserID = shared.UserID(userID)
	profile.TotalXP = shared.XP(totalXP)
	if lastActivity != nil {
		profile.Streak.LastActivityAt = *lastActivity
	}

	return &profile, nil
}
