package postgres

import (
	"context"
	"fmt"

	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY IMPLEMENTATION
// Read-mostly definitions plus per-user unlock records. The unlock insert
// joins the bonus award's transaction via the context querier, so an unlock
// and its bonus XP commit or roll back together.
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements progression.AchievementRepository for PostgreSQL.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

// ListActive returns all active achievement definitions.
func (r *AchievementRepository) ListActive(ctx context.Context) ([]progression.Achievement, error) {
	query := `
		SELECT id, name, description, requirement_type, requirement_threshold, bonus_xp, active
		FROM achievements
		WHERE active = TRUE
		ORDER BY id
	`

	q := QuerierFrom(ctx, r.conn)
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()

	var definitions []progression.Achievement
	for rows.Next() {
		var (
			def     progression.Achievement
			reqType string
		)
		err := rows.Scan(&def.ID, &def.Name, &def.Description, &reqType, &def.Requirement.Threshold, &def.BonusXP, &def.Active)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		def.Requirement.Type = progression.RequirementType(reqType)
		definitions = append(definitions, def)
	}
	return definitions, rows.Err()
}

// ListUnlocked returns the user's unlock records, newest first.
func (r *AchievementRepository) ListUnlocked(ctx context.Context, userID shared.UserID) ([]*progression.UnlockedAchievement, error) {
	query := `
		SELECT user_id, achievement_id, unlocked_at
		FROM unlocked_achievements
		WHERE user_id = $1
		ORDER BY unlocked_at DESC
	`

	q := QuerierFrom(ctx, r.conn)
	rows, err := q.Query(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list unlocked achievements: %w", err)
	}
	defer rows.Close()

	var unlocked []*progression.UnlockedAchievement
	for rows.Next() {
		var (
			ua  progression.UnlockedAchievement
			uid string
		)
		if err := rows.Scan(&uid, &ua.AchievementID, &ua.UnlockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unlocked achievement: %w", err)
		}
		ua.UserID = shared.UserID(uid)
		unlocked = append(unlocked, &ua)
	}
	return unlocked, rows.Err()
}

// SaveUnlocked creates an unlock record.
func (r *AchievementRepository) SaveUnlocked(ctx context.Context, unlocked *progression.UnlockedAchievement) error {
	query := `
		INSERT INTO unlocked_achievements (user_id, achievement_id, unlocked_at)
		VALUES ($1, $2, $3)
	`

	q := QuerierFrom(ctx, r.conn)
	_, err := q.Exec(ctx, query, unlocked.UserID.String(), unlocked.AchievementID, unlocked.UnlockedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyUnlocked
		}
		return fmt.Errorf("failed to save unlocked achievement: %w", err)
	}
	return nil
}

// SeedDefaults upserts the built-in achievement catalog. Run once at startup;
// existing rows keep their active flag untouched only when definitions match.
func (r *AchievementRepository) SeedDefaults(ctx context.Context) error {
	query := `
		INSERT INTO achievements (id, name, description, requirement_type, requirement_threshold, bonus_xp, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			requirement_type = EXCLUDED.requirement_type,
			requirement_threshold = EXCLUDED.requirement_threshold,
			bonus_xp = EXCLUDED.bonus_xp
	`

	q := QuerierFrom(ctx, r.conn)
	for _, def := range progression.DefaultAchievements() {
		_, err := q.Exec(ctx, query,
			def.ID,
			def.Name,
			def.Description,
			string(def.Requirement.Type),
			def.Requirement.Threshold,
			def.BonusXP,
			def.Active,
		)
		if err != nil {
			return fmt.Errorf("failed to seed achievement %s: %w", def.ID, err)
		}
	}
	return nil
}
