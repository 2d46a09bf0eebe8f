// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
	"github.com/skillforge/skillforge-engine/pkg/logger"
	"github.com/skillforge/skillforge-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD XP COMMAND
// The single entry point for crediting XP. Every grant goes through the
// ledger: completions, course bonuses, achievement bonuses. The award runs
// as one atomic storage transaction (guard, ledger append, profile update),
// followed by a bounded achievement evaluation pass.
// ══════════════════════════════════════════════════════════════════════════════

// AwardXPCommand contains the data to credit XP to a user.
type AwardXPCommand struct {
	// UserID is the credited user.
	UserID string

	// Kind classifies the grant in the ledger.
	Kind progression.TransactionKind

	// BaseAmount is the pre-multiplier amount, at least 1.
	BaseAmount int

	// Source references the originating record.
	Source progression.Source

	// Multipliers, when set, requests the bonus multiplier stack. The
	// current streak slot is filled in after the day's activity is
	// recorded; a nil context awards the base amount flat.
	Multipliers *progression.MultiplierContext

	// Metadata is copied onto the ledger entry for audit.
	Metadata map[string]interface{}

	// SkipAchievements disables the follow-up evaluation pass. Set on
	// bonus awards so one request never evaluates more than once.
	SkipAchievements bool

	// MutateProfile, when set, runs on the locked profile inside the award
	// transaction (lifetime counters, achievement unlocks).
	MutateProfile func(profile *progression.ProgressionProfile)

	// Enlist, when set, runs inside the award transaction after the guard
	// admits the final amount. Co-owned records are written here.
	Enlist func(ctx context.Context, entry *progression.XPTransaction) error

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c AwardXPCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("award_xp: user_id is required")
	}
	if !c.Kind.IsValid() {
		return fmt.Errorf("award_xp: unknown transaction kind: %s", c.Kind)
	}
	if c.BaseAmount < 1 {
		return errors.New("award_xp: base_amount must be at least 1")
	}
	return nil
}

// AwardXPResult contains the result of an award.
type AwardXPResult struct {
	// TransactionID is the ledger entry created for the grant.
	TransactionID string

	// AmountAwarded is the final post-multiplier amount.
	AmountAwarded int

	// AppliedMultipliers lists the factors applied to the base amount.
	AppliedMultipliers []progression.AppliedMultiplier

	// NewTotalXP is the user's total after this award (and any bonus
	// awards triggered by it).
	NewTotalXP int

	// LevelUp reports a level change caused by the award.
	LevelUp progression.LevelUpInfo

	// Streak is the streak state after the day's activity was recorded.
	Streak progression.StreakResult

	// UnlockedAchievements lists achievement IDs unlocked by this award.
	UnlockedAchievements []string

	// Events contains domain events generated.
	Events []shared.Event

	// AwardedAt is when the ledger entry was written.
	AwardedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AwardXPHandler handles the AwardXPCommand.
type AwardXPHandler struct {
	awardStore      progression.AwardStore
	achievementRepo progression.AchievementRepository
	counter         *progression.RollingCounter
	evaluator       *progression.Evaluator
	eventPublisher  shared.EventPublisher
	retrier         *retry.Retrier
	log             *logger.Logger

	limits progression.RateLimits
}

// AwardXPHandlerConfig contains configuration for the handler.
type AwardXPHandlerConfig struct {
	Limits progression.RateLimits

	// DisableRateGuard turns off the rolling-window caps entirely;
	// every award amount is admitted. Limits are ignored when set.
	DisableRateGuard bool
}

// DefaultAwardXPHandlerConfig returns default configuration.
func DefaultAwardXPHandlerConfig() AwardXPHandlerConfig {
	return AwardXPHandlerConfig{
		Limits: progression.DefaultRateLimits(),
	}
}

// NewAwardXPHandler creates a new AwardXPHandler.
func NewAwardXPHandler(
	awardStore progression.AwardStore,
	achievementRepo progression.AchievementRepository,
	counter *progression.RollingCounter,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
	config AwardXPHandlerConfig,
) *AwardXPHandler {
	if config.DisableRateGuard {
		// Zero caps pass every Check.
		config.Limits = progression.RateLimits{}
	} else if config.Limits == (progression.RateLimits{}) {
		config = DefaultAwardXPHandlerConfig()
	}
	if log == nil {
		log = logger.Default()
	}

	return &AwardXPHandler{
		awardStore:      awardStore,
		achievementRepo: achievementRepo,
		counter:         counter,
		evaluator:       progression.NewEvaluator(),
		eventPublisher:  eventPublisher,
		retrier:         retry.ConflictRetrier(),
		log:             log.With(logger.Component("award_xp")),
		limits:          config.Limits,
	}
}

// Handle executes the award command.
func (h *AwardXPHandler) Handle(ctx context.Context, cmd AwardXPCommand) (*AwardXPResult, error) {
	// Validate command
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "AwardXP", shared.ErrValidation, err.Error(), err)
	}

	userID, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("award_xp: %w", err)
	}

	// Cheap pre-check against the in-process window mirror. Multipliers
	// never shrink the amount, so the base alone breaking a cap is final.
	// The authoritative check is the ledger sum inside the transaction.
	usage := h.counter.Usage(userID, time.Now().UTC())
	if err := h.limits.Check(usage, cmd.BaseAmount); err != nil {
		return nil, fmt.Errorf("award_xp: %w", err)
	}

	var (
		levelUp progression.LevelUpInfo
		streak  progression.StreakResult
	)

	awardRes, err := h.executeWithRetry(ctx, progression.AwardRequest{
		UserID: userID,
		Limits: h.limits,
		Prepare: func(profile *progression.ProgressionProfile, at time.Time) (*progression.XPTransaction, error) {
			streak = profile.RecordActivity(at)

			var applied []progression.AppliedMultiplier
			if cmd.Multipliers != nil {
				mc := *cmd.Multipliers
				mc.CurrentStreak = streak.Current
				applied = progression.ResolveMultipliers(mc)
			}
			amount := progression.FinalAmount(cmd.BaseAmount, applied)

			entry, buildErr := progression.NewXPTransaction(userID, cmd.Kind, amount, cmd.Source)
			if buildErr != nil {
				return nil, buildErr
			}
			entry.WithMultipliers(applied).WithMetadata("base_amount", cmd.BaseAmount)
			for k, v := range cmd.Metadata {
				entry.WithMetadata(k, v)
			}

			levelUp = profile.ApplyAward(amount)
			if cmd.MutateProfile != nil {
				cmd.MutateProfile(profile)
			}
			return entry, nil
		},
		Enlist: cmd.Enlist,
	})
	if err != nil {
		return nil, fmt.Errorf("award_xp: failed to execute award: %w", err)
	}

	entry := awardRes.Transaction
	h.counter.Record(userID, entry.Amount, entry.CreatedAt)

	result := &AwardXPResult{
		TransactionID:      entry.ID,
		AmountAwarded:      entry.Amount,
		AppliedMultipliers: entry.AppliedMultipliers,
		NewTotalXP:         awardRes.Profile.TotalXP.Int(),
		LevelUp:            levelUp,
		Streak:             streak,
		AwardedAt:          entry.CreatedAt,
		Events:             make([]shared.Event, 0, 3),
	}

	h.collectAwardEvents(cmd, entry, awardRes.Profile, result)

	// Bounded follow-up: one evaluation per originating award, never
	// re-triggered by the bonus awards it creates.
	if !cmd.SkipAchievements {
		h.evaluateAchievements(ctx, userID, cmd.CorrelationID, awardRes.Profile, result)
	}

	// Daily streak bonus: granted once, on the first streak-extending
	// activity of the day. Bonus awards skip this path themselves.
	if !cmd.SkipAchievements && streak.Continued && !streak.WasReset {
		h.grantStreakBonus(ctx, userID, cmd.CorrelationID, streak, result)
	}

	for _, event := range result.Events {
		_ = h.eventPublisher.Publish(event)
	}

	h.log.Info("xp awarded",
		logger.UserID(userID.String()),
		logger.TransactionID(entry.ID),
		logger.XPAmount(entry.Amount),
		logger.UserLevel(awardRes.Profile.CurrentLevel),
	)

	return result, nil
}

// executeWithRetry runs the atomic award, retrying optimistic-lock conflicts.
func (h *AwardXPHandler) executeWithRetry(ctx context.Context, req progression.AwardRequest) (*progression.AwardResult, error) {
	var res *progression.AwardResult
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		r, execErr := h.awardStore.ExecuteAward(ctx, req)
		if execErr != nil {
			if shared.IsRetryable(execErr) {
				return retry.Retryable(execErr)
			}
			return retry.Permanent(execErr)
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// collectAwardEvents appends the events describing a committed award.
func (h *AwardXPHandler) collectAwardEvents(
	cmd AwardXPCommand,
	entry *progression.XPTransaction,
	profile *progression.ProgressionProfile,
	result *AwardXPResult,
) {
	awarded := shared.NewXPAwardedEvent(
		entry.UserID.String(),
		entry.ID,
		entry.Amount,
		profile.TotalXP.Int(),
		string(entry.Kind),
		entry.Source.ID,
	)
	if cmd.CorrelationID != "" {
		awarded.BaseEvent = awarded.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, awarded)

	if result.LevelUp.LeveledUp {
		result.Events = append(result.Events, shared.NewLevelUpEvent(
			entry.UserID.String(),
			result.LevelUp.OldLevel,
			result.LevelUp.NewLevel,
			profile.TotalXP.Int(),
		))
	}

	if result.Streak.Continued || result.Streak.WasReset {
		result.Events = append(result.Events, shared.NewStreakUpdatedEvent(
			entry.UserID.String(),
			result.Streak.Current,
			result.Streak.Longest,
			result.Streak.WasReset,
		))
	}
}

// evaluateAchievements runs one pass over the active definitions against the
// committed profile and unlocks whatever is newly met. Failures here never
// fail the originating award; a missed unlock is picked up on a later pass.
func (h *AwardXPHandler) evaluateAchievements(
	ctx context.Context,
	userID shared.UserID,
	correlationID string,
	profile *progression.ProgressionProfile,
	result *AwardXPResult,
) {
	definitions, err := h.achievementRepo.ListActive(ctx)
	if err != nil {
		h.log.Warn("achievement definitions unavailable",
			logger.UserID(userID.String()), logger.Err(err))
		return
	}

	for _, def := range h.evaluator.NewlyMet(definitions, profile) {
		if err := h.unlockAchievement(ctx, userID, correlationID, def, result); err != nil {
			if shared.IsAlreadyExists(err) {
				continue
			}
			h.log.Warn("achievement unlock failed",
				logger.UserID(userID.String()),
				logger.String("achievement_id", def.ID),
				logger.Err(err))
			continue
		}

		result.UnlockedAchievements = append(result.UnlockedAchievements, def.ID)
		result.Events = append(result.Events, shared.NewAchievementUnlockedEvent(
			userID.String(), def.ID, def.BonusXP,
		))
	}
}

// grantStreakBonus credits the flat daily bonus for an extended streak as a
// separate ledger entry. Failures never fail the originating award.
func (h *AwardXPHandler) grantStreakBonus(
	ctx context.Context,
	userID shared.UserID,
	correlationID string,
	streak progression.StreakResult,
	result *AwardXPResult,
) {
	bonus := progression.StreakBonusXP(streak.Current)
	if bonus < 1 {
		return
	}

	res, err := h.Handle(ctx, AwardXPCommand{
		UserID:     userID.String(),
		Kind:       progression.TxDailyStreak,
		BaseAmount: bonus,
		Source: progression.Source{
			ID:    "daily-streak",
			Kind:  progression.SourceSystem,
			Title: "Daily streak",
		},
		Metadata:         map[string]interface{}{"streak_days": streak.Current},
		SkipAchievements: true,
		CorrelationID:    correlationID,
	})
	if err != nil {
		h.log.Warn("daily streak bonus failed",
			logger.UserID(userID.String()),
			logger.Int("streak_days", streak.Current),
			logger.Err(err))
		return
	}

	result.NewTotalXP = res.NewTotalXP
}

// unlockAchievement persists one unlock. When the definition carries bonus
// XP, the unlock record joins the bonus award's transaction so both commit
// together; the bonus award skips re-evaluation.
func (h *AwardXPHandler) unlockAchievement(
	ctx context.Context,
	userID shared.UserID,
	correlationID string,
	def progression.Achievement,
	result *AwardXPResult,
) error {
	if def.BonusXP < 1 {
		return h.achievementRepo.SaveUnlocked(ctx, progression.NewUnlockedAchievement(userID, def.ID))
	}

	bonus, err := h.Handle(ctx, AwardXPCommand{
		UserID:     userID.String(),
		Kind:       progression.TxAchievement,
		BaseAmount: def.BonusXP,
		Source: progression.Source{
			ID:    def.ID,
			Kind:  progression.SourceAchievement,
			Title: def.Name,
		},
		SkipAchievements: true,
		CorrelationID:    correlationID,
		MutateProfile: func(p *progression.ProgressionProfile) {
			_ = p.UnlockAchievement(def.ID)
		},
		Enlist: func(ctx context.Context, _ *progression.XPTransaction) error {
			return h.achievementRepo.SaveUnlocked(ctx, progression.NewUnlockedAchievement(userID, def.ID))
		},
	})
	if err != nil {
		return err
	}

	result.NewTotalXP = bonus.NewTotalXP
	return nil
}
