package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD STORE IMPLEMENTATION
// One database transaction per award. The profile row lock serializes
// concurrent awards for a user, which keeps the guard's window sums and the
// profile version check race-free.
// ══════════════════════════════════════════════════════════════════════════════

// AwardStore implements progression.AwardStore on top of PostgreSQL.
type AwardStore struct {
	conn        *Connection
	profileRepo *ProfileRepository
	ledgerRepo  *LedgerRepository
}

// NewAwardStore creates a new AwardStore.
func NewAwardStore(conn *Connection, profileRepo *ProfileRepository, ledgerRepo *LedgerRepository) *AwardStore {
	return &AwardStore{
		conn:        conn,
		profileRepo: profileRepo,
		ledgerRepo:  ledgerRepo,
	}
}

// ExecuteAward runs one award as a single transaction:
//
//	lock or create the profile row
//	Prepare the ledger entry against the locked profile
//	check the rolling hourly/daily caps, new amount included
//	append to the ledger, save the profile
//	Enlist co-owned aggregate writes
//
// Any failure, the guard's rejection included, rolls the whole unit back.
func (s *AwardStore) ExecuteAward(ctx context.Context, req progression.AwardRequest) (*progression.AwardResult, error) {
	var result *progression.AwardResult

	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		txCtx := WithQuerier(ctx, tx)
		now := time.Now().UTC()

		profile, err := s.lockOrCreateProfile(txCtx, req)
		if err != nil {
			return err
		}

		entry, err := req.Prepare(profile, now)
		if err != nil {
			return err
		}

		if err := s.checkLimits(txCtx, req, entry, now); err != nil {
			return err
		}

		if err := s.ledgerRepo.Append(txCtx, entry); err != nil {
			return err
		}
		if err := s.profileRepo.Save(txCtx, profile); err != nil {
			return err
		}

		if req.Enlist != nil {
			if err := req.Enlist(txCtx, entry); err != nil {
				return err
			}
		}

		result = &progression.AwardResult{Transaction: entry, Profile: profile}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// lockOrCreateProfile takes the profile row lock, inserting an empty profile
// first when the user has none. The insert is idempotent, so a concurrent
// first award simply queues on the lock.
func (s *AwardStore) lockOrCreateProfile(ctx context.Context, req progression.AwardRequest) (*progression.ProgressionProfile, error) {
	profile, err := s.profileRepo.GetByUserForUpdate(ctx, req.UserID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, shared.ErrProfileNotFound) {
		return nil, err
	}

	fresh := progression.NewProfile(req.UserID)
	query := `
		INSERT INTO progression_profiles (user_id, current_level, xp_to_next_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING
	`
	q := QuerierFrom(ctx, s.conn)
	_, err = q.Exec(ctx, query,
		fresh.UserID.String(),
		fresh.CurrentLevel,
		fresh.XPToNextLevel,
		fresh.CreatedAt,
		fresh.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	return s.profileRepo.GetByUserForUpdate(ctx, req.UserID)
}

// checkLimits enforces the rolling caps with time-bounded ledger sums. The
// new amount rides on top of both windows before comparison.
func (s *AwardStore) checkLimits(ctx context.Context, req progression.AwardRequest, entry *progression.XPTransaction, now time.Time) error {
	if req.Limits.HourlyCap <= 0 && req.Limits.DailyCap <= 0 {
		return nil
	}

	var usage progression.WindowUsage
	var err error

	if req.Limits.HourlyCap > 0 {
		usage.LastHourXP, err = s.ledgerRepo.SumValidatedSince(ctx, req.UserID, now.Add(-time.Hour))
		if err != nil {
			return err
		}
	}
	if req.Limits.DailyCap > 0 {
		usage.LastDayXP, err = s.ledgerRepo.SumValidatedSince(ctx, req.UserID, now.Add(-24*time.Hour))
		if err != nil {
			return err
		}
	}

	return req.Limits.Check(usage, entry.Amount)
}
