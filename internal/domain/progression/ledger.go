package progression

import (
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP LEDGER
// Append-only per-user list of transactions. Entries are immutable once
// written; the sum of validated amounts is the authoritative XP total.
// ══════════════════════════════════════════════════════════════════════════════

// TransactionKind classifies why XP was granted.
type TransactionKind string

const (
	TxLessonComplete TransactionKind = "lesson_complete"
	TxCourseComplete TransactionKind = "course_complete"
	TxAchievement    TransactionKind = "achievement"
	TxDailyStreak    TransactionKind = "daily_streak"
	TxBonus          TransactionKind = "bonus"
)

// IsValid checks if the kind is a known transaction kind.
func (k TransactionKind) IsValid() bool {
	switch k {
	case TxLessonComplete, TxCourseComplete, TxAchievement, TxDailyStreak, TxBonus:
		return true
	}
	return false
}

// SourceKind classifies the record an award originated from.
type SourceKind string

const (
	SourceLesson      SourceKind = "lesson"
	SourceTask        SourceKind = "task"
	SourceCourse      SourceKind = "course"
	SourceAchievement SourceKind = "achievement"
	SourceSystem      SourceKind = "system"
)

// Source references the record an award originated from.
type Source struct {
	ID    string     `json:"id"`
	Kind  SourceKind `json:"kind"`
	Title string     `json:"title"`
}

// XPTransaction is one immutable ledger entry.
type XPTransaction struct {
	// ID - unique transaction identifier.
	ID string

	// UserID - the credited user.
	UserID shared.UserID

	// Kind - why the XP was granted.
	Kind TransactionKind

	// Amount - final post-multiplier value, always >= 1.
	Amount int

	// Source - the originating record.
	Source Source

	// AppliedMultipliers - ordered factors applied to the base amount.
	AppliedMultipliers []AppliedMultiplier

	// Metadata - audit-only key-value bag. Never participates in invariants;
	// the raw base amount is kept here under "base_amount".
	Metadata map[string]interface{}

	// CreatedAt - when the entry was written.
	CreatedAt time.Time

	// Validated - only validated entries count toward totals.
	Validated bool
}

// NewXPTransaction creates a validated ledger entry.
func NewXPTransaction(userID shared.UserID, kind TransactionKind, amount int, source Source) (*XPTransaction, error) {
	if userID.IsEmpty() {
		return nil, shared.NewDomainError("progression", "NewXPTransaction", shared.ErrInvalidID, "user ID is required")
	}
	if !kind.IsValid() {
		return nil, shared.NewDomainError("progression", "NewXPTransaction", shared.ErrInvalidInput, "unknown transaction kind")
	}
	if amount < 1 {
		return nil, shared.NewDomainError("progression", "NewXPTransaction", shared.ErrValueOutOfRange, "amount must be at least 1")
	}

	return &XPTransaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		Source:    source,
		Metadata:  make(map[string]interface{}),
		CreatedAt: time.Now().UTC(),
		Validated: true,
	}, nil
}

// WithMultipliers attaches the applied multiplier stack.
func (t *XPTransaction) WithMultipliers(multipliers []AppliedMultiplier) *XPTransaction {
	t.AppliedMultipliers = multipliers
	return t
}

// WithMetadata adds one audit metadata entry.
func (t *XPTransaction) WithMetadata(key string, value interface{}) *XPTransaction {
	if t.Metadata == nil {
		t.Metadata = make(map[string]interface{})
	}
	t.Metadata[key] = value
	return t
}

// MultiplierProduct returns the compounded factor recorded on the entry.
func (t *XPTransaction) MultiplierProduct() float64 {
	product := 1.0
	for _, m := range t.AppliedMultipliers {
		product *= m.Factor
	}
	return product
}
