package command

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/enrollment"
	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
	"github.com/skillforge/skillforge-engine/pkg/logger"
)

// In-memory doubles for the storage contracts. They keep the same commit
// semantics the handlers rely on: the award store applies Prepare to a copy
// and commits only when the guard and Enlist both succeed.

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard})
}

// ─────────────────────────────────────────────────────────────────────────────
// AWARD STORE
// ─────────────────────────────────────────────────────────────────────────────

type fakeAwardStore struct {
	mu       sync.Mutex
	profiles map[shared.UserID]*progression.ProgressionProfile
	ledger   []*progression.XPTransaction
	failErr  error
}

func newFakeAwardStore() *fakeAwardStore {
	return &fakeAwardStore{profiles: make(map[shared.UserID]*progression.ProgressionProfile)}
}

func cloneProfile(p *progression.ProgressionProfile) *progression.ProgressionProfile {
	clone := *p
	clone.UnlockedAchievementIDs = make(map[string]bool, len(p.UnlockedAchievementIDs))
	for id, v := range p.UnlockedAchievementIDs {
		clone.UnlockedAchievementIDs[id] = v
	}
	return &clone
}

func (s *fakeAwardStore) ExecuteAward(ctx context.Context, req progression.AwardRequest) (*progression.AwardResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return nil, s.failErr
	}

	committed, ok := s.profiles[req.UserID]
	if !ok {
		committed = progression.NewProfile(req.UserID)
	}
	working := cloneProfile(committed)

	now := time.Now().UTC()
	entry, err := req.Prepare(working, now)
	if err != nil {
		return nil, err
	}

	if err := req.Limits.Check(s.windowUsage(req.UserID, now), entry.Amount); err != nil {
		return nil, err
	}
	if req.Enlist != nil {
		if err := req.Enlist(ctx, entry); err != nil {
			return nil, err
		}
	}

	working.Version++
	s.profiles[req.UserID] = working
	s.ledger = append(s.ledger, entry)
	return &progression.AwardResult{Transaction: entry, Profile: working}, nil
}

func (s *fakeAwardStore) windowUsage(userID shared.UserID, now time.Time) progression.WindowUsage {
	var usage progression.WindowUsage
	for _, e := range s.ledger {
		if e.UserID != userID || !e.Validated {
			continue
		}
		if e.CreatedAt.After(now.Add(-24 * time.Hour)) {
			usage.LastDayXP += e.Amount
		}
		if e.CreatedAt.After(now.Add(-time.Hour)) {
			usage.LastHourXP += e.Amount
		}
	}
	return usage
}

// ─────────────────────────────────────────────────────────────────────────────
// ACHIEVEMENT REPOSITORY
// ─────────────────────────────────────────────────────────────────────────────

type fakeAchievementRepo struct {
	mu       sync.Mutex
	defs     []progression.Achievement
	unlocked map[string]*progression.UnlockedAchievement
	listErr  error
}

func newFakeAchievementRepo(defs ...progression.Achievement) *fakeAchievementRepo {
	return &fakeAchievementRepo{
		defs:     defs,
		unlocked: make(map[string]*progression.UnlockedAchievement),
	}
}

func (r *fakeAchievementRepo) ListActive(_ context.Context) ([]progression.Achievement, error) {
	return r.defs, r.listErr
}

func (r *fakeAchievementRepo) ListUnlocked(_ context.Context, userID shared.UserID) ([]*progression.UnlockedAchievement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*progression.UnlockedAchievement
	for _, u := range r.unlocked {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeAchievementRepo) SaveUnlocked(_ context.Context, u *progression.UnlockedAchievement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := u.UserID.String() + "/" + u.AchievementID
	if _, exists := r.unlocked[key]; exists {
		return shared.ErrAlreadyUnlocked
	}
	r.unlocked[key] = u
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// EVENT PUBLISHER
// ─────────────────────────────────────────────────────────────────────────────

type fakeEventBus struct {
	mu     sync.Mutex
	events []shared.Event
}

func (b *fakeEventBus) Publish(event shared.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *fakeEventBus) published(t shared.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for _, e := range b.events {
		if e.EventType() == t {
			count++
		}
	}
	return count
}

// ─────────────────────────────────────────────────────────────────────────────
// ENROLLMENT REPOSITORIES
// ─────────────────────────────────────────────────────────────────────────────

type fakeEnrollmentRepo struct {
	mu   sync.Mutex
	byID map[string]*enrollment.Enrollment
}

func newFakeEnrollmentRepo() *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{byID: make(map[string]*enrollment.Enrollment)}
}

func (r *fakeEnrollmentRepo) Create(_ context.Context, e *enrollment.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.UserID == e.UserID && existing.CourseID == e.CourseID &&
			existing.Status != enrollment.StatusDropped {
			return shared.ErrAlreadyEnrolled
		}
	}
	r.byID[e.ID] = e
	return nil
}

func (r *fakeEnrollmentRepo) GetByID(_ context.Context, id string) (*enrollment.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrEnrollmentNotFound
	}
	return e, nil
}

func (r *fakeEnrollmentRepo) GetByUserAndCourse(_ context.Context, userID shared.UserID, courseID shared.CourseID) (*enrollment.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.byID {
		if e.UserID == userID && e.CourseID == courseID && e.Status != enrollment.StatusDropped {
			return e, nil
		}
	}
	return nil, shared.ErrEnrollmentNotFound
}

func (r *fakeEnrollmentRepo) ListByUser(_ context.Context, userID shared.UserID, _ shared.Pagination) ([]*enrollment.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*enrollment.Enrollment
	for _, e := range r.byID {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEnrollmentRepo) ListCompletedCourseIDs(_ context.Context, userID shared.UserID) ([]shared.CourseID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []shared.CourseID
	for _, e := range r.byID {
		if e.UserID == userID && e.Status == enrollment.StatusCompleted {
			out = append(out, e.CourseID)
		}
	}
	return out, nil
}

func (r *fakeEnrollmentRepo) Save(_ context.Context, e *enrollment.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[e.ID] = e
	return nil
}

type fakeProgressRepo struct {
	mu      sync.Mutex
	lessons map[string]*enrollment.LessonProgress
	tasks   map[string]*enrollment.TaskCompletion
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{
		lessons: make(map[string]*enrollment.LessonProgress),
		tasks:   make(map[string]*enrollment.TaskCompletion),
	}
}

func progressNotFound(op string) error {
	return shared.NewDomainError("enrollment", op, shared.ErrNotFound, "record not found")
}

func (r *fakeProgressRepo) GetLessonProgress(_ context.Context, userID shared.UserID, lessonID shared.LessonID) (*enrollment.LessonProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lp, ok := r.lessons[userID.String()+"/"+lessonID.String()]
	if !ok {
		return nil, progressNotFound("GetLessonProgress")
	}
	return lp, nil
}

func (r *fakeProgressRepo) SaveLessonProgress(_ context.Context, lp *enrollment.LessonProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lessons[lp.UserID.String()+"/"+lp.LessonID.String()] = lp
	return nil
}

func (r *fakeProgressRepo) ListLessonProgress(_ context.Context, userID shared.UserID, courseID shared.CourseID) ([]*enrollment.LessonProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*enrollment.LessonProgress
	for _, lp := range r.lessons {
		if lp.UserID == userID && lp.CourseID == courseID {
			out = append(out, lp)
		}
	}
	return out, nil
}

func (r *fakeProgressRepo) GetTaskCompletion(_ context.Context, userID shared.UserID, taskID shared.TaskID) (*enrollment.TaskCompletion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tc, ok := r.tasks[userID.String()+"/"+taskID.String()]
	if !ok {
		return nil, progressNotFound("GetTaskCompletion")
	}
	return tc, nil
}

func (r *fakeProgressRepo) SaveTaskCompletion(_ context.Context, tc *enrollment.TaskCompletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[tc.UserID.String()+"/"+tc.TaskID.String()] = tc
	return nil
}

func (r *fakeProgressRepo) ListTaskCompletions(_ context.Context, userID shared.UserID, courseID shared.CourseID) ([]*enrollment.TaskCompletion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*enrollment.TaskCompletion
	for _, tc := range r.tasks {
		if tc.UserID == userID && tc.CourseID == courseID {
			out = append(out, tc)
		}
	}
	return out, nil
}
