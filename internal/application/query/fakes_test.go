package query

import (
	"context"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/enrollment"
	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// Minimal in-memory doubles for the read-side contracts.

type fakeProfileRepo struct {
	profiles map[shared.UserID]*progression.ProgressionProfile
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: make(map[shared.UserID]*progression.ProgressionProfile)}
}

func (r *fakeProfileRepo) GetByUser(_ context.Context, userID shared.UserID) (*progression.ProgressionProfile, error) {
	p, ok := r.profiles[userID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return p, nil
}

func (r *fakeProfileRepo) Save(_ context.Context, p *progression.ProgressionProfile) error {
	r.profiles[p.UserID] = p
	return nil
}

type fakeProfileCache struct {
	entries map[shared.UserID]*progression.ProgressionProfile
	hits    int
	sets    int
}

func newFakeProfileCache() *fakeProfileCache {
	return &fakeProfileCache{entries: make(map[shared.UserID]*progression.ProgressionProfile)}
}

func (c *fakeProfileCache) Get(_ context.Context, userID shared.UserID) (*progression.ProgressionProfile, error) {
	p, ok := c.entries[userID]
	if !ok {
		return nil, nil
	}
	c.hits++
	return p, nil
}

func (c *fakeProfileCache) Set(_ context.Context, p *progression.ProgressionProfile) error {
	c.entries[p.UserID] = p
	c.sets++
	return nil
}

func (c *fakeProfileCache) Invalidate(_ context.Context, userID shared.UserID) error {
	delete(c.entries, userID)
	return nil
}

type fakeAchievementRepo struct {
	defs     []progression.Achievement
	unlocked []*progression.UnlockedAchievement
}

func (r *fakeAchievementRepo) ListActive(_ context.Context) ([]progression.Achievement, error) {
	return r.defs, nil
}

func (r *fakeAchievementRepo) ListUnlocked(_ context.Context, userID shared.UserID) ([]*progression.UnlockedAchievement, error) {
	var out []*progression.UnlockedAchievement
	for _, u := range r.unlocked {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeAchievementRepo) SaveUnlocked(_ context.Context, u *progression.UnlockedAchievement) error {
	r.unlocked = append(r.unlocked, u)
	return nil
}

type fakeLedgerRepo struct {
	entries []*progression.XPTransaction
}

func (r *fakeLedgerRepo) Append(_ context.Context, tx *progression.XPTransaction) error {
	r.entries = append(r.entries, tx)
	return nil
}

func (r *fakeLedgerRepo) GetByID(_ context.Context, id string) (*progression.XPTransaction, error) {
	for _, tx := range r.entries {
		if tx.ID == id {
			return tx, nil
		}
	}
	return nil, shared.ErrTransactionNotFound
}

func (r *fakeLedgerRepo) ListByUser(_ context.Context, userID shared.UserID, p shared.Pagination) ([]*progression.XPTransaction, error) {
	var all []*progression.XPTransaction
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].UserID == userID {
			all = append(all, r.entries[i])
		}
	}

	from := p.Offset()
	if from >= len(all) {
		return nil, nil
	}
	to := from + p.Limit()
	if to > len(all) {
		to = len(all)
	}
	return all[from:to], nil
}

func (r *fakeLedgerRepo) SumValidatedSince(_ context.Context, userID shared.UserID, since time.Time) (int, error) {
	sum := 0
	for _, tx := range r.entries {
		if tx.UserID == userID && tx.Validated && !tx.CreatedAt.Before(since) {
			sum += tx.Amount
		}
	}
	return sum, nil
}

func (r *fakeLedgerRepo) SumValidated(_ context.Context, userID shared.UserID) (int, error) {
	return r.SumValidatedSince(context.Background(), userID, time.Time{})
}

type fakeEnrollmentRepo struct {
	byID map[string]*enrollment.Enrollment
}

func newFakeEnrollmentRepo() *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{byID: make(map[string]*enrollment.Enrollment)}
}

func (r *fakeEnrollmentRepo) Create(_ context.Context, e *enrollment.Enrollment) error {
	r.byID[e.ID] = e
	return nil
}

func (r *fakeEnrollmentRepo) GetByID(_ context.Context, id string) (*enrollment.Enrollment, error) {
	e, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrEnrollmentNotFound
	}
	return e, nil
}

func (r *fakeEnrollmentRepo) GetByUserAndCourse(_ context.Context, userID shared.UserID, courseID shared.CourseID) (*enrollment.Enrollment, error) {
	for _, e := range r.byID {
		if e.UserID == userID && e.CourseID == courseID && e.Status != enrollment.StatusDropped {
			return e, nil
		}
	}
	return nil, shared.ErrEnrollmentNotFound
}

func (r *fakeEnrollmentRepo) ListByUser(_ context.Context, userID shared.UserID, _ shared.Pagination) ([]*enrollment.Enrollment, error) {
	var out []*enrollment.Enrollment
	for _, e := range r.byID {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEnrollmentRepo) ListCompletedCourseIDs(_ context.Context, userID shared.UserID) ([]shared.CourseID, error) {
	var out []shared.CourseID
	for _, e := range r.byID {
		if e.UserID == userID && e.Status == enrollment.StatusCompleted {
			out = append(out, e.CourseID)
		}
	}
	return out, nil
}

func (r *fakeEnrollmentRepo) Save(_ context.Context, e *enrollment.Enrollment) error {
	r.byID[e.ID] = e
	return nil
}

type fakeProgressRepo struct {
	lessons []*enrollment.LessonProgress
	tasks   []*enrollment.TaskCompletion
}

func (r *fakeProgressRepo) GetLessonProgress(_ context.Context, userID shared.UserID, lessonID shared.LessonID) (*enrollment.LessonProgress, error) {
	for _, lp := range r.lessons {
		if lp.UserID == userID && lp.LessonID == lessonID {
			return lp, nil
		}
	}
	return nil, shared.NewDomainError("enrollment", "GetLessonProgress", shared.ErrNotFound, "record not found")
}

func (r *fakeProgressRepo) SaveLessonProgress(_ context.Context, lp *enrollment.LessonProgress) error {
	r.lessons = append(r.lessons, lp)
	return nil
}

func (r *fakeProgressRepo) ListLessonProgress(_ context.Context, userID shared.UserID, courseID shared.CourseID) ([]*enrollment.LessonProgress, error) {
	var out []*enrollment.LessonProgress
	for _, lp := range r.lessons {
		if lp.UserID == userID && lp.CourseID == courseID {
			out = append(out, lp)
		}
	}
	return out, nil
}

func (r *fakeProgressRepo) GetTaskCompletion(_ context.Context, userID shared.UserID, taskID shared.TaskID) (*enrollment.TaskCompletion, error) {
	for _, tc := range r.tasks {
		if tc.UserID == userID && tc.TaskID == taskID {
			return tc, nil
		}
	}
	return nil, shared.NewDomainError("enrollment", "GetTaskCompletion", shared.ErrNotFound, "record not found")
}

func (r *fakeProgressRepo) SaveTaskCompletion(_ context.Context, tc *enrollment.TaskCompletion) error {
	r.tasks = append(r.tasks, tc)
	return nil
}

func (r *fakeProgressRepo) ListTaskCompletions(_ context.Context, userID shared.UserID, courseID shared.CourseID) ([]*enrollment.TaskCompletion, error) {
	var out []*enrollment.TaskCompletion
	for _, tc := range r.tasks {
		if tc.UserID == userID && tc.CourseID == courseID {
			out = append(out, tc)
		}
	}
	return out, nil
}
