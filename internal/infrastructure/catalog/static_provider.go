// Package catalog provides a static, in-process implementation of the
// content provider contract. Course material is authored outside this
// engine; deployments ship the catalog as a JSON file and load it at
// startup.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/skillforge/skillforge-engine/internal/domain/content"
	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATIC PROVIDER
// ══════════════════════════════════════════════════════════════════════════════

// StaticProvider serves course, lesson, and task definitions from memory.
// All lookups are read-only after construction; Reload swaps the whole
// catalog atomically.
type StaticProvider struct {
	mu      sync.RWMutex
	courses map[shared.CourseID]*content.Course
	lessons map[shared.LessonID]*content.Lesson
	tasks   map[shared.TaskID]*content.Task
}

// NewStaticProvider creates a provider from an in-memory catalog.
func NewStaticProvider(courses []content.Course, lessons []content.Lesson, tasks []content.Task) *StaticProvider {
	p := &StaticProvider{}
	p.replace(courses, lessons, tasks)
	return p
}

// NewStaticProviderFromFile creates a provider from a JSON catalog file.
func NewStaticProviderFromFile(path string) (*StaticProvider, error) {
	p := &StaticProvider{}
	if err := p.LoadFile(path); err != nil {
		return nil, err
	}
	return p, nil
}

// GetCourse returns a course definition.
func (p *StaticProvider) GetCourse(_ context.Context, id shared.CourseID) (*content.Course, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	course, ok := p.courses[id]
	if !ok {
		return nil, shared.ErrCourseNotFound
	}
	return course, nil
}

// GetLesson returns a lesson definition.
func (p *StaticProvider) GetLesson(_ context.Context, id shared.LessonID) (*content.Lesson, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	lesson, ok := p.lessons[id]
	if !ok {
		return nil, shared.ErrLessonNotFound
	}
	return lesson, nil
}

// GetTask returns a task definition.
func (p *StaticProvider) GetTask(_ context.Context, id shared.TaskID) (*content.Task, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	task, ok := p.tasks[id]
	if !ok {
		return nil, shared.ErrTaskNotFound
	}
	return task, nil
}

// CourseCount returns the number of loaded courses.
func (p *StaticProvider) CourseCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.courses)
}

func (p *StaticProvider) replace(courses []content.Course, lessons []content.Lesson, tasks []content.Task) {
	courseIdx := make(map[shared.CourseID]*content.Course, len(courses))
	for i := range courses {
		c := courses[i]
		courseIdx[c.ID] = &c
	}

	lessonIdx := make(map[shared.LessonID]*content.Lesson, len(lessons))
	for i := range lessons {
		l := lessons[i]
		lessonIdx[l.ID] = &l
	}

	taskIdx := make(map[shared.TaskID]*content.Task, len(tasks))
	for i := range tasks {
		t := tasks[i]
		taskIdx[t.ID] = &t
	}

	p.mu.Lock()
	p.courses = courseIdx
	p.lessons = lessonIdx
	p.tasks = taskIdx
	p.mu.Unlock()
}

// ══════════════════════════════════════════════════════════════════════════════
// JSON CATALOG FORMAT
// ══════════════════════════════════════════════════════════════════════════════

// catalogFile is the on-disk catalog shape.
type catalogFile struct {
	Courses []courseEntry `json:"courses"`
	Lessons []lessonEntry `json:"lessons"`
	Tasks   []taskEntry   `json:"tasks"`
}

type courseEntry struct {
	ID                    string   `json:"id"`
	Title                 string   `json:"title"`
	Difficulty            string   `json:"difficulty"`
	LessonIDs             []string `json:"lesson_ids"`
	PrerequisiteCourseIDs []string `json:"prerequisite_course_ids,omitempty"`
	CompletionBonusXP     int      `json:"completion_bonus_xp"`
}

type lessonEntry struct {
	ID               string `json:"id"`
	CourseID         string `json:"course_id"`
	Title            string `json:"title"`
	Difficulty       string `json:"difficulty"`
	XPReward         int    `json:"xp_reward"`
	EstimatedMinutes int    `json:"estimated_minutes"`
}

type taskEntry struct {
	ID               string `json:"id"`
	LessonID         string `json:"lesson_id"`
	CourseID         string `json:"course_id"`
	Title            string `json:"title"`
	Kind             string `json:"kind"`
	Difficulty       string `json:"difficulty"`
	PassingScore     int    `json:"passing_score"`
	EstimatedMinutes int    `json:"estimated_minutes"`
}

// LoadFile reads a JSON catalog file and swaps the catalog atomically. The
// previous catalog stays active if the file fails to parse.
func (p *StaticProvider) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("catalog: failed to read %s: %w", path, err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("catalog: failed to parse %s: %w", path, err)
	}

	courses := make([]content.Course, 0, len(file.Courses))
	for _, e := range file.Courses {
		course := content.Course{
			ID:                shared.CourseID(e.ID),
			Title:             e.Title,
			Difficulty:        progression.Difficulty(e.Difficulty),
			CompletionBonusXP: e.CompletionBonusXP,
		}
		for _, id := range e.LessonIDs {
			course.LessonIDs = append(course.LessonIDs, shared.LessonID(id))
		}
		for _, id := range e.PrerequisiteCourseIDs {
			course.PrerequisiteCourseIDs = append(course.PrerequisiteCourseIDs, shared.CourseID(id))
		}
		courses = append(courses, course)
	}

	lessons := make([]content.Lesson, 0, len(file.Lessons))
	for _, e := range file.Lessons {
		lessons = append(lessons, content.Lesson{
			ID:               shared.LessonID(e.ID),
			CourseID:         shared.CourseID(e.CourseID),
			Title:            e.Title,
			Difficulty:       progression.Difficulty(e.Difficulty),
			XPReward:         e.XPReward,
			EstimatedMinutes: e.EstimatedMinutes,
		})
	}

	tasks := make([]content.Task, 0, len(file.Tasks))
	for _, e := range file.Tasks {
		tasks = append(tasks, content.Task{
			ID:               shared.TaskID(e.ID),
			LessonID:         shared.LessonID(e.LessonID),
			CourseID:         shared.CourseID(e.CourseID),
			Title:            e.Title,
			Kind:             progression.TaskKind(e.Kind),
			Difficulty:       progression.Difficulty(e.Difficulty),
			PassingScore:     shared.Score(e.PassingScore),
			EstimatedMinutes: e.EstimatedMinutes,
		})
	}

	p.replace(courses, lessons, tasks)
	return nil
}
