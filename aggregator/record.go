// Package aggregator is the persistence boundary for finished courses.
// Sinks receive documents only after generation has fully resolved them and
// write them in course, module, lesson order.
package aggregator

import (
	"context"
	"time"

	"github.com/c360studio/coursegen/content"
)

// Sink persists a finished course. Implementations own their retry and
// error semantics.
type Sink interface {
	Persist(ctx context.Context, course *content.Course) error
}

// RecordType identifies what a Record carries.
type RecordType string

const (
	RecordCourse RecordType = "course"
	RecordModule RecordType = "module"
	RecordLesson RecordType = "lesson"
)

// CourseDescriptor is the course-level part of an outline.
type CourseDescriptor struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Subject     string             `json:"subject,omitempty"`
	Modules     int                `json:"modules"`
	Provenance  content.Provenance `json:"provenance"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Record is one persisted unit. Exactly one of Course, Module, Lesson is set.
type Record struct {
	Type     RecordType `json:"type"`
	CourseID string     `json:"course_id"`
	// Sequence is the record's position in persistence order, from 0.
	Sequence int `json:"sequence"`
	// ModuleIndex is the module a module or lesson record belongs to,
	// or -1 for a lesson whose module is not in the outline.
	ModuleIndex int `json:"module_index"`

	Course *CourseDescriptor       `json:"course,omitempty"`
	Module *content.ModuleOutline  `json:"module,omitempty"`
	Lesson *content.LessonDocument `json:"lesson,omitempty"`
}

// Records flattens a course into persistence order: the course, then each
// module followed by its lessons. Lessons are placed by Course.LessonModules
// when it is set, otherwise by module title; unplaced lessons come last.
func Records(course *content.Course) []Record {
	if course == nil || course.Outline == nil {
		return nil
	}
	o := course.Outline

	var out []Record
	add := func(r Record) {
		r.CourseID = o.ID
		r.Sequence = len(out)
		out = append(out, r)
	}

	add(Record{
		Type:        RecordCourse,
		ModuleIndex: -1,
		Course: &CourseDescriptor{
			ID:          o.ID,
			Title:       o.Title,
			Description: o.Description,
			Subject:     o.Subject,
			Modules:     len(o.Modules),
			Provenance:  o.Provenance,
			CreatedAt:   o.CreatedAt,
		},
	})

	placement := lessonPlacement(course)
	for i := range o.Modules {
		m := o.Modules[i]
		add(Record{Type: RecordModule, ModuleIndex: i, Module: &m})
		for j, l := range course.Lessons {
			if placement[j] == i {
				add(Record{Type: RecordLesson, ModuleIndex: i, Lesson: l})
			}
		}
	}
	for j, l := range course.Lessons {
		if placement[j] < 0 {
			add(Record{Type: RecordLesson, ModuleIndex: -1, Lesson: l})
		}
	}
	return out
}

// lessonPlacement returns the module index of every lesson, or -1.
func lessonPlacement(course *content.Course) []int {
	placement := make([]int, len(course.Lessons))
	if len(course.LessonModules) == len(course.Lessons) {
		for j := range course.Lessons {
			placement[j] = course.ModuleOf(j)
		}
		return placement
	}

	// Hand-assembled courses: first module with a matching title.
	for j, l := range course.Lessons {
		placement[j] = -1
		for i, m := range course.Outline.Modules {
			if l.ModuleTitle == m.Title {
				placement[j] = i
				break
			}
		}
	}
	return placement
}
