// Package content defines generation requests and the documents produced from them.
package content

import (
	"errors"
	"fmt"
	"strings"

	"github.com/c360studio/coursegen/model"
)

// ErrInvalidRequest is returned for malformed requests, before any upstream work starts.
var ErrInvalidRequest = errors.New("invalid generation request")

// Kind is what a request asks the model host to produce.
type Kind string

const (
	KindCourseStructure Kind = "course-structure"
	KindLessonText      Kind = "lesson-text"
	KindLessonImage     Kind = "lesson-image"
	KindLessonVideo     Kind = "lesson-video"
	KindLessonQA        Kind = "lesson-qa"
)

// Category returns the task category a kind is admitted and routed under.
func (k Kind) Category() model.Category {
	switch k {
	case KindCourseStructure:
		return model.CategoryStructure
	case KindLessonText:
		return model.CategoryText
	case KindLessonImage:
		return model.CategoryImage
	case KindLessonVideo:
		return model.CategoryVideo
	case KindLessonQA:
		return model.CategoryQA
	}
	return ""
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k.Category() != ""
}

// IsMedia reports whether the kind produces a media reference rather than text.
func (k Kind) IsMedia() bool {
	return k == KindLessonImage || k == KindLessonVideo
}

// Request describes one thing to generate. Requests are values; build a new
// one instead of modifying a shared one.
type Request struct {
	Kind Kind

	// Title is the course title for structure requests and the lesson title otherwise.
	Title string

	// CourseTitle and ModuleTitle place a lesson in its course.
	CourseTitle string
	ModuleTitle string

	// Description is the course description (structure requests).
	Description string

	// Subject is free-form subject context ("biology", "grade 9 science", ...).
	Subject string

	// Lesson is the already generated lesson body that media and Q&A prompts
	// are derived from. Nil for structure and lesson-text requests.
	Lesson *LessonText
}

// Category returns the task category for the request.
func (r Request) Category() model.Category {
	return r.Kind.Category()
}

// Validate checks the request before any admission is attempted.
func (r Request) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, r.Kind)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	if len(r.Title) > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidRequest, MaxTitleLength)
	}
	return nil
}

// MaxTitleLength bounds titles accepted from callers.
const MaxTitleLength = 300

// Topic returns the best available human-readable subject for prompts and
// fallback text: the explicit subject, else the module or course title, else the title.
func (r Request) Topic() string {
	for _, s := range []string{r.Subject, r.ModuleTitle, r.CourseTitle} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return strings.TrimSpace(r.Title)
}

// LessonRequest is the caller-facing input for one lesson.
type LessonRequest struct {
	Title       string
	ModuleTitle string
	CourseTitle string
	Subject     string
}

// TextRequest builds the lesson-text request for a lesson.
func (l LessonRequest) TextRequest() Request {
	return Request{
		Kind:        KindLessonText,
		Title:       l.Title,
		ModuleTitle: l.ModuleTitle,
		CourseTitle: l.CourseTitle,
		Subject:     l.Subject,
	}
}

// MediaRequest builds a request of the given kind that depends on lesson text.
func (l LessonRequest) MediaRequest(kind Kind, text *LessonText) Request {
	req := l.TextRequest()
	req.Kind = kind
	req.Lesson = text
	return req
}

// Validate checks the lesson request.
func (l LessonRequest) Validate() error {
	return l.TextRequest().Validate()
}

// CourseRequest is the caller-facing input for a course outline.
type CourseRequest struct {
	Title       string
	Description string
	Subject     string
}

// StructureRequest builds the course-structure request.
func (c CourseRequest) StructureRequest() Request {
	return Request{
		Kind:        KindCourseStructure,
		Title:       c.Title,
		Description: c.Description,
		Subject:     c.Subject,
	}
}

// Validate checks the course request.
func (c CourseRequest) Validate() error {
	return c.StructureRequest().Validate()
}
