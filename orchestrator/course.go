package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/c360studio/coursegen/aggregator"
	"github.com/c360studio/coursegen/content"
)

// BuildCourse generates an outline and then every lesson in it, one lesson
// at a time, and hands the result to sink. Lessons run sequentially because
// the text category admits a single request at a time.
//
// The course is always returned for a valid request. A sink error is
// returned alongside it and has no effect on what was generated. sink may
// be nil.
func (p *Pipeline) BuildCourse(ctx context.Context, req content.CourseRequest, sink aggregator.Sink) (*content.Course, error) {
	outline, err := p.GenerateCourseStructure(ctx, req)
	if err != nil {
		return nil, err
	}

	course := &content.Course{Outline: outline}
	for mi, m := range outline.Modules {
		for _, l := range m.Lessons {
			doc, err := p.GenerateLesson(ctx, content.LessonRequest{
				Title:       clampTitle(l.Title),
				ModuleTitle: m.Title,
				CourseTitle: outline.Title,
				Subject:     req.Subject,
			})
			if err != nil {
				// Outline lesson titles are never blank, so this is unexpected.
				p.logger.Warn("Skipping lesson", "module", m.Title, "lesson", l.Title, "error", err)
				continue
			}
			course.AddLesson(mi, doc)
		}
	}

	p.logger.Info("Course built",
		"course_id", outline.ID,
		"lessons", len(course.Lessons),
		"degraded", course.Degraded())

	if sink == nil {
		return course, nil
	}
	if err := sink.Persist(ctx, course); err != nil {
		return course, fmt.Errorf("persist course %s: %w", outline.ID, err)
	}
	return course, nil
}

// clampTitle keeps generated titles within request limits.
func clampTitle(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= content.MaxTitleLength {
		return s
	}
	cut := content.MaxTitleLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
