// Package orchestrator turns lesson and course requests into complete
// documents. Each field is generated under the admission gate with
// credential rotation, and any field that cannot be generated is filled with
// fallback content, so callers always receive a complete document.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/coursegen/content"
	"github.com/c360studio/coursegen/fallback"
	"github.com/c360studio/coursegen/gate"
	"github.com/c360studio/coursegen/llm"
	"github.com/c360studio/coursegen/model"
)

// Generator produces content for a request, rotating credentials as needed.
// *llm.Rotator implements it.
type Generator interface {
	InvokeWithRotation(ctx context.Context, req content.Request) (*content.Output, error)
}

// FallbackObserver is notified whenever fallback content replaces a field.
type FallbackObserver interface {
	ObserveFallback(cat model.Category, err error)
}

// Pipeline generates lessons and course outlines.
type Pipeline struct {
	admitter  gate.Admitter
	generator Generator
	logger    *slog.Logger
	observer  FallbackObserver
	now       func() time.Time
	newID     func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithFallbackObserver sets an observer for fallback substitutions.
func WithFallbackObserver(o FallbackObserver) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// WithClock sets the time source for document timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithIDGenerator sets the document ID source.
func WithIDGenerator(newID func() string) Option {
	return func(p *Pipeline) {
		p.newID = newID
	}
}

// New creates a pipeline.
func New(admitter gate.Admitter, generator Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		admitter:  admitter,
		generator: generator,
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// stepResult is the terminal state of one field-level sub-task.
type stepResult struct {
	out        *content.Output
	provenance content.Provenance
	// cause is the failure that led to fallback content, nil when generated.
	cause error
}

// step runs one request under admission and rotation and substitutes
// fallback content on any failure, including a busy category.
func (p *Pipeline) step(ctx context.Context, req content.Request) stepResult {
	cat := req.Category()

	var out *content.Output
	err := gate.Do(ctx, p.admitter, cat, func(ctx context.Context) error {
		o, err := p.generator.InvokeWithRotation(ctx, req)
		if err != nil {
			return err
		}
		out = o
		return nil
	})

	if out != nil && usable(out, req.Kind) {
		if err != nil {
			p.logger.Warn("Admission release failed", "category", cat, "error", err)
		}
		return stepResult{out: out, provenance: content.ProvenanceGenerated}
	}
	if err == nil {
		err = &llm.Failure{Reason: llm.ReasonUpstream, Err: llm.ErrNoContent}
	}

	reason := string(llm.ReasonOf(err))
	if gate.IsBusy(err) {
		reason = "busy"
	}
	p.logger.Warn("Using fallback content",
		"category", cat,
		"kind", req.Kind,
		"reason", reason,
		"error", err)
	if p.observer != nil {
		p.observer.ObserveFallback(cat, err)
	}

	return stepResult{
		out:        fallback.Synthesize(req),
		provenance: content.ProvenanceFallback,
		cause:      err,
	}
}

// usable reports whether out carries the content kind asks for.
func usable(out *content.Output, kind content.Kind) bool {
	switch kind {
	case content.KindCourseStructure:
		return out.Outline != nil && len(out.Outline.Modules) > 0
	case content.KindLessonText:
		l := out.Lesson
		return l != nil && l.Heading != "" && l.Introduction != "" && l.Summary != "" && len(l.Points) > 0
	case content.KindLessonImage, content.KindLessonVideo:
		return out.Media != nil && out.Media.URL != ""
	case content.KindLessonQA:
		return len(out.QA) > 0
	}
	return false
}

// fanOut runs independent requests concurrently and waits for every one to
// reach a terminal state. Results are in request order. A failing request
// never cancels the others because step never fails.
func (p *Pipeline) fanOut(ctx context.Context, reqs []content.Request) []stepResult {
	results := make([]stepResult, len(reqs))

	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = p.step(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// mediaKinds are generated concurrently once lesson text is ready.
var mediaKinds = []content.Kind{
	content.KindLessonImage,
	content.KindLessonVideo,
	content.KindLessonQA,
}

// GenerateLesson produces a complete lesson document. Lesson text is
// generated first and is used to build the image, video, and Q&A prompts,
// which then run concurrently. The only error is content.ErrInvalidRequest,
// returned before any admission is attempted.
//
// Work continues if ctx is cancelled: tickets are released normally and
// each upstream attempt is still bounded by its own timeout.
func (p *Pipeline) GenerateLesson(ctx context.Context, req content.LessonRequest) (*content.LessonDocument, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	started := p.now()

	text := p.step(ctx, req.TextRequest())
	lesson := text.out.Lesson

	reqs := make([]content.Request, len(mediaKinds))
	for i, kind := range mediaKinds {
		reqs[i] = req.MediaRequest(kind, lesson)
	}
	media := p.fanOut(ctx, reqs)

	doc := &content.LessonDocument{
		ID:           p.newID(),
		Title:        req.Title,
		ModuleTitle:  req.ModuleTitle,
		CourseTitle:  req.CourseTitle,
		Heading:      lesson.Heading,
		Introduction: lesson.Introduction,
		Points:       lesson.Points,
		Summary:      lesson.Summary,
		CreatedAt:    p.now(),
	}
	doc.Provenance.SetText(text.provenance)

	for i, kind := range mediaKinds {
		res := media[i]
		switch kind {
		case content.KindLessonImage:
			doc.Image = *res.out.Media
			doc.Provenance.Image = res.provenance
		case content.KindLessonVideo:
			doc.Video = *res.out.Media
			doc.Provenance.Video = res.provenance
		case content.KindLessonQA:
			doc.QA = res.out.QA
			doc.Provenance.QA = res.provenance
		}
	}

	p.logger.Info("Lesson generated",
		"lesson_id", doc.ID,
		"title", doc.Title,
		"degraded", doc.Degraded(),
		"fallback_fields", doc.FallbackFields(),
		"duration", p.now().Sub(started))

	return doc, nil
}

// GenerateCourseStructure produces a course outline, falling back to a
// synthesized two-module outline when generation fails. The only error is
// content.ErrInvalidRequest.
func (p *Pipeline) GenerateCourseStructure(ctx context.Context, req content.CourseRequest) (*content.OutlineDocument, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	res := p.step(ctx, req.StructureRequest())

	outline := *res.out.Outline
	outline.ID = p.newID()
	outline.Provenance = res.provenance
	outline.CreatedAt = p.now()
	if outline.Title == "" {
		outline.Title = req.Title
	}
	if outline.Subject == "" {
		outline.Subject = req.Subject
	}

	p.logger.Info("Course structure generated",
		"course_id", outline.ID,
		"title", outline.Title,
		"modules", len(outline.Modules),
		"provenance", outline.Provenance)

	return &outline, nil
}
