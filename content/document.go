package content

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provenance marks whether a field was generated live or synthesized offline.
type Provenance string

const (
	ProvenanceGenerated Provenance = "generated"
	ProvenanceFallback  Provenance = "fallback"
)

// Point is one teaching point of a lesson.
type Point struct {
	Point       string `json:"point"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

// LessonText is the textual body of a lesson, produced by a lesson-text request.
type LessonText struct {
	Heading      string  `json:"heading"`
	Introduction string  `json:"introduction"`
	Points       []Point `json:"points"`
	Summary      string  `json:"summary"`
}

// MediaRef points at an image or video. URL is either a remote URL or a data: URI.
type MediaRef struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Caption  string `json:"caption,omitempty"`
	// Placeholder is set when the reference is a stand-in rather than real media.
	Placeholder bool `json:"placeholder,omitempty"`
}

// QAPair is one question with its answer.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// LessonProvenance tags every LessonDocument field.
type LessonProvenance struct {
	Heading      Provenance `json:"heading"`
	Introduction Provenance `json:"introduction"`
	Points       Provenance `json:"points"`
	Summary      Provenance `json:"summary"`
	Image        Provenance `json:"image"`
	Video        Provenance `json:"video"`
	QA           Provenance `json:"qa"`
}

// SetText tags all fields that come from the lesson-text request.
func (p *LessonProvenance) SetText(v Provenance) {
	p.Heading = v
	p.Introduction = v
	p.Points = v
	p.Summary = v
}

// Fields returns provenance by field name in document order.
func (p LessonProvenance) Fields() []FieldProvenance {
	return []FieldProvenance{
		{"heading", p.Heading},
		{"introduction", p.Introduction},
		{"points", p.Points},
		{"image", p.Image},
		{"video", p.Video},
		{"qa", p.QA},
		{"summary", p.Summary},
	}
}

// FieldProvenance names one field and its provenance.
type FieldProvenance struct {
	Field      string
	Provenance Provenance
}

// LessonDocument is a finished lesson. Every field is populated: when
// generation fails the field holds fallback content. Documents are not
// modified after creation; regenerating produces a new document.
type LessonDocument struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ModuleTitle string `json:"module_title,omitempty"`
	CourseTitle string `json:"course_title,omitempty"`

	Heading      string   `json:"heading"`
	Introduction string   `json:"introduction"`
	Points       []Point  `json:"points"`
	Image        MediaRef `json:"image"`
	Video        MediaRef `json:"video"`
	QA           []QAPair `json:"qa"`
	Summary      string   `json:"summary"`

	Provenance LessonProvenance `json:"provenance"`
	CreatedAt  time.Time        `json:"created_at"`
}

// FallbackFields lists the fields that hold fallback content.
func (d *LessonDocument) FallbackFields() []string {
	var out []string
	for _, f := range d.Provenance.Fields() {
		if f.Provenance == ProvenanceFallback {
			out = append(out, f.Field)
		}
	}
	return out
}

// Degraded reports whether any field holds fallback content.
func (d *LessonDocument) Degraded() bool {
	return len(d.FallbackFields()) > 0
}

// Complete checks that every field is populated and tagged.
func (d *LessonDocument) Complete() error {
	var errs []error
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is empty", name))
		}
	}
	check("id", d.ID)
	check("heading", d.Heading)
	check("introduction", d.Introduction)
	check("summary", d.Summary)
	check("image.url", d.Image.URL)
	check("video.url", d.Video.URL)
	if len(d.Points) == 0 {
		errs = append(errs, errors.New("points is empty"))
	}
	for i, p := range d.Points {
		check(fmt.Sprintf("points[%d].point", i), p.Point)
		check(fmt.Sprintf("points[%d].description", i), p.Description)
		check(fmt.Sprintf("points[%d].example", i), p.Example)
	}
	if len(d.QA) == 0 {
		errs = append(errs, errors.New("qa is empty"))
	}
	for i, qa := range d.QA {
		check(fmt.Sprintf("qa[%d].question", i), qa.Question)
		check(fmt.Sprintf("qa[%d].answer", i), qa.Answer)
	}
	for _, f := range d.Provenance.Fields() {
		if f.Provenance != ProvenanceGenerated && f.Provenance != ProvenanceFallback {
			errs = append(errs, fmt.Errorf("%s has no provenance", f.Field))
		}
	}
	return errors.Join(errs...)
}

// LessonOutline is a lesson entry in a course outline.
type LessonOutline struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ModuleOutline is a module entry in a course outline.
type ModuleOutline struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Lessons     []LessonOutline `json:"lessons"`
}

// OutlineDocument is a course structure: modules with their lesson titles.
type OutlineDocument struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Subject     string          `json:"subject,omitempty"`
	Modules     []ModuleOutline `json:"modules"`
	Provenance  Provenance      `json:"provenance"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Complete checks that the outline has modules, each with lessons.
func (o *OutlineDocument) Complete() error {
	var errs []error
	if strings.TrimSpace(o.Title) == "" {
		errs = append(errs, errors.New("title is empty"))
	}
	if len(o.Modules) == 0 {
		errs = append(errs, errors.New("modules is empty"))
	}
	for i, m := range o.Modules {
		if strings.TrimSpace(m.Title) == "" {
			errs = append(errs, fmt.Errorf("modules[%d].title is empty", i))
		}
		if len(m.Lessons) == 0 {
			errs = append(errs, fmt.Errorf("modules[%d].lessons is empty", i))
		}
		for j, l := range m.Lessons {
			if strings.TrimSpace(l.Title) == "" {
				errs = append(errs, fmt.Errorf("modules[%d].lessons[%d].title is empty", i, j))
			}
		}
	}
	if o.Provenance != ProvenanceGenerated && o.Provenance != ProvenanceFallback {
		errs = append(errs, errors.New("outline has no provenance"))
	}
	return errors.Join(errs...)
}

// Output is the normalized content of one successful generation.
// Exactly one of Outline, Lesson, Media, or QA is set, matching Kind.
type Output struct {
	Kind    Kind
	Outline *OutlineDocument
	Lesson  *LessonText
	Media   *MediaRef
	QA      []QAPair

	// CredentialIndex is the pool index of the credential that produced it,
	// or -1 for fallback content.
	CredentialIndex int

	// Model is the upstream model id, if known.
	Model string
}

// Course is a finished outline with the lessons generated for it, in module
// then lesson order.
type Course struct {
	Outline *OutlineDocument  `json:"outline"`
	Lessons []*LessonDocument `json:"lessons"`
	// LessonModules holds, for each lesson, the index of its module in
	// Outline.Modules. Module titles are not unique, so this is what ties a
	// lesson to its module.
	LessonModules []int `json:"lesson_modules,omitempty"`
}

// AddLesson appends l as a lesson of module index module.
func (c *Course) AddLesson(module int, l *LessonDocument) {
	c.Lessons = append(c.Lessons, l)
	c.LessonModules = append(c.LessonModules, module)
}

// ModuleOf returns the module index of lesson i, or -1 if it is unknown.
func (c *Course) ModuleOf(i int) int {
	if len(c.LessonModules) != len(c.Lessons) || i < 0 || i >= len(c.LessonModules) {
		return -1
	}
	if m := c.LessonModules[i]; c.Outline != nil && m >= 0 && m < len(c.Outline.Modules) {
		return m
	}
	return -1
}

// Degraded reports whether the outline or any lesson holds fallback content.
func (c *Course) Degraded() bool {
	if c.Outline != nil && c.Outline.Provenance == ProvenanceFallback {
		return true
	}
	for _, l := range c.Lessons {
		if l.Degraded() {
			return true
		}
	}
	return false
}
