package llm

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"

	"github.com/c360studio/coursegen/content"
)

const (
	// DefaultMinContentLength is the shortest text output accepted as content.
	DefaultMinContentLength = 20

	// minMediaBytes is the smallest inline media payload accepted.
	minMediaBytes = 64
)

// normalizer turns provider payloads into typed content for a request kind.
type normalizer struct {
	converter *md.Converter
	minLength int
}

func newNormalizer(minLength int) *normalizer {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	if minLength <= 0 {
		minLength = DefaultMinContentLength
	}
	return &normalizer{converter: converter, minLength: minLength}
}

// normalize maps a payload to content. Empty, too short, or unparseable
// output is an ErrNoContent failure, never a success with empty content.
func (n *normalizer) normalize(req content.Request, p *Payload) (*content.Output, error) {
	if p == nil {
		return nil, ErrNoContent
	}
	out := &content.Output{Kind: req.Kind, Model: p.Model}

	if req.Kind.IsMedia() {
		ref, err := n.media(req, p)
		if err != nil {
			return nil, err
		}
		out.Media = ref
		return out, nil
	}

	text := strings.TrimSpace(p.Text)
	if chars := utf8.RuneCountInString(text); chars < n.minLength {
		return nil, fmt.Errorf("%w: %d characters", ErrNoContent, chars)
	}

	switch req.Kind {
	case content.KindCourseStructure:
		outline, err := n.outline(req, text)
		if err != nil {
			return nil, err
		}
		out.Outline = outline
	case content.KindLessonText:
		lesson, err := n.lessonText(text)
		if err != nil {
			return nil, err
		}
		out.Lesson = lesson
	case content.KindLessonQA:
		qa, err := n.qa(text)
		if err != nil {
			return nil, err
		}
		out.QA = qa
	default:
		return nil, NewFatalError(fmt.Errorf("%w: %s", ErrUnsupportedKind, req.Kind))
	}
	return out, nil
}

type rawLesson struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UnmarshalJSON accepts either a bare title string or an object.
func (l *rawLesson) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &l.Title)
	}
	type plain rawLesson
	return json.Unmarshal(b, (*plain)(l))
}

type rawModule struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Lessons     []rawLesson `json:"lessons"`
}

type rawOutline struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Modules     []rawModule `json:"modules"`
}

func (n *normalizer) outline(req content.Request, text string) (*content.OutlineDocument, error) {
	var raw rawOutline
	if v := ExtractJSON(text); strings.HasPrefix(v, "[") {
		// Some hosts return the module list alone.
		_ = json.Unmarshal([]byte(v), &raw.Modules)
	} else if v != "" {
		_ = json.Unmarshal([]byte(v), &raw)
	}

	doc := &content.OutlineDocument{
		Title:       firstNonEmpty(n.clean(raw.Title), req.Title),
		Description: firstNonEmpty(n.clean(raw.Description), req.Description),
		Subject:     req.Subject,
	}
	for _, m := range raw.Modules {
		mod := content.ModuleOutline{
			Title:       n.clean(m.Title),
			Description: n.clean(m.Description),
		}
		for _, l := range m.Lessons {
			if title := n.clean(l.Title); title != "" {
				mod.Lessons = append(mod.Lessons, content.LessonOutline{
					Title:       title,
					Description: n.clean(l.Description),
				})
			}
		}
		if mod.Title != "" && len(mod.Lessons) > 0 {
			doc.Modules = append(doc.Modules, mod)
		}
	}
	if len(doc.Modules) == 0 {
		return nil, fmt.Errorf("%w: no modules with lessons in outline", ErrNoContent)
	}
	return doc, nil
}

type rawPoint struct {
	Point       string `json:"point"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

type rawLessonText struct {
	Heading      string     `json:"heading"`
	Title        string     `json:"title"`
	Introduction string     `json:"introduction"`
	Points       []rawPoint `json:"points"`
	Summary      string     `json:"summary"`
}

func (n *normalizer) lessonText(text string) (*content.LessonText, error) {
	obj := ExtractJSONObject(text)
	if obj == "" {
		return nil, fmt.Errorf("%w: no JSON object in lesson text", ErrNoContent)
	}
	var raw rawLessonText
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("%w: parse lesson text: %v", ErrNoContent, err)
	}

	lesson := &content.LessonText{
		Heading:      n.clean(firstNonEmpty(raw.Heading, raw.Title)),
		Introduction: n.clean(raw.Introduction),
		Summary:      n.clean(raw.Summary),
	}
	for _, p := range raw.Points {
		pt := content.Point{
			Point:       n.clean(firstNonEmpty(p.Point, p.Title)),
			Description: n.clean(p.Description),
			Example:     n.clean(p.Example),
		}
		if pt.Point != "" && pt.Description != "" && pt.Example != "" {
			lesson.Points = append(lesson.Points, pt)
		}
	}

	switch {
	case lesson.Heading == "":
		return nil, fmt.Errorf("%w: lesson has no heading", ErrNoContent)
	case lesson.Introduction == "":
		return nil, fmt.Errorf("%w: lesson has no introduction", ErrNoContent)
	case lesson.Summary == "":
		return nil, fmt.Errorf("%w: lesson has no summary", ErrNoContent)
	case len(lesson.Points) == 0:
		return nil, fmt.Errorf("%w: lesson has no complete points", ErrNoContent)
	}
	return lesson, nil
}

func (n *normalizer) qa(text string) ([]content.QAPair, error) {
	var raw []content.QAPair
	if v := ExtractJSON(text); strings.HasPrefix(v, "[") {
		_ = json.Unmarshal([]byte(v), &raw)
	} else if v != "" {
		var wrapped struct {
			Questions []content.QAPair `json:"questions"`
			QA        []content.QAPair `json:"qa"`
		}
		_ = json.Unmarshal([]byte(v), &wrapped)
		raw = append(wrapped.Questions, wrapped.QA...)
	}
	if len(raw) == 0 {
		// The list can follow an unrelated object, such as a count.
		if v := ExtractJSONArray(text); v != "" {
			_ = json.Unmarshal([]byte(v), &raw)
		}
	}

	var pairs []content.QAPair
	for _, p := range raw {
		pair := content.QAPair{Question: n.clean(p.Question), Answer: n.clean(p.Answer)}
		if pair.Question != "" && pair.Answer != "" {
			pairs = append(pairs, pair)
		}
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no complete question/answer pairs", ErrNoContent)
	}
	return pairs, nil
}

func (n *normalizer) media(req content.Request, p *Payload) (*content.MediaRef, error) {
	ref := &content.MediaRef{Caption: req.Title, MimeType: p.MimeType}

	switch {
	case len(p.Data) > 0:
		if len(p.Data) < minMediaBytes {
			return nil, fmt.Errorf("%w: %d byte media payload", ErrNoContent, len(p.Data))
		}
		if ref.MimeType == "" {
			ref.MimeType = http.DetectContentType(p.Data)
		}
		ref.URL = "data:" + ref.MimeType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
	case isHTTPURL(p.URL):
		ref.URL = p.URL
	default:
		u := findURL(p.Text)
		if u == "" {
			return nil, fmt.Errorf("%w: no media in response", ErrNoContent)
		}
		ref.URL = u
	}
	return ref, nil
}

// clean trims text and converts HTML fragments to markdown.
func (n *normalizer) clean(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !looksLikeHTML(s) {
		return s
	}
	converted, err := n.converter.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(converted)
}

// looksLikeHTML reports whether s contains at least one HTML element.
func looksLikeHTML(s string) bool {
	if !strings.Contains(s, "<") {
		return false
	}
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			return true
		}
	}
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// findURL returns the first http(s) URL found in free text.
func findURL(s string) string {
	for _, field := range strings.Fields(s) {
		field = strings.Trim(field, `"'<>(),.;`)
		if isHTTPURL(field) {
			return field
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
