// Package fallback synthesizes content offline when live generation is
// unavailable. Everything here is deterministic: the same request always
// produces the same content, and nothing touches the network.
package fallback

import (
	"encoding/base64"
	"fmt"
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/c360studio/coursegen/content"
)

// CredentialIndex marks outputs that did not come from a credential.
const CredentialIndex = -1

// maxCaptionRunes keeps placeholder artwork legible for long titles.
const maxCaptionRunes = 48

// Synthesize returns complete content for req. It is total: every kind yields
// a value that satisfies the same shape checks as generated content.
func Synthesize(req content.Request) *content.Output {
	out := &content.Output{Kind: req.Kind, CredentialIndex: CredentialIndex}

	switch req.Kind {
	case content.KindCourseStructure:
		out.Outline = Outline(req)
	case content.KindLessonImage:
		out.Media = Image(req)
	case content.KindLessonVideo:
		out.Media = Video(req)
	case content.KindLessonQA:
		out.QA = QA(req)
	default:
		// Unknown kinds still get text so callers never see an empty output.
		out.Kind = content.KindLessonText
		out.Lesson = LessonText(req)
	}
	return out
}

func title(req content.Request) string {
	if t := strings.TrimSpace(req.Title); t != "" {
		return t
	}
	return "This Topic"
}

// Outline returns a two-module course outline built around the title.
func Outline(req content.Request) *content.OutlineDocument {
	t := title(req)
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		desc = fmt.Sprintf("A structured introduction to %s, from core ideas to practical use.", t)
	}

	return &content.OutlineDocument{
		Title:       t,
		Description: desc,
		Subject:     req.Subject,
		Modules: []content.ModuleOutline{
			{
				Title:       "Introduction to " + t,
				Description: fmt.Sprintf("The vocabulary and core ideas behind %s.", t),
				Lessons: []content.LessonOutline{
					{Title: "What Is " + t + "?", Description: "Definitions and scope."},
					{Title: "Key Concepts of " + t, Description: "The ideas everything else builds on."},
					{Title: "Why " + t + " Matters", Description: "Where it shows up and why it is worth learning."},
				},
			},
			{
				Title:       "Applying " + t,
				Description: fmt.Sprintf("Putting %s to work.", t),
				Lessons: []content.LessonOutline{
					{Title: t + " in Practice", Description: "Worked examples."},
					{Title: "Common Mistakes with " + t, Description: "Pitfalls and how to avoid them."},
					{Title: "Reviewing " + t, Description: "Summary and next steps."},
				},
			},
		},
	}
}

// LessonText returns a lesson body with three complete points.
func LessonText(req content.Request) *content.LessonText {
	t := title(req)
	where := ""
	switch {
	case req.ModuleTitle != "" && req.CourseTitle != "":
		where = fmt.Sprintf(" It is part of %q in the course %q.", req.ModuleTitle, req.CourseTitle)
	case req.ModuleTitle != "":
		where = fmt.Sprintf(" It is part of %q.", req.ModuleTitle)
	case req.CourseTitle != "":
		where = fmt.Sprintf(" It is part of the course %q.", req.CourseTitle)
	}

	return &content.LessonText{
		Heading:      t,
		Introduction: fmt.Sprintf("This lesson introduces %s and the ideas you need to work with it.%s", t, where),
		Points: []content.Point{
			{
				Point:       "Defining " + t,
				Description: fmt.Sprintf("Start with a clear definition of %s and the terms used to describe it.", t),
				Example:     fmt.Sprintf("Write a one-sentence definition of %s in your own words.", t),
			},
			{
				Point:       "How " + t + " Works",
				Description: fmt.Sprintf("Break %s into its parts and follow how they fit together.", t),
				Example:     fmt.Sprintf("Sketch a diagram that shows the main steps of %s.", t),
			},
			{
				Point:       t + " in Context",
				Description: fmt.Sprintf("Connect %s to situations where it applies.", t),
				Example:     fmt.Sprintf("List two everyday situations where %s plays a role.", t),
			},
		},
		Summary: fmt.Sprintf("You now have a working definition of %s, an idea of how it works, and examples of where it applies.", t),
	}
}

// QA returns three review questions about the title.
func QA(req content.Request) []content.QAPair {
	t := title(req)
	pairs := []content.QAPair{
		{
			Question: fmt.Sprintf("What is %s?", t),
			Answer:   fmt.Sprintf("%s is the topic of this lesson; review the introduction for its definition.", t),
		},
		{
			Question: fmt.Sprintf("What are the main parts of %s?", t),
			Answer:   "The key points of this lesson describe each part and how they relate.",
		},
		{
			Question: fmt.Sprintf("Where can %s be applied?", t),
			Answer:   "See the examples given with each point for practical applications.",
		},
	}
	if req.Lesson != nil && len(req.Lesson.Points) > 0 {
		p := req.Lesson.Points[0]
		if p.Point != "" && p.Description != "" {
			pairs[1] = content.QAPair{
				Question: fmt.Sprintf("What does %q mean in the context of %s?", p.Point, t),
				Answer:   p.Description,
			}
		}
	}
	return pairs
}

// Image returns an inline SVG card captioned with the title.
func Image(req content.Request) *content.MediaRef {
	t := title(req)
	return &content.MediaRef{
		URL:         svgDataURI(t, "#2f6f4f"),
		MimeType:    "image/svg+xml",
		Caption:     t,
		Placeholder: true,
	}
}

// Video returns a search link for the title in place of a generated clip.
func Video(req content.Request) *content.MediaRef {
	t := title(req)
	query := t
	if req.CourseTitle != "" && req.CourseTitle != t {
		query = t + " " + req.CourseTitle
	}
	return &content.MediaRef{
		URL:         "https://www.youtube.com/results?search_query=" + url.QueryEscape(query+" explained"),
		MimeType:    "text/html",
		Caption:     "Videos about " + t,
		Placeholder: true,
	}
}

func svgDataURI(caption, color string) string {
	caption = truncateRunes(caption, maxCaptionRunes)
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="640" height="360" viewBox="0 0 640 360">`+
		`<rect width="640" height="360" fill="%s"/>`+
		`<text x="320" y="190" font-family="sans-serif" font-size="28" fill="#ffffff" text-anchor="middle">%s</text>`+
		`</svg>`, color, html.EscapeString(caption))
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}
