package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/c360studio/coursegen/content"
)

// Prompt is the system/user text sent for one request.
type Prompt struct {
	System string
	User   string
}

// Combined joins system and user text for hosts that take a single input string.
func (p Prompt) Combined() string {
	if p.System == "" {
		return p.User
	}
	return p.System + "\n\n" + p.User
}

const jsonOnly = "Respond with JSON only, no commentary."

// BuildPrompt renders the prompt for a request. Media and Q&A prompts are
// derived from the request's lesson text.
func BuildPrompt(req content.Request) Prompt {
	topic := req.Topic()

	switch req.Kind {
	case content.KindCourseStructure:
		var b strings.Builder
		fmt.Fprintf(&b, "Design a course titled %q", req.Title)
		if topic != req.Title {
			fmt.Fprintf(&b, " on %s", topic)
		}
		b.WriteString(".\n")
		if req.Description != "" {
			fmt.Fprintf(&b, "Course description: %s\n", req.Description)
		}
		b.WriteString(`Return {"title": string, "description": string, "modules": [{"title": string, "description": string, "lessons": [{"title": string, "description": string}]}]} with 2 to 6 modules of 2 to 5 lessons each.`)
		return Prompt{
			System: "You are an instructional designer. " + jsonOnly,
			User:   b.String(),
		}

	case content.KindLessonText:
		var b strings.Builder
		fmt.Fprintf(&b, "Write the lesson %q", req.Title)
		if req.ModuleTitle != "" {
			fmt.Fprintf(&b, " from the module %q", req.ModuleTitle)
		}
		if req.CourseTitle != "" {
			fmt.Fprintf(&b, " of the course %q", req.CourseTitle)
		}
		if req.Subject != "" {
			fmt.Fprintf(&b, " (subject: %s)", req.Subject)
		}
		b.WriteString(".\n")
		b.WriteString(`Return {"heading": string, "introduction": string, "points": [{"point": string, "description": string, "example": string}], "summary": string} with 3 to 5 points.`)
		return Prompt{
			System: "You are an experienced teacher writing clear, narration-ready lesson text. " + jsonOnly,
			User:   b.String(),
		}

	case content.KindLessonImage:
		return Prompt{User: fmt.Sprintf(
			"Clean educational illustration for a lesson titled %q about %s. %s No text in the image.",
			req.Title, topic, lessonGist(req.Lesson, 200))}

	case content.KindLessonVideo:
		return Prompt{User: fmt.Sprintf(
			"Short explanatory animation for the lesson %q about %s. %s",
			req.Title, topic, lessonGist(req.Lesson, 200))}

	case content.KindLessonQA:
		var b strings.Builder
		fmt.Fprintf(&b, "Write 3 to 5 review questions with answers for the lesson %q.\n", req.Title)
		if req.Lesson != nil {
			b.WriteString("Lesson content:\n")
			b.WriteString(lessonGist(req.Lesson, 2000))
			b.WriteString("\n")
		}
		b.WriteString(`Return [{"question": string, "answer": string}].`)
		return Prompt{
			System: "You are a teacher writing comprehension checks. " + jsonOnly,
			User:   b.String(),
		}
	}
	return Prompt{User: req.Title}
}

// lessonGist flattens lesson text into at most limit bytes of prompt context.
func lessonGist(l *content.LessonText, limit int) string {
	if l == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(l.Heading)
	if l.Introduction != "" {
		b.WriteString(". ")
		b.WriteString(l.Introduction)
	}
	for _, p := range l.Points {
		b.WriteString(" ")
		b.WriteString(p.Point)
		if p.Description != "" {
			b.WriteString(": ")
			b.WriteString(p.Description)
		}
	}
	s := strings.TrimSpace(b.String())
	if len(s) > limit {
		for limit > 0 && !utf8.RuneStart(s[limit]) {
			limit--
		}
		s = strings.TrimSpace(s[:limit])
	}
	return s
}
