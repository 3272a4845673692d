package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/coursegen/content"
)

func TestNormalize_MinimumLength(t *testing.T) {
	n := newNormalizer(0)
	req := content.LessonRequest{Title: "T"}.TextRequest()

	_, err := n.normalize(req, &Payload{Text: "   short   "})
	assert.ErrorIs(t, err, ErrNoContent)

	_, err = n.normalize(req, nil)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestNormalize_MinimumLengthCountsCharacters(t *testing.T) {
	n := newNormalizer(0)
	req := content.LessonRequest{Title: "細胞"}.TextRequest()

	// 10 characters, 30 bytes.
	_, err := n.normalize(req, &Payload{Text: "細胞は生命の単位です"})
	require.ErrorIs(t, err, ErrNoContent)
	assert.Contains(t, err.Error(), "10 characters")
}

func TestNormalize_LessonTextAliasesAndHTML(t *testing.T) {
	n := newNormalizer(0)
	req := content.LessonRequest{Title: "Cells"}.TextRequest()

	text := `{
		"title": "Cells",
		"introduction": "<p>Cells are the <strong>unit</strong> of life.</p>",
		"points": [{"title": "Membrane", "description": "Encloses the cell.", "example": "A soap bubble."}],
		"summary": "Everything living is made of cells."
	}`

	out, err := n.normalize(req, &Payload{Text: text})
	require.NoError(t, err)
	require.NotNil(t, out.Lesson)
	assert.Equal(t, "Cells", out.Lesson.Heading)
	assert.Equal(t, "Cells are the **unit** of life.", out.Lesson.Introduction)
	require.Len(t, out.Lesson.Points, 1)
	assert.Equal(t, "Membrane", out.Lesson.Points[0].Point)
}

func TestNormalize_LessonTextIncomplete(t *testing.T) {
	n := newNormalizer(0)
	req := content.LessonRequest{Title: "Cells"}.TextRequest()

	tests := []struct {
		name string
		text string
	}{
		{name: "not JSON", text: "Cells are small and there is a lot to say about them."},
		{name: "missing summary", text: `{"heading":"H","introduction":"I","points":[{"point":"p","description":"d","example":"e"}]}`},
		{name: "no complete points", text: `{"heading":"H","introduction":"I","summary":"S","points":[{"point":"p"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.normalize(req, &Payload{Text: tt.text})
			assert.ErrorIs(t, err, ErrNoContent)
		})
	}
}

func TestNormalize_OutlineModuleArray(t *testing.T) {
	n := newNormalizer(0)
	req := content.CourseRequest{Title: "Botany", Description: "Plants"}.StructureRequest()

	text := `[{"title":"Roots","lessons":["Water uptake"]},{"title":"Stems","lessons":[{"title":"Transport"}]}]`

	out, err := n.normalize(req, &Payload{Text: text})
	require.NoError(t, err)
	require.NotNil(t, out.Outline)
	assert.Equal(t, "Botany", out.Outline.Title)
	assert.Equal(t, "Plants", out.Outline.Description)
	require.Len(t, out.Outline.Modules, 2)
	assert.Equal(t, "Transport", out.Outline.Modules[1].Lessons[0].Title)
}

func TestNormalize_OutlineAfterBracketedProse(t *testing.T) {
	n := newNormalizer(0)
	req := content.CourseRequest{Title: "Botany"}.StructureRequest()

	text := `Outline [draft 2]: {"title":"Plant Biology","modules":[{"title":"Leaves","lessons":["Stomata"]}]} Hope this helps!`

	out, err := n.normalize(req, &Payload{Text: text})
	require.NoError(t, err)
	assert.Equal(t, "Plant Biology", out.Outline.Title)
	require.Len(t, out.Outline.Modules, 1)
	assert.Equal(t, "Stomata", out.Outline.Modules[0].Lessons[0].Title)
}

func TestNormalize_OutlineWithoutModules(t *testing.T) {
	n := newNormalizer(0)
	req := content.CourseRequest{Title: "Botany"}.StructureRequest()

	_, err := n.normalize(req, &Payload{Text: `{"title":"Botany","modules":[]}`})
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestNormalize_QAShapes(t *testing.T) {
	n := newNormalizer(0)
	req := content.LessonRequest{Title: "Cells"}.MediaRequest(content.KindLessonQA, nil)

	for _, text := range []string{
		`[{"question":"What is a cell?","answer":"The unit of life."}]`,
		`{"questions":[{"question":"What is a cell?","answer":"The unit of life."}]}`,
		`{"qa":[{"question":"What is a cell?","answer":"The unit of life."},{"question":"","answer":"orphan"}]}`,
	} {
		out, err := n.normalize(req, &Payload{Text: text})
		require.NoError(t, err, text)
		require.Len(t, out.QA, 1, text)
		assert.Equal(t, "What is a cell?", out.QA[0].Question)
	}
}

func TestNormalize_QAAfterLeadingObject(t *testing.T) {
	n := newNormalizer(0)
	req := content.LessonRequest{Title: "Cells"}.MediaRequest(content.KindLessonQA, nil)

	out, err := n.normalize(req, &Payload{Text: `Here you go: {"count": 1}
[{"question":"What is a cell?","answer":"The unit of life."}]`})
	require.NoError(t, err)
	require.Len(t, out.QA, 1)
	assert.Equal(t, "The unit of life.", out.QA[0].Answer)
}

func TestNormalize_Media(t *testing.T) {
	n := newNormalizer(0)
	req := content.LessonRequest{Title: "Leaf"}.MediaRequest(content.KindLessonImage, nil)

	t.Run("url", func(t *testing.T) {
		out, err := n.normalize(req, &Payload{URL: "https://cdn.test/leaf.png", MimeType: "image/png"})
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.test/leaf.png", out.Media.URL)
		assert.Equal(t, "Leaf", out.Media.Caption)
	})

	t.Run("url in text", func(t *testing.T) {
		out, err := n.normalize(req, &Payload{Text: `Your image: "https://cdn.test/leaf.png".`})
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.test/leaf.png", out.Media.URL)
	})

	t.Run("inline bytes sniffed", func(t *testing.T) {
		data := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 100)...)
		out, err := n.normalize(req, &Payload{Data: data})
		require.NoError(t, err)
		assert.Equal(t, "image/png", out.Media.MimeType)
		assert.True(t, strings.HasPrefix(out.Media.URL, "data:image/png;base64,"))
	})

	t.Run("tiny payload rejected", func(t *testing.T) {
		_, err := n.normalize(req, &Payload{Data: []byte("x")})
		assert.ErrorIs(t, err, ErrNoContent)
	})

	t.Run("nothing usable", func(t *testing.T) {
		_, err := n.normalize(req, &Payload{Text: "I cannot draw that."})
		assert.ErrorIs(t, err, ErrNoContent)
	})
}

func TestLooksLikeHTML(t *testing.T) {
	assert.True(t, looksLikeHTML("<p>hi</p>"))
	assert.True(t, looksLikeHTML("a <br/> b"))
	assert.False(t, looksLikeHTML("plain text"))
	assert.False(t, looksLikeHTML("3 < 4"))
}
