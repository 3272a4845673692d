package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/coursegen/aggregator"
	"github.com/c360studio/coursegen/config"
	"github.com/c360studio/coursegen/content"
	"github.com/c360studio/coursegen/model"
	"github.com/c360studio/coursegen/storage"
)

var hostFixtures = map[string]string{
	"mock-structure": `{"title":"Botany","modules":[{"title":"Plants","lessons":[{"title":"Photosynthesis"}]}]}`,
	"mock-text": `{"heading":"Photosynthesis","introduction":"Plants turn light into sugar.",` +
		`"points":[{"point":"Light","description":"Chlorophyll absorbs light.","example":"Leaves are green."}],` +
		`"summary":"Light becomes chemical energy."}`,
	"mock-image": "Your image is ready: https://media.test/leaf.png",
	"mock-video": "Watch it at https://media.test/leaf.mp4",
	"mock-qa":    `[{"question":"What do plants absorb?","answer":"Light, water, and carbon dioxide."}]`,
}

// modelHost serves huggingface-style inference at /models/{model}, keyed by
// model name. Requests with a key listed in badKeys are rejected with 401.
func modelHost(t *testing.T, status int, badKeys ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		for _, k := range badKeys {
			if r.Header.Get("Authorization") == "Bearer "+k {
				http.Error(w, "invalid key", http.StatusUnauthorized)
				return
			}
		}
		if status != http.StatusOK {
			http.Error(w, "unavailable", status)
			return
		}

		text, ok := hostFixtures[strings.TrimPrefix(r.URL.Path, "/models/")]
		if !ok {
			http.Error(w, "unknown model", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]string{{"generated_text": text}})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func testConfig(url string, keys ...string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Host.Provider = "huggingface"
	cfg.Host.URL = url
	cfg.Host.Timeout = 2 * time.Second
	cfg.Host.Models = map[model.Category]string{
		model.CategoryStructure: "mock-structure",
		model.CategoryText:      "mock-text",
		model.CategoryImage:     "mock-image",
		model.CategoryVideo:     "mock-video",
		model.CategoryQA:        "mock-qa",
	}
	cfg.Retry.BackoffBase = time.Millisecond
	cfg.Retry.MaxBackoff = 5 * time.Millisecond
	cfg.Credentials = model.ParseKeyList(strings.Join(keys, ","))
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...AppOption) *App {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := NewApp(context.Background(), cfg, append([]AppOption{WithAppLogger(logger)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func TestApp_Lesson_Generated(t *testing.T) {
	server, calls := modelHost(t, http.StatusOK, "badkey")
	app := newTestApp(t, testConfig(server.URL, "badkey", "goodkey"))

	doc, err := app.Lesson(context.Background(), content.LessonRequest{
		Title:       "Photosynthesis",
		ModuleTitle: "Plants",
		CourseTitle: "Botany",
	})
	require.NoError(t, err)

	assert.False(t, doc.Degraded(), "fallback fields: %v", doc.FallbackFields())
	assert.Equal(t, "Photosynthesis", doc.Heading)
	assert.Equal(t, "https://media.test/leaf.png", doc.Image.URL)
	assert.Equal(t, "https://media.test/leaf.mp4", doc.Video.URL)
	require.Len(t, doc.QA, 1)
	assert.NotEmpty(t, doc.ID)

	// Each of the four fields is tried with badkey, then goodkey.
	assert.Equal(t, int32(8), calls.Load())
}

func TestApp_Lesson_NoCredentialsUsesFallback(t *testing.T) {
	server, calls := modelHost(t, http.StatusOK)
	app := newTestApp(t, testConfig(server.URL))

	doc, err := app.Lesson(context.Background(), content.LessonRequest{Title: "Photosynthesis"})
	require.NoError(t, err)

	assert.True(t, doc.Degraded())
	assert.True(t, doc.Image.Placeholder)
	assert.True(t, doc.Video.Placeholder)
	assert.NotEmpty(t, doc.Points)
	assert.Zero(t, calls.Load())
}

func TestApp_Lesson_InvalidRequest(t *testing.T) {
	server, calls := modelHost(t, http.StatusOK)
	app := newTestApp(t, testConfig(server.URL, "goodkey"))

	_, err := app.Lesson(context.Background(), content.LessonRequest{Title: "  "})
	assert.ErrorIs(t, err, content.ErrInvalidRequest)
	assert.Zero(t, calls.Load())
}

func TestApp_Build_WritesRecords(t *testing.T) {
	server, _ := modelHost(t, http.StatusOK)
	app := newTestApp(t, testConfig(server.URL, "goodkey"))

	var out bytes.Buffer
	sink, closeSink, err := app.Sink(context.Background(), "", &out)
	require.NoError(t, err)
	defer closeSink()

	course, err := app.Build(context.Background(), content.CourseRequest{Title: "Botany"}, sink)
	require.NoError(t, err)
	require.Len(t, course.Lessons, 1)
	assert.False(t, course.Degraded())

	var types []aggregator.RecordType
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec aggregator.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		assert.Equal(t, course.Outline.ID, rec.CourseID)
		types = append(types, rec.Type)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []aggregator.RecordType{
		aggregator.RecordCourse,
		aggregator.RecordModule,
		aggregator.RecordLesson,
	}, types)
}

func TestApp_Sink_File(t *testing.T) {
	server, _ := modelHost(t, http.StatusServiceUnavailable)
	app := newTestApp(t, testConfig(server.URL, "goodkey"))

	path := filepath.Join(t.TempDir(), "course.jsonl")
	sink, closeSink, err := app.Sink(context.Background(), path, io.Discard)
	require.NoError(t, err)

	course, err := app.Build(context.Background(), content.CourseRequest{Title: "Botany"}, sink)
	require.NoError(t, err)
	closeSink()

	// Fallback outline: two modules of three lessons each.
	require.Len(t, course.Lessons, 6)
	assert.True(t, course.Degraded())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 1+2+6)
}

func TestApp_Metrics(t *testing.T) {
	server, _ := modelHost(t, http.StatusInternalServerError)
	app := newTestApp(t, testConfig(server.URL, "goodkey"), WithMetricsAddr("127.0.0.1:0"))
	require.NotEmpty(t, app.MetricsAddr())

	_, err := app.Outline(context.Background(), content.CourseRequest{Title: "Botany"})
	require.NoError(t, err)

	resp, err := http.Get("http://" + app.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `coursegen_upstream_attempts_total{category="structure",outcome="error"} 1`)
	assert.Contains(t, text, `coursegen_fallbacks_total{category="structure"`)
}

func TestNewApp_UnregisteredProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Host.Provider = "nope"

	_, err := NewApp(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestRootCmd_Version(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "coursegen version "+Version+" (build: "+BuildTime+")\n", out.String())
}

func TestRootCmd_Lesson(t *testing.T) {
	server, _ := modelHost(t, http.StatusOK)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "coursegen.yaml")
	require.NoError(t, testConfig(server.URL, "goodkey").SaveToFile(cfgPath))

	cmd := rootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"lesson", "--config", cfgPath, "--log-level", "error", "--title", "Photosynthesis"})

	require.NoError(t, cmd.Execute(), errOut.String())

	var doc content.LessonDocument
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, "Photosynthesis", doc.Title)
	assert.Equal(t, "https://media.test/leaf.png", doc.Image.URL)
}

func TestRootCmd_LessonRequiresTitle(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"lesson"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title")
}

type mapBucket map[string][]byte

func (b mapBucket) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := b[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

func (b mapBucket) Put(_ context.Context, key string, value []byte) error {
	b[key] = value
	return nil
}

func (b mapBucket) Keys(context.Context) ([]string, error) {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	return keys, nil
}

func TestShow(t *testing.T) {
	server, _ := modelHost(t, http.StatusOK)
	app := newTestApp(t, testConfig(server.URL, "goodkey"))
	store := storage.NewStore(mapBucket{}, mapBucket{})

	course, err := app.Build(context.Background(), content.CourseRequest{Title: "Botany"}, store)
	require.NoError(t, err)

	v, err := Show(context.Background(), store, "course:"+course.Outline.ID)
	require.NoError(t, err)
	got, ok := v.(*content.Course)
	require.True(t, ok)
	assert.Equal(t, course.Outline.ID, got.Outline.ID)
	require.Len(t, got.Lessons, 1)

	v, err = Show(context.Background(), store, "lesson:"+course.Lessons[0].ID)
	require.NoError(t, err)
	lesson, ok := v.(*content.LessonDocument)
	require.True(t, ok)
	assert.Equal(t, "Photosynthesis", lesson.Title)

	_, err = Show(context.Background(), store, "lesson:missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = Show(context.Background(), store, "module:1")
	assert.Error(t, err)
}

func TestApp_OpenStore_RequiresNATS(t *testing.T) {
	server, _ := modelHost(t, http.StatusOK)
	app := newTestApp(t, testConfig(server.URL, "goodkey"))

	_, _, err := app.OpenStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats.url")
}
