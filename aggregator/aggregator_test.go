package aggregator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/coursegen/content"
)

func testCourse() *content.Course {
	outline := &content.OutlineDocument{
		ID:         "course-1",
		Title:      "Botany",
		Provenance: content.ProvenanceGenerated,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Modules: []content.ModuleOutline{
			{Title: "Roots", Lessons: []content.LessonOutline{{Title: "Water"}, {Title: "Minerals"}}},
			{Title: "Leaves", Lessons: []content.LessonOutline{{Title: "Light"}}},
		},
	}
	return &content.Course{
		Outline: outline,
		Lessons: []*content.LessonDocument{
			{ID: "l1", Title: "Water", ModuleTitle: "Roots"},
			{ID: "l3", Title: "Light", ModuleTitle: "Leaves"},
			{ID: "l2", Title: "Minerals", ModuleTitle: "Roots"},
			{ID: "lx", Title: "Stray", ModuleTitle: "Elsewhere"},
		},
	}
}

func TestRecords_PersistenceOrder(t *testing.T) {
	records := Records(testCourse())

	var got []string
	for i, r := range records {
		assert.Equal(t, i, r.Sequence)
		assert.Equal(t, "course-1", r.CourseID)
		switch r.Type {
		case RecordCourse:
			got = append(got, "course")
		case RecordModule:
			got = append(got, "module:"+r.Module.Title)
		case RecordLesson:
			got = append(got, "lesson:"+r.Lesson.ID)
		}
	}

	assert.Equal(t, []string{
		"course",
		"module:Roots", "lesson:l1", "lesson:l2",
		"module:Leaves", "lesson:l3",
		"lesson:lx",
	}, got)

	assert.Equal(t, 2, records[0].Course.Modules)
	assert.Equal(t, -1, records[len(records)-1].ModuleIndex)
	assert.Equal(t, 1, records[4].ModuleIndex)
}

func TestRecords_DuplicateModuleTitles(t *testing.T) {
	course := &content.Course{Outline: &content.OutlineDocument{
		ID:    "course-2",
		Title: "Chemistry",
		Modules: []content.ModuleOutline{
			{Title: "Basics", Lessons: []content.LessonOutline{{Title: "Atoms"}}},
			{Title: "Basics", Lessons: []content.LessonOutline{{Title: "Bonds"}}},
		},
	}}
	course.AddLesson(0, &content.LessonDocument{ID: "a", Title: "Atoms", ModuleTitle: "Basics"})
	course.AddLesson(1, &content.LessonDocument{ID: "b", Title: "Bonds", ModuleTitle: "Basics"})

	lessonModule := make(map[string]int)
	var order []string
	for _, r := range Records(course) {
		switch r.Type {
		case RecordModule:
			order = append(order, "module")
		case RecordLesson:
			order = append(order, "lesson:"+r.Lesson.ID)
			lessonModule[r.Lesson.ID] = r.ModuleIndex
		}
	}

	assert.Equal(t, []string{"module", "lesson:a", "module", "lesson:b"}, order)
	assert.Equal(t, 0, lessonModule["a"])
	assert.Equal(t, 1, lessonModule["b"])
}

func TestRecords_ModuleIndexOutOfRange(t *testing.T) {
	course := testCourse()
	course.LessonModules = []int{0, 1, 0, 7}

	records := Records(course)
	last := records[len(records)-1]
	assert.Equal(t, "lx", last.Lesson.ID)
	assert.Equal(t, -1, last.ModuleIndex)
}

func TestRecords_Empty(t *testing.T) {
	assert.Nil(t, Records(nil))
	assert.Nil(t, Records(&content.Course{}))
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)

	require.NoError(t, sink.Persist(context.Background(), testCourse()))

	var types []RecordType
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		types = append(types, r.Type)
	}
	require.Len(t, types, 7)
	assert.Equal(t, RecordCourse, types[0])
	assert.Equal(t, RecordModule, types[1])
}

func TestWriterSink_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := NewWriterSink(&buf).Persist(ctx, testCourse())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}

func TestMemorySink(t *testing.T) {
	sink := &MemorySink{}
	require.NoError(t, sink.Persist(context.Background(), testCourse()))
	assert.Len(t, sink.Records(), 7)
}

type fakePublisher struct {
	subjects []string
	failAt   int
}

func (f *fakePublisher) Publish(_ context.Context, subject string, _ []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.failAt > 0 && len(f.subjects) == f.failAt {
		return nil, errors.New("no responders")
	}
	f.subjects = append(f.subjects, subject)
	return &jetstream.PubAck{Stream: "COURSES", Sequence: uint64(len(f.subjects))}, nil
}

func TestNATSSink_PublishesInOrder(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSink(pub, WithSubjectPrefix("school.courses."))

	require.NoError(t, sink.Persist(context.Background(), testCourse()))

	assert.Equal(t, []string{
		"school.courses.course",
		"school.courses.module", "school.courses.lesson", "school.courses.lesson",
		"school.courses.module", "school.courses.lesson",
		"school.courses.lesson",
	}, pub.subjects)
}

func TestNATSSink_StopsOnFailure(t *testing.T) {
	pub := &fakePublisher{failAt: 2}
	sink := NewNATSSink(pub)

	err := sink.Persist(context.Background(), testCourse())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 2")
	assert.Equal(t, []string{"coursegen.course", "coursegen.module"}, pub.subjects)
}

func TestNATSSink_DefaultPrefix(t *testing.T) {
	sink := NewNATSSink(&fakePublisher{}, WithSubjectPrefix(""))
	assert.Equal(t, "coursegen.lesson", sink.Subject(RecordLesson))
}

type failingSink struct{ err error }

func (f failingSink) Persist(context.Context, *content.Course) error { return f.err }

func TestMultiSink_PersistsToAllAndJoinsErrors(t *testing.T) {
	first := &MemorySink{}
	last := &MemorySink{}
	boom := errors.New("boom")

	err := MultiSink{first, failingSink{err: boom}, last}.Persist(context.Background(), testCourse())

	require.ErrorIs(t, err, boom)
	assert.Len(t, first.Records(), 7)
	assert.Len(t, last.Records(), 7, "a failing sink must not stop later sinks")
}

func TestMultiSink_Empty(t *testing.T) {
	assert.NoError(t, MultiSink(nil).Persist(context.Background(), testCourse()))
}
