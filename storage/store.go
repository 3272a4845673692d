// Package storage keeps built courses in NATS KV so they can be read back
// after the build that produced them has exited.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/coursegen/content"
)

// EntityType represents the type of entity stored in KV.
type EntityType string

const (
	EntityTypeCourse EntityType = "course"
	EntityTypeLesson EntityType = "lesson"
)

// Bucket names for each entity type.
const (
	BucketCourses = "COURSEGEN_COURSES"
	BucketLessons = "COURSEGEN_LESSONS"
)

// EntityID represents a typed entity identifier.
type EntityID struct {
	Type EntityType
	ID   string
}

// String returns the string representation of the entity ID.
func (e EntityID) String() string {
	return fmt.Sprintf("%s:%s", e.Type, e.ID)
}

// ParseEntityID parses "course:ID" or "lesson:ID".
func ParseEntityID(s string) (EntityID, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return EntityID{}, fmt.Errorf("invalid entity ID format: %s", s)
	}
	entityType := EntityType(parts[0])
	switch entityType {
	case EntityTypeCourse, EntityTypeLesson:
		return EntityID{Type: entityType, ID: parts[1]}, nil
	default:
		return EntityID{}, fmt.Errorf("unknown entity type: %s", parts[0])
	}
}

// Bucket is the key-value surface the store needs.
type Bucket interface {
	// Get returns ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Keys(ctx context.Context) ([]string, error)
}

// courseEntry is the stored form of a course: the outline plus the IDs of
// its lessons in build order.
type courseEntry struct {
	Outline       *content.OutlineDocument `json:"outline"`
	LessonIDs     []string                 `json:"lesson_ids"`
	LessonModules []int                    `json:"lesson_modules,omitempty"`
}

// Store provides course storage backed by two buckets.
type Store struct {
	courses Bucket
	lessons Bucket
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a store over the given buckets.
func NewStore(courses, lessons Bucket, opts ...Option) *Store {
	s := &Store{courses: courses, lessons: lessons, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates the KV buckets if they don't exist and returns a store over
// them.
func Open(ctx context.Context, js jetstream.JetStream, opts ...Option) (*Store, error) {
	courses, err := getOrCreateBucket(ctx, js, BucketCourses)
	if err != nil {
		return nil, fmt.Errorf("create courses bucket: %w", err)
	}

	lessons, err := getOrCreateBucket(ctx, js, BucketLessons)
	if err != nil {
		return nil, fmt.Errorf("create lessons bucket: %w", err)
	}

	return NewStore(kvBucket{courses}, kvBucket{lessons}, opts...), nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Coursegen %s storage", strings.ToLower(strings.TrimPrefix(name, "COURSEGEN_"))),
		History:     5,
	})
}

// Persist stores the course and then each lesson. It implements
// aggregator.Sink. Lessons are addressed by their own IDs, so regenerated
// lessons never overwrite earlier ones.
func (s *Store) Persist(ctx context.Context, course *content.Course) error {
	if course == nil || course.Outline == nil {
		return errors.New("persist: course has no outline")
	}

	entry := courseEntry{
		Outline:       course.Outline,
		LessonIDs:     make([]string, 0, len(course.Lessons)),
		LessonModules: course.LessonModules,
	}
	for _, l := range course.Lessons {
		entry.LessonIDs = append(entry.LessonIDs, l.ID)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal course: %w", err)
	}
	if err := s.courses.Put(ctx, course.Outline.ID, data); err != nil {
		return fmt.Errorf("store course %s: %w", course.Outline.ID, err)
	}

	for _, l := range course.Lessons {
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("marshal lesson: %w", err)
		}
		if err := s.lessons.Put(ctx, l.ID, data); err != nil {
			return fmt.Errorf("store lesson %s: %w", l.ID, err)
		}
	}

	s.logger.Debug("Course stored", "course_id", course.Outline.ID, "lessons", len(course.Lessons))
	return nil
}

// GetLesson retrieves a lesson by ID.
func (s *Store) GetLesson(ctx context.Context, id string) (*content.LessonDocument, error) {
	data, err := s.lessons.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var l content.LessonDocument
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("unmarshal lesson: %w", err)
	}
	return &l, nil
}

// GetCourse retrieves a course with all of its lessons. It returns
// ErrIncomplete if any lesson is missing.
func (s *Store) GetCourse(ctx context.Context, id string) (*content.Course, error) {
	entry, err := s.getEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	course := &content.Course{Outline: entry.Outline, LessonModules: entry.LessonModules}
	for _, lessonID := range entry.LessonIDs {
		l, err := s.GetLesson(ctx, lessonID)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: lesson %s of course %s", ErrIncomplete, lessonID, id)
		}
		if err != nil {
			return nil, err
		}
		course.Lessons = append(course.Lessons, l)
	}
	return course, nil
}

func (s *Store) getEntry(ctx context.Context, id string) (*courseEntry, error) {
	data, err := s.courses.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var entry courseEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal course: %w", err)
	}
	if entry.Outline == nil {
		return nil, fmt.Errorf("course %s has no outline", id)
	}
	return &entry, nil
}

// ListCourses returns every stored outline, oldest first.
func (s *Store) ListCourses(ctx context.Context) ([]*content.OutlineDocument, error) {
	keys, err := s.courses.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list course keys: %w", err)
	}

	outlines := make([]*content.OutlineDocument, 0, len(keys))
	for _, key := range keys {
		entry, err := s.getEntry(ctx, key)
		if err != nil {
			s.logger.Warn("Skipping unreadable course", "course_id", key, "error", err)
			continue
		}
		outlines = append(outlines, entry.Outline)
	}

	sort.SliceStable(outlines, func(i, j int) bool {
		return outlines[i].CreatedAt.Before(outlines[j].CreatedAt)
	})
	return outlines, nil
}

// kvBucket adapts a jetstream.KeyValue to Bucket.
type kvBucket struct {
	kv jetstream.KeyValue
}

func (b kvBucket) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return entry.Value(), nil
}

func (b kvBucket) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.kv.Put(ctx, key, value)
	return err
}

func (b kvBucket) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	return keys, err
}
