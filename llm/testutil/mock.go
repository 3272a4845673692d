// Package testutil provides test doubles for the llm package.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/c360studio/coursegen/content"
	"github.com/c360studio/coursegen/llm"
	"github.com/c360studio/coursegen/model"
)

// Attempt records one call to ScriptedInvoker.Invoke.
type Attempt struct {
	Key             string
	CredentialIndex int
	Kind            content.Kind
	Request         content.Request
	At              time.Time
}

// Behavior decides the outcome of one attempt. Returning a nil output and
// nil error makes the invoker produce default content for the kind.
type Behavior func(ctx context.Context, cred model.Candidate, req content.Request) (*content.Output, error)

// ScriptedInvoker is a thread-safe llm.Invoker for tests.
//
// Usage:
//
//	// Keys starting with "bad" fail, everything else succeeds
//	inv := &ScriptedInvoker{FailKeys: map[string]bool{"badkey1": true}}
//
//	// Fail every image request
//	inv := &ScriptedInvoker{FailKinds: map[content.Kind]bool{content.KindLessonImage: true}}
type ScriptedInvoker struct {
	// FailKeys lists credentials that always fail.
	FailKeys map[string]bool

	// FailKinds lists request kinds that always fail.
	FailKinds map[content.Kind]bool

	// Err is returned for scripted failures. Defaults to an upstream failure.
	Err error

	// Delay is applied to every attempt before it resolves.
	Delay time.Duration

	// Behavior overrides the scripted outcome when set.
	Behavior Behavior

	mu       sync.Mutex
	attempts []Attempt
}

// Invoke implements llm.Invoker.
func (s *ScriptedInvoker) Invoke(ctx context.Context, cred model.Candidate, req content.Request) (*content.Output, error) {
	s.mu.Lock()
	s.attempts = append(s.attempts, Attempt{
		Key:             cred.Key,
		CredentialIndex: cred.Index,
		Kind:            req.Kind,
		Request:         req,
		At:              time.Now(),
	})
	s.mu.Unlock()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, &llm.Failure{Reason: llm.ReasonTimeout, Attempts: 1, Err: ctx.Err()}
		}
	}

	if s.Behavior != nil {
		out, err := s.Behavior(ctx, cred, req)
		if err != nil {
			return nil, err
		}
		if out != nil {
			return out, nil
		}
	} else if s.FailKeys[cred.Key] || s.FailKinds[req.Kind] {
		return nil, s.failure()
	}

	out := DefaultOutput(req)
	out.CredentialIndex = cred.Index
	return out, nil
}

func (s *ScriptedInvoker) failure() error {
	if s.Err != nil {
		return s.Err
	}
	return &llm.Failure{Reason: llm.ReasonUpstream, Attempts: 1, Err: llm.NewTransientError(llm.ErrNoContent)}
}

// Attempts returns a copy of all recorded attempts in call order.
func (s *ScriptedInvoker) Attempts() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Attempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// AttemptsFor returns attempts for one kind.
func (s *ScriptedInvoker) AttemptsFor(kind content.Kind) []Attempt {
	var out []Attempt
	for _, a := range s.Attempts() {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// CallCount returns the number of attempts made.
func (s *ScriptedInvoker) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

// Reset clears recorded attempts.
func (s *ScriptedInvoker) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = nil
}

// DefaultOutput returns recognizable generated content for a request.
func DefaultOutput(req content.Request) *content.Output {
	out := &content.Output{Kind: req.Kind, Model: "test-model"}
	switch req.Kind {
	case content.KindCourseStructure:
		out.Outline = &content.OutlineDocument{
			Title: req.Title,
			Modules: []content.ModuleOutline{
				{Title: "Generated module A", Lessons: []content.LessonOutline{{Title: "Generated lesson A1"}, {Title: "Generated lesson A2"}}},
				{Title: "Generated module B", Lessons: []content.LessonOutline{{Title: "Generated lesson B1"}}},
				{Title: "Generated module C", Lessons: []content.LessonOutline{{Title: "Generated lesson C1"}}},
			},
		}
	case content.KindLessonText:
		out.Lesson = &content.LessonText{
			Heading:      "Generated: " + req.Title,
			Introduction: "Generated introduction.",
			Points:       []content.Point{{Point: "Generated point", Description: "Generated description", Example: "Generated example"}},
			Summary:      "Generated summary.",
		}
	case content.KindLessonImage:
		out.Media = &content.MediaRef{URL: "https://media.test/image.png", MimeType: "image/png"}
	case content.KindLessonVideo:
		out.Media = &content.MediaRef{URL: "https://media.test/video.mp4", MimeType: "video/mp4"}
	case content.KindLessonQA:
		out.QA = []content.QAPair{{Question: "Generated question?", Answer: "Generated answer."}}
	}
	return out
}
