package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/coursegen/content"
	"github.com/c360studio/coursegen/model"
)

func TestCalculateBackoff(t *testing.T) {
	r := &Rotator{cfg: RetryConfig{
		BackoffBase:       100 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxBackoff:        300 * time.Millisecond,
	}}

	assert.Equal(t, 100*time.Millisecond, r.calculateBackoff(1))
	assert.Equal(t, 200*time.Millisecond, r.calculateBackoff(2))
	assert.Equal(t, 300*time.Millisecond, r.calculateBackoff(3), "capped")
	assert.Equal(t, 300*time.Millisecond, r.calculateBackoff(10))
}

func TestCalculateBackoff_Jitter(t *testing.T) {
	r := &Rotator{cfg: DefaultRetryConfig()}

	for i := 0; i < 100; i++ {
		d := r.calculateBackoff(1)
		assert.GreaterOrEqual(t, d, 375*time.Millisecond)
		assert.LessOrEqual(t, d, 625*time.Millisecond)
	}
}

type failingInvoker struct{ calls int }

func (f *failingInvoker) Invoke(context.Context, model.Candidate, content.Request) (*content.Output, error) {
	f.calls++
	return nil, &Failure{Reason: ReasonUpstream, Attempts: 1, Err: errors.New("boom")}
}

func TestRotator_SleepsBetweenButNotAfterLast(t *testing.T) {
	inv := &failingInvoker{}
	r := NewRotator(model.NewPoolFromKeys("a", "b", "c"), inv,
		WithRetryConfig(RetryConfig{BackoffBase: 10 * time.Millisecond, BackoffMultiplier: 1.5, MaxBackoff: time.Second}))

	var sleeps []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	_, err := r.InvokeWithRotation(context.Background(), content.LessonRequest{Title: "T"}.TextRequest())
	require.Error(t, err)
	assert.Equal(t, 3, inv.calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 15 * time.Millisecond}, sleeps)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
