// Package gate provides per-category admission control for upstream requests.
// At most one request per task category is in flight at a time; a second
// request of the same category is refused rather than queued.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/c360studio/coursegen/model"
	"github.com/google/uuid"
)

// ErrBusy is returned when a request of the same category is already in flight.
var ErrBusy = errors.New("another request of this type is already running")

// Admitter hands out admission tickets per category.
type Admitter interface {
	// Acquire returns a ticket, or ErrBusy if the category is held.
	Acquire(ctx context.Context, cat model.Category) (*Ticket, error)

	// Release returns a ticket. Releasing twice is a no-op.
	Release(ctx context.Context, t *Ticket) error
}

// Ticket is proof of admission for one category. It is held by exactly one
// in-flight request and must be released on every exit path.
type Ticket struct {
	Category model.Category
	ID       string

	released atomic.Bool
	// stop ends lease renewal for backends that renew.
	stop func()
}

func (t *Ticket) stopRenewal() {
	if t.stop != nil {
		t.stop()
	}
}

// markReleased reports whether this call performed the release.
func (t *Ticket) markReleased() bool {
	return t.released.CompareAndSwap(false, true)
}

// Released reports whether the ticket has been returned.
func (t *Ticket) Released() bool {
	return t.released.Load()
}

func newTicket(cat model.Category) *Ticket {
	return &Ticket{Category: cat, ID: uuid.New().String()}
}

// Gate is the in-process Admitter.
type Gate struct {
	mu     sync.Mutex
	held   map[model.Category]string
	logger *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// New creates an in-process gate with no categories held.
func New(opts ...Option) *Gate {
	g := &Gate{
		held:   make(map[model.Category]string),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire admits one request for cat, or returns ErrBusy.
func (g *Gate) Acquire(_ context.Context, cat model.Category) (*Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if holder, ok := g.held[cat]; ok {
		g.logger.Debug("Admission denied", "category", cat, "holder", holder)
		return nil, fmt.Errorf("%s: %w", cat, ErrBusy)
	}

	t := newTicket(cat)
	g.held[cat] = t.ID
	return t, nil
}

// Release frees the ticket's category.
func (g *Gate) Release(_ context.Context, t *Ticket) error {
	if t == nil || !t.markReleased() {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.held[t.Category] == t.ID {
		delete(g.held, t.Category)
	}
	return nil
}

// Held reports whether a category currently has a ticket outstanding.
func (g *Gate) Held(cat model.Category) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[cat]
	return ok
}

// Do acquires cat, runs fn, and releases the ticket however fn ends,
// including by panic. It returns ErrBusy without running fn when the
// category is held.
func Do(ctx context.Context, a Admitter, cat model.Category, fn func(ctx context.Context) error) (err error) {
	t, err := a.Acquire(ctx, cat)
	if err != nil {
		return err
	}
	defer func() {
		// Release must not be skipped because the caller gave up.
		if relErr := a.Release(context.WithoutCancel(ctx), t); relErr != nil && err == nil {
			err = fmt.Errorf("release %s: %w", cat, relErr)
		}
	}()

	return fn(ctx)
}

// IsBusy reports whether err is an admission denial.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}
