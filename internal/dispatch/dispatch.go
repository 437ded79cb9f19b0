// Package dispatch reports terminal outcomes to the caller as short-lived result events.
package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paywallet/internal/logging"
	"paywallet/internal/telemetry"
	telemetrydomain "paywallet/internal/telemetry/domain"
)

// DefaultWindow is how long a result stays active before it is considered dismissed.
const DefaultWindow = 5 * time.Second

// Kind is the severity of a result.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
)

// Result is one caller-facing event.
type Result struct {
	ID        string
	Kind      Kind
	Message   string
	UserID    string
	AttemptID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the display window of r has passed at now.
func (r Result) Expired(now time.Time) bool { return !now.Before(r.ExpiresAt) }

// Source identifies who a result is about. Both fields are optional.
type Source struct {
	UserID    string
	AttemptID string
}

// Dispatcher is the single place results are emitted from. Expiry is computed lazily from
// ExpiresAt; there are no timers.
type Dispatcher struct {
	window  time.Duration
	emitter telemetry.EventEmitter
	logger  *zap.Logger
	nowF    func() time.Time

	mu      sync.Mutex
	results []Result
	subs    map[int]func(Result)
	nextSub int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(x *Dispatcher) {
		if d > 0 {
			x.window = d
		}
	}
}

// WithEmitter mirrors every result to a telemetry emitter.
func WithEmitter(e telemetry.EventEmitter) Option { return func(x *Dispatcher) { x.emitter = e } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(x *Dispatcher) { x.logger = l } }

// WithClock sets the clock.
func WithClock(now func() time.Time) Option { return func(x *Dispatcher) { x.nowF = now } }

// New returns a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		window: DefaultWindow,
		nowF:   func() time.Time { return time.Now().UTC() },
		subs:   make(map[int]func(Result)),
	}
	for _, o := range opts {
		o(d)
	}
	d.logger = logging.OrNop(d.logger).Named("dispatch")
	return d
}

// Dispatch records a result and delivers it to every subscriber, in subscription order,
// before returning it.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, src Source, message string) Result {
	now := d.nowF()
	r := Result{
		ID:        uuid.New().String(),
		Kind:      kind,
		Message:   message,
		UserID:    src.UserID,
		AttemptID: src.AttemptID,
		CreatedAt: now,
		ExpiresAt: now.Add(d.window),
	}

	d.mu.Lock()
	d.pruneLocked(now)
	d.results = append(d.results, r)
	subs := d.subscribersLocked()
	d.mu.Unlock()

	if kind == KindError {
		d.logger.Info("result", zap.String("kind", string(kind)), zap.String("message", message), logging.AttemptID(src.AttemptID))
	} else {
		d.logger.Debug("result", zap.String("kind", string(kind)), zap.String("message", message), logging.AttemptID(src.AttemptID))
	}
	for _, fn := range subs {
		fn(r)
	}
	telemetry.EmitAsync(d.emitter, &telemetrydomain.Event{
		ID:        r.ID,
		UserID:    r.UserID,
		AttemptID: r.AttemptID,
		EventType: "result." + string(r.Kind),
		Source:    "dispatch",
		Message:   r.Message,
		CreatedAt: r.CreatedAt,
	}, d.logger)
	return r
}

// Success dispatches a success result.
func (d *Dispatcher) Success(ctx context.Context, src Source, message string) Result {
	return d.Dispatch(ctx, KindSuccess, src, message)
}

// Error dispatches an error result.
func (d *Dispatcher) Error(ctx context.Context, src Source, message string) Result {
	return d.Dispatch(ctx, KindError, src, message)
}

// Info dispatches an info result.
func (d *Dispatcher) Info(ctx context.Context, src Source, message string) Result {
	return d.Dispatch(ctx, KindInfo, src, message)
}

// Warning dispatches a warning result.
func (d *Dispatcher) Warning(ctx context.Context, src Source, message string) Result {
	return d.Dispatch(ctx, KindWarning, src, message)
}

// Subscribe registers fn for every future result and returns a function that removes it.
func (d *Dispatcher) Subscribe(fn func(Result)) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

// Active returns the results still inside their display window, oldest first.
func (d *Dispatcher) Active() []Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pruneLocked(d.nowF())
	return append([]Result(nil), d.results...)
}

// Dismiss removes a result before its window ends. It reports whether the result was active.
func (d *Dispatcher) Dismiss(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pruneLocked(d.nowF())
	for i, r := range d.results {
		if r.ID == id {
			d.results = append(d.results[:i], d.results[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops every active result.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	d.results = nil
	d.mu.Unlock()
}

func (d *Dispatcher) pruneLocked(now time.Time) {
	kept := d.results[:0]
	for _, r := range d.results {
		if !r.Expired(now) {
			kept = append(kept, r)
		}
	}
	d.results = kept
}

func (d *Dispatcher) subscribersLocked() []func(Result) {
	ids := make([]int, 0, len(d.subs))
	for id := range d.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Result), 0, len(ids))
	for _, id := range ids {
		out = append(out, d.subs[id])
	}
	return out
}
