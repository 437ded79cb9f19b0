// Package reconcile refreshes the locally cached ledger snapshot from the ledger service.
// It is the only writer of that cache; everything else reads it for display or soft checks.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"paywallet/internal/failure"
	"paywallet/internal/ledger/domain"
	"paywallet/internal/logging"
	"paywallet/internal/reconcile/repository"
)

// Ledger is the read side of the ledger service.
type Ledger interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	GetTransactions(ctx context.Context, userID string) ([]domain.Record, error)
}

// Metrics receives reconciliation counters. Optional.
type Metrics interface {
	StaleFallback(ctx context.Context)
	BalanceMismatch(ctx context.Context)
}

// Reconciler owns the per-user snapshot cache.
type Reconciler struct {
	ledger  Ledger
	store   repository.Store
	metrics Metrics
	logger  *zap.Logger
	nowF    func() time.Time

	mu    sync.RWMutex
	cache map[string]*domain.Snapshot
	locks map[string]*sync.Mutex
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithStore persists snapshots so the stale fallback survives restarts.
func WithStore(s repository.Store) Option { return func(r *Reconciler) { r.store = s } }

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option { return func(r *Reconciler) { r.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(r *Reconciler) { r.logger = l } }

// WithClock sets the clock.
func WithClock(now func() time.Time) Option { return func(r *Reconciler) { r.nowF = now } }

// New returns a Reconciler reading from ledger.
func New(ledger Ledger, opts ...Option) *Reconciler {
	r := &Reconciler{
		ledger: ledger,
		nowF:   func() time.Time { return time.Now().UTC() },
		cache:  make(map[string]*domain.Snapshot),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(r)
	}
	r.logger = logging.OrNop(r.logger).Named("reconcile")
	return r
}

// userLock serialises reconciles of one user so an earlier fetch never overwrites a later one.
func (r *Reconciler) userLock(userID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[userID] = l
	}
	return l
}

// Reconcile fetches balance and history in parallel and replaces the cached snapshot.
// When the ledger is unreachable it returns the last known snapshot marked Stale together with
// a failure.ErrStaleData error; with nothing cached the snapshot is empty. A wallet the ledger
// does not know is failure.ErrNotFound.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) (*domain.Snapshot, error) {
	l := r.userLock(userID)
	l.Lock()
	defer l.Unlock()

	var (
		balance decimal.Decimal
		records []domain.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := r.ledger.GetBalance(gctx, userID)
		balance = b
		return err
	})
	g.Go(func() error {
		recs, err := r.ledger.GetTransactions(gctx, userID)
		records = recs
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, failure.ErrNotFound) {
			return nil, err
		}
		return r.fallback(ctx, userID, err)
	}

	snap := &domain.Snapshot{
		UserID:       userID,
		Balance:      balance,
		Transactions: records,
		FetchedAt:    r.nowF(),
	}
	r.mu.Lock()
	r.cache[userID] = snap
	r.mu.Unlock()
	if r.store != nil {
		if err := r.store.Save(ctx, snap); err != nil {
			r.logger.Warn("failed to persist snapshot", logging.UserID(userID), zap.Error(err))
		}
	}
	return snap.Clone(), nil
}

// ReconcileAfterCommit reconciles and compares the authoritative balance with the optimistic
// expectation: the cached balance before the commit plus delta. A mismatch is logged and
// counted; the authoritative value always wins.
func (r *Reconciler) ReconcileAfterCommit(ctx context.Context, userID string, delta decimal.Decimal) (*domain.Snapshot, error) {
	before, hadBefore := r.CachedBalance(userID)
	snap, err := r.Reconcile(ctx, userID)
	if err != nil || !hadBefore {
		return snap, err
	}
	expected := before.Add(delta)
	if !snap.Balance.Equal(expected) {
		r.logger.Info("balance differs from optimistic expectation",
			logging.UserID(userID),
			zap.String("expected", expected.StringFixed(2)),
			zap.String("authoritative", snap.Balance.StringFixed(2)))
		if r.metrics != nil {
			r.metrics.BalanceMismatch(ctx)
		}
	}
	return snap, nil
}

// Snapshot returns a copy of the cached snapshot of userID.
func (r *Reconciler) Snapshot(userID string) (*domain.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.cache[userID]
	return s.Clone(), ok
}

// CachedBalance returns the cached balance of userID. The value is advisory.
func (r *Reconciler) CachedBalance(userID string) (decimal.Decimal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.cache[userID]
	if !ok {
		return decimal.Decimal{}, false
	}
	return s.Balance, true
}

// Forget drops userID's snapshot from memory and from the store.
func (r *Reconciler) Forget(ctx context.Context, userID string) error {
	l := r.userLock(userID)
	l.Lock()
	defer l.Unlock()

	r.mu.Lock()
	delete(r.cache, userID)
	r.mu.Unlock()
	if r.store != nil {
		return r.store.Delete(ctx, userID)
	}
	return nil
}

func (r *Reconciler) fallback(ctx context.Context, userID string, cause error) (*domain.Snapshot, error) {
	if r.metrics != nil {
		r.metrics.StaleFallback(ctx)
	}
	r.mu.RLock()
	cached, ok := r.cache[userID]
	r.mu.RUnlock()
	if !ok && r.store != nil {
		persisted, err := r.store.Load(ctx, userID)
		if err != nil {
			r.logger.Warn("failed to load persisted snapshot", logging.UserID(userID), zap.Error(err))
		}
		if persisted != nil {
			cached, ok = persisted, true
			r.mu.Lock()
			if _, exists := r.cache[userID]; !exists {
				r.cache[userID] = persisted
			}
			r.mu.Unlock()
		}
	}

	var snap *domain.Snapshot
	if ok {
		snap = cached.Clone()
	} else {
		snap = &domain.Snapshot{UserID: userID}
	}
	snap.Stale = true
	r.logger.Warn("serving stale snapshot", logging.UserID(userID), zap.Bool("cached", ok), zap.Error(cause))
	return snap, failure.Wrap(failure.ErrStaleData, cause, "Showing last known balance; the wallet service is unreachable")
}
