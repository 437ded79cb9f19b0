// Package authz drives a transaction intent through OTP authorization to a ledger commit:
// Draft -> OTPRequested -> OTPVerified -> Committed, or Failed, Expired, Cancelled.
package authz

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"paywallet/internal/audit"
	"paywallet/internal/authz/domain"
	"paywallet/internal/dispatch"
	"paywallet/internal/failure"
	identitydomain "paywallet/internal/identity/domain"
	intentdomain "paywallet/internal/intent/domain"
	ledgerdomain "paywallet/internal/ledger/domain"
	"paywallet/internal/logging"
	"paywallet/internal/otp"
	otpdomain "paywallet/internal/otp/domain"
)

// Challenger is the OTP challenge manager.
type Challenger interface {
	RequestChallenge(ctx context.Context, subjectUserID string, purpose otpdomain.Purpose) (otp.Handle, error)
	Resend(ctx context.Context, subjectUserID string, purpose otpdomain.Purpose) (otp.Handle, error)
	Verify(ctx context.Context, subjectUserID string, purpose otpdomain.Purpose, code string) error
}

// Ledger commits verified money and password intents.
type Ledger interface {
	CommitSend(ctx context.Context, in *intentdomain.Intent, otpCode string) (ledgerdomain.Record, error)
	CommitAdd(ctx context.Context, in *intentdomain.Intent, otpCode string) (ledgerdomain.Record, error)
	CommitPasswordChange(ctx context.Context, in *intentdomain.Intent, otpCode string) error
}

// Identity commits verified LOGIN intents.
type Identity interface {
	LoginOTP(ctx context.Context, emailOrMobile, otpCode string) (*identitydomain.Principal, error)
}

// Reconciler refreshes the ledger snapshot after a commit.
type Reconciler interface {
	Reconcile(ctx context.Context, userID string) (*ledgerdomain.Snapshot, error)
	ReconcileAfterCommit(ctx context.Context, userID string, delta decimal.Decimal) (*ledgerdomain.Snapshot, error)
}

// Dispatcher reports outcomes to the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind dispatch.Kind, src dispatch.Source, message string) dispatch.Result
}

// Metrics receives transition and verification counters.
type Metrics interface {
	Transition(ctx context.Context, kind, from, to string)
	Verification(ctx context.Context, result string)
}

const defaultRetention = 5 * time.Minute

// Machine owns every authorization attempt of a session. At most one non-terminal attempt exists
// per (subject, purpose), and operations on one attempt never run concurrently: a second caller
// gets failure.ErrAttemptInProgress.
type Machine struct {
	otp        Challenger
	ledger     Ledger
	identity   Identity
	reconciler Reconciler
	dispatcher Dispatcher
	audit      audit.AuditLogger
	metrics    Metrics
	tracer     trace.Tracer
	logger     *zap.Logger
	nowF       func() time.Time
	// retention is how long a terminal attempt stays readable through Get.
	retention time.Duration

	mu       sync.Mutex
	attempts map[string]*attempt
	active   map[string]string // otp key -> attempt id
}

type attempt struct {
	id        string
	intent    *intentdomain.Intent
	state     domain.State
	challenge otp.Handle
	// code is the verified OTP, held only between OTPVerified and the commit call.
	code      string
	lastError error
	record    *ledgerdomain.Record
	principal *identitydomain.Principal
	snapshot  *ledgerdomain.Snapshot
	busy      bool
	createdAt time.Time
	updatedAt time.Time
}

func (a *attempt) key() string {
	return otpdomain.Key(a.intent.SubjectUserID(), a.intent.Purpose())
}

func (a *attempt) view() domain.Attempt {
	return domain.Attempt{
		ID:                a.id,
		State:             a.state,
		Intent:            a.intent,
		ChallengeID:       a.challenge.ID,
		DeliveredVia:      a.challenge.DeliveredVia,
		ExpiresAt:         a.challenge.ExpiresAt,
		ResendAvailableAt: a.challenge.ResendAvailableAt,
		LastError:         a.lastError,
		Record:            a.record,
		Principal:         a.principal,
		Snapshot:          a.snapshot.Clone(),
		CreatedAt:         a.createdAt,
		UpdatedAt:         a.updatedAt,
	}
}

// Option configures a Machine.
type Option func(*Machine)

// WithIdentity sets the committer for LOGIN intents.
func WithIdentity(id Identity) Option { return func(m *Machine) { m.identity = id } }

// WithReconciler sets the post-commit reconciler.
func WithReconciler(r Reconciler) Option { return func(m *Machine) { m.reconciler = r } }

// WithDispatcher sets the result dispatcher.
func WithDispatcher(d Dispatcher) Option { return func(m *Machine) { m.dispatcher = d } }

// WithAudit records every transition.
func WithAudit(a audit.AuditLogger) Option { return func(m *Machine) { m.audit = a } }

// WithMetrics sets the metrics sink.
func WithMetrics(x Metrics) Option { return func(m *Machine) { m.metrics = x } }

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option { return func(m *Machine) { m.tracer = t } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(m *Machine) { m.logger = l } }

// WithRetention sets how long terminal attempts are kept before open prunes them. Defaults to
// the 5 minute challenge TTL.
func WithRetention(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithClock sets the clock used for lazy expiry.
func WithClock(now func() time.Time) Option { return func(m *Machine) { m.nowF = now } }

// NewMachine returns a Machine using challenger for codes and ledger for commits.
func NewMachine(challenger Challenger, ledger Ledger, opts ...Option) *Machine {
	m := &Machine{
		otp:       challenger,
		ledger:    ledger,
		nowF:      func() time.Time { return time.Now().UTC() },
		retention: defaultRetention,
		attempts:  make(map[string]*attempt),
		active:    make(map[string]string),
	}
	for _, o := range opts {
		o(m)
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer("paywallet/authz")
	}
	m.logger = logging.OrNop(m.logger).Named("authz")
	return m
}

// Start opens an attempt for in and requests its challenge. When a non-terminal attempt already
// exists for the same subject and purpose it is reused if it carries the same parameters (a Draft
// one retries delivery); otherwise Start fails with failure.ErrAttemptInProgress. A delivery
// failure leaves the attempt in Draft and returns failure.ErrDelivery.
func (m *Machine) Start(ctx context.Context, in *intentdomain.Intent) (domain.Attempt, error) {
	if in == nil {
		return domain.Attempt{}, failure.Invalid("intent", "intent is required")
	}
	ctx, span := m.tracer.Start(ctx, "authz.Start", trace.WithAttributes(attribute.String("intent.kind", string(in.Kind()))))
	defer span.End()

	a, created, err := m.open(ctx, in)
	if err != nil {
		recordSpanError(span, err)
		return domain.Attempt{}, err
	}
	span.SetAttributes(attribute.String("attempt.id", a.id))
	if created {
		m.logger.Info("attempt opened", logging.AttemptID(a.id), logging.UserID(in.SubjectUserID()), zap.String("kind", string(in.Kind())))
		m.record(ctx, a, "", domain.StateDraft, nil)
	}
	defer m.release(a)

	if a.state != domain.StateDraft {
		return m.snapshot(a), nil
	}

	h, err := m.otp.RequestChallenge(ctx, in.SubjectUserID(), in.Purpose())
	if err != nil {
		m.mu.Lock()
		a.lastError = err
		a.updatedAt = m.nowF()
		m.mu.Unlock()
		recordSpanError(span, err)
		return m.snapshot(a), err
	}
	m.mu.Lock()
	a.challenge = h
	m.mu.Unlock()
	m.move(ctx, a, domain.StateOTPRequested, nil)
	return m.snapshot(a), nil
}

// open finds or creates the attempt for in and marks it busy.
func (m *Machine) open(ctx context.Context, in *intentdomain.Intent) (*attempt, bool, error) {
	key := otpdomain.Key(in.SubjectUserID(), in.Purpose())

	m.mu.Lock()
	m.pruneLocked()
	var expired *attempt
	var expiredFrom domain.State
	var expiredCause error
	if id, ok := m.active[key]; ok {
		a := m.attempts[id]
		if from, ok := m.expireLocked(a); ok {
			expired, expiredFrom, expiredCause = a, from, a.lastError
		} else if !a.state.Terminal() {
			defer m.mu.Unlock()
			if !a.intent.SameParameters(in) {
				return nil, false, failure.New(failure.ErrAttemptInProgress,
					"Another %s is already in progress; cancel it first", describe(a.intent.Kind()))
			}
			if a.busy {
				return nil, false, failure.New(failure.ErrAttemptInProgress, "This request is already being processed")
			}
			a.busy = true
			return a, false, nil
		}
	}
	now := m.nowF()
	a := &attempt{
		id:        uuid.New().String(),
		intent:    in,
		state:     domain.StateDraft,
		busy:      true,
		createdAt: now,
		updatedAt: now,
	}
	m.attempts[a.id] = a
	m.active[key] = a.id
	m.mu.Unlock()

	if expired != nil {
		m.observe(ctx, expired, expiredFrom, domain.StateExpired, expiredCause)
	}
	return a, true, nil
}

// SubmitCode verifies code for an attempt in OTPRequested. A wrong code keeps the attempt in
// OTPRequested with LastError set to the mismatch; an expired or missing challenge ends it in Expired.
func (m *Machine) SubmitCode(ctx context.Context, attemptID, code string) (domain.Attempt, error) {
	ctx, span := m.tracer.Start(ctx, "authz.SubmitCode", trace.WithAttributes(attribute.String("attempt.id", attemptID)))
	defer span.End()

	a, err := m.acquire(ctx, attemptID, domain.StateOTPRequested)
	if err != nil {
		recordSpanError(span, err)
		return m.viewOf(attemptID), err
	}
	defer m.release(a)

	err = m.otp.Verify(ctx, a.intent.SubjectUserID(), a.intent.Purpose(), code)
	switch {
	case err == nil:
		m.verification(ctx, "verified")
		m.mu.Lock()
		a.code = code
		m.mu.Unlock()
		m.move(ctx, a, domain.StateOTPVerified, nil)
		return m.snapshot(a), nil
	case failure.KindOf(err) == failure.KindMismatch:
		m.verification(ctx, "mismatch")
		m.mu.Lock()
		a.lastError = err
		a.updatedAt = m.nowF()
		m.mu.Unlock()
		m.logger.Info("wrong code", logging.AttemptID(a.id))
		return m.snapshot(a), err
	case failure.KindOf(err) == failure.KindExpired, failure.KindOf(err) == failure.KindNotFound:
		m.verification(ctx, string(failure.KindOf(err)))
		m.move(ctx, a, domain.StateExpired, err)
		recordSpanError(span, err)
		return m.snapshot(a), err
	default:
		m.verification(ctx, "error")
		recordSpanError(span, err)
		return m.snapshot(a), err
	}
}

// Commit submits a verified attempt to the ledger (or identity service for LOGIN). It is only
// legal in OTPVerified; from any other state it fails with failure.ErrInvalidTransition without
// contacting a collaborator. On success the ledger snapshot is reconciled before the success
// result is dispatched. A rejection ends the attempt in Failed and is never retried.
func (m *Machine) Commit(ctx context.Context, attemptID string) (domain.Attempt, error) {
	ctx, span := m.tracer.Start(ctx, "authz.Commit", trace.WithAttributes(attribute.String("attempt.id", attemptID)))
	defer span.End()

	a, err := m.acquire(ctx, attemptID, domain.StateOTPVerified)
	if err != nil {
		recordSpanError(span, err)
		return m.viewOf(attemptID), err
	}
	defer m.release(a)

	m.mu.Lock()
	code := a.code
	a.code = ""
	m.mu.Unlock()
	span.SetAttributes(attribute.String("intent.kind", string(a.intent.Kind())))

	out, err := m.commit(ctx, a.intent, code)
	if err != nil {
		m.move(ctx, a, domain.StateFailed, err)
		recordSpanError(span, err)
		return m.snapshot(a), err
	}

	m.mu.Lock()
	a.record = out.record
	a.principal = out.principal
	m.mu.Unlock()
	m.move(ctx, a, domain.StateCommitted, nil)

	snap, stale := m.reconcile(ctx, a.intent, out)
	m.mu.Lock()
	a.snapshot = snap
	m.mu.Unlock()

	src := dispatch.Source{UserID: out.userID, AttemptID: a.id}
	m.dispatch(ctx, dispatch.KindSuccess, src, successMessage(a.intent.Kind()))
	if stale != nil {
		m.dispatch(ctx, dispatch.KindWarning, src, failure.Message(stale))
	}
	return m.snapshot(a), nil
}

// Cancel ends an attempt in Draft or OTPRequested. An issued challenge is left to expire.
func (m *Machine) Cancel(ctx context.Context, attemptID string) (domain.Attempt, error) {
	a, err := m.acquire(ctx, attemptID, domain.StateDraft, domain.StateOTPRequested)
	if err != nil {
		return m.viewOf(attemptID), err
	}
	defer m.release(a)
	m.move(ctx, a, domain.StateCancelled, nil)
	return m.snapshot(a), nil
}

// Resend asks for a new code for an attempt in OTPRequested. The previous code stops verifying.
// Before the cooldown has passed it fails with failure.ErrCooldownActive.
func (m *Machine) Resend(ctx context.Context, attemptID string) (domain.Attempt, error) {
	a, err := m.acquire(ctx, attemptID, domain.StateOTPRequested)
	if err != nil {
		return m.viewOf(attemptID), err
	}
	defer m.release(a)

	h, err := m.otp.Resend(ctx, a.intent.SubjectUserID(), a.intent.Purpose())
	if err != nil {
		return m.snapshot(a), err
	}
	m.mu.Lock()
	a.challenge = h
	a.lastError = nil
	a.updatedAt = m.nowF()
	m.mu.Unlock()
	m.logger.Info("code resent", logging.AttemptID(a.id), zap.String("delivered_via", h.DeliveredVia))
	return m.snapshot(a), nil
}

// Get returns the attempt after applying lazy expiry.
func (m *Machine) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	m.mu.Lock()
	a, ok := m.attempts[attemptID]
	if !ok {
		m.mu.Unlock()
		return domain.Attempt{}, failure.New(failure.ErrNotFound, "Unknown attempt %s", attemptID)
	}
	var from domain.State
	expired := false
	if !a.busy {
		from, expired = m.expireLocked(a)
	}
	v := a.view()
	cause := a.lastError
	m.mu.Unlock()

	if expired {
		m.observe(ctx, a, from, domain.StateExpired, cause)
	}
	return v, nil
}

// Active returns the non-terminal attempt for subject and kind, if any.
func (m *Machine) Active(ctx context.Context, subjectUserID string, kind intentdomain.Kind) (domain.Attempt, bool) {
	m.mu.Lock()
	id, ok := m.active[otpdomain.Key(subjectUserID, kind.Purpose())]
	m.mu.Unlock()
	if !ok {
		return domain.Attempt{}, false
	}
	v, err := m.Get(ctx, id)
	if err != nil || v.Terminal() {
		return domain.Attempt{}, false
	}
	return v, true
}

// acquire marks the attempt busy after lazy expiry and checks it is in one of the allowed states.
func (m *Machine) acquire(ctx context.Context, attemptID string, allowed ...domain.State) (*attempt, error) {
	m.mu.Lock()
	a, ok := m.attempts[attemptID]
	if !ok {
		m.mu.Unlock()
		return nil, failure.New(failure.ErrNotFound, "Unknown attempt %s", attemptID)
	}
	if a.busy {
		m.mu.Unlock()
		return nil, failure.New(failure.ErrAttemptInProgress, "This request is already being processed")
	}
	from, expired := m.expireLocked(a)
	cause := a.lastError
	state := a.state
	legal := false
	for _, s := range allowed {
		if state == s {
			legal = true
			break
		}
	}
	if legal {
		a.busy = true
	}
	m.mu.Unlock()

	if expired {
		m.observe(ctx, a, from, domain.StateExpired, cause)
	}
	if legal {
		return a, nil
	}
	if state == domain.StateExpired {
		return nil, failure.New(failure.ErrExpired, "Code expired. Request a new one")
	}
	return nil, failure.New(failure.ErrInvalidTransition, "Cannot do that while the request is %s", state)
}

func (m *Machine) release(a *attempt) {
	m.mu.Lock()
	a.busy = false
	m.mu.Unlock()
}

// expireLocked moves a to Expired when its challenge deadline has passed and reports the state
// it left. Draft attempts have no deadline. The caller runs observe once unlocked.
func (m *Machine) expireLocked(a *attempt) (domain.State, bool) {
	if a.state.Terminal() || a.state == domain.StateDraft || a.challenge.ExpiresAt.IsZero() {
		return "", false
	}
	if !m.nowF().After(a.challenge.ExpiresAt) {
		return "", false
	}
	from := a.state
	a.state = domain.StateExpired
	a.code = ""
	a.lastError = failure.New(failure.ErrExpired, "Code expired. Request a new one")
	a.updatedAt = m.nowF()
	m.deactivateLocked(a)
	return from, true
}

// move performs a transition of a busy attempt and its side effects.
func (m *Machine) move(ctx context.Context, a *attempt, to domain.State, cause error) {
	m.mu.Lock()
	from := a.state
	a.state = to
	a.lastError = cause
	a.updatedAt = m.nowF()
	if to.Terminal() {
		a.code = ""
		m.deactivateLocked(a)
	}
	m.mu.Unlock()
	m.observe(ctx, a, from, to, cause)
}

// pruneLocked drops terminal attempts last touched more than retention ago.
func (m *Machine) pruneLocked() {
	cutoff := m.nowF().Add(-m.retention)
	for id, a := range m.attempts {
		if a.state.Terminal() && !a.busy && a.updatedAt.Before(cutoff) {
			delete(m.attempts, id)
		}
	}
}

func (m *Machine) deactivateLocked(a *attempt) {
	if m.active[a.key()] == a.id {
		delete(m.active, a.key())
	}
}

// observe logs, counts, audits and, for failures and cancellation, dispatches a transition.
// Every transition into Failed or Expired produces exactly one error result.
func (m *Machine) observe(ctx context.Context, a *attempt, from, to domain.State, cause error) {
	fields := []zap.Field{logging.AttemptID(a.id), zap.String("from", string(from)), zap.String("to", string(to))}
	if cause != nil {
		fields = append(fields, zap.String("error_kind", string(failure.KindOf(cause))))
		m.logger.Info("attempt transition", fields...)
	} else {
		m.logger.Debug("attempt transition", fields...)
	}
	if m.metrics != nil && from != "" {
		m.metrics.Transition(ctx, string(a.intent.Kind()), string(from), string(to))
	}
	m.record(ctx, a, from, to, cause)

	src := dispatch.Source{UserID: a.intent.SubjectUserID(), AttemptID: a.id}
	switch to {
	case domain.StateFailed, domain.StateExpired:
		m.dispatch(ctx, dispatch.KindError, src, failure.Message(cause))
	case domain.StateCancelled:
		m.dispatch(ctx, dispatch.KindInfo, src, describe(a.intent.Kind())+" cancelled")
	}
}

type auditMetadata struct {
	From      string `json:"from,omitempty"`
	Amount    string `json:"amount,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (m *Machine) record(ctx context.Context, a *attempt, from, to domain.State, cause error) {
	if m.audit == nil {
		return
	}
	meta := auditMetadata{From: string(from)}
	if a.intent.Kind().MovesMoney() {
		meta.Amount = a.intent.Amount().StringFixed(2)
	}
	if cause != nil {
		meta.ErrorKind = string(failure.KindOf(cause))
		meta.Error = failure.Message(cause)
	}
	raw, _ := json.Marshal(meta)
	ar := audit.ForTransition(string(a.intent.Kind()), string(to))
	m.audit.LogEvent(ctx, a.intent.SubjectUserID(), a.id, ar.Action, ar.Resource, string(raw))
}

func (m *Machine) dispatch(ctx context.Context, kind dispatch.Kind, src dispatch.Source, message string) {
	if m.dispatcher == nil {
		return
	}
	m.dispatcher.Dispatch(ctx, kind, src, message)
}

func (m *Machine) verification(ctx context.Context, result string) {
	if m.metrics != nil {
		m.metrics.Verification(ctx, result)
	}
}

func (m *Machine) snapshot(a *attempt) domain.Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return a.view()
}

func (m *Machine) viewOf(attemptID string) domain.Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.attempts[attemptID]; ok {
		return a.view()
	}
	return domain.Attempt{}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(failure.KindOf(err)))
}
