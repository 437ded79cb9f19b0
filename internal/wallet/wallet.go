// Package wallet is the session-scoped entry point: it owns the signed-in principal and hands
// out attempts for the caller to drive through OTP authorization.
package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paywallet/internal/authz"
	authzdomain "paywallet/internal/authz/domain"
	"paywallet/internal/dispatch"
	"paywallet/internal/identity"
	identitydomain "paywallet/internal/identity/domain"
	"paywallet/internal/intent"
	intentdomain "paywallet/internal/intent/domain"
	ledgerdomain "paywallet/internal/ledger/domain"
	"paywallet/internal/logging"
	"paywallet/internal/reconcile"
	sessiondomain "paywallet/internal/session/domain"
)

// ErrNotSignedIn is returned by operations that need a principal.
var ErrNotSignedIn = errors.New("wallet: not signed in")

// Accounts is the identity service.
type Accounts interface {
	Register(ctx context.Context, form identitydomain.Registration) (*identitydomain.Principal, error)
	LoginPassword(ctx context.Context, emailOrMobile, password string) (*identitydomain.Principal, error)
	identity.UserLister
}

// Sessions persists the signed-in principal and the favourites of each owner.
type Sessions interface {
	Save(ctx context.Context, p identitydomain.Principal) (*sessiondomain.Session, error)
	Load(ctx context.Context) (*sessiondomain.Session, bool, error)
	Clear(ctx context.Context) error
	identity.FavoriteStore
}

// Deps holds the collaborators of a Wallet.
type Deps struct {
	// Accounts registers and signs in users and lists the directory. Required.
	Accounts Accounts
	// Sessions persists the session. If nil, sign-in lasts for the process only.
	Sessions Sessions
	// Machine drives every OTP-gated attempt. Required.
	Machine *authz.Machine
	// Reconciler owns the ledger snapshot cache. Required.
	Reconciler *reconcile.Reconciler
	// Dispatcher receives outcome results. If nil, Results is always empty.
	Dispatcher *dispatch.Dispatcher
	// Limits evaluates amount ceilings. If nil, the builder's defaults apply.
	Limits intent.LimitsEvaluator
	Logger *zap.Logger
}

// Wallet is one user session. Its state is never shared between sessions.
type Wallet struct {
	deps   Deps
	logger *zap.Logger
	// loginBuilder validates LOGIN intents, which exist before any principal does.
	loginBuilder *intent.Builder

	mu        sync.RWMutex
	principal *identitydomain.Principal
	directory *identity.Directory
	builder   *intent.Builder
}

// New returns a signed-out Wallet.
func New(deps Deps) *Wallet {
	return &Wallet{
		deps:         deps,
		logger:       logging.OrNop(deps.Logger).Named("wallet"),
		loginBuilder: intent.NewBuilder(nil, nil, deps.Limits),
	}
}

// Rehydrate restores a persisted session. It reports false when there is none to restore.
func (w *Wallet) Rehydrate(ctx context.Context) (bool, error) {
	if w.deps.Sessions == nil {
		return false, nil
	}
	sess, ok, err := w.deps.Sessions.Load(ctx)
	if err != nil || !ok {
		return false, err
	}
	w.adopt(sess.Principal)
	w.logger.Debug("session restored", logging.UserID(sess.Principal.UserID))
	return true, nil
}

// Principal returns the signed-in user.
func (w *Wallet) Principal() (identitydomain.Principal, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.principal == nil {
		return identitydomain.Principal{}, false
	}
	return *w.principal, true
}

// SignUp registers a new user and signs them in.
func (w *Wallet) SignUp(ctx context.Context, form identitydomain.Registration) (*identitydomain.Principal, error) {
	p, err := w.deps.Accounts.Register(ctx, form)
	if err != nil {
		return nil, err
	}
	if err := w.signIn(ctx, *p); err != nil {
		return nil, err
	}
	w.notify(ctx, dispatch.KindSuccess, p.UserID, "Account created successfully")
	return p, nil
}

// SignIn signs in with a password.
func (w *Wallet) SignIn(ctx context.Context, emailOrMobile, password string) (*identitydomain.Principal, error) {
	p, err := w.deps.Accounts.LoginPassword(ctx, emailOrMobile, password)
	if err != nil {
		return nil, err
	}
	if err := w.signIn(ctx, *p); err != nil {
		return nil, err
	}
	w.notify(ctx, dispatch.KindSuccess, p.UserID, "Signed in successfully")
	return p, nil
}

// BeginLogin starts an OTP sign-in for emailOrMobile. Drive it with Submit and Confirm.
func (w *Wallet) BeginLogin(ctx context.Context, emailOrMobile string) (authzdomain.Attempt, error) {
	in, err := w.loginBuilder.Build(ctx, intentdomain.KindLogin, intent.RawFields{SubjectUserID: emailOrMobile})
	if err != nil {
		return authzdomain.Attempt{}, err
	}
	return w.deps.Machine.Start(ctx, in)
}

// SendMoney starts a transfer to the registered user with email recipient.
func (w *Wallet) SendMoney(ctx context.Context, recipient, amount, description string) (authzdomain.Attempt, error) {
	return w.start(ctx, intentdomain.KindSend, func(p identitydomain.Principal) intent.RawFields {
		return intent.RawFields{SubjectUserID: p.UserID, Amount: amount, Recipient: recipient, Description: description}
	})
}

// AddMoney starts a deposit into the principal's own wallet.
func (w *Wallet) AddMoney(ctx context.Context, amount, description string) (authzdomain.Attempt, error) {
	return w.start(ctx, intentdomain.KindAdd, func(p identitydomain.Principal) intent.RawFields {
		return intent.RawFields{SubjectUserID: p.UserID, Amount: amount, Description: description}
	})
}

// ChangePassword starts a password change for the principal's account.
func (w *Wallet) ChangePassword(ctx context.Context, newPassword string) (authzdomain.Attempt, error) {
	return w.start(ctx, intentdomain.KindPasswordChange, func(p identitydomain.Principal) intent.RawFields {
		return intent.RawFields{SubjectUserID: p.UserID, AccountEmail: p.Email, NewPassword: newPassword}
	})
}

func (w *Wallet) start(ctx context.Context, kind intentdomain.Kind, fields func(identitydomain.Principal) intent.RawFields) (authzdomain.Attempt, error) {
	w.mu.RLock()
	p, b := w.principal, w.builder
	w.mu.RUnlock()
	if p == nil {
		return authzdomain.Attempt{}, ErrNotSignedIn
	}
	in, err := b.Build(ctx, kind, fields(*p))
	if err != nil {
		return authzdomain.Attempt{}, err
	}
	return w.deps.Machine.Start(ctx, in)
}

// Submit verifies the code of an attempt.
func (w *Wallet) Submit(ctx context.Context, attemptID, code string) (authzdomain.Attempt, error) {
	return w.deps.Machine.SubmitCode(ctx, attemptID, code)
}

// Confirm commits a verified attempt. A committed LOGIN signs the principal in.
func (w *Wallet) Confirm(ctx context.Context, attemptID string) (authzdomain.Attempt, error) {
	a, err := w.deps.Machine.Commit(ctx, attemptID)
	if err != nil {
		return a, err
	}
	if a.Principal != nil {
		if err := w.signIn(ctx, *a.Principal); err != nil {
			return a, err
		}
	}
	return a, nil
}

// Resend asks for a new code for an attempt.
func (w *Wallet) Resend(ctx context.Context, attemptID string) (authzdomain.Attempt, error) {
	return w.deps.Machine.Resend(ctx, attemptID)
}

// Cancel abandons an attempt that has not been verified.
func (w *Wallet) Cancel(ctx context.Context, attemptID string) (authzdomain.Attempt, error) {
	return w.deps.Machine.Cancel(ctx, attemptID)
}

// Attempt returns the current state of an attempt.
func (w *Wallet) Attempt(ctx context.Context, attemptID string) (authzdomain.Attempt, error) {
	return w.deps.Machine.Get(ctx, attemptID)
}

// Balance returns the cached balance of the principal. Call Refresh to update it.
func (w *Wallet) Balance() (decimal.Decimal, bool) {
	p, ok := w.Principal()
	if !ok {
		return decimal.Decimal{}, false
	}
	return w.deps.Reconciler.CachedBalance(p.UserID)
}

// History returns the cached snapshot of the principal, most recent record first.
func (w *Wallet) History() (*ledgerdomain.Snapshot, bool) {
	p, ok := w.Principal()
	if !ok {
		return nil, false
	}
	return w.deps.Reconciler.Snapshot(p.UserID)
}

// Refresh reconciles the ledger snapshot and reloads the contact directory. A stale snapshot is
// returned together with failure.ErrStaleData.
func (w *Wallet) Refresh(ctx context.Context) (*ledgerdomain.Snapshot, error) {
	w.mu.RLock()
	p, dir := w.principal, w.directory
	w.mu.RUnlock()
	if p == nil {
		return nil, ErrNotSignedIn
	}
	if err := dir.Refresh(ctx); err != nil {
		w.logger.Warn("contacts refresh failed", logging.UserID(p.UserID), zap.Error(err))
	}
	snap, err := w.deps.Reconciler.Reconcile(ctx, p.UserID)
	if err != nil && snap != nil && snap.Stale {
		w.notify(ctx, dispatch.KindWarning, p.UserID, "Showing saved balance; the wallet service is unreachable")
	}
	return snap, err
}

// Contacts lists the other registered users, favourites first.
func (w *Wallet) Contacts(ctx context.Context) ([]identitydomain.Contact, error) {
	dir, err := w.dir()
	if err != nil {
		return nil, err
	}
	return dir.Contacts(ctx)
}

// ToggleFavorite flips the favourite flag of a contact and reports the new value.
func (w *Wallet) ToggleFavorite(ctx context.Context, email string) (bool, error) {
	dir, err := w.dir()
	if err != nil {
		return false, err
	}
	return dir.ToggleFavorite(ctx, email)
}

// Results returns the outcome results still inside the display window.
func (w *Wallet) Results() []dispatch.Result {
	if w.deps.Dispatcher == nil {
		return nil
	}
	return w.deps.Dispatcher.Active()
}

// SignOut clears the principal, the persisted session and the cached snapshot.
func (w *Wallet) SignOut(ctx context.Context) error {
	w.mu.Lock()
	p := w.principal
	w.principal, w.directory, w.builder = nil, nil, nil
	w.mu.Unlock()

	var errs []error
	if w.deps.Sessions != nil {
		errs = append(errs, w.deps.Sessions.Clear(ctx))
	}
	if p != nil {
		errs = append(errs, w.deps.Reconciler.Forget(ctx, p.UserID))
		w.logger.Info("signed out", logging.UserID(p.UserID))
	}
	if w.deps.Dispatcher != nil {
		w.deps.Dispatcher.Clear()
	}
	return errors.Join(errs...)
}

func (w *Wallet) signIn(ctx context.Context, p identitydomain.Principal) error {
	if w.deps.Sessions != nil {
		if _, err := w.deps.Sessions.Save(ctx, p); err != nil {
			return err
		}
	}
	w.adopt(p)
	w.logger.Info("signed in", logging.UserID(p.UserID))
	if _, err := w.deps.Reconciler.Reconcile(ctx, p.UserID); err != nil {
		w.logger.Warn("initial reconcile failed", logging.UserID(p.UserID), zap.Error(err))
	}
	return nil
}

func (w *Wallet) adopt(p identitydomain.Principal) {
	var favs identity.FavoriteStore
	if w.deps.Sessions != nil {
		favs = w.deps.Sessions
	}
	dir := identity.NewDirectory(w.deps.Accounts, favs, p.UserID)
	b := intent.NewBuilder(dir, w.deps.Reconciler, w.deps.Limits)

	w.mu.Lock()
	w.principal = &p
	w.directory = dir
	w.builder = b
	w.mu.Unlock()
}

func (w *Wallet) dir() (*identity.Directory, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.directory == nil {
		return nil, ErrNotSignedIn
	}
	return w.directory, nil
}

func (w *Wallet) notify(ctx context.Context, kind dispatch.Kind, userID, message string) {
	if w.deps.Dispatcher == nil {
		return
	}
	w.deps.Dispatcher.Dispatch(ctx, kind, dispatch.Source{UserID: userID}, message)
}
