package authz

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paywallet/internal/failure"
	identitydomain "paywallet/internal/identity/domain"
	intentdomain "paywallet/internal/intent/domain"
	ledgerdomain "paywallet/internal/ledger/domain"
	"paywallet/internal/logging"
)

type commitOutcome struct {
	record    *ledgerdomain.Record
	principal *identitydomain.Principal
	// userID owns the ledger to reconcile. For LOGIN it is the signed-in principal.
	userID string
	delta  decimal.Decimal
}

func (m *Machine) commit(ctx context.Context, in *intentdomain.Intent, code string) (commitOutcome, error) {
	out := commitOutcome{userID: in.SubjectUserID()}
	switch in.Kind() {
	case intentdomain.KindSend:
		rec, err := m.ledger.CommitSend(ctx, in, code)
		if err != nil {
			return out, err
		}
		out.record = &rec
		out.delta = in.Amount().Neg()
	case intentdomain.KindAdd:
		rec, err := m.ledger.CommitAdd(ctx, in, code)
		if err != nil {
			return out, err
		}
		out.record = &rec
		out.delta = in.Amount()
	case intentdomain.KindPasswordChange:
		if err := m.ledger.CommitPasswordChange(ctx, in, code); err != nil {
			return out, err
		}
	case intentdomain.KindLogin:
		if m.identity == nil {
			return out, failure.New(failure.ErrRemoteRejected, "Sign-in is not available")
		}
		p, err := m.identity.LoginOTP(ctx, in.SubjectUserID(), code)
		if err != nil {
			return out, err
		}
		out.principal = p
		out.userID = p.UserID
	default:
		return out, failure.New(failure.ErrInvalidTransition, "Unknown action %q", string(in.Kind()))
	}
	return out, nil
}

// reconcile refreshes the ledger snapshot after a commit. The returned error is non-nil only when
// the snapshot is stale; the commit itself stands either way.
func (m *Machine) reconcile(ctx context.Context, in *intentdomain.Intent, out commitOutcome) (*ledgerdomain.Snapshot, error) {
	if m.reconciler == nil || out.userID == "" {
		return nil, nil
	}
	var (
		snap *ledgerdomain.Snapshot
		err  error
	)
	if in.Kind().MovesMoney() {
		snap, err = m.reconciler.ReconcileAfterCommit(ctx, out.userID, out.delta)
	} else {
		snap, err = m.reconciler.Reconcile(ctx, out.userID)
	}
	if err == nil {
		return snap, nil
	}
	m.logger.Warn("post-commit reconcile failed", logging.UserID(out.userID), zap.Error(err))
	if errors.Is(err, failure.ErrStaleData) {
		return snap, err
	}
	return snap, failure.Wrap(failure.ErrStaleData, err, "Balance could not be refreshed")
}

func successMessage(k intentdomain.Kind) string {
	switch k {
	case intentdomain.KindSend:
		return "Money sent successfully"
	case intentdomain.KindAdd:
		return "Money added successfully"
	case intentdomain.KindPasswordChange:
		return "Password updated successfully"
	case intentdomain.KindLogin:
		return "Signed in successfully"
	}
	return "Done"
}

func describe(k intentdomain.Kind) string {
	switch k {
	case intentdomain.KindSend:
		return "Transfer"
	case intentdomain.KindAdd:
		return "Deposit"
	case intentdomain.KindPasswordChange:
		return "Password change"
	case intentdomain.KindLogin:
		return "Sign-in"
	}
	return "Request"
}
