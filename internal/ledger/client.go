// Package ledger is the client for the external ledger service: balances, history and commits.
package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paywallet/internal/failure"
	"paywallet/internal/httpapi"
	intentdomain "paywallet/internal/intent/domain"
	"paywallet/internal/ledger/domain"
	"paywallet/internal/logging"
)

const (
	defaultReadTries       = 3
	defaultInitialInterval = 200 * time.Millisecond
)

// Client talks to the ledger routes of the wallet backend.
// Reads are retried with exponential backoff; commits are never retried.
type Client struct {
	api             *httpapi.Client
	readTries       uint
	initialInterval time.Duration
	logger          *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithReadRetry sets how many times a read is attempted and the first backoff interval.
func WithReadRetry(tries uint, initial time.Duration) Option {
	return func(c *Client) {
		c.readTries = tries
		c.initialInterval = initial
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.logger = l } }

// NewClient returns a ledger client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		api:             httpapi.New(baseURL, timeout),
		readTries:       defaultReadTries,
		initialInterval: defaultInitialInterval,
	}
	for _, o := range opts {
		o(c)
	}
	if c.readTries == 0 {
		c.readTries = 1
	}
	c.logger = logging.OrNop(c.logger).Named("ledger")
	return c
}

// GetBalance returns the authoritative balance of userID.
func (c *Client) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	out, err := retryRead(ctx, c, "balance", func() (balanceJSON, error) {
		var b balanceJSON
		_, err := c.api.Do(ctx, http.MethodGet, "/wallet/balance/"+url.PathEscape(userID), nil, &b)
		return b, err
	})
	if err != nil {
		return decimal.Decimal{}, readError(err, "Could not load balance")
	}
	return out.Balance, nil
}

// GetTransactions returns userID's committed transactions, most recent first.
func (c *Client) GetTransactions(ctx context.Context, userID string) ([]domain.Record, error) {
	docs, err := retryRead(ctx, c, "transactions", func() ([]transactionJSON, error) {
		var d []transactionJSON
		_, err := c.api.Do(ctx, http.MethodGet, "/wallet/transactions/"+url.PathEscape(userID), nil, &d)
		return d, err
	})
	if err != nil {
		return nil, readError(err, "Could not load transactions")
	}
	return normalizeAll(docs, userID), nil
}

type sendRequest struct {
	FromUserID  string      `json:"fromUserId"`
	ToUserEmail string      `json:"toUserEmail"`
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
	OTPCode     string      `json:"otpCode"`
}

type addRequest struct {
	UserID      string      `json:"userId"`
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
	OTPCode     string      `json:"otpCode"`
}

type passwordRequest struct {
	Email       string `json:"email"`
	NewPassword string `json:"newPassword"`
	OTPCode     string `json:"otpCode"`
}

// CommitSend submits a verified SEND intent. Rejections and transport failures are
// failure.ErrRemoteRejected carrying the server's message.
func (c *Client) CommitSend(ctx context.Context, in *intentdomain.Intent, otpCode string) (domain.Record, error) {
	cp := in.Counterparty()
	if cp == nil {
		return domain.Record{}, failure.New(failure.ErrRemoteRejected, "Receiver not found")
	}
	var doc transactionJSON
	if _, err := c.api.Do(ctx, http.MethodPost, "/wallet/send-with-otp", sendRequest{
		FromUserID:  in.SubjectUserID(),
		ToUserEmail: cp.Email,
		Amount:      amountJSON(in.Amount()),
		Description: in.Description(),
		OTPCode:     otpCode,
	}, &doc); err != nil {
		return domain.Record{}, c.commitError("send", err)
	}
	return normalize(doc, in.SubjectUserID()), nil
}

// CommitAdd submits a verified ADD intent.
func (c *Client) CommitAdd(ctx context.Context, in *intentdomain.Intent, otpCode string) (domain.Record, error) {
	var doc transactionJSON
	if _, err := c.api.Do(ctx, http.MethodPost, "/wallet/add-money-with-otp", addRequest{
		UserID:      in.SubjectUserID(),
		Amount:      amountJSON(in.Amount()),
		Description: in.Description(),
		OTPCode:     otpCode,
	}, &doc); err != nil {
		return domain.Record{}, c.commitError("add", err)
	}
	return normalize(doc, in.SubjectUserID()), nil
}

// CommitPasswordChange submits a verified PASSWORD_CHANGE intent.
func (c *Client) CommitPasswordChange(ctx context.Context, in *intentdomain.Intent, otpCode string) error {
	if _, err := c.api.Do(ctx, http.MethodPatch, "/user/update-password", passwordRequest{
		Email:       in.AccountEmail(),
		NewPassword: in.NewPassword(),
		OTPCode:     otpCode,
	}, nil); err != nil {
		return c.commitError("password_change", err)
	}
	return nil
}

func (c *Client) commitError(op string, err error) error {
	if re, ok := httpapi.IsRemote(err); ok {
		c.logger.Info("commit rejected", zap.String("op", op), zap.Int("status", re.Status), zap.String("message", re.Message))
		return failure.Wrap(failure.ErrRemoteRejected, err, "%s", re.Message)
	}
	c.logger.Warn("commit transport failure", zap.String("op", op), zap.Error(err))
	return failure.Wrap(failure.ErrRemoteRejected, err, "Could not reach the wallet service")
}

func retryRead[T any](ctx context.Context, c *Client, what string, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op()
		if err == nil {
			return v, nil
		}
		if !httpapi.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		c.logger.Debug("ledger read failed", zap.String("what", what), zap.Int("attempt", attempt), zap.Error(err))
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.readTries))
}

func readError(err error, msg string) error {
	if re, ok := httpapi.IsRemote(err); ok && re.Status == http.StatusNotFound {
		return failure.Wrap(failure.ErrNotFound, err, "%s", msg)
	}
	return failure.Wrap(failure.ErrStaleData, err, "%s", msg)
}
