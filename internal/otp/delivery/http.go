// Package delivery sends OTP codes to users through the backend delivery service, or keeps them
// in memory in dev mode.
//
// The delivery service does two things with a code: it sends it to the user's email or phone,
// and it registers it for (userId, purpose) for validForSeconds. The commit endpoints
// (/wallet/send-with-otp, /wallet/add-money-with-otp, /user/update-password, /user/login-otp)
// accept an otpCode only if it matches the registered code, and each code is accepted once.
package delivery

import (
	"context"
	"net/http"
	"time"

	"paywallet/internal/failure"
	"paywallet/internal/httpapi"
	"paywallet/internal/otp/domain"
)

const (
	deliverPath     = "/otp/deliver"
	defaultValidity = 5 * time.Minute
)

// HTTPSender posts codes to the OTP delivery service.
type HTTPSender struct {
	api      *httpapi.Client
	validity time.Duration
}

// HTTPOption configures an HTTPSender.
type HTTPOption func(*HTTPSender)

// WithValidity sets how long the service keeps a delivered code acceptable. It should match the
// challenge TTL.
func WithValidity(d time.Duration) HTTPOption {
	return func(s *HTTPSender) {
		if d > 0 {
			s.validity = d
		}
	}
}

// NewHTTPSender returns a sender for the delivery service at baseURL.
func NewHTTPSender(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPSender {
	s := &HTTPSender{api: httpapi.New(baseURL, timeout), validity: defaultValidity}
	for _, o := range opts {
		o(s)
	}
	return s
}

type deliverRequest struct {
	UserID          string `json:"userId"`
	Purpose         string `json:"purpose"`
	Code            string `json:"code"`
	ValidForSeconds int64  `json:"validForSeconds"`
}

type deliverResponse struct {
	DeliveredVia string `json:"deliveredVia"`
}

// SendChallenge delivers and registers code, and returns the channel reported by the service
// (e.g. "email"). A new code for the same (userId, purpose) replaces the registered one. Any
// failure is returned as failure.ErrDelivery. Does not log the code.
func (s *HTTPSender) SendChallenge(ctx context.Context, subjectUserID string, purpose domain.Purpose, code string) (string, error) {
	var out deliverResponse
	_, err := s.api.Do(ctx, http.MethodPost, deliverPath, deliverRequest{
		UserID:          subjectUserID,
		Purpose:         string(purpose),
		Code:            code,
		ValidForSeconds: int64(s.validity / time.Second),
	}, &out)
	if err != nil {
		if re, ok := httpapi.IsRemote(err); ok {
			return "", failure.Wrap(failure.ErrDelivery, err, "%s", re.Message)
		}
		return "", failure.Wrap(failure.ErrDelivery, err, "Failed to send OTP")
	}
	if out.DeliveredVia == "" {
		out.DeliveredVia = "unknown"
	}
	return out.DeliveredVia, nil
}
