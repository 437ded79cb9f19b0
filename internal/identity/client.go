// Package identity is the client for the identity routes of the wallet backend, plus the
// contact directory built on top of them.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"paywallet/internal/failure"
	"paywallet/internal/httpapi"
	"paywallet/internal/identity/domain"
)

// Client talks to the /user routes of the wallet backend.
type Client struct {
	api      *httpapi.Client
	validate *validator.Validate
}

// NewClient returns an identity client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{api: httpapi.New(baseURL, timeout), validate: validator.New()}
}

type userJSON struct {
	domain.Principal
	Token string `json:"token,omitempty"`
}

func (u userJSON) principal() *domain.Principal {
	p := u.Principal
	if p.AccessToken == "" {
		p.AccessToken = u.Token
	}
	p.Email = strings.ToLower(p.Email)
	return &p
}

type registerRequest struct {
	domain.Registration
	UserID        string `json:"userId"`
	UserAccountID string `json:"userAccountId"`
	FullName      string `json:"fullName"`
}

// GenerateIDs asks the backend for a fresh (userId, accountId) pair.
func (c *Client) GenerateIDs(ctx context.Context) (userID, accountID string, err error) {
	var ids []string
	if _, err := c.api.Do(ctx, http.MethodGet, "/user/", nil, &ids); err != nil {
		return "", "", boundary(err, "Failed to generate user IDs")
	}
	if len(ids) < 2 || ids[0] == "" || ids[1] == "" {
		return "", "", failure.New(failure.ErrRemoteRejected, "Failed to generate user IDs")
	}
	return ids[0], ids[1], nil
}

// Register validates the form, allocates ids and creates the user.
func (c *Client) Register(ctx context.Context, form domain.Registration) (*domain.Principal, error) {
	form = normalizeRegistration(form)
	if err := ValidateRegistration(c.validate, form); err != nil {
		return nil, err
	}
	userID, accountID, err := c.GenerateIDs(ctx)
	if err != nil {
		return nil, err
	}
	var out userJSON
	if _, err := c.api.Do(ctx, http.MethodPost, "/user/save-user", registerRequest{
		Registration:  form,
		UserID:        userID,
		UserAccountID: accountID,
		FullName:      strings.TrimSpace(form.FirstName + " " + form.LastName),
	}, &out); err != nil {
		return nil, boundary(err, "Registration failed")
	}
	p := out.principal()
	if p.UserID == "" {
		p.UserID = userID
		p.AccountID = accountID
		p.FirstName, p.LastName, p.Email, p.Mobile = form.FirstName, form.LastName, form.Email, form.Mobile
	}
	return p, nil
}

// LoginPassword signs in with an email or mobile and password.
func (c *Client) LoginPassword(ctx context.Context, emailOrMobile, password string) (*domain.Principal, error) {
	emailOrMobile = strings.TrimSpace(emailOrMobile)
	if emailOrMobile == "" || password == "" {
		return nil, failure.Invalid("credentials", "Email/mobile and password are required")
	}
	var out userJSON
	if _, err := c.api.Do(ctx, http.MethodPost, "/user/login-password", map[string]string{
		"emailOrMobile": emailOrMobile,
		"password":      password,
	}, &out); err != nil {
		return nil, boundary(err, "Login failed")
	}
	return out.principal(), nil
}

// LoginOTP completes a LOGIN intent with its verified code.
func (c *Client) LoginOTP(ctx context.Context, emailOrMobile, otpCode string) (*domain.Principal, error) {
	var out userJSON
	if _, err := c.api.Do(ctx, http.MethodPost, "/user/login-otp", map[string]string{
		"emailOrMobile": emailOrMobile,
		"otpCode":       otpCode,
	}, &out); err != nil {
		return nil, boundary(err, "OTP verification failed")
	}
	p := out.principal()
	if p.UserID == "" {
		return nil, failure.New(failure.ErrRemoteRejected, "OTP verification failed")
	}
	return p, nil
}

// AllUsers lists every registered user.
func (c *Client) AllUsers(ctx context.Context) ([]domain.Principal, error) {
	var users []userJSON
	if _, err := c.api.Do(ctx, http.MethodGet, "/user/all", nil, &users); err != nil {
		return nil, boundary(err, "Failed to load contacts")
	}
	out := make([]domain.Principal, 0, len(users))
	for _, u := range users {
		out = append(out, *u.principal())
	}
	return out, nil
}

// ValidateRegistration returns the first invalid field as a failure.ErrValidation error.
func ValidateRegistration(v *validator.Validate, form domain.Registration) error {
	err := v.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return failure.Wrap(failure.ErrValidation, err, "Validation failed")
	}
	switch fe := verrs[0]; fe.Field() {
	case "FirstName":
		return failure.Invalid("firstName", "First name must be at least 2 characters")
	case "LastName":
		return failure.Invalid("lastName", "Last name must be at least 2 characters")
	case "Email":
		return failure.Invalid("email", "Please enter a valid email address")
	case "Mobile":
		return failure.Invalid("mobile", "Mobile number must be at least 10 digits")
	case "Password":
		return failure.Invalid("password", "Password must be at least 6 characters")
	default:
		return failure.Invalid(fe.Field(), "%s is invalid", fe.Field())
	}
}

func normalizeRegistration(f domain.Registration) domain.Registration {
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	f.Mobile = strings.NewReplacer(" ", "", "-", "", "+", "").Replace(strings.TrimSpace(f.Mobile))
	return f
}

// boundary converts a transport or backend error into the failure taxonomy.
func boundary(err error, fallback string) error {
	if re, ok := httpapi.IsRemote(err); ok {
		if re.Status == http.StatusNotFound {
			return failure.Wrap(failure.ErrNotFound, err, "%s", re.Message)
		}
		return failure.Wrap(failure.ErrRemoteRejected, err, "%s", re.Message)
	}
	return failure.Wrap(failure.ErrRemoteRejected, err, "%s", fallback)
}
