package domain

import "strings"

// Principal is the authenticated user of a session.
type Principal struct {
	UserID    string `json:"userId"`
	AccountID string `json:"userAccountId,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	FullName  string `json:"fullName,omitempty"`
	Email     string `json:"email"`
	Mobile    string `json:"mobile,omitempty"`
	// AccessToken is the backend session token (JWT), when the backend issues one.
	AccessToken string `json:"accessToken,omitempty"`
}

// Name returns the display name.
func (p *Principal) Name() string {
	if p.FullName != "" {
		return p.FullName
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Contact is another registered user the principal can send money to.
type Contact struct {
	UserID   string
	Email    string
	Name     string
	Mobile   string
	Favorite bool
}

// Registration is the sign-up form.
type Registration struct {
	FirstName string `json:"firstName" validate:"min=2"`
	LastName  string `json:"lastName" validate:"min=2"`
	Email     string `json:"email" validate:"required,email"`
	Mobile    string `json:"mobile" validate:"min=10,numeric"`
	Password  string `json:"password" validate:"min=6"`
}
