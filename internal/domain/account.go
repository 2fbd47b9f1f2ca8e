package domain

import (
	"strings"
	"time"
)

// Account is a login identity. Username and email are unique and compared
// case-insensitively.
type Account struct {
	ID                string
	Username          string
	Email             string
	PasswordHash      string
	FirstName         string
	LastName          string
	Phone             string
	IsActive          bool
	FailedAttempts    int
	LockedUntil       *time.Time
	LastLogin         *time.Time
	PasswordChangedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FullName is "First Last", trimmed when either part is empty.
func (a *Account) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Summary is the public representation of an account.
type Summary struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	FullName  string     `json:"full_name"`
	Phone     *string    `json:"phone"`
	IsActive  bool       `json:"is_active"`
	LastLogin *time.Time `json:"last_login"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Summary never includes credentials or lockout state.
func (a *Account) Summary() Summary {
	s := Summary{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		FullName:  a.FullName(),
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt.UTC(),
		UpdatedAt: a.UpdatedAt.UTC(),
	}
	if a.Phone != "" {
		phone := a.Phone
		s.Phone = &phone
	}
	if a.LastLogin != nil {
		t := a.LastLogin.UTC()
		s.LastLogin = &t
	}
	return s
}

// NormalizeIdentifier prepares a username or email for lookup.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
