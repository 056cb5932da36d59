package users

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Directory.GetByChatID for an unknown chat id.
	ErrNotFound = errors.New("users: identity not found")
	// ErrUnavailable wraps any backend failure of a Directory.
	ErrUnavailable = errors.New("users: directory unavailable")
	// ErrAccessDenied is returned when the acting role may not run an operation.
	ErrAccessDenied = errors.New("users: access denied")
	ErrEmptyChatID  = errors.New("users: empty chat id")
)

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleClient Role = "CLIENT"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleClient }

type Profile struct {
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// Label renders the display name used in notifications:
// "@username", else "first last", else "Unknown User".
func (p Profile) Label() string {
	if u := strings.TrimSpace(p.Username); u != "" {
		return "@" + strings.TrimPrefix(u, "@")
	}
	if name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName)); name != "" {
		return name
	}
	return "Unknown User"
}

// Identity is one known chat. ChatID is immutable; CreatedAt is set once.
type Identity struct {
	ChatID    string    `json:"chatId"`
	Role      Role      `json:"role"`
	Profile   Profile   `json:"profile"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Directory is the persistent user store. Implementations must be safe for
// concurrent use and wrap backend failures with ErrUnavailable.
type Directory interface {
	// UpsertContact creates a CLIENT identity or refreshes the profile of an
	// existing one. It never changes the role. created reports whether this
	// call inserted the record.
	UpsertContact(ctx context.Context, chatID string, p Profile) (id Identity, created bool, err error)
	GetByChatID(ctx context.Context, chatID string) (Identity, error)
	// SetAdminRole forces ADMIN, creating a profile-less record when absent.
	SetAdminRole(ctx context.Context, chatID string) (Identity, error)
	// ListByRole returns identities ordered by CreatedAt descending, ties by
	// ChatID ascending, plus the total count for the role.
	ListByRole(ctx context.Context, role Role, offset, limit int) ([]Identity, int, error)
	CountByRole(ctx context.Context, role Role) (int, error)
	CountAll(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Stats is a snapshot of directory counts.
type Stats struct {
	Total   int `json:"total"`
	Admins  int `json:"admins"`
	Clients int `json:"clients"`
}

func LoadStats(ctx context.Context, dir Directory) (Stats, error) {
	var st Stats
	var err error
	if st.Total, err = dir.CountAll(ctx); err != nil {
		return Stats{}, err
	}
	if st.Admins, err = dir.CountByRole(ctx, RoleAdmin); err != nil {
		return Stats{}, err
	}
	if st.Clients, err = dir.CountByRole(ctx, RoleClient); err != nil {
		return Stats{}, err
	}
	return st, nil
}
