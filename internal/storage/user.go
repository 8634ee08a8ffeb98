// Package storage persists the user records consulted by the Basic
// authentication gate.
//
// Two UserStore implementations are provided: MemoryUserStore for tests
// and ephemeral deployments, and BadgerUserStore which keeps records in an
// embedded Badger database.
package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Common errors
var (
	ErrUserNotFound = errors.New("storage: user not found")
	ErrInvalidUser  = errors.New("storage: invalid user")
	ErrClosed       = errors.New("storage: store closed")
)

// User is a credential record.
type User struct {
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash"`
	Roles        []string  `json:"roles,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks that u can be stored. Names may not contain ':' since
// they travel in Basic credentials.
func (u *User) Validate() error {
	switch {
	case u == nil:
		return fmt.Errorf("%w: nil user", ErrInvalidUser)
	case u.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidUser)
	case strings.ContainsAny(u.Name, ":\r\n"):
		return fmt.Errorf("%w: name %q contains a reserved character", ErrInvalidUser, u.Name)
	case u.PasswordHash == "":
		return fmt.Errorf("%w: missing password hash", ErrInvalidUser)
	}
	return nil
}

// HasRole reports whether the user holds role.
func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	return &c
}

// UserStore is the persistence contract for user records. Implementations
// are safe for concurrent use.
type UserStore interface {
	// Get returns ErrUserNotFound for unknown names.
	Get(ctx context.Context, name string) (*User, error)
	// Put creates or replaces a user. CreatedAt is preserved on replace.
	Put(ctx context.Context, u *User) error
	// Delete returns ErrUserNotFound for unknown names.
	Delete(ctx context.Context, name string) error
	// List returns all users sorted by name.
	List(ctx context.Context) ([]*User, error)
	Close() error
}

func sortUsers(users []*User) {
	slices.SortFunc(users, func(a, b *User) int { return strings.Compare(a.Name, b.Name) })
}
