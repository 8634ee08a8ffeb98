package storage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yndnr/routemesh-go/pkg/cmap"
)

// MemoryUserStore keeps users in a sharded in-process map.
type MemoryUserStore struct {
	users  *cmap.Map[string, *User]
	closed atomic.Bool
	now    func() time.Time
}

// NewMemoryUserStore creates an empty store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users: cmap.New[string, *User](),
		now:   time.Now,
	}
}

// Get implements UserStore.
func (s *MemoryUserStore) Get(_ context.Context, name string) (*User, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	u, ok := s.users.Get(name)
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

// Put implements UserStore.
func (s *MemoryUserStore) Put(_ context.Context, u *User) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := u.Validate(); err != nil {
		return err
	}
	rec := u.Clone()
	rec.UpdatedAt = s.now()
	if prev, ok := s.users.Get(u.Name); ok {
		rec.CreatedAt = prev.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
	s.users.Set(rec.Name, rec)
	return nil
}

// Delete implements UserStore.
func (s *MemoryUserStore) Delete(_ context.Context, name string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if _, ok := s.users.Pop(name); !ok {
		return ErrUserNotFound
	}
	return nil
}

// List implements UserStore.
func (s *MemoryUserStore) List(_ context.Context) ([]*User, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	out := make([]*User, 0, s.users.Count())
	s.users.Range(func(_ string, u *User) bool {
		out = append(out, u.Clone())
		return true
	})
	sortUsers(out)
	return out, nil
}

// Close implements UserStore.
func (s *MemoryUserStore) Close() error {
	s.closed.Store(true)
	return nil
}
