package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/routemesh-go/internal/core/domain"
	"github.com/yndnr/routemesh-go/internal/server/httpserver"
	"github.com/yndnr/routemesh-go/internal/storage"
)

// DefaultRealm is used when no realm is configured.
const DefaultRealm = "routemesh"

// storeTimeout bounds a single user lookup.
const storeTimeout = 5 * time.Second

// BasicAuth verifies "Authorization: Basic" credentials against a
// UserStore.
type BasicAuth struct {
	store  storage.UserStore
	realm  string
	logger *slog.Logger

	// dummyHash is verified for unknown users so that lookups of missing
	// and existing names cost the same.
	dummyHash string
}

// NewBasicAuth creates a verifier for realm.
func NewBasicAuth(store storage.UserStore, realm string, logger *slog.Logger) (*BasicAuth, error) {
	if realm == "" {
		realm = DefaultRealm
	}
	if logger == nil {
		logger = slog.Default()
	}
	dummy, err := HashPassword("routemesh-unknown-user")
	if err != nil {
		return nil, err
	}
	return &BasicAuth{store: store, realm: realm, logger: logger, dummyHash: dummy}, nil
}

// Challenge returns the WWW-Authenticate value sent on rejection.
func (b *BasicAuth) Challenge() string {
	return "Basic realm=" + strconv.Quote(b.realm) + `, charset="UTF-8"`
}

// Verify implements Verifier.
func (b *BasicAuth) Verify(req *domain.Request, conn *httpserver.Conn) bool {
	name, password, ok := ParseBasic(req.Header.Get("Authorization"))
	if !ok {
		return b.reject(req, conn)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	user, err := b.store.Get(ctx, name)
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			b.logger.Error("user lookup failed", "request_id", req.ID, "user", name, "error", err)
		}
		_, _ = VerifyPassword(password, b.dummyHash)
		return b.reject(req, conn)
	}

	match, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		b.logger.Error("stored password hash is invalid", "user", name, "error", err)
	}
	if !match {
		return b.reject(req, conn)
	}
	req.User = user.Name
	return true
}

func (b *BasicAuth) reject(req *domain.Request, conn *httpserver.Conn) bool {
	if err := RespondUnauthorized(req, conn, b.Challenge()); err != nil {
		b.logger.Debug("failed to send unauthorized response", "error", err)
	}
	return false
}

// ParseBasic extracts the credentials from a Basic Authorization value.
func ParseBasic(header string) (name, password string, ok bool) {
	const prefix = "basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return "", "", false
	}
	name, password, ok = strings.Cut(string(raw), ":")
	if !ok || name == "" {
		return "", "", false
	}
	return name, password, true
}
