package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/yndnr/routemesh-go/internal/core/domain"
	"github.com/yndnr/routemesh-go/internal/server/httpserver"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 16

// Claims are the JWT claims understood by BearerAuth.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims grant role.
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// BearerConfig configures BearerAuth.
type BearerConfig struct {
	Secret       []byte
	Issuer       string
	RequiredRole string
	Realm        string
	Leeway       time.Duration
	Logger       *slog.Logger
}

// BearerAuth verifies HS256-signed JSON Web Tokens sent as
// "Authorization: Bearer <token>".
type BearerAuth struct {
	cfg    BearerConfig
	parser *jwt.Parser
	logger *slog.Logger
	now    func() time.Time
}

// NewBearerAuth validates cfg and creates the verifier.
func NewBearerAuth(cfg BearerConfig) (*BearerAuth, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: jwt secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.Realm == "" {
		cfg.Realm = DefaultRealm
	}
	b := &BearerAuth{cfg: cfg, logger: cfg.Logger, now: time.Now}
	if b.logger == nil {
		b.logger = slog.Default()
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(func() time.Time { return b.now() }),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	b.parser = jwt.NewParser(opts...)
	return b, nil
}

// Challenge returns the WWW-Authenticate value sent on rejection.
func (b *BearerAuth) Challenge() string {
	return "Bearer realm=" + strconv.Quote(b.cfg.Realm) + `, error="invalid_token"`
}

// Verify implements Verifier.
func (b *BearerAuth) Verify(req *domain.Request, conn *httpserver.Conn) bool {
	raw, ok := ParseBearer(req.Header.Get("Authorization"))
	if !ok {
		return b.reject(req, conn)
	}

	claims, err := b.Parse(raw)
	if err != nil {
		b.logger.Debug("bearer token rejected", "request_id", req.ID, "error", err)
		return b.reject(req, conn)
	}

	req.User = claims.Subject
	if role := b.cfg.RequiredRole; role != "" && !claims.HasRole(role) {
		if err := httpserver.RespondForbidden(req, conn, "token lacks required role "+role); err != nil {
			b.logger.Debug("failed to send forbidden response", "error", err)
		}
		return false
	}
	return true
}

// Parse validates a signed token and returns its claims.
func (b *BearerAuth) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := b.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return b.cfg.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Issue signs a token for subject valid for ttl.
func (b *BearerAuth) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	now := b.now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    b.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        strings.ToLower(ulid.Make().String()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.cfg.Secret)
}

func (b *BearerAuth) reject(req *domain.Request, conn *httpserver.Conn) bool {
	if err := RespondUnauthorized(req, conn, b.Challenge()); err != nil {
		b.logger.Debug("failed to send unauthorized response", "error", err)
	}
	return false
}

// ParseBearer extracts the token from a Bearer Authorization value.
func ParseBearer(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
