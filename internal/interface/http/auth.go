package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/skillpath/skillpath-hub/config"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// IdentityHeader carries the caller identity when header trust is enabled.
const IdentityHeader = "X-Identity"

var (
	errMissingCredentials = shared.NewDomainError("auth", "Identify", shared.ErrUnauthorized, "missing bearer token")
	errInvalidToken       = shared.NewDomainError("auth", "Identify", shared.ErrUnauthorized, "invalid or expired token")
	errSigningDisabled    = shared.NewDomainError("auth", "IssueToken", shared.ErrInvalidState, "no signing secret configured")
)

// Authenticator maps requests to identities. Bearer tokens are HS256 JWTs
// whose subject is the identity.
type Authenticator struct {
	secret      []byte
	issuer      string
	ttl         time.Duration
	trustHeader bool
	now         func() time.Time
}

// NewAuthenticator builds an Authenticator. trustHeader enables the
// X-Identity header; callers decide when that is safe.
func NewAuthenticator(cfg config.AuthConfig, trustHeader bool) *Authenticator {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{
		secret:      []byte(cfg.JWTSecret),
		issuer:      cfg.Issuer,
		ttl:         ttl,
		trustHeader: trustHeader,
		now:         time.Now,
	}
}

// IssueToken signs a token for identity and returns it with its expiry.
func (a *Authenticator) IssueToken(identity string) (string, time.Time, error) {
	if len(a.secret) == 0 {
		return "", time.Time{}, errSigningDisabled
	}
	id, err := shared.NewIdentity(identity)
	if err != nil {
		return "", time.Time{}, err
	}

	now := a.now()
	exp := now.Add(a.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   id.String(),
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ParseToken verifies a bearer token and returns its subject.
func (a *Authenticator) ParseToken(raw string) (string, error) {
	if len(a.secret) == 0 {
		return "", errInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", errInvalidToken.Wrap(err)
	}

	id, err := shared.NewIdentity(claims.Subject)
	if err != nil {
		return "", errInvalidToken.Wrap(err)
	}
	return id.String(), nil
}

// Identify resolves the caller of r. A bearer token wins over the header.
func (a *Authenticator) Identify(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return "", errInvalidToken
		}
		return a.ParseToken(strings.TrimSpace(raw))
	}

	if a.trustHeader {
		if id, err := shared.NewIdentity(r.Header.Get(IdentityHeader)); err == nil {
			return id.String(), nil
		}
	}
	return "", errMissingCredentials
}
