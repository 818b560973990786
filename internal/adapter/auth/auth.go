// Package auth resolves which identity a client may claim.
//
// With a configured secret every request must carry an HS256 bearer token
// whose subject is the identity. Without a secret the service runs in trust
// mode: the identity sent in join is taken as given, the way an upstream
// gateway that already authenticated the user expects.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

var (
	ErrUnauthenticated  = errors.New("auth: unauthenticated")
	ErrIdentityMismatch = errors.New("auth: claimed identity does not match token")
)

// Principal is the result of inspecting one request.
type Principal struct {
	Identity model.Identity
	// Verified is false in trust mode.
	Verified bool
}

// Admit decides the identity a connection runs under. An empty claim adopts the token subject.
func (p Principal) Admit(claimed model.Identity) (model.Identity, error) {
	if !p.Verified {
		return claimed, nil
	}
	if claimed.IsZero() || claimed == p.Identity {
		return p.Identity, nil
	}
	return "", fmt.Errorf("%w: %q", ErrIdentityMismatch, claimed)
}

type Auther interface {
	Inspect(r *http.Request) (Principal, error)
}

var (
	_ Auther = (*JWTAuther)(nil)
	_ Auther = TrustAuther{}
)

// TrustAuther accepts everybody.
type TrustAuther struct{}

func (TrustAuther) Inspect(*http.Request) (Principal, error) { return Principal{}, nil }

type JWTAuther struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTAuther(secret, issuer string) *JWTAuther {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTAuther{
		secret: []byte(secret),
		parser: jwt.NewParser(opts...),
	}
}

func (a *JWTAuther) Inspect(r *http.Request) (Principal, error) {
	raw := bearerToken(r)
	if raw == "" {
		return Principal{}, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}

	claims := new(jwt.RegisteredClaims)
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	id := model.ParseIdentity(claims.Subject)
	if id.IsZero() {
		return Principal{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return Principal{Identity: id, Verified: true}, nil
}

// Sign issues a token for identity. Used by operators and tests.
func (a *JWTAuther) Sign(identity model.Identity, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   identity.String(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return tok.SignedString(a.secret)
}

// bearerToken reads the Authorization header, falling back to the access_token
// query parameter because browsers can not set headers on a websocket upgrade.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}
