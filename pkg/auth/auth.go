// Package auth turns a request's credentials into a voter identity.
//
// Tokens are HS256 JWTs carrying the voter's id in sub plus a display name
// and role flags. With no secret configured the X-User-ID and X-Player-Name
// headers are trusted instead, which is only meant for local development.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Development headers read when no secret is configured.
const (
	HeaderUserID = "X-User-ID"
	HeaderName   = "X-Player-Name"
)

// Identity is who a request acts for.
type Identity struct {
	UserID  string
	Name    string
	Teacher bool
	Student bool
}

type claims struct {
	jwt.RegisteredClaims
	Name    string `json:"name,omitempty"`
	Teacher bool   `json:"teacher,omitempty"`
	Student bool   `json:"student,omitempty"`
}

// Provider issues and validates voter tokens.
type Provider struct {
	secret []byte
	now    func() time.Time
}

// NewProvider creates a provider. An empty secret enables header identity.
func NewProvider(secret string) *Provider {
	return &Provider{secret: []byte(secret), now: time.Now}
}

// Enabled reports whether tokens are required.
func (p *Provider) Enabled() bool { return len(p.secret) > 0 }

// Issue signs a token for id that expires after ttl.
func (p *Provider) Issue(id Identity, ttl time.Duration) (string, error) {
	now := p.now()
	c := &claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:    id.Name,
		Teacher: id.Teacher,
		Student: id.Student,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and returns its identity.
func (p *Provider) Validate(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return p.secret, nil
	}, jwt.WithTimeFunc(p.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, ErrInvalidSignature):
			return Identity{}, ErrInvalidSignature
		}
		return Identity{}, ErrInvalidToken
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	id := Identity{UserID: c.Subject, Name: c.Name, Teacher: c.Teacher, Student: c.Student}
	if id.UserID == "" && id.Name == "" {
		return Identity{}, ErrAnonymous
	}
	return id, nil
}

// Authenticate resolves the identity of r.
func (p *Provider) Authenticate(r *http.Request) (Identity, error) {
	if !p.Enabled() {
		id := Identity{
			UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Name:   strings.TrimSpace(r.Header.Get(HeaderName)),
		}
		if id.UserID == "" && id.Name == "" {
			return Identity{}, ErrAnonymous
		}
		return id, nil
	}
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return Identity{}, ErrMissingToken
	}
	return p.Validate(strings.TrimSpace(token))
}

// Middleware rejects unauthenticated requests with 401 and stores the
// identity of the rest in their context.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := p.Authenticate(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "unauthorized", "message": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
	})
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying id.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
