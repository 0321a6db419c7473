// Package session turns a stored credential payload back into a usable session.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/mo"
)

// ErrUnusable means neither the payload nor the raw-token fallback produced a token and a user.
var ErrUnusable = errors.New("session: payload is not a usable session")

// Bundle is the token and user record the app signs in with.
type Bundle struct {
	Token string         `json:"token"`
	User  map[string]any `json:"user"`
	// FromRawToken is set when the payload was a bare token and the user came from the local cache.
	FromRawToken bool `json:"-"`
}

// Encode serializes the bundle as the payload saved at enrollment.
func (b Bundle) Encode() (string, error) {
	if b.Token == "" || len(b.User) == 0 {
		return "", ErrUnusable
	}
	out, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// EncodeUser serializes a user record the way the app caches it.
func EncodeUser(user map[string]any) (string, error) {
	if len(user) == 0 {
		return "", ErrUnusable
	}
	out, err := json.Marshal(user)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Parse reads a payload of the form {"token": ..., "user": {...}}. A payload that
// is not JSON at all is taken as a raw token, and the user is then read from
// cachedUser, the JSON user record the app keeps in local storage. Valid JSON of
// any other shape is unusable.
func Parse(payload string, cachedUser mo.Option[string]) (Bundle, error) {
	var b Bundle
	err := json.Unmarshal([]byte(payload), &b)
	var syntaxErr *json.SyntaxError
	switch {
	case err == nil:
	case !errors.As(err, &syntaxErr):
		return Bundle{}, fmt.Errorf("%w: %w", ErrUnusable, err)
	default:
		b = Bundle{Token: payload, FromRawToken: true}
		if raw, ok := cachedUser.Get(); ok {
			var user map[string]any
			if json.Unmarshal([]byte(raw), &user) == nil {
				b.User = user
			}
		}
	}

	b.Token = strings.TrimSpace(b.Token)
	if b.Token == "" || len(b.User) == 0 {
		return Bundle{}, ErrUnusable
	}
	return b, nil
}

// ExpiresAt reads the exp claim of a JWT token without verifying its signature.
// Only the backend can verify the token; the claim is used to warn about a stale
// session before it is sent. Opaque tokens report no expiry.
func (b Bundle) ExpiresAt() mo.Option[time.Time] {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(b.Token, &claims); err != nil {
		return mo.None[time.Time]()
	}
	if claims.ExpiresAt == nil {
		return mo.None[time.Time]()
	}
	return mo.Some(claims.ExpiresAt.Time)
}

// Expired tells whether the token carries an exp claim in the past.
func (b Bundle) Expired(now time.Time) bool {
	exp, ok := b.ExpiresAt().Get()
	return ok && !now.Before(exp)
}
