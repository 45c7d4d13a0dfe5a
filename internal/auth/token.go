// Package auth issues and checks the bearer tokens speech workers present
// when they attach to a dialogue session.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoSecret    = errors.New("worker token secret not configured")
	ErrNoBearer    = errors.New("missing bearer token")
	ErrTokenFormat = errors.New("invalid token format")
	ErrTokenSig    = errors.New("invalid token signature")
	ErrTokenExp    = errors.New("token expired")
	ErrTokenSID    = errors.New("session id mismatch")
)

// Claims is what a valid token asserts.
type Claims struct {
	SessionID string
	Expires   time.Time
}

// Signer mints and verifies worker tokens with a shared HMAC-SHA256 secret.
// A token reads base64url(session.exp) "." base64url(mac).
type Signer struct {
	secret []byte
	skew   time.Duration
	now    func() time.Time
}

// NewSigner returns a signer that tolerates clocks up to skew apart.
func NewSigner(secret string, skew time.Duration) *Signer {
	return &Signer{secret: []byte(secret), skew: skew, now: time.Now}
}

// Issue mints a token for sessionID valid for ttl.
func (s *Signer) Issue(sessionID string, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	if sessionID == "" || strings.Contains(sessionID, ".") {
		return "", ErrTokenFormat
	}
	body := sessionID + "." + strconv.FormatInt(s.now().Add(ttl).Unix(), 10)
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(body)) + "." + enc.EncodeToString(s.mac(body)), nil
}

// Verify checks the signature and expiry and, when sessionID is set, that the
// token was minted for it.
func (s *Signer) Verify(token, sessionID string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrNoSecret
	}
	rawBody, rawSig, ok := strings.Cut(token, ".")
	if !ok {
		return Claims{}, ErrTokenFormat
	}
	enc := base64.RawURLEncoding
	body, err := enc.DecodeString(rawBody)
	if err != nil {
		return Claims{}, ErrTokenFormat
	}
	sig, err := enc.DecodeString(rawSig)
	if err != nil {
		return Claims{}, ErrTokenFormat
	}
	if !hmac.Equal(sig, s.mac(string(body))) {
		return Claims{}, ErrTokenSig
	}

	sid, expStr, ok := strings.Cut(string(body), ".")
	if !ok {
		return Claims{}, ErrTokenFormat
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return Claims{}, ErrTokenFormat
	}
	c := Claims{SessionID: sid, Expires: time.Unix(exp, 0)}
	if s.now().After(c.Expires.Add(s.skew)) {
		return Claims{}, ErrTokenExp
	}
	if sessionID != "" && sid != sessionID {
		return Claims{}, ErrTokenSID
	}
	return c, nil
}

func (s *Signer) mac(body string) []byte {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(body))
	return m.Sum(nil)
}

// BearerToken extracts the Authorization bearer token, falling back to the
// token query parameter for websocket clients that cannot set headers.
func BearerToken(r *http.Request) (string, error) {
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && tok != "" {
		return tok, nil
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, nil
	}
	return "", ErrNoBearer
}
