package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

const tokenVersion = "v1"

var (
	// ErrLinkInvalid covers malformed, forged or foreign-key tokens.
	ErrLinkInvalid = errors.New("invalid download link")
	// ErrLinkExpired is returned for well-signed tokens past their expiry.
	ErrLinkExpired = errors.New("download link expired")
)

// Grant is what a signed download link authorises: Subject may fetch the
// object at Key on behalf of Resource.
type Grant struct {
	Resource string
	Subject  string
	Key      string
}

// SignedURLSigner issues HMAC-SHA256 download tokens of the form
// v1.<payload>.<signature>, both parts base64url encoded.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate signs g and returns the token with its expiry.
func (s *SignedURLSigner) Generate(g Grant) (string, time.Time, error) {
	if g.Resource == "" || g.Key == "" {
		return "", time.Time{}, errors.New("resource and key required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	fields := []string{g.Resource, g.Subject, strconv.FormatInt(expiresAt.Unix(), 10), g.Key}
	payload := base64.RawURLEncoding.EncodeToString([]byte(strings.Join(fields, "\x00")))
	return tokenVersion + "." + payload + "." + s.sign(payload), expiresAt, nil
}

// Parse verifies token and returns its grant and expiry.
func (s *SignedURLSigner) Parse(token string) (Grant, time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] != tokenVersion {
		return Grant{}, time.Time{}, ErrLinkInvalid
	}
	if !hmac.Equal([]byte(s.sign(parts[1])), []byte(parts[2])) {
		return Grant{}, time.Time{}, ErrLinkInvalid
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Grant{}, time.Time{}, ErrLinkInvalid
	}
	fields := strings.SplitN(string(raw), "\x00", 4)
	if len(fields) != 4 {
		return Grant{}, time.Time{}, ErrLinkInvalid
	}
	exp, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Grant{}, time.Time{}, ErrLinkInvalid
	}
	expiresAt := time.Unix(exp, 0)
	grant := Grant{Resource: fields[0], Subject: fields[1], Key: fields[3]}
	if s.now().After(expiresAt) {
		return grant, expiresAt, ErrLinkExpired
	}
	return grant, expiresAt, nil
}

func (s *SignedURLSigner) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(tokenVersion + "." + payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
