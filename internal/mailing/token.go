package mailing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// tokenDelimiter separates the fields of the signed payload. Emails and
// campaign IDs containing it are rejected at creation time.
const tokenDelimiter = ":"

// DefaultTokenTTL is how long an unsubscribe token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// TokenClaims are the fields exposed to the caller after verification.
// The issue time is used for the expiry check only and is not exposed.
type TokenClaims struct {
	Email      string
	CampaignID string
}

// TokenCodec creates and verifies signed unsubscribe tokens. Tokens are
// stateless credentials: no lookup is needed to validate an unsubscribe
// link, which keeps the endpoint working across serverless cold starts.
// Expiry is the only invalidation mechanism; there is no revocation list.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenCodec creates a codec with the given server-side signing secret.
// A zero ttl falls back to DefaultTokenTTL.
func NewTokenCodec(secret string, ttl time.Duration) *TokenCodec {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCodec{secret: []byte(secret), ttl: ttl}
}

// Create builds a signed token for the given recipient and campaign.
// The result is URL-safe and opaque, suitable for a query parameter.
func (c *TokenCodec) Create(email, campaignID string, now time.Time) (string, error) {
	if !strings.Contains(email, "@") {
		return "", fmt.Errorf("invalid email %q", email)
	}
	if strings.Contains(email, tokenDelimiter) {
		return "", fmt.Errorf("email must not contain %q", tokenDelimiter)
	}
	if strings.Contains(campaignID, tokenDelimiter) {
		return "", fmt.Errorf("campaign id must not contain %q", tokenDelimiter)
	}

	payload := strings.Join([]string{email, campaignID, strconv.FormatInt(now.UnixMilli(), 10)}, tokenDelimiter)
	signed := payload + tokenDelimiter + c.sign(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(signed)), nil
}

// Verify decodes and validates a token, returning its claims.
// Failures are reported as a *TokenError; the reason is for diagnostics only.
func (c *TokenCodec) Verify(token string, now time.Time) (*TokenClaims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, &TokenError{Reason: TokenMalformed}
	}

	fields := strings.Split(string(raw), tokenDelimiter)
	if len(fields) != 4 {
		return nil, &TokenError{Reason: TokenMalformed}
	}
	email, campaignID, issuedField, signature := fields[0], fields[1], fields[2], fields[3]

	if !strings.Contains(email, "@") {
		return nil, &TokenError{Reason: TokenMalformed}
	}
	issuedMs, err := strconv.ParseInt(issuedField, 10, 64)
	if err != nil {
		return nil, &TokenError{Reason: TokenMalformed}
	}

	if now.Sub(time.UnixMilli(issuedMs)) > c.ttl {
		return nil, &TokenError{Reason: TokenExpired}
	}

	payload := strings.Join([]string{email, campaignID, issuedField}, tokenDelimiter)
	expected := c.sign(payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return nil, &TokenError{Reason: TokenSignatureMismatch}
	}

	return &TokenClaims{Email: email, CampaignID: campaignID}, nil
}

func (c *TokenCodec) sign(payload string) string {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
