package mailing

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	suppressionSetKey    = "lumail:suppressions"
	suppressionDetailKey = "lumail:suppression:" // + email
)

// SuppressionEntry records one unsubscribed address.
type SuppressionEntry struct {
	Email      string    `json:"email"`
	CampaignID string    `json:"campaign_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SuppressionStore keeps the set of unsubscribed addresses in Redis. It holds
// deliverability state only; the subscriber list of record stays client-side.
type SuppressionStore struct {
	rdb *redis.Client
}

// NewSuppressionStore creates a suppression store on the given Redis client.
func NewSuppressionStore(rdb *redis.Client) *SuppressionStore {
	return &SuppressionStore{rdb: rdb}
}

// NormalizeEmail lowercases and trims an address for suppression matching.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Suppress records an unsubscribe for the given address. The campaign that
// carried the unsubscribe link is kept for diagnostics. Idempotent.
func (s *SuppressionStore) Suppress(ctx context.Context, email, campaignID string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("empty email")
	}

	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, suppressionSetKey, email)
	pipe.HSetNX(ctx, suppressionDetailKey+email, "campaign_id", campaignID)
	pipe.HSetNX(ctx, suppressionDetailKey+email, "created_at", strconv.FormatInt(time.Now().UnixMilli(), 10))
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("suppress %s: %w", email, err)
	}
	return nil
}

// IsSuppressed reports whether the address has unsubscribed.
func (s *SuppressionStore) IsSuppressed(ctx context.Context, email string) (bool, error) {
	return s.rdb.SIsMember(ctx, suppressionSetKey, NormalizeEmail(email)).Result()
}

// Remove deletes a suppression (resubscribe). Returns true if it existed.
func (s *SuppressionStore) Remove(ctx context.Context, email string) (bool, error) {
	email = NormalizeEmail(email)

	removed, err := s.rdb.SRem(ctx, suppressionSetKey, email).Result()
	if err != nil {
		return false, fmt.Errorf("remove suppression %s: %w", email, err)
	}
	s.rdb.Del(ctx, suppressionDetailKey+email)
	return removed > 0, nil
}

// List returns up to limit suppression entries, sorted by address.
func (s *SuppressionStore) List(ctx context.Context, limit int) ([]SuppressionEntry, error) {
	emails, err := s.rdb.SMembers(ctx, suppressionSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list suppressions: %w", err)
	}
	sort.Strings(emails)
	if limit > 0 && len(emails) > limit {
		emails = emails[:limit]
	}

	entries := make([]SuppressionEntry, 0, len(emails))
	for _, email := range emails {
		entry := SuppressionEntry{Email: email}
		detail, err := s.rdb.HGetAll(ctx, suppressionDetailKey+email).Result()
		if err == nil {
			entry.CampaignID = detail["campaign_id"]
			if ms, err := strconv.ParseInt(detail["created_at"], 10, 64); err == nil {
				entry.CreatedAt = time.UnixMilli(ms).UTC()
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Count returns the number of suppressed addresses.
func (s *SuppressionStore) Count(ctx context.Context) (int64, error) {
	return s.rdb.SCard(ctx, suppressionSetKey).Result()
}
