// Package newsletter implements newsletter-N (Beehiiv) webhook ingress and
// downstream-newsletter (Substack) forwarding, per SPEC_FULL.md §4.8. Unlike
// the commerce/fulfillment adapters it runs in single-tenant mode: one
// configured owner tenant receives every webhook and reconciliation pass.
package newsletter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Subscriber is one newsletter_subscribers row tracking a subscriber's
// state on both Beehiiv and the downstream Substack publication.
type Subscriber struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	Email               string
	BeehiivSubscriberID string
	BeehiivStatus       string
	SubstackStatus      string
	Tags                []string
	UTMSource           *string
	UTMMedium           *string
	UTMCampaign         *string
	LastWebhookAt       *time.Time
	SyncedToSubstackAt  *time.Time
	ErrorMessage        *string
}

// Store provides database operations for newsletter subscribers.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UpsertFromWebhook records a subscriber seen via a Beehiiv webhook event,
// keyed on (tenant_id, email), and returns its row id.
func (s *Store) UpsertFromWebhook(ctx context.Context, sub Subscriber) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO newsletter_subscribers (
			tenant_id, email, beehiiv_subscriber_id, beehiiv_status, tags,
			utm_source, utm_medium, utm_campaign, last_webhook_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		ON CONFLICT (tenant_id, email) DO UPDATE SET
			beehiiv_subscriber_id = EXCLUDED.beehiiv_subscriber_id,
			beehiiv_status = EXCLUDED.beehiiv_status,
			tags = EXCLUDED.tags,
			utm_source = EXCLUDED.utm_source,
			utm_medium = EXCLUDED.utm_medium,
			utm_campaign = EXCLUDED.utm_campaign,
			last_webhook_at = now()
		RETURNING id
	`, sub.TenantID, sub.Email, sub.BeehiivSubscriberID, sub.BeehiivStatus, sub.Tags,
		sub.UTMSource, sub.UTMMedium, sub.UTMCampaign,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting subscriber %s: %w", sub.Email, err)
	}
	return id, nil
}

// UpdateSubstackStatus records the result of a forward attempt to Substack.
func (s *Store) UpdateSubstackStatus(ctx context.Context, tenantID uuid.UUID, email, status string, synced bool, errMsg *string) error {
	var syncedAt *time.Time
	if synced {
		now := time.Now().UTC()
		syncedAt = &now
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE newsletter_subscribers SET
			substack_status = $3, synced_to_substack_at = $4, error_message = $5
		WHERE tenant_id = $1 AND email = $2
	`, tenantID, email, status, syncedAt, errMsg)
	if err != nil {
		return fmt.Errorf("updating substack status for %s: %w", email, err)
	}
	return nil
}

// MarkUnsubscribed flags a subscriber as unsubscribed on Beehiiv, pending
// manual removal on Substack (which has no unsubscribe API).
func (s *Store) MarkUnsubscribed(ctx context.Context, tenantID uuid.UUID, email string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE newsletter_subscribers SET
			beehiiv_status = 'unsubscribed', substack_status = 'pending_unsub', last_webhook_at = now()
		WHERE tenant_id = $1 AND email = $2
	`, tenantID, email)
	if err != nil {
		return fmt.Errorf("marking %s unsubscribed: %w", email, err)
	}
	return nil
}

// PendingRetry returns subscribers whose last Substack forward is pending
// or failed, capped at limit, for the periodic retry job.
func (s *Store) PendingRetry(ctx context.Context, tenantID uuid.UUID, limit int) ([]Subscriber, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, email FROM newsletter_subscribers
		WHERE tenant_id = $1 AND beehiiv_status = 'active' AND substack_status IN ('pending', 'failed')
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending subscribers: %w", err)
	}
	defer rows.Close()

	var subs []Subscriber
	for rows.Next() {
		var sub Subscriber
		if err := rows.Scan(&sub.ID, &sub.TenantID, &sub.Email); err != nil {
			return nil, fmt.Errorf("scanning pending subscriber: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// AllEmails returns every tracked email and its beehiiv_status for the
// given tenant, for the reconciliation diff.
func (s *Store) AllEmails(ctx context.Context, tenantID uuid.UUID) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT email, beehiiv_status FROM newsletter_subscribers WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var email, status string
		if err := rows.Scan(&email, &status); err != nil {
			return nil, fmt.Errorf("scanning subscriber: %w", err)
		}
		out[email] = status
	}
	return out, rows.Err()
}
