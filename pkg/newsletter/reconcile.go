package newsletter

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/jedmorris/syncforge/pkg/adapter"
	"github.com/jedmorris/syncforge/pkg/synclog"
)

// RetryPending returns the adapter.Func for job_type "newsletter_retry": it
// re-forwards every subscriber still pending or failed on the downstream
// publication, up to 50 per run, matching the source system's retry job cap.
func (s *Service) RetryPending() adapter.Func {
	return func(ctx context.Context, tenantID uuid.UUID) (int, error) {
		pending, err := s.subscribers.PendingRetry(ctx, s.ownerTenant, 50)
		if err != nil {
			return 0, err
		}

		for _, sub := range pending {
			result := s.downstream.Subscribe(ctx, sub.Email)
			status := StatusForResult(result)
			var errMsg *string
			if !result.Success {
				errMsg = &result.Detail
			}
			if err := s.subscribers.UpdateSubstackStatus(ctx, s.ownerTenant, sub.Email, status, result.Success, errMsg); err != nil {
				s.logger.Error("updating substack status on retry", "email", sub.Email, "error", err)
			}
			logStatus := synclog.StatusSuccess
			if !result.Success {
				logStatus = synclog.StatusError
			}
			s.appendLog(ctx, "subscribe", logStatus, errMsg, map[string]any{"source": "retry_job"})
		}
		return len(pending), nil
	}
}

// Reconcile returns the adapter.Func for job_type "reconcile_newsletter-N":
// it diffs the full active Beehiiv list against tracked rows, forwarding
// any subscriber missed by the webhook flow and flagging any that dropped
// off Beehiiv without an unsubscribe event firing.
func (s *Service) Reconcile() adapter.Func {
	return func(ctx context.Context, tenantID uuid.UUID) (int, error) {
		upstream, err := s.beehiiv.GetAllSubscribers(ctx, "active")
		if err != nil {
			return 0, err
		}
		tracked, err := s.subscribers.AllEmails(ctx, s.ownerTenant)
		if err != nil {
			return 0, err
		}

		upstreamEmails := make(map[string]bool, len(upstream))
		diffed := 0

		for _, u := range upstream {
			email := strings.ToLower(u.Email)
			if email == "" {
				continue
			}
			upstreamEmails[email] = true
			if _, known := tracked[email]; known {
				continue
			}

			tags := make([]string, 0, len(u.Tags))
			for _, t := range u.Tags {
				tags = append(tags, t.Name)
			}
			if _, err := s.subscribers.UpsertFromWebhook(ctx, Subscriber{
				TenantID:            s.ownerTenant,
				Email:               email,
				BeehiivSubscriberID: u.ID,
				BeehiivStatus:       "active",
				Tags:                tags,
			}); err != nil {
				s.logger.Error("reconcile: upserting new subscriber", "email", email, "error", err)
				continue
			}

			result := s.downstream.Subscribe(ctx, email)
			status := StatusForResult(result)
			if err := s.subscribers.UpdateSubstackStatus(ctx, s.ownerTenant, email, status, result.Success, nil); err != nil {
				s.logger.Error("reconcile: updating substack status", "email", email, "error", err)
			}
			s.appendLog(ctx, "subscribe", synclog.StatusSuccess, nil, map[string]any{"source": "reconciliation", "email": email})
			diffed++
		}

		for email, status := range tracked {
			if status == "active" && !upstreamEmails[email] {
				if err := s.subscribers.MarkUnsubscribed(ctx, s.ownerTenant, email); err != nil {
					s.logger.Error("reconcile: marking unsubscribed", "email", email, "error", err)
					continue
				}
				s.appendLog(ctx, "unsubscribe", synclog.StatusSuccess, nil, map[string]any{
					"source": "reconciliation", "email": email, "note": "not found in beehiiv active list",
				})
				diffed++
			}
		}

		s.appendLog(ctx, "reconcile_summary", synclog.StatusSuccess, nil, map[string]any{
			"upstream_count": len(upstream), "tracked_count": len(tracked),
		})
		return diffed, nil
	}
}
