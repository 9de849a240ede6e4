package newsletter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jedmorris/syncforge/internal/httpserver"
	"github.com/jedmorris/syncforge/pkg/synclog"
)

// webhookPayload is the subset of a Beehiiv webhook body this service acts
// on. Beehiiv wraps the subscriber object under "data" for both
// subscriber.created and subscriber.unsubscribed events. Unknown fields are
// ignored rather than rejected — Beehiiv's payload carries many more fields
// than this service needs.
type webhookPayload struct {
	Type string `json:"type" validate:"required"`
	Data struct {
		ID          string `json:"id"`
		Email       string `json:"email" validate:"required,email"`
		Created     string `json:"created"`
		UTMSource   string `json:"utm_source"`
		UTMMedium   string `json:"utm_medium"`
		UTMCampaign string `json:"utm_campaign"`
		Tags        []struct {
			Name string `json:"name"`
		} `json:"tags"`
	} `json:"data" validate:"required"`
}

// Service wires the subscriber store and downstream forwarder behind the
// webhook handler and the periodic retry/reconcile jobs. It operates in
// single-tenant mode: every event is attributed to ownerTenant.
type Service struct {
	subscribers *Store
	downstream  *Downstream
	beehiiv     *BeehiivClient
	syncLog     *synclog.Store
	ownerTenant uuid.UUID
	logger      *slog.Logger
}

// NewService constructs a newsletter Service.
func NewService(subscribers *Store, downstream *Downstream, beehiiv *BeehiivClient, syncLog *synclog.Store, ownerTenant uuid.UUID, logger *slog.Logger) *Service {
	return &Service{
		subscribers: subscribers,
		downstream:  downstream,
		beehiiv:     beehiiv,
		syncLog:     syncLog,
		ownerTenant: ownerTenant,
		logger:      logger,
	}
}

// OwnerTenant returns the single tenant every Beehiiv event is attributed to.
func (s *Service) OwnerTenant() uuid.UUID {
	return s.ownerTenant
}

// Handler returns the http.Handler for POST /beehiiv-subscriber-webhook.
// Verification is applied by the caller via VerifyMiddleware.
func (s *Service) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if errs := httpserver.Validate(&payload); len(errs) > 0 {
			httpserver.RespondValidationError(w, errs)
			return
		}

		ctx := r.Context()
		switch payload.Type {
		case "subscriber.created":
			s.handleNewSubscriber(ctx, payload)
		case "subscriber.unsubscribed":
			s.handleUnsubscribe(ctx, payload)
		default:
			s.logger.Info("ignoring unrecognized beehiiv webhook event", "type", payload.Type)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func (s *Service) handleNewSubscriber(ctx context.Context, payload webhookPayload) {
	tags := make([]string, 0, len(payload.Data.Tags))
	for _, t := range payload.Data.Tags {
		tags = append(tags, t.Name)
	}

	if _, err := s.subscribers.UpsertFromWebhook(ctx, Subscriber{
		TenantID:            s.ownerTenant,
		Email:               payload.Data.Email,
		BeehiivSubscriberID: payload.Data.ID,
		BeehiivStatus:       "active",
		Tags:                tags,
		UTMSource:           strOrNil(payload.Data.UTMSource),
		UTMMedium:           strOrNil(payload.Data.UTMMedium),
		UTMCampaign:         strOrNil(payload.Data.UTMCampaign),
	}); err != nil {
		s.logger.Error("upserting subscriber from webhook", "email", payload.Data.Email, "error", err)
		return
	}

	result := s.downstream.Subscribe(ctx, payload.Data.Email)
	status := StatusForResult(result)
	var errMsg *string
	if !result.Success {
		errMsg = &result.Detail
	}
	if err := s.subscribers.UpdateSubstackStatus(ctx, s.ownerTenant, payload.Data.Email, status, result.Success, errMsg); err != nil {
		s.logger.Error("updating substack status", "email", payload.Data.Email, "error", err)
	}

	logStatus := synclog.StatusSuccess
	if !result.Success {
		logStatus = synclog.StatusError
	}
	s.appendLog(ctx, "subscribe", logStatus, errMsg, map[string]any{"source": "beehiiv_webhook", "substack_status": status})

	s.logger.Info("processed new subscriber", "email", payload.Data.Email, "substack_status", status)
}

func (s *Service) handleUnsubscribe(ctx context.Context, payload webhookPayload) {
	if err := s.subscribers.MarkUnsubscribed(ctx, s.ownerTenant, payload.Data.Email); err != nil {
		s.logger.Error("marking unsubscribed", "email", payload.Data.Email, "error", err)
		return
	}
	s.appendLog(ctx, "unsubscribe", synclog.StatusSuccess, nil, map[string]any{
		"source": "beehiiv_webhook",
		"note":   "flagged for manual downstream removal",
	})
	s.logger.Info("processed unsubscribe", "email", payload.Data.Email)
}

func (s *Service) appendLog(ctx context.Context, action string, status synclog.Status, errMsg *string, details map[string]any) {
	details["action"] = action
	if err := s.syncLog.Append(ctx, synclog.Entry{
		TenantID:     s.ownerTenant,
		Platform:     "newsletter-N",
		JobType:      "newsletter_webhook",
		Status:       status,
		ErrorMessage: errMsg,
		Details:      details,
	}); err != nil {
		s.logger.Error("appending newsletter sync log", "error", err)
	}
}

func strOrNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
