// Package notify sends best-effort alerts to a tenant when a sync job
// fails: an email via the Resend REST API, and optionally a mirrored post
// to an internal Slack channel for operators. Grounded on the IsEnabled/
// noop-when-unconfigured shape of the reference service's Slack notifier.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	goslack "github.com/slack-go/slack"
)

const appName = "syncforge"

// Notifier sends sync-failure alerts to the tenant's notification email,
// and mirrors them to an operator Slack channel when configured.
type Notifier struct {
	http       *http.Client
	resendKey  string
	fromEmail  string
	slack      *goslack.Client
	slackChan  string
	logger     *slog.Logger
}

// New constructs a Notifier. An empty resendKey or slackBotToken disables
// that channel; calls become no-ops rather than errors.
func New(resendKey, fromEmail, slackBotToken, slackChannel string, logger *slog.Logger) *Notifier {
	var slackClient *goslack.Client
	if slackBotToken != "" {
		slackClient = goslack.New(slackBotToken)
	}
	return &Notifier{
		http:      &http.Client{},
		resendKey: resendKey,
		fromEmail: fromEmail,
		slack:     slackClient,
		slackChan: slackChannel,
		logger:    logger,
	}
}

// SyncFailure alerts a tenant that jobType failed with errMsg. It never
// returns an error to the caller; delivery failures are logged only, since
// a notification failure must not fail the sync job it describes.
func (n *Notifier) SyncFailure(ctx context.Context, toEmail, jobType, errMsg string) {
	if toEmail != "" {
		if err := n.sendFailureEmail(ctx, toEmail, jobType, errMsg); err != nil {
			n.logger.Error("sending sync failure email", "to", toEmail, "job_type", jobType, "error", err)
		}
	}
	n.postSlack(ctx, jobType, errMsg)
}

func (n *Notifier) sendFailureEmail(ctx context.Context, toEmail, jobType, errMsg string) error {
	if n.resendKey == "" {
		n.logger.Warn("resend api key not set, skipping email alert", "to", toEmail)
		return nil
	}

	platform, _, _ := strings.Cut(jobType, "_")
	subject := fmt.Sprintf("[%s] %s sync failed", appName, platform)
	if len(errMsg) > 300 {
		errMsg = errMsg[:300]
	}
	html := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Sync Failure Alert</h2>
  <p>Your <strong>%s</strong> sync job (<code>%s</code>) failed.</p>
  <div style="background: #fef2f2; border: 1px solid #fecaca; border-radius: 8px; padding: 16px; margin: 16px 0;">
    <p style="color: #991b1b; margin: 0; font-size: 14px;"><strong>Error:</strong> %s</p>
  </div>
  <p style="font-size: 14px; color: #6b7280;">We'll automatically retry on the next scheduled sync.</p>
</div>`, platform, jobType, errMsg)

	payload, err := json.Marshal(map[string]any{
		"from":    n.fromEmail,
		"to":      []string{toEmail},
		"subject": subject,
		"html":    html,
	})
	if err != nil {
		return fmt.Errorf("encoding email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.resend.com/emails", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building resend request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.resendKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling resend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("resend returned status %d", resp.StatusCode)
	}
	n.logger.Info("sent sync failure alert", "to", toEmail, "job_type", jobType)
	return nil
}

func (n *Notifier) postSlack(ctx context.Context, jobType, errMsg string) {
	if n.slack == nil || n.slackChan == "" {
		return
	}
	text := fmt.Sprintf(":rotating_light: sync job `%s` failed: %s", jobType, errMsg)
	if _, _, err := n.slack.PostMessageContext(ctx, n.slackChan, goslack.MsgOptionText(text, false)); err != nil {
		n.logger.Error("posting sync failure to slack", "job_type", jobType, "error", err)
	}
}
