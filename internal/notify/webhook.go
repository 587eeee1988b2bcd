package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rxtech-lab/indicator-bot/pkg/errors"
)

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL     string        `yaml:"url" json:"url" jsonschema:"title=URL,description=Endpoint that receives a JSON POST per alert" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"title=Timeout,description=HTTP client timeout"`
}

// WebhookPayload is the JSON body posted for each message.
type WebhookPayload struct {
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"ts"`
}

// Webhook posts each message as JSON to a URL.
type Webhook struct {
	url    string
	source string
	client *http.Client
	now    func() time.Time
}

// NewWebhook creates a Webhook notifier. source identifies the bot in the payload.
func NewWebhook(config WebhookConfig, source string) *Webhook {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Webhook{
		url:    config.URL,
		source: source,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (w *Webhook) Notify(ctx context.Context, message string) error {
	body, err := json.Marshal(WebhookPayload{
		Source:    w.source,
		Message:   message,
		Timestamp: w.now().UTC(),
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeNotificationFailed, "failed to marshal webhook payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(errors.ErrCodeNotificationFailed, "failed to create webhook request", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrCodeNotificationFailed, "failed to send webhook", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Newf(errors.ErrCodeNotificationFailed, "webhook returned unexpected status %d", resp.StatusCode)
	}

	return nil
}

var _ Notifier = (*Webhook)(nil)
