package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const webhookErrorSnippet = 256

// WebhookNotifier posts inactivity alerts as JSON. The rendered text goes in
// text.content for chat-style receivers; the structured alert rides along for
// machine consumers. Each request carries an Idempotency-Key of stream and
// level so receivers can drop retried sends.
type WebhookNotifier struct {
	url      string
	client   *http.Client
	template *Template
}

type webhookPayload struct {
	MsgType string       `json:"msgtype"`
	Text    webhookText  `json:"text"`
	Alert   AlertMessage `json:"alert"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookNotifier constructs a notifier. An empty tpl uses DefaultTemplate.
func NewWebhookNotifier(url, tpl string) (*WebhookNotifier, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("webhook notifier: empty url")
	}
	parsed, err := NewTemplate(tpl)
	if err != nil {
		return nil, err
	}
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: 10 * time.Second}, template: parsed}, nil
}

// Notify renders msg and posts it. Any non-2xx response is an error.
func (n *WebhookNotifier) Notify(ctx context.Context, msg AlertMessage) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	body, err := n.encode(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", fmt.Sprintf("%s:%s:%d", msg.StreamID, msg.Level, msg.LastActivityTime))

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook notifier: post %s: %w", msg.StreamID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, webhookErrorSnippet))
	return fmt.Errorf("webhook notifier: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}

func (n *WebhookNotifier) encode(msg AlertMessage) ([]byte, error) {
	content, err := n.template.Render(TemplateDataFor(msg))
	if err != nil {
		return nil, err
	}
	return json.Marshal(webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: strings.TrimSpace(content)},
		Alert:   msg,
	})
}
