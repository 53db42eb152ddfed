package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"harbor/internal/config"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookSink POSTs each envelope as JSON to a configured URL.
type WebhookSink struct {
	hook   config.WebhookConfig
	client *http.Client
	filter eventFilter
}

func NewWebhookSink(hook config.WebhookConfig) *WebhookSink {
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	return &WebhookSink{
		hook:   hook,
		client: &http.Client{Timeout: timeout},
		filter: newEventFilter(hook.Events),
	}
}

func (w *WebhookSink) Name() string { return "webhook:" + w.hook.URL }

func (w *WebhookSink) Accepts(evtType string) bool { return w.filter.match(evtType) }

func (w *WebhookSink) Deliver(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Harbor-Event", env.Type)
	req.Header.Set("X-Harbor-Delivery", strconv.FormatInt(env.ID, 10))
	if strings.TrimSpace(w.hook.Secret) != "" {
		req.Header.Set("X-Harbor-Secret", w.hook.Secret)
	}
	res, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
