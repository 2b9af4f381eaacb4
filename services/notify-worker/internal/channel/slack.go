package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yuto-kimura/salonbook/services/notify-worker/internal/delivery"
)

// SlackSender posts to an incoming-webhook URL.
type SlackSender struct {
	url  string
	http *http.Client
}

func NewSlackSender(webhookURL string) *SlackSender {
	return &SlackSender{
		url: strings.TrimSpace(webhookURL),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *SlackSender) Name() string { return "slack" }

func (s *SlackSender) Send(ctx context.Context, p delivery.Payload) error {
	if s.url == "" {
		return errors.New("slack webhook url not configured")
	}
	raw, err := json.Marshal(map[string]string{
		"text": Subject(p) + "\n" + Body(p),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &delivery.HTTPError{
			Code: resp.StatusCode,
			Msg:  fmt.Sprintf("slack webhook returned %d", resp.StatusCode),
		}
	}
	return nil
}
