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

const defaultLinePushURL = "https://api.line.me/v2/bot/message/push"

// LineSender pushes messages through the LINE Messaging API. The recipient
// LINE user id is carried on the payload's customer phone field when venues
// run the LINE integration.
type LineSender struct {
	url   string
	token string
	http  *http.Client
}

func NewLineSender(pushURL, channelToken string) *LineSender {
	pushURL = strings.TrimSpace(pushURL)
	if pushURL == "" {
		pushURL = defaultLinePushURL
	}
	return &LineSender{
		url:   pushURL,
		token: strings.TrimSpace(channelToken),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *LineSender) Name() string { return "line" }

func (s *LineSender) Send(ctx context.Context, p delivery.Payload) error {
	if s.token == "" {
		return errors.New("line channel token not configured")
	}
	to := strings.TrimSpace(p.CustomerPhone)
	if to == "" {
		return errors.New("delivery has no line recipient")
	}
	raw, err := json.Marshal(map[string]any{
		"to": to,
		"messages": []map[string]string{
			{"type": "text", "text": Body(p)},
		},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &delivery.HTTPError{
			Code: resp.StatusCode,
			Msg:  fmt.Sprintf("line push returned %d", resp.StatusCode),
		}
	}
	return nil
}
