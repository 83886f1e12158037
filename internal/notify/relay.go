package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultRelayTimeout = 15 * time.Second

// RelayClient delivers messages by POSTing them as JSON to an HTTP mail relay.
type RelayClient struct {
	APIKey     string
	URL        string
	From       string
	HTTPClient *http.Client
}

// NewRelayClient returns a client for the relay at url.
func NewRelayClient(url, apiKey, from string) *RelayClient {
	return &RelayClient{
		APIKey:     apiKey,
		URL:        url,
		From:       from,
		HTTPClient: &http.Client{Timeout: defaultRelayTimeout},
	}
}

type relayRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	Tag     string `json:"tag"`
}

// Send posts msg to the relay. Any status other than 200 or 202 is a failure.
// The body is not logged since it carries the challenge.
func (c *RelayClient) Send(ctx context.Context, msg Message) error {
	if c.URL == "" {
		return fmt.Errorf("notify: relay URL not configured")
	}
	raw, err := json.Marshal(relayRequest{
		From:    c.From,
		To:      msg.Recipient,
		Subject: msg.Subject,
		Text:    msg.Body,
		Tag:     string(msg.Kind),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: relay failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
