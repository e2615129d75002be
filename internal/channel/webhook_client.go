package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookClient delivers outbound messages through a provider gateway that
// accepts JSON posts and answers with the provider message id.
type WebhookClient struct {
	url    string
	client *http.Client
}

func NewWebhookClient(url string) *WebhookClient {
	return &WebhookClient{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendRequest struct {
	Handle   string `json:"handle"`
	Message  string `json:"message"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

type sendResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

func (c *WebhookClient) Send(ctx context.Context, handle, text string) (string, error) {
	return c.post(ctx, sendRequest{Handle: handle, Message: text})
}

func (c *WebhookClient) SendWithMedia(ctx context.Context, handle, text, mediaURL string) (string, error) {
	return c.post(ctx, sendRequest{Handle: handle, Message: text, MediaURL: mediaURL})
}

func (c *WebhookClient) post(ctx context.Context, sr sendRequest) (string, error) {
	reqBody, err := json.Marshal(sr)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var out sendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if out.MessageID == "" {
		return "", fmt.Errorf("missing messageId in response body=%q", string(body))
	}

	return out.MessageID, nil
}
