package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bulksender/internal/model"
)

type HTTPClient struct {
	url    string
	token  string
	client *http.Client
}

func NewHTTPClient(url, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Type      string `json:"type"`
	Body      string `json:"body,omitempty"`
	MediaID   string `json:"mediaId,omitempty"`
}

type sendResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

// Send delivers one message and returns the provider's message id.
// Failures come back as *Error with the transient flag set for network
// errors, timeouts, 408/429 and 5xx responses.
func (c *HTTPClient) Send(ctx context.Context, recipient string, spec model.MessageSpec) (string, error) {
	reqBody, err := json.Marshal(sendRequest{
		Recipient: recipient,
		Type:      string(spec.Type),
		Body:      spec.Body,
		MediaID:   spec.MediaID,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &Error{Detail: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode/100 != 2 {
		return "", &Error{
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("unexpected status body=%q", string(body)),
			Transient:  retryableStatus(resp.StatusCode),
		}
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", &Error{
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("failed to decode json: %v body=%q", err, string(body)),
		}
	}
	if sr.MessageID == "" {
		// A success without a delivery identifier is not a success.
		return "", &Error{
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("missing messageId in response body=%q", string(body)),
		}
	}

	return sr.MessageID, nil
}

func retryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	}
	return false
}
