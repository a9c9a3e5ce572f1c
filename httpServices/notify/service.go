package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Client posts checkpoint codes to the external notification gateway (SMS or
// push — the gateway decides). Delivery is an optimization; the carrier can
// always read the approved state through the snapshot poll.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a notification client against the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
	}
}

// SendCheckpointCode delivers an approved checkpoint code to the carrier.
func (c *Client) SendCheckpointCode(phone, code, checkpoint string, expiresAt time.Time) error {
	body, err := json.Marshal(CheckpointCodeRequest{
		Phone:      phone,
		Code:       code,
		Checkpoint: checkpoint,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequest("POST", c.baseURL+"/notify/checkpoint-code", bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errors.New("notification API returned non-OK status: " + resp.Status)
	}

	return nil
}
