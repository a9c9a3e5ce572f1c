package directory

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Client talks to the counterparty directory service. The directory is
// eventually consistent with the marketplace database, so lookups shortly
// after delivery may legitimately come back empty.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a directory client against the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
	}
}

// ResolveShipperByLoad returns the uuid of the shipper who owns the given
// load, or an error when the directory has not caught up yet.
func (c *Client) ResolveShipperByLoad(loadUuid string) (string, error) {
	httpReq, err := http.NewRequest("GET", c.baseURL+"/directory/loads/"+loadUuid+"/shipper", nil)
	if err != nil {
		return "", err
	}

	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", errors.New("directory has no shipper for load " + loadUuid)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.New("directory API returned non-OK status: " + resp.Status)
	}

	var apiResp ShipperProfileResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", err
	}

	return apiResp.Uuid, nil
}
