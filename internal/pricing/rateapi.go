package pricing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/example/freight-matching/internal/models"
)

// RateAPIClient queries an external freight-rate service over HTTP.
// Expected response: {"rate_per_ton": 1234}.
type RateAPIClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewRateAPIClient(baseURL string) *RateAPIClient {
	return &RateAPIClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: 3 * time.Second}}
}

func (c *RateAPIClient) RatePerTon(origin, destination string) (models.Money, error) {
	u := fmt.Sprintf("%s/rates?origin=%s&destination=%s",
		c.BaseURL, url.QueryEscape(origin), url.QueryEscape(destination))
	resp, err := c.HTTP.Get(u)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate service returned %d", resp.StatusCode)
	}
	var body struct {
		RatePerTon int64 `json:"rate_per_ton"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	return models.Money(body.RatePerTon), nil
}
