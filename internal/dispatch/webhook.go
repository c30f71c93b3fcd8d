package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/freight-matching/internal/models"
)

// WebhookDispatcher posts booking events to an external notification
// backend (SMS/push service) when one is configured.
type WebhookDispatcher struct {
	Endpoint string
	Client   *http.Client
}

func (d *WebhookDispatcher) Notify(ev models.BookingEvent) error {
	if d.Client == nil {
		d.Client = &http.Client{Timeout: 2 * time.Second}
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	resp, err := d.Client.Post(d.Endpoint, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
