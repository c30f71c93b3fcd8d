package dispatch

import (
	"log/slog"

	"github.com/example/freight-matching/internal/ingest"
	"github.com/example/freight-matching/internal/models"
	"github.com/example/freight-matching/internal/storage"
)

// Fanout delivers lifecycle and escrow transitions to Kafka and to any
// connected party sessions. Delivery is best effort; a dropped event
// never fails the transition that produced it.
type Fanout struct {
	Kafka    *ingest.KafkaProducer // optional
	WS       *WSRegistry           // optional
	Webhook  *WebhookDispatcher    // optional
	Bookings storage.BookingStore  // resolves parties for escrow events
	Logger   *slog.Logger
}

// Publish implements booking.EventSink.
func (f *Fanout) Publish(ev models.BookingEvent) {
	if f.Kafka != nil {
		if err := f.Kafka.PublishEvent(ev); err != nil {
			f.Logger.Warn("event publish failed", "booking_id", ev.BookingID, "error", err)
		}
	}
	if f.WS != nil {
		_ = f.WS.Notify(ev.OwnerID, ev)
		_ = f.WS.Notify(ev.ShipperID, ev)
	}
	if f.Webhook != nil {
		if err := f.Webhook.Notify(ev); err != nil {
			f.Logger.Warn("webhook notify failed", "booking_id", ev.BookingID, "error", err)
		}
	}
}

// EscrowTransition implements escrow.EventSink by resolving the paired
// booking's parties and republishing as a booking event.
func (f *Fanout) EscrowTransition(t models.EscrowTransaction, from, to models.EscrowStatus) {
	ev := models.BookingEvent{
		BookingID: t.BookingID,
		Kind:      "escrow_status",
		From:      string(from),
		To:        string(to),
		Amount:    t.GrossAmount,
		At:        t.CreatedAt,
	}
	if to == models.EscrowReleased {
		// downstream earnings rollups want the owner's payout
		ev.Amount = t.NetAmount
	}
	if t.ReleasedAt != nil {
		ev.At = *t.ReleasedAt
	}
	if b, err := f.Bookings.GetBooking(t.BookingID); err == nil {
		ev.ListingID = b.ListingID
		ev.OwnerID = b.OwnerID
		ev.ShipperID = b.ShipperID
	}
	f.Publish(ev)
}
