package escrow

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/example/freight-matching/internal/apperrors"
	"github.com/example/freight-matching/internal/models"
	"github.com/example/freight-matching/internal/observability"
	"github.com/example/freight-matching/internal/storage"
)

// Gateway is the slice of the payment provider the ledger needs.
// payments.StripeClient implements it; tests use a fake.
type Gateway interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, ref string) error
	Cancel(ctx context.Context, ref string) error
	Refund(ctx context.Context, ref string) error
}

// EventSink receives escrow transitions for the event feed.
type EventSink interface {
	EscrowTransition(t models.EscrowTransaction, from, to models.EscrowStatus)
}

// Ledger tracks payment state per booking. It never drives booking
// transitions itself; release and refund happen strictly as a
// consequence of the paired booking reaching completed or cancelled.
type Ledger struct {
	Store    storage.EscrowStore
	Bookings storage.BookingStore
	Gateway  Gateway   // optional; nil skips provider calls (local runs, tests)
	Events   EventSink // optional
	FeeRate  float64
	Currency string
	Now      func() time.Time
}

func NewLedger(store storage.EscrowStore, bookings storage.BookingStore, gw Gateway, feeRate float64) *Ledger {
	return &Ledger{
		Store:    store,
		Bookings: bookings,
		Gateway:  gw,
		FeeRate:  feeRate,
		Currency: "inr",
		Now:      time.Now,
	}
}

// Fee is round-half-up of gross times rate, never negative. The rate
// is frozen onto the transaction at initiate time.
func Fee(gross models.Money, rate float64) models.Money {
	if gross <= 0 || rate <= 0 {
		return 0
	}
	return models.Money(math.Floor(float64(gross)*rate + 0.5))
}

// Initiate opens an escrow transaction for the booking. At most one
// non-terminal transaction may exist per booking; the store enforces
// that atomically.
func (l *Ledger) Initiate(bookingID string, gross models.Money) (models.EscrowTransaction, error) {
	if gross <= 0 {
		return models.EscrowTransaction{}, &apperrors.ValidationError{Field: "gross_amount", Reason: "must be > 0"}
	}
	b, err := l.Bookings.GetBooking(bookingID)
	if err != nil {
		return models.EscrowTransaction{}, err
	}
	if b.Status.Terminal() {
		return models.EscrowTransaction{}, &apperrors.StateError{Entity: "booking", Status: string(b.Status), Op: "pay"}
	}
	// reject before touching the gateway so a duplicate never leaves a
	// dangling provider hold
	if existing, err := l.Store.TransactionForBooking(bookingID); err == nil && !existing.Status.Terminal() {
		return models.EscrowTransaction{}, &apperrors.StateError{Entity: "escrow", Status: string(existing.Status), Op: "initiate"}
	}

	fee := Fee(gross, l.FeeRate)
	t := models.EscrowTransaction{
		ID:              uuid.NewString(),
		BookingID:       bookingID,
		GrossAmount:     gross,
		PlatformFeeRate: l.FeeRate,
		PlatformFee:     fee,
		NetAmount:       gross - fee,
		Status:          models.EscrowInitiated,
		CreatedAt:       l.Now(),
	}
	if l.Gateway != nil {
		ref, err := l.Gateway.Hold(context.Background(), int64(gross), l.Currency, b.ShipperID)
		if err != nil {
			return models.EscrowTransaction{}, err
		}
		t.GatewayRef = ref
	}
	if err := l.Store.SaveTransaction(&t); err != nil {
		// a concurrent initiate won the store race; undo our hold
		if l.Gateway != nil && t.GatewayRef != "" {
			_ = l.Gateway.Cancel(context.Background(), t.GatewayRef)
		}
		return models.EscrowTransaction{}, err
	}
	observability.EscrowTransitions.WithLabelValues(string(models.EscrowInitiated)).Inc()
	l.emit(t, "", models.EscrowInitiated)
	return t, nil
}

// ConfirmFunds moves initiated -> held once the gateway confirms the
// shipper's money is actually reserved. Funds are only held against a
// booking the owner has accepted; before that, a decline voids the
// initiated transaction instead.
func (l *Ledger) ConfirmFunds(txID string) (models.EscrowTransaction, error) {
	t, err := l.Store.GetTransaction(txID)
	if err != nil {
		return models.EscrowTransaction{}, err
	}
	if t.Status != models.EscrowInitiated {
		return models.EscrowTransaction{}, &apperrors.StateError{Entity: "escrow", Status: string(t.Status), Op: "confirm funds"}
	}
	b, err := l.Bookings.GetBooking(t.BookingID)
	if err != nil {
		return models.EscrowTransaction{}, err
	}
	if b.Status == models.BookingPending || b.Status.Terminal() {
		return models.EscrowTransaction{}, &apperrors.StateError{Entity: "booking", Status: string(b.Status), Op: "confirm funds"}
	}
	return l.advance(*t, models.EscrowHeld)
}

// Release pays the owner out: held -> released. Only the booking
// lifecycle calls this, on delivered -> completed.
func (l *Ledger) Release(txID string) (models.EscrowTransaction, error) {
	t, err := l.Store.GetTransaction(txID)
	if err != nil {
		return models.EscrowTransaction{}, err
	}
	if t.Status == models.EscrowReleased {
		return *t, nil // terminal repeat is a no-op
	}
	if t.Status != models.EscrowHeld {
		return models.EscrowTransaction{}, &apperrors.StateError{Entity: "escrow", Status: string(t.Status), Op: "release"}
	}
	if l.Gateway != nil && t.GatewayRef != "" {
		if err := l.Gateway.Capture(context.Background(), t.GatewayRef); err != nil {
			return models.EscrowTransaction{}, err
		}
	}
	return l.advance(*t, models.EscrowReleased)
}

// Refund returns the hold to the shipper: held -> refunded. A
// transaction whose funds were never confirmed is simply voided.
func (l *Ledger) Refund(txID string) (models.EscrowTransaction, error) {
	t, err := l.Store.GetTransaction(txID)
	if err != nil {
		return models.EscrowTransaction{}, err
	}
	if t.Status == models.EscrowRefunded {
		return *t, nil
	}
	if t.Status != models.EscrowHeld && t.Status != models.EscrowInitiated {
		return models.EscrowTransaction{}, &apperrors.StateError{Entity: "escrow", Status: string(t.Status), Op: "refund"}
	}
	if l.Gateway != nil && t.GatewayRef != "" {
		if err := l.Gateway.Cancel(context.Background(), t.GatewayRef); err != nil {
			return models.EscrowTransaction{}, err
		}
	}
	return l.advance(*t, models.EscrowRefunded)
}

// RaiseDispute freezes the transaction pending admin resolution.
// Either booking party may raise one while funds are held or already
// released.
func (l *Ledger) RaiseDispute(txID, byUserID, reason string) (models.EscrowTransaction, error) {
	t, err := l.Store.GetTransaction(txID)
	if err != nil {
		return models.EscrowTransaction{}, err
	}
	b, err := l.Bookings.GetBooking(t.BookingID)
	if err != nil {
		return models.EscrowTransaction{}, err
	}
	if byUserID != b.ShipperID && byUserID != b.OwnerID {
		return models.EscrowTransaction{}, &apperrors.AuthorizationError{CallerID: byUserID, Action: "dispute escrow " + txID}
	}
	if t.Status != models.EscrowHeld && t.Status != models.EscrowReleased {
		return models.EscrowTransaction{}, &apperrors.StateError{Entity: "escrow", Status: string(t.Status), Op: "dispute"}
	}
	t.DisputeReason = reason
	t.DisputedBy = byUserID
	return l.advance(*t, models.EscrowDisputed)
}

// DisputeOutcome is the admin's resolution choice.
type DisputeOutcome string

const (
	OutcomeRelease DisputeOutcome = "release"
	OutcomeRefund  DisputeOutcome = "refund"
)

// ResolveDispute exits the disputed state. A refund after funds were
// already captured goes through the gateway's refund path rather than
// a hold cancel.
func (l *Ledger) ResolveDispute(txID string, outcome DisputeOutcome) (models.EscrowTransaction, error) {
	t, err := l.Store.GetTransaction(txID)
	if err != nil {
		return models.EscrowTransaction{}, err
	}
	if t.Status != models.EscrowDisputed {
		return models.EscrowTransaction{}, &apperrors.StateError{Entity: "escrow", Status: string(t.Status), Op: "resolve"}
	}
	wasCaptured := t.ReleasedAt != nil
	switch outcome {
	case OutcomeRelease:
		if l.Gateway != nil && t.GatewayRef != "" && !wasCaptured {
			if err := l.Gateway.Capture(context.Background(), t.GatewayRef); err != nil {
				return models.EscrowTransaction{}, err
			}
		}
		return l.advance(*t, models.EscrowReleased)
	case OutcomeRefund:
		if l.Gateway != nil && t.GatewayRef != "" {
			var gerr error
			if wasCaptured {
				gerr = l.Gateway.Refund(context.Background(), t.GatewayRef)
			} else {
				gerr = l.Gateway.Cancel(context.Background(), t.GatewayRef)
			}
			if gerr != nil {
				return models.EscrowTransaction{}, gerr
			}
		}
		return l.advance(*t, models.EscrowRefunded)
	default:
		return models.EscrowTransaction{}, &apperrors.ValidationError{Field: "outcome", Reason: "must be release or refund"}
	}
}

// ForBooking returns the latest transaction paired with a booking.
func (l *Ledger) ForBooking(bookingID string) (models.EscrowTransaction, error) {
	t, err := l.Store.TransactionForBooking(bookingID)
	if err != nil {
		return models.EscrowTransaction{}, err
	}
	return *t, nil
}

// ByStatus backs the admin payments view.
func (l *Ledger) ByStatus(status models.EscrowStatus) ([]models.EscrowTransaction, error) {
	return l.Store.TransactionsByStatus(status)
}

// StatusForBooking implements the booking lifecycle's escrow guard.
func (l *Ledger) StatusForBooking(bookingID string) (models.EscrowStatus, error) {
	t, err := l.Store.TransactionForBooking(bookingID)
	if err != nil {
		return "", err
	}
	return t.Status, nil
}

// ReleaseForBooking is the delivered -> completed side effect. A
// disputed transaction stays frozen for the admin; the completion
// itself goes through either way.
func (l *Ledger) ReleaseForBooking(bookingID string) error {
	t, err := l.Store.TransactionForBooking(bookingID)
	if err != nil {
		var nf *apperrors.NotFoundError
		if errors.As(err, &nf) {
			return nil // nothing to release
		}
		return err
	}
	if t.Status.Terminal() || t.Status == models.EscrowDisputed {
		return nil
	}
	_, err = l.Release(t.ID)
	return err
}

// RefundForBooking is the cancellation side effect. Disputed
// transactions stay frozen for the admin.
func (l *Ledger) RefundForBooking(bookingID string) error {
	t, err := l.Store.TransactionForBooking(bookingID)
	if err != nil {
		var nf *apperrors.NotFoundError
		if errors.As(err, &nf) {
			return nil // never paid, nothing to refund
		}
		return err
	}
	if t.Status.Terminal() || t.Status == models.EscrowDisputed {
		return nil
	}
	_, err = l.Refund(t.ID)
	return err
}

func (l *Ledger) advance(t models.EscrowTransaction, to models.EscrowStatus) (models.EscrowTransaction, error) {
	from := t.Status
	t.Status = to
	if to == models.EscrowReleased && t.ReleasedAt == nil {
		now := l.Now()
		t.ReleasedAt = &now
	}
	if err := l.Store.UpdateTransaction(&t); err != nil {
		return models.EscrowTransaction{}, err
	}
	observability.EscrowTransitions.WithLabelValues(string(to)).Inc()
	switch {
	case to == models.EscrowHeld:
		observability.EscrowHeldAmount.Add(float64(t.GrossAmount))
	case from == models.EscrowHeld:
		observability.EscrowHeldAmount.Sub(float64(t.GrossAmount))
	}
	l.emit(t, from, to)
	return t, nil
}

func (l *Ledger) emit(t models.EscrowTransaction, from, to models.EscrowStatus) {
	if l.Events != nil {
		l.Events.EscrowTransition(t, from, to)
	}
}
