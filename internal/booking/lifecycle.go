package booking

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/freight-matching/internal/apperrors"
	"github.com/example/freight-matching/internal/models"
	"github.com/example/freight-matching/internal/observability"
	"github.com/example/freight-matching/internal/routeindex"
	"github.com/example/freight-matching/internal/storage"
)

// EscrowLedger is the slice of the escrow ledger the lifecycle drives.
// Release and refund are side effects of completed and cancelled; the
// held check guards trip start.
type EscrowLedger interface {
	StatusForBooking(bookingID string) (models.EscrowStatus, error)
	ReleaseForBooking(bookingID string) error
	RefundForBooking(bookingID string) error
}

// EventSink receives every lifecycle transition for the event feed.
type EventSink interface {
	Publish(ev models.BookingEvent)
}

// Lifecycle is the booking state machine. All status mutation goes
// through the command methods here so the transition table lives in
// exactly one place; handlers and the sweeper never touch statuses
// directly.
type Lifecycle struct {
	Bookings storage.BookingStore
	Listings storage.ListingStore
	Escrow   EscrowLedger
	Events   EventSink        // optional
	Index    routeindex.Index // optional, kept in sync on listing flips
	Now      func() time.Time
}

func NewLifecycle(bookings storage.BookingStore, listings storage.ListingStore, ledger EscrowLedger) *Lifecycle {
	return &Lifecycle{Bookings: bookings, Listings: listings, Escrow: ledger, Now: time.Now}
}

// allowed is the transition table. Anything absent fails with
// InvalidTransitionError.
var allowed = map[models.BookingStatus][]models.BookingStatus{
	models.BookingPending:   {models.BookingConfirmed, models.BookingDeclined, models.BookingCancelled},
	models.BookingConfirmed: {models.BookingInTransit, models.BookingCancelled},
	models.BookingInTransit: {models.BookingDelivered},
	models.BookingDelivered: {models.BookingCompleted},
}

func canTransition(from, to models.BookingStatus) bool {
	for _, t := range allowed[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Request creates a pending booking against an active listing. The
// store rejects a second live booking for the same listing, so two
// concurrent requests cannot both succeed.
func (lc *Lifecycle) Request(listingID, shipperID string, cargo models.Cargo, agreedPrice models.Money) (models.Booking, error) {
	l, err := lc.Listings.GetListing(listingID)
	if err != nil {
		return models.Booking{}, err
	}
	if l.Status != models.ListingActive {
		return models.Booking{}, &apperrors.StateError{Entity: "listing", Status: string(l.Status), Op: "book"}
	}
	if shipperID == "" {
		return models.Booking{}, &apperrors.ValidationError{Field: "shipper_id", Reason: "must not be blank"}
	}
	if cargo.WeightTons <= 0 {
		return models.Booking{}, &apperrors.ValidationError{Field: "cargo.weight_tons", Reason: "must be > 0"}
	}
	if cargo.WeightTons > l.CapacityTons {
		return models.Booking{}, &apperrors.ValidationError{Field: "cargo.weight_tons", Reason: "exceeds listing capacity"}
	}
	if agreedPrice <= 0 {
		agreedPrice = l.AskingPrice
	}
	b := models.Booking{
		ID:          uuid.NewString(),
		ListingID:   l.ID,
		ShipperID:   shipperID,
		OwnerID:     l.OwnerID,
		AgreedPrice: agreedPrice,
		Cargo:       cargo,
		Status:      models.BookingPending,
		RequestedAt: lc.Now(),
	}
	if err := lc.Bookings.SaveBooking(&b); err != nil {
		return models.Booking{}, err
	}
	observability.BookingTransitions.WithLabelValues(string(models.BookingPending)).Inc()
	lc.emit(b, "", models.BookingPending)
	return b, nil
}

// Confirm is the owner accepting a pending booking. Flips the listing
// to booked; losing that swap means the listing went away underneath
// us, and the confirm fails.
func (lc *Lifecycle) Confirm(bookingID, callerID string) (models.Booking, error) {
	b, err := lc.Bookings.GetBooking(bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if b.Status == models.BookingConfirmed {
		return *b, nil // retry-safe
	}
	if err := lc.guardOwner(b, callerID, "confirm"); err != nil {
		return models.Booking{}, err
	}
	if err := check(b.Status, models.BookingConfirmed); err != nil {
		return models.Booking{}, err
	}
	ok, err := lc.Listings.CompareAndSwapListingStatus(b.ListingID, models.ListingActive, models.ListingBooked)
	if err != nil {
		return models.Booking{}, err
	}
	if !ok {
		return models.Booking{}, &apperrors.StateError{Entity: "listing", Status: "not active", Op: "confirm booking"}
	}
	lc.dropFromIndex(b.ListingID)
	now := lc.Now()
	b.RespondedAt = &now
	return lc.advance(*b, models.BookingConfirmed)
}

// Decline is the owner rejecting a pending booking. The listing stays
// active, and anything the shipper already paid into escrow comes back
// the same way a cancellation returns it.
func (lc *Lifecycle) Decline(bookingID, callerID string) (models.Booking, error) {
	b, err := lc.Bookings.GetBooking(bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if b.Status == models.BookingDeclined {
		return *b, nil
	}
	if err := lc.guardOwner(b, callerID, "decline"); err != nil {
		return models.Booking{}, err
	}
	if err := check(b.Status, models.BookingDeclined); err != nil {
		return models.Booking{}, err
	}
	now := lc.Now()
	b.RespondedAt = &now
	out, err := lc.advance(*b, models.BookingDeclined)
	if err != nil {
		return models.Booking{}, err
	}
	if lc.Escrow != nil {
		if err := lc.Escrow.RefundForBooking(b.ID); err != nil {
			return models.Booking{}, err
		}
	}
	return out, nil
}

// Cancel ends a pending or confirmed booking. Once cargo is in
// transit there is no cancellation; that path goes through a dispute.
// A confirmed cancellation puts the listing back on the market and
// refunds any held escrow in full.
func (lc *Lifecycle) Cancel(bookingID, callerID, reason string) (models.Booking, error) {
	b, err := lc.Bookings.GetBooking(bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if b.Status == models.BookingCancelled {
		return *b, nil
	}
	if callerID != b.ShipperID && callerID != b.OwnerID {
		return models.Booking{}, &apperrors.AuthorizationError{CallerID: callerID, Action: "cancel booking " + bookingID}
	}
	if err := check(b.Status, models.BookingCancelled); err != nil {
		return models.Booking{}, err
	}
	wasConfirmed := b.Status == models.BookingConfirmed
	b.CancelReason = reason
	out, err := lc.advance(*b, models.BookingCancelled)
	if err != nil {
		return models.Booking{}, err
	}
	if wasConfirmed {
		if ok, err := lc.Listings.CompareAndSwapListingStatus(b.ListingID, models.ListingBooked, models.ListingActive); err == nil && ok {
			lc.addToIndex(b.ListingID)
		}
	}
	if lc.Escrow != nil {
		if err := lc.Escrow.RefundForBooking(b.ID); err != nil {
			return models.Booking{}, err
		}
	}
	return out, nil
}

// StartTrip is the owner beginning the haul: confirmed -> in_transit,
// allowed only with funds held in escrow.
func (lc *Lifecycle) StartTrip(bookingID, callerID string) (models.Booking, error) {
	b, err := lc.Bookings.GetBooking(bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if b.Status == models.BookingInTransit {
		return *b, nil
	}
	if err := lc.guardOwner(b, callerID, "start trip for"); err != nil {
		return models.Booking{}, err
	}
	if err := check(b.Status, models.BookingInTransit); err != nil {
		return models.Booking{}, err
	}
	if err := lc.requireHeldEscrow(b.ID); err != nil {
		return models.Booking{}, err
	}
	now := lc.Now()
	b.StartedAt = &now
	return lc.advance(*b, models.BookingInTransit)
}

// MarkDelivered records the delivery event. The owner reports it, or a
// tracking signal does with an empty caller id.
func (lc *Lifecycle) MarkDelivered(bookingID, callerID string) (models.Booking, error) {
	b, err := lc.Bookings.GetBooking(bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if b.Status == models.BookingDelivered {
		return *b, nil
	}
	if callerID != "" && callerID != b.OwnerID {
		return models.Booking{}, &apperrors.AuthorizationError{CallerID: callerID, Action: "mark delivered booking " + bookingID}
	}
	if err := check(b.Status, models.BookingDelivered); err != nil {
		return models.Booking{}, err
	}
	now := lc.Now()
	b.DeliveredAt = &now
	return lc.advance(*b, models.BookingDelivered)
}

// ConfirmDelivery is the shipper signing off: delivered -> completed,
// which releases the escrow to the owner.
func (lc *Lifecycle) ConfirmDelivery(bookingID, callerID string) (models.Booking, error) {
	b, err := lc.Bookings.GetBooking(bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if b.Status == models.BookingCompleted {
		return *b, nil
	}
	if callerID != "" && callerID != b.ShipperID {
		return models.Booking{}, &apperrors.AuthorizationError{CallerID: callerID, Action: "confirm delivery of booking " + bookingID}
	}
	return lc.complete(*b)
}

func (lc *Lifecycle) complete(b models.Booking) (models.Booking, error) {
	if err := check(b.Status, models.BookingCompleted); err != nil {
		return models.Booking{}, err
	}
	now := lc.Now()
	b.CompletedAt = &now
	out, err := lc.advance(b, models.BookingCompleted)
	if err != nil {
		return models.Booking{}, err
	}
	if lc.Escrow != nil {
		if err := lc.Escrow.ReleaseForBooking(b.ID); err != nil {
			return models.Booking{}, err
		}
	}
	return out, nil
}

// Get exposes a booking to the API layer.
func (lc *Lifecycle) Get(bookingID string) (models.Booking, error) {
	b, err := lc.Bookings.GetBooking(bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	return *b, nil
}

// ForParty lists a user's bookings, either side.
func (lc *Lifecycle) ForParty(userID string) ([]models.Booking, error) {
	return lc.Bookings.BookingsByParty(userID)
}

// AutoCompleteDue completes bookings the shipper never confirmed,
// once they have sat in delivered longer than the timeout. Returns
// how many were completed.
func (lc *Lifecycle) AutoCompleteDue(timeout time.Duration) (int, error) {
	due, err := lc.Bookings.DeliveredBefore(lc.Now().Add(-timeout))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, b := range due {
		if _, err := lc.complete(b); err == nil {
			n++
		}
	}
	return n, nil
}

func (lc *Lifecycle) requireHeldEscrow(bookingID string) error {
	if lc.Escrow == nil {
		return &apperrors.PaymentRequiredError{BookingID: bookingID}
	}
	st, err := lc.Escrow.StatusForBooking(bookingID)
	if err != nil {
		var nf *apperrors.NotFoundError
		if errors.As(err, &nf) {
			return &apperrors.PaymentRequiredError{BookingID: bookingID}
		}
		return err
	}
	if st != models.EscrowHeld {
		return &apperrors.PaymentRequiredError{BookingID: bookingID}
	}
	return nil
}

func (lc *Lifecycle) guardOwner(b *models.Booking, callerID, action string) error {
	if callerID != b.OwnerID {
		return &apperrors.AuthorizationError{CallerID: callerID, Action: action + " booking " + b.ID}
	}
	return nil
}

func check(from, to models.BookingStatus) error {
	if !canTransition(from, to) {
		observability.InvalidTransitions.Inc()
		return &apperrors.InvalidTransitionError{From: string(from), To: string(to)}
	}
	return nil
}

func (lc *Lifecycle) advance(b models.Booking, to models.BookingStatus) (models.Booking, error) {
	from := b.Status
	b.Status = to
	if err := lc.Bookings.UpdateBooking(&b); err != nil {
		return models.Booking{}, err
	}
	observability.BookingTransitions.WithLabelValues(string(to)).Inc()
	lc.emit(b, from, to)
	return b, nil
}

func (lc *Lifecycle) emit(b models.Booking, from, to models.BookingStatus) {
	if lc.Events == nil {
		return
	}
	lc.Events.Publish(models.BookingEvent{
		BookingID: b.ID,
		ListingID: b.ListingID,
		OwnerID:   b.OwnerID,
		ShipperID: b.ShipperID,
		Kind:      "booking_status",
		From:      string(from),
		To:        string(to),
		Amount:    b.AgreedPrice,
		At:        lc.Now(),
	})
}

func (lc *Lifecycle) dropFromIndex(listingID string) {
	if lc.Index == nil {
		return
	}
	if l, err := lc.Listings.GetListing(listingID); err == nil {
		lc.Index.Remove(l.Origin, l.Destination, l.ID)
	}
}

func (lc *Lifecycle) addToIndex(listingID string) {
	if lc.Index == nil {
		return
	}
	if l, err := lc.Listings.GetListing(listingID); err == nil {
		lc.Index.Add(l.Origin, l.Destination, l.ID)
	}
}
