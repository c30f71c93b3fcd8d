package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/example/freight-matching/internal/apperrors"
	"github.com/example/freight-matching/internal/models"
)

func seedListing(t *testing.T, m *MemoryStore, id string, status models.ListingStatus) models.Listing {
	t.Helper()
	l := models.Listing{
		ID:            id,
		OwnerID:       "owner1",
		Origin:        "Mumbai",
		Destination:   "Pune",
		DepartureDate: time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC),
		CapacityTons:  10,
		AskingPrice:   15000,
		Status:        status,
	}
	if err := m.SaveListing(&l); err != nil {
		t.Fatal(err)
	}
	return l
}

func TestCompareAndSwapListingStatus(t *testing.T) {
	m := NewMemoryStore()
	l := seedListing(t, m, "lst1", models.ListingActive)

	ok, err := m.CompareAndSwapListingStatus(l.ID, models.ListingActive, models.ListingBooked)
	if err != nil || !ok {
		t.Fatalf("swap = %v, %v", ok, err)
	}
	// lost swap reports false, not an error
	ok, err = m.CompareAndSwapListingStatus(l.ID, models.ListingActive, models.ListingBooked)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("swap from stale status must fail")
	}
	var nf *apperrors.NotFoundError
	if _, err := m.CompareAndSwapListingStatus("ghost", models.ListingActive, models.ListingBooked); !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestSaveBookingEnforcesOneLivePerListing(t *testing.T) {
	m := NewMemoryStore()
	seedListing(t, m, "lst1", models.ListingActive)

	first := models.Booking{ID: "bk1", ListingID: "lst1", ShipperID: "s1", OwnerID: "owner1", Status: models.BookingPending, RequestedAt: time.Now()}
	if err := m.SaveBooking(&first); err != nil {
		t.Fatal(err)
	}

	second := models.Booking{ID: "bk2", ListingID: "lst1", ShipperID: "s2", OwnerID: "owner1", Status: models.BookingPending, RequestedAt: time.Now()}
	var se *apperrors.StateError
	if err := m.SaveBooking(&second); !errors.As(err, &se) {
		t.Fatalf("err = %v, want StateError", err)
	}

	// updating the existing booking is not a conflict with itself
	first.Status = models.BookingConfirmed
	if err := m.SaveBooking(&first); err != nil {
		t.Fatal(err)
	}

	// once the live booking reaches a terminal state, the slot reopens
	first.Status = models.BookingDeclined
	if err := m.UpdateBooking(&first); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveBooking(&second); err != nil {
		t.Fatalf("slot should reopen after decline: %v", err)
	}
}

func TestActiveBookingForListing(t *testing.T) {
	m := NewMemoryStore()
	b := models.Booking{ID: "bk1", ListingID: "lst1", ShipperID: "s1", OwnerID: "o1", Status: models.BookingPending, RequestedAt: time.Now()}
	if err := m.SaveBooking(&b); err != nil {
		t.Fatal(err)
	}
	got, err := m.ActiveBookingForListing("lst1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "bk1" {
		t.Fatalf("got %s", got.ID)
	}

	b.Status = models.BookingCancelled
	if err := m.UpdateBooking(&b); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ActiveBookingForListing("lst1"); err == nil {
		t.Fatal("terminal booking should not count as active")
	}
}

func TestSaveTransactionEnforcesOneOpenPerBooking(t *testing.T) {
	m := NewMemoryStore()
	first := models.EscrowTransaction{ID: "tx1", BookingID: "bk1", GrossAmount: 100, Status: models.EscrowInitiated, CreatedAt: time.Now()}
	if err := m.SaveTransaction(&first); err != nil {
		t.Fatal(err)
	}
	second := models.EscrowTransaction{ID: "tx2", BookingID: "bk1", GrossAmount: 100, Status: models.EscrowInitiated, CreatedAt: time.Now()}
	var se *apperrors.StateError
	if err := m.SaveTransaction(&second); !errors.As(err, &se) {
		t.Fatalf("err = %v, want StateError", err)
	}

	first.Status = models.EscrowRefunded
	if err := m.UpdateTransaction(&first); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveTransaction(&second); err != nil {
		t.Fatalf("refunded transaction should not block a new one: %v", err)
	}
}

func TestTransactionForBookingReturnsLatest(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	old := models.EscrowTransaction{ID: "tx1", BookingID: "bk1", Status: models.EscrowRefunded, CreatedAt: base}
	if err := m.SaveTransaction(&old); err != nil {
		t.Fatal(err)
	}
	fresh := models.EscrowTransaction{ID: "tx2", BookingID: "bk1", Status: models.EscrowHeld, CreatedAt: base.Add(time.Hour)}
	if err := m.SaveTransaction(&fresh); err != nil {
		t.Fatal(err)
	}
	got, err := m.TransactionForBooking("bk1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "tx2" {
		t.Fatalf("got %s, want the most recent tx2", got.ID)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	m := NewMemoryStore()
	l := seedListing(t, m, "lst1", models.ListingActive)

	got, err := m.GetListing(l.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.Status = models.ListingCancelled

	again, err := m.GetListing(l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != models.ListingActive {
		t.Fatal("mutating a returned listing must not touch the store")
	}
}

func TestExpiredCandidates(t *testing.T) {
	m := NewMemoryStore()
	due := seedListing(t, m, "lst1", models.ListingActive)
	later := seedListing(t, m, "lst2", models.ListingActive)
	later.DepartureDate = due.DepartureDate.Add(72 * time.Hour)
	if err := m.UpdateListing(&later); err != nil {
		t.Fatal(err)
	}
	booked := seedListing(t, m, "lst3", models.ListingBooked)
	_ = booked

	got, err := m.ExpiredCandidates(due.DepartureDate.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "lst1" {
		t.Fatalf("got %d candidates", len(got))
	}
}

func TestDeliveredBefore(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	at := base
	stale := models.Booking{ID: "bk1", ListingID: "l1", ShipperID: "s1", OwnerID: "o1", Status: models.BookingDelivered, RequestedAt: base, DeliveredAt: &at}
	if err := m.SaveBooking(&stale); err != nil {
		t.Fatal(err)
	}
	recent := base.Add(100 * time.Hour)
	fresh := models.Booking{ID: "bk2", ListingID: "l2", ShipperID: "s1", OwnerID: "o1", Status: models.BookingDelivered, RequestedAt: base, DeliveredAt: &recent}
	if err := m.SaveBooking(&fresh); err != nil {
		t.Fatal(err)
	}

	got, err := m.DeliveredBefore(base.Add(48 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "bk1" {
		t.Fatalf("got %d bookings", len(got))
	}
}
