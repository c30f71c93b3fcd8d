package rating

import (
	"errors"
	"testing"
	"time"

	"github.com/example/freight-matching/internal/apperrors"
	"github.com/example/freight-matching/internal/models"
	"github.com/example/freight-matching/internal/storage"
)

func goodScores() models.RatingScores {
	return models.RatingScores{Overall: 4, Punctuality: 5, Handling: 4, Communication: 3, Professionalism: 5}
}

func newService(t *testing.T, status models.BookingStatus) (*Service, models.Booking) {
	t.Helper()
	store := storage.NewMemoryStore()
	b := models.Booking{
		ID:          "bk1",
		ListingID:   "lst1",
		ShipperID:   "shipper1",
		OwnerID:     "owner1",
		AgreedPrice: 15000,
		Status:      status,
		RequestedAt: time.Now(),
	}
	if err := store.SaveBooking(&b); err != nil {
		t.Fatal(err)
	}
	return NewService(store, store), b
}

func TestSubmitRejectsOutOfRangeScores(t *testing.T) {
	s, b := newService(t, models.BookingCompleted)
	for _, overall := range []int{0, 6, -1} {
		sc := goodScores()
		sc.Overall = overall
		_, err := s.Submit(Submission{BookingID: b.ID, RaterID: "shipper1", Scores: sc})
		var ve *apperrors.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("overall=%d: err = %v, want ValidationError", overall, err)
		}
	}
}

func TestSubmitRequiresCompletedBooking(t *testing.T) {
	s, b := newService(t, models.BookingInTransit)
	_, err := s.Submit(Submission{BookingID: b.ID, RaterID: "shipper1", Scores: goodScores()})
	var se *apperrors.StateError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StateError", err)
	}
}

func TestSubmitRequiresParty(t *testing.T) {
	s, b := newService(t, models.BookingCompleted)
	_, err := s.Submit(Submission{BookingID: b.ID, RaterID: "rando", Scores: goodScores()})
	var ae *apperrors.AuthorizationError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want AuthorizationError", err)
	}
}

func TestSubmitResolvesRoleAndRatee(t *testing.T) {
	s, b := newService(t, models.BookingCompleted)

	byShipper, err := s.Submit(Submission{BookingID: b.ID, RaterID: "shipper1", Scores: goodScores()})
	if err != nil {
		t.Fatal(err)
	}
	if byShipper.RaterRole != models.RaterShipper || byShipper.RateeID != "owner1" {
		t.Fatalf("got role=%s ratee=%s", byShipper.RaterRole, byShipper.RateeID)
	}

	byOwner, err := s.Submit(Submission{BookingID: b.ID, RaterID: "owner1", Scores: goodScores()})
	if err != nil {
		t.Fatal(err)
	}
	if byOwner.RaterRole != models.RaterOwner || byOwner.RateeID != "shipper1" {
		t.Fatalf("got role=%s ratee=%s", byOwner.RaterRole, byOwner.RateeID)
	}
}

func TestResubmitSupersedesPrevious(t *testing.T) {
	s, b := newService(t, models.BookingCompleted)
	first, err := s.Submit(Submission{BookingID: b.ID, RaterID: "shipper1", Scores: goodScores()})
	if err != nil {
		t.Fatal(err)
	}

	sc := goodScores()
	sc.Overall = 2
	second, err := s.Submit(Submission{BookingID: b.ID, RaterID: "shipper1", Scores: sc})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID == first.ID {
		t.Fatal("resubmit must create a new record")
	}
	if second.Version != 2 {
		t.Fatalf("version = %d, want 2", second.Version)
	}

	live, err := s.Ratings.LiveRating(b.ID, models.RaterShipper)
	if err != nil {
		t.Fatal(err)
	}
	if live.ID != second.ID {
		t.Fatalf("live rating = %s, want %s", live.ID, second.ID)
	}

	// the superseded record no longer counts toward the summary
	sum, err := s.SummaryFor("owner1")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count != 1 || sum.Overall != 2 {
		t.Fatalf("summary count=%d overall=%v, want 1/2", sum.Count, sum.Overall)
	}
}

func TestSummaryAveragesAndRecommendPercent(t *testing.T) {
	store := storage.NewMemoryStore()
	s := NewService(store, store)
	for i, b := range []models.Booking{
		{ID: "bk1", ListingID: "l1", ShipperID: "s1", OwnerID: "owner1", Status: models.BookingCompleted, RequestedAt: time.Now()},
		{ID: "bk2", ListingID: "l2", ShipperID: "s2", OwnerID: "owner1", Status: models.BookingCompleted, RequestedAt: time.Now()},
	} {
		if err := store.SaveBooking(&b); err != nil {
			t.Fatalf("booking %d: %v", i, err)
		}
	}

	sc1 := goodScores()
	sc1.Overall = 5
	if _, err := s.Submit(Submission{BookingID: "bk1", RaterID: "s1", Scores: sc1, WouldRecommend: true}); err != nil {
		t.Fatal(err)
	}
	sc2 := goodScores()
	sc2.Overall = 4
	if _, err := s.Submit(Submission{BookingID: "bk2", RaterID: "s2", Scores: sc2, WouldRecommend: false}); err != nil {
		t.Fatal(err)
	}

	sum, err := s.SummaryFor("owner1")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count != 2 {
		t.Fatalf("count = %d, want 2", sum.Count)
	}
	if sum.Overall != 4.5 {
		t.Fatalf("overall = %v, want 4.5", sum.Overall)
	}
	if sum.RecommendPercent != 50 {
		t.Fatalf("recommend = %v, want 50", sum.RecommendPercent)
	}
	if got := s.AverageOverall("owner1"); got != 4.5 {
		t.Fatalf("AverageOverall = %v, want 4.5", got)
	}
}

func TestSummaryForUnratedUserIsZero(t *testing.T) {
	s, _ := newService(t, models.BookingCompleted)
	sum, err := s.SummaryFor("nobody")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count != 0 || sum.Overall != 0 {
		t.Fatalf("got %+v, want zero summary", sum)
	}
}
