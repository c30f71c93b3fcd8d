package storage

import (
	"time"

	"github.com/example/freight-matching/internal/models"
)

// ListingStore defines persistence operations for listings. Get always
// returns a copy; callers never share memory with the store.
type ListingStore interface {
	SaveListing(l *models.Listing) error
	GetListing(id string) (*models.Listing, error)
	UpdateListing(l *models.Listing) error
	// CompareAndSwapListingStatus flips status from -> to only if the
	// listing is still in from. Returns false when the swap lost.
	CompareAndSwapListingStatus(id string, from, to models.ListingStatus) (bool, error)
	ActiveListings() ([]models.Listing, error)
	ListingsByOwner(ownerID string) ([]models.Listing, error)
	// ExpiredCandidates returns active listings whose departure date is
	// before the cutoff.
	ExpiredCandidates(cutoff time.Time) ([]models.Listing, error)
}

// BookingStore defines persistence operations for bookings.
// SaveBooking must reject a second non-terminal booking for the same
// listing; that uniqueness is the double-booking guard and has to be
// atomic with the insert.
type BookingStore interface {
	SaveBooking(b *models.Booking) error
	GetBooking(id string) (*models.Booking, error)
	UpdateBooking(b *models.Booking) error
	ActiveBookingForListing(listingID string) (*models.Booking, error)
	BookingsByParty(userID string) ([]models.Booking, error)
	// DeliveredBefore returns bookings sitting in delivered since
	// before the cutoff, for the auto-complete sweep.
	DeliveredBefore(cutoff time.Time) ([]models.Booking, error)
}

// EscrowStore defines persistence operations for escrow transactions.
// SaveTransaction must reject a second non-terminal transaction for
// the same booking.
type EscrowStore interface {
	SaveTransaction(t *models.EscrowTransaction) error
	GetTransaction(id string) (*models.EscrowTransaction, error)
	UpdateTransaction(t *models.EscrowTransaction) error
	TransactionForBooking(bookingID string) (*models.EscrowTransaction, error)
	TransactionsByStatus(status models.EscrowStatus) ([]models.EscrowTransaction, error)
}

// RatingStore defines persistence operations for ratings.
type RatingStore interface {
	SaveRating(r *models.Rating) error
	// LiveRating returns the current (non-superseded) rating for the
	// pair, if any.
	LiveRating(bookingID string, role models.RaterRole) (*models.Rating, error)
	MarkSuperseded(id string) error
	RatingsForRatee(rateeID string) ([]models.Rating, error)
}

// Store bundles the four entity stores; both the memory and postgres
// implementations satisfy it.
type Store interface {
	ListingStore
	BookingStore
	EscrowStore
	RatingStore
}
