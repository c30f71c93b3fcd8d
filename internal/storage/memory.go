package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/example/freight-matching/internal/apperrors"
	"github.com/example/freight-matching/internal/models"
)

// MemoryStore keeps everything in maps behind one mutex. It is the
// default store for local runs and tests; the same interfaces are
// backed by Postgres in production.
type MemoryStore struct {
	mu       sync.RWMutex
	listings map[string]models.Listing
	bookings map[string]models.Booking
	escrows  map[string]models.EscrowTransaction
	ratings  map[string]models.Rating
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings: make(map[string]models.Listing),
		bookings: make(map[string]models.Booking),
		escrows:  make(map[string]models.EscrowTransaction),
		ratings:  make(map[string]models.Rating),
	}
}

func (m *MemoryStore) SaveListing(l *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[l.ID] = *l
	return nil
}

func (m *MemoryStore) GetListing(id string) (*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Kind: "listing", ID: id}
	}
	return &l, nil
}

func (m *MemoryStore) UpdateListing(l *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[l.ID]; !ok {
		return &apperrors.NotFoundError{Kind: "listing", ID: l.ID}
	}
	m.listings[l.ID] = *l
	return nil
}

func (m *MemoryStore) CompareAndSwapListingStatus(id string, from, to models.ListingStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return false, &apperrors.NotFoundError{Kind: "listing", ID: id}
	}
	if l.Status != from {
		return false, nil
	}
	l.Status = to
	l.UpdatedAt = time.Now()
	m.listings[id] = l
	return true, nil
}

func (m *MemoryStore) ActiveListings() ([]models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Listing, 0)
	for _, l := range m.listings {
		if l.Status == models.ListingActive {
			out = append(out, l)
		}
	}
	sortListings(out)
	return out, nil
}

func (m *MemoryStore) ListingsByOwner(ownerID string) ([]models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Listing, 0)
	for _, l := range m.listings {
		if l.OwnerID == ownerID {
			out = append(out, l)
		}
	}
	sortListings(out)
	return out, nil
}

func (m *MemoryStore) ExpiredCandidates(cutoff time.Time) ([]models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Listing, 0)
	for _, l := range m.listings {
		if l.Status == models.ListingActive && l.DepartureDate.Before(cutoff) {
			out = append(out, l)
		}
	}
	sortListings(out)
	return out, nil
}

func (m *MemoryStore) SaveBooking(b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !b.Status.Terminal() {
		for _, other := range m.bookings {
			if other.ListingID == b.ListingID && other.ID != b.ID && !other.Status.Terminal() {
				return &apperrors.StateError{Entity: "listing", Status: "reserved", Op: "book"}
			}
		}
	}
	m.bookings[b.ID] = *b
	return nil
}

func (m *MemoryStore) GetBooking(id string) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Kind: "booking", ID: id}
	}
	return &b, nil
}

func (m *MemoryStore) UpdateBooking(b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.ID]; !ok {
		return &apperrors.NotFoundError{Kind: "booking", ID: b.ID}
	}
	m.bookings[b.ID] = *b
	return nil
}

func (m *MemoryStore) ActiveBookingForListing(listingID string) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bookings {
		if b.ListingID == listingID && !b.Status.Terminal() {
			b := b
			return &b, nil
		}
	}
	return nil, &apperrors.NotFoundError{Kind: "booking", ID: "listing:" + listingID}
}

func (m *MemoryStore) BookingsByParty(userID string) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Booking, 0)
	for _, b := range m.bookings {
		if b.ShipperID == userID || b.OwnerID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeliveredBefore(cutoff time.Time) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Booking, 0)
	for _, b := range m.bookings {
		if b.Status == models.BookingDelivered && b.DeliveredAt != nil && b.DeliveredAt.Before(cutoff) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SaveTransaction(t *models.EscrowTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !t.Status.Terminal() {
		for _, other := range m.escrows {
			if other.BookingID == t.BookingID && other.ID != t.ID && !other.Status.Terminal() {
				return &apperrors.StateError{Entity: "escrow", Status: string(other.Status), Op: "initiate"}
			}
		}
	}
	m.escrows[t.ID] = *t
	return nil
}

func (m *MemoryStore) GetTransaction(id string) (*models.EscrowTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.escrows[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Kind: "escrow transaction", ID: id}
	}
	return &t, nil
}

func (m *MemoryStore) UpdateTransaction(t *models.EscrowTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.escrows[t.ID]; !ok {
		return &apperrors.NotFoundError{Kind: "escrow transaction", ID: t.ID}
	}
	m.escrows[t.ID] = *t
	return nil
}

func (m *MemoryStore) TransactionForBooking(bookingID string) (*models.EscrowTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *models.EscrowTransaction
	for _, t := range m.escrows {
		if t.BookingID != bookingID {
			continue
		}
		t := t
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = &t
		}
	}
	if latest == nil {
		return nil, &apperrors.NotFoundError{Kind: "escrow transaction", ID: "booking:" + bookingID}
	}
	return latest, nil
}

func (m *MemoryStore) TransactionsByStatus(status models.EscrowStatus) ([]models.EscrowTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.EscrowTransaction, 0)
	for _, t := range m.escrows {
		if t.Status == status {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SaveRating(r *models.Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratings[r.ID] = *r
	return nil
}

func (m *MemoryStore) LiveRating(bookingID string, role models.RaterRole) (*models.Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.ratings {
		if r.BookingID == bookingID && r.RaterRole == role && !r.Superseded {
			r := r
			return &r, nil
		}
	}
	return nil, &apperrors.NotFoundError{Kind: "rating", ID: bookingID + "/" + string(role)}
}

func (m *MemoryStore) MarkSuperseded(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ratings[id]
	if !ok {
		return &apperrors.NotFoundError{Kind: "rating", ID: id}
	}
	r.Superseded = true
	m.ratings[id] = r
	return nil
}

func (m *MemoryStore) RatingsForRatee(rateeID string) ([]models.Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Rating, 0)
	for _, r := range m.ratings {
		if r.RateeID == rateeID && !r.Superseded {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func sortListings(ls []models.Listing) {
	sort.Slice(ls, func(i, j int) bool { return ls[i].ID < ls[j].ID })
}
