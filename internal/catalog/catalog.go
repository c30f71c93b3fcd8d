package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/freight-matching/internal/apperrors"
	"github.com/example/freight-matching/internal/models"
	"github.com/example/freight-matching/internal/observability"
	"github.com/example/freight-matching/internal/routeindex"
	"github.com/example/freight-matching/internal/storage"
)

// Service is the listing catalog: owners post return-trip capacity
// here and shippers search it. Status flips driven by bookings go
// through the booking lifecycle, not through this service.
type Service struct {
	Store storage.ListingStore
	Index routeindex.Index // optional route index for two-city searches
	Now   func() time.Time
}

func NewService(store storage.ListingStore, idx routeindex.Index) *Service {
	return &Service{Store: store, Index: idx, Now: time.Now}
}

// Criteria are the search filters. Zero values match everything.
type Criteria struct {
	Origin      string
	Destination string
	DateFrom    time.Time
	DateTo      time.Time
	MinCapacity float64
	MaxPrice    models.Money
	VehicleType models.VehicleType
}

// Create validates and stores a new active listing.
func (s *Service) Create(l models.Listing) (models.Listing, error) {
	if strings.TrimSpace(l.Origin) == "" {
		return models.Listing{}, &apperrors.ValidationError{Field: "origin", Reason: "must not be blank"}
	}
	if strings.TrimSpace(l.Destination) == "" {
		return models.Listing{}, &apperrors.ValidationError{Field: "destination", Reason: "must not be blank"}
	}
	if l.CapacityTons <= 0 {
		return models.Listing{}, &apperrors.ValidationError{Field: "capacity_tons", Reason: "must be > 0"}
	}
	if l.AskingPrice <= 0 {
		return models.Listing{}, &apperrors.ValidationError{Field: "asking_price", Reason: "must be > 0"}
	}
	now := s.Now()
	if l.DepartureDate.Before(now) {
		return models.Listing{}, &apperrors.ValidationError{Field: "departure_date", Reason: "must not be in the past"}
	}
	if l.OwnerID == "" {
		return models.Listing{}, &apperrors.ValidationError{Field: "owner_id", Reason: "must not be blank"}
	}
	l.ID = uuid.NewString()
	l.Status = models.ListingActive
	l.CreatedAt = now
	l.UpdatedAt = now
	if err := s.Store.SaveListing(&l); err != nil {
		return models.Listing{}, err
	}
	if s.Index != nil {
		s.Index.Add(l.Origin, l.Destination, l.ID)
	}
	observability.ListingsCreated.Inc()
	return l, nil
}

// Search returns active listings matching every provided criterion,
// ordered by id so results are deterministic.
func (s *Service) Search(c Criteria) ([]models.Listing, error) {
	observability.SearchesTotal.Inc()
	cands, err := s.candidates(c)
	if err != nil {
		return nil, err
	}
	out := make([]models.Listing, 0, len(cands))
	for _, l := range cands {
		if matches(l, c) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Service) candidates(c Criteria) ([]models.Listing, error) {
	if s.Index != nil && c.Origin != "" && c.Destination != "" {
		ids := s.Index.ByRoute(c.Origin, c.Destination)
		out := make([]models.Listing, 0, len(ids))
		for _, id := range ids {
			l, err := s.Store.GetListing(id)
			if err != nil {
				continue // index can lag the store
			}
			out = append(out, *l)
		}
		return out, nil
	}
	return s.Store.ActiveListings()
}

func matches(l models.Listing, c Criteria) bool {
	if l.Status != models.ListingActive {
		return false
	}
	if c.Origin != "" && !cityEqual(l.Origin, c.Origin) {
		return false
	}
	if c.Destination != "" && !cityEqual(l.Destination, c.Destination) {
		return false
	}
	if !c.DateFrom.IsZero() && l.DepartureDate.Before(c.DateFrom) {
		return false
	}
	if !c.DateTo.IsZero() && l.DepartureDate.After(c.DateTo) {
		return false
	}
	if c.MinCapacity > 0 && l.CapacityTons < c.MinCapacity {
		return false
	}
	if c.MaxPrice > 0 && l.AskingPrice > c.MaxPrice {
		return false
	}
	if c.VehicleType != "" && l.VehicleType != c.VehicleType {
		return false
	}
	return true
}

func cityEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Cancel soft-deletes an active listing on behalf of its owner.
func (s *Service) Cancel(listingID, byOwnerID string) error {
	l, err := s.Store.GetListing(listingID)
	if err != nil {
		return err
	}
	if l.OwnerID != byOwnerID {
		return &apperrors.AuthorizationError{CallerID: byOwnerID, Action: "cancel listing " + listingID}
	}
	if l.Status != models.ListingActive {
		return &apperrors.StateError{Entity: "listing", Status: string(l.Status), Op: "cancel"}
	}
	ok, err := s.Store.CompareAndSwapListingStatus(listingID, models.ListingActive, models.ListingCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return &apperrors.StateError{Entity: "listing", Status: string(l.Status), Op: "cancel"}
	}
	if s.Index != nil {
		s.Index.Remove(l.Origin, l.Destination, l.ID)
	}
	return nil
}

// MarkExpired flips an active listing whose departure date has passed.
// Invoked by the sweeper, never by users.
func (s *Service) MarkExpired(listingID string) error {
	l, err := s.Store.GetListing(listingID)
	if err != nil {
		return err
	}
	ok, err := s.Store.CompareAndSwapListingStatus(listingID, models.ListingActive, models.ListingExpired)
	if err != nil {
		return err
	}
	if !ok {
		return &apperrors.StateError{Entity: "listing", Status: string(l.Status), Op: "expire"}
	}
	if s.Index != nil {
		s.Index.Remove(l.Origin, l.Destination, l.ID)
	}
	return nil
}

// ExpireDue sweeps all active listings whose departure date is before
// now. Returns how many were expired.
func (s *Service) ExpireDue() (int, error) {
	due, err := s.Store.ExpiredCandidates(s.Now())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, l := range due {
		if err := s.MarkExpired(l.ID); err == nil {
			n++
		}
	}
	return n, nil
}

// Relist reissues an expired listing as a brand-new active one with a
// fresh id and departure date. The expired record is left untouched.
func (s *Service) Relist(listingID, byOwnerID string, departure time.Time) (models.Listing, error) {
	old, err := s.Store.GetListing(listingID)
	if err != nil {
		return models.Listing{}, err
	}
	if old.OwnerID != byOwnerID {
		return models.Listing{}, &apperrors.AuthorizationError{CallerID: byOwnerID, Action: "relist listing " + listingID}
	}
	if old.Status != models.ListingExpired {
		return models.Listing{}, &apperrors.StateError{Entity: "listing", Status: string(old.Status), Op: "relist"}
	}
	fresh := *old
	fresh.DepartureDate = departure
	return s.Create(fresh)
}

// ByOwner lists everything an owner has posted, any status.
func (s *Service) ByOwner(ownerID string) ([]models.Listing, error) {
	return s.Store.ListingsByOwner(ownerID)
}
