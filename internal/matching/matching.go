package matching

import (
	"sort"

	"github.com/example/freight-matching/internal/models"
)

// SortBy selects the ranking order for search results.
type SortBy string

const (
	SortByPrice  SortBy = "price"  // cheapest first
	SortByRating SortBy = "rating" // best-rated owner first
	SortByDate   SortBy = "date"   // earliest departure first
)

// RatingSource resolves an owner's average overall score. The rating
// service implements it; tests use a map-backed fake.
type RatingSource interface {
	AverageOverall(ownerID string) float64
}

// Service ranks catalog results. No scoring model here: a
// deterministic sort with ties broken by listing id ascending, so the
// same inputs always produce the same order.
type Service struct {
	Ratings RatingSource // optional; without it rating sort degrades to id order
}

func NewService(ratings RatingSource) *Service {
	return &Service{Ratings: ratings}
}

// Rank returns a new slice sorted by the requested key. Unknown keys
// fall back to price.
func (s *Service) Rank(listings []models.Listing, by SortBy) []models.Listing {
	out := make([]models.Listing, len(listings))
	copy(out, listings)

	less := s.lessFunc(by)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := less(a, b); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})
	return out
}

// lessFunc returns a three-way comparison for the sort key. 0 means
// fall through to the id tiebreak.
func (s *Service) lessFunc(by SortBy) func(a, b models.Listing) int {
	switch by {
	case SortByRating:
		return func(a, b models.Listing) int {
			ra, rb := s.ownerRating(a.OwnerID), s.ownerRating(b.OwnerID)
			switch {
			case ra > rb:
				return -1
			case ra < rb:
				return 1
			}
			return 0
		}
	case SortByDate:
		return func(a, b models.Listing) int {
			switch {
			case a.DepartureDate.Before(b.DepartureDate):
				return -1
			case b.DepartureDate.Before(a.DepartureDate):
				return 1
			}
			return 0
		}
	default: // SortByPrice
		return func(a, b models.Listing) int {
			switch {
			case a.AskingPrice < b.AskingPrice:
				return -1
			case a.AskingPrice > b.AskingPrice:
				return 1
			}
			return 0
		}
	}
}

func (s *Service) ownerRating(ownerID string) float64 {
	if s.Ratings == nil {
		return 0
	}
	return s.Ratings.AverageOverall(ownerID)
}
