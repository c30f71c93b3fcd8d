package rating

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/freight-matching/internal/apperrors"
	"github.com/example/freight-matching/internal/models"
	"github.com/example/freight-matching/internal/storage"
)

// Service records feedback on completed bookings. A booking carries at
// most one live rating per direction (shipper rates owner, owner rates
// shipper); submitting again supersedes the old record instead of
// editing it, so the history stays auditable.
type Service struct {
	Ratings  storage.RatingStore
	Bookings storage.BookingStore
	Now      func() time.Time
}

func NewService(ratings storage.RatingStore, bookings storage.BookingStore) *Service {
	return &Service{Ratings: ratings, Bookings: bookings, Now: time.Now}
}

// Submission is the rating form payload.
type Submission struct {
	BookingID      string
	RaterID        string
	Scores         models.RatingScores
	Feedback       string
	WouldRecommend bool
}

// Submit validates and stores a rating. The caller must be a party to
// the booking and the booking must be completed.
func (s *Service) Submit(sub Submission) (models.Rating, error) {
	if err := validateScores(sub.Scores); err != nil {
		return models.Rating{}, err
	}
	b, err := s.Bookings.GetBooking(sub.BookingID)
	if err != nil {
		return models.Rating{}, err
	}
	if b.Status != models.BookingCompleted {
		return models.Rating{}, &apperrors.StateError{Entity: "booking", Status: string(b.Status), Op: "rate"}
	}

	var role models.RaterRole
	var rateeID string
	switch sub.RaterID {
	case b.ShipperID:
		role, rateeID = models.RaterShipper, b.OwnerID
	case b.OwnerID:
		role, rateeID = models.RaterOwner, b.ShipperID
	default:
		return models.Rating{}, &apperrors.AuthorizationError{CallerID: sub.RaterID, Action: "rate booking " + sub.BookingID}
	}

	version := 1
	if prev, err := s.Ratings.LiveRating(sub.BookingID, role); err == nil {
		if err := s.Ratings.MarkSuperseded(prev.ID); err != nil {
			return models.Rating{}, err
		}
		version = prev.Version + 1
	} else {
		var nf *apperrors.NotFoundError
		if !errors.As(err, &nf) {
			return models.Rating{}, err
		}
	}

	r := models.Rating{
		ID:             uuid.NewString(),
		BookingID:      sub.BookingID,
		RaterRole:      role,
		RaterID:        sub.RaterID,
		RateeID:        rateeID,
		Scores:         sub.Scores,
		Feedback:       sub.Feedback,
		WouldRecommend: sub.WouldRecommend,
		Version:        version,
		CreatedAt:      s.Now(),
	}
	if err := s.Ratings.SaveRating(&r); err != nil {
		return models.Rating{}, err
	}
	return r, nil
}

func validateScores(sc models.RatingScores) error {
	for _, c := range []struct {
		name string
		v    int
	}{
		{"overall", sc.Overall},
		{"punctuality", sc.Punctuality},
		{"handling", sc.Handling},
		{"communication", sc.Communication},
		{"professionalism", sc.Professionalism},
	} {
		if c.v < 1 || c.v > 5 {
			return &apperrors.ValidationError{Field: c.name, Reason: "must be between 1 and 5"}
		}
	}
	return nil
}

// Summary aggregates a user's live ratings the way the profile page
// shows them.
type Summary struct {
	Count            int     `json:"count"`
	Overall          float64 `json:"overall"`
	Punctuality      float64 `json:"punctuality"`
	Handling         float64 `json:"handling"`
	Communication    float64 `json:"communication"`
	Professionalism  float64 `json:"professionalism"`
	RecommendPercent float64 `json:"recommend_percent"`
}

func (s *Service) SummaryFor(userID string) (Summary, error) {
	rs, err := s.Ratings.RatingsForRatee(userID)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Count: len(rs)}
	if len(rs) == 0 {
		return sum, nil
	}
	recommends := 0
	for _, r := range rs {
		sum.Overall += float64(r.Scores.Overall)
		sum.Punctuality += float64(r.Scores.Punctuality)
		sum.Handling += float64(r.Scores.Handling)
		sum.Communication += float64(r.Scores.Communication)
		sum.Professionalism += float64(r.Scores.Professionalism)
		if r.WouldRecommend {
			recommends++
		}
	}
	n := float64(len(rs))
	sum.Overall /= n
	sum.Punctuality /= n
	sum.Handling /= n
	sum.Communication /= n
	sum.Professionalism /= n
	sum.RecommendPercent = 100 * float64(recommends) / n
	return sum, nil
}

// AverageOverall implements matching.RatingSource.
func (s *Service) AverageOverall(userID string) float64 {
	sum, err := s.SummaryFor(userID)
	if err != nil {
		return 0
	}
	return sum.Overall
}
