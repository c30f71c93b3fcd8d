package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/freight-matching/internal/apperrors"
	"github.com/example/freight-matching/internal/catalog"
	"github.com/example/freight-matching/internal/escrow"
	"github.com/example/freight-matching/internal/matching"
	"github.com/example/freight-matching/internal/models"
	"github.com/example/freight-matching/internal/rating"
)

// Caller identity comes from the X-User-ID header; the API gateway in
// front of this service is responsible for authenticating it.
func callerID(r *http.Request) string { return r.Header.Get("X-User-ID") }

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

type createListingRequest struct {
	Origin        string             `json:"origin"`
	Destination   string             `json:"destination"`
	ViaCities     []string           `json:"via_cities"`
	DepartureDate time.Time          `json:"departure_date"`
	VehicleType   models.VehicleType `json:"vehicle_type"`
	CapacityTons  float64            `json:"capacity_tons"`
	AskingPrice   models.Money       `json:"asking_price"`
	Negotiable    bool               `json:"negotiable"`
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	l, err := s.Catalog.Create(models.Listing{
		OwnerID:       callerID(r),
		Origin:        req.Origin,
		Destination:   req.Destination,
		ViaCities:     req.ViaCities,
		DepartureDate: req.DepartureDate,
		VehicleType:   req.VehicleType,
		CapacityTons:  req.CapacityTons,
		AskingPrice:   req.AskingPrice,
		Negotiable:    req.Negotiable,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, l)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	crit := catalog.Criteria{
		Origin:      q.Get("origin"),
		Destination: q.Get("destination"),
		VehicleType: models.VehicleType(q.Get("vehicle_type")),
	}
	if v := q.Get("date_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, &apperrors.ValidationError{Field: "date_from", Reason: "must be RFC3339"})
			return
		}
		crit.DateFrom = t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, &apperrors.ValidationError{Field: "date_to", Reason: "must be RFC3339"})
			return
		}
		crit.DateTo = t
	}
	if v := q.Get("min_capacity"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, &apperrors.ValidationError{Field: "min_capacity", Reason: "must be numeric"})
			return
		}
		crit.MinCapacity = f
	}
	if v := q.Get("max_price"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, &apperrors.ValidationError{Field: "max_price", Reason: "must be an integer"})
			return
		}
		crit.MaxPrice = models.Money(n)
	}

	results, err := s.Catalog.Search(crit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sortBy := matching.SortBy(q.Get("sort"))
	if sortBy == "" {
		sortBy = matching.SortByPrice
	}
	ranked := s.Matcher.Rank(results, sortBy)
	s.writeJSON(w, http.StatusOK, map[string]any{"listings": ranked, "count": len(ranked)})
}

func (s *Server) handleMyListings(w http.ResponseWriter, r *http.Request) {
	ls, err := s.Catalog.ByOwner(callerID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"listings": ls})
}

func (s *Server) handleSuggestPrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var capacity float64
	if v := q.Get("capacity_tons"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, &apperrors.ValidationError{Field: "capacity_tons", Reason: "must be numeric"})
			return
		}
		capacity = f
	}
	price := s.Pricer.Suggest(q.Get("origin"), q.Get("destination"), capacity)
	s.writeJSON(w, http.StatusOK, map[string]any{"suggested_price": price})
}

func (s *Server) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Catalog.Cancel(id, callerID(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRelist(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		DepartureDate time.Time `json:"departure_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	l, err := s.Catalog.Relist(id, callerID(r), req.DepartureDate)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, l)
}

type requestBookingRequest struct {
	ListingID   string       `json:"listing_id"`
	Cargo       models.Cargo `json:"cargo"`
	AgreedPrice models.Money `json:"agreed_price"`
}

func (s *Server) handleRequestBooking(w http.ResponseWriter, r *http.Request) {
	var req requestBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	b, err := s.Lifecycle.Request(req.ListingID, callerID(r), req.Cargo, req.AgreedPrice)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	bs, err := s.Lifecycle.ForParty(callerID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"bookings": bs})
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.Lifecycle.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

// bookingCommand adapts the two-argument lifecycle commands into
// handlers so each route stays a one-liner.
func (s *Server) bookingCommand(cmd func(bookingID, callerID string) (models.Booking, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := cmd(mux.Vars(r)["id"], callerID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, b)
	}
}

func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	b, err := s.Lifecycle.Cancel(mux.Vars(r)["id"], callerID(r), req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["id"]
	var req struct {
		GrossAmount models.Money `json:"gross_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	b, err := s.Lifecycle.Get(bookingID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if callerID(r) != b.ShipperID {
		s.writeError(w, &apperrors.AuthorizationError{CallerID: callerID(r), Action: "pay booking " + bookingID})
		return
	}
	gross := req.GrossAmount
	if gross <= 0 {
		gross = b.AgreedPrice
	}
	t, err := s.Ledger.Initiate(bookingID, gross)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleBookingEscrow(w http.ResponseWriter, r *http.Request) {
	t, err := s.Ledger.ForBooking(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleConfirmFunds(w http.ResponseWriter, r *http.Request) {
	t, err := s.Ledger.ConfirmFunds(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	t, err := s.Ledger.RaiseDispute(mux.Vars(r)["id"], callerID(r), req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.IsAdmin(callerID(r)) {
		s.writeError(w, &apperrors.AuthorizationError{CallerID: callerID(r), Action: "resolve dispute"})
		return
	}
	var req struct {
		Outcome escrow.DisputeOutcome `json:"outcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	t, err := s.Ledger.ResolveDispute(mux.Vars(r)["id"], req.Outcome)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAdminEscrow(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.IsAdmin(callerID(r)) {
		s.writeError(w, &apperrors.AuthorizationError{CallerID: callerID(r), Action: "list escrow"})
		return
	}
	status := models.EscrowStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.EscrowDisputed
	}
	ts, err := s.Ledger.ByStatus(status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"transactions": ts})
}

type submitRatingRequest struct {
	Scores         models.RatingScores `json:"scores"`
	Feedback       string              `json:"feedback"`
	WouldRecommend bool                `json:"would_recommend"`
}

func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	var req submitRatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	rt, err := s.Ratings.Submit(rating.Submission{
		BookingID:      mux.Vars(r)["id"],
		RaterID:        callerID(r),
		Scores:         req.Scores,
		Feedback:       req.Feedback,
		WouldRecommend: req.WouldRecommend,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rt)
}

func (s *Server) handleRatingSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Ratings.SummaryFor(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}
