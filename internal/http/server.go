package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/freight-matching/internal/booking"
	"github.com/example/freight-matching/internal/catalog"
	"github.com/example/freight-matching/internal/config"
	"github.com/example/freight-matching/internal/dispatch"
	"github.com/example/freight-matching/internal/escrow"
	"github.com/example/freight-matching/internal/ingest"
	"github.com/example/freight-matching/internal/matching"
	"github.com/example/freight-matching/internal/models"
	"github.com/example/freight-matching/internal/payments"
	"github.com/example/freight-matching/internal/pricing"
	"github.com/example/freight-matching/internal/rating"
	"github.com/example/freight-matching/internal/routeindex"
	"github.com/example/freight-matching/internal/storage"
)

type Server struct {
	Catalog   *catalog.Service
	Matcher   *matching.Service
	Lifecycle *booking.Lifecycle
	Ledger    *escrow.Ledger
	Ratings   *rating.Service
	Pricer    *pricing.Estimator
	WSReg     *dispatch.WSRegistry
	cfg       config.ServerConfig
	logger    *slog.Logger
	mux       *mux.Router
}

// NewServerFromEnv wires the whole service from config with sensible
// fallbacks: memory store and in-process route index when Postgres and
// Redis are absent, no Kafka producer without brokers.
func NewServerFromEnv(cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	var store storage.Store
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		store = ps
	} else {
		store = storage.NewMemoryStore()
	}

	var idx routeindex.Index
	if cfg.RedisAddr != "" {
		idx = routeindex.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisRoutePrefix)
	} else {
		idx = routeindex.NewMemory()
	}

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	wsreg := dispatch.NewWSRegistry()
	fanout := &dispatch.Fanout{Kafka: kp, WS: wsreg, Bookings: store, Logger: logger}
	if cfg.WebhookURL != "" {
		fanout.Webhook = &dispatch.WebhookDispatcher{Endpoint: cfg.WebhookURL}
	}

	var gw escrow.Gateway
	if os.Getenv("STRIPE_API_KEY") != "" {
		gw = payments.NewStripeClient()
	}
	ledger := escrow.NewLedger(store, store, gw, cfg.PlatformFeeRate)
	ledger.Events = fanout

	lc := booking.NewLifecycle(store, store, ledger)
	lc.Events = fanout
	lc.Index = idx

	cat := catalog.NewService(store, idx)
	rat := rating.NewService(store, store)

	pricer := &pricing.Estimator{
		Cache:             pricing.NewCache(cfg.SweepInterval * 10),
		DefaultRatePerTon: models.Money(cfg.DefaultRatePerTon),
	}
	if cfg.RateServiceURL != "" {
		pricer.Client = pricing.NewRateAPIClient(cfg.RateServiceURL)
	}

	return NewServer(cat, matching.NewService(rat), lc, ledger, rat, pricer, wsreg, cfg, logger), nil
}

func NewServer(cat *catalog.Service, match *matching.Service, lc *booking.Lifecycle, ledger *escrow.Ledger,
	rat *rating.Service, pricer *pricing.Estimator, wsreg *dispatch.WSRegistry,
	cfg config.ServerConfig, logger *slog.Logger) *Server {
	s := &Server{
		Catalog:   cat,
		Matcher:   match,
		Lifecycle: lc,
		Ledger:    ledger,
		Ratings:   rat,
		Pricer:    pricer,
		WSReg:     wsreg,
		cfg:       cfg,
		logger:    logger,
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/listings", s.handleCreateListing).Methods("POST")
	api.HandleFunc("/listings/search", s.handleSearch).Methods("GET")
	api.HandleFunc("/listings/mine", s.handleMyListings).Methods("GET")
	api.HandleFunc("/listings/suggest-price", s.handleSuggestPrice).Methods("GET")
	api.HandleFunc("/listings/{id}/cancel", s.handleCancelListing).Methods("POST")
	api.HandleFunc("/listings/{id}/relist", s.handleRelist).Methods("POST")

	api.HandleFunc("/bookings", s.handleRequestBooking).Methods("POST")
	api.HandleFunc("/bookings", s.handleMyBookings).Methods("GET")
	api.HandleFunc("/bookings/{id}", s.handleGetBooking).Methods("GET")
	api.HandleFunc("/bookings/{id}/confirm", s.bookingCommand(s.Lifecycle.Confirm)).Methods("POST")
	api.HandleFunc("/bookings/{id}/decline", s.bookingCommand(s.Lifecycle.Decline)).Methods("POST")
	api.HandleFunc("/bookings/{id}/cancel", s.handleCancelBooking).Methods("POST")
	api.HandleFunc("/bookings/{id}/start", s.bookingCommand(s.Lifecycle.StartTrip)).Methods("POST")
	api.HandleFunc("/bookings/{id}/deliver", s.bookingCommand(s.Lifecycle.MarkDelivered)).Methods("POST")
	api.HandleFunc("/bookings/{id}/complete", s.bookingCommand(s.Lifecycle.ConfirmDelivery)).Methods("POST")
	api.HandleFunc("/bookings/{id}/pay", s.handlePay).Methods("POST")
	api.HandleFunc("/bookings/{id}/escrow", s.handleBookingEscrow).Methods("GET")
	api.HandleFunc("/bookings/{id}/rating", s.handleSubmitRating).Methods("POST")

	api.HandleFunc("/escrow/{id}/confirm-funds", s.handleConfirmFunds).Methods("POST")
	api.HandleFunc("/escrow/{id}/dispute", s.handleDispute).Methods("POST")
	api.HandleFunc("/escrow/{id}/resolve", s.handleResolveDispute).Methods("POST")
	api.HandleFunc("/admin/escrow", s.handleAdminEscrow).Methods("GET")

	api.HandleFunc("/users/{id}/rating-summary", s.handleRatingSummary).Methods("GET")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", 400)
		return
	}
	s.WSReg.Add(id, conn)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
