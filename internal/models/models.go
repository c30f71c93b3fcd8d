package models

import "time"

// Amounts are whole rupees. The platform never quotes paise, so an
// int64 keeps fee arithmetic exact.
type Money int64

type VehicleType string

const (
	VehicleOpenBody     VehicleType = "open_body"
	VehicleContainer    VehicleType = "closed_container"
	VehicleRefrigerated VehicleType = "refrigerated"
	VehicleTanker       VehicleType = "tanker"
	VehicleTrailer      VehicleType = "trailer"
)

type ListingStatus string

const (
	ListingActive    ListingStatus = "active"
	ListingBooked    ListingStatus = "booked"
	ListingExpired   ListingStatus = "expired"
	ListingCancelled ListingStatus = "cancelled"
)

// Listing is a truck owner's posted empty-return-trip offer.
type Listing struct {
	ID            string        `json:"id"`
	OwnerID       string        `json:"owner_id"`
	Origin        string        `json:"origin"`
	Destination   string        `json:"destination"`
	ViaCities     []string      `json:"via_cities,omitempty"`
	DepartureDate time.Time     `json:"departure_date"`
	VehicleType   VehicleType   `json:"vehicle_type"`
	CapacityTons  float64       `json:"capacity_tons"`
	AskingPrice   Money         `json:"asking_price"`
	Negotiable    bool          `json:"negotiable"`
	Status        ListingStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingInTransit BookingStatus = "in_transit"
	BookingDelivered BookingStatus = "delivered"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingDeclined  BookingStatus = "declined"
)

// Terminal reports whether no further lifecycle transition is defined
// from s.
func (s BookingStatus) Terminal() bool {
	return s == BookingCompleted || s == BookingCancelled || s == BookingDeclined
}

type Cargo struct {
	Type        string  `json:"type"`
	WeightTons  float64 `json:"weight_tons"`
	Description string  `json:"description,omitempty"`
}

// Booking is a shipper's reservation against a Listing. Each timestamp
// is set exactly once, when the corresponding transition fires.
type Booking struct {
	ID           string        `json:"id"`
	ListingID    string        `json:"listing_id"`
	ShipperID    string        `json:"shipper_id"`
	OwnerID      string        `json:"owner_id"`
	AgreedPrice  Money         `json:"agreed_price"`
	Cargo        Cargo         `json:"cargo"`
	Status       BookingStatus `json:"status"`
	CancelReason string        `json:"cancel_reason,omitempty"`
	RequestedAt  time.Time     `json:"requested_at"`
	RespondedAt  *time.Time    `json:"responded_at,omitempty"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	DeliveredAt  *time.Time    `json:"delivered_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

type EscrowStatus string

const (
	EscrowInitiated EscrowStatus = "initiated"
	EscrowHeld      EscrowStatus = "held"
	EscrowReleased  EscrowStatus = "released"
	EscrowRefunded  EscrowStatus = "refunded"
	EscrowDisputed  EscrowStatus = "disputed"
)

func (s EscrowStatus) Terminal() bool {
	return s == EscrowReleased || s == EscrowRefunded
}

// EscrowTransaction tracks the payment held against a Booking, 1:1.
// NetAmount + PlatformFee == GrossAmount at all times.
type EscrowTransaction struct {
	ID              string       `json:"id"`
	BookingID       string       `json:"booking_id"`
	GrossAmount     Money        `json:"gross_amount"`
	PlatformFeeRate float64      `json:"platform_fee_rate"`
	PlatformFee     Money        `json:"platform_fee"`
	NetAmount       Money        `json:"net_amount"`
	Status          EscrowStatus `json:"status"`
	GatewayRef      string       `json:"gateway_ref,omitempty"`
	DisputeReason   string       `json:"dispute_reason,omitempty"`
	DisputedBy      string       `json:"disputed_by,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	ReleasedAt      *time.Time   `json:"released_at,omitempty"`
}

type RaterRole string

const (
	RaterShipper RaterRole = "shipper"
	RaterOwner   RaterRole = "owner"
)

// RatingScores holds the per-category 1..5 integers from the rating form.
type RatingScores struct {
	Overall         int `json:"overall"`
	Punctuality     int `json:"punctuality"`
	Handling        int `json:"handling"`
	Communication   int `json:"communication"`
	Professionalism int `json:"professionalism"`
}

// Rating is feedback on a completed Booking, one live record per
// (booking, rater role). Resubmission supersedes, never edits in place.
type Rating struct {
	ID             string       `json:"id"`
	BookingID      string       `json:"booking_id"`
	RaterRole      RaterRole    `json:"rater_role"`
	RaterID        string       `json:"rater_id"`
	RateeID        string       `json:"ratee_id"`
	Scores         RatingScores `json:"scores"`
	Feedback       string       `json:"feedback,omitempty"`
	WouldRecommend bool         `json:"would_recommend"`
	Version        int          `json:"version"`
	Superseded     bool         `json:"superseded"`
	CreatedAt      time.Time    `json:"created_at"`
}

// BookingEvent is published to Kafka and pushed over WebSocket on
// every lifecycle or escrow transition.
type BookingEvent struct {
	BookingID string    `json:"booking_id"`
	ListingID string    `json:"listing_id"`
	OwnerID   string    `json:"owner_id"`
	ShipperID string    `json:"shipper_id"`
	Kind      string    `json:"kind"` // booking_status or escrow_status
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    Money     `json:"amount,omitempty"`
	At        time.Time `json:"at"`
}
