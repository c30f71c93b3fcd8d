package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/example/freight-matching/internal/apperrors"
	"github.com/example/freight-matching/internal/models"
)

// PostgresStore backs the entity stores with Postgres. The partial
// unique indexes in migrations/001_init.sql enforce the at-most-one
// non-terminal booking/escrow rules at the database level; unique
// violations are translated to StateError here.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) SaveListing(l *models.Listing) error {
	_, err := p.db.Exec(`INSERT INTO listings(id, owner_id, origin, destination, via_cities, departure_date, vehicle_type, capacity_tons, asking_price, negotiable, status, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		l.ID, l.OwnerID, l.Origin, l.Destination, pq.Array(l.ViaCities), l.DepartureDate,
		string(l.VehicleType), l.CapacityTons, int64(l.AskingPrice), l.Negotiable, string(l.Status), l.CreatedAt, l.UpdatedAt)
	return err
}

func (p *PostgresStore) GetListing(id string) (*models.Listing, error) {
	row := p.db.QueryRow(`SELECT id, owner_id, origin, destination, via_cities, departure_date, vehicle_type, capacity_tons, asking_price, negotiable, status, created_at, updated_at FROM listings WHERE id=$1`, id)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.NotFoundError{Kind: "listing", ID: id}
	}
	return l, err
}

func (p *PostgresStore) UpdateListing(l *models.Listing) error {
	res, err := p.db.Exec(`UPDATE listings SET status=$1, asking_price=$2, negotiable=$3, updated_at=$4 WHERE id=$5`,
		string(l.Status), int64(l.AskingPrice), l.Negotiable, time.Now(), l.ID)
	if err != nil {
		return err
	}
	return checkFound(res, "listing", l.ID)
}

func (p *PostgresStore) CompareAndSwapListingStatus(id string, from, to models.ListingStatus) (bool, error) {
	res, err := p.db.Exec(`UPDATE listings SET status=$1, updated_at=$2 WHERE id=$3 AND status=$4`,
		string(to), time.Now(), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// distinguish "lost the swap" from "no such listing"
		if _, err := p.GetListing(id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (p *PostgresStore) ActiveListings() ([]models.Listing, error) {
	return p.queryListings(`SELECT id, owner_id, origin, destination, via_cities, departure_date, vehicle_type, capacity_tons, asking_price, negotiable, status, created_at, updated_at FROM listings WHERE status='active' ORDER BY id`)
}

func (p *PostgresStore) ListingsByOwner(ownerID string) ([]models.Listing, error) {
	return p.queryListings(`SELECT id, owner_id, origin, destination, via_cities, departure_date, vehicle_type, capacity_tons, asking_price, negotiable, status, created_at, updated_at FROM listings WHERE owner_id=$1 ORDER BY id`, ownerID)
}

func (p *PostgresStore) ExpiredCandidates(cutoff time.Time) ([]models.Listing, error) {
	return p.queryListings(`SELECT id, owner_id, origin, destination, via_cities, departure_date, vehicle_type, capacity_tons, asking_price, negotiable, status, created_at, updated_at FROM listings WHERE status='active' AND departure_date < $1 ORDER BY id`, cutoff)
}

func (p *PostgresStore) queryListings(q string, args ...any) ([]models.Listing, error) {
	rows, err := p.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var (
		l       models.Listing
		via     pq.StringArray
		vt, st  string
		price   int64
	)
	err := row.Scan(&l.ID, &l.OwnerID, &l.Origin, &l.Destination, &via, &l.DepartureDate,
		&vt, &l.CapacityTons, &price, &l.Negotiable, &st, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.ViaCities = []string(via)
	l.VehicleType = models.VehicleType(vt)
	l.AskingPrice = models.Money(price)
	l.Status = models.ListingStatus(st)
	return &l, nil
}

func (p *PostgresStore) SaveBooking(b *models.Booking) error {
	_, err := p.db.Exec(`INSERT INTO bookings(id, listing_id, shipper_id, owner_id, agreed_price, cargo_type, cargo_weight_tons, cargo_description, status, cancel_reason, requested_at, responded_at, started_at, delivered_at, completed_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		b.ID, b.ListingID, b.ShipperID, b.OwnerID, int64(b.AgreedPrice),
		b.Cargo.Type, b.Cargo.WeightTons, b.Cargo.Description, string(b.Status), b.CancelReason,
		b.RequestedAt, b.RespondedAt, b.StartedAt, b.DeliveredAt, b.CompletedAt)
	if isUniqueViolation(err) {
		return &apperrors.StateError{Entity: "listing", Status: "reserved", Op: "book"}
	}
	return err
}

func (p *PostgresStore) GetBooking(id string) (*models.Booking, error) {
	row := p.db.QueryRow(`SELECT id, listing_id, shipper_id, owner_id, agreed_price, cargo_type, cargo_weight_tons, cargo_description, status, cancel_reason, requested_at, responded_at, started_at, delivered_at, completed_at FROM bookings WHERE id=$1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.NotFoundError{Kind: "booking", ID: id}
	}
	return b, err
}

func (p *PostgresStore) UpdateBooking(b *models.Booking) error {
	res, err := p.db.Exec(`UPDATE bookings SET status=$1, cancel_reason=$2, responded_at=$3, started_at=$4, delivered_at=$5, completed_at=$6 WHERE id=$7`,
		string(b.Status), b.CancelReason, b.RespondedAt, b.StartedAt, b.DeliveredAt, b.CompletedAt, b.ID)
	if err != nil {
		return err
	}
	return checkFound(res, "booking", b.ID)
}

func (p *PostgresStore) ActiveBookingForListing(listingID string) (*models.Booking, error) {
	row := p.db.QueryRow(`SELECT id, listing_id, shipper_id, owner_id, agreed_price, cargo_type, cargo_weight_tons, cargo_description, status, cancel_reason, requested_at, responded_at, started_at, delivered_at, completed_at FROM bookings WHERE listing_id=$1 AND status NOT IN ('completed','cancelled','declined')`, listingID)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.NotFoundError{Kind: "booking", ID: "listing:" + listingID}
	}
	return b, err
}

func (p *PostgresStore) BookingsByParty(userID string) ([]models.Booking, error) {
	return p.queryBookings(`SELECT id, listing_id, shipper_id, owner_id, agreed_price, cargo_type, cargo_weight_tons, cargo_description, status, cancel_reason, requested_at, responded_at, started_at, delivered_at, completed_at FROM bookings WHERE shipper_id=$1 OR owner_id=$1 ORDER BY id`, userID)
}

func (p *PostgresStore) DeliveredBefore(cutoff time.Time) ([]models.Booking, error) {
	return p.queryBookings(`SELECT id, listing_id, shipper_id, owner_id, agreed_price, cargo_type, cargo_weight_tons, cargo_description, status, cancel_reason, requested_at, responded_at, started_at, delivered_at, completed_at FROM bookings WHERE status='delivered' AND delivered_at < $1 ORDER BY id`, cutoff)
}

func (p *PostgresStore) queryBookings(q string, args ...any) ([]models.Booking, error) {
	rows, err := p.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b     models.Booking
		price int64
		st    string
	)
	err := row.Scan(&b.ID, &b.ListingID, &b.ShipperID, &b.OwnerID, &price,
		&b.Cargo.Type, &b.Cargo.WeightTons, &b.Cargo.Description, &st, &b.CancelReason,
		&b.RequestedAt, &b.RespondedAt, &b.StartedAt, &b.DeliveredAt, &b.CompletedAt)
	if err != nil {
		return nil, err
	}
	b.AgreedPrice = models.Money(price)
	b.Status = models.BookingStatus(st)
	return &b, nil
}

func (p *PostgresStore) SaveTransaction(t *models.EscrowTransaction) error {
	_, err := p.db.Exec(`INSERT INTO escrow_transactions(id, booking_id, gross_amount, platform_fee_rate, platform_fee, net_amount, status, gateway_ref, dispute_reason, disputed_by, created_at, released_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.BookingID, int64(t.GrossAmount), t.PlatformFeeRate, int64(t.PlatformFee), int64(t.NetAmount),
		string(t.Status), t.GatewayRef, t.DisputeReason, t.DisputedBy, t.CreatedAt, t.ReleasedAt)
	if isUniqueViolation(err) {
		return &apperrors.StateError{Entity: "escrow", Status: "open", Op: "initiate"}
	}
	return err
}

func (p *PostgresStore) GetTransaction(id string) (*models.EscrowTransaction, error) {
	row := p.db.QueryRow(`SELECT id, booking_id, gross_amount, platform_fee_rate, platform_fee, net_amount, status, gateway_ref, dispute_reason, disputed_by, created_at, released_at FROM escrow_transactions WHERE id=$1`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.NotFoundError{Kind: "escrow transaction", ID: id}
	}
	return t, err
}

func (p *PostgresStore) UpdateTransaction(t *models.EscrowTransaction) error {
	res, err := p.db.Exec(`UPDATE escrow_transactions SET status=$1, gateway_ref=$2, dispute_reason=$3, disputed_by=$4, released_at=$5 WHERE id=$6`,
		string(t.Status), t.GatewayRef, t.DisputeReason, t.DisputedBy, t.ReleasedAt, t.ID)
	if err != nil {
		return err
	}
	return checkFound(res, "escrow transaction", t.ID)
}

func (p *PostgresStore) TransactionForBooking(bookingID string) (*models.EscrowTransaction, error) {
	row := p.db.QueryRow(`SELECT id, booking_id, gross_amount, platform_fee_rate, platform_fee, net_amount, status, gateway_ref, dispute_reason, disputed_by, created_at, released_at FROM escrow_transactions WHERE booking_id=$1 ORDER BY created_at DESC LIMIT 1`, bookingID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.NotFoundError{Kind: "escrow transaction", ID: "booking:" + bookingID}
	}
	return t, err
}

func (p *PostgresStore) TransactionsByStatus(status models.EscrowStatus) ([]models.EscrowTransaction, error) {
	rows, err := p.db.Query(`SELECT id, booking_id, gross_amount, platform_fee_rate, platform_fee, net_amount, status, gateway_ref, dispute_reason, disputed_by, created_at, released_at FROM escrow_transactions WHERE status=$1 ORDER BY id`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.EscrowTransaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTransaction(row rowScanner) (*models.EscrowTransaction, error) {
	var (
		t          models.EscrowTransaction
		gross      int64
		fee, net   int64
		st         string
	)
	err := row.Scan(&t.ID, &t.BookingID, &gross, &t.PlatformFeeRate, &fee, &net,
		&st, &t.GatewayRef, &t.DisputeReason, &t.DisputedBy, &t.CreatedAt, &t.ReleasedAt)
	if err != nil {
		return nil, err
	}
	t.GrossAmount = models.Money(gross)
	t.PlatformFee = models.Money(fee)
	t.NetAmount = models.Money(net)
	t.Status = models.EscrowStatus(st)
	return &t, nil
}

func (p *PostgresStore) SaveRating(r *models.Rating) error {
	_, err := p.db.Exec(`INSERT INTO ratings(id, booking_id, rater_role, rater_id, ratee_id, overall, punctuality, handling, communication, professionalism, feedback, would_recommend, version, superseded, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		r.ID, r.BookingID, string(r.RaterRole), r.RaterID, r.RateeID,
		r.Scores.Overall, r.Scores.Punctuality, r.Scores.Handling, r.Scores.Communication, r.Scores.Professionalism,
		r.Feedback, r.WouldRecommend, r.Version, r.Superseded, r.CreatedAt)
	return err
}

func (p *PostgresStore) LiveRating(bookingID string, role models.RaterRole) (*models.Rating, error) {
	row := p.db.QueryRow(`SELECT id, booking_id, rater_role, rater_id, ratee_id, overall, punctuality, handling, communication, professionalism, feedback, would_recommend, version, superseded, created_at FROM ratings WHERE booking_id=$1 AND rater_role=$2 AND NOT superseded`, bookingID, string(role))
	r, err := scanRating(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.NotFoundError{Kind: "rating", ID: bookingID + "/" + string(role)}
	}
	return r, err
}

func (p *PostgresStore) MarkSuperseded(id string) error {
	res, err := p.db.Exec(`UPDATE ratings SET superseded=true WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return checkFound(res, "rating", id)
}

func (p *PostgresStore) RatingsForRatee(rateeID string) ([]models.Rating, error) {
	rows, err := p.db.Query(`SELECT id, booking_id, rater_role, rater_id, ratee_id, overall, punctuality, handling, communication, professionalism, feedback, would_recommend, version, superseded, created_at FROM ratings WHERE ratee_id=$1 AND NOT superseded ORDER BY id`, rateeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Rating, 0)
	for rows.Next() {
		r, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRating(row rowScanner) (*models.Rating, error) {
	var (
		r    models.Rating
		role string
	)
	err := row.Scan(&r.ID, &r.BookingID, &role, &r.RaterID, &r.RateeID,
		&r.Scores.Overall, &r.Scores.Punctuality, &r.Scores.Handling, &r.Scores.Communication, &r.Scores.Professionalism,
		&r.Feedback, &r.WouldRecommend, &r.Version, &r.Superseded, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.RaterRole = models.RaterRole(role)
	return &r, nil
}

func checkFound(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &apperrors.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
