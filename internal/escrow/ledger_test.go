package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/freight-matching/internal/apperrors"
	"github.com/example/freight-matching/internal/models"
	"github.com/example/freight-matching/internal/storage"
)

// fakeGateway records provider calls.
type fakeGateway struct {
	holds, captures, cancels, refunds int
	failHold                          bool
}

func (g *fakeGateway) Hold(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	g.holds++
	if g.failHold {
		return "", errors.New("card declined")
	}
	return "pi_test", nil
}
func (g *fakeGateway) Capture(ctx context.Context, ref string) error { g.captures++; return nil }
func (g *fakeGateway) Cancel(ctx context.Context, ref string) error  { g.cancels++; return nil }
func (g *fakeGateway) Refund(ctx context.Context, ref string) error  { g.refunds++; return nil }

func newLedger(t *testing.T, gw Gateway) (*Ledger, *storage.MemoryStore, models.Booking) {
	t.Helper()
	store := storage.NewMemoryStore()
	b := models.Booking{
		ID:          "bk1",
		ListingID:   "lst1",
		ShipperID:   "shipper1",
		OwnerID:     "owner1",
		AgreedPrice: 15000,
		Status:      models.BookingConfirmed,
		RequestedAt: time.Now(),
	}
	if err := store.SaveBooking(&b); err != nil {
		t.Fatal(err)
	}
	return NewLedger(store, store, gw, 0.05), store, b
}

func TestFeeRoundHalfUp(t *testing.T) {
	cases := []struct {
		gross models.Money
		rate  float64
		fee   models.Money
	}{
		{15000, 0.05, 750},
		{100, 0.05, 5},
		{99, 0.05, 5},  // 4.95 rounds up
		{101, 0.05, 5}, // 5.05 rounds down
		{1, 0.05, 0},   // 0.05 rounds down
		{9, 0.05, 0},   // 0.45 rounds down
		{10, 0.05, 1},  // 0.50 rounds up
		{0, 0.05, 0},
		{15000, 0, 0},
	}
	for _, c := range cases {
		if got := Fee(c.gross, c.rate); got != c.fee {
			t.Fatalf("Fee(%d, %v) = %d, want %d", c.gross, c.rate, got, c.fee)
		}
	}
}

func TestInitiateAmountsBalance(t *testing.T) {
	l, _, b := newLedger(t, &fakeGateway{})
	tx, err := l.Initiate(b.ID, 15000)
	if err != nil {
		t.Fatal(err)
	}
	if tx.PlatformFee+tx.NetAmount != tx.GrossAmount {
		t.Fatalf("fee %d + net %d != gross %d", tx.PlatformFee, tx.NetAmount, tx.GrossAmount)
	}
	if tx.Status != models.EscrowInitiated {
		t.Fatalf("status = %s, want initiated", tx.Status)
	}
	if tx.GatewayRef != "pi_test" {
		t.Fatalf("gateway ref = %q", tx.GatewayRef)
	}
	if tx.PlatformFeeRate != 0.05 {
		t.Fatalf("rate = %v, want frozen 0.05", tx.PlatformFeeRate)
	}
}

func TestInitiateRejectsSecondOpenTransaction(t *testing.T) {
	l, _, b := newLedger(t, nil)
	if _, err := l.Initiate(b.ID, 15000); err != nil {
		t.Fatal(err)
	}
	_, err := l.Initiate(b.ID, 15000)
	var se *apperrors.StateError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StateError", err)
	}
}

func TestInitiateHoldsOnceForOpenTransaction(t *testing.T) {
	gw := &fakeGateway{}
	l, _, b := newLedger(t, gw)
	if _, err := l.Initiate(b.ID, 15000); err != nil {
		t.Fatal(err)
	}
	var se *apperrors.StateError
	if _, err := l.Initiate(b.ID, 15000); !errors.As(err, &se) {
		t.Fatalf("second initiate: %v, want StateError", err)
	}
	// the duplicate is rejected before the provider is touched, so no
	// orphaned hold exists
	if gw.holds != 1 || gw.cancels != 0 {
		t.Fatalf("holds/cancels = %d/%d, want 1/0", gw.holds, gw.cancels)
	}
}

func TestConfirmFundsRequiresOwnerResponse(t *testing.T) {
	store := storage.NewMemoryStore()
	b := models.Booking{
		ID:          "bk1",
		ListingID:   "lst1",
		ShipperID:   "shipper1",
		OwnerID:     "owner1",
		AgreedPrice: 15000,
		Status:      models.BookingPending,
		RequestedAt: time.Now(),
	}
	if err := store.SaveBooking(&b); err != nil {
		t.Fatal(err)
	}
	l := NewLedger(store, store, nil, 0.05)

	tx, err := l.Initiate(b.ID, 15000)
	if err != nil {
		t.Fatal(err)
	}
	var se *apperrors.StateError
	if _, err := l.ConfirmFunds(tx.ID); !errors.As(err, &se) {
		t.Fatalf("confirm funds while pending: %v, want StateError", err)
	}

	b.Status = models.BookingConfirmed
	if err := store.UpdateBooking(&b); err != nil {
		t.Fatal(err)
	}
	got, err := l.ConfirmFunds(tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.EscrowHeld {
		t.Fatalf("status = %s, want held", got.Status)
	}
}

func TestRateChangeOnlyAffectsFutureTransactions(t *testing.T) {
	l, _, b := newLedger(t, nil)
	tx, err := l.Initiate(b.ID, 15000)
	if err != nil {
		t.Fatal(err)
	}
	l.FeeRate = 0.10
	got, err := l.ConfirmFunds(tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PlatformFeeRate != 0.05 || got.PlatformFee != 750 {
		t.Fatalf("rate/fee = %v/%d, want 0.05/750", got.PlatformFeeRate, got.PlatformFee)
	}
}

func TestConfirmFundsOnlyFromInitiated(t *testing.T) {
	l, _, b := newLedger(t, nil)
	tx, _ := l.Initiate(b.ID, 15000)
	if _, err := l.ConfirmFunds(tx.ID); err != nil {
		t.Fatal(err)
	}
	_, err := l.ConfirmFunds(tx.ID)
	var se *apperrors.StateError
	if !errors.As(err, &se) {
		t.Fatalf("second confirm: %v, want StateError", err)
	}
}

func TestReleaseCapturesOnce(t *testing.T) {
	gw := &fakeGateway{}
	l, _, b := newLedger(t, gw)
	tx, _ := l.Initiate(b.ID, 15000)
	l.ConfirmFunds(tx.ID)
	got, err := l.Release(tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.EscrowReleased || got.ReleasedAt == nil {
		t.Fatalf("status = %s, released_at = %v", got.Status, got.ReleasedAt)
	}
	// terminal repeat is a no-op, no second capture
	if _, err := l.Release(tx.ID); err != nil {
		t.Fatal(err)
	}
	if gw.captures != 1 {
		t.Fatalf("captures = %d, want 1", gw.captures)
	}
}

func TestRefundVoidsWhenOnlyInitiated(t *testing.T) {
	gw := &fakeGateway{}
	l, _, b := newLedger(t, gw)
	tx, _ := l.Initiate(b.ID, 15000)
	got, err := l.Refund(tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.EscrowRefunded {
		t.Fatalf("status = %s, want refunded", got.Status)
	}
	if gw.cancels != 1 {
		t.Fatalf("cancels = %d, want 1", gw.cancels)
	}
}

func TestReleaseRequiresHeld(t *testing.T) {
	l, _, b := newLedger(t, nil)
	tx, _ := l.Initiate(b.ID, 15000)
	_, err := l.Release(tx.ID)
	var se *apperrors.StateError
	if !errors.As(err, &se) {
		t.Fatalf("release from initiated: %v, want StateError", err)
	}
}

func TestDisputeFreezesUntilAdminResolves(t *testing.T) {
	gw := &fakeGateway{}
	l, _, b := newLedger(t, gw)
	tx, _ := l.Initiate(b.ID, 15000)
	l.ConfirmFunds(tx.ID)

	if _, err := l.RaiseDispute(tx.ID, "rando", "not a party"); err == nil {
		t.Fatal("stranger should not raise disputes")
	}
	got, err := l.RaiseDispute(tx.ID, "shipper1", "cargo damaged")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.EscrowDisputed || got.DisputeReason != "cargo damaged" {
		t.Fatalf("got %s / %q", got.Status, got.DisputeReason)
	}

	// frozen: no automatic release or refund
	if _, err := l.Release(tx.ID); err == nil {
		t.Fatal("release of disputed transaction should fail")
	}
	if _, err := l.Refund(tx.ID); err == nil {
		t.Fatal("refund of disputed transaction should fail")
	}

	res, err := l.ResolveDispute(tx.ID, OutcomeRefund)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.EscrowRefunded {
		t.Fatalf("status = %s, want refunded", res.Status)
	}
	if gw.cancels != 1 || gw.refunds != 0 {
		t.Fatalf("cancels/refunds = %d/%d; hold was never captured", gw.cancels, gw.refunds)
	}
}

func TestDisputeAfterReleaseRefundsThroughGateway(t *testing.T) {
	gw := &fakeGateway{}
	l, _, b := newLedger(t, gw)
	tx, _ := l.Initiate(b.ID, 15000)
	l.ConfirmFunds(tx.ID)
	l.Release(tx.ID)

	if _, err := l.RaiseDispute(tx.ID, "shipper1", "never arrived"); err != nil {
		t.Fatal(err)
	}
	res, err := l.ResolveDispute(tx.ID, OutcomeRefund)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.EscrowRefunded {
		t.Fatalf("status = %s, want refunded", res.Status)
	}
	if gw.refunds != 1 {
		t.Fatalf("refunds = %d, want 1 (funds were captured)", gw.refunds)
	}
}

func TestResolveReleaseCapturesHeldFunds(t *testing.T) {
	gw := &fakeGateway{}
	l, _, b := newLedger(t, gw)
	tx, _ := l.Initiate(b.ID, 15000)
	l.ConfirmFunds(tx.ID)
	l.RaiseDispute(tx.ID, "owner1", "shipper unreachable")

	res, err := l.ResolveDispute(tx.ID, OutcomeRelease)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.EscrowReleased {
		t.Fatalf("status = %s, want released", res.Status)
	}
	if gw.captures != 1 {
		t.Fatalf("captures = %d, want 1", gw.captures)
	}
}

func TestInitiateFailsWhenGatewayDeclines(t *testing.T) {
	l, store, b := newLedger(t, &fakeGateway{failHold: true})
	if _, err := l.Initiate(b.ID, 15000); err == nil {
		t.Fatal("expected gateway error")
	}
	if _, err := store.TransactionForBooking(b.ID); err == nil {
		t.Fatal("no transaction should be stored on gateway failure")
	}
}

func TestInitiateGuards(t *testing.T) {
	l, store, b := newLedger(t, nil)
	var ve *apperrors.ValidationError
	if _, err := l.Initiate(b.ID, 0); !errors.As(err, &ve) {
		t.Fatalf("zero gross: %v, want ValidationError", err)
	}
	var nf *apperrors.NotFoundError
	if _, err := l.Initiate("ghost", 100); !errors.As(err, &nf) {
		t.Fatalf("unknown booking: %v, want NotFoundError", err)
	}

	b.Status = models.BookingCancelled
	if err := store.UpdateBooking(&b); err != nil {
		t.Fatal(err)
	}
	var se *apperrors.StateError
	if _, err := l.Initiate(b.ID, 100); !errors.As(err, &se) {
		t.Fatalf("terminal booking: %v, want StateError", err)
	}
}
