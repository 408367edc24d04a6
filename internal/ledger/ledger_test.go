package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"fundforge/internal/data"
	"fundforge/internal/ledger"
	"fundforge/pkg/risk"
)

func newTestLedger(t *testing.T, initialCash float64) *ledger.Ledger {
	t.Helper()
	return ledger.New("acct-1", "sim", "USD", initialCash, risk.DefaultPolicy())
}

// ─── scenario 4: EnterLong then ExitLong ───────────────────────────────────

func TestEnterLongThenExitLongBookedPnL(t *testing.T) {
	l := newTestLedger(t, 100000)
	sym := data.NewSymbol("TEST", "sim", data.MarketEquity)

	pos, err := l.Fill(sym, 2, 50.0, data.SideBuy)
	if err != nil {
		t.Fatalf("opening fill: %v", err)
	}
	if pos.Side != ledger.Long || !pos.Quantity.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("unexpected opened position: %+v", pos)
	}

	closedPos, err := l.Fill(sym, 2, 52.0, data.SideSell)
	if err != nil {
		t.Fatalf("closing fill: %v", err)
	}
	if !closedPos.IsClosed {
		t.Fatal("expected the position to be fully closed")
	}
	if got := closedPos.BookedPnL.InexactFloat64(); got != 4.0 {
		t.Errorf("BookedPnL: got %v, want 4.0", got)
	}
	if _, ok := l.Position(sym); ok {
		t.Error("expected no open position after full exit")
	}
}

// ─── scenario 5: opposite-side flip ────────────────────────────────────────

func TestOppositeSideFlip(t *testing.T) {
	l := newTestLedger(t, 100000)
	sym := data.NewSymbol("TEST", "sim", data.MarketEquity)

	if _, err := l.Fill(sym, 1, 50, data.SideBuy); err != nil {
		t.Fatalf("opening long: %v", err)
	}

	flipped, err := l.Fill(sym, 3, 48, data.SideSell)
	if err != nil {
		t.Fatalf("flip fill: %v", err)
	}
	if flipped.Side != ledger.Short {
		t.Fatalf("expected a Short position after the flip, got %v", flipped.Side)
	}
	if got := flipped.Quantity.InexactFloat64(); got != 2 {
		t.Errorf("flipped quantity: got %v, want 2", got)
	}
	if got := flipped.AveragePrice.InexactFloat64(); got != 48 {
		t.Errorf("flipped average price: got %v, want 48", got)
	}
}

// ─── boundary: exit quantity equal to position quantity closes with zero residual ─

func TestExactQuantityExitClosesWithZeroResidual(t *testing.T) {
	l := newTestLedger(t, 100000)
	sym := data.NewSymbol("TEST", "sim", data.MarketEquity)

	l.Fill(sym, 5, 10, data.SideBuy)
	closed, err := l.Fill(sym, 5, 11, data.SideSell)
	if err != nil {
		t.Fatalf("exit fill: %v", err)
	}
	if !closed.Quantity.IsZero() {
		t.Errorf("expected zero residual quantity, got %v", closed.Quantity)
	}
	if !closed.IsClosed {
		t.Error("expected position to be marked closed")
	}
}

// ─── insufficient funds ─────────────────────────────────────────────────────

func TestInsufficientFundsRejectsOpen(t *testing.T) {
	l := newTestLedger(t, 10) // not enough margin for any meaningful position
	sym := data.NewSymbol("TEST", "sim", data.MarketEquity)

	if _, err := l.Fill(sym, 100, 1000, data.SideBuy); err == nil {
		t.Fatal("expected ErrInsufficientFunds")
	}
}

// ─── cash accounting invariant (§8, this repo's resolved form — see DESIGN.md) ──

func TestCashAccountingInvariantHoldsAcrossFills(t *testing.T) {
	l := newTestLedger(t, 100000)
	sym := data.NewSymbol("TEST", "sim", data.MarketEquity)

	l.Fill(sym, 2, 50, data.SideBuy)
	closed, _ := l.Fill(sym, 2, 52, data.SideSell)

	got := l.CashAvailable() + l.CashUsed()
	want := l.CashValue() + closed.BookedPnL.InexactFloat64()
	if diff := got - want; diff > 0.0001 || diff < -0.0001 {
		t.Errorf("cash invariant violated: available+used=%v, value+realized_pnl=%v", got, want)
	}
}
