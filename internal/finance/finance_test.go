package finance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stayledger/backend/internal/storage/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func TestDerive(t *testing.T) {
	tests := []struct {
		gross, rate       string
		wantComm, wantNet string
	}{
		{"1000", "15", "150", "850"},
		{"333.33", "3", "10", "323.33"},
		{"99.99", "12.5", "12.5", "87.49"},
		{"0", "0", "0", "0"},
	}
	for _, tt := range tests {
		b := Derive(d(tt.gross), d(tt.rate))
		if !b.Commission.Equal(d(tt.wantComm)) {
			t.Errorf("Derive(%s, %s) commission = %s, want %s", tt.gross, tt.rate, b.Commission, tt.wantComm)
		}
		if !b.Net.Equal(d(tt.wantNet)) {
			t.Errorf("Derive(%s, %s) net = %s, want %s", tt.gross, tt.rate, b.Net, tt.wantNet)
		}
		if !b.Commission.Add(b.Net).Equal(b.Gross) {
			t.Errorf("commission + net != gross for %s", tt.gross)
		}
	}
}

func TestApply(t *testing.T) {
	var booking models.Booking
	Derive(d("200"), d("10")).Apply(&booking)
	if !booking.CommissionAmount.Equal(d("20")) || !booking.NetRevenue.Equal(d("180")) {
		t.Errorf("booking financials = %s/%s", booking.CommissionAmount, booking.NetRevenue)
	}
}

func TestAllocateFixedCost(t *testing.T) {
	monthly := d("3000")

	if got := AllocateFixedCost(monthly, date(2025, 6, 1), date(2025, 7, 1)); !got.Equal(d("3000")) {
		t.Errorf("full June = %s, want 3000", got)
	}
	if got := AllocateFixedCost(monthly, date(2025, 6, 1), date(2025, 6, 11)); !got.Equal(d("1000")) {
		t.Errorf("10 days of June = %s, want 1000", got)
	}
	// 1 day of February (28 days) plus 1 day of March (31 days).
	want := d("3000").Div(d("28")).Add(d("3000").Div(d("31"))).Round(2)
	if got := AllocateFixedCost(monthly, date(2025, 2, 28), date(2025, 3, 2)); !got.Equal(want) {
		t.Errorf("month boundary = %s, want %s", got, want)
	}
	if got := AllocateFixedCost(monthly, date(2025, 6, 5), date(2025, 6, 5)); !got.IsZero() {
		t.Errorf("empty period = %s, want 0", got)
	}
}

func TestSummarize(t *testing.T) {
	bookings := []models.Booking{
		{CheckIn: date(2025, 6, 1), CheckOut: date(2025, 6, 4), Nights: 3, Status: models.BookingStatusConfirmed,
			GrossRevenue: d("300"), CommissionAmount: d("30"), NetRevenue: d("270")},
		// Straddles the period end: 2 of 4 nights fall in June.
		{CheckIn: date(2025, 6, 29), CheckOut: date(2025, 7, 3), Nights: 4, Status: models.BookingStatusConfirmed,
			GrossRevenue: d("400"), CommissionAmount: d("0"), NetRevenue: d("400")},
		{CheckIn: date(2025, 6, 10), CheckOut: date(2025, 6, 12), Nights: 2, Status: models.BookingStatusCancelled,
			GrossRevenue: d("999"), NetRevenue: d("999")},
		{CheckIn: date(2025, 5, 1), CheckOut: date(2025, 5, 3), Nights: 2, Status: models.BookingStatusConfirmed,
			GrossRevenue: d("50"), NetRevenue: d("50")},
	}

	s := Summarize(bookings, d("600"), date(2025, 6, 1), date(2025, 7, 1))

	if s.Bookings != 2 {
		t.Errorf("bookings = %d, want 2", s.Bookings)
	}
	if s.Nights != 5 {
		t.Errorf("nights = %d, want 5", s.Nights)
	}
	if !s.Gross.Equal(d("500")) {
		t.Errorf("gross = %s, want 500", s.Gross)
	}
	if !s.Net.Equal(d("470")) {
		t.Errorf("net = %s, want 470", s.Net)
	}
	if !s.FixedCost.Equal(d("600")) {
		t.Errorf("fixed cost = %s, want 600", s.FixedCost)
	}
	if !s.Margin.Equal(d("-130")) {
		t.Errorf("margin = %s, want -130", s.Margin)
	}
	if !s.MarginPct.Equal(d("-26")) {
		t.Errorf("margin pct = %s, want -26", s.MarginPct)
	}
	if !s.Occupancy.Equal(d("16.67")) {
		t.Errorf("occupancy = %s, want 16.67", s.Occupancy)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, decimal.Zero, date(2025, 6, 1), date(2025, 6, 1))
	if s.Bookings != 0 || !s.Gross.IsZero() || !s.Occupancy.IsZero() || !s.MarginPct.IsZero() {
		t.Errorf("unexpected summary %+v", s)
	}
}
