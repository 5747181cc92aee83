// Package finance derives booking financials and period summaries.
package finance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stayledger/backend/internal/storage/models"
)

const day = 24 * time.Hour

var hundred = decimal.NewFromInt(100)

// Breakdown is the commission split of a booking's gross revenue.
type Breakdown struct {
	Gross          decimal.Decimal `json:"gross"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	Commission     decimal.Decimal `json:"commission"`
	Net            decimal.Decimal `json:"net"`
}

// Derive splits gross revenue by a commission rate given in percent.
// The commission is rounded to cents and net is the remainder.
func Derive(gross, commissionRatePct decimal.Decimal) Breakdown {
	commission := gross.Mul(commissionRatePct).Div(hundred).Round(2)
	return Breakdown{
		Gross:          gross,
		CommissionRate: commissionRatePct,
		Commission:     commission,
		Net:            gross.Sub(commission),
	}
}

// Apply copies the breakdown onto a booking.
func (b Breakdown) Apply(booking *models.Booking) {
	booking.GrossRevenue = b.Gross
	booking.CommissionRate = b.CommissionRate
	booking.CommissionAmount = b.Commission
	booking.NetRevenue = b.Net
}

// AllocateFixedCost amortizes a monthly fixed cost over the days of [from, to).
// Each day carries monthly / days-in-its-month. Rounded to cents.
func AllocateFixedCost(monthly decimal.Decimal, from, to time.Time) decimal.Decimal {
	from, to = truncateDay(from), truncateDay(to)
	if !to.After(from) || monthly.IsZero() {
		return decimal.Zero
	}

	total := decimal.Zero
	for cursor := from; cursor.Before(to); {
		monthStart := time.Date(cursor.Year(), cursor.Month(), 1, 0, 0, 0, 0, time.UTC)
		next := monthStart.AddDate(0, 1, 0)
		segmentEnd := next
		if to.Before(segmentEnd) {
			segmentEnd = to
		}

		days := int64(segmentEnd.Sub(cursor) / day)
		inMonth := int64(next.Sub(monthStart) / day)
		total = total.Add(monthly.Mul(decimal.NewFromInt(days)).Div(decimal.NewFromInt(inMonth)))

		cursor = segmentEnd
	}
	return total.Round(2)
}

// PeriodSummary aggregates the bookings of one property over a period.
type PeriodSummary struct {
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	Bookings   int             `json:"bookings"`
	Nights     int             `json:"nights"`
	Gross      decimal.Decimal `json:"gross"`
	Commission decimal.Decimal `json:"commission"`
	Net        decimal.Decimal `json:"net"`
	FixedCost  decimal.Decimal `json:"fixed_cost"`
	Margin     decimal.Decimal `json:"margin"`
	MarginPct  decimal.Decimal `json:"margin_pct"`
	Occupancy  decimal.Decimal `json:"occupancy"`
}

// Summarize totals the non-cancelled bookings that intersect [from, to).
// Nights are clipped to the period and revenue is prorated by clipped nights.
func Summarize(bookings []models.Booking, monthlyFixedCost decimal.Decimal, from, to time.Time) PeriodSummary {
	from, to = truncateDay(from), truncateDay(to)
	s := PeriodSummary{
		From:       from,
		To:         to,
		Gross:      decimal.Zero,
		Commission: decimal.Zero,
		Net:        decimal.Zero,
		MarginPct:  decimal.Zero,
		Occupancy:  decimal.Zero,
	}

	for _, b := range bookings {
		if b.IsCancelled() {
			continue
		}

		share := decimal.NewFromInt(1)
		nights := b.Nights
		if b.Nights > 0 {
			start, end := clip(b.CheckIn, b.CheckOut, from, to)
			if !end.After(start) {
				continue
			}
			nights = models.NightsBetween(start, end)
			if nights < b.Nights {
				share = decimal.NewFromInt(int64(nights)).Div(decimal.NewFromInt(int64(b.Nights)))
			}
		} else if b.CheckIn.Before(from) || !b.CheckIn.Before(to) {
			continue
		}

		s.Bookings++
		s.Nights += nights
		s.Gross = s.Gross.Add(b.GrossRevenue.Mul(share))
		s.Commission = s.Commission.Add(b.CommissionAmount.Mul(share))
		s.Net = s.Net.Add(b.NetRevenue.Mul(share))
	}

	s.Gross = s.Gross.Round(2)
	s.Commission = s.Commission.Round(2)
	s.Net = s.Net.Round(2)
	s.FixedCost = AllocateFixedCost(monthlyFixedCost, from, to)
	s.Margin = s.Net.Sub(s.FixedCost)
	if !s.Gross.IsZero() {
		s.MarginPct = s.Margin.Div(s.Gross).Mul(hundred).Round(2)
	}
	if periodDays := int64(to.Sub(from) / day); periodDays > 0 {
		s.Occupancy = decimal.NewFromInt(int64(s.Nights)).Mul(hundred).Div(decimal.NewFromInt(periodDays)).Round(2)
	}
	return s
}

func clip(start, end, from, to time.Time) (time.Time, time.Time) {
	if start.Before(from) {
		start = from
	}
	if end.After(to) {
		end = to
	}
	return start, end
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
