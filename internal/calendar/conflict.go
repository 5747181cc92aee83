package calendar

import (
	"sort"
	"time"

	"github.com/stayledger/backend/internal/storage/models"
)

// Overlap is a pair of bookings that occupy the same property at the same time.
type Overlap struct {
	PropertyID   string    `json:"property_id"`
	BookingID    string    `json:"booking_id"`
	ConflictWith string    `json:"conflict_with"`
	GuestName    string    `json:"guest_name"`
	OtherGuest   string    `json:"other_guest"`
	OverlapStart time.Time `json:"overlap_start"`
	OverlapEnd   time.Time `json:"overlap_end"`
}

// FindOverlaps reports double bookings: pairs of non-cancelled bookings on the
// same property whose [check-in, check-out) ranges intersect.
func FindOverlaps(bookings []models.Booking) []Overlap {
	active := make([]models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if !b.IsCancelled() && b.CheckOut.After(b.CheckIn) {
			active = append(active, b)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].PropertyID != active[j].PropertyID {
			return active[i].PropertyID < active[j].PropertyID
		}
		return active[i].CheckIn.Before(active[j].CheckIn)
	})

	var overlaps []Overlap
	for i := range active {
		a := active[i]
		for j := i + 1; j < len(active); j++ {
			b := active[j]
			if b.PropertyID != a.PropertyID || !b.CheckIn.Before(a.CheckOut) {
				break
			}

			// Calculate overlap period
			end := a.CheckOut
			if b.CheckOut.Before(end) {
				end = b.CheckOut
			}

			overlaps = append(overlaps, Overlap{
				PropertyID:   a.PropertyID,
				BookingID:    a.ID,
				ConflictWith: b.ID,
				GuestName:    a.GuestName,
				OtherGuest:   b.GuestName,
				OverlapStart: b.CheckIn,
				OverlapEnd:   end,
			})
		}
	}
	return overlaps
}
