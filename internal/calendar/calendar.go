// Package calendar keeps the booked time ranges of every doctor in memory.
//
// Each doctor owns an independent entry guarded by its own RWMutex, so
// snapshot reads and writes for one doctor never wait on another doctor.
package calendar

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/appointment-scheduling-core/internal/schedule"
)

var (
	ErrOverlap        = errors.New("range overlaps an existing booking")
	ErrAlreadyBound   = errors.New("appointment already has a booking")
	ErrBookingMissing = errors.New("appointment has no booking")
)

// Booking is a booked range tagged with the appointment that owns it.
type Booking struct {
	AppointmentID uuid.UUID
	Range         schedule.TimeRange
}

// Calendar is an arena of per-doctor booking sets.
type Calendar struct {
	mu      sync.Mutex
	doctors map[uuid.UUID]*doctorCalendar
}

type doctorCalendar struct {
	mu       sync.RWMutex
	bookings []Booking // sorted by start, pairwise non-overlapping
}

func New() *Calendar {
	return &Calendar{doctors: make(map[uuid.UUID]*doctorCalendar)}
}

func (c *Calendar) doctor(id uuid.UUID) *doctorCalendar {
	c.mu.Lock()
	defer c.mu.Unlock()

	dc, ok := c.doctors[id]
	if !ok {
		dc = &doctorCalendar{}
		c.doctors[id] = dc
	}
	return dc
}

// Snapshot returns the doctor's bookings overlapping window, ordered by start.
func (c *Calendar) Snapshot(doctorID uuid.UUID, window schedule.TimeRange) []Booking {
	dc := c.doctor(doctorID)

	dc.mu.RLock()
	defer dc.mu.RUnlock()

	return overlapping(dc.bookings, window, uuid.Nil)
}

// Update runs fn against a working copy of the doctor's bookings while
// holding the doctor's write lock. The copy replaces the committed set only
// when fn returns nil; readers see either the old or the new set.
func (c *Calendar) Update(doctorID uuid.UUID, fn func(b *Book) error) error {
	dc := c.doctor(doctorID)

	dc.mu.Lock()
	defer dc.mu.Unlock()

	book := &Book{bookings: append([]Booking(nil), dc.bookings...)}
	if err := fn(book); err != nil {
		return err
	}

	dc.bookings = book.bookings
	return nil
}

// Book is a mutable working copy of one doctor's bookings.
type Book struct {
	bookings []Booking
}

// Overlapping returns bookings overlapping window, skipping the booking owned by exclude.
func (b *Book) Overlapping(window schedule.TimeRange, exclude uuid.UUID) []Booking {
	return overlapping(b.bookings, window, exclude)
}

// Find returns the booking owned by appointmentID.
func (b *Book) Find(appointmentID uuid.UUID) (Booking, bool) {
	for _, bk := range b.bookings {
		if bk.AppointmentID == appointmentID {
			return bk, true
		}
	}
	return Booking{}, false
}

// Insert adds bk keeping the set ordered and non-overlapping.
func (b *Book) Insert(bk Booking) error {
	if err := bk.Range.Validate(); err != nil {
		return err
	}
	if _, ok := b.Find(bk.AppointmentID); ok {
		return ErrAlreadyBound
	}
	if len(b.Overlapping(bk.Range, uuid.Nil)) > 0 {
		return ErrOverlap
	}

	i := sort.Search(len(b.bookings), func(i int) bool {
		return !b.bookings[i].Range.Start.Before(bk.Range.Start)
	})
	b.bookings = append(b.bookings, Booking{})
	copy(b.bookings[i+1:], b.bookings[i:])
	b.bookings[i] = bk
	return nil
}

// Remove drops the booking owned by appointmentID.
func (b *Book) Remove(appointmentID uuid.UUID) error {
	for i, bk := range b.bookings {
		if bk.AppointmentID == appointmentID {
			b.bookings = append(b.bookings[:i], b.bookings[i+1:]...)
			return nil
		}
	}
	return ErrBookingMissing
}

// Move rebinds appointmentID to r. The appointment's own current range is
// ignored by the overlap check; on error the book is unchanged.
func (b *Book) Move(appointmentID uuid.UUID, r schedule.TimeRange) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, ok := b.Find(appointmentID); !ok {
		return ErrBookingMissing
	}
	if len(b.Overlapping(r, appointmentID)) > 0 {
		return ErrOverlap
	}

	if err := b.Remove(appointmentID); err != nil {
		return err
	}
	return b.Insert(Booking{AppointmentID: appointmentID, Range: r})
}

func overlapping(bookings []Booking, window schedule.TimeRange, exclude uuid.UUID) []Booking {
	out := []Booking{}
	for _, bk := range bookings {
		if !bk.Range.Start.Before(window.End) {
			break
		}
		if bk.AppointmentID == exclude && exclude != uuid.Nil {
			continue
		}
		if bk.Range.Overlaps(window) {
			out = append(out, bk)
		}
	}
	return out
}
