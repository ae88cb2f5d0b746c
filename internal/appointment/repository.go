package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/appointment-scheduling-core/internal/calendar"
	"github.com/hackgods/appointment-scheduling-core/internal/schedule"
)

// Repository owns appointment records and the doctors' calendars.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Snapshot read, no locking; the answer may be stale by the time it is used.
	BookedRanges(ctx context.Context, doctorID uuid.UUID, window schedule.TimeRange) ([]calendar.Booking, error)

	// InDoctorTx runs fn as the single writer of one doctor's calendar.
	// Everything fn writes through tx becomes visible only if fn returns nil;
	// any error, including a cancelled ctx, leaves no trace.
	InDoctorTx(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx DoctorTx) error) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// DoctorTx is the write view of a single doctor inside InDoctorTx.
type DoctorTx interface {
	Bookings(ctx context.Context, window schedule.TimeRange) ([]calendar.Booking, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CreateAppointment binds a.Range in the calendar and stores a.
	// Returns ErrSlotConflict if the range is taken.
	CreateAppointment(ctx context.Context, a *Appointment) error

	// UpdateAppointment stores a and brings the calendar in line with it:
	// a holding status rebinds a.Range, a released status drops the booking.
	UpdateAppointment(ctx context.Context, a *Appointment) error
}
