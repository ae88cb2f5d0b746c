package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/appointment-scheduling-core/internal/calendar"
	"github.com/hackgods/appointment-scheduling-core/internal/schedule"
)

// MemoryRepository keeps appointments and calendars in process memory.
type MemoryRepository struct {
	cal *calendar.Calendar

	mu           sync.RWMutex
	appointments map[uuid.UUID]*Appointment
	events       []EventLog
	nextEventID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		cal:          calendar.New(),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return a.clone(), nil
}

func (r *MemoryRepository) BookedRanges(_ context.Context, doctorID uuid.UUID, window schedule.TimeRange) ([]calendar.Booking, error) {
	return r.cal.Snapshot(doctorID, window), nil
}

func (r *MemoryRepository) InDoctorTx(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx DoctorTx) error) error {
	return r.cal.Update(doctorID, func(book *calendar.Book) error {
		tx := &memoryTx{repo: r, doctorID: doctorID, book: book, staged: make(map[uuid.UUID]*Appointment)}

		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		// The doctor's write lock is still held here, so calendar readers
		// cannot observe the records before the bookings are installed.
		r.mu.Lock()
		for id, a := range tx.staged {
			r.appointments[id] = a
		}
		r.mu.Unlock()
		return nil
	})
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEventID++
	ev.ID = r.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns the recorded event log in insertion order.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

type memoryTx struct {
	repo     *MemoryRepository
	doctorID uuid.UUID
	book     *calendar.Book
	staged   map[uuid.UUID]*Appointment
}

func (tx *memoryTx) Bookings(_ context.Context, window schedule.TimeRange) ([]calendar.Booking, error) {
	return tx.book.Overlapping(window, uuid.Nil), nil
}

func (tx *memoryTx) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if a, ok := tx.staged[id]; ok {
		return a.clone(), nil
	}
	return tx.repo.GetAppointmentByID(ctx, id)
}

func (tx *memoryTx) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.DoctorID != tx.doctorID {
		return fmt.Errorf("appointment doctor %s outside transaction for %s", a.DoctorID, tx.doctorID)
	}
	if _, err := tx.GetAppointment(ctx, a.ID); err == nil {
		return fmt.Errorf("appointment %s already exists", a.ID)
	}

	if err := tx.book.Insert(calendar.Booking{AppointmentID: a.ID, Range: a.Range}); err != nil {
		return translateCalendarErr(err)
	}

	tx.staged[a.ID] = a.clone()
	return nil
}

func (tx *memoryTx) UpdateAppointment(ctx context.Context, a *Appointment) error {
	if a.DoctorID != tx.doctorID {
		return fmt.Errorf("appointment doctor %s outside transaction for %s", a.DoctorID, tx.doctorID)
	}
	if _, err := tx.GetAppointment(ctx, a.ID); err != nil {
		return err
	}

	_, bound := tx.book.Find(a.ID)
	switch {
	case a.Status.Holding() && bound:
		if err := tx.book.Move(a.ID, a.Range); err != nil {
			return translateCalendarErr(err)
		}
	case a.Status.Holding():
		if err := tx.book.Insert(calendar.Booking{AppointmentID: a.ID, Range: a.Range}); err != nil {
			return translateCalendarErr(err)
		}
	case bound:
		if err := tx.book.Remove(a.ID); err != nil {
			return translateCalendarErr(err)
		}
	}

	tx.staged[a.ID] = a.clone()
	return nil
}

func translateCalendarErr(err error) error {
	if errors.Is(err, calendar.ErrOverlap) {
		return ErrSlotConflict
	}
	return err
}
