package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/appointment-scheduling-core/internal/calendar"
	"github.com/hackgods/appointment-scheduling-core/internal/metrics"
	"github.com/hackgods/appointment-scheduling-core/internal/schedule"
)

// ByDateRequest books an exact time of day on a calendar date.
type ByDateRequest struct {
	PatientID       uuid.UUID
	DoctorID        uuid.UUID // optional; resolved from Specialty when nil
	Specialty       Specialty
	Date            time.Time
	Time            schedule.Clock
	DurationMinutes int
	Notes           *string
}

// InstantRequest books at StartAt, or at the nearest later free slot of the
// same working day when StartAt is taken.
type InstantRequest struct {
	PatientID       uuid.UUID
	DoctorID        uuid.UUID // optional; resolved from Specialty when nil
	Specialty       Specialty
	StartAt         time.Time
	DurationMinutes int
	Notes           *string
}

type bookingInput struct {
	patientID uuid.UUID
	doctorID  uuid.UUID
	specialty Specialty
	start     time.Time
	duration  int
	notes     *string
}

// BookByDate books exactly the requested range. It fails with ErrSlotConflict
// when any active booking of the doctor overlaps it.
func (s *Service) BookByDate(ctx context.Context, req ByDateRequest) (*Appointment, error) {
	if req.Date.IsZero() {
		return nil, validationError("date", "is required")
	}
	in := bookingInput{
		patientID: req.PatientID,
		doctorID:  req.DoctorID,
		specialty: req.Specialty,
		start:     req.Time.On(req.Date, s.policy.Location),
		duration:  req.DurationMinutes,
		notes:     req.Notes,
	}
	return s.book(ctx, metrics.ModeByDate, in, false)
}

// BookInstant books the requested range, auto-adjusting to the first later
// free slot when it is taken. It fails with ErrNoAvailability when nothing
// fits before the end of the working day.
func (s *Service) BookInstant(ctx context.Context, req InstantRequest) (*Appointment, error) {
	if req.StartAt.IsZero() {
		return nil, validationError("startAt", "is required")
	}
	in := bookingInput{
		patientID: req.PatientID,
		doctorID:  req.DoctorID,
		specialty: req.Specialty,
		start:     req.StartAt,
		duration:  req.DurationMinutes,
		notes:     req.Notes,
	}
	return s.book(ctx, metrics.ModeInstant, in, true)
}

func (s *Service) book(ctx context.Context, mode string, in bookingInput, adjust bool) (*Appointment, error) {
	timer := metrics.StartBooking(mode)

	appt, err := s.bookLocked(ctx, mode, in, adjust)
	if err != nil {
		timer.Done(outcome(err))
		return nil, err
	}
	timer.Done(metrics.OutcomeOK)

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Str("mode", mode).
		Time("start_at", appt.Range.Start).
		Bool("auto_adjusted", appt.AutoAdjusted).
		Msg("appointment booked")

	s.logEvent(ctx, appt, EventAppointmentCreated)
	return appt, nil
}

func (s *Service) bookLocked(ctx context.Context, mode string, in bookingInput, adjust bool) (*Appointment, error) {
	if in.patientID == uuid.Nil {
		return nil, validationError("patientId", "is required")
	}
	profile, err := s.resolveDoctor(in.doctorID, in.specialty)
	if err != nil {
		return nil, err
	}
	if err := validateNotes(in.notes); err != nil {
		return nil, err
	}

	requested := schedule.NewRange(in.start, in.duration)
	if err := s.validateRange(profile, requested, in.duration); err != nil {
		return nil, err
	}

	search := requested
	if adjust {
		search = s.searchWindow(profile, requested)
	}

	var created *Appointment
	err = s.withDoctor(ctx, profile.ID, mode, func(ctx context.Context, tx DoctorTx) error {
		booked, err := tx.Bookings(ctx, search)
		if err != nil {
			return err
		}

		slot := requested
		adjusted := false
		if overlapsAny(requested, booked) {
			if !adjust {
				return ErrSlotConflict
			}
			next, ok := s.nextFree(profile, requested, booked)
			if !ok {
				return ErrNoAvailability
			}
			slot, adjusted = next, true
		}

		now := s.now()
		appt := &Appointment{
			ID:           uuid.New(),
			PatientID:    in.patientID,
			DoctorID:     profile.ID,
			Specialty:    in.specialty,
			Range:        slot,
			Status:       StatusScheduled,
			Notes:        in.notes,
			AutoAdjusted: adjusted,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateAppointment(ctx, appt); err != nil {
			return err
		}

		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// resolveDoctor picks the doctor to book: the given one, checked against the
// roster specialty, or the first roster doctor practising specialty.
func (s *Service) resolveDoctor(doctorID uuid.UUID, specialty Specialty) (DoctorProfile, error) {
	if !specialty.Valid() {
		return DoctorProfile{}, validationError("specialty", "unknown specialty %q", specialty)
	}

	if doctorID == uuid.Nil {
		p, ok := s.doctors.FirstBySpecialty(specialty)
		if !ok {
			return DoctorProfile{}, validationError("doctorId", "no doctor available for specialty %s", specialty)
		}
		return p, nil
	}

	p, known := s.doctors.Profile(doctorID)
	if known && p.Specialty != "" && p.Specialty != specialty {
		return DoctorProfile{}, validationError("specialty", "doctor %s practises %s, not %s", doctorID, p.Specialty, specialty)
	}
	return p, nil
}

// searchWindow spans from the requested start to the end of the last day
// auto-adjust may look at.
func (s *Service) searchWindow(profile DoctorProfile, requested schedule.TimeRange) schedule.TimeRange {
	last := requested.Start.In(s.policy.Location).AddDate(0, 0, s.policy.RolloverDays)
	return schedule.TimeRange{
		Start: requested.Start,
		End:   profile.Hours.On(last, s.policy.Location).End,
	}
}

// nextFree walks candidate starts from requested.Start forward in steps of the
// doctor's slot size, first through the rest of that day, then through the
// working hours of each rollover day.
func (s *Service) nextFree(profile DoctorProfile, requested schedule.TimeRange, booked []calendar.Booking) (schedule.TimeRange, bool) {
	ranges := make([]schedule.TimeRange, 0, len(booked))
	for _, b := range booked {
		ranges = append(ranges, b.Range)
	}

	step := time.Duration(profile.SlotMinutes) * time.Minute
	duration := requested.Duration()

	day := requested.Start.In(s.policy.Location)
	window := schedule.TimeRange{Start: requested.Start, End: profile.Hours.On(day, s.policy.Location).End}

	for i := 0; i <= s.policy.RolloverDays; i++ {
		if i > 0 {
			window = profile.Hours.On(day.AddDate(0, 0, i), s.policy.Location)
		}
		if r, ok := schedule.FirstFree(schedule.Slots(window, step, duration), ranges); ok {
			return r, true
		}
	}
	return schedule.TimeRange{}, false
}

func overlapsAny(r schedule.TimeRange, booked []calendar.Booking) bool {
	for _, b := range booked {
		if b.Range.Overlaps(r) {
			return true
		}
	}
	return false
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrAppointmentNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrSlotConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, ErrNoAvailability):
		return metrics.OutcomeNoAvailability
	case errors.Is(err, ErrBusy):
		return metrics.OutcomeBusy
	case IsValidation(err):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
