package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/appointment-scheduling-core/internal/metrics"
	"github.com/hackgods/appointment-scheduling-core/internal/schedule"
)

// RescheduleRequest changes an appointment's range or notes. Nil fields keep
// the current value.
type RescheduleRequest struct {
	StartAt         *time.Time
	DurationMinutes *int
	Notes           *string
}

// Reschedule moves an active appointment to a new range. The appointment's own
// booking never conflicts with its new range. On any failure the original
// booking stays in place.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	if req.DurationMinutes != nil && *req.DurationMinutes <= 0 {
		return nil, validationError("durationMinutes", "must be positive")
	}
	if err := validateNotes(req.Notes); err != nil {
		return nil, err
	}

	timer := metrics.StartBooking(metrics.ModeReschedule)

	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		timer.Done(outcome(err))
		return nil, err
	}

	var updated *Appointment
	err = s.withDoctor(ctx, current.DoctorID, metrics.ModeReschedule, func(ctx context.Context, tx DoctorTx) error {
		// State may have moved while waiting for the lock.
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if !appt.Status.Holding() {
			return ErrAppointmentNotFound
		}

		start := appt.Range.Start
		if req.StartAt != nil {
			start = *req.StartAt
		}
		duration := appt.DurationMinutes()
		if req.DurationMinutes != nil {
			duration = *req.DurationMinutes
		}

		profile, _ := s.doctors.Profile(appt.DoctorID)
		next := schedule.NewRange(start, duration)
		if err := s.validateRange(profile, next, duration); err != nil {
			return err
		}

		booked, err := tx.Bookings(ctx, next)
		if err != nil {
			return err
		}
		for _, b := range booked {
			if b.AppointmentID != appt.ID {
				return ErrSlotConflict
			}
		}

		if !appt.Status.CanTransitionTo(StatusRescheduled) {
			return fmt.Errorf("cannot reschedule appointment in status %s", appt.Status)
		}
		appt.Range = next
		appt.Status = StatusRescheduled
		appt.AutoAdjusted = false
		if req.Notes != nil {
			appt.Notes = req.Notes
		}
		appt.UpdatedAt = s.now()

		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		updated = appt
		return nil
	})
	if err != nil {
		timer.Done(outcome(err))
		return nil, err
	}
	timer.Done(metrics.OutcomeOK)

	s.logger.Info().
		Str("appointment_id", updated.ID.String()).
		Str("doctor_id", updated.DoctorID.String()).
		Time("start_at", updated.Range.Start).
		Int("duration_minutes", updated.DurationMinutes()).
		Msg("appointment rescheduled")

	s.logEvent(ctx, updated, EventAppointmentRescheduled)
	return updated, nil
}

// Cancel releases an appointment's booking. Cancelling an already cancelled
// appointment succeeds without changes.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	timer := metrics.StartBooking(metrics.ModeCancel)

	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		timer.Done(outcome(err))
		return err
	}
	if current.Status == StatusCancelled {
		timer.Done(metrics.OutcomeOK)
		return nil
	}

	var cancelled *Appointment
	err = s.withDoctor(ctx, current.DoctorID, metrics.ModeCancel, func(ctx context.Context, tx DoctorTx) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case appt.Status == StatusCancelled:
			return nil
		case !appt.Status.CanTransitionTo(StatusCancelled):
			return ErrAppointmentNotFound
		}

		appt.Status = StatusCancelled
		appt.UpdatedAt = s.now()
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		cancelled = appt
		return nil
	})
	if err != nil {
		timer.Done(outcome(err))
		return err
	}
	timer.Done(metrics.OutcomeOK)

	if cancelled == nil {
		return nil
	}

	s.logger.Info().
		Str("appointment_id", cancelled.ID.String()).
		Str("doctor_id", cancelled.DoctorID.String()).
		Msg("appointment cancelled")

	s.logEvent(ctx, cancelled, EventAppointmentCancelled)
	return nil
}
