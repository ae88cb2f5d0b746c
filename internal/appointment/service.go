package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-scheduling-core/internal/config"
	"github.com/hackgods/appointment-scheduling-core/internal/lock"
	"github.com/hackgods/appointment-scheduling-core/internal/metrics"
	"github.com/hackgods/appointment-scheduling-core/internal/schedule"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
)

const maxNotesLength = 240

// Policy holds the clinic-wide booking rules.
type Policy struct {
	Location     *time.Location
	MinDuration  int // minutes
	MaxDuration  int // minutes
	RolloverDays int // extra days auto-adjust may search; 0 keeps it on the requested day
}

// PolicyFromConfig extracts the booking rules from cfg.
func PolicyFromConfig(cfg config.Config) Policy {
	return Policy{
		Location:     cfg.Location(),
		MinDuration:  cfg.MinDuration,
		MaxDuration:  cfg.MaxDuration,
		RolloverDays: cfg.AutoAdjustRolloverDays,
	}
}

type Service struct {
	repo    Repository
	locker  lock.Locker
	doctors *Directory
	policy  Policy
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, locker lock.Locker, doctors *Directory, policy Policy, logger zerolog.Logger) *Service {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		doctors: doctors,
		policy:  policy,
		logger:  logger.With().Str("component", "appointment").Logger(),
		now:     time.Now,
	}
}

// Location is the clinic time zone used for dates and times of day.
func (s *Service) Location() *time.Location {
	return s.policy.Location
}

// GetAppointment retrieves an appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// AvailabilityQuery asks for the free slots of a doctor on one day. Zero
// values fall back to the doctor's profile.
type AvailabilityQuery struct {
	DoctorID        uuid.UUID
	Date            time.Time
	SlotMinutes     int
	WorkStart       *schedule.Clock
	WorkEnd         *schedule.Clock
	DurationMinutes int
}

type Availability struct {
	DoctorID  uuid.UUID
	Date      time.Time
	Spec      schedule.SlotSpec
	Reserved  []schedule.TimeRange
	Available []schedule.TimeRange
}

// GetAvailability lists the candidate slots of the day that overlap no booking.
// It reads a snapshot without taking the doctor's lock, so the answer is advisory.
func (s *Service) GetAvailability(ctx context.Context, q AvailabilityQuery) (*Availability, error) {
	if q.DoctorID == uuid.Nil {
		return nil, validationError("doctorId", "is required")
	}
	if q.Date.IsZero() {
		return nil, validationError("date", "is required")
	}

	profile, _ := s.doctors.Profile(q.DoctorID)

	spec := schedule.SlotSpec{
		Hours:           profile.Hours,
		SlotMinutes:     profile.SlotMinutes,
		DurationMinutes: profile.SlotMinutes,
	}
	if q.WorkStart != nil {
		spec.Hours.Start = *q.WorkStart
	}
	if q.WorkEnd != nil {
		spec.Hours.End = *q.WorkEnd
	}
	if q.SlotMinutes != 0 {
		spec.SlotMinutes = q.SlotMinutes
	}
	if q.DurationMinutes != 0 {
		spec.DurationMinutes = q.DurationMinutes
	}

	candidates, err := schedule.DaySlots(q.Date, s.policy.Location, spec)
	if err != nil {
		return nil, &ValidationError{msg: err.Error()}
	}

	day := schedule.Day(q.Date, s.policy.Location)
	bookings, err := s.repo.BookedRanges(ctx, q.DoctorID, day)
	if err != nil {
		return nil, fmt.Errorf("load booked ranges: %w", err)
	}

	reserved := make([]schedule.TimeRange, 0, len(bookings))
	for _, b := range bookings {
		reserved = append(reserved, b.Range)
	}

	return &Availability{
		DoctorID:  q.DoctorID,
		Date:      day.Start,
		Spec:      spec,
		Reserved:  reserved,
		Available: schedule.Free(candidates, reserved),
	}, nil
}

// withDoctor runs fn inside the doctor's exclusive scope and calendar transaction.
func (s *Service) withDoctor(ctx context.Context, doctorID uuid.UUID, op string, fn func(ctx context.Context, tx DoctorTx) error) error {
	start := time.Now()
	err := s.locker.WithDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		metrics.ObserveLockWait(op, time.Since(start))
		return s.repo.InDoctorTx(lockCtx, doctorID, fn)
	})
	if errors.Is(err, lock.ErrBusy) {
		metrics.IncLockBusy(op)
		s.logger.Warn().
			Str("doctor_id", doctorID.String()).
			Str("op", op).
			Dur("waited", time.Since(start)).
			Msg("doctor calendar busy")
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}

func (s *Service) logEvent(ctx context.Context, appt *Appointment, eventType string) {
	data, err := json.Marshal(eventPayload(appt))
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appt.ID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appt.ID.String()).
			Msg("failed to insert event log")
	}
}

func eventPayload(a *Appointment) map[string]any {
	payload := map[string]any{
		"id":           a.ID.String(),
		"patientId":    a.PatientID.String(),
		"doctorId":     a.DoctorID.String(),
		"specialty":    a.Specialty,
		"startAt":      a.Range.Start,
		"endAt":        a.Range.End,
		"status":       a.Status,
		"autoAdjusted": a.AutoAdjusted,
	}
	if a.Notes != nil {
		payload["notes"] = *a.Notes
	}
	return payload
}

// validateRange checks r against the booking rules and the doctor's hours on r's day.
func (s *Service) validateRange(profile DoctorProfile, r schedule.TimeRange, durationMinutes int) error {
	if durationMinutes <= 0 {
		return validationError("durationMinutes", "must be positive")
	}
	if durationMinutes < s.policy.MinDuration || durationMinutes > s.policy.MaxDuration {
		return validationError("durationMinutes", "must be between %d and %d", s.policy.MinDuration, s.policy.MaxDuration)
	}
	if err := r.Validate(); err != nil {
		return validationError("startAt", "%v", err)
	}

	hours := profile.Hours.On(r.Start, s.policy.Location)
	if !hours.Contains(r) {
		return validationError("startAt", "range %s-%s is outside working hours %s-%s",
			r.Start.In(s.policy.Location).Format("15:04"),
			r.End.In(s.policy.Location).Format("15:04"),
			profile.Hours.Start, profile.Hours.End)
	}
	return nil
}

func validateNotes(notes *string) error {
	if notes != nil && len([]rune(*notes)) > maxNotesLength {
		return validationError("notes", "must be at most %d characters", maxNotesLength)
	}
	return nil
}
