package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/appointment-scheduling-core/internal/schedule"
)

type AppointmentStatus string

const (
	StatusScheduled   AppointmentStatus = "SCHEDULED"
	StatusRescheduled AppointmentStatus = "RESCHEDULED"
	StatusCancelled   AppointmentStatus = "CANCELLED"
	StatusCompleted   AppointmentStatus = "COMPLETED"
)

// transitions lists the statuses reachable from each status.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled:   {StatusRescheduled, StatusCancelled, StatusCompleted},
	StatusRescheduled: {StatusRescheduled, StatusCancelled, StatusCompleted},
	StatusCancelled:   nil,
	StatusCompleted:   nil,
}

func (s AppointmentStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s AppointmentStatus) CanTransitionTo(to AppointmentStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s AppointmentStatus) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Holding reports whether an appointment in status s occupies its doctor's calendar.
func (s AppointmentStatus) Holding() bool {
	return s == StatusScheduled || s == StatusRescheduled
}

type Specialty string

const (
	SpecialtyGeneralMedicine Specialty = "MEDICINA_GENERAL"
	SpecialtyPediatrics      Specialty = "PEDIATRIA"
	SpecialtyGynecology      Specialty = "GINECOLOGIA"
	SpecialtyCardiology      Specialty = "CARDIOLOGIA"
	SpecialtyDermatology     Specialty = "DERMATOLOGIA"
	SpecialtyDentistry       Specialty = "ODONTOLOGIA"
	SpecialtyTraumatology    Specialty = "TRAUMATOLOGIA"
)

var Specialties = []Specialty{
	SpecialtyGeneralMedicine,
	SpecialtyPediatrics,
	SpecialtyGynecology,
	SpecialtyCardiology,
	SpecialtyDermatology,
	SpecialtyDentistry,
	SpecialtyTraumatology,
}

func (s Specialty) Valid() bool {
	for _, known := range Specialties {
		if s == known {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	Specialty    Specialty
	Range        schedule.TimeRange
	Status       AppointmentStatus
	Notes        *string
	AutoAdjusted bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DurationMinutes is the whole-minute length of the appointment's range.
func (a *Appointment) DurationMinutes() int {
	return int(a.Range.Duration() / time.Minute)
}

func (a *Appointment) clone() *Appointment {
	c := *a
	if a.Notes != nil {
		n := *a.Notes
		c.Notes = &n
	}
	return &c
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
