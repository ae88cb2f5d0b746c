package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/appointment-scheduling-core/internal/appointment"
	"github.com/hackgods/appointment-scheduling-core/internal/schedule"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

type BookByDateRequest struct {
	PatientID       string  `json:"patientId"`
	DoctorID        string  `json:"doctorId,omitempty"`
	Specialty       string  `json:"specialty"`
	Date            string  `json:"date"` // YYYY-MM-DD
	Time            string  `json:"time"` // HH:MM
	DurationMinutes int     `json:"durationMinutes"`
	Notes           *string `json:"notes,omitempty"`
}

type BookInstantRequest struct {
	PatientID       string     `json:"patientId"`
	DoctorID        string     `json:"doctorId,omitempty"`
	Specialty       string     `json:"specialty"`
	StartAt         *time.Time `json:"startAt"`
	DurationMinutes int        `json:"durationMinutes"`
	Notes           *string    `json:"notes,omitempty"`
}

type RescheduleRequest struct {
	StartAt         *time.Time `json:"startAt,omitempty"`
	DurationMinutes *int       `json:"durationMinutes,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patientId"`
	DoctorID        uuid.UUID `json:"doctorId"`
	Specialty       string    `json:"specialty"`
	StartAt         time.Time `json:"startAt"`
	EndAt           time.Time `json:"endAt"`
	DurationMinutes int       `json:"durationMinutes"`
	Status          string    `json:"status"`
	Notes           *string   `json:"notes,omitempty"`
	AutoAdjusted    bool      `json:"autoAdjusted"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type SlotResponse struct {
	StartAt time.Time `json:"startAt"`
	EndAt   time.Time `json:"endAt"`
}

type AvailabilityResponse struct {
	DoctorID        uuid.UUID      `json:"doctorId"`
	Date            string         `json:"date"`
	SlotMinutes     int            `json:"slotMinutes"`
	WorkStart       string         `json:"workStart"`
	WorkEnd         string         `json:"workEnd"`
	DurationMinutes int            `json:"durationMinutes"`
	Reserved        []SlotResponse `json:"reserved"`
	Available       []SlotResponse `json:"available"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment, loc *time.Location) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		Specialty:       string(a.Specialty),
		StartAt:         a.Range.Start.In(loc),
		EndAt:           a.Range.End.In(loc),
		DurationMinutes: a.DurationMinutes(),
		Status:          string(a.Status),
		Notes:           a.Notes,
		AutoAdjusted:    a.AutoAdjusted,
		CreatedAt:       a.CreatedAt.In(loc),
		UpdatedAt:       a.UpdatedAt.In(loc),
	}
}

func toSlots(ranges []schedule.TimeRange, loc *time.Location) []SlotResponse {
	out := make([]SlotResponse, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, SlotResponse{StartAt: r.Start.In(loc), EndAt: r.End.In(loc)})
	}
	return out
}

func toAvailabilityResponse(av *appointment.Availability, loc *time.Location) AvailabilityResponse {
	return AvailabilityResponse{
		DoctorID:        av.DoctorID,
		Date:            av.Date.In(loc).Format(dateLayout),
		SlotMinutes:     av.Spec.SlotMinutes,
		WorkStart:       av.Spec.Hours.Start.String(),
		WorkEnd:         av.Spec.Hours.End.String(),
		DurationMinutes: av.Spec.DurationMinutes,
		Reserved:        toSlots(av.Reserved, loc),
		Available:       toSlots(av.Available, loc),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
