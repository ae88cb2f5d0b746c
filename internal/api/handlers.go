package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/appointment-scheduling-core/internal/appointment"
	"github.com/hackgods/appointment-scheduling-core/internal/schedule"
)

// AppointmentService is the scheduling core as seen by the HTTP layer.
type AppointmentService interface {
	GetAvailability(ctx context.Context, q appointment.AvailabilityQuery) (*appointment.Availability, error)
	BookByDate(ctx context.Context, req appointment.ByDateRequest) (*appointment.Appointment, error)
	BookInstant(ctx context.Context, req appointment.InstantRequest) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, req appointment.RescheduleRequest) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	Location() *time.Location
}

// retryAfterSeconds is advertised to clients turned away by a busy calendar.
const retryAfterSeconds = 1

func availabilityHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc := svc.Location()
		q := r.URL.Query()

		doctorID, err := uuid.Parse(q.Get("doctorId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
			return
		}

		date, err := time.ParseInLocation(dateLayout, q.Get("date"), loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		query := appointment.AvailabilityQuery{DoctorID: doctorID, Date: date}

		if query.SlotMinutes, err = optionalInt(q.Get("slotMinutes")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_minutes", "slotMinutes must be an integer")
			return
		}
		if query.DurationMinutes, err = optionalInt(q.Get("durationMinutes")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_duration", "durationMinutes must be an integer")
			return
		}
		if query.WorkStart, err = optionalClock(q.Get("workStart")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_work_start", err.Error())
			return
		}
		if query.WorkEnd, err = optionalClock(q.Get("workEnd")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_work_end", err.Error())
			return
		}

		av, err := svc.GetAvailability(r.Context(), query)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAvailabilityResponse(av, loc))
	}
}

func bookByDateHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookByDateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, doctorID, ok := parseParticipants(w, req.PatientID, req.DoctorID)
		if !ok {
			return
		}

		date, err := time.ParseInLocation(dateLayout, req.Date, svc.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		clock, err := schedule.ParseClock(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
			return
		}

		appt, err := svc.BookByDate(r.Context(), appointment.ByDateRequest{
			PatientID:       patientID,
			DoctorID:        doctorID,
			Specialty:       appointment.Specialty(req.Specialty),
			Date:            date,
			Time:            clock,
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt, svc.Location()))
	}
}

func bookInstantHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookInstantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, doctorID, ok := parseParticipants(w, req.PatientID, req.DoctorID)
		if !ok {
			return
		}

		if req.StartAt == nil {
			writeError(w, http.StatusBadRequest, "invalid_start_at", "startAt is required")
			return
		}

		appt, err := svc.BookInstant(r.Context(), appointment.InstantRequest{
			PatientID:       patientID,
			DoctorID:        doctorID,
			Specialty:       appointment.Specialty(req.Specialty),
			StartAt:         *req.StartAt,
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt, svc.Location()))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt, svc.Location()))
	}
}

func rescheduleHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, appointment.RescheduleRequest{
			StartAt:         req.StartAt,
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt, svc.Location()))
	}
}

func cancelHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		if err := svc.Cancel(r.Context(), id); err != nil {
			handleServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	var vErr *appointment.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, "validation_error", vErr.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, appointment.ErrNoAvailability):
		writeError(w, http.StatusConflict, "no_availability", err.Error())
	case errors.Is(err, appointment.ErrBusy):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeError(w, http.StatusServiceUnavailable, "doctor_calendar_busy", "doctor calendar is busy, please retry shortly")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request_timeout", "request did not complete in time")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request_cancelled", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func parseParticipants(w http.ResponseWriter, rawPatient, rawDoctor string) (patientID, doctorID uuid.UUID, ok bool) {
	patientID, err := uuid.Parse(rawPatient)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
		return uuid.Nil, uuid.Nil, false
	}

	if rawDoctor != "" {
		doctorID, err = uuid.Parse(rawDoctor)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
			return uuid.Nil, uuid.Nil, false
		}
	}

	return patientID, doctorID, true
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func optionalClock(raw string) (*schedule.Clock, error) {
	if raw == "" {
		return nil, nil
	}
	c, err := schedule.ParseClock(raw)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
