package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/appointment-scheduling-core/internal/appointment"
	"github.com/hackgods/appointment-scheduling-core/internal/config"
	"github.com/hackgods/appointment-scheduling-core/internal/lock"
	"github.com/hackgods/appointment-scheduling-core/internal/schedule"
)

type testServer struct {
	handler http.Handler
	locker  *lock.LocalLocker
	doctor  uuid.UUID
}

func newTestServer(t *testing.T, wait time.Duration) *testServer {
	t.Helper()

	doctor := uuid.New()
	roster := &config.Roster{Doctors: []config.DoctorEntry{{
		ID:        doctor.String(),
		Name:      "Dr. Julia Mendez",
		Specialty: string(appointment.SpecialtyGeneralMedicine),
	}}}
	dir, err := appointment.NewDirectory(roster, appointment.DoctorProfile{
		Hours:       schedule.WorkHours{Start: schedule.MustClock("08:00"), End: schedule.MustClock("17:00")},
		SlotMinutes: 30,
	})
	require.NoError(t, err)

	locker := lock.NewLocalLocker(wait)
	svc := appointment.NewService(
		appointment.NewMemoryRepository(),
		locker,
		dir,
		appointment.Policy{Location: time.UTC, MinDuration: 10, MaxDuration: 180},
		zerolog.New(io.Discard),
	)

	return &testServer{
		handler: NewRouter(RouterConfig{
			Service:        svc,
			Logger:         zerolog.New(io.Discard),
			RequestTimeout: 5 * time.Second,
			Metrics:        true,
			Env:            "test",
		}),
		locker: locker,
		doctor: doctor,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func (s *testServer) byDate(hhmm string) map[string]any {
	return map[string]any{
		"patientId":       uuid.NewString(),
		"doctorId":        s.doctor.String(),
		"specialty":       "MEDICINA_GENERAL",
		"date":            "2025-03-10",
		"time":            hhmm,
		"durationMinutes": 30,
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestBookByDateAndGet(t *testing.T) {
	s := newTestServer(t, time.Second)

	rec := s.do(t, http.MethodPost, "/appointments/by-date", s.byDate("09:00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "SCHEDULED", created.Status)
	assert.Equal(t, 30, created.DurationMinutes)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), created.StartAt.UTC())
	assert.False(t, created.AutoAdjusted)

	rec = s.do(t, http.MethodGet, "/appointments/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[AppointmentResponse](t, rec).ID)

	rec = s.do(t, http.MethodPost, "/appointments/by-date", s.byDate("09:00"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_conflict", decode[ErrorResponse](t, rec).Error)
}

func TestBookInstantAutoAdjusted(t *testing.T) {
	s := newTestServer(t, time.Second)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/appointments/by-date", s.byDate("09:00")).Code)

	rec := s.do(t, http.MethodPost, "/appointments", map[string]any{
		"patientId":       uuid.NewString(),
		"specialty":       "MEDICINA_GENERAL",
		"startAt":         "2025-03-10T09:00:00Z",
		"durationMinutes": 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := decode[AppointmentResponse](t, rec)
	assert.True(t, got.AutoAdjusted)
	assert.Equal(t, s.doctor, got.DoctorID)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC), got.StartAt.UTC())
}

func TestBookInstantNoAvailability(t *testing.T) {
	s := newTestServer(t, time.Second)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/appointments/by-date", s.byDate("16:30")).Code)

	rec := s.do(t, http.MethodPost, "/appointments", map[string]any{
		"patientId":       uuid.NewString(),
		"doctorId":        s.doctor.String(),
		"specialty":       "MEDICINA_GENERAL",
		"startAt":         "2025-03-10T16:30:00Z",
		"durationMinutes": 30,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_availability", decode[ErrorResponse](t, rec).Error)
}

func TestAvailabilityEndpoint(t *testing.T) {
	s := newTestServer(t, time.Second)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/appointments/by-date", s.byDate("09:00")).Code)

	rec := s.do(t, http.MethodGet, "/appointments/availability?doctorId="+s.doctor.String()+"&date=2025-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	av := decode[AvailabilityResponse](t, rec)
	assert.Equal(t, "2025-03-10", av.Date)
	assert.Equal(t, "08:00", av.WorkStart)
	assert.Equal(t, "17:00", av.WorkEnd)
	assert.Len(t, av.Available, 17)
	require.Len(t, av.Reserved, 1)
	assert.Equal(t, 9, av.Reserved[0].StartAt.Hour())
}

func TestAvailabilityBadRequests(t *testing.T) {
	s := newTestServer(t, time.Second)

	paths := []string{
		"/appointments/availability?date=2025-03-10",
		"/appointments/availability?doctorId=" + s.doctor.String(),
		"/appointments/availability?doctorId=" + s.doctor.String() + "&date=2025-03-10&slotMinutes=abc",
		"/appointments/availability?doctorId=" + s.doctor.String() + "&date=2025-03-10&workStart=25:00",
		"/appointments/availability?doctorId=" + s.doctor.String() + "&date=2025-03-10&workStart=12:00&workEnd=10:00",
		"/appointments/availability?doctorId=" + s.doctor.String() + "&date=2025-03-10&durationMinutes=307445735",
		"/appointments/availability?doctorId=" + s.doctor.String() + "&date=2025-03-10&slotMinutes=3749353613647811&durationMinutes=1",
		"/appointments/availability?doctorId=" + s.doctor.String() + "&date=2025-03-10&workStart=-0:30",
	}
	for _, p := range paths {
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, p, nil).Code, p)
	}
}

func TestBookValidationErrors(t *testing.T) {
	s := newTestServer(t, time.Second)

	tests := []struct {
		name   string
		mutate func(map[string]any)
		code   string
	}{
		{"bad patient", func(b map[string]any) { b["patientId"] = "nope" }, "invalid_patient_id"},
		{"bad doctor", func(b map[string]any) { b["doctorId"] = "nope" }, "invalid_doctor_id"},
		{"bad date", func(b map[string]any) { b["date"] = "10/03/2025" }, "invalid_date"},
		{"bad time", func(b map[string]any) { b["time"] = "9am" }, "invalid_time"},
		{"too short", func(b map[string]any) { b["durationMinutes"] = 5 }, "validation_error"},
		{"outside hours", func(b map[string]any) { b["time"] = "18:00" }, "validation_error"},
		{"unknown specialty", func(b map[string]any) { b["specialty"] = "ASTROLOGIA" }, "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := s.byDate("10:00")
			tt.mutate(body)

			rec := s.do(t, http.MethodPost, "/appointments/by-date", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Error)
		})
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRescheduleAndCancel(t *testing.T) {
	s := newTestServer(t, time.Second)
	rec := s.do(t, http.MethodPost, "/appointments/by-date", s.byDate("09:00"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[AppointmentResponse](t, rec).ID.String()

	rec = s.do(t, http.MethodPut, "/appointments/"+id+"/reschedule", map[string]any{
		"startAt":         "2025-03-10T11:00:00Z",
		"durationMinutes": 45,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "RESCHEDULED", moved.Status)
	assert.Equal(t, 45, moved.DurationMinutes)

	rec = s.do(t, http.MethodDelete, "/appointments/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = s.do(t, http.MethodDelete, "/appointments/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPut, "/appointments/"+id+"/reschedule", map[string]any{"startAt": "2025-03-10T12:00:00Z"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotFoundAndBadIDs(t *testing.T) {
	s := newTestServer(t, time.Second)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/appointments/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/appointments/not-a-uuid", nil).Code)
}

func TestBusyCalendarReturns503(t *testing.T) {
	s := newTestServer(t, 20*time.Millisecond)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.locker.WithDoctorLock(context.Background(), s.doctor, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	rec := s.do(t, http.MethodPost, "/appointments/by-date", s.byDate("09:00"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "doctor_calendar_busy", decode[ErrorResponse](t, rec).Error)
}

func TestRequestTimeoutReturns504(t *testing.T) {
	rec := httptest.NewRecorder()
	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	<-expired.Done()
	handleServiceError(rec, expired.Err())
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, time.Second)

	rec := s.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[ReadinessResponse](t, rec).Status)

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	s := newTestServer(t, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}
