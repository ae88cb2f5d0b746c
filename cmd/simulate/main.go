package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hackgods/appointment-scheduling-core/internal/appointment"
	"github.com/hackgods/appointment-scheduling-core/internal/config"
	"github.com/hackgods/appointment-scheduling-core/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	RPS             float64
	Days            int
	InstantRatio    float64
	ByDateRatio     float64
	RescheduleRatio float64
	CancelRatio     float64
	ReadRatio       float64
	PatientCount    int
}

type simDoctor struct {
	ID          uuid.UUID
	Specialty   appointment.Specialty
	Hours       [2]string
	SlotMinutes int
}

type DataPool struct {
	Doctors  []simDoctor
	Patients []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID // every appointment the API reported as created
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

func (dp *DataPool) Appointments() []uuid.UUID {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	return append([]uuid.UUID(nil), dp.appointments...)
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64 // 409 answers
	Busy      int64 // 503 answers
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&om.Error, 1)
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status == http.StatusServiceUnavailable:
		atomic.AddInt64(&om.Busy, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	lo = latencies[0]
	hi = latencies[len(latencies)-1]
	p50 = latencies[min(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, lo, hi, p50, p95
}

type Metrics struct {
	Instant      OperationMetrics
	ByDate       OperationMetrics
	Reschedule   OperationMetrics
	Cancel       OperationMetrics
	ReadByID     OperationMetrics
	Availability OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	limiter *rate.Limiter
	loc     *time.Location
	logger  zerolog.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New(baseCfg.Env, baseCfg.LogLevel, "simulate")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("rps", cfg.RPS).
		Msg("simulator starting")

	roster, err := config.LoadRoster(baseCfg.DoctorsFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("load doctors roster")
	}

	dataPool, err := buildDataPool(roster, baseCfg, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("build data pool")
	}
	logger.Info().Int("doctors", len(dataPool.Doctors)).Int("patients", len(dataPool.Patients)).Msg("data pool ready")

	sim := &Simulator{
		config:  cfg,
		pool:    dataPool,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), max(1, int(cfg.RPS))),
		loc:     baseCfg.Location(),
		logger:  logger,
	}

	sim.Run()
	violations := sim.Verify()
	sim.PrintReport(violations)

	if violations > 0 {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:      strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		RPS:             getFloat("SIM_RPS", 200),
		Days:            getInt("SIM_DAYS", 3),
		InstantRatio:    getFloat("SIM_INSTANT_RATIO", 0.35),
		ByDateRatio:     getFloat("SIM_BY_DATE_RATIO", 0.15),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.15),
		CancelRatio:     getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.25),
		PatientCount:    getInt("SIM_PATIENTS", 500),
	}

	// Normalize ratios
	total := cfg.InstantRatio + cfg.ByDateRatio + cfg.RescheduleRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.InstantRatio /= total
		cfg.ByDateRatio /= total
		cfg.RescheduleRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.RPS <= 0 {
		return fmt.Errorf("SIM_RPS must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	if cfg.PatientCount <= 0 {
		return fmt.Errorf("SIM_PATIENTS must be > 0")
	}
	return nil
}

func buildDataPool(roster *config.Roster, base config.Config, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	for _, e := range roster.Doctors {
		id, err := uuid.Parse(e.ID)
		if err != nil {
			return nil, fmt.Errorf("roster doctor %q: %w", e.ID, err)
		}
		d := simDoctor{
			ID:          id,
			Specialty:   appointment.Specialty(e.Specialty),
			Hours:       [2]string{e.WorkStart, e.WorkEnd},
			SlotMinutes: e.SlotMinutes,
		}
		if d.Hours[0] == "" {
			d.Hours[0] = base.DefaultWorkStart
		}
		if d.Hours[1] == "" {
			d.Hours[1] = base.DefaultWorkEnd
		}
		if d.SlotMinutes == 0 {
			d.SlotMinutes = base.DefaultSlotMinutes
		}
		if d.Specialty != "" {
			dataPool.Doctors = append(dataPool.Doctors, d)
		}
	}
	if len(dataPool.Doctors) == 0 {
		return nil, errors.New("no doctors with a specialty in DOCTORS_FILE")
	}

	gofakeit.Seed(time.Now().UnixNano())
	for i := 0; i < cfg.PatientCount; i++ {
		id, err := uuid.Parse(gofakeit.UUID())
		if err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		r := rng.Float64()
		switch {
		case r < c.InstantRatio:
			s.doInstant(ctx, rng)
		case r < c.InstantRatio+c.ByDateRatio:
			s.doByDate(ctx, rng)
		case r < c.InstantRatio+c.ByDateRatio+c.RescheduleRatio:
			s.doReschedule(ctx, rng)
		case r < c.InstantRatio+c.ByDateRatio+c.RescheduleRatio+c.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			if rng.Intn(2) == 0 {
				s.doReadByID(ctx, rng)
			} else {
				s.doAvailability(ctx, rng)
			}
		}
	}
}

// randomSlot picks a doctor and a start aligned to the doctor's grid on one
// of the simulated days.
func (s *Simulator) randomSlot(rng *rand.Rand) (simDoctor, time.Time) {
	doc := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	day := time.Now().In(s.loc).AddDate(0, 0, 1+rng.Intn(s.config.Days))

	start := clockOn(doc.Hours[0], day, s.loc)
	end := clockOn(doc.Hours[1], day, s.loc)
	slots := int(end.Sub(start)/time.Minute) / doc.SlotMinutes
	if slots <= 0 {
		return doc, start
	}
	return doc, start.Add(time.Duration(rng.Intn(slots)*doc.SlotMinutes) * time.Minute)
}

func (s *Simulator) doInstant(ctx context.Context, rng *rand.Rand) {
	doc, start := s.randomSlot(rng)
	body := map[string]any{
		"patientId":       s.pool.Patients[rng.Intn(len(s.pool.Patients))].String(),
		"doctorId":        doc.ID.String(),
		"specialty":       doc.Specialty,
		"startAt":         start.Format(time.RFC3339),
		"durationMinutes": doc.SlotMinutes,
	}
	s.book(ctx, "/appointments", body, &s.metrics.Instant)
}

func (s *Simulator) doByDate(ctx context.Context, rng *rand.Rand) {
	doc, start := s.randomSlot(rng)
	body := map[string]any{
		"patientId":       s.pool.Patients[rng.Intn(len(s.pool.Patients))].String(),
		"doctorId":        doc.ID.String(),
		"specialty":       doc.Specialty,
		"date":            start.Format("2006-01-02"),
		"time":            start.Format("15:04"),
		"durationMinutes": doc.SlotMinutes,
	}
	s.book(ctx, "/appointments/by-date", body, &s.metrics.ByDate)
}

func (s *Simulator) book(ctx context.Context, path string, body map[string]any, om *OperationMetrics) {
	start := time.Now()
	status, payload, err := s.do(ctx, http.MethodPost, path, body)
	if ctx.Err() != nil {
		return
	}
	om.Record(time.Since(start), status, err)

	if err == nil && status == http.StatusCreated {
		var apptResp struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(payload, &apptResp) == nil && apptResp.ID != uuid.Nil {
			s.pool.AddAppointment(apptResp.ID)
		}
	}
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	_, newStart := s.randomSlot(rng)

	start := time.Now()
	status, _, err := s.do(ctx, http.MethodPut, "/appointments/"+apptID.String()+"/reschedule", map[string]any{
		"startAt": newStart.Format(time.RFC3339),
	})
	if ctx.Err() != nil {
		return
	}
	s.metrics.Reschedule.Record(time.Since(start), status, err)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _, err := s.do(ctx, http.MethodDelete, "/appointments/"+apptID.String(), nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Cancel.Record(time.Since(start), status, err)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _, err := s.do(ctx, http.MethodGet, "/appointments/"+apptID.String(), nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.ReadByID.Record(time.Since(start), status, err)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	doc, day := s.randomSlot(rng)

	start := time.Now()
	path := fmt.Sprintf("/appointments/availability?doctorId=%s&date=%s", doc.ID, day.Format("2006-01-02"))
	status, _, err := s.do(ctx, http.MethodGet, path, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Availability.Record(time.Since(start), status, err)
}

func (s *Simulator) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, buf.Bytes(), nil
}

type auditedAppointment struct {
	ID       uuid.UUID `json:"id"`
	DoctorID uuid.UUID `json:"doctorId"`
	StartAt  time.Time `json:"startAt"`
	EndAt    time.Time `json:"endAt"`
	Status   string    `json:"status"`
}

// Verify reads back every created appointment and counts pairs of active
// appointments of the same doctor whose ranges overlap.
func (s *Simulator) Verify() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	byDoctor := map[uuid.UUID][]auditedAppointment{}
	for _, id := range s.pool.Appointments() {
		status, payload, err := s.do(ctx, http.MethodGet, "/appointments/"+id.String(), nil)
		if err != nil || status != http.StatusOK {
			s.logger.Warn().Err(err).Int("status", status).Str("appointment_id", id.String()).Msg("audit read failed")
			continue
		}
		var a auditedAppointment
		if err := json.Unmarshal(payload, &a); err != nil {
			continue
		}
		if a.Status == string(appointment.StatusScheduled) || a.Status == string(appointment.StatusRescheduled) {
			byDoctor[a.DoctorID] = append(byDoctor[a.DoctorID], a)
		}
	}

	violations := 0
	for doctorID, appts := range byDoctor {
		sort.Slice(appts, func(i, j int) bool { return appts[i].StartAt.Before(appts[j].StartAt) })
		for i := 1; i < len(appts); i++ {
			if appts[i].StartAt.Before(appts[i-1].EndAt) {
				violations++
				s.logger.Error().
					Str("doctor_id", doctorID.String()).
					Str("first", appts[i-1].ID.String()).
					Str("second", appts[i].ID.String()).
					Msg("overlapping active appointments")
			}
		}
	}
	return violations
}

func (s *Simulator) PrintReport(violations int) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Rate limit: %.0f req/s\n", s.config.RPS)
	fmt.Printf("Appointments created: %d\n", len(s.pool.Appointments()))
	fmt.Printf("Overlap violations: %d\n", violations)
	fmt.Println()

	printOperationReport("Book instant", &s.metrics.Instant)
	printOperationReport("Book by date", &s.metrics.ByDate)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("Availability", &s.metrics.Availability)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	busy := atomic.LoadInt64(&om.Busy)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if busy > 0 {
		fmt.Printf("  Busy: %d (%.1f%%)\n", busy, pct(busy))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func clockOn(hhmm string, day time.Time, loc *time.Location) time.Time {
	t, err := time.ParseInLocation("15:04", hhmm, loc)
	if err != nil {
		return day
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
