package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-scheduling-core/internal/appointment"
	"github.com/hackgods/appointment-scheduling-core/internal/config"
	"github.com/hackgods/appointment-scheduling-core/internal/db"
	"github.com/hackgods/appointment-scheduling-core/internal/lock"
	"github.com/hackgods/appointment-scheduling-core/internal/logging"
)

// workShifts are the hours handed out to seeded doctors.
var workShifts = [][2]string{
	{"08:00", "17:00"},
	{"07:00", "13:00"},
	{"12:00", "20:00"},
	{"09:00", "18:00"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "seed")
	logger.Info().Msg("seed starting")

	output := getEnv("SEED_OUTPUT", cfg.DoctorsFile)
	if output == "" {
		output = "doctors.yaml"
	}
	doctors := getInt("SEED_DOCTORS", 20)
	appointments := getInt("SEED_APPOINTMENTS", 0)

	gofakeit.Seed(time.Now().UnixNano())

	roster := fakeRoster(doctors)
	data, err := roster.Marshal()
	if err != nil {
		logger.Fatal().Err(err).Msg("marshal roster")
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		logger.Fatal().Err(err).Str("path", output).Msg("write roster")
	}
	logger.Info().Int("doctors", doctors).Str("path", output).Msg("roster written")

	if appointments == 0 {
		logger.Info().Msg("seed complete")
		return
	}
	if cfg.StoreBackend != config.StorePostgres {
		logger.Fatal().Msg("SEED_APPOINTMENTS needs STORE_BACKEND=postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: cfg.PostgresMaxConn})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	defaults, err := appointment.DefaultProfile(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid default doctor profile")
	}
	dir, err := appointment.NewDirectory(roster, defaults)
	if err != nil {
		logger.Fatal().Err(err).Msg("build doctor directory")
	}

	svc := appointment.NewService(
		appointment.NewPgRepository(pool, cfg.LockWait),
		lock.NewLocalLocker(cfg.LockWait),
		dir,
		appointment.PolicyFromConfig(cfg),
		logger.Level(zerolog.WarnLevel),
	)

	if err := seedAppointments(ctx, svc, dir, cfg, appointments, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed appointments")
	}

	logger.Info().Msg("seed complete")
}

func fakeRoster(count int) *config.Roster {
	roster := &config.Roster{}
	for i := 0; i < count; i++ {
		shift := workShifts[gofakeit.Number(0, len(workShifts)-1)]
		specialty := appointment.Specialties[i%len(appointment.Specialties)]

		roster.Doctors = append(roster.Doctors, config.DoctorEntry{
			ID:          uuid.NewString(),
			Name:        "Dr. " + gofakeit.FirstName() + " " + gofakeit.LastName(),
			Specialty:   string(specialty),
			WorkStart:   shift[0],
			WorkEnd:     shift[1],
			SlotMinutes: []int{15, 20, 30}[gofakeit.Number(0, 2)],
		})
	}
	return roster
}

// seedAppointments spreads instant bookings over the next working week.
func seedAppointments(ctx context.Context, svc *appointment.Service, dir *appointment.Directory, cfg config.Config, count int, logger zerolog.Logger) error {
	doctors := dir.Doctors()
	if len(doctors) == 0 {
		return errors.New("roster is empty")
	}

	loc := cfg.Location()
	today := time.Now().In(loc)

	booked, full := 0, 0
	for i := 0; i < count; i++ {
		doc := doctors[gofakeit.Number(0, len(doctors)-1)]
		day := today.AddDate(0, 0, gofakeit.Number(1, 5))
		window := doc.Hours.On(day, loc)

		offset := gofakeit.Number(0, int(window.Duration()/time.Minute)/doc.SlotMinutes-1)
		start := window.Start.Add(time.Duration(offset*doc.SlotMinutes) * time.Minute)

		notes := gofakeit.Phrase()
		_, err := svc.BookInstant(ctx, appointment.InstantRequest{
			PatientID:       uuid.New(),
			DoctorID:        doc.ID,
			Specialty:       doc.Specialty,
			StartAt:         start,
			DurationMinutes: doc.SlotMinutes,
			Notes:           &notes,
		})
		switch {
		case err == nil:
			booked++
		case errors.Is(err, appointment.ErrNoAvailability):
			full++
		default:
			return err
		}

		if (i+1)%100 == 0 {
			logger.Info().Int("done", i+1).Int("total", count).Msg("appointments progress")
		}
	}

	logger.Info().Int("booked", booked).Int("day_full", full).Msg("appointments seeded")
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
