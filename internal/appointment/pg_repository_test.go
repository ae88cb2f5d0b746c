package appointment

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/appointment-scheduling-core/internal/db"
	"github.com/hackgods/appointment-scheduling-core/internal/lock"
	"github.com/hackgods/appointment-scheduling-core/internal/schedule"
)

// Set POSTGRES_TEST_DSN to run these against a disposable database.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{MaxConns: 20})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool, zerolog.New(io.Discard)))
	return pool
}

func TestPgExclusionConstraintRejectsOverlap(t *testing.T) {
	repo := NewPgRepository(testPool(t), time.Second)
	doctor := uuid.New()
	ctx := context.Background()

	first := newTestAppointment(doctor, at("09:00"), 30)
	require.NoError(t, repo.InDoctorTx(ctx, doctor, func(ctx context.Context, tx DoctorTx) error {
		return tx.CreateAppointment(ctx, first)
	}))

	// Skip the application check and let the constraint catch it.
	err := repo.InDoctorTx(ctx, doctor, func(ctx context.Context, tx DoctorTx) error {
		return tx.CreateAppointment(ctx, newTestAppointment(doctor, at("09:15"), 30))
	})
	assert.ErrorIs(t, err, ErrSlotConflict)

	require.NoError(t, repo.InDoctorTx(ctx, doctor, func(ctx context.Context, tx DoctorTx) error {
		return tx.CreateAppointment(ctx, newTestAppointment(doctor, at("09:30"), 30))
	}))

	bs, err := repo.BookedRanges(ctx, doctor, schedule.Day(testDay, time.UTC))
	require.NoError(t, err)
	assert.Len(t, bs, 2)
}

func TestPgCancelledRowsReleaseRange(t *testing.T) {
	repo := NewPgRepository(testPool(t), time.Second)
	doctor := uuid.New()
	ctx := context.Background()

	a := newTestAppointment(doctor, at("10:00"), 30)
	require.NoError(t, repo.InDoctorTx(ctx, doctor, func(ctx context.Context, tx DoctorTx) error {
		return tx.CreateAppointment(ctx, a)
	}))

	a.Status = StatusCancelled
	require.NoError(t, repo.InDoctorTx(ctx, doctor, func(ctx context.Context, tx DoctorTx) error {
		return tx.UpdateAppointment(ctx, a)
	}))

	require.NoError(t, repo.InDoctorTx(ctx, doctor, func(ctx context.Context, tx DoctorTx) error {
		return tx.CreateAppointment(ctx, newTestAppointment(doctor, at("10:00"), 30))
	}))

	got, err := repo.GetAppointmentByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestPgRollbackOnError(t *testing.T) {
	repo := NewPgRepository(testPool(t), time.Second)
	doctor := uuid.New()
	a := newTestAppointment(doctor, at("11:00"), 30)
	boom := errors.New("boom")

	err := repo.InDoctorTx(context.Background(), doctor, func(ctx context.Context, tx DoctorTx) error {
		require.NoError(t, tx.CreateAppointment(ctx, a))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.GetAppointmentByID(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPgAdvisoryLockTimesOutAsBusy(t *testing.T) {
	repo := NewPgRepository(testPool(t), 100*time.Millisecond)
	doctor := uuid.New()

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = repo.InDoctorTx(context.Background(), doctor, func(ctx context.Context, tx DoctorTx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := repo.InDoctorTx(context.Background(), doctor, func(ctx context.Context, tx DoctorTx) error {
		return nil
	})
	close(release)
	<-done

	assert.ErrorIs(t, err, ErrBusy)
}

func TestPgServiceConcurrentBooking(t *testing.T) {
	pool := testPool(t)
	dir, err := NewDirectory(nil, clinicDefaults)
	require.NoError(t, err)

	repo := NewPgRepository(pool, 2*time.Second)
	svc := NewService(repo, lock.NewLocalLocker(5*time.Second), dir,
		Policy{Location: time.UTC, MinDuration: 10, MaxDuration: 180}, zerolog.New(io.Discard))

	doctor := uuid.New()
	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.BookByDate(context.Background(), ByDateRequest{
				PatientID:       uuid.New(),
				DoctorID:        doctor,
				Specialty:       SpecialtyGeneralMedicine,
				Date:            testDay,
				Time:            schedule.MustClock("09:00"),
				DurationMinutes: 30,
			})
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrSlotConflict)
		}
	}
	assert.Equal(t, 1, ok)

	bs, err := repo.BookedRanges(context.Background(), doctor, schedule.Day(testDay, time.UTC))
	require.NoError(t, err)
	require.Len(t, bs, 1)

	events, err := repo.EventsForAppointment(context.Background(), bs[0].AppointmentID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentCreated, events[0].EventType)
}
