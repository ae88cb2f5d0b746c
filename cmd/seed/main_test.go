package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/appointment-scheduling-core/internal/appointment"
	"github.com/hackgods/appointment-scheduling-core/internal/config"
	"github.com/hackgods/appointment-scheduling-core/internal/schedule"
)

func TestFakeRosterLoadsIntoDirectory(t *testing.T) {
	roster := fakeRoster(12)
	require.Len(t, roster.Doctors, 12)

	data, err := roster.Marshal()
	require.NoError(t, err)
	parsed, err := config.ParseRoster(data)
	require.NoError(t, err)

	dir, err := appointment.NewDirectory(parsed, appointment.DoctorProfile{
		Hours:       schedule.WorkHours{Start: schedule.MustClock("08:00"), End: schedule.MustClock("17:00")},
		SlotMinutes: 30,
	})
	require.NoError(t, err)
	require.Len(t, dir.Doctors(), 12)

	for _, d := range dir.Doctors() {
		assert.True(t, d.Specialty.Valid(), d.Specialty)
		assert.Contains(t, []int{15, 20, 30}, d.SlotMinutes)
		assert.NoError(t, d.Hours.Validate())
	}

	for _, s := range appointment.Specialties {
		_, ok := dir.FirstBySpecialty(s)
		assert.True(t, ok, s)
	}
}

func TestGetInt(t *testing.T) {
	t.Setenv("SEED_DOCTORS", "7")
	assert.Equal(t, 7, getInt("SEED_DOCTORS", 20))

	t.Setenv("SEED_DOCTORS", "many")
	assert.Equal(t, 20, getInt("SEED_DOCTORS", 20))
}
