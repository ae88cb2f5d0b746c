package appointment

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/appointment-scheduling-core/internal/config"
	"github.com/hackgods/appointment-scheduling-core/internal/schedule"
)

// DoctorProfile is what the core knows about a doctor: specialty, daily hours
// and booking granularity. Doctor records themselves live elsewhere.
type DoctorProfile struct {
	ID          uuid.UUID
	Name        string
	Specialty   Specialty // empty for doctors not in the roster
	Hours       schedule.WorkHours
	SlotMinutes int
}

// Directory resolves doctor profiles from the roster, falling back to the
// clinic defaults for doctors it has never heard of.
type Directory struct {
	defaults DoctorProfile
	byID     map[uuid.UUID]DoctorProfile
	order    []uuid.UUID
}

// DefaultProfile is the profile the clinic-wide settings describe.
func DefaultProfile(cfg config.Config) (DoctorProfile, error) {
	start, err := schedule.ParseClock(cfg.DefaultWorkStart)
	if err != nil {
		return DoctorProfile{}, fmt.Errorf("DEFAULT_WORK_START: %w", err)
	}
	end, err := schedule.ParseClock(cfg.DefaultWorkEnd)
	if err != nil {
		return DoctorProfile{}, fmt.Errorf("DEFAULT_WORK_END: %w", err)
	}
	return DoctorProfile{
		Hours:       schedule.WorkHours{Start: start, End: end},
		SlotMinutes: cfg.DefaultSlotMinutes,
	}, nil
}

// NewDirectory builds a directory. defaults supplies Hours and SlotMinutes for
// unknown doctors and for roster entries that leave them blank.
func NewDirectory(roster *config.Roster, defaults DoctorProfile) (*Directory, error) {
	if err := defaults.Hours.Validate(); err != nil {
		return nil, fmt.Errorf("default work hours: %w", err)
	}
	if defaults.SlotMinutes <= 0 {
		return nil, fmt.Errorf("default slot minutes must be positive, got %d", defaults.SlotMinutes)
	}

	d := &Directory{
		defaults: defaults,
		byID:     make(map[uuid.UUID]DoctorProfile),
	}
	if roster == nil {
		return d, nil
	}

	for i, e := range roster.Doctors {
		p, err := profileFromEntry(e, defaults)
		if err != nil {
			return nil, fmt.Errorf("roster entry %d: %w", i, err)
		}
		if _, dup := d.byID[p.ID]; dup {
			return nil, fmt.Errorf("roster entry %d: duplicate doctor id %s", i, p.ID)
		}
		d.byID[p.ID] = p
		d.order = append(d.order, p.ID)
	}

	return d, nil
}

func profileFromEntry(e config.DoctorEntry, defaults DoctorProfile) (DoctorProfile, error) {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return DoctorProfile{}, fmt.Errorf("invalid doctor id %q: %w", e.ID, err)
	}

	p := DoctorProfile{
		ID:          id,
		Name:        e.Name,
		Specialty:   Specialty(e.Specialty),
		Hours:       defaults.Hours,
		SlotMinutes: defaults.SlotMinutes,
	}
	if p.Specialty != "" && !p.Specialty.Valid() {
		return DoctorProfile{}, fmt.Errorf("unknown specialty %q", e.Specialty)
	}

	if e.WorkStart != "" {
		if p.Hours.Start, err = schedule.ParseClock(e.WorkStart); err != nil {
			return DoctorProfile{}, err
		}
	}
	if e.WorkEnd != "" {
		if p.Hours.End, err = schedule.ParseClock(e.WorkEnd); err != nil {
			return DoctorProfile{}, err
		}
	}
	if err := p.Hours.Validate(); err != nil {
		return DoctorProfile{}, err
	}

	if e.SlotMinutes < 0 {
		return DoctorProfile{}, fmt.Errorf("slot_minutes must be positive, got %d", e.SlotMinutes)
	}
	if e.SlotMinutes > 0 {
		p.SlotMinutes = e.SlotMinutes
	}

	return p, nil
}

// Profile returns the doctor's profile and whether the doctor is in the roster.
func (d *Directory) Profile(id uuid.UUID) (DoctorProfile, bool) {
	if p, ok := d.byID[id]; ok {
		return p, true
	}
	p := d.defaults
	p.ID = id
	p.Specialty = ""
	return p, false
}

// FirstBySpecialty returns the first roster doctor practising specialty.
func (d *Directory) FirstBySpecialty(specialty Specialty) (DoctorProfile, bool) {
	for _, id := range d.order {
		if p := d.byID[id]; p.Specialty == specialty {
			return p, true
		}
	}
	return DoctorProfile{}, false
}

// Doctors returns the roster in file order.
func (d *Directory) Doctors() []DoctorProfile {
	out := make([]DoctorProfile, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.byID[id])
	}
	return out
}
