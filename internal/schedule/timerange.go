package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidConfiguration = errors.New("invalid slot configuration")
	ErrInvalidRange         = errors.New("range end must be after start")
)

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewRange builds a range of the given length starting at start.
func NewRange(start time.Time, minutes int) TimeRange {
	return TimeRange{Start: start, End: start.Add(time.Duration(minutes) * time.Minute)}
}

func (r TimeRange) Validate() error {
	if !r.End.After(r.Start) {
		return ErrInvalidRange
	}
	return nil
}

func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Overlaps reports whether r and o share any instant.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

// Contains reports whether o lies entirely inside r.
func (r TimeRange) Contains(o TimeRange) bool {
	return !o.Start.Before(r.Start) && !o.End.After(r.End)
}

func (r TimeRange) Equal(o TimeRange) bool {
	return r.Start.Equal(o.Start) && r.End.Equal(o.End)
}

func (r TimeRange) String() string {
	return r.Start.Format(time.RFC3339) + "/" + r.End.Format(time.RFC3339)
}

// Clock is a time of day expressed in minutes after midnight.
type Clock int

// ParseClock parses "HH:MM" or "HH:MM:SS". Seconds must be zero at 24:00 and
// are otherwise dropped.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}

	hour, err := clockField(parts[0], 24)
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}

	minute, err := clockField(parts[1], 59)
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}

	second := 0
	if len(parts) == 3 {
		if second, err = clockField(parts[2], 59); err != nil {
			return 0, fmt.Errorf("invalid second in %q", s)
		}
	}

	if hour == 24 && (minute != 0 || second != 0) {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}

	return Clock(hour*60 + minute), nil
}

// clockField parses one or two plain digits no greater than limit.
func clockField(raw string, limit int) (int, error) {
	if len(raw) == 0 || len(raw) > 2 {
		return 0, fmt.Errorf("invalid field %q", raw)
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid field %q", raw)
		}
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n > limit {
		return 0, fmt.Errorf("invalid field %q", raw)
	}
	return n, nil
}

// MustClock is ParseClock for constants.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant of c on the calendar day of date in loc.
func (c Clock) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, loc)
}

// WorkHours is a doctor's daily working window.
type WorkHours struct {
	Start Clock
	End   Clock
}

func (w WorkHours) Validate() error {
	if w.End <= w.Start {
		return fmt.Errorf("%w: work end %s must be after work start %s", ErrInvalidConfiguration, w.End, w.Start)
	}
	return nil
}

// On returns the working window on the calendar day of date in loc.
func (w WorkHours) On(date time.Time, loc *time.Location) TimeRange {
	return TimeRange{Start: w.Start.On(date, loc), End: w.End.On(date, loc)}
}

// Day returns the full calendar day containing date in loc.
func Day(date time.Time, loc *time.Location) TimeRange {
	y, m, d := date.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return TimeRange{Start: start, End: start.AddDate(0, 0, 1)}
}
