package schedule

import (
	"fmt"
	"iter"
	"time"
)

// MaxSpanMinutes bounds slot granularity and length to a single day.
const MaxSpanMinutes = 24 * 60

// SlotSpec describes how candidate slots are cut out of a working day.
type SlotSpec struct {
	Hours           WorkHours
	SlotMinutes     int // granularity between candidate starts
	DurationMinutes int // length of each candidate
}

func (s SlotSpec) Validate() error {
	if err := s.Hours.Validate(); err != nil {
		return err
	}
	if s.SlotMinutes <= 0 || s.SlotMinutes > MaxSpanMinutes {
		return fmt.Errorf("%w: slot minutes must be within 1..%d, got %d", ErrInvalidConfiguration, MaxSpanMinutes, s.SlotMinutes)
	}
	if s.DurationMinutes <= 0 || s.DurationMinutes > MaxSpanMinutes {
		return fmt.Errorf("%w: duration minutes must be within 1..%d, got %d", ErrInvalidConfiguration, MaxSpanMinutes, s.DurationMinutes)
	}
	return nil
}

// Slots yields ranges of length duration starting at window.Start and advancing
// by step, stopping before a candidate would end after window.End.
// Ranging over the result again restarts the sequence.
func Slots(window TimeRange, step, duration time.Duration) iter.Seq[TimeRange] {
	return func(yield func(TimeRange) bool) {
		if step <= 0 || duration <= 0 {
			return
		}
		for cursor := window.Start; !cursor.Add(duration).After(window.End); cursor = cursor.Add(step) {
			if !yield(TimeRange{Start: cursor, End: cursor.Add(duration)}) {
				return
			}
		}
	}
}

// DaySlots returns the candidate slots of spec on the calendar day of date.
func DaySlots(date time.Time, loc *time.Location, spec SlotSpec) (iter.Seq[TimeRange], error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	window := spec.Hours.On(date, loc)
	step := time.Duration(spec.SlotMinutes) * time.Minute
	duration := time.Duration(spec.DurationMinutes) * time.Minute

	return Slots(window, step, duration), nil
}
