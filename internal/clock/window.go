package clock

import (
	"fmt"
	"time"
)

// TimeOfDay is minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Window is a single daily working interval [Start, End] in a fixed zone.
// Both bounds are inclusive at minute granularity.
type Window struct {
	Start    TimeOfDay
	End      TimeOfDay
	Location *time.Location
}

func NewWindow(start, end string, loc *time.Location) (Window, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Window{}, err
	}
	if e <= s {
		return Window{}, fmt.Errorf("work window: end %s must be after start %s", e, s)
	}
	if loc == nil {
		loc = time.UTC
	}
	return Window{Start: s, End: e, Location: loc}, nil
}

// Contains reports whether t falls inside the window, evaluated in the
// window's zone regardless of the zone t carries.
func (w Window) Contains(t time.Time) bool {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	// seconds inside the end minute still count as working time
	m := TimeOfDay(local.Hour()*60 + local.Minute())
	return m >= w.Start && m <= w.End
}

// String renders the window as "07:30–18:00".
func (w Window) String() string {
	return w.Start.String() + "–" + w.End.String()
}
