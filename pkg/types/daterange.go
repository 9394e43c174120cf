package types

import (
	"fmt"
	"time"
)

// DateLayout is the day format used in cache keys and report requests.
const DateLayout = "2006-01-02"

// DateRange is an inclusive reporting window.
type DateRange struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// ParseDateRange parses two YYYY-MM-DD dates.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	dr := DateRange{Start: s, End: e}
	return dr, dr.Validate()
}

// PreviousWeek returns the Monday to Sunday week before the one containing now.
func PreviousWeek(now time.Time) DateRange {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	thisMonday := day.AddDate(0, 0, -offset)
	return DateRange{
		Start: thisMonday.AddDate(0, 0, -7),
		End:   thisMonday.AddDate(0, 0, -1),
	}
}

// Validate checks the range is well formed.
func (d DateRange) Validate() error {
	if d.Start.IsZero() || d.End.IsZero() {
		return fmt.Errorf("date range requires start and end")
	}
	if d.End.Before(d.Start) {
		return fmt.Errorf("date range end %s is before start %s", d.EndString(), d.StartString())
	}
	return nil
}

// IsZero reports whether no range was set.
func (d DateRange) IsZero() bool {
	return d.Start.IsZero() && d.End.IsZero()
}

func (d DateRange) StartString() string { return d.Start.Format(DateLayout) }
func (d DateRange) EndString() string { return d.End.Format(DateLayout) }

func (d DateRange) String() string {
	return d.StartString() + "_to_" + d.EndString()
}
