package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used on the command line and in records.
const DateLayout = "2006-01-02"

// ProcessingUnit identifies one (site, date, product) obligation of a run.
type ProcessingUnit struct {
	Site    Site
	Date    time.Time
	Product ProductKind
}

// DateString returns the measurement date as YYYY-MM-DD.
func (u ProcessingUnit) DateString() string {
	return u.Date.Format(DateLayout)
}

func (u ProcessingUnit) String() string {
	return fmt.Sprintf("%s %s %s", u.Site.ID, u.DateString(), u.Product)
}

// DateRange is a half-open calendar range [Start, Stop).
type DateRange struct {
	Start time.Time
	Stop  time.Time
}

// ParseDate parses YYYY-MM-DD as a UTC calendar day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// NewDateRange parses start and stop. Empty values default to seven days
// ago and yesterday respectively.
func NewDateRange(start, stop string) (DateRange, error) {
	today := Today()
	r := DateRange{
		Start: today.AddDate(0, 0, -7),
		Stop:  today.AddDate(0, 0, -1),
	}
	var err error
	if start != "" {
		if r.Start, err = ParseDate(start); err != nil {
			return DateRange{}, err
		}
	}
	if stop != "" {
		if r.Stop, err = ParseDate(stop); err != nil {
			return DateRange{}, err
		}
	}
	if !r.Start.Before(r.Stop) {
		return DateRange{}, fmt.Errorf("start %s must be before stop %s",
			r.Start.Format(DateLayout), r.Stop.Format(DateLayout))
	}
	return r, nil
}

// Dates returns every day in the range in ascending order.
func (r DateRange) Dates() []time.Time {
	var dates []time.Time
	for d := r.Start; d.Before(r.Stop); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// Today returns the current UTC date truncated to midnight.
func Today() time.Time {
	now := clock.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
