package invoice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const (
	dateLayout        = "2006-01-02"
	compactDateLayout = "20060102"
	clockLayout       = "15:04"
)

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// ParseCompactDate parses the authority's YYYYMMDD form.
func ParseCompactDate(s string) (Date, error) {
	t, err := time.Parse(compactDateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse compact date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.time().Format(dateLayout)
}

// Compact formats the date as YYYYMMDD.
func (d Date) Compact() string {
	if d.IsZero() {
		return ""
	}
	return d.time().Format(compactDateLayout)
}

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool {
	return d.time().After(other.time())
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool {
	return d.time().Before(other.time())
}

// AddDays returns the date n days away from d.
func (d Date) AddDays(n int) Date {
	return DateOf(d.time().AddDate(0, 0, n))
}

// DaysUntil returns the number of whole days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.time().Sub(d.time()).Hours() / 24)
}

// MarshalJSON encodes the date as "YYYY-MM-DD", or null when unset.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD", null or "".
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ValidClock reports whether s is an HH:MM 24-hour clock time.
func ValidClock(s string) bool {
	if len(s) != len(clockLayout) {
		return false
	}
	_, err := time.Parse(clockLayout, s)
	return err == nil
}

// ClockOf formats t as HH:MM.
func ClockOf(t time.Time) string {
	return t.Format(clockLayout)
}
