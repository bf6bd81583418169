// Package core provides the pure domain model for syndic billing:
// month keys, money amounts, record types and their validation rules.
//
// This file defines the month key, the unit of billing coverage. A month
// key is a (year, month) pair serialized as "YYYY-MM". All coverage
// reasoning in the billing engine operates on this type, never on raw
// dates.
package core

import (
	"fmt"
	"strconv"
	"time"
)

// MonthKey identifies a single calendar month.
type MonthKey struct {
	Year  int
	Month time.Month
}

// NewMonthKey creates a month key from a year and month.
func NewMonthKey(year int, month time.Month) MonthKey {
	return MonthKey{Year: year, Month: month}
}

// MonthOf returns the month key of the calendar month containing t.
func MonthOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// ParseMonthKey parses a "YYYY-MM" string into a month key.
//
// The format is strict: four year digits, a dash, two month digits.
// Returns ErrInvalidMonth for anything else.
func ParseMonthKey(s string) (MonthKey, error) {
	if len(s) != 7 || s[4] != '-' {
		return MonthKey{}, ErrInvalidMonth
	}
	for i := 0; i < len(s); i++ {
		if i == 4 {
			continue
		}
		// strconv.Atoi tolerates a leading sign, so digits are
		// checked here before parsing.
		if s[i] < '0' || s[i] > '9' {
			return MonthKey{}, ErrInvalidMonth
		}
	}
	year, _ := strconv.Atoi(s[:4])
	if year < 1 {
		return MonthKey{}, ErrInvalidMonth
	}
	month, _ := strconv.Atoi(s[5:])
	if month < 1 || month > 12 {
		return MonthKey{}, ErrInvalidMonth
	}
	return MonthKey{Year: year, Month: time.Month(month)}, nil
}

// String renders the key in its canonical "YYYY-MM" form.
func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// IsZero reports whether the key is the zero value.
func (k MonthKey) IsZero() bool {
	return k.Year == 0 && k.Month == 0
}

func (k MonthKey) Validate() error {
	if k.Year < 1 || k.Month < time.January || k.Month > time.December {
		return ErrInvalidMonth
	}
	return nil
}

// Next returns the calendar successor (December rolls into January).
func (k MonthKey) Next() MonthKey {
	return k.AddMonths(1)
}

// AddMonths returns the key n calendar months after k (n may be negative).
func (k MonthKey) AddMonths(n int) MonthKey {
	months := k.Year*12 + int(k.Month) - 1 + n
	year, rem := months/12, months%12
	if rem < 0 {
		rem += 12
		year--
	}
	return MonthKey{Year: year, Month: time.Month(rem + 1)}
}

// Before reports whether k is strictly earlier than o.
func (k MonthKey) Before(o MonthKey) bool {
	return k.Compare(o) < 0
}

// After reports whether k is strictly later than o.
func (k MonthKey) After(o MonthKey) bool {
	return k.Compare(o) > 0
}

// Compare orders two keys chronologically: -1, 0 or +1.
func (k MonthKey) Compare(o MonthKey) int {
	a := k.Year*12 + int(k.Month)
	b := o.Year*12 + int(o.Month)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// FirstDay returns midnight UTC on the first day of the month.
func (k MonthKey) FirstDay() time.Time {
	return time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC)
}

// MarshalText implements encoding.TextMarshaler so month keys can be used
// as JSON object keys and serialized fields.
func (k MonthKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *MonthKey) UnmarshalText(text []byte) error {
	parsed, err := ParseMonthKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
