package clock

import (
	"errors"
	"fmt"
	"time"
)

// DefaultOffsetMinutes is the fixed UTC offset used when a zone name cannot
// be resolved from the tz database (Europe/Istanbul, no DST).
const DefaultOffsetMinutes = 180

// ErrUnknownZone is returned by LoadZone when the name is not in the tz
// database. The returned Zone is still usable and pinned to
// DefaultOffsetMinutes.
var ErrUnknownZone = errors.New("unknown timezone")

// refinePasses bounds the offset refinement in Instant.
const refinePasses = 2

// Fields are wall-clock calendar fields as observed in a Zone.
type Fields struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int
}

// Zone converts between absolute instants and local calendar fields of a
// named timezone.
type Zone struct {
	name     string
	loc      *time.Location
	fallback bool
}

// LoadZone resolves name through the tz database. On failure it returns a
// fixed-offset zone together with an error wrapping ErrUnknownZone so the
// caller can report the fallback.
func LoadZone(name string) (*Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		z := &Zone{
			name:     name,
			loc:      time.FixedZone(name, DefaultOffsetMinutes*60),
			fallback: true,
		}
		return z, fmt.Errorf("%w %q, using fixed offset %+d minutes: %v", ErrUnknownZone, name, DefaultOffsetMinutes, err)
	}
	return &Zone{name: name, loc: loc}, nil
}

// FixedZone returns a zone pinned to offsetMinutes east of UTC.
func FixedZone(name string, offsetMinutes int) *Zone {
	return &Zone{name: name, loc: time.FixedZone(name, offsetMinutes*60)}
}

// Name returns the zone name as configured.
func (z *Zone) Name() string { return z.name }

// Fallback reports whether the zone is the fixed-offset substitute for an
// unresolvable name.
func (z *Zone) Fallback() bool { return z.fallback }

// Location exposes the underlying location.
func (z *Zone) Location() *time.Location { return z.loc }

// FieldsAt returns the calendar fields of t as observed in the zone.
func (z *Zone) FieldsAt(t time.Time) Fields {
	l := t.In(z.loc)
	return Fields{
		Year:   l.Year(),
		Month:  l.Month(),
		Day:    l.Day(),
		Hour:   l.Hour(),
		Minute: l.Minute(),
		Second: l.Second(),
	}
}

// OffsetMinutes returns the zone's UTC offset at t.
func (z *Zone) OffsetMinutes(t time.Time) int {
	_, off := t.In(z.loc).Zone()
	return off / 60
}

// Instant returns the absolute instant denoted by f in the zone.
//
// The first approximation reads f as UTC and subtracts the offset in force at
// that instant. The offset is then re-read at the approximation and the
// instant recomputed, at most refinePasses times, which settles across DST
// transitions without iterating indefinitely.
func (z *Zone) Instant(f Fields) time.Time {
	naive := time.Date(f.Year, f.Month, f.Day, f.Hour, f.Minute, f.Second, 0, time.UTC)
	guess := naive.Add(-time.Duration(z.OffsetMinutes(naive)) * time.Minute)
	for i := 0; i < refinePasses; i++ {
		next := naive.Add(-time.Duration(z.OffsetMinutes(guess)) * time.Minute)
		if next.Equal(guess) {
			break
		}
		guess = next
	}
	return guess
}

// DayKey returns the local calendar date of t as YYYY-MM-DD.
func (z *Zone) DayKey(t time.Time) string {
	f := z.FieldsAt(t)
	return fmt.Sprintf("%04d-%02d-%02d", f.Year, int(f.Month), f.Day)
}

// StartOfDay returns the instant of local midnight on t's local date.
func (z *Zone) StartOfDay(t time.Time) time.Time {
	f := z.FieldsAt(t)
	return z.Instant(Fields{Year: f.Year, Month: f.Month, Day: f.Day})
}
