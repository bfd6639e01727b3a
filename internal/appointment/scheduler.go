// Package appointment arms and reports the per-identity "due instant" before
// which replies are withheld.
package appointment

import (
	"fmt"
	"time"

	"github.com/celerix-dev/celerix-companion/internal/clock"
	"github.com/celerix-dev/celerix-companion/internal/engine"
)

// nextDayMargin is added to local midnight to land safely inside the next
// local calendar day even when a DST shift shortens or lengthens today.
const nextDayMargin = 36 * time.Hour

// Schedule is a persona's daily appointment time in the configured zone.
type Schedule struct {
	Hour   int `yaml:"hour" json:"hour"`
	Minute int `yaml:"minute" json:"minute"`
}

// Validate checks the hour and minute ranges.
func (s Schedule) Validate() error {
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("hour %d out of range 0-23", s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("minute %d out of range 0-59", s.Minute)
	}
	return nil
}

func (s Schedule) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// Record is an armed appointment.
type Record struct {
	Due time.Time `json:"due"`
}

// State is an identity's appointment state relative to now.
type State int

const (
	// Idle means no appointment is armed.
	Idle State = iota
	// Locked means an appointment is armed and its due instant is ahead.
	Locked
	// Due means the armed appointment's instant has been reached.
	Due
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Due:
		return "due"
	default:
		return "idle"
	}
}

// Scheduler owns appointment records.
type Scheduler struct {
	store engine.Store[Record]
	clk   clock.Clock
	zone  *clock.Zone
}

// NewScheduler returns a scheduler over store.
func NewScheduler(store engine.Store[Record], clk clock.Clock, zone *clock.Zone) *Scheduler {
	return &Scheduler{store: store, clk: clk, zone: zone}
}

// NextDue returns the first instant strictly after now at which the local
// wall clock reads the schedule's hour and minute.
func (s *Scheduler) NextDue(sched Schedule, now time.Time) time.Time {
	today := s.zone.FieldsAt(now)
	due := s.zone.Instant(clock.Fields{
		Year: today.Year, Month: today.Month, Day: today.Day,
		Hour: sched.Hour, Minute: sched.Minute,
	})
	if due.After(now) {
		return due
	}

	// Build from the next local date's fields rather than adding 24h to
	// the wall-clock target, so an offset change is applied once.
	anchor := s.zone.StartOfDay(now)
	for !due.After(now) {
		anchor = anchor.Add(nextDayMargin)
		d := s.zone.FieldsAt(anchor)
		due = s.zone.Instant(clock.Fields{
			Year: d.Year, Month: d.Month, Day: d.Day,
			Hour: sched.Hour, Minute: sched.Minute,
		})
		anchor = s.zone.StartOfDay(anchor)
	}
	return due
}

// Arm computes the next due instant for sched and stores it for id,
// replacing any armed appointment.
func (s *Scheduler) Arm(id engine.Identity, sched Schedule) time.Time {
	due := s.NextDue(sched, s.clk.Now())
	s.store.Set(id, Record{Due: due})
	return due
}

// State reports id's appointment state and, unless idle, its due instant.
func (s *Scheduler) State(id engine.Identity) (State, time.Time) {
	rec, ok := s.store.Get(id)
	if !ok {
		return Idle, time.Time{}
	}
	if s.clk.Now().Before(rec.Due) {
		return Locked, rec.Due
	}
	return Due, rec.Due
}

// Armed reports whether id has an appointment record.
func (s *Scheduler) Armed(id engine.Identity) bool {
	_, ok := s.store.Get(id)
	return ok
}

// Clear drops id's appointment.
func (s *Scheduler) Clear(id engine.Identity) {
	s.store.Delete(id)
}
