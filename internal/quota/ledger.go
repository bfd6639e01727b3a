// Package quota tracks how many messages each identity has consumed on the
// current local day.
package quota

import (
	"github.com/celerix-dev/celerix-companion/internal/clock"
	"github.com/celerix-dev/celerix-companion/internal/engine"
)

// DefaultDailyLimit is the per-identity message budget for one local day.
const DefaultDailyLimit = 30

// Record is the consumption counter for one local day.
// Consumed may exceed the limit; readers clamp.
type Record struct {
	DayKey   string `json:"day_key"`
	Consumed int    `json:"consumed"`
}

// Ledger reports and consumes daily quota. Day boundaries follow the
// configured zone.
type Ledger struct {
	store engine.Store[Record]
	clk   clock.Clock
	zone  *clock.Zone
	limit int
}

// NewLedger returns a ledger over store. A non-positive limit selects
// DefaultDailyLimit.
func NewLedger(store engine.Store[Record], clk clock.Clock, zone *clock.Zone, limit int) *Ledger {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &Ledger{store: store, clk: clk, zone: zone, limit: limit}
}

// Limit returns the daily budget.
func (l *Ledger) Limit() int { return l.limit }

// Remaining returns the identity's unused budget for today. A record from a
// previous day is replaced by a fresh one; the count is never changed.
func (l *Ledger) Remaining(id engine.Identity) int {
	today := l.zone.DayKey(l.clk.Now())
	rec := l.store.Update(id, func(cur Record, ok bool) Record {
		if !ok || cur.DayKey != today {
			return Record{DayKey: today}
		}
		return cur
	})
	return l.clamp(rec.Consumed)
}

// Consume records one message for today and returns the budget left after it.
func (l *Ledger) Consume(id engine.Identity) int {
	today := l.zone.DayKey(l.clk.Now())
	rec := l.store.Update(id, func(cur Record, ok bool) Record {
		if !ok || cur.DayKey != today {
			return Record{DayKey: today, Consumed: 1}
		}
		cur.Consumed++
		return cur
	})
	return l.clamp(rec.Consumed)
}

func (l *Ledger) clamp(consumed int) int {
	left := l.limit - consumed
	if left < 0 {
		return 0
	}
	if left > l.limit {
		return l.limit
	}
	return left
}
