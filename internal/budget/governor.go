// Package budget implements the cost governor: admission control for metered
// completion calls against a rolling daily spend ceiling.
package budget

import (
	"log"
	"sync"
	"time"

	"github.com/optilist/optilist/internal/config"
	"github.com/optilist/optilist/pkg/models"
)

// costEpsilon absorbs float accumulation error when comparing running spend
// against a ceiling.
const costEpsilon = 1e-9

// dayKeyFormat keys ledger days in the governor's configured timezone.
const dayKeyFormat = "2006-01-02"

// Sink receives finalized ledger entries for persistence. Writes are
// fire-and-forget from the governor's perspective; the sink is responsible
// for at-least-once delivery.
type Sink interface {
	AppendLedgerEntry(entry models.LedgerEntry)
}

// Alert describes one threshold crossing of the daily ceiling.
type Alert struct {
	// Threshold is the configured fraction that was crossed (e.g. 0.80).
	Threshold float64
	// Spend is the committed spend at the time the alert fired.
	Spend float64
	// Ceiling is the daily ceiling.
	Ceiling float64
	// At is when the alert fired.
	At time.Time
}

// AlertFunc is called when a spend threshold is crossed. It fires at most
// once per threshold per day.
type AlertFunc func(Alert)

// Hold is a provisional reservation against the daily ceiling, created by a
// successful Authorize and settled by Record. Holding the reservation at
// authorization time is what prevents concurrently-authorizing agents from
// collectively overspending the ceiling.
type Hold struct {
	agentID      string
	estimated    float64
	day          string
	authorizedAt time.Time
	settled      bool
}

// EstimatedCost returns the amount reserved by this hold.
func (h *Hold) EstimatedCost() float64 {
	return h.estimated
}

// Governor enforces the per-call and daily spend ceilings. Authorization and
// reservation are a single atomic operation under one mutex.
type Governor struct {
	mu sync.Mutex

	dailyCeiling   float64
	perCallCeiling float64
	thresholds     []float64
	loc            *time.Location

	// now is the clock, replaceable in tests.
	now func() time.Time

	// day is the current ledger day key in loc.
	day string
	// committed is the finalized spend for the current day.
	committed float64
	// held is the sum of outstanding holds for the current day.
	held float64
	// fired tracks which thresholds have alerted today.
	fired map[float64]bool

	// entries is the in-process append-only ledger.
	entries []models.LedgerEntry

	sink    Sink
	onAlert AlertFunc
}

// NewGovernor creates a cost governor from budget configuration.
// An invalid timezone falls back to UTC; Validate on the config catches that
// earlier in normal startup.
func NewGovernor(cfg config.BudgetConfig) *Governor {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}

	g := &Governor{
		dailyCeiling:   cfg.DailyCeiling,
		perCallCeiling: cfg.PerCallCeiling,
		thresholds:     append([]float64(nil), cfg.AlertThresholds...),
		loc:            loc,
		now:            time.Now,
		fired:          make(map[float64]bool),
	}
	g.day = g.now().In(loc).Format(dayKeyFormat)
	return g
}

// SetSink attaches a persistence sink for ledger entries.
func (g *Governor) SetSink(sink Sink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sink = sink
}

// SetAlertFunc replaces the default (log-only) threshold alert handler.
func (g *Governor) SetAlertFunc(fn AlertFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onAlert = fn
}

// setClock replaces the governor's clock (for tests).
func (g *Governor) setClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
	g.rollDayLocked()
}

// Authorize decides whether a metered call with the given estimated cost may
// proceed. On acceptance it immediately reserves the estimate against the
// daily ceiling and returns a hold the caller must settle with Record.
// Rejection is a normal outcome, not an error: the caller degrades to a
// non-metered fallback path.
func (g *Governor) Authorize(estimatedCost float64, agentID string) (*Hold, bool) {
	g.mu.Lock()

	g.rollDayLocked()
	now := g.now()

	accepted := estimatedCost <= g.perCallCeiling+costEpsilon &&
		g.committed+g.held+estimatedCost <= g.dailyCeiling+costEpsilon

	if !accepted {
		entry := models.LedgerEntry{
			Timestamp:     now,
			AgentID:       agentID,
			EstimatedCost: estimatedCost,
			Accepted:      false,
		}
		sink := g.appendEntryLocked(entry)
		g.mu.Unlock()
		forwardEntry(sink, entry)
		return nil, false
	}

	g.held += estimatedCost
	hold := &Hold{
		agentID:      agentID,
		estimated:    estimatedCost,
		day:          g.day,
		authorizedAt: now,
	}
	g.mu.Unlock()
	return hold, true
}

// Record settles a hold with the actual cost reported by the provider,
// converting the provisional reservation into committed spend and appending
// the finalized ledger entry. The actual cost may differ from the estimate.
// Recording the same hold twice is a no-op.
//
// A hold authorized before a daily reset settles against the old day's
// ledger: it releases nothing from and commits nothing to the new day.
func (g *Governor) Record(hold *Hold, actualCost float64, model string) {
	if hold == nil {
		return
	}

	g.mu.Lock()

	if hold.settled {
		g.mu.Unlock()
		return
	}
	hold.settled = true

	g.rollDayLocked()

	if hold.day == g.day {
		g.held -= hold.estimated
		if g.held < 0 {
			g.held = 0
		}
		g.committed += actualCost
	}

	actual := actualCost
	entry := models.LedgerEntry{
		Timestamp:     hold.authorizedAt,
		AgentID:       hold.agentID,
		Model:         model,
		EstimatedCost: hold.estimated,
		ActualCost:    &actual,
		Accepted:      true,
	}
	sink := g.appendEntryLocked(entry)

	g.checkThresholdsLocked()
	g.mu.Unlock()

	forwardEntry(sink, entry)
}

// RemainingDailyBudget returns how much of the daily ceiling is neither
// committed nor held.
func (g *Governor) RemainingDailyBudget() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDayLocked()

	remaining := g.dailyCeiling - g.committed - g.held
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SpendToday returns the committed spend for the current day.
func (g *Governor) SpendToday() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDayLocked()
	return g.committed
}

// PerCallCeiling returns the configured per-call ceiling.
func (g *Governor) PerCallCeiling() float64 {
	return g.perCallCeiling
}

// DailyCeiling returns the configured daily ceiling.
func (g *Governor) DailyCeiling() float64 {
	return g.dailyCeiling
}

// Entries returns a copy of the ledger entries recorded by this process.
func (g *Governor) Entries() []models.LedgerEntry {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]models.LedgerEntry(nil), g.entries...)
}

// rollDayLocked resets the daily counters when the wall clock crosses
// midnight in the configured timezone. Must be called with the lock held.
// Outstanding holds belong to the day they were authorized in, so held
// resets along with committed spend.
func (g *Governor) rollDayLocked() {
	key := g.now().In(g.loc).Format(dayKeyFormat)
	if key == g.day {
		return
	}

	log.Printf("[budget] daily ledger rolled over from %s to %s (spend was $%.4f)", g.day, key, g.committed)

	g.day = key
	g.committed = 0
	g.held = 0
	g.fired = make(map[float64]bool)
}

// appendEntryLocked appends to the in-process ledger and returns the sink
// the caller must forward the entry to after releasing the lock. Forwarding
// outside the lock keeps authorization latency independent of how slowly the
// sink accepts writes. Must be called with the lock held.
func (g *Governor) appendEntryLocked(entry models.LedgerEntry) Sink {
	g.entries = append(g.entries, entry)
	return g.sink
}

// forwardEntry hands one finalized entry to the sink, if any. Called without
// the governor lock held.
func forwardEntry(sink Sink, entry models.LedgerEntry) {
	if sink != nil {
		sink.AppendLedgerEntry(entry)
	}
}

// checkThresholdsLocked fires each configured alert threshold at most once
// per day, based on committed spend. Must be called with the lock held.
func (g *Governor) checkThresholdsLocked() {
	if g.dailyCeiling <= 0 {
		return
	}

	fraction := g.committed / g.dailyCeiling
	for _, th := range g.thresholds {
		if g.fired[th] || fraction+costEpsilon < th {
			continue
		}
		g.fired[th] = true

		alert := Alert{
			Threshold: th,
			Spend:     g.committed,
			Ceiling:   g.dailyCeiling,
			At:        g.now(),
		}
		if g.onAlert != nil {
			g.onAlert(alert)
		} else {
			log.Printf("[budget] ALERT: daily spend $%.4f crossed %.0f%% of ceiling $%.2f",
				alert.Spend, th*100, alert.Ceiling)
		}
	}
}
