// Package dutycycle tracks regulatory air-time budgets: the per-sub-band
// duty-cycle ledger and the aggregated join back-off budget.
package dutycycle

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/loraedge/loramac/band"
)

// Ledger tracks, per duty-cycle sub-band, the earliest instant a new
// transmission is allowed. It also enforces the aggregated duty-cycle set
// through DutyCycleReq.
type Ledger struct {
	subBands  []band.SubBand
	nextFree  []time.Time
	maxDCycle uint8
	aggFree   time.Time
}

// NewLedger returns an empty ledger for the band's sub-bands.
func NewLedger(b band.Band) *Ledger {
	sb := b.SubBands()
	return &Ledger{
		subBands: sb,
		nextFree: make([]time.Time, len(sb)),
	}
}

// SetMaxDutyCycle installs the DutyCycleReq aggregate limit. The aggregated
// duty-cycle is 1 / 2^value; 0 removes the limit.
func (l *Ledger) SetMaxDutyCycle(v uint8) {
	l.maxDCycle = v
}

// MaxDutyCycle returns the current DutyCycleReq value.
func (l *Ledger) MaxDutyCycle() uint8 {
	return l.maxDCycle
}

func (l *Ledger) subBandIndex(freq uint32) int {
	for i, sb := range l.subBands {
		if sb.Contains(freq) {
			return i
		}
	}
	return -1
}

// EarliestTX returns the earliest legal transmission instant on the given
// frequency, which is never before now.
func (l *Ledger) EarliestTX(freq uint32, now time.Time) time.Time {
	t := now
	if i := l.subBandIndex(freq); i >= 0 && l.nextFree[i].After(t) {
		t = l.nextFree[i]
	}
	if l.aggFree.After(t) {
		t = l.aggFree
	}
	return t
}

// Permits returns true when a transmission on freq is legal at now.
func (l *Ledger) Permits(freq uint32, now time.Time) bool {
	return !l.EarliestTX(freq, now).After(now)
}

// Record books a transmission that ended at txEnd with the given time-on-air
// and computes the resulting off-times.
func (l *Ledger) Record(freq uint32, txEnd time.Time, airtime time.Duration) {
	i := l.subBandIndex(freq)
	if i >= 0 && l.subBands[i].DutyCycle < 1 {
		d := l.subBands[i].DutyCycle
		off := time.Duration(float64(airtime)*(1/d-1) + 0.5)
		l.nextFree[i] = txEnd.Add(off)
		log.WithFields(log.Fields{
			"frequency": freq,
			"airtime":   airtime,
			"next_free": l.nextFree[i],
		}).Debug("dutycycle: sub-band off-time recorded")
	}

	if l.maxDCycle > 0 {
		agg := 1 / float64(uint64(1)<<l.maxDCycle)
		off := time.Duration(float64(airtime)*(1/agg-1) + 0.5)
		l.aggFree = txEnd.Add(off)
	}
}
