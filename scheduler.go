package loramac

import (
	"time"

	"github.com/pkg/errors"

	"github.com/loraedge/loramac/airtime"
	"github.com/loraedge/loramac/band"
)

// uplinkTX is the scheduler's decision for one transmission: channel,
// data-rate, power and the earliest legal TX instant.
type uplinkTX struct {
	channelIndex int
	channel      band.PlanChannel
	dr           int
	power        int
	txAt         time.Time
	airtime      time.Duration
}

// txAirtime returns the projected time-on-air for a PHY payload at the
// given data-rate.
func (d *Device) txAirtime(phyLen, dr int) (time.Duration, error) {
	dataRate, err := d.band.DataRate(dr)
	if err != nil {
		return 0, err
	}
	if dataRate.Modulation != band.LoRaModulation {
		// FSK rates transmit at the fixed bit-rate.
		return time.Duration(phyLen*8) * time.Second / time.Duration(dataRate.BitRate), nil
	}
	return airtime.CalculateLoRaAirtime(
		phyLen,
		dataRate.SpreadFactor,
		dataRate.Bandwidth,
		preambleLength,
		airtime.CodingRate45,
		true,
		airtime.LowDataRateOptimization(dataRate.SpreadFactor, dataRate.Bandwidth),
	)
}

// pickUplink selects (channel, dr, power, instant) for the next data
// uplink per the scheduling rules: step the data-rate down while no
// enabled channel supports it, filter by the duty-cycle ledger, and pick
// uniformly among what remains. When every candidate is duty-cycle blocked
// the earliest legal instant is returned, bounded by the caller deadline.
func (d *Device) pickUplink(deadline time.Time, macPayloadLen int) (uplinkTX, error) {
	now := d.cfg.Timer.Now()
	dr := d.sess.DR
	minDR, _ := d.band.UplinkDataRateRange()

	for {
		var candidates []int
		for i, c := range d.plan.Channels() {
			if c.Enabled && c.Frequency != 0 && dr >= c.MinDR && dr <= c.MaxDR {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) == 0 {
			if dr > minDR {
				dr--
				continue
			}
			return uplinkTX{}, ErrNoChannel
		}

		maxSize, err := d.band.MaxPayloadSize(dr)
		if err != nil {
			return uplinkTX{}, err
		}
		if macPayloadLen > maxSize.M {
			return uplinkTX{}, errors.Wrapf(ErrPayloadTooLarge, "%d > %d bytes at dr %d", macPayloadLen, maxSize.M, dr)
		}

		var legal []int
		for _, i := range candidates {
			if d.ledger.Permits(d.plan.Channels()[i].Frequency, now) {
				legal = append(legal, i)
			}
		}

		var idx int
		txAt := now
		if len(legal) > 0 {
			idx = legal[int(d.cfg.RNG.Uint32())%len(legal)]
		} else {
			// Everything is blocked: wait for the sub-band that frees
			// up first.
			earliest := time.Time{}
			for _, i := range candidates {
				t := d.ledger.EarliestTX(d.plan.Channels()[i].Frequency, now)
				if earliest.IsZero() || t.Before(earliest) {
					earliest = t
					idx = i
				}
			}
			txAt = earliest
			if !deadline.IsZero() && txAt.After(deadline) {
				return uplinkTX{}, errors.Wrapf(ErrNoAirtime, "earliest tx %s after deadline", txAt)
			}
		}

		ch := d.plan.Channels()[idx]
		power, err := d.band.TXPower(d.sess.TXPowerIndex)
		if err != nil {
			power = d.band.MaxEIRP()
		}

		toa, err := d.txAirtime(macPayloadLen+5, dr)
		if err != nil {
			return uplinkTX{}, err
		}

		return uplinkTX{
			channelIndex: idx,
			channel:      ch,
			dr:           dr,
			power:        power,
			txAt:         txAt,
			airtime:      toa,
		}, nil
	}
}

// applyADRBackOff advances the ADR back-off ladder when the device went
// ADRACKLimit + n*ADRACKDelay uplinks without hearing the network: first
// drop the TX-power override, then step the data-rate down, finally reset
// NbTrans and re-enable all channels.
func (d *Device) applyADRBackOff() {
	limit := d.band.ADRACKLimit()
	delay := d.band.ADRACKDelay()

	if d.adrAckCnt < limit+delay || (d.adrAckCnt-limit)%delay != 0 {
		return
	}

	minDR, _ := d.band.UplinkDataRateRange()
	switch {
	case d.sess.TXPowerIndex != 0:
		d.sess.TXPowerIndex = 0
	case d.sess.DR > minDR:
		d.sess.DR--
	default:
		d.sess.NbTrans = 1
		d.plan.ReactivateAll()
		d.sess.Channels = d.plan.Snapshot()
	}
}
