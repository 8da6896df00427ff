package loramac

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/loraedge/loramac/airtime"
	"github.com/loraedge/loramac/band"
)

// Downlink is application data received in a receive window.
type Downlink struct {
	Port  uint8
	Bytes []byte
}

// SendOutcome is the terminal result of one Send call.
type SendOutcome struct {
	// ACK reports, for a confirmed uplink, whether the network
	// acknowledged it before NbTrans transmissions were exhausted.
	ACK bool

	// Downlink carries application data received in one of the windows,
	// nil otherwise.
	Downlink *Downlink

	// LinkStats holds the signal quality of the received downlink.
	LinkStats *RXQuality
}

// Send transmits one uplink on FPort 1..223 and runs the Class A receive
// windows. Confirmed uplinks are retransmitted up to NbTrans times until
// acknowledged; the frame-counter advances on every transmission. The
// context deadline bounds duty-cycle waits.
func (d *Device) Send(ctx context.Context, port uint8, data []byte, confirmed bool) (SendOutcome, error) {
	if port < 1 || port > 223 {
		return SendOutcome{}, errors.Wrapf(ErrInvalidPort, "port %d", port)
	}
	if !d.mu.TryLock() {
		return SendOutcome{}, ErrBusy
	}
	defer d.mu.Unlock()

	if d.sess == nil {
		return SendOutcome{}, ErrNotJoined
	}
	if d.sess.FCntUp == math.MaxUint32 {
		return SendOutcome{}, ErrFCntUpExhausted
	}

	if d.sess.ADR {
		d.adrAckCnt++
		d.applyADRBackOff()
	}

	deadline, _ := ctx.Deadline()
	transmissions := int(d.sess.NbTrans)
	if transmissions < 1 {
		transmissions = 1
	}

	var outcome SendOutcome
	for attempt := 0; attempt < transmissions; attempt++ {
		if attempt > 0 {
			d.setState(StateRetrying)
			// Jitter 1..2 s between retransmissions.
			pause := time.Second + time.Duration(d.cfg.RNG.Uint32()%1000)*time.Millisecond
			if err := d.cfg.Timer.SleepUntil(ctx, d.cfg.Timer.Now().Add(pause)); err != nil {
				return outcome, err
			}
		}

		phy, err := d.buildDataUplink(port, data, confirmed)
		if err != nil {
			return outcome, err
		}
		payload, err := phy.MarshalBinary()
		if err != nil {
			return outcome, errors.Wrap(err, "marshal uplink error")
		}

		pick, err := d.pickUplink(deadline, len(payload)-5)
		if err != nil {
			return outcome, err
		}
		if pick.txAt.After(d.cfg.Timer.Now()) {
			if err := d.cfg.Timer.SleepUntil(ctx, pick.txAt); err != nil {
				// Cancelled before anything went on air: counters
				// untouched.
				return outcome, err
			}
		}

		// The counter of this transmission is consumed and made durable
		// before the frame can possibly reach the air.
		fCnt := d.sess.FCntUp
		d.sess.FCntUp++
		if err := d.store.Persist(*d.sess, false); err != nil {
			d.sess.FCntUp--
			return outcome, errors.Wrap(ErrPersistence, err.Error())
		}

		txEnd, err := d.transmit(ctx, pick.channel.Frequency, pick.dr, pick.power, payload)
		if err != nil {
			// The frame never went on air; give the counter back.
			d.sess.FCntUp--
			return outcome, err
		}
		d.ledger.Record(pick.channel.Frequency, txEnd, pick.airtime)
		d.queue.UplinkSent()
		d.ackPending = false

		log.WithFields(log.Fields{
			"dev_addr":  d.sess.DevAddr,
			"fcnt_up":   fCnt,
			"frequency": pick.channel.Frequency,
			"dr":        pick.dr,
			"confirmed": confirmed,
			"attempt":   attempt + 1,
		}).Info("device: uplink transmitted")

		rx1Freq, err := d.plan.DownlinkFrequency(pick.channelIndex)
		if err != nil {
			rx1Freq = d.band.RX1Frequency(pick.channelIndex, pick.channel.Frequency)
		}
		rx1DR, err := d.band.RX1DataRate(pick.dr, int(d.sess.RX1DROffset))
		if err != nil {
			rx1DR = d.sess.RX2DataRate
		}

		pkt, err := d.awaitDownlink(ctx, txEnd, time.Duration(d.sess.RX1Delay)*time.Second,
			rx1Freq, rx1DR, d.sess.RX2Frequency, d.sess.RX2DataRate)
		if err != nil {
			return outcome, err
		}

		if pkt != nil {
			d.setState(StateProcessingDownlink)
			if res, ok := d.processDownlink(pkt); ok {
				outcome.LinkStats = &RXQuality{RSSI: pkt.RSSI, SNR: pkt.SNR}
				if res.hasData {
					outcome.Downlink = &Downlink{Port: res.port, Bytes: res.data}
				}
				if confirmed {
					outcome.ACK = res.ack
					if !res.ack {
						d.setState(StateIdle)
						continue
					}
				}
				d.setState(StateIdle)
				return outcome, nil
			}
		}
		d.setState(StateIdle)
	}

	// NbTrans exhausted. For a confirmed uplink this is the distinct
	// "no acknowledgement" outcome, not an error.
	return outcome, nil
}

// transmit configures the radio and sends one frame, returning the TX-end
// timestamp.
func (d *Device) transmit(ctx context.Context, freq uint32, dr int, power int, payload []byte) (time.Time, error) {
	dataRate, err := d.band.DataRate(dr)
	if err != nil {
		return time.Time{}, err
	}
	if dataRate.Modulation != band.LoRaModulation {
		return time.Time{}, errors.Wrapf(band.ErrDataRate, "tx at fsk dr %d", dr)
	}

	d.setState(StateTXPending)
	cfg := RFConfig{
		Frequency:      freq,
		SpreadFactor:   dataRate.SpreadFactor,
		Bandwidth:      dataRate.Bandwidth,
		CodingRate:     airtime.CodingRate45,
		PreambleLength: preambleLength,
		IQInverted:     false,
		CRCOn:          true,
		PublicNetwork:  !d.cfg.PrivateNetwork,
		TXPower:        power,
	}
	if err := d.cfg.Radio.SetConfig(cfg); err != nil {
		return time.Time{}, errors.Wrap(ErrRadioFail, err.Error())
	}

	txEnd, err := d.cfg.Radio.TX(ctx, payload)
	if err != nil {
		if ctx.Err() != nil {
			return time.Time{}, ctx.Err()
		}
		return time.Time{}, errors.Wrap(ErrRadioFail, err.Error())
	}
	return txEnd, nil
}
