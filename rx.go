package loramac

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/loraedge/loramac/airtime"
	"github.com/loraedge/loramac/band"
)

// preambleLength is the LoRaWAN preamble symbol count.
const preambleLength = 8

// rxWindowSymbols is the number of symbol periods the receiver listens for
// a preamble after the window opens.
const rxWindowSymbols = 12

// rfConfigForRX returns the receive configuration for a downlink window.
func (d *Device) rfConfigForRX(freq uint32, dr int) (RFConfig, error) {
	dataRate, err := d.band.DataRate(dr)
	if err != nil {
		return RFConfig{}, err
	}
	if dataRate.Modulation != band.LoRaModulation {
		return RFConfig{}, errors.Wrapf(band.ErrDataRate, "rx window at fsk dr %d", dr)
	}
	return RFConfig{
		Frequency:      freq,
		SpreadFactor:   dataRate.SpreadFactor,
		Bandwidth:      dataRate.Bandwidth,
		CodingRate:     airtime.CodingRate45,
		PreambleLength: preambleLength,
		IQInverted:     true,
		CRCOn:          false,
		PublicNetwork:  !d.cfg.PrivateNetwork,
	}, nil
}

// openRXWindow arms the radio around the absolute window instant: it wakes
// a symbol margin early and listens until the preamble-detect deadline. A
// CRC failure counts as silence.
func (d *Device) openRXWindow(ctx context.Context, cfg RFConfig, openAt time.Time) (*RXPacket, error) {
	tSym := airtime.SymbolDuration(cfg.SpreadFactor, cfg.Bandwidth)
	margin := 2 * tSym
	if margin < time.Millisecond {
		margin = time.Millisecond
	}

	if err := d.cfg.Timer.SleepUntil(ctx, openAt.Add(-margin)); err != nil {
		return nil, err
	}
	if err := d.cfg.Radio.SetConfig(cfg); err != nil {
		return nil, errors.Wrap(ErrRadioFail, err.Error())
	}

	deadline := openAt.Add(time.Duration(rxWindowSymbols) * tSym)
	pkt, err := d.cfg.Radio.RXSingle(ctx, deadline)
	if err != nil {
		switch {
		case errors.Is(err, ErrRXTimeout), errors.Is(err, ErrRXCRC):
			return nil, nil
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, errors.Wrap(ErrRadioFail, err.Error())
		}
	}
	return &pkt, nil
}

// awaitDownlink runs the two Class A receive windows following an uplink
// that ended at txEnd. RX2 opens one second after RX1. A nil packet with a
// nil error means both windows stayed silent.
func (d *Device) awaitDownlink(ctx context.Context, txEnd time.Time, rx1Delay time.Duration, rx1Freq uint32, rx1DR int, rx2Freq uint32, rx2DR int) (*RXPacket, error) {
	d.setState(StateAwaitRX1)
	rx1Cfg, err := d.rfConfigForRX(rx1Freq, rx1DR)
	if err == nil {
		pkt, err := d.openRXWindow(ctx, rx1Cfg, txEnd.Add(rx1Delay))
		if err != nil {
			return nil, err
		}
		if pkt != nil {
			return pkt, nil
		}
	} else {
		log.WithError(err).Warning("device: rx1 window configuration error")
	}

	d.setState(StateAwaitRX2)
	rx2Cfg, err := d.rfConfigForRX(rx2Freq, rx2DR)
	if err != nil {
		return nil, err
	}
	pkt, err := d.openRXWindow(ctx, rx2Cfg, txEnd.Add(rx1Delay).Add(time.Second))
	if err != nil {
		return nil, err
	}

	if pkt == nil {
		if err := d.cfg.Radio.Sleep(); err != nil {
			log.WithError(err).Warning("device: radio sleep error")
		}
	}
	return pkt, nil
}
