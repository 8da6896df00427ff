package band

import (
	"time"

	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"
)

type cn470Band struct{}

func newCN470Band() Band {
	return cn470Band{}
}

func (b cn470Band) Name() Name {
	return CN470
}

func (b cn470Band) Kind() PlanKind {
	return Fixed
}

// 96 uplink channels: 470.3 + n * 0.2 MHz.
func (b cn470Band) DefaultChannels() []Channel {
	out := make([]Channel, 0, 96)
	for i := 0; i < 96; i++ {
		out = append(out, Channel{
			Frequency: 470300000 + uint32(i)*200000,
			MinDR:     0,
			MaxDR:     5,
		})
	}
	return out
}

func (b cn470Band) UplinkDataRateRange() (int, int) {
	return 0, 5
}

func (b cn470Band) DefaultDataRate() int {
	return 0
}

func (b cn470Band) DataRate(dr int) (DataRate, error) {
	switch dr {
	case 0:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 12, Bandwidth: 125}, nil
	case 1:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 11, Bandwidth: 125}, nil
	case 2:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 10, Bandwidth: 125}, nil
	case 3:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 9, Bandwidth: 125}, nil
	case 4:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 125}, nil
	case 5:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 125}, nil
	default:
		return DataRate{}, errors.Wrapf(ErrDataRate, "dr %d", dr)
	}
}

func (b cn470Band) MaxPayloadSize(dr int) (MaxPayloadSize, error) {
	switch dr {
	case 0, 1, 2:
		return MaxPayloadSize{M: 59, N: 51}, nil
	case 3:
		return MaxPayloadSize{M: 123, N: 115}, nil
	case 4, 5:
		return MaxPayloadSize{M: 250, N: 242}, nil
	default:
		return MaxPayloadSize{}, errors.Wrapf(ErrDataRate, "dr %d", dr)
	}
}

func (b cn470Band) TXPower(index int) (int, error) {
	if index < 0 || index > 7 {
		return 0, errors.Wrapf(ErrTXPower, "index %d", index)
	}
	return b.MaxEIRP() - 2*index, nil
}

func (b cn470Band) MaxEIRP() int {
	return 19
}

func (b cn470Band) RX1DataRate(uplinkDR, offset int) (int, error) {
	if uplinkDR < 0 || uplinkDR > 5 {
		return 0, errors.Wrapf(ErrDataRate, "dr %d", uplinkDR)
	}
	if offset < 0 || offset > 5 {
		return 0, errors.Wrapf(ErrRX1DROffset, "offset %d", offset)
	}
	dr := uplinkDR - offset
	if dr < 0 {
		dr = 0
	}
	return dr, nil
}

// 48 downlink channels: 500.3 + n * 0.2 MHz, selected by uplink channel
// modulo 48.
func (b cn470Band) RX1Frequency(uplinkChannel int, uplinkFrequency uint32) uint32 {
	return 500300000 + uint32(uplinkChannel%48)*200000
}

func (b cn470Band) RX2Frequency() uint32 {
	return 505300000
}

func (b cn470Band) RX2DataRate() int {
	return 0
}

func (b cn470Band) ReceiveDelay1() time.Duration {
	return time.Second
}

func (b cn470Band) JoinAcceptDelay1() time.Duration {
	return 5 * time.Second
}

func (b cn470Band) JoinAcceptDelay2() time.Duration {
	return 6 * time.Second
}

func (b cn470Band) MaxFCntGap() uint32 {
	return 16384
}

func (b cn470Band) ADRACKLimit() int {
	return 64
}

func (b cn470Band) ADRACKDelay() int {
	return 32
}

func (b cn470Band) SubBands() []SubBand {
	return []SubBand{
		{MinFrequency: 470000000, MaxFrequency: 510000000, DutyCycle: 1},
	}
}

func (b cn470Band) ImplementsTXParamSetup() bool {
	return false
}

func (b cn470Band) DwellTime() lorawan.DwellTime {
	return lorawan.DwellTimeNoLimit
}

func (b cn470Band) CFListType() lorawan.CFListType {
	return lorawan.CFListChannelMask
}

func (b cn470Band) ValidateFrequency(freq uint32) error {
	if freq < 470000000 || freq > 510000000 {
		return errors.Wrapf(ErrFrequency, "%d hz", freq)
	}
	return nil
}
