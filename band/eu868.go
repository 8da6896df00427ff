package band

import (
	"time"

	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"
)

type eu868Band struct{}

func newEU868Band() Band {
	return eu868Band{}
}

func (b eu868Band) Name() Name {
	return EU868
}

func (b eu868Band) Kind() PlanKind {
	return Dynamic
}

func (b eu868Band) DefaultChannels() []Channel {
	return []Channel{
		{Frequency: 868100000, MinDR: 0, MaxDR: 5},
		{Frequency: 868300000, MinDR: 0, MaxDR: 5},
		{Frequency: 868500000, MinDR: 0, MaxDR: 5},
	}
}

func (b eu868Band) UplinkDataRateRange() (int, int) {
	return 0, 7
}

func (b eu868Band) DefaultDataRate() int {
	return 0
}

func (b eu868Band) DataRate(dr int) (DataRate, error) {
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
	case 6:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 250}, nil
	case 7:
		return DataRate{Modulation: FSKModulation, BitRate: 50000}, nil
	default:
		return DataRate{}, errors.Wrapf(ErrDataRate, "dr %d", dr)
	}
}

func (b eu868Band) MaxPayloadSize(dr int) (MaxPayloadSize, error) {
	switch dr {
	case 0, 1, 2:
		return MaxPayloadSize{M: 59, N: 51}, nil
	case 3:
		return MaxPayloadSize{M: 123, N: 115}, nil
	case 4, 5, 6, 7:
		return MaxPayloadSize{M: 230, N: 222}, nil
	default:
		return MaxPayloadSize{}, errors.Wrapf(ErrDataRate, "dr %d", dr)
	}
}

func (b eu868Band) TXPower(index int) (int, error) {
	if index < 0 || index > 7 {
		return 0, errors.Wrapf(ErrTXPower, "index %d", index)
	}
	return b.MaxEIRP() - 2*index, nil
}

func (b eu868Band) MaxEIRP() int {
	return 16
}

func (b eu868Band) RX1DataRate(uplinkDR, offset int) (int, error) {
	if uplinkDR < 0 || uplinkDR > 7 {
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

func (b eu868Band) RX1Frequency(uplinkChannel int, uplinkFrequency uint32) uint32 {
	return uplinkFrequency
}

func (b eu868Band) RX2Frequency() uint32 {
	return 869525000
}

func (b eu868Band) RX2DataRate() int {
	return 0
}

func (b eu868Band) ReceiveDelay1() time.Duration {
	return time.Second
}

func (b eu868Band) JoinAcceptDelay1() time.Duration {
	return 5 * time.Second
}

func (b eu868Band) JoinAcceptDelay2() time.Duration {
	return 6 * time.Second
}

func (b eu868Band) MaxFCntGap() uint32 {
	return 16384
}

func (b eu868Band) ADRACKLimit() int {
	return 64
}

func (b eu868Band) ADRACKDelay() int {
	return 32
}

// ETSI EN 300 220 duty-cycle groups.
func (b eu868Band) SubBands() []SubBand {
	return []SubBand{
		{MinFrequency: 863000000, MaxFrequency: 865000000, DutyCycle: 0.001},
		{MinFrequency: 865000001, MaxFrequency: 868000000, DutyCycle: 0.01},
		{MinFrequency: 868000001, MaxFrequency: 868600000, DutyCycle: 0.01},
		{MinFrequency: 868700000, MaxFrequency: 869200000, DutyCycle: 0.001},
		{MinFrequency: 869400000, MaxFrequency: 869650000, DutyCycle: 0.1},
		{MinFrequency: 869700000, MaxFrequency: 870000000, DutyCycle: 0.01},
	}
}

func (b eu868Band) ImplementsTXParamSetup() bool {
	return false
}

func (b eu868Band) DwellTime() lorawan.DwellTime {
	return lorawan.DwellTimeNoLimit
}

func (b eu868Band) CFListType() lorawan.CFListType {
	return lorawan.CFListChannel
}

func (b eu868Band) ValidateFrequency(freq uint32) error {
	if freq < 863000000 || freq > 870000000 {
		return errors.Wrapf(ErrFrequency, "%d hz", freq)
	}
	return nil
}
