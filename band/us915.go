package band

import (
	"time"

	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"
)

type us915Band struct{}

func newUS915Band() Band {
	return us915Band{}
}

func (b us915Band) Name() Name {
	return US915
}

func (b us915Band) Kind() PlanKind {
	return Fixed
}

// 64 125 kHz channels (902.3 + n * 0.2 MHz, DR0-3) followed by 8 500 kHz
// channels (903.0 + n * 1.6 MHz, DR4).
func (b us915Band) DefaultChannels() []Channel {
	out := make([]Channel, 0, 72)
	for i := 0; i < 64; i++ {
		out = append(out, Channel{
			Frequency: 902300000 + uint32(i)*200000,
			MinDR:     0,
			MaxDR:     3,
		})
	}
	for i := 0; i < 8; i++ {
		out = append(out, Channel{
			Frequency: 903000000 + uint32(i)*1600000,
			MinDR:     4,
			MaxDR:     4,
		})
	}
	return out
}

func (b us915Band) UplinkDataRateRange() (int, int) {
	return 0, 4
}

func (b us915Band) DefaultDataRate() int {
	return 0
}

func (b us915Band) DataRate(dr int) (DataRate, error) {
	switch dr {
	case 0:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 10, Bandwidth: 125}, nil
	case 1:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 9, Bandwidth: 125}, nil
	case 2:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 125}, nil
	case 3:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 125}, nil
	case 4:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 500}, nil
	case 8:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 12, Bandwidth: 500}, nil
	case 9:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 11, Bandwidth: 500}, nil
	case 10:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 10, Bandwidth: 500}, nil
	case 11:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 9, Bandwidth: 500}, nil
	case 12:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 500}, nil
	case 13:
		return DataRate{Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 500}, nil
	default:
		return DataRate{}, errors.Wrapf(ErrDataRate, "dr %d", dr)
	}
}

func (b us915Band) MaxPayloadSize(dr int) (MaxPayloadSize, error) {
	switch dr {
	case 0:
		return MaxPayloadSize{M: 19, N: 11}, nil
	case 1:
		return MaxPayloadSize{M: 61, N: 53}, nil
	case 2:
		return MaxPayloadSize{M: 133, N: 125}, nil
	case 3, 4:
		return MaxPayloadSize{M: 250, N: 242}, nil
	default:
		return MaxPayloadSize{}, errors.Wrapf(ErrDataRate, "dr %d", dr)
	}
}

func (b us915Band) TXPower(index int) (int, error) {
	if index < 0 || index > 14 {
		return 0, errors.Wrapf(ErrTXPower, "index %d", index)
	}
	return b.MaxEIRP() - 2*index, nil
}

func (b us915Band) MaxEIRP() int {
	return 30
}

func (b us915Band) RX1DataRate(uplinkDR, offset int) (int, error) {
	if offset < 0 || offset > 3 {
		return 0, errors.Wrapf(ErrRX1DROffset, "offset %d", offset)
	}
	matrix := [5][4]int{
		{10, 9, 8, 8},
		{11, 10, 9, 8},
		{12, 11, 10, 9},
		{13, 12, 11, 10},
		{13, 13, 12, 11},
	}
	if uplinkDR < 0 || uplinkDR > 4 {
		return 0, errors.Wrapf(ErrDataRate, "dr %d", uplinkDR)
	}
	return matrix[uplinkDR][offset], nil
}

// RX1 uses one of the 8 downlink channels (923.3 + n * 0.6 MHz), selected by
// uplink channel modulo 8.
func (b us915Band) RX1Frequency(uplinkChannel int, uplinkFrequency uint32) uint32 {
	return 923300000 + uint32(uplinkChannel%8)*600000
}

func (b us915Band) RX2Frequency() uint32 {
	return 923300000
}

func (b us915Band) RX2DataRate() int {
	return 8
}

func (b us915Band) ReceiveDelay1() time.Duration {
	return time.Second
}

func (b us915Band) JoinAcceptDelay1() time.Duration {
	return 5 * time.Second
}

func (b us915Band) JoinAcceptDelay2() time.Duration {
	return 6 * time.Second
}

func (b us915Band) MaxFCntGap() uint32 {
	return 16384
}

func (b us915Band) ADRACKLimit() int {
	return 64
}

func (b us915Band) ADRACKDelay() int {
	return 32
}

// FCC part 15 imposes no duty-cycle limit.
func (b us915Band) SubBands() []SubBand {
	return []SubBand{
		{MinFrequency: 902000000, MaxFrequency: 928000000, DutyCycle: 1},
	}
}

func (b us915Band) ImplementsTXParamSetup() bool {
	return false
}

func (b us915Band) DwellTime() lorawan.DwellTime {
	return lorawan.DwellTimeNoLimit
}

func (b us915Band) CFListType() lorawan.CFListType {
	return lorawan.CFListChannelMask
}

func (b us915Band) ValidateFrequency(freq uint32) error {
	if freq < 902000000 || freq > 928000000 {
		return errors.Wrapf(ErrFrequency, "%d hz", freq)
	}
	return nil
}
