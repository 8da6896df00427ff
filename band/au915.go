package band

import (
	"time"

	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"
)

type au915Band struct {
	dwellTime lorawan.DwellTime
}

func newAU915Band(dwellTime lorawan.DwellTime) Band {
	return au915Band{dwellTime: dwellTime}
}

func (b au915Band) Name() Name {
	return AU915
}

func (b au915Band) Kind() PlanKind {
	return Fixed
}

// 64 125 kHz channels (915.2 + n * 0.2 MHz) followed by 8 500 kHz channels
// (915.9 + n * 1.6 MHz, DR6).
func (b au915Band) DefaultChannels() []Channel {
	minDR := 0
	if b.dwellTime == lorawan.DwellTime400ms {
		minDR = 2
	}
	out := make([]Channel, 0, 72)
	for i := 0; i < 64; i++ {
		out = append(out, Channel{
			Frequency: 915200000 + uint32(i)*200000,
			MinDR:     minDR,
			MaxDR:     5,
		})
	}
	for i := 0; i < 8; i++ {
		out = append(out, Channel{
			Frequency: 915900000 + uint32(i)*1600000,
			MinDR:     6,
			MaxDR:     6,
		})
	}
	return out
}

func (b au915Band) UplinkDataRateRange() (int, int) {
	if b.dwellTime == lorawan.DwellTime400ms {
		return 2, 6
	}
	return 0, 6
}

func (b au915Band) DefaultDataRate() int {
	if b.dwellTime == lorawan.DwellTime400ms {
		return 2
	}
	return 0
}

func (b au915Band) DataRate(dr int) (DataRate, error) {
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

func (b au915Band) MaxPayloadSize(dr int) (MaxPayloadSize, error) {
	if b.dwellTime == lorawan.DwellTime400ms {
		switch dr {
		case 2:
			return MaxPayloadSize{M: 19, N: 11}, nil
		case 3:
			return MaxPayloadSize{M: 61, N: 53}, nil
		case 4:
			return MaxPayloadSize{M: 133, N: 125}, nil
		case 5, 6:
			return MaxPayloadSize{M: 250, N: 242}, nil
		default:
			return MaxPayloadSize{}, errors.Wrapf(ErrDataRate, "dr %d", dr)
		}
	}

	switch dr {
	case 0, 1, 2:
		return MaxPayloadSize{M: 59, N: 51}, nil
	case 3:
		return MaxPayloadSize{M: 123, N: 115}, nil
	case 4, 5, 6:
		return MaxPayloadSize{M: 250, N: 242}, nil
	default:
		return MaxPayloadSize{}, errors.Wrapf(ErrDataRate, "dr %d", dr)
	}
}

func (b au915Band) TXPower(index int) (int, error) {
	if index < 0 || index > 14 {
		return 0, errors.Wrapf(ErrTXPower, "index %d", index)
	}
	return b.MaxEIRP() - 2*index, nil
}

func (b au915Band) MaxEIRP() int {
	return 30
}

func (b au915Band) RX1DataRate(uplinkDR, offset int) (int, error) {
	if offset < 0 || offset > 5 {
		return 0, errors.Wrapf(ErrRX1DROffset, "offset %d", offset)
	}
	if uplinkDR < 0 || uplinkDR > 6 {
		return 0, errors.Wrapf(ErrDataRate, "dr %d", uplinkDR)
	}
	dr := 8 + uplinkDR - offset
	if dr < 8 {
		dr = 8
	}
	if dr > 13 {
		dr = 13
	}
	return dr, nil
}

func (b au915Band) RX1Frequency(uplinkChannel int, uplinkFrequency uint32) uint32 {
	return 923300000 + uint32(uplinkChannel%8)*600000
}

func (b au915Band) RX2Frequency() uint32 {
	return 923300000
}

func (b au915Band) RX2DataRate() int {
	return 8
}

func (b au915Band) ReceiveDelay1() time.Duration {
	return time.Second
}

func (b au915Band) JoinAcceptDelay1() time.Duration {
	return 5 * time.Second
}

func (b au915Band) JoinAcceptDelay2() time.Duration {
	return 6 * time.Second
}

func (b au915Band) MaxFCntGap() uint32 {
	return 16384
}

func (b au915Band) ADRACKLimit() int {
	return 64
}

func (b au915Band) ADRACKDelay() int {
	return 32
}

func (b au915Band) SubBands() []SubBand {
	return []SubBand{
		{MinFrequency: 915000000, MaxFrequency: 928000000, DutyCycle: 1},
	}
}

func (b au915Band) ImplementsTXParamSetup() bool {
	return true
}

func (b au915Band) DwellTime() lorawan.DwellTime {
	return b.dwellTime
}

func (b au915Band) CFListType() lorawan.CFListType {
	return lorawan.CFListChannelMask
}

func (b au915Band) ValidateFrequency(freq uint32) error {
	if freq < 915000000 || freq > 928000000 {
		return errors.Wrapf(ErrFrequency, "%d hz", freq)
	}
	return nil
}
