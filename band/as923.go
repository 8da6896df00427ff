package band

import (
	"time"

	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"
)

type as923Band struct {
	dwellTime lorawan.DwellTime
}

func newAS923Band(dwellTime lorawan.DwellTime) Band {
	return as923Band{dwellTime: dwellTime}
}

func (b as923Band) Name() Name {
	return AS923
}

func (b as923Band) Kind() PlanKind {
	return Dynamic
}

func (b as923Band) DefaultChannels() []Channel {
	minDR := 0
	if b.dwellTime == lorawan.DwellTime400ms {
		minDR = 2
	}
	return []Channel{
		{Frequency: 923200000, MinDR: minDR, MaxDR: 5},
		{Frequency: 923400000, MinDR: minDR, MaxDR: 5},
	}
}

func (b as923Band) UplinkDataRateRange() (int, int) {
	if b.dwellTime == lorawan.DwellTime400ms {
		return 2, 7
	}
	return 0, 7
}

func (b as923Band) DefaultDataRate() int {
	return 2
}

func (b as923Band) DataRate(dr int) (DataRate, error) {
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

func (b as923Band) MaxPayloadSize(dr int) (MaxPayloadSize, error) {
	if b.dwellTime == lorawan.DwellTime400ms {
		switch dr {
		case 2:
			return MaxPayloadSize{M: 19, N: 11}, nil
		case 3:
			return MaxPayloadSize{M: 61, N: 53}, nil
		case 4:
			return MaxPayloadSize{M: 133, N: 125}, nil
		case 5, 6, 7:
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
	case 4, 5, 6, 7:
		return MaxPayloadSize{M: 250, N: 242}, nil
	default:
		return MaxPayloadSize{}, errors.Wrapf(ErrDataRate, "dr %d", dr)
	}
}

func (b as923Band) TXPower(index int) (int, error) {
	if index < 0 || index > 7 {
		return 0, errors.Wrapf(ErrTXPower, "index %d", index)
	}
	return b.MaxEIRP() - 2*index, nil
}

func (b as923Band) MaxEIRP() int {
	return 16
}

// AS923 defines effective offsets -2..5: offsets 6 and 7 raise the downlink
// DR above the uplink DR.
func (b as923Band) RX1DataRate(uplinkDR, offset int) (int, error) {
	if uplinkDR < 0 || uplinkDR > 7 {
		return 0, errors.Wrapf(ErrDataRate, "dr %d", uplinkDR)
	}
	if offset < 0 || offset > 7 {
		return 0, errors.Wrapf(ErrRX1DROffset, "offset %d", offset)
	}
	effective := []int{0, 1, 2, 3, 4, 5, -1, -2}[offset]
	dr := uplinkDR - effective

	minDR := 0
	if b.dwellTime == lorawan.DwellTime400ms {
		minDR = 2
	}
	if dr < minDR {
		dr = minDR
	}
	if dr > 5 {
		dr = 5
	}
	return dr, nil
}

func (b as923Band) RX1Frequency(uplinkChannel int, uplinkFrequency uint32) uint32 {
	return uplinkFrequency
}

func (b as923Band) RX2Frequency() uint32 {
	return 923200000
}

func (b as923Band) RX2DataRate() int {
	return 2
}

func (b as923Band) ReceiveDelay1() time.Duration {
	return time.Second
}

func (b as923Band) JoinAcceptDelay1() time.Duration {
	return 5 * time.Second
}

func (b as923Band) JoinAcceptDelay2() time.Duration {
	return 6 * time.Second
}

func (b as923Band) MaxFCntGap() uint32 {
	return 16384
}

func (b as923Band) ADRACKLimit() int {
	return 64
}

func (b as923Band) ADRACKDelay() int {
	return 32
}

func (b as923Band) SubBands() []SubBand {
	return []SubBand{
		{MinFrequency: 915000000, MaxFrequency: 928000000, DutyCycle: 0.01},
	}
}

func (b as923Band) ImplementsTXParamSetup() bool {
	return true
}

func (b as923Band) DwellTime() lorawan.DwellTime {
	return b.dwellTime
}

func (b as923Band) CFListType() lorawan.CFListType {
	return lorawan.CFListChannel
}

func (b as923Band) ValidateFrequency(freq uint32) error {
	if freq < 915000000 || freq > 928000000 {
		return errors.Wrapf(ErrFrequency, "%d hz", freq)
	}
	return nil
}
