// Package band implements the regional channel-plan parameters used by the
// MAC layer: data-rate tables, TX-power tables, RX1/RX2 derivation,
// duty-cycle sub-bands and the LinkADRReq channel-mask semantics.
package band

import (
	"time"

	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"
)

// Name defines the band name.
type Name string

// Supported band names.
const (
	EU868 Name = "EU868"
	US915 Name = "US915"
	AU915 Name = "AU915"
	AS923 Name = "AS923"
	CN470 Name = "CN470"
)

// PlanKind defines if the band uses a dynamic or a fixed channel-plan.
type PlanKind int

// Channel-plan kinds.
const (
	// Dynamic plans start with a small set of mandatory channels and learn
	// additional channels through the CFList and NewChannelReq.
	Dynamic PlanKind = iota

	// Fixed plans define the full channel grid up-front. Channels are only
	// (de)activated through the LinkADRReq channel-mask, never added.
	Fixed
)

// Modulation defines the modulation type.
type Modulation string

// Possible modulation types.
const (
	LoRaModulation Modulation = "LORA"
	FSKModulation  Modulation = "FSK"
)

// DataRate defines a data-rate entry from the regional data-rate table.
type DataRate struct {
	Modulation   Modulation
	SpreadFactor int
	Bandwidth    int // kHz
	BitRate      int // bits / sec, FSK only
}

// MaxPayloadSize holds the maximum MACPayload size (M) and the maximum
// application payload size in absence of FOpts (N).
type MaxPayloadSize struct {
	M int
	N int
}

// Channel defines an uplink channel of the plan.
type Channel struct {
	// Frequency is the uplink frequency in Hz.
	Frequency uint32

	// MinDR and MaxDR bound the data-rates the channel accepts.
	MinDR int
	MaxDR int
}

// SubBand groups channels that share a regulatory duty-cycle budget.
type SubBand struct {
	MinFrequency uint32
	MaxFrequency uint32

	// DutyCycle is the maximum fraction of time the sub-band may be
	// occupied. 1 means the region imposes no duty-cycle limit.
	DutyCycle float64
}

// Contains returns true when the frequency falls within the sub-band.
func (s SubBand) Contains(freq uint32) bool {
	return freq >= s.MinFrequency && freq <= s.MaxFrequency
}

// Errors returned by band lookups.
var (
	ErrDataRate        = errors.New("band: invalid data-rate")
	ErrTXPower         = errors.New("band: invalid tx-power index")
	ErrRX1DROffset     = errors.New("band: invalid rx1 data-rate offset")
	ErrFrequency       = errors.New("band: frequency outside band")
	ErrChannelIndex    = errors.New("band: invalid channel index")
	ErrChMaskCntl      = errors.New("band: invalid chmask cntl value")
	ErrCFListType      = errors.New("band: unexpected cflist type")
	ErrChannelNotFound = errors.New("band: no channel for frequency")
)

// Band defines the interface each region implements. All methods are pure:
// given identical arguments they return identical results and mutate
// nothing.
type Band interface {
	// Name returns the band name.
	Name() Name

	// Kind returns the channel-plan kind.
	Kind() PlanKind

	// DefaultChannels returns the boot channel set: the mandatory join
	// channels for dynamic plans, the full grid for fixed plans.
	DefaultChannels() []Channel

	// UplinkDataRateRange returns the lowest and highest uplink DR.
	UplinkDataRateRange() (min, max int)

	// DefaultDataRate returns the uplink DR used before any negotiation.
	DefaultDataRate() int

	// DataRate resolves a DR index to its modulation parameters.
	DataRate(dr int) (DataRate, error)

	// MaxPayloadSize returns the payload limits for the given DR, taking
	// the configured dwell-time into account.
	MaxPayloadSize(dr int) (MaxPayloadSize, error)

	// TXPower resolves a TXPower index from LinkADRReq to EIRP in dBm.
	TXPower(index int) (int, error)

	// MaxEIRP returns the default (index 0) EIRP in dBm.
	MaxEIRP() int

	// RX1DataRate returns the RX1 downlink DR for the given uplink DR and
	// RX1DROffset.
	RX1DataRate(uplinkDR, offset int) (int, error)

	// RX1Frequency returns the RX1 downlink frequency for the uplink
	// channel the frame was transmitted on.
	RX1Frequency(uplinkChannel int, uplinkFrequency uint32) uint32

	// RX2Frequency returns the default RX2 frequency.
	RX2Frequency() uint32

	// RX2DataRate returns the default RX2 DR.
	RX2DataRate() int

	// ReceiveDelay1 returns the default delay between uplink TX end and
	// the RX1 window.
	ReceiveDelay1() time.Duration

	// JoinAcceptDelay1 returns the delay between a JoinRequest TX end and
	// the RX1 window.
	JoinAcceptDelay1() time.Duration

	// JoinAcceptDelay2 returns the delay between a JoinRequest TX end and
	// the RX2 window.
	JoinAcceptDelay2() time.Duration

	// MaxFCntGap returns the maximum allowed gap when re-synchronizing the
	// 32-bit downlink frame-counter from its 16 transmitted bits.
	MaxFCntGap() uint32

	// ADRACKLimit and ADRACKDelay return the ADR back-off thresholds.
	ADRACKLimit() int
	ADRACKDelay() int

	// SubBands returns the duty-cycle sub-bands covering the band.
	SubBands() []SubBand

	// ImplementsTXParamSetup returns true when the region processes
	// TXParamSetupReq (dwell-time regions).
	ImplementsTXParamSetup() bool

	// DwellTime returns the configured uplink dwell-time limitation.
	DwellTime() lorawan.DwellTime

	// CFListType returns the CFList payload type appended to a
	// JoinAccept in this region.
	CFListType() lorawan.CFListType

	// ValidateFrequency returns nil when the frequency is inside the band
	// edges.
	ValidateFrequency(freq uint32) error
}

// GetConfig returns the band configuration for the given name.
func GetConfig(name Name, dwellTime lorawan.DwellTime) (Band, error) {
	switch name {
	case EU868:
		return newEU868Band(), nil
	case US915:
		return newUS915Band(), nil
	case AU915:
		return newAU915Band(dwellTime), nil
	case AS923:
		return newAS923Band(dwellTime), nil
	case CN470:
		return newCN470Band(), nil
	default:
		return nil, errors.Errorf("band: unknown band %s", name)
	}
}

// SubBandForFrequency returns the sub-band containing the given frequency.
func SubBandForFrequency(b Band, freq uint32) (SubBand, error) {
	for _, sb := range b.SubBands() {
		if sb.Contains(freq) {
			return sb, nil
		}
	}
	return SubBand{}, errors.Wrapf(ErrFrequency, "%d hz", freq)
}
