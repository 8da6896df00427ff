package loramac

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/loraedge/loramac/airtime"
)

// RFConfig is the radio configuration for one transmission or receive
// window.
type RFConfig struct {
	// Frequency in Hz.
	Frequency uint32

	SpreadFactor int
	Bandwidth    int // kHz
	CodingRate   airtime.CodingRate

	PreambleLength int

	// IQInverted is set for downlink reception per LoRaWAN convention.
	IQInverted bool

	// CRCOn enables the PHY CRC; uplinks carry one, downlinks do not.
	CRCOn bool

	// PublicNetwork selects the 0x34 sync word.
	PublicNetwork bool

	// TXPower is the transmit EIRP in dBm. Ignored for reception.
	TXPower int
}

// RXPacket is a frame delivered by the radio.
type RXPacket struct {
	Bytes []byte
	RSSI  int
	SNR   float64
}

// Errors returned by Radio implementations.
var (
	// ErrRXTimeout indicates no preamble was detected before the
	// deadline.
	ErrRXTimeout = errors.New("loramac: rx timeout")

	// ErrRXCRC indicates a frame was received with an invalid CRC. The
	// engine treats it as silence for window accounting.
	ErrRXCRC = errors.New("loramac: rx crc error")
)

// Radio is the driver contract for a single half-duplex LoRa radio. The
// engine owns the radio exclusively while an operation is outstanding.
type Radio interface {
	// SetConfig applies the RF configuration for the next TX or RXSingle.
	SetConfig(cfg RFConfig) error

	// TX transmits the payload and returns the TX-end timestamp, taken
	// from hardware where available.
	TX(ctx context.Context, payload []byte) (time.Time, error)

	// RXSingle listens for a single frame. The deadline bounds preamble
	// detection; a frame whose preamble was detected in time is received
	// to completion. Returns ErrRXTimeout or ErrRXCRC (possibly wrapped)
	// on the corresponding conditions.
	RXSingle(ctx context.Context, deadline time.Time) (RXPacket, error)

	// Sleep puts the radio in its lowest-power state.
	Sleep() error
}

// Timer is the monotonic clock contract. Resolution must be 1 ms or
// better; drift must stay below the region symbol time over a single
// RX-delay window.
type Timer interface {
	Now() time.Time

	// SleepUntil returns at t, or earlier with the context error when the
	// context is cancelled.
	SleepUntil(ctx context.Context, t time.Time) error
}

// RNG is the randomness source for channel selection and retry jitter. It
// does not need to be cryptographic.
type RNG interface {
	Uint32() uint32
}

// Storage is the non-volatile key-value contract. Writes must be atomic
// per key; the engine uses distinct keys for the identity, the session and
// the DevNonce counter.
type Storage interface {
	Load(key string) ([]byte, error)
	Store(key string, value []byte) error
	Delete(key string) error
}
