package loramac

import (
	"github.com/pkg/errors"

	"github.com/loraedge/loramac/internal/session"
)

// Configuration errors: returned immediately, no radio action taken.
var (
	// ErrNotJoined is returned by Send without an established session.
	ErrNotJoined = errors.New("loramac: not joined")

	// ErrPayloadTooLarge is returned when the payload does not fit the
	// maximum size of the selected data-rate.
	ErrPayloadTooLarge = errors.New("loramac: payload too large")

	// ErrNoChannel is returned when no enabled channel supports any
	// usable data-rate.
	ErrNoChannel = errors.New("loramac: no valid channel")

	// ErrInvalidPort is returned for an FPort outside 1..223.
	ErrInvalidPort = errors.New("loramac: invalid fport")

	// ErrBusy is returned when another MAC operation is outstanding.
	ErrBusy = errors.New("loramac: operation in progress")
)

// Transport errors: retrying is the caller's choice.
var (
	// ErrNoJoinAccept is returned when a join attempt received no valid
	// JoinAccept in either receive window.
	ErrNoJoinAccept = errors.New("loramac: no join-accept received")

	// ErrNoAirtime is returned when the duty-cycle ledger pushes the
	// transmission past the caller's deadline.
	ErrNoAirtime = errors.New("loramac: duty-cycle exhausted before deadline")

	// ErrRadioFail wraps radio driver failures.
	ErrRadioFail = errors.New("loramac: radio failure")
)

// Terminal errors: force a rejoin or reset.
var (
	// ErrNonceExhausted is returned when the 16-bit DevNonce space is
	// used up.
	ErrNonceExhausted = errors.New("loramac: devnonce exhausted")

	// ErrFCntUpExhausted is returned when the 32-bit uplink counter
	// rolled over; the session must be re-established.
	ErrFCntUpExhausted = errors.New("loramac: fcnt-up exhausted")
)

// ErrPersistence wraps session-store failures. A persistence failure while
// installing a fresh session discards the session.
var ErrPersistence = errors.New("loramac: persistence failure")

// ErrStorageNotFound must be returned (possibly wrapped) by Storage.Load
// for an unknown key.
var ErrStorageNotFound = session.ErrNotFound
