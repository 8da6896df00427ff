// Package session holds the device identity, the negotiated session state
// and their persistence across power cycles.
package session

import (
	"crypto/aes"

	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"

	"github.com/loraedge/loramac/band"
)

// DeviceIdentity is the provisioning-time identity, immutable across
// sessions.
type DeviceIdentity struct {
	DevEUI  lorawan.EUI64
	JoinEUI lorawan.EUI64

	// AppKey is the 1.0.4 root key. NwkKey mirrors it for 1.0
	// compatibility unless provisioned separately.
	AppKey lorawan.AES128Key
	NwkKey lorawan.AES128Key
}

// Session is the state created by a Join Accept (or ABP provisioning) and
// destroyed by a rejoin or reset.
type Session struct {
	DevAddr lorawan.DevAddr
	NwkSKey lorawan.AES128Key
	AppSKey lorawan.AES128Key

	// FCntUp is the next uplink frame-counter value. Rollover of the
	// 32-bit space forces a rejoin.
	FCntUp uint32

	// NFCntDown covers MAC-only downlinks (FPort absent or 0), AFCntDown
	// covers application downlinks. Both hold the value of the last
	// accepted downlink; the Seen flags distinguish "no downlink yet"
	// from an accepted counter value of 0.
	NFCntDown     uint32
	AFCntDown     uint32
	NFCntDownSeen bool
	AFCntDownSeen bool

	RX1DROffset  uint8
	RX2DataRate  int
	RX2Frequency uint32

	// RX1Delay in seconds (1..15).
	RX1Delay uint8

	ADR          bool
	DR           int
	TXPowerIndex int
	NbTrans      uint8

	// Dwell-time flags and EIRP index from TxParamSetupReq.
	UplinkDwellTime400ms   bool
	DownlinkDwellTime400ms bool
	MaxEIRPIndex           uint8

	// Channels is the channel-plan snapshot.
	Channels []band.PlanChannel

	// SkipFCntCheck disables the downlink counter window check; only set
	// by ABP provisioning for development use.
	SkipFCntCheck bool
}

// NewSession returns a session with the protocol defaults applied on top of
// the band configuration.
func NewSession(b band.Band) Session {
	return Session{
		RX1Delay:     1,
		RX2DataRate:  b.RX2DataRate(),
		RX2Frequency: b.RX2Frequency(),
		DR:           b.DefaultDataRate(),
		NbTrans:      1,
		ADR:          true,
	}
}

// DeriveSessionKeys computes the 1.0.x NwkSKey / AppSKey from the Join
// exchange parameters:
//
//	NwkSKey = aes128_encrypt(AppKey, 0x01 | JoinNonce | NetID | DevNonce | pad16)
//	AppSKey = aes128_encrypt(AppKey, 0x02 | JoinNonce | NetID | DevNonce | pad16)
//
// with all multi-byte fields little-endian.
func DeriveSessionKeys(appKey lorawan.AES128Key, joinNonce lorawan.JoinNonce, netID lorawan.NetID, devNonce lorawan.DevNonce) (nwkSKey, appSKey lorawan.AES128Key, err error) {
	block, err := aes.NewCipher(appKey[:])
	if err != nil {
		return nwkSKey, appSKey, errors.Wrap(err, "new cipher error")
	}

	for i, key := range []*lorawan.AES128Key{&nwkSKey, &appSKey} {
		b := make([]byte, 0, 16)
		b = append(b, byte(i+1))
		b = append(b, byte(joinNonce), byte(joinNonce>>8), byte(joinNonce>>16))
		for j := len(netID) - 1; j >= 0; j-- {
			b = append(b, netID[j])
		}
		b = append(b, byte(devNonce), byte(devNonce>>8))
		b = append(b, make([]byte, 7)...)

		block.Encrypt(key[:], b)
	}
	return nwkSKey, appSKey, nil
}

// ValidateAndExtendFCntDown validates a received 16-bit downlink counter
// against the stored 32-bit value and returns the extended 32-bit counter.
// Replays (at or below the stored value) and frames maxGap or more ahead
// are rejected.
func ValidateAndExtendFCntDown(stored uint32, seen bool, fCnt16 uint32, maxGap uint32) (uint32, bool) {
	if !seen {
		// First downlink of the session: the counter starts from 0, so
		// values below maxGap are accepted as-is.
		if uint32(uint16(fCnt16)) >= maxGap {
			return 0, false
		}
		return uint32(uint16(fCnt16)), true
	}

	gap := uint32(uint16(fCnt16) - uint16(stored%65536))
	if gap == 0 || gap >= maxGap {
		return 0, false
	}
	return stored + gap, true
}
