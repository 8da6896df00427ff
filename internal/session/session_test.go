package session

import (
	"testing"

	"github.com/brocaar/lorawan"
	"github.com/stretchr/testify/require"

	"github.com/loraedge/loramac/band"
)

func TestNewSession(t *testing.T) {
	assert := require.New(t)
	b, err := band.GetConfig(band.EU868, lorawan.DwellTimeNoLimit)
	assert.NoError(err)

	s := NewSession(b)
	assert.EqualValues(1, s.RX1Delay)
	assert.EqualValues(869525000, s.RX2Frequency)
	assert.Equal(0, s.RX2DataRate)
	assert.EqualValues(1, s.NbTrans)
	assert.True(s.ADR)
	assert.EqualValues(0, s.FCntUp)
	assert.False(s.NFCntDownSeen)
}

func TestDeriveSessionKeys(t *testing.T) {
	assert := require.New(t)

	var appKey lorawan.AES128Key
	for i := range appKey {
		appKey[i] = 0x2b
	}

	nwkSKey, appSKey, err := DeriveSessionKeys(appKey, 1, lorawan.NetID{0x00, 0x00, 0x13}, 258)
	assert.NoError(err)

	// The two keys derive from different block prefixes and must differ
	// from each other and from the root key.
	assert.NotEqual(nwkSKey, appSKey)
	assert.NotEqual(appKey, nwkSKey)
	assert.NotEqual(appKey, appSKey)
	assert.NotEqual(lorawan.AES128Key{}, nwkSKey)

	// The derivation is deterministic.
	nwkSKey2, appSKey2, err := DeriveSessionKeys(appKey, 1, lorawan.NetID{0x00, 0x00, 0x13}, 258)
	assert.NoError(err)
	assert.Equal(nwkSKey, nwkSKey2)
	assert.Equal(appSKey, appSKey2)

	// Any input change yields different keys.
	nwkSKey3, _, err := DeriveSessionKeys(appKey, 1, lorawan.NetID{0x00, 0x00, 0x13}, 259)
	assert.NoError(err)
	assert.NotEqual(nwkSKey, nwkSKey3)
}

func TestValidateAndExtendFCntDown(t *testing.T) {
	tests := []struct {
		name     string
		stored   uint32
		seen     bool
		received uint32
		expected uint32
		valid    bool
	}{
		{
			name:     "first downlink",
			stored:   0,
			seen:     false,
			received: 10,
			expected: 10,
			valid:    true,
		},
		{
			name:     "first downlink fcnt 0",
			stored:   0,
			seen:     false,
			received: 0,
			expected: 0,
			valid:    true,
		},
		{
			name:     "next value",
			stored:   10,
			seen:     true,
			received: 11,
			expected: 11,
			valid:    true,
		},
		{
			name:     "gap within window",
			stored:   10,
			seen:     true,
			received: 100,
			expected: 100,
			valid:    true,
		},
		{
			name:     "replay equal",
			stored:   10,
			seen:     true,
			received: 10,
			valid:    false,
		},
		{
			name:     "replay below",
			stored:   10,
			seen:     true,
			received: 9,
			valid:    false,
		},
		{
			name:     "16 bit rollover",
			stored:   65535,
			seen:     true,
			received: 2,
			expected: 65538,
			valid:    true,
		},
		{
			name:     "gap too large",
			stored:   10,
			seen:     true,
			received: 10 + 16384,
			valid:    false,
		},
	}

	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			assert := require.New(t)
			full, ok := ValidateAndExtendFCntDown(tst.stored, tst.seen, tst.received, 16384)
			assert.Equal(tst.valid, ok)
			if tst.valid {
				assert.Equal(tst.expected, full)
			}
		})
	}
}
