package band

import (
	"testing"

	"github.com/brocaar/lorawan"
	"github.com/stretchr/testify/require"
)

func TestGetConfig(t *testing.T) {
	assert := require.New(t)

	for _, name := range []Name{EU868, US915, AU915, AS923, CN470} {
		b, err := GetConfig(name, lorawan.DwellTimeNoLimit)
		assert.NoError(err)
		assert.Equal(name, b.Name())
	}

	_, err := GetConfig("XX123", lorawan.DwellTimeNoLimit)
	assert.Error(err)
}

func TestEU868(t *testing.T) {
	assert := require.New(t)
	b, err := GetConfig(EU868, lorawan.DwellTimeNoLimit)
	assert.NoError(err)

	t.Run("DefaultChannels", func(t *testing.T) {
		assert := require.New(t)
		channels := b.DefaultChannels()
		assert.Len(channels, 3)
		assert.EqualValues(868100000, channels[0].Frequency)
		assert.EqualValues(868300000, channels[1].Frequency)
		assert.EqualValues(868500000, channels[2].Frequency)
		for _, c := range channels {
			assert.Equal(0, c.MinDR)
			assert.Equal(5, c.MaxDR)
		}
	})

	t.Run("DataRate", func(t *testing.T) {
		assert := require.New(t)
		dr0, err := b.DataRate(0)
		assert.NoError(err)
		assert.Equal(DataRate{Modulation: LoRaModulation, SpreadFactor: 12, Bandwidth: 125}, dr0)

		dr5, err := b.DataRate(5)
		assert.NoError(err)
		assert.Equal(DataRate{Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 125}, dr5)

		dr7, err := b.DataRate(7)
		assert.NoError(err)
		assert.Equal(FSKModulation, dr7.Modulation)

		_, err = b.DataRate(8)
		assert.Error(err)
	})

	t.Run("RX1DataRate", func(t *testing.T) {
		assert := require.New(t)
		tests := []struct {
			uplinkDR int
			offset   int
			expected int
		}{
			{0, 0, 0},
			{5, 0, 5},
			{5, 2, 3},
			{5, 5, 0},
			{2, 5, 0},
		}
		for _, tst := range tests {
			dr, err := b.RX1DataRate(tst.uplinkDR, tst.offset)
			assert.NoError(err)
			assert.Equal(tst.expected, dr)
		}

		_, err := b.RX1DataRate(5, 6)
		assert.Error(err)
	})

	t.Run("RX1Frequency", func(t *testing.T) {
		assert := require.New(t)
		assert.EqualValues(868100000, b.RX1Frequency(0, 868100000))
	})

	t.Run("RX2", func(t *testing.T) {
		assert := require.New(t)
		assert.EqualValues(869525000, b.RX2Frequency())
		assert.Equal(0, b.RX2DataRate())
	})

	t.Run("TXPower", func(t *testing.T) {
		assert := require.New(t)
		p0, err := b.TXPower(0)
		assert.NoError(err)
		assert.Equal(16, p0)

		p7, err := b.TXPower(7)
		assert.NoError(err)
		assert.Equal(2, p7)

		_, err = b.TXPower(8)
		assert.Error(err)
	})

	t.Run("SubBands", func(t *testing.T) {
		assert := require.New(t)

		sb, err := SubBandForFrequency(b, 868100000)
		assert.NoError(err)
		assert.Equal(0.01, sb.DutyCycle)

		sb, err = SubBandForFrequency(b, 869525000)
		assert.NoError(err)
		assert.Equal(0.1, sb.DutyCycle)

		_, err = SubBandForFrequency(b, 900000000)
		assert.Error(err)
	})
}

func TestUS915(t *testing.T) {
	assert := require.New(t)
	b, err := GetConfig(US915, lorawan.DwellTimeNoLimit)
	assert.NoError(err)

	t.Run("DefaultChannels", func(t *testing.T) {
		assert := require.New(t)
		channels := b.DefaultChannels()
		assert.Len(channels, 72)

		assert.EqualValues(902300000, channels[0].Frequency)
		assert.EqualValues(914900000, channels[63].Frequency)
		assert.Equal(0, channels[0].MinDR)
		assert.Equal(3, channels[0].MaxDR)

		assert.EqualValues(903000000, channels[64].Frequency)
		assert.EqualValues(914200000, channels[71].Frequency)
		assert.Equal(4, channels[64].MinDR)
		assert.Equal(4, channels[64].MaxDR)
	})

	t.Run("RX1DataRate", func(t *testing.T) {
		assert := require.New(t)
		tests := []struct {
			uplinkDR int
			offset   int
			expected int
		}{
			{0, 0, 10},
			{0, 3, 8},
			{3, 0, 13},
			{4, 0, 13},
			{4, 3, 11},
		}
		for _, tst := range tests {
			dr, err := b.RX1DataRate(tst.uplinkDR, tst.offset)
			assert.NoError(err)
			assert.Equal(tst.expected, dr)
		}
	})

	t.Run("RX1Frequency", func(t *testing.T) {
		assert := require.New(t)
		assert.EqualValues(923300000, b.RX1Frequency(0, 902300000))
		assert.EqualValues(923900000, b.RX1Frequency(1, 902500000))
		assert.EqualValues(923300000, b.RX1Frequency(8, 903900000))
		assert.EqualValues(927500000, b.RX1Frequency(71, 914200000))
	})

	t.Run("MaxPayloadSize", func(t *testing.T) {
		assert := require.New(t)
		s, err := b.MaxPayloadSize(0)
		assert.NoError(err)
		assert.Equal(MaxPayloadSize{M: 19, N: 11}, s)

		s, err = b.MaxPayloadSize(4)
		assert.NoError(err)
		assert.Equal(MaxPayloadSize{M: 250, N: 242}, s)
	})

	t.Run("NoDutyCycle", func(t *testing.T) {
		assert := require.New(t)
		sb, err := SubBandForFrequency(b, 902300000)
		assert.NoError(err)
		assert.Equal(1.0, sb.DutyCycle)
	})
}

func TestAS923DwellTime(t *testing.T) {
	assert := require.New(t)

	b, err := GetConfig(AS923, lorawan.DwellTime400ms)
	assert.NoError(err)

	min, max := b.UplinkDataRateRange()
	assert.Equal(2, min)
	assert.Equal(7, max)

	s, err := b.MaxPayloadSize(2)
	assert.NoError(err)
	assert.Equal(MaxPayloadSize{M: 19, N: 11}, s)

	_, err = b.MaxPayloadSize(0)
	assert.Error(err)

	assert.True(b.ImplementsTXParamSetup())

	// Offsets 6 and 7 raise the downlink DR.
	dr, err := b.RX1DataRate(3, 6)
	assert.NoError(err)
	assert.Equal(4, dr)

	dr, err = b.RX1DataRate(5, 7)
	assert.NoError(err)
	assert.Equal(5, dr)
}

func TestCN470(t *testing.T) {
	assert := require.New(t)

	b, err := GetConfig(CN470, lorawan.DwellTimeNoLimit)
	assert.NoError(err)

	channels := b.DefaultChannels()
	assert.Len(channels, 96)
	assert.EqualValues(470300000, channels[0].Frequency)
	assert.EqualValues(489300000, channels[95].Frequency)

	// Downlink channel is uplink channel modulo 48.
	assert.EqualValues(500300000, b.RX1Frequency(0, 470300000))
	assert.EqualValues(500300000, b.RX1Frequency(48, 479900000))
	assert.EqualValues(505300000, b.RX2Frequency())
}
