package band

import (
	"testing"

	"github.com/brocaar/lorawan"
	"github.com/stretchr/testify/require"
)

type seqRNG struct {
	values []uint32
	i      int
}

func (r *seqRNG) Uint32() uint32 {
	v := r.values[r.i%len(r.values)]
	r.i++
	return v
}

func TestChannelPlanCFList(t *testing.T) {
	assert := require.New(t)
	b, err := GetConfig(EU868, lorawan.DwellTimeNoLimit)
	assert.NoError(err)

	p := NewChannelPlan(b)
	assert.Len(p.Channels(), 3)

	cfList := lorawan.CFList{
		CFListType: lorawan.CFListChannel,
		Payload: &lorawan.CFListChannelPayload{
			Channels: [5]uint32{867100000, 867300000, 867500000, 0, 0},
		},
	}
	assert.NoError(p.ApplyCFList(cfList))

	// Plan is exactly default channels plus the CFList channels.
	channels := p.Channels()
	assert.Len(channels, 6)
	assert.EqualValues(868100000, channels[0].Frequency)
	assert.EqualValues(867100000, channels[3].Frequency)
	assert.EqualValues(867500000, channels[5].Frequency)
	assert.True(channels[3].Custom)
	assert.True(channels[3].Enabled)

	// Re-applying resets previously learned channels first.
	assert.NoError(p.ApplyCFList(cfList))
	assert.Len(p.Channels(), 6)

	// Channel-mask CFList type is rejected on a dynamic plan.
	assert.Error(p.ApplyCFList(lorawan.CFList{
		CFListType: lorawan.CFListChannelMask,
		Payload:    &lorawan.CFListChannelMaskPayload{},
	}))
}

func TestChannelPlanNewChannel(t *testing.T) {
	assert := require.New(t)
	b, err := GetConfig(EU868, lorawan.DwellTimeNoLimit)
	assert.NoError(err)
	p := NewChannelPlan(b)

	// Default channels can not be modified.
	assert.Error(p.AddChannel(0, 867100000, 0, 5))

	assert.NoError(p.AddChannel(3, 867100000, 0, 5))
	c, err := p.Channel(3)
	assert.NoError(err)
	assert.EqualValues(867100000, c.Frequency)
	assert.True(c.Enabled)

	// Frequency 0 disables the channel.
	assert.NoError(p.AddChannel(3, 0, 0, 0))
	c, err = p.Channel(3)
	assert.NoError(err)
	assert.False(c.Enabled)

	// Out of band.
	assert.Error(p.AddChannel(4, 433000000, 0, 5))

	// Fixed plans reject channel creation.
	us, err := GetConfig(US915, lorawan.DwellTimeNoLimit)
	assert.NoError(err)
	assert.Error(NewChannelPlan(us).AddChannel(72, 903000000, 0, 3))
}

func TestChannelPlanResolveChMaskDynamic(t *testing.T) {
	assert := require.New(t)
	b, err := GetConfig(EU868, lorawan.DwellTimeNoLimit)
	assert.NoError(err)
	p := NewChannelPlan(b)

	mask := p.EnabledMask()

	out, err := p.ResolveChMask(mask, 0, lorawan.ChMask{true, false, true})
	assert.NoError(err)
	assert.Equal([]bool{true, false, true}, out)

	// The plan itself is untouched until commit.
	assert.True(p.Channels()[1].Enabled)
	assert.NoError(p.SetEnabledMask(out))
	assert.False(p.Channels()[1].Enabled)

	// A mask bit addressing a channel that does not exist is invalid.
	_, err = p.ResolveChMask(p.EnabledMask(), 0, lorawan.ChMask{true, false, false, true})
	assert.Error(err)

	// Cntl 6 enables everything.
	out, err = p.ResolveChMask(p.EnabledMask(), 6, lorawan.ChMask{})
	assert.NoError(err)
	assert.Equal([]bool{true, true, true}, out)

	// An all-off mask can not be committed.
	assert.Error(p.SetEnabledMask([]bool{false, false, false}))
}

func TestChannelPlanResolveChMaskFixed(t *testing.T) {
	assert := require.New(t)
	b, err := GetConfig(US915, lorawan.DwellTimeNoLimit)
	assert.NoError(err)
	p := NewChannelPlan(b)

	t.Run("direct word", func(t *testing.T) {
		assert := require.New(t)
		mask, err := p.ResolveChMask(p.EnabledMask(), 0, lorawan.ChMask{true, true})
		assert.NoError(err)
		assert.True(mask[0])
		assert.True(mask[1])
		for i := 2; i < 16; i++ {
			assert.False(mask[i])
		}
		// Other words untouched.
		assert.True(mask[16])
		assert.True(mask[71])
	})

	t.Run("bank mode cntl 5", func(t *testing.T) {
		assert := require.New(t)
		mask, err := p.ResolveChMask(p.EnabledMask(), 5, lorawan.ChMask{true, false, false, false, false, false, false, false, true})
		assert.NoError(err)
		for i := 0; i < 8; i++ {
			assert.True(mask[i])
		}
		for i := 8; i < 64; i++ {
			assert.False(mask[i])
		}
		for i := 64; i < 72; i++ {
			assert.True(mask[i])
		}
	})

	t.Run("cntl 6 all 125khz on", func(t *testing.T) {
		assert := require.New(t)
		mask, err := p.ResolveChMask(p.EnabledMask(), 6, lorawan.ChMask{true, false, true})
		assert.NoError(err)
		for i := 0; i < 64; i++ {
			assert.True(mask[i])
		}
		assert.True(mask[64])
		assert.False(mask[65])
		assert.True(mask[66])
	})

	t.Run("cntl 7 all 125khz off", func(t *testing.T) {
		assert := require.New(t)
		mask, err := p.ResolveChMask(p.EnabledMask(), 7, lorawan.ChMask{true})
		assert.NoError(err)
		for i := 0; i < 64; i++ {
			assert.False(mask[i])
		}
		assert.True(mask[64])
		assert.False(mask[65])
	})

	t.Run("invalid cntl", func(t *testing.T) {
		assert := require.New(t)
		_, err := p.ResolveChMask(p.EnabledMask(), 8, lorawan.ChMask{})
		assert.Error(err)
	})
}

func TestChannelPlanRandomEnabled(t *testing.T) {
	assert := require.New(t)
	b, err := GetConfig(EU868, lorawan.DwellTimeNoLimit)
	assert.NoError(err)
	p := NewChannelPlan(b)

	rng := &seqRNG{values: []uint32{0, 1, 2, 3}}

	idx, ch, err := p.RandomEnabled(5, rng, nil)
	assert.NoError(err)
	assert.True(idx >= 0 && idx < 3)
	assert.True(ch.Enabled)

	// The permitted filter excludes channels.
	idx, _, err = p.RandomEnabled(5, rng, func(freq uint32) bool {
		return freq == 868300000
	})
	assert.NoError(err)
	assert.Equal(1, idx)

	// No channel supports DR 6 on the default plan.
	_, _, err = p.RandomEnabled(6, rng, nil)
	assert.Error(err)
}

func TestChannelPlanJoinChannels(t *testing.T) {
	t.Run("dynamic", func(t *testing.T) {
		assert := require.New(t)
		b, err := GetConfig(EU868, lorawan.DwellTimeNoLimit)
		assert.NoError(err)
		p := NewChannelPlan(b)

		out := p.JoinChannels(&seqRNG{values: []uint32{7, 13, 5}})
		assert.Len(out, 3)
		seen := map[int]bool{}
		for _, i := range out {
			seen[i] = true
		}
		assert.Len(seen, 3)
	})

	t.Run("fixed covers every block", func(t *testing.T) {
		assert := require.New(t)
		b, err := GetConfig(US915, lorawan.DwellTimeNoLimit)
		assert.NoError(err)
		p := NewChannelPlan(b)

		out := p.JoinChannels(&seqRNG{values: []uint32{3, 11, 7, 1, 9, 2, 8, 5, 6, 4}})
		assert.Len(out, 9)

		blocks := map[int]bool{}
		var has500 bool
		for _, i := range out {
			blocks[i/8] = true
			if i >= 64 {
				has500 = true
			}
		}
		// One channel out of each 8-channel block, including the
		// 500 kHz block.
		assert.Len(blocks, 9)
		assert.True(has500)
	})
}

func TestChannelPlanSnapshotRestore(t *testing.T) {
	assert := require.New(t)
	b, err := GetConfig(EU868, lorawan.DwellTimeNoLimit)
	assert.NoError(err)

	p := NewChannelPlan(b)
	assert.NoError(p.AddChannel(3, 867100000, 0, 5))
	assert.NoError(p.SetDownlinkFrequency(0, 868900000))
	snap := p.Snapshot()

	restored := NewChannelPlan(b)
	restored.Restore(snap)
	assert.Equal(p.Channels(), restored.Channels())

	freq, err := restored.DownlinkFrequency(0)
	assert.NoError(err)
	assert.EqualValues(868900000, freq)
}
