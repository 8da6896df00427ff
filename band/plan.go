package band

import (
	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"
)

// MaxDynamicChannels bounds the channel table of a dynamic plan.
const MaxDynamicChannels = 16

// blockSize is the number of channels grouped by one bit of a fixed-plan
// bank mask and by the join rotation.
const blockSize = 8

// RNG is the randomness source used for channel selection.
type RNG interface {
	Uint32() uint32
}

// PlanChannel is one entry of the mutable channel-plan.
type PlanChannel struct {
	Channel

	// DownlinkFrequency is non-zero when DlChannelReq moved the RX1
	// frequency away from the region default.
	DownlinkFrequency uint32

	Enabled bool

	// Custom is true for channels learned from the CFList or
	// NewChannelReq rather than the regional defaults.
	Custom bool
}

// ChannelPlan is the per-session channel state layered over an immutable
// Band: enabled flags, learned channels and downlink overrides.
type ChannelPlan struct {
	band         Band
	channels     []PlanChannel
	defaultCount int
}

// NewChannelPlan returns the boot channel-plan for the band: all default
// channels present and enabled.
func NewChannelPlan(b Band) *ChannelPlan {
	defaults := b.DefaultChannels()
	channels := make([]PlanChannel, len(defaults))
	for i, c := range defaults {
		channels[i] = PlanChannel{Channel: c, Enabled: true}
	}
	return &ChannelPlan{
		band:         b,
		channels:     channels,
		defaultCount: len(defaults),
	}
}

// Band returns the band the plan was built for.
func (p *ChannelPlan) Band() Band {
	return p.band
}

// Channels returns the channel table. The slice is shared; callers must not
// mutate it.
func (p *ChannelPlan) Channels() []PlanChannel {
	return p.channels
}

// Channel returns the channel at the given index.
func (p *ChannelPlan) Channel(i int) (PlanChannel, error) {
	if i < 0 || i >= len(p.channels) {
		return PlanChannel{}, errors.Wrapf(ErrChannelIndex, "index %d", i)
	}
	return p.channels[i], nil
}

// HasUplinkChannel returns true when a channel exists at the index.
func (p *ChannelPlan) HasUplinkChannel(i int) bool {
	return i >= 0 && i < len(p.channels)
}

// DownlinkFrequency returns the RX1 frequency for the given uplink channel,
// honoring a DlChannelReq override.
func (p *ChannelPlan) DownlinkFrequency(i int) (uint32, error) {
	c, err := p.Channel(i)
	if err != nil {
		return 0, err
	}
	if c.DownlinkFrequency != 0 {
		return c.DownlinkFrequency, nil
	}
	return p.band.RX1Frequency(i, c.Frequency), nil
}

// ApplyCFList installs the channel list or channel mask from a JoinAccept.
// The resulting plan is exactly the default channels plus the CFList
// channels; previously learned channels are dropped.
func (p *ChannelPlan) ApplyCFList(cfList lorawan.CFList) error {
	if cfList.CFListType != p.band.CFListType() {
		return errors.Wrapf(ErrCFListType, "type %d", cfList.CFListType)
	}

	switch pl := cfList.Payload.(type) {
	case *lorawan.CFListChannelPayload:
		p.reset()
		template := p.band.DefaultChannels()[0]
		for _, freq := range pl.Channels {
			if freq == 0 {
				continue
			}
			if err := p.band.ValidateFrequency(freq); err != nil {
				return err
			}
			p.channels = append(p.channels, PlanChannel{
				Channel: Channel{
					Frequency: freq,
					MinDR:     template.MinDR,
					MaxDR:     template.MaxDR,
				},
				Enabled: true,
				Custom:  true,
			})
		}
		return nil
	case *lorawan.CFListChannelMaskPayload:
		p.reset()
		for i := range p.channels {
			word := i / 16
			if word >= len(pl.ChannelMasks) {
				break
			}
			p.channels[i].Enabled = pl.ChannelMasks[word][i%16]
		}
		return nil
	default:
		return errors.Wrapf(ErrCFListType, "payload %T", cfList.Payload)
	}
}

func (p *ChannelPlan) reset() {
	defaults := p.band.DefaultChannels()
	p.channels = p.channels[:0]
	for _, c := range defaults {
		p.channels = append(p.channels, PlanChannel{Channel: c, Enabled: true})
	}
	p.defaultCount = len(defaults)
}

// AddChannel creates or modifies a channel from a NewChannelReq. A zero
// frequency disables the channel. Only dynamic plans accept this, and the
// default channels can not be modified.
func (p *ChannelPlan) AddChannel(index int, freq uint32, minDR, maxDR int) error {
	if p.band.Kind() != Dynamic {
		return errors.Wrap(ErrChannelIndex, "fixed channel-plan")
	}
	if index < p.defaultCount || index >= MaxDynamicChannels {
		return errors.Wrapf(ErrChannelIndex, "index %d", index)
	}

	if freq == 0 {
		if index < len(p.channels) {
			p.channels[index].Enabled = false
		}
		return nil
	}
	if err := p.band.ValidateFrequency(freq); err != nil {
		return err
	}

	for len(p.channels) <= index {
		p.channels = append(p.channels, PlanChannel{Custom: true})
	}
	p.channels[index] = PlanChannel{
		Channel: Channel{Frequency: freq, MinDR: minDR, MaxDR: maxDR},
		Enabled: true,
		Custom:  true,
	}
	return nil
}

// SetDownlinkFrequency installs a DlChannelReq downlink override.
func (p *ChannelPlan) SetDownlinkFrequency(index int, freq uint32) error {
	if !p.HasUplinkChannel(index) {
		return errors.Wrapf(ErrChannelIndex, "index %d", index)
	}
	if err := p.band.ValidateFrequency(freq); err != nil {
		return err
	}
	p.channels[index].DownlinkFrequency = freq
	return nil
}

// EnabledMask returns the enabled flags as a mask sized to the channel
// table.
func (p *ChannelPlan) EnabledMask() []bool {
	out := make([]bool, len(p.channels))
	for i, c := range p.channels {
		out[i] = c.Enabled
	}
	return out
}

// ResolveChMask applies one LinkADRReq (ChMaskCntl, ChMask) pair to the
// given mask and returns the result. It is pure: the plan itself is not
// modified, so a multi-command block can be validated before any of it is
// committed.
func (p *ChannelPlan) ResolveChMask(mask []bool, chMaskCntl uint8, chMask lorawan.ChMask) ([]bool, error) {
	out := make([]bool, len(mask))
	copy(out, mask)

	if p.band.Kind() == Dynamic {
		switch chMaskCntl {
		case 0:
			for i := range out {
				if i < len(chMask) {
					out[i] = chMask[i]
				}
			}
			for i := len(out); i < len(chMask); i++ {
				if chMask[i] {
					return nil, errors.Wrapf(ErrChannelIndex, "index %d", i)
				}
			}
		case 6:
			for i := range out {
				out[i] = true
			}
		default:
			return nil, errors.Wrapf(ErrChMaskCntl, "cntl %d", chMaskCntl)
		}
		return out, nil
	}

	// Fixed plans address the grid in 16-channel words, with the special
	// cntl values of the 1.0.4 regional parameters.
	words := (len(out) + 15) / 16
	switch {
	case int(chMaskCntl) < words:
		base := int(chMaskCntl) * 16
		for i := 0; i < 16; i++ {
			idx := base + i
			if idx >= len(out) {
				if chMask[i] {
					return nil, errors.Wrapf(ErrChannelIndex, "index %d", idx)
				}
				continue
			}
			out[idx] = chMask[i]
		}
	case chMaskCntl == 5 && len(out) == 72:
		// Bank mode: bit i toggles channels 8i..8i+7.
		for bank := 0; bank < 9; bank++ {
			for i := 0; i < blockSize; i++ {
				out[bank*blockSize+i] = chMask[bank]
			}
		}
	case chMaskCntl == 6:
		// All 125 kHz channels on; the mask applies to the 500 kHz
		// channels of a 72-channel grid.
		for i := range out {
			out[i] = true
		}
		if len(out) == 72 {
			for i := 0; i < 8; i++ {
				out[64+i] = chMask[i]
			}
		}
	case chMaskCntl == 7 && len(out) == 72:
		// All 125 kHz channels off; the mask applies to the 500 kHz
		// channels.
		for i := 0; i < 64; i++ {
			out[i] = false
		}
		for i := 0; i < 8; i++ {
			out[64+i] = chMask[i]
		}
	default:
		return nil, errors.Wrapf(ErrChMaskCntl, "cntl %d", chMaskCntl)
	}
	return out, nil
}

// SetEnabledMask commits a resolved channel mask. A mask that would leave
// no channel enabled is rejected.
func (p *ChannelPlan) SetEnabledMask(mask []bool) error {
	if len(mask) != len(p.channels) {
		return errors.Wrapf(ErrChannelIndex, "mask length %d", len(mask))
	}
	var any bool
	for _, on := range mask {
		any = any || on
	}
	if !any {
		return errors.Wrap(ErrChannelIndex, "empty channel mask")
	}
	for i := range p.channels {
		p.channels[i].Enabled = mask[i]
	}
	return nil
}

// ReactivateAll re-enables every channel of the plan. Used by the final
// step of the ADR back-off ladder.
func (p *ChannelPlan) ReactivateAll() {
	for i := range p.channels {
		p.channels[i].Enabled = true
	}
}

// RandomEnabled uniformly selects one channel that is enabled, supports the
// data-rate and passes the permitted filter (duty-cycle). It returns the
// channel index.
func (p *ChannelPlan) RandomEnabled(dr int, rng RNG, permitted func(freq uint32) bool) (int, PlanChannel, error) {
	var candidates []int
	for i, c := range p.channels {
		if !c.Enabled || c.Frequency == 0 {
			continue
		}
		if dr < c.MinDR || dr > c.MaxDR {
			continue
		}
		if permitted != nil && !permitted(c.Frequency) {
			continue
		}
		candidates = append(candidates, i)
	}
	if len(candidates) == 0 {
		return 0, PlanChannel{}, errors.Wrapf(ErrChannelNotFound, "dr %d", dr)
	}
	idx := candidates[int(rng.Uint32())%len(candidates)]
	return idx, p.channels[idx], nil
}

// Snapshot returns a copy of the channel table for persistence.
func (p *ChannelPlan) Snapshot() []PlanChannel {
	out := make([]PlanChannel, len(p.channels))
	copy(out, p.channels)
	return out
}

// Restore replaces the channel table with a persisted snapshot.
func (p *ChannelPlan) Restore(channels []PlanChannel) {
	p.channels = make([]PlanChannel, len(channels))
	copy(p.channels, channels)
	if n := len(p.band.DefaultChannels()); n <= len(p.channels) {
		p.defaultCount = n
	}
}

// JoinChannels returns the channel indices a join attempt iterates over.
// Dynamic plans shuffle the default join channels. Fixed plans return one
// random enabled channel per 8-channel block, so a single attempt touches
// every sub-band plus the 500 kHz block.
func (p *ChannelPlan) JoinChannels(rng RNG) []int {
	var out []int

	if p.band.Kind() == Dynamic {
		for i := 0; i < p.defaultCount; i++ {
			if p.channels[i].Enabled {
				out = append(out, i)
			}
		}
	} else {
		for block := 0; block*blockSize < len(p.channels); block++ {
			var members []int
			for i := block * blockSize; i < (block+1)*blockSize && i < len(p.channels); i++ {
				if p.channels[i].Enabled {
					members = append(members, i)
				}
			}
			if len(members) > 0 {
				out = append(out, members[int(rng.Uint32())%len(members)])
			}
		}
	}

	for i := len(out) - 1; i > 0; i-- {
		j := int(rng.Uint32()) % (i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
