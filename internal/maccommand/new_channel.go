package maccommand

import (
	"github.com/brocaar/lorawan"
	log "github.com/sirupsen/logrus"

	"github.com/loraedge/loramac/band"
)

// handleNewChannelReq creates or modifies a channel of a dynamic plan. A
// request addressing one of the region's default channels is ignored
// without an answer; fixed plans reject the command through the
// frequency-ACK bit.
func handleNewChannelReq(ctx *Context, q *Queue, cmd *lorawan.MACCommand) {
	pl, ok := cmd.Payload.(*lorawan.NewChannelReqPayload)
	if !ok {
		log.WithField("payload", cmd.Payload).Error("maccommand: expected *lorawan.NewChannelReqPayload")
		return
	}

	if int(pl.ChIndex) < len(ctx.Band.DefaultChannels()) {
		// Default channels can not be modified; silently ignore.
		return
	}

	min, max := ctx.Band.UplinkDataRateRange()
	dataRateRangeOK := int(pl.MinDR) >= min && int(pl.MaxDR) <= max && pl.MinDR <= pl.MaxDR

	channelFrequencyOK := pl.Freq == 0 || ctx.Band.ValidateFrequency(pl.Freq) == nil
	if ctx.Band.Kind() != band.Dynamic {
		channelFrequencyOK = false
	}

	if dataRateRangeOK && channelFrequencyOK {
		if err := ctx.Plan.AddChannel(int(pl.ChIndex), pl.Freq, int(pl.MinDR), int(pl.MaxDR)); err != nil {
			channelFrequencyOK = false
		} else {
			ctx.Session.Channels = ctx.Plan.Snapshot()
			log.WithFields(log.Fields{
				"dev_addr": ctx.Session.DevAddr,
				"channel":  pl.ChIndex,
				"freq":     pl.Freq,
				"min_dr":   pl.MinDR,
				"max_dr":   pl.MaxDR,
			}).Info("maccommand: new_channel_req applied")
		}
	}

	q.Add(QueueItem{
		CID: lorawan.NewChannelAns,
		Payload: &lorawan.NewChannelAnsPayload{
			ChannelFrequencyOK: channelFrequencyOK,
			DataRateRangeOK:    dataRateRangeOK,
		},
	})
}
