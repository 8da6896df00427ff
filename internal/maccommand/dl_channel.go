package maccommand

import (
	"github.com/brocaar/lorawan"
	log "github.com/sirupsen/logrus"
)

// handleDLChannelReq overrides the RX1 downlink frequency of a channel.
// The answer is sticky.
func handleDLChannelReq(ctx *Context, q *Queue, cmd *lorawan.MACCommand) {
	pl, ok := cmd.Payload.(*lorawan.DLChannelReqPayload)
	if !ok {
		log.WithField("payload", cmd.Payload).Error("maccommand: expected *lorawan.DLChannelReqPayload")
		return
	}

	uplinkFrequencyExists := ctx.Plan.HasUplinkChannel(int(pl.ChIndex))
	channelFrequencyOK := ctx.Band.ValidateFrequency(pl.Freq) == nil

	if uplinkFrequencyExists && channelFrequencyOK {
		if err := ctx.Plan.SetDownlinkFrequency(int(pl.ChIndex), pl.Freq); err != nil {
			channelFrequencyOK = false
		} else {
			ctx.Session.Channels = ctx.Plan.Snapshot()
			log.WithFields(log.Fields{
				"dev_addr": ctx.Session.DevAddr,
				"channel":  pl.ChIndex,
				"freq":     pl.Freq,
			}).Info("maccommand: dl_channel_req applied")
		}
	}

	q.Add(QueueItem{
		CID: lorawan.DLChannelAns,
		Payload: &lorawan.DLChannelAnsPayload{
			UplinkFrequencyExists: uplinkFrequencyExists,
			ChannelFrequencyOK:    channelFrequencyOK,
		},
		Sticky: true,
	})
}
