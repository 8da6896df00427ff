package maccommand

import (
	"github.com/brocaar/lorawan"
	log "github.com/sirupsen/logrus"
)

// handleRXParamSetupReq stages the RX1 data-rate offset, RX2 data-rate and
// RX2 frequency. The answer is sticky: it repeats in every uplink until a
// downlink confirms the server received it.
func handleRXParamSetupReq(ctx *Context, q *Queue, cmd *lorawan.MACCommand) {
	pl, ok := cmd.Payload.(*lorawan.RXParamSetupReqPayload)
	if !ok {
		log.WithField("payload", cmd.Payload).Error("maccommand: expected *lorawan.RXParamSetupReqPayload")
		return
	}

	channelACK := ctx.Band.ValidateFrequency(pl.Frequency) == nil

	min, _ := ctx.Band.UplinkDataRateRange()
	_, rx1OffsetErr := ctx.Band.RX1DataRate(min, int(pl.DLSettings.RX1DROffset))
	rx1DROffsetACK := rx1OffsetErr == nil

	_, rx2DRErr := ctx.Band.DataRate(int(pl.DLSettings.RX2DataRate))
	rx2DataRateACK := rx2DRErr == nil

	if channelACK && rx1DROffsetACK && rx2DataRateACK {
		ctx.Session.RX1DROffset = pl.DLSettings.RX1DROffset
		ctx.Session.RX2DataRate = int(pl.DLSettings.RX2DataRate)
		ctx.Session.RX2Frequency = pl.Frequency

		log.WithFields(log.Fields{
			"dev_addr":      ctx.Session.DevAddr,
			"rx1_dr_offset": pl.DLSettings.RX1DROffset,
			"rx2_dr":        pl.DLSettings.RX2DataRate,
			"rx2_frequency": pl.Frequency,
		}).Info("maccommand: rx_param_setup_req applied")
	}

	q.Add(QueueItem{
		CID: lorawan.RXParamSetupAns,
		Payload: &lorawan.RXParamSetupAnsPayload{
			ChannelACK:     channelACK,
			RX1DROffsetACK: rx1DROffsetACK,
			RX2DataRateACK: rx2DataRateACK,
		},
		Sticky: true,
	})
}
