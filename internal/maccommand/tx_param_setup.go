package maccommand

import (
	"github.com/brocaar/lorawan"
	log "github.com/sirupsen/logrus"
)

// handleTXParamSetupReq applies the dwell-time flags and EIRP limit. In
// regions that do not implement the command it is ignored without an
// answer, as the regional parameters require. The answer is sticky.
func handleTXParamSetupReq(ctx *Context, q *Queue, cmd *lorawan.MACCommand) {
	if !ctx.Band.ImplementsTXParamSetup() {
		return
	}

	pl, ok := cmd.Payload.(*lorawan.TXParamSetupReqPayload)
	if !ok {
		log.WithField("payload", cmd.Payload).Error("maccommand: expected *lorawan.TXParamSetupReqPayload")
		return
	}

	ctx.Session.UplinkDwellTime400ms = pl.UplinkDwellTime == lorawan.DwellTime400ms
	ctx.Session.DownlinkDwellTime400ms = pl.DownlinkDwelltime == lorawan.DwellTime400ms
	ctx.Session.MaxEIRPIndex = pl.MaxEIRP

	log.WithFields(log.Fields{
		"dev_addr":       ctx.Session.DevAddr,
		"uplink_dwell":   ctx.Session.UplinkDwellTime400ms,
		"downlink_dwell": ctx.Session.DownlinkDwellTime400ms,
		"max_eirp_index": pl.MaxEIRP,
	}).Info("maccommand: tx_param_setup_req applied")

	q.Add(QueueItem{CID: lorawan.TXParamSetupAns, Sticky: true})
}
