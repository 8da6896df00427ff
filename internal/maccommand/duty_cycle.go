package maccommand

import (
	"github.com/brocaar/lorawan"
	log "github.com/sirupsen/logrus"
)

// handleDutyCycleReq installs the aggregated duty-cycle limit
// (1 / 2^MaxDCycle of the time on air).
func handleDutyCycleReq(ctx *Context, q *Queue, cmd *lorawan.MACCommand) {
	pl, ok := cmd.Payload.(*lorawan.DutyCycleReqPayload)
	if !ok {
		log.WithField("payload", cmd.Payload).Error("maccommand: expected *lorawan.DutyCycleReqPayload")
		return
	}

	ctx.Ledger.SetMaxDutyCycle(pl.MaxDCycle)
	log.WithFields(log.Fields{
		"dev_addr":    ctx.Session.DevAddr,
		"max_d_cycle": pl.MaxDCycle,
	}).Info("maccommand: duty_cycle_req applied")

	q.Add(QueueItem{CID: lorawan.DutyCycleAns})
}
