package maccommand

import (
	"github.com/brocaar/lorawan"
	log "github.com/sirupsen/logrus"
)

// handleRXTimingSetupReq sets the RX1 delay. Delay value 0 means 1 second.
// The answer is sticky.
func handleRXTimingSetupReq(ctx *Context, q *Queue, cmd *lorawan.MACCommand) {
	pl, ok := cmd.Payload.(*lorawan.RXTimingSetupReqPayload)
	if !ok {
		log.WithField("payload", cmd.Payload).Error("maccommand: expected *lorawan.RXTimingSetupReqPayload")
		return
	}

	delay := pl.Delay
	if delay == 0 {
		delay = 1
	}
	ctx.Session.RX1Delay = delay

	log.WithFields(log.Fields{
		"dev_addr":  ctx.Session.DevAddr,
		"rx1_delay": delay,
	}).Info("maccommand: rx_timing_setup_req applied")

	q.Add(QueueItem{CID: lorawan.RXTimingSetupAns, Sticky: true})
}
