package maccommand

import (
	"github.com/brocaar/lorawan"
	log "github.com/sirupsen/logrus"
)

// RequestLinkCheck returns the queue item for an uplink LinkCheckReq.
func RequestLinkCheck() QueueItem {
	return QueueItem{CID: lorawan.LinkCheckReq}
}

// handleLinkCheckAns surfaces the demodulation margin and gateway count to
// the host.
func handleLinkCheckAns(ctx *Context, cmd *lorawan.MACCommand) {
	pl, ok := cmd.Payload.(*lorawan.LinkCheckAnsPayload)
	if !ok {
		log.WithField("payload", cmd.Payload).Error("maccommand: expected *lorawan.LinkCheckAnsPayload")
		return
	}

	log.WithFields(log.Fields{
		"dev_addr": ctx.Session.DevAddr,
		"margin":   pl.Margin,
		"gw_cnt":   pl.GwCnt,
	}).Info("maccommand: link_check_ans received")

	if ctx.OnLinkCheck != nil {
		ctx.OnLinkCheck(pl.Margin, pl.GwCnt)
	}
}
