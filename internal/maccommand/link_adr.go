package maccommand

import (
	"github.com/brocaar/lorawan"
	log "github.com/sirupsen/logrus"
)

// handleLinkADRReqBlock validates a contiguous block of LinkADRReq commands
// and applies it atomically: either every channel-mask, the data-rate, the
// tx-power and NbTrans of the block take effect, or nothing does. A single
// LinkADRAns answers the whole block.
func handleLinkADRReqBlock(ctx *Context, q *Queue, block []*lorawan.MACCommand) {
	if len(block) == 0 {
		return
	}

	chMaskACK := true
	dataRateACK := true
	powerACK := true

	// Resolve all channel-masks against a scratch copy of the current
	// mask; nothing is committed until the whole block validated.
	mask := ctx.Plan.EnabledMask()
	var last *lorawan.LinkADRReqPayload

	for _, cmd := range block {
		pl, ok := cmd.Payload.(*lorawan.LinkADRReqPayload)
		if !ok {
			log.WithField("payload", cmd.Payload).Error("maccommand: expected *lorawan.LinkADRReqPayload")
			return
		}
		last = pl

		next, err := ctx.Plan.ResolveChMask(mask, pl.Redundancy.ChMaskCntl, pl.ChMask)
		if err != nil {
			chMaskACK = false
			continue
		}
		mask = next
	}

	// The data-rate, tx-power and redundancy of the block are those of
	// its final command. Value 15 keeps the current setting.
	dr := ctx.Session.DR
	if last.DataRate != 15 {
		dr = int(last.DataRate)
		min, max := ctx.Band.UplinkDataRateRange()
		if dr < min || dr > max {
			dataRateACK = false
		}
	}

	txPower := ctx.Session.TXPowerIndex
	if last.TXPower != 15 {
		txPower = int(last.TXPower)
		if _, err := ctx.Band.TXPower(txPower); err != nil {
			powerACK = false
		}
	}

	// A rejected channel-mask invalidates the whole block: the data-rate
	// and tx-power can not be evaluated against a mask that was never
	// valid, so all three ACK bits go out as 0.
	if !chMaskACK {
		dataRateACK = false
		powerACK = false
	}

	// The requested data-rate must be served by at least one channel that
	// remains enabled.
	if chMaskACK && dataRateACK {
		var served bool
		for i, c := range ctx.Plan.Channels() {
			if mask[i] && dr >= c.MinDR && dr <= c.MaxDR {
				served = true
				break
			}
		}
		if !served {
			dataRateACK = false
		}
	}

	if chMaskACK && dataRateACK && powerACK {
		if err := ctx.Plan.SetEnabledMask(mask); err != nil {
			chMaskACK = false
		} else {
			ctx.Session.DR = dr
			ctx.Session.TXPowerIndex = txPower
			nbTrans := last.Redundancy.NbRep
			if nbTrans == 0 {
				nbTrans = 1
			}
			ctx.Session.NbTrans = nbTrans
			ctx.Session.Channels = ctx.Plan.Snapshot()

			log.WithFields(log.Fields{
				"dev_addr": ctx.Session.DevAddr,
				"dr":       dr,
				"tx_power": txPower,
				"nb_trans": nbTrans,
			}).Info("maccommand: link_adr_req block applied")
		}
	}

	if !chMaskACK || !dataRateACK || !powerACK {
		log.WithFields(log.Fields{
			"dev_addr":         ctx.Session.DevAddr,
			"channel_mask_ack": chMaskACK,
			"data_rate_ack":    dataRateACK,
			"power_ack":        powerACK,
		}).Warning("maccommand: link_adr_req block rejected")
	}

	q.Add(QueueItem{
		CID: lorawan.LinkADRAns,
		Payload: &lorawan.LinkADRAnsPayload{
			ChannelMaskACK: chMaskACK,
			DataRateACK:    dataRateACK,
			PowerACK:       powerACK,
		},
	})
}
