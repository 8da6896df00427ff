// Package maccommand processes the MAC commands received in downlink frames
// and builds the uplink answers. One file per command, mirroring the CID
// table of the LoRaWAN 1.0.4 specification.
package maccommand

import (
	"time"

	"github.com/brocaar/lorawan"
	log "github.com/sirupsen/logrus"

	"github.com/loraedge/loramac/band"
	"github.com/loraedge/loramac/internal/dutycycle"
	"github.com/loraedge/loramac/internal/session"
)

// Context carries the state a command handler may read or mutate, plus the
// host callbacks for commands that only surface information.
type Context struct {
	Session *session.Session
	Plan    *band.ChannelPlan
	Band    band.Band
	Ledger  *dutycycle.Ledger

	// RXSNR is the SNR of the downlink carrying the commands, used for
	// the DevStatusAns margin.
	RXSNR float64

	// BatteryLevel reports the battery charge in [0, 1]; ok is false when
	// unknown. Nil behaves as unknown.
	BatteryLevel func() (level float64, ok bool)

	// OnLinkCheck and OnDeviceTime surface LinkCheckAns / DeviceTimeAns
	// to the host. Either may be nil.
	OnLinkCheck  func(margin, gwCnt uint8)
	OnDeviceTime func(t time.Time)
}

// Handle processes the ordered command stream of one downlink frame and
// queues the answers. An unknown CID terminates processing of the
// remainder of the stream.
func Handle(ctx *Context, q *Queue, cmds []lorawan.Payload) error {
	for i := 0; i < len(cmds); i++ {
		mac, ok := cmds[i].(*lorawan.MACCommand)
		if !ok {
			log.WithField("payload", cmds[i]).Warning("maccommand: unexpected payload type, stopping")
			return nil
		}

		switch mac.CID {
		case lorawan.LinkCheckAns:
			handleLinkCheckAns(ctx, mac)
		case lorawan.LinkADRReq:
			// LinkADRReq commands form an atomic block; consume the
			// full contiguous run.
			j := i
			var block []*lorawan.MACCommand
			for ; j < len(cmds); j++ {
				m, ok := cmds[j].(*lorawan.MACCommand)
				if !ok || m.CID != lorawan.LinkADRReq {
					break
				}
				block = append(block, m)
			}
			handleLinkADRReqBlock(ctx, q, block)
			i = j - 1
		case lorawan.DutyCycleReq:
			handleDutyCycleReq(ctx, q, mac)
		case lorawan.RXParamSetupReq:
			handleRXParamSetupReq(ctx, q, mac)
		case lorawan.DevStatusReq:
			handleDevStatusReq(ctx, q)
		case lorawan.NewChannelReq:
			handleNewChannelReq(ctx, q, mac)
		case lorawan.DLChannelReq:
			handleDLChannelReq(ctx, q, mac)
		case lorawan.RXTimingSetupReq:
			handleRXTimingSetupReq(ctx, q, mac)
		case lorawan.TXParamSetupReq:
			handleTXParamSetupReq(ctx, q, mac)
		case lorawan.DeviceTimeAns:
			handleDeviceTimeAns(ctx, mac)
		default:
			log.WithFields(log.Fields{
				"cid": mac.CID,
			}).Warning("maccommand: unknown cid, stopping command processing")
			return nil
		}
	}
	return nil
}
