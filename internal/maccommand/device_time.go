package maccommand

import (
	"github.com/brocaar/lorawan"
	log "github.com/sirupsen/logrus"

	"github.com/loraedge/loramac/internal/gps"
)

// RequestDeviceTime returns the queue item for an uplink DeviceTimeReq.
func RequestDeviceTime() QueueItem {
	return QueueItem{CID: lorawan.DeviceTimeReq}
}

// handleDeviceTimeAns converts the GPS-epoch timestamp to wall-clock time
// and surfaces it to the host.
func handleDeviceTimeAns(ctx *Context, cmd *lorawan.MACCommand) {
	pl, ok := cmd.Payload.(*lorawan.DeviceTimeAnsPayload)
	if !ok {
		log.WithField("payload", cmd.Payload).Error("maccommand: expected *lorawan.DeviceTimeAnsPayload")
		return
	}

	t := gps.TimeFromGPSEpoch(pl.TimeSinceGPSEpoch)
	log.WithFields(log.Fields{
		"dev_addr":        ctx.Session.DevAddr,
		"time_since_gps":  pl.TimeSinceGPSEpoch,
		"wall_clock_time": t,
	}).Info("maccommand: device_time_ans received")

	if ctx.OnDeviceTime != nil {
		ctx.OnDeviceTime(t)
	}
}
