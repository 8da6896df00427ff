package maccommand

import (
	"github.com/brocaar/lorawan"
)

// Battery byte of DevStatusAns: 0 means external power, 255 means the level
// could not be measured.
const (
	batteryExternal = 0
	batteryUnknown  = 255
)

// handleDevStatusReq answers with the battery level reported by the host
// and the SNR of the downlink carrying the request.
func handleDevStatusReq(ctx *Context, q *Queue) {
	battery := uint8(batteryUnknown)
	if ctx.BatteryLevel != nil {
		if level, ok := ctx.BatteryLevel(); ok {
			if level <= 0 {
				battery = batteryExternal
			} else {
				battery = uint8(level*253) + 1
			}
		}
	}

	margin := int8(clampMargin(ctx.RXSNR))

	q.Add(QueueItem{
		CID: lorawan.DevStatusAns,
		Payload: &lorawan.DevStatusAnsPayload{
			Battery: battery,
			Margin:  margin,
		},
	})
}

func clampMargin(snr float64) int {
	m := int(snr)
	if m < -32 {
		m = -32
	}
	if m > 31 {
		m = 31
	}
	return m
}
