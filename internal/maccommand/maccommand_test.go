package maccommand

import (
	"testing"

	"github.com/brocaar/lorawan"
	"github.com/stretchr/testify/require"

	"github.com/loraedge/loramac/band"
	"github.com/loraedge/loramac/internal/dutycycle"
	"github.com/loraedge/loramac/internal/session"
)

func testContext(t *testing.T, name band.Name) *Context {
	t.Helper()

	b, err := band.GetConfig(name, lorawan.DwellTimeNoLimit)
	require.NoError(t, err)

	sess := session.NewSession(b)
	sess.DevAddr = lorawan.DevAddr{1, 2, 3, 4}

	return &Context{
		Session: &sess,
		Plan:    band.NewChannelPlan(b),
		Band:    b,
		Ledger:  dutycycle.NewLedger(b),
		RXSNR:   7,
	}
}

func queuedAns(t *testing.T, q *Queue, cid lorawan.CID) lorawan.MACCommandPayload {
	t.Helper()
	for _, cmd := range q.Uplink() {
		if cmd.CID == cid {
			return cmd.Payload
		}
	}
	t.Fatalf("cid %d not queued", cid)
	return nil
}

func TestHandleUnknownCIDStopsProcessing(t *testing.T) {
	assert := require.New(t)
	ctx := testContext(t, band.EU868)
	var q Queue

	cmds := []lorawan.Payload{
		&lorawan.MACCommand{CID: lorawan.RXTimingSetupReq, Payload: &lorawan.RXTimingSetupReqPayload{Delay: 3}},
		&lorawan.MACCommand{CID: lorawan.CID(0x7f)},
		&lorawan.MACCommand{CID: lorawan.DutyCycleReq, Payload: &lorawan.DutyCycleReqPayload{MaxDCycle: 4}},
	}
	assert.NoError(Handle(ctx, &q, cmds))

	// The command before the unknown CID was processed, the one after
	// was not.
	assert.EqualValues(3, ctx.Session.RX1Delay)
	assert.EqualValues(0, ctx.Ledger.MaxDutyCycle())
	assert.Equal(1, q.Len())
}

func TestHandleDutyCycleReq(t *testing.T) {
	assert := require.New(t)
	ctx := testContext(t, band.EU868)
	var q Queue

	assert.NoError(Handle(ctx, &q, []lorawan.Payload{
		&lorawan.MACCommand{CID: lorawan.DutyCycleReq, Payload: &lorawan.DutyCycleReqPayload{MaxDCycle: 7}},
	}))
	assert.EqualValues(7, ctx.Ledger.MaxDutyCycle())

	cmds := q.Uplink()
	assert.Len(cmds, 1)
	assert.Equal(lorawan.DutyCycleAns, cmds[0].CID)
}

func TestHandleRXParamSetupReq(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		assert := require.New(t)
		ctx := testContext(t, band.EU868)
		var q Queue

		assert.NoError(Handle(ctx, &q, []lorawan.Payload{
			&lorawan.MACCommand{CID: lorawan.RXParamSetupReq, Payload: &lorawan.RXParamSetupReqPayload{
				Frequency: 869525000,
				DLSettings: lorawan.DLSettings{
					RX1DROffset: 2,
					RX2DataRate: 3,
				},
			}},
		}))

		assert.EqualValues(2, ctx.Session.RX1DROffset)
		assert.Equal(3, ctx.Session.RX2DataRate)
		assert.EqualValues(869525000, ctx.Session.RX2Frequency)

		pl := queuedAns(t, &q, lorawan.RXParamSetupAns).(*lorawan.RXParamSetupAnsPayload)
		assert.Equal(&lorawan.RXParamSetupAnsPayload{
			ChannelACK:     true,
			RX1DROffsetACK: true,
			RX2DataRateACK: true,
		}, pl)
	})

	t.Run("rejected leaves session untouched", func(t *testing.T) {
		assert := require.New(t)
		ctx := testContext(t, band.EU868)
		var q Queue

		assert.NoError(Handle(ctx, &q, []lorawan.Payload{
			&lorawan.MACCommand{CID: lorawan.RXParamSetupReq, Payload: &lorawan.RXParamSetupReqPayload{
				Frequency: 869525000,
				DLSettings: lorawan.DLSettings{
					RX1DROffset: 7,
					RX2DataRate: 3,
				},
			}},
		}))

		assert.EqualValues(0, ctx.Session.RX1DROffset)
		assert.EqualValues(869525000, ctx.Session.RX2Frequency)

		pl := queuedAns(t, &q, lorawan.RXParamSetupAns).(*lorawan.RXParamSetupAnsPayload)
		assert.False(pl.RX1DROffsetACK)
		assert.True(pl.ChannelACK)
		assert.True(pl.RX2DataRateACK)
	})
}

func TestHandleDevStatusReq(t *testing.T) {
	tests := []struct {
		name            string
		batteryLevel    func() (float64, bool)
		expectedBattery uint8
	}{
		{
			name:            "unknown",
			expectedBattery: 255,
		},
		{
			name:            "external power",
			batteryLevel:    func() (float64, bool) { return 0, true },
			expectedBattery: 0,
		},
		{
			name:            "full",
			batteryLevel:    func() (float64, bool) { return 1, true },
			expectedBattery: 254,
		},
		{
			name:            "half",
			batteryLevel:    func() (float64, bool) { return 0.5, true },
			expectedBattery: 127,
		},
	}

	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			assert := require.New(t)
			ctx := testContext(t, band.EU868)
			ctx.BatteryLevel = tst.batteryLevel
			var q Queue

			assert.NoError(Handle(ctx, &q, []lorawan.Payload{
				&lorawan.MACCommand{CID: lorawan.DevStatusReq},
			}))

			pl := queuedAns(t, &q, lorawan.DevStatusAns).(*lorawan.DevStatusAnsPayload)
			assert.Equal(tst.expectedBattery, pl.Battery)
			assert.EqualValues(7, pl.Margin)
		})
	}
}

func TestHandleNewChannelReq(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		assert := require.New(t)
		ctx := testContext(t, band.EU868)
		var q Queue

		assert.NoError(Handle(ctx, &q, []lorawan.Payload{
			&lorawan.MACCommand{CID: lorawan.NewChannelReq, Payload: &lorawan.NewChannelReqPayload{
				ChIndex: 3,
				Freq:    867100000,
				MinDR:   0,
				MaxDR:   5,
			}},
		}))

		c, err := ctx.Plan.Channel(3)
		assert.NoError(err)
		assert.EqualValues(867100000, c.Frequency)

		pl := queuedAns(t, &q, lorawan.NewChannelAns).(*lorawan.NewChannelAnsPayload)
		assert.True(pl.ChannelFrequencyOK)
		assert.True(pl.DataRateRangeOK)
	})

	t.Run("default channel silently ignored", func(t *testing.T) {
		assert := require.New(t)
		ctx := testContext(t, band.EU868)
		var q Queue

		assert.NoError(Handle(ctx, &q, []lorawan.Payload{
			&lorawan.MACCommand{CID: lorawan.NewChannelReq, Payload: &lorawan.NewChannelReqPayload{
				ChIndex: 0,
				Freq:    867100000,
				MinDR:   0,
				MaxDR:   5,
			}},
		}))
		assert.Equal(0, q.Len())
	})

	t.Run("fixed plan rejects", func(t *testing.T) {
		assert := require.New(t)
		ctx := testContext(t, band.US915)
		var q Queue

		assert.NoError(Handle(ctx, &q, []lorawan.Payload{
			&lorawan.MACCommand{CID: lorawan.NewChannelReq, Payload: &lorawan.NewChannelReqPayload{
				ChIndex: 72,
				Freq:    903000000,
				MinDR:   0,
				MaxDR:   3,
			}},
		}))

		pl := queuedAns(t, &q, lorawan.NewChannelAns).(*lorawan.NewChannelAnsPayload)
		assert.False(pl.ChannelFrequencyOK)
	})
}

func TestHandleDLChannelReq(t *testing.T) {
	assert := require.New(t)
	ctx := testContext(t, band.EU868)
	var q Queue

	assert.NoError(Handle(ctx, &q, []lorawan.Payload{
		&lorawan.MACCommand{CID: lorawan.DLChannelReq, Payload: &lorawan.DLChannelReqPayload{
			ChIndex: 0,
			Freq:    868900000,
		}},
	}))

	freq, err := ctx.Plan.DownlinkFrequency(0)
	assert.NoError(err)
	assert.EqualValues(868900000, freq)

	pl := queuedAns(t, &q, lorawan.DLChannelAns).(*lorawan.DLChannelAnsPayload)
	assert.True(pl.UplinkFrequencyExists)
	assert.True(pl.ChannelFrequencyOK)
}

func TestHandleRXTimingSetupReq(t *testing.T) {
	assert := require.New(t)
	ctx := testContext(t, band.EU868)
	var q Queue

	assert.NoError(Handle(ctx, &q, []lorawan.Payload{
		&lorawan.MACCommand{CID: lorawan.RXTimingSetupReq, Payload: &lorawan.RXTimingSetupReqPayload{Delay: 0}},
	}))

	// Delay 0 means 1 second.
	assert.EqualValues(1, ctx.Session.RX1Delay)
	queuedAns(t, &q, lorawan.RXTimingSetupAns)
}

func TestHandleTXParamSetupReq(t *testing.T) {
	t.Run("dwell region applies", func(t *testing.T) {
		assert := require.New(t)
		ctx := testContext(t, band.AS923)
		var q Queue

		assert.NoError(Handle(ctx, &q, []lorawan.Payload{
			&lorawan.MACCommand{CID: lorawan.TXParamSetupReq, Payload: &lorawan.TXParamSetupReqPayload{
				UplinkDwellTime:   lorawan.DwellTime400ms,
				DownlinkDwelltime: lorawan.DwellTime400ms,
				MaxEIRP:           5,
			}},
		}))

		assert.True(ctx.Session.UplinkDwellTime400ms)
		assert.True(ctx.Session.DownlinkDwellTime400ms)
		assert.EqualValues(5, ctx.Session.MaxEIRPIndex)
		queuedAns(t, &q, lorawan.TXParamSetupAns)
	})

	t.Run("non-dwell region ignores", func(t *testing.T) {
		assert := require.New(t)
		ctx := testContext(t, band.EU868)
		var q Queue

		assert.NoError(Handle(ctx, &q, []lorawan.Payload{
			&lorawan.MACCommand{CID: lorawan.TXParamSetupReq, Payload: &lorawan.TXParamSetupReqPayload{}},
		}))
		assert.Equal(0, q.Len())
	})
}

func TestHandleLinkCheckAns(t *testing.T) {
	assert := require.New(t)
	ctx := testContext(t, band.EU868)

	var gotMargin, gotGwCnt uint8
	ctx.OnLinkCheck = func(margin, gwCnt uint8) {
		gotMargin, gotGwCnt = margin, gwCnt
	}

	var q Queue
	assert.NoError(Handle(ctx, &q, []lorawan.Payload{
		&lorawan.MACCommand{CID: lorawan.LinkCheckAns, Payload: &lorawan.LinkCheckAnsPayload{Margin: 10, GwCnt: 2}},
	}))

	assert.EqualValues(10, gotMargin)
	assert.EqualValues(2, gotGwCnt)
	assert.Equal(0, q.Len())
}
