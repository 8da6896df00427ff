package loramac

import (
	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/loraedge/loramac/internal/maccommand"
	"github.com/loraedge/loramac/internal/session"
)

// buildDataUplink seals a data uplink for the current FCntUp, piggy-backing
// the queued MAC answers in FOpts.
func (d *Device) buildDataUplink(port uint8, data []byte, confirmed bool) (lorawan.PHYPayload, error) {
	mType := lorawan.UnconfirmedDataUp
	if confirmed {
		mType = lorawan.ConfirmedDataUp
	}

	var fOpts []lorawan.Payload
	for _, cmd := range d.queue.Uplink() {
		cmd := cmd
		fOpts = append(fOpts, &cmd)
	}

	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{
			MType: mType,
			Major: lorawan.LoRaWANR1,
		},
		MACPayload: &lorawan.MACPayload{
			FHDR: lorawan.FHDR{
				DevAddr: d.sess.DevAddr,
				FCtrl: lorawan.FCtrl{
					ADR:       d.sess.ADR,
					ADRACKReq: d.sess.ADR && d.adrAckCnt >= d.band.ADRACKLimit(),
					ACK:       d.ackPending,
				},
				FCnt:  d.sess.FCntUp,
				FOpts: fOpts,
			},
			FPort:      &port,
			FRMPayload: []lorawan.Payload{&lorawan.DataPayload{Bytes: data}},
		},
	}

	if err := phy.EncryptFRMPayload(d.sess.AppSKey); err != nil {
		return phy, errors.Wrap(err, "encrypt frmpayload error")
	}
	if err := phy.SetUplinkDataMIC(lorawan.LoRaWAN1_0, 0, 0, 0, d.sess.NwkSKey, d.sess.NwkSKey); err != nil {
		return phy, errors.Wrap(err, "set uplink mic error")
	}
	return phy, nil
}

// downlinkResult is the outcome of processing one received downlink frame.
type downlinkResult struct {
	ack     bool
	port    uint8
	data    []byte
	hasData bool
}

// processDownlink verifies and consumes a downlink frame. It returns
// ok=false for every protocol failure (wrong address, MAC commands in both
// FOpts and port 0, replay, invalid MIC); such frames are dropped without
// touching any persisted state. MAC commands that fail to decode are logged
// and skipped; the authenticated frame itself is still accepted.
func (d *Device) processDownlink(pkt *RXPacket) (downlinkResult, bool) {
	var res downlinkResult

	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(pkt.Bytes); err != nil {
		log.WithError(err).Debug("device: unmarshal downlink error")
		return res, false
	}
	if phy.MHDR.MType != lorawan.UnconfirmedDataDown && phy.MHDR.MType != lorawan.ConfirmedDataDown {
		log.WithField("m_type", phy.MHDR.MType).Debug("device: unexpected downlink m-type")
		return res, false
	}

	macPL, ok := phy.MACPayload.(*lorawan.MACPayload)
	if !ok {
		return res, false
	}
	if macPL.FHDR.DevAddr != d.sess.DevAddr {
		log.WithFields(log.Fields{
			"expected": d.sess.DevAddr,
			"received": macPL.FHDR.DevAddr,
		}).Debug("device: devaddr mismatch")
		return res, false
	}

	// MAC commands must come either in FOpts or on port 0, never both.
	if len(macPL.FHDR.FOpts) > 0 && macPL.FPort != nil && *macPL.FPort == 0 {
		log.Debug("device: downlink carries mac-commands in both fopts and port 0, dropped")
		return res, false
	}

	// Extend the 16 transmitted counter bits to 32 bits and reject
	// replays before spending any crypto on the frame.
	appFrame := macPL.FPort != nil && *macPL.FPort > 0
	stored, seen := d.sess.NFCntDown, d.sess.NFCntDownSeen
	if appFrame {
		stored, seen = d.sess.AFCntDown, d.sess.AFCntDownSeen
	}
	fullFCnt, ok := session.ValidateAndExtendFCntDown(stored, seen, macPL.FHDR.FCnt, d.band.MaxFCntGap())
	if !ok && !d.sess.SkipFCntCheck {
		log.WithFields(log.Fields{
			"fcnt_down": macPL.FHDR.FCnt,
			"stored":    stored,
		}).Debug("device: fcnt-down replay or out of window, dropped")
		return res, false
	}
	if d.sess.SkipFCntCheck && !ok {
		fullFCnt = macPL.FHDR.FCnt
	}
	macPL.FHDR.FCnt = fullFCnt

	valid, err := phy.ValidateDownlinkDataMIC(lorawan.LoRaWAN1_0, 0, d.sess.NwkSKey)
	if err != nil || !valid {
		log.Debug("device: downlink mic invalid, dropped")
		return res, false
	}

	// The frame is authentic: commit the counter and reset the ADR
	// silence counter.
	if appFrame {
		d.sess.AFCntDown = fullFCnt
		d.sess.AFCntDownSeen = true
	} else {
		d.sess.NFCntDown = fullFCnt
		d.sess.NFCntDownSeen = true
	}
	d.adrAckCnt = 0
	d.queue.DownlinkReceived()

	res.ack = macPL.FHDR.FCtrl.ACK
	d.ackPending = phy.MHDR.MType == lorawan.ConfirmedDataDown
	d.lastRX = &RXQuality{RSSI: pkt.RSSI, SNR: pkt.SNR}

	// FOpts MAC commands.
	if len(macPL.FHDR.FOpts) > 0 {
		if err := phy.DecodeFOptsToMACCommands(); err != nil {
			log.WithError(err).Debug("device: decode fopts error")
		} else {
			macPL = phy.MACPayload.(*lorawan.MACPayload)
			if err := maccommand.Handle(d.macContext(), d.queue, macPL.FHDR.FOpts); err != nil {
				log.WithError(err).Error("device: handle fopts mac-commands error")
			}
		}
	}

	// FRMPayload: MAC commands on port 0, application data otherwise.
	if macPL.FPort != nil {
		if *macPL.FPort == 0 {
			if err := phy.DecryptFRMPayload(d.sess.NwkSKey); err != nil {
				log.WithError(err).Debug("device: decrypt port-0 frmpayload error")
			} else {
				macPL = phy.MACPayload.(*lorawan.MACPayload)
				if err := maccommand.Handle(d.macContext(), d.queue, macPL.FRMPayload); err != nil {
					log.WithError(err).Error("device: handle port-0 mac-commands error")
				}
			}
		} else {
			if err := phy.DecryptFRMPayload(d.sess.AppSKey); err != nil {
				log.WithError(err).Debug("device: decrypt frmpayload error")
			} else {
				macPL = phy.MACPayload.(*lorawan.MACPayload)
				res.port = *macPL.FPort
				res.hasData = true
				for _, pl := range macPL.FRMPayload {
					if data, ok := pl.(*lorawan.DataPayload); ok {
						res.data = data.Bytes
					}
				}
			}
		}
	}

	// Keep counters and sticky-answer state durable across power cycles.
	if err := d.store.Persist(*d.sess, true); err != nil {
		log.WithError(err).Error("device: persist after downlink error")
	}

	log.WithFields(log.Fields{
		"dev_addr":  d.sess.DevAddr,
		"fcnt_down": fullFCnt,
		"ack":       res.ack,
		"has_data":  res.hasData,
	}).Info("device: downlink processed")
	return res, true
}
