package loramac

import (
	"context"
	"time"

	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/loraedge/loramac/band"
	"github.com/loraedge/loramac/internal/maccommand"
	"github.com/loraedge/loramac/internal/session"
)

// Join runs one OTAA attempt: a JoinRequest with a fresh DevNonce is
// transmitted on each channel of the regional join rotation until a valid
// JoinAccept arrives in one of the receive windows. The attempt honors the
// join air-time budgets; a further call continues the rotation with the
// next DevNonce.
func (d *Device) Join(ctx context.Context) (SessionSummary, error) {
	if !d.mu.TryLock() {
		return SessionSummary{}, ErrBusy
	}
	defer d.mu.Unlock()

	d.setState(StateJoining)

	// The DevNonce is strictly increasing and persisted before the
	// request goes on air, so a power cycle can never reuse one.
	var nonce uint16
	if d.devNonceUsed {
		if d.devNonce == 0xFFFF {
			d.setState(StateUnjoined)
			return SessionSummary{}, ErrNonceExhausted
		}
		nonce = d.devNonce + 1
	}
	if err := d.store.StoreDevNonce(nonce); err != nil {
		d.setState(StateUnjoined)
		return SessionSummary{}, errors.Wrap(ErrPersistence, err.Error())
	}
	d.devNonce = nonce
	d.devNonceUsed = true

	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{
			MType: lorawan.JoinRequest,
			Major: lorawan.LoRaWANR1,
		},
		MACPayload: &lorawan.JoinRequestPayload{
			JoinEUI:  d.identity.JoinEUI,
			DevEUI:   d.identity.DevEUI,
			DevNonce: lorawan.DevNonce(nonce),
		},
	}
	if err := phy.SetUplinkJoinMIC(d.identity.NwkKey); err != nil {
		d.setState(StateUnjoined)
		return SessionSummary{}, errors.Wrap(err, "set join mic error")
	}
	payload, err := phy.MarshalBinary()
	if err != nil {
		d.setState(StateUnjoined)
		return SessionSummary{}, errors.Wrap(err, "marshal join-request error")
	}

	deadline, _ := ctx.Deadline()

	for _, chIdx := range d.plan.JoinChannels(d.cfg.RNG) {
		ch, err := d.plan.Channel(chIdx)
		if err != nil {
			continue
		}

		// Dynamic regions join at the highest rate of the channel,
		// fixed grids at the lowest (DR0 on 125 kHz, DR4/DR6 on the
		// 500 kHz block).
		joinDR := ch.MinDR
		if d.band.Kind() == band.Dynamic {
			joinDR = ch.MaxDR
		}

		toa, err := d.txAirtime(len(payload), joinDR)
		if err != nil {
			continue
		}

		txAt := d.ledger.EarliestTX(ch.Frequency, d.cfg.Timer.Now())
		if t := d.joinBudget.NextAllowed(toa, txAt); t.After(txAt) {
			txAt = t
		}
		if d.nextJoinTry.After(txAt) {
			txAt = d.nextJoinTry
		}
		if !deadline.IsZero() && txAt.After(deadline) {
			d.setState(StateUnjoined)
			return SessionSummary{}, errors.Wrapf(ErrNoAirtime, "join budget delays tx to %s", txAt)
		}
		if err := d.cfg.Timer.SleepUntil(ctx, txAt); err != nil {
			d.setState(StateUnjoined)
			return SessionSummary{}, err
		}

		txEnd, err := d.transmit(ctx, ch.Frequency, joinDR, d.band.MaxEIRP(), payload)
		if err != nil {
			d.setState(StateUnjoined)
			return SessionSummary{}, err
		}
		d.ledger.Record(ch.Frequency, txEnd, toa)
		d.joinBudget.Record(txEnd, toa)

		rx1Freq, err := d.plan.DownlinkFrequency(chIdx)
		if err != nil {
			rx1Freq = d.band.RX1Frequency(chIdx, ch.Frequency)
		}
		rx1DR, err := d.band.RX1DataRate(joinDR, 0)
		if err != nil {
			rx1DR = d.band.RX2DataRate()
		}

		pkt, err := d.awaitDownlink(ctx, txEnd, d.band.JoinAcceptDelay1(),
			rx1Freq, rx1DR, d.band.RX2Frequency(), d.band.RX2DataRate())
		if err != nil {
			d.setState(StateUnjoined)
			return SessionSummary{}, err
		}
		if pkt != nil {
			if summary, ok := d.handleJoinAccept(pkt, nonce); ok {
				return summary, nil
			}
		}

		// Pause 1..2 s between channel tries.
		pause := time.Second + time.Duration(d.cfg.RNG.Uint32()%1000)*time.Millisecond
		if err := d.cfg.Timer.SleepUntil(ctx, d.cfg.Timer.Now().Add(pause)); err != nil {
			d.setState(StateUnjoined)
			return SessionSummary{}, err
		}
	}

	d.joinAttempt++
	d.setState(StateUnjoined)
	log.WithFields(log.Fields{
		"dev_eui": d.identity.DevEUI,
		"attempt": d.joinAttempt,
	}).Info("device: join attempt exhausted without join-accept")
	return SessionSummary{}, ErrNoJoinAccept
}

// handleJoinAccept decrypts and validates a JoinAccept candidate and, on
// success, derives and installs the session. A frame that fails any check
// is dropped and the join attempt continues.
func (d *Device) handleJoinAccept(pkt *RXPacket, nonce uint16) (SessionSummary, bool) {
	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(pkt.Bytes); err != nil {
		log.WithError(err).Debug("device: unmarshal join-accept error")
		return SessionSummary{}, false
	}
	if phy.MHDR.MType != lorawan.JoinAccept {
		return SessionSummary{}, false
	}
	if err := phy.DecryptJoinAcceptPayload(d.identity.NwkKey); err != nil {
		log.WithError(err).Debug("device: decrypt join-accept error")
		return SessionSummary{}, false
	}
	valid, err := phy.ValidateDownlinkJoinMIC(lorawan.JoinRequestType, d.identity.JoinEUI, lorawan.DevNonce(nonce), d.identity.NwkKey)
	if err != nil || !valid {
		log.Debug("device: join-accept mic invalid, dropped")
		return SessionSummary{}, false
	}

	jaPL, ok := phy.MACPayload.(*lorawan.JoinAcceptPayload)
	if !ok {
		return SessionSummary{}, false
	}

	nwkSKey, appSKey, err := session.DeriveSessionKeys(d.identity.NwkKey, jaPL.JoinNonce, jaPL.HomeNetID, lorawan.DevNonce(nonce))
	if err != nil {
		log.WithError(err).Error("device: derive session keys error")
		return SessionSummary{}, false
	}

	sess := session.NewSession(d.band)
	sess.DevAddr = jaPL.DevAddr
	sess.NwkSKey = nwkSKey
	sess.AppSKey = appSKey

	// Apply DLSettings when valid for this region, keep the regional
	// defaults otherwise.
	if _, err := d.band.RX1DataRate(sess.DR, int(jaPL.DLSettings.RX1DROffset)); err == nil {
		sess.RX1DROffset = jaPL.DLSettings.RX1DROffset
	}
	if _, err := d.band.DataRate(int(jaPL.DLSettings.RX2DataRate)); err == nil {
		sess.RX2DataRate = int(jaPL.DLSettings.RX2DataRate)
	}
	if delay := jaPL.RXDelay & 0x0f; delay != 0 {
		sess.RX1Delay = delay
	}

	// The channel-plan after a join is exactly the regional defaults plus
	// the CFList.
	d.plan = band.NewChannelPlan(d.band)
	if jaPL.CFList != nil {
		if err := d.plan.ApplyCFList(*jaPL.CFList); err != nil {
			log.WithError(err).Warning("device: apply cflist error")
		}
	}
	sess.Channels = d.plan.Snapshot()

	if err := d.store.Persist(sess, true); err != nil {
		// Without durable session state the join must not count:
		// remain unjoined.
		log.WithError(err).Error("device: persist join session error, discarding session")
		return SessionSummary{}, false
	}

	d.sess = &sess
	d.adrAckCnt = 0
	d.ackPending = false
	d.queue = &maccommand.Queue{}
	d.joinAttempt = 0
	d.nextJoinTry = time.Time{}
	d.setState(StateIdle)

	log.WithFields(log.Fields{
		"dev_eui":  d.identity.DevEUI,
		"dev_addr": sess.DevAddr,
	}).Info("device: join accepted, session established")

	return SessionSummary{DevAddr: sess.DevAddr, FCntUp: sess.FCntUp, DR: sess.DR}, true
}
