package simulator

import (
	"sync"
	"time"

	"github.com/brocaar/lorawan"
	log "github.com/sirupsen/logrus"

	loramac "github.com/loraedge/loramac"
	"github.com/loraedge/loramac/band"
	"github.com/loraedge/loramac/internal/session"
)

// DownlinkItem is a downlink the scripted network server transmits in the
// RX1 window following the next uplink.
type DownlinkItem struct {
	Port      uint8
	Data      []byte
	Confirmed bool
	FOpts     []lorawan.MACCommand

	// FRMCommands carries MAC commands on port 0 in the (encrypted)
	// FRMPayload instead of FOpts.
	FRMCommands []lorawan.MACCommand

	// FCntOverride forces the downlink counter instead of the server's
	// own counter, for replay scenarios.
	FCntOverride *uint32
}

// UplinkRecord is one uplink observed by the network server.
type UplinkRecord struct {
	PHY          lorawan.PHYPayload
	FCnt         uint32
	Confirmed    bool
	ADRACKReq    bool
	Frequency    uint32
	SpreadFactor int
}

// NetworkServer scripts the network side of the exchange: it answers join
// requests and serves queued downlinks, sealing every frame with the real
// codec.
type NetworkServer struct {
	Band band.Band

	AppKey    lorawan.AES128Key
	NetID     lorawan.NetID
	DevAddr   lorawan.DevAddr
	JoinNonce lorawan.JoinNonce
	RXDelay   uint8
	CFList    *lorawan.CFList

	// AcceptJoin answers join requests when true.
	AcceptJoin bool

	// AckConfirmed acknowledges confirmed uplinks when true.
	AckConfirmed bool

	mu       sync.Mutex
	NwkSKey  lorawan.AES128Key
	AppSKey  lorawan.AES128Key
	FCntDown uint32
	Queue    []DownlinkItem
	Uplinks  []UplinkRecord
	Joins    []lorawan.JoinRequestPayload
}

// QueueDownlink schedules a downlink for the next uplink's RX1 window.
func (ns *NetworkServer) QueueDownlink(item DownlinkItem) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.Queue = append(ns.Queue, item)
}

// Handler returns the radio handler implementing the server.
func (ns *NetworkServer) Handler() func(tx TXEvent) []ScheduledRX {
	return func(tx TXEvent) []ScheduledRX {
		var phy lorawan.PHYPayload
		if err := phy.UnmarshalBinary(tx.Payload); err != nil {
			log.WithError(err).Error("simulator: unmarshal uplink error")
			return nil
		}

		switch phy.MHDR.MType {
		case lorawan.JoinRequest:
			return ns.handleJoinRequest(tx, phy)
		case lorawan.UnconfirmedDataUp, lorawan.ConfirmedDataUp:
			return ns.handleDataUp(tx, phy)
		default:
			return nil
		}
	}
}

func (ns *NetworkServer) handleJoinRequest(tx TXEvent, phy lorawan.PHYPayload) []ScheduledRX {
	jrPL, ok := phy.MACPayload.(*lorawan.JoinRequestPayload)
	if !ok {
		return nil
	}

	ns.mu.Lock()
	ns.Joins = append(ns.Joins, *jrPL)
	ns.mu.Unlock()

	if !ns.AcceptJoin {
		return nil
	}

	ja := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{
			MType: lorawan.JoinAccept,
			Major: lorawan.LoRaWANR1,
		},
		MACPayload: &lorawan.JoinAcceptPayload{
			JoinNonce: ns.JoinNonce,
			HomeNetID: ns.NetID,
			DevAddr:   ns.DevAddr,
			RXDelay:   ns.RXDelay,
			CFList:    ns.CFList,
		},
	}
	if err := ja.SetDownlinkJoinMIC(lorawan.JoinRequestType, jrPL.JoinEUI, jrPL.DevNonce, ns.AppKey); err != nil {
		log.WithError(err).Error("simulator: set join-accept mic error")
		return nil
	}
	if err := ja.EncryptJoinAcceptPayload(ns.AppKey); err != nil {
		log.WithError(err).Error("simulator: encrypt join-accept error")
		return nil
	}
	b, err := ja.MarshalBinary()
	if err != nil {
		return nil
	}

	nwkSKey, appSKey, err := session.DeriveSessionKeys(ns.AppKey, ns.JoinNonce, ns.NetID, jrPL.DevNonce)
	if err != nil {
		log.WithError(err).Error("simulator: derive session keys error")
		return nil
	}

	ns.mu.Lock()
	ns.NwkSKey = nwkSKey
	ns.AppSKey = appSKey
	ns.FCntDown = 0
	ns.mu.Unlock()

	return []ScheduledRX{{
		At:        tx.TXEnd.Add(ns.Band.JoinAcceptDelay1()),
		Frequency: ns.rx1Frequency(tx.Config.Frequency),
		Packet:    RXPacketFor(b),
	}}
}

func (ns *NetworkServer) handleDataUp(tx TXEvent, phy lorawan.PHYPayload) []ScheduledRX {
	macPL, ok := phy.MACPayload.(*lorawan.MACPayload)
	if !ok {
		return nil
	}
	confirmed := phy.MHDR.MType == lorawan.ConfirmedDataUp

	ns.mu.Lock()
	ns.Uplinks = append(ns.Uplinks, UplinkRecord{
		PHY:          phy,
		FCnt:         macPL.FHDR.FCnt,
		Confirmed:    confirmed,
		ADRACKReq:    macPL.FHDR.FCtrl.ADRACKReq,
		Frequency:    tx.Config.Frequency,
		SpreadFactor: tx.Config.SpreadFactor,
	})

	var item *DownlinkItem
	if len(ns.Queue) > 0 {
		item = &ns.Queue[0]
		ns.Queue = ns.Queue[1:]
	}
	ack := confirmed && ns.AckConfirmed
	fCnt := ns.FCntDown
	if item != nil && item.FCntOverride != nil {
		fCnt = *item.FCntOverride
	}
	nwkSKey, appSKey := ns.NwkSKey, ns.AppSKey
	rxDelay := ns.RXDelay
	ns.mu.Unlock()

	if item == nil && !ack {
		return nil
	}

	mType := lorawan.UnconfirmedDataDown
	var fOpts []lorawan.Payload
	var fPort *uint8
	var frmPayload []lorawan.Payload

	if item != nil {
		if item.Confirmed {
			mType = lorawan.ConfirmedDataDown
		}
		for i := range item.FOpts {
			fOpts = append(fOpts, &item.FOpts[i])
		}
		switch {
		case len(item.FRMCommands) > 0:
			var port uint8
			fPort = &port
			for i := range item.FRMCommands {
				frmPayload = append(frmPayload, &item.FRMCommands[i])
			}
		case item.Port != 0 || len(item.Data) > 0:
			port := item.Port
			fPort = &port
			frmPayload = []lorawan.Payload{&lorawan.DataPayload{Bytes: item.Data}}
		}
	}

	down := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{
			MType: mType,
			Major: lorawan.LoRaWANR1,
		},
		MACPayload: &lorawan.MACPayload{
			FHDR: lorawan.FHDR{
				DevAddr: ns.DevAddr,
				FCtrl:   lorawan.FCtrl{ACK: ack},
				FCnt:    fCnt,
				FOpts:   fOpts,
			},
			FPort:      fPort,
			FRMPayload: frmPayload,
		},
	}
	if fPort != nil {
		key := appSKey
		if *fPort == 0 {
			key = nwkSKey
		}
		if err := down.EncryptFRMPayload(key); err != nil {
			log.WithError(err).Error("simulator: encrypt downlink error")
			return nil
		}
	}
	if err := down.SetDownlinkDataMIC(lorawan.LoRaWAN1_0, 0, nwkSKey); err != nil {
		log.WithError(err).Error("simulator: set downlink mic error")
		return nil
	}
	b, err := down.MarshalBinary()
	if err != nil {
		return nil
	}

	ns.mu.Lock()
	if item == nil || item.FCntOverride == nil {
		ns.FCntDown++
	}
	ns.mu.Unlock()

	delay := time.Duration(rxDelay) * time.Second
	if rxDelay == 0 {
		delay = time.Second
	}
	return []ScheduledRX{{
		At:        tx.TXEnd.Add(delay),
		Frequency: ns.rx1Frequency(tx.Config.Frequency),
		Packet:    RXPacketFor(b),
	}}
}

// rx1Frequency maps an uplink frequency to its RX1 downlink frequency.
func (ns *NetworkServer) rx1Frequency(uplink uint32) uint32 {
	for i, c := range ns.Band.DefaultChannels() {
		if c.Frequency == uplink {
			return ns.Band.RX1Frequency(i, uplink)
		}
	}
	return ns.Band.RX1Frequency(0, uplink)
}

// RXPacketFor wraps frame bytes in an RXPacket with nominal quality.
func RXPacketFor(b []byte) loramac.RXPacket {
	return loramac.RXPacket{Bytes: b, RSSI: -60, SNR: 7}
}
