package cmd

import (
	"context"
	"time"

	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	loramac "github.com/loraedge/loramac"
	"github.com/loraedge/loramac/band"
	"github.com/loraedge/loramac/internal/simulator"
)

func run(cmd *cobra.Command, args []string) error {
	var devEUI, joinEUI lorawan.EUI64
	var appKey lorawan.AES128Key

	if err := devEUI.UnmarshalText([]byte(viper.GetString("device.dev_eui"))); err != nil {
		return errors.Wrap(err, "parse dev_eui error")
	}
	if err := joinEUI.UnmarshalText([]byte(viper.GetString("device.join_eui"))); err != nil {
		return errors.Wrap(err, "parse join_eui error")
	}
	if err := appKey.UnmarshalText([]byte(viper.GetString("device.app_key"))); err != nil {
		return errors.Wrap(err, "parse app_key error")
	}
	bandName := band.Name(viper.GetString("device.band"))

	b, err := band.GetConfig(bandName, lorawan.DwellTimeNoLimit)
	if err != nil {
		return err
	}

	clock := simulator.NewClock(time.Now())
	radio := simulator.NewRadio(clock)
	ns := &simulator.NetworkServer{
		Band:         b,
		AppKey:       appKey,
		NetID:        lorawan.NetID{0x00, 0x00, 0x13},
		DevAddr:      lorawan.DevAddr{0x26, 0x01, 0x1b, 0xda},
		JoinNonce:    1,
		RXDelay:      1,
		AcceptJoin:   true,
		AckConfirmed: true,
	}
	radio.Handler = ns.Handler()

	dev, err := loramac.New(loramac.Config{
		Band: bandName,
		Identity: loramac.DeviceIdentity{
			DevEUI:  devEUI,
			JoinEUI: joinEUI,
			AppKey:  appKey,
		},
		Radio:   radio,
		Timer:   clock,
		RNG:     simulator.NewRNG(uint32(time.Now().UnixNano())),
		Storage: simulator.NewStorage(),
		Events: loramac.Events{
			StateChanged: func(s loramac.State) {
				log.WithField("state", s).Debug("sim: state changed")
			},
		},
	})
	if err != nil {
		return err
	}

	summary, err := dev.Join(context.Background())
	if err != nil {
		return errors.Wrap(err, "join error")
	}
	log.WithFields(log.Fields{
		"dev_addr": summary.DevAddr,
	}).Info("sim: joined")

	port := uint8(viper.GetInt("simulation.fport"))
	confirmed := viper.GetBool("simulation.confirmed")
	for i := 0; i < viper.GetInt("simulation.uplinks"); i++ {
		outcome, err := dev.Send(context.Background(), port, []byte{0xca, 0xfe}, confirmed)
		if err != nil {
			return errors.Wrap(err, "send error")
		}
		log.WithFields(log.Fields{
			"uplink":       i + 1,
			"ack":          outcome.ACK,
			"has_downlink": outcome.Downlink != nil,
		}).Info("sim: uplink complete")
	}

	log.WithFields(log.Fields{
		"tx_count": radio.TXCount(),
	}).Info("sim: done")
	return nil
}
