// Package loramac implements the MAC layer of a LoRaWAN 1.0.4 Class A
// end-device: OTAA join, session management, uplink scheduling with
// duty-cycle and dwell-time compliance, the two Class A receive windows,
// MAC-command negotiation and adaptive data rate.
//
// The engine is pure: the radio, clock, randomness and non-volatile
// storage are injected through the contracts in interfaces.go. Framing,
// MIC and payload encryption are delegated to github.com/brocaar/lorawan.
package loramac

// Version defines the loramac version.
var Version = "0.1.0"
