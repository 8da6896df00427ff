// Package airtime implements the LoRa time-on-air calculation (Semtech
// AN1200.13). The scheduler uses it for duty-cycle accounting, the engine
// for RX-window margins.
package airtime

import (
	"time"

	"github.com/pkg/errors"
)

// CodingRate defines the error-correction coding rate.
type CodingRate string

// Possible coding rates.
const (
	CodingRate45 CodingRate = "4/5"
	CodingRate46 CodingRate = "4/6"
	CodingRate47 CodingRate = "4/7"
	CodingRate48 CodingRate = "4/8"
)

func (c CodingRate) denominator() (int, error) {
	switch c {
	case CodingRate45:
		return 1, nil
	case CodingRate46:
		return 2, nil
	case CodingRate47:
		return 3, nil
	case CodingRate48:
		return 4, nil
	default:
		return 0, errors.Errorf("airtime: invalid coding-rate %s", string(c))
	}
}

// SymbolDuration returns the duration of one LoRa symbol for the given
// spreading-factor and bandwidth (kHz).
func SymbolDuration(sf, bandwidth int) time.Duration {
	// Tsym = 2^SF / BW. With BW in kHz this yields milliseconds; scale to
	// nanoseconds before dividing to keep integer precision.
	return time.Duration(int64(1<<uint(sf)) * int64(time.Millisecond) / int64(bandwidth))
}

// CalculateLoRaAirtime returns the total frame time-on-air.
// payloadLen is the full PHY payload length in bytes, bandwidth is in kHz.
func CalculateLoRaAirtime(payloadLen, sf, bandwidth, preambleCount int, codingRate CodingRate, headerEnabled, lowDataRateOptimization bool) (time.Duration, error) {
	if sf < 5 || sf > 12 {
		return 0, errors.Errorf("airtime: invalid spreading-factor %d", sf)
	}
	if bandwidth <= 0 {
		return 0, errors.Errorf("airtime: invalid bandwidth %d", bandwidth)
	}
	cr, err := codingRate.denominator()
	if err != nil {
		return 0, err
	}

	tSym := SymbolDuration(sf, bandwidth)
	tPreamble := time.Duration(preambleCount)*tSym + tSym*17/4 // preamble + 4.25 symbols

	de := 0
	if lowDataRateOptimization {
		de = 1
	}
	h := 0
	if !headerEnabled {
		h = 1
	}

	num := 8*payloadLen - 4*sf + 28 + 16 - 20*h
	den := 4 * (sf - 2*de)
	payloadSymbols := 8
	if num > 0 {
		payloadSymbols += ((num + den - 1) / den) * (cr + 4)
	}

	return tPreamble + time.Duration(payloadSymbols)*tSym, nil
}

// LowDataRateOptimization reports whether the mandatory low data-rate
// optimization applies: symbol time of 16 ms or more.
func LowDataRateOptimization(sf, bandwidth int) bool {
	return SymbolDuration(sf, bandwidth) >= 16*time.Millisecond
}
