// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spi

import (
	"periph.io/x/conn/v3/gpio"
)

// Decoder deserializes the SPI lines, sampled once per base-clock tick,
// into transactions.
//
// The serial clock is not a clock of the decoder: it is oversampled by
// the base clock and a bit is shifted in on each of its rising edges.
// Lines go through a two-stage synchronizer before edge detection.
type Decoder struct {
	sync [2]Pins // input synchronizer
	prev Pins    // last synchronized state, for edge detection

	shift uint16
	n     int // number of bits sampled in the current frame
}

// NewDecoder returns an idle decoder.
func NewDecoder() *Decoder {
	var dec Decoder
	dec.Reset()
	return &dec
}

// Reset puts the decoder back in its idle state, discarding any partial frame.
func (dec *Decoder) Reset() {
	dec.sync[0] = Idle
	dec.sync[1] = Idle
	dec.prev = Idle
	dec.shift = 0
	dec.n = 0
}

// Busy reports whether a frame is being received.
func (dec *Decoder) Busy() bool {
	return dec.prev.CS == gpio.Low
}

// Tick samples the SPI lines for one base-clock cycle.
// Tick returns a transaction and true when a well-formed frame
// just ended.
func (dec *Decoder) Tick(in Pins) (Transaction, bool) {
	cur := dec.sync[1]
	dec.sync[1] = dec.sync[0]
	dec.sync[0] = in

	prev := dec.prev
	dec.prev = cur

	switch {
	case cur.CS == gpio.High:
		if prev.CS == gpio.High {
			return Transaction{}, false
		}
		// end of frame. anything but exactly 16 bits is dropped.
		n, w := dec.n, dec.shift
		dec.shift = 0
		dec.n = 0
		if n != FrameBits {
			return Transaction{}, false
		}
		return FromWord(w), true

	case prev.CS == gpio.High:
		// start of frame.
		dec.shift = 0
		dec.n = 0
		return Transaction{}, false
	}

	if cur.SCLK == gpio.High && prev.SCLK == gpio.Low {
		dec.shift <<= 1
		if cur.DIn == gpio.High {
			dec.shift |= 1
		}
		if dec.n <= FrameBits {
			dec.n++
		}
	}
	return Transaction{}, false
}
