// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pwm

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Meter measures a digital signal sampled once per base-clock tick.
type Meter struct {
	clock physic.Frequency

	n     uint64 // number of samples
	highs uint64 // number of high samples
	last  gpio.Level

	rise  uint64 // tick of the last rising edge
	fall  uint64 // tick of the last falling edge following rise
	rised bool
	falld bool

	cycle struct {
		ok     bool
		period uint64
		high   uint64
	}
}

// NewMeter returns a meter for a signal sampled at clock.
func NewMeter(clock physic.Frequency) *Meter {
	return &Meter{clock: clock}
}

// Reset forgets all observed samples.
func (m *Meter) Reset() {
	*m = Meter{clock: m.clock}
}

// Observe records the level of the signal for the next tick.
func (m *Meter) Observe(lvl gpio.Level) {
	t := m.n
	m.n++
	if lvl == gpio.High {
		m.highs++
	}
	if t == 0 {
		m.last = lvl
		return
	}

	switch {
	case lvl == gpio.High && m.last == gpio.Low:
		if m.rised && m.falld {
			m.cycle.ok = true
			m.cycle.period = t - m.rise
			m.cycle.high = m.fall - m.rise
		}
		m.rise = t
		m.rised = true
		m.falld = false
	case lvl == gpio.Low && m.last == gpio.High:
		if m.rised {
			m.fall = t
			m.falld = true
		}
	}
	m.last = lvl
}

// Measurement describes a measured PWM signal.
type Measurement struct {
	Samples   uint64
	Edges     bool   // whether a full rising-falling-rising cycle was seen
	Period    uint64 // ticks between the two rising edges of the last cycle
	High      uint64 // high ticks of the last cycle
	Frequency physic.Frequency
	Duty      float64 // fraction of the time the signal is high
}

// Measure returns the measurement of the last complete cycle.
// Without any complete cycle, Duty is the fraction of high samples and
// Frequency is zero.
func (m *Meter) Measure() Measurement {
	msr := Measurement{Samples: m.n}
	if m.cycle.ok {
		msr.Edges = true
		msr.Period = m.cycle.period
		msr.High = m.cycle.high
		msr.Frequency = m.clock / physic.Frequency(m.cycle.period)
		msr.Duty = float64(m.cycle.high) / float64(m.cycle.period)
		return msr
	}
	if m.n > 0 {
		msr.Duty = float64(m.highs) / float64(m.n)
	}
	return msr
}

// Hz returns the measured frequency in Hertz.
func (msr Measurement) Hz() float64 {
	return float64(msr.Frequency) / float64(physic.Hertz)
}

func (msr Measurement) String() string {
	if !msr.Edges {
		return fmt.Sprintf("no edges over %d ticks, duty=%.4f", msr.Samples, msr.Duty)
	}
	return fmt.Sprintf("freq=%.2fHz period=%d high=%d duty=%.4f",
		msr.Hz(), msr.Period, msr.High, msr.Duty,
	)
}
