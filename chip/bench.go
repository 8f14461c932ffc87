// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chip

import (
	"fmt"

	"github.com/go-lpc/spipwm/pwm"
	"github.com/go-lpc/spipwm/spi"
	"periph.io/x/conn/v3/gpio"
)

// Bench drives a simulated chip: it owns the clock and the input pins,
// and bit-bangs SPI frames through a spi.Master.
//
// Bench implements spi.Bus.
type Bench struct {
	chip  *Chip
	in    Inputs
	out   Outputs
	spi   *spi.Master
	meter *pwm.Meter
}

// NewBench creates a bench driving c, with half ticks per half serial
// clock period and settle ticks of wait after each frame.
// The chip inputs start enabled, out of reset, with an idle SPI bus.
func NewBench(c *Chip, half, settle int) (*Bench, error) {
	b := &Bench{
		chip:  c,
		in:    Running,
		out:   c.Outputs(),
		meter: pwm.NewMeter(c.Clock()),
	}
	m, err := spi.NewMaster(b, half, settle)
	if err != nil {
		return nil, fmt.Errorf("chip: could not create SPI master: %w", err)
	}
	b.spi = m
	return b, nil
}

// Chip returns the chip under test.
func (b *Bench) Chip() *Chip { return b.chip }

// Outputs returns the outputs of the chip after the last tick.
func (b *Bench) Outputs() Outputs { return b.out }

// Drive sets the SPI input pins of the chip.
func (b *Bench) Drive(p spi.Pins) error {
	b.in.Pins = p
	return nil
}

// Wait advances the clock by n ticks.
func (b *Bench) Wait(n int) error {
	b.Run(n)
	return nil
}

// Run advances the clock by n ticks.
func (b *Bench) Run(n int) {
	for i := 0; i < n; i++ {
		b.out = b.chip.Tick(b.in)
		b.meter.Observe(b.out.PWM())
	}
}

// Reset asserts the reset line for n ticks, then releases it and runs
// n more ticks.
func (b *Bench) Reset(n int) {
	b.in.Reset = gpio.Low
	b.Run(n)
	b.in.Reset = gpio.High
	b.Run(n)
}

// Enable drives the enable line of the chip.
func (b *Bench) Enable(v bool) {
	b.in.Enable = gpio.Level(v)
}

// Write sends a write frame.
func (b *Bench) Write(addr, v uint8) error {
	return b.spi.Write(addr, v)
}

// Read sends a read frame.
// The chip has no serial output: the read value is not sampled back.
func (b *Bench) Read(addr uint8) error {
	return b.spi.Read(addr)
}

// Tx sends a transaction.
func (b *Bench) Tx(tx spi.Transaction) error {
	return b.spi.Tx(tx)
}

// Partial sends the n most significant bits of w in a single frame.
func (b *Bench) Partial(w uint16, n int) error {
	return b.spi.Partial(w, n)
}

// MeasurePWM runs n ticks and measures the PWM signal over them.
func (b *Bench) MeasurePWM(n int) pwm.Measurement {
	b.meter.Reset()
	b.Run(n)
	return b.meter.Measure()
}
