// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spi

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

// Bus drives the SPI lines of a peripheral.
//
// Time on a bus is counted in ticks of the peripheral base clock.
type Bus interface {
	// Drive sets the levels of the SPI lines.
	Drive(p Pins) error
	// Wait lets n ticks elapse with the lines unchanged.
	Wait(n int) error
}

const (
	// DefaultHalfPeriod is the number of base-clock ticks per half
	// serial-clock period: a 100 kHz serial clock against a 10 MHz base clock.
	DefaultHalfPeriod = 50

	// DefaultSettle is the number of ticks waited after the end of a frame.
	DefaultSettle = 100
)

// Master is a bit-bang SPI master, hard-coded to mode 0.
type Master struct {
	bus Bus

	half   int // ticks per half serial-clock period
	settle int // ticks to wait after chip-select deassertion
}

// NewMaster returns a master driving bus with half ticks per half
// serial-clock period and settle ticks of quiet time after each frame.
func NewMaster(bus Bus, half, settle int) (*Master, error) {
	if half <= 0 {
		return nil, fmt.Errorf("spi: invalid half-period %d", half)
	}
	if settle < 0 {
		return nil, fmt.Errorf("spi: invalid settle time %d", settle)
	}
	return &Master{bus: bus, half: half, settle: settle}, nil
}

// Write sends a write frame of v at addr.
func (m *Master) Write(addr, v uint8) error {
	return m.Tx(WriteTx(addr, v))
}

// Read sends a read frame at addr.
// The peripheral has no data-out line: nothing is read back.
func (m *Master) Read(addr uint8) error {
	return m.Tx(ReadTx(addr, 0))
}

// Tx sends one frame on the bus.
func (m *Master) Tx(tx Transaction) error {
	err := m.frame(tx.Word(), FrameBits)
	if err != nil {
		return fmt.Errorf("spi: could not send frame (%v): %w", tx, err)
	}
	return nil
}

// Partial sends only the n most-significant bits of w, then releases
// chip-select. A peripheral must drop such a frame.
func (m *Master) Partial(w uint16, n int) error {
	if n < 0 || n > FrameBits {
		return fmt.Errorf("spi: invalid number of bits %d", n)
	}
	err := m.frame(w, n)
	if err != nil {
		return fmt.Errorf("spi: could not send partial frame (0x%04x, n=%d): %w", w, n, err)
	}
	return nil
}

func (m *Master) frame(w uint16, n int) error {
	p := Pins{CS: gpio.Low, DIn: gpio.Low, SCLK: gpio.Low}
	err := m.step(p, 1)
	if err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		p.DIn = gpio.Level((w>>(FrameBits-1-i))&1 == 1)
		p.SCLK = gpio.Low
		err = m.step(p, m.half)
		if err != nil {
			return err
		}
		p.SCLK = gpio.High
		err = m.step(p, m.half)
		if err != nil {
			return err
		}
	}

	return m.step(Idle, m.settle)
}

func (m *Master) step(p Pins, n int) error {
	err := m.bus.Drive(p)
	if err != nil {
		return err
	}
	return m.bus.Wait(n)
}
