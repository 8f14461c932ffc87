// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ftdibb drives the SPI lines of a peripheral through an FTDI
// chip in asynchronous bit-bang mode.
//
// Each byte written to the FTDI chip is one tick of the SPI lines:
// the bit-bang rate, set from the baud rate, is the tick rate.
package ftdibb // import "github.com/go-lpc/spipwm/ftdibb"

import (
	"fmt"
	"io"

	"github.com/go-lpc/spipwm/spi"
	"github.com/ziutek/ftdi"
	"periph.io/x/conn/v3/gpio"
)

// Pin assignment on the bit-bang port.
const (
	PinSCLK   = 1 << 0 // D0
	PinDIn    = 1 << 1 // D1
	PinCS     = 1 << 3 // D3
	PinReset  = 1 << 4 // D4, active low
	PinEnable = 1 << 5 // D5

	outputs = PinSCLK | PinDIn | PinCS | PinReset | PinEnable
)

// DefaultChunk is the number of ticks buffered before writing to the device.
const DefaultChunk = 4096

type ftdiDevice interface {
	Reset() error

	SetBitmode(iomask byte, mode ftdi.Mode) error
	SetBaudrate(br int) error
	PurgeBuffers() error

	io.Writer
	io.Closer
}

var (
	ftdiOpen = ftdiOpenImpl
)

func ftdiOpenImpl(vid, pid uint16) (ftdiDevice, error) {
	dev, err := ftdi.OpenFirst(int(vid), int(pid), ftdi.ChannelAny)
	return dev, err
}

// Bus is a spi.Bus over an FTDI device.
type Bus struct {
	vid uint16
	pid uint16
	ft  ftdiDevice

	cur   byte   // current state of the port
	buf   []byte // pending ticks
	chunk int
	err   error
}

// Open opens the first FTDI device matching vid and pid, and configures
// it in bit-bang mode at the given baud rate.
// The peripheral is held out of reset and enabled, with an idle SPI bus.
func Open(vid, pid uint16, baud int) (*Bus, error) {
	ft, err := ftdiOpen(vid, pid)
	if err != nil {
		return nil, fmt.Errorf("ftdibb: could not open FTDI device (vid=0x%x, pid=0x%x): %w", vid, pid, err)
	}

	bus := &Bus{
		vid:   vid,
		pid:   pid,
		ft:    ft,
		cur:   encode(spi.Idle) | PinReset | PinEnable,
		chunk: DefaultChunk,
	}
	err = bus.init(baud)
	if err != nil {
		_ = ft.Close()
		return nil, fmt.Errorf("ftdibb: could not initialize FTDI device (vid=0x%x, pid=0x%x): %w", vid, pid, err)
	}

	return bus, nil
}

func (bus *Bus) init(baud int) error {
	if baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", baud)
	}

	err := bus.ft.Reset()
	if err != nil {
		return fmt.Errorf("could not reset USB: %w", err)
	}

	err = bus.ft.SetBitmode(0, ftdi.ModeReset)
	if err != nil {
		return fmt.Errorf("could not reset bit mode: %w", err)
	}

	err = bus.ft.SetBaudrate(baud)
	if err != nil {
		return fmt.Errorf("could not set baud rate to %d: %w", baud, err)
	}

	err = bus.ft.SetBitmode(outputs, ftdi.ModeBitbang)
	if err != nil {
		return fmt.Errorf("could not enable bitbang: %w", err)
	}

	err = bus.ft.PurgeBuffers()
	if err != nil {
		return fmt.Errorf("could not purge USB buffers: %w", err)
	}

	_, err = bus.ft.Write([]byte{bus.cur})
	if err != nil {
		return fmt.Errorf("could not write initial pin state: %w", err)
	}

	return nil
}

func encode(p spi.Pins) byte {
	var v byte
	if p.CS == gpio.High {
		v |= PinCS
	}
	if p.DIn == gpio.High {
		v |= PinDIn
	}
	if p.SCLK == gpio.High {
		v |= PinSCLK
	}
	return v
}

// Drive sets the state of the SPI lines, applied from the next tick.
func (bus *Bus) Drive(p spi.Pins) error {
	if bus.err != nil {
		return bus.err
	}
	bus.cur = bus.cur&^(PinCS|PinDIn|PinSCLK) | encode(p)
	return nil
}

// Wait holds the current state of the lines for n ticks.
func (bus *Bus) Wait(n int) error {
	for i := 0; i < n && bus.err == nil; i++ {
		bus.buf = append(bus.buf, bus.cur)
		if len(bus.buf) >= bus.chunk {
			bus.flush()
		}
	}
	return bus.err
}

// Reset holds the reset line of the peripheral low for n ticks.
func (bus *Bus) Reset(n int) error {
	bus.cur &^= PinReset
	err := bus.Wait(n)
	bus.cur |= PinReset
	return err
}

// Enable drives the enable line of the peripheral.
func (bus *Bus) Enable(v bool) {
	if v {
		bus.cur |= PinEnable
		return
	}
	bus.cur &^= PinEnable
}

// Flush writes the pending ticks to the device.
func (bus *Bus) Flush() error {
	bus.flush()
	return bus.err
}

func (bus *Bus) flush() {
	if bus.err != nil || len(bus.buf) == 0 {
		return
	}
	n, err := bus.ft.Write(bus.buf)
	switch {
	case err != nil:
		bus.err = fmt.Errorf("ftdibb: could not write %d ticks: %w", len(bus.buf), err)
	case n != len(bus.buf):
		bus.err = fmt.Errorf("ftdibb: could not write %d ticks: %w", len(bus.buf), io.ErrShortWrite)
	}
	bus.buf = bus.buf[:0]
}

// Close flushes pending ticks and closes the device.
func (bus *Bus) Close() error {
	err := bus.Flush()
	e := bus.ft.Close()
	if e != nil && err == nil {
		err = fmt.Errorf("ftdibb: could not close FTDI device: %w", e)
	}
	return err
}

var _ spi.Bus = (*Bus)(nil)
