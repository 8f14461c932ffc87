// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reefpi

import (
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/go-lpc/spipwm/pwm"
	"github.com/go-lpc/spipwm/regfile"
	"github.com/go-lpc/spipwm/spi"
	"github.com/reef-pi/hal"
)

// NumPins is the number of digital output pins.
const NumPins = 15

type outPin struct {
	drv  *driver
	num  int // 1-7: port A bits, 8-15: port B bits 0-7
	name string
}

func (p *outPin) Name() string { return p.name }
func (p *outPin) Number() int  { return p.num }
func (p *outPin) Close() error { return nil }

func (p *outPin) Write(b bool) error {
	return p.drv.writePin(p.num, b)
}

func (p *outPin) LastState() bool {
	return p.drv.lastState(p.num)
}

type channel struct {
	drv *driver
}

func (ch *channel) Name() string { return "PWM" }
func (ch *channel) Number() int  { return 0 }
func (ch *channel) Close() error { return nil }

// Set sets the duty cycle, in percent.
func (ch *channel) Set(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return fmt.Errorf("reefpi: invalid PWM value %v (must be in [0, 100])", v)
	}
	duty := uint8(math.Round(v * pwm.MaxDuty / 100))
	return ch.drv.writeDuty(duty)
}

func (ch *channel) Write(b bool) error {
	if b {
		return ch.Set(100)
	}
	return ch.Set(0)
}

func (ch *channel) LastState() bool {
	return ch.drv.Registers().Duty != 0
}

type driver struct {
	meta  hal.Metadata
	debug bool

	mu   sync.Mutex
	m    *spi.Master
	regs regfile.Snapshot // last values written to the device

	pins []*outPin
	ch   *channel
}

func newDriver(meta hal.Metadata, m *spi.Master, debug bool) *driver {
	d := &driver{
		meta:  meta,
		debug: debug,
		m:     m,
	}
	for i := 1; i <= NumPins; i++ {
		name := fmt.Sprintf("A%d", i)
		if i >= 8 {
			name = fmt.Sprintf("B%d", i-8)
		}
		d.pins = append(d.pins, &outPin{drv: d, num: i, name: name})
	}
	d.ch = &channel{drv: d}
	return d
}

// init loads the shadow registers into the device.
func (d *driver) init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, tx := range d.regs.Transactions() {
		err := d.m.Tx(tx)
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *driver) Close() error { return nil }

func (d *driver) Metadata() hal.Metadata { return d.meta }

// Registers returns the last values written to the device.
func (d *driver) Registers() regfile.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs
}

func (d *driver) DigitalOutputPins() []hal.DigitalOutputPin {
	out := make([]hal.DigitalOutputPin, len(d.pins))
	for i, p := range d.pins {
		out[i] = p
	}
	return out
}

func (d *driver) DigitalOutputPin(n int) (hal.DigitalOutputPin, error) {
	if n < 1 || n > NumPins {
		return nil, fmt.Errorf("reefpi: invalid pin %d", n)
	}
	return d.pins[n-1], nil
}

func (d *driver) PWMChannels() []hal.PWMChannel {
	return []hal.PWMChannel{d.ch}
}

func (d *driver) PWMChannel(n int) (hal.PWMChannel, error) {
	if n != 0 {
		return nil, fmt.Errorf("reefpi: invalid PWM channel %d", n)
	}
	return d.ch, nil
}

func (d *driver) Pins(cap hal.Capability) ([]hal.Pin, error) {
	switch cap {
	case hal.DigitalOutput:
		var pins []hal.Pin
		for _, p := range d.pins {
			pins = append(pins, p)
		}
		return pins, nil
	case hal.PWM:
		return []hal.Pin{d.ch}, nil
	default:
		return nil, fmt.Errorf("reefpi: unsupported capability: %s", cap.String())
	}
}

func pinReg(n int) (addr uint8, mask uint8) {
	if n < 8 {
		return regfile.PortA, 1 << n
	}
	return regfile.PortB, 1 << (n - 8)
}

func (d *driver) lastState(n int) bool {
	addr, mask := pinReg(n)

	d.mu.Lock()
	defer d.mu.Unlock()

	if addr == regfile.PortA {
		return d.regs.PortA&mask != 0
	}
	return d.regs.PortB&mask != 0
}

// writePin performs a read-modify-write of the shadowed port register.
func (d *driver) writePin(n int, on bool) error {
	addr, mask := pinReg(n)

	d.mu.Lock()
	defer d.mu.Unlock()

	reg := &d.regs.PortA
	if addr == regfile.PortB {
		reg = &d.regs.PortB
	}

	v := *reg &^ mask
	if on {
		v |= mask
	}

	err := d.m.Write(addr, v)
	if err != nil {
		return fmt.Errorf("reefpi: could not write pin %d: %w", n, err)
	}
	if d.debug {
		log.Printf("reefpi: pin=%d on=%v: %s 0x%02x -> 0x%02x", n, on, regfile.Name(addr), *reg, v)
	}
	*reg = v
	return nil
}

func (d *driver) writeDuty(duty uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.m.Write(regfile.Duty, duty)
	if err != nil {
		return fmt.Errorf("reefpi: could not write duty cycle: %w", err)
	}
	if d.debug {
		log.Printf("reefpi: duty 0x%02x -> 0x%02x", d.regs.Duty, duty)
	}
	d.regs.Duty = duty
	return nil
}
