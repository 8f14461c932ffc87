// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package chip holds the top-level core of the SPI register file and
// PWM peripheral.
//
// The core is a synchronous design: each call to Chip.Tick is one cycle of
// the base clock, and advances, in order, the SPI frame decoder, the
// register file and the PWM generator.
//
// Port A carries register 0x00 on bits 7 to 1, and the PWM signal on bit 0.
// Port B carries register 0x01.
package chip // import "github.com/go-lpc/spipwm/chip"

import (
	"fmt"
	"log"

	"github.com/go-lpc/spipwm/internal/shm"
	"github.com/go-lpc/spipwm/pwm"
	"github.com/go-lpc/spipwm/regfile"
	"github.com/go-lpc/spipwm/spi"
	"github.com/go-lpc/spipwm/trace"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// PWMBit is the bit of port A carrying the PWM signal.
const PWMBit = 0x01

// Inputs holds the input signals of the chip for one tick.
type Inputs struct {
	Reset  gpio.Level // active low
	Enable gpio.Level
	spi.Pins
}

// Running is the input state of an enabled chip, out of reset, with an
// idle SPI bus.
var Running = Inputs{Reset: gpio.High, Enable: gpio.High, Pins: spi.Idle}

// Outputs holds the output ports of the chip.
type Outputs struct {
	PortA uint8
	PortB uint8
}

// PWM returns the level of the PWM signal.
func (o Outputs) PWM() gpio.Level {
	return gpio.Level(o.PortA&PWMBit != 0)
}

func (o Outputs) String() string {
	return fmt.Sprintf("port-a=0x%02x port-b=0x%02x", o.PortA, o.PortB)
}

// Chip is the SPI register file and PWM peripheral.
//
// Chip is not safe for concurrent use.
type Chip struct {
	msg *log.Logger
	cfg config

	dec  *spi.Decoder
	regs *regfile.File
	pwm  *pwm.Generator

	pipe []Outputs // output pipeline, oldest first
	out  Outputs   // visible outputs
	tick uint64    // number of enabled ticks

	err error

	trace struct {
		enc *trace.Encoder
		blk trace.Block
	}
	shm *shm.Region
}

// New creates a new chip, held in its reset state.
func New(opts ...Option) (*Chip, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.delay < 0 {
		return nil, fmt.Errorf("chip: invalid output delay %d", cfg.delay)
	}

	gen, err := pwm.New(cfg.clock, cfg.freq)
	if err != nil {
		return nil, fmt.Errorf("chip: could not create PWM generator: %w", err)
	}

	c := &Chip{
		msg:  cfg.msg,
		cfg:  cfg,
		dec:  spi.NewDecoder(),
		regs: regfile.New(),
		pwm:  gen,
		pipe: make([]Outputs, cfg.delay),
	}

	if cfg.trace != nil {
		c.trace.enc = trace.NewEncoder(cfg.trace)
		c.trace.blk.Chip = cfg.id
	}

	if cfg.shm != "" {
		c.shm, err = shm.Create(cfg.shm, shmSize)
		if err != nil {
			return nil, fmt.Errorf("chip: could not create register mirror: %w", err)
		}
		c.publish()
	}

	return c, nil
}

// Close flushes pending trace records and releases the shared memory mirror.
func (c *Chip) Close() error {
	err := c.Flush()
	if c.shm != nil {
		e := c.shm.Close()
		if e != nil && err == nil {
			err = fmt.Errorf("chip: could not close register mirror: %w", e)
		}
		c.shm = nil
	}
	return err
}

// Clock returns the base-clock frequency.
func (c *Chip) Clock() physic.Frequency { return c.cfg.clock }

// PWM returns the PWM generator of the chip.
func (c *Chip) PWM() *pwm.Generator { return c.pwm }

// Ticks returns the number of ticks elapsed while enabled.
func (c *Chip) Ticks() uint64 { return c.tick }

// Outputs returns the visible state of the output ports.
func (c *Chip) Outputs() Outputs { return c.out }

// Registers returns a copy of the register file.
func (c *Chip) Registers() regfile.Snapshot { return c.regs.Snapshot() }

// Err returns the first error encountered while recording traces or
// publishing the register mirror.
func (c *Chip) Err() error { return c.err }

// Tick advances the chip by one base-clock cycle and returns the
// visible outputs at the end of the cycle.
func (c *Chip) Tick(in Inputs) Outputs {
	if in.Enable == gpio.Low {
		return c.out
	}
	c.tick++

	if in.Reset == gpio.Low {
		c.reset()
		return c.out
	}

	if tx, ok := c.dec.Tick(in.Pins); ok {
		c.commit(tx)
	}

	lvl := c.pwm.Tick(c.regs.Duty())

	next := Outputs{
		PortA: c.regs.PortA() &^ PWMBit,
		PortB: c.regs.PortB(),
	}
	if lvl == gpio.High {
		next.PortA |= PWMBit
	}
	c.push(next)

	return c.out
}

func (c *Chip) reset() {
	dirty := c.regs.Snapshot() != (regfile.Snapshot{})

	c.dec.Reset()
	c.regs.Reset()
	c.pwm.Reset()
	for i := range c.pipe {
		c.pipe[i] = Outputs{}
	}
	c.out = Outputs{}

	if dirty {
		c.publish()
	}
}

func (c *Chip) commit(tx spi.Transaction) {
	v, ok := c.regs.Apply(tx)
	if c.cfg.verbose {
		name := regfile.Name(tx.Addr)
		switch {
		case tx.Write && regfile.Valid(tx.Addr):
			c.msg.Printf("tick=%d %v -> %s=0x%02x", c.tick, tx, name, tx.Data)
		case tx.Write:
			c.msg.Printf("tick=%d %v -> ignored (%s)", c.tick, tx, name)
		case ok:
			c.msg.Printf("tick=%d %v -> %s=0x%02x", c.tick, tx, name, v)
		default:
			c.msg.Printf("tick=%d %v -> undefined (%s)", c.tick, tx, name)
		}
	}

	c.record(tx)

	if tx.Write && regfile.Valid(tx.Addr) {
		c.publish()
	}
}

func (c *Chip) push(o Outputs) {
	if len(c.pipe) == 0 {
		c.out = o
		return
	}
	c.out = c.pipe[0]
	copy(c.pipe, c.pipe[1:])
	c.pipe[len(c.pipe)-1] = o
}

func (c *Chip) record(tx spi.Transaction) {
	if c.trace.enc == nil || c.err != nil {
		return
	}
	c.trace.blk.Records = append(c.trace.blk.Records, trace.Record{
		Tick: c.tick,
		Tx:   tx,
	})
	if len(c.trace.blk.Records) == trace.MaxRecords {
		c.setErr(c.Flush())
	}
}

// Flush writes the pending trace records, if any.
func (c *Chip) Flush() error {
	if c.err != nil {
		c.trace.blk.Records = c.trace.blk.Records[:0]
		return c.err
	}
	if c.trace.enc == nil || len(c.trace.blk.Records) == 0 {
		return nil
	}
	err := c.trace.enc.Encode(&c.trace.blk)
	c.trace.blk.Records = c.trace.blk.Records[:0]
	if err != nil {
		c.setErr(fmt.Errorf("chip: could not flush trace: %w", err))
		return c.err
	}
	return nil
}

func (c *Chip) setErr(err error) {
	if err != nil && c.err == nil {
		c.err = err
	}
}
