// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chip

import (
	"io"
	"log"
	"os"

	"github.com/go-lpc/spipwm/pwm"
	"periph.io/x/conn/v3/physic"
)

// DefaultOutputDelay is the number of ticks between a register commit
// and its visibility on the output ports.
const DefaultOutputDelay = 2

type config struct {
	id      uint8
	clock   physic.Frequency
	freq    physic.Frequency
	delay   int
	verbose bool
	msg     *log.Logger

	trace io.Writer
	shm   string
}

func newConfig() config {
	return config{
		clock: pwm.DefaultClock,
		freq:  pwm.DefaultFrequency,
		delay: DefaultOutputDelay,
		msg:   log.New(os.Stdout, "chip: ", 0),
	}
}

// Option configures a chip.
type Option func(*config)

// WithID sets the chip identifier recorded in traces.
func WithID(id uint8) Option {
	return func(cfg *config) {
		cfg.id = id
	}
}

// WithClock sets the base-clock frequency.
func WithClock(f physic.Frequency) Option {
	return func(cfg *config) {
		cfg.clock = f
	}
}

// WithPWMFrequency sets the target PWM frequency.
func WithPWMFrequency(f physic.Frequency) Option {
	return func(cfg *config) {
		cfg.freq = f
	}
}

// WithOutputDelay sets the number of ticks between a register commit
// and its visibility on the output ports.
func WithOutputDelay(n int) Option {
	return func(cfg *config) {
		cfg.delay = n
	}
}

// WithLogger sets the logger of the chip.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithVerbose enables logging of every committed transaction.
func WithVerbose(v bool) Option {
	return func(cfg *config) {
		cfg.verbose = v
	}
}

// WithTrace records every committed transaction to w.
func WithTrace(w io.Writer) Option {
	return func(cfg *config) {
		cfg.trace = w
	}
}

// WithSHM publishes the register file into the named shared memory file.
func WithSHM(fname string) Option {
	return func(cfg *config) {
		cfg.shm = fname
	}
}
