// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pwm holds a cycle-accurate pulse-width-modulation generator
// and a meter measuring the signal it produces.
package pwm // import "github.com/go-lpc/spipwm/pwm"

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

const (
	// DefaultClock is the nominal base-clock frequency.
	DefaultClock = 10 * physic.MegaHertz

	// DefaultFrequency is the nominal PWM frequency.
	DefaultFrequency = 3 * physic.KiloHertz

	// MaxDuty is the duty register value of a permanently high output.
	MaxDuty = 255
)

// Generator is a free-running PWM generator.
//
// Its counter advances once per base-clock tick and wraps every period.
// The high-time is derived from the duty value seen at the start of a
// period and held for the whole period.
type Generator struct {
	clock  physic.Frequency
	period uint32 // ticks per PWM period

	cnt  uint32 // phase counter, in [0, period)
	high uint32 // high-time of the current period, in ticks
}

// New returns a generator driven by a clock frequency base, running at
// the frequency closest to target.
func New(base, target physic.Frequency) (*Generator, error) {
	if base <= 0 {
		return nil, fmt.Errorf("pwm: invalid base clock %v", base)
	}
	if target <= 0 {
		return nil, fmt.Errorf("pwm: invalid target frequency %v", target)
	}
	period := (base + target/2) / target
	if period < 2 {
		return nil, fmt.Errorf("pwm: target frequency %v too high for base clock %v", target, base)
	}
	if period > 1<<31 {
		return nil, fmt.Errorf("pwm: target frequency %v too low for base clock %v", target, base)
	}
	return &Generator{clock: base, period: uint32(period)}, nil
}

// Period returns the number of ticks per PWM period.
func (g *Generator) Period() int { return int(g.period) }

// Frequency returns the actual PWM frequency.
func (g *Generator) Frequency() physic.Frequency {
	return g.clock / physic.Frequency(g.period)
}

// HighTicks returns the number of high ticks per period for a duty value.
func (g *Generator) HighTicks(duty uint8) int {
	return int(g.highTicks(duty))
}

func (g *Generator) highTicks(duty uint8) uint32 {
	return uint32((uint64(duty)*uint64(g.period) + MaxDuty/2) / MaxDuty)
}

// Reset holds the generator at the start of a period, output low.
func (g *Generator) Reset() {
	g.cnt = 0
	g.high = 0
}

// Phase returns the position of the counter in the current period.
func (g *Generator) Phase() int { return int(g.cnt) }

// Tick advances the generator by one tick and returns the output level
// for that tick.
func (g *Generator) Tick(duty uint8) gpio.Level {
	if g.cnt == 0 {
		g.high = g.highTicks(duty)
	}
	out := g.cnt < g.high
	g.cnt++
	if g.cnt == g.period {
		g.cnt = 0
	}
	return gpio.Level(out)
}
