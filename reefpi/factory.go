// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reefpi exposes the peripheral as a reef-pi HAL driver.
//
// The driver provides 15 digital outputs and one PWM channel driving the
// duty register. Pins 1 to 7 are bits 1 to 7 of port A (A1..A7), and
// pins 8 to 15 are bits 0 to 7 of port B (B0..B7).
// Bit 0 of port A carries the PWM signal and is not a digital output.
package reefpi // import "github.com/go-lpc/spipwm/reefpi"

import (
	"fmt"
	"log"
	"sync"

	"github.com/go-lpc/spipwm/spi"
	"github.com/reef-pi/hal"
)

const (
	paramHalfPeriod = "Half Period" // integer, ticks per half serial-clock period
	paramSettle     = "Settle"      // integer, ticks after each frame
	paramDebug      = "Debug"       // bool
)

type factory struct {
	meta       hal.Metadata
	parameters []hal.ConfigParameter
}

var (
	f    *factory
	once sync.Once
)

// Factory returns the reef-pi driver factory.
// The hardware resource given to NewDriver must be a spi.Bus.
func Factory() hal.DriverFactory {
	once.Do(func() {
		f = &factory{
			meta: hal.Metadata{
				Name:        "spipwm",
				Description: "SPI register file with two 8-bit output ports and a 3kHz PWM output",
				Capabilities: []hal.Capability{
					hal.DigitalOutput,
					hal.PWM,
				},
			},
			parameters: []hal.ConfigParameter{
				{Name: paramHalfPeriod, Type: hal.Integer, Order: 0, Default: spi.DefaultHalfPeriod},
				{Name: paramSettle, Type: hal.Integer, Order: 1, Default: spi.DefaultSettle},
				{Name: paramDebug, Type: hal.Boolean, Order: 2, Default: false},
			},
		}
	})
	return f
}

func (f *factory) Metadata() hal.Metadata               { return f.meta }
func (f *factory) GetParameters() []hal.ConfigParameter { return f.parameters }

// toInt accepts integer values, and floating point values holding an
// integer as decoded from JSON.
func toInt(v interface{}) (int, bool) {
	switch v := v.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}

func (f *factory) ValidateParameters(params map[string]interface{}) (bool, map[string][]string) {
	errs := make(map[string][]string)

	if v, ok := params[paramHalfPeriod]; ok {
		n, ok := toInt(v)
		switch {
		case !ok:
			errs[paramHalfPeriod] = append(errs[paramHalfPeriod], "must be an integer")
		case n <= 0:
			errs[paramHalfPeriod] = append(errs[paramHalfPeriod], "must be positive")
		}
	}

	if v, ok := params[paramSettle]; ok {
		n, ok := toInt(v)
		switch {
		case !ok:
			errs[paramSettle] = append(errs[paramSettle], "must be an integer")
		case n < 0:
			errs[paramSettle] = append(errs[paramSettle], "must not be negative")
		}
	}

	if v, ok := params[paramDebug]; ok {
		if _, ok := v.(bool); !ok {
			errs[paramDebug] = append(errs[paramDebug], "must be boolean")
		}
	}

	if len(errs) > 0 {
		return false, errs
	}
	return true, nil
}

func (f *factory) NewDriver(params map[string]interface{}, hw interface{}) (hal.Driver, error) {
	if ok, failures := f.ValidateParameters(params); !ok {
		return nil, fmt.Errorf("reefpi: %s", hal.ToErrorString(failures))
	}

	bus, ok := hw.(spi.Bus)
	if !ok {
		return nil, fmt.Errorf("reefpi: expected spi.Bus, got %T", hw)
	}

	var (
		half   = spi.DefaultHalfPeriod
		settle = spi.DefaultSettle
		debug  = false
	)
	if v, ok := params[paramHalfPeriod]; ok {
		half, _ = toInt(v)
	}
	if v, ok := params[paramSettle]; ok {
		settle, _ = toInt(v)
	}
	if v, ok := params[paramDebug]; ok {
		debug = v.(bool)
	}

	m, err := spi.NewMaster(bus, half, settle)
	if err != nil {
		return nil, fmt.Errorf("reefpi: could not create SPI master: %w", err)
	}

	d := newDriver(f.meta, m, debug)
	err = d.init()
	if err != nil {
		return nil, fmt.Errorf("reefpi: could not initialize registers: %w", err)
	}

	if d.debug {
		log.Printf("reefpi: init half=%d settle=%d", half, settle)
	}

	return d, nil
}
