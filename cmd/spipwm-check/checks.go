// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"math"

	"github.com/go-lpc/spipwm/chip"
	"github.com/go-lpc/spipwm/regfile"
	"github.com/go-lpc/spipwm/spi"
)

type check struct {
	name string
	run  func(b *chip.Bench) error
}

var checks = []check{
	{"port-a", checkPortA},
	{"port-b", checkPortB},
	{"invalid", checkInvalid},
	{"duty", checkDuty},
	{"reset", checkReset},
	{"frequency", checkFrequency},
	{"malformed", checkMalformed},
	{"enable", checkEnable},
}

func expect(b *chip.Bench, want chip.Outputs) error {
	if got := b.Outputs(); got != want {
		return fmt.Errorf("invalid outputs: got=%v, want=%v", got, want)
	}
	return nil
}

func writeAll(b *chip.Bench, txs ...spi.Transaction) error {
	for _, tx := range txs {
		err := b.Tx(tx)
		if err != nil {
			return err
		}
	}
	return nil
}

func checkPortA(b *chip.Bench) error {
	err := b.Write(regfile.PortA, 0xf0)
	if err != nil {
		return err
	}
	b.Run(50)
	return expect(b, chip.Outputs{PortA: 0xf0})
}

func checkPortB(b *chip.Bench) error {
	err := b.Write(regfile.PortB, 0xcc)
	if err != nil {
		return err
	}
	b.Run(50)
	return expect(b, chip.Outputs{PortB: 0xcc})
}

func checkInvalid(b *chip.Bench) error {
	err := writeAll(b,
		spi.WriteTx(regfile.PortA, 0xf0),
		spi.WriteTx(0x30, 0xaa),
		spi.ReadTx(0x30, 0x00),
	)
	if err != nil {
		return err
	}
	b.Run(50)
	err = expect(b, chip.Outputs{PortA: 0xf0})
	if err != nil {
		return err
	}
	if got, want := b.Chip().Registers(), (regfile.Snapshot{PortA: 0xf0}); got != want {
		return fmt.Errorf("invalid registers: got=%v, want=%v", got, want)
	}
	return nil
}

func measure(b *chip.Bench, duty uint8) (float64, float64, error) {
	err := b.Write(regfile.Duty, duty)
	if err != nil {
		return 0, 0, err
	}
	period := b.Chip().PWM().Period()
	b.Run(2 * period)
	msr := b.MeasurePWM(5 * period)
	return msr.Duty, msr.Hz(), nil
}

func checkDuty(b *chip.Bench) error {
	for _, tc := range []struct {
		duty uint8
		want float64
	}{
		{0xff, 1.0},
		{0x80, 0.502},
		{0x00, 0.0},
	} {
		got, _, err := measure(b, tc.duty)
		if err != nil {
			return err
		}
		if math.Abs(got-tc.want) > 0.01 {
			return fmt.Errorf("invalid duty cycle for 0x%02x: got=%.4f, want=%.4f", tc.duty, got, tc.want)
		}
	}
	return nil
}

func checkReset(b *chip.Bench) error {
	err := writeAll(b,
		spi.WriteTx(regfile.PortA, 0xf0),
		spi.WriteTx(regfile.PortB, 0xcc),
		spi.WriteTx(regfile.Duty, 0xff),
	)
	if err != nil {
		return err
	}
	b.Reset(5)
	err = expect(b, chip.Outputs{})
	if err != nil {
		return err
	}
	if got := b.Chip().Registers(); got != (regfile.Snapshot{}) {
		return fmt.Errorf("invalid registers after reset: %v", got)
	}
	return nil
}

func checkFrequency(b *chip.Bench) error {
	for _, duty := range []uint8{0x01, 0x40, 0x80, 0xc0, 0xfe} {
		_, freq, err := measure(b, duty)
		if err != nil {
			return err
		}
		if math.Abs(freq-3000)/3000 > 0.01 {
			return fmt.Errorf("invalid frequency for duty 0x%02x: got=%.2fHz", duty, freq)
		}
	}
	return nil
}

func checkMalformed(b *chip.Bench) error {
	err := b.Write(regfile.PortB, 0xcc)
	if err != nil {
		return err
	}
	err = b.Partial(spi.WriteTx(regfile.PortB, 0x55).Word(), 15)
	if err != nil {
		return err
	}
	return expect(b, chip.Outputs{PortB: 0xcc})
}

func checkEnable(b *chip.Bench) error {
	err := b.Write(regfile.PortB, 0xcc)
	if err != nil {
		return err
	}
	b.Enable(false)
	err = b.Write(regfile.PortB, 0x11)
	if err != nil {
		return err
	}
	err = expect(b, chip.Outputs{PortB: 0xcc})
	if err != nil {
		return err
	}
	b.Enable(true)
	return nil
}
