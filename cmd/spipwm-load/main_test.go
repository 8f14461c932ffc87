// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"reflect"
	"testing"

	"github.com/go-lpc/spipwm/spi"
)

// fakeDevice decodes the frames it is driven with.
type fakeDevice struct {
	dec   *spi.Decoder
	pins  spi.Pins
	txs   []spi.Transaction
	reset int
	flush int
	err   error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{dec: spi.NewDecoder(), pins: spi.Idle}
}

func (dev *fakeDevice) Drive(p spi.Pins) error {
	dev.pins = p
	return dev.err
}

func (dev *fakeDevice) Wait(n int) error {
	for i := 0; i < n; i++ {
		if tx, ok := dev.dec.Tick(dev.pins); ok {
			dev.txs = append(dev.txs, tx)
		}
	}
	return dev.err
}

func (dev *fakeDevice) Reset(n int) error {
	dev.reset += n
	dev.dec.Reset()
	return dev.err
}

func (dev *fakeDevice) Flush() error {
	dev.flush++
	return dev.err
}

func TestTransactions(t *testing.T) {
	for _, tc := range []struct {
		name    string
		a, b, d string
		want    []spi.Transaction
		err     bool
	}{
		{
			name: "all",
			a:    "0xf0", b: "0xcc", d: "128",
			want: []spi.Transaction{
				spi.WriteTx(0x00, 0xf0),
				spi.WriteTx(0x01, 0xcc),
				spi.WriteTx(0x04, 0x80),
			},
		},
		{
			name: "duty",
			d:    "0xff",
			want: []spi.Transaction{spi.WriteTx(0x04, 0xff)},
		},
		{name: "none", err: true},
		{name: "overflow", a: "0x100", err: true},
		{name: "garbage", b: "high", err: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := transactions(tc.a, tc.b, tc.d)
			switch {
			case err != nil && !tc.err:
				t.Fatalf("could not parse values: %+v", err)
			case err == nil && tc.err:
				t.Fatalf("expected an error")
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid transactions:\ngot= %v\nwant=%v", got, tc.want)
			}
		})
	}
}

func TestProgram(t *testing.T) {
	dev := newFakeDevice()
	want := []spi.Transaction{
		spi.WriteTx(0x00, 0xf0),
		spi.WriteTx(0x04, 0x80),
	}

	err := program(dev, want, true, spi.DefaultHalfPeriod, spi.DefaultSettle)
	if err != nil {
		t.Fatalf("could not program device: %+v", err)
	}

	if got := dev.txs; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid frames:\ngot= %v\nwant=%v", got, want)
	}
	if dev.reset != 5 {
		t.Fatalf("invalid reset ticks: got=%d, want=5", dev.reset)
	}
	if dev.flush != 1 {
		t.Fatalf("invalid number of flushes: got=%d, want=1", dev.flush)
	}

	dev = newFakeDevice()
	dev.err = errors.New("usb error")
	err = program(dev, want, false, spi.DefaultHalfPeriod, spi.DefaultSettle)
	if err == nil {
		t.Fatalf("expected an error")
	}
}
