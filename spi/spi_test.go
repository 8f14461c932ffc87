// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spi

import (
	"errors"
	"io"
	"reflect"
	"testing"

	"periph.io/x/conn/v3/gpio"
)

// decBus feeds a decoder directly, one tick per waited tick.
type decBus struct {
	dec  *Decoder
	pins Pins
	txs  []Transaction
	n    int // ticks elapsed
}

func (bus *decBus) Drive(p Pins) error {
	bus.pins = p
	return nil
}

func (bus *decBus) Wait(n int) error {
	for i := 0; i < n; i++ {
		bus.n++
		tx, ok := bus.dec.Tick(bus.pins)
		if ok {
			bus.txs = append(bus.txs, tx)
		}
	}
	return nil
}

func newDecBus(t *testing.T, half, settle int) (*decBus, *Master) {
	t.Helper()
	bus := &decBus{dec: NewDecoder(), pins: Idle}
	m, err := NewMaster(bus, half, settle)
	if err != nil {
		t.Fatalf("could not create master: %+v", err)
	}
	return bus, m
}

func TestTransactionWord(t *testing.T) {
	for _, tc := range []struct {
		tx   Transaction
		word uint16
		str  string
	}{
		{WriteTx(0x00, 0xf0), 0x80f0, "w addr=0x00 data=0xf0"},
		{WriteTx(0x01, 0xcc), 0x81cc, "w addr=0x01 data=0xcc"},
		{WriteTx(0x30, 0xaa), 0xb0aa, "w addr=0x30 data=0xaa"},
		{ReadTx(0x30, 0xbe), 0x30be, "r addr=0x30 data=0xbe"},
		{WriteTx(0x04, 0xff), 0x84ff, "w addr=0x04 data=0xff"},
		{WriteTx(0xff, 0x01), 0xff01, "w addr=0x7f data=0x01"},
	} {
		t.Run(tc.str, func(t *testing.T) {
			if got, want := tc.tx.Word(), tc.word; got != want {
				t.Fatalf("invalid word: got=0x%04x, want=0x%04x", got, want)
			}
			if got, want := FromWord(tc.word), tc.tx; got != want {
				t.Fatalf("invalid transaction: got=%v, want=%v", got, want)
			}
			if got, want := tc.tx.String(), tc.str; got != want {
				t.Fatalf("invalid string: got=%q, want=%q", got, want)
			}
		})
	}
}

func TestDecoder(t *testing.T) {
	for _, tc := range []struct {
		name string
		half int
		send func(m *Master) error
		want []Transaction
	}{
		{
			name: "write",
			half: DefaultHalfPeriod,
			send: func(m *Master) error { return m.Write(0x00, 0xf0) },
			want: []Transaction{WriteTx(0x00, 0xf0)},
		},
		{
			name: "read",
			half: DefaultHalfPeriod,
			send: func(m *Master) error { return m.Tx(ReadTx(0x30, 0xbe)) },
			want: []Transaction{ReadTx(0x30, 0xbe)},
		},
		{
			name: "fast-sclk",
			half: 3,
			send: func(m *Master) error { return m.Write(0x04, 0x80) },
			want: []Transaction{WriteTx(0x04, 0x80)},
		},
		{
			name: "back-to-back",
			half: 4,
			send: func(m *Master) error {
				for _, tx := range []Transaction{
					WriteTx(0x00, 0x01),
					WriteTx(0x01, 0x02),
					ReadTx(0x04, 0x00),
				} {
					if err := m.Tx(tx); err != nil {
						return err
					}
				}
				return nil
			},
			want: []Transaction{
				WriteTx(0x00, 0x01),
				WriteTx(0x01, 0x02),
				ReadTx(0x04, 0x00),
			},
		},
		{
			name: "short-frame",
			half: 4,
			send: func(m *Master) error { return m.Partial(0x80f0, 15) },
		},
		{
			name: "empty-frame",
			half: 4,
			send: func(m *Master) error { return m.Partial(0x80f0, 0) },
		},
		{
			name: "short-then-good",
			half: 4,
			send: func(m *Master) error {
				if err := m.Partial(0x81ff, 9); err != nil {
					return err
				}
				return m.Write(0x01, 0xcc)
			},
			want: []Transaction{WriteTx(0x01, 0xcc)},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			bus, m := newDecBus(t, tc.half, DefaultSettle)
			err := tc.send(m)
			if err != nil {
				t.Fatalf("could not send: %+v", err)
			}
			if got, want := bus.txs, tc.want; !reflect.DeepEqual(got, want) {
				t.Fatalf("invalid transactions:\ngot= %v\nwant=%v", got, want)
			}
			if bus.dec.Busy() {
				t.Fatalf("decoder still busy after frame")
			}
		})
	}
}

func TestDecoderLongFrame(t *testing.T) {
	dec := NewDecoder()
	var txs []Transaction
	tick := func(p Pins, n int) {
		for i := 0; i < n; i++ {
			if tx, ok := dec.Tick(p); ok {
				txs = append(txs, tx)
			}
		}
	}

	tick(Pins{CS: gpio.Low}, 2)
	for i := 0; i < FrameBits+1; i++ {
		tick(Pins{CS: gpio.Low, DIn: gpio.High, SCLK: gpio.Low}, 3)
		tick(Pins{CS: gpio.Low, DIn: gpio.High, SCLK: gpio.High}, 3)
	}
	tick(Idle, 5)

	if len(txs) != 0 {
		t.Fatalf("over-long frame should be dropped: got=%v", txs)
	}
}

func TestDecoderReset(t *testing.T) {
	dec := NewDecoder()
	for i := 0; i < 4; i++ {
		dec.Tick(Pins{CS: gpio.Low, SCLK: gpio.Level(i%2 == 1)})
	}
	if !dec.Busy() {
		t.Fatalf("decoder should be busy")
	}
	dec.Reset()
	if dec.Busy() {
		t.Fatalf("decoder should be idle after reset")
	}
	if _, ok := dec.Tick(Idle); ok {
		t.Fatalf("reset decoder emitted a transaction")
	}
}

type failingBus struct {
	drives int
	err    error
}

func (bus *failingBus) Drive(p Pins) error {
	if bus.drives == 0 {
		return bus.err
	}
	bus.drives--
	return nil
}

func (bus *failingBus) Wait(n int) error { return nil }

func TestMasterErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		f    func() error
		want string
	}{
		{
			name: "invalid-half",
			f: func() error {
				_, err := NewMaster(&failingBus{}, 0, 0)
				return err
			},
			want: "spi: invalid half-period 0",
		},
		{
			name: "invalid-settle",
			f: func() error {
				_, err := NewMaster(&failingBus{}, 1, -1)
				return err
			},
			want: "spi: invalid settle time -1",
		},
		{
			name: "tx-eof",
			f: func() error {
				m, _ := NewMaster(&failingBus{drives: 3, err: io.EOF}, 1, 0)
				return m.Write(0x00, 0xf0)
			},
			want: "spi: could not send frame (w addr=0x00 data=0xf0): EOF",
		},
		{
			name: "partial-invalid",
			f: func() error {
				m, _ := NewMaster(&failingBus{}, 1, 0)
				return m.Partial(0, 17)
			},
			want: "spi: invalid number of bits 17",
		},
		{
			name: "partial-eof",
			f: func() error {
				m, _ := NewMaster(&failingBus{err: io.EOF}, 1, 0)
				return m.Partial(0x8000, 3)
			},
			want: "spi: could not send partial frame (0x8000, n=3): EOF",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.f()
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.want; got != want {
				t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
			}
		})
	}

	m, _ := NewMaster(&failingBus{drives: 1, err: io.ErrClosedPipe}, 1, 0)
	err := m.Read(0x04)
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("invalid error: %+v", err)
	}
}
