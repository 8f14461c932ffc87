// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regfile holds the register file and address decoder of the
// peripheral.
package regfile // import "github.com/go-lpc/spipwm/regfile"

import (
	"fmt"

	"github.com/go-lpc/spipwm/spi"
)

// Register addresses.
const (
	PortA = 0x00 // output port A
	PortB = 0x01 // output port B
	Duty  = 0x04 // PWM duty cycle, 0-255
)

type reg8 struct {
	r func() uint8
	w func(v uint8)
}

// File is the register file.
//
// Only the addresses PortA, PortB and Duty are defined.
// Writes to any other address are ignored; reads of any other address
// are undefined and report ok=false.
type File struct {
	a    uint8
	b    uint8
	duty uint8

	regs map[uint8]reg8
}

// New returns a register file holding its reset values.
func New() *File {
	f := &File{}
	f.regs = map[uint8]reg8{
		PortA: f.newReg8(&f.a),
		PortB: f.newReg8(&f.b),
		Duty:  f.newReg8(&f.duty),
	}
	return f
}

func (f *File) newReg8(p *uint8) reg8 {
	return reg8{
		r: func() uint8 { return *p },
		w: func(v uint8) { *p = v },
	}
}

// Valid reports whether addr is a defined register address.
func Valid(addr uint8) bool {
	switch addr {
	case PortA, PortB, Duty:
		return true
	}
	return false
}

// Name returns the name of the register at addr.
func Name(addr uint8) string {
	switch addr {
	case PortA:
		return "port-a"
	case PortB:
		return "port-b"
	case Duty:
		return "duty"
	}
	return fmt.Sprintf("undef-0x%02x", addr)
}

// Apply applies a decoded transaction to the register file.
//
// A read of a defined register returns its value and true.
// Writes and reads of undefined registers return false.
func (f *File) Apply(tx spi.Transaction) (uint8, bool) {
	reg, ok := f.regs[tx.Addr]
	if !ok {
		return 0, false
	}
	if tx.Write {
		reg.w(tx.Data)
		return 0, false
	}
	return reg.r(), true
}

// Reset sets all registers to their reset value.
func (f *File) Reset() {
	for _, reg := range f.regs {
		reg.w(0)
	}
}

// PortA returns the value of the port A register.
func (f *File) PortA() uint8 { return f.a }

// PortB returns the value of the port B register.
func (f *File) PortB() uint8 { return f.b }

// Duty returns the value of the PWM duty register.
func (f *File) Duty() uint8 { return f.duty }

// Snapshot is a copy of the register file.
type Snapshot struct {
	PortA uint8
	PortB uint8
	Duty  uint8
}

// Snapshot returns a copy of the register file.
func (f *File) Snapshot() Snapshot {
	return Snapshot{PortA: f.a, PortB: f.b, Duty: f.duty}
}

// Transactions returns the write transactions that load s into
// a register file.
func (s Snapshot) Transactions() []spi.Transaction {
	return []spi.Transaction{
		spi.WriteTx(PortA, s.PortA),
		spi.WriteTx(PortB, s.PortB),
		spi.WriteTx(Duty, s.Duty),
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf("port-a=0x%02x port-b=0x%02x duty=0x%02x", s.PortA, s.PortB, s.Duty)
}
