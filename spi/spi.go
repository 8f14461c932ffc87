// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spi holds the bit-serial frame decoder of the peripheral and a
// bit-bang master able to drive it.
//
// A frame is 16 bits long, sent MSB first while chip-select is held low:
//
//	[RW(1)][ADDR(7)][DATA(8)]
//
// with RW=1 for a write and RW=0 for a read.
package spi // import "github.com/go-lpc/spipwm/spi"

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

const (
	// FrameBits is the number of serial-clock cycles of a well-formed frame.
	FrameBits = 16

	// MaxAddr is the largest 7-bit register address.
	MaxAddr = 0x7f
)

// Transaction is one decoded SPI frame.
type Transaction struct {
	Write bool  // true for a write, false for a read
	Addr  uint8 // 7-bit register address
	Data  uint8
}

// WriteTx returns a write transaction of v at addr.
func WriteTx(addr, v uint8) Transaction {
	return Transaction{Write: true, Addr: addr & MaxAddr, Data: v}
}

// ReadTx returns a read transaction at addr.
// The data byte of a read frame carries no meaning.
func ReadTx(addr, v uint8) Transaction {
	return Transaction{Write: false, Addr: addr & MaxAddr, Data: v}
}

// Word returns the 16-bit wire word of the transaction.
func (tx Transaction) Word() uint16 {
	var rw uint16
	if tx.Write {
		rw = 1
	}
	return rw<<15 | uint16(tx.Addr&MaxAddr)<<8 | uint16(tx.Data)
}

// FromWord decodes a 16-bit wire word.
func FromWord(w uint16) Transaction {
	return Transaction{
		Write: w>>15 == 1,
		Addr:  uint8(w>>8) & MaxAddr,
		Data:  uint8(w),
	}
}

func (tx Transaction) String() string {
	op := "r"
	if tx.Write {
		op = "w"
	}
	return fmt.Sprintf("%s addr=0x%02x data=0x%02x", op, tx.Addr, tx.Data)
}

// Pins holds the levels of the three SPI lines driven by a master.
type Pins struct {
	CS   gpio.Level // chip-select, active low
	DIn  gpio.Level // data into the peripheral
	SCLK gpio.Level // serial clock
}

// Idle is the state of the SPI lines between frames.
var Idle = Pins{CS: gpio.High, DIn: gpio.Low, SCLK: gpio.Low}
