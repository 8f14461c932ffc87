// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trace holds functions to record and replay the transactions
// committed by a peripheral.
//
// A trace stream is a sequence of blocks:
//
//	block  := 0xb0 | chip-id (u8) | n (u16) | n*record | 0xa0 | crc16 (u16)
//	record := 0xb4 | tick (u48) | word (u16)
//
// All integers are big-endian. The CRC-16 covers every byte of the block
// before the checksum itself.
package trace // import "github.com/go-lpc/spipwm/trace"

import (
	"github.com/go-lpc/spipwm/spi"
)

const (
	blkHeader  = 0xb0 // block header marker
	blkTrailer = 0xa0 // block trailer marker
	recHeader  = 0xb4 // record header marker

	maxTick = 1<<48 - 1
)

// MaxRecords is the maximum number of records in a block.
const MaxRecords = 1<<16 - 1

// Block is a sequence of transactions committed by one chip.
type Block struct {
	Chip    uint8
	Records []Record
}

// Record is a transaction committed at a given base-clock tick.
type Record struct {
	Tick uint64
	Tx   spi.Transaction
}
