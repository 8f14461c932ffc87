// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-lpc/spipwm/internal/crc16"
)

// Encoder writes trace blocks to an output stream.
// Encoder computes the CRC-16 checksum on the fly and appends it
// at the end of each block.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error
	crc crc16.Hash16
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, 8),
		crc: crc16.New(nil),
	}
}

// Encode writes a block to the stream.
func (enc *Encoder) Encode(blk *Block) error {
	if blk == nil {
		return nil
	}
	if enc.err != nil {
		return enc.err
	}
	if n := len(blk.Records); n > MaxRecords {
		return fmt.Errorf("trace: too many records in block (n=%d)", n)
	}
	for i, rec := range blk.Records {
		if rec.Tick > maxTick {
			return fmt.Errorf("trace: record %d tick overflow (tick=%d)", i, rec.Tick)
		}
	}

	enc.crc.Reset()

	enc.writeU8(blkHeader)
	enc.writeU8(blk.Chip)
	enc.writeU16(uint16(len(blk.Records)))
	for _, rec := range blk.Records {
		enc.writeU8(recHeader)
		enc.writeU48(rec.Tick)
		enc.writeU16(rec.Tx.Word())
	}
	enc.writeU8(blkTrailer)

	crc := enc.crc.Sum16()
	enc.writeU16(crc)

	if enc.err != nil {
		return fmt.Errorf("trace: could not encode block: %w", enc.err)
	}
	return nil
}

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
	_, _ = enc.crc.Write(p) // can not fail.
}

func (enc *Encoder) writeU8(v uint8) {
	enc.buf[0] = v
	enc.write(enc.buf[:1])
}

func (enc *Encoder) writeU16(v uint16) {
	binary.BigEndian.PutUint16(enc.buf[:2], v)
	enc.write(enc.buf[:2])
}

func (enc *Encoder) writeU48(v uint64) {
	const n = 6
	for i := 0; i < n; i++ {
		enc.buf[i] = byte(v >> (8 * (n - 1 - i)))
	}
	enc.write(enc.buf[:n])
}
