// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"encoding/binary"
	"io"

	"github.com/go-lpc/spipwm/internal/crc16"
	"github.com/go-lpc/spipwm/spi"
	"golang.org/x/xerrors"
)

// Decoder reads (and validates) trace blocks from an underlying data source.
type Decoder struct {
	r io.Reader

	buf []byte
	err error
	crc crc16.Hash16
}

// NewDecoder creates a decoder that reads and validates data from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, 8),
		crc: crc16.New(nil),
	}
}

// Decode reads the next block from the stream.
// Decode returns an error wrapping io.EOF when the stream is exhausted.
func (dec *Decoder) Decode(blk *Block) error {
	dec.crc.Reset()
	dec.err = nil

	v := dec.readU8()
	if dec.err != nil {
		return xerrors.Errorf("trace: could not read block header marker: %w", dec.err)
	}
	if v != blkHeader {
		return xerrors.Errorf("trace: invalid block header marker (got=0x%x)", v)
	}

	blk.Chip = dec.readU8()
	n := int(dec.readU16())
	if dec.err != nil {
		return xerrors.Errorf("trace: could not read block header: %w", dec.unexpected())
	}

	blk.Records = blk.Records[:0]
	for i := 0; i < n; i++ {
		v := dec.readU8()
		if dec.err != nil {
			return xerrors.Errorf("trace: could not read record %d marker: %w", i, dec.unexpected())
		}
		if v != recHeader {
			return xerrors.Errorf("trace: invalid record %d marker (got=0x%x)", i, v)
		}
		var rec Record
		rec.Tick = dec.readU48()
		rec.Tx = spi.FromWord(dec.readU16())
		if dec.err != nil {
			return xerrors.Errorf("trace: could not read record %d: %w", i, dec.unexpected())
		}
		blk.Records = append(blk.Records, rec)
	}

	v = dec.readU8()
	if dec.err != nil {
		return xerrors.Errorf("trace: could not read block trailer marker: %w", dec.unexpected())
	}
	if v != blkTrailer {
		return xerrors.Errorf("trace: invalid block trailer marker (got=0x%x)", v)
	}

	comp := dec.crc.Sum16()
	recv := dec.readU16()
	if dec.err != nil {
		return xerrors.Errorf("trace: could not read CRC-16: %w", dec.unexpected())
	}
	if comp != recv {
		return xerrors.Errorf(
			"trace: chip 0x%x inconsistent CRC: recv=0x%04x comp=0x%04x",
			blk.Chip, recv, comp,
		)
	}

	return nil
}

func (dec *Decoder) unexpected() error {
	if xerrors.Is(dec.err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return dec.err
}

func (dec *Decoder) load(n int) []byte {
	if dec.err != nil {
		return dec.buf[:n]
	}
	_, dec.err = io.ReadFull(dec.r, dec.buf[:n])
	if dec.err == nil {
		_, _ = dec.crc.Write(dec.buf[:n])
	}
	return dec.buf[:n]
}

func (dec *Decoder) readU8() uint8 {
	return dec.load(1)[0]
}

func (dec *Decoder) readU16() uint16 {
	return binary.BigEndian.Uint16(dec.load(2))
}

func (dec *Decoder) readU48() uint64 {
	p := dec.load(6)
	var v uint64
	for _, b := range p {
		v = v<<8 | uint64(b)
	}
	return v
}
