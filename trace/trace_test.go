// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/go-lpc/spipwm/spi"
	"golang.org/x/xerrors"
)

var (
	blk42 = Block{
		Chip: 0x42,
		Records: []Record{
			{Tick: 0x0102, Tx: spi.WriteTx(0x00, 0xf0)},
			{Tick: 0x010203040506, Tx: spi.ReadTx(0x30, 0xbe)},
		},
	}
	raw42 = []byte{
		blkHeader, 0x42, 0x00, 0x02,
		recHeader, 0, 0, 0, 0, 1, 2, 0x80, 0xf0,
		recHeader, 1, 2, 3, 4, 5, 6, 0x30, 0xbe,
		blkTrailer,
		0x94, 0x61, // CRC-16
	}
)

func TestEncoder(t *testing.T) {
	for _, tc := range []struct {
		name string
		blk  *Block
		want []byte
	}{
		{
			name: "nil",
		},
		{
			name: "empty",
			blk:  &Block{Chip: 1},
			want: []byte{blkHeader, 0x01, 0x00, 0x00, blkTrailer, 0xfc, 0x6c},
		},
		{
			name: "two-records",
			blk:  &blk42,
			want: raw42,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			err := NewEncoder(buf).Encode(tc.blk)
			if err != nil {
				t.Fatalf("could not encode block: %+v", err)
			}
			if got, want := buf.Bytes(), tc.want; !bytes.Equal(got, want) {
				t.Fatalf("invalid encoding:\ngot= %x\nwant=%x", got, want)
			}
		})
	}
}

type failingWriter struct {
	n int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n <= 0 {
		return 0, io.ErrShortWrite
	}
	w.n--
	return len(p), nil
}

func TestEncoderErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		w    io.Writer
		blk  Block
		want string
	}{
		{
			name: "too-many-records",
			w:    io.Discard,
			blk:  Block{Records: make([]Record, MaxRecords+1)},
			want: "trace: too many records in block (n=65536)",
		},
		{
			name: "tick-overflow",
			w:    io.Discard,
			blk:  Block{Records: []Record{{Tick: 1 << 48}}},
			want: "trace: record 0 tick overflow (tick=281474976710656)",
		},
		{
			name: "short-write",
			w:    &failingWriter{n: 3},
			blk:  blk42,
			want: "trace: could not encode block: short write",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := NewEncoder(tc.w).Encode(&tc.blk)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.want; got != want {
				t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
			}
		})
	}
}

func TestDecoder(t *testing.T) {
	corrupt := func(i int, v byte) []byte {
		raw := append([]byte(nil), raw42...)
		raw[i] = v
		return raw
	}

	for _, tc := range []struct {
		name string
		raw  []byte
		want error
	}{
		{
			name: "no data",
			raw:  nil,
			want: xerrors.Errorf("trace: could not read block header marker: %w", io.EOF),
		},
		{
			name: "normal",
			raw:  raw42,
		},
		{
			name: "invalid-header",
			raw:  corrupt(0, 0xb1),
			want: xerrors.Errorf("trace: invalid block header marker (got=0xb1)"),
		},
		{
			name: "short-header",
			raw:  raw42[:3],
			want: xerrors.Errorf("trace: could not read block header: %w", io.ErrUnexpectedEOF),
		},
		{
			name: "invalid-record-marker",
			raw:  corrupt(13, 0x00),
			want: xerrors.Errorf("trace: invalid record 1 marker (got=0x0)"),
		},
		{
			name: "short-record",
			raw:  raw42[:10],
			want: xerrors.Errorf("trace: could not read record 0: %w", io.ErrUnexpectedEOF),
		},
		{
			name: "missing-record",
			raw:  raw42[:13],
			want: xerrors.Errorf("trace: could not read record 1 marker: %w", io.ErrUnexpectedEOF),
		},
		{
			name: "invalid-trailer",
			raw:  corrupt(22, 0xa1),
			want: xerrors.Errorf("trace: invalid block trailer marker (got=0xa1)"),
		},
		{
			name: "missing-trailer",
			raw:  raw42[:22],
			want: xerrors.Errorf("trace: could not read block trailer marker: %w", io.ErrUnexpectedEOF),
		},
		{
			name: "missing-crc",
			raw:  raw42[:24],
			want: xerrors.Errorf("trace: could not read CRC-16: %w", io.ErrUnexpectedEOF),
		},
		{
			name: "invalid-crc",
			raw:  corrupt(24, 0x00),
			want: xerrors.Errorf("trace: chip 0x42 inconsistent CRC: recv=0x9400 comp=0x9461"),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var blk Block
			err := NewDecoder(bytes.NewReader(tc.raw)).Decode(&blk)
			switch {
			case err == nil && tc.want == nil:
				if !reflect.DeepEqual(blk, blk42) {
					t.Fatalf("invalid block:\ngot= %+v\nwant=%+v", blk, blk42)
				}
			case err == nil && tc.want != nil:
				t.Fatalf("expected an error (%v)", tc.want)
			case err != nil && tc.want == nil:
				t.Fatalf("could not decode block: %+v", err)
			case err != nil && tc.want != nil:
				if got, want := err.Error(), tc.want.Error(); got != want {
					t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
				}
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	blks := []Block{
		blk42,
		{Chip: 7},
		{
			Chip: 7,
			Records: []Record{
				{Tick: 1, Tx: spi.WriteTx(0x04, 0xff)},
				{Tick: 1 << 40, Tx: spi.WriteTx(0x01, 0xcc)},
			},
		},
	}

	buf := new(bytes.Buffer)
	enc := NewEncoder(buf)
	for i := range blks {
		err := enc.Encode(&blks[i])
		if err != nil {
			t.Fatalf("could not encode block %d: %+v", i, err)
		}
	}

	dec := NewDecoder(buf)
	for i, want := range blks {
		var got Block
		err := dec.Decode(&got)
		if err != nil {
			t.Fatalf("could not decode block %d: %+v", i, err)
		}
		if got.Chip != want.Chip || len(got.Records) != len(want.Records) {
			t.Fatalf("block %d: invalid block:\ngot= %+v\nwant=%+v", i, got, want)
		}
		for j := range want.Records {
			if got.Records[j] != want.Records[j] {
				t.Fatalf("block %d: invalid record %d: got=%+v, want=%+v", i, j, got.Records[j], want.Records[j])
			}
		}
	}

	var blk Block
	err := dec.Decode(&blk)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %+v", err)
	}
}
