// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chip

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-lpc/spipwm/regfile"
)

// shm layout: [port-a, port-b, duty, pad, ticks (u64, little endian), pad]
const shmSize = 16

func (c *Chip) publish() {
	if c.shm == nil {
		return
	}
	var buf [shmSize]byte
	buf[0] = c.regs.PortA()
	buf[1] = c.regs.PortB()
	buf[2] = c.regs.Duty()
	binary.LittleEndian.PutUint64(buf[4:], c.tick)

	_, err := c.shm.WriteAt(buf[:], 0)
	if err != nil {
		c.setErr(fmt.Errorf("chip: could not publish registers: %w", err))
	}
}

// Mirror is the content of the shared memory register mirror.
type Mirror struct {
	Regs  regfile.Snapshot
	Ticks uint64 // tick of the last update
}

func (m Mirror) String() string {
	return fmt.Sprintf("tick=%d %v", m.Ticks, m.Regs)
}

// ReadMirror reads the register mirror published by a chip created
// with WithSHM.
func ReadMirror(r io.ReaderAt) (Mirror, error) {
	var (
		buf [shmSize]byte
		m   Mirror
	)
	_, err := r.ReadAt(buf[:], 0)
	if err != nil {
		return m, fmt.Errorf("chip: could not read register mirror: %w", err)
	}
	m.Regs = regfile.Snapshot{
		PortA: buf[0],
		PortB: buf[1],
		Duty:  buf[2],
	}
	m.Ticks = binary.LittleEndian.Uint64(buf[4:])
	return m, nil
}
