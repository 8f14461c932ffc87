// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command spipwm-spy spies the register mirror of a running simulation.
//
// Usage: spipwm-spy [-freq DURATION] FILE
package main // import "github.com/go-lpc/spipwm/cmd/spipwm-spy"

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/spipwm/chip"
	"github.com/go-lpc/spipwm/internal/shm"
)

func main() {
	log.SetPrefix("spipwm-spy: ")
	log.SetFlags(0)

	var (
		freq = flag.Duration("freq", 0, "polling interval (default: display once)")
	)

	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("missing path to register mirror")
	}

	r, err := shm.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("could not open register mirror: %+v", err)
	}
	defer r.Close()

	err = spy(os.Stdout, r, time.Now())
	if err != nil {
		log.Fatalf("could not display registers: %+v", err)
	}
	if *freq <= 0 {
		return
	}

	tick := time.NewTicker(*freq)
	defer tick.Stop()
	for now := range tick.C {
		err = spy(os.Stdout, r, now)
		if err != nil {
			log.Fatalf("could not display registers: %+v", err)
		}
	}
}

func spy(w io.Writer, r io.ReaderAt, now time.Time) error {
	m, err := chip.ReadMirror(r)
	if err != nil {
		return err
	}

	const layout = "2006-01-02 15:04:05 MST"
	fmt.Fprintf(w, "------------------------------------------------\n")
	fmt.Fprintf(w, "%v\n", now.Format(layout))
	fmt.Fprintf(w, "tick:   %d\n", m.Ticks)
	fmt.Fprintf(w, "port-a: 0x%02x\n", m.Regs.PortA)
	fmt.Fprintf(w, "port-b: 0x%02x\n", m.Regs.PortB)
	fmt.Fprintf(w, "duty:   0x%02x (%.1f%%)\n", m.Regs.Duty, 100*float64(m.Regs.Duty)/255)
	return nil
}
