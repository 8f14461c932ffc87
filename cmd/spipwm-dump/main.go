// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// spipwm-dump decodes and displays transaction trace files.
//
// Usage: spipwm-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> spipwm-dump ./out.trace
//	=== chip 0x00 ===
//	records:          3
//	  tick=      1710 w addr=0x00 data=0xf0 (port-a)
//	  tick=      3411 w addr=0x01 data=0xcc (port-b)
//	  tick=      5112 w addr=0x30 data=0xaa (undef-0x30)
package main // import "github.com/go-lpc/spipwm/cmd/spipwm-dump"

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/spipwm/regfile"
	"github.com/go-lpc/spipwm/trace"
)

func main() {
	log.SetPrefix("spipwm-dump: ")
	log.SetFlags(0)

	regs := flag.Bool("regs", false, "display the register file after each block")

	flag.Usage = func() {
		fmt.Printf(`spipwm-dump decodes and displays transaction trace files.

Usage: spipwm-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> spipwm-dump ./out.trace
 === chip 0x00 ===
 records:          3
   tick=      1710 w addr=0x00 data=0xf0 (port-a)
   tick=      3411 w addr=0x01 data=0xcc (port-b)
   tick=      5112 w addr=0x30 data=0xaa (undef-0x30)

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input trace file")
	}

	for _, fname := range flag.Args() {
		err := process(os.Stdout, fname, *regs)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, regs bool) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	var (
		dec = trace.NewDecoder(bufio.NewReader(f))
		rf  = regfile.New()
	)
loop:
	for {
		var blk trace.Block
		err := dec.Decode(&blk)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode block: %w", err)
		}
		fmt.Fprintf(wbuf, "=== chip 0x%02x ===\n", blk.Chip)
		fmt.Fprintf(wbuf, "records: % 10d\n", len(blk.Records))

		for _, rec := range blk.Records {
			fmt.Fprintf(wbuf, "  tick=% 10d %v (%s)\n",
				rec.Tick, rec.Tx, regfile.Name(rec.Tx.Addr),
			)
			rf.Apply(rec.Tx)
		}
		if regs {
			fmt.Fprintf(wbuf, "regs: %v\n", rf.Snapshot())
		}
	}

	return nil
}
