// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command spipwm-load programs the registers of a peripheral wired to an
// FTDI chip in bit-bang mode.
//
// Register values are taken from the command line, or from a profile of
// the profile database.
//
// Example:
//
//	$> spipwm-load -reset -a 0xf0 -duty 0x80
//	$> spipwm-load -db spipwm -profile nominal
package main // import "github.com/go-lpc/spipwm/cmd/spipwm-load"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"

	"github.com/go-lpc/spipwm/ftdibb"
	"github.com/go-lpc/spipwm/profdb"
	"github.com/go-lpc/spipwm/regfile"
	"github.com/go-lpc/spipwm/spi"
)

func main() {
	log.SetPrefix("spipwm-load: ")
	log.SetFlags(0)

	var (
		vid    = flag.Uint("vid", 0x0403, "FTDI vendor ID")
		pid    = flag.Uint("pid", 0x6014, "FTDI product ID")
		baud   = flag.Int("baud", 62500, "bit-bang baud rate")
		half   = flag.Int("half", spi.DefaultHalfPeriod, "ticks per half serial-clock period")
		settle = flag.Int("settle", spi.DefaultSettle, "ticks to wait after each frame")
		reset  = flag.Bool("reset", false, "reset the peripheral before programming it")

		portA = flag.String("a", "", "value of the port A register")
		portB = flag.String("b", "", "value of the port B register")
		duty  = flag.String("duty", "", "value of the PWM duty register")

		dbname = flag.String("db", "", "name of the profile database")
		name   = flag.String("profile", "", "name of the profile to load")
	)

	flag.Parse()

	var txs []spi.Transaction
	switch {
	case *name != "":
		if *dbname == "" {
			log.Fatalf("missing profile database name")
		}
		db, err := profdb.Open(*dbname)
		if err != nil {
			log.Fatalf("could not open profile database: %+v", err)
		}
		defer db.Close()

		p, err := db.Profile(context.Background(), *name)
		if err != nil {
			log.Fatalf("could not retrieve profile %q: %+v", *name, err)
		}
		log.Printf("loading %v", p)
		txs = p.Transactions()
	default:
		var err error
		txs, err = transactions(*portA, *portB, *duty)
		if err != nil {
			log.Fatalf("could not parse register values: %+v", err)
		}
	}

	bus, err := ftdibb.Open(uint16(*vid), uint16(*pid), *baud)
	if err != nil {
		log.Fatalf("could not open FTDI device: %+v", err)
	}
	defer bus.Close()

	err = program(bus, txs, *reset, *half, *settle)
	if err != nil {
		log.Fatalf("could not program peripheral: %+v", err)
	}

	err = bus.Close()
	if err != nil {
		log.Fatalf("could not close FTDI device: %+v", err)
	}
}

// transactions returns the write transactions for the non-empty values.
func transactions(a, b, duty string) ([]spi.Transaction, error) {
	var txs []spi.Transaction
	for _, reg := range []struct {
		addr uint8
		v    string
	}{
		{regfile.PortA, a},
		{regfile.PortB, b},
		{regfile.Duty, duty},
	} {
		if reg.v == "" {
			continue
		}
		v, err := strconv.ParseUint(reg.v, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", regfile.Name(reg.addr), reg.v, err)
		}
		txs = append(txs, spi.WriteTx(reg.addr, uint8(v)))
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("no register value")
	}
	return txs, nil
}

type device interface {
	spi.Bus
	Reset(n int) error
	Flush() error
}

func program(dev device, txs []spi.Transaction, reset bool, half, settle int) error {
	m, err := spi.NewMaster(dev, half, settle)
	if err != nil {
		return fmt.Errorf("could not create SPI master: %w", err)
	}

	if reset {
		err = dev.Reset(5)
		if err != nil {
			return fmt.Errorf("could not reset peripheral: %w", err)
		}
		err = dev.Wait(5)
		if err != nil {
			return fmt.Errorf("could not reset peripheral: %w", err)
		}
	}

	for _, tx := range txs {
		err = m.Tx(tx)
		if err != nil {
			return fmt.Errorf("could not send %v: %w", tx, err)
		}
	}

	return dev.Flush()
}
