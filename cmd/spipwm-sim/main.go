// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// spipwm-sim runs a bench script against a simulated chip.
//
// Usage: spipwm-sim [OPTIONS] [SCRIPT]
//
// Without SCRIPT, commands are read from standard input.
//
// Example:
//
//	$> cat scenario.txt
//	reset
//	w 0x00 0xf0
//	w 0x04 0x80
//	run 10000
//	measure
//	regs
//	$> spipwm-sim -trace out.trace ./scenario.txt
//	pwm: freq=3000.30Hz period=3333 high=1673 duty=0.5020
//	regs: port-a=0xf0 port-b=0x00 duty=0x80
package main // import "github.com/go-lpc/spipwm/cmd/spipwm-sim"

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/spipwm/chip"
	"github.com/go-lpc/spipwm/internal/script"
	"github.com/go-lpc/spipwm/profdb"
	"github.com/go-lpc/spipwm/pwm"
	"github.com/go-lpc/spipwm/spi"
	"periph.io/x/conn/v3/physic"
)

func main() {
	log.SetPrefix("spipwm-sim: ")
	log.SetFlags(0)

	cfg := config{
		clock:  pwm.DefaultClock,
		freq:   pwm.DefaultFrequency,
		delay:  chip.DefaultOutputDelay,
		half:   spi.DefaultHalfPeriod,
		settle: spi.DefaultSettle,
	}

	flag.Var(&cfg.clock, "clock", "base clock frequency")
	flag.Var(&cfg.freq, "pwm", "PWM frequency")
	flag.IntVar(&cfg.delay, "delay", cfg.delay, "output delay in ticks")
	flag.IntVar(&cfg.half, "half", cfg.half, "ticks per half serial-clock period")
	flag.IntVar(&cfg.settle, "settle", cfg.settle, "ticks to wait after each frame")
	flag.StringVar(&cfg.trace, "trace", "", "path to an output trace file")
	flag.StringVar(&cfg.shm, "shm", "", "path to a shared memory register mirror")
	flag.StringVar(&cfg.db, "db", "", "name of the profile database")
	flag.BoolVar(&cfg.verbose, "v", false, "enable verbose mode")

	flag.Usage = func() {
		fmt.Printf(`spipwm-sim runs a bench script against a simulated chip.

Usage: spipwm-sim [OPTIONS] [SCRIPT]

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	var src io.Reader = os.Stdin
	switch flag.NArg() {
	case 0:
	case 1:
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			log.Fatalf("could not open script: %+v", err)
		}
		defer f.Close()
		src = f
	default:
		flag.Usage()
		log.Fatalf("too many arguments")
	}

	err := run(os.Stdout, src, cfg)
	if err != nil {
		log.Fatalf("could not run script: %+v", err)
	}
}

type config struct {
	clock   physic.Frequency
	freq    physic.Frequency
	delay   int
	half    int
	settle  int
	trace   string
	shm     string
	db      string
	verbose bool
}

var createTrace = func(fname string) (io.WriteCloser, error) {
	return os.Create(fname)
}

func run(w io.Writer, r io.Reader, cfg config) error {
	opts := []chip.Option{
		chip.WithClock(cfg.clock),
		chip.WithPWMFrequency(cfg.freq),
		chip.WithOutputDelay(cfg.delay),
		chip.WithLogger(log.New(w, "chip: ", 0)),
		chip.WithVerbose(cfg.verbose),
	}

	var ftrace io.WriteCloser
	if cfg.trace != "" {
		f, err := createTrace(cfg.trace)
		if err != nil {
			return fmt.Errorf("could not create trace file: %w", err)
		}
		defer f.Close()
		ftrace = f
		opts = append(opts, chip.WithTrace(f))
	}

	if cfg.shm != "" {
		opts = append(opts, chip.WithSHM(cfg.shm))
	}

	c, err := chip.New(opts...)
	if err != nil {
		return fmt.Errorf("could not create chip: %w", err)
	}
	defer c.Close()

	b, err := chip.NewBench(c, cfg.half, cfg.settle)
	if err != nil {
		return fmt.Errorf("could not create bench: %w", err)
	}

	var db script.Profiles
	if cfg.db != "" {
		pdb, err := profdb.Open(cfg.db)
		if err != nil {
			return fmt.Errorf("could not open profile database: %w", err)
		}
		defer pdb.Close()
		db = pdb
	}

	err = script.New(b, w, db).Run(r)
	if err != nil {
		return err
	}

	err = c.Close()
	if err != nil {
		return fmt.Errorf("could not close chip: %w", err)
	}

	if ftrace != nil {
		err = ftrace.Close()
		if err != nil {
			return fmt.Errorf("could not close trace file: %w", err)
		}
	}

	return nil
}
