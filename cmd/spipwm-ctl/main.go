// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command spipwm-ctl is an interactive console driving a simulated chip.
//
// Type "help" for the list of commands, and "quit" or ^D to exit.
package main // import "github.com/go-lpc/spipwm/cmd/spipwm-ctl"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-lpc/spipwm/chip"
	"github.com/go-lpc/spipwm/internal/script"
	"github.com/go-lpc/spipwm/profdb"
	"github.com/go-lpc/spipwm/pwm"
	"github.com/go-lpc/spipwm/spi"
	"github.com/peterh/liner"
)

func main() {
	log.SetPrefix("spipwm-ctl: ")
	log.SetFlags(0)

	var (
		clock = pwm.DefaultClock
		freq  = pwm.DefaultFrequency

		dbname  = flag.String("db", "", "name of the profile database")
		shm     = flag.String("shm", "", "path to a shared memory register mirror")
		verbose = flag.Bool("v", false, "enable verbose mode")
	)
	flag.Var(&clock, "clock", "base clock frequency")
	flag.Var(&freq, "pwm", "PWM frequency")

	flag.Parse()

	opts := []chip.Option{
		chip.WithClock(clock),
		chip.WithPWMFrequency(freq),
		chip.WithVerbose(*verbose),
	}
	if *shm != "" {
		opts = append(opts, chip.WithSHM(*shm))
	}

	c, err := chip.New(opts...)
	if err != nil {
		log.Fatalf("could not create chip: %+v", err)
	}
	defer c.Close()

	b, err := chip.NewBench(c, spi.DefaultHalfPeriod, spi.DefaultSettle)
	if err != nil {
		log.Fatalf("could not create bench: %+v", err)
	}
	b.Reset(5)

	var db script.Profiles
	if *dbname != "" {
		pdb, err := profdb.Open(*dbname)
		if err != nil {
			log.Fatalf("could not open profile database: %+v", err)
		}
		defer pdb.Close()
		db = pdb
	}

	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	hist := filepath.Join(os.TempDir(), ".spipwm-ctl.history")
	if f, err := os.Open(hist); err == nil {
		_, _ = term.ReadHistory(f)
		f.Close()
	}

	ip := script.New(b, os.Stdout, db)
	term.SetCompleter(completer(ip.Commands()))

	err = loop(term, ip)
	if err != nil {
		log.Printf("error: %+v", err)
	}

	if f, err := os.Create(hist); err == nil {
		_, _ = term.WriteHistory(f)
		f.Close()
	}
}

type prompter interface {
	Prompt(p string) (string, error)
	AppendHistory(item string)
}

func loop(term prompter, ip *script.Interp) error {
	for {
		line, err := term.Prompt("spipwm> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		switch line {
		case "quit", "exit":
			return nil
		}

		err = ip.Exec(line)
		if err != nil {
			log.Printf("%+v", err)
		}
	}
}

func completer(cmds []string) liner.Completer {
	return func(line string) []string {
		var out []string
		for _, cmd := range cmds {
			if strings.HasPrefix(cmd, line) {
				out = append(out, cmd)
			}
		}
		return out
	}
}
