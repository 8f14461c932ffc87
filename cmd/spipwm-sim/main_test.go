// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/spipwm/chip"
	"github.com/go-lpc/spipwm/pwm"
	"github.com/go-lpc/spipwm/spi"
	"github.com/go-lpc/spipwm/trace"
	"periph.io/x/conn/v3/physic"
)

func TestRun(t *testing.T) {
	tmp := t.TempDir()
	cfg := config{
		clock:   pwm.DefaultClock,
		freq:    pwm.DefaultFrequency,
		delay:   chip.DefaultOutputDelay,
		half:    spi.DefaultHalfPeriod,
		settle:  spi.DefaultSettle,
		trace:   filepath.Join(tmp, "out.trace"),
		shm:     filepath.Join(tmp, "out.shm"),
		verbose: true,
	}

	out := new(bytes.Buffer)
	err := run(out, strings.NewReader(`
reset
w 0x00 0xf0
w 0x04 0x80
run 10000
measure
regs
`), cfg)
	if err != nil {
		t.Fatalf("could not run script: %+v", err)
	}

	for _, want := range []string{
		"chip: tick=",
		"w addr=0x00 data=0xf0 -> port-a=0xf0\n",
		"pwm: freq=3000.30Hz period=3333 high=1673 duty=0.5020\n",
		"regs: port-a=0xf0 port-b=0x00 duty=0x80\n",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in output:\n%s", want, out.String())
		}
	}

	f, err := os.Open(cfg.trace)
	if err != nil {
		t.Fatalf("could not open trace: %+v", err)
	}
	defer f.Close()

	var blk trace.Block
	err = trace.NewDecoder(f).Decode(&blk)
	if err != nil {
		t.Fatalf("could not decode trace: %+v", err)
	}
	if got, want := len(blk.Records), 2; got != want {
		t.Fatalf("invalid number of records: got=%d, want=%d", got, want)
	}
}

func TestRunErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		cfg    config
		script string
		err    string
	}{
		{
			name: "bad-pwm",
			cfg: config{
				clock: physic.KiloHertz, freq: physic.KiloHertz,
				half: 1, settle: 1,
			},
			err: "could not create chip",
		},
		{
			name: "bad-bench",
			cfg: config{
				clock: pwm.DefaultClock, freq: pwm.DefaultFrequency,
			},
			err: "could not create bench",
		},
		{
			name: "bad-trace",
			cfg: config{
				clock: pwm.DefaultClock, freq: pwm.DefaultFrequency,
				half: 1, settle: 1,
				trace: filepath.Join(t.TempDir(), "missing", "out.trace"),
			},
			err: "could not create trace file",
		},
		{
			name: "bad-script",
			cfg: config{
				clock: pwm.DefaultClock, freq: pwm.DefaultFrequency,
				half: 1, settle: 1,
			},
			script: "reset\nexpect port-a 0x42\n",
			err:    "line 2: script: could not run \"expect\"",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := run(new(bytes.Buffer), strings.NewReader(tc.script), tc.cfg)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.HasPrefix(err.Error(), tc.err) {
				t.Fatalf("invalid error:\ngot= %+v\nwant=%s", err, tc.err)
			}
		})
	}
}

type failingCloser struct {
	bytes.Buffer
}

func (*failingCloser) Close() error { return errors.New("disk quota exceeded") }

func TestRunTraceCloseError(t *testing.T) {
	orig := createTrace
	defer func() { createTrace = orig }()

	w := new(failingCloser)
	createTrace = func(string) (io.WriteCloser, error) { return w, nil }

	cfg := config{
		clock:  pwm.DefaultClock,
		freq:   pwm.DefaultFrequency,
		half:   spi.DefaultHalfPeriod,
		settle: spi.DefaultSettle,
		trace:  "out.trace",
	}
	err := run(new(bytes.Buffer), strings.NewReader("w 0x01 0xcc\n"), cfg)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := err.Error(), "could not close trace file: disk quota exceeded"; got != want {
		t.Fatalf("invalid error: got=%q, want=%q", got, want)
	}
	if w.Len() == 0 {
		t.Fatalf("trace was not written before close")
	}
}
