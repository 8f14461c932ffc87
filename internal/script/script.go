// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package script interprets bench commands, one per line.
//
//	w ADDR DATA        send a write frame
//	r ADDR             send a read frame
//	tx WORD            send a raw 16-bit frame
//	partial WORD N     send the N most significant bits of WORD
//	run N              advance the clock by N ticks
//	reset [N]          hold reset for N ticks (default: 5)
//	enable on|off      drive the enable line
//	measure [N]        measure the PWM output over N ticks (default: 5 periods)
//	regs               display the register file
//	out                display the output ports
//	expect REG VALUE   check port-a, port-b or duty
//	load PROFILE       load a register profile from the database
//	save PROFILE       store the register file in the database
//	help               display this help
//
// Everything after a '#' is a comment.
package script // import "github.com/go-lpc/spipwm/internal/script"

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/go-lpc/spipwm/chip"
	"github.com/go-lpc/spipwm/profdb"
	"github.com/go-lpc/spipwm/spi"
)

// Profiles retrieves and stores register profiles.
type Profiles interface {
	Profile(ctx context.Context, name string) (profdb.Profile, error)
	Save(ctx context.Context, p profdb.Profile) error
}

type command struct {
	usage string
	narg  [2]int // min, max number of arguments
	run   func(args []string) error
}

// Interp runs commands against a bench.
type Interp struct {
	b   *chip.Bench
	w   io.Writer
	db  Profiles
	ctx context.Context

	cmds map[string]command
}

// New returns an interpreter driving b and displaying results on w.
// db may be nil.
func New(b *chip.Bench, w io.Writer, db Profiles) *Interp {
	ip := &Interp{
		b:   b,
		w:   w,
		db:  db,
		ctx: context.Background(),
	}
	ip.cmds = map[string]command{
		"w":       {"w ADDR DATA", [2]int{2, 2}, ip.write},
		"r":       {"r ADDR", [2]int{1, 1}, ip.read},
		"tx":      {"tx WORD", [2]int{1, 1}, ip.tx},
		"partial": {"partial WORD N", [2]int{2, 2}, ip.partial},
		"run":     {"run N", [2]int{1, 1}, ip.run},
		"reset":   {"reset [N]", [2]int{0, 1}, ip.reset},
		"enable":  {"enable on|off", [2]int{1, 1}, ip.enable},
		"measure": {"measure [N]", [2]int{0, 1}, ip.measure},
		"regs":    {"regs", [2]int{0, 0}, ip.regs},
		"out":     {"out", [2]int{0, 0}, ip.out},
		"expect":  {"expect port-a|port-b|duty VALUE", [2]int{2, 2}, ip.expect},
		"load":    {"load PROFILE", [2]int{1, 1}, ip.load},
		"save":    {"save PROFILE", [2]int{1, 1}, ip.save},
		"help":    {"help", [2]int{0, 0}, ip.help},
	}
	return ip
}

// Commands returns the sorted list of command names.
func (ip *Interp) Commands() []string {
	names := make([]string, 0, len(ip.cmds))
	for name := range ip.cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exec executes one command line.
func (ip *Interp) Exec(line string) error {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return nil
	}

	name, args := toks[0], toks[1:]
	cmd, ok := ip.cmds[name]
	if !ok {
		return fmt.Errorf("script: unknown command %q", name)
	}
	if len(args) < cmd.narg[0] || len(args) > cmd.narg[1] {
		return fmt.Errorf("script: invalid arguments (usage: %s)", cmd.usage)
	}

	err := cmd.run(args)
	if err != nil {
		return fmt.Errorf("script: could not run %q: %w", name, err)
	}
	return nil
}

// Run executes all the command lines read from r, stopping at the
// first error.
func (ip *Interp) Run(r io.Reader) error {
	var (
		sc = bufio.NewScanner(r)
		n  = 0
	)
	for sc.Scan() {
		n++
		err := ip.Exec(sc.Text())
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("script: could not scan commands: %w", err)
	}
	return ip.b.Chip().Flush()
}

func parseU8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid 8-bit value %q", s)
	}
	return uint8(v), nil
}

func parseInt(s string) (int, error) {
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid count %q", s)
	}
	return int(v), nil
}

func (ip *Interp) write(args []string) error {
	addr, err := parseU8(args[0])
	if err != nil {
		return err
	}
	if addr > spi.MaxAddr {
		return fmt.Errorf("invalid address 0x%02x", addr)
	}
	v, err := parseU8(args[1])
	if err != nil {
		return err
	}
	return ip.b.Write(addr, v)
}

func (ip *Interp) read(args []string) error {
	addr, err := parseU8(args[0])
	if err != nil {
		return err
	}
	if addr > spi.MaxAddr {
		return fmt.Errorf("invalid address 0x%02x", addr)
	}
	return ip.b.Read(addr)
}

func (ip *Interp) tx(args []string) error {
	w, err := strconv.ParseUint(args[0], 0, 16)
	if err != nil {
		return fmt.Errorf("invalid 16-bit word %q", args[0])
	}
	return ip.b.Tx(spi.FromWord(uint16(w)))
}

func (ip *Interp) partial(args []string) error {
	w, err := strconv.ParseUint(args[0], 0, 16)
	if err != nil {
		return fmt.Errorf("invalid 16-bit word %q", args[0])
	}
	n, err := parseInt(args[1])
	if err != nil {
		return err
	}
	return ip.b.Partial(uint16(w), n)
}

func (ip *Interp) run(args []string) error {
	n, err := parseInt(args[0])
	if err != nil {
		return err
	}
	ip.b.Run(n)
	return nil
}

func (ip *Interp) reset(args []string) error {
	n := 5
	if len(args) > 0 {
		v, err := parseInt(args[0])
		if err != nil {
			return err
		}
		n = v
	}
	ip.b.Reset(n)
	return nil
}

func (ip *Interp) enable(args []string) error {
	switch args[0] {
	case "on", "1":
		ip.b.Enable(true)
	case "off", "0":
		ip.b.Enable(false)
	default:
		return fmt.Errorf("invalid enable state %q", args[0])
	}
	return nil
}

func (ip *Interp) measure(args []string) error {
	n := 5 * ip.b.Chip().PWM().Period()
	if len(args) > 0 {
		v, err := parseInt(args[0])
		if err != nil {
			return err
		}
		n = v
	}
	msr := ip.b.MeasurePWM(n)
	fmt.Fprintf(ip.w, "pwm: %v\n", msr)
	return nil
}

func (ip *Interp) regs(args []string) error {
	fmt.Fprintf(ip.w, "regs: %v\n", ip.b.Chip().Registers())
	return nil
}

func (ip *Interp) out(args []string) error {
	fmt.Fprintf(ip.w, "out:  %v\n", ip.b.Outputs())
	return nil
}

func (ip *Interp) expect(args []string) error {
	want, err := parseU8(args[1])
	if err != nil {
		return err
	}
	var got uint8
	switch args[0] {
	case "port-a":
		got = ip.b.Outputs().PortA
	case "port-b":
		got = ip.b.Outputs().PortB
	case "duty":
		got = ip.b.Chip().Registers().Duty
	default:
		return fmt.Errorf("invalid register %q", args[0])
	}
	if got != want {
		return fmt.Errorf("%s mismatch: got=0x%02x, want=0x%02x", args[0], got, want)
	}
	return nil
}

func (ip *Interp) load(args []string) error {
	if ip.db == nil {
		return fmt.Errorf("no profile database")
	}
	p, err := ip.db.Profile(ip.ctx, args[0])
	if err != nil {
		return err
	}
	for _, tx := range p.Transactions() {
		err = ip.b.Tx(tx)
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(ip.w, "loaded %v\n", p)
	return nil
}

func (ip *Interp) save(args []string) error {
	if ip.db == nil {
		return fmt.Errorf("no profile database")
	}
	return ip.db.Save(ip.ctx, profdb.Profile{
		Name: args[0],
		Regs: ip.b.Chip().Registers(),
	})
}

func (ip *Interp) help(args []string) error {
	for _, name := range ip.Commands() {
		fmt.Fprintf(ip.w, "  %s\n", ip.cmds[name].usage)
	}
	return nil
}
