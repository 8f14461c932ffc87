// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	cmds, err := parse(strings.NewReader(`
# run-control and two chips.
tdaq-runctl -lvl dbg -rc-addr :44000

spipwm-tdaq -id chip-0 -rc-addr :44000
  spipwm-tdaq   -id chip-1 -rc-addr :44000
`))
	if err != nil {
		t.Fatalf("could not parse boot file: %+v", err)
	}

	want := [][]string{
		{"tdaq-runctl", "-lvl", "dbg", "-rc-addr", ":44000"},
		{"spipwm-tdaq", "-id", "chip-0", "-rc-addr", ":44000"},
		{"spipwm-tdaq", "-id", "chip-1", "-rc-addr", ":44000"},
	}
	var got [][]string
	for _, cmd := range cmds {
		got = append(got, cmd.Args)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid commands:\ngot= %q\nwant=%q", got, want)
	}

	_, err = parse(strings.NewReader("# nothing\n\n"))
	if err == nil {
		t.Fatalf("expected an error for an empty boot file")
	}
}

func TestRun(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skipf("no sleep command: %+v", err)
	}

	for _, tc := range []struct {
		name string
		args []string
		mon  bool
		stop bool
	}{
		{name: "simple", args: []string{"0.2", "0.3", "0.4"}},
		{name: "simple-pmon", args: []string{"0.5", "0.5"}, mon: true},
		{name: "simple-stop", args: []string{"30", "30"}, stop: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()

			cmds := make([]*exec.Cmd, len(tc.args))
			for i, arg := range tc.args {
				cmds[i] = exec.Command(sleep, arg)
			}

			stop := make(chan os.Signal, 1)
			if tc.stop {
				go func() {
					time.Sleep(500 * time.Millisecond)
					stop <- os.Interrupt
				}()
			}

			err := run(tc.mon, 100*time.Millisecond, cmds, dir, stop)
			if err != nil {
				t.Fatalf("could not run processes: %+v", err)
			}

			for i := range tc.args {
				fname := filepath.Join(dir, "sleep-0"+string(rune('0'+i))+".log")
				if _, err := os.Stat(fname); err != nil {
					t.Fatalf("missing log file: %+v", err)
				}
			}
		})
	}

	err = run(false, time.Second, []*exec.Cmd{exec.Command(filepath.Join(t.TempDir(), "missing"))}, t.TempDir(), make(chan os.Signal, 1))
	if err == nil || !strings.Contains(err.Error(), "could not start") {
		t.Fatalf("invalid error: %+v", err)
	}
}
