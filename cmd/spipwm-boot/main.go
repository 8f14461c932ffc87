// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command spipwm-boot starts all the processes of a simulated test bench.
//
// The processes are listed in a boot file, one command line per line:
//
//	# run-control and two chips.
//	tdaq-runctl -lvl dbg -rc-addr :44000
//	spipwm-tdaq -id chip-0 -rc-addr :44000
//	spipwm-tdaq -id chip-1 -rc-addr :44000
//
// Usage: spipwm-boot [OPTIONS] BOOT-FILE
package main // import "github.com/go-lpc/spipwm/cmd/spipwm-boot"

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
)

var (
	doMon  = flag.Bool("pmon", false, "enable pmon monitoring")
	doFreq = flag.Duration("freq", 1*time.Second, "pmon frequency")
	doDir  = flag.String("dir", os.Getenv("SPIPWM_LOGDIR"), "directory for log files (default: $TMPDIR)")

	stop = make(chan os.Signal, 1)
)

func main() {
	flag.Parse()

	log.SetPrefix("spipwm-boot: ")
	log.SetFlags(0)

	if flag.NArg() != 1 {
		log.Fatalf("missing path to boot file")
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("could not open boot file: %+v", err)
	}
	defer f.Close()

	cmds, err := parse(f)
	if err != nil {
		log.Fatalf("could not parse boot file: %+v", err)
	}

	err = run(*doMon, *doFreq, cmds, *doDir, stop)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func parse(r io.Reader) ([]*exec.Cmd, error) {
	var (
		cmds []*exec.Cmd
		sc   = bufio.NewScanner(r)
	)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		toks := strings.Fields(line)
		cmds = append(cmds, exec.Command(toks[0], toks[1:]...))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("could not scan boot file: %w", err)
	}
	if len(cmds) == 0 {
		return nil, fmt.Errorf("no command to start")
	}
	return cmds, nil
}

func run(doMon bool, freq time.Duration, cmds []*exec.Cmd, dir string, stop chan os.Signal) error {
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	if dir == "" {
		dir = os.TempDir()
	}

	var (
		grp  errgroup.Group
		kill = make(chan int)
	)
	for i := range cmds {
		cmd := cmds[i]
		name := fmt.Sprintf("%s-%02d", filepath.Base(cmd.Path), i)
		grp.Go(func() error {
			return start(cmd, name, dir, kill, doMon, freq)
		})
	}

	go func() {
		<-stop
		close(kill)
	}()

	err := grp.Wait()
	if err != nil {
		return fmt.Errorf("could not boot bench: %w", err)
	}
	return nil
}

func start(cmd *exec.Cmd, name, dir string, kill chan int, doMon bool, freq time.Duration) error {
	out, err := os.Create(filepath.Join(dir, name+".log"))
	if err != nil {
		return fmt.Errorf("could not create output log file for %q: %w", name, err)
	}
	defer out.Close()

	cmd.Stdout = out
	cmd.Stderr = out

	log.Printf("starting %q...", name)
	err = cmd.Start()
	if err != nil {
		return fmt.Errorf("could not start %q: %w", name, err)
	}

	errch := make(chan error, 1)
	go func() {
		errch <- cmd.Wait()
	}()

	if doMon {
		p, err := pmon.Monitor(cmd.Process.Pid)
		if err != nil {
			return fmt.Errorf("could not start monitoring %q (pid=%d): %w", name, cmd.Process.Pid, err)
		}
		f, err := os.Create(filepath.Join(dir, name+"-pmon.log"))
		if err != nil {
			return fmt.Errorf("could not create pmon log file for %q: %w", name, err)
		}
		defer f.Close()
		p.W = f
		p.Freq = freq

		go func() {
			err := p.Run()
			if err != nil {
				log.Printf("could not monitor %q: %+v", name, err)
			}
		}()

		defer func() {
			err := p.Kill()
			if err != nil {
				log.Printf("could not stop monitoring %q: %+v", name, err)
			}
		}()
	}

	select {
	case <-kill:
		err = cmd.Process.Kill()
		if err != nil {
			return fmt.Errorf("could not kill %q: %w", name, err)
		}
		<-errch
	case err = <-errch:
		if err != nil {
			return fmt.Errorf("could not run %q: %w", name, err)
		}
	}

	return nil
}
