// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command spipwm-tdaq starts a TDAQ server driving a simulated chip.
//
// The chip is configured from the environment:
//
//	SPIPWM_DELAY   output pipeline delay, in ticks
//	SPIPWM_SHM     path to the shared memory register mirror
//	SPIPWM_VERBOSE enable transaction logging when set to 1
package main // import "github.com/go-lpc/spipwm/cmd/spipwm-tdaq"

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/spipwm/chip"
)

func main() {
	cmd := flags.New()

	opts, err := options(os.Getenv)
	if err != nil {
		log.Panicf("error: %+v", err)
	}

	dev := chip.NewServer(cmd.Args[0], opts...)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/ports", dev.Ports)

	srv.RunHandle(dev.Run)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

func options(getenv func(string) string) ([]chip.Option, error) {
	var opts []chip.Option

	if v := getenv("SPIPWM_DELAY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SPIPWM_DELAY value %q: %w", v, err)
		}
		opts = append(opts, chip.WithOutputDelay(n))
	}

	if v := getenv("SPIPWM_SHM"); v != "" {
		opts = append(opts, chip.WithSHM(v))
	}

	if getenv("SPIPWM_VERBOSE") == "1" {
		opts = append(opts, chip.WithVerbose(true))
	}

	return opts, nil
}
