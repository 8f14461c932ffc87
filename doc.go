// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spipwm holds code for the SPI register file and PWM peripheral.
//
// The peripheral is modeled as a synchronous design: a single base clock
// advances an SPI frame decoder, a register file and a PWM generator once
// per tick. See the chip package for the top-level core.
package spipwm // import "github.com/go-lpc/spipwm"

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version of spipwm and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	const root = "github.com/go-lpc/spipwm"
	if b.Main.Path == root {
		return b.Main.Version, b.Main.Sum
	}
	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		if m.Replace != nil {
			switch {
			case m.Replace.Version != "" && m.Replace.Path != "":
				return fmt.Sprintf("%s %s", m.Replace.Path, m.Replace.Version), m.Replace.Sum
			case m.Replace.Version != "":
				return m.Replace.Version, m.Replace.Sum
			default:
				return m.Replace.Path, m.Replace.Sum
			}
		}
		return m.Version, m.Sum
	}
	return "", ""
}
