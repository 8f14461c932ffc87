// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/go-lpc/spipwm/chip"
)

func TestChecks(t *testing.T) {
	res, err := runChecks(context.Background(), checks, 4)
	if err != nil {
		t.Fatalf("could not run checks: %+v", err)
	}
	if got, want := len(res), len(checks); got != want {
		t.Fatalf("invalid number of results: got=%d, want=%d", got, want)
	}
	for i, r := range res {
		if got, want := r.name, checks[i].name; got != want {
			t.Fatalf("invalid result name: got=%q, want=%q", got, want)
		}
		if r.err != nil {
			t.Fatalf("check %q failed: %+v", r.name, r.err)
		}
	}
}

func TestFailingCheck(t *testing.T) {
	boom := errors.New("boom")
	res, err := runChecks(context.Background(), []check{
		{"ok", func(b *chip.Bench) error { return nil }},
		{"boom", func(b *chip.Bench) error { return boom }},
	}, 1)
	if err != nil {
		t.Fatalf("could not run checks: %+v", err)
	}
	if res[0].err != nil || !errors.Is(res[1].err, boom) {
		t.Fatalf("invalid results: %+v", res)
	}
}

func TestSweep(t *testing.T) {
	_, err := sweep(context.Background(), 0, 1)
	if err == nil {
		t.Fatalf("expected an error")
	}

	sum, err := sweep(context.Background(), 51, 4)
	if err != nil {
		t.Fatalf("could not sweep: %+v", err)
	}

	// 0x00, 0x33, 0x66, 0x99, 0xcc, 0xff
	if got, want := sum.duty.Entries(), int64(6); got != want {
		t.Fatalf("invalid duty entries: got=%d, want=%d", got, want)
	}
	if got, want := sum.freq.Entries(), int64(4); got != want {
		t.Fatalf("invalid frequency entries: got=%d, want=%d", got, want)
	}
	if sum.maxDuty > 0.001 {
		t.Fatalf("invalid max duty error: %v", sum.maxDuty)
	}
	if sum.maxFreq > 0.001 {
		t.Fatalf("invalid max frequency error: %v", sum.maxFreq)
	}
	if got := sum.freq.XMean(); got < 3000 || got > 3001 {
		t.Fatalf("invalid mean frequency: %v", got)
	}
}

func TestSweepFullRange(t *testing.T) {
	sum, err := sweep(context.Background(), 1, 8)
	if err != nil {
		t.Fatalf("could not sweep: %+v", err)
	}

	if got, want := sum.duty.Entries(), int64(256); got != want {
		t.Fatalf("invalid duty entries: got=%d, want=%d", got, want)
	}
	// 0x00 and 0xff have no edges.
	if got, want := sum.freq.Entries(), int64(254); got != want {
		t.Fatalf("invalid frequency entries: got=%d, want=%d", got, want)
	}
	if sum.maxDuty >= 0.01 {
		t.Fatalf("duty error out of tolerance: %v", sum.maxDuty)
	}
	if sum.maxFreq >= 0.01 {
		t.Fatalf("frequency error out of tolerance: %v", sum.maxFreq)
	}
}

func TestRun(t *testing.T) {
	out := new(bytes.Buffer)
	nfail, err := run(out, 85, 4)
	if err != nil {
		t.Fatalf("could not run: %+v", err)
	}
	if nfail != 0 {
		t.Fatalf("unexpected failures:\n%s", out.String())
	}
	for _, want := range []string{
		"check port-a:      ok\n",
		"check enable:      ok\n",
		"duty error: entries=4 ",
		"frequency:  entries=2 mean=3000.30Hz",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in output:\n%s", want, out.String())
		}
	}
}

func TestAlert(t *testing.T) {
	usr, tgts := alertMailUsr, alertMailTgts
	defer func() { alertMailUsr, alertMailTgts = usr, tgts }()

	alertMailUsr = ""
	err := alertMail(2)
	if err == nil || err.Error() != "missing credentials" {
		t.Fatalf("invalid error: %+v", err)
	}

	alertMailUsr = "bench@example.com"
	alertMailTgts = split(" a@example.com, ,b@example.com")
	if got, want := alertMailTgts, []string{"a@example.com", "b@example.com"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid targets: got=%q, want=%q", got, want)
	}

	msg := newAlert(2)
	if got, want := msg.GetHeader("Subject"), []string{"[spipwm-check] 2 check(s) failed"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid subject: got=%q, want=%q", got, want)
	}
	if got, want := msg.GetHeader("Bcc"), alertMailTgts; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid targets: got=%q, want=%q", got, want)
	}
}
