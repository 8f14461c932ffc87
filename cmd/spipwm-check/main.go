// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command spipwm-check runs the conformance checks of the peripheral
// against simulated chips, in parallel.
//
// A sweep over the duty register values summarizes the accuracy of the
// PWM output. With -mail, failures are reported by mail, with the
// credentials taken from the MAIL_USERNAME, MAIL_PASSWORD, MAIL_SERVER,
// MAIL_PORT and MAIL_TGTS environment variables.
package main // import "github.com/go-lpc/spipwm/cmd/spipwm-check"

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-lpc/spipwm/chip"
	"github.com/go-lpc/spipwm/spi"
	"go-hep.org/x/hep/hbook"
	"golang.org/x/sync/errgroup"
	mail "gopkg.in/gomail.v2"
)

func main() {
	log.SetPrefix("spipwm-check: ")
	log.SetFlags(0)

	var (
		step  = flag.Int("step", 1, "step between duty values of the sweep")
		jobs  = flag.Int("j", 8, "number of parallel jobs")
		alert = flag.Bool("mail", false, "send a mail alert on failure")
	)

	flag.Parse()

	nfail, err := run(os.Stdout, *step, *jobs)
	if err != nil {
		log.Fatalf("could not run checks: %+v", err)
	}

	if nfail == 0 {
		return
	}

	if *alert {
		err = alertMail(nfail)
		if err != nil {
			log.Printf("could not send mail alert: %+v", err)
		}
	}
	log.Fatalf("%d check(s) failed", nfail)
}

func run(w io.Writer, step, jobs int) (int, error) {
	ctx := context.Background()

	res, err := runChecks(ctx, checks, jobs)
	if err != nil {
		return 0, err
	}

	nfail := 0
	for _, r := range res {
		status := "ok"
		if r.err != nil {
			status = fmt.Sprintf("FAIL (%v)", r.err)
			nfail++
		}
		fmt.Fprintf(w, "check %-12s %s\n", r.name+":", status)
	}

	sum, err := sweep(ctx, step, jobs)
	if err != nil {
		return nfail, err
	}
	fmt.Fprintf(w, "duty error: entries=%d mean=%+.5f std=%.5f\n",
		sum.duty.Entries(), sum.duty.XMean(), sum.duty.XStdDev(),
	)
	fmt.Fprintf(w, "frequency:  entries=%d mean=%.2fHz std=%.2fHz\n",
		sum.freq.Entries(), sum.freq.XMean(), sum.freq.XStdDev(),
	)

	const tolerance = 0.01
	if sum.maxDuty >= tolerance {
		fmt.Fprintf(w, "check %-12s FAIL (max duty error %.5f)\n", "sweep:", sum.maxDuty)
		nfail++
	}
	if sum.maxFreq >= tolerance {
		fmt.Fprintf(w, "check %-12s FAIL (max frequency error %.5f)\n", "sweep:", sum.maxFreq)
		nfail++
	}

	return nfail, nil
}

func newBench() (*chip.Bench, error) {
	c, err := chip.New(chip.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		return nil, fmt.Errorf("could not create chip: %w", err)
	}
	b, err := chip.NewBench(c, spi.DefaultHalfPeriod, spi.DefaultSettle)
	if err != nil {
		return nil, fmt.Errorf("could not create bench: %w", err)
	}
	b.Reset(5)
	return b, nil
}

type result struct {
	name string
	err  error
}

// runChecks runs each check on its own chip.
// Check failures are reported in the results; the returned error is
// reserved to failures of the bench itself.
func runChecks(ctx context.Context, checks []check, jobs int) ([]result, error) {
	res := make([]result, len(checks))

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(jobs)
	for i := range checks {
		i := i
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := newBench()
			if err != nil {
				return fmt.Errorf("could not setup check %q: %w", checks[i].name, err)
			}
			defer b.Chip().Close()

			res[i] = result{name: checks[i].name, err: checks[i].run(b)}
			return nil
		})
	}

	err := grp.Wait()
	if err != nil {
		return nil, err
	}
	return res, nil
}

type summary struct {
	duty    *hbook.H1D // measured - expected duty cycle
	freq    *hbook.H1D // measured frequency, in Hz
	maxDuty float64    // largest absolute duty error
	maxFreq float64    // largest relative frequency error
}

// sweep measures the PWM output for every step-th duty value.
func sweep(ctx context.Context, step, jobs int) (summary, error) {
	if step <= 0 {
		return summary{}, fmt.Errorf("invalid sweep step %d", step)
	}

	var duties []uint8
	for v := 0; v <= 0xff; v += step {
		duties = append(duties, uint8(v))
	}

	type point struct {
		duty float64
		freq float64
		edge bool
	}
	pts := make([]point, len(duties))

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(jobs)
	for i := range duties {
		i := i
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := newBench()
			if err != nil {
				return err
			}
			defer b.Chip().Close()

			period := b.Chip().PWM().Period()
			err = b.Write(0x04, duties[i])
			if err != nil {
				return fmt.Errorf("could not write duty 0x%02x: %w", duties[i], err)
			}
			b.Run(2 * period)
			msr := b.MeasurePWM(5 * period)
			pts[i] = point{
				duty: msr.Duty - float64(duties[i])/255,
				freq: msr.Hz(),
				edge: msr.Edges,
			}
			return nil
		})
	}

	err := grp.Wait()
	if err != nil {
		return summary{}, fmt.Errorf("could not sweep duty values: %w", err)
	}

	sum := summary{
		duty: hbook.NewH1D(100, -0.01, +0.01),
		freq: hbook.NewH1D(100, 2970, 3030),
	}
	for _, pt := range pts {
		sum.duty.Fill(pt.duty, 1)
		if v := abs(pt.duty); v > sum.maxDuty {
			sum.maxDuty = v
		}
		if !pt.edge {
			continue
		}
		sum.freq.Fill(pt.freq, 1)
		if v := abs(pt.freq-3000) / 3000; v > sum.maxFreq {
			sum.maxFreq = v
		}
	}

	return sum, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = split(os.Getenv("MAIL_TGTS"))
)

func alertMail(nfail int) error {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 {
		return fmt.Errorf("missing credentials")
	}

	msg := newAlert(nfail)

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	return dial.DialAndSend(msg)
}

func newAlert(nfail int) *mail.Message {
	host, _ := os.Hostname()
	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[spipwm-check] %d check(s) failed", nfail))
	msg.SetBody("text/plain", fmt.Sprintf("host: %s\nfailures: %d\n", host, nfail))
	return msg
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

func split(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
