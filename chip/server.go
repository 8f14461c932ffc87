// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chip

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/spipwm/spi"
	"golang.org/x/xerrors"
)

const (
	// SampleSize is the size of a /ports sample:
	// [port-a, port-b, tick (u64, little endian)].
	SampleSize = 10

	// defaultSampleTicks is the number of ticks between two /ports samples.
	defaultSampleTicks = 10000
)

// Server exposes a simulated chip as a tdaq process.
//
// The /config command payload is a sequence of big-endian 16-bit SPI
// frames, sent to the chip on /start.
type Server struct {
	name string
	opts []Option
	step int // ticks per sample

	mu    sync.Mutex
	bench *Bench
	cfg   []spi.Transaction
	data  chan []byte
	n     int
}

// NewServer creates a new tdaq server named name.
// opts are used to create the chip on /init.
func NewServer(name string, opts ...Option) *Server {
	return &Server{
		name: name,
		opts: opts,
		step: defaultSampleTicks,
		data: make(chan []byte, 1024),
	}
}

// Samples returns the number of /ports samples produced since the last
// /init or /reset.
func (srv *Server) Samples() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.n
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	err := srv.config(req.Body)
	if err != nil {
		ctx.Msg.Errorf("could not configure %q: %+v", srv.name, err)
		return xerrors.Errorf("could not configure %q: %w", srv.name, err)
	}
	ctx.Msg.Infof("configured %d frames", len(srv.cfg))
	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	err := srv.init()
	if err != nil {
		ctx.Msg.Errorf("could not initialize %q: %+v", srv.name, err)
		return xerrors.Errorf("could not initialize %q: %w", srv.name, err)
	}
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	err := srv.reset()
	if err != nil {
		ctx.Msg.Errorf("could not reset %q: %+v", srv.name, err)
		return xerrors.Errorf("could not reset %q: %w", srv.name, err)
	}
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	err := srv.start()
	if err != nil {
		ctx.Msg.Errorf("could not start %q: %+v", srv.name, err)
		return xerrors.Errorf("could not start %q: %w", srv.name, err)
	}
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	n := srv.Samples()
	ctx.Msg.Debugf("received /stop command... -> n=%d", n)
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	err := srv.close()
	if err != nil {
		ctx.Msg.Errorf("could not close %q: %+v", srv.name, err)
		return xerrors.Errorf("could not close %q: %w", srv.name, err)
	}
	return nil
}

// Ports is the tdaq output handle publishing port samples.
func (srv *Server) Ports(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-srv.data:
		dst.Body = data
	}
	return nil
}

// Run is the tdaq run handle: it clocks the chip until the run stops.
func (srv *Server) Run(ctx tdaq.Context) error {
	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		default:
			raw, err := srv.sample()
			if err != nil {
				ctx.Msg.Errorf("could not sample %q: %+v", srv.name, err)
				return xerrors.Errorf("could not sample %q: %w", srv.name, err)
			}
			select {
			case srv.data <- raw:
			default:
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (srv *Server) config(p []byte) error {
	if len(p)%2 != 0 {
		return xerrors.Errorf("invalid configuration payload size (n=%d)", len(p))
	}

	txs := make([]spi.Transaction, 0, len(p)/2)
	for i := 0; i < len(p); i += 2 {
		txs = append(txs, spi.FromWord(binary.BigEndian.Uint16(p[i:])))
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.cfg = txs
	return nil
}

func (srv *Server) init() error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.bench != nil {
		_ = srv.bench.Chip().Close()
		srv.bench = nil
	}

	c, err := New(srv.opts...)
	if err != nil {
		return xerrors.Errorf("could not create chip: %w", err)
	}

	b, err := NewBench(c, spi.DefaultHalfPeriod, spi.DefaultSettle)
	if err != nil {
		_ = c.Close()
		return xerrors.Errorf("could not create bench: %w", err)
	}
	b.Reset(5)

	srv.bench = b
	srv.drain()
	return nil
}

func (srv *Server) reset() error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.bench == nil {
		return xerrors.Errorf("chip not initialized")
	}
	srv.bench.Reset(5)
	srv.drain()
	return nil
}

func (srv *Server) start() error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.bench == nil {
		return xerrors.Errorf("chip not initialized")
	}
	for _, tx := range srv.cfg {
		err := srv.bench.Tx(tx)
		if err != nil {
			return xerrors.Errorf("could not send configuration: %w", err)
		}
	}
	return srv.bench.Chip().Flush()
}

func (srv *Server) sample() ([]byte, error) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.bench == nil {
		return nil, xerrors.Errorf("chip not initialized")
	}
	srv.bench.Run(srv.step)
	if err := srv.bench.Chip().Err(); err != nil {
		return nil, err
	}

	var (
		out = srv.bench.Outputs()
		raw = make([]byte, SampleSize)
	)
	raw[0] = out.PortA
	raw[1] = out.PortB
	binary.LittleEndian.PutUint64(raw[2:], srv.bench.Chip().Ticks())
	srv.n++
	return raw, nil
}

func (srv *Server) close() error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.bench == nil {
		return nil
	}
	err := srv.bench.Chip().Close()
	srv.bench = nil
	return err
}

func (srv *Server) drain() {
	srv.n = 0
	for {
		select {
		case <-srv.data:
		default:
			return
		}
	}
}
