// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

// Package snowboot implements an Icecast source client that keeps a
// mount point alive indefinitely: it reads an Ogg Vorbis stream from a
// named pipe, substitutes bit-valid silence whenever the producer is
// absent, and pushes one uninterrupted logical stream to the server
// across producer churn and network reconnects.
package snowboot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v4/packetio"
)

// Supervisor wires PipeReader → Mux → bounded queue → Transport, owns
// the shared shutdown flag, and coordinates graceful termination. It is
// the only component that sees all the others; they communicate through
// the queue, the input buffer and the shutdown flag alone.
type Supervisor struct {
	cfg Config
	log logging.LeveledLogger

	shutdown atomicBool
	closed   atomicBool
	stopCh   chan struct{}

	silence   *SilenceSource
	reader    *PipeReader
	mux       *Mux
	transport *Transport
	queue     *pageQueue
	input     *packetio.Buffer

	stateCh chan ConnectionState

	lock      sync.Mutex
	startedAt time.Time

	wg sync.WaitGroup
}

// New validates the configuration and assembles the pipeline. Nothing
// runs until Run is called.
func New(cfg Config) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	silence, err := NewSilenceSource(cfg.LoggerFactory, cfg.SampleRate, cfg.BitrateKbps)
	if err != nil {
		return nil, err
	}

	input := packetio.NewBuffer()
	input.SetLimitSize(inputBufferLimitBytes)
	input.SetLimitCount(inputBufferLimitPages)

	queue := newPageQueue(int(cfg.BufferSeconds * silence.PagesPerSecond()))
	stopCh := make(chan struct{})

	s := &Supervisor{
		cfg:     cfg,
		log:     cfg.LoggerFactory.NewLogger("supervisor"),
		stopCh:  stopCh,
		silence: silence,
		queue:   queue,
		input:   input,
		stateCh: make(chan ConnectionState, 1),
	}

	s.reader = newPipeReader(cfg.LoggerFactory, cfg.InputPipe, input, &s.shutdown)
	s.mux = newMux(cfg.LoggerFactory, silence, input, queue, &s.shutdown, cfg.SampleRate, cfg.InputDeadline)
	s.transport = newTransport(cfg.LoggerFactory, cfg, queue, &s.shutdown, stopCh)
	s.transport.OnConnectionStateChange(s.notifyState)

	return s, nil
}

// ConnectionStates returns a one-slot channel of state transitions;
// when the consumer lags, only the latest value is retained. Advisory
// for health reporting, never load-bearing for streaming.
func (s *Supervisor) ConnectionStates() <-chan ConnectionState {
	return s.stateCh
}

func (s *Supervisor) notifyState(state ConnectionState) {
	for {
		select {
		case s.stateCh <- state:
			return
		default:
		}
		// Slot occupied: evict the stale value, latest wins.
		select {
		case <-s.stateCh:
		default:
		}
	}
}

// Run starts the three tasks and blocks until ctx is cancelled or the
// Transport fails permanently. The returned error is nil on graceful
// shutdown, ErrAuthRejected (wrapped) on credential rejection, and
// ErrRetriesExhausted when a bounded retry budget runs out.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := verifyFIFO(s.cfg.InputPipe); err != nil {
		return err
	}

	s.lock.Lock()
	s.startedAt = time.Now()
	s.lock.Unlock()

	s.log.Infof("starting: %s%s <- %s", s.cfg.addr(), s.cfg.Mount, s.cfg.InputPipe)

	transportDone := make(chan error, 1)
	muxDone := make(chan error, 1)

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.reader.Run()
	}()
	go func() {
		defer s.wg.Done()
		muxDone <- s.mux.Run()
	}()
	go func() {
		defer s.wg.Done()
		transportDone <- s.transport.Run()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.log.Infof("shutdown requested")
	case err := <-transportDone:
		runErr = err
	case err := <-muxDone:
		if err != nil && !errors.Is(err, ErrQueueClosed) {
			s.log.Errorf("mux failed: %v", err)
			runErr = err
		}
	}

	s.Close()
	s.wg.Wait()
	s.log.Infof("stopped")

	return runErr
}

// Close requests cooperative shutdown: the flag is set once, every task
// observes it at its next suspension point, and the socket is closed
// without emitting an Ogg end-of-stream page.
func (s *Supervisor) Close() {
	if !s.closed.compareAndSwap(false, true) {
		return
	}

	s.shutdown.set(true)
	close(s.stopCh)
	s.transport.CloseConn()
	_ = s.input.Close()
	s.queue.Close()
}

// Stats returns the read-only snapshot consumed by external health and
// metrics surfaces.
func (s *Supervisor) Stats() StatsSnapshot {
	s.lock.Lock()
	startedAt := s.startedAt
	s.lock.Unlock()

	uptime := 0.0
	if !startedAt.IsZero() {
		uptime = time.Since(startedAt).Seconds()
	}

	return StatsSnapshot{
		ConnectionState: s.transport.State(),
		BytesSent:       s.transport.BytesSent(),
		BytesRead:       s.reader.BytesRead(),
		PagesSent:       s.transport.PagesSent(),
		ErrorsTotal:     s.transport.Errors() + s.reader.Errors(),
		UptimeSeconds:   uptime,
		CurrentBackoff:  s.transport.CurrentBackoff(),
	}
}
