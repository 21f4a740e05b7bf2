// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

package snowboot

import (
	"errors"
	"io"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v4/packetio"

	"github.com/dspearson/snowboot/pkg/ogg"
)

// PipeReader reads the producer's Ogg stream from a named pipe, frames
// it into whole pages and hands them to the Mux through a bounded
// packetio buffer. The pipe is opened non-blocking so the task stays
// responsive to shutdown while no producer is attached; EOF (producer
// closed its end) triggers a reopen, and in the meantime the Mux sees no
// input and keeps the mount alive with silence.
type PipeReader struct {
	log logging.LeveledLogger

	path string
	out  *packetio.Buffer

	shutdown *atomicBool

	bytesRead   uint64
	errorsTotal uint64

	// Consecutive decode failures; a warning is logged once this reaches
	// the threshold. Each failure is resynced to the next capture pattern.
	decodeFailures int
	pending        []byte
}

func newPipeReader(loggerFactory logging.LoggerFactory, path string, out *packetio.Buffer, shutdown *atomicBool) *PipeReader {
	return &PipeReader{
		log:      loggerFactory.NewLogger("pipereader"),
		path:     path,
		out:      out,
		shutdown: shutdown,
	}
}

// verifyFIFO checks that the input path exists and is a named pipe.
func verifyFIFO(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &ConfigError{Field: "input_pipe", Reason: err.Error()}
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		return ErrNotFIFO
	}

	return nil
}

// BytesRead returns the number of bytes consumed from the pipe.
func (r *PipeReader) BytesRead() uint64 { return atomic.LoadUint64(&r.bytesRead) }

// Errors returns the number of read and framing errors observed.
func (r *PipeReader) Errors() uint64 { return atomic.LoadUint64(&r.errorsTotal) }

// Run reads the pipe until shutdown. The FIFO is reopened after a
// producer that has written data detaches (EOF after data); pages that
// fail to decode are dropped with a forward resync.
func (r *PipeReader) Run() {
	for !r.shutdown.get() {
		file, err := r.open()
		if err != nil {
			atomic.AddUint64(&r.errorsTotal, 1)
			r.log.Warnf("open %s: %v", r.path, err)
			r.sleep(500 * time.Millisecond)

			continue
		}

		r.consume(file)
		_ = file.Close()

		// A new logical stream begins on reopen; drop any partial page.
		r.pending = nil
		r.decodeFailures = 0
	}
}

// open opens the FIFO for reading without blocking on writer arrival.
// With no writer attached, reads return EOF and consume backs off
// briefly; a blocking open would pin the task until a producer shows up
// and ignore shutdown.
func (r *PipeReader) open() (*os.File, error) {
	return os.OpenFile(r.path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
}

// consume reads until the writer side closes after having produced data,
// or shutdown is requested.
func (r *PipeReader) consume(file *os.File) {
	chunk := make([]byte, 64*1024)
	sawData := false

	for !r.shutdown.get() {
		// A short deadline keeps the task responsive to shutdown while a
		// silent producer holds the pipe open.
		_ = file.SetReadDeadline(time.Now().Add(250 * time.Millisecond))

		n, err := file.Read(chunk)
		if n > 0 {
			sawData = true
			atomic.AddUint64(&r.bytesRead, uint64(n))
			r.pending = append(r.pending, chunk[:n]...)
			r.dispatchPages()
		}

		switch {
		case err == nil:
		case errors.Is(err, os.ErrDeadlineExceeded):
		case errors.Is(err, io.EOF):
			if sawData {
				// The producer detached; reopen and wait for the next one.
				r.log.Infof("producer closed %s, reopening", r.path)

				return
			}
			// No writer yet: EOF from a non-blocking FIFO open. Back off
			// and poll again.
			r.sleep(50 * time.Millisecond)
		case errors.Is(err, syscall.EAGAIN):
			r.sleep(5 * time.Millisecond)
		default:
			atomic.AddUint64(&r.errorsTotal, 1)
			r.log.Warnf("read %s: %v", r.path, err)
			r.sleep(100 * time.Millisecond)

			return
		}
	}
}

// dispatchPages peels complete pages off the pending buffer and forwards
// them. Corrupt data is skipped by scanning for the next capture
// pattern.
func (r *PipeReader) dispatchPages() {
	for {
		_, consumed, err := ogg.Decode(r.pending)
		switch {
		case err == nil:
			r.forward(r.pending[:consumed])
			r.pending = r.pending[consumed:]
			r.decodeFailures = 0

			continue
		case errors.Is(err, ogg.ErrNeedMoreData):
			// Avoid unbounded growth if the stream never frames.
			if len(r.pending) > ogg.MaxPageLen {
				r.resync()

				continue
			}

			return
		default:
			atomic.AddUint64(&r.errorsTotal, 1)
			r.decodeFailures++
			if r.decodeFailures >= resyncFailureThreshold {
				r.log.Warnf("%d consecutive undecodable pages, resyncing", r.decodeFailures)
			}
			r.resync()

			continue
		}
	}
}

// resync drops bytes up to the next capture pattern, or the whole
// pending buffer if none is present.
func (r *PipeReader) resync() {
	if offset := ogg.Resync(r.pending); offset > 0 {
		r.pending = r.pending[offset:]
	} else {
		r.pending = nil
	}
}

func (r *PipeReader) forward(raw []byte) {
	page := append([]byte(nil), raw...)
	if _, err := r.out.Write(page); err != nil {
		if errors.Is(err, packetio.ErrFull) {
			// The Mux is far behind; dropping input here is recovered by
			// silence insertion downstream.
			atomic.AddUint64(&r.errorsTotal, 1)
			r.log.Warnf("input buffer full, dropping page")

			return
		}
		r.log.Warnf("input buffer write: %v", err)
	}
}

// sleep waits without overshooting shutdown by much.
func (r *PipeReader) sleep(d time.Duration) {
	const slice = 25 * time.Millisecond

	for d > 0 && !r.shutdown.get() {
		step := d
		if step > slice {
			step = slice
		}
		time.Sleep(step)
		d -= step
	}
}
