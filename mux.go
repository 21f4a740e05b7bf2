// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

package snowboot

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/pion/logging"
	"github.com/pion/randutil"
	"github.com/pion/transport/v4/packetio"

	"github.com/dspearson/snowboot/pkg/ogg"
)

// Mux merges the possibly-intermittent input page stream with the
// SilenceSource into one uninterrupted logical Ogg stream. It owns the
// output serial, sequence and granule counters exclusively: every page
// that reaches the wire is re-stamped here, so source switches are
// invisible to the server and to listeners.
//
// The Mux is not wall-clock paced. It produces as fast as the bounded
// output queue accepts; the Transport's socket write rate sets the
// cadence. The input deadline is the only timer: when the producer is
// absent or late, silence is inserted.
type Mux struct {
	log     logging.LeveledLogger
	silence *SilenceSource

	input *packetio.Buffer
	out   *pageQueue

	shutdown *atomicBool

	inputDeadline time.Duration
	sampleRate    int

	// Output stream state. Only the run loop touches these.
	serial  uint32
	seq     uint32
	granule int64
	mode    muxMode

	// Per-input-source state, reset whenever a new logical input stream
	// begins.
	rebase         int64
	rebaseValid    bool
	sourceRejected bool
}

func newMux(
	loggerFactory logging.LoggerFactory,
	silence *SilenceSource,
	input *packetio.Buffer,
	out *pageQueue,
	shutdown *atomicBool,
	sampleRate int,
	inputDeadline time.Duration,
) *Mux {
	return &Mux{
		log:           loggerFactory.NewLogger("mux"),
		silence:       silence,
		input:         input,
		out:           out,
		shutdown:      shutdown,
		inputDeadline: inputDeadline,
		sampleRate:    sampleRate,
		serial:        randutil.NewMathRandomGenerator().Uint32(),
		mode:          muxModePlayingSilence,
	}
}

// Serial returns the logical stream serial chosen at construction.
func (m *Mux) Serial() uint32 { return m.serial }

// Run drives the Mux until shutdown or until the output queue closes.
// The three Vorbis header pages go out first (sequences 0, 1, 2, granule
// 0), then audio from sequence 3 onwards.
func (m *Mux) Run() error {
	err := m.run()
	if errors.Is(err, ErrQueueClosed) {
		// The queue only closes during shutdown.
		return nil
	}

	return err
}

func (m *Mux) run() error {
	headers, err := m.silence.HeaderPages(m.serial)
	if err != nil {
		return err
	}
	for _, page := range headers {
		if err := m.out.Push(page); err != nil {
			return err
		}
		m.seq++
	}
	m.log.Infof("logical stream started: serial=%08x", m.serial)

	readBuf := make([]byte, ogg.MaxPageLen)

	for !m.shutdown.get() {
		_ = m.input.SetReadDeadline(time.Now().Add(m.inputDeadline))

		n, err := m.input.Read(readBuf)
		switch {
		case err == nil:
			if err := m.handleInput(readBuf[:n]); err != nil {
				return err
			}
		case isTimeout(err):
			if err := m.insertSilence(); err != nil {
				return err
			}
		case errors.Is(err, io.EOF):
			// Input buffer closed: shutdown in progress.
			return nil
		default:
			m.log.Warnf("input buffer read: %v", err)
		}
	}

	return nil
}

func (m *Mux) handleInput(raw []byte) error {
	page, _, err := ogg.Decode(raw)
	if err != nil {
		// The PipeReader only forwards pages that already decoded once,
		// so this indicates a framing bug upstream, not bad input.
		m.log.Errorf("undecodable page from pipe reader: %v", err)

		return nil
	}

	if page.IsFirst() {
		m.beginSource()
	}

	if isHeaderPage(page) {
		return m.handleHeaderPage(page)
	}

	if m.sourceRejected {
		return nil
	}

	return m.emitAudio(page)
}

// beginSource resets per-source state when a new logical input stream
// appears (producer reopened the pipe, or a fresh encoder run).
func (m *Mux) beginSource() {
	m.rebaseValid = false
	m.rebase = 0
	m.sourceRejected = false
	if m.mode != muxModeTransitioning {
		m.log.Infof("new input stream, mode %s -> %s", m.mode, muxModeTransitioning)
		m.mode = muxModeTransitioning
	}
}

// handleHeaderPage consumes a producer header page without forwarding
// it: the session's header pages were sent once at startup and must stay
// authoritative for downstream decoders. The identification header is
// validated against the session parameters; a mismatch rejects the
// source and the stream continues on silence.
func (m *Mux) handleHeaderPage(page *ogg.Page) error {
	for _, pkt := range page.Packets() {
		if !ogg.IsVorbisIdentification(pkt) {
			continue
		}

		ident, err := ogg.ParseVorbisIdentification(pkt)
		if err != nil {
			m.log.Errorf("input identification header unparseable: %v; ignoring source", err)
			m.sourceRejected = true

			return nil
		}
		if int(ident.SampleRate) != m.sampleRate {
			m.log.Errorf("input stream is %d Hz but session is %d Hz; ignoring source until headers match",
				ident.SampleRate, m.sampleRate)
			m.sourceRejected = true

			return nil
		}
	}

	return nil
}

func (m *Mux) emitAudio(page *ogg.Page) error {
	// Never let a producer's end-of-stream flag reach the wire; the
	// logical stream outlives every input source.
	headerType := page.HeaderType &^ ogg.FlagLastPage

	granule := page.GranulePosition
	if granule != ogg.GranuleNoPacket {
		granule = m.rebaseGranule(granule)
	}

	out := &ogg.Page{
		HeaderType:      headerType,
		GranulePosition: granule,
		Segments:        page.Segments,
		Payload:         page.Payload,
	}
	// The first-page flag belongs to the session's identification page
	// only.
	out.HeaderType &^= ogg.FlagFirstPage

	if err := m.out.Push(out.Reserialize(m.serial, m.seq, granule)); err != nil {
		return err
	}
	m.seq++
	if granule != ogg.GranuleNoPacket {
		m.granule = granule
	}

	if m.mode != muxModePlayingReal {
		m.log.Infof("mode %s -> %s", m.mode, muxModePlayingReal)
		m.mode = muxModePlayingReal
	}

	return nil
}

// rebaseGranule maps a native input granule onto the session's monotonic
// granule axis. When a source's native positions would regress below
// what is already on the wire, an offset is computed once and applied
// for the life of that source.
func (m *Mux) rebaseGranule(native int64) int64 {
	step := m.silence.SamplesPerPage()

	if !m.rebaseValid {
		m.rebase = 0
		if native <= m.granule {
			m.rebase = m.granule + step - native
		}
		m.rebaseValid = true
	}

	out := native + m.rebase
	if out < m.granule {
		// A producer that jumps backwards mid-source violates its own
		// stream; re-anchor rather than regress on the wire.
		m.log.Warnf("input granule regressed (%d < %d), re-anchoring", out, m.granule)
		m.rebase = m.granule + step - native
		out = native + m.rebase
	}

	return out
}

// insertSilence covers one input deadline's worth of samples with
// template pages.
func (m *Mux) insertSilence() error {
	if m.mode != muxModePlayingSilence {
		m.log.Infof("input late, mode %s -> %s", m.mode, muxModePlayingSilence)
		m.mode = muxModePlayingSilence
	}

	samples := int64(float64(m.sampleRate) * m.inputDeadline.Seconds())
	if samples < 1 {
		samples = 1
	}

	step := m.silence.SamplesPerPage()
	for _, page := range m.silence.NextBatch(m.serial, m.seq, m.granule, samples) {
		if err := m.out.Push(page); err != nil {
			return err
		}
		m.seq++
		m.granule += step
	}

	return nil
}

// isHeaderPage reports whether every packet on the page is a Vorbis
// header packet. Header and audio packets never share a page in a
// conforming stream.
func isHeaderPage(page *ogg.Page) bool {
	packets := page.Packets()
	if len(packets) == 0 {
		return false
	}
	for _, pkt := range packets {
		if !ogg.IsVorbisHeader(pkt) {
			return false
		}
	}

	return true
}

func isTimeout(err error) bool {
	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
