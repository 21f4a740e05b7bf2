// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

package snowboot

import (
	"fmt"

	"github.com/pion/logging"

	"github.com/dspearson/snowboot/pkg/ogg"
)

// SilenceSource emits bit-valid Ogg Vorbis silence pages on demand. The
// template is built once at construction and immutable afterwards; every
// batch is a rewrite of template pages with fresh serial, sequence and
// granule values, so two batches with matching parameters are
// byte-identical and consecutive batches are strictly continuous.
type SilenceSource struct {
	log  logging.LeveledLogger
	tmpl *silenceTemplate

	sampleRate  int
	bitrateKbps int
}

// NewSilenceSource builds the silence template for the configured sample
// rate and bitrate.
func NewSilenceSource(loggerFactory logging.LoggerFactory, sampleRate, bitrateKbps int) (*SilenceSource, error) {
	tmpl, err := parseSilenceTemplate(silenceAsset)
	if err != nil {
		return nil, err
	}

	if err := ogg.RewriteVorbisRates(tmpl.identPacket, uint32(sampleRate), int32(bitrateKbps*1000)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadSilenceAsset, err)
	}

	source := &SilenceSource{
		log:         loggerFactory.NewLogger("silence"),
		tmpl:        tmpl,
		sampleRate:  sampleRate,
		bitrateKbps: bitrateKbps,
	}
	source.log.Debugf("template ready: %d audio pages, %d samples/page",
		len(tmpl.audioPages), tmpl.samplesPerPage)

	return source, nil
}

// SamplesPerPage returns the fixed granule advance of one silence page.
func (s *SilenceSource) SamplesPerPage() int64 { return s.tmpl.samplesPerPage }

// PagesPerSecond returns the emission cadence implied by the configured
// sample rate; it drives queue sizing.
func (s *SilenceSource) PagesPerSecond() float64 {
	return float64(s.sampleRate) / float64(s.tmpl.samplesPerPage)
}

// HeaderPackets returns copies of the three Vorbis header packets in
// stream order.
func (s *SilenceSource) HeaderPackets() [][]byte {
	return [][]byte{
		append([]byte(nil), s.tmpl.identPacket...),
		append([]byte(nil), s.tmpl.commentPacket...),
		append([]byte(nil), s.tmpl.setupPacket...),
	}
}

// HeaderPages returns the three header pages of a logical stream stamped
// with the given serial: identification on the first page (with the
// first-page flag), comment and setup on their own pages, sequences
// 0, 1, 2, granule 0.
func (s *SilenceSource) HeaderPages(serial uint32) ([][]byte, error) {
	packets := s.HeaderPackets()
	flags := []uint8{ogg.FlagFirstPage, 0, 0}

	pages := make([][]byte, 0, len(packets))
	for i, pkt := range packets {
		page, err := ogg.PageFromPackets(flags[i], 0, serial, uint32(i), [][]byte{pkt})
		if err != nil {
			return nil, err
		}
		pages = append(pages, page.Marshal())
	}

	return pages, nil
}

// NextBatch returns rewritten template audio pages until their combined
// sample count reaches samplesNeeded. Sequences start at startSeq and
// are contiguous; granules advance from startGranule by SamplesPerPage
// per page.
func (s *SilenceSource) NextBatch(serial, startSeq uint32, startGranule int64, samplesNeeded int64) [][]byte {
	if samplesNeeded <= 0 {
		return nil
	}

	count := int((samplesNeeded + s.tmpl.samplesPerPage - 1) / s.tmpl.samplesPerPage)

	pages := make([][]byte, 0, count)
	seq := startSeq
	granule := startGranule
	for i := 0; i < count; i++ {
		// Phase into the template is derived from the sequence number so
		// identical parameters reproduce identical bytes.
		tmplPage := s.tmpl.audioPages[int(seq)%len(s.tmpl.audioPages)]
		granule += s.tmpl.samplesPerPage
		pages = append(pages, tmplPage.Reserialize(serial, seq, granule))
		seq++
	}

	return pages
}
