// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

package snowboot

import (
	"testing"

	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dspearson/snowboot/pkg/ogg"
)

func newTestSilenceSource(t *testing.T) *SilenceSource {
	t.Helper()

	source, err := NewSilenceSource(logging.NewDefaultLoggerFactory(), 44100, 128)
	require.NoError(t, err)

	return source
}

func decodePage(t *testing.T, raw []byte) *ogg.Page {
	t.Helper()

	page, consumed, err := ogg.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, len(raw), consumed)

	return page
}

func TestSilenceSource_HeaderPages(t *testing.T) {
	source := newTestSilenceSource(t)

	pages, err := source.HeaderPages(0xCAFE)
	require.NoError(t, err)
	require.Len(t, pages, 3)

	for i, raw := range pages {
		page := decodePage(t, raw)
		assert.Equal(t, uint32(0xCAFE), page.Serial)
		assert.Equal(t, uint32(i), page.Sequence)
		assert.Equal(t, int64(0), page.GranulePosition)
		assert.Equal(t, i == 0, page.IsFirst())
		assert.False(t, page.IsLast())
	}

	assert.True(t, ogg.IsVorbisIdentification(decodePage(t, pages[0]).Packets()[0]))
	assert.True(t, ogg.IsVorbisComment(decodePage(t, pages[1]).Packets()[0]))
	assert.True(t, ogg.IsVorbisSetup(decodePage(t, pages[2]).Packets()[0]))
}

func TestSilenceSource_RewritesRates(t *testing.T) {
	source, err := NewSilenceSource(logging.NewDefaultLoggerFactory(), 48000, 96)
	require.NoError(t, err)

	pages, err := source.HeaderPages(1)
	require.NoError(t, err)

	ident, err := ogg.ParseVorbisIdentification(decodePage(t, pages[0]).Packets()[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(48000), ident.SampleRate)
	assert.Equal(t, int32(96000), ident.BitrateNominal)
}

func TestSilenceSource_BatchContinuity(t *testing.T) {
	source := newTestSilenceSource(t)
	step := source.SamplesPerPage()

	first := source.NextBatch(9, 3, 0, 4*step)
	require.Len(t, first, 4)

	seq := uint32(3)
	granule := int64(0)
	for _, raw := range first {
		page := decodePage(t, raw)
		assert.Equal(t, seq, page.Sequence)
		assert.Equal(t, granule+step, page.GranulePosition)
		seq++
		granule += step
	}

	// The next batch picks up exactly where the previous one stopped.
	second := source.NextBatch(9, seq, granule, 2*step)
	require.Len(t, second, 2)
	for _, raw := range second {
		page := decodePage(t, raw)
		assert.Equal(t, seq, page.Sequence)
		assert.Equal(t, granule+step, page.GranulePosition)
		seq++
		granule += step
	}
}

func TestSilenceSource_Deterministic(t *testing.T) {
	source := newTestSilenceSource(t)
	step := source.SamplesPerPage()

	first := source.NextBatch(7, 12, 99*step, 5*step)
	second := source.NextBatch(7, 12, 99*step, 5*step)
	assert.Equal(t, first, second)
}

func TestSilenceSource_PartialPageRoundsUp(t *testing.T) {
	source := newTestSilenceSource(t)

	batch := source.NextBatch(1, 3, 0, 1)
	assert.Len(t, batch, 1)

	assert.Empty(t, source.NextBatch(1, 3, 0, 0))
}

func TestSilenceSource_BatchesAreValidPages(t *testing.T) {
	source := newTestSilenceSource(t)

	for _, raw := range source.NextBatch(3, 3, 0, 20*source.SamplesPerPage()) {
		page := decodePage(t, raw)
		assert.False(t, page.IsFirst())
		assert.False(t, page.IsLast())
		for _, pkt := range page.Packets() {
			assert.False(t, ogg.IsVorbisHeader(pkt))
		}
	}
}
