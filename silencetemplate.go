// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

package snowboot

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"

	"github.com/dspearson/snowboot/pkg/ogg"
)

// The template is a short pre-encoded Ogg Vorbis stream of absolute
// silence: one identification page, one page carrying the comment and
// setup headers, and a fixed-cadence run of audio pages. It was captured
// from libvorbis encoding zeroed PCM; only the identification header's
// rate fields are rewritten at runtime.
//
//go:embed assets/silence.ogg
var silenceAsset []byte

type silenceTemplate struct {
	identPacket   []byte
	commentPacket []byte
	setupPacket   []byte

	audioPages     []*ogg.Page
	samplesPerPage int64
}

func parseSilenceTemplate(asset []byte) (*silenceTemplate, error) { //nolint:cyclop
	tmpl := &silenceTemplate{}
	reader := ogg.NewReader(bytes.NewReader(asset))

	lastGranule := int64(0)
	for {
		page, err := reader.ParseNextPage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadSilenceAsset, err)
		}

		for _, pkt := range page.Packets() {
			switch {
			case ogg.IsVorbisIdentification(pkt):
				tmpl.identPacket = append([]byte(nil), pkt...)
			case ogg.IsVorbisComment(pkt):
				tmpl.commentPacket = append([]byte(nil), pkt...)
			case ogg.IsVorbisSetup(pkt):
				tmpl.setupPacket = append([]byte(nil), pkt...)
			default:
				// Audio pages are kept whole.
			}
		}

		if page.GranulePosition > 0 {
			step := page.GranulePosition - lastGranule
			if tmpl.samplesPerPage == 0 {
				tmpl.samplesPerPage = step
			} else if step != tmpl.samplesPerPage {
				return nil, fmt.Errorf("%w: non-uniform page cadence (%d then %d samples)",
					ErrBadSilenceAsset, tmpl.samplesPerPage, step)
			}
			lastGranule = page.GranulePosition
			tmpl.audioPages = append(tmpl.audioPages, page)
		}
	}

	if tmpl.identPacket == nil || tmpl.commentPacket == nil || tmpl.setupPacket == nil {
		return nil, fmt.Errorf("%w: missing header packets", ErrBadSilenceAsset)
	}
	if len(tmpl.audioPages) == 0 || tmpl.samplesPerPage <= 0 {
		return nil, fmt.Errorf("%w: no audio pages", ErrBadSilenceAsset)
	}

	return tmpl, nil
}
