// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

package ogg

import (
	"encoding/binary"
	"io"
)

// Reader parses pages out of an io.Reader.
type Reader struct {
	stream     io.Reader
	doChecksum bool
}

// NewReader returns a Reader with checksum verification enabled.
func NewReader(in io.Reader) *Reader {
	return &Reader{stream: in, doChecksum: true}
}

// ParseNextPage reads the next page from the stream. The returned page
// owns its buffers. io.EOF is returned at a clean page boundary;
// io.ErrUnexpectedEOF if the stream ends mid-page.
func (r *Reader) ParseNextPage() (*Page, error) {
	header := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r.stream, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.ErrUnexpectedEOF
		}

		return nil, err
	}

	if string(header[0:4]) != capturePattern {
		return nil, ErrCorruptPage
	}

	segments := make([]byte, header[26])
	if _, err := io.ReadFull(r.stream, segments); err != nil {
		return nil, io.ErrUnexpectedEOF
	}

	payloadLen := 0
	for _, s := range segments {
		payloadLen += int(s)
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r.stream, payload); err != nil {
		return nil, io.ErrUnexpectedEOF
	}

	if r.doChecksum {
		var checksum crc32
		for i := range header {
			if i >= 22 && i < 26 {
				checksum.update(0)

				continue
			}
			checksum.update(header[i])
		}
		checksum.updateSlice(segments)
		checksum.updateSlice(payload)

		if binary.LittleEndian.Uint32(header[22:26]) != uint32(checksum) {
			return nil, ErrChecksumMismatch
		}
	}

	return &Page{
		HeaderType:      header[5],
		GranulePosition: int64(binary.LittleEndian.Uint64(header[6:14])),
		Serial:          binary.LittleEndian.Uint32(header[14:18]),
		Sequence:        binary.LittleEndian.Uint32(header[18:22]),
		Segments:        segments,
		Payload:         payload,
	}, nil
}
