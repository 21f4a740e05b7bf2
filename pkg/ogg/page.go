// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

// Package ogg implements an incremental Ogg container page codec: parsing
// pages out of a byte stream, resynchronising after corruption, and
// re-emitting pages with rewritten serial, sequence and granule fields.
package ogg

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	capturePattern = "OggS"

	// HeaderLen is the fixed portion of a page header, before the
	// segment table.
	HeaderLen = 27

	// MaxPageLen bounds a page: header, full segment table, and 255
	// segments of 255 bytes each.
	MaxPageLen = HeaderLen + 255 + 255*255

	// Header-type flag bits.
	FlagContinuation = 0x01
	FlagFirstPage    = 0x02
	FlagLastPage     = 0x04
)

// GranuleNoPacket is the granule position of a page on which no packet
// ends, encoded on the wire as all one-bits.
const GranuleNoPacket int64 = -1

var (
	// ErrNeedMoreData reports that the buffer does not yet hold a
	// complete page; the caller should feed more bytes and retry.
	ErrNeedMoreData = errors.New("incomplete page")

	// ErrCorruptPage reports that the bytes at the start of the buffer
	// are not a valid page. The caller should resynchronise.
	ErrCorruptPage = errors.New("corrupt page")

	// ErrChecksumMismatch reports a page whose CRC field does not match
	// the page contents.
	ErrChecksumMismatch = errors.New("expected and actual checksum do not match")
)

// Page is a single Ogg page. Payload and the segment table reference the
// buffer passed to Decode; callers that retain a Page beyond the life of
// that buffer must Clone it.
type Page struct {
	HeaderType      uint8
	GranulePosition int64
	Serial          uint32
	Sequence        uint32

	Segments []byte
	Payload  []byte
}

// IsFirst reports whether the page opens a logical bitstream.
func (p *Page) IsFirst() bool { return p.HeaderType&FlagFirstPage != 0 }

// IsLast reports whether the page closes a logical bitstream.
func (p *Page) IsLast() bool { return p.HeaderType&FlagLastPage != 0 }

// IsContinuation reports whether the first segment continues a packet
// from the previous page.
func (p *Page) IsContinuation() bool { return p.HeaderType&FlagContinuation != 0 }

// Len returns the encoded size of the page.
func (p *Page) Len() int { return HeaderLen + len(p.Segments) + len(p.Payload) }

// Clone returns a deep copy of the page that does not alias the decode
// buffer.
func (p *Page) Clone() *Page {
	clone := *p
	clone.Segments = append([]byte(nil), p.Segments...)
	clone.Payload = append([]byte(nil), p.Payload...)

	return &clone
}

// Packets splits the payload along the segment table. A packet whose
// final lacing value is 255 spills into the next page; the spilled
// prefix is returned as the last element.
func (p *Page) Packets() [][]byte {
	var packets [][]byte

	offset, start := 0, 0
	for _, lace := range p.Segments {
		offset += int(lace)
		if lace < 255 {
			packets = append(packets, p.Payload[start:offset])
			start = offset
		}
	}
	if start < len(p.Payload) {
		packets = append(packets, p.Payload[start:])
	}

	return packets
}

// Decode parses one page from the front of buf. It returns the page, the
// number of bytes consumed, and an error. ErrNeedMoreData means buf ends
// mid-page; ErrCorruptPage (possibly wrapping ErrChecksumMismatch) means
// the caller should Resync. The returned page aliases buf.
func Decode(buf []byte) (*Page, int, error) { //nolint:cyclop
	if len(buf) < HeaderLen {
		return nil, 0, ErrNeedMoreData
	}

	if string(buf[0:4]) != capturePattern {
		return nil, 0, fmt.Errorf("%w: bad capture pattern", ErrCorruptPage)
	}
	if buf[4] != 0 {
		return nil, 0, fmt.Errorf("%w: unknown version %d", ErrCorruptPage, buf[4])
	}

	segmentCount := int(buf[26])
	if len(buf) < HeaderLen+segmentCount {
		return nil, 0, ErrNeedMoreData
	}

	segments := buf[HeaderLen : HeaderLen+segmentCount]
	payloadLen := 0
	for _, s := range segments {
		payloadLen += int(s)
	}

	total := HeaderLen + segmentCount + payloadLen
	if len(buf) < total {
		return nil, 0, ErrNeedMoreData
	}

	var checksum crc32
	for i := 0; i < HeaderLen; i++ {
		// The checksum field itself is computed as zero.
		if i >= 22 && i < 26 {
			checksum.update(0)

			continue
		}
		checksum.update(buf[i])
	}
	checksum.updateSlice(buf[HeaderLen:total])

	if binary.LittleEndian.Uint32(buf[22:26]) != uint32(checksum) {
		return nil, 0, fmt.Errorf("%w: %w", ErrCorruptPage, ErrChecksumMismatch)
	}

	page := &Page{
		HeaderType:      buf[5],
		GranulePosition: int64(binary.LittleEndian.Uint64(buf[6:14])),
		Serial:          binary.LittleEndian.Uint32(buf[14:18]),
		Sequence:        binary.LittleEndian.Uint32(buf[18:22]),
		Segments:        segments,
		Payload:         buf[HeaderLen+segmentCount : total],
	}

	return page, total, nil
}

// Resync scans buf for the next capture pattern after the first byte and
// returns its offset, or -1 if none is present. The scan is byte-by-byte:
// the capture pattern's first byte is rare in compressed payloads, so the
// simple scan loses at most a few hundred bytes on corruption.
func Resync(buf []byte) int {
	for i := 1; i+4 <= len(buf); i++ {
		if string(buf[i:i+4]) == capturePattern {
			return i
		}
	}

	return -1
}

// Marshal encodes the page, recomputing the checksum.
func (p *Page) Marshal() []byte {
	return p.encode(p.Serial, p.Sequence, p.GranulePosition)
}

// Reserialize encodes the page with the serial, sequence and granule
// position replaced. Header type, segment table and payload are
// preserved byte-for-byte; the checksum is recomputed.
func (p *Page) Reserialize(serial, sequence uint32, granule int64) []byte {
	return p.encode(serial, sequence, granule)
}

func (p *Page) encode(serial, sequence uint32, granule int64) []byte {
	out := make([]byte, p.Len())

	copy(out[0:4], capturePattern)
	out[4] = 0
	out[5] = p.HeaderType
	binary.LittleEndian.PutUint64(out[6:14], uint64(granule))
	binary.LittleEndian.PutUint32(out[14:18], serial)
	binary.LittleEndian.PutUint32(out[18:22], sequence)
	out[26] = uint8(len(p.Segments))
	copy(out[HeaderLen:], p.Segments)
	copy(out[HeaderLen+len(p.Segments):], p.Payload)

	var checksum crc32
	checksum.updateSlice(out)
	binary.LittleEndian.PutUint32(out[22:26], uint32(checksum))

	return out
}

// PageFromPackets assembles packets into a single page. Each packet must
// be complete (no continuation across pages) and the combined segment
// table must not exceed 255 lacing values.
func PageFromPackets(headerType uint8, granule int64, serial, sequence uint32, packets [][]byte) (*Page, error) {
	var segments, payload []byte

	for _, pkt := range packets {
		l := len(pkt)
		for l >= 255 {
			segments = append(segments, 255)
			l -= 255
		}
		segments = append(segments, byte(l))
		payload = append(payload, pkt...)
	}
	if len(segments) > 255 {
		return nil, fmt.Errorf("%w: segment table overflow (%d lacing values)", ErrCorruptPage, len(segments))
	}

	return &Page{
		HeaderType:      headerType,
		GranulePosition: granule,
		Serial:          serial,
		Sequence:        sequence,
		Segments:        segments,
		Payload:         payload,
	}, nil
}
