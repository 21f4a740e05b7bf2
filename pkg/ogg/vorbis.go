// SPDX-FileCopyrightText: 2026 Dominic Pearson
// SPDX-License-Identifier: MIT

package ogg

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Vorbis header packet types. The codec does not parse Vorbis payloads
// semantically; it only classifies the three header packets and reads the
// fixed-layout fields of the identification header.
const (
	VorbisTypeIdentification = 0x01
	VorbisTypeComment        = 0x03
	VorbisTypeSetup          = 0x05
)

const (
	vorbisMagic    = "vorbis"
	vorbisIdentLen = 30
)

var errBadIdentification = errors.New("bad vorbis identification header")

func isVorbisPacket(pkt []byte, packetType byte) bool {
	return len(pkt) >= 7 && pkt[0] == packetType && string(pkt[1:7]) == vorbisMagic
}

// IsVorbisIdentification reports whether pkt is a Vorbis identification
// header packet.
func IsVorbisIdentification(pkt []byte) bool {
	return isVorbisPacket(pkt, VorbisTypeIdentification)
}

// IsVorbisComment reports whether pkt is a Vorbis comment header packet.
func IsVorbisComment(pkt []byte) bool { return isVorbisPacket(pkt, VorbisTypeComment) }

// IsVorbisSetup reports whether pkt is a Vorbis setup header packet.
func IsVorbisSetup(pkt []byte) bool { return isVorbisPacket(pkt, VorbisTypeSetup) }

// IsVorbisHeader reports whether pkt is any of the three Vorbis header
// packets: the type byte must be 1, 3 or 5 (audio packets have an even
// type byte) and the "vorbis" magic must follow it.
func IsVorbisHeader(pkt []byte) bool {
	return IsVorbisIdentification(pkt) || IsVorbisComment(pkt) || IsVorbisSetup(pkt)
}

// VorbisIdentification is the fixed-layout portion of a Vorbis
// identification header.
//
// https://xiph.org/vorbis/doc/Vorbis_I_spec.html#x1-630004.2.2
type VorbisIdentification struct {
	Channels       uint8
	SampleRate     uint32
	BitrateMaximum int32
	BitrateNominal int32
	BitrateMinimum int32
}

// ParseVorbisIdentification parses the identification header packet.
func ParseVorbisIdentification(pkt []byte) (*VorbisIdentification, error) {
	if !IsVorbisIdentification(pkt) || len(pkt) < vorbisIdentLen {
		return nil, errBadIdentification
	}
	if version := binary.LittleEndian.Uint32(pkt[7:11]); version != 0 {
		return nil, fmt.Errorf("%w: unsupported version %d", errBadIdentification, version)
	}

	return &VorbisIdentification{
		Channels:       pkt[11],
		SampleRate:     binary.LittleEndian.Uint32(pkt[12:16]),
		BitrateMaximum: int32(binary.LittleEndian.Uint32(pkt[16:20])),
		BitrateNominal: int32(binary.LittleEndian.Uint32(pkt[20:24])),
		BitrateMinimum: int32(binary.LittleEndian.Uint32(pkt[24:28])),
	}, nil
}

// RewriteVorbisRates patches the sample-rate and nominal-bitrate fields
// of an identification header packet in place.
func RewriteVorbisRates(pkt []byte, sampleRate uint32, bitrateNominal int32) error {
	if !IsVorbisIdentification(pkt) || len(pkt) < vorbisIdentLen {
		return errBadIdentification
	}

	binary.LittleEndian.PutUint32(pkt[12:16], sampleRate)
	binary.LittleEndian.PutUint32(pkt[20:24], uint32(bitrateNominal))

	return nil
}
