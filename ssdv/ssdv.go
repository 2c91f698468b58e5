// Copyright 2026 The hadie Authors. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package ssdv converts baseline JPEG images into SSDV packets and back.
//
// SSDV (Slow Scan Digital Video) carries a JPEG's entropy-coded data in
// small fixed size packets, each protected by a Reed-Solomon code, so a
// receiver can rebuild the image even when packets are lost. Every
// packet records where the first MCU that starts inside it begins, and
// the DC coefficients at those points are absolute values, so decoding
// restarts cleanly after a gap.
package ssdv

import (
	"errors"

	"github.com/fsphil/hadie/rs8"
)

const (
	PacketSize  = 256
	HeaderSize  = 11
	ParitySize  = 32
	PayloadSize = PacketSize - HeaderSize - ParitySize // 213

	// NoMCU marks the MCU id and offset header fields of a packet in
	// which no MCU starts.
	NoMCU = 0xFFFF
)

// Result says what NextPacket produced.
type Result int

const (
	// NeedInput means the encoder has used all input given to Feed.
	NeedInput Result = iota
	// PacketReady means a full packet was written.
	PacketReady
	// EndOfImage means the final packet of the image was written.
	EndOfImage
)

func (r Result) String() string {
	switch r {
	case NeedInput:
		return "need input"
	case PacketReady:
		return "packet ready"
	case EndOfImage:
		return "end of image"
	}
	return "unknown"
}

var (
	ErrUnsupported    = errors.New("ssdv: unsupported JPEG")
	ErrMarkerTooLarge = errors.New("ssdv: marker segment too large")
	ErrHuffman        = errors.New("ssdv: no matching huffman code")
	ErrSyntax         = errors.New("ssdv: malformed JPEG")
	ErrUnexpectedEOI  = errors.New("ssdv: end of image before end of scan")
	ErrInputPending   = errors.New("ssdv: previous input not yet consumed")

	ErrFEC           = errors.New("ssdv: packet could not be corrected")
	ErrBadPacket     = errors.New("ssdv: not an SSDV packet")
	ErrImageMismatch = errors.New("ssdv: packet is from a different image")
	ErrOutOfOrder    = errors.New("ssdv: packet out of order")
)

// FEC protects the packet bytes that follow the sync byte.
type FEC interface {
	// Protect computes parity for data.
	Protect(data, parity []byte)
	// Correct repairs a block of data followed by parity in place and
	// returns the number of corrected bytes.
	Correct(block []byte) (int, error)
}

func defaultFEC(fec FEC) FEC {
	if fec == nil {
		return rs8.New()
	}
	return fec
}

// Geometry is the size of an image in pixels.
type Geometry struct {
	Width  int
	Height int
}

// MCUCount is the number of 16x16 MCUs in the image.
func (g Geometry) MCUCount() int {
	return (g.Width / 16) * (g.Height / 16)
}

// componentOf maps the six blocks of a 4:2:0 MCU (four Y, one Cb, one
// Cr) to their component.
func componentOf(part int) int {
	if part < 4 {
		return 0
	}
	return part - 3
}

// anchored reports whether a block carries its DC value in absolute
// form. The first luma block and both chroma blocks of every MCU do,
// which lets a decoder join the stream at any MCU boundary.
func anchored(part int) bool {
	return part == 0 || part >= 4
}

const blocksPerMCU = 6

// scanState holds the position within the entropy-coded scan shared by
// the encoder and the decoder.
type scanState struct {
	component int
	mcuPart   int
	acPart    int
	needBits  uint8
	run       uint8
	dc        [3]int32
	mcuID     int
	mcuCount  int
}

func (s *scanState) table() *huffmanTable {
	dc, ac := tablesFor(s.component)
	if s.acPart == 0 {
		return dc
	}
	return ac
}

func (s *scanState) restart(mcu int) {
	s.component, s.mcuPart, s.acPart = 0, 0, 0
	s.needBits, s.run = 0, 0
	s.dc = [3]int32{}
	s.mcuID = mcu
}

// endBlock advances past a finished block and reports whether it was the
// last block of an MCU.
func (s *scanState) endBlock() bool {
	s.acPart = 0
	s.mcuPart++
	if s.mcuPart < blocksPerMCU {
		s.component = componentOf(s.mcuPart)
		return false
	}
	s.mcuPart, s.component = 0, 0
	s.mcuID++
	return true
}
