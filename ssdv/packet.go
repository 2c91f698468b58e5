// Copyright 2026 The hadie Authors. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package ssdv

import "fmt"

const (
	syncByte   = 0x55
	packetType = 0x66
)

// Packet is one fixed size SSDV transmission unit.
type Packet [PacketSize]byte

// Header is the decoded form of a packet's first HeaderSize bytes.
type Header struct {
	ImageID  uint8
	PacketID uint16
	Width    int // pixels
	Height   int // pixels

	// MCUOffset is the bit offset within the payload of the first MCU
	// that starts in this packet, and MCUID is that MCU's index. Both are
	// NoMCU when no MCU starts here.
	MCUOffset uint16
	MCUID     uint16
}

// HasMCU reports whether an MCU boundary falls inside the packet.
func (h Header) HasMCU() bool {
	return h.MCUID != NoMCU && h.MCUOffset != NoMCU
}

// Header checks the sync and type bytes and decodes the header fields.
func (p *Packet) Header() (Header, error) {
	if p[0] != syncByte || p[1] != packetType {
		return Header{}, fmt.Errorf("%w: header %02X %02X", ErrBadPacket, p[0], p[1])
	}
	return Header{
		ImageID:   p[2],
		PacketID:  uint16(p[3])<<8 | uint16(p[4]),
		Width:     int(p[5]) * 16,
		Height:    int(p[6]) * 16,
		MCUOffset: uint16(p[7])<<8 | uint16(p[8]),
		MCUID:     uint16(p[9])<<8 | uint16(p[10]),
	}, nil
}

func (p *Packet) setHeader(h Header) {
	p[0] = syncByte
	p[1] = packetType
	p[2] = h.ImageID
	p[3], p[4] = byte(h.PacketID>>8), byte(h.PacketID)
	p[5] = byte(h.Width / 16)
	p[6] = byte(h.Height / 16)
	p[7], p[8] = byte(h.MCUOffset>>8), byte(h.MCUOffset)
	p[9], p[10] = byte(h.MCUID>>8), byte(h.MCUID)
}

// Payload returns the entropy-coded bytes carried by the packet.
func (p *Packet) Payload() []byte {
	return p[HeaderSize : HeaderSize+PayloadSize]
}

// Block returns the bytes covered by the Reed-Solomon code: everything
// after the sync byte, parity included.
func (p *Packet) Block() []byte {
	return p[1:]
}

func (p *Packet) data() []byte {
	return p[1 : PacketSize-ParitySize]
}

func (p *Packet) parity() []byte {
	return p[PacketSize-ParitySize:]
}

// PacketCount returns how many packets carry encoded bytes of entropy
// coded image data.
func PacketCount(encoded int) int {
	return (encoded + PayloadSize - 1) / PayloadSize
}
