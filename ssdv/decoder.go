// Copyright 2026 The hadie Authors. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package ssdv

import "fmt"

// mcu holds the quantised coefficients of one MCU in zigzag order: four
// luma blocks, then Cb and Cr.
type mcu [blocksPerMCU][64]int16

// Decoder rebuilds an image from the packets of one SSDV session. Packets
// must arrive in increasing sequence order, but any of them may be
// missing.
type Decoder struct {
	fec FEC

	started  bool
	imageID  uint8
	geometry Geometry
	lastID   int
	synced   bool
	done     bool

	scan     scanState
	work     bitReader
	inValue  bool
	mcus     []mcu
	complete []bool
}

// NewDecoder returns a decoder. A nil fec selects the standard
// Reed-Solomon code.
func NewDecoder(fec FEC) *Decoder {
	return &Decoder{
		fec:    defaultFEC(fec),
		lastID: -1,
	}
}

// Geometry returns the image size from the first accepted packet.
func (d *Decoder) Geometry() Geometry {
	return d.geometry
}

// ImageID returns the image id from the first accepted packet.
func (d *Decoder) ImageID() uint8 {
	return d.imageID
}

// Complete reports whether every MCU of the image has been received.
func (d *Decoder) Complete() bool {
	if !d.started {
		return false
	}
	for _, c := range d.complete {
		if !c {
			return false
		}
	}
	return true
}

// MCU returns the coefficients of an MCU and whether all of its blocks
// arrived.
func (d *Decoder) MCU(id int) (blocks [blocksPerMCU][64]int16, complete bool) {
	if id < 0 || id >= len(d.mcus) {
		return blocks, false
	}
	return d.mcus[id], d.complete[id]
}

// Feed decodes one packet. p is not modified; corrections are applied to
// a copy. Errors other than ErrFEC, ErrBadPacket, ErrImageMismatch and
// ErrOutOfOrder come from corrupt entropy data; the decoder then waits
// for the next MCU boundary and carries on.
func (d *Decoder) Feed(p *Packet) error {
	pkt := *p
	if _, err := d.fec.Correct(pkt.Block()); err != nil {
		return fmt.Errorf("%w: %v", ErrFEC, err)
	}
	h, err := pkt.Header()
	if err != nil {
		return err
	}

	if !d.started {
		if err := d.begin(h); err != nil {
			return err
		}
	} else if h.ImageID != d.imageID || h.Width != d.geometry.Width || h.Height != d.geometry.Height {
		return fmt.Errorf("%w: image %d %dx%d, decoding image %d %dx%d", ErrImageMismatch,
			h.ImageID, h.Width, h.Height, d.imageID, d.geometry.Width, d.geometry.Height)
	}
	if int(h.PacketID) <= d.lastID {
		return fmt.Errorf("%w: packet %d after %d", ErrOutOfOrder, h.PacketID, d.lastID)
	}
	gap := int(h.PacketID) != d.lastID+1
	d.lastID = int(h.PacketID)
	if d.done {
		return nil
	}

	payload := pkt.Payload()
	skipBits := 0
	if gap || !d.synced {
		if !h.HasMCU() {
			d.synced = false
			return nil
		}
		if int(h.MCUID) >= len(d.mcus) || int(h.MCUOffset) >= PayloadSize*8 {
			d.synced = false
			return fmt.Errorf("%w: packet %d MCU %d at bit %d", ErrBadPacket, h.PacketID, h.MCUID, h.MCUOffset)
		}
		d.work.reset()
		d.inValue = false
		d.scan.restart(int(h.MCUID))
		payload = payload[h.MCUOffset/8:]
		skipBits = int(h.MCUOffset % 8)
	}
	d.synced = true

	for i, b := range payload {
		d.work.push(b)
		if i == 0 && skipBits > 0 {
			d.work.skip(uint8(skipBits))
		}
		for {
			err := d.process()
			if err == errNeedBits {
				break
			}
			if err != nil {
				d.synced = false
				return fmt.Errorf("packet %d: %w", h.PacketID, err)
			}
			if d.done {
				return nil
			}
		}
	}
	return nil
}

func (d *Decoder) begin(h Header) error {
	if h.Width == 0 || h.Height == 0 {
		return fmt.Errorf("%w: image size %dx%d", ErrBadPacket, h.Width, h.Height)
	}
	d.started = true
	d.imageID = h.ImageID
	d.geometry = Geometry{Width: h.Width, Height: h.Height}
	n := d.geometry.MCUCount()
	d.mcus = make([]mcu, n)
	d.complete = make([]bool, n)
	d.scan.mcuCount = n
	return nil
}

func (d *Decoder) process() error {
	s := &d.scan
	if !d.inValue {
		sym, width, res := s.table().decode(&d.work)
		switch res {
		case lookupMore:
			return errNeedBits
		case lookupNoMatch:
			return fmt.Errorf("%w: MCU %d block %d", ErrHuffman, s.mcuID, s.mcuPart)
		}
		d.work.skip(width)

		switch {
		case s.acPart == 0 && sym == 0:
			d.setDC(0)
			s.acPart++
		case s.acPart == 0:
			s.needBits = sym
			d.inValue = true
		case sym == 0x00:
			s.acPart = 64
		case sym == 0xF0:
			s.acPart += 16
		default:
			s.run = sym >> 4
			s.needBits = sym & 0x0F
			s.acPart += int(s.run)
			if s.acPart > 63 {
				return fmt.Errorf("%w: coefficient run past end of block in MCU %d", ErrSyntax, s.mcuID)
			}
			d.inValue = true
		}
	} else {
		if d.work.n < s.needBits {
			return errNeedBits
		}
		v := extend(d.work.peek(s.needBits), s.needBits)
		d.work.skip(s.needBits)
		if s.acPart == 0 {
			d.setDC(v)
		} else {
			d.mcus[s.mcuID][s.mcuPart][s.acPart] = int16(v)
		}
		s.acPart++
		d.inValue = false
	}

	if s.acPart > 64 {
		return fmt.Errorf("%w: zero run past end of block in MCU %d", ErrSyntax, s.mcuID)
	}
	if s.acPart == 64 {
		id := s.mcuID
		if s.endBlock() {
			d.complete[id] = true
			d.done = s.mcuID == s.mcuCount
		}
	}
	return nil
}

// setDC stores a DC value. Anchored blocks carry it in absolute form,
// the rest as a difference from the previous block of the component.
func (d *Decoder) setDC(v int32) {
	s := &d.scan
	if anchored(s.mcuPart) {
		s.dc[s.component] = v
	} else {
		s.dc[s.component] += v
	}
	d.mcus[s.mcuID][s.mcuPart][0] = int16(clampDC(s.dc[s.component]))
}

// clampDC keeps a DC coefficient inside the range a baseline encoder can
// produce, so corrupt data cannot make WriteJPEG fail.
func clampDC(v int32) int32 {
	switch {
	case v < -1024:
		return -1024
	case v > 1023:
		return 1023
	}
	return v
}
