// Copyright 2026 The hadie Authors. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package ssdv

import (
	"errors"
	"fmt"
)

// scratchSize bounds the SOF0 and SOS segments the encoder keeps. A
// 3-component baseline header fits in 15 bytes.
const scratchSize = 16

var errNeedBits = errors.New("need more bits")

type encoderState int

const (
	stateMarker encoderState = iota
	stateMarkerLen
	stateMarkerData
	stateHuff
	stateInt
	stateDone
)

// Encoder turns one baseline JPEG into a sequence of SSDV packets. It is
// driven by the caller: Feed hands it input, NextPacket runs until a
// packet is ready or the input runs out, and nothing blocks. An Encoder
// must not be used from more than one goroutine at a time.
type Encoder struct {
	imageID uint8
	fec     FEC

	in   []byte
	skip int

	state      encoderState
	sawFF      bool
	marker     marker
	markerCode byte
	markerLen  int
	lenBytes   int
	scratch    [scratchSize]byte
	scratchN   int
	stuffed    bool

	haveFrame bool
	geometry  Geometry

	scan scanState
	work bitReader
	out  bitWriter

	buf       Packet
	outN      int
	packetID  uint16
	mcuID     int
	mcuOffset int

	encoded  int
	err      error
	finished bool
}

// NewEncoder starts a session for one image. The image id is stamped on
// every packet. A nil fec selects the standard Reed-Solomon code.
func NewEncoder(imageID uint8, fec FEC) *Encoder {
	return &Encoder{
		imageID:   imageID,
		fec:       defaultFEC(fec),
		mcuID:     0,
		mcuOffset: 0,
	}
}

// Feed gives the encoder more JPEG bytes. The slice is read in place and
// must not be modified until NextPacket returns NeedInput again.
func (e *Encoder) Feed(b []byte) error {
	if len(e.in) > 0 {
		return ErrInputPending
	}
	e.in = b
	return nil
}

// Geometry returns the image size once the frame header has been read.
func (e *Encoder) Geometry() Geometry {
	return e.geometry
}

// Encoded returns the number of entropy-coded bytes written to packets
// so far.
func (e *Encoder) Encoded() int {
	return e.encoded
}

// Packets returns the number of packets produced so far.
func (e *Encoder) Packets() int {
	return int(e.packetID)
}

// NextPacket writes the next packet to p. NeedInput leaves p untouched;
// the call should be repeated after Feed. Once EndOfImage has been
// returned, further calls return it again and leave p alone. An error
// ends the session: every later call returns the same error.
func (e *Encoder) NextPacket(p *Packet) (Result, error) {
	if e.err != nil {
		return NeedInput, e.err
	}
	if e.finished {
		return EndOfImage, nil
	}
	for {
		e.drain()
		if e.outN == PayloadSize {
			if e.state == stateDone && e.out.n == 0 {
				return e.finish(p, EndOfImage), nil
			}
			return e.finish(p, PacketReady), nil
		}
		if e.state == stateDone {
			if b, ok := e.out.flush(false); ok {
				e.put(b)
			}
			return e.finish(p, EndOfImage), nil
		}
		if err := e.step(); err != nil {
			if err == errNeedBits {
				return NeedInput, nil
			}
			e.err = err
			return NeedInput, err
		}
	}
}

func (e *Encoder) put(b byte) {
	e.buf[HeaderSize+e.outN] = b
	e.outN++
	e.encoded++
}

func (e *Encoder) drain() {
	for e.outN < PayloadSize {
		b, ok := e.out.pop()
		if !ok {
			return
		}
		e.put(b)
	}
}

// finish completes the header and parity of the buffered packet and
// copies it out. An MCU that starts beyond this payload is carried over
// to the next packet.
func (e *Encoder) finish(p *Packet, res Result) Result {
	h := Header{
		ImageID:   e.imageID,
		PacketID:  e.packetID,
		Width:     e.geometry.Width,
		Height:    e.geometry.Height,
		MCUOffset: NoMCU,
		MCUID:     NoMCU,
	}
	switch {
	case e.mcuID == NoMCU:
	case e.mcuOffset >= PayloadSize*8:
		e.mcuOffset -= PayloadSize * 8
	default:
		h.MCUID, h.MCUOffset = uint16(e.mcuID), uint16(e.mcuOffset)
		e.mcuID, e.mcuOffset = NoMCU, NoMCU
	}
	e.buf.setHeader(h)
	e.fec.Protect(e.buf.data(), e.buf.parity())
	*p = e.buf

	e.buf = Packet{}
	e.outN = 0
	e.packetID++
	if res == EndOfImage {
		e.finished = true
	}
	return res
}

// step does one unit of work: a code or value from the scan, or a
// single input byte. errNeedBits means the input is used up.
func (e *Encoder) step() error {
	if e.state == stateHuff || e.state == stateInt {
		err := e.process()
		if err != errNeedBits {
			return err
		}
	}
	if len(e.in) == 0 {
		return errNeedBits
	}
	b := e.in[0]
	e.in = e.in[1:]
	return e.consume(b)
}

func (e *Encoder) consume(b byte) error {
	if e.skip > 0 {
		e.skip--
		return nil
	}
	switch e.state {
	case stateMarker:
		return e.readMarker(b)
	case stateMarkerLen:
		return e.readLength(b)
	case stateMarkerData:
		e.scratch[e.scratchN] = b
		e.scratchN++
		if e.scratchN == e.markerLen {
			return e.endSegment()
		}
	case stateHuff, stateInt:
		return e.readScan(b)
	}
	return nil
}

func (e *Encoder) readMarker(b byte) error {
	if !e.sawFF {
		e.sawFF = b == 0xFF
		return nil
	}
	if b == 0xFF {
		return nil
	}
	e.sawFF = false

	class := classifyMarker(b)
	switch class {
	case markerNone, markerStandalone:
		return nil
	case markerEOI:
		return ErrUnexpectedEOI
	case markerUnsupported:
		return fmt.Errorf("%w: marker 0xFF%02X", ErrUnsupported, b)
	case markerSOF0, markerSOS, markerSegment:
		e.marker = class
		e.markerCode = b
		e.markerLen, e.lenBytes = 0, 0
		e.state = stateMarkerLen
	}
	return nil
}

func (e *Encoder) readLength(b byte) error {
	e.markerLen = e.markerLen<<8 | int(b)
	if e.lenBytes++; e.lenBytes < 2 {
		return nil
	}
	if e.markerLen < 2 {
		return fmt.Errorf("%w: marker 0xFF%02X length %d", ErrSyntax, e.markerCode, e.markerLen)
	}
	e.markerLen -= 2

	if e.marker == markerSegment {
		e.skip = e.markerLen
		e.state = stateMarker
		return nil
	}
	if e.markerLen > len(e.scratch) {
		return fmt.Errorf("%w: marker 0xFF%02X is %d bytes", ErrMarkerTooLarge, e.markerCode, e.markerLen)
	}
	e.scratchN = 0
	e.state = stateMarkerData
	if e.markerLen == 0 {
		return e.endSegment()
	}
	return nil
}

func (e *Encoder) endSegment() error {
	d := e.scratch[:e.scratchN]
	if e.marker == markerSOF0 {
		e.state = stateMarker
		return e.readFrame(d)
	}
	if err := e.readScanHeader(d); err != nil {
		return err
	}
	e.state = stateHuff
	return nil
}

func (e *Encoder) readFrame(d []byte) error {
	if e.haveFrame {
		return fmt.Errorf("%w: second frame header", ErrSyntax)
	}
	if len(d) < 6 {
		return fmt.Errorf("%w: short frame header", ErrSyntax)
	}
	precision := d[0]
	height := int(d[1])<<8 | int(d[2])
	width := int(d[3])<<8 | int(d[4])
	components := int(d[5])

	if precision != 8 {
		return fmt.Errorf("%w: %d-bit precision", ErrUnsupported, precision)
	}
	if components != 3 {
		return fmt.Errorf("%w: %d components", ErrUnsupported, components)
	}
	if width == 0 || height == 0 || width%16 != 0 || height%16 != 0 {
		return fmt.Errorf("%w: %dx%d is not a multiple of 16", ErrUnsupported, width, height)
	}
	if width > 255*16 || height > 255*16 {
		return fmt.Errorf("%w: %dx%d is too large", ErrUnsupported, width, height)
	}
	if len(d) < 6+3*components {
		return fmt.Errorf("%w: short frame header", ErrSyntax)
	}
	for i := 0; i < components; i++ {
		sampling := d[6+3*i+1]
		want := byte(0x11)
		if i == 0 {
			want = 0x22
		}
		if sampling != want {
			return fmt.Errorf("%w: component %d sampling %02X", ErrUnsupported, i+1, sampling)
		}
	}

	e.geometry = Geometry{Width: width, Height: height}
	e.haveFrame = true
	return nil
}

func (e *Encoder) readScanHeader(d []byte) error {
	if !e.haveFrame {
		return fmt.Errorf("%w: scan before frame header", ErrSyntax)
	}
	if len(d) < 1 {
		return fmt.Errorf("%w: short scan header", ErrSyntax)
	}
	if d[0] != 3 {
		return fmt.Errorf("%w: scan with %d components", ErrUnsupported, d[0])
	}
	if len(d) < 1+2*3+3 {
		return fmt.Errorf("%w: short scan header", ErrSyntax)
	}
	e.scan.restart(0)
	e.scan.mcuCount = e.geometry.MCUCount()
	return nil
}

// readScan strips byte stuffing from entropy-coded data.
func (e *Encoder) readScan(b byte) error {
	if e.stuffed {
		e.stuffed = false
		switch b {
		case 0x00:
			e.work.push(0xFF)
			return nil
		case 0xFF:
			// fill byte before a marker
			e.stuffed = true
			return nil
		case 0xD9:
			return ErrUnexpectedEOI
		}
		return fmt.Errorf("%w: marker 0xFF%02X inside scan", ErrSyntax, b)
	}
	if b == 0xFF {
		e.stuffed = true
		return nil
	}
	e.work.push(b)
	return nil
}

// process decodes one Huffman code or one value from the buffered bits
// and writes its re-encoded form.
func (e *Encoder) process() error {
	s := &e.scan
	switch e.state {
	case stateHuff:
		t := s.table()
		sym, width, res := t.decode(&e.work)
		switch res {
		case lookupMore:
			return errNeedBits
		case lookupNoMatch:
			return fmt.Errorf("%w: MCU %d block %d", ErrHuffman, s.mcuID, s.mcuPart)
		}
		e.work.skip(width)

		if s.acPart == 0 {
			if sym == 0 {
				if err := e.writeDC(0); err != nil {
					return err
				}
				s.acPart++
			} else {
				s.needBits = sym
				e.state = stateInt
			}
			break
		}
		switch sym {
		case 0x00:
			// EOB
			if err := e.write(0, 0); err != nil {
				return err
			}
			s.acPart = 64
		case 0xF0:
			// ZRL: sixteen zero coefficients
			if err := e.write(15, 0); err != nil {
				return err
			}
			s.acPart += 16
		default:
			s.run = sym >> 4
			s.needBits = sym & 0x0F
			s.acPart += int(s.run)
			if s.acPart > 63 {
				return fmt.Errorf("%w: coefficient run past end of block in MCU %d", ErrSyntax, s.mcuID)
			}
			e.state = stateInt
		}

	case stateInt:
		if e.work.n < s.needBits {
			return errNeedBits
		}
		v := extend(e.work.peek(s.needBits), s.needBits)
		e.work.skip(s.needBits)
		if s.acPart == 0 {
			if err := e.writeDC(v); err != nil {
				return err
			}
		} else if err := e.write(s.run, v); err != nil {
			return err
		}
		s.acPart++
		e.state = stateHuff
	}

	if s.acPart > 64 {
		return fmt.Errorf("%w: zero run past end of block in MCU %d", ErrSyntax, s.mcuID)
	}
	if s.acPart == 64 {
		e.endBlock()
	}
	return nil
}

func (e *Encoder) endBlock() {
	s := &e.scan
	if !s.endBlock() {
		return
	}
	if s.mcuID == s.mcuCount {
		e.state = stateDone
		return
	}
	if e.mcuID == NoMCU {
		e.mcuID = s.mcuID
		e.mcuOffset = e.outN*8 + int(e.out.n)
	}
}

// writeDC re-encodes a DC difference, as an absolute value for anchored
// blocks.
func (e *Encoder) writeDC(diff int32) error {
	s := &e.scan
	s.dc[s.component] += diff
	if anchored(s.mcuPart) {
		return e.write(0, s.dc[s.component])
	}
	return e.write(0, diff)
}

// write emits the Huffman code for run and the size of v, followed by
// the magnitude bits of v.
func (e *Encoder) write(run uint8, v int32) error {
	s := &e.scan
	bits, size := magnitude(v)
	code, width, ok := s.table().lookup(run<<4 | size)
	if !ok {
		return fmt.Errorf("%w: value %d out of range in MCU %d", ErrSyntax, v, s.mcuID)
	}
	e.out.write(uint32(code), width)
	if size > 0 {
		e.out.write(bits, size)
	}
	return nil
}
