// Copyright 2026 The hadie Authors. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package ssdv

import (
	"errors"
	"fmt"
	"io"
)

// QuantTables are the luma and chroma quantisation tables written to a
// rebuilt JPEG, in zigzag order. SSDV does not carry them, so the
// receiver must use the tables the camera was set up with.
type QuantTables struct {
	Luma   [64]byte
	Chroma [64]byte
}

// unzig maps a zigzag index to its natural (row-major) position.
var unzig = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

// Annex K tables in natural order.
var (
	annexKLuma = [64]byte{
		16, 11, 10, 16, 24, 40, 51, 61,
		12, 12, 14, 19, 26, 58, 60, 55,
		14, 13, 16, 24, 40, 57, 69, 56,
		14, 17, 22, 29, 51, 87, 80, 62,
		18, 22, 37, 56, 68, 109, 103, 77,
		24, 35, 55, 64, 81, 104, 113, 92,
		49, 64, 78, 87, 103, 121, 120, 101,
		72, 92, 95, 98, 112, 100, 103, 99,
	}
	annexKChroma = [64]byte{
		17, 18, 24, 47, 99, 99, 99, 99,
		18, 21, 26, 66, 99, 99, 99, 99,
		24, 26, 56, 99, 99, 99, 99, 99,
		47, 66, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
	}
)

// DefaultQuantTables returns the example tables from Annex K of the JPEG
// standard, which is what most encoders use at quality 50.
func DefaultQuantTables() QuantTables {
	var q QuantTables
	for zig, natural := range unzig {
		q.Luma[zig] = annexKLuma[natural]
		q.Chroma[zig] = annexKChroma[natural]
	}
	return q
}

// WriteJPEG writes the decoded image as a baseline JPEG. MCUs that never
// arrived come out as flat grey. A nil q selects DefaultQuantTables.
func (d *Decoder) WriteJPEG(w io.Writer, q *QuantTables) error {
	if !d.started {
		return errors.New("ssdv: no packets decoded")
	}
	if q == nil {
		def := DefaultQuantTables()
		q = &def
	}

	jw := &jpegWriter{}
	jw.marker(0xD8, nil)
	jw.writeQuant(q)
	jw.writeFrame(d.geometry)
	jw.writeHuffman()
	jw.marker(0xDA, []byte{3, 1, 0x00, 2, 0x11, 3, 0x11, 0, 63, 0})
	for i := range d.mcus {
		for part := range d.mcus[i] {
			if err := jw.writeBlock(&d.mcus[i][part], componentOf(part)); err != nil {
				return fmt.Errorf("MCU %d: %w", i, err)
			}
		}
	}
	jw.flush()
	jw.marker(0xD9, nil)

	_, err := w.Write(jw.buf)
	return err
}

type jpegWriter struct {
	buf  []byte
	bits bitWriter
	pred [3]int32
}

// marker appends a marker and, for non-nil payloads, its length-prefixed
// segment.
func (jw *jpegWriter) marker(code byte, payload []byte) {
	jw.buf = append(jw.buf, 0xFF, code)
	if payload == nil {
		return
	}
	n := len(payload) + 2
	jw.buf = append(jw.buf, byte(n>>8), byte(n))
	jw.buf = append(jw.buf, payload...)
}

func (jw *jpegWriter) writeQuant(q *QuantTables) {
	seg := make([]byte, 0, 2*65)
	seg = append(seg, 0x00)
	seg = append(seg, q.Luma[:]...)
	seg = append(seg, 0x01)
	seg = append(seg, q.Chroma[:]...)
	jw.marker(0xDB, seg)
}

func (jw *jpegWriter) writeFrame(g Geometry) {
	jw.marker(0xC0, []byte{
		8,
		byte(g.Height >> 8), byte(g.Height),
		byte(g.Width >> 8), byte(g.Width),
		3,
		1, 0x22, 0,
		2, 0x11, 1,
		3, 0x11, 1,
	})
}

func (jw *jpegWriter) writeHuffman() {
	classes := [4]byte{
		tableLumaDC:   0x00,
		tableChromaDC: 0x01,
		tableLumaAC:   0x10,
		tableChromaAC: 0x11,
	}
	var seg []byte
	for i, s := range huffmanSpecs {
		seg = append(seg, classes[i])
		seg = append(seg, s.counts[:]...)
		seg = append(seg, s.values...)
	}
	jw.marker(0xC4, seg)
}

func (jw *jpegWriter) writeBlock(b *[64]int16, component int) error {
	dcTable, acTable := tablesFor(component)
	dc := int32(b[0])
	if err := jw.writeValue(dcTable, 0, dc-jw.pred[component]); err != nil {
		return err
	}
	jw.pred[component] = dc

	run := uint8(0)
	for k := 1; k < 64; k++ {
		if b[k] == 0 {
			run++
			continue
		}
		for run > 15 {
			if err := jw.writeValue(acTable, 15, 0); err != nil {
				return err
			}
			run -= 16
		}
		if err := jw.writeValue(acTable, run, int32(b[k])); err != nil {
			return err
		}
		run = 0
	}
	if run > 0 {
		return jw.writeValue(acTable, 0, 0)
	}
	return nil
}

func (jw *jpegWriter) writeValue(t *huffmanTable, run uint8, v int32) error {
	bits, size := magnitude(v)
	code, width, ok := t.lookup(run<<4 | size)
	if !ok {
		return fmt.Errorf("%w: coefficient %d out of range", ErrSyntax, v)
	}
	jw.bits.write(uint32(code), width)
	if size > 0 {
		jw.bits.write(bits, size)
	}
	jw.emit()
	return nil
}

// emit moves complete bytes to the output, stuffing a zero after 0xFF.
func (jw *jpegWriter) emit() {
	for {
		b, ok := jw.bits.pop()
		if !ok {
			return
		}
		jw.buf = append(jw.buf, b)
		if b == 0xFF {
			jw.buf = append(jw.buf, 0x00)
		}
	}
}

// flush pads the last byte of the scan with one bits.
func (jw *jpegWriter) flush() {
	if b, ok := jw.bits.flush(true); ok {
		jw.buf = append(jw.buf, b)
		if b == 0xFF {
			jw.buf = append(jw.buf, 0x00)
		}
	}
}
