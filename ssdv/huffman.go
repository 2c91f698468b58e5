// Copyright 2026 The hadie Authors. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package ssdv

// huffmanSpec is a Huffman table as it appears in a DHT segment: the
// number of codes of each length from 1 to 16 bits, then the symbols in
// code order.
type huffmanSpec struct {
	counts [16]byte
	values []byte
}

const (
	tableLumaDC = iota
	tableChromaDC
	tableLumaAC
	tableChromaAC
)

// The JPEG standard (Annex K.3) tables. The camera and the SSDV stream
// both use these; DHT segments in the source image are not read.
var huffmanSpecs = [4]huffmanSpec{
	tableLumaDC: {
		counts: [16]byte{0, 1, 5, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0},
		values: []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B},
	},
	tableChromaDC: {
		counts: [16]byte{0, 3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0},
		values: []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B},
	},
	tableLumaAC: {
		counts: [16]byte{0, 2, 1, 3, 3, 2, 4, 3, 5, 5, 4, 4, 0, 0, 1, 0x7D},
		values: []byte{
			0x01, 0x02, 0x03, 0x00, 0x04, 0x11, 0x05, 0x12, 0x21, 0x31, 0x41, 0x06, 0x13, 0x51, 0x61,
			0x07, 0x22, 0x71, 0x14, 0x32, 0x81, 0x91, 0xA1, 0x08, 0x23, 0x42, 0xB1, 0xC1, 0x15, 0x52, 0xD1,
			0xF0, 0x24, 0x33, 0x62, 0x72, 0x82, 0x09, 0x0A, 0x16, 0x17, 0x18, 0x19, 0x1A, 0x25, 0x26, 0x27,
			0x28, 0x29, 0x2A, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39, 0x3A, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48,
			0x49, 0x4A, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59, 0x5A, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68,
			0x69, 0x6A, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79, 0x7A, 0x83, 0x84, 0x85, 0x86, 0x87, 0x88,
			0x89, 0x8A, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98, 0x99, 0x9A, 0xA2, 0xA3, 0xA4, 0xA5, 0xA6,
			0xA7, 0xA8, 0xA9, 0xAA, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, 0xB7, 0xB8, 0xB9, 0xBA, 0xC2, 0xC3, 0xC4,
			0xC5, 0xC6, 0xC7, 0xC8, 0xC9, 0xCA, 0xD2, 0xD3, 0xD4, 0xD5, 0xD6, 0xD7, 0xD8, 0xD9, 0xDA, 0xE1,
			0xE2, 0xE3, 0xE4, 0xE5, 0xE6, 0xE7, 0xE8, 0xE9, 0xEA, 0xF1, 0xF2, 0xF3, 0xF4, 0xF5, 0xF6, 0xF7,
			0xF8, 0xF9, 0xFA,
		},
	},
	tableChromaAC: {
		counts: [16]byte{0, 2, 1, 2, 4, 4, 3, 4, 7, 5, 4, 4, 0, 1, 2, 0x77},
		values: []byte{
			0x00, 0x01, 0x02, 0x03, 0x11, 0x04, 0x05, 0x21, 0x31, 0x06, 0x12, 0x41, 0x51, 0x07, 0x61,
			0x71, 0x13, 0x22, 0x32, 0x81, 0x08, 0x14, 0x42, 0x91, 0xA1, 0xB1, 0xC1, 0x09, 0x23, 0x33, 0x52,
			0xF0, 0x15, 0x62, 0x72, 0xD1, 0x0A, 0x16, 0x24, 0x34, 0xE1, 0x25, 0xF1, 0x17, 0x18, 0x19, 0x1A,
			0x26, 0x27, 0x28, 0x29, 0x2A, 0x35, 0x36, 0x37, 0x38, 0x39, 0x3A, 0x43, 0x44, 0x45, 0x46, 0x47,
			0x48, 0x49, 0x4A, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59, 0x5A, 0x63, 0x64, 0x65, 0x66, 0x67,
			0x68, 0x69, 0x6A, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79, 0x7A, 0x82, 0x83, 0x84, 0x85, 0x86,
			0x87, 0x88, 0x89, 0x8A, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98, 0x99, 0x9A, 0xA2, 0xA3, 0xA4,
			0xA5, 0xA6, 0xA7, 0xA8, 0xA9, 0xAA, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, 0xB7, 0xB8, 0xB9, 0xBA, 0xC2,
			0xC3, 0xC4, 0xC5, 0xC6, 0xC7, 0xC8, 0xC9, 0xCA, 0xD2, 0xD3, 0xD4, 0xD5, 0xD6, 0xD7, 0xD8, 0xD9,
			0xDA, 0xE2, 0xE3, 0xE4, 0xE5, 0xE6, 0xE7, 0xE8, 0xE9, 0xEA, 0xF2, 0xF3, 0xF4, 0xF5, 0xF6, 0xF7,
			0xF8, 0xF9, 0xFA,
		},
	},
}

// huffmanTables are built once from huffmanSpecs and only read after that.
var huffmanTables = buildHuffmanTables()

func buildHuffmanTables() (tables [4]*huffmanTable) {
	for i := range huffmanSpecs {
		tables[i] = newHuffmanTable(&huffmanSpecs[i])
	}
	return tables
}

// tablesFor returns the DC and AC tables used by a component.
func tablesFor(component int) (dc, ac *huffmanTable) {
	if component == 0 {
		return huffmanTables[tableLumaDC], huffmanTables[tableLumaAC]
	}
	return huffmanTables[tableChromaDC], huffmanTables[tableChromaAC]
}

type lookup int

const (
	lookupOK lookup = iota
	lookupMore
	lookupNoMatch
)

// huffmanTable holds a canonical code in both directions. Decoding uses
// the maxcode/valptr scheme of ITU T.81 F.2.2.3.
type huffmanTable struct {
	spec    *huffmanSpec
	minCode [17]int32
	maxCode [17]int32 // -1 when there are no codes of that length
	valPtr  [17]int32

	code  [256]uint16
	width [256]uint8 // 0 for symbols without a code
}

func newHuffmanTable(s *huffmanSpec) *huffmanTable {
	t := &huffmanTable{spec: s}
	code, k := int32(0), int32(0)
	for l := 1; l <= 16; l++ {
		n := int32(s.counts[l-1])
		if n == 0 {
			t.maxCode[l] = -1
		} else {
			t.valPtr[l] = k
			t.minCode[l] = code
			for i := int32(0); i < n; i++ {
				sym := s.values[k+i]
				t.code[sym] = uint16(code + i)
				t.width[sym] = uint8(l)
			}
			code += n
			k += n
			t.maxCode[l] = code - 1
		}
		code <<= 1
	}
	return t
}

// decode matches a code at the head of r without consuming it. The
// caller skips width bits on lookupOK. lookupMore is only returned when
// every code that could still match is longer than the buffered bits.
func (t *huffmanTable) decode(r *bitReader) (symbol byte, width uint8, res lookup) {
	for l := uint8(1); l <= 16; l++ {
		if l > r.n {
			return 0, 0, lookupMore
		}
		code := int32(r.peek(l))
		if code <= t.maxCode[l] {
			return t.spec.values[t.valPtr[l]+code-t.minCode[l]], l, lookupOK
		}
	}
	return 0, 0, lookupNoMatch
}

// lookup returns the code for symbol.
func (t *huffmanTable) lookup(symbol byte) (code uint16, width uint8, ok bool) {
	w := t.width[symbol]
	return t.code[symbol], w, w != 0
}
