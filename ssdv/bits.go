// Copyright 2026 The hadie Authors. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package ssdv

import "math/bits"

// bitReader buffers entropy-coded bits, most significant bit first. At
// most 32 bits are held; callers push a byte only after a lookup has
// asked for more, which keeps the buffer below that.
type bitReader struct {
	bits uint32
	n    uint8
}

func (r *bitReader) push(b byte) {
	r.bits = r.bits<<8 | uint32(b)
	r.n += 8
}

// peek returns the next n buffered bits. n must not exceed r.n.
func (r *bitReader) peek(n uint8) uint32 {
	return (r.bits >> (r.n - n)) & (1<<n - 1)
}

func (r *bitReader) skip(n uint8) {
	r.n -= n
	r.bits &= 1<<r.n - 1
}

func (r *bitReader) reset() {
	r.bits, r.n = 0, 0
}

// bitWriter collects output bits most significant bit first and hands
// them back a byte at a time.
type bitWriter struct {
	bits uint64
	n    uint8
}

func (w *bitWriter) write(v uint32, n uint8) {
	w.bits = w.bits<<n | uint64(v)&(1<<n-1)
	w.n += n
}

// pop returns the next complete byte.
func (w *bitWriter) pop() (byte, bool) {
	if w.n < 8 {
		return 0, false
	}
	w.n -= 8
	b := byte(w.bits >> w.n)
	w.bits &= 1<<w.n - 1
	return b, true
}

// flush returns the remaining bits as a byte padded with pad bits.
func (w *bitWriter) flush(pad bool) (byte, bool) {
	if w.n == 0 {
		return 0, false
	}
	fill := 8 - w.n
	b := byte(w.bits << fill)
	if pad {
		b |= byte(1<<fill - 1)
	}
	w.bits, w.n = 0, 0
	return b, true
}

// extend converts a size-bit magnitude code into a signed coefficient
// (T.81 F.2.2.1).
func extend(v uint32, size uint8) int32 {
	if size == 0 {
		return 0
	}
	if v < 1<<(size-1) {
		return int32(v) - (1 << size) + 1
	}
	return int32(v)
}

// magnitude is the inverse of extend: the size category of v and the
// size low bits that encode it.
func magnitude(v int32) (code uint32, size uint8) {
	a := v
	if a < 0 {
		a = -a
		v--
	}
	size = uint8(bits.Len32(uint32(a)))
	return uint32(v) & (1<<size - 1), size
}
