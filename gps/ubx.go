// hadie - high altitude balloon imaging payload
//  Copyright (C) 2026, The hadie Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package gps

import (
	"errors"
	"io"
	"time"
)

const (
	ubxSync1 = 0xB5
	ubxSync2 = 0x62

	classACK = 0x05
	idACK    = 0x01
	idNAK    = 0x00
	classCFG = 0x06
	idNAV5   = 0x24

	maxUBXPayload = 64
)

var (
	ErrNoAck = errors.New("gps: no acknowledgement from receiver")
	ErrNAK   = errors.New("gps: receiver rejected configuration")
)

// CFG-NAV5 with dynamic model 6 (airborne, below 1g), which keeps the
// receiver working above 18km.
var airborneNAV5 = []byte{
	0xFF, 0xFF, 0x06, 0x03, 0x00, 0x00, 0x00, 0x00,
	0x10, 0x27, 0x00, 0x00, 0x05, 0x00, 0xFA, 0x00,
	0xFA, 0x00, 0x64, 0x00, 0x2C, 0x01, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

func fletcher(p []byte) (a, b byte) {
	for _, c := range p {
		a += c
		b += a
	}
	return a, b
}

func ubxFrame(class, id byte, payload []byte) []byte {
	f := []byte{ubxSync1, ubxSync2, class, id, byte(len(payload)), byte(len(payload) >> 8)}
	f = append(f, payload...)
	a, b := fletcher(f[2:])
	return append(f, a, b)
}

// ubxScanner picks UBX frames out of a byte stream that also carries NMEA.
type ubxScanner struct {
	buf []byte
}

func (s *ubxScanner) feed(b byte) (class, id byte, payload []byte, ok bool) {
	s.buf = append(s.buf, b)
	switch len(s.buf) {
	case 1:
		if b != ubxSync1 {
			s.buf = s.buf[:0]
		}
		return
	case 2:
		if b != ubxSync2 {
			s.buf = s.buf[:0]
			if b == ubxSync1 {
				s.buf = append(s.buf, b)
			}
		}
		return
	}
	if len(s.buf) < 6 {
		return
	}
	n := int(s.buf[4]) | int(s.buf[5])<<8
	if n > maxUBXPayload {
		s.buf = s.buf[:0]
		return
	}
	if len(s.buf) < 8+n {
		return
	}
	frame := s.buf
	s.buf = nil
	a, ck := fletcher(frame[2 : 6+n])
	if a != frame[6+n] || ck != frame[7+n] {
		return
	}
	return frame[2], frame[3], frame[6 : 6+n], true
}

// SetAirborne puts a u-blox receiver into its airborne dynamic model and
// waits up to timeout for it to acknowledge. Call it before anything
// else reads from rw.
func SetAirborne(rw io.ReadWriter, timeout time.Duration) error {
	if _, err := rw.Write(ubxFrame(classCFG, idNAV5, airborneNAV5)); err != nil {
		return err
	}

	var s ubxScanner
	buf := make([]byte, 64)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		n, err := rw.Read(buf)
		if err != nil && err != io.EOF {
			return err
		}
		for _, b := range buf[:n] {
			class, id, payload, ok := s.feed(b)
			if !ok || class != classACK || len(payload) != 2 {
				continue
			}
			if payload[0] != classCFG || payload[1] != idNAV5 {
				continue
			}
			if id == idNAK {
				return ErrNAK
			}
			if id == idACK {
				return nil
			}
		}
	}
	return ErrNoAck
}
