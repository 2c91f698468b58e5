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

// Package telemetry formats the UKHAS style telemetry lines sent between
// image packets.
package telemetry

import (
	"fmt"
	"strings"

	"github.com/fsphil/hadie/gps"
	"github.com/sigurn/crc16"
)

// Sentence is one telemetry report.
type Sentence struct {
	Callsign string
	Count    int
	Fix      gps.Fix
	ImageID  int
	Packet   int
}

// String renders the sentence as
// $$CALL,count,HH:MM:SS,lat,lon,alt,sats,image,packet*CRC followed by a
// newline, where CRC is CRC16 of the text between "$$" and "*".
func (s Sentence) String() string {
	f := s.Fix
	body := fmt.Sprintf("%s,%d,%02d:%02d:%02d,%.5f,%.5f,%d,%d,%d,%d",
		s.Callsign, s.Count,
		f.Hour, f.Minute, f.Second,
		f.Latitude, f.Longitude, int(f.Altitude), f.Satellites,
		s.ImageID, s.Packet)
	return fmt.Sprintf("$$%s*%04X\n", body, CRC16(body))
}

// Message is a free text status line, used to report faults.
func Message(callsign, text string) string {
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, text)
	return fmt.Sprintf("$$%s:%s\n", callsign, text)
}

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// CRC16 is CRC-16/CCITT-FALSE: polynomial 0x1021, initial value 0xFFFF.
func CRC16(s string) uint16 {
	return crc16.Checksum([]byte(s), crcTable)
}
