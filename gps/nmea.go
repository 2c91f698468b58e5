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

// Package gps reads position fixes from an NMEA receiver and configures
// u-blox receivers for high altitude flight.
package gps

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/adrianmo/go-nmea"
)

// MaxSentence is the longest NMEA sentence, without the CR LF.
const MaxSentence = 82

var ErrNotGGA = errors.New("gps: not a GGA sentence")

// Fix is a position report from a GGA sentence.
type Fix struct {
	Hour       int
	Minute     int
	Second     int
	Latitude   float64 // degrees, negative south
	Longitude  float64 // degrees, negative west
	Altitude   float64 // metres above mean sea level
	Quality    int     // 0 means no fix
	Satellites int
}

// Valid reports whether the receiver had a position.
func (f Fix) Valid() bool {
	return f.Quality > 0
}

// ParseGGA decodes a whole sentence, from the '$' up to and including the
// checksum. Sentences of any other type return ErrNotGGA.
func ParseGGA(raw string) (Fix, error) {
	s, err := nmea.Parse(raw)
	if err != nil {
		return Fix{}, fmt.Errorf("gps: %w", err)
	}
	gga, ok := s.(nmea.GGA)
	if !ok {
		return Fix{}, ErrNotGGA
	}
	quality, err := strconv.Atoi(gga.FixQuality)
	if err != nil {
		return Fix{}, fmt.Errorf("gps: bad fix quality %q", gga.FixQuality)
	}
	return Fix{
		Hour:       gga.Time.Hour,
		Minute:     gga.Time.Minute,
		Second:     gga.Time.Second,
		Latitude:   gga.Latitude,
		Longitude:  gga.Longitude,
		Altitude:   gga.Altitude,
		Quality:    quality,
		Satellites: int(gga.NumSatellites),
	}, nil
}
