// Copyright 2026 The hadie Authors. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package ssdv

// marker is the class of a JPEG marker code, which decides how the
// parser treats what follows it.
type marker int

const (
	markerNone        marker = iota // fill byte, stuffing or reserved code
	markerStandalone                // SOI, RSTn, TEM: no length field
	markerEOI                       // end of image
	markerSOF0                      // baseline frame header
	markerSOS                       // start of scan
	markerUnsupported               // any other SOFn, or DAC
	markerSegment                   // length-prefixed segment that is skipped
)

func classifyMarker(code byte) marker {
	switch {
	case code == 0x00 || code == 0xFF:
		return markerNone
	case code == 0x01 || (code >= 0xD0 && code <= 0xD8):
		return markerStandalone
	case code == 0xD9:
		return markerEOI
	case code == 0xC0:
		return markerSOF0
	case code == 0xDA:
		return markerSOS
	case code == 0xC4 || code == 0xC8:
		return markerSegment
	case code >= 0xC1 && code <= 0xCF:
		return markerUnsupported
	case code >= 0xDB:
		return markerSegment
	}
	return markerNone
}
