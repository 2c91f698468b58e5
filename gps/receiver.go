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
	"sync"
	"time"
)

// Receiver assembles NMEA sentences from the receiver's serial output and
// keeps the most recent GGA fix. Bytes are written by one goroutine,
// usually an io.Copy from the port; Latest may be called from any other.
type Receiver struct {
	mu      sync.Mutex
	fix     Fix
	have    bool
	updated time.Time
	now     func() time.Time

	line []byte
}

func NewReceiver() *Receiver {
	return &Receiver{
		line: make([]byte, 0, MaxSentence),
		now:  time.Now,
	}
}

// Write consumes receiver output. It never fails.
func (r *Receiver) Write(p []byte) (int, error) {
	for _, b := range p {
		r.feed(b)
	}
	return len(p), nil
}

func (r *Receiver) feed(b byte) {
	switch {
	case b == '$':
		r.line = append(r.line[:0], b)
	case len(r.line) == 0:
	case b == '\r' || b == '\n':
		r.sentence(string(r.line))
		r.line = r.line[:0]
	case len(r.line) >= MaxSentence:
		r.line = r.line[:0]
	default:
		r.line = append(r.line, b)
	}
}

func (r *Receiver) sentence(raw string) {
	fix, err := ParseGGA(raw)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fix = fix
	r.have = true
	r.updated = r.now()
}

// Latest returns the last GGA fix received and whether there has been one.
func (r *Receiver) Latest() (Fix, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fix, r.have
}

// Age returns how long ago the last fix arrived.
func (r *Receiver) Age() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.have {
		return 0
	}
	return r.now().Sub(r.updated)
}
