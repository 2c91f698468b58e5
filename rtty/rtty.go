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

// Package rtty sends bytes as asynchronous serial (RTTY) by keying a
// radio's FSK input from a GPIO pin.
package rtty

import (
	"errors"
	"time"

	"github.com/juju/ratelimit"
	"periph.io/x/periph/conn/gpio"
)

// Pin is the part of a GPIO pin the transmitter drives.
type Pin interface {
	Out(l gpio.Level) error
}

// Mark (high) is the idle level; a byte is a space start bit, eight data
// bits least significant first, and StopBits of mark.
const (
	Mark  = gpio.High
	Space = gpio.Low

	DefaultStopBits = 2
)

// Transmitter is an io.Writer that bit-bangs its input on a data pin.
type Transmitter struct {
	data     Pin
	enable   Pin
	bucket   *ratelimit.Bucket
	stopBits int
}

// New returns a transmitter running at baud. enable keys the radio and
// may be nil.
func New(data, enable Pin, baud float64) (*Transmitter, error) {
	return NewWithClock(data, enable, baud, new(realClock))
}

// NewWithClock is New with a custom clock for bit timing.
func NewWithClock(data, enable Pin, baud float64, clock ratelimit.Clock) (*Transmitter, error) {
	if baud <= 0 {
		return nil, errors.New("rtty: baud rate must be positive")
	}
	t := &Transmitter{
		data:     data,
		enable:   enable,
		bucket:   ratelimit.NewBucketWithRateAndClock(baud, 1, clock),
		stopBits: DefaultStopBits,
	}
	if err := data.Out(Mark); err != nil {
		return nil, err
	}
	return t, nil
}

// SetStopBits changes the number of stop bits sent after each byte.
func (t *Transmitter) SetStopBits(n int) {
	t.stopBits = n
}

// Enable switches the radio on or off.
func (t *Transmitter) Enable(on bool) error {
	if t.enable == nil {
		return nil
	}
	return t.enable.Out(gpio.Level(on))
}

// Write sends p, blocking for as long as that takes at the baud rate.
func (t *Transmitter) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := t.writeByte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

func (t *Transmitter) writeByte(b byte) error {
	if err := t.bit(Space); err != nil {
		return err
	}
	for i := 0; i < 8; i++ {
		if err := t.bit(gpio.Level(b&1 == 1)); err != nil {
			return err
		}
		b >>= 1
	}
	for i := 0; i < t.stopBits; i++ {
		if err := t.bit(Mark); err != nil {
			return err
		}
	}
	return nil
}

// bit holds off until the previous bit has had its full period.
func (t *Transmitter) bit(l gpio.Level) error {
	t.bucket.Wait(1)
	return t.data.Out(l)
}

type realClock struct{}

func (*realClock) Now() time.Time {
	return time.Now()
}

func (*realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
