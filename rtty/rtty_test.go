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

package rtty

import (
	"errors"
	"testing"
	"time"

	"github.com/juju/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/periph/conn/gpio"
)

// recordingPin remembers every level it is set to, and when.
type recordingPin struct {
	clock  *testClock
	levels []gpio.Level
	times  []time.Duration
	failAt int
}

func (p *recordingPin) Out(l gpio.Level) error {
	if p.failAt > 0 && len(p.levels) == p.failAt {
		return errors.New("pin failure")
	}
	p.levels = append(p.levels, l)
	if p.clock != nil {
		p.times = append(p.times, p.clock.now.Sub(time.Time{}))
	}
	return nil
}

func bits(s string) []gpio.Level {
	var levels []gpio.Level
	for _, c := range s {
		levels = append(levels, c == '1')
	}
	return levels
}

func TestByteFraming(t *testing.T) {
	clock := new(testClock)
	data := &recordingPin{clock: clock}
	tx, err := NewWithClock(data, nil, 50, clock)
	require.NoError(t, err)

	n, err := tx.Write([]byte{'A'})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Idle, start, 0x41 LSB first, two stops.
	assert.Equal(t, bits("1"+"0"+"10000010"+"11"), data.levels)
}

func TestBitTiming(t *testing.T) {
	clock := new(testClock)
	data := &recordingPin{clock: clock}
	tx, err := NewWithClock(data, nil, 100, clock)
	require.NoError(t, err)

	_, err = tx.Write([]byte("hi"))
	require.NoError(t, err)

	require.Len(t, data.times, 1+2*11)
	for i := 2; i < len(data.times); i++ {
		assert.Equal(t, 10*time.Millisecond, data.times[i]-data.times[i-1], "bit %d", i)
	}
}

func TestEnable(t *testing.T) {
	enable := new(recordingPin)
	tx, err := NewWithClock(new(recordingPin), enable, 300, new(testClock))
	require.NoError(t, err)

	require.NoError(t, tx.Enable(true))
	require.NoError(t, tx.Enable(false))
	assert.Equal(t, []gpio.Level{gpio.High, gpio.Low}, enable.levels)

	noEnable, err := NewWithClock(new(recordingPin), nil, 300, new(testClock))
	require.NoError(t, err)
	assert.NoError(t, noEnable.Enable(true))
}

func TestPinFailure(t *testing.T) {
	data := &recordingPin{failAt: 15}
	tx, err := NewWithClock(data, nil, 300, new(testClock))
	require.NoError(t, err)

	n, err := tx.Write([]byte("abc"))
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestBadBaud(t *testing.T) {
	_, err := NewWithClock(new(recordingPin), nil, 0, new(testClock))
	assert.Error(t, err)
}

var _ ratelimit.Clock = new(realClock)
var _ ratelimit.Clock = new(testClock)

// testClock implements a fake ratelimit.Clock for testing.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
}
