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

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"io/ioutil"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TheCacophonyProject/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsphil/hadie/gps"
	"github.com/fsphil/hadie/recorder"
	"github.com/fsphil/hadie/ssdv"
	"github.com/fsphil/hadie/throttle"
)

type fakeCamera struct {
	picture []byte
	openErr error
	opened  int
	closed  int
	r       *bytes.Reader
}

func (c *fakeCamera) Open() error {
	if c.openErr != nil {
		return c.openErr
	}
	c.opened++
	c.r = bytes.NewReader(c.picture)
	return nil
}

func (c *fakeCamera) Read(p []byte) (int, error) {
	if c.r == nil {
		return 0, io.EOF
	}
	if len(p) > 100 {
		p = p[:100]
	}
	return c.r.Read(p)
}

func (c *fakeCamera) Close() error {
	c.closed++
	c.r = nil
	return nil
}

type fakeGPS struct {
	fix gps.Fix
	ok  bool
	age time.Duration
}

func (g *fakeGPS) Latest() (gps.Fix, bool) {
	return g.fix, g.ok
}

func (g *fakeGPS) Age() time.Duration {
	return g.age
}

type failingWriter struct {
	left int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.left == 0 {
		return 0, errors.New("radio failed")
	}
	w.left--
	return len(p), nil
}

func testPicture(t *testing.T) []byte {
	r := rand.New(rand.NewSource(3))
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(r.Intn(256)), uint8(x * 4), uint8(y * 5), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 50}))
	return buf.Bytes()
}

// hourWindow is open from 01:00 to 02:00 at the time now returns.
func hourWindow(t *testing.T, now func() time.Time) *window.Window {
	w, err := window.New("01:00", "02:00", 0, 0)
	require.NoError(t, err)
	w.Now = now
	return w
}

func newTestFlight(t *testing.T, camera imageSource, tx io.Writer) *Flight {
	conf := defaultConfig
	fixes := &fakeGPS{
		fix: gps.Fix{Hour: 12, Minute: 30, Second: 5, Latitude: 51.5, Longitude: -0.125, Altitude: 20123, Quality: 1, Satellites: 8},
		ok:  true,
	}
	return NewFlight(&conf, camera, fixes, tx, nil, alwaysOpen{})
}

// transmission is either a packet or a telemetry line, in the order sent.
type transmission struct {
	packet *ssdv.Packet
	line   string
}

func splitTransmissions(t *testing.T, b []byte) []transmission {
	var out []transmission
	for len(b) > 0 {
		if b[0] == 0x55 {
			require.True(t, len(b) >= ssdv.PacketSize, "short packet")
			p := new(ssdv.Packet)
			copy(p[:], b)
			out = append(out, transmission{packet: p})
			b = b[ssdv.PacketSize:]
			continue
		}
		require.True(t, bytes.HasPrefix(b, []byte("$$")), "unexpected byte %#x", b[0])
		i := bytes.IndexByte(b, '\n')
		require.True(t, i > 0, "unterminated line")
		out = append(out, transmission{line: string(b[:i+1])})
		b = b[i+1:]
	}
	return out
}

func stepUntil(t *testing.T, f *Flight, done func(Status) bool) {
	for i := 0; i < 1000; i++ {
		if done(f.Status()) {
			return
		}
		require.NoError(t, f.Step())
	}
	t.Fatal("flight made no progress")
}

func TestFlightSendsImage(t *testing.T) {
	camera := &fakeCamera{picture: testPicture(t)}
	var tx bytes.Buffer
	f := newTestFlight(t, camera, &tx)

	stepUntil(t, f, func(s Status) bool { return s.ImagesSent == 1 })
	assert.Equal(t, 1, camera.opened)
	assert.Equal(t, 1, camera.closed)

	d := ssdv.NewDecoder(nil)
	packets, sincePacket := 0, 0
	for i, tr := range splitTransmissions(t, tx.Bytes()) {
		if tr.packet == nil {
			assert.True(t, strings.HasPrefix(tr.line, "$$HADIE,"), tr.line)
			assert.Contains(t, tr.line, ",12:30:05,51.50000,-0.12500,20123,8,0,")
			if i > 0 {
				assert.Equal(t, defaultConfig.TelemetryEvery, sincePacket)
			}
			sincePacket = 0
			continue
		}
		require.NoError(t, d.Feed(tr.packet))
		packets++
		sincePacket++
	}
	assert.True(t, d.Complete())
	assert.Equal(t, packets, f.Status().Packets)
	assert.Equal(t, uint8(0), d.ImageID())
}

func TestImageIDsIncrement(t *testing.T) {
	camera := &fakeCamera{picture: testPicture(t)}
	var tx bytes.Buffer
	f := newTestFlight(t, camera, &tx)
	f.nextImageID = 255

	stepUntil(t, f, func(s Status) bool { return s.ImagesSent == 2 })

	var ids []uint8
	for _, tr := range splitTransmissions(t, tx.Bytes()) {
		if tr.packet == nil {
			continue
		}
		h, err := tr.packet.Header()
		require.NoError(t, err)
		if len(ids) == 0 || ids[len(ids)-1] != h.ImageID {
			ids = append(ids, h.ImageID)
		}
	}
	assert.Equal(t, []uint8{255, 0}, ids)
}

func TestCameraFailureRecovers(t *testing.T) {
	camera := &fakeCamera{picture: testPicture(t), openErr: errors.New("no sync")}
	var tx bytes.Buffer
	f := newTestFlight(t, camera, &tx)
	cycles := 0
	f.powerCycle = func() error {
		cycles++
		camera.openErr = nil
		return nil
	}

	err := f.Step()
	require.Error(t, err)
	assert.True(t, isImageErr(err))
	require.NoError(t, f.recoverImage(err))
	assert.Equal(t, 1, cycles)
	assert.Contains(t, tx.String(), "$$HADIE:taking picture: no sync\n")

	s := f.Status()
	assert.Equal(t, 1, s.ImagesFailed)
	assert.Equal(t, "taking picture: no sync", s.LastError)

	stepUntil(t, f, func(s Status) bool { return s.ImagesSent == 1 })
	assert.Equal(t, 1, f.Status().ImageID)
}

func TestTruncatedPicture(t *testing.T) {
	picture := testPicture(t)
	camera := &fakeCamera{picture: picture[:len(picture)/2]}
	f := newTestFlight(t, camera, ioutil.Discard)

	var err error
	for i := 0; i < 1000 && err == nil; i++ {
		err = f.Step()
	}
	require.Error(t, err)
	assert.True(t, isImageErr(err))
	assert.True(t, errors.Is(err, errImageTruncated), err)
	assert.Equal(t, 1, f.Status().ImagesFailed)
	assert.False(t, f.Status().Imaging)
	assert.Equal(t, 1, camera.closed)
}

func TestUnsupportedPicture(t *testing.T) {
	picture := testPicture(t)
	sof := bytes.Index(picture, []byte{0xFF, 0xC0})
	require.True(t, sof > 0)
	picture[sof+4] = 12
	f := newTestFlight(t, &fakeCamera{picture: picture}, ioutil.Discard)

	var err error
	for i := 0; i < 10 && err == nil; i++ {
		err = f.Step()
	}
	require.Error(t, err)
	assert.True(t, isImageErr(err))
	assert.True(t, errors.Is(err, ssdv.ErrUnsupported), err)
}

func TestWindowClosed(t *testing.T) {
	camera := &fakeCamera{picture: testPicture(t)}
	var tx bytes.Buffer
	f := newTestFlight(t, camera, &tx)
	f.window = hourWindow(t, func() time.Time { return mkTime(12, 0) })

	for i := 0; i < 3; i++ {
		require.NoError(t, f.Step())
	}
	assert.Equal(t, 0, camera.opened)
	assert.Equal(t, 3, strings.Count(tx.String(), "$$HADIE,"))
	assert.Equal(t, 3, f.Status().Telemetry)
}

func TestWindowClosesDuringImage(t *testing.T) {
	camera := &fakeCamera{picture: testPicture(t)}
	f := newTestFlight(t, camera, ioutil.Discard)
	now := mkTime(1, 30)
	f.window = hourWindow(t, func() time.Time { return now })

	require.NoError(t, f.Step())
	require.NoError(t, f.Step())
	require.True(t, f.Status().Imaging)

	now = mkTime(2, 30)
	require.NoError(t, f.Step())
	assert.False(t, f.Status().Imaging)
	assert.Equal(t, 1, camera.closed)
}

func TestSkipImage(t *testing.T) {
	camera := &fakeCamera{picture: testPicture(t)}
	var tx bytes.Buffer
	f := newTestFlight(t, camera, &tx)
	f.powerCycle = func() error {
		t.Fatal("skipping an image should not restart the camera")
		return nil
	}

	assert.False(t, f.SkipImage())
	require.NoError(t, f.Step())
	assert.True(t, f.SkipImage())

	err := f.Step()
	assert.True(t, errors.Is(err, errSkipped), err)
	require.NoError(t, f.recoverImage(err))
	assert.Contains(t, tx.String(), "$$HADIE:image skipped\n")

	stepUntil(t, f, func(s Status) bool { return s.ImagesSent == 1 })
}

func TestRecordsPackets(t *testing.T) {
	dir := t.TempDir()
	camera := &fakeCamera{picture: testPicture(t)}
	f := newTestFlight(t, camera, ioutil.Discard)
	f.recorder = recorder.NewFileRecorder(dir, 0)

	stepUntil(t, f, func(s Status) bool { return s.ImagesSent == 1 })

	matches, err := filepath.Glob(filepath.Join(dir, "*.img000.ssdv"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := ioutil.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, f.Status().Packets*ssdv.PacketSize, len(data))
}

func TestThrottledSpool(t *testing.T) {
	camera := &fakeCamera{picture: testPicture(t)}
	f := newTestFlight(t, camera, ioutil.Discard)
	f.recorder = throttle.NewThrottledRecorder(new(recorder.NoWriteRecorder), throttle.ThrottlerConfig{
		ApplyThrottling: true,
		BucketPackets:   2,
		MinPackets:      2,
		MinRefill:       1000 * time.Hour,
	}, f)

	stepUntil(t, f, func(s Status) bool { return s.ImagesSent == 1 })
	assert.Equal(t, 1, f.Status().Throttled)

	stepUntil(t, f, func(s Status) bool { return s.ImagesSent == 2 })
	assert.Equal(t, 2, f.Status().Throttled)
}

func TestRunStopsOnTransmitFailure(t *testing.T) {
	camera := &fakeCamera{openErr: errors.New("no sync")}
	f := newTestFlight(t, camera, &failingWriter{left: 5})
	cycles, notifies := 0, 0
	f.powerCycle = func() error {
		cycles++
		return nil
	}

	err := f.Run(func() { notifies++ })
	require.Error(t, err)
	assert.False(t, isImageErr(err))
	assert.Contains(t, err.Error(), "radio failed")
	assert.True(t, cycles > 0)
	assert.True(t, notifies > 0)
}

func TestStatusJSON(t *testing.T) {
	f := newTestFlight(t, &fakeCamera{picture: testPicture(t)}, ioutil.Discard)
	f.gps.(*fakeGPS).age = 2500 * time.Millisecond
	require.NoError(t, f.Step())

	s := &flightService{flight: f}
	out, derr := s.Status()
	require.Nil(t, derr)

	var status Status
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Imaging)
	assert.True(t, status.HaveFix)
	assert.Equal(t, 8, status.Fix.Satellites)
	assert.Equal(t, 2.5, status.FixAge)
	assert.Equal(t, 1, status.Telemetry)
	assert.Contains(t, out, `"fix-age":2.5`)

	assert.Nil(t, s.SkipImage())
}

func mkTime(hour, minute int) time.Time {
	return time.Date(1, 1, 1, hour, minute, 0, 0, time.Local)
}
