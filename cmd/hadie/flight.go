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
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/fsphil/hadie/gps"
	"github.com/fsphil/hadie/loglimiter"
	"github.com/fsphil/hadie/recorder"
	"github.com/fsphil/hadie/ssdv"
	"github.com/fsphil/hadie/telemetry"
)

const readSize = 256

// imageSource takes a picture on Open and returns its JPEG bytes through
// Read until io.EOF.
type imageSource interface {
	Open() error
	Read(p []byte) (int, error)
	Close() error
}

type fixSource interface {
	Latest() (gps.Fix, bool)
	Age() time.Duration
}

// activeWindow reports whether images may be sent now.
type activeWindow interface {
	Active() bool
}

// imageErr marks a failure which loses the current image but which the
// flight can recover from by restarting the camera.
type imageErr struct {
	cause error
}

func (e *imageErr) Error() string {
	return e.cause.Error()
}

func (e *imageErr) Unwrap() error {
	return e.cause
}

var (
	errImageTruncated = errors.New("image ended before end of image marker")
	errSkipped        = errors.New("image skipped")
)

// Status is a snapshot of the flight for the D-Bus service.
type Status struct {
	Imaging      bool    `json:"imaging"`
	ImageID      int     `json:"image-id"`
	Packets      int     `json:"packets"`
	ImagesSent   int     `json:"images-sent"`
	ImagesFailed int     `json:"images-failed"`
	Telemetry    int     `json:"telemetry"`
	Throttled    int     `json:"spool-throttled"`
	LastError    string  `json:"last-error,omitempty"`
	Fix          gps.Fix `json:"fix"`
	HaveFix      bool    `json:"have-fix"`
	FixAge       float64 `json:"fix-age"` // seconds since the last fix
}

// Flight interleaves SSDV image packets and telemetry on one transmitter.
type Flight struct {
	callsign       string
	telemetryEvery int

	camera     imageSource
	gps        fixSource
	tx         io.Writer
	recorder   recorder.Recorder
	window     activeWindow
	powerCycle func() error
	logLimiter *loglimiter.LogLimiter

	enc            *ssdv.Encoder
	pkt            ssdv.Packet
	buf            []byte
	nextImageID    uint8
	imageID        uint8
	sinceTelemetry int
	count          int
	recording      bool

	mu     sync.Mutex
	status Status
	skip   bool
}

func NewFlight(conf *Config, camera imageSource, fixes fixSource, tx io.Writer, rec recorder.Recorder, w activeWindow) *Flight {
	if rec == nil {
		rec = new(recorder.NoWriteRecorder)
	}
	return &Flight{
		callsign:       conf.Callsign,
		telemetryEvery: conf.TelemetryEvery,
		camera:         camera,
		gps:            fixes,
		tx:             tx,
		recorder:       rec,
		window:         w,
		powerCycle:     func() error { return nil },
		logLimiter:     loglimiter.New(logInterval),
		buf:            make([]byte, readSize),
	}
}

// Run steps the flight forever. Only transmitter failures end it.
func (f *Flight) Run(notify func()) error {
	for {
		if err := f.Step(); err != nil {
			if !isImageErr(err) {
				return err
			}
			if err := f.recoverImage(err); err != nil {
				return err
			}
		}
		notify()
	}
}

func isImageErr(err error) bool {
	var ie *imageErr
	return errors.As(err, &ie)
}

// Step sends one packet: either telemetry or the next packet of the
// current image. Every telemetryEvery image packets, and whenever no
// image is in progress, a telemetry sentence goes out as well.
func (f *Flight) Step() error {
	if f.enc == nil {
		if err := f.sendTelemetry(); err != nil {
			return err
		}
		if !f.window.Active() {
			return nil
		}
		return f.startImage()
	}

	if f.takeSkip() {
		f.abortImage()
		return &imageErr{errSkipped}
	}
	if !f.window.Active() {
		log.Print("imaging window closed")
		f.abortImage()
		return nil
	}

	res, err := f.nextPacket()
	if err != nil {
		f.abortImage()
		return err
	}
	if err := f.sendPacket(); err != nil {
		return err
	}
	if res == ssdv.EndOfImage {
		f.endImage()
	}
	if f.sinceTelemetry >= f.telemetryEvery {
		return f.sendTelemetry()
	}
	return nil
}

func (f *Flight) startImage() error {
	f.imageID = f.nextImageID
	f.nextImageID++
	f.updateStatus(func(s *Status) {
		s.ImageID = int(f.imageID)
		s.Packets = 0
	})

	if err := f.camera.Open(); err != nil {
		f.failImage()
		return &imageErr{fmt.Errorf("taking picture: %w", err)}
	}
	f.enc = ssdv.NewEncoder(f.imageID, nil)
	f.sinceTelemetry = 0
	f.startRecording()
	f.updateStatus(func(s *Status) { s.Imaging = true })
	log.Printf("image %d started", f.imageID)
	return nil
}

// nextPacket pulls camera data into the encoder until a packet is ready.
func (f *Flight) nextPacket() (ssdv.Result, error) {
	for {
		res, err := f.enc.NextPacket(&f.pkt)
		if err != nil {
			return res, &imageErr{fmt.Errorf("encoding image %d: %w", f.imageID, err)}
		}
		if res != ssdv.NeedInput {
			return res, nil
		}

		n, err := f.camera.Read(f.buf)
		if err != nil && err != io.EOF {
			return res, &imageErr{fmt.Errorf("reading image %d: %w", f.imageID, err)}
		}
		if n == 0 {
			if err == io.EOF {
				return res, &imageErr{errImageTruncated}
			}
			continue
		}
		if err := f.enc.Feed(f.buf[:n]); err != nil {
			return res, &imageErr{err}
		}
	}
}

func (f *Flight) sendPacket() error {
	if _, err := f.tx.Write(f.pkt[:]); err != nil {
		return fmt.Errorf("transmitting packet: %w", err)
	}
	if f.recording {
		if err := f.recorder.WritePacket(&f.pkt); err != nil {
			f.logLimiter.Printf("recorder: %v", err)
		}
	}
	f.sinceTelemetry++
	f.updateStatus(func(s *Status) { s.Packets++ })
	return nil
}

func (f *Flight) endImage() {
	log.Printf("image %d sent in %d packets", f.imageID, f.enc.Packets())
	f.closeImage()
	f.stopRecording()
	f.updateStatus(func(s *Status) {
		s.Imaging = false
		s.ImagesSent++
		f.skip = false
	})
}

func (f *Flight) abortImage() {
	f.closeImage()
	f.stopRecording()
	f.failImage()
}

// Packets are always transmitted; a recorder failure only costs the
// local copy.
func (f *Flight) startRecording() {
	if err := f.recorder.CheckCanRecord(); err != nil {
		f.logLimiter.Printf("not recording image %d: %v", f.imageID, err)
		return
	}
	if err := f.recorder.StartImage(f.imageID); err != nil {
		f.logLimiter.Printf("recorder: %v", err)
		return
	}
	f.recording = true
}

func (f *Flight) stopRecording() {
	if !f.recording {
		return
	}
	f.recording = false
	if err := f.recorder.StopImage(); err != nil {
		f.logLimiter.Printf("recorder: %v", err)
	}
}

func (f *Flight) closeImage() {
	f.enc = nil
	if err := f.camera.Close(); err != nil {
		f.logLimiter.Printf("closing camera: %v", err)
	}
}

func (f *Flight) failImage() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Imaging = false
	f.status.ImagesFailed++
	f.skip = false
}

func (f *Flight) sendTelemetry() error {
	fix, _ := f.gps.Latest()
	f.count++
	s := telemetry.Sentence{
		Callsign: f.callsign,
		Count:    f.count,
		Fix:      fix,
		ImageID:  int(f.imageID),
		Packet:   0,
	}
	if f.enc != nil {
		s.Packet = f.enc.Packets()
	}
	if _, err := io.WriteString(f.tx, s.String()); err != nil {
		return fmt.Errorf("transmitting telemetry: %w", err)
	}
	f.sinceTelemetry = 0
	f.updateStatus(func(s *Status) { s.Telemetry++ })
	return nil
}

// recoverImage reports a lost image over the radio and restarts the
// camera.
func (f *Flight) recoverImage(cause error) error {
	f.logLimiter.Printf("image error: %v", cause)
	f.updateStatus(func(s *Status) { s.LastError = cause.Error() })
	if _, err := io.WriteString(f.tx, telemetry.Message(f.callsign, cause.Error())); err != nil {
		return fmt.Errorf("transmitting message: %w", err)
	}
	if errors.Is(cause, errSkipped) {
		return nil
	}
	if err := f.powerCycle(); err != nil {
		f.logLimiter.Printf("camera power cycle: %v", err)
	}
	return nil
}

// WhenThrottled counts images the spool recorder skipped.
func (f *Flight) WhenThrottled() {
	f.updateStatus(func(s *Status) { s.Throttled++ })
}

// Status returns a copy of the current flight status.
func (f *Flight) Status() Status {
	fix, ok := f.gps.Latest()
	age := f.gps.Age()
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.status
	s.Fix, s.HaveFix = fix, ok
	s.FixAge = age.Seconds()
	return s
}

// SkipImage abandons the image in progress at the next step. It reports
// false when no image is in progress.
func (f *Flight) SkipImage() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.status.Imaging {
		return false
	}
	f.skip = true
	return true
}

func (f *Flight) takeSkip() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	skip := f.skip
	f.skip = false
	return skip
}

func (f *Flight) updateStatus(fn func(*Status)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.status)
}
