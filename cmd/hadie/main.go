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
	"fmt"
	"io"
	"log"
	"os"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"
	"periph.io/x/periph/host"

	"github.com/fsphil/hadie/c328"
	"github.com/fsphil/hadie/filecam"
	"github.com/fsphil/hadie/gps"
	"github.com/fsphil/hadie/recorder"
	"github.com/fsphil/hadie/rtty"
	"github.com/fsphil/hadie/throttle"
)

const (
	stepsPerSdNotify = 4
	logInterval      = time.Minute

	cameraReadTimeout = 50 * time.Millisecond
	gpsReadTimeout    = 500 * time.Millisecond
	airborneTimeout   = 3 * time.Second
	airborneAttempts  = 5
)

var version = "<not set>"

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to configuration file"`
	Quick      bool   `arg:"-q,--quick" help:"don't cycle camera power on startup"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/hadie.yaml"
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()
	if !args.Timestamps {
		log.SetFlags(0) // Removes default timestamp flag
	}

	log.Printf("version: %s", version)
	conf, err := ParseConfigFile(args.ConfigFile)
	if err != nil {
		return err
	}
	logConfig(conf)

	if err := os.MkdirAll(conf.SpoolDir, 0755); err != nil {
		return err
	}
	log.Print("deleting temp files")
	if err := recorder.DeleteTempFiles(conf.SpoolDir); err != nil {
		return err
	}

	log.Print("host initialisation")
	if _, err := host.Init(); err != nil {
		return err
	}

	tx, err := openRadio(conf.Radio)
	if err != nil {
		return err
	}
	defer tx.Enable(false)

	fixes, err := startGPS(conf.GPS)
	if err != nil {
		return err
	}

	camera, powerCycle, err := openCamera(conf.Camera)
	if err != nil {
		return err
	}
	if !args.Quick {
		if err := powerCycle(); err != nil {
			return err
		}
	}

	w, err := conf.imagingWindow()
	if err != nil {
		return err
	}
	var rec recorder.Recorder = recorder.NewFileRecorder(conf.SpoolDir, conf.MinDiskSpace)
	flight := NewFlight(conf, camera, fixes, tx, rec, w)
	if conf.Throttler.ApplyThrottling {
		flight.recorder = throttle.NewThrottledRecorder(rec, conf.Throttler, flight)
	}
	flight.powerCycle = powerCycle

	if err := startService(flight); err != nil {
		log.Printf("failed to start dbus service: %v", err)
	}

	log.Print("starting flight")
	notifyCount := 0
	return flight.Run(func() {
		if notifyCount++; notifyCount >= stepsPerSdNotify {
			daemon.SdNotify(false, "WATCHDOG=1")
			notifyCount = 0
		}
	})
}

func openRadio(conf RadioConfig) (*rtty.Transmitter, error) {
	data, err := openPin(conf.DataPin)
	if err != nil {
		return nil, err
	}
	enable, err := openPin(conf.EnablePin)
	if err != nil {
		return nil, err
	}
	var enablePin rtty.Pin
	if enable != nil {
		enablePin = enable
	}
	tx, err := rtty.New(data, enablePin, conf.Baud)
	if err != nil {
		return nil, err
	}
	tx.SetStopBits(conf.StopBits)
	if err := tx.Enable(true); err != nil {
		return nil, fmt.Errorf("enabling radio: %v", err)
	}
	return tx, nil
}

func startGPS(conf GPSConfig) (*gps.Receiver, error) {
	port, err := openSerial(conf.Device, conf.Baud, gpsReadTimeout)
	if err != nil {
		return nil, err
	}
	if conf.Airborne {
		setAirborne(port)
	}

	receiver := gps.NewReceiver()
	go func() {
		for {
			if _, err := io.Copy(receiver, port); err != nil {
				log.Printf("gps read failed: %v", err)
				time.Sleep(time.Second)
			}
		}
	}()
	return receiver, nil
}

// setAirborne retries because the receiver ignores commands for a while
// after power on. Failure is logged, not fatal: the receiver still
// reports positions below its default altitude limit.
func setAirborne(port io.ReadWriter) {
	for i := 1; i <= airborneAttempts; i++ {
		err := gps.SetAirborne(port, airborneTimeout)
		if err == nil {
			log.Print("gps set to airborne mode")
			return
		}
		log.Printf("setting gps airborne mode (attempt %d): %v", i, err)
	}
	log.Print("gps left in its default dynamic model")
}

func openCamera(conf CameraConfig) (imageSource, func() error, error) {
	if conf.ImageDir != "" {
		camera, err := filecam.New(conf.ImageDir, conf.Width, conf.Height, conf.Quality)
		if err != nil {
			return nil, nil, err
		}
		return camera, func() error { return nil }, nil
	}

	res, err := c328.ParseResolution(conf.Resolution)
	if err != nil {
		return nil, nil, err
	}
	port, err := openSerial(conf.Device, conf.Baud, cameraReadTimeout)
	if err != nil {
		return nil, nil, err
	}
	powerCycle := func() error {
		return cycleCameraPower(conf.PowerPin)
	}
	return c328.New(port, res, conf.PackageSize), powerCycle, nil
}

func logConfig(conf *Config) {
	log.Printf("callsign: %s", conf.Callsign)
	log.Printf("spool dir: %s", conf.SpoolDir)
	log.Printf("telemetry every %d image packets", conf.TelemetryEvery)
	if conf.Camera.ImageDir != "" {
		log.Printf("camera: images from %s at %dx%d", conf.Camera.ImageDir, conf.Camera.Width, conf.Camera.Height)
	} else {
		log.Printf("camera: %s at %d baud, %s", conf.Camera.Device, conf.Camera.Baud, conf.Camera.Resolution)
		log.Printf("camera power pin: %s", conf.Camera.PowerPin)
	}
	log.Printf("gps: %s at %d baud", conf.GPS.Device, conf.GPS.Baud)
	if conf.Throttler.ApplyThrottling {
		log.Printf("spool throttle: %+v", conf.Throttler)
	}
	log.Printf("radio: %s at %.0f baud, %d stop bits", conf.Radio.DataPin, conf.Radio.Baud, conf.Radio.StopBits)
	if conf.WindowStart != "" {
		log.Printf("imaging window: %s to %s", conf.WindowStart, conf.WindowEnd)
	}
}
