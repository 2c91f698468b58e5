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
	"io/ioutil"
	"regexp"

	"github.com/TheCacophonyProject/window"
	yaml "gopkg.in/yaml.v2"

	"github.com/fsphil/hadie/c328"
	"github.com/fsphil/hadie/throttle"
)

type Config struct {
	Callsign       string                   `yaml:"callsign"`
	SpoolDir       string                   `yaml:"spool-dir"`
	MinDiskSpace   uint64                   `yaml:"min-disk-space"`
	TelemetryEvery int                      `yaml:"telemetry-every"`
	WindowStart    string                   `yaml:"window-start"`
	WindowEnd      string                   `yaml:"window-end"`
	Latitude       float64                  `yaml:"latitude"`
	Longitude      float64                  `yaml:"longitude"`
	Camera         CameraConfig             `yaml:"camera"`
	GPS            GPSConfig                `yaml:"gps"`
	Radio          RadioConfig              `yaml:"radio"`
	Throttler      throttle.ThrottlerConfig `yaml:"throttler"`
}

// CameraConfig selects the image source. A non-empty ImageDir replaces
// the serial camera with pictures read from disk.
type CameraConfig struct {
	Device      string `yaml:"device"`
	Baud        int    `yaml:"baud"`
	Resolution  string `yaml:"resolution"`
	PackageSize int    `yaml:"package-size"`
	PowerPin    string `yaml:"power-pin"`
	ImageDir    string `yaml:"image-dir"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	Quality     int    `yaml:"quality"`
}

type GPSConfig struct {
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
	Airborne bool   `yaml:"airborne"`
}

type RadioConfig struct {
	DataPin   string  `yaml:"data-pin"`
	EnablePin string  `yaml:"enable-pin"`
	Baud      float64 `yaml:"baud"`
	StopBits  int     `yaml:"stop-bits"`
}

var defaultConfig = Config{
	Callsign:       "HADIE",
	SpoolDir:       "/var/spool/hadie",
	MinDiskSpace:   50,
	TelemetryEvery: 4,
	Camera: CameraConfig{
		Device:      "/dev/ttyAMA1",
		Baud:        115200,
		Resolution:  "320x240",
		PackageSize: c328.DefaultPackageSize,
		PowerPin:    "GPIO23",
		Width:       320,
		Height:      240,
		Quality:     50,
	},
	GPS: GPSConfig{
		Device:   "/dev/ttyAMA0",
		Baud:     9600,
		Airborne: true,
	},
	Radio: RadioConfig{
		DataPin:   "GPIO17",
		EnablePin: "GPIO27",
		Baud:      300,
		StopBits:  2,
	},
	Throttler: throttle.DefaultThrottlerConfig(),
}

var reCallsign = regexp.MustCompile(`^[A-Z0-9]{1,15}$`)

func (conf *Config) Validate() error {
	if !reCallsign.MatchString(conf.Callsign) {
		return fmt.Errorf("invalid callsign %q", conf.Callsign)
	}
	if conf.TelemetryEvery < 1 {
		return errors.New("telemetry-every must be at least 1")
	}
	if conf.Radio.Baud <= 0 {
		return errors.New("radio baud must be positive")
	}
	if conf.Radio.StopBits < 1 || conf.Radio.StopBits > 2 {
		return errors.New("radio stop-bits must be 1 or 2")
	}
	if conf.Radio.DataPin == "" {
		return errors.New("radio data-pin is required")
	}
	if err := conf.Throttler.Validate(); err != nil {
		return err
	}
	if _, err := conf.imagingWindow(); err != nil {
		return err
	}
	if conf.Camera.ImageDir != "" {
		c := conf.Camera
		if c.Width <= 0 || c.Height <= 0 || c.Width%16 != 0 || c.Height%16 != 0 {
			return fmt.Errorf("camera size %dx%d is not a multiple of 16", c.Width, c.Height)
		}
		if c.Quality < 1 || c.Quality > 100 {
			return errors.New("camera quality must be between 1 and 100")
		}
		return nil
	}
	if _, err := c328.ParseResolution(conf.Camera.Resolution); err != nil {
		return err
	}
	if conf.Camera.PackageSize < 64 || conf.Camera.PackageSize > c328.MaxPackageSize {
		return fmt.Errorf("camera package-size must be between 64 and %d", c328.MaxPackageSize)
	}
	return nil
}

// alwaysOpen is used when no window-start and window-end are configured.
type alwaysOpen struct{}

func (alwaysOpen) Active() bool { return true }

// imagingWindow builds the time of day window images are sent in. The
// latitude and longitude are only used for times relative to sunset and
// sunrise.
func (conf *Config) imagingWindow() (activeWindow, error) {
	if conf.WindowStart == "" && conf.WindowEnd == "" {
		return alwaysOpen{}, nil
	}
	if conf.WindowStart == "" || conf.WindowEnd == "" {
		return nil, errors.New("window-start and window-end must be set together")
	}
	w, err := window.New(conf.WindowStart, conf.WindowEnd, conf.Latitude, conf.Longitude)
	if err != nil {
		return nil, fmt.Errorf("invalid imaging window: %w", err)
	}
	return w, nil
}

func ParseConfigFile(filename string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConfig(buf)
}

func ParseConfig(buf []byte) (*Config, error) {
	conf := defaultConfig
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}
