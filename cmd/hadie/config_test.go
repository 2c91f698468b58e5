package main

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/TheCacophonyProject/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsphil/hadie/throttle"
)

func TestAllDefaults(t *testing.T) {
	conf, err := ParseConfig([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, defaultConfig, *conf)
	w, err := conf.imagingWindow()
	require.NoError(t, err)
	assert.Equal(t, alwaysOpen{}, w)
}

func TestAllSet(t *testing.T) {
	// All config set at non-default values.
	config := []byte(`
callsign: M0XYZ
spool-dir: /data/ssdv
min-disk-space: 10
telemetry-every: 8
window-start: "06:30"
window-end: "19:45"
latitude: 52.2
longitude: 0.12
camera:
  device: /dev/ttyUSB1
  baud: 57600
  resolution: 640x480
  package-size: 512
  power-pin: GPIO5
gps:
  device: /dev/ttyUSB0
  baud: 4800
  airborne: false
radio:
  data-pin: GPIO6
  enable-pin: ""
  baud: 50
  stop-bits: 1
throttler:
  apply-throttling: false
  bucket-packets: 1000
  min-packets: 10
  min-refill: 1h
`)

	conf, err := ParseConfig(config)
	require.NoError(t, err)

	assert.Equal(t, Config{
		Callsign:       "M0XYZ",
		SpoolDir:       "/data/ssdv",
		MinDiskSpace:   10,
		TelemetryEvery: 8,
		WindowStart:    "06:30",
		WindowEnd:      "19:45",
		Latitude:       52.2,
		Longitude:      0.12,
		Camera: CameraConfig{
			Device:      "/dev/ttyUSB1",
			Baud:        57600,
			Resolution:  "640x480",
			PackageSize: 512,
			PowerPin:    "GPIO5",
			Width:       320,
			Height:      240,
			Quality:     50,
		},
		GPS: GPSConfig{
			Device:   "/dev/ttyUSB0",
			Baud:     4800,
			Airborne: false,
		},
		Radio: RadioConfig{
			DataPin:   "GPIO6",
			EnablePin: "",
			Baud:      50,
			StopBits:  1,
		},
		Throttler: throttle.ThrottlerConfig{
			ApplyThrottling: false,
			BucketPackets:   1000,
			MinPackets:      10,
			MinRefill:       time.Hour,
		},
	}, *conf)
}

func TestImageDirectory(t *testing.T) {
	conf, err := ParseConfig([]byte(`
camera:
  image-dir: /srv/pictures
  width: 160
  height: 128
  quality: 80
`))
	require.NoError(t, err)
	assert.Equal(t, "/srv/pictures", conf.Camera.ImageDir)
	assert.Equal(t, 160, conf.Camera.Width)

	_, err = ParseConfig([]byte(`
camera:
  image-dir: /srv/pictures
  width: 100
`))
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	for _, config := range []string{
		"callsign: lower",
		"callsign: \"\"",
		"telemetry-every: 0",
		"radio: {baud: 0}",
		"radio: {stop-bits: 3}",
		"radio: {data-pin: \"\"}",
		"camera: {resolution: 100x100}",
		"camera: {package-size: 1024}",
		"window-start: \"25:00\"\nwindow-end: \"19:00\"",
		"window-start: noon\nwindow-end: \"19:00\"",
		"window-start: \"06:00\"",
		"window-end: \"19:00\"",
		"throttler: {min-packets: 0}",
		"telemetry-every: [",
	} {
		_, err := ParseConfig([]byte(config))
		assert.Error(t, err, config)
	}
}

func TestImagingWindow(t *testing.T) {
	conf, err := ParseConfig([]byte("window-start: \"06:30\"\nwindow-end: \"19:45\"\n"))
	require.NoError(t, err)
	w, err := conf.imagingWindow()
	require.NoError(t, err)
	require.IsType(t, &window.Window{}, w)

	ww := w.(*window.Window)
	ww.Now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.Local) }
	assert.True(t, w.Active())
	ww.Now = func() time.Time { return time.Date(2026, 6, 1, 22, 0, 0, 0, time.Local) }
	assert.False(t, w.Active())

	// Times relative to sunset and sunrise are also accepted.
	conf, err = ParseConfig([]byte("window-start: -30m\nwindow-end: 30m\nlatitude: 52.2\nlongitude: 0.12\n"))
	require.NoError(t, err)
	_, err = conf.imagingWindow()
	assert.NoError(t, err)
}

func TestParseConfigFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "hadie.yaml")
	require.NoError(t, ioutil.WriteFile(filename, []byte("callsign: TEST1\n"), 0644))

	conf, err := ParseConfigFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "TEST1", conf.Callsign)

	_, err = ParseConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
