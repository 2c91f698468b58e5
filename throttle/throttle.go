package throttle

import (
	"errors"
	"log"
	"time"

	"github.com/juju/ratelimit"

	"github.com/fsphil/hadie/recorder"
	"github.com/fsphil/hadie/ssdv"
)

type ThrottlerConfig struct {
	ApplyThrottling bool          `yaml:"apply-throttling"`
	BucketPackets   int64         `yaml:"bucket-packets"`
	MinPackets      int64         `yaml:"min-packets"`
	MinRefill       time.Duration `yaml:"min-refill"`
}

func DefaultThrottlerConfig() ThrottlerConfig {
	return ThrottlerConfig{
		ApplyThrottling: true,
		BucketPackets:   4096,
		MinPackets:      64,
		MinRefill:       10 * time.Minute,
	}
}

func (conf *ThrottlerConfig) Validate() error {
	if !conf.ApplyThrottling {
		return nil
	}
	if conf.MinPackets < 1 || conf.BucketPackets < conf.MinPackets {
		return errors.New("throttler needs 1 <= min-packets <= bucket-packets")
	}
	if conf.MinRefill <= 0 {
		return errors.New("throttler min-refill must be positive")
	}
	return nil
}

type ThrottledEventListener interface {
	WhenThrottled()
}

type nullListener struct{}

func (*nullListener) WhenThrottled() {}

// ThrottledRecorder limits how fast packets are written to the spool.
// The token bucket counts packets. An image is only spooled if at least
// MinPackets are available when it starts, and spooling stops when the
// bucket runs dry.
type ThrottledRecorder struct {
	recorder   recorder.Recorder
	listener   ThrottledEventListener
	bucket     *ratelimit.Bucket
	minPackets int64
	recording  bool
}

func NewThrottledRecorder(base recorder.Recorder, conf ThrottlerConfig, listener ThrottledEventListener) *ThrottledRecorder {
	return NewThrottledRecorderWithClock(base, conf, listener, new(realClock))
}

func NewThrottledRecorderWithClock(
	base recorder.Recorder,
	conf ThrottlerConfig,
	listener ThrottledEventListener,
	clock ratelimit.Clock,
) *ThrottledRecorder {
	refillRate := float64(conf.MinPackets) / conf.MinRefill.Seconds()
	bucket := ratelimit.NewBucketWithRateAndClock(refillRate, conf.BucketPackets, clock)

	if listener == nil {
		listener = new(nullListener)
	}

	return &ThrottledRecorder{
		recorder:   base,
		listener:   listener,
		bucket:     bucket,
		minPackets: conf.MinPackets,
	}
}

func (throttler *ThrottledRecorder) CheckCanRecord() error {
	return throttler.recorder.CheckCanRecord()
}

func (throttler *ThrottledRecorder) StartImage(imageID uint8) error {
	if throttler.bucket.Available() < throttler.minPackets {
		log.Printf("image %d not spooled due to throttling", imageID)
		throttler.listener.WhenThrottled()
		return nil
	}
	if err := throttler.recorder.StartImage(imageID); err != nil {
		return err
	}
	throttler.recording = true
	return nil
}

func (throttler *ThrottledRecorder) WritePacket(p *ssdv.Packet) error {
	if !throttler.recording {
		return nil
	}
	if throttler.bucket.TakeAvailable(1) > 0 {
		return throttler.recorder.WritePacket(p)
	}

	log.Print("spooling throttled")
	throttler.listener.WhenThrottled()
	return throttler.StopImage()
}

func (throttler *ThrottledRecorder) StopImage() error {
	if throttler.recording {
		throttler.recording = false
		return throttler.recorder.StopImage()
	}
	return nil
}

// realClock implements ratelimit.Clock in terms of standard time functions.
type realClock struct{}

// Now implements Clock.Now by calling time.Now.
func (realClock) Now() time.Time {
	return time.Now()
}

// Sleep implements Clock.Sleep by calling time.Sleep.
func (realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
