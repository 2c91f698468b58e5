package recorder

import "github.com/fsphil/hadie/ssdv"

// Recorder keeps a copy of the packets sent for each image.
type Recorder interface {
	StartImage(imageID uint8) error
	WritePacket(*ssdv.Packet) error
	StopImage() error
	CheckCanRecord() error
}

type NoWriteRecorder struct {
}

func (*NoWriteRecorder) StartImage(uint8) error { return nil }
func (*NoWriteRecorder) WritePacket(*ssdv.Packet) error { return nil }
func (*NoWriteRecorder) StopImage() error { return nil }
func (*NoWriteRecorder) CheckCanRecord() error { return nil }
