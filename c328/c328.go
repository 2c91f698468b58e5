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

// Package c328 drives the C328 family of UART JPEG cameras.
package c328

import (
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	cmdInit       = 0x01
	cmdGetPicture = 0x04
	cmdSnapshot   = 0x05
	cmdSetPkgSize = 0x06
	cmdData       = 0x0A
	cmdSync       = 0x0D
	cmdAck        = 0x0E
	cmdNak        = 0x0F
)

// ColourType selects the picture format in Setup.
type ColourType byte

const (
	Gray2     ColourType = 0x01
	Gray4     ColourType = 0x02
	Gray8     ColourType = 0x03
	Colour12  ColourType = 0x05
	Colour16  ColourType = 0x06
	ColourJPG ColourType = 0x07
)

// Resolution is a preview or snapshot size code.
type Resolution byte

const (
	Preview80x60   Resolution = 0x01
	Preview160x120 Resolution = 0x03

	Snapshot80x64   Resolution = 0x01
	Snapshot160x128 Resolution = 0x03
	Snapshot320x240 Resolution = 0x05
	Snapshot640x480 Resolution = 0x07
)

var snapshotSizes = map[string]Resolution{
	"80x64":   Snapshot80x64,
	"160x128": Snapshot160x128,
	"320x240": Snapshot320x240,
	"640x480": Snapshot640x480,
}

// ParseResolution converts a "WxH" snapshot size to its code.
func ParseResolution(s string) (Resolution, error) {
	r, ok := snapshotSizes[s]
	if !ok {
		return 0, fmt.Errorf("c328: unsupported snapshot size %q", s)
	}
	return r, nil
}

// PictureType selects which stored picture GetPicture returns.
type PictureType byte

const (
	PictureSnapshot    PictureType = 0x01
	PicturePreview     PictureType = 0x02
	PictureJPEGPreview PictureType = 0x03
)

// SnapshotType selects compressed or raw snapshots.
type SnapshotType byte

const (
	SnapshotJPEG SnapshotType = 0x00
	SnapshotRaw  SnapshotType = 0x01
)

const (
	// MaxPackageSize is the largest data package the camera sends.
	MaxPackageSize = 512
	// DefaultPackageSize is the package size Open asks for.
	DefaultPackageSize = 256

	syncAttempts   = 60
	packageHeader  = 4
	packageTrailer = 2
)

var (
	ErrTimeout     = errors.New("c328: timed out waiting for camera")
	ErrBadReply    = errors.New("c328: malformed reply")
	ErrNAK         = errors.New("c328: command refused")
	ErrSyncFailed  = errors.New("c328: camera did not sync")
	ErrChecksum    = errors.New("c328: package checksum mismatch")
	ErrPackageSize = errors.New("c328: bad package size")
)

// Camera talks to a C328 over a serial port. Once Open has taken a
// picture, Read returns the JPEG data and io.EOF at its end.
type Camera struct {
	port       io.ReadWriter
	resolution Resolution
	pkgSize    int

	CommandTimeout time.Duration
	PictureTimeout time.Duration
	now            func() time.Time

	imageLen  int
	imageRead int
	pkgID     uint16
	pkg       []byte
	buf       [MaxPackageSize]byte
}

// New returns a camera on port which will take snapshots at res,
// transferred in packages of pkgSize bytes. Zero selects
// DefaultPackageSize.
func New(port io.ReadWriter, res Resolution, pkgSize int) *Camera {
	if pkgSize == 0 {
		pkgSize = DefaultPackageSize
	}
	return &Camera{
		port:           port,
		resolution:     res,
		pkgSize:        pkgSize,
		CommandTimeout: 100 * time.Millisecond,
		PictureTimeout: 2 * time.Second,
		now:            time.Now,
	}
}

func (c *Camera) send(cmd, p1, p2, p3, p4 byte) error {
	_, err := c.port.Write([]byte{0xAA, cmd, p1, p2, p3, p4})
	return err
}

// read fills p from the port, failing if that takes longer than timeout.
func (c *Camera) read(p []byte, timeout time.Duration) error {
	deadline := c.now().Add(timeout)
	n := 0
	for n < len(p) {
		m, err := c.port.Read(p[n:])
		n += m
		if err != nil && err != io.EOF {
			return err
		}
		if n < len(p) && !c.now().Before(deadline) {
			return ErrTimeout
		}
	}
	return nil
}

func (c *Camera) reply(timeout time.Duration) ([6]byte, error) {
	var r [6]byte
	if err := c.read(r[:], timeout); err != nil {
		return r, err
	}
	if r[0] != 0xAA {
		return r, fmt.Errorf("%w: % X", ErrBadReply, r[:])
	}
	return r, nil
}

// command sends a command and waits for its ACK.
func (c *Camera) command(cmd, p1, p2, p3, p4 byte) error {
	if err := c.send(cmd, p1, p2, p3, p4); err != nil {
		return err
	}
	r, err := c.reply(c.CommandTimeout)
	if err != nil {
		return err
	}
	switch {
	case r[1] == cmdNak:
		return fmt.Errorf("%w: command %02X error %02X", ErrNAK, cmd, r[4])
	case r[1] != cmdAck || r[2] != cmd:
		return fmt.Errorf("%w: % X in reply to command %02X", ErrBadReply, r[:], cmd)
	}
	return nil
}

// Sync sends SYNC until the camera answers with an ACK and its own SYNC,
// which is then acknowledged.
func (c *Camera) Sync() error {
	for i := 0; i < syncAttempts; i++ {
		if err := c.command(cmdSync, 0, 0, 0, 0); err != nil {
			continue
		}
		r, err := c.reply(c.CommandTimeout)
		if err != nil || r[1] != cmdSync {
			continue
		}
		return c.send(cmdAck, cmdSync, 0, 0, 0)
	}
	return ErrSyncFailed
}

// Setup sets the colour type and the preview and JPEG resolutions.
func (c *Camera) Setup(ct ColourType, preview, jpeg Resolution) error {
	return c.command(cmdInit, 0, byte(ct), byte(preview), byte(jpeg))
}

// SetPackageSize sets the size of the data packages used by GetPackage.
func (c *Camera) SetPackageSize(size int) error {
	if size <= packageHeader+packageTrailer || size > MaxPackageSize {
		return fmt.Errorf("%w: %d", ErrPackageSize, size)
	}
	if err := c.command(cmdSetPkgSize, 0x08, byte(size), byte(size>>8), 0); err != nil {
		return err
	}
	c.pkgSize = size
	return nil
}

// Snapshot stores a picture in the camera, skipping skip frames first.
func (c *Camera) Snapshot(st SnapshotType, skip uint16) error {
	return c.command(cmdSnapshot, byte(st), byte(skip), byte(skip>>8), 0)
}

// GetPicture asks for a stored picture and returns its size in bytes.
func (c *Camera) GetPicture(pt PictureType) (int, error) {
	if err := c.command(cmdGetPicture, byte(pt), 0, 0, 0); err != nil {
		return 0, err
	}
	r, err := c.reply(c.PictureTimeout)
	if err != nil {
		return 0, err
	}
	if r[1] != cmdData {
		return 0, fmt.Errorf("%w: % X instead of DATA", ErrBadReply, r[:])
	}
	return int(r[3]) | int(r[4])<<8 | int(r[5])<<16, nil
}

// GetPackage requests one data package of the current picture and
// returns its payload. The slice is reused by the next call.
func (c *Camera) GetPackage(id uint16) ([]byte, error) {
	if err := c.send(cmdAck, 0, 0, byte(id), byte(id>>8)); err != nil {
		return nil, err
	}
	head := c.buf[:packageHeader]
	if err := c.read(head, c.CommandTimeout); err != nil {
		return nil, err
	}
	gotID := uint16(head[0]) | uint16(head[1])<<8
	size := int(head[2]) | int(head[3])<<8
	total := packageHeader + size + packageTrailer
	if total > c.pkgSize {
		return nil, fmt.Errorf("%w: package %d is %d bytes", ErrPackageSize, gotID, total)
	}
	if gotID != id {
		return nil, fmt.Errorf("%w: package %d instead of %d", ErrBadReply, gotID, id)
	}
	if err := c.read(c.buf[packageHeader:total], c.CommandTimeout); err != nil {
		return nil, err
	}

	verify := total - packageTrailer
	var sum byte
	for i, b := range c.buf[:total] {
		if i != verify {
			sum += b
		}
	}
	if sum != c.buf[verify] {
		return nil, fmt.Errorf("%w: package %d", ErrChecksum, id)
	}
	return c.buf[packageHeader:verify], nil
}

// FinishPicture tells the camera the transfer is over.
func (c *Camera) FinishPicture() error {
	return c.send(cmdAck, 0, 0, 0xF0, 0xF0)
}

// Open syncs with the camera and takes a JPEG snapshot.
func (c *Camera) Open() error {
	if err := c.Sync(); err != nil {
		return err
	}
	if err := c.Setup(ColourJPG, 0, c.resolution); err != nil {
		return fmt.Errorf("c328: setup: %w", err)
	}
	if err := c.SetPackageSize(c.pkgSize); err != nil {
		return fmt.Errorf("c328: set package size: %w", err)
	}
	if err := c.Snapshot(SnapshotJPEG, 0); err != nil {
		return fmt.Errorf("c328: snapshot: %w", err)
	}
	n, err := c.GetPicture(PictureSnapshot)
	if err != nil {
		return fmt.Errorf("c328: get picture: %w", err)
	}
	c.imageLen, c.imageRead = n, 0
	c.pkgID = 0
	c.pkg = nil
	return nil
}

// Size returns the length of the current picture.
func (c *Camera) Size() int {
	return c.imageLen
}

// Read implements io.Reader over the picture taken by Open.
func (c *Camera) Read(p []byte) (int, error) {
	if c.imageRead >= c.imageLen {
		return 0, io.EOF
	}
	if len(c.pkg) == 0 {
		data, err := c.GetPackage(c.pkgID)
		if err != nil {
			return 0, err
		}
		if len(data) == 0 {
			return 0, fmt.Errorf("%w: empty package %d", ErrPackageSize, c.pkgID)
		}
		c.pkgID++
		c.pkg = data
	}
	n := copy(p, c.pkg)
	if left := c.imageLen - c.imageRead; n > left {
		n = left
	}
	c.pkg = c.pkg[n:]
	c.imageRead += n
	return n, nil
}

// Close ends the picture transfer.
func (c *Camera) Close() error {
	c.imageLen, c.imageRead = 0, 0
	c.pkg = nil
	return c.FinishPicture()
}
