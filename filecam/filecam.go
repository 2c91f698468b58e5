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

// Package filecam is a stand-in camera that serves pictures from a
// directory. Each Open loads the next file, scales it to the snapshot
// size and re-encodes it as a baseline JPEG, as the real camera would
// deliver it.
package filecam

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrNoImages = errors.New("filecam: no images found")

var extensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// Camera cycles through the images in a directory in name order.
type Camera struct {
	dir     string
	width   int
	height  int
	quality int

	next    int
	current string
	r       *bytes.Reader
}

// New returns a camera producing width x height JPEGs at quality.
func New(dir string, width, height, quality int) (*Camera, error) {
	if width <= 0 || height <= 0 || width%16 != 0 || height%16 != 0 {
		return nil, fmt.Errorf("filecam: size %dx%d is not a multiple of 16", width, height)
	}
	return &Camera{
		dir:     dir,
		width:   width,
		height:  height,
		quality: quality,
	}, nil
}

func (c *Camera) images() ([]string, error) {
	infos, err := ioutil.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, info := range infos {
		if info.IsDir() || !extensions[strings.ToLower(filepath.Ext(info.Name()))] {
			continue
		}
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Open takes the next "picture".
func (c *Camera) Open() error {
	names, err := c.images()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("%w in %s", ErrNoImages, c.dir)
	}
	name := names[c.next%len(names)]
	c.next++

	src, err := decodeFile(filepath.Join(c.dir, name))
	if err != nil {
		return fmt.Errorf("filecam: %s: %w", name, err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: c.quality}); err != nil {
		return err
	}
	c.current = name
	c.r = bytes.NewReader(buf.Bytes())
	return nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// Current returns the name of the file behind the open picture.
func (c *Camera) Current() string {
	return c.current
}

func (c *Camera) Read(p []byte) (int, error) {
	if c.r == nil {
		return 0, io.EOF
	}
	return c.r.Read(p)
}

func (c *Camera) Close() error {
	c.r = nil
	return nil
}
