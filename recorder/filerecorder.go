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

package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	"github.com/fsphil/hadie/ssdv"
)

const tempExt = "ssdv.temp"

// FileRecorder writes the packets of each image to its own file in a
// spool directory. Files are written under a temporary name and renamed
// once the image is finished, so a partial file is never mistaken for a
// complete one.
type FileRecorder struct {
	outputDir    string
	minDiskSpace uint64
	now          func() time.Time

	f  *os.File
	bw *bufio.Writer
}

// NewFileRecorder returns a recorder writing to outputDir, which refuses
// to start a file when less than minDiskSpace MB is free.
func NewFileRecorder(outputDir string, minDiskSpace uint64) *FileRecorder {
	return &FileRecorder{
		outputDir:    outputDir,
		minDiskSpace: minDiskSpace,
		now:          time.Now,
	}
}

func (fr *FileRecorder) CheckCanRecord() error {
	enoughSpace, err := checkDiskSpace(fr.minDiskSpace, fr.outputDir)
	if err != nil {
		return fmt.Errorf("problem checking disk space: %v", err)
	} else if !enoughSpace {
		return errors.New("not enough free disk space to record image")
	}
	return nil
}

func (fr *FileRecorder) StartImage(imageID uint8) error {
	if fr.f != nil {
		fr.Stop()
	}
	filename := filepath.Join(fr.outputDir, fr.newTempName(imageID))
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	log.Printf("recording started: %s", filename)
	fr.f = f
	fr.bw = bufio.NewWriter(f)
	return nil
}

func (fr *FileRecorder) WritePacket(p *ssdv.Packet) error {
	if fr.bw == nil {
		return errors.New("no image being recorded")
	}
	_, err := fr.bw.Write(p[:])
	return err
}

func (fr *FileRecorder) StopImage() error {
	if fr.f == nil {
		return nil
	}
	defer func() {
		fr.f, fr.bw = nil, nil
	}()
	if err := fr.bw.Flush(); err != nil {
		fr.f.Close()
		return err
	}
	if err := fr.f.Close(); err != nil {
		return err
	}
	finalName, err := renameTempRecording(fr.f.Name())
	if err != nil {
		return err
	}
	log.Printf("recording stopped: %s", finalName)
	return nil
}

// Stop abandons the current file.
func (fr *FileRecorder) Stop() {
	if fr.f != nil {
		fr.f.Close()
		os.Remove(fr.f.Name())
		fr.f, fr.bw = nil, nil
	}
}

func (fr *FileRecorder) newTempName(imageID uint8) string {
	return fr.now().Format("20060102.150405.000") + fmt.Sprintf(".img%03d.%s", imageID, tempExt)
}

func renameTempRecording(tempName string) (string, error) {
	finalName := recordingFinalName(tempName)
	err := os.Rename(tempName, finalName)
	if err != nil {
		return "", err
	}
	return finalName, nil
}

var reTempName = regexp.MustCompile(`(.+)\.temp$`)

func recordingFinalName(filename string) string {
	return reTempName.ReplaceAllString(filename, `$1`)
}

// DeleteTempFiles removes files left behind by an interrupted recording.
func DeleteTempFiles(directory string) error {
	matches, _ := filepath.Glob(filepath.Join(directory, "*."+tempExt))
	for _, filename := range matches {
		if err := os.Remove(filename); err != nil {
			return err
		}
	}
	return nil
}

func checkDiskSpace(mb uint64, dir string) (bool, error) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(dir, &fs); err != nil {
		return false, err
	}
	return fs.Bavail*uint64(fs.Bsize)/1024/1024 >= mb, nil
}
