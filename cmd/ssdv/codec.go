// Copyright 2026 The hadie Authors. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/fsphil/hadie/ssdv"
)

const readSize = 4096

// encode writes the packets of the JPEG read from r to w.
func encode(r io.Reader, w io.Writer, imageID uint8) (int, error) {
	enc := ssdv.NewEncoder(imageID, nil)
	buf := make([]byte, readSize)
	var p ssdv.Packet
	for {
		res, err := enc.NextPacket(&p)
		if err != nil {
			return enc.Packets(), err
		}
		switch res {
		case ssdv.NeedInput:
			n, err := r.Read(buf)
			if n == 0 && err == io.EOF {
				return enc.Packets(), fmt.Errorf("input ended before end of image: %w", io.ErrUnexpectedEOF)
			} else if err != nil && err != io.EOF {
				return enc.Packets(), err
			}
			if err := enc.Feed(buf[:n]); err != nil {
				return enc.Packets(), err
			}
		case ssdv.PacketReady, ssdv.EndOfImage:
			if _, err := w.Write(p[:]); err != nil {
				return enc.Packets(), err
			}
			if res == ssdv.EndOfImage {
				return enc.Packets(), nil
			}
		}
	}
}

type decodeStats struct {
	packets  int
	rejected int
	complete bool
}

// decode finds packets in data, which may hold noise between them, and
// writes the image they carry to w as a JPEG.
func decode(data []byte, w io.Writer) (decodeStats, error) {
	var st decodeStats
	dec := ssdv.NewDecoder(nil)
	var p ssdv.Packet
	for {
		i := bytes.IndexByte(data, 0x55)
		if i < 0 || len(data)-i < ssdv.PacketSize {
			break
		}
		copy(p[:], data[i:])
		err := dec.Feed(&p)
		switch {
		case err == nil:
			st.packets++
			data = data[i+ssdv.PacketSize:]
			continue
		case errors.Is(err, ssdv.ErrFEC), errors.Is(err, ssdv.ErrBadPacket):
			// Not a packet, or too damaged to tell.
			data = data[i+1:]
			continue
		}
		log.Printf("packet rejected: %v", err)
		st.rejected++
		data = data[i+ssdv.PacketSize:]
	}
	if st.packets == 0 {
		return st, errors.New("no packets found")
	}
	st.complete = dec.Complete()
	return st, dec.WriteJPEG(w, nil)
}
