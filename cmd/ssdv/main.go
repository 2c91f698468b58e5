// Copyright 2026 The hadie Authors. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"io/ioutil"
	"log"
	"os"

	arg "github.com/alexflint/go-arg"
)

var version = "<not set>"

type Args struct {
	Encode     bool   `arg:"-e,--encode" help:"encode a JPEG into SSDV packets"`
	Decode     bool   `arg:"-d,--decode" help:"rebuild a JPEG from SSDV packets"`
	ImageID    uint8  `arg:"-i,--image-id" help:"image id written into encoded packets"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
	Input      string `arg:"positional,required" help:"input file, - for stdin"`
	Output     string `arg:"positional,required" help:"output file, - for stdout"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	p := arg.MustParse(&args)
	if args.Encode == args.Decode {
		p.Fail("exactly one of --encode or --decode is required")
	}
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
		log.SetFlags(0)
	}

	in := os.Stdin
	if args.Input != "-" {
		f, err := os.Open(args.Input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	out := os.Stdout
	if args.Output != "-" {
		f, err := os.Create(args.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if args.Encode {
		n, err := encode(in, out, args.ImageID)
		if err != nil {
			return err
		}
		log.Printf("wrote %d packets", n)
		return nil
	}

	data, err := ioutil.ReadAll(in)
	if err != nil {
		return err
	}
	st, err := decode(data, out)
	if err != nil {
		return err
	}
	log.Printf("read %d packets, %d rejected", st.packets, st.rejected)
	if !st.complete {
		log.Print("image is incomplete")
	}
	return nil
}
