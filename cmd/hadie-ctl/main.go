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
	"bytes"
	"encoding/json"
	"fmt"
	"log"

	arg "github.com/alexflint/go-arg"

	"github.com/fsphil/hadie/flightctl"
)

var version = "<not set>"

type StatusCmd struct {
	Raw bool `arg:"--raw" help:"print the status without indentation"`
}

type SkipCmd struct{}

type Args struct {
	Status *StatusCmd `arg:"subcommand:status" help:"show the flight status"`
	Skip   *SkipCmd   `arg:"subcommand:skip" help:"abandon the image being transmitted"`
}

func (Args) Version() string {
	return version
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	log.SetFlags(0)
	var args Args
	p := arg.MustParse(&args)

	switch {
	case args.Status != nil:
		status, err := flightctl.Status()
		if err != nil {
			return err
		}
		if args.Status.Raw {
			fmt.Println(status)
			return nil
		}
		var out bytes.Buffer
		if err := json.Indent(&out, []byte(status), "", "  "); err != nil {
			return err
		}
		fmt.Println(out.String())
	case args.Skip != nil:
		if err := flightctl.SkipImage(); err != nil {
			return err
		}
		log.Print("image skipped")
	default:
		p.Fail("a command is required")
	}
	return nil
}
