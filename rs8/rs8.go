// Copyright 2026 The hadie Authors. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package rs8 implements the (255,223) Reed-Solomon code used by SSDV
// packets, with the CCSDS field and generator parameters. It corrects up
// to 16 byte errors in a block.
package rs8

import "errors"

const (
	// Symbols is the full codeword length.
	Symbols = 255
	// Parity is the number of check bytes.
	Parity = 32
	// Data is the largest message a block carries.
	Data = Symbols - Parity

	gfPoly = 0x187
	fcr    = 112
	prim   = 11
	iprim  = 116

	// a0 is log(0) in index form.
	a0 = Symbols
)

var ErrUncorrectable = errors.New("rs8: too many errors to correct")

// Codec holds the field tables and generator polynomial. It is read-only
// after New and may be shared between goroutines.
type Codec struct {
	alphaTo [Symbols + 1]int
	indexOf [Symbols + 1]int
	genPoly [Parity + 1]int
}

// New builds the tables for GF(2^8) with field polynomial 0x187.
func New() *Codec {
	c := new(Codec)
	c.indexOf[0] = a0
	c.alphaTo[a0] = 0
	sr := 1
	for i := 0; i < Symbols; i++ {
		c.indexOf[sr] = i
		c.alphaTo[i] = sr
		sr <<= 1
		if sr&0x100 != 0 {
			sr ^= gfPoly
		}
		sr &= Symbols
	}

	c.genPoly[0] = 1
	root := fcr * prim
	for i := 0; i < Parity; i++ {
		c.genPoly[i+1] = 1
		for j := i; j > 0; j-- {
			if c.genPoly[j] != 0 {
				c.genPoly[j] = c.genPoly[j-1] ^ c.alphaTo[modnn(c.indexOf[c.genPoly[j]]+root)]
			} else {
				c.genPoly[j] = c.genPoly[j-1]
			}
		}
		c.genPoly[0] = c.alphaTo[modnn(c.indexOf[c.genPoly[0]]+root)]
		root += prim
	}
	for i := range c.genPoly {
		c.genPoly[i] = c.indexOf[c.genPoly[i]]
	}
	return c
}

func modnn(x int) int {
	return x % Symbols
}

// Protect computes the Parity check bytes for data, which may be shorter
// than Data bytes.
func (c *Codec) Protect(data, parity []byte) {
	if len(data) > Data || len(parity) < Parity {
		panic("rs8: bad block size")
	}
	parity = parity[:Parity]
	for i := range parity {
		parity[i] = 0
	}
	for _, b := range data {
		feedback := c.indexOf[b^parity[0]]
		if feedback != a0 {
			for j := 1; j < Parity; j++ {
				parity[j] ^= byte(c.alphaTo[modnn(feedback+c.genPoly[Parity-j])])
			}
		}
		copy(parity, parity[1:])
		if feedback != a0 {
			parity[Parity-1] = byte(c.alphaTo[modnn(feedback+c.genPoly[0])])
		} else {
			parity[Parity-1] = 0
		}
	}
}

// Correct repairs block (data followed by Parity check bytes) in place
// and returns how many bytes it changed.
func (c *Codec) Correct(block []byte) (int, error) {
	if len(block) > Symbols || len(block) <= Parity {
		return 0, errors.New("rs8: bad block size")
	}
	pad := Symbols - len(block)

	// Syndromes: the block evaluated at each root of the generator.
	var s [Parity]int
	for i := range s {
		s[i] = int(block[0])
	}
	for _, b := range block[1:] {
		for i := range s {
			if s[i] == 0 {
				s[i] = int(b)
			} else {
				s[i] = int(b) ^ c.alphaTo[modnn(c.indexOf[s[i]]+(fcr+i)*prim)]
			}
		}
	}
	synError := 0
	for i := range s {
		synError |= s[i]
		s[i] = c.indexOf[s[i]]
	}
	if synError == 0 {
		return 0, nil
	}

	// Berlekamp-Massey: find the error locator polynomial lambda.
	var lambda, b, t [Parity + 1]int
	lambda[0] = 1
	for i := range b {
		b[i] = c.indexOf[lambda[i]]
	}
	el := 0
	for r := 1; r <= Parity; r++ {
		discr := 0
		for i := 0; i < r; i++ {
			if lambda[i] != 0 && s[r-i-1] != a0 {
				discr ^= c.alphaTo[modnn(c.indexOf[lambda[i]]+s[r-i-1])]
			}
		}
		discr = c.indexOf[discr]
		if discr == a0 {
			copy(b[1:], b[:Parity])
			b[0] = a0
			continue
		}
		t[0] = lambda[0]
		for i := 0; i < Parity; i++ {
			if b[i] != a0 {
				t[i+1] = lambda[i+1] ^ c.alphaTo[modnn(discr+b[i])]
			} else {
				t[i+1] = lambda[i+1]
			}
		}
		if 2*el <= r-1 {
			el = r - el
			for i := range b {
				if lambda[i] == 0 {
					b[i] = a0
				} else {
					b[i] = modnn(c.indexOf[lambda[i]] - discr + Symbols)
				}
			}
		} else {
			copy(b[1:], b[:Parity])
			b[0] = a0
		}
		lambda = t
	}

	degLambda := 0
	for i := range lambda {
		lambda[i] = c.indexOf[lambda[i]]
		if lambda[i] != a0 {
			degLambda = i
		}
	}

	// Chien search: the roots of lambda give the error locations.
	var reg [Parity + 1]int
	copy(reg[1:], lambda[1:])
	var root, loc [Parity]int
	count := 0
	for i, k := 1, iprim-1; i <= Symbols; i, k = i+1, modnn(k+iprim) {
		q := 1
		for j := degLambda; j > 0; j-- {
			if reg[j] != a0 {
				reg[j] = modnn(reg[j] + j)
				q ^= c.alphaTo[reg[j]]
			}
		}
		if q != 0 {
			continue
		}
		root[count] = i
		loc[count] = k
		if count++; count == degLambda {
			break
		}
	}
	if degLambda != count {
		return 0, ErrUncorrectable
	}

	// Forney: the error evaluator omega gives each error's value.
	var omega [Parity + 1]int
	degOmega := degLambda - 1
	for i := 0; i <= degOmega; i++ {
		tmp := 0
		for j := i; j >= 0; j-- {
			if s[i-j] != a0 && lambda[j] != a0 {
				tmp ^= c.alphaTo[modnn(s[i-j]+lambda[j])]
			}
		}
		omega[i] = c.indexOf[tmp]
	}

	for j := count - 1; j >= 0; j-- {
		num1 := 0
		for i := degOmega; i >= 0; i-- {
			if omega[i] != a0 {
				num1 ^= c.alphaTo[modnn(omega[i]+i*root[j])]
			}
		}
		num2 := c.alphaTo[modnn(root[j]*(fcr-1)+Symbols)]
		den := 0
		start := degLambda
		if start > Parity-1 {
			start = Parity - 1
		}
		for i := start &^ 1; i >= 0; i -= 2 {
			if lambda[i+1] != a0 {
				den ^= c.alphaTo[modnn(lambda[i+1]+i*root[j])]
			}
		}
		if den == 0 {
			return 0, ErrUncorrectable
		}
		if loc[j] < pad {
			// An error in the padding means the block was not a codeword.
			return 0, ErrUncorrectable
		}
		if num1 != 0 {
			block[loc[j]-pad] ^= byte(c.alphaTo[modnn(c.indexOf[num1]+c.indexOf[num2]+Symbols-c.indexOf[den])])
		}
	}
	return count, nil
}
