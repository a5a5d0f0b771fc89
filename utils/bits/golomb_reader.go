// Package bits
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-15
package bits

import (
	"bytes"
	"io"
)

// GolombBitReader reads bits and Exp-Golomb codes from an RBSP.
type GolombBitReader struct {
	R    io.Reader
	buf  [1]byte
	left byte
}

// NewGolombBitReader reads from a copy free view of b.
func NewGolombBitReader(b []byte) *GolombBitReader {
	return &GolombBitReader{R: bytes.NewReader(b)}
}

func (gbr *GolombBitReader) ReadBit() (res uint, err error) {
	if gbr.left == 0 {
		if _, err = io.ReadFull(gbr.R, gbr.buf[:]); err != nil {
			return
		}
		gbr.left = 8
	}
	gbr.left--
	res = uint(gbr.buf[0]>>gbr.left) & 1
	return
}

func (gbr *GolombBitReader) ReadBits(n int) (res uint, err error) {
	for i := 0; i < n; i++ {
		var bit uint
		if bit, err = gbr.ReadBit(); err != nil {
			return
		}
		res = res<<1 | bit
	}
	return
}

func (gbr *GolombBitReader) ReadFlag() (flag bool, err error) {
	var bit uint
	bit, err = gbr.ReadBit()
	flag = bit == 1
	return
}

// Skip discards n bits.
func (gbr *GolombBitReader) Skip(n int) (err error) {
	for i := 0; i < n; i++ {
		if _, err = gbr.ReadBit(); err != nil {
			return
		}
	}
	return
}

// ReadExponentialGolombCode reads an unsigned ue(v) value.
func (gbr *GolombBitReader) ReadExponentialGolombCode() (res uint, err error) {
	i := 0
	for {
		var bit uint
		if bit, err = gbr.ReadBit(); err != nil {
			return
		}
		if bit == 1 || i >= 32 {
			break
		}
		i++
	}
	if res, err = gbr.ReadBits(i); err != nil {
		return
	}
	res += (1 << uint(i)) - 1
	return
}

// ReadSE reads a signed se(v) value.
func (gbr *GolombBitReader) ReadSE() (res int, err error) {
	var code uint
	if code, err = gbr.ReadExponentialGolombCode(); err != nil {
		return
	}
	if code&0x01 != 0 {
		res = int((code + 1) / 2)
	} else {
		res = -int(code / 2)
	}
	return
}

// RemoveEmulationPrevention strips the 0x03 bytes inserted after two zero bytes in a NAL payload.
func RemoveEmulationPrevention(nalu []byte) []byte {
	out := make([]byte, 0, len(nalu))
	zeros := 0
	for _, b := range nalu {
		if zeros >= 2 && b == 0x03 {
			zeros = 0
			continue
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, b)
	}
	return out
}
