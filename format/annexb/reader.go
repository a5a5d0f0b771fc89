// Package annexb
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-20
package annexb

import (
	"bytes"
	"io"

	"github.com/teocci/go-avpack/av/avbuf"
)

var startCode = []byte{0, 0, 1}

// naluReader pulls NAL units out of an Annex-B byte stream.
type naluReader struct {
	r       io.Reader
	buf     []byte
	scanned int
	synced  bool
	eof     bool
	pos     int64 // bytes consumed from r
}

func (nr *naluReader) fill() (err error) {
	chunk := make([]byte, avbuf.PullSize)
	var n int
	n, err = nr.r.Read(chunk)
	nr.buf = append(nr.buf, chunk[:n]...)
	nr.pos += int64(n)
	if err == io.EOF {
		nr.eof = true
		err = nil
	}
	return
}

func trimTrailingZeros(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}

// next returns the next NAL unit without its start code, io.EOF at the end of input.
func (nr *naluReader) next() (nalu []byte, err error) {
	for {
		if !nr.synced {
			if i := bytes.Index(nr.buf, startCode); i >= 0 {
				nr.buf = nr.buf[i+3:]
				nr.synced = true
				nr.scanned = 0
				continue
			}
			if nr.eof {
				err = io.EOF
				return
			}
			if len(nr.buf) > 2 {
				nr.buf = nr.buf[len(nr.buf)-2:]
			}
			if err = nr.fill(); err != nil {
				return
			}
			continue
		}

		if i := bytes.Index(nr.buf[nr.scanned:], startCode); i >= 0 {
			end := nr.scanned + i
			nalu = append([]byte(nil), trimTrailingZeros(nr.buf[:end])...)
			nr.buf = nr.buf[end+3:]
			nr.scanned = 0
			if len(nalu) == 0 {
				continue
			}
			return
		}
		if nr.eof {
			if len(nr.buf) == 0 {
				err = io.EOF
				return
			}
			nalu = append([]byte(nil), trimTrailingZeros(nr.buf)...)
			nr.buf = nil
			nr.scanned = 0
			nr.synced = false
			if len(nalu) == 0 {
				err = io.EOF
			}
			return
		}
		if nr.scanned = len(nr.buf) - 2; nr.scanned < 0 {
			nr.scanned = 0
		}
		if err = nr.fill(); err != nil {
			return
		}
	}
}
