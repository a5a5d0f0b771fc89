// Package rtp
// Demuxes H.264 carried in RTP packets framed with RFC 4571 length prefixes.
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-26
package rtp

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/avutil"
	"github.com/teocci/go-avpack/utils/bits/pio"
)

var log = logrus.WithField("pkg", "rtp")

var CodecTypes = []av.CodecType{av.H264}

const rtpHeaderSize = 12

func validPacket(b []byte) (n int, ok bool) {
	if len(b) < 2+rtpHeaderSize {
		return
	}
	n = int(pio.U16BE(b))
	if n < rtpHeaderSize || b[2]>>6 != 2 {
		return
	}
	// payload types 72 to 76 are RTCP
	if pt := b[3] & 0x7f; pt >= 72 && pt <= 76 {
		return
	}
	return 2 + n, true
}

// Probe checks the first framed packet and, when present, the second one.
func Probe(b []byte) bool {
	n, ok := validPacket(b)
	if !ok || n > len(b) {
		return false
	}
	if len(b) >= n+2+rtpHeaderSize {
		_, ok = validPacket(b[n:])
	}
	return ok
}

func Handler(h *avutil.RegisterHandler) {
	h.Name = "rtp"
	h.Ext = ".rtp"
	h.Probe = Probe
	h.ReaderDemuxer = func(r io.Reader, _ avutil.Dict) (av.Demuxer, error) {
		return NewDemuxer(r), nil
	}
	h.CodecTypes = CodecTypes
}
