// Package ts
// Demuxes H.264 and HEVC video from MPEG transport streams.
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package ts

import (
	"github.com/teocci/go-avpack/av"
)

type Stream struct {
	av.Stream

	demuxer *Demuxer

	pid        uint16
	streamType uint8
	idx        int

	isKeyFrame bool
	pts, dts   int64
	pos        int64
	lastDTS    int64
	data       []byte
	dataLen    int

	vps, sps, pps []byte
}

// unwrap extends a 33 bit PES time so that it stays close to the previous one.
func (s *Stream) unwrap(ts int64) int64 {
	if ts == av.NoPTS || s.lastDTS == av.NoPTS {
		return ts
	}
	const wrap = int64(1) << 33
	for ts < s.lastDTS-wrap/2 {
		ts += wrap
	}
	for ts > s.lastDTS+wrap/2 {
		ts -= wrap
	}
	return ts
}
