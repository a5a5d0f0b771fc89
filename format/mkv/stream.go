// Package mkv
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mkv

import (
	"sort"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/codec/h264parser"
	"github.com/teocci/go-avpack/codec/h265parser"
)

type Stream struct {
	av.Stream

	trackNumber uint64
	codecID     string
	lengthSize  int

	packets []av.Packet
}

// isKeyFrame looks for a random access slice in a length prefixed block.
func (s *Stream) isKeyFrame(data []byte) bool {
	if s.lengthSize == 0 {
		return false
	}
	nalus, err := h264parser.SplitAVCC(data, s.lengthSize)
	if err != nil {
		return false
	}
	for _, nalu := range nalus {
		switch s.Type() {
		case av.H264:
			if h264parser.IsKeyFrameNALU(nalu) {
				return true
			}
		case av.H265:
			if h265parser.IsKeyFrameNALU(nalu) {
				return true
			}
		}
	}
	return false
}

// fillDTS derives a monotonic decode timestamp from the presentation order.
// Matroska stores presentation times only, so the n-th decode time is the n-th
// smallest presentation time moved back by the largest reordering delay.
func (s *Stream) fillDTS() {
	sorted := make([]int64, len(s.packets))
	for i := range s.packets {
		sorted[i] = s.packets[i].PTS
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var delay int64
	for i := range s.packets {
		if d := sorted[i] - s.packets[i].PTS; d > delay {
			delay = d
		}
	}
	for i := range s.packets {
		s.packets[i].DTS = sorted[i] - delay
	}
}
