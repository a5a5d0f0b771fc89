// Package annexb
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-20
package annexb

import (
	"fmt"
	"io"
	"strconv"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/avutil"
)

// firstNALU returns the header bytes of the NAL unit after the leading start code.
func firstNALU(b []byte) []byte {
	for i := 0; i+3 < len(b) && i < 64; i++ {
		if b[i] == 0 && b[i+1] == 0 && b[i+2] == 1 {
			return b[i+3:]
		}
		if b[i] != 0 {
			return nil
		}
	}
	return nil
}

// ProbeH264 accepts a stream opening with an H.264 SPS, AUD, SEI or slice.
func ProbeH264(b []byte) bool {
	nalu := firstNALU(b)
	if len(nalu) < 2 || nalu[0]&0x80 != 0 {
		return false
	}
	refIdc := nalu[0] >> 5 & 0x3
	switch nalu[0] & 0x1f {
	case 7, 5:
		return refIdc != 0
	case 6, 9:
		return refIdc == 0
	case 1:
		return true
	}
	return false
}

// ProbeHEVC accepts a stream opening with an HEVC VPS, AUD or prefix SEI.
func ProbeHEVC(b []byte) bool {
	nalu := firstNALU(b)
	if len(nalu) < 2 || nalu[0]&0x80 != 0 {
		return false
	}
	layerID := (nalu[0]&0x1)<<5 | nalu[1]>>3
	tid := nalu[1] & 0x7
	if layerID != 0 || tid == 0 {
		return false
	}
	switch nalu[0] >> 1 & 0x3f {
	case 32, 35, 39:
		return true
	}
	return false
}

func newReaderDemuxer(typ av.CodecType) func(io.Reader, avutil.Dict) (av.Demuxer, error) {
	return func(r io.Reader, opts avutil.Dict) (av.Demuxer, error) {
		d := NewDemuxer(r, typ)
		if v, ok := opts.Get("framerate"); ok {
			fps, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("annexb: invalid framerate %q", v)
			}
			if err = d.SetFrameRate(fps); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
}

func H264Handler(h *avutil.RegisterHandler) {
	h.Name = "h264"
	h.Ext = ".h264"
	h.Probe = ProbeH264
	h.ReaderDemuxer = newReaderDemuxer(av.H264)
	h.CodecTypes = []av.CodecType{av.H264}
}

func HEVCHandler(h *avutil.RegisterHandler) {
	h.Name = "hevc"
	h.Ext = ".h265"
	h.Probe = ProbeHEVC
	h.ReaderDemuxer = newReaderDemuxer(av.H265)
	h.CodecTypes = []av.CodecType{av.H265}
}
