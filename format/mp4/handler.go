// Package mp4
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4

import (
	"bytes"
	"io"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/avutil"
)

var CodecTypes = []av.CodecType{av.H264, av.H265}

// Probe accepts input starting with one of the usual top level boxes.
func Probe(b []byte) bool {
	if len(b) < 8 {
		return false
	}
	switch string(b[4:8]) {
	case "moov", "ftyp", "free", "mdat", "wide", "skip":
		return true
	}
	return false
}

func Handler(h *avutil.RegisterHandler) {
	h.Name = "mp4"
	h.Ext = ".mp4"

	h.Probe = Probe

	h.ReaderDemuxer = func(r io.Reader, _ avutil.Dict) (av.Demuxer, error) {
		if rs, ok := r.(io.ReadSeeker); ok {
			return NewDemuxer(rs), nil
		}
		// moov may follow mdat, so non seekable input is spooled
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return NewDemuxer(bytes.NewReader(b)), nil
	}

	h.WriterMuxer = func(w io.WriteSeeker) av.Muxer {
		return NewMuxer(w)
	}

	h.CodecTypes = CodecTypes
}
