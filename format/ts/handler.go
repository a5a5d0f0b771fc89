// Package ts
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package ts

import (
	"io"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/avutil"
	"github.com/teocci/go-avpack/format/ts/tsio"
)

var CodecTypes = []av.CodecType{av.H264, av.H265}

// Probe checks the sync byte of the first packets.
func Probe(b []byte) bool {
	if len(b) <= tsio.PacketSize {
		return false
	}
	for i := 0; i < len(b) && i < 3*tsio.PacketSize; i += tsio.PacketSize {
		if b[i] != tsio.SyncByte {
			return false
		}
	}
	return true
}

func Handler(h *avutil.RegisterHandler) {
	h.Name = "mpegts"
	h.Ext = ".ts"

	h.Probe = Probe

	h.ReaderDemuxer = func(r io.Reader, _ avutil.Dict) (av.Demuxer, error) {
		return NewDemuxer(r), nil
	}

	h.CodecTypes = CodecTypes
}
