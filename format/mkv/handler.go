// Package mkv
// Demuxes H.264 and HEVC video tracks from Matroska and WebM documents.
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mkv

import (
	"bytes"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/avutil"
)

var log = logrus.WithField("pkg", "mkv")

var CodecTypes = []av.CodecType{av.H264, av.H265}

var ebmlMagic = []byte{0x1a, 0x45, 0xdf, 0xa3}

func Probe(b []byte) bool {
	return bytes.HasPrefix(b, ebmlMagic)
}

func Handler(h *avutil.RegisterHandler) {
	h.Name = "matroska"
	h.Ext = ".mkv"
	h.Probe = Probe
	h.ReaderDemuxer = func(r io.Reader, _ avutil.Dict) (av.Demuxer, error) {
		return NewDemuxer(r), nil
	}
	h.CodecTypes = CodecTypes
}
