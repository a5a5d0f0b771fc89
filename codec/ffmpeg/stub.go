//go:build !ffmpeg

// Package ffmpeg
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-27
package ffmpeg

import (
	"github.com/teocci/go-avpack/av/avutil"
)

// Available reports whether libavcodec decoding is compiled in.
const Available = false

func Handler(h *avutil.RegisterHandler) {
	h.Name = "ffmpeg"
}
