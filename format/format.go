// Package format
// Registers every container format and video decoder of the module.
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package format

import (
	"sync"

	"github.com/teocci/go-avpack/av/avutil"
	"github.com/teocci/go-avpack/codec/ffmpeg"
	"github.com/teocci/go-avpack/codec/imagecodec"
	rawcodec "github.com/teocci/go-avpack/codec/rawvideo"
	"github.com/teocci/go-avpack/format/annexb"
	"github.com/teocci/go-avpack/format/image2pipe"
	"github.com/teocci/go-avpack/format/mkv"
	"github.com/teocci/go-avpack/format/mp4"
	"github.com/teocci/go-avpack/format/rawvideo"
	"github.com/teocci/go-avpack/format/rtp"
	"github.com/teocci/go-avpack/format/ts"
)

var once sync.Once

// RegisterAll adds the formats and decoders to avutil.DefaultHandlers, once.
// Probing follows registration order.
func RegisterAll() {
	once.Do(func() {
		avutil.DefaultHandlers.Add(mp4.Handler)
		avutil.DefaultHandlers.Add(ts.Handler)
		avutil.DefaultHandlers.Add(mkv.Handler)
		avutil.DefaultHandlers.Add(image2pipe.Handler)
		avutil.DefaultHandlers.Add(annexb.H264Handler)
		avutil.DefaultHandlers.Add(annexb.HEVCHandler)
		avutil.DefaultHandlers.Add(rtp.Handler)
		avutil.DefaultHandlers.Add(rawvideo.Handler)

		avutil.DefaultHandlers.Add(rawcodec.Handler)
		avutil.DefaultHandlers.Add(imagecodec.Handler)
		avutil.DefaultHandlers.Add(ffmpeg.Handler)
	})
}
