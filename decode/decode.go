// Package decode
// Decodes the last picture of a compressed video, a raw frame sequence or an image.
// Created by RTT.
// Author: teocci@yandex.com on 2023-Apr-05
package decode

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/avbuf"
)

var log = logrus.WithField("pkg", "decode")

// Decode returns the last picture decoded from in.
func Decode(in *avbuf.Region, opts Options) (*av.Picture, error) {
	return DecodeContext(context.Background(), in, opts)
}

func DecodeContext(ctx context.Context, in *avbuf.Region, opts Options) (pic *av.Picture, err error) {
	var it *FrameIter
	if it, err = FramesContext(ctx, in, opts); err != nil {
		return
	}
	defer it.Close()

	for it.Next() {
	}
	if err = it.Err(); err != nil {
		return
	}
	pic = it.Picture()
	return
}

// Video decodes a probed H.264 or HEVC input.
func Video(in *avbuf.Region) (*av.Picture, error) {
	return Decode(in, Options{})
}

// Raw decodes w x h yuv420p frames.
func Raw(in *avbuf.Region, w, h int) (*av.Picture, error) {
	return Decode(in, RawVideoOptions(w, h))
}

func Image(in *avbuf.Region) (*av.Picture, error) {
	return Decode(in, ImageOptions())
}

// ImageWithFormat decodes an image of size w x h into pixfmt. Broken images are
// skipped and reported in the returned log.
func ImageWithFormat(in *avbuf.Region, w, h int, pixfmt string) (*av.Picture, *ErrorLog, error) {
	opts := ImageOptions()
	opts.Resolution = av.Size{Width: w, Height: h}
	opts.PixelFormat = pixfmt
	opts.Errors = &ErrorLog{}

	pic, err := Decode(in, opts)
	return pic, opts.Errors, err
}
