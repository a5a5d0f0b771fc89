// Package rawvideo
// Demuxes headerless streams of uncompressed video frames.
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-21
package rawvideo

import (
	"fmt"
	"io"
	"strconv"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/avutil"
	"github.com/teocci/go-avpack/codec/rawvideo"
)

// DefaultPixelFormat applies when no pixel_format option is given.
const DefaultPixelFormat = "yuv420p"

const DefaultFrameRate = 25

type Demuxer struct {
	r         io.Reader
	stream    av.Stream
	frameSize int
	frames    int64
	pos       int64
}

func NewDemuxer(r io.Reader, size av.Size, pf av.PixelFormat, fps int) (d *Demuxer, err error) {
	if size.Width <= 0 || size.Height <= 0 {
		err = av.Errorf(av.InvalidResolution, "rawvideo", "invalid video size %dx%d", size.Width, size.Height)
		return
	}
	if fps <= 0 {
		err = fmt.Errorf("rawvideo: invalid frame rate %d", fps)
		return
	}
	codec := rawvideo.CodecData{Size: size, PixFmt: pf}
	d = &Demuxer{
		r: r,
		stream: av.Stream{
			CodecData: codec,
			TimeBase:  av.NewRational(1, fps),
		},
	}
	if d.frameSize, err = codec.FrameSize(); err != nil {
		err = av.E(av.AllocationError, "rawvideo", err)
		return
	}
	return
}

func (d *Demuxer) Streams() ([]av.Stream, error) {
	return []av.Stream{d.stream}, nil
}

// ReadPacket returns one frame per packet. A short trailing frame is returned as is.
func (d *Demuxer) ReadPacket() (pkt av.Packet, err error) {
	data := make([]byte, d.frameSize)
	var n int
	n, err = io.ReadFull(d.r, data)
	switch {
	case err == io.EOF:
		return
	case err == io.ErrUnexpectedEOF:
		err = nil
	case err != nil:
		return
	}

	pkt = av.Packet{
		IsKeyFrame: true,
		PTS:        d.frames,
		DTS:        d.frames,
		Duration:   1,
		Pos:        d.pos,
		Data:       data[:n],
	}
	d.frames++
	d.pos += int64(n)
	return
}

// OptionsFromDict reads video_size, pixel_format and framerate.
func OptionsFromDict(opts avutil.Dict) (size av.Size, pf av.PixelFormat, fps int, err error) {
	v, ok := opts.Get("video_size")
	if !ok {
		err = av.Errorf(av.InvalidResolution, "rawvideo", "video_size is required")
		return
	}
	if size, err = av.ParseSize(v); err != nil {
		err = av.E(av.InvalidResolution, "rawvideo", err)
		return
	}

	name := DefaultPixelFormat
	if v, ok = opts.Get("pixel_format"); ok && v != "" {
		name = v
	}
	if pf, err = av.FindPixelFormat(name); err != nil {
		return
	}

	fps = DefaultFrameRate
	if v, ok = opts.Get("framerate"); ok {
		if fps, err = strconv.Atoi(v); err != nil {
			err = fmt.Errorf("rawvideo: invalid framerate %q", v)
		}
	}
	return
}

func Handler(h *avutil.RegisterHandler) {
	h.Name = "rawvideo"
	h.Ext = ".yuv"
	h.ReaderDemuxer = func(r io.Reader, opts avutil.Dict) (av.Demuxer, error) {
		size, pf, fps, err := OptionsFromDict(opts)
		if err != nil {
			return nil, err
		}
		return NewDemuxer(r, size, pf, fps)
	}
	h.CodecTypes = []av.CodecType{av.RAWVIDEO}
}
