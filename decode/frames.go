// Package decode
// Created by RTT.
// Author: teocci@yandex.com on 2023-Apr-05
package decode

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/avbuf"
	"github.com/teocci/go-avpack/av/avutil"
	"github.com/teocci/go-avpack/av/pktque"
	"github.com/teocci/go-avpack/format"
)

const op = "decode"

// ErrNoFrame is wrapped into a DecodeError when the input yields no picture.
var ErrNoFrame = errors.New("decode: no frame decoded")

// FrameIter walks the decoded pictures of one video stream. It is finite and cannot be restarted.
//
// The picture returned by Picture is reused by the next call to Next, Clone it to keep it.
type FrameIter struct {
	ctx  context.Context
	opts Options
	l    *logrus.Entry

	src     av.Demuxer
	demuxer av.Demuxer
	dec     av.VideoDecoder
	idx     int

	pic  *av.Picture
	held *av.Packet
	n    int

	err      error
	draining bool
	done     bool
	closed   bool
}

func Frames(in *avbuf.Region, opts Options) (*FrameIter, error) {
	return FramesContext(context.Background(), in, opts)
}

// FramesContext opens in and prepares the decoder of its best video stream.
// ctx is checked before every packet.
func FramesContext(ctx context.Context, in *avbuf.Region, opts Options) (it *FrameIter, err error) {
	format.RegisterAll()

	var name string
	var dict avutil.Dict
	if name, dict, err = opts.demuxerArgs(); err != nil {
		return
	}
	if in == nil || in.Released() {
		err = av.E(av.IOError, op, av.ErrReleased)
		return
	}

	it = &FrameIter{
		ctx:  ctx,
		opts: opts,
		l: log.WithFields(logrus.Fields{
			"op":     uuid.NewString(),
			"source": opts.source(),
			"format": opts.Format,
		}),
	}
	if err = it.open(in, name, dict); err != nil {
		it.Close()
		it = nil
	}
	return
}

func (o Options) demuxerArgs() (name string, dict avutil.Dict, err error) {
	size := o.Resolution
	if size.Width < 0 || size.Height < 0 || (size.Width == 0) != (size.Height == 0) {
		err = av.Errorf(av.InvalidResolution, op, "invalid resolution %s", size)
		return
	}

	dict = avutil.Dict{}
	if o.HasResolution() {
		dict["video_size"] = size.String()
	}
	if o.PixelFormat != "" {
		if _, err = av.FindPixelFormat(o.PixelFormat); err != nil {
			err = av.E(av.ConversionUnsupported, op, err)
			return
		}
		dict["pixel_format"] = o.PixelFormat
	}

	switch o.source() {
	case SourceRawVideo:
		if !o.HasResolution() {
			err = av.Errorf(av.InvalidResolution, op, "raw video needs a resolution")
			return
		}
		name = "rawvideo"
	case SourceImage:
		name = "image2pipe"
	default:
		name = o.Format
	}
	return
}

// source resolves SourceAuto with a named raw or image format to the matching Source.
func (o Options) source() Source {
	if o.Source != SourceAuto {
		return o.Source
	}
	switch o.Format {
	case "rawvideo":
		return SourceRawVideo
	case "image2pipe":
		return SourceImage
	}
	return SourceAuto
}

func (it *FrameIter) open(in *avbuf.Region, name string, dict avutil.Dict) (err error) {
	if it.src, err = avutil.DefaultHandlers.OpenDemuxer(in.Cursor(), name, dict); err != nil {
		return demuxError(err)
	}

	var streams []av.Stream
	if streams, err = it.src.Streams(); err != nil {
		return demuxError(err)
	}
	it.idx = -1
	for i, stream := range streams {
		if stream.Type().IsVideo() {
			it.idx = i
			break
		}
	}
	if it.idx < 0 {
		return av.Errorf(av.NoVideoStream, op, "no video stream in %d streams", len(streams))
	}
	stream := streams[it.idx]
	// leading packets that need earlier references are skipped
	it.demuxer = &pktque.FilterDemuxer{Demuxer: it.src, Filter: &pktque.WaitKeyFrame{}}

	// the demuxer may keep dict
	if it.dec, err = avutil.DefaultHandlers.NewVideoDecoder(stream.CodecData, dict.Copy()); err != nil {
		return av.E(av.DecodeError, op, err)
	}

	if cd, ok := stream.CodecData.(av.PixelFormatCodecData); ok {
		if it.pic, err = av.NewPicture(cd.PixelFormat(), cd.Width(), cd.Height()); err != nil {
			return av.E(av.AllocationError, op, err)
		}
	}

	it.l.WithFields(logrus.Fields{
		"stream": it.idx,
		"codec":  stream.Type(),
	}).Debug("decoder opened")
	return
}

// Next decodes up to the next picture. It returns false at the end of the input or on error.
func (it *FrameIter) Next() bool {
	for it.err == nil && !it.done {
		if err := it.ctx.Err(); err != nil {
			it.err = av.E(av.IOError, op, err)
			break
		}

		f, err := it.dec.ReceiveFrame()
		switch {
		case err == nil:
			if it.err = it.store(f); it.err != nil {
				return false
			}
			return true
		case err == io.EOF:
			it.finish()
		case err == av.ErrAgain:
			if it.draining {
				it.finish()
			} else {
				it.feed()
			}
		default:
			it.packetError(err)
			if it.draining {
				it.finish()
			} else {
				it.feed()
			}
		}
	}
	return false
}

func (it *FrameIter) feed() {
	var pkt av.Packet
	if it.held != nil {
		pkt, it.held = *it.held, nil
	} else {
		var err error
		if pkt, err = it.demuxer.ReadPacket(); err != nil {
			if err != io.EOF {
				it.err = demuxError(err)
				return
			}
			it.draining = true
			if err = it.dec.SendPacket(av.Packet{}); err != nil {
				it.packetError(err)
			}
			return
		}
		if int(pkt.Idx) != it.idx {
			return
		}
	}

	err := it.dec.SendPacket(pkt)
	switch {
	case err == av.ErrAgain:
		it.held = &pkt
	case err != nil:
		it.packetError(err)
	}
}

func (it *FrameIter) packetError(err error) {
	if it.opts.Errors == nil {
		it.err = av.E(av.DecodeError, op, err)
		return
	}
	it.opts.Errors.add(err)
	it.l.WithError(err).Warn("packet skipped")
}

func (it *FrameIter) finish() {
	it.done = true
	if it.n == 0 && it.err == nil {
		it.err = av.E(av.DecodeError, op, ErrNoFrame)
	}
	it.l.WithField("frames", it.n).Debug("decoder drained")
}

func (it *FrameIter) store(f *av.Frame) (err error) {
	if it.pic == nil || it.pic.Width != f.Width || it.pic.Height != f.Height || it.pic.Format != f.Format {
		if it.pic, err = av.NewPicture(f.Format, f.Width, f.Height); err != nil {
			return av.E(av.AllocationError, op, err)
		}
	}
	if err = it.pic.CopyFrame(f); err != nil {
		return av.E(av.DecodeError, op, err)
	}
	it.n++
	return
}

// Picture returns the current picture, nil before the first successful Next.
func (it *FrameIter) Picture() *av.Picture {
	if it.n == 0 {
		return nil
	}
	return it.pic
}

func (it *FrameIter) Err() error {
	return it.err
}

// Count returns the number of pictures decoded so far.
func (it *FrameIter) Count() int {
	return it.n
}

func (it *FrameIter) Close() {
	if it.closed {
		return
	}
	it.closed = true
	if it.dec != nil {
		it.dec.Close()
	}
	if c, ok := it.src.(av.DemuxCloser); ok {
		_ = c.Close()
	}
}

func demuxError(err error) error {
	if errors.Is(err, av.ErrReleased) {
		return av.E(av.IOError, op, err)
	}
	return av.E(av.DemuxError, op, err)
}
