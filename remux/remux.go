// Package remux
// Repackages a single compressed video stream into an MP4 container in memory.
// Created by RTT.
// Author: teocci@yandex.com on 2023-Apr-03
package remux

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
	"github.com/teocci/go-avpack/format/mp4"
	"github.com/teocci/go-avpack/format/mp4/mp4io"
)

const op = "remux"

var log = logrus.WithField("pkg", "remux")

type Options struct {
	// Format names the input demuxer, empty probes the input.
	Format string
	// Logger replaces the package logger.
	Logger *logrus.Entry
}

// Remux copies the packets of the only video stream of in into a new MP4 file.
func Remux(in *avbuf.Region) (*avbuf.Region, error) {
	return RemuxContext(context.Background(), in, Options{})
}

// RemuxContext is Remux with cancellation checked between packets.
// On failure no output is returned.
func RemuxContext(ctx context.Context, in *avbuf.Region, opts Options) (out *avbuf.Region, err error) {
	format.RegisterAll()

	l := opts.Logger
	if l == nil {
		l = log
	}
	l = l.WithField("op", uuid.NewString())

	if in == nil || in.Released() {
		err = av.E(av.IOError, op, av.ErrReleased)
		return
	}

	var demuxer av.Demuxer
	if demuxer, err = avutil.DefaultHandlers.OpenDemuxer(in.Cursor(), opts.Format, nil); err != nil {
		err = demuxError(err)
		return
	}
	if c, ok := demuxer.(av.DemuxCloser); ok {
		defer c.Close()
	}

	var streams []av.Stream
	if streams, err = demuxer.Streams(); err != nil {
		err = demuxError(err)
		return
	}
	if len(streams) != 1 || !streams[0].Type().IsVideo() {
		err = av.Errorf(av.UnsupportedStreamShape, op, "need exactly one video stream, have %d", len(streams))
		return
	}

	stream := streams[0]
	stream.Idx = 0
	stream.CodecTag = 0

	sink := avbuf.NewSink(in.Len())
	muxer := mp4.NewMuxer(sink)
	if stream.Type() == av.H265 {
		muxer.Strict = mp4.StrictUnofficial
		stream.CodecTag = uint32(mp4io.HVC1)
	}
	if err = muxer.WriteHeader([]av.Stream{stream}); err != nil {
		err = av.E(av.MuxError, op, err)
		return
	}

	outTB := muxer.Streams()[0].TimeBase
	l.WithFields(logrus.Fields{
		"codec":  stream.Type(),
		"in_tb":  stream.TimeBase,
		"out_tb": outTB,
	}).Debug("header written")

	src := &pktque.FilterDemuxer{
		Demuxer: demuxer,
		Filter: pktque.Filters{
			pktque.StreamMap{Map: []int{0}},
			&pktque.FixTime{},
			pktque.Rescale{Out: []av.Rational{outTB}},
		},
	}

	n := 0
	for {
		if err = ctx.Err(); err != nil {
			err = av.E(av.IOError, op, err)
			return
		}

		var pkt av.Packet
		if pkt, err = src.ReadPacket(); err != nil {
			if err == io.EOF {
				break
			}
			err = demuxError(err)
			return
		}
		if err = muxer.WritePacket(pkt); err != nil {
			err = av.E(av.MuxError, op, err)
			return
		}
		n++
	}

	if err = muxer.WriteTrailer(); err != nil {
		err = av.E(av.MuxError, op, err)
		return
	}

	out = sink.Freeze()
	l.WithFields(logrus.Fields{
		"packets": n,
		"bytes":   out.Len(),
	}).Debug("remux done")
	return
}

func demuxError(err error) error {
	if errors.Is(err, av.ErrReleased) {
		return av.E(av.IOError, op, err)
	}
	return av.E(av.DemuxError, op, err)
}
