// Package image2pipe
// Demuxes a sequence of concatenated still pictures, one packet per picture.
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-24
package image2pipe

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/avutil"
	"github.com/teocci/go-avpack/codec/imagecodec"
	"github.com/teocci/go-avpack/utils/bits/pio"
)

var log = logrus.WithField("pkg", "image2pipe")

const DefaultFrameRate = 25

// Hints override the stream parameters read from the first picture.
type Hints struct {
	Size      av.Size
	PixFmt    av.PixelFormat
	FrameRate int
}

type Demuxer struct {
	r      io.Reader
	hints  Hints
	data   []byte
	off    int
	frames int64
	codec  av.CodecType
	stream *av.Stream
}

func NewDemuxer(r io.Reader, hints Hints) *Demuxer {
	if hints.FrameRate <= 0 {
		hints.FrameRate = DefaultFrameRate
	}
	return &Demuxer{
		r:     r,
		hints: hints,
	}
}

func (d *Demuxer) probe() (err error) {
	if d.stream != nil {
		return
	}
	if d.data, err = io.ReadAll(d.r); err != nil {
		return
	}
	if len(d.data) == 0 {
		err = fmt.Errorf("image2pipe: empty input")
		return
	}
	if d.codec = imagecodec.Detect(d.data); d.codec == 0 {
		err = fmt.Errorf("image2pipe: unknown picture format")
		return
	}

	first := d.data[:splitLen(d.codec, d.data)]
	var cd imagecodec.CodecData
	if cd, err = imagecodec.NewCodecData(d.codec, first); err != nil {
		return
	}
	if !d.hints.Size.IsZero() {
		cd.Size = d.hints.Size
	}
	if d.hints.PixFmt != av.PixFmtNone {
		cd.PixFmt = d.hints.PixFmt
	}

	log.WithFields(logrus.Fields{
		"codec": d.codec,
		"size":  cd.Size,
		"pix":   cd.PixFmt,
	}).Debug("probe")

	d.stream = &av.Stream{
		CodecData: cd,
		TimeBase:  av.NewRational(1, d.hints.FrameRate),
	}
	return
}

func (d *Demuxer) Streams() (streams []av.Stream, err error) {
	if err = d.probe(); err != nil {
		return
	}
	streams = []av.Stream{*d.stream}
	return
}

func (d *Demuxer) ReadPacket() (pkt av.Packet, err error) {
	if err = d.probe(); err != nil {
		return
	}
	if d.off >= len(d.data) {
		err = io.EOF
		return
	}

	rest := d.data[d.off:]
	n := splitLen(d.codec, rest)
	pkt = av.Packet{
		IsKeyFrame: true,
		PTS:        d.frames,
		DTS:        d.frames,
		Duration:   1,
		Pos:        int64(d.off),
		Data:       rest[:n:n],
	}
	d.off += n
	d.frames++
	return
}

// splitLen returns the length of the first picture of b, or len(b) when it cannot be delimited.
func splitLen(codec av.CodecType, b []byte) (n int) {
	switch codec {
	case av.JPEG:
		n = jpegLen(b)
	case av.PNG:
		n = pngLen(b)
	case av.BMP:
		if len(b) >= 6 {
			n = int(binary.LittleEndian.Uint32(b[2:]))
		}
	case av.WEBP:
		if len(b) >= 8 {
			n = int(binary.LittleEndian.Uint32(b[4:])) + 8
		}
	}
	if n <= 0 || n > len(b) {
		n = len(b)
	}
	return
}

func jpegLen(b []byte) int {
	i := 2
	for i+1 < len(b) {
		if b[i] != 0xff {
			return 0
		}
		marker := b[i+1]
		switch {
		case marker == 0xff:
			i++
			continue
		case marker == 0xd9:
			return i + 2
		case marker == 0x01 || (marker >= 0xd0 && marker <= 0xd7):
			i += 2
			continue
		}
		if i+4 > len(b) {
			return 0
		}
		i += 2 + int(pio.U16BE(b[i+2:]))
		if marker != 0xda {
			continue
		}
		// entropy coded data runs until the next marker that is neither stuffing nor a restart
		for i+1 < len(b) {
			if b[i] == 0xff && b[i+1] != 0 && !(b[i+1] >= 0xd0 && b[i+1] <= 0xd7) {
				break
			}
			i++
		}
	}
	return 0
}

func pngLen(b []byte) int {
	i := 8
	for i+12 <= len(b) {
		length := int(pio.U32BE(b[i:]))
		typ := string(b[i+4 : i+8])
		i += 12 + length
		if typ == "IEND" {
			return i
		}
	}
	return 0
}

// HintsFromDict reads video_size, pixel_format and framerate.
func HintsFromDict(opts avutil.Dict) (hints Hints, err error) {
	if v, ok := opts.Get("video_size"); ok && v != "" {
		if hints.Size, err = av.ParseSize(v); err != nil {
			err = av.E(av.InvalidResolution, "image2pipe", err)
			return
		}
	}
	if v, ok := opts.Get("pixel_format"); ok && v != "" {
		if hints.PixFmt, err = av.FindPixelFormat(v); err != nil {
			return
		}
	}
	if v, ok := opts.Get("framerate"); ok && v != "" {
		if hints.FrameRate, err = strconv.Atoi(v); err != nil || hints.FrameRate <= 0 {
			err = fmt.Errorf("image2pipe: invalid framerate %q", v)
			return
		}
	}
	return
}

func Handler(h *avutil.RegisterHandler) {
	h.Name = "image2pipe"
	h.Probe = func(b []byte) bool {
		return imagecodec.Detect(b) != 0
	}
	h.ReaderDemuxer = func(r io.Reader, opts avutil.Dict) (av.Demuxer, error) {
		hints, err := HintsFromDict(opts)
		if err != nil {
			return nil, err
		}
		return NewDemuxer(r, hints), nil
	}
	h.CodecTypes = imagecodec.Codecs
}
