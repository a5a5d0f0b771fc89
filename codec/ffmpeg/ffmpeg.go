//go:build ffmpeg

// Package ffmpeg
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-27
package ffmpeg

import (
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"
	"github.com/sirupsen/logrus"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/avutil"
	"github.com/teocci/go-avpack/codec/h264parser"
	"github.com/teocci/go-avpack/codec/h265parser"
)

const Available = true

var log = logrus.WithField("pkg", "ffmpeg")

var pixelFormats = map[astiav.PixelFormat]av.PixelFormat{
	astiav.PixelFormatGray8:    av.PixFmtGray,
	astiav.PixelFormatYuv420P:  av.PixFmtYUV420P,
	astiav.PixelFormatYuvj420P: av.PixFmtYUVJ420P,
	astiav.PixelFormatYuv422P:  av.PixFmtYUV422P,
	astiav.PixelFormatYuvj422P: av.PixFmtYUVJ422P,
	astiav.PixelFormatYuv444P:  av.PixFmtYUV444P,
	astiav.PixelFormatYuvj444P: av.PixFmtYUVJ444P,
	astiav.PixelFormatNv12:     av.PixFmtNV12,
	astiav.PixelFormatRgb24:    av.PixFmtRGB24,
	astiav.PixelFormatBgr24:    av.PixFmtBGR24,
	astiav.PixelFormatRgba:     av.PixFmtRGBA,
	astiav.PixelFormatBgra:     av.PixFmtBGRA,
}

// Decoder feeds Annex-B access units to libavcodec. Parameter sets are
// repeated before every key frame so no extradata is needed.
type Decoder struct {
	cc    *astiav.CodecContext
	pkt   *astiav.Packet
	frame *astiav.Frame

	paramSets  [][]byte
	lengthSize int
}

func NewDecoder(codec av.CodecData) (dec *Decoder, err error) {
	dec = &Decoder{}

	var id astiav.CodecID
	switch cd := codec.(type) {
	case h264parser.CodecData:
		id = astiav.CodecIDH264
		dec.paramSets = cd.ParameterSets()
		dec.lengthSize = cd.NALULengthSize()
	case h265parser.CodecData:
		id = astiav.CodecIDHevc
		dec.paramSets = cd.ParameterSets()
		dec.lengthSize = cd.NALULengthSize()
	default:
		err = fmt.Errorf("ffmpeg: unsupported codec data %T", codec)
		return
	}

	c := astiav.FindDecoder(id)
	if c == nil {
		err = fmt.Errorf("ffmpeg: decoder %s not found", codec.Type())
		return
	}
	if dec.cc = astiav.AllocCodecContext(c); dec.cc == nil {
		err = fmt.Errorf("ffmpeg: codec context allocation failed")
		return
	}
	if err = dec.cc.Open(c, nil); err != nil {
		dec.Close()
		err = fmt.Errorf("ffmpeg: open %s: %w", codec.Type(), err)
		return
	}
	dec.pkt = astiav.AllocPacket()
	dec.frame = astiav.AllocFrame()

	log.WithField("codec", codec.Type()).Debug("decoder opened")
	return
}

func (d *Decoder) SendPacket(pkt av.Packet) (err error) {
	if len(pkt.Data) == 0 {
		if err = d.cc.SendPacket(nil); errors.Is(err, astiav.ErrEof) {
			err = nil
		}
		return
	}

	var nalus [][]byte
	if nalus, err = h264parser.SplitAVCC(pkt.Data, d.lengthSize); err != nil {
		return
	}
	if pkt.IsKeyFrame {
		nalus = append(append([][]byte{}, d.paramSets...), nalus...)
	}

	d.pkt.Unref()
	if err = d.pkt.FromData(h264parser.NALUsToAnnexB(nalus)); err != nil {
		return
	}
	d.pkt.SetPts(pkt.PTS)
	d.pkt.SetDts(pkt.DTS)

	if err = d.cc.SendPacket(d.pkt); errors.Is(err, astiav.ErrEagain) {
		err = av.ErrAgain
	}
	return
}

func (d *Decoder) ReceiveFrame() (f *av.Frame, err error) {
	d.frame.Unref()
	if err = d.cc.ReceiveFrame(d.frame); err != nil {
		switch {
		case errors.Is(err, astiav.ErrEagain):
			err = av.ErrAgain
		case errors.Is(err, astiav.ErrEof):
			err = io.EOF
		}
		return
	}

	pf, ok := pixelFormats[d.frame.PixelFormat()]
	if !ok {
		err = fmt.Errorf("ffmpeg: unsupported pixel format %s", d.frame.PixelFormat())
		return
	}
	w, h := d.frame.Width(), d.frame.Height()

	var l av.Layout
	if l, err = av.ImageLayout(pf, w, h); err != nil {
		return
	}
	var b []byte
	if b, err = d.frame.Data().Bytes(1); err != nil {
		return
	}
	if len(b) < l.Size {
		err = fmt.Errorf("ffmpeg: frame buffer %d shorter than %d", len(b), l.Size)
		return
	}

	f = &av.Frame{
		Width:   w,
		Height:  h,
		Format:  pf,
		Strides: l.Strides,
		PTS:     d.frame.Pts(),
	}
	for i := range l.Strides {
		if l.Strides[i] == 0 {
			continue
		}
		off := l.Offsets[i]
		f.Planes[i] = b[off : off+l.Strides[i]*l.Heights[i]]
	}
	return
}

func (d *Decoder) Close() {
	if d.frame != nil {
		d.frame.Free()
		d.frame = nil
	}
	if d.pkt != nil {
		d.pkt.Free()
		d.pkt = nil
	}
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
}

func Handler(h *avutil.RegisterHandler) {
	h.Name = "ffmpeg"
	h.DecoderTypes = []av.CodecType{av.H264, av.H265}
	h.NewVideoDecoder = func(codec av.CodecData, _ avutil.Dict) (av.VideoDecoder, error) {
		return NewDecoder(codec)
	}
}
