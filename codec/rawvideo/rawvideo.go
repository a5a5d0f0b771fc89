// Package rawvideo
// Decodes uncompressed video frames laid out as contiguous planes.
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-21
package rawvideo

import (
	"fmt"
	"io"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/avutil"
)

type CodecData struct {
	Size   av.Size
	PixFmt av.PixelFormat
}

func (cd CodecData) Type() av.CodecType {
	return av.RAWVIDEO
}

func (cd CodecData) Width() int {
	return cd.Size.Width
}

func (cd CodecData) Height() int {
	return cd.Size.Height
}

func (cd CodecData) PixelFormat() av.PixelFormat {
	return cd.PixFmt
}

// FrameSize returns the packet size of one frame.
func (cd CodecData) FrameSize() (int, error) {
	l, err := av.ImageLayout(cd.PixFmt, cd.Size.Width, cd.Size.Height)
	if err != nil {
		return 0, err
	}
	return l.Size, nil
}

// Decoder turns every packet into one frame without copying.
type Decoder struct {
	codec    CodecData
	layout   av.Layout
	pending  *av.Frame
	draining bool
}

func NewDecoder(codec CodecData) (dec *Decoder, err error) {
	dec = &Decoder{codec: codec}
	if dec.layout, err = av.ImageLayout(codec.PixFmt, codec.Size.Width, codec.Size.Height); err != nil {
		err = fmt.Errorf("rawvideo: %w", err)
		return
	}
	return
}

func (d *Decoder) SendPacket(pkt av.Packet) (err error) {
	if len(pkt.Data) == 0 {
		d.draining = true
		return
	}
	if d.pending != nil {
		err = av.ErrAgain
		return
	}
	if len(pkt.Data) < d.layout.Size {
		err = fmt.Errorf("rawvideo: invalid buffer size, packet size %d < expected frame size %d", len(pkt.Data), d.layout.Size)
		return
	}

	f := &av.Frame{
		Width:   d.codec.Size.Width,
		Height:  d.codec.Size.Height,
		Format:  d.codec.PixFmt,
		Strides: d.layout.Strides,
		PTS:     pkt.PTS,
	}
	for i, stride := range d.layout.Strides {
		if stride == 0 {
			break
		}
		off := d.layout.Offsets[i]
		f.Planes[i] = pkt.Data[off : off+stride*d.layout.Heights[i]]
	}
	d.pending = f
	return
}

func (d *Decoder) ReceiveFrame() (f *av.Frame, err error) {
	if d.pending != nil {
		f, d.pending = d.pending, nil
		return
	}
	if d.draining {
		err = io.EOF
		return
	}
	err = av.ErrAgain
	return
}

func (d *Decoder) Close() {
	d.pending = nil
}

func Handler(h *avutil.RegisterHandler) {
	h.Name = "rawvideo"
	h.DecoderTypes = []av.CodecType{av.RAWVIDEO}
	h.NewVideoDecoder = func(codec av.CodecData, _ avutil.Dict) (av.VideoDecoder, error) {
		cd, ok := codec.(CodecData)
		if !ok {
			return nil, fmt.Errorf("rawvideo: unexpected codec data %T", codec)
		}
		return NewDecoder(cd)
	}
}
