// Package imagecodec
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-24
package imagecodec

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"golang.org/x/image/draw"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/avutil"
	"github.com/teocci/go-avpack/transform"
)

var ycbcrFormats = map[image.YCbCrSubsampleRatio]av.PixelFormat{
	image.YCbCrSubsampleRatio420: av.PixFmtYUVJ420P,
	image.YCbCrSubsampleRatio422: av.PixFmtYUVJ422P,
	image.YCbCrSubsampleRatio444: av.PixFmtYUVJ444P,
}

// Decoder decodes every packet as one complete picture and converts it to the
// pixel format of its CodecData.
type Decoder struct {
	codec    CodecData
	pending  *av.Frame
	draining bool
}

func NewDecoder(codec CodecData) *Decoder {
	return &Decoder{codec: codec}
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

	var img image.Image
	if img, _, err = image.Decode(bytes.NewReader(pkt.Data)); err != nil {
		err = fmt.Errorf("imagecodec: %s: %w", d.codec.Codec, err)
		return
	}
	var f *av.Frame
	if f, err = d.frame(img); err != nil {
		return
	}
	f.PTS = pkt.PTS
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

func (d *Decoder) frame(img image.Image) (f *av.Frame, err error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if size := d.codec.Size; !size.IsZero() && (size.Width != w || size.Height != h) {
		err = fmt.Errorf("imagecodec: picture is %dx%d, stream expects %v", w, h, size)
		return
	}

	f = nativeFrame(img, d.codec.Codec)
	if d.codec.PixFmt == av.PixFmtNone || f.Format == d.codec.PixFmt {
		return
	}

	var pic *av.Picture
	if pic, err = av.NewPicture(f.Format, w, h); err != nil {
		return
	}
	if err = pic.CopyFrame(f); err != nil {
		return
	}
	if pic, err = transform.Transform(pic, w, h, d.codec.PixFmt); err != nil {
		return
	}
	f = pic.Frame()
	return
}

// nativeFrame exposes the decoded planes without copying when the picture
// is stored in a layout av knows, otherwise it is drawn into rgba.
func nativeFrame(img image.Image, codec av.CodecType) *av.Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch m := img.(type) {
	case *image.YCbCr:
		if pf, ok := ycbcrFormats[m.SubsampleRatio]; ok {
			// VP8 carries limited range samples
			if codec == av.WEBP && pf == av.PixFmtYUVJ420P {
				pf = av.PixFmtYUV420P
			}
			yoff := m.YOffset(b.Min.X, b.Min.Y)
			coff := m.COffset(b.Min.X, b.Min.Y)
			return &av.Frame{
				Width:   w,
				Height:  h,
				Format:  pf,
				Strides: [4]int{m.YStride, m.CStride, m.CStride},
				Planes:  [4][]byte{m.Y[yoff:], m.Cb[coff:], m.Cr[coff:]},
			}
		}
	case *image.Gray:
		return &av.Frame{
			Width:   w,
			Height:  h,
			Format:  av.PixFmtGray,
			Strides: [4]int{m.Stride},
			Planes:  [4][]byte{m.Pix[m.PixOffset(b.Min.X, b.Min.Y):]},
		}
	}

	rgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return &av.Frame{
		Width:   w,
		Height:  h,
		Format:  av.PixFmtRGBA,
		Strides: [4]int{rgba.Stride},
		Planes:  [4][]byte{rgba.Pix},
	}
}

// Codecs lists the codecs handled by the decoder.
var Codecs = []av.CodecType{av.JPEG, av.PNG, av.GIF, av.BMP, av.TIFF, av.WEBP}

func Handler(h *avutil.RegisterHandler) {
	h.Name = "imagecodec"
	h.DecoderTypes = Codecs
	h.NewVideoDecoder = func(codec av.CodecData, _ avutil.Dict) (av.VideoDecoder, error) {
		cd, ok := codec.(CodecData)
		if !ok {
			return nil, fmt.Errorf("imagecodec: unexpected codec data %T", codec)
		}
		return NewDecoder(cd), nil
	}
}
