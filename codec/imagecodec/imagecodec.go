// Package imagecodec
// Decodes still picture codecs (JPEG, PNG, GIF, BMP, TIFF and WebP), one picture per packet.
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-24
package imagecodec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/utils/bits/pio"
)

var log = logrus.WithField("pkg", "imagecodec")

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	jpegMagic = []byte{0xff, 0xd8, 0xff}
)

// Detect sniffs the image codec from the leading bytes of b, it returns 0 when unknown.
func Detect(b []byte) av.CodecType {
	switch {
	case bytes.HasPrefix(b, jpegMagic):
		return av.JPEG
	case bytes.HasPrefix(b, pngMagic):
		return av.PNG
	case bytes.HasPrefix(b, []byte("GIF87a")), bytes.HasPrefix(b, []byte("GIF89a")):
		return av.GIF
	case len(b) >= 12 && string(b[:4]) == "RIFF" && string(b[8:12]) == "WEBP":
		return av.WEBP
	case bytes.HasPrefix(b, []byte("II*\x00")), bytes.HasPrefix(b, []byte("MM\x00*")):
		return av.TIFF
	case len(b) >= 26 && b[0] == 'B' && b[1] == 'M' && pio.U32BE(b[6:]) == 0:
		return av.BMP
	}
	return 0
}

type CodecData struct {
	Codec  av.CodecType
	Size   av.Size
	PixFmt av.PixelFormat
}

func (cd CodecData) Type() av.CodecType {
	return cd.Codec
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

// NewCodecData reads the size and pixel format of the picture in b without decoding it.
func NewCodecData(codec av.CodecType, b []byte) (cd CodecData, err error) {
	var cfg image.Config
	if cfg, _, err = image.DecodeConfig(bytes.NewReader(b)); err != nil {
		err = fmt.Errorf("imagecodec: %s config: %w", codec, err)
		return
	}
	cd = CodecData{
		Codec:  codec,
		Size:   av.Size{Width: cfg.Width, Height: cfg.Height},
		PixFmt: pixelFormatOf(codec, cfg.ColorModel, b),
	}
	log.WithFields(logrus.Fields{
		"codec": codec,
		"size":  cd.Size,
		"pix":   cd.PixFmt,
	}).Debug("codec data")
	return
}

func pixelFormatOf(codec av.CodecType, model color.Model, b []byte) av.PixelFormat {
	switch model {
	case color.GrayModel:
		return av.PixFmtGray
	case color.YCbCrModel:
		switch codec {
		case av.WEBP:
			return av.PixFmtYUV420P
		case av.JPEG:
			return jpegPixelFormat(b)
		}
	}
	return av.PixFmtRGBA
}

const (
	markerSOF0 = 0xc0
	markerSOF2 = 0xc2
	markerSOS  = 0xda
)

// jpegPixelFormat reads the component sampling factors of the frame header.
func jpegPixelFormat(b []byte) av.PixelFormat {
	i := 2
	for i+4 <= len(b) {
		if b[i] != 0xff {
			break
		}
		marker := b[i+1]
		if marker == 0xff {
			i++
			continue
		}
		length := int(pio.U16BE(b[i+2:]))
		seg := b[i+4:]
		if length < 2 || len(seg) < length-2 {
			break
		}
		seg = seg[:length-2]
		switch {
		case marker >= markerSOF0 && marker <= markerSOF2:
			if len(seg) < 6 {
				return av.PixFmtRGBA
			}
			n := int(seg[5])
			if n == 1 {
				return av.PixFmtGray
			}
			if n != 3 || len(seg) < 6+3*n {
				return av.PixFmtRGBA
			}
			h0, v0 := seg[7]>>4, seg[7]&0xf
			h1, v1 := seg[10]>>4, seg[10]&0xf
			switch {
			case h0 == h1 && v0 == v1:
				return av.PixFmtYUVJ444P
			case h0 == 2*h1 && v0 == v1:
				return av.PixFmtYUVJ422P
			case h0 == 2*h1 && v0 == 2*v1:
				return av.PixFmtYUVJ420P
			}
			return av.PixFmtRGBA
		case marker == markerSOS:
			return av.PixFmtRGBA
		}
		i += 2 + length
	}
	return av.PixFmtRGBA
}
