// Package avtest
// Created by RTT.
// Author: teocci@yandex.com on 2023-Apr-03
package avtest

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Ramp returns a w x h 4:2:0 picture whose luma grows 16 per column, with constant chroma.
func Ramp(w, h int) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Y[img.YOffset(x, y)] = uint8(x * 16)
		}
	}
	for i := range img.Cb {
		img.Cb[i] = 100
		img.Cr[i] = 150
	}
	return img
}

// GrayImage returns a uniform w x h gray picture.
func GrayImage(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// ColorImage returns a uniform w x h picture of c.
func ColorImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encode(fn func(*bytes.Buffer) error) []byte {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func JPEG(img image.Image) []byte {
	return encode(func(b *bytes.Buffer) error { return jpeg.Encode(b, img, &jpeg.Options{Quality: 95}) })
}

func PNG(img image.Image) []byte {
	return encode(func(b *bytes.Buffer) error { return png.Encode(b, img) })
}

func GIF(img image.Image) []byte {
	return encode(func(b *bytes.Buffer) error { return gif.Encode(b, img, nil) })
}

func BMP(img image.Image) []byte {
	return encode(func(b *bytes.Buffer) error { return bmp.Encode(b, img) })
}

func TIFF(img image.Image) []byte {
	return encode(func(b *bytes.Buffer) error { return tiff.Encode(b, img, nil) })
}
