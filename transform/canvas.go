// Package transform
// Created by RTT.
// Author: teocci@yandex.com on 2021-Nov-02
package transform

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/teocci/go-avpack/av"
)

// canvas holds a picture at full resolution, either as full range YCbCr 4:4:4 planes or as RGBA.
type canvas struct {
	y, cb, cr *image.Gray
	rgba      *image.RGBA
}

func roundDiv(a, b int) int {
	if a < 0 {
		return -((-a + b/2) / b)
	}
	return (a + b/2) / b
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func expandLuma(v uint8) uint8 {
	return clamp8(roundDiv((int(v)-16)*255, 219))
}

func expandChroma(v uint8) uint8 {
	return clamp8(roundDiv((int(v)-128)*255, 224) + 128)
}

func compressLuma(v uint8) uint8 {
	return clamp8(roundDiv(int(v)*219, 255) + 16)
}

func compressChroma(v uint8) uint8 {
	return clamp8(roundDiv((int(v)-128)*224, 255) + 128)
}

func uniformGray(r image.Rectangle, v uint8) *image.Gray {
	g := image.NewGray(r)
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func unpack(src *av.Picture, desc av.PixelFormatDesc) (c canvas) {
	w, h := src.Width, src.Height
	r := image.Rect(0, 0, w, h)

	switch {
	case src.Format == av.PixFmtGray:
		c.y = image.NewGray(r)
		for y := 0; y < h; y++ {
			copy(c.y.Pix[y*c.y.Stride:y*c.y.Stride+w], src.Planes[0][y*src.Strides[0]:])
		}
		c.cb = uniformGray(r, 128)
		c.cr = uniformGray(r, 128)

	case desc.YUV:
		c.y, c.cb, c.cr = image.NewGray(r), image.NewGray(r), image.NewGray(r)
		for y := 0; y < h; y++ {
			cy := y >> desc.Log2ChromaH
			luma := src.Planes[0][y*src.Strides[0]:]
			for x := 0; x < w; x++ {
				cx := x >> desc.Log2ChromaW
				var u, v uint8
				if desc.Planes == 2 {
					p := src.Planes[1][cy*src.Strides[1]+cx*2:]
					u, v = p[0], p[1]
				} else {
					u = src.Planes[1][cy*src.Strides[1]+cx]
					v = src.Planes[2][cy*src.Strides[2]+cx]
				}
				l := luma[x]
				if !desc.FullRange {
					l, u, v = expandLuma(l), expandChroma(u), expandChroma(v)
				}
				i := y*w + x
				c.y.Pix[i], c.cb.Pix[i], c.cr.Pix[i] = l, u, v
			}
		}

	default:
		c.rgba = image.NewRGBA(r)
		bpp := desc.PixelBytes[0]
		for y := 0; y < h; y++ {
			row := src.Planes[0][y*src.Strides[0]:]
			for x := 0; x < w; x++ {
				p := row[x*bpp:]
				o := c.rgba.Pix[y*c.rgba.Stride+x*4:]
				switch src.Format {
				case av.PixFmtRGB24:
					o[0], o[1], o[2], o[3] = p[0], p[1], p[2], 0xff
				case av.PixFmtBGR24:
					o[0], o[1], o[2], o[3] = p[2], p[1], p[0], 0xff
				case av.PixFmtRGBA:
					o[0], o[1], o[2], o[3] = p[0], p[1], p[2], p[3]
				case av.PixFmtBGRA:
					o[0], o[1], o[2], o[3] = p[2], p[1], p[0], p[3]
				}
			}
		}
	}
	return
}

func (c *canvas) toRGB() {
	if c.rgba != nil {
		return
	}
	c.rgba = image.NewRGBA(c.y.Rect)
	for i := range c.y.Pix {
		r, g, b := color.YCbCrToRGB(c.y.Pix[i], c.cb.Pix[i], c.cr.Pix[i])
		o := c.rgba.Pix[i*4:]
		o[0], o[1], o[2], o[3] = r, g, b, 0xff
	}
	c.y, c.cb, c.cr = nil, nil, nil
}

func (c *canvas) toYCbCr() {
	if c.rgba == nil {
		return
	}
	r := c.rgba.Rect
	c.y, c.cb, c.cr = image.NewGray(r), image.NewGray(r), image.NewGray(r)
	for i := range c.y.Pix {
		p := c.rgba.Pix[i*4:]
		c.y.Pix[i], c.cb.Pix[i], c.cr.Pix[i] = color.RGBToYCbCr(p[0], p[1], p[2])
	}
	c.rgba = nil
}

func scaleGray(src *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	kernel.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func (c *canvas) scale(w, h int) {
	if c.rgba != nil {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		kernel.Scale(dst, dst.Bounds(), c.rgba, c.rgba.Bounds(), draw.Src, nil)
		c.rgba = dst
		return
	}
	c.y = scaleGray(c.y, w, h)
	c.cb = scaleGray(c.cb, w, h)
	c.cr = scaleGray(c.cr, w, h)
}

// average returns the mean of the block at (x0, y0) of size bw x bh, clipped to the plane.
func average(g *image.Gray, x0, y0, bw, bh int) uint8 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	sum, n := 0, 0
	for y := y0; y < y0+bh && y < h; y++ {
		for x := x0; x < x0+bw && x < w; x++ {
			sum += int(g.Pix[y*g.Stride+x])
			n++
		}
	}
	if n == 0 {
		return 128
	}
	return uint8((sum + n/2) / n)
}

func (c *canvas) pack(dst *av.Picture, desc av.PixelFormatDesc) {
	w, h := dst.Width, dst.Height

	switch {
	case dst.Format == av.PixFmtGray:
		for y := 0; y < h; y++ {
			copy(dst.Planes[0][y*dst.Strides[0]:], c.y.Pix[y*c.y.Stride:y*c.y.Stride+w])
		}

	case desc.YUV:
		for y := 0; y < h; y++ {
			row := dst.Planes[0][y*dst.Strides[0]:]
			for x := 0; x < w; x++ {
				v := c.y.Pix[y*c.y.Stride+x]
				if !desc.FullRange {
					v = compressLuma(v)
				}
				row[x] = v
			}
		}

		bw, bh := 1<<desc.Log2ChromaW, 1<<desc.Log2ChromaH
		cw := dst.Strides[1] / desc.PixelBytes[1]
		ch := dst.PlaneHeight(1)
		for cy := 0; cy < ch; cy++ {
			for cx := 0; cx < cw; cx++ {
				u := average(c.cb, cx*bw, cy*bh, bw, bh)
				v := average(c.cr, cx*bw, cy*bh, bw, bh)
				if !desc.FullRange {
					u, v = compressChroma(u), compressChroma(v)
				}
				if desc.Planes == 2 {
					p := dst.Planes[1][cy*dst.Strides[1]+cx*2:]
					p[0], p[1] = u, v
				} else {
					dst.Planes[1][cy*dst.Strides[1]+cx] = u
					dst.Planes[2][cy*dst.Strides[2]+cx] = v
				}
			}
		}

	default:
		bpp := desc.PixelBytes[0]
		for y := 0; y < h; y++ {
			row := dst.Planes[0][y*dst.Strides[0]:]
			for x := 0; x < w; x++ {
				p := c.rgba.Pix[y*c.rgba.Stride+x*4:]
				o := row[x*bpp:]
				switch dst.Format {
				case av.PixFmtRGB24:
					o[0], o[1], o[2] = p[0], p[1], p[2]
				case av.PixFmtBGR24:
					o[0], o[1], o[2] = p[2], p[1], p[0]
				case av.PixFmtRGBA:
					o[0], o[1], o[2], o[3] = p[0], p[1], p[2], p[3]
				case av.PixFmtBGRA:
					o[0], o[1], o[2], o[3] = p[2], p[1], p[0], p[3]
				}
			}
		}
	}
}
