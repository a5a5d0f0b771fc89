// Package transform
// Rescales pictures and converts them between pixel formats.
// Created by RTT.
// Author: teocci@yandex.com on 2021-Nov-02
package transform

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"github.com/teocci/go-avpack/av"
)

var log = logrus.WithField("pkg", "transform")

var kernel = draw.BiLinear

// Transform converts src into a new w x h picture of format pf.
// Identical parameters return a deep copy of src.
func Transform(src *av.Picture, w, h int, pf av.PixelFormat) (dst *av.Picture, err error) {
	const op = "transform"
	if src == nil {
		err = av.Errorf(av.ConversionUnsupported, op, "transform: nil source picture")
		return
	}

	var sdesc, ddesc av.PixelFormatDesc
	var ok bool
	if sdesc, ok = src.Format.Desc(); !ok {
		err = av.Errorf(av.ConversionUnsupported, op, "transform: unsupported source format %s", src.Format)
		return
	}
	if ddesc, ok = pf.Desc(); !ok {
		err = av.Errorf(av.ConversionUnsupported, op, "transform: unsupported target format %d", int(pf))
		return
	}
	if w <= 0 || h <= 0 || src.Width <= 0 || src.Height <= 0 {
		err = av.Errorf(av.ConversionUnsupported, op, "transform: invalid size %dx%d -> %dx%d",
			src.Width, src.Height, w, h)
		return
	}
	if err = checkPlanes(src); err != nil {
		err = av.E(av.ConversionUnsupported, op, err)
		return
	}

	log.WithFields(logrus.Fields{
		"src": fmt.Sprintf("%dx%d %s", src.Width, src.Height, src.Format),
		"dst": fmt.Sprintf("%dx%d %s", w, h, pf),
	}).Debug("transform")

	if src.Format == pf && src.Width == w && src.Height == h {
		dst = src.Clone()
		return
	}

	if dst, err = av.NewPicture(pf, w, h); err != nil {
		return
	}

	c := unpack(src, sdesc)
	if isRGB(ddesc) {
		c.toRGB()
	} else {
		c.toYCbCr()
	}
	if w != src.Width || h != src.Height {
		c.scale(w, h)
	}
	c.pack(dst, ddesc)
	return
}

// ToYUV420P converts src to a w x h yuv420p picture. w and h must be even.
func ToYUV420P(src *av.Picture, w, h int) (*av.Picture, error) {
	if w%2 != 0 || h%2 != 0 {
		return nil, av.Errorf(av.InvalidResolution, "transform", "transform: yuv420p needs even dimensions, got %dx%d", w, h)
	}
	return Transform(src, w, h, av.PixFmtYUV420P)
}

func checkPlanes(p *av.Picture) (err error) {
	var l av.Layout
	if l, err = av.ImageLayout(p.Format, p.Width, p.Height); err != nil {
		return
	}
	for i := range l.Strides {
		if l.Strides[i] == 0 {
			continue
		}
		if p.Strides[i] < l.Strides[i] || len(p.Planes[i]) < p.Strides[i]*(l.Heights[i]-1)+l.Strides[i] {
			err = fmt.Errorf("transform: plane %d too short", i)
			return
		}
	}
	return
}

func isRGB(desc av.PixelFormatDesc) bool {
	return !desc.YUV && desc.PixelBytes[0] > 1
}
