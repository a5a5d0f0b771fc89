// Package av
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-14
package av

import (
	"fmt"
	"math/rand"
)

// Picture is a decoded image stored without row padding.
// Planes are sub-slices of a single allocation of Size bytes.
type Picture struct {
	Width   int
	Height  int
	Format  PixelFormat
	Strides [4]int
	Planes  [4][]byte
	Size    int

	buf []byte
}

// NewPicture allocates a zeroed picture.
func NewPicture(pf PixelFormat, w, h int) (p *Picture, err error) {
	var l Layout
	if l, err = ImageLayout(pf, w, h); err != nil {
		err = E(AllocationError, "picture", err)
		return
	}
	p = &Picture{
		Width:   w,
		Height:  h,
		Format:  pf,
		Strides: l.Strides,
		Size:    l.Size,
		buf:     make([]byte, l.Size),
	}
	for i := range l.Strides {
		if l.Strides[i] == 0 {
			continue
		}
		off := l.Offsets[i]
		p.Planes[i] = p.buf[off : off+l.Strides[i]*l.Heights[i] : off+l.Strides[i]*l.Heights[i]]
	}
	return
}

// Bytes returns the contiguous picture buffer, planes in order.
func (p *Picture) Bytes() []byte {
	return p.buf
}

// PlaneHeight returns the number of rows of plane i.
func (p *Picture) PlaneHeight(i int) int {
	if p.Strides[i] == 0 {
		return 0
	}
	return len(p.Planes[i]) / p.Strides[i]
}

// CopyFrame copies a decoder frame into the picture, dropping any row padding of the frame.
func (p *Picture) CopyFrame(f *Frame) (err error) {
	if f.Width != p.Width || f.Height != p.Height || f.Format != p.Format {
		err = fmt.Errorf("av: frame %dx%d %s does not fit picture %dx%d %s",
			f.Width, f.Height, f.Format, p.Width, p.Height, p.Format)
		return
	}
	for i := range p.Planes {
		row := p.Strides[i]
		if row == 0 {
			continue
		}
		if f.Strides[i] < row {
			err = fmt.Errorf("av: frame plane %d stride %d shorter than row %d", i, f.Strides[i], row)
			return
		}
		rows := p.PlaneHeight(i)
		src := f.Planes[i]
		if len(src) < f.Strides[i]*(rows-1)+row {
			err = fmt.Errorf("av: frame plane %d truncated", i)
			return
		}
		dst := p.Planes[i]
		for y := 0; y < rows; y++ {
			copy(dst[y*row:(y+1)*row], src[y*f.Strides[i]:y*f.Strides[i]+row])
		}
	}
	return
}

// Frame exposes the picture as an unpadded decoder frame.
func (p *Picture) Frame() *Frame {
	return &Frame{
		Width:   p.Width,
		Height:  p.Height,
		Format:  p.Format,
		Strides: p.Strides,
		Planes:  p.Planes,
		PTS:     NoPTS,
	}
}

// Clone returns a deep copy that shares no memory with p.
func (p *Picture) Clone() *Picture {
	c := *p
	total := 0
	for i := range p.Planes {
		total += len(p.Planes[i])
	}
	c.buf = make([]byte, total)
	off := 0
	for i := range p.Planes {
		if p.Planes[i] == nil {
			continue
		}
		n := copy(c.buf[off:], p.Planes[i])
		c.Planes[i] = c.buf[off : off+n : off+n]
		off += n
	}
	return &c
}

// RandomPicture fills a new picture with deterministic pseudo random bytes.
func RandomPicture(pf PixelFormat, w, h int, seed int64) (p *Picture, err error) {
	if p, err = NewPicture(pf, w, h); err != nil {
		return
	}
	r := rand.New(rand.NewSource(seed))
	_, _ = r.Read(p.buf)
	return
}
