// Package av
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-14
package av

import (
	"fmt"
	"math"
	"strings"
)

// PixelFormat represents the layout and color model of a decoded picture.
type PixelFormat int

const (
	PixFmtNone PixelFormat = iota
	PixFmtGray
	PixFmtYUV420P
	PixFmtYUVJ420P
	PixFmtYUV422P
	PixFmtYUVJ422P
	PixFmtYUV444P
	PixFmtYUVJ444P
	PixFmtNV12
	PixFmtRGB24
	PixFmtBGR24
	PixFmtRGBA
	PixFmtBGRA
)

// PixelFormatDesc describes the plane layout of a PixelFormat.
type PixelFormatDesc struct {
	Name        string
	Planes      int
	PixelBytes  [4]int // bytes per pixel of each plane, at the plane's own resolution
	Log2ChromaW uint   // horizontal chroma subsampling shift
	Log2ChromaH uint   // vertical chroma subsampling shift
	YUV         bool
	FullRange   bool // JPEG range for YUV formats
}

var pixFmtDescs = map[PixelFormat]PixelFormatDesc{
	PixFmtGray:     {Name: "gray", Planes: 1, PixelBytes: [4]int{1}},
	PixFmtYUV420P:  {Name: "yuv420p", Planes: 3, PixelBytes: [4]int{1, 1, 1}, Log2ChromaW: 1, Log2ChromaH: 1, YUV: true},
	PixFmtYUVJ420P: {Name: "yuvj420p", Planes: 3, PixelBytes: [4]int{1, 1, 1}, Log2ChromaW: 1, Log2ChromaH: 1, YUV: true, FullRange: true},
	PixFmtYUV422P:  {Name: "yuv422p", Planes: 3, PixelBytes: [4]int{1, 1, 1}, Log2ChromaW: 1, YUV: true},
	PixFmtYUVJ422P: {Name: "yuvj422p", Planes: 3, PixelBytes: [4]int{1, 1, 1}, Log2ChromaW: 1, YUV: true, FullRange: true},
	PixFmtYUV444P:  {Name: "yuv444p", Planes: 3, PixelBytes: [4]int{1, 1, 1}, YUV: true},
	PixFmtYUVJ444P: {Name: "yuvj444p", Planes: 3, PixelBytes: [4]int{1, 1, 1}, YUV: true, FullRange: true},
	PixFmtNV12:     {Name: "nv12", Planes: 2, PixelBytes: [4]int{1, 2}, Log2ChromaW: 1, Log2ChromaH: 1, YUV: true},
	PixFmtRGB24:    {Name: "rgb24", Planes: 1, PixelBytes: [4]int{3}, FullRange: true},
	PixFmtBGR24:    {Name: "bgr24", Planes: 1, PixelBytes: [4]int{3}, FullRange: true},
	PixFmtRGBA:     {Name: "rgba", Planes: 1, PixelBytes: [4]int{4}, FullRange: true},
	PixFmtBGRA:     {Name: "bgra", Planes: 1, PixelBytes: [4]int{4}, FullRange: true},
}

func (pf PixelFormat) Desc() (desc PixelFormatDesc, ok bool) {
	desc, ok = pixFmtDescs[pf]
	return
}

func (pf PixelFormat) String() string {
	if desc, ok := pixFmtDescs[pf]; ok {
		return desc.Name
	}
	return "none"
}

// FindPixelFormat looks up a pixel format by its conventional name, e.g. "yuv420p".
func FindPixelFormat(name string) (PixelFormat, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for pf, desc := range pixFmtDescs {
		if desc.Name == name {
			return pf, nil
		}
	}
	return PixFmtNone, fmt.Errorf("av: unknown pixel format %q", name)
}

// Layout is the byte layout of an unpadded picture.
type Layout struct {
	Strides [4]int
	Heights [4]int
	Offsets [4]int
	Size    int
}

func chromaDim(v int, shift uint) int {
	return (v + (1 << shift) - 1) >> shift
}

// ImageLayout computes plane strides and sizes of a w x h picture with alignment 1.
func ImageLayout(pf PixelFormat, w, h int) (l Layout, err error) {
	desc, ok := pixFmtDescs[pf]
	if !ok {
		err = fmt.Errorf("av: pixel format %d has no layout", int(pf))
		return
	}
	if w <= 0 || h <= 0 {
		err = fmt.Errorf("av: invalid picture size %dx%d", w, h)
		return
	}

	size := int64(0)
	for i := 0; i < desc.Planes; i++ {
		pw, ph := w, h
		if i > 0 {
			pw = chromaDim(w, desc.Log2ChromaW)
			ph = chromaDim(h, desc.Log2ChromaH)
		}
		stride := int64(pw) * int64(desc.PixelBytes[i])
		if stride > math.MaxInt32 {
			err = fmt.Errorf("av: picture row too large %dx%d", w, h)
			return
		}
		l.Strides[i] = int(stride)
		l.Heights[i] = ph
		l.Offsets[i] = int(size)
		size += stride * int64(ph)
		if size > math.MaxInt32 {
			err = fmt.Errorf("av: picture too large %dx%d %s", w, h, desc.Name)
			return
		}
	}
	l.Size = int(size)
	return
}

// Size is a picture resolution.
type Size struct {
	Width  int
	Height int
}

func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ParseSize parses a "WxH" resolution.
func ParseSize(s string) (size Size, err error) {
	if _, err = fmt.Sscanf(strings.ToLower(s), "%dx%d", &size.Width, &size.Height); err != nil {
		err = fmt.Errorf("av: invalid size %q: %w", s, err)
		return
	}
	if size.Width <= 0 || size.Height <= 0 {
		err = fmt.Errorf("av: invalid size %q", s)
	}
	return
}
