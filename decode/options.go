// Package decode
// Created by RTT.
// Author: teocci@yandex.com on 2023-Apr-05
package decode

import (
	"sync"

	"github.com/teocci/go-avpack/av"
)

// Source selects how the input is opened.
type Source int

const (
	// SourceAuto probes the container.
	SourceAuto Source = iota
	// SourceRawVideo reads uncompressed frames, Options.Resolution is required.
	SourceRawVideo
	// SourceImage reads a sequence of still images.
	SourceImage
)

func (s Source) String() string {
	switch s {
	case SourceAuto:
		return "auto"
	case SourceRawVideo:
		return "rawvideo"
	case SourceImage:
		return "image2pipe"
	}
	return "unknown"
}

// Options are decoding hints. The zero value decodes with no hints.
type Options struct {
	Resolution  av.Size
	PixelFormat string
	Source      Source
	// Format names the input demuxer, e.g. "mpegts" or "h264". It is used when Source is SourceAuto,
	// empty probes the input.
	Format string

	// Errors, when set, turns per packet decode errors into records and decoding goes on.
	Errors *ErrorLog
}

// HasResolution reports whether both dimensions are given.
func (o Options) HasResolution() bool {
	return o.Resolution.Width != 0 && o.Resolution.Height != 0
}

func RawVideoOptions(w, h int) Options {
	return Options{
		Resolution:  av.Size{Width: w, Height: h},
		PixelFormat: "yuv420p",
		Source:      SourceRawVideo,
	}
}

func ImageOptions() Options {
	return Options{Source: SourceImage}
}

// JPEGYUVJ420POptions decodes images of a known size into full range 4:2:0.
func JPEGYUVJ420POptions(w, h int) Options {
	o := ImageOptions()
	o.Resolution = av.Size{Width: w, Height: h}
	o.PixelFormat = "yuvj420p"
	o.Errors = &ErrorLog{}
	return o
}

// ErrorLog collects the errors of skipped packets. It is safe for concurrent use.
type ErrorLog struct {
	mu   sync.Mutex
	errs []error
}

func (l *ErrorLog) add(err error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

func (l *ErrorLog) Errors() []error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

func (l *ErrorLog) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errs)
}
