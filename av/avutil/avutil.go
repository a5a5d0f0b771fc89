// Package avutil
// Keeps the registry of container formats and video decoders.
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-18
package avutil

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/teocci/go-avpack/av"
)

var log = logrus.WithField("pkg", "avutil")

// ProbeSize is the number of leading bytes handed to RegisterHandler.Probe.
const ProbeSize = 4096

// Dict carries demuxer and decoder options such as "video_size" or "pixel_format".
type Dict map[string]string

func (d Dict) Get(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d[key]
	return v, ok
}

// Copy returns an independent copy of d.
func (d Dict) Copy() Dict {
	c := make(Dict, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

type RegisterHandler struct {
	Name          string
	Ext           string
	Probe         func([]byte) bool
	ReaderDemuxer func(io.Reader, Dict) (av.Demuxer, error)
	WriterMuxer   func(io.WriteSeeker) av.Muxer
	CodecTypes    []av.CodecType

	DecoderTypes    []av.CodecType
	NewVideoDecoder func(av.CodecData, Dict) (av.VideoDecoder, error)
}

type Handlers struct {
	mu       sync.RWMutex
	handlers []RegisterHandler
}

// DefaultHandlers is filled by format.RegisterAll.
var DefaultHandlers = &Handlers{}

func (hs *Handlers) Add(fn func(*RegisterHandler)) {
	handler := RegisterHandler{}
	fn(&handler)
	hs.mu.Lock()
	hs.handlers = append(hs.handlers, handler)
	hs.mu.Unlock()
}

func (hs *Handlers) snapshot() []RegisterHandler {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return append([]RegisterHandler(nil), hs.handlers...)
}

// FindByName returns the demuxer/muxer handler registered under name.
func (hs *Handlers) FindByName(name string) (handler RegisterHandler, ok bool) {
	for _, h := range hs.snapshot() {
		if h.Name == name && (h.ReaderDemuxer != nil || h.WriterMuxer != nil) {
			return h, true
		}
	}
	return
}

// FindByExt returns the handler matching the extension of filename.
func (hs *Handlers) FindByExt(filename string) (handler RegisterHandler, ok bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return
	}
	for _, h := range hs.snapshot() {
		if h.Ext == ext {
			return h, true
		}
	}
	return
}

// OpenDemuxer creates a demuxer for r. An empty format probes the leading bytes.
func (hs *Handlers) OpenDemuxer(r io.Reader, format string, opts Dict) (demuxer av.Demuxer, err error) {
	if format != "" {
		handler, ok := hs.FindByName(format)
		if !ok || handler.ReaderDemuxer == nil {
			err = fmt.Errorf("avutil: demuxer %q not registered", format)
			return
		}
		log.WithField("format", format).Debug("open demuxer")
		return handler.ReaderDemuxer(r, opts)
	}

	br := bufio.NewReaderSize(r, ProbeSize)
	head, perr := br.Peek(ProbeSize)
	if perr != nil && perr != io.EOF && perr != bufio.ErrBufferFull {
		err = perr
		return
	}
	if len(head) == 0 {
		err = fmt.Errorf("avutil: empty input")
		return
	}
	for _, handler := range hs.snapshot() {
		if handler.Probe == nil || handler.ReaderDemuxer == nil {
			continue
		}
		if handler.Probe(head) {
			log.WithField("format", handler.Name).Debug("probed demuxer")
			return handler.ReaderDemuxer(br, opts)
		}
	}
	err = fmt.Errorf("avutil: unknown input format")
	return
}

// NewMuxer creates a muxer of the given format writing to w.
func (hs *Handlers) NewMuxer(format string, w io.WriteSeeker) (muxer av.Muxer, err error) {
	handler, ok := hs.FindByName(format)
	if !ok || handler.WriterMuxer == nil {
		err = fmt.Errorf("avutil: muxer %q not registered", format)
		return
	}
	muxer = handler.WriterMuxer(w)
	return
}

// NewVideoDecoder creates a decoder for codec. It fails with av.UnsupportedCodec when none is registered.
func (hs *Handlers) NewVideoDecoder(codec av.CodecData, opts Dict) (dec av.VideoDecoder, err error) {
	for _, handler := range hs.snapshot() {
		if handler.NewVideoDecoder == nil {
			continue
		}
		for _, typ := range handler.DecoderTypes {
			if typ == codec.Type() {
				log.WithFields(logrus.Fields{"decoder": handler.Name, "codec": typ}).Debug("open decoder")
				return handler.NewVideoDecoder(codec, opts)
			}
		}
	}
	err = av.Errorf(av.UnsupportedCodec, "avutil", "no decoder for codec %v", codec.Type())
	return
}
