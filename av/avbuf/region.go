// Package avbuf
// Provides owned byte regions and the pull cursor used to feed them to demuxers.
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-15
package avbuf

import (
	"fmt"
	"io"
	"sync/atomic"
)

// PullSize is the chunk size demuxers pull from a Cursor.
const PullSize = 4096

// Region is an immutable owned snapshot of bytes.
// A Region never shares storage with the slice or sink it was built from.
type Region struct {
	data     []byte
	released atomic.Bool
}

// NewRegion copies b into a new Region.
func NewRegion(b []byte) *Region {
	data := make([]byte, len(b))
	copy(data, b)
	return &Region{data: data}
}

// ReadRegion reads r until EOF into a new Region.
func ReadRegion(r io.Reader) (*Region, error) {
	s := &Sink{}
	if _, err := io.Copy(s, r); err != nil {
		return nil, err
	}
	return s.Freeze(), nil
}

func (r *Region) Len() int {
	if r.Released() {
		return 0
	}
	return len(r.data)
}

// Bytes returns a copy of the region content.
func (r *Region) Bytes() []byte {
	if r.Released() {
		return nil
	}
	b := make([]byte, len(r.data))
	copy(b, r.data)
	return b
}

// WriteTo writes the region content to w.
func (r *Region) WriteTo(w io.Writer) (n int64, err error) {
	if r.Released() {
		err = fmt.Errorf("avbuf: write from released region")
		return
	}
	var i int
	i, err = w.Write(r.data)
	n = int64(i)
	return
}

// Release ends the region's life. Cursors borrowed from it fail afterwards.
func (r *Region) Release() {
	if r.released.CompareAndSwap(false, true) {
		r.data = nil
	}
}

func (r *Region) Released() bool {
	return r.released.Load()
}

// Cursor borrows the region for sequential reading.
func (r *Region) Cursor() *Cursor {
	return &Cursor{region: r}
}

// Sink is a growable, seekable byte buffer that is frozen into a Region.
type Sink struct {
	buf []byte
	pos int
}

func NewSink(capacity int) *Sink {
	return &Sink{buf: make([]byte, 0, capacity)}
}

func (s *Sink) Write(p []byte) (n int, err error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		if end > cap(s.buf) {
			nb := make([]byte, len(s.buf), 2*cap(s.buf)+len(p))
			copy(nb, s.buf)
			s.buf = nb
		}
		s.buf = s.buf[:end]
	}
	n = copy(s.buf[s.pos:end], p)
	s.pos = end
	return
}

func (s *Sink) Seek(offset int64, whence int) (pos int64, err error) {
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(s.pos) + offset
	case io.SeekEnd:
		pos = int64(len(s.buf)) + offset
	default:
		err = fmt.Errorf("avbuf: invalid whence %d", whence)
		return
	}
	if pos < 0 {
		err = fmt.Errorf("avbuf: negative position %d", pos)
		return
	}
	if pos > int64(len(s.buf)) {
		// writes past the end zero fill the gap
		s.grow(int(pos))
	}
	s.pos = int(pos)
	return
}

func (s *Sink) grow(size int) {
	if size > len(s.buf) {
		s.buf = append(s.buf, make([]byte, size-len(s.buf))...)
	}
}

func (s *Sink) Len() int {
	return len(s.buf)
}

// Freeze copies the written bytes into a new Region. The sink stays usable.
func (s *Sink) Freeze() *Region {
	return NewRegion(s.buf)
}
