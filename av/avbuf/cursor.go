// Package avbuf
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-15
package avbuf

import (
	"io"

	"github.com/teocci/go-avpack/av"
)

// Cursor is a pull adapter over a Region. It is an io.Reader whose position only advances.
// A Cursor must not outlive its Region: once the Region is released every Read fails with av.ErrReleased.
type Cursor struct {
	region *Region
	pos    int
}

// Read copies min(len(p), Remaining()) bytes into p.
// It returns 0, io.EOF once the region is exhausted.
func (c *Cursor) Read(p []byte) (n int, err error) {
	if c.region.Released() {
		err = av.ErrReleased
		return
	}
	if len(p) == 0 {
		return
	}
	if c.pos >= len(c.region.data) {
		err = io.EOF
		return
	}
	n = copy(p, c.region.data[c.pos:])
	c.pos += n
	return
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	if c.region.Released() {
		return 0
	}
	return len(c.region.data) - c.pos
}

// Pos returns the number of bytes read so far.
func (c *Cursor) Pos() int {
	return c.pos
}
