// Package bits
// Bit level readers and writers for codec headers.
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-15
package bits

import (
	"io"
)

// Reader reads MSB first bits, then byte aligned data, from R.
type Reader struct {
	R    io.Reader
	n    int
	bits uint64
}

func (r *Reader) ReadBits64(n int) (bits uint64, err error) {
	if r.n < n {
		var b [8]byte
		var got int
		want := (n - r.n + 7) / 8
		if got, err = io.ReadFull(r.R, b[:want]); err != nil {
			return
		}
		for i := 0; i < got; i++ {
			r.bits <<= 8
			r.bits |= uint64(b[i])
		}
		r.n += got * 8
	}
	bits = (r.bits >> uint(r.n-n)) & (1<<uint(n) - 1)
	r.n -= n
	return
}

func (r *Reader) ReadBits(n int) (bits uint, err error) {
	var bits64 uint64
	if bits64, err = r.ReadBits64(n); err != nil {
		return
	}
	bits = uint(bits64)
	return
}

// Read drops any partially consumed byte and reads byte aligned data.
func (r *Reader) Read(p []byte) (n int, err error) {
	for r.n >= 8 && n < len(p) {
		p[n] = byte(r.bits >> uint(r.n-8))
		r.n -= 8
		n++
	}
	r.n = 0
	if n < len(p) {
		var got int
		got, err = r.R.Read(p[n:])
		n += got
	}
	return
}

// Writer writes MSB first bits to W.
type Writer struct {
	W    io.Writer
	n    int
	bits uint64
}

func (w *Writer) WriteBits64(bits uint64, n int) (err error) {
	if w.n+n > 64 {
		move := uint(64 - w.n)
		mask := bits >> move
		w.bits = (w.bits << move) | mask
		w.n = 64
		if err = w.flush(); err != nil {
			return
		}
		n -= int(move)
		bits &= 1<<uint(n) - 1
	}
	w.bits = (w.bits << uint(n)) | bits
	w.n += n
	return
}

func (w *Writer) WriteBits(bits uint, n int) (err error) {
	return w.WriteBits64(uint64(bits), n)
}

func (w *Writer) flush() (err error) {
	var b [8]byte
	nb := w.n / 8
	for i := 0; i < nb; i++ {
		b[i] = byte(w.bits >> uint(w.n-8*(i+1)))
	}
	if _, err = w.W.Write(b[:nb]); err != nil {
		return
	}
	w.n -= nb * 8
	w.bits &= 1<<uint(w.n) - 1
	return
}

// Write flushes whole pending bytes and writes p.
func (w *Writer) Write(p []byte) (n int, err error) {
	if err = w.flush(); err != nil {
		return
	}
	return w.W.Write(p)
}

// FlushBits pads the pending bits with zeros up to a byte boundary and writes them.
func (w *Writer) FlushBits() (err error) {
	if w.n%8 != 0 {
		pad := 8 - w.n%8
		w.bits <<= uint(pad)
		w.n += pad
	}
	return w.flush()
}
