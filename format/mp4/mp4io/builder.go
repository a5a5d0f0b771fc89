// Package mp4io
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4io

import (
	"github.com/teocci/go-avpack/utils/bits/pio"
)

// Builder serializes nested boxes. Start opens a box and End patches its size.
type Builder struct {
	b     []byte
	stack []int
}

func (bd *Builder) Bytes() []byte {
	return bd.b
}

func (bd *Builder) Len() int {
	return len(bd.b)
}

func (bd *Builder) Start(tag Tag) {
	bd.stack = append(bd.stack, len(bd.b))
	bd.U32(0)
	bd.U32(uint32(tag))
}

// StartFull opens a full box with version and flags.
func (bd *Builder) StartFull(tag Tag, version uint8, flags uint32) {
	bd.Start(tag)
	bd.U32(uint32(version)<<24 | flags&0xffffff)
}

func (bd *Builder) End() {
	n := len(bd.stack) - 1
	start := bd.stack[n]
	bd.stack = bd.stack[:n]
	pio.PutU32BE(bd.b[start:], uint32(len(bd.b)-start))
}

func (bd *Builder) U8(v uint8) {
	bd.b = append(bd.b, v)
}

func (bd *Builder) U16(v uint16) {
	bd.b = append(bd.b, byte(v>>8), byte(v))
}

func (bd *Builder) U32(v uint32) {
	bd.b = append(bd.b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (bd *Builder) I32(v int32) {
	bd.U32(uint32(v))
}

func (bd *Builder) U64(v uint64) {
	bd.U32(uint32(v >> 32))
	bd.U32(uint32(v))
}

func (bd *Builder) Zero(n int) {
	bd.b = append(bd.b, make([]byte, n)...)
}

func (bd *Builder) Write(p []byte) {
	bd.b = append(bd.b, p...)
}

func (bd *Builder) Fixed32(f float64) {
	var b [4]byte
	PutFixed32(b[:], f)
	bd.Write(b[:])
}

// UnityMatrix is the identity transformation of mvhd and tkhd.
var UnityMatrix = [9]uint32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000}

func (bd *Builder) Matrix() {
	for _, v := range UnityMatrix {
		bd.U32(v)
	}
}
