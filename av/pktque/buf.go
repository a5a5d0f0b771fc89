// Package pktque
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package pktque

import (
	"github.com/teocci/go-avpack/av"
)

// Buf is a growable ring of packets. Its length is always a power of two.
type Buf struct {
	Head, Tail BufPos
	pkts       []av.Packet
	Size       int // total payload bytes
	Count      int
}

func NewBuf() *Buf {
	return &Buf{
		pkts: make([]av.Packet, 64),
	}
}

func (b *Buf) index(pos BufPos) int {
	return int(pos) & (len(b.pkts) - 1)
}

// Pop removes the oldest packet. ok is false when the buffer is empty.
func (b *Buf) Pop() (pkt av.Packet, ok bool) {
	if b.Count == 0 {
		return
	}

	i := b.index(b.Head)
	pkt, ok = b.pkts[i], true
	b.pkts[i] = av.Packet{}
	b.Size -= len(pkt.Data)
	b.Head++
	b.Count--
	return
}

func (b *Buf) grow() {
	size := len(b.pkts) * 2
	if size == 0 {
		size = 64
	}
	pkts := make([]av.Packet, size)
	for i := b.Head; i.LT(b.Tail); i++ {
		pkts[int(i)&(size-1)] = b.pkts[b.index(i)]
	}
	b.pkts = pkts
}

func (b *Buf) Push(pkt av.Packet) {
	if b.Count == len(b.pkts) {
		b.grow()
	}
	b.pkts[b.index(b.Tail)] = pkt
	b.Tail++
	b.Count++
	b.Size += len(pkt.Data)
}

func (b *Buf) Get(pos BufPos) av.Packet {
	return b.pkts[b.index(pos)]
}

func (b *Buf) IsValidPos(pos BufPos) bool {
	return pos.GE(b.Head) && pos.LT(b.Tail)
}

// Last returns a pointer to the newest packet, nil when empty.
func (b *Buf) Last() *av.Packet {
	if b.Count == 0 {
		return nil
	}
	return &b.pkts[b.index(b.Tail-1)]
}

type BufPos int

func (bp BufPos) LT(pos BufPos) bool {
	return bp-pos < 0
}

func (bp BufPos) GE(pos BufPos) bool {
	return bp-pos >= 0
}
