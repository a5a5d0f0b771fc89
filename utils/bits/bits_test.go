// Package bits
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-15
package bits

import (
	"bytes"
	"testing"

	"github.com/teocci/go-avpack/utils/bits/pio"
)

func TestBits(t *testing.T) {
	rdata := []byte{0xf3, 0xb3, 0x45, 0x60}
	rbuf := bytes.NewReader(rdata[:])
	r := &Reader{R: rbuf}
	var u32 uint
	if u32, _ = r.ReadBits(4); u32 != 0xf {
		t.Logf("%d\n", u32)
		t.FailNow()
	}
	if u32, _ = r.ReadBits(4); u32 != 0x3 {
		t.Logf("%d\n", u32)
		t.FailNow()
	}
	if u32, _ = r.ReadBits(2); u32 != 0x2 {
		t.Logf("%d\n", u32)
		t.FailNow()
	}
	if u32, _ = r.ReadBits(2); u32 != 0x3 {
		t.Logf("%d\n", u32)
		t.FailNow()
	}
	b := make([]byte, 2)
	if _, _ = r.Read(b); b[0] != 0x45 || b[1] != 0x60 {
		t.Logf("%x\n", b)
		t.FailNow()
	}

	wbuf := &bytes.Buffer{}
	w := &Writer{W: wbuf}
	_ = w.WriteBits(0xf, 4)
	_ = w.WriteBits(0x3, 4)
	_ = w.WriteBits(0x2, 2)
	_ = w.WriteBits(0x3, 2)
	_ = w.WriteBits(0x3, 4)
	n, _ := w.Write([]byte{0x45, 0x60})
	if n != 2 {
		t.FailNow()
	}
	_ = w.FlushBits()
	wdata := wbuf.Bytes()
	if !bytes.Equal(wdata, rdata) {
		t.Logf("%x\n", wdata)
		t.FailNow()
	}

	b = make([]byte, 8)
	pio.PutU32BE(b, 0x11223344)
	if b[0] != 0x11 || b[1] != 0x22 || b[2] != 0x33 || b[3] != 0x44 {
		t.FailNow()
	}
	if pio.U32BE(b) != 0x11223344 {
		t.FailNow()
	}
}

func TestGolomb(t *testing.T) {
	// ue: 1 -> 0, 010 -> 1, 011 -> 2, 00100 -> 3; se: 00101 -> -2
	r := NewGolombBitReader([]byte{0xa6, 0x42, 0x80})
	for _, want := range []uint{0, 1, 2, 3} {
		got, err := r.ReadExponentialGolombCode()
		if err != nil || got != want {
			t.Logf("got %d want %d err %v\n", got, want, err)
			t.FailNow()
		}
	}
	se, err := r.ReadSE()
	if err != nil || se != -2 {
		t.Logf("se %d err %v\n", se, err)
		t.FailNow()
	}
}

func TestRemoveEmulationPrevention(t *testing.T) {
	got := RemoveEmulationPrevention([]byte{0x00, 0x00, 0x03, 0x01, 0x00, 0x00, 0x03, 0x00, 0x03})
	want := []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x03}
	if !bytes.Equal(got, want) {
		t.Logf("%x\n", got)
		t.FailNow()
	}
}
