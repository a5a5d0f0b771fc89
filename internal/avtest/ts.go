// Package avtest
// Created by RTT.
// Author: teocci@yandex.com on 2023-Apr-03
package avtest

import (
	"github.com/teocci/go-avpack/format/ts/tsio"
)

const PMTPid = 0x1000

type TSStream struct {
	PID        uint16
	StreamType uint8
}

// TSFrame is one PES packet. Data is the elementary stream payload, Annex-B for video.
type TSFrame struct {
	PID      uint16
	PTS, DTS int64
	Key      bool
	Data     []byte
}

func putCRC(data []byte) []byte {
	crc := tsio.CalcCRC32(0xffffffff, data)
	return append(data, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

// BuildPAT returns a PAT section announcing program 1 on PMTPid.
func BuildPAT() []byte {
	sectionLength := 5 + 4 + 4
	data := []byte{
		tsio.TableIdPAT,
		0xb0 | byte(sectionLength>>8)&0x0f, byte(sectionLength),
		0x00, 0x01, // transport_stream_id
		0xc1, 0x00, 0x00,
		0x00, 0x01, 0xe0 | byte(PMTPid>>8)&0x1f, byte(PMTPid & 0xff),
	}
	return putCRC(data)
}

// BuildPMT returns a PMT section for program 1.
func BuildPMT(streams []TSStream) []byte {
	sectionLength := 9 + 5*len(streams) + 4
	pcr := uint16(0x1fff)
	if len(streams) > 0 {
		pcr = streams[0].PID
	}
	data := []byte{
		tsio.TableIdPMT,
		0xb0 | byte(sectionLength>>8)&0x0f, byte(sectionLength),
		0x00, 0x01, // program_number
		0xc1, 0x00, 0x00,
		0xe0 | byte(pcr>>8)&0x1f, byte(pcr),
		0xf0, 0x00,
	}
	for _, s := range streams {
		data = append(data, s.StreamType, 0xe0|byte(s.PID>>8)&0x1f, byte(s.PID), 0xf0, 0x00)
	}
	return putCRC(data)
}

// EncodePTS encodes a 33 bit time stamp with its four bit prefix and marker bits.
func EncodePTS(marker byte, value int64) []byte {
	return []byte{
		marker<<4 | byte((value>>29)&0x0e) | 0x01,
		byte(value >> 22),
		byte((value>>14)&0xfe) | 0x01,
		byte(value >> 7),
		byte((value<<1)&0xfe) | 0x01,
	}
}

// BuildPES returns an unbounded video PES packet carrying pts and dts.
func BuildPES(pts, dts int64, data []byte) []byte {
	b := []byte{0x00, 0x00, 0x01, 0xe0, 0x00, 0x00, 0x80, 0xc0, 10}
	b = append(b, EncodePTS(0x03, pts)...)
	b = append(b, EncodePTS(0x01, dts)...)
	return append(b, data...)
}

func psiPacket(pid uint16, section []byte) []byte {
	b := []byte{tsio.SyncByte, 0x40 | byte(pid>>8)&0x1f, byte(pid), 0x10, 0x00}
	b = append(b, section...)
	for len(b) < tsio.PacketSize {
		b = append(b, 0xff)
	}
	return b
}

// Packetize splits a PES packet into transport packets, stuffing the last one.
func Packetize(pid uint16, pes []byte, key bool, cc *uint8) (out []byte) {
	first := true
	for first || len(pes) > 0 {
		var af []byte
		if first && key {
			af = []byte{0x40} // random_access_indicator
		}
		capacity := 184
		if af != nil {
			capacity -= 1 + len(af)
		}
		n := len(pes)
		if n > capacity {
			n = capacity
		}
		chunk := pes[:n]
		pes = pes[n:]

		if stuff := capacity - n; stuff > 0 {
			if af == nil {
				if stuff == 1 {
					af = []byte{}
					stuff = 0
				} else {
					af = []byte{0x00}
					stuff -= 2
				}
			}
			for i := 0; i < stuff; i++ {
				af = append(af, 0xff)
			}
		}

		hdr := []byte{tsio.SyncByte, byte(pid>>8) & 0x1f, byte(pid), 0x10 | *cc&0x0f}
		if first {
			hdr[1] |= 0x40
		}
		if af != nil {
			hdr[3] |= 0x20
			hdr = append(hdr, byte(len(af)))
			hdr = append(hdr, af...)
		}
		out = append(out, hdr...)
		out = append(out, chunk...)
		*cc++
		first = false
	}
	return
}

// BuildTS muxes frames into a transport stream preceded by one PAT and PMT.
func BuildTS(streams []TSStream, frames []TSFrame) []byte {
	b := psiPacket(tsio.PATPid, BuildPAT())
	b = append(b, psiPacket(PMTPid, BuildPMT(streams))...)
	cc := map[uint16]*uint8{}
	for _, f := range frames {
		if cc[f.PID] == nil {
			cc[f.PID] = new(uint8)
		}
		b = append(b, Packetize(f.PID, BuildPES(f.PTS, f.DTS, f.Data), f.Key, cc[f.PID])...)
	}
	return b
}

// H264TS returns a single program transport stream carrying n H.264 access units at 25 fps.
func H264TS(n, gop int) []byte {
	const pid = 0x100
	var frames []TSFrame
	for i := 0; i < n; i++ {
		key := i%gop == 0
		var nalus [][]byte
		nalus = append(nalus, []byte{0x09, 0xf0})
		if key {
			nalus = append(nalus, H264SPS, H264PPS)
		}
		nalus = append(nalus, H264Slice(key, i))
		ts := int64(126000 + i*3600)
		frames = append(frames, TSFrame{PID: pid, PTS: ts + 3600, DTS: ts, Key: key, Data: AnnexB(nalus...)})
	}
	return BuildTS([]TSStream{{PID: pid, StreamType: tsio.ElementaryStreamTypeH264}}, frames)
}
