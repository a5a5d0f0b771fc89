// Package tsio
// Parses MPEG transport stream packets, program tables and PES headers.
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package tsio

import (
	"fmt"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/utils/bits/pio"
)

const (
	PacketSize = 188
	SyncByte   = 0x47
)

const (
	PATPid = 0

	TableIdPAT = 0x00
	TableIdPMT = 0x02
)

const (
	ElementaryStreamTypeMPEG2Video = 0x02
	ElementaryStreamTypeAdtsAAC    = 0x0F
	ElementaryStreamTypeH264       = 0x1B
	ElementaryStreamTypeH265       = 0x24
)

// PTSHz is the PES timestamp clock.
const PTSHz = 90000

type PATEntry struct {
	ProgramNumber uint16
	NetworkPID    uint16
	ProgramMapPID uint16
}

type PAT struct {
	Entries []PATEntry
}

func (p *PAT) Unmarshal(b []byte) (n int, err error) {
	for n+4 <= len(b) {
		entry := PATEntry{}
		entry.ProgramNumber = pio.U16BE(b[n:])
		pid := pio.U16BE(b[n+2:]) & 0x1fff
		if entry.ProgramNumber == 0 {
			entry.NetworkPID = pid
		} else {
			entry.ProgramMapPID = pid
		}
		p.Entries = append(p.Entries, entry)
		n += 4
	}
	if n != len(b) {
		err = fmt.Errorf("tsio: PAT has %d trailing bytes", len(b)-n)
	}
	return
}

type Descriptor struct {
	Tag  uint8
	Data []byte
}

type ElementaryStreamInfo struct {
	StreamType    uint8
	ElementaryPID uint16
	Descriptors   []Descriptor
}

type PMT struct {
	PCRPID                uint16
	ProgramDescriptors    []Descriptor
	ElementaryStreamInfos []ElementaryStreamInfo
}

func parseDescs(b []byte) (descs []Descriptor, err error) {
	n := 0
	for n+2 <= len(b) {
		desc := Descriptor{Tag: b[n]}
		length := int(b[n+1])
		n += 2
		if n+length > len(b) {
			err = fmt.Errorf("tsio: descriptor length %d overflows", length)
			return
		}
		desc.Data = b[n : n+length]
		descs = append(descs, desc)
		n += length
	}
	return
}

func (p *PMT) Unmarshal(b []byte) (n int, err error) {
	if len(b) < 4 {
		err = fmt.Errorf("tsio: PMT too short")
		return
	}
	p.PCRPID = pio.U16BE(b) & 0x1fff
	n += 2
	infoLen := int(pio.U16BE(b[n:]) & 0x0fff)
	n += 2
	if n+infoLen > len(b) {
		err = fmt.Errorf("tsio: PMT program info length %d overflows", infoLen)
		return
	}
	if p.ProgramDescriptors, err = parseDescs(b[n : n+infoLen]); err != nil {
		return
	}
	n += infoLen

	for n+5 <= len(b) {
		info := ElementaryStreamInfo{}
		info.StreamType = b[n]
		info.ElementaryPID = pio.U16BE(b[n+1:]) & 0x1fff
		infoLen = int(pio.U16BE(b[n+3:]) & 0x0fff)
		n += 5
		if n+infoLen > len(b) {
			err = fmt.Errorf("tsio: PMT ES info length %d overflows", infoLen)
			return
		}
		if info.Descriptors, err = parseDescs(b[n : n+infoLen]); err != nil {
			return
		}
		n += infoLen
		p.ElementaryStreamInfos = append(p.ElementaryStreamInfos, info)
	}
	return
}

// ParseTSHeader parses the 4 byte packet header and the adaptation field of a 188 byte packet.
// hdrlen is the payload offset, it equals len(tshdr) when the packet carries no payload.
func ParseTSHeader(tshdr []byte) (pid uint16, start bool, iskeyframe bool, hdrlen int, err error) {
	if len(tshdr) < PacketSize {
		err = fmt.Errorf("tsio: short packet %d", len(tshdr))
		return
	}
	if tshdr[0] != SyncByte {
		err = fmt.Errorf("tsio: invalid sync byte 0x%02x", tshdr[0])
		return
	}
	flags := pio.U24BE(tshdr[1:4])
	pid = uint16(flags>>8) & 0x1fff
	start = flags&0x400000 != 0
	afc := (flags >> 4) & 0x3
	hdrlen = 4

	if afc&0x2 != 0 {
		length := int(tshdr[4])
		if 5+length > PacketSize {
			err = fmt.Errorf("tsio: adaptation field length %d overflows", length)
			return
		}
		if length > 0 {
			// random_access_indicator
			iskeyframe = tshdr[5]&0x40 != 0
		}
		hdrlen += 1 + length
	}
	if afc&0x1 == 0 {
		hdrlen = PacketSize
	}
	return
}

// ParsePSI locates the section after the pointer field and checks its CRC.
// The table data is h[hdrlen:hdrlen+datalen].
func ParsePSI(h []byte) (tableid uint8, tableext uint16, hdrlen int, datalen int, err error) {
	if len(h) < 1 {
		err = fmt.Errorf("tsio: empty PSI")
		return
	}
	pointer := int(h[0])
	hdrlen = 1 + pointer
	if hdrlen+8 > len(h) {
		err = fmt.Errorf("tsio: PSI pointer %d overflows", pointer)
		return
	}
	section := h[hdrlen:]
	tableid = section[0]
	length := int(pio.U16BE(section[1:]) & 0x0fff)
	if length < 9 || 3+length > len(section) {
		err = fmt.Errorf("tsio: PSI section length %d invalid", length)
		return
	}
	if CalcCRC32(0xffffffff, section[:3+length]) != 0 {
		err = fmt.Errorf("tsio: PSI CRC32 mismatch")
		return
	}
	tableext = pio.U16BE(section[3:])
	hdrlen += 8
	datalen = length - 5 - 4
	return
}

func parsePESTime(h []byte) int64 {
	return int64(h[0]>>1&0x07)<<30 | int64(pio.U16BE(h[1:])>>1)<<15 | int64(pio.U16BE(h[3:])>>1)
}

// ParsePESHeader parses a PES header. Times are 90 kHz ticks, av.NoPTS when absent.
// datalen is 0 for unbounded video PES packets.
func ParsePESHeader(h []byte) (hdrlen int, streamid uint8, datalen int, pts, dts int64, err error) {
	pts, dts = av.NoPTS, av.NoPTS
	if len(h) < 9 {
		err = fmt.Errorf("tsio: PES header too short")
		return
	}
	if pio.U24BE(h) != 0x000001 {
		err = fmt.Errorf("tsio: invalid PES start code")
		return
	}
	streamid = h[3]
	length := int(pio.U16BE(h[4:]))
	flags := h[7]
	hdrlen = 9 + int(h[8])
	if hdrlen > len(h) {
		err = fmt.Errorf("tsio: PES header length %d overflows", hdrlen)
		return
	}
	if length > 0 {
		datalen = length - 3 - int(h[8])
		if datalen < 0 {
			err = fmt.Errorf("tsio: PES length %d shorter than header", length)
			return
		}
	}

	switch flags >> 6 {
	case 2:
		if hdrlen < 14 {
			err = fmt.Errorf("tsio: PES header too short for PTS")
			return
		}
		pts = parsePESTime(h[9:])
	case 3:
		if hdrlen < 19 {
			err = fmt.Errorf("tsio: PES header too short for PTS and DTS")
			return
		}
		pts = parsePESTime(h[9:])
		dts = parsePESTime(h[14:])
	}
	return
}
