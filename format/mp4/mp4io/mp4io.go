// Package mp4io
// Reads and writes the ISO base media file format boxes used by the mp4 package.
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4io

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/teocci/go-avpack/utils/bits/pio"
)

type ParseError struct {
	Debug  string
	Offset int
	prev   *ParseError
}

func (pe *ParseError) Error() string {
	var s []string
	for p := pe; p != nil; p = p.prev {
		s = append(s, fmt.Sprintf("%s:%d", p.Debug, p.Offset))
	}
	return "mp4io: parse error: " + strings.Join(s, ",")
}

func parseErr(debug string, offset int, prev error) (err error) {
	_prev, _ := prev.(*ParseError)
	return &ParseError{Debug: debug, Offset: offset, prev: _prev}
}

func PutFixed32(b []byte, f float64) {
	intpart, fracpart := math.Modf(f)
	pio.PutU16BE(b[0:2], uint16(intpart))
	pio.PutU16BE(b[2:4], uint16(fracpart*65536.0))
}

func GetFixed32(b []byte) float64 {
	return float64(pio.U16BE(b[0:2])) + float64(pio.U16BE(b[2:4]))/65536.0
}

type Tag uint32

func StringToTag(s string) Tag {
	var b [4]byte
	copy(b[:], s)
	return Tag(pio.U32BE(b[:]))
}

func (t Tag) String() string {
	var b [4]byte
	pio.PutU32BE(b[:], uint32(t))
	for i := 0; i < 4; i++ {
		if b[i] == 0 {
			b[i] = ' '
		}
	}
	return string(b[:])
}

var (
	FTYP = StringToTag("ftyp")
	FREE = StringToTag("free")
	WIDE = StringToTag("wide")
	MDAT = StringToTag("mdat")
	MOOV = StringToTag("moov")
	MVHD = StringToTag("mvhd")
	TRAK = StringToTag("trak")
	TKHD = StringToTag("tkhd")
	EDTS = StringToTag("edts")
	MDIA = StringToTag("mdia")
	MDHD = StringToTag("mdhd")
	HDLR = StringToTag("hdlr")
	MINF = StringToTag("minf")
	VMHD = StringToTag("vmhd")
	DINF = StringToTag("dinf")
	DREF = StringToTag("dref")
	URL  = StringToTag("url ")
	STBL = StringToTag("stbl")
	STSD = StringToTag("stsd")
	STTS = StringToTag("stts")
	CTTS = StringToTag("ctts")
	STSS = StringToTag("stss")
	STSC = StringToTag("stsc")
	STSZ = StringToTag("stsz")
	STCO = StringToTag("stco")
	CO64 = StringToTag("co64")
	UDTA = StringToTag("udta")
	AVC1 = StringToTag("avc1")
	AVC3 = StringToTag("avc3")
	AVCC = StringToTag("avcC")
	HEV1 = StringToTag("hev1")
	HVC1 = StringToTag("hvc1")
	HVCC = StringToTag("hvcC")
	VIDE = StringToTag("vide")
	ISOM = StringToTag("isom")
)

func isContainer(tag Tag) bool {
	switch tag {
	case MOOV, TRAK, EDTS, MDIA, MINF, DINF, STBL, UDTA:
		return true
	}
	return false
}

// Box is a parsed box. Payload excludes the header. Container boxes also carry their children.
type Box struct {
	Tag      Tag
	Offset   int64
	Size     int64
	Payload  []byte
	Children []*Box
}

// Child returns the first direct child with the given tag.
func (b *Box) Child(tag Tag) *Box {
	for _, c := range b.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// ParseBoxes parses consecutive boxes of b. offset is the file position of b[0].
func ParseBoxes(b []byte, offset int64) (boxes []*Box, err error) {
	n := 0
	for n+8 <= len(b) {
		size := int64(pio.U32BE(b[n:]))
		tag := Tag(pio.U32BE(b[n+4:]))
		hdr := 8
		switch size {
		case 1:
			if n+16 > len(b) {
				err = parseErr("largesize", n, nil)
				return
			}
			size = int64(pio.U64BE(b[n+8:]))
			hdr = 16
		case 0:
			size = int64(len(b) - n)
		}
		if size < int64(hdr) || int64(n)+size > int64(len(b)) {
			err = parseErr(tag.String(), n, nil)
			return
		}

		box := &Box{
			Tag:     tag,
			Offset:  offset + int64(n),
			Size:    size,
			Payload: b[n+hdr : n+int(size)],
		}
		if isContainer(tag) {
			if box.Children, err = ParseBoxes(box.Payload, box.Offset+int64(hdr)); err != nil {
				err = parseErr(tag.String(), n, err)
				return
			}
		}
		boxes = append(boxes, box)
		n += int(size)
	}
	return
}

// BoxHeader is a top level box located in a file without loading its payload.
type BoxHeader struct {
	Tag        Tag
	Offset     int64
	Size       int64
	HeaderSize int
}

// ReadFileBoxes scans the top level boxes of r.
func ReadFileBoxes(r io.ReadSeeker) (headers []BoxHeader, err error) {
	var end int64
	if end, err = r.Seek(0, io.SeekEnd); err != nil {
		return
	}

	var offset int64
	b := make([]byte, 16)
	for offset+8 <= end {
		if _, err = r.Seek(offset, io.SeekStart); err != nil {
			return
		}
		if _, err = io.ReadFull(r, b[:8]); err != nil {
			return
		}
		h := BoxHeader{
			Tag:        Tag(pio.U32BE(b[4:])),
			Offset:     offset,
			Size:       int64(pio.U32BE(b)),
			HeaderSize: 8,
		}
		switch h.Size {
		case 1:
			if _, err = io.ReadFull(r, b[8:16]); err != nil {
				return
			}
			h.Size = int64(pio.U64BE(b[8:]))
			h.HeaderSize = 16
		case 0:
			h.Size = end - offset
		}
		if h.Size < int64(h.HeaderSize) || offset+h.Size > end {
			err = parseErr("filebox:"+h.Tag.String(), int(offset), nil)
			return
		}
		headers = append(headers, h)
		offset += h.Size
	}
	return
}

// LoadBox reads a top level box including its children.
func LoadBox(r io.ReadSeeker, h BoxHeader) (box *Box, err error) {
	b := make([]byte, h.Size)
	if _, err = r.Seek(h.Offset, io.SeekStart); err != nil {
		return
	}
	if _, err = io.ReadFull(r, b); err != nil {
		return
	}
	var boxes []*Box
	if boxes, err = ParseBoxes(b, h.Offset); err != nil {
		return
	}
	if len(boxes) != 1 {
		err = parseErr("loadbox:"+h.Tag.String(), int(h.Offset), nil)
		return
	}
	box = boxes[0]
	return
}
