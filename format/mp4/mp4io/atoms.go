// Package mp4io
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4io

import (
	"bytes"
	"math"

	"github.com/teocci/go-avpack/utils/bits/pio"
)

// Atom is a typed box that serializes itself through a Builder.
type Atom interface {
	Tag() Tag
	Marshal(bd *Builder)
}

// MarshalAtom returns the bytes of a, header included.
func MarshalAtom(a Atom) []byte {
	bd := &Builder{}
	a.Marshal(bd)
	return bd.Bytes()
}

type Movie struct {
	Header *MovieHeader
	Tracks []*Track
}

func (mv Movie) Tag() Tag {
	return MOOV
}

func (mv Movie) Marshal(bd *Builder) {
	bd.Start(MOOV)
	if mv.Header != nil {
		mv.Header.Marshal(bd)
	}
	for _, t := range mv.Tracks {
		t.Marshal(bd)
	}
	bd.End()
}

// UnmarshalMovie reads the typed tree of a moov box. Boxes the package does not model are skipped.
func UnmarshalMovie(moov *Box) (mv *Movie, err error) {
	mv = &Movie{}
	for _, c := range moov.Children {
		switch c.Tag {
		case MVHD:
			mh := &MovieHeader{}
			if err = mh.Unmarshal(c.Payload); err != nil {
				err = parseErr("mvhd", int(c.Offset), err)
				return
			}
			mv.Header = mh
		case TRAK:
			var t *Track
			if t, err = unmarshalTrack(c); err != nil {
				err = parseErr("trak", int(c.Offset), err)
				return
			}
			mv.Tracks = append(mv.Tracks, t)
		}
	}
	return
}

type MovieHeader struct {
	TimeScale   uint32
	Duration    uint64
	NextTrackId uint32
}

func (mh MovieHeader) Tag() Tag {
	return MVHD
}

func (mh MovieHeader) Marshal(bd *Builder) {
	if mh.Duration > math.MaxUint32 {
		bd.StartFull(MVHD, 1, 0)
		bd.U64(0)
		bd.U64(0)
		bd.U32(mh.TimeScale)
		bd.U64(mh.Duration)
	} else {
		bd.StartFull(MVHD, 0, 0)
		bd.U32(0)
		bd.U32(0)
		bd.U32(mh.TimeScale)
		bd.U32(uint32(mh.Duration))
	}
	bd.U32(0x00010000) // rate 1.0
	bd.U16(0x0100)     // volume 1.0
	bd.Zero(10)
	bd.Matrix()
	bd.Zero(24)
	bd.U32(mh.NextTrackId)
	bd.End()
}

func (mh *MovieHeader) Unmarshal(b []byte) (err error) {
	var version uint8
	var body []byte
	if version, body, err = fullBox(b, 96, "mvhd"); err != nil {
		return
	}
	if version == 1 {
		if len(body) < 108 {
			err = parseErr("mvhd", 4, nil)
			return
		}
		mh.TimeScale = pio.U32BE(body[16:])
		mh.Duration = pio.U64BE(body[20:])
		mh.NextTrackId = pio.U32BE(body[104:])
		return
	}
	mh.TimeScale = pio.U32BE(body[8:])
	mh.Duration = uint64(pio.U32BE(body[12:]))
	mh.NextTrackId = pio.U32BE(body[92:])
	return
}

type Track struct {
	Header *TrackHeader
	Media  *Media
}

func (t Track) Tag() Tag {
	return TRAK
}

func (t Track) Marshal(bd *Builder) {
	bd.Start(TRAK)
	if t.Header != nil {
		t.Header.Marshal(bd)
	}
	if t.Media != nil {
		t.Media.Marshal(bd)
	}
	bd.End()
}

func unmarshalTrack(trak *Box) (t *Track, err error) {
	t = &Track{}
	if tkhd := trak.Child(TKHD); tkhd != nil {
		th := &TrackHeader{}
		if err = th.Unmarshal(tkhd.Payload); err != nil {
			return
		}
		t.Header = th
	}
	if mdia := trak.Child(MDIA); mdia != nil {
		if t.Media, err = unmarshalMedia(mdia); err != nil {
			err = parseErr("mdia", int(mdia.Offset), err)
			return
		}
	}
	return
}

// Flags of TrackHeader.
const (
	TrackEnabled   = 0x0001
	TrackInMovie   = 0x0002
	TrackInPreview = 0x0004
)

type TrackHeader struct {
	Flags       uint32
	TrackId     uint32
	Duration    uint64
	TrackWidth  float64
	TrackHeight float64
}

func (th TrackHeader) Tag() Tag {
	return TKHD
}

func (th TrackHeader) Marshal(bd *Builder) {
	if th.Duration > math.MaxUint32 {
		bd.StartFull(TKHD, 1, th.Flags)
		bd.U64(0)
		bd.U64(0)
		bd.U32(th.TrackId)
		bd.U32(0)
		bd.U64(th.Duration)
	} else {
		bd.StartFull(TKHD, 0, th.Flags)
		bd.U32(0)
		bd.U32(0)
		bd.U32(th.TrackId)
		bd.U32(0)
		bd.U32(uint32(th.Duration))
	}
	bd.Zero(8)
	bd.U16(0) // layer
	bd.U16(0) // alternate group
	bd.U16(0) // volume
	bd.U16(0)
	bd.Matrix()
	bd.Fixed32(th.TrackWidth)
	bd.Fixed32(th.TrackHeight)
	bd.End()
}

func (th *TrackHeader) Unmarshal(b []byte) (err error) {
	var version uint8
	var body []byte
	if version, body, err = fullBox(b, 80, "tkhd"); err != nil {
		return
	}
	th.Flags = pio.U24BE(b[1:])
	if version == 1 {
		if len(body) < 92 {
			err = parseErr("tkhd", 4, nil)
			return
		}
		th.TrackId = pio.U32BE(body[16:])
		th.Duration = pio.U64BE(body[24:])
		th.TrackWidth = GetFixed32(body[84:])
		th.TrackHeight = GetFixed32(body[88:])
		return
	}
	th.TrackId = pio.U32BE(body[8:])
	th.Duration = uint64(pio.U32BE(body[16:]))
	th.TrackWidth = GetFixed32(body[72:])
	th.TrackHeight = GetFixed32(body[76:])
	return
}

type Media struct {
	Header  *MediaHeader
	Handler *HandlerRefer
	Info    *MediaInfo
}

func (md Media) Tag() Tag {
	return MDIA
}

func (md Media) Marshal(bd *Builder) {
	bd.Start(MDIA)
	if md.Header != nil {
		md.Header.Marshal(bd)
	}
	if md.Handler != nil {
		md.Handler.Marshal(bd)
	}
	if md.Info != nil {
		md.Info.Marshal(bd)
	}
	bd.End()
}

func unmarshalMedia(mdia *Box) (md *Media, err error) {
	md = &Media{}
	for _, c := range mdia.Children {
		switch c.Tag {
		case MDHD:
			mh := &MediaHeader{}
			if err = mh.Unmarshal(c.Payload); err != nil {
				return
			}
			md.Header = mh
		case HDLR:
			hr := &HandlerRefer{}
			if err = hr.Unmarshal(c.Payload); err != nil {
				return
			}
			md.Handler = hr
		case MINF:
			if md.Info, err = unmarshalMediaInfo(c); err != nil {
				err = parseErr("minf", int(c.Offset), err)
				return
			}
		}
	}
	return
}

// LanguageUndetermined is the packed ISO-639-2 code "und".
const LanguageUndetermined = 0x55c4

// MediaHeader is the content of an mdhd box.
type MediaHeader struct {
	TimeScale uint32
	Duration  uint64
	Language  uint16
}

func (mh MediaHeader) Tag() Tag {
	return MDHD
}

func (mh MediaHeader) Marshal(bd *Builder) {
	if mh.Duration > math.MaxUint32 {
		bd.StartFull(MDHD, 1, 0)
		bd.U64(0)
		bd.U64(0)
		bd.U32(mh.TimeScale)
		bd.U64(mh.Duration)
	} else {
		bd.StartFull(MDHD, 0, 0)
		bd.U32(0)
		bd.U32(0)
		bd.U32(mh.TimeScale)
		bd.U32(uint32(mh.Duration))
	}
	bd.U16(mh.Language)
	bd.U16(0)
	bd.End()
}

func (mh *MediaHeader) Unmarshal(b []byte) (err error) {
	var version uint8
	var body []byte
	if version, body, err = fullBox(b, 20, "mdhd"); err != nil {
		return
	}
	if version == 1 {
		if len(body) < 30 {
			err = parseErr("mdhd", 4, nil)
			return
		}
		mh.TimeScale = pio.U32BE(body[16:])
		mh.Duration = pio.U64BE(body[20:])
		mh.Language = pio.U16BE(body[28:])
		return
	}
	mh.TimeScale = pio.U32BE(body[8:])
	mh.Duration = uint64(pio.U32BE(body[12:]))
	mh.Language = pio.U16BE(body[16:])
	return
}

type HandlerRefer struct {
	Type Tag
	Name string
}

func (hr HandlerRefer) Tag() Tag {
	return HDLR
}

func (hr HandlerRefer) Marshal(bd *Builder) {
	bd.StartFull(HDLR, 0, 0)
	bd.U32(0) // pre_defined
	bd.U32(uint32(hr.Type))
	bd.Zero(12)
	bd.Write([]byte(hr.Name))
	bd.U8(0)
	bd.End()
}

func (hr *HandlerRefer) Unmarshal(b []byte) (err error) {
	if len(b) < 24 {
		err = parseErr("hdlr", 0, nil)
		return
	}
	hr.Type = Tag(pio.U32BE(b[8:]))
	name := b[24:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	hr.Name = string(name)
	return
}

// MediaInfo is a minf box. A data reference pointing at the file itself is always written.
type MediaInfo struct {
	Video  *VideoMediaInfo
	Sample *SampleTable
}

func (mi MediaInfo) Tag() Tag {
	return MINF
}

func (mi MediaInfo) Marshal(bd *Builder) {
	bd.Start(MINF)
	if mi.Video != nil {
		mi.Video.Marshal(bd)
	}

	bd.Start(DINF)
	bd.StartFull(DREF, 0, 0)
	bd.U32(1)
	bd.StartFull(URL, 0, 0x000001) // self reference
	bd.End()
	bd.End()
	bd.End()

	if mi.Sample != nil {
		mi.Sample.Marshal(bd)
	}
	bd.End()
}

func unmarshalMediaInfo(minf *Box) (mi *MediaInfo, err error) {
	mi = &MediaInfo{}
	if vmhd := minf.Child(VMHD); vmhd != nil {
		vm := &VideoMediaInfo{}
		if err = vm.Unmarshal(vmhd.Payload); err != nil {
			return
		}
		mi.Video = vm
	}
	if stbl := minf.Child(STBL); stbl != nil {
		if mi.Sample, err = UnmarshalSampleTable(stbl); err != nil {
			return
		}
	}
	return
}

type VideoMediaInfo struct {
	GraphicsMode uint16
	Opcolor      [3]uint16
}

func (vm VideoMediaInfo) Tag() Tag {
	return VMHD
}

func (vm VideoMediaInfo) Marshal(bd *Builder) {
	bd.StartFull(VMHD, 0, 0x000001) // no lean ahead
	bd.U16(vm.GraphicsMode)
	for _, c := range vm.Opcolor {
		bd.U16(c)
	}
	bd.End()
}

func (vm *VideoMediaInfo) Unmarshal(b []byte) (err error) {
	var body []byte
	if _, body, err = fullBox(b, 8, "vmhd"); err != nil {
		return
	}
	vm.GraphicsMode = pio.U16BE(body)
	for i := range vm.Opcolor {
		vm.Opcolor[i] = pio.U16BE(body[2+2*i:])
	}
	return
}

const visualSampleEntrySize = 78

// SampleEntry is the single visual entry of an stsd box.
type SampleEntry struct {
	Format Tag // avc1, avc3, hev1 or hvc1
	Width  uint16
	Height uint16
	Conf   *Box // avcC or hvcC
}

func (se SampleEntry) Tag() Tag {
	return STSD
}

func (se SampleEntry) Marshal(bd *Builder) {
	bd.StartFull(STSD, 0, 0)
	bd.U32(1)

	bd.Start(se.Format)
	bd.Zero(6)
	bd.U16(1) // data_reference_index
	bd.Zero(16)
	bd.U16(se.Width)
	bd.U16(se.Height)
	bd.U32(0x00480000) // 72 dpi
	bd.U32(0x00480000)
	bd.U32(0)
	bd.U16(1) // frame_count
	bd.Zero(32)
	bd.U16(0x0018)
	bd.U16(0xffff)

	if se.Conf != nil {
		bd.Start(se.Conf.Tag)
		bd.Write(se.Conf.Payload)
		bd.End()
	}

	bd.End()
	bd.End()
}

func isVisualFormat(tag Tag) bool {
	switch tag {
	case AVC1, AVC3, HEV1, HVC1:
		return true
	}
	return false
}

// Unmarshal reads the first entry of an stsd box. Entries of other formats keep only Format.
func (se *SampleEntry) Unmarshal(b []byte) (err error) {
	var body []byte
	if _, body, err = fullBox(b, 4, "stsd"); err != nil {
		return
	}
	if pio.U32BE(body) == 0 {
		err = parseErr("stsd:empty", 4, nil)
		return
	}
	var entries []*Box
	if entries, err = ParseBoxes(body[4:], 0); err != nil || len(entries) == 0 {
		err = parseErr("stsd", 8, err)
		return
	}
	entry := entries[0]
	se.Format = entry.Tag
	if !isVisualFormat(se.Format) || len(entry.Payload) < visualSampleEntrySize {
		return
	}
	p := entry.Payload
	se.Width = pio.U16BE(p[24:])
	se.Height = pio.U16BE(p[26:])

	var children []*Box
	if children, err = ParseBoxes(p[visualSampleEntrySize:], 0); err != nil {
		err = parseErr("stsd:"+se.Format.String(), visualSampleEntrySize, err)
		return
	}
	for _, c := range children {
		if c.Tag == AVCC || c.Tag == HVCC {
			se.Conf = c
			break
		}
	}
	return
}
