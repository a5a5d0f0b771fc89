// Package mp4io
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4io

import (
	"github.com/teocci/go-avpack/utils/bits/pio"
)

type TimeToSampleEntry struct {
	Count    uint32
	Duration uint32
}

type CompositionOffsetEntry struct {
	Count  uint32
	Offset int32
}

type SampleToChunkEntry struct {
	FirstChunk      uint32
	SamplesPerChunk uint32
	SampleDescId    uint32
}

// SampleTable holds the stbl tables of one track.
type SampleTable struct {
	SampleDesc        *SampleEntry
	TimeToSample      []TimeToSampleEntry
	CompositionOffset []CompositionOffsetEntry
	SyncSample        []uint32 // 1-based sample numbers, nil means every sample is a sync sample
	SampleToChunk     []SampleToChunkEntry
	SampleSizes       []uint32
	ChunkOffsets      []uint64
}

func fullBox(b []byte, min int, debug string) (version uint8, body []byte, err error) {
	if len(b) < 4+min {
		err = parseErr(debug, 0, nil)
		return
	}
	version = b[0]
	body = b[4:]
	return
}

func entryCount(body []byte, entrySize int, debug string) (n int, err error) {
	if len(body) < 4 {
		err = parseErr(debug, 0, nil)
		return
	}
	n = int(pio.U32BE(body))
	if n < 0 || n > (len(body)-4)/entrySize {
		err = parseErr(debug+":entries", 4, nil)
	}
	return
}

func (st *SampleTable) unmarshalStts(b []byte) (err error) {
	var body []byte
	if _, body, err = fullBox(b, 4, "stts"); err != nil {
		return
	}
	var n int
	if n, err = entryCount(body, 8, "stts"); err != nil {
		return
	}
	st.TimeToSample = make([]TimeToSampleEntry, n)
	for i := range st.TimeToSample {
		p := body[4+i*8:]
		st.TimeToSample[i] = TimeToSampleEntry{Count: pio.U32BE(p), Duration: pio.U32BE(p[4:])}
	}
	return
}

func (st *SampleTable) unmarshalCtts(b []byte) (err error) {
	var body []byte
	var version uint8
	if version, body, err = fullBox(b, 4, "ctts"); err != nil {
		return
	}
	var n int
	if n, err = entryCount(body, 8, "ctts"); err != nil {
		return
	}
	st.CompositionOffset = make([]CompositionOffsetEntry, n)
	for i := range st.CompositionOffset {
		p := body[4+i*8:]
		e := CompositionOffsetEntry{Count: pio.U32BE(p)}
		if version == 0 {
			// version 0 offsets are unsigned, values above MaxInt32 are seen in the wild as negatives
			e.Offset = int32(pio.U32BE(p[4:]))
		} else {
			e.Offset = pio.I32BE(p[4:])
		}
		st.CompositionOffset[i] = e
	}
	return
}

func (st *SampleTable) unmarshalStss(b []byte) (err error) {
	var body []byte
	if _, body, err = fullBox(b, 4, "stss"); err != nil {
		return
	}
	var n int
	if n, err = entryCount(body, 4, "stss"); err != nil {
		return
	}
	st.SyncSample = make([]uint32, n)
	for i := range st.SyncSample {
		st.SyncSample[i] = pio.U32BE(body[4+i*4:])
	}
	return
}

func (st *SampleTable) unmarshalStsc(b []byte) (err error) {
	var body []byte
	if _, body, err = fullBox(b, 4, "stsc"); err != nil {
		return
	}
	var n int
	if n, err = entryCount(body, 12, "stsc"); err != nil {
		return
	}
	st.SampleToChunk = make([]SampleToChunkEntry, n)
	for i := range st.SampleToChunk {
		p := body[4+i*12:]
		st.SampleToChunk[i] = SampleToChunkEntry{
			FirstChunk:      pio.U32BE(p),
			SamplesPerChunk: pio.U32BE(p[4:]),
			SampleDescId:    pio.U32BE(p[8:]),
		}
	}
	return
}

func (st *SampleTable) unmarshalStsz(b []byte) (err error) {
	var body []byte
	if _, body, err = fullBox(b, 8, "stsz"); err != nil {
		return
	}
	size := pio.U32BE(body)
	count := int(pio.U32BE(body[4:]))
	if size != 0 {
		if count < 0 || count > 1<<28 {
			err = parseErr("stsz:count", 8, nil)
			return
		}
		st.SampleSizes = make([]uint32, count)
		for i := range st.SampleSizes {
			st.SampleSizes[i] = size
		}
		return
	}
	var n int
	if n, err = entryCount(body[4:], 4, "stsz"); err != nil {
		return
	}
	st.SampleSizes = make([]uint32, n)
	for i := range st.SampleSizes {
		st.SampleSizes[i] = pio.U32BE(body[8+i*4:])
	}
	return
}

func (st *SampleTable) unmarshalStco(b []byte, wide bool) (err error) {
	var body []byte
	if _, body, err = fullBox(b, 4, "stco"); err != nil {
		return
	}
	entrySize := 4
	if wide {
		entrySize = 8
	}
	var n int
	if n, err = entryCount(body, entrySize, "stco"); err != nil {
		return
	}
	st.ChunkOffsets = make([]uint64, n)
	for i := range st.ChunkOffsets {
		p := body[4+i*entrySize:]
		if wide {
			st.ChunkOffsets[i] = pio.U64BE(p)
		} else {
			st.ChunkOffsets[i] = uint64(pio.U32BE(p))
		}
	}
	return
}

// UnmarshalSampleTable reads the sample tables from an stbl box.
func UnmarshalSampleTable(stbl *Box) (st *SampleTable, err error) {
	st = &SampleTable{}
	for _, c := range stbl.Children {
		switch c.Tag {
		case STSD:
			se := &SampleEntry{}
			if err = se.Unmarshal(c.Payload); err == nil {
				st.SampleDesc = se
			}
		case STTS:
			err = st.unmarshalStts(c.Payload)
		case CTTS:
			err = st.unmarshalCtts(c.Payload)
		case STSS:
			err = st.unmarshalStss(c.Payload)
		case STSC:
			err = st.unmarshalStsc(c.Payload)
		case STSZ:
			err = st.unmarshalStsz(c.Payload)
		case STCO:
			err = st.unmarshalStco(c.Payload, false)
		case CO64:
			err = st.unmarshalStco(c.Payload, true)
		}
		if err != nil {
			err = parseErr("stbl", int(c.Offset), err)
			return
		}
	}
	if st.SampleSizes == nil || st.ChunkOffsets == nil || st.SampleToChunk == nil || st.TimeToSample == nil {
		err = parseErr("stbl:incomplete", int(stbl.Offset), nil)
	}
	return
}

func (st SampleTable) Tag() Tag {
	return STBL
}

// Marshal writes the stbl box. A nil SyncSample omits stss, a nil CompositionOffset omits ctts.
func (st SampleTable) Marshal(bd *Builder) {
	bd.Start(STBL)
	if st.SampleDesc != nil {
		st.SampleDesc.Marshal(bd)
	}

	bd.StartFull(STTS, 0, 0)
	bd.U32(uint32(len(st.TimeToSample)))
	for _, e := range st.TimeToSample {
		bd.U32(e.Count)
		bd.U32(e.Duration)
	}
	bd.End()

	if st.SyncSample != nil {
		bd.StartFull(STSS, 0, 0)
		bd.U32(uint32(len(st.SyncSample)))
		for _, n := range st.SyncSample {
			bd.U32(n)
		}
		bd.End()
	}

	if st.CompositionOffset != nil {
		var version uint8
		for _, e := range st.CompositionOffset {
			if e.Offset < 0 {
				version = 1
				break
			}
		}
		bd.StartFull(CTTS, version, 0)
		bd.U32(uint32(len(st.CompositionOffset)))
		for _, e := range st.CompositionOffset {
			bd.U32(e.Count)
			bd.I32(e.Offset)
		}
		bd.End()
	}

	bd.StartFull(STSC, 0, 0)
	bd.U32(uint32(len(st.SampleToChunk)))
	for _, e := range st.SampleToChunk {
		bd.U32(e.FirstChunk)
		bd.U32(e.SamplesPerChunk)
		bd.U32(e.SampleDescId)
	}
	bd.End()

	bd.StartFull(STSZ, 0, 0)
	bd.U32(0)
	bd.U32(uint32(len(st.SampleSizes)))
	for _, n := range st.SampleSizes {
		bd.U32(n)
	}
	bd.End()

	wide := false
	for _, off := range st.ChunkOffsets {
		if off > 0xffffffff {
			wide = true
			break
		}
	}
	if wide {
		bd.StartFull(CO64, 0, 0)
		bd.U32(uint32(len(st.ChunkOffsets)))
		for _, off := range st.ChunkOffsets {
			bd.U64(off)
		}
	} else {
		bd.StartFull(STCO, 0, 0)
		bd.U32(uint32(len(st.ChunkOffsets)))
		for _, off := range st.ChunkOffsets {
			bd.U32(uint32(off))
		}
	}
	bd.End()
	bd.End()
}
