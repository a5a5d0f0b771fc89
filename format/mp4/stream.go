// Package mp4
// Demuxes and muxes H.264 and HEVC video in the ISO base media file format.
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4

import (
	"fmt"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/format/mp4/mp4io"
)

// sample is one entry of a track, timestamps in the media time scale.
type sample struct {
	offset int64
	size   int64
	dts    int64
	cts    int64
	dur    int64
	key    bool
}

type Stream struct {
	av.Stream

	idx       int
	format    mp4io.Tag
	timeScale int64

	// demuxer side
	samples     []sample
	sampleIndex int

	// muxer side
	muxer     *Muxer
	table     *mp4io.SampleTable
	lastPkt   *av.Packet
	duration  int64
	allKey    bool
	sttsEntry *mp4io.TimeToSampleEntry
	cttsEntry *mp4io.CompositionOffsetEntry
}

// buildSamples flattens the sample table into per-sample positions and times.
func (s *Stream) buildSamples(st *mp4io.SampleTable) (err error) {
	count := len(st.SampleSizes)
	s.samples = make([]sample, 0, count)

	if len(st.SampleToChunk) == 0 {
		if count > 0 {
			err = fmt.Errorf("mp4: stream[%d]: empty sample to chunk table", s.idx)
		}
		return
	}

	group := 0
	n := 0
	for chunk := range st.ChunkOffsets {
		for group+1 < len(st.SampleToChunk) && uint32(chunk+1) >= st.SampleToChunk[group+1].FirstChunk {
			group++
		}
		offset := int64(st.ChunkOffsets[chunk])
		for i := uint32(0); i < st.SampleToChunk[group].SamplesPerChunk && n < count; i++ {
			size := int64(st.SampleSizes[n])
			s.samples = append(s.samples, sample{offset: offset, size: size})
			offset += size
			n++
		}
	}
	if n != count {
		err = fmt.Errorf("mp4: stream[%d]: chunks hold %d of %d samples", s.idx, n, count)
		return
	}

	n = 0
	var dts int64
	for _, e := range st.TimeToSample {
		for i := uint32(0); i < e.Count && n < count; i++ {
			s.samples[n].dts = dts
			s.samples[n].dur = int64(e.Duration)
			dts += int64(e.Duration)
			n++
		}
	}
	if n != count {
		err = fmt.Errorf("mp4: stream[%d]: stts covers %d of %d samples", s.idx, n, count)
		return
	}

	n = 0
	for _, e := range st.CompositionOffset {
		for i := uint32(0); i < e.Count && n < count; i++ {
			s.samples[n].cts = int64(e.Offset)
			n++
		}
	}

	if st.SyncSample == nil {
		for i := range s.samples {
			s.samples[i].key = true
		}
	} else {
		for _, num := range st.SyncSample {
			if num >= 1 && int(num) <= count {
				s.samples[num-1].key = true
			}
		}
	}
	return
}
