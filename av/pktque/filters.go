// Package pktque
// Provides packet Filter interface and structures used by other components.
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package pktque

import (
	"fmt"

	"github.com/teocci/go-avpack/av"
)

type Filter interface {
	// ModifyPacket changes packet time or drop packet
	ModifyPacket(pkt *av.Packet, streams []av.Stream, videoidx int) (drop bool, err error)
}

// Filters type combines multiple Filters into one, ModifyPacket will be called in order.
type Filters []Filter

func (f Filters) ModifyPacket(pkt *av.Packet, streams []av.Stream, videoidx int) (drop bool, err error) {
	for _, filter := range f {
		if drop, err = filter.ModifyPacket(pkt, streams, videoidx); err != nil {
			return
		}
		if drop {
			return
		}
	}
	return
}

// FilterDemuxer wraps origin Demuxer and Filter into a new Demuxer, when read this Demuxer filters will be called.
type FilterDemuxer struct {
	av.Demuxer
	Filter   Filter
	streams  []av.Stream
	videoidx int
}

func (fd *FilterDemuxer) ReadPacket() (pkt av.Packet, err error) {
	if fd.streams == nil {
		if fd.streams, err = fd.Demuxer.Streams(); err != nil {
			return
		}
		fd.videoidx = -1
		for i, stream := range fd.streams {
			if fd.videoidx < 0 && stream.Type().IsVideo() {
				fd.videoidx = i
			}
		}
	}

	for {
		if pkt, err = fd.Demuxer.ReadPacket(); err != nil {
			return
		}
		var drop bool
		if drop, err = fd.Filter.ModifyPacket(&pkt, fd.streams, fd.videoidx); err != nil {
			return
		}
		if !drop {
			break
		}
	}

	return
}

// WaitKeyFrame drops packets until first video key frame arrived.
type WaitKeyFrame struct {
	ok bool
}

func (wkf *WaitKeyFrame) ModifyPacket(pkt *av.Packet, streams []av.Stream, videoidx int) (drop bool, err error) {
	if !wkf.ok && int(pkt.Idx) == videoidx && pkt.IsKeyFrame {
		wkf.ok = true
	}
	drop = !wkf.ok
	return
}

// StreamMap drops packets of unmapped streams and renumbers the rest.
// Map[i] is the output index of input stream i, a negative value discards the stream.
type StreamMap struct {
	Map []int
}

func (sm StreamMap) ModifyPacket(pkt *av.Packet, streams []av.Stream, videoidx int) (drop bool, err error) {
	i := int(pkt.Idx)
	if i < 0 || i >= len(sm.Map) || sm.Map[i] < 0 {
		drop = true
		return
	}
	pkt.Idx = int8(sm.Map[i])
	return
}

// FixTime fills unknown timestamps so that packets can be written to a muxer.
// A missing DTS takes the PTS and the other way round, when both are missing the
// packet is placed right after the previous one of its stream.
type FixTime struct {
	next map[int8]int64
}

func (ft *FixTime) ModifyPacket(pkt *av.Packet, streams []av.Stream, videoidx int) (drop bool, err error) {
	if ft.next == nil {
		ft.next = make(map[int8]int64)
	}

	switch {
	case pkt.DTS == av.NoPTS && pkt.PTS == av.NoPTS:
		pkt.DTS = ft.next[pkt.Idx]
		pkt.PTS = pkt.DTS
	case pkt.DTS == av.NoPTS:
		pkt.DTS = pkt.PTS
	case pkt.PTS == av.NoPTS:
		pkt.PTS = pkt.DTS
	}

	ft.next[pkt.Idx] = pkt.DTS + pkt.Duration
	return
}

// Rescale converts packet times from the stream time base into Out[pkt.Idx].
// Timestamps round to nearest and pass NoPTS through, durations use plain rescaling.
type Rescale struct {
	Out []av.Rational
}

func (rs Rescale) ModifyPacket(pkt *av.Packet, streams []av.Stream, videoidx int) (drop bool, err error) {
	i := int(pkt.Idx)
	if i < 0 || i >= len(streams) || i >= len(rs.Out) {
		err = fmt.Errorf("pktque: no time base for stream %d", i)
		return
	}
	in, out := streams[i].TimeBase, rs.Out[i]
	if !in.IsValid() || !out.IsValid() {
		err = fmt.Errorf("pktque: invalid time base %v -> %v", in, out)
		return
	}

	const rnd = av.RoundNearInf | av.RoundPassMinMax
	pkt.PTS = av.RescaleQRnd(pkt.PTS, in, out, rnd)
	pkt.DTS = av.RescaleQRnd(pkt.DTS, in, out, rnd)
	pkt.Duration = av.Rescale(pkt.Duration, in, out)
	pkt.Pos = -1
	return
}
