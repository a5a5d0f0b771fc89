// Package pktque
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package pktque

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teocci/go-avpack/av"
)

type codec struct{ typ av.CodecType }

func (c codec) Type() av.CodecType { return c.typ }

type sliceDemuxer struct {
	streams []av.Stream
	pkts    []av.Packet
}

func (d *sliceDemuxer) Streams() ([]av.Stream, error) { return d.streams, nil }

func (d *sliceDemuxer) ReadPacket() (pkt av.Packet, err error) {
	if len(d.pkts) == 0 {
		err = io.EOF
		return
	}
	pkt, d.pkts = d.pkts[0], d.pkts[1:]
	return
}

func TestBufRing(t *testing.T) {
	b := &Buf{}
	_, ok := b.Pop()
	assert.False(t, ok)
	assert.Nil(t, b.Last())

	for i := 0; i < 100; i++ {
		b.Push(av.Packet{PTS: int64(i), Data: []byte{byte(i)}})
	}
	assert.Equal(t, 100, b.Count)
	assert.Equal(t, 100, b.Size)
	assert.Equal(t, int64(99), b.Last().PTS)
	assert.True(t, b.IsValidPos(b.Head))
	assert.False(t, b.IsValidPos(b.Tail))

	for i := 0; i < 100; i++ {
		pkt, ok := b.Pop()
		require.True(t, ok)
		assert.Equal(t, int64(i), pkt.PTS)
	}
	assert.Equal(t, 0, b.Size)
}

func TestFilterDemuxer(t *testing.T) {
	d := &sliceDemuxer{
		streams: []av.Stream{
			{CodecData: codec{av.H264}, Idx: 0, TimeBase: av.NewRational(1, 90000)},
			{CodecData: codec{av.H264}, Idx: 1, TimeBase: av.NewRational(1, 90000)},
		},
		pkts: []av.Packet{
			{Idx: 0, PTS: 0, DTS: 0},
			{Idx: 0, IsKeyFrame: true, PTS: 3000, DTS: 3000, Duration: 3000},
			{Idx: 1, IsKeyFrame: true, PTS: 3000, DTS: 3000},
			{Idx: 0, PTS: 6000, DTS: 6000, Duration: 3000, Pos: 99},
		},
	}
	fd := &FilterDemuxer{
		Demuxer: d,
		Filter: Filters{
			&WaitKeyFrame{},
			StreamMap{Map: []int{0, -1}},
			Rescale{Out: []av.Rational{av.NewRational(1, 1000)}},
		},
	}

	var got []av.Packet
	for {
		pkt, err := fd.ReadPacket()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, pkt)
	}
	require.Len(t, got, 2)
	assert.Equal(t, int64(33), got[0].PTS)
	assert.Equal(t, int64(67), got[1].DTS)
	assert.Equal(t, int64(33), got[1].Duration)
	assert.Equal(t, int64(-1), got[1].Pos)
}

func TestRescalePassesNoPTS(t *testing.T) {
	streams := []av.Stream{{CodecData: codec{av.H265}, TimeBase: av.NewRational(1, 1200000)}}
	pkt := av.Packet{PTS: av.NoPTS, DTS: 48000, Duration: 48000}
	drop, err := Rescale{Out: []av.Rational{av.NewRational(1, 12800)}}.ModifyPacket(&pkt, streams, 0)
	require.NoError(t, err)
	assert.False(t, drop)
	assert.Equal(t, av.NoPTS, pkt.PTS)
	assert.Equal(t, int64(512), pkt.DTS)

	pkt.Idx = 3
	_, err = Rescale{}.ModifyPacket(&pkt, streams, 0)
	assert.Error(t, err)
}

func TestFixTime(t *testing.T) {
	ft := &FixTime{}
	pkts := []av.Packet{
		{PTS: 10, DTS: av.NoPTS, Duration: 5},
		{PTS: av.NoPTS, DTS: av.NoPTS, Duration: 5},
		{PTS: av.NoPTS, DTS: 22},
	}
	for i := range pkts {
		_, err := ft.ModifyPacket(&pkts[i], nil, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(10), pkts[0].DTS)
	assert.Equal(t, int64(15), pkts[1].PTS)
	assert.Equal(t, int64(15), pkts[1].DTS)
	assert.Equal(t, int64(22), pkts[2].PTS)
}
