// Package rtp
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-26
package rtp

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/internal/avtest"
)

func readAll(t *testing.T, d *Demuxer) (pkts []av.Packet) {
	t.Helper()
	for {
		pkt, err := d.ReadPacket()
		if err == io.EOF {
			return
		}
		require.NoError(t, err)
		pkts = append(pkts, pkt)
	}
}

func TestDemuxH264(t *testing.T) {
	data := avtest.RFC4571(avtest.H264RTPPackets(8, 4))
	require.True(t, Probe(data))

	d := NewDemuxer(bytes.NewReader(data))
	streams, err := d.Streams()
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, av.H264, streams[0].Type())
	assert.Equal(t, av.NewRational(1, ClockRate), streams[0].TimeBase)
	assert.Equal(t, 1280, streams[0].CodecData.(av.VideoCodecData).Width())

	pkts := readAll(t, d)
	require.Len(t, pkts, 8)
	for i, pkt := range pkts {
		key := i%4 == 0
		assert.Equal(t, int64(i*avtest.RTPFrameTime), pkt.PTS, "packet %d", i)
		assert.Equal(t, pkt.PTS, pkt.DTS)
		assert.Equal(t, key, pkt.IsKeyFrame)
		assert.Equal(t, avtest.AVCC(avtest.H264Slice(key, i)), pkt.Data)
	}
	assert.Equal(t, int64(avtest.RTPFrameTime), pkts[0].Duration)
}

func TestDemuxReorderedPackets(t *testing.T) {
	pkts := avtest.H264RTPPackets(6, 3)
	// the two fragments of the last frame arrive swapped
	n := len(pkts)
	pkts[n-2], pkts[n-1] = pkts[n-1], pkts[n-2]

	got := readAll(t, NewDemuxer(bytes.NewReader(avtest.RFC4571(pkts))))
	require.Len(t, got, 6)
	for i, pkt := range got {
		assert.Equal(t, avtest.AVCC(avtest.H264Slice(i%3 == 0, i)), pkt.Data, "packet %d", i)
	}
}

func TestDemuxDecodeTimes(t *testing.T) {
	got := readAll(t, NewDemuxer(bytes.NewReader(avtest.RFC4571(avtest.H264RTPReordered(5)))))
	require.Len(t, got, 5)

	// presentation 0 2 1 4 3, reordering delay of one frame
	wantDTS := []int64{-1, 0, 1, 2, 3}
	for i, pkt := range got {
		assert.Equal(t, int64(avtest.ReorderedIndex(i)*avtest.RTPFrameTime), pkt.PTS, "packet %d", i)
		assert.Equal(t, wantDTS[i]*avtest.RTPFrameTime, pkt.DTS, "packet %d", i)
		assert.LessOrEqual(t, pkt.DTS, pkt.PTS, "packet %d", i)
		assert.Equal(t, int64(avtest.RTPFrameTime), pkt.Duration, "packet %d", i)
		assert.Equal(t, avtest.AVCC(avtest.H264Slice(i == 0, i)), pkt.Data, "packet %d", i)
	}
}

func TestDemuxErrors(t *testing.T) {
	_, err := NewDemuxer(bytes.NewReader(nil)).Streams()
	assert.Error(t, err)

	// slices without parameter sets
	pkts := avtest.H264RTPPackets(3, 3)[2:]
	_, err = NewDemuxer(bytes.NewReader(avtest.RFC4571(pkts))).Streams()
	assert.Error(t, err)

	data := avtest.RFC4571(avtest.H264RTPPackets(2, 2))
	_, err = NewDemuxer(bytes.NewReader(data[:len(data)-3])).Streams()
	require.NoError(t, err)
	d := NewDemuxer(bytes.NewReader(data[:len(data)-3]))
	for err == nil {
		_, err = d.ReadPacket()
	}
	assert.NotEqual(t, io.EOF, err)
}

func TestProbe(t *testing.T) {
	assert.False(t, Probe([]byte{0x47, 0x40, 0x00, 0x10}))
	assert.False(t, Probe([]byte{0, 0, 0, 0x20, 'f', 't', 'y', 'p'}))
	assert.False(t, Probe(avtest.AnnexB(avtest.H264SPS)))
}
