// Package mkv
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mkv

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
	data := avtest.H264MKV(6, 3)
	require.True(t, Probe(data))

	d := NewDemuxer(bytes.NewReader(data))
	streams, err := d.Streams()
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, av.H264, streams[0].Type())
	assert.Equal(t, av.NewRational(1, 1000), streams[0].TimeBase)
	vcd := streams[0].CodecData.(av.VideoCodecData)
	assert.Equal(t, 1280, vcd.Width())
	assert.Equal(t, 720, vcd.Height())

	pkts := readAll(t, d)
	require.Len(t, pkts, 6)
	for i, pkt := range pkts {
		assert.Equal(t, int64(i*40), pkt.PTS)
		assert.Equal(t, pkt.PTS, pkt.DTS)
		assert.Equal(t, i%3 == 0, pkt.IsKeyFrame, "packet %d", i)
		assert.Equal(t, int64(-1), pkt.Pos)
		assert.Equal(t, avtest.AVCC(avtest.H264Slice(i%3 == 0, i)), pkt.Data)
	}
}

func TestDemuxReorderedFrames(t *testing.T) {
	cd := avtest.H264CodecData()
	pts := []int16{0, 80, 40, 120}
	var blocks []avtest.MKVBlock
	for i, ts := range pts {
		blocks = append(blocks, avtest.MKVBlock{Track: 1, Timecode: ts, Key: i == 0, Data: avtest.AVCC(avtest.H264Slice(i == 0, i))})
	}
	data := avtest.MKV([]avtest.MKVTrack{{Number: 1, CodecID: CodecIDH264, Private: cd.AVCDecoderConfRecordBytes(), Video: true}}, blocks)

	pkts := readAll(t, NewDemuxer(bytes.NewReader(data)))
	require.Len(t, pkts, 4)
	wantDTS := []int64{-40, 0, 40, 80}
	for i, pkt := range pkts {
		assert.Equal(t, int64(pts[i]), pkt.PTS)
		assert.Equal(t, wantDTS[i], pkt.DTS)
		assert.LessOrEqual(t, pkt.DTS, pkt.PTS)
	}
}

func TestDemuxBlockFileOrder(t *testing.T) {
	cd := avtest.H264CodecData()
	blocks := []avtest.MKVBlock{
		{Track: 1, Timecode: 0, Group: true, Lead: true, Data: avtest.AVCC(avtest.H264Slice(false, 0))},
		{Track: 1, Timecode: 40, Key: true, Data: avtest.AVCC(avtest.H264Slice(true, 1))},
		{Track: 1, Timecode: 80, Data: avtest.AVCC(avtest.H264Slice(false, 2))},
		{Track: 1, Timecode: 120, Group: true, Data: avtest.AVCC(avtest.H264Slice(false, 3))},
	}
	data := avtest.MKV([]avtest.MKVTrack{{Number: 1, CodecID: CodecIDH264, Private: cd.AVCDecoderConfRecordBytes(), Video: true}}, blocks)

	pkts := readAll(t, NewDemuxer(bytes.NewReader(data)))
	require.Len(t, pkts, 4)
	for i, pkt := range pkts {
		assert.Equal(t, int64(i*40), pkt.PTS, "packet %d", i)
		assert.Equal(t, avtest.AVCC(avtest.H264Slice(i == 1, i)), pkt.Data, "packet %d", i)
		assert.Equal(t, i == 1, pkt.IsKeyFrame, "packet %d", i)
	}
}

func TestDemuxTracks(t *testing.T) {
	hevc := avtest.HEVCCodecData()
	tracks := []avtest.MKVTrack{
		{Number: 1, CodecID: CodecIDHEVC, Private: hevc.HEVCDecoderConfRecordBytes(), Video: true},
		{Number: 2, CodecID: "A_OPUS"},
	}
	blocks := []avtest.MKVBlock{
		{Track: 1, Timecode: 0, Group: true, Data: avtest.AVCC(avtest.HEVCSlice(true, 0))},
		{Track: 2, Timecode: 0, Key: true, Data: []byte{0xfc, 0xff, 0xfe}},
		{Track: 1, Timecode: 40, Group: true, Data: avtest.AVCC(avtest.HEVCSlice(false, 1))},
		{Track: 3, Timecode: 40, Key: true, Data: []byte{1}},
	}

	d := NewDemuxer(bytes.NewReader(avtest.MKV(tracks, blocks)))
	streams, err := d.Streams()
	require.NoError(t, err)
	require.Len(t, streams, 2)
	assert.Equal(t, av.H265, streams[0].Type())
	assert.Equal(t, av.OtherCodecData{Name: "A_OPUS"}, streams[1].CodecData)
	assert.False(t, streams[1].Type().IsVideo())

	pkts := readAll(t, d)
	require.Len(t, pkts, 3)
	idx := map[int8]int{}
	for _, pkt := range pkts {
		idx[pkt.Idx]++
	}
	assert.Equal(t, map[int8]int{0: 2, 1: 1}, idx)
	for _, pkt := range pkts {
		if pkt.Idx == 0 && pkt.PTS == 0 {
			assert.True(t, pkt.IsKeyFrame, "random access slice in a block group")
		}
		if pkt.Idx == 0 && pkt.PTS == 40 {
			assert.False(t, pkt.IsKeyFrame)
		}
	}
}

func TestDemuxErrors(t *testing.T) {
	_, err := NewDemuxer(bytes.NewReader([]byte("not a matroska file"))).Streams()
	assert.Error(t, err)

	_, err = NewDemuxer(bytes.NewReader(avtest.MKV(nil, nil))).Streams()
	assert.Error(t, err)

	bad := avtest.MKV([]avtest.MKVTrack{{Number: 1, CodecID: CodecIDH264, Private: []byte{1}, Video: true}}, nil)
	_, err = NewDemuxer(bytes.NewReader(bad)).ReadPacket()
	assert.Error(t, err)

	assert.False(t, Probe([]byte{0x47, 0x40}))
}
