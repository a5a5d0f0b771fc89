// Package annexb
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-20
package annexb

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/codec/h264parser"
	"github.com/teocci/go-avpack/internal/avtest"
)

func readAll(t *testing.T, d *Demuxer) (pkts []av.Packet) {
	for {
		pkt, err := d.ReadPacket()
		if err == io.EOF {
			return
		}
		require.NoError(t, err)
		pkts = append(pkts, pkt)
	}
}

func TestNALUReader(t *testing.T) {
	data := []byte{
		0xff, 0, 0, 0, 1, 0x67, 0x42, 0,
		0, 0, 1, 0x68, 0xce, 0, 0,
		0, 0, 0, 1, 0x65, 0x88,
	}
	nr := &naluReader{r: iotest.OneByteReader(bytes.NewReader(data))}

	var nalus [][]byte
	for {
		nalu, err := nr.next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		nalus = append(nalus, nalu)
	}
	assert.Equal(t, [][]byte{{0x67, 0x42}, {0x68, 0xce}, {0x65, 0x88}}, nalus)
}

func TestNALUReaderLongLastUnit(t *testing.T) {
	data := avtest.AnnexB(avtest.H264SPS, avtest.H264Slice(true, 0))
	nr := &naluReader{r: bytes.NewReader(data)}

	first, err := nr.next()
	require.NoError(t, err)
	assert.Equal(t, avtest.H264SPS, first)
	last, err := nr.next()
	require.NoError(t, err)
	assert.Equal(t, avtest.H264Slice(true, 0), last)

	for i := 0; i < 2; i++ {
		_, err = nr.next()
		assert.Equal(t, io.EOF, err)
	}
}

func TestDemuxH264(t *testing.T) {
	data := avtest.H264Stream(10, 4)
	require.True(t, ProbeH264(data))
	require.False(t, ProbeHEVC(data))

	d := NewDemuxer(bytes.NewReader(data), av.H264)
	streams, err := d.Streams()
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, av.H264, streams[0].Type())
	assert.Equal(t, av.NewRational(1, 1200000), streams[0].TimeBase)

	pkts := readAll(t, d)
	require.Len(t, pkts, 10)
	for i, pkt := range pkts {
		assert.Equal(t, i%4 == 0, pkt.IsKeyFrame, "packet %d", i)
		assert.Equal(t, int64(i)*48000, pkt.PTS)
		assert.Equal(t, int64(48000), pkt.Duration)
		nalus, err := h264parser.SplitAVCC(pkt.Data, 4)
		require.NoError(t, err)
		assert.Equal(t, [][]byte{avtest.H264Slice(i%4 == 0, i)}, nalus)
	}
}

func TestDemuxHEVC(t *testing.T) {
	data := avtest.HEVCStream(6, 3)
	require.True(t, ProbeHEVC(data))
	require.False(t, ProbeH264(data))

	d := NewDemuxer(iotest.HalfReader(bytes.NewReader(data)), av.H265)
	require.NoError(t, d.SetFrameRate(50))
	streams, err := d.Streams()
	require.NoError(t, err)
	assert.Equal(t, av.H265, streams[0].Type())
	assert.Equal(t, 1280, streams[0].CodecData.(av.VideoCodecData).Width())

	pkts := readAll(t, d)
	require.Len(t, pkts, 6)
	assert.True(t, pkts[3].IsKeyFrame)
	assert.Equal(t, int64(5*24000), pkts[5].DTS)
}

func TestDemuxMultiSliceAccessUnit(t *testing.T) {
	second := []byte{0x65, 0x44, 0x80} // first_mb_in_slice = 1
	data := avtest.AnnexB(avtest.H264SPS, avtest.H264PPS, avtest.H264Slice(true, 0), second, avtest.H264Slice(false, 1))

	pkts := readAll(t, NewDemuxer(bytes.NewReader(data), av.H264))
	require.Len(t, pkts, 2)
	nalus, err := h264parser.SplitAVCC(pkts[0].Data, 4)
	require.NoError(t, err)
	assert.Len(t, nalus, 2)
}

func TestDemuxErrors(t *testing.T) {
	_, err := NewDemuxer(bytes.NewReader(avtest.AnnexB(avtest.H264Slice(true, 0))), av.H264).Streams()
	assert.ErrorContains(t, err, "parameter sets")

	_, err = NewDemuxer(bytes.NewReader(nil), av.H264).Streams()
	assert.Error(t, err)

	assert.Error(t, NewDemuxer(nil, av.H264).SetFrameRate(7))
}
