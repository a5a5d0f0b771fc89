// Package remux
// Created by RTT.
// Author: teocci@yandex.com on 2023-Apr-03
package remux

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/avbuf"
	"github.com/teocci/go-avpack/av/avutil"
	"github.com/teocci/go-avpack/codec/h264parser"
	"github.com/teocci/go-avpack/codec/h265parser"
	"github.com/teocci/go-avpack/format"
	"github.com/teocci/go-avpack/format/mp4"
	"github.com/teocci/go-avpack/format/mp4/mp4io"
	"github.com/teocci/go-avpack/format/ts/tsio"
	"github.com/teocci/go-avpack/internal/avtest"
)

func readMP4(t *testing.T, out *avbuf.Region) (av.Stream, []av.Packet) {
	t.Helper()
	d := mp4.NewDemuxer(bytes.NewReader(out.Bytes()))
	streams, err := d.Streams()
	require.NoError(t, err)
	require.Len(t, streams, 1)

	var pkts []av.Packet
	for {
		pkt, err := d.ReadPacket()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		pkts = append(pkts, pkt)
	}
	return streams[0], pkts
}

// confRecord returns the avcC or hvcC payload that describes cd.
func confRecord(t *testing.T, cd av.CodecData) []byte {
	t.Helper()
	switch c := cd.(type) {
	case h264parser.CodecData:
		return c.AVCDecoderConfRecordBytes()
	case h265parser.CodecData:
		return c.HEVCDecoderConfRecordBytes()
	}
	require.Failf(t, "no decoder configuration", "%T", cd)
	return nil
}

func inputStream(t *testing.T, input []byte) av.Stream {
	t.Helper()
	format.RegisterAll()
	d, err := avutil.DefaultHandlers.OpenDemuxer(bytes.NewReader(input), "", nil)
	require.NoError(t, err)
	streams, err := d.Streams()
	require.NoError(t, err)
	require.Len(t, streams, 1)
	return streams[0]
}

func TestRemuxInputs(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		codec av.CodecType
		tag   mp4io.Tag
		count int
	}{
		{"h264 annexb", avtest.H264Stream(10, 5), av.H264, mp4io.AVC1, 10},
		{"hevc annexb", avtest.HEVCStream(6, 3), av.H265, mp4io.HVC1, 6},
		{"mpegts", avtest.H264TS(8, 4), av.H264, mp4io.AVC1, 8},
		{"matroska", avtest.H264MKV(6, 3), av.H264, mp4io.AVC1, 6},
		{"rtp", avtest.RFC4571(avtest.H264RTPPackets(8, 4)), av.H264, mp4io.AVC1, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Remux(avbuf.NewRegion(tt.input))
			require.NoError(t, err)

			stream, pkts := readMP4(t, out)
			assert.Equal(t, tt.codec, stream.Type())
			assert.Equal(t, uint32(tt.tag), stream.CodecTag)
			assert.Equal(t, 1280, stream.CodecData.(av.VideoCodecData).Width())
			assert.Equal(t, confRecord(t, inputStream(t, tt.input).CodecData), confRecord(t, stream.CodecData))
			require.Len(t, pkts, tt.count)
			assert.True(t, pkts[0].IsKeyFrame)
			for i := 1; i < len(pkts); i++ {
				assert.Less(t, pkts[i-1].DTS, pkts[i].DTS, "packet %d", i)
			}
		})
	}
}

func TestRemuxKeepsPacketOrder(t *testing.T) {
	out, err := Remux(avbuf.NewRegion(avtest.H264Stream(8, 4)))
	require.NoError(t, err)

	_, pkts := readMP4(t, out)
	require.Len(t, pkts, 8)
	for i, pkt := range pkts {
		assert.Equal(t, avtest.AVCC(avtest.H264Slice(i%4 == 0, i)), pkt.Data, "packet %d", i)
	}
}

func TestRemuxMP4RoundTrip(t *testing.T) {
	first, err := Remux(avbuf.NewRegion(avtest.H264TS(6, 3)))
	require.NoError(t, err)
	second, err := Remux(first)
	require.NoError(t, err)

	s1, p1 := readMP4(t, first)
	s2, p2 := readMP4(t, second)
	assert.Equal(t, s1.CodecTag, s2.CodecTag)
	assert.Equal(t, s1.TimeBase, s2.TimeBase)
	assert.Equal(t, confRecord(t, s1.CodecData), confRecord(t, s2.CodecData))
	require.Equal(t, len(p1), len(p2))
	for i := range p1 {
		assert.Equal(t, p1[i].PTS, p2[i].PTS)
		assert.Equal(t, p1[i].DTS, p2[i].DTS)
		assert.Equal(t, p1[i].Data, p2[i].Data)
	}
}

func TestRemuxTwoStreams(t *testing.T) {
	streams := []avtest.TSStream{
		{PID: 0x100, StreamType: tsio.ElementaryStreamTypeH264},
		{PID: 0x101, StreamType: tsio.ElementaryStreamTypeH264},
	}
	key := avtest.AnnexB(avtest.H264SPS, avtest.H264PPS, avtest.H264Slice(true, 0))
	frames := []avtest.TSFrame{
		{PID: 0x100, PTS: 3600, DTS: 3600, Key: true, Data: key},
		{PID: 0x101, PTS: 3600, DTS: 3600, Key: true, Data: key},
	}

	_, err := Remux(avbuf.NewRegion(avtest.BuildTS(streams, frames)))
	require.Error(t, err)
	assert.ErrorIs(t, err, av.UnsupportedStreamShape)
}

func TestRemuxErrors(t *testing.T) {
	_, err := Remux(avbuf.NewRegion([]byte("definitely not a video")))
	assert.ErrorIs(t, err, av.DemuxError)

	_, err = Remux(avbuf.NewRegion(nil))
	assert.ErrorIs(t, err, av.DemuxError)

	released := avbuf.NewRegion(avtest.H264Stream(2, 2))
	released.Release()
	_, err = Remux(released)
	assert.ErrorIs(t, err, av.IOError)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := RemuxContext(ctx, avbuf.NewRegion(avtest.H264Stream(4, 2)), Options{})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = RemuxContext(context.Background(), avbuf.NewRegion(avtest.H264Stream(4, 2)), Options{Format: "nope"})
	assert.ErrorIs(t, err, av.DemuxError)
}

func TestRemuxForcedFormat(t *testing.T) {
	out, err := RemuxContext(context.Background(), avbuf.NewRegion(avtest.HEVCStream(3, 3)), Options{Format: "hevc"})
	require.NoError(t, err)

	stream, pkts := readMP4(t, out)
	assert.Equal(t, av.H265, stream.Type())
	assert.Len(t, pkts, 3)
}
