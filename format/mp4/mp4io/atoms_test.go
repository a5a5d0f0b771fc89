// Package mp4io
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4io

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOne(t *testing.T, b []byte) *Box {
	boxes, err := ParseBoxes(b, 0)
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	return boxes[0]
}

func TestMovieRoundTrip(t *testing.T) {
	table := &SampleTable{
		SampleDesc: &SampleEntry{
			Format: HVC1,
			Width:  1280,
			Height: 720,
			Conf:   &Box{Tag: HVCC, Payload: []byte{1, 2, 3, 4}},
		},
		TimeToSample:      []TimeToSampleEntry{{Count: 3, Duration: 512}},
		CompositionOffset: []CompositionOffsetEntry{{Count: 1, Offset: 1024}, {Count: 2, Offset: -512}},
		SyncSample:        []uint32{1},
		SampleToChunk:     []SampleToChunkEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescId: 1}},
		SampleSizes:       []uint32{10, 20, 30},
		ChunkOffsets:      []uint64{48, 58, 78},
	}
	in := &Movie{
		Header: &MovieHeader{TimeScale: 1000, Duration: 120, NextTrackId: 2},
		Tracks: []*Track{{
			Header: &TrackHeader{
				Flags:       TrackEnabled | TrackInMovie,
				TrackId:     1,
				Duration:    120,
				TrackWidth:  1280,
				TrackHeight: 720,
			},
			Media: &Media{
				Header:  &MediaHeader{TimeScale: 12800, Duration: 1536, Language: LanguageUndetermined},
				Handler: &HandlerRefer{Type: VIDE, Name: "VideoHandler"},
				Info:    &MediaInfo{Video: &VideoMediaInfo{}, Sample: table},
			},
		}},
	}

	moov := parseOne(t, MarshalAtom(in))
	assert.Equal(t, MOOV, moov.Tag)

	out, err := UnmarshalMovie(moov)
	require.NoError(t, err)
	assert.Equal(t, in.Header, out.Header)
	require.Len(t, out.Tracks, 1)

	trak := out.Tracks[0]
	assert.Equal(t, in.Tracks[0].Header, trak.Header)
	require.NotNil(t, trak.Media)
	assert.Equal(t, in.Tracks[0].Media.Header, trak.Media.Header)
	assert.Equal(t, in.Tracks[0].Media.Handler, trak.Media.Handler)
	require.NotNil(t, trak.Media.Info)
	assert.Equal(t, &VideoMediaInfo{}, trak.Media.Info.Video)

	st := trak.Media.Info.Sample
	require.NotNil(t, st)
	assert.Equal(t, table.TimeToSample, st.TimeToSample)
	assert.Equal(t, table.CompositionOffset, st.CompositionOffset)
	assert.Equal(t, table.SyncSample, st.SyncSample)
	assert.Equal(t, table.SampleToChunk, st.SampleToChunk)
	assert.Equal(t, table.SampleSizes, st.SampleSizes)
	assert.Equal(t, table.ChunkOffsets, st.ChunkOffsets)

	require.NotNil(t, st.SampleDesc)
	assert.Equal(t, HVC1, st.SampleDesc.Format)
	assert.Equal(t, uint16(1280), st.SampleDesc.Width)
	assert.Equal(t, uint16(720), st.SampleDesc.Height)
	require.NotNil(t, st.SampleDesc.Conf)
	assert.Equal(t, HVCC, st.SampleDesc.Conf.Tag)
	assert.Equal(t, []byte{1, 2, 3, 4}, st.SampleDesc.Conf.Payload)
}

func TestMediaHeaderWideDuration(t *testing.T) {
	in := MediaHeader{TimeScale: 90000, Duration: 1 << 33, Language: LanguageUndetermined}
	box := parseOne(t, MarshalAtom(in))
	assert.Equal(t, uint8(1), box.Payload[0])

	var out MediaHeader
	require.NoError(t, out.Unmarshal(box.Payload))
	assert.Equal(t, in, out)
}

func TestTrackHeaderWideDuration(t *testing.T) {
	in := TrackHeader{Flags: TrackEnabled, TrackId: 3, Duration: 1 << 32, TrackWidth: 640, TrackHeight: 360}
	box := parseOne(t, MarshalAtom(in))
	assert.Equal(t, uint8(1), box.Payload[0])

	var out TrackHeader
	require.NoError(t, out.Unmarshal(box.Payload))
	assert.Equal(t, in, out)
}

func TestSampleEntryNonVisual(t *testing.T) {
	bd := &Builder{}
	bd.StartFull(STSD, 0, 0)
	bd.U32(1)
	bd.Start(StringToTag("mp4a"))
	bd.Zero(28)
	bd.Start(StringToTag("esds"))
	bd.Zero(60)
	bd.End()
	bd.End()
	bd.End()

	box := parseOne(t, bd.Bytes())
	var se SampleEntry
	require.NoError(t, se.Unmarshal(box.Payload))
	assert.Equal(t, "mp4a", se.Format.String())
	assert.Nil(t, se.Conf)
	assert.Zero(t, se.Width)
}

func TestUnmarshalMovieTruncated(t *testing.T) {
	bd := &Builder{}
	bd.Start(MOOV)
	bd.StartFull(MVHD, 0, 0)
	bd.Zero(8)
	bd.End()
	bd.End()

	_, err := UnmarshalMovie(parseOne(t, bd.Bytes()))
	require.Error(t, err)
	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}
