// Package mp4
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/codec/h264parser"
	"github.com/teocci/go-avpack/codec/h265parser"
	"github.com/teocci/go-avpack/format/mp4/mp4io"
	"github.com/teocci/go-avpack/utils/bits/pio"
)

// Compliance levels for Muxer.Strict.
const (
	StrictVeryStrict   = 2
	StrictStrict       = 1
	StrictNormal       = 0
	StrictUnofficial   = -1
	StrictExperimental = -2
)

const movieTimeScale = 1000

type Muxer struct {
	// Strict limits the codec tags the muxer accepts, hvc1 needs StrictUnofficial or lower.
	Strict int

	w       io.WriteSeeker
	bufw    *bufio.Writer
	wpos    int64
	mdatPos int64
	streams []*Stream
}

func NewMuxer(w io.WriteSeeker) *Muxer {
	return &Muxer{
		w:    w,
		bufw: bufio.NewWriterSize(w, pio.RecommendBufioSize),
	}
}

// timeScaleFor picks the media time scale of a track from its stream time base.
func timeScaleFor(tb av.Rational) int64 {
	ts := int64(tb.Den)
	if ts <= 0 {
		ts = 90000
	}
	for ts < 10000 {
		ts *= 2
	}
	return ts
}

func (m *Muxer) codecTag(stream av.Stream) (tag mp4io.Tag, err error) {
	tag = mp4io.Tag(stream.CodecTag)
	switch stream.Type() {
	case av.H264:
		switch tag {
		case 0:
			tag = mp4io.AVC1
		case mp4io.AVC1, mp4io.AVC3:
		default:
			err = fmt.Errorf("mp4: tag %v incompatible with codec %v", tag, stream.Type())
		}
	case av.H265:
		switch tag {
		case 0:
			tag = mp4io.HEV1
		case mp4io.HEV1:
		case mp4io.HVC1:
			if m.Strict > StrictUnofficial {
				err = fmt.Errorf("mp4: tag hvc1 needs strict level %d or lower, have %d", StrictUnofficial, m.Strict)
			}
		default:
			err = fmt.Errorf("mp4: tag %v incompatible with codec %v", tag, stream.Type())
		}
	default:
		err = fmt.Errorf("mp4: codec type=%v is not supported", stream.Type())
	}
	return
}

func (m *Muxer) newStream(in av.Stream) (err error) {
	stream := &Stream{
		Stream: in,
		idx:    len(m.streams),
		muxer:  m,
		allKey: true,
	}
	if stream.format, err = m.codecTag(in); err != nil {
		return
	}
	if _, ok := in.CodecData.(av.VideoCodecData); !ok {
		err = fmt.Errorf("mp4: stream#%d has no video dimensions", stream.idx)
		return
	}

	stream.Idx = stream.idx
	stream.CodecTag = uint32(stream.format)
	stream.timeScale = timeScaleFor(in.TimeBase)
	stream.TimeBase = av.NewRational(1, int(stream.timeScale))
	stream.table = &mp4io.SampleTable{
		SampleToChunk: []mp4io.SampleToChunkEntry{
			{
				FirstChunk:      1,
				SampleDescId:    1,
				SamplesPerChunk: 1,
			},
		},
	}

	m.streams = append(m.streams, stream)
	return
}

// Streams returns the output streams with the time bases and tags chosen by WriteHeader.
// Packets passed to WritePacket must use these time bases.
func (m *Muxer) Streams() (streams []av.Stream) {
	for _, stream := range m.streams {
		streams = append(streams, stream.Stream)
	}
	return
}

func (m *Muxer) write(b []byte) (err error) {
	if _, err = m.bufw.Write(b); err != nil {
		return
	}
	m.wpos += int64(len(b))
	return
}

func (m *Muxer) WriteHeader(streams []av.Stream) (err error) {
	m.streams = []*Stream{}
	for _, stream := range streams {
		if err = m.newStream(stream); err != nil {
			return
		}
	}
	if len(m.streams) == 0 {
		err = fmt.Errorf("mp4: no streams")
		return
	}

	bd := &mp4io.Builder{}
	bd.Start(mp4io.FTYP)
	bd.U32(uint32(mp4io.ISOM))
	bd.U32(512)
	bd.U32(uint32(mp4io.ISOM))
	bd.U32(uint32(mp4io.StringToTag("iso2")))
	for _, stream := range m.streams {
		if stream.Type() == av.H264 {
			bd.U32(uint32(mp4io.AVC1))
			break
		}
	}
	bd.U32(uint32(mp4io.StringToTag("mp41")))
	bd.End()

	// free is turned into a 64 bit mdat header when the payload outgrows 32 bits
	bd.Start(mp4io.FREE)
	bd.End()
	m.mdatPos = int64(bd.Len())
	bd.Start(mp4io.MDAT)
	bd.End()

	return m.write(bd.Bytes())
}

func (m *Muxer) WritePacket(pkt av.Packet) (err error) {
	if int(pkt.Idx) < 0 || int(pkt.Idx) >= len(m.streams) {
		err = fmt.Errorf("mp4: packet for unknown stream#%d", pkt.Idx)
		return
	}
	if pkt.DTS == av.NoPTS {
		err = fmt.Errorf("mp4: stream#%d packet without dts", pkt.Idx)
		return
	}
	stream := m.streams[pkt.Idx]
	if stream.lastPkt != nil {
		if err = stream.writePacket(*stream.lastPkt, pkt.DTS-stream.lastPkt.DTS); err != nil {
			return
		}
	}
	stream.lastPkt = &pkt
	return
}

func (s *Stream) writePacket(pkt av.Packet, duration int64) (err error) {
	if duration < 0 || duration > math.MaxUint32 {
		err = fmt.Errorf("mp4: stream#%d non monotonic dts=%d duration=%d", pkt.Idx, pkt.DTS, duration)
		return
	}

	offset := s.muxer.wpos
	if err = s.muxer.write(pkt.Data); err != nil {
		return
	}

	s.table.SampleSizes = append(s.table.SampleSizes, uint32(len(pkt.Data)))
	s.table.ChunkOffsets = append(s.table.ChunkOffsets, uint64(offset))

	if pkt.IsKeyFrame {
		s.table.SyncSample = append(s.table.SyncSample, uint32(len(s.table.SampleSizes)))
	} else {
		s.allKey = false
	}

	dur := uint32(duration)
	if s.sttsEntry == nil || dur != s.sttsEntry.Duration {
		s.table.TimeToSample = append(s.table.TimeToSample, mp4io.TimeToSampleEntry{Duration: dur})
		s.sttsEntry = &s.table.TimeToSample[len(s.table.TimeToSample)-1]
	}
	s.sttsEntry.Count++

	var cts int64
	if pkt.PTS != av.NoPTS {
		cts = pkt.PTS - pkt.DTS
	}
	if cts < math.MinInt32 || cts > math.MaxInt32 {
		err = fmt.Errorf("mp4: stream#%d composition offset %d out of range", pkt.Idx, cts)
		return
	}
	if s.cttsEntry == nil || int32(cts) != s.cttsEntry.Offset {
		s.table.CompositionOffset = append(s.table.CompositionOffset, mp4io.CompositionOffsetEntry{Offset: int32(cts)})
		s.cttsEntry = &s.table.CompositionOffset[len(s.table.CompositionOffset)-1]
	}
	s.cttsEntry.Count++

	s.duration += duration
	return
}

func (m *Muxer) WriteTrailer() (err error) {
	for _, stream := range m.streams {
		if stream.lastPkt == nil {
			continue
		}
		last := *stream.lastPkt
		duration := last.Duration
		if duration <= 0 && stream.sttsEntry != nil {
			duration = int64(stream.sttsEntry.Duration)
		}
		if duration < 0 {
			duration = 0
		}
		if err = stream.writePacket(last, duration); err != nil {
			return
		}
		stream.lastPkt = nil
	}

	if err = m.bufw.Flush(); err != nil {
		return
	}

	mdatSize := m.wpos - m.mdatPos
	if mdatSize > math.MaxUint32 {
		hdr := make([]byte, 16)
		pio.PutU32BE(hdr, 1)
		pio.PutU32BE(hdr[4:], uint32(mp4io.MDAT))
		pio.PutU64BE(hdr[8:], uint64(mdatSize+8))
		if _, err = m.w.Seek(m.mdatPos-8, io.SeekStart); err != nil {
			return
		}
		if _, err = m.w.Write(hdr); err != nil {
			return
		}
	} else {
		hdr := make([]byte, 4)
		pio.PutU32BE(hdr, uint32(mdatSize))
		if _, err = m.w.Seek(m.mdatPos, io.SeekStart); err != nil {
			return
		}
		if _, err = m.w.Write(hdr); err != nil {
			return
		}
	}

	if _, err = m.w.Seek(0, io.SeekEnd); err != nil {
		return
	}
	var moov []byte
	if moov, err = m.marshalMovie(); err != nil {
		return
	}
	if _, err = m.w.Write(moov); err != nil {
		return
	}
	return
}

func (m *Muxer) marshalMovie() (b []byte, err error) {
	var movieDur int64
	for _, stream := range m.streams {
		d := av.Rescale(stream.duration, stream.TimeBase, av.NewRational(1, movieTimeScale))
		if d > movieDur {
			movieDur = d
		}
	}

	moov := &mp4io.Movie{
		Header: &mp4io.MovieHeader{
			TimeScale:   movieTimeScale,
			Duration:    uint64(movieDur),
			NextTrackId: uint32(len(m.streams) + 1),
		},
	}
	for _, stream := range m.streams {
		var trak *mp4io.Track
		if trak, err = stream.fillTrackAtom(); err != nil {
			return
		}
		moov.Tracks = append(moov.Tracks, trak)
	}

	b = mp4io.MarshalAtom(moov)
	return
}

func (s *Stream) sampleEntry() (entry *mp4io.SampleEntry, err error) {
	codec, ok := s.CodecData.(av.VideoCodecData)
	if !ok {
		err = fmt.Errorf("mp4: stream#%d has no video dimensions", s.idx)
		return
	}
	entry = &mp4io.SampleEntry{
		Format: s.format,
		Width:  uint16(codec.Width()),
		Height: uint16(codec.Height()),
	}
	switch cd := s.CodecData.(type) {
	case h264parser.CodecData:
		entry.Conf = &mp4io.Box{Tag: mp4io.AVCC, Payload: cd.AVCDecoderConfRecordBytes()}
	case h265parser.CodecData:
		entry.Conf = &mp4io.Box{Tag: mp4io.HVCC, Payload: cd.HEVCDecoderConfRecordBytes()}
	default:
		err = fmt.Errorf("mp4: codec type=%v has no decoder configuration", s.Type())
	}
	return
}

func (s *Stream) fillTrackAtom() (trak *mp4io.Track, err error) {
	var entry *mp4io.SampleEntry
	if entry, err = s.sampleEntry(); err != nil {
		return
	}

	table := *s.table
	table.SampleDesc = entry
	if s.allKey {
		table.SyncSample = nil
	} else if table.SyncSample == nil {
		table.SyncSample = []uint32{}
	}
	if len(table.CompositionOffset) == 1 && table.CompositionOffset[0].Offset == 0 {
		table.CompositionOffset = nil
	}

	trak = &mp4io.Track{
		Header: &mp4io.TrackHeader{
			Flags:       mp4io.TrackEnabled | mp4io.TrackInMovie,
			TrackId:     uint32(s.idx + 1),
			Duration:    uint64(av.Rescale(s.duration, s.TimeBase, av.NewRational(1, movieTimeScale))),
			TrackWidth:  float64(entry.Width),
			TrackHeight: float64(entry.Height),
		},
		Media: &mp4io.Media{
			Header: &mp4io.MediaHeader{
				TimeScale: uint32(s.timeScale),
				Duration:  uint64(s.duration),
				Language:  mp4io.LanguageUndetermined,
			},
			Handler: &mp4io.HandlerRefer{
				Type: mp4io.VIDE,
				Name: "VideoHandler",
			},
			Info: &mp4io.MediaInfo{
				Video:  &mp4io.VideoMediaInfo{},
				Sample: &table,
			},
		},
	}
	return
}
