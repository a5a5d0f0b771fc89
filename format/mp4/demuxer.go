// Package mp4
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mp4

import (
	"fmt"
	"io"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/codec/h264parser"
	"github.com/teocci/go-avpack/codec/h265parser"
	"github.com/teocci/go-avpack/format/mp4/mp4io"
)

const maxSampleSize = 1 << 28

type Demuxer struct {
	r       io.ReadSeeker
	streams []*Stream
	probed  bool
}

func NewDemuxer(r io.ReadSeeker) *Demuxer {
	return &Demuxer{
		r: r,
	}
}

func (d *Demuxer) Streams() (streams []av.Stream, err error) {
	if err = d.probe(); err != nil {
		return
	}
	for _, stream := range d.streams {
		streams = append(streams, stream.Stream)
	}
	return
}

func (d *Demuxer) readat(pos int64, b []byte) (err error) {
	if _, err = d.r.Seek(pos, io.SeekStart); err != nil {
		return
	}
	if _, err = io.ReadFull(d.r, b); err != nil {
		return
	}
	return
}

func (d *Demuxer) probe() (err error) {
	if d.probed {
		return
	}

	var headers []mp4io.BoxHeader
	if headers, err = mp4io.ReadFileBoxes(d.r); err != nil {
		return
	}

	var moov *mp4io.Box
	for _, h := range headers {
		if h.Tag == mp4io.MOOV {
			if moov, err = mp4io.LoadBox(d.r, h); err != nil {
				return
			}
			break
		}
	}
	if moov == nil {
		err = fmt.Errorf("mp4: 'moov' atom not found")
		return
	}

	var movie *mp4io.Movie
	if movie, err = mp4io.UnmarshalMovie(moov); err != nil {
		return
	}

	d.streams = []*Stream{}
	for i, trak := range movie.Tracks {
		stream := &Stream{idx: i}
		stream.Idx = i
		if err = stream.readTrack(trak); err != nil {
			return
		}
		d.streams = append(d.streams, stream)
	}

	d.probed = true
	return
}

func (s *Stream) readTrack(trak *mp4io.Track) (err error) {
	media := trak.Media
	if media == nil || media.Header == nil || media.Handler == nil || media.Info == nil || media.Info.Sample == nil {
		err = fmt.Errorf("mp4: stream[%d]: sample table not found", s.idx)
		return
	}

	mh := media.Header
	if mh.TimeScale == 0 {
		err = fmt.Errorf("mp4: stream[%d]: zero time scale", s.idx)
		return
	}
	s.timeScale = int64(mh.TimeScale)
	s.TimeBase = av.NewRational(1, int(mh.TimeScale))

	table := media.Info.Sample
	if err = s.buildSamples(table); err != nil {
		return
	}

	entry := table.SampleDesc
	if entry == nil {
		err = fmt.Errorf("mp4: stream[%d]: sample description not found", s.idx)
		return
	}
	s.format = entry.Format

	if media.Handler.Type != mp4io.VIDE {
		s.CodecData = av.OtherCodecData{Name: entry.Format.String()}
		return
	}

	switch {
	case (entry.Format == mp4io.AVC1 || entry.Format == mp4io.AVC3) && entry.Conf != nil && entry.Conf.Tag == mp4io.AVCC:
		if s.CodecData, err = h264parser.NewCodecDataFromAVCDecoderConfRecord(entry.Conf.Payload); err != nil {
			return
		}
	case (entry.Format == mp4io.HEV1 || entry.Format == mp4io.HVC1) && entry.Conf != nil && entry.Conf.Tag == mp4io.HVCC:
		if s.CodecData, err = h265parser.NewCodecDataFromHEVCDecoderConfRecord(entry.Conf.Payload); err != nil {
			return
		}
	default:
		s.CodecData = av.OtherCodecData{Name: entry.Format.String()}
		return
	}
	s.CodecTag = uint32(entry.Format)
	return
}

// ReadPacket returns samples in file order across all tracks.
func (d *Demuxer) ReadPacket() (pkt av.Packet, err error) {
	if err = d.probe(); err != nil {
		return
	}

	var next *Stream
	for _, stream := range d.streams {
		if stream.sampleIndex >= len(stream.samples) {
			continue
		}
		if next == nil || stream.samples[stream.sampleIndex].offset < next.samples[next.sampleIndex].offset {
			next = stream
		}
	}
	if next == nil {
		err = io.EOF
		return
	}

	smp := next.samples[next.sampleIndex]
	next.sampleIndex++
	if smp.size > maxSampleSize {
		err = fmt.Errorf("mp4: stream[%d]: sample size %d too large", next.idx, smp.size)
		return
	}

	pkt.Idx = int8(next.idx)
	pkt.IsKeyFrame = smp.key
	pkt.DTS = smp.dts
	pkt.PTS = smp.dts + smp.cts
	pkt.Duration = smp.dur
	pkt.Pos = smp.offset
	pkt.Data = make([]byte, smp.size)
	if err = d.readat(smp.offset, pkt.Data); err != nil {
		err = fmt.Errorf("mp4: stream[%d]: read sample: %w", next.idx, err)
		return
	}
	return
}
