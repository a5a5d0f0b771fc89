// Package mkv
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package mkv

import (
	"fmt"
	"io"

	"github.com/at-wat/ebml-go"
	"github.com/at-wat/ebml-go/webm"
	"github.com/sirupsen/logrus"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/codec/h264parser"
	"github.com/teocci/go-avpack/codec/h265parser"
)

const (
	CodecIDH264 = "V_MPEG4/ISO/AVC"
	CodecIDHEVC = "V_MPEGH/ISO/HEVC"

	trackTypeVideo = 1

	defaultTimecodeScale = 1000000
)

// file is the top level layout of a Matroska or WebM document.
type file struct {
	Header  webm.EBMLHeader `ebml:"EBML"`
	Segment webm.Segment    `ebml:"Segment"`
}

type Demuxer struct {
	r       io.Reader
	streams []*Stream
	order   []*av.Packet
	next    int
	probed  bool
}

func NewDemuxer(r io.Reader) *Demuxer {
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

func (d *Demuxer) ReadPacket() (pkt av.Packet, err error) {
	if err = d.probe(); err != nil {
		return
	}
	if d.next >= len(d.order) {
		err = io.EOF
		return
	}
	pkt = *d.order[d.next]
	d.next++
	return
}

func (d *Demuxer) probe() (err error) {
	if d.probed {
		return
	}

	var doc file
	var layout blockLayout
	if err = ebml.Unmarshal(d.r, &doc, ebml.WithElementReadHooks(layout.hook)); err != nil {
		err = fmt.Errorf("mkv: %w", err)
		return
	}
	if len(doc.Segment.Tracks.TrackEntry) == 0 {
		err = fmt.Errorf("mkv: no tracks found")
		return
	}

	scale := int64(doc.Segment.Info.TimecodeScale)
	if scale <= 0 {
		scale = defaultTimecodeScale
	}
	timeBase := av.NewRational(1, 1000)
	if scale != defaultTimecodeScale {
		timeBase = av.NewRational(int(scale), 1000000000)
	}

	byNumber := map[uint64]*Stream{}
	d.streams = nil
	for i, entry := range doc.Segment.Tracks.TrackEntry {
		stream := &Stream{
			trackNumber: entry.TrackNumber,
			codecID:     entry.CodecID,
		}
		stream.Idx = i
		stream.TimeBase = timeBase
		if err = stream.readTrack(entry); err != nil {
			return
		}
		byNumber[entry.TrackNumber] = stream
		d.streams = append(d.streams, stream)
	}

	// blocks keep their per track order, packets are later merged in file order
	type ref struct {
		stream *Stream
		index  int
	}
	var refs []ref
	add := func(block ebml.Block, cluster int64, key bool) {
		stream, ok := byNumber[block.TrackNumber]
		if !ok {
			return
		}
		pts := cluster + int64(block.Timecode)
		for _, data := range block.Data {
			stream.packets = append(stream.packets, av.Packet{
				IsKeyFrame: key || stream.isKeyFrame(data),
				Idx:        int8(stream.Idx),
				PTS:        pts,
				Pos:        -1,
				Data:       data,
			})
			refs = append(refs, ref{stream: stream, index: len(stream.packets) - 1})
		}
	}
	for k, cluster := range doc.Segment.Cluster {
		tc := int64(cluster.Timecode)
		var si, gi int
		for _, simple := range layout.order(k, len(cluster.SimpleBlock), len(cluster.BlockGroup)) {
			if simple {
				add(cluster.SimpleBlock[si], tc, cluster.SimpleBlock[si].Keyframe)
				si++
			} else {
				add(cluster.BlockGroup[gi].Block, tc, false)
				gi++
			}
		}
	}

	for _, stream := range d.streams {
		stream.fillDTS()
	}
	d.order = make([]*av.Packet, len(refs))
	for i, r := range refs {
		d.order[i] = &r.stream.packets[r.index]
	}

	log.WithFields(logrus.Fields{
		"tracks":  len(d.streams),
		"packets": len(d.order),
		"scale":   scale,
	}).Debug("probe")

	d.probed = true
	return
}

func (s *Stream) readTrack(entry webm.TrackEntry) (err error) {
	if entry.TrackType != trackTypeVideo {
		s.CodecData = av.OtherCodecData{Name: entry.CodecID}
		return
	}
	switch entry.CodecID {
	case CodecIDH264:
		var cd h264parser.CodecData
		if cd, err = h264parser.NewCodecDataFromAVCDecoderConfRecord(entry.CodecPrivate); err != nil {
			err = fmt.Errorf("mkv: track %d: %w", entry.TrackNumber, err)
			return
		}
		s.CodecData = cd
		s.lengthSize = cd.NALULengthSize()
	case CodecIDHEVC:
		var cd h265parser.CodecData
		if cd, err = h265parser.NewCodecDataFromHEVCDecoderConfRecord(entry.CodecPrivate); err != nil {
			err = fmt.Errorf("mkv: track %d: %w", entry.TrackNumber, err)
			return
		}
		s.CodecData = cd
		s.lengthSize = cd.NALULengthSize()
	default:
		s.CodecData = av.OtherCodecData{Name: entry.CodecID}
	}
	return
}

// blockLayout records, for every cluster, whether each block is a SimpleBlock or a
// BlockGroup in file order. The decoded Cluster keeps the two kinds in separate slices.
type blockLayout struct {
	clusters [][]bool
	cur      []bool
}

func (bl *blockLayout) hook(e *ebml.Element) {
	switch e.Type {
	case ebml.ElementSimpleBlock, ebml.ElementBlockGroup:
		if e.Parent != nil && e.Parent.Type == ebml.ElementCluster {
			bl.cur = append(bl.cur, e.Type == ebml.ElementSimpleBlock)
		}
	case ebml.ElementCluster:
		bl.clusters = append(bl.clusters, bl.cur)
		bl.cur = nil
	}
}

// order returns the block kinds of cluster k. Without a matching record SimpleBlocks come first.
func (bl *blockLayout) order(k, simple, groups int) []bool {
	if k < len(bl.clusters) && len(bl.clusters[k]) == simple+groups {
		return bl.clusters[k]
	}
	order := make([]bool, simple+groups)
	for i := 0; i < simple; i++ {
		order[i] = true
	}
	return order
}
