// Package avtest
// Created by RTT.
// Author: teocci@yandex.com on 2023-Apr-03
package avtest

import (
	"bytes"

	"github.com/at-wat/ebml-go"
	"github.com/at-wat/ebml-go/webm"
)

type MKVTrack struct {
	Number  uint64
	CodecID string
	Private []byte
	Video   bool
}

// MKVBlock is a SimpleBlock, or a BlockGroup when Group is set, of the cluster starting at Cluster.
// Lead writes the BlockGroup ahead of the SimpleBlocks of its cluster.
type MKVBlock struct {
	Track    uint64
	Cluster  uint64
	Timecode int16
	Key      bool
	Group    bool
	Lead     bool
	Data     []byte
}

type mkvVideo struct {
	PixelWidth  uint64 `ebml:"PixelWidth"`
	PixelHeight uint64 `ebml:"PixelHeight"`
}

type mkvTrackEntry struct {
	TrackNumber  uint64    `ebml:"TrackNumber"`
	TrackUID     uint64    `ebml:"TrackUID"`
	TrackType    uint64    `ebml:"TrackType"`
	CodecID      string    `ebml:"CodecID"`
	CodecPrivate []byte    `ebml:"CodecPrivate,omitempty"`
	Video        *mkvVideo `ebml:"Video,omitempty"`
}

type mkvBlockGroup struct {
	Block ebml.Block `ebml:"Block"`
}

type mkvCluster struct {
	Timecode    uint64          `ebml:"Timecode"`
	LeadGroup   []mkvBlockGroup `ebml:"BlockGroup,omitempty"`
	SimpleBlock []ebml.Block    `ebml:"SimpleBlock,omitempty"`
	BlockGroup  []mkvBlockGroup `ebml:"BlockGroup,omitempty"`
}

type mkvSegment struct {
	Info struct {
		TimecodeScale uint64 `ebml:"TimecodeScale"`
	} `ebml:"Info"`
	Tracks struct {
		TrackEntry []mkvTrackEntry `ebml:"TrackEntry"`
	} `ebml:"Tracks"`
	Cluster []mkvCluster `ebml:"Cluster"`
}

type mkvFile struct {
	Header  webm.EBMLHeader `ebml:"EBML"`
	Segment mkvSegment      `ebml:"Segment"`
}

// MKV builds a Matroska document with millisecond timestamps.
func MKV(tracks []MKVTrack, blocks []MKVBlock) []byte {
	doc := mkvFile{
		Header: webm.EBMLHeader{
			EBMLVersion:        1,
			EBMLReadVersion:    1,
			EBMLMaxIDLength:    4,
			EBMLMaxSizeLength:  8,
			DocType:            "matroska",
			DocTypeVersion:     4,
			DocTypeReadVersion: 2,
		},
	}
	doc.Segment.Info.TimecodeScale = 1000000

	for _, t := range tracks {
		entry := mkvTrackEntry{
			TrackNumber:  t.Number,
			TrackUID:     t.Number,
			TrackType:    2,
			CodecID:      t.CodecID,
			CodecPrivate: t.Private,
		}
		if t.Video {
			entry.TrackType = 1
			entry.Video = &mkvVideo{PixelWidth: 1280, PixelHeight: 720}
		}
		doc.Segment.Tracks.TrackEntry = append(doc.Segment.Tracks.TrackEntry, entry)
	}

	for _, b := range blocks {
		n := len(doc.Segment.Cluster)
		if n == 0 || doc.Segment.Cluster[n-1].Timecode != b.Cluster {
			doc.Segment.Cluster = append(doc.Segment.Cluster, mkvCluster{Timecode: b.Cluster})
			n++
		}
		c := &doc.Segment.Cluster[n-1]
		block := ebml.Block{
			TrackNumber: b.Track,
			Timecode:    b.Timecode,
			Keyframe:    b.Key,
			Data:        [][]byte{b.Data},
		}
		switch {
		case b.Group && b.Lead:
			block.Keyframe = false
			c.LeadGroup = append(c.LeadGroup, mkvBlockGroup{Block: block})
		case b.Group:
			block.Keyframe = false
			c.BlockGroup = append(c.BlockGroup, mkvBlockGroup{Block: block})
		default:
			c.SimpleBlock = append(c.SimpleBlock, block)
		}
	}

	var buf bytes.Buffer
	if err := ebml.Marshal(&doc, &buf); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// H264MKV returns a single H.264 track document of n frames, 40ms apart, a key frame every gop frames.
func H264MKV(n, gop int) []byte {
	cd := H264CodecData()
	var blocks []MKVBlock
	for i := 0; i < n; i++ {
		key := i%gop == 0
		blocks = append(blocks, MKVBlock{
			Track:    1,
			Cluster:  uint64(i/gop) * uint64(gop) * 40,
			Timecode: int16(i%gop) * 40,
			Key:      key,
			Data:     AVCC(H264Slice(key, i)),
		})
	}
	return MKV([]MKVTrack{{Number: 1, CodecID: "V_MPEG4/ISO/AVC", Private: cd.AVCDecoderConfRecordBytes(), Video: true}}, blocks)
}
