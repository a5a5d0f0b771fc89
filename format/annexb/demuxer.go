// Package annexb
// Demuxes raw H.264 and HEVC elementary streams in Annex-B byte stream format.
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-20
package annexb

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/pktque"
	"github.com/teocci/go-avpack/codec/h264parser"
	"github.com/teocci/go-avpack/codec/h265parser"
)

var log = logrus.WithField("pkg", "annexb")

// TimeBase of raw elementary stream packets.
var TimeBase = av.NewRational(1, 1200000)

// DefaultFrameRate applies when the "framerate" option is not set.
const DefaultFrameRate = 25

type Demuxer struct {
	codecType av.CodecType
	nr        *naluReader
	stream    av.Stream
	packets   *pktque.Buf
	frameDur  int64
	frames    int64

	au       [][]byte
	auVCL    bool
	auKey    bool
	pending  []byte // NAL unit read ahead that opens the next access unit
	finished bool

	vps, sps, pps []byte
}

// NewDemuxer creates a demuxer for an elementary stream of codec type typ, H264 or H265.
func NewDemuxer(r io.Reader, typ av.CodecType) *Demuxer {
	return &Demuxer{
		codecType: typ,
		nr:        &naluReader{r: r},
		packets:   pktque.NewBuf(),
		frameDur:  int64(TimeBase.Den / DefaultFrameRate),
		stream:    av.Stream{TimeBase: TimeBase},
	}
}

// SetFrameRate changes the assumed frame rate, it must be called before the first read.
func (d *Demuxer) SetFrameRate(fps int) error {
	if fps <= 0 || int64(TimeBase.Den)%int64(fps) != 0 {
		return fmt.Errorf("annexb: unsupported frame rate %d", fps)
	}
	d.frameDur = int64(TimeBase.Den / fps)
	return nil
}

func (d *Demuxer) Streams() (streams []av.Stream, err error) {
	for d.stream.CodecData == nil {
		if d.finished {
			err = fmt.Errorf("annexb: %v parameter sets not found", d.codecType)
			return
		}
		if err = d.readAccessUnit(); err != nil {
			return
		}
	}
	streams = []av.Stream{d.stream}
	return
}

func (d *Demuxer) ReadPacket() (pkt av.Packet, err error) {
	if _, err = d.Streams(); err != nil {
		return
	}
	for d.packets.Count == 0 {
		if d.finished {
			err = io.EOF
			return
		}
		if err = d.readAccessUnit(); err != nil {
			return
		}
	}
	pkt, _ = d.packets.Pop()
	return
}

type naluClass int

const (
	classOther naluClass = iota
	classParamSet
	classDelimiter // AUD, opens an access unit and is dropped
	classSEI       // prefix SEI, opens an access unit
	classFirstVCL
	classVCL
)

func (d *Demuxer) classify(nalu []byte) (class naluClass, key bool) {
	if d.codecType == av.H265 {
		switch typ := h265parser.NALUType(nalu); {
		case typ == h265parser.NALUTypeVPS:
			d.vps = nalu
			return classParamSet, false
		case typ == h265parser.NALUTypeSPS:
			d.sps = nalu
			return classParamSet, false
		case typ == h265parser.NALUTypePPS:
			d.pps = nalu
			return classParamSet, false
		case typ == h265parser.NALUTypeAUD:
			return classDelimiter, false
		case typ == h265parser.NALUTypePrefixSEI:
			return classSEI, false
		case h265parser.IsDataNALU(nalu):
			key = h265parser.IsKeyFrameNALU(nalu)
			if h265parser.IsFirstSliceSegment(nalu) {
				return classFirstVCL, key
			}
			return classVCL, key
		}
		return classOther, false
	}

	switch typ := h264parser.NALUType(nalu); {
	case typ == h264parser.NALUTypeSPS:
		d.sps = nalu
		return classParamSet, false
	case typ == h264parser.NALUTypePPS:
		d.pps = nalu
		return classParamSet, false
	case typ == h264parser.NALUTypeAUD:
		return classDelimiter, false
	case typ == h264parser.NALUTypeSEI:
		return classSEI, false
	case h264parser.IsDataNALU(nalu):
		key = h264parser.IsKeyFrameNALU(nalu)
		if mb, err := h264parser.FirstMbInSlice(nalu); err == nil && mb == 0 {
			return classFirstVCL, key
		}
		return classVCL, key
	}
	return classOther, false
}

func (d *Demuxer) initCodecData() (err error) {
	if d.stream.CodecData != nil {
		return
	}
	switch d.codecType {
	case av.H264:
		if d.sps != nil && d.pps != nil {
			d.stream.CodecData, err = h264parser.NewCodecDataFromSPSAndPPS(d.sps, d.pps)
		}
	case av.H265:
		if d.vps != nil && d.sps != nil && d.pps != nil {
			d.stream.CodecData, err = h265parser.NewCodecDataFromVPSAndSPSAndPPS(d.vps, d.sps, d.pps)
		}
	default:
		err = fmt.Errorf("annexb: codec type %v is not supported", d.codecType)
	}
	if err != nil {
		err = fmt.Errorf("annexb: invalid parameter sets: %w", err)
		return
	}
	if d.stream.CodecData != nil {
		log.WithFields(logrus.Fields{
			"codec":  d.codecType,
			"width":  d.stream.CodecData.(av.VideoCodecData).Width(),
			"height": d.stream.CodecData.(av.VideoCodecData).Height(),
		}).Debug("stream parameters found")
	}
	return
}

func (d *Demuxer) flushAccessUnit() {
	if d.auVCL {
		pts := d.frames * d.frameDur
		d.packets.Push(av.Packet{
			IsKeyFrame: d.auKey,
			PTS:        pts,
			DTS:        pts,
			Duration:   d.frameDur,
			Pos:        -1,
			Data:       h264parser.NALUsToAVCC(d.au),
		})
		d.frames++
	}
	d.au = nil
	d.auVCL = false
	d.auKey = false
}

// readAccessUnit consumes NAL units until one access unit is complete or input ends.
func (d *Demuxer) readAccessUnit() (err error) {
	for {
		var nalu []byte
		if d.pending != nil {
			nalu, d.pending = d.pending, nil
		} else if nalu, err = d.nr.next(); err != nil {
			if err == io.EOF {
				err = nil
				d.flushAccessUnit()
				d.finished = true
				if e := d.initCodecData(); e != nil {
					err = e
				}
			}
			return
		}

		class, key := d.classify(nalu)
		if d.auVCL && (class == classFirstVCL || class == classParamSet || class == classDelimiter || class == classSEI) {
			d.pending = nalu
			d.flushAccessUnit()
			if err = d.initCodecData(); err != nil {
				return
			}
			return
		}

		switch class {
		case classParamSet:
			if err = d.initCodecData(); err != nil {
				return
			}
		case classFirstVCL, classVCL:
			d.auVCL = true
			d.auKey = d.auKey || key
			d.au = append(d.au, nalu)
		case classSEI:
			d.au = append(d.au, nalu)
		case classOther:
			if d.auVCL {
				d.au = append(d.au, nalu)
			}
		}
	}
}
