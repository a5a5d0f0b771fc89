// Package rtp
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-26
package rtp

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/samplebuilder"
	"github.com/sirupsen/logrus"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/pktque"
	"github.com/teocci/go-avpack/codec/h264parser"
	"github.com/teocci/go-avpack/utils/bits/pio"
)

const (
	ClockRate = 90000

	// maxLate is the reorder window of the sample builder in packets.
	maxLate = 512
)

// Demuxer reads H.264 RTP packets framed as in RFC 4571, a 16-bit length before every packet.
// Only the first synchronization source is kept.
type Demuxer struct {
	r       io.Reader
	hdr     [2]byte
	builder *samplebuilder.SampleBuilder
	packets *pktque.Buf
	stream  *av.Stream

	sps, pps []byte

	started  bool
	ssrc     uint32
	lastSeq  uint16
	lastTS   uint32
	eof      bool
	flushing bool

	tsStarted bool
	prevTS    uint32
	ts        int64

	// gop holds the access units since the last key frame until their decode times are known.
	gop     []av.Packet
	delay   int64
	lastDTS int64
	hasDTS  bool
}

func NewDemuxer(r io.Reader) *Demuxer {
	return &Demuxer{
		r:       r,
		builder: samplebuilder.New(maxLate, &codecs.H264Packet{}, ClockRate),
		packets: pktque.NewBuf(),
	}
}

func (d *Demuxer) Streams() (streams []av.Stream, err error) {
	if err = d.probe(); err != nil {
		return
	}
	streams = []av.Stream{*d.stream}
	return
}

func (d *Demuxer) probe() (err error) {
	for d.stream == nil {
		if err = d.poll(); err != nil {
			if err == io.EOF {
				err = fmt.Errorf("rtp: codec parameters not found")
			}
			return
		}
	}
	return
}

func (d *Demuxer) ReadPacket() (pkt av.Packet, err error) {
	if err = d.probe(); err != nil {
		return
	}
	for d.packets.Count == 0 {
		if err = d.poll(); err != nil {
			return
		}
	}
	pkt, _ = d.packets.Pop()
	return
}

func (d *Demuxer) poll() (err error) {
	if d.eof {
		err = io.EOF
		return
	}

	if _, err = io.ReadFull(d.r, d.hdr[:]); err != nil {
		if err == io.EOF {
			d.eof = true
			d.flush()
			d.releaseGOP()
			if d.packets.Count > 0 {
				err = nil
			}
			return
		}
		err = fmt.Errorf("rtp: truncated frame header: %w", err)
		return
	}

	buf := make([]byte, pio.U16BE(d.hdr[:]))
	if _, err = io.ReadFull(d.r, buf); err != nil {
		err = fmt.Errorf("rtp: truncated packet: %w", err)
		return
	}

	pkt := &rtp.Packet{}
	if err = pkt.Unmarshal(buf); err != nil {
		err = fmt.Errorf("rtp: %w", err)
		return
	}
	if !d.started {
		d.started = true
		d.ssrc = pkt.SSRC
		d.lastSeq, d.lastTS = pkt.SequenceNumber, pkt.Timestamp
	} else if pkt.SSRC != d.ssrc {
		return
	}
	if int16(pkt.SequenceNumber-d.lastSeq) > 0 {
		d.lastSeq, d.lastTS = pkt.SequenceNumber, pkt.Timestamp
	}

	d.builder.Push(pkt)
	d.drain()
	return
}

// flush pushes an access unit delimiter with the next timestamp so the sample builder
// releases the last sample it holds.
func (d *Demuxer) flush() {
	if !d.started {
		return
	}
	d.flushing = true
	d.builder.Push(&rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SSRC:           d.ssrc,
			SequenceNumber: d.lastSeq + 1,
			Timestamp:      d.lastTS + 1,
		},
		Payload: []byte{h264parser.NALUTypeAUD, 0xf0},
	})
	d.drain()
}

func (d *Demuxer) drain() {
	for s := d.builder.Pop(); s != nil; s = d.builder.Pop() {
		d.handleSample(s)
	}
}

func (d *Demuxer) timestamp(ts uint32) int64 {
	if !d.tsStarted {
		d.tsStarted = true
		d.prevTS = ts
	}
	d.ts += int64(int32(ts - d.prevTS))
	d.prevTS = ts
	return d.ts
}

func (d *Demuxer) handleSample(s *media.Sample) {
	nalus, _ := h264parser.SplitNALUs(s.Data)

	var au [][]byte
	key := false
	for _, nalu := range nalus {
		switch h264parser.NALUType(nalu) {
		case h264parser.NALUTypeSPS:
			d.sps = append([]byte(nil), nalu...)
		case h264parser.NALUTypePPS:
			d.pps = append([]byte(nil), nalu...)
		case h264parser.NALUTypeAUD:
		default:
			if len(nalu) == 0 {
				continue
			}
			if h264parser.IsKeyFrameNALU(nalu) {
				key = true
			}
			au = append(au, nalu)
		}
	}

	if d.stream == nil && d.sps != nil && d.pps != nil {
		cd, err := h264parser.NewCodecDataFromSPSAndPPS(d.sps, d.pps)
		if err != nil {
			log.WithError(err).Warn("invalid parameter sets")
		} else {
			d.stream = &av.Stream{
				CodecData: cd,
				TimeBase:  av.NewRational(1, ClockRate),
			}
			log.WithFields(logrus.Fields{
				"ssrc":   d.ssrc,
				"width":  cd.Width(),
				"height": cd.Height(),
			}).Debug("stream found")
		}
	}
	if len(au) == 0 {
		return
	}

	ts := d.timestamp(s.PacketTimestamp)
	var dur int64
	if !d.flushing {
		dur = (int64(s.Duration)*ClockRate + int64(time.Second)/2) / int64(time.Second)
	}
	if key {
		d.releaseGOP()
	}
	d.gop = append(d.gop, av.Packet{
		IsKeyFrame: key,
		PTS:        ts,
		Duration:   dur,
		Pos:        -1,
		Data:       h264parser.NALUsToAVCC(au),
	})
}

// releaseGOP derives decode times for the held access units and queues them.
// RTP carries presentation times only, so the n-th decode time is the n-th smallest
// presentation time moved back by the largest reordering delay seen so far.
func (d *Demuxer) releaseGOP() {
	if len(d.gop) == 0 {
		return
	}
	sorted := make([]int64, len(d.gop))
	for i := range d.gop {
		sorted[i] = d.gop[i].PTS
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i := range d.gop {
		if delay := sorted[i] - d.gop[i].PTS; delay > d.delay {
			d.delay = delay
		}
	}

	for i := range d.gop {
		dts := sorted[i] - d.delay
		if d.hasDTS && dts <= d.lastDTS {
			dts = d.lastDTS + 1
		}
		d.gop[i].DTS = dts
		d.lastDTS, d.hasDTS = dts, true
	}
	for i := 0; i+1 < len(d.gop); i++ {
		d.gop[i].Duration = d.gop[i+1].DTS - d.gop[i].DTS
	}
	if n := len(d.gop); n > 1 {
		d.gop[n-1].Duration = d.gop[n-2].Duration
	}

	for _, pkt := range d.gop {
		d.packets.Push(pkt)
	}
	d.gop = d.gop[:0]
}
