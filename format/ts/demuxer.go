// Package ts
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package ts

import (
	"bufio"
	"fmt"
	"io"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/pktque"
	"github.com/teocci/go-avpack/codec/h264parser"
	"github.com/teocci/go-avpack/codec/h265parser"
	"github.com/teocci/go-avpack/format/ts/tsio"
	"github.com/teocci/go-avpack/utils/bits/pio"
)

type Demuxer struct {
	r   *bufio.Reader
	pos int64

	packets *pktque.Buf

	pat     *tsio.PAT
	pmt     *tsio.PMT
	streams []*Stream
	tsHDR   []byte

	stage int
}

func NewDemuxer(r io.Reader) *Demuxer {
	return &Demuxer{
		tsHDR:   make([]byte, tsio.PacketSize),
		r:       bufio.NewReaderSize(r, pio.RecommendBufioSize),
		packets: pktque.NewBuf(),
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

func (d *Demuxer) ready() bool {
	if d.pmt == nil {
		return false
	}
	for _, stream := range d.streams {
		if stream.CodecData == nil {
			return false
		}
	}
	return true
}

func (d *Demuxer) probe() (err error) {
	if d.stage == 0 {
		for !d.ready() {
			if err = d.poll(); err != nil {
				if err == io.EOF {
					if d.pmt == nil {
						err = fmt.Errorf("ts: program map table not found")
					} else {
						err = fmt.Errorf("ts: codec parameters not found")
					}
				}
				return
			}
		}
		d.stage++
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
	if err = d.readTSPacket(); err == io.EOF {
		var n int
		if n, err = d.payloadEnd(); err != nil {
			return
		}
		if n == 0 {
			err = io.EOF
		}
	}
	return
}

func (d *Demuxer) initPMT(payload []byte) (err error) {
	var psiHDRLen int
	var dataLen int
	var tableID uint8
	if tableID, _, psiHDRLen, dataLen, err = tsio.ParsePSI(payload); err != nil {
		return
	}
	if tableID != tsio.TableIdPMT {
		err = fmt.Errorf("ts: table id 0x%02x is not a PMT", tableID)
		return
	}
	d.pmt = &tsio.PMT{}
	if _, err = d.pmt.Unmarshal(payload[psiHDRLen : psiHDRLen+dataLen]); err != nil {
		return
	}

	d.streams = []*Stream{}
	for i, info := range d.pmt.ElementaryStreamInfos {
		stream := &Stream{}
		stream.idx = i
		stream.Idx = i
		stream.TimeBase = av.NewRational(1, tsio.PTSHz)
		stream.demuxer = d
		stream.pid = info.ElementaryPID
		stream.streamType = info.StreamType
		stream.lastDTS = av.NoPTS
		switch info.StreamType {
		case tsio.ElementaryStreamTypeH264, tsio.ElementaryStreamTypeH265:
		case tsio.ElementaryStreamTypeAdtsAAC:
			stream.CodecData = av.OtherCodecData{Name: "aac"}
		default:
			stream.CodecData = av.OtherCodecData{Name: fmt.Sprintf("stream_type 0x%02x", info.StreamType)}
		}
		d.streams = append(d.streams, stream)
	}
	return
}

func (d *Demuxer) payloadEnd() (n int, err error) {
	for _, stream := range d.streams {
		var i int
		if i, err = stream.payloadEnd(); err != nil {
			return
		}
		n += i
	}
	return
}

func (d *Demuxer) readTSPacket() (err error) {
	var HDRLen int
	var pid uint16
	var start bool
	var isKeyFrame bool

	pos := d.pos
	if _, err = io.ReadFull(d.r, d.tsHDR); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return
	}
	d.pos += tsio.PacketSize

	if pid, start, isKeyFrame, HDRLen, err = tsio.ParseTSHeader(d.tsHDR); err != nil {
		return
	}
	payload := d.tsHDR[HDRLen:]

	if d.pat == nil {
		if pid == tsio.PATPid && start {
			var psiHDRLen int
			var dataLen int
			if _, _, psiHDRLen, dataLen, err = tsio.ParsePSI(payload); err != nil {
				return
			}
			d.pat = &tsio.PAT{}
			if _, err = d.pat.Unmarshal(payload[psiHDRLen : psiHDRLen+dataLen]); err != nil {
				return
			}
		}
	} else if d.pmt == nil {
		for _, entry := range d.pat.Entries {
			if entry.ProgramMapPID != 0 && entry.ProgramMapPID == pid && start {
				if err = d.initPMT(payload); err != nil {
					return
				}
				break
			}
		}
	} else {
		for _, stream := range d.streams {
			if pid == stream.pid {
				if err = stream.handleTSPacket(start, isKeyFrame, payload, pos); err != nil {
					return
				}
				break
			}
		}
	}

	return
}

func (s *Stream) addPacket(payload []byte, isKeyFrame bool) {
	dts := s.unwrap(s.dts)
	pts := s.unwrap(s.pts)
	if dts == av.NoPTS {
		dts = pts
	}
	if dts != av.NoPTS {
		s.lastDTS = dts
	}

	s.demuxer.packets.Push(av.Packet{
		Idx:        int8(s.idx),
		IsKeyFrame: isKeyFrame,
		PTS:        pts,
		DTS:        dts,
		Pos:        s.pos,
		Data:       payload,
	})
}

// accessUnit keeps the coded NAL units of a PES payload as AVCC and picks up parameter sets.
func (s *Stream) accessUnit(nalus [][]byte) (au [][]byte, key bool) {
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		if s.streamType == tsio.ElementaryStreamTypeH265 {
			switch h265parser.NALUType(nalu) {
			case h265parser.NALUTypeVPS:
				s.vps = nalu
			case h265parser.NALUTypeSPS:
				s.sps = nalu
			case h265parser.NALUTypePPS:
				s.pps = nalu
			case h265parser.NALUTypeAUD:
			default:
				if h265parser.IsKeyFrameNALU(nalu) {
					key = true
				}
				au = append(au, nalu)
			}
			continue
		}

		switch h264parser.NALUType(nalu) {
		case h264parser.NALUTypeSPS:
			s.sps = nalu
		case h264parser.NALUTypePPS:
			s.pps = nalu
		case h264parser.NALUTypeAUD:
		default:
			if h264parser.IsKeyFrameNALU(nalu) {
				key = true
			}
			au = append(au, nalu)
		}
	}
	return
}

func (s *Stream) payloadEnd() (n int, err error) {
	payload := s.data
	if payload == nil {
		return
	}
	if s.dataLen != 0 && len(payload) != s.dataLen {
		err = fmt.Errorf("ts: packet size mismatch size=%d correct=%d", len(payload), s.dataLen)
		return
	}
	s.data = nil

	switch s.streamType {
	case tsio.ElementaryStreamTypeH264, tsio.ElementaryStreamTypeH265:
		nalus, _ := h264parser.SplitNALUs(payload)
		au, key := s.accessUnit(nalus)

		if s.CodecData == nil {
			if err = s.initCodecData(); err != nil {
				return
			}
		}
		if len(au) > 0 {
			s.addPacket(h264parser.NALUsToAVCC(au), key || s.isKeyFrame)
			n++
		}
	}

	return
}

func (s *Stream) initCodecData() (err error) {
	if s.streamType == tsio.ElementaryStreamTypeH265 {
		if len(s.vps) > 0 && len(s.sps) > 0 && len(s.pps) > 0 {
			s.CodecData, err = h265parser.NewCodecDataFromVPSAndSPSAndPPS(s.vps, s.sps, s.pps)
		}
		return
	}
	if len(s.sps) > 0 && len(s.pps) > 0 {
		s.CodecData, err = h264parser.NewCodecDataFromSPSAndPPS(s.sps, s.pps)
	}
	return
}

func (s *Stream) handleTSPacket(start bool, isKeyFrame bool, payload []byte, pos int64) (err error) {
	if start {
		if _, err = s.payloadEnd(); err != nil {
			return
		}
		var hdrLen int
		if hdrLen, _, s.dataLen, s.pts, s.dts, err = tsio.ParsePESHeader(payload); err != nil {
			return
		}
		s.isKeyFrame = isKeyFrame
		s.pos = pos
		if s.dataLen == 0 {
			s.data = make([]byte, 0, 4096)
		} else {
			s.data = make([]byte, 0, s.dataLen)
		}
		s.data = append(s.data, payload[hdrLen:]...)
	} else if s.data != nil {
		s.data = append(s.data, payload...)
	}
	return
}
