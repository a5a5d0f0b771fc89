// Package avtest
// Created by RTT.
// Author: teocci@yandex.com on 2023-Apr-03
package avtest

import (
	"github.com/pion/rtp"

	"github.com/teocci/go-avpack/utils/bits/pio"
)

const (
	RTPSSRC      = 0x1234abcd
	RTPFirstSeq  = 65530
	RTPFirstTime = 0xffffe000
	RTPFrameTime = 3600
)

func rtpPacket(seq uint16, ts uint32, marker bool, payload []byte) []byte {
	p := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           RTPSSRC,
			Marker:         marker,
		},
		Payload: payload,
	}
	b, err := p.Marshal()
	if err != nil {
		panic(err)
	}
	return b
}

// H264RTPPackets packetizes n frames, parameter sets before every key frame.
// Odd frames are split into two FU-A fragments, the others use single NAL unit packets.
// Sequence numbers and timestamps wrap within the first frames.
func H264RTPPackets(n, gop int) (pkts [][]byte) {
	seq := uint16(RTPFirstSeq)
	for i := 0; i < n; i++ {
		ts := uint32(RTPFirstTime) + uint32(i*RTPFrameTime)
		key := i%gop == 0
		if key {
			pkts = append(pkts, rtpPacket(seq, ts, false, H264SPS), rtpPacket(seq+1, ts, false, H264PPS))
			seq += 2
		}
		slice := H264Slice(key, i)
		if i%2 == 0 {
			pkts = append(pkts, rtpPacket(seq, ts, true, slice))
			seq++
			continue
		}
		indicator := slice[0]&0xe0 | 28
		typ := slice[0] & 0x1f
		body := slice[1:]
		pkts = append(pkts,
			rtpPacket(seq, ts, false, append([]byte{indicator, 0x80 | typ}, body[:3]...)),
			rtpPacket(seq+1, ts, true, append([]byte{indicator, 0x40 | typ}, body[3:]...)),
		)
		seq += 2
	}
	return
}

// H264RTPReordered packetizes n frames in decode order with one B frame after every
// P frame, so the presentation index runs 0, 2, 1, 4, 3, ... Only the first frame is a key frame.
func H264RTPReordered(n int) (pkts [][]byte) {
	seq := uint16(RTPFirstSeq)
	pkts = append(pkts, rtpPacket(seq, RTPFirstTime, false, H264SPS), rtpPacket(seq+1, RTPFirstTime, false, H264PPS))
	seq += 2
	for i := 0; i < n; i++ {
		ts := uint32(RTPFirstTime) + uint32(ReorderedIndex(i)*RTPFrameTime)
		pkts = append(pkts, rtpPacket(seq, ts, true, H264Slice(i == 0, i)))
		seq++
	}
	return
}

// ReorderedIndex is the presentation index of the i-th frame of H264RTPReordered.
func ReorderedIndex(i int) int {
	switch {
	case i == 0:
		return 0
	case i%2 == 1:
		return i + 1
	}
	return i - 1
}

// RFC4571 frames packets with a 16-bit length prefix.
func RFC4571(pkts [][]byte) (b []byte) {
	for _, p := range pkts {
		var hdr [2]byte
		pio.PutU16BE(hdr[:], uint16(len(p)))
		b = append(b, hdr[:]...)
		b = append(b, p...)
	}
	return
}
