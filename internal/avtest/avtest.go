// Package avtest
// Created by RTT.
// Author: teocci@yandex.com on 2023-Apr-03
// Package avtest holds bitstream fixtures shared by the format, remux and decode tests.
package avtest

import (
	"encoding/hex"

	"github.com/teocci/go-avpack/codec/h264parser"
	"github.com/teocci/go-avpack/codec/h265parser"
)

var (
	// H264SPS is a High profile 1280x720 sequence parameter set.
	H264SPS = []byte{
		0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
		0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
		0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
		0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
	}
	H264PPS = []byte{0x68, 0xee, 0x3c, 0x80}
)

// HEVCRecordHex is a 1280x720 main profile hvcC record.
const HEVCRecordHex = "0101600000009000000000005df000fcfdf8f800000f03a00001001840010c01ffff01600000030090000003000003005d999809a10001002d42010101600000030090000003000003005da00280802d165999a4932b9a808080820000030002000003003210a2000100074401c172b46240"

func H264CodecData() h264parser.CodecData {
	cd, err := h264parser.NewCodecDataFromSPSAndPPS(H264SPS, H264PPS)
	if err != nil {
		panic(err)
	}
	return cd
}

func HEVCCodecData() h265parser.CodecData {
	record, err := hex.DecodeString(HEVCRecordHex)
	if err != nil {
		panic(err)
	}
	cd, err := h265parser.NewCodecDataFromHEVCDecoderConfRecord(record)
	if err != nil {
		panic(err)
	}
	return cd
}

// H264Slice returns a slice NAL unit of the given frame number with first_mb_in_slice 0.
func H264Slice(key bool, n int) []byte {
	if key {
		return []byte{0x65, 0x88, 0x84, 0x00, byte(n), 0x33, 0x80}
	}
	return []byte{0x41, 0x9a, 0x02, 0x0c, byte(n), 0x21, 0x80}
}

// HEVCSlice returns a slice segment NAL unit with first_slice_segment_in_pic_flag set.
func HEVCSlice(key bool, n int) []byte {
	if key {
		return []byte{0x26, 0x01, 0xaf, 0x08, byte(n), 0x40, 0x80}
	}
	return []byte{0x02, 0x01, 0xd0, 0x10, byte(n), 0x40, 0x80}
}

// AnnexB joins NAL units with four byte start codes.
func AnnexB(nalus ...[]byte) []byte {
	return h264parser.NALUsToAnnexB(nalus)
}

// AVCC joins NAL units with four byte length prefixes.
func AVCC(nalus ...[]byte) []byte {
	return h264parser.NALUsToAVCC(nalus)
}

// H264Stream returns a raw H.264 elementary stream of n access units, a key frame every gop units.
func H264Stream(n, gop int) []byte {
	var b []byte
	for i := 0; i < n; i++ {
		key := i%gop == 0
		if key {
			b = append(b, AnnexB(H264SPS, H264PPS)...)
		}
		b = append(b, AnnexB(H264Slice(key, i))...)
	}
	return b
}

// HEVCStream returns a raw HEVC elementary stream of n access units, a key frame every gop units.
func HEVCStream(n, gop int) []byte {
	cd := HEVCCodecData()
	var b []byte
	for i := 0; i < n; i++ {
		key := i%gop == 0
		if key {
			b = append(b, AnnexB(cd.ParameterSets()...)...)
		}
		b = append(b, AnnexB(HEVCSlice(key, i))...)
	}
	return b
}
