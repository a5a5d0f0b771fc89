// Package h265parser
// Parses HEVC NAL units, sequence parameter sets and HEVC decoder configuration records.
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-17
package h265parser

import (
	"fmt"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/utils/bits"
	"github.com/teocci/go-avpack/utils/bits/pio"
)

const (
	NALUTypeBLAWLP    = 16
	NALUTypeIDRWRADL  = 19
	NALUTypeIDRNLP    = 20
	NALUTypeCRA       = 21
	NALUTypeVPS       = 32
	NALUTypeSPS       = 33
	NALUTypePPS       = 34
	NALUTypeAUD       = 35
	NALUTypePrefixSEI = 39
	NALUTypeSuffixSEI = 40
)

func NALUType(nalu []byte) int {
	if len(nalu) == 0 {
		return -1
	}
	return int(nalu[0]>>1) & 0x3f
}

// IsDataNALU reports whether the NAL unit is a VCL slice segment.
func IsDataNALU(nalu []byte) bool {
	typ := NALUType(nalu)
	return typ >= 0 && typ < 32
}

// IsKeyFrameNALU reports whether the NAL unit is an IRAP picture.
func IsKeyFrameNALU(nalu []byte) bool {
	typ := NALUType(nalu)
	return typ >= NALUTypeBLAWLP && typ <= 23
}

// IsFirstSliceSegment reports first_slice_segment_in_pic_flag of a VCL NAL unit.
func IsFirstSliceSegment(nalu []byte) bool {
	return IsDataNALU(nalu) && len(nalu) > 2 && nalu[2]&0x80 != 0
}

type SPSInfo struct {
	MaxSubLayersMinus1 uint
	TemporalIdNested   uint

	GeneralProfileSpace              uint
	GeneralTierFlag                  uint
	GeneralProfileIdc                uint
	GeneralProfileCompatibilityFlags uint32
	GeneralConstraintIndicatorFlags  uint64
	GeneralLevelIdc                  uint

	ChromaFormat         uint
	BitDepthLumaMinus8   uint
	BitDepthChromaMinus8 uint

	Width  uint
	Height uint
}

type spsReader struct {
	r   *bits.GolombBitReader
	err error
}

func (sr *spsReader) u(n int) uint64 {
	var v uint64
	for i := 0; i < n && sr.err == nil; i++ {
		var bit uint
		bit, sr.err = sr.r.ReadBit()
		v = v<<1 | uint64(bit)
	}
	return v
}

func (sr *spsReader) ue() uint {
	if sr.err != nil {
		return 0
	}
	var v uint
	v, sr.err = sr.r.ReadExponentialGolombCode()
	return v
}

func ParseSPS(sps []byte) (s SPSInfo, err error) {
	if len(sps) < 4 || NALUType(sps) != NALUTypeSPS {
		err = fmt.Errorf("h265parser: not a sps nalu")
		return
	}
	sr := &spsReader{r: bits.NewGolombBitReader(bits.RemoveEmulationPrevention(sps[2:]))}

	sr.u(4) // sps_video_parameter_set_id
	s.MaxSubLayersMinus1 = uint(sr.u(3))
	s.TemporalIdNested = uint(sr.u(1))

	s.GeneralProfileSpace = uint(sr.u(2))
	s.GeneralTierFlag = uint(sr.u(1))
	s.GeneralProfileIdc = uint(sr.u(5))
	s.GeneralProfileCompatibilityFlags = uint32(sr.u(32))
	s.GeneralConstraintIndicatorFlags = sr.u(48)
	s.GeneralLevelIdc = uint(sr.u(8))

	n := int(s.MaxSubLayersMinus1)
	profilePresent := make([]bool, n)
	levelPresent := make([]bool, n)
	for i := 0; i < n; i++ {
		profilePresent[i] = sr.u(1) != 0
		levelPresent[i] = sr.u(1) != 0
	}
	if n > 0 {
		for i := n; i < 8; i++ {
			sr.u(2)
		}
	}
	for i := 0; i < n; i++ {
		if profilePresent[i] {
			sr.u(88)
		}
		if levelPresent[i] {
			sr.u(8)
		}
	}

	sr.ue() // sps_seq_parameter_set_id
	s.ChromaFormat = sr.ue()
	if s.ChromaFormat == 3 {
		sr.u(1) // separate_colour_plane_flag
	}
	s.Width = sr.ue()
	s.Height = sr.ue()
	if sr.u(1) != 0 {
		left, right, top, bottom := sr.ue(), sr.ue(), sr.ue(), sr.ue()
		subW, subH := uint(1), uint(1)
		switch s.ChromaFormat {
		case 1:
			subW, subH = 2, 2
		case 2:
			subW = 2
		}
		s.Width -= (left + right) * subW
		s.Height -= (top + bottom) * subH
	}
	s.BitDepthLumaMinus8 = sr.ue()
	s.BitDepthChromaMinus8 = sr.ue()

	if sr.err != nil {
		err = fmt.Errorf("h265parser: parse sps: %w", sr.err)
	}
	return
}

// PixelFormat maps chroma format and bit depth to a picture layout, PixFmtNone when unsupported.
func (s SPSInfo) PixelFormat() av.PixelFormat {
	if s.BitDepthLumaMinus8 != 0 {
		return av.PixFmtNone
	}
	switch s.ChromaFormat {
	case 0:
		return av.PixFmtGray
	case 1:
		return av.PixFmtYUV420P
	case 2:
		return av.PixFmtYUV422P
	case 3:
		return av.PixFmtYUV444P
	}
	return av.PixFmtNone
}

// NALUArray is one parameter set array of a configuration record.
type NALUArray struct {
	Completeness bool
	NALUType     uint8
	NALUs        [][]byte
}

// HEVCDecoderConfRecord is the hvcC box payload.
type HEVCDecoderConfRecord struct {
	ConfigurationVersion             uint8
	GeneralProfileSpace              uint8
	GeneralTierFlag                  uint8
	GeneralProfileIdc                uint8
	GeneralProfileCompatibilityFlags uint32
	GeneralConstraintIndicatorFlags  uint64
	GeneralLevelIdc                  uint8
	MinSpatialSegmentationIdc        uint16
	ParallelismType                  uint8
	ChromaFormat                     uint8
	BitDepthLumaMinus8               uint8
	BitDepthChromaMinus8             uint8
	AvgFrameRate                     uint16
	ConstantFrameRate                uint8
	NumTemporalLayers                uint8
	TemporalIdNested                 uint8
	LengthSizeMinusOne               uint8
	Arrays                           []NALUArray
}

var ErrDecconfInvalid = fmt.Errorf("h265parser: HEVCDecoderConfRecord invalid")

const recordHeaderLen = 23

func (r *HEVCDecoderConfRecord) Unmarshal(b []byte) (n int, err error) {
	if len(b) < recordHeaderLen {
		err = ErrDecconfInvalid
		return
	}
	r.ConfigurationVersion = b[0]
	r.GeneralProfileSpace = b[1] >> 6
	r.GeneralTierFlag = (b[1] >> 5) & 1
	r.GeneralProfileIdc = b[1] & 0x1f
	r.GeneralProfileCompatibilityFlags = pio.U32BE(b[2:])
	r.GeneralConstraintIndicatorFlags = uint64(pio.U16BE(b[6:]))<<32 | uint64(pio.U32BE(b[8:]))
	r.GeneralLevelIdc = b[12]
	r.MinSpatialSegmentationIdc = pio.U16BE(b[13:]) & 0x0fff
	r.ParallelismType = b[15] & 0x03
	r.ChromaFormat = b[16] & 0x03
	r.BitDepthLumaMinus8 = b[17] & 0x07
	r.BitDepthChromaMinus8 = b[18] & 0x07
	r.AvgFrameRate = pio.U16BE(b[19:])
	r.ConstantFrameRate = b[21] >> 6
	r.NumTemporalLayers = (b[21] >> 3) & 0x07
	r.TemporalIdNested = (b[21] >> 2) & 0x01
	r.LengthSizeMinusOne = b[21] & 0x03
	count := int(b[22])
	n = recordHeaderLen

	r.Arrays = nil
	for i := 0; i < count; i++ {
		if len(b) < n+3 {
			err = ErrDecconfInvalid
			return
		}
		arr := NALUArray{
			Completeness: b[n]&0x80 != 0,
			NALUType:     b[n] & 0x3f,
		}
		nalus := int(pio.U16BE(b[n+1:]))
		n += 3
		for j := 0; j < nalus; j++ {
			if len(b) < n+2 {
				err = ErrDecconfInvalid
				return
			}
			size := int(pio.U16BE(b[n:]))
			n += 2
			if len(b) < n+size {
				err = ErrDecconfInvalid
				return
			}
			arr.NALUs = append(arr.NALUs, b[n:n+size])
			n += size
		}
		r.Arrays = append(r.Arrays, arr)
	}
	return
}

func (r HEVCDecoderConfRecord) Len() (n int) {
	n = recordHeaderLen
	for _, arr := range r.Arrays {
		n += 3
		for _, nalu := range arr.NALUs {
			n += 2 + len(nalu)
		}
	}
	return
}

func (r HEVCDecoderConfRecord) Marshal(b []byte) (n int) {
	b[0] = r.ConfigurationVersion
	b[1] = r.GeneralProfileSpace<<6 | r.GeneralTierFlag<<5 | r.GeneralProfileIdc&0x1f
	pio.PutU32BE(b[2:], r.GeneralProfileCompatibilityFlags)
	pio.PutU16BE(b[6:], uint16(r.GeneralConstraintIndicatorFlags>>32))
	pio.PutU32BE(b[8:], uint32(r.GeneralConstraintIndicatorFlags))
	b[12] = r.GeneralLevelIdc
	pio.PutU16BE(b[13:], 0xf000|r.MinSpatialSegmentationIdc)
	b[15] = 0xfc | r.ParallelismType
	b[16] = 0xfc | r.ChromaFormat
	b[17] = 0xf8 | r.BitDepthLumaMinus8
	b[18] = 0xf8 | r.BitDepthChromaMinus8
	pio.PutU16BE(b[19:], r.AvgFrameRate)
	b[21] = r.ConstantFrameRate<<6 | r.NumTemporalLayers<<3 | r.TemporalIdNested<<2 | r.LengthSizeMinusOne
	b[22] = uint8(len(r.Arrays))
	n = recordHeaderLen
	for _, arr := range r.Arrays {
		b[n] = arr.NALUType & 0x3f
		if arr.Completeness {
			b[n] |= 0x80
		}
		pio.PutU16BE(b[n+1:], uint16(len(arr.NALUs)))
		n += 3
		for _, nalu := range arr.NALUs {
			pio.PutU16BE(b[n:], uint16(len(nalu)))
			n += 2
			n += copy(b[n:], nalu)
		}
	}
	return
}

// NALUs returns the units of the given type.
func (r HEVCDecoderConfRecord) NALUs(typ uint8) [][]byte {
	for _, arr := range r.Arrays {
		if arr.NALUType == typ {
			return arr.NALUs
		}
	}
	return nil
}

type CodecData struct {
	Record     []byte
	RecordInfo HEVCDecoderConfRecord
	SPSInfo    SPSInfo
}

func (cd CodecData) Type() av.CodecType {
	return av.H265
}

func (cd CodecData) HEVCDecoderConfRecordBytes() []byte {
	return cd.Record
}

func (cd CodecData) VPS() []byte {
	return firstNALU(cd.RecordInfo.NALUs(NALUTypeVPS))
}

func (cd CodecData) SPS() []byte {
	return firstNALU(cd.RecordInfo.NALUs(NALUTypeSPS))
}

func (cd CodecData) PPS() []byte {
	return firstNALU(cd.RecordInfo.NALUs(NALUTypePPS))
}

func firstNALU(nalus [][]byte) []byte {
	if len(nalus) == 0 {
		return nil
	}
	return nalus[0]
}

func (cd CodecData) Width() int {
	return int(cd.SPSInfo.Width)
}

func (cd CodecData) Height() int {
	return int(cd.SPSInfo.Height)
}

func (cd CodecData) PixelFormat() av.PixelFormat {
	return cd.SPSInfo.PixelFormat()
}

func (cd CodecData) NALULengthSize() int {
	return int(cd.RecordInfo.LengthSizeMinusOne) + 1
}

// ParameterSets returns VPS, SPS and PPS units in decoding order.
func (cd CodecData) ParameterSets() (nalus [][]byte) {
	for _, typ := range []uint8{NALUTypeVPS, NALUTypeSPS, NALUTypePPS} {
		nalus = append(nalus, cd.RecordInfo.NALUs(typ)...)
	}
	return
}

func NewCodecDataFromHEVCDecoderConfRecord(record []byte) (cd CodecData, err error) {
	cd.Record = record
	if _, err = (&cd.RecordInfo).Unmarshal(record); err != nil {
		return
	}
	sps := cd.SPS()
	if sps == nil || cd.VPS() == nil || cd.PPS() == nil {
		err = fmt.Errorf("h265parser: parameter sets missing in HEVCDecoderConfRecord")
		return
	}
	if cd.SPSInfo, err = ParseSPS(sps); err != nil {
		return
	}
	return
}

func NewCodecDataFromVPSAndSPSAndPPS(vps, sps, pps []byte) (cd CodecData, err error) {
	if len(vps) == 0 || len(pps) == 0 {
		err = fmt.Errorf("h265parser: empty vps and/or pps")
		return
	}
	if cd.SPSInfo, err = ParseSPS(sps); err != nil {
		return
	}
	info := cd.SPSInfo
	cd.RecordInfo = HEVCDecoderConfRecord{
		ConfigurationVersion:             1,
		GeneralProfileSpace:              uint8(info.GeneralProfileSpace),
		GeneralTierFlag:                  uint8(info.GeneralTierFlag),
		GeneralProfileIdc:                uint8(info.GeneralProfileIdc),
		GeneralProfileCompatibilityFlags: info.GeneralProfileCompatibilityFlags,
		GeneralConstraintIndicatorFlags:  info.GeneralConstraintIndicatorFlags,
		GeneralLevelIdc:                  uint8(info.GeneralLevelIdc),
		ChromaFormat:                     uint8(info.ChromaFormat),
		BitDepthLumaMinus8:               uint8(info.BitDepthLumaMinus8),
		BitDepthChromaMinus8:             uint8(info.BitDepthChromaMinus8),
		NumTemporalLayers:                uint8(info.MaxSubLayersMinus1 + 1),
		TemporalIdNested:                 uint8(info.TemporalIdNested),
		LengthSizeMinusOne:               3,
		Arrays: []NALUArray{
			{Completeness: true, NALUType: NALUTypeVPS, NALUs: [][]byte{append([]byte(nil), vps...)}},
			{Completeness: true, NALUType: NALUTypeSPS, NALUs: [][]byte{append([]byte(nil), sps...)}},
			{Completeness: true, NALUType: NALUTypePPS, NALUs: [][]byte{append([]byte(nil), pps...)}},
		},
	}
	cd.Record = make([]byte, cd.RecordInfo.Len())
	cd.RecordInfo.Marshal(cd.Record)
	return
}
