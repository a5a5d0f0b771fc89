// Package h264parser
// Parses H.264 NAL units, sequence parameter sets and AVC decoder configuration records.
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-16
package h264parser

import (
	"fmt"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/utils/bits"
	"github.com/teocci/go-avpack/utils/bits/pio"
)

const (
	NALUTypeSlice    = 1
	NALUTypeIDR      = 5
	NALUTypeSEI      = 6
	NALUTypeSPS      = 7
	NALUTypePPS      = 8
	NALUTypeAUD      = 9
	NALUTypeEndSeq   = 10
	NALUTypeFillData = 12
)

var StartCodeBytes = []byte{0, 0, 0, 1}

// AUDBytes is an access unit delimiter in Annex-B form.
var AUDBytes = []byte{0, 0, 0, 1, 0x9, 0xf0}

func NALUType(nalu []byte) int {
	if len(nalu) == 0 {
		return 0
	}
	return int(nalu[0] & 0x1f)
}

// IsDataNALU reports whether the NAL unit carries coded slice data.
func IsDataNALU(b []byte) bool {
	typ := NALUType(b)
	return typ >= 1 && typ <= 5
}

func IsKeyFrameNALU(b []byte) bool {
	return NALUType(b) == NALUTypeIDR
}

const (
	NALURaw = iota
	NALUAVCC
	NALUAnnexB
)

// SplitNALUs splits an AVCC (4 byte length prefixed) or Annex-B buffer into NAL units.
func SplitNALUs(b []byte) (nalus [][]byte, typ int) {
	if len(b) < 4 {
		return [][]byte{b}, NALURaw
	}

	val3 := pio.U24BE(b)
	val4 := pio.U32BE(b)

	if val4 <= uint32(len(b)-4) && val3 != 1 && val4 != 1 {
		if nalus, ok := splitAVCC(b, 4); ok {
			return nalus, NALUAVCC
		}
	}

	if val3 == 1 || val4 == 1 {
		return splitAnnexB(b), NALUAnnexB
	}

	return [][]byte{b}, NALURaw
}

func splitAVCC(b []byte, lengthSize int) (nalus [][]byte, ok bool) {
	for len(b) > 0 {
		if len(b) < lengthSize {
			return
		}
		var size int
		for i := 0; i < lengthSize; i++ {
			size = size<<8 | int(b[i])
		}
		b = b[lengthSize:]
		if size > len(b) {
			return
		}
		nalus = append(nalus, b[:size])
		b = b[size:]
	}
	ok = true
	return
}

// SplitAVCC splits AVCC data using the given NAL length field size.
func SplitAVCC(b []byte, lengthSize int) (nalus [][]byte, err error) {
	var ok bool
	if nalus, ok = splitAVCC(b, lengthSize); !ok {
		err = fmt.Errorf("h264parser: invalid AVCC payload")
	}
	return
}

func splitAnnexB(b []byte) (nalus [][]byte) {
	start := -1
	i := 0
	for i+2 < len(b) {
		if b[i] == 0 && b[i+1] == 0 && b[i+2] == 1 {
			if start >= 0 {
				end := i
				// a 4 byte start code leaves one zero on the previous unit
				for end > start && b[end-1] == 0 {
					end--
				}
				if end > start {
					nalus = append(nalus, b[start:end])
				}
			}
			i += 3
			start = i
			continue
		}
		i++
	}
	if start >= 0 && start < len(b) {
		nalus = append(nalus, b[start:])
	}
	return
}

// NALUsToAVCC joins NAL units with 4 byte big endian length prefixes.
func NALUsToAVCC(nalus [][]byte) []byte {
	n := 0
	for _, nalu := range nalus {
		n += 4 + len(nalu)
	}
	b := make([]byte, n)
	pos := 0
	for _, nalu := range nalus {
		pio.PutU32BE(b[pos:], uint32(len(nalu)))
		pos += 4
		pos += copy(b[pos:], nalu)
	}
	return b
}

// NALUsToAnnexB joins NAL units with 4 byte start codes.
func NALUsToAnnexB(nalus [][]byte) []byte {
	n := 0
	for _, nalu := range nalus {
		n += 4 + len(nalu)
	}
	b := make([]byte, 0, n)
	for _, nalu := range nalus {
		b = append(b, StartCodeBytes...)
		b = append(b, nalu...)
	}
	return b
}

// FirstMbInSlice returns first_mb_in_slice of a slice NAL unit.
func FirstMbInSlice(nalu []byte) (uint, error) {
	if !IsDataNALU(nalu) || len(nalu) < 2 {
		return 0, fmt.Errorf("h264parser: not a slice nalu")
	}
	r := bits.NewGolombBitReader(nalu[1:])
	return r.ReadExponentialGolombCode()
}

type SPSInfo struct {
	ProfileIdc   uint
	LevelIdc     uint
	ChromaFormat uint
	BitDepth     uint

	MbWidth  uint
	MbHeight uint

	CropLeft   uint
	CropRight  uint
	CropTop    uint
	CropBottom uint

	Width  uint
	Height uint

	FpsNum uint
	FpsDen uint
}

// spsReader keeps the first read error so the field walk stays linear.
type spsReader struct {
	r   *bits.GolombBitReader
	err error
}

func (sr *spsReader) u(n int) uint {
	if sr.err != nil {
		return 0
	}
	var v uint
	v, sr.err = sr.r.ReadBits(n)
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

func (sr *spsReader) se() int {
	if sr.err != nil {
		return 0
	}
	var v int
	v, sr.err = sr.r.ReadSE()
	return v
}

func (sr *spsReader) skipScalingList(size int) {
	last, next := 8, 8
	for j := 0; j < size && sr.err == nil; j++ {
		if next != 0 {
			next = (last + sr.se() + 256) % 256
		}
		if next != 0 {
			last = next
		}
	}
}

func ParseSPS(data []byte) (s SPSInfo, err error) {
	if len(data) < 4 {
		err = fmt.Errorf("h264parser: sps too short")
		return
	}
	sr := &spsReader{r: bits.NewGolombBitReader(bits.RemoveEmulationPrevention(data[1:]))}

	s.ProfileIdc = sr.u(8)
	sr.u(8) // constraint flags
	s.LevelIdc = sr.u(8)
	sr.ue() // seq_parameter_set_id

	s.ChromaFormat = 1
	s.BitDepth = 8
	switch s.ProfileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		s.ChromaFormat = sr.ue()
		if s.ChromaFormat == 3 {
			sr.u(1) // separate_colour_plane_flag
		}
		s.BitDepth = sr.ue() + 8
		sr.ue() // bit_depth_chroma_minus8
		sr.u(1) // qpprime_y_zero_transform_bypass_flag
		if sr.u(1) != 0 {
			n := 8
			if s.ChromaFormat == 3 {
				n = 12
			}
			for i := 0; i < n; i++ {
				if sr.u(1) != 0 {
					if i < 6 {
						sr.skipScalingList(16)
					} else {
						sr.skipScalingList(64)
					}
				}
			}
		}
	}

	sr.ue() // log2_max_frame_num_minus4
	switch sr.ue() {
	case 0:
		sr.ue() // log2_max_pic_order_cnt_lsb_minus4
	case 1:
		sr.u(1)
		sr.se()
		sr.se()
		n := sr.ue()
		for i := uint(0); i < n && sr.err == nil; i++ {
			sr.se()
		}
	}

	sr.ue() // max_num_ref_frames
	sr.u(1) // gaps_in_frame_num_value_allowed_flag
	s.MbWidth = sr.ue() + 1
	s.MbHeight = sr.ue() + 1
	frameMbsOnly := sr.u(1)
	if frameMbsOnly == 0 {
		sr.u(1) // mb_adaptive_frame_field_flag
	}
	sr.u(1) // direct_8x8_inference_flag
	if sr.u(1) != 0 {
		s.CropLeft = sr.ue()
		s.CropRight = sr.ue()
		s.CropTop = sr.ue()
		s.CropBottom = sr.ue()
	}

	if sr.u(1) != 0 {
		s.parseVUI(sr)
	}
	if sr.err != nil {
		err = fmt.Errorf("h264parser: parse sps: %w", sr.err)
		return
	}

	cropX, cropY := uint(1), 2-frameMbsOnly
	switch s.ChromaFormat {
	case 1:
		cropX, cropY = 2, 2*(2-frameMbsOnly)
	case 2:
		cropX = 2
	}
	s.Width = s.MbWidth*16 - (s.CropLeft+s.CropRight)*cropX
	s.Height = (2-frameMbsOnly)*s.MbHeight*16 - (s.CropTop+s.CropBottom)*cropY
	return
}

func (s *SPSInfo) parseVUI(sr *spsReader) {
	if sr.u(1) != 0 { // aspect_ratio_info_present_flag
		if sr.u(8) == 255 {
			sr.u(16)
			sr.u(16)
		}
	}
	if sr.u(1) != 0 { // overscan_info_present_flag
		sr.u(1)
	}
	if sr.u(1) != 0 { // video_signal_type_present_flag
		sr.u(3)
		sr.u(1)
		if sr.u(1) != 0 {
			sr.u(24)
		}
	}
	if sr.u(1) != 0 { // chroma_loc_info_present_flag
		sr.ue()
		sr.ue()
	}
	if sr.u(1) != 0 { // timing_info_present_flag
		unitsInTick := sr.u(32)
		timeScale := sr.u(32)
		sr.u(1)
		s.FpsNum = timeScale
		s.FpsDen = 2 * unitsInTick
	}
}

// PixelFormat maps chroma format and bit depth to a picture layout, PixFmtNone when unsupported.
func (s SPSInfo) PixelFormat() av.PixelFormat {
	if s.BitDepth != 8 {
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

type CodecData struct {
	Record     []byte
	RecordInfo AVCDecoderConfRecord
	SPSInfo    SPSInfo
}

func (cd CodecData) Type() av.CodecType {
	return av.H264
}

func (cd CodecData) AVCDecoderConfRecordBytes() []byte {
	return cd.Record
}

func (cd CodecData) SPS() []byte {
	return cd.RecordInfo.SPS[0]
}

func (cd CodecData) PPS() []byte {
	return cd.RecordInfo.PPS[0]
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

// NALULengthSize returns the size of the AVCC length prefix of the stream packets.
func (cd CodecData) NALULengthSize() int {
	return int(cd.RecordInfo.LengthSizeMinusOne) + 1
}

// ParameterSets returns the SPS and PPS units in decoding order.
func (cd CodecData) ParameterSets() (nalus [][]byte) {
	nalus = append(nalus, cd.RecordInfo.SPS...)
	nalus = append(nalus, cd.RecordInfo.PPS...)
	return
}

func NewCodecDataFromAVCDecoderConfRecord(record []byte) (cd CodecData, err error) {
	cd.Record = record
	if _, err = (&cd.RecordInfo).Unmarshal(record); err != nil {
		return
	}
	if len(cd.RecordInfo.SPS) == 0 {
		err = fmt.Errorf("h264parser: no SPS found in AVCDecoderConfRecord")
		return
	}
	if len(cd.RecordInfo.PPS) == 0 {
		err = fmt.Errorf("h264parser: no PPS found in AVCDecoderConfRecord")
		return
	}
	if cd.SPSInfo, err = ParseSPS(cd.RecordInfo.SPS[0]); err != nil {
		return
	}
	return
}

func NewCodecDataFromSPSAndPPS(sps, pps []byte) (cd CodecData, err error) {
	if len(sps) < 4 || len(pps) == 0 {
		err = fmt.Errorf("h264parser: empty sps and/or pps")
		return
	}
	info := AVCDecoderConfRecord{
		AVCProfileIndication: sps[1],
		ProfileCompatibility: sps[2],
		AVCLevelIndication:   sps[3],
		LengthSizeMinusOne:   3,
		SPS:                  [][]byte{append([]byte(nil), sps...)},
		PPS:                  [][]byte{append([]byte(nil), pps...)},
	}
	if cd.SPSInfo, err = ParseSPS(sps); err != nil {
		return
	}
	cd.Record = make([]byte, info.Len())
	info.Marshal(cd.Record)
	cd.RecordInfo = info
	return
}

type AVCDecoderConfRecord struct {
	AVCProfileIndication uint8
	ProfileCompatibility uint8
	AVCLevelIndication   uint8
	LengthSizeMinusOne   uint8
	SPS                  [][]byte
	PPS                  [][]byte
}

var ErrDecconfInvalid = fmt.Errorf("h264parser: AVCDecoderConfRecord invalid")

func (r *AVCDecoderConfRecord) Unmarshal(b []byte) (n int, err error) {
	if len(b) < 7 {
		err = ErrDecconfInvalid
		return
	}

	r.AVCProfileIndication = b[1]
	r.ProfileCompatibility = b[2]
	r.AVCLevelIndication = b[3]
	r.LengthSizeMinusOne = b[4] & 0x03
	spsCount := int(b[5] & 0x1f)
	n += 6

	if r.SPS, n, err = readParamSets(b, n, spsCount); err != nil {
		return
	}
	if len(b) < n+1 {
		err = ErrDecconfInvalid
		return
	}
	ppsCount := int(b[n])
	n++
	r.PPS, n, err = readParamSets(b, n, ppsCount)
	return
}

func readParamSets(b []byte, n int, count int) (sets [][]byte, pos int, err error) {
	pos = n
	for i := 0; i < count; i++ {
		if len(b) < pos+2 {
			err = ErrDecconfInvalid
			return
		}
		size := int(pio.U16BE(b[pos:]))
		pos += 2
		if len(b) < pos+size {
			err = ErrDecconfInvalid
			return
		}
		sets = append(sets, b[pos:pos+size])
		pos += size
	}
	return
}

func (r AVCDecoderConfRecord) Len() (n int) {
	n = 7
	for _, sps := range r.SPS {
		n += 2 + len(sps)
	}
	for _, pps := range r.PPS {
		n += 2 + len(pps)
	}
	return
}

func (r AVCDecoderConfRecord) Marshal(b []byte) (n int) {
	b[0] = 1
	b[1] = r.AVCProfileIndication
	b[2] = r.ProfileCompatibility
	b[3] = r.AVCLevelIndication
	b[4] = r.LengthSizeMinusOne | 0xfc
	b[5] = uint8(len(r.SPS)) | 0xe0
	n += 6

	for _, sps := range r.SPS {
		pio.PutU16BE(b[n:], uint16(len(sps)))
		n += 2
		n += copy(b[n:], sps)
	}

	b[n] = uint8(len(r.PPS))
	n++

	for _, pps := range r.PPS {
		pio.PutU16BE(b[n:], uint16(len(pps)))
		n += 2
		n += copy(b[n:], pps)
	}
	return
}
