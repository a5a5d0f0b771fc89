// Package av
// Defines basic interfaces and data structures of video container demux/mux and decode.
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-14
package av

import (
	"math"
)

// CodecType represents a video codec type. can be H264/H265/JPEG/...
type CodecType uint32

var (
	H264     = MakeVideoCodecType(avCodecTypeMagic + 1)
	H265     = MakeVideoCodecType(avCodecTypeMagic + 2)
	JPEG     = MakeVideoCodecType(avCodecTypeMagic + 3)
	PNG      = MakeVideoCodecType(avCodecTypeMagic + 4)
	GIF      = MakeVideoCodecType(avCodecTypeMagic + 5)
	BMP      = MakeVideoCodecType(avCodecTypeMagic + 6)
	TIFF     = MakeVideoCodecType(avCodecTypeMagic + 7)
	WEBP     = MakeVideoCodecType(avCodecTypeMagic + 8)
	RAWVIDEO = MakeVideoCodecType(avCodecTypeMagic + 9)
)

const codecTypeAudioBit = 0x1
const codecTypeOtherBits = 1

func (ct CodecType) String() string {
	switch ct {
	case H264:
		return "H264"
	case H265:
		return "H265"
	case JPEG:
		return "JPEG"
	case PNG:
		return "PNG"
	case GIF:
		return "GIF"
	case BMP:
		return "BMP"
	case TIFF:
		return "TIFF"
	case WEBP:
		return "WEBP"
	case RAWVIDEO:
		return "RAWVIDEO"
	}
	return ""
}

func (ct CodecType) IsAudio() bool {
	return ct&codecTypeAudioBit != 0
}

func (ct CodecType) IsVideo() bool {
	return ct != 0 && ct&codecTypeAudioBit == 0
}

// IsImage reports whether the codec compresses still pictures one per packet.
func (ct CodecType) IsImage() bool {
	switch ct {
	case JPEG, PNG, GIF, BMP, TIFF, WEBP:
		return true
	}
	return false
}

// MakeAudioCodecType creates a new audio codec type.
func MakeAudioCodecType(base uint32) (c CodecType) {
	c = CodecType(base)<<codecTypeOtherBits | CodecType(codecTypeAudioBit)
	return
}

// MakeVideoCodecType creates a new video codec type.
func MakeVideoCodecType(base uint32) (c CodecType) {
	c = CodecType(base) << codecTypeOtherBits
	return
}

const avCodecTypeMagic = 233333

// CodecData is some important bytes for initializing a video decoder,
// can be converted to VideoCodecData using:
//
//	codecdata.(VideoCodecData)
//
// for H264, CodecData is AVCDecoderConfigure bytes, includes SPS/PPS.
type CodecData interface {
	Type() CodecType // Video codec type
}

type VideoCodecData interface {
	CodecData
	Width() int  // Video width
	Height() int // Video height
}

// PixelFormatCodecData is implemented by codecs whose pixel format is known before decoding.
type PixelFormatCodecData interface {
	VideoCodecData
	PixelFormat() PixelFormat
}

// Stream describes one elementary stream of a container.
type Stream struct {
	CodecData
	Idx      int
	TimeBase Rational // unit of Packet.PTS, Packet.DTS and Packet.Duration
	CodecTag uint32   // container fourcc override, 0 lets the muxer choose
}

// NoPTS marks an unknown timestamp.
const NoPTS int64 = math.MinInt64

type PacketWriter interface {
	WritePacket(Packet) error
}

type PacketReader interface {
	ReadPacket() (Packet, error)
}

// Muxer describes the steps of writing compressed video packets into container formats like MP4.
type Muxer interface {
	WriteHeader([]Stream) error // write the file header
	PacketWriter                // write compressed video packets
	WriteTrailer() error        // finish writing file, this func can be called only once
}

// MuxCloser is a Muxer with Close() method
type MuxCloser interface {
	Muxer
	Close() error
}

// Demuxer can read compressed video packets from container formats like MP4/MPEG-TS/MKV.
type Demuxer interface {
	PacketReader                // read compressed video packets
	Streams() ([]Stream, error) // reads the file header, contains video meta information
}

// DemuxCloser is a Demuxer with Close() method
type DemuxCloser interface {
	Demuxer
	Close() error
}

// Packet stores compressed video data. Timestamps are in the owning stream time base.
type Packet struct {
	IsKeyFrame bool   // video packet is key frame
	Idx        int8   // stream index in container format
	PTS        int64  // presentation timestamp, NoPTS when unknown
	DTS        int64  // decode timestamp, NoPTS when unknown
	Duration   int64  // packet duration, 0 when unknown
	Pos        int64  // byte position in the source, -1 when unknown
	Data       []byte // packet data
}

// VideoDecoder decodes compressed packets into pictures.
//
// SendPacket with a nil or empty payload starts draining, ReceiveFrame returns
// ErrAgain when more input is required and io.EOF once fully drained.
type VideoDecoder interface {
	SendPacket(Packet) error
	ReceiveFrame() (*Frame, error)
	Close()
}

// Frame is a decoded picture as returned by a decoder, rows may be padded.
type Frame struct {
	Width   int
	Height  int
	Format  PixelFormat
	Strides [4]int
	Planes  [4][]byte
	PTS     int64
}

// OtherCodecData describes a stream the package cannot handle, such as audio or
// subtitles. Name is the container's identifier for it.
type OtherCodecData struct {
	Name string
}

func (cd OtherCodecData) Type() CodecType {
	return 0
}
