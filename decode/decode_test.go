// Package decode
// Created by RTT.
// Author: teocci@yandex.com on 2023-Apr-05
package decode

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/avbuf"
	"github.com/teocci/go-avpack/codec/ffmpeg"
	"github.com/teocci/go-avpack/internal/avtest"
)

// 4x2 yuv420p: 8 luma bytes and two 2x1 chroma planes
const rawFrameSize = 12

func TestRawZeros(t *testing.T) {
	pic, err := Raw(avbuf.NewRegion(make([]byte, rawFrameSize)), 4, 2)
	require.NoError(t, err)

	assert.Equal(t, 4, pic.Width)
	assert.Equal(t, 2, pic.Height)
	assert.Equal(t, av.PixFmtYUV420P, pic.Format)
	assert.Equal(t, make([]byte, rawFrameSize), pic.Bytes())
}

func TestRawReturnsLastFrame(t *testing.T) {
	data := append(bytes.Repeat([]byte{1}, rawFrameSize), bytes.Repeat([]byte{9}, rawFrameSize)...)
	pic, err := Raw(avbuf.NewRegion(data), 4, 2)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{9}, rawFrameSize), pic.Bytes())
}

func TestDecodeIsDeterministic(t *testing.T) {
	src, err := av.RandomPicture(av.PixFmtYUV420P, 6, 4, 7)
	require.NoError(t, err)
	in := avbuf.NewRegion(src.Bytes())

	a, err := Raw(in, 6, 4)
	require.NoError(t, err)
	b, err := Raw(in, 6, 4)
	require.NoError(t, err)
	assert.Equal(t, a.Bytes(), b.Bytes())
	assert.Equal(t, src.Bytes(), a.Bytes())
}

func TestFrames(t *testing.T) {
	in := avbuf.NewRegion(make([]byte, 3*rawFrameSize))
	it, err := Frames(in, RawVideoOptions(4, 2))
	require.NoError(t, err)
	defer it.Close()

	assert.Nil(t, it.Picture())
	n := 0
	for it.Next() {
		n++
		require.NotNil(t, it.Picture())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, it.Count())
	assert.False(t, it.Next())

	it.Close()
	it.Close()
}

func TestRawErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		opts Options
		kind av.Kind
	}{
		{"no frames", nil, RawVideoOptions(4, 2), av.DecodeError},
		{"short frame", make([]byte, rawFrameSize+5), RawVideoOptions(4, 2), av.DecodeError},
		{"missing height", make([]byte, rawFrameSize), RawVideoOptions(4, 0), av.InvalidResolution},
		{"no resolution", make([]byte, rawFrameSize), RawVideoOptions(0, 0), av.InvalidResolution},
		{"negative", make([]byte, rawFrameSize), RawVideoOptions(-4, 2), av.InvalidResolution},
		{"too large", make([]byte, rawFrameSize), RawVideoOptions(1<<20, 1<<20), av.AllocationError},
		{"pixel format", make([]byte, rawFrameSize), Options{Resolution: av.Size{Width: 4, Height: 2}, PixelFormat: "nope", Source: SourceRawVideo}, av.ConversionUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pic, err := Decode(avbuf.NewRegion(tt.data), tt.opts)
			assert.Nil(t, pic)
			assert.ErrorIs(t, err, tt.kind)
		})
	}

	_, err := Decode(avbuf.NewRegion(nil), RawVideoOptions(4, 2))
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestRawSoftErrors(t *testing.T) {
	data := append(bytes.Repeat([]byte{5}, rawFrameSize), 1, 2, 3)
	opts := RawVideoOptions(4, 2)
	opts.Errors = &ErrorLog{}

	pic, err := Decode(avbuf.NewRegion(data), opts)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{5}, rawFrameSize), pic.Bytes())
	assert.Equal(t, 1, opts.Errors.Len())
	assert.Len(t, opts.Errors.Errors(), 1)
}

func TestImage(t *testing.T) {
	pic, err := Image(avbuf.NewRegion(avtest.JPEG(avtest.Ramp(16, 8))))
	require.NoError(t, err)
	assert.Equal(t, 16, pic.Width)
	assert.Equal(t, 8, pic.Height)
	assert.Equal(t, av.PixFmtYUVJ420P, pic.Format)

	// the last picture of a sequence wins
	data := append(avtest.PNG(avtest.GrayImage(4, 4, 10)), avtest.PNG(avtest.GrayImage(4, 4, 200))...)
	pic, err = Image(avbuf.NewRegion(data))
	require.NoError(t, err)
	assert.Equal(t, av.PixFmtGray, pic.Format)
	assert.Equal(t, bytes.Repeat([]byte{200}, 16), pic.Bytes())
}

func TestImageWithFormat(t *testing.T) {
	pic, errs, err := ImageWithFormat(avbuf.NewRegion(avtest.JPEG(avtest.Ramp(16, 8))), 16, 8, "yuv420p")
	require.NoError(t, err)
	assert.Equal(t, av.PixFmtYUV420P, pic.Format)
	assert.Equal(t, 0, errs.Len())

	// wrong size hint: every packet is skipped
	pic, errs, err = ImageWithFormat(avbuf.NewRegion(avtest.JPEG(avtest.Ramp(16, 8))), 8, 8, "yuvj420p")
	assert.Nil(t, pic)
	assert.ErrorIs(t, err, av.DecodeError)
	assert.ErrorIs(t, err, ErrNoFrame)
	assert.Equal(t, 1, errs.Len())

	data := append(avtest.PNG(avtest.GrayImage(4, 4, 1)), avtest.PNG(avtest.GrayImage(8, 8, 77))...)
	pic, errs, err = ImageWithFormat(avbuf.NewRegion(data), 8, 8, "gray")
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{77}, 64), pic.Bytes())
	assert.Equal(t, 1, errs.Len())
}

func TestJPEGYUVJ420POptions(t *testing.T) {
	opts := JPEGYUVJ420POptions(16, 8)
	assert.True(t, opts.HasResolution())
	assert.Equal(t, SourceImage, opts.Source)

	pic, err := Decode(avbuf.NewRegion(avtest.JPEG(avtest.Ramp(16, 8))), opts)
	require.NoError(t, err)
	assert.Equal(t, av.PixFmtYUVJ420P, pic.Format)
	assert.Equal(t, 0, opts.Errors.Len())
}

func TestVideo(t *testing.T) {
	if ffmpeg.Available {
		t.Skip("built with libavcodec")
	}
	_, err := Video(avbuf.NewRegion(avtest.H264Stream(4, 2)))
	assert.ErrorIs(t, err, av.UnsupportedCodec)
}

func TestDecodeErrors(t *testing.T) {
	audio := avtest.MKV(
		[]avtest.MKVTrack{{Number: 1, CodecID: "A_OPUS"}},
		[]avtest.MKVBlock{{Track: 1, Key: true, Data: []byte{0xfc, 0xff, 0xfe}}},
	)
	_, err := Video(avbuf.NewRegion(audio))
	assert.ErrorIs(t, err, av.NoVideoStream)

	_, err = Video(avbuf.NewRegion([]byte("not a video at all")))
	assert.ErrorIs(t, err, av.DemuxError)

	released := avbuf.NewRegion(make([]byte, rawFrameSize))
	released.Release()
	_, err = Raw(released, 4, 2)
	assert.ErrorIs(t, err, av.IOError)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = DecodeContext(ctx, avbuf.NewRegion(make([]byte, rawFrameSize)), RawVideoOptions(4, 2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptions(t *testing.T) {
	var zero Options
	assert.False(t, zero.HasResolution())
	assert.Equal(t, "auto", zero.Source.String())

	o := RawVideoOptions(4, 2)
	copied := o
	copied.Resolution.Width = 8
	assert.Equal(t, 4, o.Resolution.Width)

	name, dict, err := o.demuxerArgs()
	require.NoError(t, err)
	assert.Equal(t, "rawvideo", name)
	assert.Equal(t, "4x2", dict["video_size"])
	assert.Equal(t, "yuv420p", dict["pixel_format"])
}

func TestOptionsFormat(t *testing.T) {
	name, _, err := Options{Format: "mpegts"}.demuxerArgs()
	require.NoError(t, err)
	assert.Equal(t, "mpegts", name)

	// a raw format given by name needs a resolution like SourceRawVideo
	_, _, err = Options{Format: "rawvideo"}.demuxerArgs()
	assert.ErrorIs(t, err, av.InvalidResolution)

	// Source wins over Format
	name, _, err = Options{Format: "mpegts", Source: SourceImage}.demuxerArgs()
	require.NoError(t, err)
	assert.Equal(t, "image2pipe", name)

	pic, err := Decode(avbuf.NewRegion(make([]byte, rawFrameSize)), Options{
		Format:     "rawvideo",
		Resolution: av.Size{Width: 4, Height: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, pic.Width)

	_, err = Decode(avbuf.NewRegion(avtest.H264TS(2, 2)), Options{Format: "nope"})
	assert.ErrorIs(t, err, av.DemuxError)

	if !ffmpeg.Available {
		_, err = Decode(avbuf.NewRegion(avtest.H264Stream(4, 2)), Options{Format: "h264"})
		assert.ErrorIs(t, err, av.UnsupportedCodec)
	}
}
