// Package imagecodec
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-24
package imagecodec

import (
	"image/color"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/internal/avtest"
)

var red = color.NRGBA{R: 255, A: 255}

func TestDetect(t *testing.T) {
	webp := append([]byte("RIFF\x10\x00\x00\x00WEBPVP8 "), make([]byte, 16)...)
	tests := []struct {
		name string
		data []byte
		want av.CodecType
	}{
		{"jpeg", avtest.JPEG(avtest.Ramp(16, 8)), av.JPEG},
		{"png", avtest.PNG(avtest.GrayImage(4, 4, 10)), av.PNG},
		{"gif", avtest.GIF(avtest.ColorImage(4, 4, red)), av.GIF},
		{"bmp", avtest.BMP(avtest.ColorImage(4, 4, red)), av.BMP},
		{"tiff", avtest.TIFF(avtest.GrayImage(4, 4, 10)), av.TIFF},
		{"webp", webp, av.WEBP},
		{"annexb", []byte{0, 0, 0, 1, 0x67, 0x64}, 0},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.data))
		})
	}
}

func TestNewCodecData(t *testing.T) {
	tests := []struct {
		name  string
		codec av.CodecType
		data  []byte
		size  av.Size
		pf    av.PixelFormat
	}{
		{"jpeg color", av.JPEG, avtest.JPEG(avtest.Ramp(16, 8)), av.Size{Width: 16, Height: 8}, av.PixFmtYUVJ420P},
		{"jpeg gray", av.JPEG, avtest.JPEG(avtest.GrayImage(8, 6, 50)), av.Size{Width: 8, Height: 6}, av.PixFmtGray},
		{"png gray", av.PNG, avtest.PNG(avtest.GrayImage(5, 3, 50)), av.Size{Width: 5, Height: 3}, av.PixFmtGray},
		{"png color", av.PNG, avtest.PNG(avtest.ColorImage(5, 3, red)), av.Size{Width: 5, Height: 3}, av.PixFmtRGBA},
		{"gif", av.GIF, avtest.GIF(avtest.ColorImage(4, 2, red)), av.Size{Width: 4, Height: 2}, av.PixFmtRGBA},
		{"bmp", av.BMP, avtest.BMP(avtest.ColorImage(4, 2, red)), av.Size{Width: 4, Height: 2}, av.PixFmtRGBA},
		{"tiff gray", av.TIFF, avtest.TIFF(avtest.GrayImage(6, 2, 50)), av.Size{Width: 6, Height: 2}, av.PixFmtGray},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cd, err := NewCodecData(tt.codec, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.codec, cd.Type())
			assert.Equal(t, tt.size, cd.Size)
			assert.Equal(t, tt.pf, cd.PixelFormat())
		})
	}

	_, err := NewCodecData(av.PNG, []byte("not an image"))
	assert.Error(t, err)
}

func decodeOne(t *testing.T, cd CodecData, data []byte) *av.Frame {
	t.Helper()
	dec := NewDecoder(cd)
	defer dec.Close()

	_, err := dec.ReceiveFrame()
	require.ErrorIs(t, err, av.ErrAgain)

	require.NoError(t, dec.SendPacket(av.Packet{Data: data, PTS: 7}))
	require.ErrorIs(t, dec.SendPacket(av.Packet{Data: data}), av.ErrAgain)
	f, err := dec.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, int64(7), f.PTS)

	require.NoError(t, dec.SendPacket(av.Packet{}))
	_, err = dec.ReceiveFrame()
	require.ErrorIs(t, err, io.EOF)
	return f
}

func TestDecodeJPEG(t *testing.T) {
	data := avtest.JPEG(avtest.Ramp(16, 8))
	cd, err := NewCodecData(av.JPEG, data)
	require.NoError(t, err)

	f := decodeOne(t, cd, data)
	assert.Equal(t, av.PixFmtYUVJ420P, f.Format)
	assert.Equal(t, 16, f.Width)
	assert.Equal(t, 8, f.Height)

	pic, err := av.NewPicture(f.Format, f.Width, f.Height)
	require.NoError(t, err)
	require.NoError(t, pic.CopyFrame(f))
	for x := 0; x < 16; x++ {
		assert.InDelta(t, float64(x*16), float64(pic.Planes[0][3*16+x]), 12, "column %d", x)
	}
	assert.InDelta(t, 100, float64(pic.Planes[1][0]), 4)
	assert.InDelta(t, 150, float64(pic.Planes[2][0]), 4)
}

func TestDecodeConvertsToStreamFormat(t *testing.T) {
	data := avtest.PNG(avtest.GrayImage(4, 4, 100))
	cd := CodecData{Codec: av.PNG, Size: av.Size{Width: 4, Height: 4}, PixFmt: av.PixFmtYUV420P}

	f := decodeOne(t, cd, data)
	assert.Equal(t, av.PixFmtYUV420P, f.Format)
	assert.Equal(t, uint8(102), f.Planes[0][0])
	assert.Equal(t, uint8(128), f.Planes[1][0])
}

func TestDecodeRGBA(t *testing.T) {
	data := avtest.BMP(avtest.ColorImage(3, 2, red))
	cd, err := NewCodecData(av.BMP, data)
	require.NoError(t, err)

	f := decodeOne(t, cd, data)
	assert.Equal(t, av.PixFmtRGBA, f.Format)
	assert.Equal(t, []byte{255, 0, 0, 255}, f.Planes[0][:4])
}

func TestDecodeErrors(t *testing.T) {
	dec := NewDecoder(CodecData{Codec: av.PNG, Size: av.Size{Width: 8, Height: 8}, PixFmt: av.PixFmtGray})
	assert.Error(t, dec.SendPacket(av.Packet{Data: []byte("garbage")}))
	assert.Error(t, dec.SendPacket(av.Packet{Data: avtest.PNG(avtest.GrayImage(4, 4, 1))}))
	_, err := dec.ReceiveFrame()
	assert.ErrorIs(t, err, av.ErrAgain)
}
