// Package avconv
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package avconv

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/codec/ffmpeg"
	"github.com/teocci/go-avpack/format/mp4"
	"github.com/teocci/go-avpack/internal/avtest"
)

func TestParseCmdline(t *testing.T) {
	opt, err := ParseCmdline([]string{"-f", "rawvideo", "-s", "4x2", "-pix_fmt", "gray", "-i", "in.yuv", "-s", "8x4", "-pix_fmt", "rgb24", "-v", "out.rgb"})
	require.NoError(t, err)
	assert.Equal(t, Option{
		Input:     "in.yuv",
		Output:    "out.rgb",
		Format:    "rawvideo",
		Verbose:   true,
		InSize:    av.Size{Width: 4, Height: 2},
		InPixFmt:  "gray",
		OutSize:   av.Size{Width: 8, Height: 4},
		OutPixFmt: "rgb24",
	}, opt)

	_, err = ParseCmdline([]string{"out.mp4"})
	assert.Error(t, err)
	_, err = ParseCmdline([]string{"-i", "in.h264"})
	assert.Error(t, err)
	_, err = ParseCmdline([]string{"-s", "4by2", "-i", "in", "out"})
	assert.ErrorIs(t, err, av.InvalidResolution)
}

func TestConvertRemux(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.h264")
	out := filepath.Join(dir, "out.mp4")
	require.NoError(t, os.WriteFile(in, avtest.H264Stream(6, 3), 0o644))

	require.NoError(t, ConvertCmdline([]string{"-i", in, out}))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	d := mp4.NewDemuxer(bytes.NewReader(b))
	streams, err := d.Streams()
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, av.H264, streams[0].Type())

	n := 0
	for {
		_, err = d.ReadPacket()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 6, n)
}

func TestConvertDecode(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.yuv")
	require.NoError(t, os.WriteFile(in, bytes.Repeat([]byte{128}, 12), 0o644))

	out := filepath.Join(dir, "out.yuv")
	require.NoError(t, ConvertCmdline([]string{"-f", "rawvideo", "-s", "4x2", "-i", in, out}))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{128}, 12), b)

	// scaled and converted to gray
	out = filepath.Join(dir, "out.gray")
	require.NoError(t, ConvertCmdline([]string{"-f", "rawvideo", "-s", "4x2", "-i", in, "-s", "8x4", "-pix_fmt", "gray", out}))
	b, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Len(t, b, 32)
}

func TestConvertRandom(t *testing.T) {
	out := filepath.Join(t.TempDir(), "random.yuv")
	require.NoError(t, Convert(context.Background(), Option{Input: RandomInput, Output: out, InSize: av.Size{Width: 6, Height: 4}}))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	pic, err := av.RandomPicture(av.PixFmtYUV420P, 6, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, pic.Bytes(), b)
}

func TestConvertErrors(t *testing.T) {
	dir := t.TempDir()
	err := ConvertCmdline([]string{"-i", filepath.Join(dir, "missing.h264"), filepath.Join(dir, "out.mp4")})
	assert.ErrorIs(t, err, av.IOError)

	in := filepath.Join(dir, "in.ts")
	require.NoError(t, os.WriteFile(in, avtest.H264TS(2, 2), 0o644))
	err = ConvertCmdline([]string{"-f", "nope", "-i", in, filepath.Join(dir, "out.yuv")})
	assert.ErrorIs(t, err, av.DemuxError)

	// rawvideo picked from the extension still needs -s
	raw := filepath.Join(dir, "in.yuv")
	require.NoError(t, os.WriteFile(raw, make([]byte, 12), 0o644))
	err = ConvertCmdline([]string{"-i", raw, filepath.Join(dir, "out.gray")})
	assert.ErrorIs(t, err, av.InvalidResolution)
}

func TestConvertInputFormat(t *testing.T) {
	dir := t.TempDir()

	raw := filepath.Join(dir, "in.yuv")
	require.NoError(t, os.WriteFile(raw, bytes.Repeat([]byte{64}, 12), 0o644))
	out := filepath.Join(dir, "out.yuv")
	require.NoError(t, ConvertCmdline([]string{"-s", "4x2", "-i", raw, out}))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{64}, 12), b)

	if ffmpeg.Available {
		t.Skip("built with libavcodec")
	}
	// compressed input reaches the video decoder by name and by extension
	ts := filepath.Join(dir, "in.ts")
	require.NoError(t, os.WriteFile(ts, avtest.H264TS(2, 2), 0o644))
	for _, args := range [][]string{
		{"-f", "mpegts", "-i", ts, out},
		{"-i", ts, out},
	} {
		assert.ErrorIs(t, ConvertCmdline(args), av.UnsupportedCodec, "%v", args)
	}
}
